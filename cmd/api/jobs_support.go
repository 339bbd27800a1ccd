package main

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/pdf3md/internal/config"
	"github.com/yourusername/pdf3md/internal/convert"
	"github.com/yourusername/pdf3md/internal/jobs"
)

func setupJobs(cfg *config.Config, service *convert.Service, logger *log.Logger) (*jobs.Manager, error) {
	store := jobs.NewStore()
	return jobs.NewManager(cfg, service, store, logger)
}

// setupRoutes は API のルーティングを設定します。
func setupRoutes(router *gin.Engine, service *convert.Service, manager *jobs.Manager) {
	router.GET("/health", handleHealth)

	router.POST("/convert", convert.ConvertPDFHandler(service, manager))
	router.GET("/progress/:conversionId", progressHandler(manager))
	router.POST("/convert-markdown-to-word", convert.MarkdownToWordHandler(service))
	router.POST("/convert-word-to-markdown", convert.WordToMarkdownHandler(service))
}

// progressHandler は GET /progress/:conversionId のハンドラーを返します。
// ジョブレコードの高速な読み取りのみを行い、変換の完了を待つことはありません。
func progressHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("conversionId"))
		if id == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversion not found"})
			return
		}

		record, err := manager.GetRecord(id)
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Conversion not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read conversion progress"})
			return
		}

		c.JSON(http.StatusOK, record)
	}
}
