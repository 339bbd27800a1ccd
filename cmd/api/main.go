// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/pdf3md/internal/config"
	"github.com/yourusername/pdf3md/internal/convert"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))
	log.Printf("Initializing CORS with origins: %v", origins)

	// 変換サービスとジョブマネージャーの初期化
	logger := log.Default()
	engine := convert.NewExecEngine(cfg.PDFConverterPath, cfg.PandocPath, logger)
	service, err := convert.NewService(cfg, engine, logger)
	if err != nil {
		log.Fatalf("Failed to initialize conversion service: %v", err)
	}

	manager, err := setupJobs(cfg, service, logger)
	if err != nil {
		log.Fatalf("Failed to initialize job manager: %v", err)
	}
	manager.StartWorkers()

	// ルーティングの設定
	setupRoutes(router, service, manager)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "pdf3md-api",
		"version": "0.1.0",
	})
}
