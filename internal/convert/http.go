package convert

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// UploadStore はアップロードファイルの一時保存を提供します。
type UploadStore interface {
	StorePDFUpload(ctx context.Context, file *multipart.FileHeader) (*StoredArtifact, error)
}

// JobSubmitter は保存済みアップロードを非同期変換ジョブとして投入します。
type JobSubmitter interface {
	Submit(ctx context.Context, artifact *StoredArtifact) (string, error)
}

// MarkdownService はMarkdown→DOCX変換を提供します。
type MarkdownService interface {
	MarkdownToWord(ctx context.Context, markdown, baseName string) ([]byte, string, error)
}

// WordService はDOCX→Markdown変換を提供します。
type WordService interface {
	WordToMarkdown(ctx context.Context, file *multipart.FileHeader) (*WordResult, error)
}

// ConvertPDFHandler は POST /convert のハンドラーを返します。
// アップロードを一時保存してジョブを投入し、変換の完了を待たずに
// conversionId を返します。進捗は GET /progress/:conversionId で取得します。
func ConvertPDFHandler(store UploadStore, jobs JobSubmitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := c.FormFile("pdf")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
			return
		}
		if strings.TrimSpace(file.Filename) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
			return
		}

		artifact, err := store.StorePDFUpload(c.Request.Context(), file)
		if err != nil {
			respondWithError(c, err)
			return
		}

		id, err := jobs.Submit(c.Request.Context(), artifact)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"conversionId": id,
			"message":      "Conversion started",
			"success":      true,
		})
	}
}

// MarkdownToWordHandler は POST /convert-markdown-to-word のハンドラーを返します。
// 変換は同期的に行い、DOCXを添付ファイルとして返します。
func MarkdownToWordHandler(svc MarkdownService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Markdown string `json:"markdown"`
			Filename string `json:"filename"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No markdown content provided"})
			return
		}
		if strings.TrimSpace(req.Markdown) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Markdown content is empty"})
			return
		}

		data, filename, err := svc.MarkdownToWord(c.Request.Context(), req.Markdown, req.Filename)
		if err != nil {
			respondWithError(c, err)
			return
		}

		encodedName := url.PathEscape(filename)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", filename, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, docxContentType, data)
	}
}

// WordToMarkdownHandler は POST /convert-word-to-markdown のハンドラーを返します。
func WordToMarkdownHandler(svc WordService) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := c.FormFile("document")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
			return
		}
		if strings.TrimSpace(file.Filename) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
			return
		}
		if !strings.HasSuffix(strings.ToLower(file.Filename), ".docx") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type. Only .docx files are supported"})
			return
		}

		result, err := svc.WordToMarkdown(c.Request.Context(), file)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// respondWithError はコード付きエラーをHTTPレスポンスへ変換します。
// レスポンス本体の形式はフロントエンド互換のため {"error": ...} に固定しています。
func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Code == CodeInvalidInput {
			c.JSON(http.StatusBadRequest, gin.H{"error": apiErr.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   apiErr.Message,
			"success": false,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "Request canceled"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   fmt.Sprintf("Server error: %v", err),
			"success": false,
		})
	}
}
