// Package convert は文書変換（PDF→Markdown, Markdown→DOCX, DOCX→Markdown）の
// ワークフローを提供します。変換そのものは外部コマンドに委ね、本パッケージは
// 一時ファイルの管理・メタデータ取得・HTTPハンドラーを担います。
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/yourusername/pdf3md/internal/config"
)

// 一時ファイルはジョブIDを含む名前で保存し、所有ジョブ以外は触らない。
const uploadPrefix = "upload_"

// Service は変換ワークフローのファイル管理とメタデータ取得を担います。
type Service struct {
	cfg     *config.Config
	engine  Engine
	logger  *log.Logger
	tempDir string
}

// NewService は Service を初期化し、一時ディレクトリを作成します。
func NewService(cfg *config.Config, engine Engine, logger *log.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if engine == nil {
		return nil, errors.New("engine is nil")
	}

	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "pdf3md")
	}
	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	return &Service{
		cfg:     cfg,
		engine:  engine,
		logger:  logger,
		tempDir: tempDir,
	}, nil
}

// TempDir は一時ファイルの保存先ディレクトリを返します。
func (s *Service) TempDir() string {
	return s.tempDir
}

// StoredArtifact は一時保存されたアップロードファイルを表します。
// ID はこのファイルを所有するジョブのIDとしてそのまま使われます。
type StoredArtifact struct {
	ID           string
	Path         string
	OriginalName string
	Size         int64
}

// StorePDFUpload はアップロードされたPDFを一時ディレクトリへ保存します。
// 保存後に内容を検査し、PDFでないファイルは拒否します。
func (s *Service) StorePDFUpload(ctx context.Context, file *multipart.FileHeader) (*StoredArtifact, error) {
	artifact, err := s.storeUpload(ctx, file, ".pdf")
	if err != nil {
		return nil, err
	}

	mime, err := mimetype.DetectFile(artifact.Path)
	if err != nil {
		s.RemoveArtifact(artifact.Path)
		return nil, NewError(CodeInternalError, "Failed to inspect uploaded file", err)
	}
	if !mime.Is("application/pdf") {
		s.RemoveArtifact(artifact.Path)
		return nil, NewError(CodeInvalidInput, "Invalid file type. Only PDF files are supported", nil)
	}
	return artifact, nil
}

func (s *Service) storeUpload(ctx context.Context, file *multipart.FileHeader, ext string) (*StoredArtifact, error) {
	if file == nil {
		return nil, NewError(CodeInvalidInput, "No file uploaded", nil)
	}
	if s.cfg.MaxFileSize > 0 && file.Size > s.cfg.MaxFileSize {
		return nil, NewError(CodeInvalidInput, "File exceeds the maximum allowed size", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := file.Open()
	if err != nil {
		return nil, NewError(CodeInternalError, "Failed to read uploaded file", err)
	}
	defer src.Close()

	id := uuid.NewString()
	path := filepath.Join(s.tempDir, uploadPrefix+id+ext)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return nil, NewError(CodeInternalError, "Failed to store uploaded file", err)
	}

	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.RemoveArtifact(path)
		return nil, NewError(CodeInternalError, "Failed to store uploaded file", err)
	}

	return &StoredArtifact{
		ID:           id,
		Path:         path,
		OriginalName: file.Filename,
		Size:         written,
	}, nil
}

// InspectPDF はPDFのページ数を取得します。破損したPDFはここで検出されます。
func (s *Service) InspectPDF(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	pages, err := pdfapi.PageCountFile(path)
	if err != nil {
		return 0, NewError(CodeConversionFailed, fmt.Sprintf("Failed to read PDF metadata: %v", err), err)
	}
	return pages, nil
}

// PDFToMarkdown は変換エンジンを実行します。
func (s *Service) PDFToMarkdown(ctx context.Context, path string, reporter ProgressReporter) (string, error) {
	return s.engine.PDFToMarkdown(ctx, path, reporter)
}

// MarkdownToWord はMarkdownをDOCXへ変換し、生成されたバイト列と
// タイムスタンプ付きのダウンロードファイル名を返します。
func (s *Service) MarkdownToWord(ctx context.Context, markdown, baseName string) ([]byte, string, error) {
	if strings.TrimSpace(baseName) == "" {
		baseName = "document"
	}

	outputPath := filepath.Join(s.tempDir, fmt.Sprintf("pandoc_%s.docx", uuid.NewString()))
	defer s.RemoveArtifact(outputPath)

	if err := s.engine.MarkdownToDOCX(ctx, markdown, outputPath); err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, "", NewError(CodeInternalError, "Failed to read generated document", err)
	}

	filename := fmt.Sprintf("%s_%s.docx", baseName, time.Now().Format("20060102_150405"))
	return data, filename, nil
}

// WordResult はDOCX→Markdown変換の結果です。
// PageCount はDOCXでは算出しないため常に null になります。
type WordResult struct {
	Markdown  string `json:"markdown"`
	Filename  string `json:"filename"`
	FileSize  string `json:"fileSize"`
	PageCount *int   `json:"pageCount"`
	Timestamp string `json:"timestamp"`
	Success   bool   `json:"success"`
}

// WordToMarkdown はアップロードされたDOCXをMarkdownへ変換します。
// 一時ファイルは成功・失敗にかかわらず削除されます。
func (s *Service) WordToMarkdown(ctx context.Context, file *multipart.FileHeader) (*WordResult, error) {
	artifact, err := s.storeUpload(ctx, file, ".docx")
	if err != nil {
		return nil, err
	}
	defer s.RemoveArtifact(artifact.Path)

	markdown, err := s.engine.DOCXToMarkdown(ctx, artifact.Path)
	if err != nil {
		return nil, err
	}

	return &WordResult{
		Markdown:  markdown,
		Filename:  artifact.OriginalName,
		FileSize:  FormatFileSize(artifact.Size),
		Timestamp: time.Now().Format(time.RFC3339),
		Success:   true,
	}, nil
}

// RemoveArtifact は一時ファイルを削除します。既に存在しない場合はエラー扱いしません。
func (s *Service) RemoveArtifact(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		if s.logger != nil {
			s.logger.Printf("failed to remove temp file %s: %v", path, err)
		}
	}
}

// SweepOrphans は一時ディレクトリに残った孤児アップロードファイルを削除します。
// 実行中ジョブとの競合を避けるため、maxAge より古く、かつ isActive が
// false を返すIDのファイルだけを対象にします。削除した件数を返します。
func (s *Service) SweepOrphans(maxAge time.Duration, isActive func(id string) bool) int {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("orphan sweep failed to read temp dir: %v", err)
		}
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), uploadPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		id := artifactID(entry.Name())
		if isActive != nil && isActive(id) {
			continue
		}
		path := filepath.Join(s.tempDir, entry.Name())
		if err := os.Remove(path); err != nil {
			if s.logger != nil {
				s.logger.Printf("orphan sweep failed to remove %s: %v", path, err)
			}
			continue
		}
		removed++
	}

	if removed > 0 && s.logger != nil {
		s.logger.Printf("orphan sweep removed %d stale upload(s)", removed)
	}
	return removed
}

func artifactID(name string) string {
	id := strings.TrimPrefix(name, uploadPrefix)
	if idx := strings.IndexByte(id, '.'); idx >= 0 {
		id = id[:idx]
	}
	return id
}

// FormatFileSize はバイト数を人間向けの表記（B / KB / MB）に変換します。
func FormatFileSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	}
}
