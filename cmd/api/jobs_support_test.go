package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/pdf3md/internal/config"
	"github.com/yourusername/pdf3md/internal/convert"
	"github.com/yourusername/pdf3md/internal/jobs"
)

type fakeConversionService struct{}

func (f *fakeConversionService) InspectPDF(ctx context.Context, path string) (int, error) {
	return 3, nil
}

func (f *fakeConversionService) PDFToMarkdown(ctx context.Context, path string, reporter convert.ProgressReporter) (string, error) {
	return "# converted", nil
}

func (f *fakeConversionService) RemoveArtifact(path string) {}

func (f *fakeConversionService) SweepOrphans(maxAge time.Duration, isActive func(id string) bool) int {
	return 0
}

func newProgressRouter(t *testing.T) (*gin.Engine, *jobs.Manager, *jobs.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		WorkerCount:     1,
		QueueSize:       4,
		JobGraceSeconds: 60,
	}
	store := jobs.NewStore()
	manager, err := jobs.NewManager(cfg, &fakeConversionService{}, store, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("failed to build manager: %v", err)
	}

	router := gin.New()
	router.GET("/progress/:conversionId", progressHandler(manager))
	return router, manager, store
}

func TestProgressHandlerUnknownID(t *testing.T) {
	router, _, _ := newProgressRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/progress/no-such-job", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["error"] != "Conversion not found" {
		t.Fatalf("error = %q", payload["error"])
	}
}

func TestProgressHandlerPendingRecord(t *testing.T) {
	router, manager, _ := newProgressRouter(t)

	// ワーカーは起動しないため、レコードは pending のまま残ります。
	id, err := manager.Submit(context.Background(), &convert.StoredArtifact{
		ID:           "job-aaa",
		Path:         "/tmp/upload_job-aaa.pdf",
		OriginalName: "report.pdf",
		Size:         42,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/progress/"+id, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["conversionId"] != id {
		t.Fatalf("conversionId = %v", payload["conversionId"])
	}
	if payload["status"] != string(jobs.StatusPending) {
		t.Fatalf("status = %v, want pending", payload["status"])
	}
	if payload["stage"] != "Waiting to start..." {
		t.Fatalf("stage = %v", payload["stage"])
	}
	if payload["filename"] != "report.pdf" {
		t.Fatalf("filename = %v", payload["filename"])
	}
}

func TestProgressHandlerCompletedRecord(t *testing.T) {
	router, _, store := newProgressRouter(t)

	now := time.Now()
	if err := store.Create("job-done", &jobs.Record{
		Status:   jobs.StatusCompleted,
		Progress: 100,
		Stage:    "Conversion complete!",
		Filename: "report.pdf",
		Result: &jobs.Result{
			Markdown:  "# converted",
			Filename:  "report.pdf",
			FileSize:  "14 B",
			PageCount: 3,
			Timestamp: now.Format(time.RFC3339),
			Success:   true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/progress/job-done", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var payload struct {
		Status   string `json:"status"`
		Progress int    `json:"progress"`
		Result   *struct {
			Markdown  string `json:"markdown"`
			PageCount int    `json:"pageCount"`
			Success   bool   `json:"success"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Status != string(jobs.StatusCompleted) || payload.Progress != 100 {
		t.Fatalf("status=%s progress=%d", payload.Status, payload.Progress)
	}
	if payload.Result == nil || payload.Result.Markdown != "# converted" || payload.Result.PageCount != 3 || !payload.Result.Success {
		t.Fatalf("result = %+v", payload.Result)
	}
}
