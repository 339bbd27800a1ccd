package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/pdf3md/internal/config"
	"github.com/yourusername/pdf3md/internal/convert"
)

// ConversionService はジョブ実行に必要な変換機能を表します（convert.Service が実装）。
type ConversionService interface {
	InspectPDF(ctx context.Context, path string) (int, error)
	PDFToMarkdown(ctx context.Context, path string, reporter convert.ProgressReporter) (string, error)
	RemoveArtifact(path string)
	SweepOrphans(maxAge time.Duration, isActive func(id string) bool) int
}

// Manager はジョブの投入・実行・後片付けを担います。
// 投入は呼び出し元をブロックせず、変換は固定数のワーカーで実行されます。
type Manager struct {
	cfg    *config.Config
	store  *Store
	svc    ConversionService
	logger *log.Logger

	queue chan task
	stop  chan struct{}
	wg    sync.WaitGroup
}

type task struct {
	id       string
	artifact *convert.StoredArtifact
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, svc ConversionService, store *Store, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if svc == nil {
		return nil, errors.New("svc is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}

	return &Manager{
		cfg:    cfg,
		store:  store,
		svc:    svc,
		logger: logger,
		queue:  make(chan task, cfg.QueueSize),
		stop:   make(chan struct{}),
	}, nil
}

// StartWorkers は変換ワーカーとスイーパーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	for i := 0; i < m.cfg.WorkerCount; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	m.wg.Add(1)
	go m.sweeper()
}

// Shutdown はワーカーの停止を指示し、終了を待ちます。
// 実行中の変換は中断されません（キャンセル機構は提供していません）。
func (m *Manager) Shutdown(ctx context.Context) error {
	close(m.stop)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit は保存済みアップロードを変換ジョブとして登録し、ジョブIDを返します。
// レコードの登録は同期的に行われるため、返却直後のポーリングでも
// pending 状態のレコードが必ず観測できます。
func (m *Manager) Submit(ctx context.Context, artifact *convert.StoredArtifact) (string, error) {
	if artifact == nil {
		return "", errors.New("artifact is nil")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := artifact.ID
	if id == "" {
		id = uuid.NewString()
	}

	record := &Record{
		Status:   StatusPending,
		Progress: 0,
		Stage:    "Waiting to start...",
		Filename: artifact.OriginalName,
		FileSize: artifact.Size,
	}
	if err := m.store.Create(id, record); err != nil {
		m.svc.RemoveArtifact(artifact.Path)
		return "", err
	}

	select {
	case m.queue <- task{id: id, artifact: artifact}:
	default:
		m.store.Delete(id)
		m.svc.RemoveArtifact(artifact.Path)
		return "", convert.NewError(convert.CodeQueueFull, "Server is busy, please try again later", nil)
	}

	return id, nil
}

// GetRecord はジョブの現在状態のスナップショットを返します。
func (m *Manager) GetRecord(id string) (*Record, error) {
	return m.store.Get(id)
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			return
		case t := <-m.queue:
			m.run(t)
		}
	}
}

func (m *Manager) run(t task) {
	ctx := context.Background()
	if m.cfg.JobTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.JobTimeoutSeconds)*time.Second)
		defer cancel()
	}

	// 変換中のパニックでワーカーを道連れにしない
	defer func() {
		if r := recover(); r != nil {
			if m.logger != nil {
				m.logger.Printf("job %s panicked: %v", t.id, r)
			}
			m.failJob(t, fmt.Errorf("internal error: %v", r))
		}
	}()

	pages, err := m.svc.InspectPDF(ctx, t.artifact.Path)
	if err != nil {
		m.failJob(t, err)
		return
	}

	m.update(t.id, func(r *Record) {
		r.Status = StatusProcessing
		r.Progress = 0
		r.Stage = "Starting conversion..."
		r.TotalPages = pages
	})
	m.update(t.id, func(r *Record) {
		r.Progress = 5
		r.Stage = "Initializing conversion..."
	})

	if m.logger != nil {
		m.logger.Printf("starting PDF conversion for %s (job %s)", t.artifact.OriginalName, t.id)
	}

	markdown, err := m.svc.PDFToMarkdown(ctx, t.artifact.Path, func(stage string, percent, currentPage, totalPages int) {
		m.update(t.id, func(r *Record) {
			r.Progress = percent
			r.Stage = stage
			if currentPage > 0 {
				r.CurrentPage = currentPage
			}
			if totalPages > 0 {
				r.TotalPages = totalPages
			}
		})
	})
	if err != nil {
		m.failJob(t, err)
		return
	}

	m.update(t.id, func(r *Record) {
		r.Progress = 95
		r.Stage = "Finalizing conversion..."
	})

	m.finishJob(t, &Result{
		Markdown:  markdown,
		Filename:  t.artifact.OriginalName,
		FileSize:  convert.FormatFileSize(t.artifact.Size),
		PageCount: pages,
		Timestamp: time.Now().Format(time.RFC3339),
		Success:   true,
	})
}

func (m *Manager) finishJob(t task, result *Result) {
	m.update(t.id, func(r *Record) {
		r.Status = StatusCompleted
		r.Progress = 100
		r.Stage = "Conversion complete!"
		r.Result = result
		r.Error = ""
	})
	if m.logger != nil {
		m.logger.Printf("conversion successful (job %s)", t.id)
	}
	m.onTerminal(t)
}

func (m *Manager) failJob(t task, err error) {
	message := err.Error()
	var apiErr *convert.Error
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	}

	// 進捗は最後に観測した値のまま残す
	m.update(t.id, func(r *Record) {
		r.Status = StatusError
		r.Stage = "Error: " + message
		r.Error = message
		r.Result = nil
	})
	if m.logger != nil {
		m.logger.Printf("conversion failed (job %s): %v", t.id, err)
	}
	m.onTerminal(t)
}

func (m *Manager) update(id string, mutate func(*Record)) {
	if err := m.store.Update(id, mutate); err != nil && m.logger != nil {
		m.logger.Printf("failed to update job %s: %v", id, err)
	}
}
