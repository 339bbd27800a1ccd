package jobs

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestStoreCreateConflict(t *testing.T) {
	store := NewStore()
	if err := store.Create("job-1", &Record{Status: StatusPending}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := store.Create("job-1", &Record{Status: StatusPending}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	store := NewStore()
	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreUpdateNotFound(t *testing.T) {
	store := NewStore()
	err := store.Update("missing", func(r *Record) { r.Progress = 10 })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreGetReturnsSnapshot(t *testing.T) {
	store := NewStore()
	if err := store.Create("job-1", &Record{Status: StatusPending, Filename: "a.pdf"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := store.Update("job-1", func(r *Record) {
		r.Status = StatusCompleted
		r.Progress = 100
		r.Result = &Result{Markdown: "# hello", Success: true}
	}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	first, err := store.Get("job-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	first.Progress = 1
	first.Result.Markdown = "tampered"

	second, err := store.Get("job-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if second.Progress != 100 {
		t.Fatalf("stored progress mutated through snapshot: %d", second.Progress)
	}
	if second.Result.Markdown != "# hello" {
		t.Fatalf("stored result mutated through snapshot: %q", second.Result.Markdown)
	}
}

func TestStoreProgressMonotonicWhileProcessing(t *testing.T) {
	store := NewStore()
	if err := store.Create("job-1", &Record{Status: StatusProcessing, Progress: 50}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := store.Update("job-1", func(r *Record) { r.Progress = 30 }); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	record, err := store.Get("job-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.Progress != 50 {
		t.Fatalf("progress regressed to %d, want 50", record.Progress)
	}

	if err := store.Update("job-1", func(r *Record) { r.Progress = 70 }); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	record, err = store.Get("job-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.Progress != 70 {
		t.Fatalf("progress = %d, want 70", record.Progress)
	}
}

func TestStoreDeleteIdempotent(t *testing.T) {
	store := NewStore()
	if err := store.Create("job-1", &Record{Status: StatusPending}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	store.Delete("job-1")
	store.Delete("job-1")
	if store.Len() != 0 {
		t.Fatalf("expected empty store, len=%d", store.Len())
	}
}

func TestStoreExpiry(t *testing.T) {
	store := NewStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	if err := store.Create("job-1", &Record{Status: StatusCompleted, Progress: 100}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := store.ExpireAfter("job-1", 5*time.Second); err != nil {
		t.Fatalf("ExpireAfter returned error: %v", err)
	}

	// 猶予内は最後のポーリングのために読める
	if _, err := store.Get("job-1"); err != nil {
		t.Fatalf("Get within grace returned error: %v", err)
	}

	current = current.Add(6 * time.Second)
	if _, err := store.Get("job-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after grace, got %v", err)
	}
	if removed := store.SweepExpired(); removed != 1 {
		t.Fatalf("SweepExpired removed %d, want 1", removed)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store after sweep, len=%d", store.Len())
	}
}

func TestStoreContainsIncludesExpired(t *testing.T) {
	store := NewStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	if err := store.Create("job-1", &Record{Status: StatusError}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := store.ExpireAfter("job-1", time.Second); err != nil {
		t.Fatalf("ExpireAfter returned error: %v", err)
	}
	current = current.Add(2 * time.Second)

	// スイープ前の期限切れレコードも所有権チェックでは「存在する」扱い
	if !store.Contains("job-1") {
		t.Fatal("Contains returned false for unswept record")
	}
}

func TestStoreConcurrentUpdates(t *testing.T) {
	store := NewStore()
	const jobs = 8
	const steps = 50

	for i := 0; i < jobs; i++ {
		id := fmt.Sprintf("job-%d", i)
		if err := store.Create(id, &Record{Status: StatusProcessing}); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		id := fmt.Sprintf("job-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := 1; p <= steps; p++ {
				progress := p
				_ = store.Update(id, func(r *Record) { r.Progress = progress * 2 })
			}
		}()
	}
	wg.Wait()

	for i := 0; i < jobs; i++ {
		id := fmt.Sprintf("job-%d", i)
		record, err := store.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) returned error: %v", id, err)
		}
		if record.Progress != steps*2 {
			t.Fatalf("job %s progress = %d, want %d", id, record.Progress, steps*2)
		}
	}
}
