package jobs

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrConflict は同じIDのレコードが既に存在する場合に返されます。
	ErrConflict = errors.New("job already exists")
	// ErrNotFound は対象のレコードが存在しない場合に返されます。
	ErrNotFound = errors.New("job not found")
)

// Store はジョブ状態をプロセス内メモリに保持します。
// すべての操作はロック内で完結し、読み取りは常にスナップショット
// （深いコピー）を返します。途中状態のレコードが観測されることはありません。
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewStore は Store を作成します。
func NewStore() *Store {
	return &Store{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Create は新しいレコードを登録します。IDが既に存在する場合は ErrConflict を返します。
func (s *Store) Create(id string, record *Record) error {
	if record == nil {
		return errors.New("record is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; ok {
		return ErrConflict
	}
	now := s.now().UTC()
	stored := record.Clone()
	stored.ConversionID = id
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.records[id] = stored
	return nil
}

// Update は既存レコードに部分更新を適用します。レコードが存在しない、
// または期限切れの場合は ErrNotFound を返します。
// processing 中の進捗後退は直前の値に丸められます（進捗は単調非減少）。
func (s *Store) Update(id string, mutate func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok || s.expired(record) {
		return ErrNotFound
	}

	prevProgress := record.Progress
	mutate(record)
	if record.Status == StatusProcessing && record.Progress < prevProgress {
		record.Progress = prevProgress
	}
	record.UpdatedAt = s.now().UTC()
	return nil
}

// Get はレコードのスナップショットを返します。
// 期限切れのレコードは存在しないものとして扱います。
func (s *Store) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok || s.expired(record) {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// Delete はレコードを削除します。存在しない場合は何もしません。
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// ExpireAfter はレコードに削除期限を設定します。
// 終端状態の結果を最後のポーリングが観測できるよう、削除は即時ではなく
// 猶予期間の経過後にスイープで行われます。
func (s *Store) ExpireAfter(id string, grace time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	record.ExpiresAt = s.now().Add(grace)
	return nil
}

// SweepExpired は期限切れレコードを削除し、削除した件数を返します。
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if s.expired(record) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// Contains はIDのレコードが（期限切れ含め）存在するかを返します。
// 孤児ファイルのスイープが実行中ジョブのファイルを誤って消さないために使います。
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// Len は保持中のレコード数を返します。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) expired(record *Record) bool {
	return !record.ExpiresAt.IsZero() && s.now().After(record.ExpiresAt)
}
