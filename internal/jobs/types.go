// Package jobs は非同期変換ジョブの状態管理を提供します。
// ジョブ状態はプロセス内メモリのみで保持され、プロセス終了とともに消えます。
package jobs

import "time"

// Status はジョブの実行状態を表します。
// 遷移は pending → processing → completed | error のみで、
// completed / error は終端状態です。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal は終端状態かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Result はジョブ完了時の変換結果ペイロードです。
type Result struct {
	Markdown  string `json:"markdown"`
	Filename  string `json:"filename"`
	FileSize  string `json:"fileSize"`
	PageCount int    `json:"pageCount"`
	Timestamp string `json:"timestamp"`
	Success   bool   `json:"success"`
}

// Record はジョブの現在状態を表します。
// Result は completed、Error は error の場合にのみ設定されます。
type Record struct {
	ConversionID string    `json:"conversionId"`
	Status       Status    `json:"status"`
	Progress     int       `json:"progress"`
	Stage        string    `json:"stage"`
	CurrentPage  int       `json:"currentPage,omitempty"`
	TotalPages   int       `json:"totalPages,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	FileSize     int64     `json:"fileSize,omitempty"`
	Result       *Result   `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// 終端状態到達後にレコードが削除される時刻。未設定なら削除されません。
	ExpiresAt time.Time `json:"-"`
}

// Clone はレコードの深いコピーを返します。呼び出し側がコピーを変更しても
// ストア内のレコードには影響しません。
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Result != nil {
		result := *r.Result
		clone.Result = &result
	}
	return &clone
}
