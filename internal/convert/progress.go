package convert

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// ProgressReporter は進捗更新用コールバックです。
// currentPage / totalPages が不明な段階では 0 を渡します。
type ProgressReporter func(stage string, percent, currentPage, totalPages int)

func reportProgress(cb ProgressReporter, stage string, percent, currentPage, totalPages int) {
	if cb == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	cb(stage, percent, currentPage, totalPages)
}

// 進捗の割当範囲。先頭10%は準備、末尾5%は仕上げ用に確保するため、
// ページ進捗は 10〜95 の範囲に正規化されます。
const (
	progressBase = 10
	progressSpan = 85
)

// 変換コマンドが出力する "(current/total)" 形式のページマーカー。
var pageMarkerPattern = regexp.MustCompile(`\(\s*(\d+)/(\d+)\)`)

// 書き込みチャンクの境界でマーカーが分断された場合に備えて持ち越すバイト数。
const markerTailSize = 32

// pageMarkerWriter は変換コマンドのテキスト出力からページマーカーを抽出し、
// ProgressReporter へ正規化した進捗を通知する io.Writer です。
// 受け取ったバイト列はそのまま下流の writer へ転送します（出力の改変はしません）。
type pageMarkerWriter struct {
	reporter    ProgressReporter
	passthrough io.Writer
	tail        []byte
}

func newPageMarkerWriter(reporter ProgressReporter, passthrough io.Writer) *pageMarkerWriter {
	return &pageMarkerWriter{
		reporter:    reporter,
		passthrough: passthrough,
	}
}

func (w *pageMarkerWriter) Write(p []byte) (int, error) {
	if w.passthrough != nil {
		// 下流への転送失敗で変換自体を止めない
		_, _ = w.passthrough.Write(p)
	}

	buf := append(w.tail, p...)
	rest := 0
	for _, idx := range pageMarkerPattern.FindAllSubmatchIndex(buf, -1) {
		rest = idx[1]
		current, err1 := strconv.Atoi(string(buf[idx[2]:idx[3]]))
		total, err2 := strconv.Atoi(string(buf[idx[4]:idx[5]]))
		if err1 != nil || err2 != nil || total <= 0 || current <= 0 || current > total {
			continue
		}
		percent := current*progressSpan/total + progressBase
		stage := fmt.Sprintf("Processing page %d of %d...", current, total)
		reportProgress(w.reporter, stage, percent, current, total)
	}

	// マーカーの再検出を避けるため、最後のマッチより後ろだけを持ち越す
	buf = buf[rest:]
	if len(buf) > markerTailSize {
		buf = buf[len(buf)-markerTailSize:]
	}
	w.tail = append(w.tail[:0], buf...)

	return len(p), nil
}
