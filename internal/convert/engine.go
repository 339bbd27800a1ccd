package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
)

// Engine は文書変換を実行する外部コラボレーターです。
// 実処理は外部コマンドに委ねるため、処理時間は数秒〜数分かかる前提で扱います。
type Engine interface {
	// PDFToMarkdown はPDFをMarkdownへ変換します。進捗は reporter へ通知されます。
	PDFToMarkdown(ctx context.Context, path string, reporter ProgressReporter) (string, error)
	// MarkdownToDOCX はMarkdownテキストをDOCXファイルとして outputPath に書き出します。
	MarkdownToDOCX(ctx context.Context, markdown string, outputPath string) error
	// DOCXToMarkdown はDOCXファイルをMarkdownへ変換します。
	DOCXToMarkdown(ctx context.Context, path string) (string, error)
}

// ExecEngine は外部コマンドを起動して変換を行う Engine 実装です。
// PDF→Markdown は設定されたコンバーターコマンド、Markdown⇔DOCX は Pandoc を使用します。
type ExecEngine struct {
	pdfConverterPath string
	pandocPath       string
	logger           *log.Logger
}

// NewExecEngine は ExecEngine を作成します。
func NewExecEngine(pdfConverterPath, pandocPath string, logger *log.Logger) *ExecEngine {
	return &ExecEngine{
		pdfConverterPath: pdfConverterPath,
		pandocPath:       pandocPath,
		logger:           logger,
	}
}

// PDFToMarkdown はPDF変換コマンドを実行し、標準出力のMarkdownを返します。
// コマンドが標準エラーに出力する "(current/total)" 形式のページマーカーを
// 進捗として解釈しつつ、出力自体はサーバーログへそのまま転送します。
func (e *ExecEngine) PDFToMarkdown(ctx context.Context, path string, reporter ProgressReporter) (string, error) {
	var out bytes.Buffer
	var errOut bytes.Buffer

	cmd := exec.CommandContext(ctx, e.pdfConverterPath, path)
	cmd.Stdout = &out
	cmd.Stderr = newPageMarkerWriter(reporter, io.MultiWriter(e.logWriter("pdf2md"), &errOut))

	if err := cmd.Run(); err != nil {
		return "", e.commandError("PDF conversion failed", err, &errOut)
	}
	return out.String(), nil
}

// MarkdownToDOCX は Pandoc でMarkdownをDOCXへ変換します。
func (e *ExecEngine) MarkdownToDOCX(ctx context.Context, markdown string, outputPath string) error {
	var errOut bytes.Buffer

	cmd := exec.CommandContext(ctx, e.pandocPath, "-f", "markdown", "-t", "docx", "-o", outputPath)
	cmd.Stdin = strings.NewReader(markdown)
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return e.commandError("Markdown to DOCX conversion failed", err, &errOut)
	}
	return nil
}

// DOCXToMarkdown は Pandoc でDOCXをMarkdownへ変換します。
// 出力の揺れを抑えるため markdown_strict を使用します。
func (e *ExecEngine) DOCXToMarkdown(ctx context.Context, path string) (string, error) {
	var out bytes.Buffer
	var errOut bytes.Buffer

	cmd := exec.CommandContext(ctx, e.pandocPath, "-f", "docx", "-t", "markdown_strict", path)
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return "", e.commandError("DOCX to Markdown conversion failed", err, &errOut)
	}
	return out.String(), nil
}

func (e *ExecEngine) commandError(message string, err error, errOut *bytes.Buffer) error {
	if errors.Is(err, exec.ErrNotFound) {
		return NewError(CodeConverterNotFound, message+": converter binary not found", err)
	}
	detail := strings.TrimSpace(errOut.String())
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}
	return NewError(CodeConversionFailed, message, err)
}

// logWriter は外部コマンドの出力をロガーへ流す writer を返します。
func (e *ExecEngine) logWriter(name string) io.Writer {
	return &prefixLogWriter{logger: e.logger, prefix: name}
}

type prefixLogWriter struct {
	logger *log.Logger
	prefix string
}

func (w *prefixLogWriter) Write(p []byte) (int, error) {
	if w.logger != nil {
		for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
			if line == "" {
				continue
			}
			w.logger.Printf("[%s] %s", w.prefix, line)
		}
	}
	return len(p), nil
}
