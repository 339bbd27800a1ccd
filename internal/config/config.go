// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル制限
	MaxFileSize int64  // 単一ファイルの最大サイズ（バイト）
	TempDir     string // 一時ファイルの保存先（空の場合は OS の一時ディレクトリ配下）

	// ジョブ設定
	WorkerCount         int // 変換ワーカーの並列数
	QueueSize           int // 投入待ちキューの容量
	JobGraceSeconds     int // 終端状態からレコード削除までの猶予（秒）
	JobTimeoutSeconds   int // 1ジョブあたりのタイムアウト（0で無効）
	OrphanMaxAgeMinutes int // 孤児一時ファイルを削除対象とみなす経過時間（分）

	// 変換エンジン設定
	PDFConverterPath string // PDF→Markdown変換コマンドのパス
	PandocPath       string // Pandoc実行ファイルのパス
}

// 元サービス(pdf3md)が許可していた開発用オリジン。
const defaultCORSOrigins = "http://localhost:5173,http://localhost:3000," +
	"http://127.0.0.1:5173,http://127.0.0.1:3000," +
	"http://localhost:6202,http://127.0.0.1:6202"

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "6201"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),

		// ファイル制限
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 104857600), // 100MB
		TempDir:     getEnv("TEMP_DIR", ""),

		// ジョブ設定
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 4),
		QueueSize:           getEnvAsInt("QUEUE_SIZE", 64),
		JobGraceSeconds:     getEnvAsInt("JOB_GRACE_SECONDS", 5),
		JobTimeoutSeconds:   getEnvAsInt("JOB_TIMEOUT_SECONDS", 0),
		OrphanMaxAgeMinutes: getEnvAsInt("ORPHAN_MAX_AGE_MINUTES", 60),

		// 変換エンジン設定
		PDFConverterPath: getEnv("PDF_CONVERTER_PATH", "markitdown"),
		PandocPath:       getEnv("PANDOC_PATH", "pandoc"),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.WorkerCount <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive")
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("QUEUE_SIZE must not be negative")
	}
	if c.JobGraceSeconds < 0 {
		return fmt.Errorf("JOB_GRACE_SECONDS must not be negative")
	}

	// ローカル開発では変換コマンドの設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.PDFConverterPath == "" {
			return fmt.Errorf("PDF_CONVERTER_PATH is required in release mode")
		}
		if c.PandocPath == "" {
			return fmt.Errorf("PANDOC_PATH is required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
