// Package config はアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// セッションストアのバックエンド種別。
const (
	// SessionStoreFile はJSONファイルによるセッション永続化。
	SessionStoreFile = "file"
	// SessionStorePostgres はPostgreSQLによるセッション永続化。
	SessionStorePostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Upstream
	APIBaseURL      string
	UpstreamTimeout time.Duration

	// Session
	SessionStore    string // "file" または "postgres"
	SessionFilePath string
	DatabaseURL     string // SessionStore=postgresの場合のみ必須

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Rate Limit
	RateLimitGeneral int // req/min/IP

	// Icon Proxy
	IconProxyTimeout time.Duration
	IconProxyMaxSize int64

	// Icon Upload
	IconMaxUploadSize int64
}

// Load は環境変数からConfigを読み込む。
// リモートAPIのベースURLには本番エンドポイントの既定値があるため、
// 必須の環境変数はセッションストアにpostgresを選んだ場合の
// DATABASE_URLのみ。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIBaseURL = getEnvString("API_BASE_URL", "https://railway.bookreview.techtrain.dev")
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)

	cfg.SessionStore = getEnvString("SESSION_STORE", SessionStoreFile)
	cfg.SessionFilePath = getEnvString("SESSION_FILE", "session.json")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	switch cfg.SessionStore {
	case SessionStoreFile:
		// ファイルストアにDATABASE_URLは不要
	case SessionStorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("SESSION_STORE=postgres requires DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unknown SESSION_STORE: %s (allowed: file, postgres)", cfg.SessionStore)
	}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.IconProxyTimeout = getEnvDuration("ICON_PROXY_TIMEOUT", 5*time.Second)
	cfg.IconProxyMaxSize = getEnvInt64("ICON_PROXY_MAX_SIZE", 2*1024*1024)
	cfg.IconMaxUploadSize = getEnvInt64("ICON_MAX_UPLOAD_SIZE", 1024*1024)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
