package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストレージバックエンドの種類。
const (
	StoreBackendPostgres = "postgres"
	StoreBackendFile     = "file"
	StoreBackendMemory   = "memory"
)

// 開発環境用のデフォルト値。本番環境（APP_ENV=production）では使用しない。
const (
	devJWTSecret = "dev-secret-change-me"
	devLLMAPIKey = "dev-llm-api-key"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	AppEnv string

	// Store
	StoreBackend  string
	DatabaseURL   string
	UserStorePath string

	// Token
	JWTSecret string
	TokenTTL  time.Duration

	// Password
	BcryptCost int

	// LLM
	LLMAPIKey          string
	LLMBaseURL         string
	LLMModel           string
	LLMSystemPrompt    string
	LLMTimeout         time.Duration
	LLMMaxResponseSize int64
	LLMSSRFGuard       bool

	// Rate Limit
	RateLimitChat int
	RateLimitAuth int

	// Revocation
	RevocationCleanupInterval time.Duration

	// Server
	ServerPort string
	BaseURL    string
	StaticDir  string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Proxy
	TrustProxy bool
}

// IsProduction は本番環境で動作しているかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load は環境変数からConfigを読み込む。
// 本番環境で必須環境変数が未設定の場合はエラーを返す。
// 開発環境では署名鍵とLLM APIキーに開発用のデフォルト値を使用する。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.AppEnv = getEnvString("APP_ENV", "development")
	cfg.StoreBackend = getEnvString("STORE_BACKEND", StoreBackendMemory)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")

	var missing []string

	if cfg.IsProduction() {
		if cfg.JWTSecret == "" {
			missing = append(missing, "JWT_SECRET")
		}
		if cfg.LLMAPIKey == "" {
			missing = append(missing, "LLM_API_KEY")
		}
	}
	if cfg.StoreBackend == StoreBackendPostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	switch cfg.StoreBackend {
	case StoreBackendPostgres, StoreBackendFile, StoreBackendMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND: %q", cfg.StoreBackend)
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
	}
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = devLLMAPIKey
	}

	// Optional fields with defaults
	cfg.UserStorePath = getEnvString("USER_STORE_PATH", "data/users.json")
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.LLMBaseURL = strings.TrimRight(getEnvString("LLM_BASE_URL", "https://openrouter.ai/api/v1"), "/")
	cfg.LLMModel = getEnvString("LLM_MODEL", "openai/gpt-3.5-turbo")
	cfg.LLMSystemPrompt = getEnvString("LLM_SYSTEM_PROMPT", "You are a helpful assistant.")
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", 60*time.Second)
	cfg.LLMMaxResponseSize = getEnvInt64("LLM_MAX_RESPONSE_SIZE", 1048576)
	cfg.LLMSSRFGuard = getEnvBool("LLM_SSRF_GUARD", true)
	cfg.RateLimitChat = getEnvInt("RATE_LIMIT_CHAT", 30)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.RevocationCleanupInterval = getEnvDuration("REVOCATION_CLEANUP_INTERVAL", time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.ServerPort)
	cfg.StaticDir = getEnvString("STATIC_DIR", "web")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)

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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
