package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/chatproxy/internal/auth"
	"github.com/hitoshi/chatproxy/internal/chat"
	"github.com/hitoshi/chatproxy/internal/config"
	"github.com/hitoshi/chatproxy/internal/database"
	"github.com/hitoshi/chatproxy/internal/handler"
	"github.com/hitoshi/chatproxy/internal/llm"
	"github.com/hitoshi/chatproxy/internal/metrics"
	"github.com/hitoshi/chatproxy/internal/middleware"
	"github.com/hitoshi/chatproxy/internal/repository"
	"github.com/hitoshi/chatproxy/internal/security"
	"github.com/hitoshi/chatproxy/internal/token"
	"github.com/hitoshi/chatproxy/internal/user"
	"github.com/hitoshi/chatproxy/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
)

// stores はSTORE_BACKENDに応じて構築したリポジトリをまとめる。
type stores struct {
	users       repository.UserRepository
	revocations repository.RevocationRepository
	db          *sql.DB // postgresバックエンドの場合のみ非nil
}

// Close はDB接続を閉じる。
func (s *stores) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// openStores はSTORE_BACKENDに応じたリポジトリを構築する。
// fileバックエンドの失効リストはプロセス内に保持する。
func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return &stores{
			users:       repository.NewPostgresUserRepo(db),
			revocations: repository.NewPostgresRevocationRepo(db),
			db:          db,
		}, nil

	case config.StoreBackendFile:
		slog.Info("using file user store", slog.String("path", cfg.UserStorePath))
		return &stores{
			users:       repository.NewFileUserRepo(cfg.UserStorePath),
			revocations: repository.NewMemoryRevocationRepo(),
		}, nil

	case config.StoreBackendMemory:
		slog.Warn("using in-memory user store; users are lost on restart")
		return &stores{
			users:       repository.NewMemoryUserRepo(),
			revocations: repository.NewMemoryRevocationRepo(),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store backend: %q", cfg.StoreBackend)
	}
}

// newLLMHTTPClient は言語モデルAPI呼び出し用のHTTPクライアントを生成する。
// LLM_SSRF_GUARDが有効な場合はベースURLを検証し、プライベートアドレスへの接続を拒否するクライアントを返す。
func newLLMHTTPClient(cfg *config.Config) (*http.Client, error) {
	if !cfg.LLMSSRFGuard {
		return &http.Client{Timeout: cfg.LLMTimeout}, nil
	}

	guard := security.NewSSRFGuard()
	if err := guard.ValidateURL(cfg.LLMBaseURL); err != nil {
		return nil, fmt.Errorf("LLM_BASE_URL rejected by SSRF guard: %w", err)
	}
	return guard.NewSafeClient(cfg.LLMTimeout), nil
}

// application はHTTPサーバーが必要とする構築済みの依存関係。
type application struct {
	stores      *stores
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	cleanupJob  *cleanup.CleanupJob
}

// Close はアプリケーションが保持するリソースを解放する。
func (a *application) Close() error {
	a.rateLimiter.Stop()
	return a.stores.Close()
}

// newApplication は設定から全依存関係をワイヤリングする。
// メトリクスはregに登録し、gathererの内容を/metricsで公開する。
func newApplication(cfg *config.Config, st *stores, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*application, error) {
	collector := metrics.NewCollector(reg)

	// 1. トークンとパスワード
	tokens := token.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	// 2. ドメインサービス
	authService := auth.NewService(st.users, st.revocations, hasher, tokens, security.NewNameSanitizer())
	userService := user.NewService(st.users)

	llmHTTPClient, err := newLLMHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	llmClient := llm.NewClient(llmHTTPClient, slog.Default(), llm.Config{
		BaseURL:         cfg.LLMBaseURL,
		APIKey:          cfg.LLMAPIKey,
		Model:           cfg.LLMModel,
		SystemPrompt:    cfg.LLMSystemPrompt,
		MaxResponseSize: cfg.LLMMaxResponseSize,
	})
	chatService := chat.NewService(llmClient, collector, cfg.LLMTimeout)

	// 3. ルーター
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitChat, cfg.RateLimitAuth),
	)

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           collector,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.CookieSecure,
		TrustProxy:        cfg.TrustProxy,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			Cookie: middleware.CookieConfig{
				Secure: cfg.CookieSecure,
				Domain: cfg.CookieDomain,
			},
			TokenTTL: tokens.TTL(),
		},

		UserService: userService,
		ChatService: chatService,

		MetricsHandler: metrics.Handler(gatherer),
		StaticDir:      cfg.StaticDir,
	}
	if st.db != nil {
		deps.HealthPinger = st.db
	}

	return &application{
		stores:      st,
		handler:     handler.NewRouter(deps),
		rateLimiter: rateLimiter,
		cleanupJob:  cleanup.NewCleanupJob(st.revocations, slog.Default(), collector),
	}, nil
}
