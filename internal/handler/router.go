package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/chatproxy/internal/metrics"
	"github.com/hitoshi/chatproxy/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	HSTS              bool
	TrustProxy        bool // trueの場合はX-Forwarded-For等からクライアントIPを取得する

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// チャット
	ChatService ChatServiceInterface

	// 運用
	HealthPinger   Pinger       // nilの場合はDB疎通確認を行わない
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない

	// ページ
	StaticDir string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェアスタックの実行順序:
//
//	(RealIP) → Logging → Metrics → Recovery → SecurityHeaders → CORS
//
// RealIPはTrustProxyが有効な場合のみ挿入する。
//
// /auth/*、/chat、/health、/metrics、静的アセットはルートガードの外に配置する。
// それ以外のパスはページ遷移としてルートガードを通す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	cookies := deps.AuthConfig.Cookie
	requireAuth := middleware.NewAuthMiddleware(deps.AuthService)
	csrf := middleware.NewCSRFMiddleware(cookies)

	authHandler := NewAuthHandler(deps.AuthService, collector, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	chatHandler := NewChatHandler(deps.ChatService)

	// --- ルートガード対象外のルート ---

	r.Route("/auth", func(r chi.Router) {
		// ログイン・登録はクライアントIP単位でレート制限する
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		r.With(csrf).Post("/logout", authHandler.Logout)
		r.With(requireAuth).Get("/me", userHandler.Me)
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(cookies))
	})

	// ミドルウェアスタック: Auth → CSRF → RateLimit(Chat)
	r.With(requireAuth, csrf, deps.RateLimiter.ChatMiddleware()).Post("/chat", chatHandler.Chat)

	r.Get("/health", NewHealthHandler(deps.HealthPinger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	if deps.StaticDir != "" {
		static := NewStaticHandler(deps.StaticDir)
		r.Method(http.MethodGet, "/static/*", static)
		r.Method(http.MethodGet, "/favicon.ico", static)

		// --- ページ遷移（ルートガード対象） ---
		pages := NewPageHandler(deps.StaticDir)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRouteGuardMiddleware(deps.AuthService, cookies))
			r.Method(http.MethodGet, "/", pages)
			r.Method(http.MethodGet, "/*", pages)
		})
	}

	return r
}
