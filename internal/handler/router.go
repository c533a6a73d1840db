package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sawaday/shohyo/internal/middleware"
	"github.com/sawaday/shohyo/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証・プロフィール
	AuthAPI     AuthAPI
	ProfileAPI  ProfileAPI
	Sessions    SessionController
	IconMaxSize int64

	// 書評
	ReviewAPI ReviewAPI
	Cache     PageCache

	// セキュリティ
	Sanitizer security.TextSanitizerService
	URLGuard  security.URLGuardService

	// アイコンプロキシ
	IconProxyTimeout time.Duration
	IconProxyMaxSize int64

	// 監視
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	authHandler := NewAuthHandler(deps.AuthAPI, deps.Sessions)
	profileHandler := NewProfileHandler(deps.ProfileAPI, deps.Sessions, deps.IconMaxSize)
	reviewHandler := NewReviewHandler(deps.ReviewAPI, deps.Cache, deps.Sessions, deps.Sanitizer, deps.URLGuard)
	iconHandler := NewIconProxyHandler(deps.URLGuard, deps.Logger, deps.IconProxyTimeout, deps.IconProxyMaxSize)

	// --- 監視用ルート（レート制限の外） ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- APIルート ---

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		// 認証
		r.Route("/api/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/signup", authHandler.SignUp)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// プロフィール
		r.Route("/api/profile", func(r chi.Router) {
			r.Put("/", profileHandler.Update)
			r.Post("/icon", profileHandler.UploadIcon)
		})

		// 書評
		r.Route("/api/reviews", func(r chi.Router) {
			r.Get("/", reviewHandler.List)
			r.Post("/", reviewHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", reviewHandler.Get)
				r.Put("/", reviewHandler.Update)
				r.Delete("/", reviewHandler.Delete)
				r.Post("/select", reviewHandler.SelectLog)
			})
		})

		// アイコンプロキシ
		r.Get("/api/icons", iconHandler.Proxy)
	})

	return r
}
