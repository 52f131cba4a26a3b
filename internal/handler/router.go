package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/cyclelog/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	HTTPRecorder      middleware.HTTPRecorder
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// サイクル
	CycleService CycleServiceInterface

	// 共有設定・アカウント
	ShareService ShareServiceInterface
	DataClearer  DataClearer
	UserService  UserServiceInterface

	// MetricsHandler は/metricsで公開するハンドラー。nilの場合はルートを登録しない。
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成する。
//
// ミドルウェアの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS
//	  └ /api/*: Session → RateLimit(General) → CSRF [→ RateLimit(Range)]
//
// /auth/*、/health、/metrics、/api/csrf-tokenはセッション不要。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.HTTPRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	cycleHandler := NewCycleHandler(deps.CycleService)
	userHandler := NewUserHandler(deps.ShareService, deps.DataClearer, deps.UserService, deps.AuthConfig)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Route("/api/cycles", func(r chi.Router) {
			r.Get("/", cycleHandler.ListCycles)
			r.Post("/", cycleHandler.OpenCycle)
			r.Get("/{id}", cycleHandler.GetCycle)
			r.Delete("/{id}", cycleHandler.DeleteCycle)
		})

		r.Route("/api/days", func(r chi.Router) {
			r.Put("/", cycleHandler.UpsertDay)
			r.With(deps.RateLimiter.RangeMiddleware()).Put("/range", cycleHandler.UpsertRange)
			r.Delete("/{id}", cycleHandler.DeleteReading)
		})

		r.Get("/api/analytics", cycleHandler.Analytics)
		r.Get("/api/export.csv", cycleHandler.Export)

		r.Route("/api/users", func(r chi.Router) {
			r.Get("/visible", userHandler.ListVisible)
			r.Delete("/me", userHandler.Withdraw)
			r.Put("/me/share", userHandler.SetShare)
			r.Delete("/me/share", userHandler.ClearShare)
			r.Delete("/me/data", userHandler.ClearData)
		})
	})

	return r
}
