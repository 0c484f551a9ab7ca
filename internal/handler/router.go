package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/barberadmin/internal/authevents"
	"github.com/hitoshi/barberadmin/internal/guard"
	"github.com/hitoshi/barberadmin/internal/metrics"
	"github.com/hitoshi/barberadmin/internal/middleware"
	"github.com/hitoshi/barberadmin/internal/viewcache"
)

// HealthChecker はストアの死活確認インターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	StorePublicKey    string
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 監視
	HealthChecker  HealthChecker
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	Events      authevents.Bus

	// 店舗
	Barbershops BarbershopActions
	ViewCache   viewcache.Cache

	// ページ
	LandingRoute string
	LoginRoute   string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Metrics → Recovery → SecurityHeaders → CORS
//	  /auth/v1, /api: APIKey → SessionToken → CSRF → RateLimit(General)
//	  /app:           RequirePage → RateLimit(General)
//
// /health と /metrics はapikeyを要求しない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.Events, deps.Metrics, deps.AuthConfig)
	shopHandler := NewBarbershopHandler(deps.Barbershops)
	pageHandler := NewPageHandler(deps.Barbershops, deps.ViewCache, deps.Metrics, deps.LandingRoute)

	// --- 監視 ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- セッションストア・レコードAPI ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAPIKeyMiddleware(deps.StorePublicKey))
		r.Use(middleware.NewSessionTokenMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/auth/v1", func(r chi.Router) {
			// POST /auth/v1/token - サインイン（IP単位のレート制限を追加）
			r.With(deps.RateLimiter.SignInMiddleware()).Post("/token", authHandler.SignIn)
			r.Post("/logout", authHandler.SignOut)
			r.Get("/session", authHandler.Session)
			r.Post("/refresh", authHandler.Refresh)
			r.Put("/user", authHandler.UpdateUser)
			r.With(middleware.NewSessionMiddleware(deps.SessionFinder)).Get("/events", authHandler.Events)
		})

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		r.Route("/api/barbershops", func(r chi.Router) {
			r.Get("/", shopHandler.ListBarbershops)
			r.Post("/", shopHandler.CreateBarbershop)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", shopHandler.GetBarbershop)
				r.Patch("/", shopHandler.UpdateBarbershop)
				r.Delete("/", shopHandler.DeleteBarbershop)
			})
		})
	})

	// --- ページ ---
	r.With(guard.RedirectIfAuthenticated(deps.SessionFinder, deps.LandingRoute)).Get(deps.LoginRoute, pageHandler.Login)

	r.Route("/app", func(r chi.Router) {
		r.Use(guard.RequirePage(deps.SessionFinder, deps.LoginRoute))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/barbershops", pageHandler.List)
		r.Get("/barbershops/new", pageHandler.New)
		r.Get("/barbershops/{id}", pageHandler.Detail)
	})

	return r
}

// healthHandler はストアへの疎通を確認する。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
