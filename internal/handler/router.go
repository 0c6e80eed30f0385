package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rhythmflow/internal/middleware"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	HTTPMetrics       middleware.HTTPMetricsRecorder // nilの場合はHTTPメトリクスを記録しない

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメイン
	HabitService       HabitServiceInterface
	LeaderboardService LeaderboardServiceInterface
	ProfileService     ProfileServiceInterface
	UserService        UserServiceInterface
	ChatService        ChatServiceInterface
	Stream             StreamServer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Metrics → Recovery → SecurityHeaders → CORS
//	  └ /api/*: Session → CSRF → RateLimit(General) [→ RateLimit(Chat)]
//
// 認証ルート（/auth/*）とヘルスチェックはセッション不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	habitHandler := NewHabitHandler(deps.HabitService)
	leaderboardHandler := NewLeaderboardHandler(deps.LeaderboardService)
	userHandler := NewUserHandler(deps.UserService, deps.ProfileService)
	chatHandler := NewChatHandler(deps.ChatService)
	wsHandler := NewWSHandler(deps.Stream)
	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Get("/me", authHandler.Me)

		r.Group(func(r chi.Router) {
			r.Use(csrf)
			r.Post("/signup", authHandler.SignUp)
			r.Post("/signin", authHandler.SignIn)
			r.Post("/logout", authHandler.Logout)
		})
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(csrf)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/habits", func(r chi.Router) {
			r.Get("/today", habitHandler.Today)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", habitHandler.Detail)
				r.Patch("/", habitHandler.UpdateTime)
				r.Post("/complete", habitHandler.Complete)
				r.Post("/uncomplete", habitHandler.Uncomplete)
			})
		})

		r.Get("/api/leaderboard", leaderboardHandler.List)

		r.Route("/api/users", func(r chi.Router) {
			r.Get("/me", userHandler.GetProfile)
			r.Get("/me/monthly", userHandler.Monthly)
			r.Patch("/me", userHandler.UpdateMe)
			r.Delete("/me", userHandler.Withdraw)
			r.Post("/me/photo", userHandler.UploadPhoto)
			r.Get("/{id}", userHandler.GetProfile)
			r.Get("/{id}/monthly", userHandler.Monthly)
		})

		r.Route("/api/chat/messages", func(r chi.Router) {
			r.Get("/", chatHandler.List)
			r.With(deps.RateLimiter.ChatPostMiddleware()).Post("/", chatHandler.Post)
		})

		r.Get("/api/ws", wsHandler.Serve)
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
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
