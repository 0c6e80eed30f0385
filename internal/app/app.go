// Package app はコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/rhythmflow/internal/auth"
	"github.com/hitoshi/rhythmflow/internal/chat"
	"github.com/hitoshi/rhythmflow/internal/config"
	"github.com/hitoshi/rhythmflow/internal/database"
	"github.com/hitoshi/rhythmflow/internal/habit"
	"github.com/hitoshi/rhythmflow/internal/handler"
	"github.com/hitoshi/rhythmflow/internal/leaderboard"
	"github.com/hitoshi/rhythmflow/internal/logger"
	"github.com/hitoshi/rhythmflow/internal/metrics"
	"github.com/hitoshi/rhythmflow/internal/middleware"
	"github.com/hitoshi/rhythmflow/internal/profile"
	"github.com/hitoshi/rhythmflow/internal/realtime"
	"github.com/hitoshi/rhythmflow/internal/repository"
	"github.com/hitoshi/rhythmflow/internal/security"
	"github.com/hitoshi/rhythmflow/internal/storage"
	"github.com/hitoshi/rhythmflow/internal/user"
	"github.com/hitoshi/rhythmflow/internal/worker/cleanup"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
// 戻り値のio.Closerはログファイルを閉じる。
func Init(w io.Writer) (*config.Config, io.Closer, error) {
	// 設定読み込み中のログを出せるよう、既定レベルで先に初期化する
	logger.SetupDefault(w, logger.Options{Level: slog.LevelInfo})

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	closer := logger.SetupDefault(w, logger.Options{
		Level: logger.ParseLevel(cfg.LogLevel),
		File:  cfg.LogFile,
	})
	return cfg, closer, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, closer, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer closer.Close()

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("timezone", cfg.Location.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		direction, err := MigrateDirection(args)
		if err != nil {
			return err
		}
		return runMigrate(cfg, direction)
	default:
		return runServe(ctx, cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// apiServer はserveコマンドで組み立てる依存関係一式。
type apiServer struct {
	handler     http.Handler
	hub         *realtime.Hub
	rateLimiter *middleware.RateLimiter
	unsubscribe func()
}

// newAPIServer はリポジトリ、サービス、ルーターをワイヤリングする。
// dbへの接続は行わない。
func newAPIServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) *apiServer {
	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	habitRepo := repository.NewPostgresHabitRepo(db)
	completionRepo := repository.NewPostgresCompletionRepo(db)
	chatRepo := repository.NewPostgresChatRepo(db)

	// 2. メトリクスとリアルタイム配信
	collector := metrics.NewCollector(reg)
	hub := realtime.NewHub(realtime.DefaultClientBuffer, collector)

	// 3. 認証
	var oauthProvider auth.OAuthProvider
	if cfg.GoogleEnabled() {
		oauthProvider = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	} else {
		slog.Info("google login disabled")
	}
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	unsubscribe := authService.Subscribe(func(ev auth.SessionEvent) {
		if ev.Type == auth.EventLogout {
			hub.DisconnectUser(ev.UserID)
		}
	})

	// 4. ドメインサービス
	habitService := habit.NewService(habitRepo, completionRepo, userRepo, hub, collector, habit.ServiceConfig{
		Location: cfg.Location,
	})
	chatService := chat.NewService(chatRepo, userRepo, security.NewTextSanitizer(), hub, collector, cfg.ChatHistoryLimit)

	var uploader profile.Uploader
	if cfg.StorageEnabled() {
		uploader = storage.NewClient(cfg.StorageBaseURL, cfg.StorageBucket, cfg.StorageServiceKey,
			&http.Client{Timeout: 30 * time.Second})
	} else {
		slog.Info("object storage disabled; photo uploads will be rejected")
	}
	profileService := profile.NewService(userRepo, completionRepo, uploader, profile.Config{
		Location:      cfg.Location,
		MaxPhotoBytes: cfg.PhotoMaxBytes,
	})
	leaderboardService := leaderboard.NewService(userRepo, habitService, cfg.LeaderboardConcurrency)
	userService := user.NewService(userRepo, sessionRepo, completionRepo, habitRepo, hub)

	// 5. ルーター
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitChat),
	)

	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:      slog.Default(),
		HTTPMetrics: collector,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		HabitService:       habitService,
		LeaderboardService: leaderboardService,
		ProfileService:     profileService,
		UserService:        userService,
		ChatService:        chatService,
		Stream:             realtime.NewBridge(hub, cfg.CORSAllowedOrigin),
	}

	return &apiServer{
		handler:     handler.NewRouter(deps),
		hub:         hub,
		rateLimiter: rateLimiter,
		unsubscribe: unsubscribe,
	}
}

// Close はバックグラウンド処理を停止し、リアルタイム接続を切断する。複数回呼んでもよい。
func (s *apiServer) Close() {
	s.unsubscribe()
	s.rateLimiter.Stop()
	s.hub.DisconnectAll()
}

// newRegistry はGo/プロセスメトリクスを含むPrometheusレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	api := newAPIServer(cfg, db, newRegistry())
	defer api.Close()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// WebSocketはShutdownの対象外のため、停止時に明示的に閉じる
	server.RegisterOnShutdown(api.Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// クリーンアップジョブをCleanupIntervalごとに実行し、ctxがキャンセルされると戻る。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(db, slog.Default())
	job.RetentionDays = cfg.HistoryRetentionDays

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("retention_days", cfg.HistoryRetentionDays),
	)

	job.Loop(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// directionが"down"の場合は直近のマイグレーションを1段階戻す。
func runMigrate(cfg *config.Config, direction string) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.String("direction", direction),
	)

	if direction == MigrateDown {
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migration rolled back")
		return nil
	}

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
