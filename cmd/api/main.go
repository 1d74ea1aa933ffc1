package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/mybookkeepers/portal/internal/app/migrate"
	"github.com/mybookkeepers/portal/internal/blob"
	httpx "github.com/mybookkeepers/portal/internal/http"
	"github.com/mybookkeepers/portal/internal/notify"
	"github.com/mybookkeepers/portal/internal/repository"
	"github.com/mybookkeepers/portal/internal/repository/memory"
	"github.com/mybookkeepers/portal/internal/repository/postgres"
	"github.com/mybookkeepers/portal/internal/service/account"
	"github.com/mybookkeepers/portal/internal/service/auth"
	"github.com/mybookkeepers/portal/internal/service/bundle"
	"github.com/mybookkeepers/portal/internal/service/lifecycle"
	"github.com/mybookkeepers/portal/internal/service/statement"
	"github.com/mybookkeepers/portal/pkg/config"
	"github.com/mybookkeepers/portal/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadPortalConfig()
	log := logger.New("api", logger.ParseLevel(config.GetString("LOG_LEVEL", "info")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		users      repository.UserRepository
		packages   repository.PackageRepository
		statements repository.StatementRepository
		dbHealth   func(context.Context) error
	)
	if cfg.UseMemoryStore {
		store := memory.New()
		users, packages, statements = store, store, store
		log.Warn("using in-memory store, data will not survive restarts")
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}

		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			log.Error("failed to configure migrations", "error", err)
			os.Exit(1)
		}
		defer runner.Close()
		if err := runner.Ping(ctx); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		if err := runner.Ensure(ctx); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}

		repo := postgres.New(pool)
		users, packages, statements = repo, repo, repo
		dbHealth = pool.Ping
	}

	var blobs blob.Store
	if cfg.S3AccessKey != "" {
		s3Store, err := blob.NewS3Store(ctx, blob.S3Options{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
		})
		if err != nil {
			log.Error("failed to configure object storage", "error", err)
			os.Exit(1)
		}
		blobs = s3Store
	} else {
		blobs = blob.NewMemoryStore()
		log.Warn("using in-memory file storage, uploads will not survive restarts")
	}

	var notifier notify.Notifier
	if cfg.ResendAPIKey != "" {
		notifier = notify.NewResendNotifier(cfg.ResendAPIKey, cfg.EmailFrom, cfg.NotificationEmail)
	} else {
		notifier = notify.NewLogNotifier(log)
		log.Warn("no email API key configured, notices will be logged only")
	}
	dispatcher := notify.NewDispatcher(notifier, log)

	authSvc := auth.New(users, log, cfg.SessionSecret)
	accountSvc := account.New(users, statements, log)
	lifecycleSvc := lifecycle.New(users, packages, statements, log)
	statementSvc := statement.New(packages, statements, blobs, log)
	bundleSvc := bundle.New(users, packages, statements, blobs, cfg.BundleFetchTimeout, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, accountSvc, lifecycleSvc, statementSvc, bundleSvc, dispatcher, limiter, dbHealth)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
