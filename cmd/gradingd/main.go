package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	api "github.com/mind-engage/mariner-lms/internal/api/http"
	auth "github.com/mind-engage/mariner-lms/internal/auth/middleware"
	"github.com/mind-engage/mariner-lms/internal/config"
	"github.com/mind-engage/mariner-lms/internal/content"
	"github.com/mind-engage/mariner-lms/internal/content/contenthttp"
	"github.com/mind-engage/mariner-lms/internal/db"
	"github.com/mind-engage/mariner-lms/internal/lock"
	"github.com/mind-engage/mariner-lms/internal/logger"
	"github.com/mind-engage/mariner-lms/internal/observability"
	"github.com/mind-engage/mariner-lms/internal/progress"
	"github.com/mind-engage/mariner-lms/internal/submission"
	syncx "github.com/mind-engage/mariner-lms/internal/sync"
)

const devSecret = "supersecret-dev-key"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		stdlog.Printf("load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("config: %v", err)
	}
	log, err := logger.New(cfg.LogMode, cfg.LogSalt)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, log, observability.OTelConfig{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  cfg.ServiceName,
		Environment:  string(cfg.Mode),
		Exporter:     cfg.OTelExporter,
		SamplerRatio: cfg.OTelSamplerRatio,
	})
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	ready := map[string]api.ReadyCheck{}

	// --- Content store ---
	var gw content.Gateway
	switch cfg.Content.Driver {
	case "memory":
		log.Warn("using in-memory content store; nothing is persisted")
		gw = content.NewMemory()
	default:
		c, err := contenthttp.New(contenthttp.Config{
			BaseURL:        cfg.Content.BaseURL,
			APIKey:         cfg.Content.APIKey,
			AuthCollection: cfg.Content.AuthCollection,
			TokenURL:       cfg.Content.TokenURL,
			ClientID:       cfg.Content.ClientID,
			ClientSecret:   cfg.Content.ClientSecret,
			Timeout:        cfg.Content.Timeout,
			MaxRetries:     cfg.Content.MaxRetries,
		})
		if err != nil {
			log.Fatal("content client init failed", "error", err)
		}
		gw = c
		ready["content"] = c.Ping
	}

	opts := []submission.Option{submission.WithWriteConcurrency(cfg.AnswerWriteConcurrency)}

	// --- Event log ---
	if db.Driver(cfg.DBDriver) != db.DriverNone {
		octx, cancel := context.WithTimeout(ctx, 10*time.Second)
		dbh, err := db.Open(octx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		cancel()
		if err != nil {
			log.Fatal("db open failed", "driver", cfg.DBDriver, "error", err)
		}
		defer dbh.Close()
		opts = append(opts, submission.WithEventLog(syncx.NewEventRepo(dbh, cfg.SiteID)))
		ready["db"] = dbh.PingContext
	}

	// --- Submit lock ---
	if cfg.RedisAddr != "" {
		rl, err := lock.NewRedis(ctx, cfg.RedisAddr, cfg.SubmitLockTTL)
		if err != nil {
			log.Fatal("redis lock init failed", "addr", cfg.RedisAddr, "error", err)
		}
		defer rl.Close()
		opts = append(opts, submission.WithLocker(rl))
		ready["redis"] = rl.Ping
	} else {
		opts = append(opts, submission.WithLocker(lock.NewMemory(cfg.SubmitLockTTL)))
	}

	// --- Auth ---
	secret := cfg.AuthHMACSecret
	if secret == "" {
		log.Warn("AUTH_HMAC_SECRET not set; using the development secret")
		secret = devSecret
	}

	router := api.NewRouter(api.Deps{
		Auth:        auth.NewAuthService(secret, ""),
		Submissions: submission.NewService(gw, log, opts...),
		Lessons:     progress.NewLessonService(gw, log),
		Log:         log,
		CORSOrigins: cfg.CORSOrigins,
		Ready:       ready,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "content", cfg.Content.Driver, "db", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error("http shutdown", "error", err)
	}
}
