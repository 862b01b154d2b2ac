// Command server runs the location digest API and the periodic aggregation
// scheduler.
//
// @title                      Location Digest API
// @version                    1.0
// @description                Ingests location events and serves the periodic stay digests built from them.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-location-digest/internal/config"
	httpapi "github.com/tbourn/go-location-digest/internal/http"
	"github.com/tbourn/go-location-digest/internal/notify"
	"github.com/tbourn/go-location-digest/internal/observability"
	"github.com/tbourn/go-location-digest/internal/repo"
	"github.com/tbourn/go-location-digest/internal/scheduler"
	"github.com/tbourn/go-location-digest/internal/services"
	"github.com/tbourn/go-location-digest/internal/sysutil"
)

var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.ConfigureLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(repo.Options{
		Driver:  cfg.DBDriver,
		Path:    cfg.DBPath,
		URL:     cfg.DatabaseURL,
		Tracing: cfg.OTEL.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	sender, closeSender := newNotifier(cfg.Notify)
	digestSvc := &services.DigestService{
		DB:          db,
		Notifier:    sender,
		Location:    cfg.Digest.Location(),
		Kind:        cfg.Digest.EventKind,
		BatchSize:   cfg.Digest.BatchSize,
		Lease:       cfg.Digest.LeaseTTL,
		RetryLimit:  cfg.Digest.RetryLimit,
		MaxAttempts: cfg.Notify.MaxAttempts,
	}

	var sched *scheduler.Scheduler
	if cfg.Digest.Enabled {
		sched = scheduler.New(digestSvc, cfg.Digest.Interval)
		go sched.Start(ctx)
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, digestSvc, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("db_driver", cfg.DBDriver).
			Str("notify_mode", cfg.Notify.Mode).
			Bool("scheduler", cfg.Digest.Enabled).
			Dur("interval", cfg.Digest.Interval).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if sched != nil {
		sched.Wait()
	}
	if err := closeSender(); err != nil {
		log.Error().Err(err).Msg("close notifier")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
}

// newNotifier builds the configured delivery channel and its cleanup.
func newNotifier(cfg config.NotifyConfig) (notify.Sender, func() error) {
	noop := func() error { return nil }
	switch cfg.Mode {
	case "webhook":
		return notify.NewWebhookSender(cfg.WebhookURL, cfg.WebhookToken, cfg.Timeout, cfg.MaxAttempts), noop
	case "kafka":
		k := notify.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
		return k, k.Close
	default:
		return notify.LogSender{}, noop
	}
}
