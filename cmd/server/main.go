// Command server runs the PnL analytics HTTP API and, when enabled, the
// Kafka ingestion consumer.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trogers1052/portfolio-analytics/internal/api"
	"github.com/trogers1052/portfolio-analytics/internal/cache"
	"github.com/trogers1052/portfolio-analytics/internal/config"
	"github.com/trogers1052/portfolio-analytics/internal/database"
	"github.com/trogers1052/portfolio-analytics/internal/kafka"
	"github.com/trogers1052/portfolio-analytics/internal/logger"
	"github.com/trogers1052/portfolio-analytics/internal/observability"
	"github.com/trogers1052/portfolio-analytics/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.Init("portfolio-analytics", logger.ParseLevel(cfg.Log.Level))

	if err := run(cfg, log); err != nil {
		log.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	db, err := database.NewWithPool(cfg.Database.ConnectionString(), cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.MigrationsPath); err != nil {
		return err
	}
	log.Info("database ready", slog.String("host", cfg.Database.Host), slog.String("db", cfg.Database.DBName))

	var resultCache cache.Cache = cache.Nop{}
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			// results are recomputed without a cache
			log.Warn("redis unavailable, caching disabled", slog.Any("error", err))
		} else {
			defer rc.Close()
			resultCache = rc
			log.Info("result cache enabled", slog.String("addr", cfg.Redis.Addr), slog.Duration("ttl", cfg.Redis.TTL))
		}
	}

	var publisher service.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publisher = producer
	}

	svc := service.New(db, resultCache, publisher, log, metrics)

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TradesTopic, cfg.Kafka.GroupID, svc, log, metrics)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("kafka consumer stopped", slog.Any("error", err))
			}
		}()
	}

	handler := api.NewHandler(svc, log)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.SetupRoutes(handler, log, metrics, cfg.Auth.APIKey),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
