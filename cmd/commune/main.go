// Commune: community governance service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	communeapi "github.com/d9705996/commune/internal/api"
	"github.com/d9705996/commune/internal/api/handler"
	"github.com/d9705996/commune/internal/api/middleware"
	"github.com/d9705996/commune/internal/auth"
	"github.com/d9705996/commune/internal/config"
	"github.com/d9705996/commune/internal/db"
	"github.com/d9705996/commune/internal/governance"
	"github.com/d9705996/commune/internal/health"
	"github.com/d9705996/commune/internal/notify"
	"github.com/d9705996/commune/internal/observability"
	"github.com/d9705996/commune/internal/seed"
	"github.com/d9705996/commune/internal/version"
	"github.com/d9705996/commune/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability -------------------------------------------------------
	obs, log, err := observability.New(ctx, &observability.Config{
		ServiceName:    "commune",
		ServiceVersion: version.Version,
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
		OTLPEndpoint:   cfg.OTel.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(context.Background())
	slog.SetDefault(log)
	log.Info("starting commune", "build", version.String(), "db_driver", cfg.DB.Driver)

	// --- Database ------------------------------------------------------------
	// db.New opens the connection, runs migrations (AutoMigrate for SQLite,
	// golang-migrate for Postgres), and returns the GORM handle plus an
	// optional pgxpool (non-nil only for postgres, used by River).
	gormDB, pool, err := db.New(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}
	log.Info("database ready", "driver", cfg.DB.Driver)

	// --- Seed admin ----------------------------------------------------------
	if _, err := seed.EnsureAdmin(ctx, gormDB, seed.AdminOptions{
		Email:    cfg.App.SeedAdminEmail,
		Password: cfg.App.SeedAdminPassword,
		Out:      os.Stdout,
	}, log); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// --- Notification channels -----------------------------------------------
	channels, kafkaWriter := notificationChannels(cfg, gormDB, log)
	if kafkaWriter != nil {
		defer func() {
			if err := kafkaWriter.Close(); err != nil {
				log.Error("kafka writer close", "err", err)
			}
		}()
	}

	// --- Worker queue --------------------------------------------------------
	// River migrations only run when Postgres is available.
	if pool != nil {
		if err := worker.MigrateRiver(ctx, pool); err != nil {
			return fmt.Errorf("river migrations: %w", err)
		}
		log.Info("river migrations applied")
	}

	wq, err := worker.New(ctx, pool, cfg.DB.Driver, worker.Options{
		Concurrency:   cfg.Worker.Concurrency,
		SweepInterval: cfg.Governance.SweepInterval,
		Deliver:       channels,
	}, log)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	// --- Governance core -----------------------------------------------------
	svc := governance.New(governance.Options{
		DB:          gormDB,
		Notifier:    wq.Notifier(),
		Passwords:   auth.BcryptVerifier{},
		Logger:      log.With("component", "governance"),
		TransferTTL: cfg.Governance.TransferTTL,
		Timeout:     cfg.DB.StatementTimeout,
	})
	wq.Bind(svc)

	if err := wq.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := wq.Stop(stopCtx); err != nil {
			log.Error("worker stop error", "err", err)
		}
	}()

	// --- HTTP routes ---------------------------------------------------------
	checks := map[string]health.Pinger{"database": db.NewPinger(gormDB)}
	if len(cfg.Kafka.Brokers) > 0 {
		checks["kafka"] = notify.BrokerPinger{Brokers: cfg.Kafka.Brokers}
	}
	healthHandler := health.New(checks)
	authHandler := handler.NewAuthHandler(gormDB, cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	govHandler := handler.NewGovernanceHandler(svc, log)

	mux := http.NewServeMux()
	communeapi.RegisterRoutes(mux, healthHandler, authHandler, govHandler, cfg.JWT.Secret)
	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      middleware.RequestLog(log)(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Start server --------------------------------------------------------
	log.Info("http server listening", "addr", srv.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped cleanly")
	return nil
}

// notificationChannels always logs; e-mail and Kafka join when configured.
// The returned writer, if any, must be closed on shutdown.
func notificationChannels(cfg *config.Config, gormDB *gorm.DB, log *slog.Logger) (notify.Notifier, *notify.Kafka) {
	channels := notify.Multi{notify.Log{Logger: log}}
	if cfg.SMTP.Host != "" {
		channels = append(channels, notify.NewEmail(gormDB, cfg.SMTP))
		log.Info("email notifications enabled", "smtp_host", cfg.SMTP.Host)
	}
	var k *notify.Kafka
	if len(cfg.Kafka.Brokers) > 0 {
		k = notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		channels = append(channels, k)
		log.Info("kafka notifications enabled", "topic", cfg.Kafka.Topic)
	}
	return channels, k
}
