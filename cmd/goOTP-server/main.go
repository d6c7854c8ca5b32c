// Command goOTP-server serves the email verification API over HTTP.
//
// Configuration comes from GOOTP_* environment variables. With no Redis
// address an in-process miniredis is started, with no database URL accounts
// live in memory, and with no SMTP host codes are written to the log.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/accounts"
	"github.com/MrEthical07/goOTP/delivery"
	"github.com/MrEthical07/goOTP/httpapi"
	"github.com/MrEthical07/goOTP/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type serverConfig struct {
	ListenAddr        string        `env:"LISTEN_ADDR" envDefault:":3001"`
	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	DatabaseURL       string        `env:"DATABASE_URL"`
	TrustForwardedFor bool          `env:"TRUST_FORWARDED_FOR"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel          slog.Level    `env:"LOG_LEVEL" envDefault:"info"`

	SMTP delivery.SMTPConfig
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "goOTP-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var sc serverConfig
	if err := env.ParseWithOptions(&sc, env.Options{Prefix: goOTP.EnvPrefix}); err != nil {
		return fmt.Errorf("parse server env: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: sc.LogLevel}))
	slog.SetDefault(logger)

	cfg, err := goOTP.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, closeRedis, err := openRedis(sc, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	store, closeStore, err := openAccounts(ctx, sc, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	deliverer, err := newDeliverer(sc, logger)
	if err != nil {
		return err
	}

	engine, err := goOTP.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithDeliverer(deliverer).
		WithAuditSink(goOTP.NewSlogSink(logger.With("component", "audit"))).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	var metrics http.Handler
	if cfg.Metrics.Enabled {
		metrics = prometheus.Handler(engine)
	}

	srv := &http.Server{
		Addr: sc.ListenAddr,
		Handler: httpapi.NewHandler(engine, httpapi.Config{
			Logger:            logger.With("component", "http"),
			Metrics:           metrics,
			TrustForwardedFor: sc.TrustForwardedFor,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", sc.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openRedis(sc serverConfig, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	addr := sc.RedisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Warn("no redis address configured, using in-process miniredis", "addr", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: sc.RedisPassword,
	})
	logger.Info("using redis", "addr", addr)
	return client, func() { _ = client.Close() }, nil
}

func openAccounts(ctx context.Context, sc serverConfig, logger *slog.Logger) (goOTP.AccountStore, func(), error) {
	if sc.DatabaseURL == "" {
		logger.Warn("no database configured, accounts are kept in memory")
		return accounts.NewMemoryStore(), func() {}, nil
	}

	if err := accounts.Migrate(ctx, sc.DatabaseURL, logger); err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.New(ctx, sc.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return accounts.NewPostgresStore(pool), pool.Close, nil
}

func newDeliverer(sc serverConfig, logger *slog.Logger) (goOTP.Deliverer, error) {
	if sc.SMTP.Host == "" {
		logger.Warn("no smtp host configured, codes are logged instead of sent")
		return delivery.NewLogDeliverer(logger.With("component", "delivery")), nil
	}
	d, err := delivery.NewSMTPDeliverer(sc.SMTP)
	if err != nil {
		return nil, fmt.Errorf("configure smtp: %w", err)
	}
	return d, nil
}
