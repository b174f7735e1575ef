package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hamed0406/tlsprober/internal/config"
	"github.com/hamed0406/tlsprober/internal/httpapi"
	apimw "github.com/hamed0406/tlsprober/internal/httpapi/middleware"
	"github.com/hamed0406/tlsprober/internal/logging"
	"github.com/hamed0406/tlsprober/internal/metrics"
	"github.com/hamed0406/tlsprober/internal/notify"
	"github.com/hamed0406/tlsprober/internal/probe"
	"github.com/hamed0406/tlsprober/internal/repo"
	"github.com/hamed0406/tlsprober/internal/repo/memory"
	"github.com/hamed0406/tlsprober/internal/repo/postgres"
	"github.com/hamed0406/tlsprober/internal/scheduler"
)

type store interface {
	repo.TargetStore
	repo.ResultStore
	repo.AlertStore
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tlsprober:", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("api", pflag.ExitOnError)
	cfgFile := fs.String("config", os.Getenv("CONFIG_FILE"), "YAML config file")
	addr := fs.String("addr", "", "listen address (overrides ADDR)")
	logLevel := fs.String("log-level", "", "log level (overrides LOG_LEVEL)")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.LoadFile(*cfgFile)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	prober := probe.NewProber(cfg.ProbeTimeout, logging.ProbeLogger{L: logger})
	m := metrics.New()
	var checker probe.Checker = &probe.RetryChecker{
		Inner:    &probe.DiagnoseChecker{Inner: prober},
		Attempts: cfg.RetryAttempts,
		Backoff:  cfg.RetryBackoff,
	}
	checker = m.Instrument(checker)

	if cfg.SelfURL != "" {
		go selfCheck(ctx, logger, prober, cfg.SelfURL)
	}

	// Only stored targets get per-host gauges; ad-hoc API checks stay
	// unlabeled.
	rc := scheduler.NewRechecker(logger, st, st, m.TrackHosts(checker),
		cfg.CheckInterval, cfg.ProbeTimeout*time.Duration(cfg.RetryAttempts+1), cfg.MaxConcurrentChecks)
	go rc.Run(ctx)

	al := scheduler.NewAlerter(logger, st, st,
		notify.Multi{notify.Log{L: logger}, slackOrNil(cfg.SlackWebhookURL)},
		scheduler.AlerterConfig{
			AlertOnRecovery: cfg.AlertOnRecovery,
			Cooldown:        cfg.AlertCooldown,
			PollInterval:    time.Minute,
		})
	go func() { _ = al.Run(ctx) }()

	api := httpapi.NewServer(logger, st, st, checker)
	api.Metrics = m.Handler()
	if api.TrustedProxies, err = cfg.TrustedProxyPrefixes(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("api_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore uses Postgres when DATABASE_URL is set, memory otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("store_memory")
		return memory.New(), func() {}, nil
	}
	pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("postgres migrate: %w", err)
	}
	logger.Info("store_postgres")
	return pg, pg.Close, nil
}

func slackOrNil(webhook string) notify.Notifier {
	if s := notify.NewSlack(webhook); s != nil {
		return s
	}
	return nil
}

// selfCheck calls our own public URL once, verifying TLS only when our own
// certificate currently checks out.
func selfCheck(ctx context.Context, logger *zap.Logger, prober *probe.Prober, selfURL string) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second): // let the listener come up
	}
	policy := &probe.VerifyPolicy{Prober: prober, SelfURL: selfURL, Logger: logging.ProbeLogger{L: logger}}
	healthURL := strings.TrimSuffix(selfURL, "/") + "/healthz"
	client := policy.Client(ctx, healthURL, prober.Timeout)
	out := probe.NewHTTPChecker(client).Check(ctx, healthURL)
	logger.Info("self_check",
		zap.String("url", healthURL),
		zap.Bool("up", out.Up),
		zap.Int("status", out.StatusCode),
		zap.String("reason", out.Reason),
	)
}
