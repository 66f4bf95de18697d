package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrussa/meeshosync/internal/accountsync"
	"github.com/mrussa/meeshosync/internal/backoff"
	"github.com/mrussa/meeshosync/internal/browser"
	"github.com/mrussa/meeshosync/internal/config"
	"github.com/mrussa/meeshosync/internal/credcrypt"
	"github.com/mrussa/meeshosync/internal/db"
	"github.com/mrussa/meeshosync/internal/httpapi"
	"github.com/mrussa/meeshosync/internal/kafka"
	"github.com/mrussa/meeshosync/internal/logger"
	"github.com/mrussa/meeshosync/internal/metrics"
	"github.com/mrussa/meeshosync/internal/repo"
	"github.com/mrussa/meeshosync/internal/scheduler"
	"github.com/mrussa/meeshosync/internal/status"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[CFG] %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[LOG] %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("syncd exited", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("bye")
}

func run(cfg config.Config, log *zap.Logger) error {
	log.Info("config loaded",
		zap.String("version", version),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Bool("dsn_present", cfg.PostgresDSN != ""),
		zap.String("transport", cfg.Portal.Transport),
		zap.Duration("interval", cfg.Sync.Interval),
		zap.Int("concurrency", cfg.Sync.AccountConcurrency),
		zap.Int("max_browsers", cfg.Sync.MaxBrowsers),
		zap.Bool("kafka", len(cfg.Kafka.BrokerList()) > 0),
		zap.Bool("credential_decrypt", cfg.Creds.Key != ""),
	)

	creds, err := credcrypt.New(cfg.Creds.Key)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.PostgresDSN, cfg.Repo.MaxConns)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()
	if err := db.Ping(ctx, pool); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	log.Info("database connected")

	store := repo.NewSyncRepo(pool, cfg.Repo.BatchSize)
	m := metrics.New()
	reg := status.New()

	sessions := browser.NewProvider(browser.Config{
		BaseURL:     cfg.Portal.BaseURL,
		Headless:    cfg.Browser.Headless,
		NoSandbox:   cfg.Browser.NoSandbox,
		RemoteURL:   cfg.Browser.RemoteURL,
		StepTimeout: cfg.Browser.StepTimeout,
		Transport:   cfg.Portal.Transport,
	}, log.Named("browser"))

	syncer := accountsync.New(sessions, store, accountsync.Config{
		PageDelay:  cfg.Sync.PageDelay,
		PassDelay:  cfg.Sync.PassDelay,
		PayoutDays: cfg.Sync.PayoutDays,
		Retry:      backoff.New(cfg.Sync.MaxRetries, cfg.Sync.InitialDelay),
	}, m, log.Named("account"))

	sched := scheduler.New(store, syncer, reg, scheduler.Config{
		Interval:     cfg.Sync.Interval,
		StoreName:    cfg.Sync.StoreName,
		AccountDelay: cfg.Sync.AccountDelay,
		Concurrency:  cfg.Sync.AccountConcurrency,
		MaxBrowsers:  cfg.Sync.MaxBrowsers,
	}, m, log.Named("scheduler"))
	sched.Decode = creds.Decode

	api := httpapi.New(reg, sched, store, m.Handler(), log.Named("http"), version)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(gctx) })

	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		return nil
	})

	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		cons := kafka.NewConsumer(brokers, cfg.Kafka.Topic, cfg.Kafka.Group, sched, log.Named("kafka"))
		g.Go(func() error {
			err := cons.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				// Triggers stop; the interval schedule keeps running.
				log.Error("trigger consumer failed", zap.Error(err))
			}
			return nil
		})
	}

	return g.Wait()
}
