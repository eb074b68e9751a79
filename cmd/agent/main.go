package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/prudhvinik1/fieldsync/internal/client/policy"
	"github.com/prudhvinik1/fieldsync/internal/client/queue"
	"github.com/prudhvinik1/fieldsync/internal/client/reconciler"
	"github.com/prudhvinik1/fieldsync/internal/client/store"
	"github.com/prudhvinik1/fieldsync/internal/client/transport"
	"github.com/prudhvinik1/fieldsync/internal/config"
)

func main() {
	configPath := flag.String("config", "agent.yaml", "path to the agent config file")
	once := flag.Bool("once", false, "run a single sync round and exit")
	flag.Parse()

	cfg, err := config.LoadAgentConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal("failed to open local store", zap.Error(err))
	}
	defer st.Close()

	q := queue.New(st.DB(), cfg.MaxAttempts, logger)
	client := transport.New(cfg.ServerURL, cfg.Token, cfg.RequestTimeout)

	rec := reconciler.New(st, q, client, policy.Default(), reconciler.Config{
		BatchSize:   cfg.BatchSize,
		Interval:    cfg.SyncInterval,
		BackoffBase: cfg.BackoffBase,
		BackoffCap:  cfg.BackoffCap,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		if _, err := q.RecoverInFlight(ctx); err != nil {
			logger.Fatal("failed to recover queue", zap.Error(err))
		}
		result, err := rec.SyncOnce(ctx)
		if err != nil {
			logger.Fatal("sync failed", zap.Error(err))
		}
		logger.Info("sync finished",
			zap.Int("drained", result.Drained),
			zap.Int("accepted", result.Accepted),
			zap.Int("conflicts", result.Conflicts),
			zap.Int("rejected", result.Rejected),
			zap.Int("retried", result.Retried),
		)
		return
	}

	logger.Info("agent started",
		zap.String("server_url", cfg.ServerURL),
		zap.String("database_path", cfg.DatabasePath),
		zap.Duration("sync_interval", cfg.SyncInterval),
	)

	if err := rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("agent stopped", zap.Error(err))
	}

	logger.Info("agent stopped gracefully")
}
