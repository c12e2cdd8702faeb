package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"

	"go.uber.org/fx"

	"github.com/webitel/im-sync-engine/config"
	"github.com/webitel/im-sync-engine/internal/adapter/amqp"
	"github.com/webitel/im-sync-engine/internal/adapter/grpcadapter"
	"github.com/webitel/im-sync-engine/internal/adapter/httpapi"
	wsadapter "github.com/webitel/im-sync-engine/internal/adapter/ws"
	"github.com/webitel/im-sync-engine/internal/lifecycle"
	"github.com/webitel/im-sync-engine/internal/network"
	"github.com/webitel/im-sync-engine/internal/outbox"
	"github.com/webitel/im-sync-engine/internal/syncengine"
)

// NewApp assembles the sync engine's fx graph: the outbox, the
// network observer, the coordinator, and whichever Adapter cfg.Transport
// selects. Mirrors cmd/fx.go's NewApp(cfg) shape from the teacher.
func NewApp(cfg *config.Config, coordinator **syncengine.Coordinator) *fx.App {
	return fx.New(
		fx.Provide(
			func(logger *slog.Logger) (syncengine.Adapter, error) { return buildAdapter(cfg, logger) },
		),
		outbox.Module,
		network.Module,
		syncengine.Module,
		// syncengine.Module already provides a default logger, Config,
		// Hooks and Lifecycle, and fx rejects a second provider of the
		// same type, so the CLI replaces those defaults via fx.Decorate.
		// SIGUSR1 stands in for "the application came to the foreground".
		fx.Decorate(
			func(*slog.Logger) *slog.Logger { return ProvideLogger(cfg) },
			func(syncengine.Config) syncengine.Config { return engineConfig(cfg) },
			func(lifecycle.Lifecycle) lifecycle.Lifecycle { return lifecycle.NewSignalLifecycle(syscall.SIGUSR1) },
		),
		fx.Populate(coordinator),
	)
}

// ProvideLogger mirrors the teacher's ProvideLogger: a single
// process-wide structured logger, level gated by cfg.Debug.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func engineConfig(cfg *config.Config) syncengine.Config {
	c := syncengine.DefaultConfig()
	c.ServerURL = cfg.ServerURL
	c.BatchSize = cfg.BatchSize
	c.SyncInterval = cfg.SyncInterval
	c.MaxAttempts = cfg.MaxAttempts
	c.InitialRetryDelay = cfg.InitialRetryDelay
	c.BackoffMultiplier = cfg.BackoffMultiplier
	c.MaxRetryDelay = cfg.MaxRetryDelay
	c.RequestTimeout = cfg.RequestTimeout
	c.MaxConcurrent = cfg.MaxConcurrent
	c.ConflictStrategy = cfg.Strategy()
	c.Debug = cfg.Debug
	return c
}

func buildAdapter(cfg *config.Config, logger *slog.Logger) (syncengine.Adapter, error) {
	switch cfg.Transport {
	case "amqp":
		return amqp.New(cfg.ServerURL, cfg.AMQPExchange, logger)
	case "ws":
		return wsadapter.Dial(context.Background(), cfg.ServerURL, logger)
	case "grpc":
		base := httpapi.New(cfg.ServerURL, &http.Client{}, logger)
		target := cfg.GRPCHealthTarget
		if target == "" {
			return nil, fmt.Errorf("config: grpc-health-target is required when transport=grpc")
		}
		return grpcadapter.Dial(target, base)
	default:
		return httpapi.New(cfg.ServerURL, &http.Client{}, logger), nil
	}
}
