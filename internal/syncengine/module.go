package syncengine

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/im-sync-engine/internal/lifecycle"
)

// Module wires the Coordinator and ties its lifecycle to the fx app's,
// following the teacher's cmd/fx.go ProvideLogger/fx.Lifecycle idiom:
// Initialize/Start on OnStart, Shutdown on OnStop. The Adapter, the
// outbox.Store, and the network.Observer are supplied by whichever
// adapter/outbox/network modules the binary also installs.
var Module = fx.Module("syncengine",
	fx.Provide(
		DefaultConfig,
		func() Hooks { return Hooks{} },
		func() lifecycle.Lifecycle { return lifecycle.Noop{} },
		defaultLogger,
		New,
	),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, c *Coordinator) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := c.Initialize(ctx); err != nil {
				return err
			}
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return c.Shutdown(ctx)
		},
	})
}

// defaultLogger is provided for binaries that don't override it.
func defaultLogger() *slog.Logger { return slog.Default() }
