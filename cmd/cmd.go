package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"

	"github.com/webitel/im-sync-engine/config"
	"github.com/webitel/im-sync-engine/internal/syncengine"
)

const (
	ServiceName      = "im-sync-engine"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

// Run wires the urfave/cli surface, following the teacher's
// cmd.Run()/serverCmd() shape.
func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "offline-first bidirectional sync engine",
		Commands: []*cli.Command{
			serverCmd(),
		},
	}
	return app.Run(os.Args)
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	fs := pflag.NewFlagSet(c.Command.Name, pflag.ContinueOnError)
	config.BindFlags(fs)
	_ = fs.Parse(os.Args[1:])
	return config.Load(c.String("config_file"), fs)
}

// serverCmd starts the coordinator and drops into an interactive
// console exposing the remaining operations (enqueue, status,
// retry-failed, purge-synced, force-sync, quit) against the single
// running instance; with --dashboard it opens the live status view
// instead. The engine lives in this one process, so there are no
// separate one-shot CLI invocations.
func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "run the sync engine and an interactive console",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config_file", Usage: "path to a config file (yaml/json/toml)"},
			&cli.BoolFlag{Name: "dashboard", Usage: "open the live status dashboard instead of the console"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			shutdownTelemetry := setupTelemetry()
			defer shutdownTelemetry(context.Background())

			var coordinator *syncengine.Coordinator
			app := NewApp(cfg, &coordinator)

			if err := app.Start(c.Context); err != nil {
				return err
			}
			logger := ProvideLogger(cfg)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			done := make(chan struct{})
			go func() {
				defer close(done)
				if c.Bool("dashboard") {
					runDashboard(coordinator, stop)
					return
				}
				runConsole(coordinator, logger, stop)
			}()

			select {
			case <-stop:
			case <-done:
			}

			logger.Info("shutting down")
			return app.Stop(context.Background())
		},
	}
}

// runConsole reads line commands from stdin until EOF or stop fires.
func runConsole(co *syncengine.Coordinator, logger *slog.Logger, stop <-chan os.Signal) {
	fmt.Println("im-sync-engine console. commands: enqueue <id> <kind>, status, retry-failed, purge-synced, force-sync, quit")
	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-stop:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !dispatchConsoleLine(co, logger, line) {
				return
			}
		}
	}
}

func dispatchConsoleLine(co *syncengine.Coordinator, logger *slog.Logger, line string) bool {
	ctx := context.Background()
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	switch fields[0] {
	case "quit", "exit":
		return false

	case "enqueue":
		if len(fields) < 3 {
			fmt.Println("usage: enqueue <id> <kind>")
			return true
		}
		if err := co.Enqueue(ctx, fields[1], fields[2], map[string]any{}); err != nil {
			logger.Error("enqueue failed", "error", err)
		}

	case "status":
		st, err := co.Status(ctx)
		if err != nil {
			logger.Error("status failed", "error", err)
			return true
		}
		fmt.Printf("active=%v online=%v syncing=%v pending=%d failed=%d\n",
			st.Active, st.Online, st.Syncing, st.Pending, st.Failed)

	case "retry-failed":
		if err := co.RetryFailed(ctx); err != nil {
			logger.Error("retry-failed failed", "error", err)
		}

	case "purge-synced":
		n, err := co.PurgeSynced(ctx)
		if err != nil {
			logger.Error("purge-synced failed", "error", err)
			return true
		}
		fmt.Printf("purged %d\n", n)

	case "force-sync":
		res, err := co.ForceSync(ctx)
		if err != nil {
			logger.Error("force-sync failed", "error", err)
			return true
		}
		fmt.Printf("synced=%d errors=%d\n", res.Synced, res.Errors)

	default:
		fmt.Printf("unknown command %q\n", fields[0])
	}
	return true
}
