package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/velos-sh/velos/internal/cluster"
	"github.com/velos-sh/velos/internal/config"
	"github.com/velos-sh/velos/internal/env"
	"github.com/velos-sh/velos/internal/history/factory"
	"github.com/velos-sh/velos/internal/ipc"
	"github.com/velos-sh/velos/internal/logsink"
	"github.com/velos-sh/velos/internal/proc"
	"github.com/velos-sh/velos/internal/runner"
	"github.com/velos-sh/velos/internal/statestore"
	"github.com/velos-sh/velos/internal/supervisor"
)

func daemonCmd() *cobra.Command {
	var (
		configPath string
		foreground bool
		logFile    string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the Velos daemon in the foreground or background",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !foreground {
				if err := daemonize(logFile); err != nil {
					return fmt.Errorf("daemonize: %w", err)
				}
			}
			return runDaemon(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath(), "path to the daemon config file")
	cmd.Flags().BoolVar(&foreground, "foreground", false, "stay attached to the controlling terminal instead of forking into the background")
	cmd.Flags().StringVar(&logFile, "logfile", "", "file to redirect the background daemon's stdout/stderr to (background mode only)")
	return cmd
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return home + "/.velos/velos.toml"
}

// runDaemon implements the daemon lifecycle SPEC_FULL.md's ambient stack
// describes: load config, construct every component, resurrect any saved
// state, bind the IPC listener, and block until a termination signal asks
// for a clean shutdown.
func runDaemon(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logs := logsink.NewManager(cfg.LogDir)
	table := proc.NewTable()
	run := runner.New(logs)
	super := supervisor.New(table, run, logs)
	globalEnv := env.FromGlobalEnv(cfg.GlobalEnv)
	super.MergeEnv = func(spec proc.Spec) []string { return globalEnv.Merge(spec.Env) }

	if cfg.HistoryDSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.HistoryDSN)
		if err != nil {
			return fmt.Errorf("history sink: %w", err)
		}
		super.History = sink
		defer func() { _ = sink.Close() }()
	}

	clusterMgr := cluster.New(table, super, logs)
	store := statestore.New(cfg.StatePath)

	if n, err := store.Resurrect(super); err != nil {
		slog.Warn("state resurrect failed", "error", err)
	} else if n > 0 {
		slog.Info("resurrected processes from state store", "count", n)
	}

	for _, spec := range cfg.Processes {
		if _, err := super.Start(spec, spec.Name); err != nil {
			slog.Warn("failed to start configured process", "name", spec.Name, "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	server := ipc.New(cfg.SocketPath, cfg.PIDPath, table, super, clusterMgr, logs, store)
	server.OnShutdown = cancel

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("velosd listening", "socket", cfg.SocketPath)
	serveErr := server.ListenAndServe(ctx)

	shutdown(table, super, store)
	if serveErr != nil {
		return fmt.Errorf("ipc serve: %w", serveErr)
	}
	return nil
}

// shutdown stops every running child (spec.md §5: Shutdown drains the
// intent queue, then stops every child with its own kill_timeout_ms) and
// persists a final state dump so the next boot can resurrect the fleet.
func shutdown(table *proc.Table, super *supervisor.Supervisor, store *statestore.Store) {
	for _, sum := range table.List() {
		if err := super.Stop(sum.ID); err != nil {
			slog.Warn("shutdown: stop failed", "id", sum.ID, "name", sum.Name, "error", err)
		}
	}
	if err := store.Save(table); err != nil {
		slog.Warn("shutdown: state save failed", "error", err)
	}
	super.Close()
}
