// Command velosd is the Velos daemon entrypoint. Per spec.md's CLI
// Non-goal, it carries a single "daemon" subcommand -- load config,
// construct the supervisor, bind the IPC listener, block until signalled
// -- rather than the teacher cmd/provisr's full start/stop/list/status
// surface, which is an external collaborator here.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if os.Getenv("VELOS_LOG_FORMAT") == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "velosd",
		Short: "Velos process supervisor daemon",
	}
	root.AddCommand(daemonCmd())
	return root
}
