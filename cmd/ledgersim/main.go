package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledgersim/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgersim",
		Short: "Double-entry banking simulation",
		Long: `ledgersim runs a banking simulation: commercial banks keep double-entry
general ledgers, lend against reserve and capital requirements, and service
amortising loans as the clock advances.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newSimulateCmd(),
		newMigrateCmd(),
		newJobsCmd(),
	)
	return root
}

// loadConfig reads the environment and builds the logger every long-running
// command uses.
func loadConfig() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg), nil
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
}

func (e exitError) Error() string { return "exit status " + strconv.Itoa(e.code) }

func exitCode(err error) int {
	var e exitError
	if errors.As(err, &e) {
		return e.code
	}
	slog.Default().Error("ledgersim", slog.Any("error", err))
	return 1
}
