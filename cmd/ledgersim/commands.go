package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledgersim/cmd/ledgersim/cli"
	"github.com/odyssey-erp/ledgersim/internal/app"
	"github.com/odyssey-erp/ledgersim/internal/archive"
	"github.com/odyssey-erp/ledgersim/internal/platform/cache"
	"github.com/odyssey-erp/ledgersim/internal/platform/db"
	"github.com/odyssey-erp/ledgersim/jobs"
)

func newSimulateCmd() *cobra.Command {
	opts := cli.SimulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario to completion and print the result",
		Long: `Run a scenario without any backing services. The final audit and
balance sheets are printed; --export writes every general ledger as CSV.
Exits 2 when an accounting invariant halted the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			opts.Config = cfg.SimConfig()
			if opts.ScenarioPath == "" {
				opts.ScenarioPath = cfg.ScenarioPath
			}
			if opts.Logger == nil {
				opts.Logger = app.NewLogger(cfg)
			}
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			if code := cli.SimulateCommand(cmd.Context(), opts); code != cli.ExitOK {
				return exitError{code: code}
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.ScenarioPath, "scenario", "s", "", "scenario YAML file (defaults to SCENARIO_PATH)")
	flags.Int64VarP(&opts.Steps, "steps", "n", 0, "steps to run (defaults to the scenario's steps)")
	flags.StringVar(&opts.Language, "lang", "en", "BCP 47 tag used to group amounts")
	flags.StringVar(&opts.ExportDir, "export", "", "directory to write ledger CSV files into")
	flags.BoolVar(&opts.JSONOutput, "json", false, "print the result as JSON")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger archive tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if app.SkipInTestMode(logger, "migrate") {
				return nil
			}
			pool, err := db.New(cmd.Context(), cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
			if err != nil {
				logger.Error("connect postgres", slog.Any("error", err))
				return err
			}
			defer pool.Close()
			if err := archive.NewRepository(pool).Migrate(cmd.Context()); err != nil {
				logger.Error("migrate archive", slog.Any("error", err))
				return err
			}
			logger.Info("archive schema ready")
			return nil
		},
	}
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	var steps int64
	trigger := &cobra.Command{
		Use:       "trigger [" + jobs.TaskSimStep + "|" + jobs.TaskLedgerAudit + "|" + jobs.TaskLedgerArchive + "]",
		Short:     "Enqueue a job for the configured run",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskSimStep, jobs.TaskLedgerAudit, jobs.TaskLedgerArchive},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(func(c *cli.JobsCLI) error {
				info, err := c.Trigger(cmd.Context(), args[0], steps)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
				return nil
			})
		},
	}
	trigger.Flags().Int64Var(&steps, "steps", 0, "steps to advance, or the archive step cap")

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Show the default queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(func(c *cli.JobsCLI) error {
				stats, err := c.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY")
				_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
				return w.Flush()
			})
		},
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(func(c *cli.JobsCLI) error {
				tasks, err := c.ListScheduled(cmd.Context(), size)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ID\tTYPE\tNEXT")
				for _, t := range tasks {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			})
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "page size")

	cmd.AddCommand(trigger, inspect, scheduled)
	return cmd
}

func withJobsCLI(fn func(*cli.JobsCLI) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	if app.InTestMode() {
		_, _ = fmt.Fprintln(os.Stderr, "test mode detected, skipping redis")
		return nil
	}
	c := cli.NewJobsCLI(cache.QueueOptions(cfg.RedisAddr), cfg.RunID)
	defer func() { _ = c.Close() }()
	return fn(c)
}
