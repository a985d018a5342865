package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledgersim/internal/app"
	"github.com/odyssey-erp/ledgersim/internal/platform/cache"
	simhttp "github.com/odyssey-erp/ledgersim/internal/sim/http"
	"github.com/odyssey-erp/ledgersim/jobs"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulation over HTTP",
		Long: `Start the HTTP API for the scenario in SCENARIO_PATH. When Redis is
reachable the process also runs the step, audit and archive jobs, since the
simulation lives in this process's memory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.InTestMode() {
				slog.Default().Info("test mode detected, skipping runtime startup")
				return nil
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("init runtime", slog.Any("error", err))
		return err
	}
	defer rt.Close()

	var inspector jobs.QueueInspector
	if rt.redis != nil {
		asynqInspector := asynq.NewInspector(cache.QueueOptions(cfg.RedisAddr))
		defer func() {
			if err := asynqInspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		inspector = asynqInspector

		if err := rt.snapshots.ListenForInvalidation(ctx); err != nil {
			logger.Warn("snapshot invalidation", slog.Any("error", err))
		}
	}

	worker, err := rt.newWorker()
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		return err
	}
	if worker != nil {
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker run", slog.Any("error", err))
				stop()
			}
		}()
	}

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		SimHandler: simhttp.NewHandler(logger, rt.guard, rt.sheetCache()),
		JobHandler: jobs.NewHandler(inspector, logger),
		Metrics:    rt.metrics,
		Checks:     rt.checks(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("run_id", cfg.RunID))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the simulation headless on the job schedule",
		Long: `Run the scenario in SCENARIO_PATH without the HTTP API. The clock is
driven by STEP_CRON and the ledgers are audited and archived on their own
schedules. Requires Redis.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.InTestMode() {
				slog.Default().Info("test mode detected, skipping worker startup")
				return nil
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, cfg, logger)
			if err != nil {
				logger.Error("init runtime", slog.Any("error", err))
				return err
			}
			defer rt.Close()

			worker, err := rt.newWorker()
			if err != nil {
				logger.Error("init worker", slog.Any("error", err))
				return err
			}
			if worker == nil {
				return errors.New("worker: redis is required")
			}
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker run", slog.Any("error", err))
				return err
			}
			return nil
		},
	}
}
