package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledgersim/internal/app"
	"github.com/odyssey-erp/ledgersim/internal/archive"
	jobmetrics "github.com/odyssey-erp/ledgersim/internal/jobs"
	"github.com/odyssey-erp/ledgersim/internal/observability"
	"github.com/odyssey-erp/ledgersim/internal/platform/cache"
	"github.com/odyssey-erp/ledgersim/internal/platform/db"
	"github.com/odyssey-erp/ledgersim/internal/sim"
	simhttp "github.com/odyssey-erp/ledgersim/internal/sim/http"
	"github.com/odyssey-erp/ledgersim/internal/snapshot"
	"github.com/odyssey-erp/ledgersim/jobs"
)

// runtime holds the simulation and the optional backing services of a
// long-running process. Redis and Postgres are optional: without Redis there
// is no snapshot cache or worker, without Postgres there is no archive.
type runtime struct {
	cfg        *app.Config
	logger     *slog.Logger
	metrics    *observability.Metrics
	jobMetrics *jobmetrics.Metrics
	guard      *sim.Guard
	pool       *pgxpool.Pool
	redis      *redis.Client
	snapshots  *snapshot.Cache
	archive    *archive.Repository
}

func newRuntime(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}
	rt.jobMetrics = jobmetrics.NewMetrics(rt.metrics.Registerer())

	engine, err := sim.NewEngine(cfg.SimConfig(), logger, rt.metrics)
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	if cfg.ScenarioPath != "" {
		sc, err := sim.LoadScenarioFile(cfg.ScenarioPath)
		if err != nil {
			return nil, err
		}
		if err := engine.Load(sc); err != nil {
			return nil, fmt.Errorf("load scenario: %w", err)
		}
	}
	rt.guard = sim.NewGuard(engine, logger)

	if app.SkipInTestMode(logger, "postgres and redis") {
		return rt, nil
	}

	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, running without snapshot cache and jobs", slog.Any("error", err))
	} else {
		rt.redis = client
		rt.snapshots = snapshot.NewCache(client, cfg.SnapshotTTL, cfg.RunID)
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Warn("postgres unavailable, running without ledger archive", slog.Any("error", err))
	} else {
		rt.pool = pool
		rt.archive = archive.NewRepository(pool)
		if err := rt.archive.Migrate(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("migrate archive: %w", err)
		}
	}
	return rt, nil
}

// sheetCache returns the snapshot cache as a handler dependency, nil when
// Redis is unavailable.
func (rt *runtime) sheetCache() simhttp.SheetCache {
	if rt.snapshots == nil {
		return nil
	}
	return rt.snapshots
}

func (rt *runtime) checks() map[string]app.ReadinessCheck {
	checks := map[string]app.ReadinessCheck{
		"simulation": func(context.Context) error { return rt.guard.Halted() },
	}
	if rt.redis != nil {
		checks["redis"] = cache.Check(rt.redis)
	}
	if rt.pool != nil {
		checks["postgres"] = db.Check(rt.pool)
	}
	return checks
}

// newWorker wires the step, audit and archive jobs. It returns nil when
// Redis is unavailable.
func (rt *runtime) newWorker() (*jobs.Worker, error) {
	if rt.redis == nil {
		return nil, nil
	}
	cfg := rt.cfg
	auditJob := jobs.NewLedgerAuditJob(rt.guard, cfg.RunID, rt.logger, rt.jobMetrics)
	stepJob := jobs.NewSimStepJob(rt.guard, cfg.RunID, rt.logger, rt.jobMetrics)
	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskLedgerAudit, Handler: auditJob.Handle},
		{Type: jobs.TaskSimStep, Handler: stepJob.Handle},
	}

	auditTask, err := jobs.NewLedgerAuditTask(cfg.RunID)
	if err != nil {
		return nil, err
	}
	cron := []jobs.CronRegistration{
		{Spec: cfg.AuditCron, Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(0)}},
	}
	if cfg.StepCron != "" {
		stepTask, err := jobs.NewSimStepTask(cfg.RunID, cfg.StepsPerTick)
		if err != nil {
			return nil, err
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.StepCron, Task: stepTask, Options: []asynq.Option{asynq.MaxRetry(0)}})
	}
	if rt.archive != nil {
		archiveJob := jobs.NewLedgerArchiveJob(rt.guard, rt.archive, cfg.RunID, rt.logger, rt.jobMetrics)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskLedgerArchive, Handler: archiveJob.Handle})
		archiveTask, err := jobs.NewLedgerArchiveTask(cfg.RunID, cfg.ArchiveMaxSteps)
		if err != nil {
			return nil, err
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.ArchiveCron, Task: archiveTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	return jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cache.QueueOptions(cfg.RedisAddr),
		Logger:    rt.logger,
		Handlers:  handlers,
		Cron:      cron,
	})
}

func (rt *runtime) Close() {
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
}
