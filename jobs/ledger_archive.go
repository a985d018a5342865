package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledgersim/internal/archive"
	jobmetrics "github.com/odyssey-erp/ledgersim/internal/jobs"
	"github.com/odyssey-erp/ledgersim/internal/sim"
)

// ArchiveStore persists archive batches.
type ArchiveStore interface {
	LastStep(ctx context.Context, runID string) (int64, error)
	SaveBatch(ctx context.Context, batch archive.Batch) error
}

// LedgerArchiveJob copies the transactions posted since the last archived
// step into the archive store.
type LedgerArchiveJob struct {
	Guard   *sim.Guard
	Store   ArchiveStore
	RunID   string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerArchiveJob initialises the archive handler.
func NewLedgerArchiveJob(guard *sim.Guard, store ArchiveStore, runID string, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerArchiveJob {
	return &LedgerArchiveJob{Guard: guard, Store: store, RunID: runID, Logger: logger, Metrics: metrics}
}

// Handle archives one batch. Steps already archived are skipped.
func (j *LedgerArchiveJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Guard == nil || j.Store == nil {
		return errors.New("ledger archive: handler not configured")
	}
	var payload LedgerArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	runID := j.RunID
	if payload.RunID != "" && payload.RunID != runID {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskLedgerArchive)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger().With(slog.String("run_id", runID))

	last, err := j.Store.LastStep(ctx, runID)
	if err != nil {
		logger.Error("load last archived step", slog.Any("error", err))
		return err
	}

	var batch archive.Batch
	pending := false
	err = j.Guard.Do(func(e *sim.Engine) error {
		to := e.Now()
		if payload.MaxSteps > 0 && to > last+payload.MaxSteps {
			to = last + payload.MaxSteps
		}
		if to <= last {
			return nil
		}
		pending = true
		var err error
		batch, err = archive.Collect(runID, e.GeneralLedgers(), last+1, to)
		return err
	})
	if err != nil {
		logger.Error("collect transactions", slog.Any("error", err))
		return err
	}
	if !pending {
		logger.Debug("nothing to archive", slog.Int64("last_step", last))
		return nil
	}

	if err := j.Store.SaveBatch(ctx, batch); err != nil {
		if errors.Is(err, archive.ErrDuplicateBatch) {
			logger.Info("batch already archived", slog.Int64("from", batch.FromStep), slog.Int64("to", batch.ToStep))
			return nil
		}
		logger.Error("save archive batch", slog.Any("error", err))
		return err
	}
	j.Metrics.AddArchived(len(batch.Records))
	logger.Info("archived transactions",
		slog.String("batch_id", batch.ID.String()),
		slog.Int64("from", batch.FromStep),
		slog.Int64("to", batch.ToStep),
		slog.Int("records", len(batch.Records)))
	return nil
}

func (j *LedgerArchiveJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerArchive))
	}
	return slog.Default().With(slog.String("job", TaskLedgerArchive))
}
