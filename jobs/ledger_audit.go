package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ledgersim/internal/jobs"
	"github.com/odyssey-erp/ledgersim/internal/ledger"
	"github.com/odyssey-erp/ledgersim/internal/sim"
)

// LedgerAuditJob re-checks that every general ledger of the running
// simulation balances.
type LedgerAuditJob struct {
	Guard   *sim.Guard
	RunID   string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerAuditJob initialises the audit handler.
func NewLedgerAuditJob(guard *sim.Guard, runID string, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerAuditJob {
	return &LedgerAuditJob{Guard: guard, RunID: runID, Logger: logger, Metrics: metrics}
}

// Handle executes the audit. A halted simulation is reported once and not
// retried.
func (j *LedgerAuditJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Guard == nil {
		return errors.New("ledger audit: handler not configured")
	}
	var payload LedgerAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RunID != "" && payload.RunID != j.RunID {
		j.logger().Warn("ledger audit for another run", slog.String("run_id", payload.RunID))
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskLedgerAudit)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var reports []ledger.AuditReport
	err := j.Guard.Do(func(e *sim.Engine) error {
		reports = e.Audit(nil)
		return nil
	})
	if err != nil {
		j.Metrics.AddAuditFailure("system")
		j.logger().Error("ledger audit failed", slog.Any("error", err))
		if errors.Is(err, sim.ErrHalted) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	for _, r := range reports {
		j.logger().Info("ledger audit",
			slog.String("entity", r.Entity),
			slog.Int64("step", r.Step),
			slog.Int64("assets", r.Assets),
			slog.Int64("liabilities", r.Liabilities),
			slog.Int64("equities", r.Equities))
	}
	return nil
}

func (j *LedgerAuditJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerAudit))
	}
	return slog.Default().With(slog.String("job", TaskLedgerAudit))
}
