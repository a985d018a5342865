package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ledgersim/internal/jobs"
	"github.com/odyssey-erp/ledgersim/internal/sim"
)

// SimStepJob advances the simulation on a schedule.
type SimStepJob struct {
	Guard   *sim.Guard
	RunID   string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSimStepJob initialises the step handler.
func NewSimStepJob(guard *sim.Guard, runID string, logger *slog.Logger, metrics *jobmetrics.Metrics) *SimStepJob {
	return &SimStepJob{Guard: guard, RunID: runID, Logger: logger, Metrics: metrics}
}

// Handle advances the clock by the payload's step count. Steps are not
// idempotent, so failures are never retried.
func (j *SimStepJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Guard == nil {
		return errors.New("sim step: handler not configured")
	}
	var payload SimStepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RunID != "" && payload.RunID != j.RunID {
		return asynq.SkipRetry
	}
	if payload.Steps <= 0 {
		payload.Steps = 1
	}

	tracker := j.Metrics.Track(TaskSimStep)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var from, to int64
	err := j.Guard.Do(func(e *sim.Engine) error {
		from = e.Now()
		err := e.Run(ctx, payload.Steps)
		to = e.Now()
		return err
	})
	j.Metrics.AddSteps(to - from)
	if err != nil {
		j.logger().Error("advance simulation", slog.Int64("step", to), slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	j.logger().Debug("simulation advanced", slog.Int64("from", from), slog.Int64("to", to))
	return nil
}

func (j *SimStepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSimStep))
	}
	return slog.Default().With(slog.String("job", TaskSimStep))
}
