package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledgersim/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
	runID     string
}

// NewJobsCLI initialises the CLI helpers for runID using the provided Redis
// options.
func NewJobsCLI(redisOpts asynq.RedisClientOpt, runID string) *JobsCLI {
	return &JobsCLI{
		client:    jobs.NewClient(redisOpts),
		inspector: asynq.NewInspector(redisOpts),
		runID:     runID,
	}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// BuildTask constructs a supported task by name for runID. steps applies to
// sim:step and caps ledger:archive.
func BuildTask(name, runID string, steps int64) (*asynq.Task, []asynq.Option, error) {
	switch name {
	case jobs.TaskSimStep:
		task, err := jobs.NewSimStepTask(runID, steps)
		return task, []asynq.Option{asynq.MaxRetry(0)}, err
	case jobs.TaskLedgerAudit:
		task, err := jobs.NewLedgerAuditTask(runID)
		return task, []asynq.Option{asynq.MaxRetry(0)}, err
	case jobs.TaskLedgerArchive:
		task, err := jobs.NewLedgerArchiveTask(runID, steps)
		return task, []asynq.Option{asynq.MaxRetry(3)}, err
	default:
		return nil, nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, steps int64) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, opts, err := BuildTask(name, c.runID, steps)
	if err != nil {
		return nil, err
	}
	return c.client.Enqueue(ctx, task, opts...)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = int(info.Pending)
		stats.Active = int(info.Active)
		stats.Scheduled = int(info.Scheduled)
		stats.Retry = int(info.Retry)
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}
