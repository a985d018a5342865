package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerAudit audits every general ledger of the running simulation.
	TaskLedgerAudit = "ledger:audit"
	// TaskLedgerArchive copies newly posted transactions to Postgres.
	TaskLedgerArchive = "ledger:archive"
	// TaskSimStep advances the simulation clock.
	TaskSimStep = "sim:step"
)

// LedgerAuditPayload selects the run to audit.
type LedgerAuditPayload struct {
	RunID string `json:"run_id"`
}

// LedgerArchivePayload bounds how many steps one archive run may cover.
type LedgerArchivePayload struct {
	RunID    string `json:"run_id"`
	MaxSteps int64  `json:"max_steps,omitempty"`
}

// SimStepPayload describes how far to advance the clock.
type SimStepPayload struct {
	RunID string `json:"run_id"`
	Steps int64  `json:"steps"`
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

// NewLedgerAuditTask constructs an audit task.
func NewLedgerAuditTask(runID string) (*asynq.Task, error) {
	return newTask(TaskLedgerAudit, LedgerAuditPayload{RunID: runID})
}

// NewLedgerArchiveTask constructs an archive task.
func NewLedgerArchiveTask(runID string, maxSteps int64) (*asynq.Task, error) {
	return newTask(TaskLedgerArchive, LedgerArchivePayload{RunID: runID, MaxSteps: maxSteps})
}

// NewSimStepTask constructs a step task. Non-positive steps advance one step.
func NewSimStepTask(runID string, steps int64) (*asynq.Task, error) {
	if steps <= 0 {
		steps = 1
	}
	return newTask(TaskSimStep, SimStepPayload{RunID: runID, Steps: steps})
}
