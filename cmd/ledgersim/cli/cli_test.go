package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgersim/internal/bank"
	"github.com/odyssey-erp/ledgersim/internal/sim"
	"github.com/odyssey-erp/ledgersim/jobs"
)

const scenarioYAML = `
name: cli
steps: 12
banks:
  - id: alpha
    capital: 100000
    reserves: 50000
customers:
  - name: alice
    bank: alpha
    deposit: 5000
loans:
  - bank: alpha
    borrower: alice
    amount: 1200
    duration: 360
`

func writeScenario(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func defaultSimConfig() sim.Config {
	return sim.Config{Central: bank.DefaultCentralParams(), Bank: bank.DefaultParams()}
}

func TestSimulateCommandJSON(t *testing.T) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exportDir := filepath.Join(t.TempDir(), "out")

	code := SimulateCommand(context.Background(), SimulateOptions{
		ScenarioPath: writeScenario(t, scenarioYAML),
		Config:       defaultSimConfig(),
		ExportDir:    exportDir,
		JSONOutput:   true,
		Stdout:       stdout,
		Stderr:       stderr,
	})
	require.Equal(t, ExitOK, code, stderr.String())

	var summary SimulateSummary
	require.NoError(t, json.NewDecoder(stdout).Decode(&summary))
	require.Equal(t, "cli", summary.Scenario)
	require.Equal(t, int64(12), summary.Stats.Step)
	require.Equal(t, 1, summary.Stats.LoansApproved)
	require.Len(t, summary.BalanceSheets, 1)
	require.Len(t, summary.Audit, 2)
	for _, r := range summary.Audit {
		require.Equal(t, r.Assets, r.Liabilities+r.Equities)
	}
	require.Len(t, summary.Exported, 2)
	for _, f := range summary.Exported {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(data), "step,"), f)
	}
}

func TestSimulateCommandHumanOutput(t *testing.T) {
	stdout := new(bytes.Buffer)
	code := SimulateCommand(context.Background(), SimulateOptions{
		ScenarioPath: writeScenario(t, scenarioYAML),
		Steps:        3,
		Config:       defaultSimConfig(),
		Language:     "en-US",
		Stdout:       stdout,
		Stderr:       new(bytes.Buffer),
	})
	require.Equal(t, ExitOK, code)
	out := stdout.String()
	require.Contains(t, out, "cli finished at step 3")
	require.Contains(t, out, "alpha (step 3)")
	require.Contains(t, out, "audit alpha")
}

func TestSimulateCommandRejectsBadInput(t *testing.T) {
	cases := map[string]SimulateOptions{
		"missing scenario": {},
		"unknown file":     {ScenarioPath: filepath.Join(t.TempDir(), "missing.yaml")},
		"bad language":     {ScenarioPath: writeScenario(t, scenarioYAML), Language: "not a language!"},
		"invalid scenario": {ScenarioPath: writeScenario(t, "banks: []\n")},
		"bad params":       {ScenarioPath: writeScenario(t, scenarioYAML), Config: sim.Config{}},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			stderr := new(bytes.Buffer)
			opts.Stdout = new(bytes.Buffer)
			opts.Stderr = stderr
			require.Equal(t, ExitFailure, SimulateCommand(context.Background(), opts))
			require.Contains(t, stderr.String(), "simulate:")
		})
	}
}

func TestBuildTask(t *testing.T) {
	task, opts, err := BuildTask(jobs.TaskSimStep, "run1", 5)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskSimStep, task.Type())
	require.Len(t, opts, 1)

	var payload jobs.SimStepPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "run1", payload.RunID)
	require.Equal(t, int64(5), payload.Steps)

	task, _, err = BuildTask(jobs.TaskLedgerArchive, "run1", 0)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskLedgerArchive, task.Type())

	_, _, err = BuildTask("consol:refresh", "run1", 0)
	require.Error(t, err)
}
