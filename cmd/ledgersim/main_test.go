package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgersim/cmd/ledgersim/cli"
	_ "github.com/odyssey-erp/ledgersim/internal/testing/guard"
)

const scenario = `
name: smoke
steps: 5
banks:
  - id: alpha
    capital: 10000
    reserves: 5000
customers:
  - name: alice
    bank: alpha
    deposit: 100
`

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "worker", "simulate", "migrate", "jobs"} {
		require.True(t, names[want], want)
	}
}

func TestSimulateThroughRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smoke.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o600))

	root := newRootCmd()
	stdout := new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"simulate", "--scenario", path, "--json"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var summary cli.SimulateSummary
	require.NoError(t, json.NewDecoder(stdout).Decode(&summary))
	require.Equal(t, int64(5), summary.Stats.Step)
}

func TestSimulateExitCode(t *testing.T) {
	root := newRootCmd()
	stderr := new(bytes.Buffer)
	root.SetOut(new(bytes.Buffer))
	root.SetErr(stderr)
	root.SetArgs([]string{"simulate", "--scenario", filepath.Join(t.TempDir(), "missing.yaml")})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	require.Equal(t, cli.ExitFailure, exitCode(err))
	require.Contains(t, stderr.String(), "simulate:")

	require.Equal(t, 1, exitCode(errors.New("boom")))
	require.Equal(t, cli.ExitHalted, exitCode(exitError{code: cli.ExitHalted}))
}

func TestLongRunningCommandsSkipInTestMode(t *testing.T) {
	for _, name := range []string{"serve", "worker"} {
		root := newRootCmd()
		root.SetArgs([]string{name})
		require.NoError(t, root.ExecuteContext(context.Background()), name)
	}
}
