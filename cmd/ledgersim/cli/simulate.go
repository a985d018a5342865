package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/odyssey-erp/ledgersim/internal/bank"
	"github.com/odyssey-erp/ledgersim/internal/ledger"
	"github.com/odyssey-erp/ledgersim/internal/sim"
)

// Exit codes returned by SimulateCommand.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitHalted  = 2
)

// SimulateOptions defines the flags of the simulate command.
type SimulateOptions struct {
	ScenarioPath string
	Steps        int64
	Config       sim.Config
	Language     string
	ExportDir    string
	JSONOutput   bool
	Logger       *slog.Logger
	Stdout       io.Writer
	Stderr       io.Writer
}

// SimulateSummary is the JSON output of the simulate command.
type SimulateSummary struct {
	Scenario      string               `json:"scenario"`
	Stats         sim.Stats            `json:"stats"`
	Audit         []ledger.AuditReport `json:"audit"`
	BalanceSheets []bank.BalanceSheet  `json:"balance_sheets"`
	Exported      []string             `json:"exported,omitempty"`
	Halted        string               `json:"halted,omitempty"`
}

// SimulateCommand runs a scenario headless and prints the final audit and
// balance sheets.
func SimulateCommand(ctx context.Context, opts SimulateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if strings.TrimSpace(opts.ScenarioPath) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "simulate: --scenario is required")
		return ExitFailure
	}
	tag, err := parseLanguage(opts.Language)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "simulate: %v\n", err)
		return ExitFailure
	}

	sc, err := sim.LoadScenarioFile(opts.ScenarioPath)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "simulate: %v\n", err)
		return ExitFailure
	}
	steps := opts.Steps
	if steps <= 0 {
		steps = sc.Steps
	}

	engine, err := sim.NewEngine(opts.Config, opts.Logger, nil)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "simulate: %v\n", err)
		return ExitFailure
	}
	guard := sim.NewGuard(engine, opts.Logger)

	summary := SimulateSummary{Scenario: sc.Name}
	exit := ExitOK
	err = guard.Do(func(e *sim.Engine) error {
		if err := e.Load(sc); err != nil {
			return err
		}
		return e.Run(ctx, steps)
	})
	if err != nil {
		if !errors.Is(err, sim.ErrHalted) {
			_, _ = fmt.Fprintf(opts.Stderr, "simulate: %v\n", err)
			return ExitFailure
		}
		summary.Halted = err.Error()
		exit = ExitHalted
	}

	// A halted engine still holds the ledgers as they were when it stopped.
	summary.Stats = engine.Stats()
	summary.BalanceSheets = engine.BalanceSheets()
	if exit == ExitOK {
		summary.Audit = engine.Audit(nil)
	}
	if opts.ExportDir != "" {
		files, err := ExportLedgers(opts.ExportDir, engine.GeneralLedgers())
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "simulate: export: %v\n", err)
			return ExitFailure
		}
		summary.Exported = files
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "simulate: encode json: %v\n", err)
			return ExitFailure
		}
		return exit
	}
	if err := renderSimulateHuman(opts.Stdout, summary, tag); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "simulate: %v\n", err)
		return ExitFailure
	}
	return exit
}

// ExportLedgers writes one CSV file per general ledger into dir and returns
// the paths written.
func ExportLedgers(dir string, gls []*ledger.GeneralLedger) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	files := make([]string, 0, len(gls))
	for _, gl := range gls {
		path := filepath.Join(dir, gl.Name+".csv")
		if err := writeLedgerFile(path, gl); err != nil {
			return files, fmt.Errorf("%s: %w", gl.Name, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func writeLedgerFile(path string, gl *ledger.GeneralLedger) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return gl.WriteCSV(f)
}

func parseLanguage(raw string) (language.Tag, error) {
	if strings.TrimSpace(raw) == "" {
		return language.English, nil
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return language.Und, fmt.Errorf("invalid language %q: %w", raw, err)
	}
	return tag, nil
}

func renderSimulateHuman(out io.Writer, summary SimulateSummary, tag language.Tag) error {
	name := summary.Scenario
	if name == "" {
		name = "scenario"
	}
	_, _ = fmt.Fprintf(out, "%s finished at step %d\n", name, summary.Stats.Step)
	_, _ = fmt.Fprintf(out, "loans approved %d, transfers %d (failed %d)\n",
		summary.Stats.LoansApproved, summary.Stats.Transfers, summary.Stats.FailedTransfers)
	reasons := make([]string, 0, len(summary.Stats.LoansRefused))
	for reason := range summary.Stats.LoansRefused {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		_, _ = fmt.Fprintf(out, " - refused for %s: %d\n", reason, summary.Stats.LoansRefused[bank.Refusal(reason)])
	}
	if summary.Halted != "" {
		_, _ = fmt.Fprintf(out, "HALTED: %s\n", summary.Halted)
	}
	for _, r := range summary.Audit {
		_, _ = fmt.Fprintf(out, "audit %s: assets %d = liabilities %d + equities %d\n",
			r.Entity, r.Assets, r.Liabilities, r.Equities)
	}
	if err := bank.WriteBalanceSheets(out, summary.BalanceSheets, tag); err != nil {
		return err
	}
	for _, f := range summary.Exported {
		_, _ = fmt.Fprintf(out, "exported %s\n", f)
	}
	return nil
}
