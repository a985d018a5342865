package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/odyssey-erp/ledgersim/internal/bank"
	"github.com/odyssey-erp/ledgersim/internal/ledger"
)

// Config holds the parameters every bank in a simulation is created with.
type Config struct {
	Central bank.CentralParams
	Bank    bank.Params
}

// Stats counts what happened to the requests the driver made.
type Stats struct {
	Step            int64                `json:"step"`
	LoansApproved   int                  `json:"loans_approved"`
	LoansRefused    map[bank.Refusal]int `json:"loans_refused"`
	Transfers       int                  `json:"transfers"`
	FailedTransfers int                  `json:"failed_transfers"`
}

// ErrAlreadyLoaded indicates a second scenario loaded into the same engine.
var ErrAlreadyLoaded = errors.New("sim: scenario already loaded")

// Engine drives a banking system through a scenario one step at a time.
// It is not safe for concurrent use.
type Engine struct {
	cfg       Config
	clock     *ledger.StepClock
	cb        *bank.CentralBank
	logger    *slog.Logger
	scenario  *Scenario
	customers map[string]*ledger.Account
	stats     Stats
}

// NewEngine creates an empty banking system at step zero.
func NewEngine(cfg Config, logger *slog.Logger, recorder bank.Recorder) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	clock := &ledger.StepClock{}
	cb, err := bank.NewCentralBank(ledger.NewArena(), clock, cfg.Central, logger, recorder)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:       cfg,
		clock:     clock,
		cb:        cb,
		logger:    logger,
		customers: make(map[string]*ledger.Account),
		stats:     Stats{LoansRefused: make(map[bank.Refusal]int)},
	}, nil
}

// CentralBank exposes the simulated central bank.
func (e *Engine) CentralBank() *bank.CentralBank { return e.cb }

// Now returns the current step.
func (e *Engine) Now() int64 { return e.clock.Step() }

// Scenario returns the loaded scenario, nil before Load.
func (e *Engine) Scenario() *Scenario { return e.scenario }

// Stats returns a copy of the request counters.
func (e *Engine) Stats() Stats {
	out := e.stats
	out.Step = e.clock.Step()
	out.LoansRefused = make(map[bank.Refusal]int, len(e.stats.LoansRefused))
	for k, v := range e.stats.LoansRefused {
		out.LoansRefused[k] = v
	}
	return out
}

// Load opens the scenario's banks and customers and runs its step-zero
// requests.
func (e *Engine) Load(sc *Scenario) error {
	if e.scenario != nil {
		return ErrAlreadyLoaded
	}
	if err := sc.Validate(); err != nil {
		return err
	}
	for _, spec := range sc.Banks {
		b, err := e.cb.NewBank(spec.ID, e.cfg.Bank)
		if err != nil {
			return err
		}
		if spec.Capital > 0 {
			if err := b.SellCapital(spec.Capital); err != nil {
				return fmt.Errorf("sim: capitalise %s: %w", spec.ID, err)
			}
		}
		if spec.Reserves > 0 {
			if err := b.MoveCashToReserves(spec.Reserves); err != nil {
				return fmt.Errorf("sim: reserves for %s: %w", spec.ID, err)
			}
		}
	}
	for _, spec := range sc.Customers {
		b, err := e.cb.Bank(spec.Bank)
		if err != nil {
			return err
		}
		acct, err := b.OpenAccount(spec.Name)
		if err != nil {
			return err
		}
		if spec.Deposit > 0 {
			if err := b.DepositCash(acct, spec.Deposit); err != nil {
				return fmt.Errorf("sim: opening deposit for %s: %w", spec.Name, err)
			}
		}
		e.customers[spec.Name] = acct
	}
	e.scenario = sc
	e.logger.Info("scenario loaded",
		slog.String("scenario", sc.Name),
		slog.Int("banks", len(sc.Banks)),
		slog.Int("customers", len(sc.Customers)))
	return e.runEvents(e.clock.Step())
}

// Customer resolves a customer deposit account by name.
func (e *Engine) Customer(name string) (*ledger.Account, error) {
	acct, ok := e.customers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCustomer, name)
	}
	return acct, nil
}

// RequestLoan asks a bank for a loan and counts the decision.
func (e *Engine) RequestLoan(bankID string, req bank.LoanRequest) (bank.Decision, error) {
	b, err := e.cb.Bank(bankID)
	if err != nil {
		return bank.Decision{}, err
	}
	decision, err := b.RequestLoan(req)
	if err != nil {
		return decision, err
	}
	if decision.Approved() {
		e.stats.LoansApproved++
	} else {
		e.stats.LoansRefused[decision.Reason]++
	}
	return decision, nil
}

// Lend resolves the named borrower and requests the loan described by spec.
func (e *Engine) Lend(spec LoanSpec) (bank.Decision, error) {
	borrower, err := e.Customer(spec.Borrower)
	if err != nil {
		return bank.Decision{}, err
	}
	return e.RequestLoan(spec.Bank, bank.LoanRequest{
		Borrower:   borrower.ID,
		Amount:     spec.Amount,
		Duration:   spec.Duration,
		Kind:       spec.kind(),
		Risk:       spec.risk(),
		Rate:       spec.Rate,
		Collateral: spec.Collateral,
	})
}

// Transfer moves money between two named customers and counts the outcome.
func (e *Engine) Transfer(from, to string, amount int64, text string) (bool, error) {
	payer, err := e.Customer(from)
	if err != nil {
		return false, err
	}
	payee, err := e.Customer(to)
	if err != nil {
		return false, err
	}
	b, err := e.cb.Bank(payer.Bank)
	if err != nil {
		return false, err
	}
	ok, err := b.Transfer(payer, payee, amount, text)
	if err != nil {
		return false, err
	}
	if ok {
		e.stats.Transfers++
	} else {
		e.stats.FailedTransfers++
		e.logger.Info("transfer failed",
			slog.String("from", from),
			slog.String("to", to),
			slog.Int64("amount", amount))
	}
	return ok, nil
}

func (e *Engine) runEvents(step int64) error {
	if e.scenario == nil {
		return nil
	}
	for _, r := range e.scenario.Rates {
		if r.Step != step {
			continue
		}
		if err := e.cb.SetBaseRate(r.BaseRate); err != nil {
			return err
		}
	}
	for _, spec := range e.scenario.Loans {
		if spec.Step != step {
			continue
		}
		if _, err := e.Lend(spec); err != nil {
			return fmt.Errorf("sim: loan to %s at step %d: %w", spec.Borrower, step, err)
		}
	}
	for _, spec := range e.scenario.Transfers {
		if spec.Step != step {
			continue
		}
		text := spec.Text
		if text == "" {
			text = "transfer"
		}
		if _, err := e.Transfer(spec.From, spec.To, spec.Amount, text); err != nil {
			return fmt.Errorf("sim: transfer at step %d: %w", step, err)
		}
	}
	return nil
}

// Step advances the clock, runs the requests scheduled for the new step,
// lets every bank collect installments and rebalance, and audits the
// system.
func (e *Engine) Step() (int64, error) {
	step := e.clock.Advance()
	if err := e.runEvents(step); err != nil {
		return step, err
	}
	if err := e.cb.Evaluate(); err != nil {
		return step, err
	}
	e.cb.Audit(nil)
	return step, nil
}

// Run steps the simulation n times or until ctx is done.
func (e *Engine) Run(ctx context.Context, n int64) error {
	for i := int64(0); i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.Step(); err != nil {
			return err
		}
	}
	e.logger.Info("simulation finished", slog.Int64("step", e.clock.Step()))
	return nil
}

// Audit checks every general ledger and optionally writes the totals.
func (e *Engine) Audit(out io.Writer) []ledger.AuditReport {
	return e.cb.Audit(out)
}

// BalanceSheets summarises every bank.
func (e *Engine) BalanceSheets() []bank.BalanceSheet {
	return e.cb.BalanceSheets()
}

// GeneralLedgers returns the central bank's general ledger followed by every
// member bank's.
func (e *Engine) GeneralLedgers() []*ledger.GeneralLedger {
	out := []*ledger.GeneralLedger{e.cb.GL}
	for _, b := range e.cb.Banks() {
		out = append(out, b.GL)
	}
	return out
}
