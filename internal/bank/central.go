package bank

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/odyssey-erp/ledgersim/internal/ledger"
	"github.com/odyssey-erp/ledgersim/internal/loans"
)

// CentralName is the general ledger name of the central bank.
const CentralName = "central"

func reserveLedgerName(bankID string) string { return "reserve:" + bankID }

// CentralBank holds every member bank's reserve account, moves reserves
// between banks, arranges interbank reserve loans and publishes the rates
// and CPI the banks lend at.
type CentralBank struct {
	Name string
	GL   *ledger.GeneralLedger

	params  CentralParams
	arena   *ledger.Arena
	clock   ledger.Clock
	logger  *slog.Logger
	metrics Recorder
	banks   map[string]*Bank
	order   []*Bank
}

// NewCentralBank sets up the central bank's ledgers in arena.
func NewCentralBank(arena *ledger.Arena, clock ledger.Clock, params CentralParams, logger *slog.Logger, metrics Recorder) (*CentralBank, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopRecorder{}
	}
	gl := ledger.NewGeneralLedger(CentralName, arena, clock)
	if err := gl.Setup(ledger.CentralBankDefinitions(), CentralName); err != nil {
		return nil, fmt.Errorf("bank: central bank setup: %w", err)
	}
	return &CentralBank{
		Name:    CentralName,
		GL:      gl,
		params:  params,
		arena:   gl.Arena(),
		clock:   clock,
		logger:  logger.With(slog.String("bank", CentralName)),
		metrics: metrics,
		banks:   make(map[string]*Bank),
	}, nil
}

// Params returns the central bank parameters.
func (cb *CentralBank) Params() CentralParams { return cb.params }

// CPI implements loans.CPISource for indexed loans.
func (cb *CentralBank) CPI() float64 { return cb.params.CPI }

// SetCPI changes the published inflation rate.
func (cb *CentralBank) SetCPI(cpi float64) { cb.params.CPI = cpi }

// BaseRate returns the policy rate.
func (cb *CentralBank) BaseRate() float64 { return cb.params.BaseRate }

// SetBaseRate changes the policy rate and moves every variable-rate loan to
// the new rate plus its bank's spread.
func (cb *CentralBank) SetBaseRate(rate float64) error {
	if rate < 0 {
		return loans.ErrInvalidRate
	}
	cb.params.BaseRate = rate
	for _, b := range cb.order {
		if err := b.RecalculateVariableLoans(); err != nil {
			return err
		}
	}
	cb.logger.Info("base rate changed", slog.Float64("rate", rate))
	return nil
}

// NewBank creates a commercial bank sharing the central bank's arena and
// clock and opens its reserve account.
func (cb *CentralBank) NewBank(id string, params Params) (*Bank, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if id == "" || id == cb.Name {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateBank, id)
	}
	if _, ok := cb.banks[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateBank, id)
	}
	gl := ledger.NewGeneralLedger(id, cb.arena, cb.clock)
	if err := gl.Setup(ledger.BankDefinitions(), id); err != nil {
		return nil, fmt.Errorf("bank: setup %s: %w", id, err)
	}
	name := reserveLedgerName(id)
	if _, err := cb.GL.CreateLedger(ledger.Definition{
		Name: name, Type: ledger.AccountTypeLiability, Kind: ledger.LedgerTypeDeposit, Single: true,
	}); err != nil {
		return nil, err
	}
	if _, err := cb.GL.CreateSoleAccount(name, id); err != nil {
		return nil, err
	}
	b := &Bank{
		ID:      id,
		GL:      gl,
		cb:      cb,
		params:  params,
		logger:  cb.logger.With(slog.String("bank", id)),
		metrics: cb.metrics,
	}
	cb.banks[id] = b
	cb.order = append(cb.order, b)
	return b, nil
}

// Bank looks up a member bank.
func (cb *CentralBank) Bank(id string) (*Bank, error) {
	b, ok := cb.banks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBank, id)
	}
	return b, nil
}

// Banks returns the member banks in registration order.
func (cb *CentralBank) Banks() []*Bank {
	return append([]*Bank(nil), cb.order...)
}

func (cb *CentralBank) reserveAccount(bankID string) *ledger.Account {
	return cb.GL.MustLedger(reserveLedgerName(bankID)).MustAccount()
}

func (cb *CentralBank) sole(name string) *ledger.Account {
	return cb.GL.MustLedger(name).MustAccount()
}

// ReserveBalance returns the reserve the central bank holds for a bank.
func (cb *CentralBank) ReserveBalance(bankID string) (int64, error) {
	l, err := cb.GL.Ledger(reserveLedgerName(bankID))
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownBank, bankID)
	}
	return l.Total(), nil
}

func (cb *CentralBank) canTransferReserves(from, to string, amount int64) error {
	return cb.GL.CanTransfer(cb.reserveAccount(from), cb.reserveAccount(to), amount)
}

// TransferReserves moves reserves between two member banks. Callers check
// the sending bank's reserve first; an overdraft here aborts.
func (cb *CentralBank) TransferReserves(from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if _, err := cb.Bank(from); err != nil {
		return err
	}
	if _, err := cb.Bank(to); err != nil {
		return err
	}
	return cb.GL.Transfer(cb.reserveAccount(from), cb.reserveAccount(to), amount, "reserve transfer")
}

// DepositCash books cash a bank moved into its reserve account.
func (cb *CentralBank) DepositCash(bankID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return cb.GL.Post(ledger.LedgerCash, cb.sole(ledger.LedgerCash), reserveLedgerName(bankID), cb.reserveAccount(bankID), amount, "cash to reserve "+bankID)
}

func (cb *CentralBank) canWithdrawCash(bankID string, amount int64) error {
	return cb.GL.CanPost(reserveLedgerName(bankID), cb.reserveAccount(bankID), ledger.LedgerCash, cb.sole(ledger.LedgerCash), amount)
}

// WithdrawCash books reserves a bank drew out as cash.
func (cb *CentralBank) WithdrawCash(bankID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return cb.GL.Post(reserveLedgerName(bankID), cb.reserveAccount(bankID), ledger.LedgerCash, cb.sole(ledger.LedgerCash), amount, "reserve to cash "+bankID)
}

// PrintMoney creates central bank capital backed by new cash.
func (cb *CentralBank) PrintMoney(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return cb.GL.Post(ledger.LedgerCash, cb.sole(ledger.LedgerCash), ledger.LedgerCapital, cb.sole(ledger.LedgerCapital), amount, "print money")
}

// BorrowReserves arranges a reserve loan for requestor. Member banks are
// asked in registration order; the central bank lends as a last resort
// only when configured to. A nil loan means no funds were available and
// nothing was posted.
func (cb *CentralBank) BorrowReserves(requestor *Bank, amount int64) (*loans.Loan, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if floor := loans.MinLoan(cb.params.InterbankRate); amount < floor {
		amount = floor
	}
	for _, peer := range cb.order {
		if peer == requestor {
			continue
		}
		loan, err := peer.lendReserves(requestor, amount)
		if err != nil {
			return nil, err
		}
		if loan == nil {
			continue
		}
		if err := cb.TransferReserves(peer.ID, requestor.ID, amount); err != nil {
			return nil, err
		}
		if err := requestor.receiveInterbankLoan(loan, peer.ID); err != nil {
			return nil, err
		}
		cb.metrics.InterbankLoan(peer.ID, amount)
		return loan, nil
	}

	if cb.params.LenderOfLastResort {
		loan, err := cb.lend(requestor, amount)
		if err != nil {
			return nil, err
		}
		cb.logger.Warn("central bank lending as last resort", slog.String("borrower", requestor.ID), slog.Int64("amount", amount))
		cb.metrics.InterbankLoan(cb.Name, amount)
		return loan, nil
	}

	cb.logger.Info("no interbank reserve funds available", slog.String("borrower", requestor.ID), slog.Int64("amount", amount))
	return nil, nil
}

func (cb *CentralBank) interbankTerms(owner, borrower, amount int64) loans.Terms {
	return loans.Terms{
		ID:       cb.arena.NextLoanID(),
		Amount:   amount,
		Rate:     cb.params.InterbankRate,
		Duration: cb.params.InterbankDuration,
		Start:    cb.GL.Step(),
		Owner:    owner,
		Borrower: borrower,
		Risk:     loans.RiskInterbank,
	}
}

func (cb *CentralBank) lend(requestor *Bank, amount int64) (*loans.Loan, error) {
	terms := cb.interbankTerms(cb.sole(ledger.LedgerInterestIncome).ID, requestor.sole(ledger.LedgerInterestIncome).ID, amount)
	loan, err := loans.New(loans.KindInterbank, terms)
	if err != nil {
		return nil, fmt.Errorf("bank: central bank loan: %w", err)
	}
	if err := cb.GL.PostLoan(ledger.LedgerLoan, cb.sole(ledger.LedgerLoan), reserveLedgerName(requestor.ID), cb.reserveAccount(requestor.ID), loan, ledger.SideDebit, "reserve loan to "+requestor.ID); err != nil {
		return nil, err
	}
	if err := requestor.receiveInterbankLoan(loan, cb.Name); err != nil {
		return nil, err
	}
	return loan, nil
}

// receivePayment books an interbank payment made to the central bank.
func (cb *CentralBank) canReceivePayment(from *Bank, loan *loans.Loan) error {
	return cb.GL.CanPostLoanReceipt(reserveLedgerName(from.ID), cb.reserveAccount(from.ID), ledger.LedgerLoan, loan)
}

func (cb *CentralBank) receivePayment(from *Bank, loan *loans.Loan, p loans.Payment) error {
	return cb.GL.PostLoanReceipt(reserveLedgerName(from.ID), cb.reserveAccount(from.ID), ledger.LedgerLoan, loan, p, loan.String())
}

// Evaluate runs one step of every member bank in registration order.
func (cb *CentralBank) Evaluate() error {
	for _, b := range cb.order {
		if err := b.Evaluate(); err != nil {
			return fmt.Errorf("bank: evaluate %s: %w", b.ID, err)
		}
	}
	return nil
}

// Audit checks the central bank and every member bank. When out is not nil
// the totals are written to it.
func (cb *CentralBank) Audit(out io.Writer) []ledger.AuditReport {
	reports := []ledger.AuditReport{cb.GL.Audit(out)}
	for _, b := range cb.order {
		reports = append(reports, b.GL.Audit(out))
	}
	return reports
}
