package bank

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/ledgersim/internal/ledger"
	"github.com/odyssey-erp/ledgersim/internal/loans"
)

// Bank is a commercial bank: a general ledger plus the lending gate, the
// default waterfall and the reserve management around it.
type Bank struct {
	ID string
	GL *ledger.GeneralLedger

	cb      *CentralBank
	params  Params
	logger  *slog.Logger
	metrics Recorder
	zombie  bool
}

// Params returns the bank's lending parameters.
func (b *Bank) Params() Params { return b.params }

// Zombie reports whether equity was exhausted by write-offs. A zombie bank
// services existing obligations but makes no new loans.
func (b *Bank) Zombie() bool { return b.zombie }

func (b *Bank) sole(name string) *ledger.Account {
	return b.GL.MustLedger(name).MustAccount()
}

func (b *Bank) total(name string) int64 {
	return b.GL.MustLedger(name).Total()
}

// OpenAccount opens a customer deposit account.
func (b *Bank) OpenAccount(owner string) (*ledger.Account, error) {
	return b.GL.CreateAccount(ledger.LedgerDeposit, owner, owner)
}

// Customer resolves a deposit account held at this bank.
func (b *Bank) Customer(id int64) (*ledger.Account, error) {
	acct, ok := b.GL.Arena().Account(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAccount, id)
	}
	if acct.Bank != b.ID || acct.Ledger != ledger.LedgerDeposit {
		return nil, fmt.Errorf("%w: %d", ErrNotCustomer, id)
	}
	return acct, nil
}

// Customers returns the bank's deposit accounts in opening order.
func (b *Bank) Customers() []*ledger.Account {
	return b.GL.MustLedger(ledger.LedgerDeposit).Accounts()
}

// DepositCash credits a customer with cash paid into the bank.
func (b *Bank) DepositCash(acct *ledger.Account, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return b.GL.Post(ledger.LedgerCash, b.sole(ledger.LedgerCash), ledger.LedgerDeposit, acct, amount, "cash deposit")
}

// WithdrawCash pays cash out of a customer deposit. Reserves are drawn down
// when the till is short. It reports false, changing nothing, when the
// customer or the bank cannot cover the amount.
func (b *Bank) WithdrawCash(acct *ledger.Account, amount int64) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	if acct == nil || acct.Balance() < amount {
		return false, nil
	}
	if short := amount - b.sole(ledger.LedgerCash).Balance(); short > 0 {
		if b.sole(ledger.LedgerReserve).Balance() < short || b.cb.canWithdrawCash(b.ID, short) != nil {
			return false, nil
		}
		if err := b.MoveReservesToCash(short); err != nil {
			return false, err
		}
	}
	if err := b.GL.Post(ledger.LedgerDeposit, acct, ledger.LedgerCash, b.sole(ledger.LedgerCash), amount, "cash withdrawal"); err != nil {
		return false, err
	}
	return true, nil
}

// SellCapital raises equity for cash.
func (b *Bank) SellCapital(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return b.GL.Post(ledger.LedgerCash, b.sole(ledger.LedgerCash), ledger.LedgerCapital, b.sole(ledger.LedgerCapital), amount, "sell capital")
}

// RecogniseIncome moves interest income to retained earnings. It reports
// false when income does not cover the amount.
func (b *Bank) RecogniseIncome(amount int64) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	from, to := b.sole(ledger.LedgerInterestIncome), b.sole(ledger.LedgerRetainedEarnings)
	if err := b.GL.CanTransfer(from, to, amount); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return false, nil
		}
		return false, err
	}
	if err := b.GL.Transfer(from, to, amount, "recognise income"); err != nil {
		return false, err
	}
	return true, nil
}

// MoveCashToReserves deposits till cash with the central bank.
func (b *Bank) MoveCashToReserves(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	cash, reserve := b.sole(ledger.LedgerCash), b.sole(ledger.LedgerReserve)
	if err := b.GL.CanTransfer(cash, reserve, amount); err != nil {
		return err
	}
	if err := b.GL.Transfer(cash, reserve, amount, "cash to reserve"); err != nil {
		return err
	}
	return b.cb.DepositCash(b.ID, amount)
}

// MoveReservesToCash draws reserves from the central bank as till cash.
func (b *Bank) MoveReservesToCash(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	reserve, cash := b.sole(ledger.LedgerReserve), b.sole(ledger.LedgerCash)
	if err := b.GL.CanTransfer(reserve, cash, amount); err != nil {
		return err
	}
	if err := b.cb.canWithdrawCash(b.ID, amount); err != nil {
		return err
	}
	if err := b.GL.Transfer(reserve, cash, amount, "reserve to cash"); err != nil {
		return err
	}
	return b.cb.WithdrawCash(b.ID, amount)
}

// Transfer moves amount between two customer deposits, through the central
// bank when the payee banks elsewhere. It reports false, changing nothing on
// any ledger, when the payer's deposit or the bank's reserves fall short.
func (b *Bank) Transfer(from, to *ledger.Account, amount int64, text string) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	if from == nil || to == nil {
		return false, ledger.ErrNilAccount
	}
	if from.Bank != b.ID || from.Ledger != ledger.LedgerDeposit || to.Ledger != ledger.LedgerDeposit {
		return false, ErrNotCustomer
	}
	if to.Bank != b.ID {
		return b.interBankTransfer(from, to, amount, text)
	}
	if err := b.GL.CanTransfer(from, to, amount); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return false, nil
		}
		return false, err
	}
	if err := b.GL.Transfer(from, to, amount, text); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Bank) interBankTransfer(from, to *ledger.Account, amount int64, text string) (bool, error) {
	payee, err := b.cb.Bank(to.Bank)
	if err != nil {
		return false, err
	}
	if from.Balance() < amount {
		return false, nil
	}
	ok, err := b.ensureReserves(amount)
	if err != nil || !ok {
		return false, err
	}

	reserve := b.sole(ledger.LedgerReserve)
	payeeReserve := payee.sole(ledger.LedgerReserve)
	if err := b.GL.CanPost(ledger.LedgerDeposit, from, ledger.LedgerReserve, reserve, amount); err != nil {
		return false, err
	}
	if err := b.cb.canTransferReserves(b.ID, payee.ID, amount); err != nil {
		return false, err
	}
	if err := payee.GL.CanPost(ledger.LedgerReserve, payeeReserve, ledger.LedgerDeposit, to, amount); err != nil {
		return false, err
	}

	if err := b.GL.Post(ledger.LedgerDeposit, from, ledger.LedgerReserve, reserve, amount, text); err != nil {
		return false, err
	}
	if err := b.cb.TransferReserves(b.ID, payee.ID, amount); err != nil {
		return false, err
	}
	if err := payee.GL.Post(ledger.LedgerReserve, payeeReserve, ledger.LedgerDeposit, to, amount, text); err != nil {
		return false, err
	}
	return true, nil
}

// ensureReserves makes sure the reserve account holds amount, from till cash
// when that suffices and otherwise by borrowing the shortfall. A false
// result means nothing was posted.
func (b *Bank) ensureReserves(amount int64) (bool, error) {
	reserve := b.sole(ledger.LedgerReserve).Balance()
	short := amount - reserve
	if short <= 0 {
		return true, nil
	}
	if b.sole(ledger.LedgerCash).Balance() >= short {
		return true, b.MoveCashToReserves(short)
	}
	loan, err := b.cb.BorrowReserves(b, short)
	if err != nil {
		return false, err
	}
	return loan != nil, nil
}

// Deposits returns total customer deposits.
func (b *Bank) Deposits() int64 { return b.total(ledger.LedgerDeposit) }

// Equity returns capital plus retained earnings.
func (b *Bank) Equity() int64 {
	return b.total(ledger.LedgerCapital) + b.total(ledger.LedgerRetainedEarnings)
}

// RiskWeightedLoans returns the risk-weighted outstanding capital of the
// bank's loan book.
func (b *Bank) RiskWeightedLoans() int64 {
	return b.GL.MustLedger(ledger.LedgerLoan).RiskWeightedTotal()
}

// RequiredReserves returns the reserve the central bank requires against
// current deposits.
func (b *Bank) RequiredReserves() int64 {
	return int64(float64(b.Deposits()) * b.cb.params.ReservePct / 100)
}

// ReserveMax is the largest loan current reserves and cash allow.
func (b *Bank) ReserveMax() int64 {
	liquid := b.total(ledger.LedgerReserve) + b.total(ledger.LedgerCash)
	return int64(100*float64(liquid)/b.cb.params.ReservePct) - b.Deposits()
}

// SpareCapital is the risk-weighted lending still allowed by equity.
func (b *Bank) SpareCapital() int64 {
	return int64(float64(b.Equity())*b.cb.params.CapitalMultiplier()) - b.RiskWeightedLoans()
}

// ReserveConstrained reports whether a loan of amount would breach the
// reserve requirement.
func (b *Bank) ReserveConstrained(amount int64) bool {
	return b.cb.params.ReserveControls && b.ReserveMax() < amount
}

// CapitalConstrained reports whether a loan of amount at risk would push
// risk-weighted loans past the capital limit.
func (b *Bank) CapitalConstrained(amount int64, risk loans.RiskType) bool {
	if !b.cb.params.CapitalControls {
		return false
	}
	limit := int64(float64(b.Equity()) * b.cb.params.CapitalMultiplier())
	return b.RiskWeightedLoans()+int64(float64(amount)*risk.Weight()) > limit
}

// LoanRate is the rate new customer loans are made at.
func (b *Bank) LoanRate() float64 {
	return b.cb.params.BaseRate + b.params.InterestSpread
}

// RecalculateVariableLoans moves the bank's variable-rate loans to the
// current lending rate.
func (b *Bank) RecalculateVariableLoans() error {
	return b.GL.MustLedger(ledger.LedgerLoan).RecalculateVariableLoans(b.LoanRate())
}

func (b *Bank) becomeZombie() {
	if b.zombie {
		return
	}
	b.zombie = true
	b.metrics.BankZombie(b.ID)
	b.logger.Warn("bank equity exhausted", slog.Int64("equity", b.Equity()))
}
