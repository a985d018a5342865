package ledger

import (
	"errors"

	"github.com/google/uuid"
)

// AccountType is the balance-sheet side of a ledger.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
)

// Polarity is the multiplier applied to a credit. Debits apply the inverse.
func (t AccountType) Polarity() int64 {
	switch t {
	case AccountTypeAsset:
		return -1
	case AccountTypeLiability, AccountTypeEquity:
		return 1
	default:
		return 0
	}
}

// DebitPolarity is the sign a debit applies to a balance of this type.
func (t AccountType) DebitPolarity() int64 { return -t.Polarity() }

// CreditPolarity is the sign a credit applies to a balance of this type.
func (t AccountType) CreditPolarity() int64 { return t.Polarity() }

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool { return t.Polarity() != 0 }

// LedgerType governs how a ledger computes its total.
type LedgerType string

const (
	LedgerTypeLoan    LedgerType = "LOAN"
	LedgerTypeCapital LedgerType = "CAPITAL"
	LedgerTypeDeposit LedgerType = "DEPOSIT"
	LedgerTypeCash    LedgerType = "CASH"
)

// Side selects which leg of a loan posting carries the loan instrument.
type Side string

const (
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

// Transaction is an immutable record of one balanced movement. The same
// transaction is appended to the ledger of each leg.
type Transaction struct {
	ID     uuid.UUID
	Step   int64
	Text   string
	Debit  int64
	Credit int64
	Amount int64
}

// Clock supplies the simulation step used to timestamp transactions.
type Clock interface {
	Step() int64
}

// StepClock is a manually advanced Clock.
type StepClock struct {
	step int64
}

// Step returns the current step.
func (c *StepClock) Step() int64 {
	if c == nil {
		return 0
	}
	return c.step
}

// Advance moves the clock forward one step and returns the new step.
func (c *StepClock) Advance() int64 {
	c.step++
	return c.step
}

// Set moves the clock to step.
func (c *StepClock) Set(step int64) { c.step = step }

var (
	// ErrDuplicateLedger indicates a ledger name already in use in a general ledger.
	ErrDuplicateLedger = errors.New("ledger: duplicate ledger name")
	// ErrUnknownLedger indicates a lookup of a ledger that does not exist.
	ErrUnknownLedger = errors.New("ledger: unknown ledger")
	// ErrNilAccount indicates a posting against a missing account.
	ErrNilAccount = errors.New("ledger: nil account in post")
	// ErrDuplicateAccount indicates an account already present in a ledger.
	ErrDuplicateAccount = errors.New("ledger: duplicate account")
	// ErrAccountNotEmpty indicates an account added with a non-zero balance.
	ErrAccountNotEmpty = errors.New("ledger: account added with non-zero balance")
	// ErrLedgerFrozen indicates an account added to a frozen ledger.
	ErrLedgerFrozen = errors.New("ledger: ledger is frozen")
	// ErrNotSingleAccount indicates a sole-account operation on a multi-account ledger.
	ErrNotSingleAccount = errors.New("ledger: ledger is not a single-account ledger")
	// ErrPolarityMismatch indicates a transfer between accounts of different sides.
	ErrPolarityMismatch = errors.New("ledger: transfer between accounts of different polarity")
	// ErrDuplicateLoan indicates a loan id registered twice.
	ErrDuplicateLoan = errors.New("ledger: duplicate loan id")
	// ErrLoanNotInLedger indicates a loan posting against a ledger that does not hold it.
	ErrLoanNotInLedger = errors.New("ledger: loan not held in ledger")
	// ErrUnknownSide indicates a loan posting side other than debit or credit.
	ErrUnknownSide = errors.New("ledger: unrecognised posting side")
	// ErrInvalidDefinition indicates a malformed ledger definition.
	ErrInvalidDefinition = errors.New("ledger: invalid ledger definition")
)
