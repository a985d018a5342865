package bank

import (
	"errors"

	"github.com/odyssey-erp/ledgersim/internal/loans"
)

// Params holds the lending parameters of a commercial bank.
type Params struct {
	WriteOffLimit    int     `envconfig:"BANK_WRITE_OFF_LIMIT" default:"6"`
	LossProvisionPct float64 `envconfig:"BANK_LOSS_PROVISION_PCT" default:"0.01"`
	MinimumLoan      int64   `envconfig:"BANK_MINIMUM_LOAN" default:"0"`
	InterestSpread   float64 `envconfig:"BANK_INTEREST_SPREAD" default:"2"`
	RetainIncome     bool    `envconfig:"BANK_RETAIN_INCOME" default:"false"`
}

// CentralParams holds the regulatory and monetary parameters of the
// central bank.
type CentralParams struct {
	ReservePct         float64 `envconfig:"CB_RESERVE_PCT" default:"10"`
	CapitalPct         float64 `envconfig:"CB_CAPITAL_PCT" default:"10"`
	ReserveControls    bool    `envconfig:"CB_RESERVE_CONTROLS" default:"true"`
	CapitalControls    bool    `envconfig:"CB_CAPITAL_CONTROLS" default:"true"`
	BaseRate           float64 `envconfig:"CB_BASE_RATE" default:"3"`
	InterbankRate      float64 `envconfig:"CB_INTERBANK_RATE" default:"1"`
	InterbankDuration  int     `envconfig:"CB_INTERBANK_DURATION" default:"3"`
	CPI                float64 `envconfig:"CB_CPI" default:"0"`
	LenderOfLastResort bool    `envconfig:"CB_LENDER_OF_LAST_RESORT" default:"false"`
}

// DefaultParams returns the commercial bank defaults.
func DefaultParams() Params {
	return Params{
		WriteOffLimit:    6,
		LossProvisionPct: 0.01,
		InterestSpread:   2,
	}
}

// DefaultCentralParams returns the central bank defaults.
func DefaultCentralParams() CentralParams {
	return CentralParams{
		ReservePct:        10,
		CapitalPct:        10,
		ReserveControls:   true,
		CapitalControls:   true,
		BaseRate:          3,
		InterbankRate:     1,
		InterbankDuration: 3,
	}
}

// CapitalMultiplier is the multiple of equity that risk-weighted loans may
// reach.
func (p CentralParams) CapitalMultiplier() float64 {
	if p.CapitalPct <= 0 {
		return loans.DefaultBaselMultiplier
	}
	return 100 / p.CapitalPct
}

// Validate rejects parameters the gates cannot work with.
func (p CentralParams) Validate() error {
	if p.ReservePct <= 0 {
		return ErrInvalidReservePct
	}
	if p.InterbankDuration <= 0 {
		return ErrInvalidInterbankTerms
	}
	return nil
}

// Validate rejects parameters the waterfall cannot work with.
func (p Params) Validate() error {
	if p.WriteOffLimit <= 0 {
		return ErrInvalidWriteOffLimit
	}
	if p.LossProvisionPct < 0 || p.LossProvisionPct > 1 {
		return ErrInvalidProvision
	}
	return nil
}

// Refusal names the business rule that refused a loan request.
type Refusal string

const (
	RefusedAmount    Refusal = "amount"
	RefusedMinimum   Refusal = "minimum"
	RefusedZombie    Refusal = "zombie"
	RefusedReserve   Refusal = "reserve"
	RefusedCapital   Refusal = "capital"
	RefusedLiquidity Refusal = "liquidity"
)

// Recorder receives banking events for metrics.
type Recorder interface {
	LoanDecision(bank string, refusal Refusal)
	LoanWrittenOff(bank string, amount int64)
	BankZombie(bank string)
	InterbankLoan(lender string, amount int64)
}

type noopRecorder struct{}

func (noopRecorder) LoanDecision(string, Refusal) {}
func (noopRecorder) LoanWrittenOff(string, int64) {}
func (noopRecorder) BankZombie(string) {}
func (noopRecorder) InterbankLoan(string, int64) {}

var (
	// ErrUnknownBank indicates a lookup of an unregistered bank.
	ErrUnknownBank = errors.New("bank: unknown bank")
	// ErrDuplicateBank indicates a bank registered twice.
	ErrDuplicateBank = errors.New("bank: duplicate bank")
	// ErrUnknownAccount indicates an account id not present in the arena.
	ErrUnknownAccount = errors.New("bank: unknown account")
	// ErrNotCustomer indicates an account that is not a deposit account.
	ErrNotCustomer = errors.New("bank: account is not a customer deposit")
	// ErrNotOwner indicates a loan serviced by a bank that does not own it.
	ErrNotOwner = errors.New("bank: loan not owned by bank")
	// ErrInvalidAmount indicates a non-positive monetary amount.
	ErrInvalidAmount = errors.New("bank: amount must be positive")
	// ErrInvalidReservePct indicates a non-positive reserve requirement.
	ErrInvalidReservePct = errors.New("bank: reserve percentage must be positive")
	// ErrInvalidInterbankTerms indicates unusable interbank loan terms.
	ErrInvalidInterbankTerms = errors.New("bank: interbank duration must be positive")
	// ErrInvalidWriteOffLimit indicates a non-positive write-off limit.
	ErrInvalidWriteOffLimit = errors.New("bank: write-off limit must be positive")
	// ErrInvalidProvision indicates a loss provision outside [0, 1].
	ErrInvalidProvision = errors.New("bank: loss provision must be within [0, 1]")
)
