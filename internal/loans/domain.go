package loans

import "errors"

// Kind tags the loan flavour and selects its schedule strategy.
type Kind string

const (
	KindSimple    Kind = "SIMPLE"
	KindCompound  Kind = "COMPOUND"
	KindVariable  Kind = "VARIABLE"
	KindIndexed   Kind = "INDEXED"
	KindInterbank Kind = "INTERBANK"
	KindSovereign Kind = "SOVEREIGN"
)

// Payment array indices.
const (
	Interest = 0
	Capital  = 1
)

// Payment frequencies in simulation steps.
const (
	BankFrequency      = 30
	InterbankFrequency = 1
	SovereignFrequency = 1
)

// DefaultLimit is the number of missed payments after which a loan is
// flagged as in default.
const DefaultLimit = 3

// Payment is an [interest, capital] pair.
type Payment [2]int64

// Total returns interest plus capital.
func (p Payment) Total() int64 {
	return p[Interest] + p[Capital]
}

// IsZero reports whether nothing is owed.
func (p Payment) IsZero() bool {
	return p[Interest] == 0 && p[Capital] == 0
}

// Terms describes a loan request.
type Terms struct {
	ID       int64
	Amount   int64   `validate:"gt=0"`
	Rate     float64 `validate:"gte=0"`
	Duration int     `validate:"gt=0"`
	Start    int64   `validate:"gte=0"`
	Owner    int64
	Borrower int64
	Risk     RiskType
}

// CPISource publishes the consumer price inflation used by indexed loans.
type CPISource interface {
	CPI() float64
}

// FixedCPI is a CPISource with a constant annual inflation rate.
type FixedCPI float64

func (c FixedCPI) CPI() float64 { return float64(c) }

var (
	// ErrNoPayments indicates duration/frequency yields zero payment periods.
	ErrNoPayments = errors.New("loans: loan has no payment periods")
	// ErrInvalidAmount indicates a non-positive principal.
	ErrInvalidAmount = errors.New("loans: amount must be positive")
	// ErrInvalidRate indicates a rate the schedule cannot be computed for.
	ErrInvalidRate = errors.New("loans: invalid interest rate")
	// ErrDegenerateSchedule indicates a period with a non-positive payment.
	ErrDegenerateSchedule = errors.New("loans: schedule contains a non-positive payment")
	// ErrUnknownKind indicates an unsupported loan kind.
	ErrUnknownKind = errors.New("loans: unknown loan kind")
	// ErrIrregularPayment indicates a payment that is neither the scheduled pair nor capital only.
	ErrIrregularPayment = errors.New("loans: partial or irregular repayment not supported")
	// ErrOverpayment indicates capital paid beyond what is outstanding.
	ErrOverpayment = errors.New("loans: payment exceeds capital outstanding")
	// ErrWriteOffExceedsOutstanding indicates a write-off larger than outstanding capital.
	ErrWriteOffExceedsOutstanding = errors.New("loans: write-off exceeds capital outstanding")
	// ErrNotVariable indicates a rate change on a fixed-rate loan.
	ErrNotVariable = errors.New("loans: loan is not variable rate")
)
