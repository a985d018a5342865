package loans

import (
	"fmt"

	"github.com/odyssey-erp/ledgersim/internal/shared"
)

// Loan is a principal with a repayment schedule and a payment/default state
// machine. Accounts refer to loans by ID; the loan refers to its payee (Owner)
// and payer (Borrower) accounts by ID.
type Loan struct {
	ID         int64
	Kind       Kind
	Risk       RiskType
	Rate       float64
	Duration   int
	Frequency  int
	Start      int64
	Owner      int64
	Borrower   int64
	Collateral string

	originalCapital   int64
	capitalAmount     int64
	negAmCapital      int64
	negAmRecognised   int64
	capitalWrittenOff int64
	capitalPaid       int64
	interestPaid      int64
	ownerIncome       int64

	interestSchedule []int64
	capitalSchedule  []int64
	paidInterest     []int64
	paidCapital      []int64
	payIndex         int

	defaultCount  int
	totalDefaults int
	inDefault     bool
	inWriteOff    bool

	sched scheduler
}

type scheduler interface {
	// schedule (re)computes the schedule from period from onwards.
	schedule(l *Loan, from int) error
}

// recalculator is implemented by schedules that change every period.
type recalculator interface {
	recalculate(l *Loan)
}

// New builds a loan of the given kind. Indexed loans need a CPI source and
// are built with NewIndexed.
func New(kind Kind, t Terms) (*Loan, error) {
	switch kind {
	case KindSimple:
		return build(kind, t, BankFrequency, simpleSchedule{})
	case KindCompound, KindVariable:
		return build(kind, t, BankFrequency, compoundSchedule{})
	case KindInterbank:
		if t.Risk == RiskUnweighted {
			t.Risk = RiskInterbank
		}
		return build(kind, t, InterbankFrequency, compoundSchedule{})
	case KindSovereign:
		if t.Risk == RiskUnweighted {
			t.Risk = RiskGovernment
		}
		return build(kind, t, SovereignFrequency, compoundSchedule{})
	case KindIndexed:
		return NewIndexed(t, FixedCPI(0))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// NewIndexed builds an inflation-indexed negative-amortization loan.
func NewIndexed(t Terms, cpi CPISource) (*Loan, error) {
	if t.Rate <= 0 {
		return nil, ErrInvalidRate
	}
	if cpi == nil {
		cpi = FixedCPI(0)
	}
	return build(KindIndexed, t, BankFrequency, &indexedSchedule{cpi: cpi})
}

func build(kind Kind, t Terms, frequency int, sched scheduler) (*Loan, error) {
	if t.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if t.Rate < 0 {
		return nil, ErrInvalidRate
	}
	if frequency <= 0 || t.Duration/frequency <= 0 {
		return nil, fmt.Errorf("%w: duration %d frequency %d", ErrNoPayments, t.Duration, frequency)
	}
	n := t.Duration / frequency
	l := &Loan{
		ID:               t.ID,
		Kind:             kind,
		Risk:             t.Risk,
		Rate:             t.Rate,
		Duration:         t.Duration,
		Frequency:        frequency,
		Start:            t.Start,
		Owner:            t.Owner,
		Borrower:         t.Borrower,
		originalCapital:  t.Amount,
		capitalAmount:    t.Amount,
		interestSchedule: make([]int64, n),
		capitalSchedule:  make([]int64, n),
		paidInterest:     make([]int64, n),
		paidCapital:      make([]int64, n),
		sched:            sched,
	}
	if err := sched.schedule(l, 0); err != nil {
		return nil, err
	}
	return l, nil
}

// Periods returns the number of scheduled payments.
func (l *Loan) Periods() int { return len(l.capitalSchedule) }

// PayIndex returns the index of the next scheduled payment.
func (l *Loan) PayIndex() int { return l.payIndex }

// Amount returns the original principal.
func (l *Loan) Amount() int64 { return l.originalCapital }

// NegAm reports whether principal may grow between payments.
func (l *Loan) NegAm() bool { return l.Kind == KindIndexed }

// CapitalSchedule returns a copy of the capital schedule.
func (l *Loan) CapitalSchedule() []int64 { return append([]int64(nil), l.capitalSchedule...) }

// InterestSchedule returns a copy of the interest schedule.
func (l *Loan) InterestSchedule() []int64 { return append([]int64(nil), l.interestSchedule...) }

// CapitalPaid returns capital repaid to date.
func (l *Loan) CapitalPaid() int64 { return l.capitalPaid }

// InterestPaid returns interest paid to date.
func (l *Loan) InterestPaid() int64 { return l.interestPaid }

// OwnerIncome returns interest accrued to the owner through scheduled payments.
func (l *Loan) OwnerIncome() int64 { return l.ownerIncome }

// WrittenOff returns capital written off to date.
func (l *Loan) WrittenOff() int64 { return l.capitalWrittenOff }

// InDefault reports whether the total default threshold was reached.
func (l *Loan) InDefault() bool { return l.inDefault }

// InWriteOff reports whether any capital has been written off.
func (l *Loan) InWriteOff() bool { return l.inWriteOff }

// DefaultCount returns the consecutive missed payments.
func (l *Loan) DefaultCount() int { return l.defaultCount }

// TotalDefaults returns all missed payments over the loan's life.
func (l *Loan) TotalDefaults() int { return l.totalDefaults }

// CapitalOutstanding returns original − paid − written off, plus accrued
// principal growth for negative-amortization loans.
func (l *Loan) CapitalOutstanding() int64 {
	if l.NegAm() {
		return l.capitalAmount - l.capitalPaid + l.negAmCapital - l.capitalWrittenOff
	}
	return l.originalCapital - l.capitalPaid - l.capitalWrittenOff
}

// NextRepayment returns the scheduled [interest, capital] pair for the current
// period, or zero once the loan is being written off or the schedule is done.
func (l *Loan) NextRepayment() Payment {
	if l.inWriteOff || l.payIndex >= len(l.capitalSchedule) {
		return Payment{}
	}
	if r, ok := l.sched.(recalculator); ok {
		r.recalculate(l)
	}
	return l.due()
}

// due is the current period's scheduled pair. Outside negative amortization
// the capital is capped at what is still outstanding, which falls below the
// schedule after a capital-only payment.
func (l *Loan) due() Payment {
	p := Payment{l.interestSchedule[l.payIndex], l.capitalSchedule[l.payIndex]}
	if !l.NegAm() {
		p[Capital] = min(p[Capital], max(l.CapitalOutstanding(), 0))
	}
	return p
}

// PaymentDue returns the total scheduled for the current period.
func (l *Loan) PaymentDue() int64 {
	if l.payIndex >= len(l.capitalSchedule) {
		return 0
	}
	return l.due().Total()
}

// InstallmentDue reports whether a payment is expected at step. A loan in
// consecutive default is due every step until it is cured or written off.
func (l *Loan) InstallmentDue(step int64) bool {
	if l.defaultCount != 0 {
		return true
	}
	elapsed := step - l.Start
	return elapsed > 0 && elapsed%int64(l.Frequency) == 0 && !l.Repaid()
}

// MakePayment applies a payment. Only the exact scheduled pair or a
// capital-only payment (collateral liquidation) is accepted.
func (l *Loan) MakePayment(p Payment) error {
	if l.payIndex < len(l.capitalSchedule) && p == l.due() {
		l.ownerIncome += p[Interest]
		l.paidCapital[l.payIndex] = p[Capital]
		l.paidInterest[l.payIndex] = p[Interest]
		l.payIndex++
		l.defaultCount = 0
		l.capitalPaid += p[Capital]
		l.interestPaid += p[Interest]
		return nil
	}
	if p[Interest] == 0 && p[Capital] > 0 {
		if p[Capital] > l.CapitalOutstanding() {
			return ErrOverpayment
		}
		if l.payIndex < len(l.paidCapital) {
			l.paidCapital[l.payIndex] += p[Capital]
		}
		l.capitalPaid += p[Capital]
		return nil
	}
	return fmt.Errorf("%w: got %v want [%d %d]", ErrIrregularPayment, p, l.scheduled(Interest), l.scheduled(Capital))
}

func (l *Loan) scheduled(idx int) int64 {
	if l.payIndex >= len(l.capitalSchedule) {
		return 0
	}
	return l.due()[idx]
}

// Repaid reports whether no capital is outstanding. Reaching the end of the
// schedule with capital still outstanding is an invariant violation.
func (l *Loan) Repaid() bool {
	outstanding := l.CapitalOutstanding()
	if outstanding == 0 {
		return true
	}
	if l.payIndex >= len(l.capitalSchedule) && !l.inWriteOff {
		shared.Abort("loans.Repaid", "loan %d finished schedule with %d outstanding", l.ID, outstanding)
	}
	return false
}

// IncDefault records a missed payment and reports whether the consecutive
// count has reached writeOffLimit.
func (l *Loan) IncDefault(writeOffLimit int) bool {
	l.totalDefaults++
	l.defaultCount++
	if l.totalDefaults >= DefaultLimit {
		l.inDefault = true
	}
	return l.defaultCount >= writeOffLimit
}

// PutIntoDefault forces the loan into default, as decided by the caller.
func (l *Loan) PutIntoDefault() {
	l.defaultCount = DefaultLimit
	l.totalDefaults = DefaultLimit
	l.inDefault = true
}

// WriteOff irreversibly forgives amount of capital and reports whether the
// loan is now fully written off.
func (l *Loan) WriteOff(amount int64) (bool, error) {
	if amount < 0 || amount > l.CapitalOutstanding() {
		return false, fmt.Errorf("%w: %d > %d", ErrWriteOffExceedsOutstanding, amount, l.CapitalOutstanding())
	}
	l.inWriteOff = true
	l.capitalWrittenOff += amount
	return l.CapitalOutstanding() == 0, nil
}

// SetRate changes the rate of a variable loan and regenerates the remaining
// schedule from the current period.
func (l *Loan) SetRate(rate float64) error {
	if l.Kind != KindVariable {
		return ErrNotVariable
	}
	if rate < 0 {
		return ErrInvalidRate
	}
	if l.payIndex >= len(l.capitalSchedule) || rate == l.Rate {
		return nil
	}
	previous := l.Rate
	l.Rate = rate
	if err := l.sched.schedule(l, l.payIndex); err != nil {
		l.Rate = previous
		_ = l.sched.schedule(l, l.payIndex)
		return err
	}
	return nil
}

// CheckRemovable aborts when a loan is detached with capital outstanding or
// with principal growth that was never recognised.
func (l *Loan) CheckRemovable() {
	if out := l.CapitalOutstanding(); out != 0 {
		shared.Abort("loans.Remove", "loan %d removed with %d outstanding", l.ID, out)
	}
	if l.NegAm() && l.negAmCapital != l.negAmRecognised {
		shared.Abort("loans.Remove", "loan %d neg-am mismatch %d != %d", l.ID, l.negAmCapital, l.negAmRecognised)
	}
}

// MinLoan returns the smallest principal whose compound schedule keeps every
// capital repayment above one unit at the given rate.
func MinLoan(rate float64) int64 {
	if rate <= 0 {
		return 1
	}
	return int64(12.0 / (rate * 0.01))
}

func (l *Loan) String() string {
	return fmt.Sprintf("%s loan %d: %d@%.2f%%/%d [%d=>%d]", l.Kind, l.ID, l.originalCapital, l.Rate, l.Duration, l.Borrower, l.Owner)
}
