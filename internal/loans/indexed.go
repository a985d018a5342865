package loans

import "math"

// daysOfInterest is the fraction of a year covered by one indexed period.
const daysOfInterest = 30.0 / 360.0

// indexedSchedule implements an inflation-indexed annuity with negative
// amortization. The annuity factor table is fixed at origination; the
// principal is re-indexed by CPI every period and the payment re-derived.
// Growth in principal is tracked separately from true repayment.
type indexedSchedule struct {
	cpi       CPISource
	af        []float64
	ii        []float64
	principal []float64
	excess    []float64
	increase  []int64
}

func (s *indexedSchedule) schedule(l *Loan, from int) error {
	n := len(l.capitalSchedule)
	s.af = make([]float64, n)
	s.ii = make([]float64, n)
	s.principal = make([]float64, n)
	s.excess = make([]float64, n)
	s.increase = make([]int64, n)

	r := daysOfInterest * l.Rate * 0.01
	for i := 0; i < n; i++ {
		s.af[i] = 1/r - 1/(r*math.Pow(1+r, float64(n-i)))
	}

	s.ii[0] = 100
	s.principal[0] = float64(l.capitalAmount)
	payment := s.principal[0] / s.af[0]
	interest := s.principal[0] * l.Rate / 100.0 * daysOfInterest
	l.capitalSchedule[0] = int64(payment - interest)
	l.interestSchedule[0] = int64(interest)
	if l.capitalSchedule[0] < 0 || l.capitalSchedule[0]+l.interestSchedule[0] <= 0 {
		return ErrDegenerateSchedule
	}
	return nil
}

func (s *indexedSchedule) recalculate(l *Loan) {
	k := l.payIndex
	cpi := s.cpi.CPI()
	if cpi < 0 {
		cpi = 0
	}
	monthly := math.Pow(1.0+cpi, 1.0/12.0) - 1

	if k == 0 {
		s.ii[0] = 100 + 100*monthly
		s.principal[0] = float64(l.capitalAmount) * s.ii[0] / 100
		s.excess[0] = float64(l.capitalAmount) * (s.ii[0]/100 - 1)
	} else {
		s.ii[k] = s.ii[k-1] + s.ii[k-1]*monthly
		base := s.principal[k-1] - float64(l.capitalSchedule[k-1])
		s.principal[k] = base * s.ii[k] / s.ii[k-1]
		s.excess[k] = base * (s.ii[k]/s.ii[k-1] - 1)
	}

	payment := s.principal[k] / s.af[k]
	interest := s.principal[k] * l.Rate / 100.0 * daysOfInterest
	l.capitalSchedule[k] = int64(payment - interest)
	l.interestSchedule[k] = int64(interest)
	s.increase[k] = int64(s.excess[k])

	if k == len(l.capitalSchedule)-1 {
		// Final period settles exactly what is owed.
		owed := l.capitalAmount + l.negAmCapital - l.capitalPaid - l.capitalWrittenOff
		s.increase[k] = 0
		if l.capitalSchedule[k] > owed {
			s.increase[k] = l.capitalSchedule[k] - owed
		} else {
			l.capitalSchedule[k] = owed
		}
	}
}

// PrincipalIncrease returns the principal growth accrued for the current
// period of an indexed loan.
func (l *Loan) PrincipalIncrease() int64 {
	s, ok := l.sched.(*indexedSchedule)
	if !ok || l.payIndex >= len(s.increase) {
		return 0
	}
	return s.increase[l.payIndex]
}

// AccrueGrowth adds principal growth to the loan.
func (l *Loan) AccrueGrowth(amount int64) {
	l.negAmCapital += amount
}

// RecogniseGrowth marks principal growth as recognised income.
func (l *Loan) RecogniseGrowth(amount int64) {
	l.negAmRecognised += amount
}

// UnrecognisedGrowth returns accrued growth not yet recognised as income.
func (l *Loan) UnrecognisedGrowth() int64 {
	return l.negAmCapital - l.negAmRecognised
}

// GrowthAccrued returns all principal growth accrued to date.
func (l *Loan) GrowthAccrued() int64 { return l.negAmCapital }

// NegAmDecrease returns how much of a capital payment repays accrued growth.
// Growth is repaid before original capital, so while any growth is
// unrecognised the payment goes to it first.
func (l *Loan) NegAmDecrease(capitalPayment int64) int64 {
	if !l.NegAm() || capitalPayment <= 0 {
		return 0
	}
	if unrecognised := l.UnrecognisedGrowth(); capitalPayment > unrecognised {
		return unrecognised
	}
	return capitalPayment
}

// PrincipalIncreasing reports whether the indexed principal grew this period.
func (l *Loan) PrincipalIncreasing() bool {
	s, ok := l.sched.(*indexedSchedule)
	if !ok || l.payIndex == 0 || l.payIndex >= len(s.principal) {
		return false
	}
	return s.principal[l.payIndex]-s.principal[l.payIndex-1] > 0
}
