package loans

import (
	"math"

	"github.com/odyssey-erp/ledgersim/internal/shared"
)

// stepsPerYear is the simulation's year length used for straight-line interest.
const stepsPerYear = 360

// simpleSchedule repays equal principal with straight-line interest; rounding
// residue goes into the final period.
type simpleSchedule struct{}

func (simpleSchedule) schedule(l *Loan, from int) error {
	n := len(l.capitalSchedule)
	remaining := l.capitalAmount - sum(l.capitalSchedule[:from])
	periods := int64(n - from)
	years := float64(l.Duration) / stepsPerYear
	totalInterest := int64(float64(l.capitalAmount) * l.Rate / 100 * years)
	totalInterest -= sum(l.interestSchedule[:from])
	if totalInterest < 0 {
		totalInterest = 0
	}

	interest := totalInterest / periods
	capital := remaining / periods
	for i := from; i < n-1; i++ {
		l.interestSchedule[i] = interest
		l.capitalSchedule[i] = capital
	}
	l.interestSchedule[n-1] = interest + totalInterest - interest*periods
	l.capitalSchedule[n-1] = capital + remaining - capital*periods

	checkCapitalSum(l)
	return checkPositive(l, from)
}

// compoundSchedule is an annuity: M = P·J / (1 − (1+J)^−n). Each period is
// rounded to the nearest unit and the accumulated drift is corrected in the
// tail so the capital schedule sums exactly to the principal.
type compoundSchedule struct{}

func (compoundSchedule) schedule(l *Loan, from int) error {
	n := len(l.capitalSchedule)
	p := float64(l.capitalAmount - sum(l.capitalSchedule[:from]))
	j := l.Rate * 0.01 / 12.0
	periods := float64(n - from)

	var m float64
	if j == 0 {
		m = p / periods
	} else {
		m = p * j / (1 - math.Pow(1+j, -periods))
	}

	var exactInterest float64
	for i := from; i < n; i++ {
		interest := p * j
		l.interestSchedule[i] = roundHalfUp(interest)
		exactInterest += interest
		l.capitalSchedule[i] = roundHalfUp(m - interest)
		p -= float64(l.capitalSchedule[i])
	}

	correctTail(l.capitalSchedule, from, sum(l.capitalSchedule)-l.capitalAmount)
	interestTarget := sum(l.interestSchedule[:from]) + int64(math.Ceil(exactInterest))
	correctTail(l.interestSchedule, from, sum(l.interestSchedule)-interestTarget)

	checkCapitalSum(l)
	return checkPositive(l, from)
}

// correctTail removes a positive overshoot from the last entries backwards and
// adds an undershoot to the last entry touched as a balloon.
func correctTail(schedule []int64, from int, rounding int64) {
	last := len(schedule) - 1
	for rounding > 0 && last >= from {
		if rounding <= schedule[last] {
			schedule[last] -= rounding
			rounding = 0
			break
		}
		rounding -= schedule[last]
		schedule[last] = 0
		last--
	}
	if last < from {
		last = from
	}
	if rounding < 0 {
		schedule[last] += -rounding
	} else if rounding > 0 {
		shared.Abort("loans.correctTail", "cannot absorb rounding of %d", rounding)
	}
}

func checkCapitalSum(l *Loan) {
	if total := sum(l.capitalSchedule); total != l.capitalAmount {
		shared.Abort("loans.schedule", "capital schedule sums to %d, principal is %d", total, l.capitalAmount)
	}
}

func checkPositive(l *Loan, from int) error {
	for i := from; i < len(l.capitalSchedule); i++ {
		c, in := l.capitalSchedule[i], l.interestSchedule[i]
		if c < 0 || in < 0 || c+in <= 0 {
			return ErrDegenerateSchedule
		}
	}
	return nil
}

// roundHalfUp rounds through float32 to the nearest integer, halves upward.
func roundHalfUp(v float64) int64 {
	return int64(math.Floor(float64(float32(v)) + 0.5))
}

func sum(values []int64) int64 {
	var total int64
	for _, v := range values {
		total += v
	}
	return total
}
