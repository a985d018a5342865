package loans

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func payAll(t *testing.T, l *Loan) {
	t.Helper()
	for i := 0; i < l.Periods(); i++ {
		p := l.NextRepayment()
		if l.NegAm() {
			l.AccrueGrowth(l.PrincipalIncrease())
			l.RecogniseGrowth(l.NegAmDecrease(p[Capital]))
		}
		require.NoError(t, l.MakePayment(p))
	}
}

func TestCompoundScheduleSumsToPrincipal(t *testing.T) {
	l, err := New(KindCompound, Terms{ID: 1, Amount: 120000, Rate: 6, Duration: 360})
	require.NoError(t, err)
	require.Equal(t, 12, l.Periods())

	capital := l.CapitalSchedule()
	interest := l.InterestSchedule()
	require.Equal(t, int64(120000), sum(capital))
	require.Equal(t, int64(600), interest[0])
	require.Equal(t, int64(9728), capital[0])
	require.Equal(t, int64(120000)-sum(capital[:11]), capital[11])

	payAll(t, l)
	require.Equal(t, int64(0), l.CapitalOutstanding())
	require.True(t, l.Repaid())
	require.Equal(t, int64(120000), l.CapitalPaid())
	require.Equal(t, sum(interest), l.OwnerIncome())
}

func TestCompoundZeroRate(t *testing.T) {
	l, err := New(KindCompound, Terms{Amount: 1200, Rate: 0, Duration: 360})
	require.NoError(t, err)
	require.Equal(t, int64(1200), sum(l.CapitalSchedule()))
	require.Equal(t, int64(0), sum(l.InterestSchedule()))
}

func TestSimpleScheduleStraightLine(t *testing.T) {
	l, err := New(KindSimple, Terms{Amount: 12000, Rate: 10, Duration: 360})
	require.NoError(t, err)
	for i, c := range l.CapitalSchedule() {
		require.Equal(t, int64(1000), c, "period %d", i)
	}
	for _, in := range l.InterestSchedule() {
		require.Equal(t, int64(100), in)
	}
	payAll(t, l)
	require.True(t, l.Repaid())
}

func TestSimpleScheduleResidueInLastPeriod(t *testing.T) {
	l, err := New(KindSimple, Terms{Amount: 1000, Rate: 0, Duration: 90})
	require.NoError(t, err)
	require.Equal(t, []int64{333, 333, 334}, l.CapitalSchedule())
}

func TestZeroPeriodsRejected(t *testing.T) {
	_, err := New(KindCompound, Terms{Amount: 1000, Rate: 5, Duration: 29})
	require.ErrorIs(t, err, ErrNoPayments)

	_, err = New(KindInterbank, Terms{Amount: 1000, Rate: 5, Duration: 0})
	require.ErrorIs(t, err, ErrNoPayments)
}

func TestDegenerateScheduleRejected(t *testing.T) {
	_, err := New(KindCompound, Terms{Amount: 5, Rate: 1, Duration: 360})
	require.ErrorIs(t, err, ErrDegenerateSchedule)
}

func TestInvalidAmountRejected(t *testing.T) {
	_, err := New(KindSimple, Terms{Amount: 0, Rate: 5, Duration: 360})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestWriteOffBeyondOutstandingRejected(t *testing.T) {
	l, err := New(KindCompound, Terms{Amount: 120000, Rate: 6, Duration: 360})
	require.NoError(t, err)

	_, err = l.WriteOff(120001)
	require.ErrorIs(t, err, ErrWriteOffExceedsOutstanding)

	done, err := l.WriteOff(20000)
	require.NoError(t, err)
	require.False(t, done)
	require.True(t, l.InWriteOff())
	require.Equal(t, int64(100000), l.CapitalOutstanding())
	require.True(t, l.NextRepayment().IsZero())

	done, err = l.WriteOff(100000)
	require.NoError(t, err)
	require.True(t, done)
}

func TestMakePaymentAcceptsOnlyScheduledOrCapitalOnly(t *testing.T) {
	l, err := New(KindCompound, Terms{Amount: 120000, Rate: 6, Duration: 360})
	require.NoError(t, err)

	next := l.NextRepayment()
	err = l.MakePayment(Payment{next[Interest] - 1, next[Capital]})
	require.ErrorIs(t, err, ErrIrregularPayment)
	require.Equal(t, 0, l.PayIndex())

	require.NoError(t, l.MakePayment(Payment{0, 5000}))
	require.Equal(t, int64(115000), l.CapitalOutstanding())
	require.Equal(t, 0, l.PayIndex())

	require.ErrorIs(t, l.MakePayment(Payment{0, 115001}), ErrOverpayment)
	require.NoError(t, l.MakePayment(Payment{0, 115000}))
	require.True(t, l.Repaid())
}

func TestDefaultCounters(t *testing.T) {
	l, err := New(KindCompound, Terms{Amount: 120000, Rate: 6, Duration: 360})
	require.NoError(t, err)

	require.False(t, l.IncDefault(3))
	require.False(t, l.IncDefault(3))
	require.False(t, l.InDefault())
	require.True(t, l.IncDefault(3))
	require.True(t, l.InDefault())

	require.NoError(t, l.MakePayment(l.NextRepayment()))
	require.Equal(t, 0, l.DefaultCount())
	require.Equal(t, 3, l.TotalDefaults())
}

func TestPutIntoDefault(t *testing.T) {
	l, err := New(KindSimple, Terms{Amount: 12000, Rate: 10, Duration: 360})
	require.NoError(t, err)
	l.PutIntoDefault()
	require.True(t, l.InDefault())
	require.Equal(t, DefaultLimit, l.DefaultCount())
	require.True(t, l.InstallmentDue(1))
}

func TestInstallmentDue(t *testing.T) {
	l, err := New(KindCompound, Terms{Amount: 120000, Rate: 6, Duration: 360, Start: 10})
	require.NoError(t, err)

	require.False(t, l.InstallmentDue(10))
	require.False(t, l.InstallmentDue(39))
	require.True(t, l.InstallmentDue(40))

	l.IncDefault(6)
	require.True(t, l.InstallmentDue(41))
}

func TestVariableRateRegeneratesRemainingSchedule(t *testing.T) {
	l, err := New(KindVariable, Terms{Amount: 120000, Rate: 6, Duration: 360})
	require.NoError(t, err)
	before := l.InterestSchedule()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.MakePayment(l.NextRepayment()))
	}
	require.NoError(t, l.SetRate(12))
	after := l.InterestSchedule()

	require.Equal(t, before[:3], after[:3])
	require.Greater(t, after[3], before[3])
	require.Equal(t, int64(120000), sum(l.CapitalSchedule()))

	for l.PayIndex() < l.Periods() {
		require.NoError(t, l.MakePayment(l.NextRepayment()))
	}
	require.True(t, l.Repaid())
}

func TestSetRateOnFixedLoan(t *testing.T) {
	l, err := New(KindCompound, Terms{Amount: 120000, Rate: 6, Duration: 360})
	require.NoError(t, err)
	require.ErrorIs(t, l.SetRate(7), ErrNotVariable)
}

func TestIndexedWithoutInflationAmortizes(t *testing.T) {
	l, err := NewIndexed(Terms{Amount: 100000, Rate: 5, Duration: 720}, FixedCPI(0))
	require.NoError(t, err)
	require.Equal(t, 24, l.Periods())

	payAll(t, l)
	require.Equal(t, int64(0), l.CapitalOutstanding())
	require.Equal(t, int64(0), l.GrowthAccrued())
	require.NotPanics(t, l.CheckRemovable)
}

func TestIndexedGrowthIsRecognisedByMaturity(t *testing.T) {
	l, err := NewIndexed(Terms{Amount: 100000, Rate: 5, Duration: 720}, FixedCPI(0.05))
	require.NoError(t, err)

	payAll(t, l)
	require.Equal(t, int64(0), l.CapitalOutstanding())
	require.Positive(t, l.GrowthAccrued())
	require.Equal(t, int64(0), l.UnrecognisedGrowth())
	require.Greater(t, l.CapitalPaid(), int64(100000))
	require.NotPanics(t, l.CheckRemovable)
}

func TestIndexedRejectsZeroRate(t *testing.T) {
	_, err := NewIndexed(Terms{Amount: 100000, Rate: 0, Duration: 720}, nil)
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestInterbankDefaultsToInterbankRisk(t *testing.T) {
	l, err := New(KindInterbank, Terms{Amount: 1200, Rate: 1, Duration: 3, Risk: RiskUnweighted})
	require.NoError(t, err)
	require.Equal(t, RiskInterbank, l.Risk)
	require.Equal(t, 3, l.Periods())
	require.Equal(t, int64(1200), sum(l.CapitalSchedule()))
}

func TestRiskWeights(t *testing.T) {
	require.Equal(t, 0.25, RiskConstruction.Weight())
	require.Equal(t, 0.5, RiskMortgage.Weight())
	require.Equal(t, 1.0, RiskUnweighted.Weight())
	require.Equal(t, RiskMortgage, ParseRiskType("mortgage"))
	require.Equal(t, int64(1200), MinLoan(1))
}

func TestRepaidAbortsWhenScheduleEndsWithCapitalOutstanding(t *testing.T) {
	l, err := New(KindCompound, Terms{Amount: 120000, Rate: 6, Duration: 360})
	require.NoError(t, err)
	l.payIndex = l.Periods()
	require.Panics(t, func() { l.Repaid() })
}

func TestCapitalOnlyPaymentShortensSchedule(t *testing.T) {
	l, err := New(KindCompound, Terms{Amount: 120000, Rate: 6, Duration: 360})
	require.NoError(t, err)
	scheduled := l.CapitalSchedule()

	require.NoError(t, l.MakePayment(Payment{0, 5000}))
	for i := 0; i < l.Periods(); i++ {
		p := l.NextRepayment()
		if i == l.Periods()-1 {
			require.Less(t, p[Capital], scheduled[i])
			err := l.MakePayment(Payment{p[Interest], scheduled[i]})
			require.ErrorIs(t, err, ErrIrregularPayment)
		}
		require.NoError(t, l.MakePayment(p), "period %d", i)
		require.GreaterOrEqual(t, l.CapitalOutstanding(), int64(0))
	}

	require.Equal(t, int64(0), l.CapitalOutstanding())
	require.Equal(t, int64(120000), l.CapitalPaid())
	require.NotPanics(t, func() { require.True(t, l.Repaid()) })
	require.ErrorIs(t, l.MakePayment(Payment{0, 1}), ErrOverpayment)
}

func TestSovereignLoan(t *testing.T) {
	l, err := New(KindSovereign, Terms{Amount: 12000, Rate: 3, Duration: 12, Start: 5})
	require.NoError(t, err)
	require.Equal(t, SovereignFrequency, l.Frequency)
	require.Equal(t, 12, l.Periods())
	require.Equal(t, RiskGovernment, l.Risk)
	require.Equal(t, int64(12000), l.RiskWeighted())
	require.Equal(t, int64(12000), sum(l.CapitalSchedule()))
	require.False(t, l.InstallmentDue(5))
	require.True(t, l.InstallmentDue(6))
	require.True(t, l.InstallmentDue(7))

	payAll(t, l)
	require.Equal(t, int64(0), l.CapitalOutstanding())
	require.True(t, l.Repaid())
	require.NotPanics(t, l.CheckRemovable)

	weighted, err := New(KindSovereign, Terms{Amount: 12000, Rate: 3, Duration: 12, Risk: RiskMortgage})
	require.NoError(t, err)
	require.Equal(t, RiskMortgage, weighted.Risk)
}
