package bank

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgersim/internal/ledger"
	"github.com/odyssey-erp/ledgersim/internal/loans"
)

// defaultedLoan lends amount to a customer who immediately spends it at the
// same bank, leaving nothing to repay from.
func defaultedLoan(t *testing.T, b *Bank, amount int64) *loans.Loan {
	t.Helper()
	alice := customer(t, b, "alice")
	bob := customer(t, b, "bob")
	decision, err := b.RequestLoan(LoanRequest{Borrower: alice.ID, Amount: amount, Duration: 360, Risk: loans.RiskMortgage})
	require.NoError(t, err)
	require.True(t, decision.Approved())
	ok, err := b.Transfer(alice, bob, amount, "spend")
	require.NoError(t, err)
	require.True(t, ok)
	return decision.Loan
}

func fund(t *testing.T, b *Bank, ledgerName string, amount int64) {
	t.Helper()
	require.NoError(t, b.GL.Post(ledger.LedgerCash, b.sole(ledger.LedgerCash), ledgerName, b.sole(ledgerName), amount, "fund "+ledgerName))
}

func TestWriteOffWaterfallOrder(t *testing.T) {
	s := newSystem(t, DefaultCentralParams())
	params := DefaultParams()
	params.WriteOffLimit = 3
	b := s.bank(t, "alpha", params)
	require.NoError(t, b.SellCapital(100000))
	fund(t, b, ledger.LedgerLossProvision, 1000)
	fund(t, b, ledger.LedgerInterestIncome, 500)
	loan := defaultedLoan(t, b, 12000)

	for i := 1; i <= 2; i++ {
		ok, err := b.PayBankLoan(loan)
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, i, loan.DefaultCount())
		require.False(t, loan.InWriteOff())
	}

	ok, err := b.PayBankLoan(loan)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, loan.InDefault())
	require.Equal(t, int64(12000), loan.WrittenOff())
	require.Equal(t, int64(0), loan.CapitalOutstanding())

	require.Equal(t, int64(0), b.sole(ledger.LedgerLossProvision).Balance())
	require.Equal(t, int64(0), b.sole(ledger.LedgerInterestIncome).Balance())
	require.Equal(t, int64(0), b.sole(ledger.LedgerRetainedEarnings).Balance())
	require.Equal(t, int64(89500), b.sole(ledger.LedgerCapital).Balance())
	require.Empty(t, b.Loans())
	require.False(t, b.Zombie())
	require.Equal(t, int64(12000), s.metrics.writtenOff)

	provisionTxns := b.GL.MustLedger(ledger.LedgerLossProvision).Transactions()
	require.Contains(t, provisionTxns[len(provisionTxns)-1].Text, "loss_provision")
	s.requireAudited(t)
}

func TestWriteOffStopsOnceAbsorbed(t *testing.T) {
	s := newSystem(t, DefaultCentralParams())
	params := DefaultParams()
	params.WriteOffLimit = 1
	b := s.bank(t, "alpha", params)
	require.NoError(t, b.SellCapital(100000))
	fund(t, b, ledger.LedgerLossProvision, 20000)
	fund(t, b, ledger.LedgerInterestIncome, 500)
	loan := defaultedLoan(t, b, 12000)

	_, err := b.PayBankLoan(loan)
	require.NoError(t, err)
	require.Equal(t, int64(8000), b.sole(ledger.LedgerLossProvision).Balance())
	require.Equal(t, int64(500), b.sole(ledger.LedgerInterestIncome).Balance())
	require.Equal(t, int64(100000), b.sole(ledger.LedgerCapital).Balance())
	s.requireAudited(t)
}

func TestWriteOffBeyondEquityMakesZombie(t *testing.T) {
	s := newSystem(t, DefaultCentralParams())
	params := DefaultParams()
	params.WriteOffLimit = 3
	b := s.bank(t, "alpha", params)
	require.NoError(t, b.SellCapital(1000))
	loan := defaultedLoan(t, b, 5000)

	for i := 0; i < 3; i++ {
		_, err := b.PayBankLoan(loan)
		require.NoError(t, err)
	}
	require.True(t, b.Zombie())
	require.Equal(t, []string{"alpha"}, s.metrics.zombies)
	require.Equal(t, int64(0), b.Equity())
	require.Equal(t, int64(4000), loan.CapitalOutstanding())
	require.True(t, loan.InWriteOff())
	require.Equal(t, loans.Payment{}, loan.NextRepayment())
	s.requireAudited(t)

	carol := customer(t, b, "carol")
	decision, err := b.RequestLoan(LoanRequest{Borrower: carol.ID, Amount: 100, Duration: 360})
	require.NoError(t, err)
	require.Equal(t, RefusedZombie, decision.Reason)
}

func TestDefaultedLoanSettledInFull(t *testing.T) {
	s := newSystem(t, DefaultCentralParams())
	b := s.bank(t, "alpha", DefaultParams())
	require.NoError(t, b.SellCapital(100000))
	alice := customer(t, b, "alice")
	decision, err := b.RequestLoan(LoanRequest{Borrower: alice.ID, Amount: 12000, Duration: 360})
	require.NoError(t, err)
	loan := decision.Loan
	loan.PutIntoDefault()

	ok, err := b.PayBankLoan(loan)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0), alice.Balance())
	require.Equal(t, int64(0), b.total(ledger.LedgerLoan))
	require.Equal(t, int64(0), b.sole(ledger.LedgerInterestIncome).Balance())
	require.Empty(t, alice.DebtIDs())
	_, found := b.GL.Arena().Loan(loan.ID)
	require.False(t, found)
	s.requireAudited(t)
}

func TestPayBankLoanRejectsForeignLoan(t *testing.T) {
	s := newSystem(t, DefaultCentralParams())
	alpha := s.bank(t, "alpha", DefaultParams())
	beta := s.bank(t, "beta", DefaultParams())
	require.NoError(t, alpha.SellCapital(100000))
	alice := customer(t, alpha, "alice")
	decision, err := alpha.RequestLoan(LoanRequest{Borrower: alice.ID, Amount: 12000, Duration: 360})
	require.NoError(t, err)

	_, err = beta.PayBankLoan(decision.Loan)
	require.ErrorIs(t, err, ErrNotOwner)
	require.ErrorIs(t, beta.WriteOff(decision.Loan), ErrNotOwner)
}
