package ledger

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgersim/internal/loans"
	"github.com/odyssey-erp/ledgersim/internal/shared"
)

type fixture struct {
	arena *Arena
	clock *StepClock
	gl    *GeneralLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	arena := NewArena()
	clock := &StepClock{}
	gl := NewGeneralLedger("bank", arena, clock)
	require.NoError(t, gl.Setup(BankDefinitions(), "bank"))
	return &fixture{arena: arena, clock: clock, gl: gl}
}

func (f *fixture) sole(name string) *Account {
	return f.gl.MustLedger(name).MustAccount()
}

func (f *fixture) customer(t *testing.T, name string, cash int64) *Account {
	t.Helper()
	acct, err := f.gl.CreateAccount(LedgerDeposit, name, name)
	require.NoError(t, err)
	if cash > 0 {
		require.NoError(t, f.gl.Post(LedgerCash, f.sole(LedgerCash), LedgerDeposit, acct, cash, "deposit"))
	}
	return acct
}

func requireBalanced(t *testing.T, gl *GeneralLedger) {
	t.Helper()
	assets, liabilities, equities := gl.Totals()
	require.Equal(t, assets, liabilities+equities)
	require.NotPanics(t, func() { gl.Audit(nil) })
}

func requireAbort(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected abort")
		_, ok := shared.AsInvariant(r)
		require.True(t, ok, "expected invariant error, got %v", r)
	}()
	fn()
}

func TestPostKeepsBalanceSheetBalanced(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.gl.Post(LedgerCash, f.sole(LedgerCash), LedgerCapital, f.sole(LedgerCapital), 1000, "sell capital"))
	requireBalanced(t, f.gl)

	alice := f.customer(t, "alice", 500)
	requireBalanced(t, f.gl)

	bob := f.customer(t, "bob", 0)
	require.NoError(t, f.gl.Transfer(alice, bob, 200, "rent"))
	requireBalanced(t, f.gl)

	require.Equal(t, int64(300), alice.Balance())
	require.Equal(t, int64(200), bob.Balance())
	require.Equal(t, int64(1500), f.sole(LedgerCash).Balance())

	assets, liabilities, equities := f.gl.Totals()
	require.Equal(t, int64(1500), assets)
	require.Equal(t, int64(500), liabilities)
	require.Equal(t, int64(1000), equities)
}

func TestPostingIsNotIdempotent(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 0)

	for i := 0; i < 2; i++ {
		require.NoError(t, f.gl.Post(LedgerCash, f.sole(LedgerCash), LedgerDeposit, alice, 100, "deposit"))
	}
	require.Equal(t, int64(200), alice.Balance())

	txns := f.gl.MustLedger(LedgerDeposit).Transactions()
	require.Len(t, txns, 2)
	require.NotEqual(t, txns[0].ID, txns[1].ID)
}

func TestPostAbortsOnOverdraftWithoutPartialMutation(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 500)
	cash := f.sole(LedgerCash)

	requireAbort(t, func() {
		_ = f.gl.Post(LedgerDeposit, alice, LedgerCash, cash, 600, "withdraw")
	})
	require.Equal(t, int64(500), alice.Balance())
	require.Equal(t, int64(500), cash.Balance())
	require.Len(t, f.gl.MustLedger(LedgerCash).Transactions(), 1)
	requireBalanced(t, f.gl)

	require.ErrorIs(t, f.gl.CanPost(LedgerDeposit, alice, LedgerCash, cash, 600), ErrInsufficientBalance)
	require.NoError(t, f.gl.CanPost(LedgerDeposit, alice, LedgerCash, cash, 500))
}

func TestPostAbortsOnNegativeAmount(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 0)
	requireAbort(t, func() {
		_ = f.gl.Post(LedgerCash, f.sole(LedgerCash), LedgerDeposit, alice, -1, "bad")
	})
}

func TestConfigurationErrors(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 0)

	err := f.gl.Post("missing", alice, LedgerDeposit, alice, 1, "x")
	require.ErrorIs(t, err, ErrUnknownLedger)

	err = f.gl.Post(LedgerCash, nil, LedgerDeposit, alice, 1, "x")
	require.ErrorIs(t, err, ErrNilAccount)

	_, err = f.gl.CreateLedger(Definition{Name: LedgerCash, Type: AccountTypeAsset, Kind: LedgerTypeCash})
	require.ErrorIs(t, err, ErrDuplicateLedger)

	_, err = f.gl.CreateLedger(Definition{Name: "odd", Type: "SIDEWAYS", Kind: LedgerTypeCash})
	require.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = f.gl.CreateAccount(LedgerCash, "second till", "bank")
	require.ErrorIs(t, err, ErrLedgerFrozen)

	deposit := f.gl.MustLedger(LedgerDeposit)
	require.ErrorIs(t, deposit.AddAccount(alice), ErrDuplicateAccount)

	_, err = deposit.Account()
	require.ErrorIs(t, err, ErrNotSingleAccount)

	stray := f.arena.NewAccount("stray", "nobody", "bank")
	stray.apply(10)
	require.ErrorIs(t, deposit.AddAccount(stray), ErrAccountNotEmpty)

	other := f.arena.NewAccount("other", "nobody", "bank")
	require.NoError(t, deposit.AddAccount(other))
	require.ErrorIs(t, f.gl.MustLedger(LedgerReserve).AddAccount(other), ErrLedgerFrozen)
}

func TestTransferRejectsPolarityMismatch(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 100)
	err := f.gl.Transfer(f.sole(LedgerCash), alice, 10, "mixed")
	require.ErrorIs(t, err, ErrPolarityMismatch)

	// Both asset ledgers: cash to reserve.
	require.NoError(t, f.gl.Transfer(f.sole(LedgerCash), f.sole(LedgerReserve), 40, "to reserve"))
	require.Equal(t, int64(60), f.sole(LedgerCash).Balance())
	require.Equal(t, int64(40), f.sole(LedgerReserve).Balance())
	requireBalanced(t, f.gl)
}

func newBankLoan(t *testing.T, f *fixture, borrower *Account, amount int64) *loans.Loan {
	t.Helper()
	loan, err := loans.New(loans.KindCompound, loans.Terms{
		ID:       f.arena.NextLoanID(),
		Amount:   amount,
		Rate:     6,
		Duration: 360,
		Owner:    f.sole(LedgerInterestIncome).ID,
		Borrower: borrower.ID,
		Risk:     loans.RiskMortgage,
	})
	require.NoError(t, err)
	f.arena.AttachDebt(borrower, loan)
	require.NoError(t, f.gl.PostLoan(LedgerLoan, f.sole(LedgerLoan), LedgerDeposit, borrower, loan, SideDebit, "loan"))
	return loan
}

func TestLoanOriginationAndRepayment(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 5000)
	loan := newBankLoan(t, f, alice, 12000)

	require.Equal(t, int64(17000), alice.Balance())
	require.Equal(t, int64(12000), f.gl.MustLedger(LedgerLoan).Total())
	require.Equal(t, int64(6000), f.gl.MustLedger(LedgerLoan).RiskWeightedTotal())
	require.True(t, f.gl.MustLedger(LedgerLoan).ContainsLoan(loan))
	require.Equal(t, []int64{loan.ID}, alice.DebtIDs())
	requireBalanced(t, f.gl)

	for !loan.Repaid() {
		f.clock.Advance()
		p := loan.NextRepayment()
		require.NoError(t, f.gl.PostLoanPayment(LedgerDeposit, alice, LedgerLoan, loan, p, "instalment"))
		requireBalanced(t, f.gl)
	}
	interest := loan.InterestPaid()
	require.Positive(t, interest)
	require.Equal(t, interest, f.sole(LedgerInterestIncome).Balance())
	require.Equal(t, int64(5000)-interest, alice.Balance())

	f.arena.RemoveLoan(loan.ID)
	require.Empty(t, alice.DebtIDs())
	require.Empty(t, f.sole(LedgerLoan).ClaimIDs())
	require.Equal(t, int64(0), f.gl.MustLedger(LedgerLoan).Total())
	requireBalanced(t, f.gl)
}

func TestLoanPaymentRejectsUnknownLoan(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 100)
	loan, err := loans.New(loans.KindSimple, loans.Terms{ID: 99, Amount: 1200, Rate: 5, Duration: 360})
	require.NoError(t, err)
	err = f.gl.PostLoanPayment(LedgerDeposit, alice, LedgerLoan, loan, loan.NextRepayment(), "x")
	require.ErrorIs(t, err, ErrLoanNotInLedger)
}

func TestWriteOffAgainstLossProvision(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 0)
	require.NoError(t, f.gl.Post(LedgerCash, f.sole(LedgerCash), LedgerLossProvision, f.sole(LedgerLossProvision), 20000, "provision"))
	loan := newBankLoan(t, f, alice, 12000)

	require.NoError(t, f.gl.PostWriteOff(LedgerLoan, loan, LedgerLossProvision, f.sole(LedgerLossProvision), 0, "noop"))
	require.Len(t, f.gl.MustLedger(LedgerLossProvision).Transactions(), 1)

	require.NoError(t, f.gl.PostWriteOff(LedgerLoan, loan, LedgerLossProvision, f.sole(LedgerLossProvision), 2000, "provision"))
	require.Equal(t, int64(10000), loan.CapitalOutstanding())
	require.True(t, loan.InWriteOff())
	requireBalanced(t, f.gl)

	require.NoError(t, f.gl.PostWriteOff(LedgerLoan, loan, LedgerLossProvision, f.sole(LedgerLossProvision), 10000, "provision"))
	require.Equal(t, int64(8000), f.sole(LedgerLossProvision).Balance())
	require.Equal(t, int64(0), f.gl.MustLedger(LedgerLoan).Total())
	require.Empty(t, alice.DebtIDs())
	_, ok := f.arena.Loan(loan.ID)
	require.False(t, ok)
	requireBalanced(t, f.gl)
}

func TestWriteOffBeyondOutstandingAborts(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 0)
	require.NoError(t, f.gl.Post(LedgerCash, f.sole(LedgerCash), LedgerLossProvision, f.sole(LedgerLossProvision), 50000, "provision"))
	loan := newBankLoan(t, f, alice, 12000)

	requireAbort(t, func() {
		_ = f.gl.PostWriteOff(LedgerLoan, loan, LedgerLossProvision, f.sole(LedgerLossProvision), 12001, "too much")
	})
	require.Equal(t, int64(50000), f.sole(LedgerLossProvision).Balance())
	require.Equal(t, int64(12000), loan.CapitalOutstanding())
}

func TestNegativeAmortizationPostingsRecogniseAllGrowth(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 5000)
	loan, err := loans.NewIndexed(loans.Terms{
		ID:       f.arena.NextLoanID(),
		Amount:   12000,
		Rate:     6,
		Duration: 360,
		Owner:    f.sole(LedgerInterestIncome).ID,
		Borrower: alice.ID,
	}, loans.FixedCPI(0.05))
	require.NoError(t, err)
	f.arena.AttachDebt(alice, loan)
	require.NoError(t, f.gl.PostLoan(LedgerLoan, f.sole(LedgerLoan), LedgerDeposit, alice, loan, SideDebit, "indexed"))

	for i := 0; i < loan.Periods(); i++ {
		p := loan.NextRepayment()
		require.NoError(t, f.gl.PostNegAm(LedgerDeposit, alice, LedgerLoan, loan, p, "indexed"))
		requireBalanced(t, f.gl)
	}
	require.Equal(t, int64(0), loan.CapitalOutstanding())
	require.Equal(t, int64(0), loan.UnrecognisedGrowth())
	require.Positive(t, loan.GrowthAccrued())
	require.Equal(t, int64(0), f.sole(LedgerNonCash).Balance())
	require.NotPanics(t, func() { f.arena.RemoveLoan(loan.ID) })
	requireBalanced(t, f.gl)
}

func TestPostNegAmRejectsFixedLoans(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 100)
	loan := newBankLoan(t, f, alice, 1200)
	requireAbort(t, func() {
		_ = f.gl.PostNegAm(LedgerDeposit, alice, LedgerLoan, loan, loan.NextRepayment(), "x")
	})
}

func TestAuditAbortsWhenAccountSharedByLedgers(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 0)
	nonCash := f.gl.MustLedger(LedgerNonCash)
	nonCash.ids = append(nonCash.ids, alice.ID)
	requireAbort(t, func() { f.gl.Audit(nil) })
}

func TestAuditWritesTotals(t *testing.T) {
	f := newFixture(t)
	f.customer(t, "alice", 700)
	var out bytes.Buffer
	report := f.gl.Audit(&out)
	require.Equal(t, int64(700), report.Assets)
	require.Equal(t, int64(700), report.Liabilities)
	require.Len(t, report.Ledgers, len(BankDefinitions()))
	require.Contains(t, out.String(), "bank assets=700 liabilities=700 equities=0")
}

func TestLedgerCSVExport(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 0)
	f.clock.Set(7)
	require.NoError(t, f.gl.Post(LedgerCash, f.sole(LedgerCash), LedgerDeposit, alice, 250, "salary, march"))

	var buf bytes.Buffer
	require.NoError(t, f.gl.MustLedger(LedgerDeposit).WriteCSV(&buf))
	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, CSVHeader, records[0])
	require.Equal(t, []string{"7", "deposit", "1000009", "1000000", "250", "salary, march"}, records[1])

	buf.Reset()
	require.NoError(t, f.gl.WriteCSV(&buf))
	all, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Equal(t, CSVHeader, all[0])
	require.Contains(t, all[1:], records[1])
	for _, row := range all[1:] {
		require.NotEqual(t, CSVHeader, row)
	}
}

func TestRecalculateVariableLoans(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "alice", 0)
	loan, err := loans.New(loans.KindVariable, loans.Terms{
		ID: f.arena.NextLoanID(), Amount: 12000, Rate: 5, Duration: 360,
		Owner: f.sole(LedgerInterestIncome).ID, Borrower: alice.ID,
	})
	require.NoError(t, err)
	f.arena.AttachDebt(alice, loan)
	require.NoError(t, f.gl.PostLoan(LedgerLoan, f.sole(LedgerLoan), LedgerDeposit, alice, loan, SideDebit, "variable"))
	before := loan.InterestSchedule()[0]

	require.NoError(t, f.gl.MustLedger(LedgerLoan).RecalculateVariableLoans(10))
	require.Equal(t, 10.0, loan.Rate)
	require.Greater(t, loan.InterestSchedule()[0], before)
}

func TestTurnoverResets(t *testing.T) {
	f := newFixture(t)
	income := f.gl.MustLedger(LedgerInterestIncome)
	income.CreditSole(40, f.gl.txn("fee", 0, 0, 40))
	require.Equal(t, int64(40), income.Turnover())
	require.Equal(t, int64(0), income.Turnover())
}
