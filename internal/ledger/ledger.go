package ledger

import (
	"fmt"

	"github.com/odyssey-erp/ledgersim/internal/loans"
	"github.com/odyssey-erp/ledgersim/internal/shared"
)

// Ledger is a named, typed collection of accounts with an append-only
// transaction log. Only the ledger mutates its accounts' balances.
type Ledger struct {
	Name string
	Type AccountType
	Kind LedgerType

	arena        *Arena
	ids          []int64
	members      map[int64]struct{}
	transactions []Transaction
	frozen       bool
	turnover     int64
	total        int64
	changed      bool
}

func newLedger(def Definition, arena *Arena) *Ledger {
	return &Ledger{
		Name:    def.Name,
		Type:    def.Type,
		Kind:    def.Kind,
		arena:   arena,
		members: make(map[int64]struct{}),
		changed: true,
	}
}

// AddAccount inserts an empty account into the ledger.
func (l *Ledger) AddAccount(acct *Account) error {
	if acct == nil {
		return ErrNilAccount
	}
	if l.frozen {
		return fmt.Errorf("%w: %s", ErrLedgerFrozen, l.Name)
	}
	if _, ok := l.members[acct.ID]; ok {
		return fmt.Errorf("%w: %d in %s", ErrDuplicateAccount, acct.ID, l.Name)
	}
	if acct.Ledger != "" {
		return fmt.Errorf("%w: %d already in %s", ErrDuplicateAccount, acct.ID, acct.Ledger)
	}
	if acct.balance != 0 {
		return fmt.Errorf("%w: %d has %d", ErrAccountNotEmpty, acct.ID, acct.balance)
	}
	acct.Ledger = l.Name
	l.members[acct.ID] = struct{}{}
	l.ids = append(l.ids, acct.ID)
	l.changed = true
	return nil
}

// AddAccountAndClose inserts the account and freezes the ledger.
func (l *Ledger) AddAccountAndClose(acct *Account) error {
	if err := l.AddAccount(acct); err != nil {
		return err
	}
	l.frozen = true
	return nil
}

// Frozen reports whether new accounts are refused.
func (l *Ledger) Frozen() bool { return l.frozen }

// Contains reports whether the account is a member.
func (l *Ledger) Contains(acct *Account) bool {
	if acct == nil {
		return false
	}
	_, ok := l.members[acct.ID]
	return ok
}

// Accounts returns the member accounts in insertion order.
func (l *Ledger) Accounts() []*Account {
	out := make([]*Account, 0, len(l.ids))
	for _, id := range l.ids {
		if acct, ok := l.arena.Account(id); ok {
			out = append(out, acct)
		}
	}
	return out
}

// Account returns the sole account of a single-account ledger.
func (l *Ledger) Account() (*Account, error) {
	if !l.frozen || len(l.ids) != 1 {
		return nil, fmt.Errorf("%w: %s", ErrNotSingleAccount, l.Name)
	}
	acct, _ := l.arena.Account(l.ids[0])
	return acct, nil
}

// MustAccount returns the sole account and aborts when the ledger has none.
func (l *Ledger) MustAccount() *Account {
	acct, err := l.Account()
	if err != nil {
		shared.Abort("ledger.MustAccount", "%v", err)
	}
	return acct
}

// Transactions returns a copy of the transaction log.
func (l *Ledger) Transactions() []Transaction {
	return append([]Transaction(nil), l.transactions...)
}

func (l *Ledger) deltaDebit(amount int64) int64  { return amount * l.Type.DebitPolarity() }
func (l *Ledger) deltaCredit(amount int64) int64 { return amount * l.Type.CreditPolarity() }

func (l *Ledger) checkMember(op string, acct *Account) {
	if !l.Contains(acct) {
		shared.Abort(op, "account %d not in ledger %s", acct.ID, l.Name)
	}
}

func (l *Ledger) checkDelta(op string, acct *Account, delta int64) {
	if acct.balance+delta < 0 {
		shared.Abort(op, "account %d in %s would go negative: %d%+d", acct.ID, l.Name, acct.balance, delta)
	}
}

// Debit applies a debit of amount to acct.
func (l *Ledger) Debit(acct *Account, amount int64, txn Transaction) {
	l.checkMember("ledger.Debit", acct)
	delta := l.deltaDebit(amount)
	l.checkDelta("ledger.Debit", acct, delta)
	acct.apply(delta)
	l.record(txn)
}

// Credit applies a credit of amount to acct.
func (l *Ledger) Credit(acct *Account, amount int64, txn Transaction) {
	l.checkMember("ledger.Credit", acct)
	delta := l.deltaCredit(amount)
	l.checkDelta("ledger.Credit", acct, delta)
	acct.apply(delta)
	l.record(txn)
}

// CreditSole credits the sole account of a frozen single-account ledger.
func (l *Ledger) CreditSole(amount int64, txn Transaction) {
	l.Credit(l.MustAccount(), amount, txn)
	if l.Type.Polarity() > 0 {
		l.turnover += amount
	}
}

// DebitSole debits the sole account of a frozen single-account ledger.
func (l *Ledger) DebitSole(amount int64, txn Transaction) {
	l.Debit(l.MustAccount(), amount, txn)
	if l.Type.Polarity() < 0 {
		l.turnover += amount
	}
}

// DebitLoan attaches the loan to acct. Asset loan ledgers hold it as a claim;
// every other ledger holds it as an obligation.
func (l *Ledger) DebitLoan(acct *Account, loan *loans.Loan, txn Transaction) {
	l.attachLoan("ledger.DebitLoan", acct, loan)
	l.record(txn)
}

// CreditLoan attaches the loan to acct, with the same placement as DebitLoan.
func (l *Ledger) CreditLoan(acct *Account, loan *loans.Loan, txn Transaction) {
	l.attachLoan("ledger.CreditLoan", acct, loan)
	l.record(txn)
}

func (l *Ledger) attachLoan(op string, acct *Account, loan *loans.Loan) {
	l.checkMember(op, acct)
	if l.Kind == LedgerTypeLoan && l.Type == AccountTypeAsset {
		l.arena.AttachClaim(acct, loan)
	} else {
		l.arena.AttachDebt(acct, loan)
	}
}

// PayLoan applies a payment to a loan held in this ledger.
func (l *Ledger) PayLoan(loan *loans.Loan, p loans.Payment, txn Transaction) {
	if err := loan.MakePayment(p); err != nil {
		shared.Abort("ledger.PayLoan", "loan %d in %s: %v", loan.ID, l.Name, err)
	}
	l.record(txn)
}

// WriteOffLoan forgives amount of the loan's capital and detaches the loan
// once nothing is outstanding.
func (l *Ledger) WriteOffLoan(loan *loans.Loan, amount int64, txn Transaction) {
	done, err := loan.WriteOff(amount)
	if err != nil {
		shared.Abort("ledger.WriteOffLoan", "loan %d in %s: %v", loan.ID, l.Name, err)
	}
	if done {
		l.arena.RemoveLoan(loan.ID)
	}
	l.record(txn)
}

// ContainsLoan reports whether any account of the ledger holds the loan.
func (l *Ledger) ContainsLoan(loan *loans.Loan) bool {
	for _, acct := range l.Accounts() {
		if acct.HoldsLoan(loan.ID) {
			return true
		}
	}
	return false
}

// Loans returns every loan held by the ledger's accounts.
func (l *Ledger) Loans() []*loans.Loan {
	var out []*loans.Loan
	for _, acct := range l.Accounts() {
		if l.holdsClaims() {
			out = append(out, l.arena.Claims(acct)...)
		} else {
			out = append(out, l.arena.Debts(acct)...)
		}
	}
	return out
}

func (l *Ledger) holdsClaims() bool {
	return (l.Kind == LedgerTypeLoan && l.Type == AccountTypeAsset) || l.Kind == LedgerTypeCapital
}

func (l *Ledger) record(txn Transaction) {
	l.transactions = append(l.transactions, txn)
	l.changed = true
}

// Total returns the ledger aggregate: outstanding capital for loan and
// capital ledgers, balances for cash and deposit ledgers.
func (l *Ledger) Total() int64 {
	switch l.Kind {
	case LedgerTypeLoan:
		if l.Type == AccountTypeAsset {
			return l.totalClaims()
		}
		return l.totalDebts()
	case LedgerTypeCapital:
		total := l.totalClaims()
		if l.Type == AccountTypeEquity {
			total += l.totalBalances()
		}
		return total
	default:
		if l.changed {
			l.total = l.totalBalances()
			l.changed = false
		}
		return l.total
	}
}

func (l *Ledger) totalBalances() int64 {
	var total int64
	for _, acct := range l.Accounts() {
		total += acct.balance
	}
	return total
}

func (l *Ledger) totalClaims() int64 {
	var total int64
	for _, acct := range l.Accounts() {
		total += l.arena.TotalClaims(acct)
	}
	return total
}

func (l *Ledger) totalDebts() int64 {
	var total int64
	for _, acct := range l.Accounts() {
		total += l.arena.TotalDebt(acct)
	}
	return total
}

// RiskWeightedTotal sums risk-weighted outstanding capital of owned loans.
func (l *Ledger) RiskWeightedTotal() int64 {
	var total int64
	for _, acct := range l.Accounts() {
		for _, loan := range l.arena.Claims(acct) {
			total += loan.RiskWeighted()
		}
	}
	return total
}

// RecalculateVariableLoans moves every variable-rate loan held in the ledger
// to rate and regenerates its remaining schedule.
func (l *Ledger) RecalculateVariableLoans(rate float64) error {
	for _, acct := range l.Accounts() {
		for _, loan := range append(l.arena.Claims(acct), l.arena.Debts(acct)...) {
			if loan.Kind != loans.KindVariable {
				continue
			}
			if err := loan.SetRate(rate); err != nil {
				return fmt.Errorf("ledger: recalculate loan %d: %w", loan.ID, err)
			}
		}
	}
	return nil
}

// Turnover returns the flow through a single-account ledger since the last
// call and resets it.
func (l *Ledger) Turnover() int64 {
	t := l.turnover
	l.turnover = 0
	return t
}
