package ledger

import (
	"fmt"

	"github.com/odyssey-erp/ledgersim/internal/loans"
	"github.com/odyssey-erp/ledgersim/internal/shared"
)

// Arena owns every account and loan of a simulation, addressed by id.
// Ledgers and accounts hold ids only; general ledgers sharing an arena can
// reference the same loan from both sides of a cross-bank obligation.
type Arena struct {
	AccountIDs *Sequence
	LoanIDs    *Sequence

	accounts map[int64]*Account
	loans    map[int64]*loans.Loan
	holders  map[int64]map[int64]struct{}
}

// NewArena returns an empty arena with fresh sequences.
func NewArena() *Arena {
	return &Arena{
		AccountIDs: NewSequence(AccountIDBase),
		LoanIDs:    NewSequence(LoanIDBase),
		accounts:   make(map[int64]*Account),
		loans:      make(map[int64]*loans.Loan),
		holders:    make(map[int64]map[int64]struct{}),
	}
}

// Reset drops every account and loan and rewinds both sequences.
func (a *Arena) Reset() {
	a.AccountIDs.Reset()
	a.LoanIDs.Reset()
	a.accounts = make(map[int64]*Account)
	a.loans = make(map[int64]*loans.Loan)
	a.holders = make(map[int64]map[int64]struct{})
}

// NewAccount allocates an account with a fresh id. The account is not yet a
// member of any ledger.
func (a *Arena) NewAccount(name, owner, bank string) *Account {
	acct := newAccount(a.AccountIDs.Next(), name, owner, bank)
	a.accounts[acct.ID] = acct
	return acct
}

// Account looks up an account by id.
func (a *Arena) Account(id int64) (*Account, bool) {
	acct, ok := a.accounts[id]
	return acct, ok
}

// NextLoanID allocates a loan id.
func (a *Arena) NextLoanID() int64 { return a.LoanIDs.Next() }

// RegisterLoan adds a loan to the arena.
func (a *Arena) RegisterLoan(l *loans.Loan) error {
	if existing, ok := a.loans[l.ID]; ok {
		if existing == l {
			return nil
		}
		return fmt.Errorf("%w: %d", ErrDuplicateLoan, l.ID)
	}
	a.loans[l.ID] = l
	return nil
}

// Loan looks up a loan by id.
func (a *Arena) Loan(id int64) (*loans.Loan, bool) {
	l, ok := a.loans[id]
	return l, ok
}

// Loans returns the number of live loans.
func (a *Arena) Loans() int { return len(a.loans) }

// AttachDebt records acct as owing the loan.
func (a *Arena) AttachDebt(acct *Account, l *loans.Loan) {
	a.attach(acct, l, false)
}

// AttachClaim records acct as owning the loan.
func (a *Arena) AttachClaim(acct *Account, l *loans.Loan) {
	a.attach(acct, l, true)
}

func (a *Arena) attach(acct *Account, l *loans.Loan, claim bool) {
	if _, ok := a.loans[l.ID]; !ok {
		a.loans[l.ID] = l
	}
	if claim {
		acct.claims[l.ID] = struct{}{}
	} else {
		acct.debts[l.ID] = struct{}{}
	}
	set, ok := a.holders[l.ID]
	if !ok {
		set = make(map[int64]struct{}, 2)
		a.holders[l.ID] = set
	}
	set[acct.ID] = struct{}{}
}

// RemoveLoan detaches a finished loan from every account holding it.
func (a *Arena) RemoveLoan(id int64) {
	l, ok := a.loans[id]
	if !ok {
		shared.Abort("ledger.RemoveLoan", "unknown loan %d", id)
	}
	l.CheckRemovable()
	for acctID := range a.holders[id] {
		if acct, ok := a.accounts[acctID]; ok {
			acct.detach(id)
		}
	}
	delete(a.holders, id)
	delete(a.loans, id)
}

// Debts returns the loans acct owes, ordered by id.
func (a *Arena) Debts(acct *Account) []*loans.Loan {
	return a.resolve(acct.DebtIDs())
}

// Claims returns the loans acct owns, ordered by id.
func (a *Arena) Claims(acct *Account) []*loans.Loan {
	return a.resolve(acct.ClaimIDs())
}

func (a *Arena) resolve(ids []int64) []*loans.Loan {
	out := make([]*loans.Loan, 0, len(ids))
	for _, id := range ids {
		if l, ok := a.loans[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

// TotalDebt sums the capital outstanding on loans acct owes.
func (a *Arena) TotalDebt(acct *Account) int64 {
	var total int64
	for _, l := range a.Debts(acct) {
		total += l.CapitalOutstanding()
	}
	return total
}

// TotalClaims sums the capital outstanding on loans acct owns.
func (a *Arena) TotalClaims(acct *Account) int64 {
	var total int64
	for _, l := range a.Claims(acct) {
		total += l.CapitalOutstanding()
	}
	return total
}

// NextRepayment sums this period's scheduled payments across acct's debts.
func (a *Arena) NextRepayment(acct *Account) loans.Payment {
	var p loans.Payment
	for _, l := range a.Debts(acct) {
		next := l.NextRepayment()
		p[loans.Interest] += next[loans.Interest]
		p[loans.Capital] += next[loans.Capital]
	}
	return p
}
