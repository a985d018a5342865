package ledger

import "sort"

// Account holds a non-negative balance and references the loans it owes
// (debts) and the loans it owns (claims) by loan id.
type Account struct {
	ID       int64
	Name     string
	Owner    string
	Bank     string
	Ledger   string
	Incoming int64
	Outgoing int64

	balance int64
	debts   map[int64]struct{}
	claims  map[int64]struct{}
}

func newAccount(id int64, name, owner, bank string) *Account {
	return &Account{
		ID:     id,
		Name:   name,
		Owner:  owner,
		Bank:   bank,
		debts:  make(map[int64]struct{}),
		claims: make(map[int64]struct{}),
	}
}

// Balance returns the account's balance.
func (a *Account) Balance() int64 { return a.balance }

// HoldsLoan reports whether the account owes or owns the loan.
func (a *Account) HoldsLoan(id int64) bool {
	if _, ok := a.debts[id]; ok {
		return true
	}
	_, ok := a.claims[id]
	return ok
}

// DebtIDs returns the ids of loans the account owes, ascending.
func (a *Account) DebtIDs() []int64 { return sortedIDs(a.debts) }

// ClaimIDs returns the ids of loans the account owns, ascending.
func (a *Account) ClaimIDs() []int64 { return sortedIDs(a.claims) }

func (a *Account) apply(delta int64) {
	a.balance += delta
	if delta > 0 {
		a.Incoming += delta
	} else {
		a.Outgoing -= delta
	}
}

func (a *Account) detach(loanID int64) {
	delete(a.debts, loanID)
	delete(a.claims, loanID)
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
