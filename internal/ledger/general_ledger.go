package ledger

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledgersim/internal/loans"
	"github.com/odyssey-erp/ledgersim/internal/shared"
)

// Standard ledger names used by multi-leg postings.
const (
	LedgerCash             = "cash"
	LedgerReserve          = "reserve"
	LedgerLoan             = "loan"
	LedgerDeposit          = "deposit"
	LedgerInterestIncome   = "interest_income"
	LedgerNonCash          = "non-cash"
	LedgerLossProvision    = "loss_provision"
	LedgerInterbankDebt    = "ib_debt"
	LedgerCapital          = "capital"
	LedgerRetainedEarnings = "retained_earnings"
)

// ErrInsufficientBalance indicates a posting would overdraw an account. Post
// treats this as an invariant violation; CanPost reports it so callers can
// refuse before mutating anything.
var ErrInsufficientBalance = errors.New("ledger: posting would overdraw account")

// GeneralLedger is the only posting entry point for one banking entity. It
// owns the entity's ledgers and keeps assets equal to liabilities plus
// equities after every posting.
type GeneralLedger struct {
	Name string

	arena   *Arena
	clock   Clock
	ledgers map[string]*Ledger
	order   []*Ledger
}

// NewGeneralLedger creates an empty general ledger for the named entity.
func NewGeneralLedger(name string, arena *Arena, clock Clock) *GeneralLedger {
	if arena == nil {
		arena = NewArena()
	}
	return &GeneralLedger{
		Name:    name,
		arena:   arena,
		clock:   clock,
		ledgers: make(map[string]*Ledger),
	}
}

// Arena returns the arena backing this general ledger.
func (g *GeneralLedger) Arena() *Arena { return g.arena }

// Step returns the current clock step.
func (g *GeneralLedger) Step() int64 {
	if g.clock == nil {
		return 0
	}
	return g.clock.Step()
}

// CreateLedger adds a ledger. Names are unique within the general ledger.
func (g *GeneralLedger) CreateLedger(def Definition) (*Ledger, error) {
	if def.Name == "" || !def.Type.Valid() {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidDefinition, def)
	}
	switch def.Kind {
	case LedgerTypeLoan, LedgerTypeCapital, LedgerTypeDeposit, LedgerTypeCash:
	default:
		return nil, fmt.Errorf("%w: ledger type %q", ErrInvalidDefinition, def.Kind)
	}
	if _, ok := g.ledgers[def.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateLedger, def.Name)
	}
	l := newLedger(def, g.arena)
	g.ledgers[def.Name] = l
	g.order = append(g.order, l)
	return l, nil
}

// Setup creates every ledger in defs and opens the internal account of each
// single-account ledger in owner's name.
func (g *GeneralLedger) Setup(defs []Definition, owner string) error {
	for _, def := range defs {
		if _, err := g.CreateLedger(def); err != nil {
			return err
		}
		if def.Single {
			if _, err := g.CreateSoleAccount(def.Name, owner); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateAccount opens a new account in the named ledger.
func (g *GeneralLedger) CreateAccount(ledgerName, name, owner string) (*Account, error) {
	l, err := g.Ledger(ledgerName)
	if err != nil {
		return nil, err
	}
	acct := g.arena.NewAccount(name, owner, g.Name)
	if err := l.AddAccount(acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// CreateSoleAccount opens the internal account of a ledger and freezes it.
func (g *GeneralLedger) CreateSoleAccount(ledgerName, owner string) (*Account, error) {
	l, err := g.Ledger(ledgerName)
	if err != nil {
		return nil, err
	}
	acct := g.arena.NewAccount(g.Name+":"+ledgerName, owner, g.Name)
	if err := l.AddAccountAndClose(acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// Ledger returns the named ledger.
func (g *GeneralLedger) Ledger(name string) (*Ledger, error) {
	l, ok := g.ledgers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLedger, name)
	}
	return l, nil
}

// MustLedger returns the named ledger and aborts when it does not exist.
func (g *GeneralLedger) MustLedger(name string) *Ledger {
	l, err := g.Ledger(name)
	if err != nil {
		shared.Abort("ledger.MustLedger", "%s: %v", g.Name, err)
	}
	return l
}

// Ledgers returns all ledgers in creation order.
func (g *GeneralLedger) Ledgers() []*Ledger {
	return append([]*Ledger(nil), g.order...)
}

func (g *GeneralLedger) txn(text string, debit, credit, amount int64) Transaction {
	return Transaction{
		ID:     uuid.New(),
		Step:   g.Step(),
		Text:   text,
		Debit:  debit,
		Credit: credit,
		Amount: amount,
	}
}

// checkPolarity accepts the sums a balanced pair of legs can produce.
func checkPolarity(debit, credit *Ledger) bool {
	switch debit.Type.DebitPolarity() + credit.Type.CreditPolarity() {
	case -2, 0, 2:
		return true
	default:
		return false
	}
}

func (g *GeneralLedger) resolvePair(debitName string, debit *Account, creditName string, credit *Account) (*Ledger, *Ledger, error) {
	d, err := g.Ledger(debitName)
	if err != nil {
		return nil, nil, err
	}
	c, err := g.Ledger(creditName)
	if err != nil {
		return nil, nil, err
	}
	if debit == nil {
		return nil, nil, fmt.Errorf("%w: debit side of %s", ErrNilAccount, debitName)
	}
	if credit == nil {
		return nil, nil, fmt.Errorf("%w: credit side of %s", ErrNilAccount, creditName)
	}
	return d, c, nil
}

// CanPost reports whether Post would succeed without applying anything.
func (g *GeneralLedger) CanPost(debitName string, debit *Account, creditName string, credit *Account, amount int64) error {
	d, c, err := g.resolvePair(debitName, debit, creditName, credit)
	if err != nil {
		return err
	}
	if !d.Contains(debit) || !c.Contains(credit) {
		return fmt.Errorf("%w: account not in ledger", ErrNilAccount)
	}
	dd, cd := d.deltaDebit(amount), c.deltaCredit(amount)
	if debit == credit {
		if debit.balance+dd+cd < 0 {
			return ErrInsufficientBalance
		}
		return nil
	}
	if debit.balance+dd < 0 || credit.balance+cd < 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// Post debits one account and credits another with the same transaction.
// Both legs are validated before either is applied.
func (g *GeneralLedger) Post(debitName string, debit *Account, creditName string, credit *Account, amount int64, text string) error {
	d, c, err := g.resolvePair(debitName, debit, creditName, credit)
	if err != nil {
		return err
	}
	if amount < 0 {
		shared.Abort("ledger.Post", "negative amount %d", amount)
	}
	if !checkPolarity(d, c) {
		shared.Abort("ledger.Post", "unbalanced post %s/%s", d.Name, c.Name)
	}
	d.checkMember("ledger.Post", debit)
	c.checkMember("ledger.Post", credit)

	dd, cd := d.deltaDebit(amount), c.deltaCredit(amount)
	if debit == credit {
		d.checkDelta("ledger.Post", debit, dd+cd)
	} else {
		d.checkDelta("ledger.Post", debit, dd)
		c.checkDelta("ledger.Post", credit, cd)
	}

	t := g.txn(text, debit.ID, credit.ID, amount)
	debit.apply(dd)
	credit.apply(cd)
	d.record(t)
	if c != d {
		c.record(t)
	}
	return nil
}

// PostLoan posts a loan origination: one leg attaches the loan instrument,
// the other moves the loan's outstanding capital.
func (g *GeneralLedger) PostLoan(debitName string, debit *Account, creditName string, credit *Account, loan *loans.Loan, side Side, text string) error {
	d, c, err := g.resolvePair(debitName, debit, creditName, credit)
	if err != nil {
		return err
	}
	if side != SideDebit && side != SideCredit {
		return fmt.Errorf("%w: %q", ErrUnknownSide, side)
	}
	if !checkPolarity(d, c) {
		shared.Abort("ledger.PostLoan", "unbalanced post %s/%s", d.Name, c.Name)
	}
	if err := g.arena.RegisterLoan(loan); err != nil {
		return err
	}
	d.checkMember("ledger.PostLoan", debit)
	c.checkMember("ledger.PostLoan", credit)

	amount := loan.CapitalOutstanding()
	t := g.txn(text, debit.ID, credit.ID, amount)
	switch side {
	case SideCredit:
		delta := d.deltaDebit(amount)
		d.checkDelta("ledger.PostLoan", debit, delta)
		debit.apply(delta)
		d.record(t)
		c.CreditLoan(credit, loan, t)
	case SideDebit:
		delta := c.deltaCredit(amount)
		c.checkDelta("ledger.PostLoan", credit, delta)
		d.DebitLoan(debit, loan, t)
		credit.apply(delta)
		c.record(t)
	}
	return nil
}

func (g *GeneralLedger) accountLedger(id int64) (*Account, *Ledger, error) {
	acct, ok := g.arena.Account(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: account %d", ErrNilAccount, id)
	}
	if acct.Bank != g.Name {
		return nil, nil, fmt.Errorf("%w: account %d belongs to %s", ErrUnknownLedger, id, acct.Bank)
	}
	l, err := g.Ledger(acct.Ledger)
	if err != nil {
		return nil, nil, err
	}
	return acct, l, nil
}

func soleID(l *Ledger) int64 {
	if len(l.ids) == 0 {
		return 0
	}
	return l.ids[0]
}

// PostLoanPayment posts a payment on a loan owned as an asset: the payer is
// debited interest plus capital, the loan is paid, and the owner account is
// credited the interest.
func (g *GeneralLedger) PostLoanPayment(payerName string, payer *Account, loanName string, loan *loans.Loan, p loans.Payment, text string) error {
	pl, err := g.Ledger(payerName)
	if err != nil {
		return err
	}
	ll, err := g.Ledger(loanName)
	if err != nil {
		return err
	}
	if payer == nil {
		return ErrNilAccount
	}
	if !ll.ContainsLoan(loan) {
		return fmt.Errorf("%w: loan %d in %s", ErrLoanNotInLedger, loan.ID, loanName)
	}
	owner, ol, err := g.accountLedger(loan.Owner)
	if err != nil {
		return err
	}
	pl.checkMember("ledger.PostLoanPayment", payer)
	debitDelta := pl.deltaDebit(p.Total())
	creditDelta := ol.deltaCredit(p[loans.Interest])
	if payer == owner {
		pl.checkDelta("ledger.PostLoanPayment", payer, debitDelta+creditDelta)
	} else {
		pl.checkDelta("ledger.PostLoanPayment", payer, debitDelta)
		ol.checkDelta("ledger.PostLoanPayment", owner, creditDelta)
	}

	payer.apply(debitDelta)
	pl.record(g.txn("Loan payment "+text, payer.ID, soleID(ll), p.Total()))
	ll.PayLoan(loan, p, g.txn("Capital payment "+text, payer.ID, soleID(ll), p[loans.Capital]))
	owner.apply(creditDelta)
	ol.record(g.txn("Interest payment "+text, payer.ID, owner.ID, p[loans.Interest]))
	return nil
}

// PostLoanReceipt books the lender side of a payment on a loan shared with
// another general ledger. The borrower side has already applied the payment
// to the loan, so only the receiving account and the owner's interest move.
func (g *GeneralLedger) PostLoanReceipt(debitName string, debit *Account, loanName string, loan *loans.Loan, p loans.Payment, text string) error {
	dl, ll, owner, ol, err := g.receiptLegs(debitName, debit, loanName, loan)
	if err != nil {
		return err
	}
	dl.checkMember("ledger.PostLoanReceipt", debit)
	debitDelta := dl.deltaDebit(p.Total())
	creditDelta := ol.deltaCredit(p[loans.Interest])
	if debit == owner {
		dl.checkDelta("ledger.PostLoanReceipt", debit, debitDelta+creditDelta)
	} else {
		dl.checkDelta("ledger.PostLoanReceipt", debit, debitDelta)
		ol.checkDelta("ledger.PostLoanReceipt", owner, creditDelta)
	}

	debit.apply(debitDelta)
	dl.record(g.txn("Loan receipt "+text, debit.ID, soleID(ll), p.Total()))
	ll.record(g.txn("Capital received "+text, debit.ID, soleID(ll), p[loans.Capital]))
	owner.apply(creditDelta)
	ol.record(g.txn("Interest received "+text, debit.ID, owner.ID, p[loans.Interest]))
	return nil
}

// CanPostLoanReceipt reports whether PostLoanReceipt would find the ledgers,
// the loan and its owner, without posting anything.
func (g *GeneralLedger) CanPostLoanReceipt(debitName string, debit *Account, loanName string, loan *loans.Loan) error {
	_, _, _, _, err := g.receiptLegs(debitName, debit, loanName, loan)
	return err
}

func (g *GeneralLedger) receiptLegs(debitName string, debit *Account, loanName string, loan *loans.Loan) (*Ledger, *Ledger, *Account, *Ledger, error) {
	dl, err := g.Ledger(debitName)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	ll, err := g.Ledger(loanName)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if debit == nil {
		return nil, nil, nil, nil, ErrNilAccount
	}
	if !ll.ContainsLoan(loan) {
		return nil, nil, nil, nil, fmt.Errorf("%w: loan %d in %s", ErrLoanNotInLedger, loan.ID, loanName)
	}
	owner, ol, err := g.accountLedger(loan.Owner)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return dl, ll, owner, ol, nil
}

// PostLiabilityLoanPayment posts a payment on a loan owed as a liability: the
// paying asset account is credited interest plus capital, the loan is paid,
// and the interest is debited from the borrower account.
func (g *GeneralLedger) PostLiabilityLoanPayment(loanName string, loan *loans.Loan, creditName string, credit *Account, p loans.Payment, text string) error {
	ll, err := g.Ledger(loanName)
	if err != nil {
		return err
	}
	cl, err := g.Ledger(creditName)
	if err != nil {
		return err
	}
	if credit == nil {
		return ErrNilAccount
	}
	if !ll.ContainsLoan(loan) {
		return fmt.Errorf("%w: loan %d in %s", ErrLoanNotInLedger, loan.ID, loanName)
	}
	borrower, bl, err := g.accountLedger(loan.Borrower)
	if err != nil {
		return err
	}
	cl.checkMember("ledger.PostLiabilityLoanPayment", credit)
	creditDelta := cl.deltaCredit(p.Total())
	debitDelta := bl.deltaDebit(p[loans.Interest])
	if credit == borrower {
		cl.checkDelta("ledger.PostLiabilityLoanPayment", credit, creditDelta+debitDelta)
	} else {
		cl.checkDelta("ledger.PostLiabilityLoanPayment", credit, creditDelta)
		bl.checkDelta("ledger.PostLiabilityLoanPayment", borrower, debitDelta)
	}

	credit.apply(creditDelta)
	cl.record(g.txn("Loan payment "+text, soleID(ll), credit.ID, p.Total()))
	ll.PayLoan(loan, p, g.txn("Capital payment "+text, soleID(ll), credit.ID, p[loans.Capital]))
	borrower.apply(debitDelta)
	bl.record(g.txn("Interest payment "+text, borrower.ID, credit.ID, p[loans.Interest]))
	return nil
}

// PostNegAm posts a payment on a negative-amortization loan. Principal growth
// for the period is parked in the non-cash ledger, and as much of the
// capital payment as repays growth is moved from non-cash to interest
// income.
func (g *GeneralLedger) PostNegAm(payerName string, payer *Account, loanName string, loan *loans.Loan, p loans.Payment, text string) error {
	if !loan.NegAm() {
		shared.Abort("ledger.PostNegAm", "loan %d is not negative amortization", loan.ID)
	}
	pl, err := g.Ledger(payerName)
	if err != nil {
		return err
	}
	ll, err := g.Ledger(loanName)
	if err != nil {
		return err
	}
	nonCash, err := g.Ledger(LedgerNonCash)
	if err != nil {
		return err
	}
	income, err := g.Ledger(LedgerInterestIncome)
	if err != nil {
		return err
	}
	if payer == nil {
		return ErrNilAccount
	}
	if !ll.ContainsLoan(loan) {
		return fmt.Errorf("%w: loan %d in %s", ErrLoanNotInLedger, loan.ID, loanName)
	}
	owner, ol, err := g.accountLedger(loan.Owner)
	if err != nil {
		return err
	}
	nonCashAcct, err := nonCash.Account()
	if err != nil {
		return err
	}
	incomeAcct, err := income.Account()
	if err != nil {
		return err
	}

	increase := loan.PrincipalIncrease()
	adjustment := p[loans.Capital]
	if unrecognised := loan.UnrecognisedGrowth() + increase; adjustment > unrecognised {
		adjustment = unrecognised
	}
	pl.checkMember("ledger.PostNegAm", payer)
	pl.checkDelta("ledger.PostNegAm", payer, pl.deltaDebit(p.Total()))
	nonCash.checkDelta("ledger.PostNegAm", nonCashAcct, nonCash.deltaCredit(increase)+nonCash.deltaDebit(adjustment))

	payer.apply(pl.deltaDebit(p.Total()))
	pl.record(g.txn("Loan payment "+text, payer.ID, soleID(ll), p.Total()))

	if increase > 0 {
		nonCash.CreditSole(increase, g.txn("Neg-am adjust "+text, soleID(ll), nonCashAcct.ID, increase))
		loan.AccrueGrowth(increase)
	}

	ol.Credit(owner, p[loans.Interest], g.txn("Interest payment "+text, payer.ID, owner.ID, p[loans.Interest]))

	if adjustment > 0 {
		t := g.txn("Neg-am capital repayment "+text, nonCashAcct.ID, incomeAcct.ID, adjustment)
		nonCash.Debit(nonCashAcct, adjustment, t)
		income.Credit(incomeAcct, adjustment, t)
		loan.RecogniseGrowth(adjustment)
	}

	ll.PayLoan(loan, p, g.txn("Principal payment "+text, payer.ID, soleID(ll), p[loans.Capital]))
	return nil
}

// RecogniseGrowth moves all of a loan's unrecognised principal growth from
// non-cash to interest income.
func (g *GeneralLedger) RecogniseGrowth(loan *loans.Loan, text string) error {
	amount := loan.UnrecognisedGrowth()
	if amount <= 0 {
		return nil
	}
	nonCash, err := g.Ledger(LedgerNonCash)
	if err != nil {
		return err
	}
	income, err := g.Ledger(LedgerInterestIncome)
	if err != nil {
		return err
	}
	if err := g.Post(LedgerNonCash, nonCash.MustAccount(), LedgerInterestIncome, income.MustAccount(), amount, text); err != nil {
		return err
	}
	loan.RecogniseGrowth(amount)
	return nil
}

// ReverseGrowth writes off a loan's unrecognised principal growth against
// the non-cash ledger that parked it.
func (g *GeneralLedger) ReverseGrowth(loanName string, loan *loans.Loan, text string) error {
	amount := loan.UnrecognisedGrowth()
	if amount <= 0 {
		return nil
	}
	nonCash, err := g.Ledger(LedgerNonCash)
	if err != nil {
		return err
	}
	loan.RecogniseGrowth(amount)
	return g.PostWriteOff(loanName, loan, LedgerNonCash, nonCash.MustAccount(), amount, text)
}

// PostWriteOff writes amount of the loan off against an account. A zero
// amount is ignored.
func (g *GeneralLedger) PostWriteOff(loanName string, loan *loans.Loan, againstName string, against *Account, amount int64, text string) error {
	if amount == 0 {
		return nil
	}
	ll, err := g.Ledger(loanName)
	if err != nil {
		return err
	}
	al, err := g.Ledger(againstName)
	if err != nil {
		return err
	}
	if against == nil {
		return ErrNilAccount
	}
	if !ll.ContainsLoan(loan) {
		return fmt.Errorf("%w: loan %d in %s", ErrLoanNotInLedger, loan.ID, loanName)
	}
	al.checkMember("ledger.PostWriteOff", against)
	delta := al.deltaDebit(amount)
	al.checkDelta("ledger.PostWriteOff", against, delta)

	t := g.txn("Loan write off vs "+text, soleID(ll), against.ID, amount)
	ll.WriteOffLoan(loan, amount, t)
	against.apply(delta)
	al.record(t)
	return nil
}

func (g *GeneralLedger) transferSides(from, to *Account) (string, *Account, string, *Account, error) {
	if from == nil || to == nil {
		return "", nil, "", nil, ErrNilAccount
	}
	fl, err := g.Ledger(from.Ledger)
	if err != nil {
		return "", nil, "", nil, err
	}
	tl, err := g.Ledger(to.Ledger)
	if err != nil {
		return "", nil, "", nil, err
	}
	if fl.Type.CreditPolarity() != tl.Type.CreditPolarity() {
		return "", nil, "", nil, fmt.Errorf("%w: %s -> %s", ErrPolarityMismatch, fl.Name, tl.Name)
	}
	if fl.Type == AccountTypeAsset {
		return tl.Name, to, fl.Name, from, nil
	}
	return fl.Name, from, tl.Name, to, nil
}

// Transfer moves amount from one account to another on the same side of the
// balance sheet, choosing debit and credit legs from the account type.
func (g *GeneralLedger) Transfer(from, to *Account, amount int64, text string) error {
	dn, d, cn, c, err := g.transferSides(from, to)
	if err != nil {
		return err
	}
	return g.Post(dn, d, cn, c, amount, text)
}

// CanTransfer reports whether Transfer would succeed without applying it.
func (g *GeneralLedger) CanTransfer(from, to *Account, amount int64) error {
	dn, d, cn, c, err := g.transferSides(from, to)
	if err != nil {
		return err
	}
	return g.CanPost(dn, d, cn, c, amount)
}

// LedgerTotal is one ledger's aggregate at audit time.
type LedgerTotal struct {
	Name  string      `json:"name"`
	Type  AccountType `json:"type"`
	Kind  LedgerType  `json:"kind"`
	Total int64       `json:"total"`
}

// AuditReport summarises a balanced general ledger.
type AuditReport struct {
	Entity      string        `json:"entity"`
	Step        int64         `json:"step"`
	Assets      int64         `json:"assets"`
	Liabilities int64         `json:"liabilities"`
	Equities    int64         `json:"equities"`
	Ledgers     []LedgerTotal `json:"ledgers"`
}

// Totals returns the current sum of each balance-sheet side.
func (g *GeneralLedger) Totals() (assets, liabilities, equities int64) {
	for _, l := range g.order {
		switch l.Type {
		case AccountTypeAsset:
			assets += l.Total()
		case AccountTypeLiability:
			liabilities += l.Total()
		case AccountTypeEquity:
			equities += l.Total()
		}
	}
	return assets, liabilities, equities
}

// Audit recomputes every ledger total and aborts when the balance sheet does
// not balance or an account belongs to more than one ledger. When out is not
// nil the totals are written to it.
func (g *GeneralLedger) Audit(out io.Writer) AuditReport {
	report := AuditReport{Entity: g.Name, Step: g.Step()}
	seen := make(map[int64]string)
	for _, l := range g.order {
		for _, id := range l.ids {
			if other, ok := seen[id]; ok {
				shared.Abort("ledger.Audit", "%s: account %d in %s and %s", g.Name, id, other, l.Name)
			}
			seen[id] = l.Name
		}
		total := l.Total()
		report.Ledgers = append(report.Ledgers, LedgerTotal{Name: l.Name, Type: l.Type, Kind: l.Kind, Total: total})
		switch l.Type {
		case AccountTypeAsset:
			report.Assets += total
		case AccountTypeLiability:
			report.Liabilities += total
		case AccountTypeEquity:
			report.Equities += total
		}
	}
	if out != nil {
		for _, lt := range report.Ledgers {
			fmt.Fprintf(out, "%-20s %-9s %-7s %15d\n", lt.Name, lt.Type, lt.Kind, lt.Total)
		}
		fmt.Fprintf(out, "%s assets=%d liabilities=%d equities=%d\n", g.Name, report.Assets, report.Liabilities, report.Equities)
	}
	if report.Assets != report.Liabilities+report.Equities {
		shared.Abort("ledger.Audit", "%s unbalanced: assets %d != liabilities %d + equities %d",
			g.Name, report.Assets, report.Liabilities, report.Equities)
	}
	return report
}
