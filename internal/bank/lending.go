package bank

import (
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/ledgersim/internal/ledger"
	"github.com/odyssey-erp/ledgersim/internal/loans"
)

// LoanRequest asks a bank to lend to a customer deposit account, which may
// be held at another bank.
type LoanRequest struct {
	Borrower   int64          `json:"borrower" validate:"required"`
	Amount     int64          `json:"amount"`
	Duration   int            `json:"duration" validate:"required,gt=0"`
	Kind       loans.Kind     `json:"kind" validate:"omitempty,oneof=SIMPLE COMPOUND VARIABLE INDEXED SOVEREIGN"`
	Risk       loans.RiskType `json:"risk"`
	Rate       float64        `json:"rate" validate:"gte=0"`
	Collateral string         `json:"collateral,omitempty"`
}

// Decision is the outcome of a loan request. Exactly one of Loan and Reason
// is set.
type Decision struct {
	Loan   *loans.Loan
	Reason Refusal
}

// Approved reports whether the loan was made.
func (d Decision) Approved() bool { return d.Loan != nil }

var waterfall = []string{
	ledger.LedgerLossProvision,
	ledger.LedgerInterestIncome,
	ledger.LedgerRetainedEarnings,
	ledger.LedgerCapital,
}

func (b *Bank) refuse(req LoanRequest, reason Refusal) (Decision, error) {
	b.metrics.LoanDecision(b.ID, reason)
	b.logger.Info("loan refused",
		slog.String("reason", string(reason)),
		slog.Int64("amount", req.Amount),
		slog.Int64("borrower", req.Borrower))
	return Decision{Reason: reason}, nil
}

// RequestLoan gates a loan on amount, zombie state, reserves and risk-weighted
// capital, and originates it when every gate passes. Refusals come back in
// the Decision; errors are reserved for malformed requests.
func (b *Bank) RequestLoan(req LoanRequest) (Decision, error) {
	if req.Amount <= 0 {
		return b.refuse(req, RefusedAmount)
	}
	borrower, ok := b.GL.Arena().Account(req.Borrower)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %d", ErrUnknownAccount, req.Borrower)
	}
	if borrower.Ledger != ledger.LedgerDeposit {
		return Decision{}, fmt.Errorf("%w: %d", ErrNotCustomer, req.Borrower)
	}
	if b.zombie {
		return b.refuse(req, RefusedZombie)
	}
	if b.params.MinimumLoan > 0 && req.Amount < b.params.MinimumLoan {
		return b.refuse(req, RefusedMinimum)
	}
	if b.ReserveConstrained(req.Amount) {
		return b.refuse(req, RefusedReserve)
	}
	if b.CapitalConstrained(req.Amount, req.Risk) {
		return b.refuse(req, RefusedCapital)
	}

	var payee *Bank
	if borrower.Bank != b.ID {
		other, err := b.cb.Bank(borrower.Bank)
		if err != nil {
			return Decision{}, err
		}
		if b.sole(ledger.LedgerReserve).Balance() < req.Amount {
			return b.refuse(req, RefusedLiquidity)
		}
		payee = other
	}

	loan, err := b.newLoan(req, borrower)
	if err != nil {
		return Decision{}, err
	}
	if err := b.originate(loan, borrower, payee); err != nil {
		return Decision{}, err
	}
	b.metrics.LoanDecision(b.ID, "")
	b.logger.Info("loan approved",
		slog.Int64("loan", loan.ID),
		slog.String("kind", string(loan.Kind)),
		slog.Int64("amount", req.Amount),
		slog.Int64("borrower", req.Borrower))
	return Decision{Loan: loan}, nil
}

func (b *Bank) newLoan(req LoanRequest, borrower *ledger.Account) (*loans.Loan, error) {
	rate := req.Rate
	if rate == 0 {
		rate = b.LoanRate()
	}
	kind := req.Kind
	if kind == "" {
		kind = loans.KindCompound
	}
	terms := loans.Terms{
		ID:       b.GL.Arena().NextLoanID(),
		Amount:   req.Amount,
		Rate:     rate,
		Duration: req.Duration,
		Start:    b.GL.Step(),
		Owner:    b.sole(ledger.LedgerInterestIncome).ID,
		Borrower: borrower.ID,
		Risk:     req.Risk,
	}
	var (
		loan *loans.Loan
		err  error
	)
	if kind == loans.KindIndexed {
		loan, err = loans.NewIndexed(terms, b.cb)
	} else {
		loan, err = loans.New(kind, terms)
	}
	if err != nil {
		return nil, fmt.Errorf("bank: new %s loan: %w", kind, err)
	}
	loan.Collateral = req.Collateral
	return loan, nil
}

// originate posts the loan: an own customer's deposit is credited directly;
// an external borrower is paid out of reserves through the central bank.
func (b *Bank) originate(loan *loans.Loan, borrower *ledger.Account, payee *Bank) error {
	arena := b.GL.Arena()
	text := "Loan " + loan.String()
	if payee == nil {
		arena.AttachDebt(borrower, loan)
		return b.GL.PostLoan(ledger.LedgerLoan, b.sole(ledger.LedgerLoan), ledger.LedgerDeposit, borrower, loan, ledger.SideDebit, text)
	}

	amount := loan.CapitalOutstanding()
	payeeReserve := payee.sole(ledger.LedgerReserve)
	if err := b.cb.canTransferReserves(b.ID, payee.ID, amount); err != nil {
		return err
	}
	arena.AttachDebt(borrower, loan)
	if err := b.GL.PostLoan(ledger.LedgerLoan, b.sole(ledger.LedgerLoan), ledger.LedgerReserve, b.sole(ledger.LedgerReserve), loan, ledger.SideDebit, text); err != nil {
		return err
	}
	if err := b.cb.TransferReserves(b.ID, payee.ID, amount); err != nil {
		return err
	}
	return payee.GL.Post(ledger.LedgerReserve, payeeReserve, ledger.LedgerDeposit, borrower, amount, text)
}

// Loans returns the customer loans the bank owns, interbank lending excluded.
func (b *Bank) Loans() []*loans.Loan {
	var out []*loans.Loan
	for _, loan := range b.GL.MustLedger(ledger.LedgerLoan).Loans() {
		if loan.Kind != loans.KindInterbank {
			out = append(out, loan)
		}
	}
	return out
}

func (b *Bank) owns(loan *loans.Loan) bool {
	return loan != nil && b.GL.MustLedger(ledger.LedgerLoan).ContainsLoan(loan)
}

// ServiceLoans collects every customer loan with an installment due at step
// and returns how many payments were made.
func (b *Bank) ServiceLoans(step int64) (int, error) {
	paid := 0
	for _, loan := range b.Loans() {
		if !loan.InstallmentDue(step) {
			continue
		}
		ok, err := b.PayBankLoan(loan)
		if err != nil {
			return paid, err
		}
		if ok {
			paid++
		}
	}
	return paid, nil
}

// PayBankLoan collects the current installment of a customer loan from the
// borrower's deposit. A loan in default is settled in full when the
// borrower can cover the outstanding capital. A missed payment counts as a
// default and, once the write-off limit is reached, runs the write-off
// waterfall. It reports whether a payment was collected.
func (b *Bank) PayBankLoan(loan *loans.Loan) (bool, error) {
	if !b.owns(loan) {
		return false, ErrNotOwner
	}
	borrower, ok := b.GL.Arena().Account(loan.Borrower)
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownAccount, loan.Borrower)
	}

	if loan.InDefault() {
		outstanding := loan.CapitalOutstanding()
		if outstanding > 0 && borrower.Balance() >= outstanding {
			if err := b.GL.RecogniseGrowth(loan, "Neg-am settlement "+loan.String()); err != nil {
				return false, err
			}
			return b.collect(loan, borrower, loans.Payment{0, outstanding}, false)
		}
		return false, b.missedPayment(loan)
	}

	p := loan.NextRepayment()
	if p.IsZero() {
		return false, nil
	}
	if borrower.Balance() < p.Total() {
		return false, b.missedPayment(loan)
	}
	return b.collect(loan, borrower, p, loan.NegAm())
}

// collect moves a payment from the borrower's deposit into the loan. For
// an external borrower the payment crosses banks as reserves.
func (b *Bank) collect(loan *loans.Loan, borrower *ledger.Account, p loans.Payment, negAm bool) (bool, error) {
	text := loan.String()
	payerLedger, payer := ledger.LedgerDeposit, borrower

	if borrower.Bank != b.ID {
		payerBank, err := b.cb.Bank(borrower.Bank)
		if err != nil {
			return false, err
		}
		ok, err := payerBank.ensureReserves(p.Total())
		if err != nil {
			return false, err
		}
		if !ok {
			return false, b.missedPayment(loan)
		}
		payerReserve := payerBank.sole(ledger.LedgerReserve)
		if err := payerBank.GL.CanPost(ledger.LedgerDeposit, borrower, ledger.LedgerReserve, payerReserve, p.Total()); err != nil {
			return false, err
		}
		if err := b.cb.canTransferReserves(payerBank.ID, b.ID, p.Total()); err != nil {
			return false, err
		}
		if err := payerBank.GL.Post(ledger.LedgerDeposit, borrower, ledger.LedgerReserve, payerReserve, p.Total(), "Loan payment "+text); err != nil {
			return false, err
		}
		if err := b.cb.TransferReserves(payerBank.ID, b.ID, p.Total()); err != nil {
			return false, err
		}
		payerLedger, payer = ledger.LedgerReserve, b.sole(ledger.LedgerReserve)
	}

	var err error
	if negAm {
		err = b.GL.PostNegAm(payerLedger, payer, ledger.LedgerLoan, loan, p, text)
	} else {
		err = b.GL.PostLoanPayment(payerLedger, payer, ledger.LedgerLoan, loan, p, text)
	}
	if err != nil {
		return false, err
	}
	if loan.Repaid() {
		b.GL.Arena().RemoveLoan(loan.ID)
		b.logger.Info("loan repaid", slog.Int64("loan", loan.ID))
	}
	return true, nil
}

func (b *Bank) missedPayment(loan *loans.Loan) error {
	writeOff := loan.IncDefault(b.params.WriteOffLimit)
	b.logger.Info("loan payment missed",
		slog.Int64("loan", loan.ID),
		slog.Int("consecutive", loan.DefaultCount()),
		slog.Bool("in_default", loan.InDefault()))
	if !writeOff {
		return nil
	}
	return b.WriteOff(loan)
}

// WriteOff extinguishes a loan's outstanding capital against loss
// provisions, then interest income, then retained earnings and capital,
// stopping as soon as the amount is absorbed. Unrecognised growth on an
// indexed loan is first reversed against non-cash. Running out of equity
// makes the bank a zombie.
func (b *Bank) WriteOff(loan *loans.Loan) error {
	if !b.owns(loan) {
		return ErrNotOwner
	}
	text := loan.String()
	if loan.NegAm() {
		if err := b.GL.ReverseGrowth(ledger.LedgerLoan, loan, text); err != nil {
			return err
		}
	}

	outstanding := loan.CapitalOutstanding()
	remaining := outstanding
	for _, name := range waterfall {
		if remaining == 0 {
			break
		}
		acct := b.sole(name)
		take := min(remaining, acct.Balance())
		if take == 0 {
			continue
		}
		if err := b.GL.PostWriteOff(ledger.LedgerLoan, loan, name, acct, take, name); err != nil {
			return err
		}
		remaining -= take
	}

	written := outstanding - remaining
	b.metrics.LoanWrittenOff(b.ID, written)
	b.logger.Warn("loan written off",
		slog.Int64("loan", loan.ID),
		slog.Int64("amount", written),
		slog.Int64("unabsorbed", remaining))
	if remaining > 0 || b.Equity() == 0 {
		b.becomeZombie()
	}
	return nil
}
