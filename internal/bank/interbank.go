package bank

import (
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/ledgersim/internal/ledger"
	"github.com/odyssey-erp/ledgersim/internal/loans"
)

// ExcessReserves returns reserves held above the requirement.
func (b *Bank) ExcessReserves() int64 {
	return b.total(ledger.LedgerReserve) - b.RequiredReserves()
}

// lendReserves makes an interbank loan to another bank when excess reserves
// cover it. Only the lender's side is posted here.
func (b *Bank) lendReserves(to *Bank, amount int64) (*loans.Loan, error) {
	if b.zombie || b.ExcessReserves() < amount {
		return nil, nil
	}
	terms := b.cb.interbankTerms(b.sole(ledger.LedgerInterestIncome).ID, to.sole(ledger.LedgerInterestIncome).ID, amount)
	loan, err := loans.New(loans.KindInterbank, terms)
	if err != nil {
		return nil, fmt.Errorf("bank: interbank loan: %w", err)
	}
	if err := b.GL.PostLoan(ledger.LedgerLoan, b.sole(ledger.LedgerLoan), ledger.LedgerReserve, b.sole(ledger.LedgerReserve), loan, ledger.SideDebit, "IB loan to "+to.ID); err != nil {
		return nil, err
	}
	b.logger.Info("interbank loan made", slog.String("borrower", to.ID), slog.Int64("amount", amount))
	return loan, nil
}

// receiveInterbankLoan posts the borrower's side of an interbank loan:
// reserves in, interbank debt up.
func (b *Bank) receiveInterbankLoan(loan *loans.Loan, lender string) error {
	return b.GL.PostLoan(ledger.LedgerReserve, b.sole(ledger.LedgerReserve), ledger.LedgerInterbankDebt, b.sole(ledger.LedgerInterbankDebt), loan, ledger.SideCredit, "Interbank loan from "+lender)
}

// InterbankDebts returns the interbank loans the bank owes.
func (b *Bank) InterbankDebts() []*loans.Loan {
	return b.GL.MustLedger(ledger.LedgerInterbankDebt).Loans()
}

// PayInterbankLoan pays the current installment of an interbank loan out of
// reserves, with interest charged to interest income. A bank that cannot
// pay records a default and tries again next step. It reports whether the
// installment was paid.
func (b *Bank) PayInterbankLoan(loan *loans.Loan) (bool, error) {
	if !b.GL.MustLedger(ledger.LedgerInterbankDebt).ContainsLoan(loan) {
		return false, fmt.Errorf("%w: loan %d", ledger.ErrLoanNotInLedger, loan.ID)
	}
	p := loan.NextRepayment()
	if p.IsZero() {
		return false, nil
	}
	ownerAcct, ok := b.GL.Arena().Account(loan.Owner)
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownAccount, loan.Owner)
	}

	reserve := b.sole(ledger.LedgerReserve)
	income := b.sole(ledger.LedgerInterestIncome)
	short := p.Total() - reserve.Balance()
	if income.Balance() < p[loans.Interest] || (short > 0 && b.sole(ledger.LedgerCash).Balance() < short) {
		loan.IncDefault(b.params.WriteOffLimit)
		b.logger.Warn("interbank payment missed",
			slog.Int64("loan", loan.ID),
			slog.String("lender", ownerAcct.Bank),
			slog.Int("consecutive", loan.DefaultCount()))
		return false, nil
	}
	if short > 0 {
		if err := b.MoveCashToReserves(short); err != nil {
			return false, err
		}
	}

	var lender *Bank
	if ownerAcct.Bank != b.cb.Name {
		other, err := b.cb.Bank(ownerAcct.Bank)
		if err != nil {
			return false, err
		}
		if err := b.cb.canTransferReserves(b.ID, other.ID, p.Total()); err != nil {
			return false, err
		}
		if err := other.GL.CanPostLoanReceipt(ledger.LedgerReserve, other.sole(ledger.LedgerReserve), ledger.LedgerLoan, loan); err != nil {
			return false, err
		}
		lender = other
	} else if err := b.cb.canReceivePayment(b, loan); err != nil {
		return false, err
	}

	text := loan.String()
	if err := b.GL.PostLiabilityLoanPayment(ledger.LedgerInterbankDebt, loan, ledger.LedgerReserve, reserve, p, text); err != nil {
		return false, err
	}
	if lender == nil {
		if err := b.cb.receivePayment(b, loan, p); err != nil {
			return false, err
		}
	} else {
		if err := b.cb.TransferReserves(b.ID, lender.ID, p.Total()); err != nil {
			return false, err
		}
		if err := lender.GL.PostLoanReceipt(ledger.LedgerReserve, lender.sole(ledger.LedgerReserve), ledger.LedgerLoan, loan, p, text); err != nil {
			return false, err
		}
	}
	if loan.Repaid() {
		b.GL.Arena().RemoveLoan(loan.ID)
	}
	return true, nil
}

// ProvisionLosses tops the loss provision up to its share of the loan book
// out of interest income, as far as income allows.
func (b *Bank) ProvisionLosses() error {
	target := int64(float64(b.total(ledger.LedgerLoan)) * b.params.LossProvisionPct)
	provision := b.sole(ledger.LedgerLossProvision)
	income := b.sole(ledger.LedgerInterestIncome)
	amount := min(target-provision.Balance(), income.Balance())
	if amount <= 0 {
		return nil
	}
	return b.GL.Transfer(income, provision, amount, "loss provision")
}

// AdjustReserves brings reserves up to the requirement, first from till
// cash and then by borrowing. It returns any shortfall left.
func (b *Bank) AdjustReserves() (int64, error) {
	amount := b.RequiredReserves() - b.total(ledger.LedgerReserve)
	if amount <= 0 {
		return 0, nil
	}
	if transfer := min(amount, b.sole(ledger.LedgerCash).Balance()); transfer > 0 {
		if err := b.MoveCashToReserves(transfer); err != nil {
			return amount, err
		}
		amount -= transfer
	}
	if amount <= 0 {
		return 0, nil
	}
	loan, err := b.cb.BorrowReserves(b, amount)
	if err != nil {
		return amount, err
	}
	if loan == nil {
		b.logger.Warn("reserve requirement not met", slog.Int64("shortfall", amount))
		return amount, nil
	}
	return 0, nil
}

// Evaluate runs the bank's end-of-step housekeeping: interbank debt
// service, customer loan collection, loss provisioning, reserve top-up and,
// when configured, income retention.
func (b *Bank) Evaluate() error {
	step := b.GL.Step()
	for _, loan := range b.InterbankDebts() {
		if !loan.InstallmentDue(step) {
			continue
		}
		if _, err := b.PayInterbankLoan(loan); err != nil {
			return err
		}
	}
	if _, err := b.ServiceLoans(step); err != nil {
		return err
	}
	if err := b.ProvisionLosses(); err != nil {
		return err
	}
	if _, err := b.AdjustReserves(); err != nil {
		return err
	}
	if b.params.RetainIncome {
		if amount := b.sole(ledger.LedgerInterestIncome).Balance(); amount > 0 {
			if _, err := b.RecogniseIncome(amount); err != nil {
				return err
			}
		}
	}
	return nil
}
