package bank

import (
	"io"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/ledgersim/internal/ledger"
)

// BalanceSheet is a point-in-time summary of one bank's ledgers and
// regulatory ratios.
type BalanceSheet struct {
	Bank             string          `json:"bank"`
	Step             int64           `json:"step"`
	Cash             int64           `json:"cash"`
	Reserve          int64           `json:"reserve"`
	Loans            int64           `json:"loans"`
	Deposits         int64           `json:"deposits"`
	InterestIncome   int64           `json:"interest_income"`
	NonCash          int64           `json:"non_cash"`
	LossProvision    int64           `json:"loss_provision"`
	InterbankDebt    int64           `json:"interbank_debt"`
	Capital          int64           `json:"capital"`
	RetainedEarnings int64           `json:"retained_earnings"`
	Assets           int64           `json:"assets"`
	Liabilities      int64           `json:"liabilities"`
	Equity           int64           `json:"equity"`
	RiskWeighted     int64           `json:"risk_weighted"`
	CapitalAdequacy  decimal.Decimal `json:"capital_adequacy"`
	ReserveRatio     decimal.Decimal `json:"reserve_ratio"`
	Zombie           bool            `json:"zombie"`
}

// ratio returns num/den rounded to four places, zero when den is zero.
func ratio(num, den int64) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(num).Div(decimal.NewFromInt(den)).Round(4)
}

// BalanceSheet summarises the bank's current position.
func (b *Bank) BalanceSheet() BalanceSheet {
	assets, liabilities, equities := b.GL.Totals()
	sheet := BalanceSheet{
		Bank:             b.ID,
		Step:             b.GL.Step(),
		Cash:             b.total(ledger.LedgerCash),
		Reserve:          b.total(ledger.LedgerReserve),
		Loans:            b.total(ledger.LedgerLoan),
		Deposits:         b.total(ledger.LedgerDeposit),
		InterestIncome:   b.total(ledger.LedgerInterestIncome),
		NonCash:          b.total(ledger.LedgerNonCash),
		LossProvision:    b.total(ledger.LedgerLossProvision),
		InterbankDebt:    b.total(ledger.LedgerInterbankDebt),
		Capital:          b.total(ledger.LedgerCapital),
		RetainedEarnings: b.total(ledger.LedgerRetainedEarnings),
		Assets:           assets,
		Liabilities:      liabilities,
		Equity:           equities,
		RiskWeighted:     b.RiskWeightedLoans(),
		Zombie:           b.zombie,
	}
	sheet.CapitalAdequacy = ratio(sheet.Equity, sheet.RiskWeighted)
	sheet.ReserveRatio = ratio(sheet.Reserve+sheet.Cash, sheet.Deposits)
	return sheet
}

// BalanceSheets summarises every member bank.
func (cb *CentralBank) BalanceSheets() []BalanceSheet {
	sheets := make([]BalanceSheet, 0, len(cb.order))
	for _, b := range cb.order {
		sheets = append(sheets, b.BalanceSheet())
	}
	return sheets
}

// WriteBalanceSheets renders balance sheets as an aligned text table with
// amounts grouped for the given locale.
func WriteBalanceSheets(w io.Writer, sheets []BalanceSheet, tag language.Tag) error {
	p := message.NewPrinter(tag)
	for _, s := range sheets {
		rows := []struct {
			label string
			value int64
		}{
			{"cash", s.Cash},
			{"reserve", s.Reserve},
			{"loans", s.Loans},
			{"deposits", s.Deposits},
			{"interest income", s.InterestIncome},
			{"non-cash", s.NonCash},
			{"loss provision", s.LossProvision},
			{"interbank debt", s.InterbankDebt},
			{"capital", s.Capital},
			{"retained earnings", s.RetainedEarnings},
		}
		if _, err := p.Fprintf(w, "%s (step %d)\n", s.Bank, s.Step); err != nil {
			return err
		}
		for _, row := range rows {
			if _, err := p.Fprintf(w, "  %-18s %15d\n", row.label, row.value); err != nil {
				return err
			}
		}
		if _, err := p.Fprintf(w, "  %-18s %15d / %d / %d\n", "A / L / E", s.Assets, s.Liabilities, s.Equity); err != nil {
			return err
		}
		status := "active"
		if s.Zombie {
			status = "zombie"
		}
		if _, err := p.Fprintf(w, "  capital adequacy %s, reserve ratio %s, %s\n",
			s.CapitalAdequacy.StringFixed(4), s.ReserveRatio.StringFixed(4), status); err != nil {
			return err
		}
	}
	return nil
}
