package ledger

import (
	"encoding/csv"
	"io"
	"strconv"
)

// CSVHeader is the header row of a ledger transaction export.
var CSVHeader = []string{"step", "ledger name", "credit account ID", "debit account ID", "amount", "text"}

// WriteCSV emits the ledger's transaction history, one row per transaction.
func (l *Ledger) WriteCSV(w io.Writer) error {
	return writeCSV(w, []*Ledger{l})
}

// WriteCSV emits every ledger's transactions in ledger creation order under a
// single header.
func (g *GeneralLedger) WriteCSV(w io.Writer) error {
	return writeCSV(w, g.order)
}

func writeCSV(w io.Writer, ledgers []*Ledger) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, l := range ledgers {
		if err := writeRows(writer, l); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeRows(writer *csv.Writer, l *Ledger) error {
	for _, txn := range l.transactions {
		if err := writer.Write([]string{
			strconv.FormatInt(txn.Step, 10),
			l.Name,
			strconv.FormatInt(txn.Credit, 10),
			strconv.FormatInt(txn.Debit, 10),
			strconv.FormatInt(txn.Amount, 10),
			txn.Text,
		}); err != nil {
			return err
		}
	}
	return nil
}
