// Package archive copies ledger transaction history into Postgres so a
// long-running simulation can be inspected after the fact.
package archive

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledgersim/internal/ledger"
)

var (
	// ErrDuplicateBatch indicates a step range already archived for the run.
	ErrDuplicateBatch = errors.New("archive: batch already archived")
	// ErrEmptyRange indicates a batch whose first step is after its last.
	ErrEmptyRange = errors.New("archive: empty step range")
)

// Record is one ledger leg of a transaction. A transaction between two
// ledgers is archived once per ledger.
type Record struct {
	Entity string
	Ledger string
	TxnID  uuid.UUID
	Step   int64
	Debit  int64
	Credit int64
	Amount int64
	Text   string
}

// Batch is the set of records posted in [FromStep, ToStep] of one run.
type Batch struct {
	ID         uuid.UUID
	RunID      string
	FromStep   int64
	ToStep     int64
	ArchivedAt time.Time
	Records    []Record
}

// Collect copies every transaction posted between from and to inclusive out
// of the general ledgers.
func Collect(runID string, gls []*ledger.GeneralLedger, from, to int64) (Batch, error) {
	if from > to {
		return Batch{}, ErrEmptyRange
	}
	batch := Batch{
		ID:         uuid.New(),
		RunID:      runID,
		FromStep:   from,
		ToStep:     to,
		ArchivedAt: time.Now().UTC(),
	}
	for _, gl := range gls {
		for _, l := range gl.Ledgers() {
			for _, txn := range l.Transactions() {
				if txn.Step < from || txn.Step > to {
					continue
				}
				batch.Records = append(batch.Records, Record{
					Entity: gl.Name,
					Ledger: l.Name,
					TxnID:  txn.ID,
					Step:   txn.Step,
					Debit:  txn.Debit,
					Credit: txn.Credit,
					Amount: txn.Amount,
					Text:   txn.Text,
				})
			}
		}
	}
	return batch, nil
}
