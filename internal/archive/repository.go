package archive

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledgersim/internal/platform/db"
)

//go:embed schema.sql
var schema string

var recordColumns = []string{"batch_id", "run_id", "entity", "ledger", "txn_id", "step", "debit_id", "credit_id", "amount", "text"}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, rows pgx.CopyFromSource) (int64, error)
}

// Repository persists archive batches.
type Repository struct {
	q    dbtx
	inTx func(ctx context.Context, fn func(dbtx) error) error
}

// NewRepository binds the repository to a pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		q: pool,
		inTx: func(ctx context.Context, fn func(dbtx) error) error {
			return db.WithTx(ctx, pool, func(tx pgx.Tx) error { return fn(tx) })
		},
	}
}

// Migrate creates the archive tables when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// LastStep returns the last step archived for the run, -1 when nothing has
// been archived yet.
func (r *Repository) LastStep(ctx context.Context, runID string) (int64, error) {
	var step int64
	err := r.q.QueryRow(ctx, `SELECT COALESCE(MAX(to_step), -1) FROM archive_batches WHERE run_id = $1`, runID).Scan(&step)
	if err != nil {
		return 0, fmt.Errorf("archive: last step: %w", err)
	}
	return step, nil
}

// SaveBatch writes the batch header and its records in one transaction.
func (r *Repository) SaveBatch(ctx context.Context, batch Batch) error {
	if batch.FromStep > batch.ToStep {
		return ErrEmptyRange
	}
	return r.inTx(ctx, func(q dbtx) error {
		_, err := q.Exec(ctx,
			`INSERT INTO archive_batches (id, run_id, from_step, to_step, records, archived_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			batch.ID, batch.RunID, batch.FromStep, batch.ToStep, len(batch.Records), batch.ArchivedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: %s steps %d-%d", ErrDuplicateBatch, batch.RunID, batch.FromStep, batch.ToStep)
			}
			return fmt.Errorf("archive: insert batch: %w", err)
		}
		if len(batch.Records) == 0 {
			return nil
		}
		rows := pgx.CopyFromSlice(len(batch.Records), func(i int) ([]any, error) {
			rec := batch.Records[i]
			return []any{batch.ID, batch.RunID, rec.Entity, rec.Ledger, rec.TxnID, rec.Step, rec.Debit, rec.Credit, rec.Amount, rec.Text}, nil
		})
		n, err := q.CopyFrom(ctx, pgx.Identifier{"ledger_transactions"}, recordColumns, rows)
		if err != nil {
			return fmt.Errorf("archive: copy records: %w", err)
		}
		if n != int64(len(batch.Records)) {
			return fmt.Errorf("archive: copied %d of %d records", n, len(batch.Records))
		}
		return nil
	})
}
