package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgersim/internal/ledger"
)

type stubRow struct {
	value int64
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.value
	return nil
}

type stubDB struct {
	execSQL  []string
	execErr  error
	row      stubRow
	copied   [][]any
	copyErr  error
	table    pgx.Identifier
	columns  []string
	txCalled int
}

func (s *stubDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execSQL = append(s.execSQL, sql)
	if s.execErr != nil {
		return pgconn.CommandTag{}, s.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (s *stubDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.row
}

func (s *stubDB) CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, rows pgx.CopyFromSource) (int64, error) {
	if s.copyErr != nil {
		return 0, s.copyErr
	}
	s.table = table
	s.columns = columns
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return 0, err
		}
		s.copied = append(s.copied, values)
	}
	return int64(len(s.copied)), rows.Err()
}

func newStubRepository(stub *stubDB) *Repository {
	return &Repository{
		q: stub,
		inTx: func(ctx context.Context, fn func(dbtx) error) error {
			stub.txCalled++
			return fn(stub)
		},
	}
}

func postedLedger(t *testing.T) *ledger.GeneralLedger {
	t.Helper()
	clock := &ledger.StepClock{}
	gl := ledger.NewGeneralLedger("alpha", ledger.NewArena(), clock)
	require.NoError(t, gl.Setup(ledger.BankDefinitions(), "alpha"))
	cash := gl.MustLedger(ledger.LedgerCash).MustAccount()
	capital := gl.MustLedger(ledger.LedgerCapital).MustAccount()
	require.NoError(t, gl.Post(ledger.LedgerCash, cash, ledger.LedgerCapital, capital, 1000, "sell capital"))
	clock.Advance()
	clock.Advance()
	require.NoError(t, gl.Post(ledger.LedgerCash, cash, ledger.LedgerCapital, capital, 500, "sell capital"))
	return gl
}

func TestCollectFiltersByStep(t *testing.T) {
	gl := postedLedger(t)

	batch, err := Collect("run1", []*ledger.GeneralLedger{gl}, 1, 2)
	require.NoError(t, err)
	require.Equal(t, "run1", batch.RunID)
	require.NotEqual(t, uuid.Nil, batch.ID)
	require.Len(t, batch.Records, 2)
	for _, rec := range batch.Records {
		require.Equal(t, int64(2), rec.Step)
		require.Equal(t, int64(500), rec.Amount)
		require.Equal(t, "alpha", rec.Entity)
	}
	require.Equal(t, batch.Records[0].TxnID, batch.Records[1].TxnID)

	all, err := Collect("run1", []*ledger.GeneralLedger{gl}, 0, 2)
	require.NoError(t, err)
	require.Len(t, all.Records, 4)

	_, err = Collect("run1", nil, 3, 2)
	require.ErrorIs(t, err, ErrEmptyRange)
}

func TestSaveBatchCopiesRecords(t *testing.T) {
	batch, err := Collect("run1", []*ledger.GeneralLedger{postedLedger(t)}, 0, 2)
	require.NoError(t, err)
	stub := &stubDB{}
	repo := newStubRepository(stub)

	require.NoError(t, repo.SaveBatch(context.Background(), batch))
	require.Equal(t, 1, stub.txCalled)
	require.Len(t, stub.execSQL, 1)
	require.Contains(t, stub.execSQL[0], "INSERT INTO archive_batches")
	require.Equal(t, pgx.Identifier{"ledger_transactions"}, stub.table)
	require.Equal(t, recordColumns, stub.columns)
	require.Len(t, stub.copied, 4)
	require.Equal(t, batch.ID, stub.copied[0][0])
	require.Equal(t, "run1", stub.copied[0][1])
}

func TestSaveBatchMapsUniqueViolation(t *testing.T) {
	stub := &stubDB{execErr: &pgconn.PgError{Code: "23505"}}
	repo := newStubRepository(stub)

	err := repo.SaveBatch(context.Background(), Batch{ID: uuid.New(), RunID: "run1", FromStep: 0, ToStep: 5})
	require.ErrorIs(t, err, ErrDuplicateBatch)
	require.Empty(t, stub.copied)

	stub.execErr = errors.New("connection reset")
	err = repo.SaveBatch(context.Background(), Batch{ID: uuid.New(), RunID: "run1", FromStep: 0, ToStep: 5})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrDuplicateBatch)

	require.ErrorIs(t, repo.SaveBatch(context.Background(), Batch{FromStep: 2, ToStep: 1}), ErrEmptyRange)
}

func TestSaveEmptyBatchSkipsCopy(t *testing.T) {
	stub := &stubDB{}
	repo := newStubRepository(stub)
	require.NoError(t, repo.SaveBatch(context.Background(), Batch{ID: uuid.New(), RunID: "run1", FromStep: 3, ToStep: 3}))
	require.Len(t, stub.execSQL, 1)
	require.Nil(t, stub.table)
}

func TestLastStep(t *testing.T) {
	repo := newStubRepository(&stubDB{row: stubRow{value: 42}})
	step, err := repo.LastStep(context.Background(), "run1")
	require.NoError(t, err)
	require.Equal(t, int64(42), step)

	repo = newStubRepository(&stubDB{row: stubRow{err: pgx.ErrNoRows}})
	_, err = repo.LastStep(context.Background(), "run1")
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMigrateRunsSchema(t *testing.T) {
	stub := &stubDB{}
	require.NoError(t, newStubRepository(stub).Migrate(context.Background()))
	require.Contains(t, stub.execSQL[0], "CREATE TABLE IF NOT EXISTS ledger_transactions")
}
