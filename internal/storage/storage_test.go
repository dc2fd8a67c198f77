package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/eddiefleurent/spy_options_collector/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "storage_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(dir)
	})
	return dir
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(mustTempDir(t), "options_data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func sampleRows(n int, ts string) []models.OptionRow {
	rows := make([]models.OptionRow, n)
	for i := range rows {
		rows[i] = models.OptionRow{
			Symbol:         fmt.Sprintf("SPY240105C%08d", 400000+i*1000),
			RootSymbol:     "SPY",
			OptionType:     "call",
			Strike:         400 + float64(i),
			Expiration:     "2024-01-05",
			QuoteTimestamp: ts,
			Bid:            1.25 + float64(i)/100,
			Ask:            1.30 + float64(i)/100,
			BidSize:        10 + i,
			AskSize:        20 + i,
		}
	}
	return rows
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(mustTempDir(t), "no", "such", "dir", "options.db"))
	require.Error(t, err)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx))

	res, err := store.engine.QueryString("SELECT count(*) AS n FROM sqlite_master WHERE type = 'table' AND name = 'options'")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "1", res[0]["n"])
}

func TestEnsureSchema_PrimaryKeyColumns(t *testing.T) {
	store := openTestStore(t)

	res, err := store.engine.QueryString("SELECT name, pk FROM pragma_table_info('options') WHERE pk > 0 ORDER BY pk")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "symbol", res[0]["name"])
	assert.Equal(t, "quote_timestamp", res[1]["name"])
}

func TestInsertBatch_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	rows := sampleRows(5, "2024-01-04T10:30:00.000000")

	require.NoError(t, store.InsertBatch(ctx, rows))

	got, err := store.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestInsertBatch_SameContractAcrossRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertBatch(ctx, sampleRows(3, "2024-01-04T10:30:00.000000")))
	require.NoError(t, store.InsertBatch(ctx, sampleRows(3, "2024-01-04T11:30:00.000000")))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)
}

func TestInsertBatch_DuplicateRollsBackWholeBatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := sampleRows(2, "2024-01-04T10:30:00.000000")
	require.NoError(t, store.InsertBatch(ctx, first))

	// Two fresh rows plus one that repeats an existing (symbol, quote_timestamp)
	batch := []models.OptionRow{
		{Symbol: "SPY240105P00380000", RootSymbol: "SPY", OptionType: "put", Strike: 380, Expiration: "2024-01-05", QuoteTimestamp: "2024-01-04T10:30:00.000000"},
		{Symbol: "SPY240105P00390000", RootSymbol: "SPY", OptionType: "put", Strike: 390, Expiration: "2024-01-05", QuoteTimestamp: "2024-01-04T10:30:00.000000"},
		first[1],
	}
	err := store.InsertBatch(ctx, batch)
	require.Error(t, err)

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	require.NotNil(t, perr.Sample)
	assert.Equal(t, batch[0], *perr.Sample)
	assert.Equal(t, 3, perr.Rows)

	got, err := store.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, got, "store must be unchanged after a failed batch")
}

func TestInsertBatch_DuplicateWithinBatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rows := sampleRows(3, "2024-01-04T10:30:00.000000")
	rows = append(rows, rows[0])

	require.Error(t, store.InsertBatch(ctx, rows))
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertBatch_SpansChunksAtomically(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rows := sampleRows(insertChunkSize*2+7, "2024-01-04T10:30:00.000000")
	require.NoError(t, store.InsertBatch(ctx, rows))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, len(rows), n)

	// A duplicate in the last chunk must also undo the earlier chunks
	again := sampleRows(insertChunkSize+1, "2024-01-04T12:00:00.000000")
	again[len(again)-1] = rows[0]
	require.Error(t, store.InsertBatch(ctx, again))

	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, len(rows), n)
}

func TestInsertBatch_Empty(t *testing.T) {
	store := openTestStore(t)
	assert.NoError(t, store.InsertBatch(context.Background(), nil))
}

func TestInsertBatch_WithoutSchema(t *testing.T) {
	store, err := Open(filepath.Join(mustTempDir(t), "fresh.db"))
	require.NoError(t, err)
	defer store.Close()

	err = store.InsertBatch(context.Background(), sampleRows(1, "2024-01-04T10:30:00.000000"))
	var perr *PersistenceError
	assert.True(t, errors.As(err, &perr))
}

func TestVersion(t *testing.T) {
	store := openTestStore(t)
	v, err := store.Version(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}

func TestMockStorage_MatchesSQLiteSemantics(t *testing.T) {
	m := NewMockStorage()
	ctx := context.Background()

	rows := sampleRows(2, "2024-01-04T10:30:00.000000")
	assert.Error(t, m.InsertBatch(ctx, rows), "insert before schema should fail")

	require.NoError(t, m.EnsureSchema(ctx))
	require.NoError(t, m.InsertBatch(ctx, rows))
	require.Error(t, m.InsertBatch(ctx, append(sampleRows(1, "2024-01-04T11:00:00.000000"), rows[0])))

	got, err := m.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}
