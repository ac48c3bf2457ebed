package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/patient-ledger/ledger"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func snapshot(gen uint64, at time.Time, records ...ledger.Record) ledger.Snapshot {
	return ledger.Snapshot{
		Records:    records,
		Subtotal:   ledger.Sum(records),
		Generation: gen,
		ObservedAt: at,
	}
}

func TestLatest_EmptyStore(t *testing.T) {
	s := setupStore(t)

	_, err := s.Latest(context.Background())

	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSaveAndLatest_RoundTripsRecordsInOrder(t *testing.T) {
	// GIVEN: Two snapshots saved a minute apart
	s := setupStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := s.Save(ctx, snapshot(1, t0,
		ledger.Record{ID: "1", Name: "Ana", Price: ledger.NewPrice(100000)},
	))
	require.NoError(t, err)
	_, err = s.Save(ctx, snapshot(2, t0.Add(time.Minute),
		ledger.Record{ID: "9", Name: "Zoe", Price: ledger.MustParsePrice("70000.50")},
		ledger.Record{ID: "2", Name: "Bea", Price: ledger.NewPrice(100000)},
	))
	require.NoError(t, err)

	// WHEN: Loading the latest
	latest, err := s.Latest(ctx)

	// THEN: The newer snapshot comes back intact and in remote order
	require.NoError(t, err)
	assert.Equal(t, uint64(2), latest.Generation)
	assert.True(t, latest.ObservedAt.Equal(t0.Add(time.Minute)))
	require.Len(t, latest.Records, 2)
	assert.Equal(t, ledger.RecordID("9"), latest.Records[0].ID)
	assert.Equal(t, "70000.5", latest.Records[0].Price.Key())
	assert.Equal(t, ledger.RecordID("2"), latest.Records[1].ID)
	assert.Equal(t, "170000.5", latest.Subtotal.Key())
	assert.False(t, latest.Stale, "staleness is decided by whoever seeds the mirror")
}

func TestSave_EmptySnapshot(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, snapshot(3, time.Now()))
	require.NoError(t, err)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Empty(t, latest.Records)
	assert.NotNil(t, latest.Records)
}

func TestHistoryAndPrune(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := ledger.Record{ID: "1", Name: "Ana", Price: ledger.NewPrice(int64(100 * (i + 1)))}
		_, err := s.Save(ctx, snapshot(uint64(i+1), t0.Add(time.Duration(i)*time.Second), rec))
		require.NoError(t, err)
	}

	history, err := s.History(ctx, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, uint64(5), history[0].Generation)
	assert.Equal(t, "500", history[0].Subtotal.Key())
	assert.Equal(t, 1, history[0].Count)

	removed, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	history, err = s.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	var orphans int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshot_records WHERE snapshot_id NOT IN (SELECT id FROM mirror_snapshots)`,
	).Scan(&orphans))
	assert.Zero(t, orphans, "records cascade with their snapshot")
}

func TestLatest_SeedsMirror(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	_, err := s.Save(ctx, snapshot(4, time.Now(), ledger.Record{ID: "1", Name: "Ana", Price: ledger.NewPrice(100)}))
	require.NoError(t, err)

	saved, err := s.Latest(ctx)
	require.NoError(t, err)
	m := ledger.NewMirror(func(context.Context) (ledger.Listing, error) { return ledger.Listing{}, nil })

	assert.True(t, m.Seed(saved))
	assert.True(t, m.Current().Stale)
	assert.Equal(t, 1, m.Current().Count())
}
