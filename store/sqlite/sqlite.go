/*
Package sqlite persists observed mirror snapshots in SQLite.

PURPOSE:
  Keeps a local history of what the remote record list looked like after
  each successful refresh. ledgerctl saves every refreshed snapshot and can
  show the latest one offline, flagged as stale, when the remote is
  unreachable. The remote stays the only source of truth: nothing here is
  ever written back.

KEY TABLES:
  mirror_snapshots:  One row per observed refresh (generation, subtotal, time)
  snapshot_records:  The records of a snapshot, in remote order

INDEXES:
  - idx_snapshots_observed: Latest snapshot lookup (hot path)
  - primary key (snapshot_id, position) keeps record order

CONCURRENCY:
  Uses sync.RWMutex for thread-safety around the single connection pool.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the refresh writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  mirror.OnRefresh(func(s ledger.Snapshot) { store.Save(ctx, s) })

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/mirror.go: Snapshot and Mirror.Seed
  - cmd/ledgerctl: Saves after refresh, reads for list --offline
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/patient-ledger/ledger"
)

// timeLayout is fixed width so observed_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNoSnapshot is returned by Latest when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

// Store persists mirror snapshots.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// SnapshotInfo summarizes one saved snapshot.
type SnapshotInfo struct {
	ID         string
	Generation uint64
	Count      int
	Subtotal   ledger.Price
	ObservedAt time.Time
}

// New opens (or creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives only as long as its one connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mirror_snapshots (
		id TEXT PRIMARY KEY,
		generation INTEGER NOT NULL,
		record_count INTEGER NOT NULL,
		subtotal TEXT NOT NULL,
		observed_at TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_observed
		ON mirror_snapshots(observed_at DESC);

	CREATE TABLE IF NOT EXISTS snapshot_records (
		snapshot_id TEXT NOT NULL REFERENCES mirror_snapshots(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		record_id TEXT NOT NULL,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		PRIMARY KEY (snapshot_id, position)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITES
// =============================================================================

// Save stores a snapshot with its records atomically and returns its id.
func (s *Store) Save(ctx context.Context, snap ledger.Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	observed := snap.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO mirror_snapshots (id, generation, record_count, subtotal, observed_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, int64(snap.Generation), len(snap.Records), snap.Subtotal.Key(), observed.UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_records (snapshot_id, position, record_id, name, price)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range snap.Records {
		if _, err := stmt.ExecContext(ctx, id, i, string(r.ID), r.Name, r.Price.Key()); err != nil {
			return "", fmt.Errorf("failed to save record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return id, nil
}

// Prune keeps the newest keep snapshots and deletes the rest.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM mirror_snapshots
		WHERE id NOT IN (
			SELECT id FROM mirror_snapshots
			ORDER BY observed_at DESC, created_at DESC
			LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// READS
// =============================================================================

// Latest returns the most recently observed snapshot.
func (s *Store) Latest(ctx context.Context) (ledger.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		id       string
		gen      int64
		subtotal string
		observed string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, generation, subtotal, observed_at
		FROM mirror_snapshots
		ORDER BY observed_at DESC, created_at DESC
		LIMIT 1
	`).Scan(&id, &gen, &subtotal, &observed)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	snap := ledger.Snapshot{Generation: uint64(gen)}
	if snap.Subtotal, err = ledger.ParsePrice(subtotal); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("snapshot %s: %w", id, err)
	}
	if snap.ObservedAt, err = time.Parse(timeLayout, observed); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("snapshot %s: %w", id, err)
	}
	if snap.Records, err = s.loadRecords(ctx, id); err != nil {
		return ledger.Snapshot{}, err
	}
	return snap, nil
}

// History lists saved snapshots, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, generation, record_count, subtotal, observed_at
		FROM mirror_snapshots
		ORDER BY observed_at DESC, created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var (
			info     SnapshotInfo
			gen      int64
			subtotal string
			observed string
		)
		if err := rows.Scan(&info.ID, &gen, &info.Count, &subtotal, &observed); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		info.Generation = uint64(gen)
		if info.Subtotal, err = ledger.ParsePrice(subtotal); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", info.ID, err)
		}
		if info.ObservedAt, err = time.Parse(timeLayout, observed); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", info.ID, err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *Store) loadRecords(ctx context.Context, snapshotID string) ([]ledger.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, name, price
		FROM snapshot_records
		WHERE snapshot_id = ?
		ORDER BY position ASC
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot records: %w", err)
	}
	defer rows.Close()

	records := []ledger.Record{}
	for rows.Next() {
		var (
			r     ledger.Record
			id    string
			price string
		)
		if err := rows.Scan(&id, &r.Name, &price); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.ID = ledger.RecordID(id)
		if r.Price, err = ledger.ParsePrice(price); err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
