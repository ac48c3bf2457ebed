/*
mirror.go - Local mirror cache of the remote record set

PURPOSE:
  Holds the most recently observed remote record set. It is the source of
  truth for every derived view until the next refresh.

CONTRACT:
  Refresh(): fetch the full set, validate it, swap it in atomically.
             Returns the new count and subtotal.
  Current(): present contents, no remote call.

INVARIANTS:
  - The mirror is only ever replaced wholesale by Refresh, never patched and
    never updated optimistically.
  - A failed or malformed fetch leaves the previous contents in place
    (stale but valid) and surfaces the error.
  - Every successful refresh bumps the generation, which invalidates any
    Grouping derived before it.

CONCURRENCY:
  Readers take a read lock. Refreshes are serialized by a dedicated mutex for
  their whole duration (fetch + swap), so a slow earlier fetch can never land
  after a newer one.

SEE ALSO:
  - grouping.go: Derived view (Mirror.Grouping)
  - session.go: Calls Refresh after every mutation
  - store/sqlite: Persists snapshots, Seed loads them back
*/
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RefreshFunc fetches the full remote record set. Usually Remote.List.
type RefreshFunc func(ctx context.Context) (Listing, error)

// Summary is what Refresh reports to its caller.
type Summary struct {
	Count      int
	Subtotal   Price
	Generation uint64
}

// Snapshot is a read-only copy of the mirror at one generation.
type Snapshot struct {
	Records    []Record
	Subtotal   Price
	Generation uint64
	ObservedAt time.Time
	// Stale is set for a snapshot seeded from local storage that no live
	// refresh has confirmed yet.
	Stale bool
}

// Count is the number of records.
func (s Snapshot) Count() int { return len(s.Records) }

// Find returns the record with the given id.
func (s Snapshot) Find(id RecordID) (Record, bool) {
	for _, r := range s.Records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// BulkEditEnabled reports whether the bulk edit entry point is available.
func (s Snapshot) BulkEditEnabled() bool { return len(s.Records) > 0 }

// Grouping derives the price grouping for this snapshot.
func (s Snapshot) Grouping() Grouping {
	g := GroupByPrice(s.Records)
	g.generation = s.Generation
	return g
}

// Mirror is the single-writer local cache.
type Mirror struct {
	fetch RefreshFunc
	log   zerolog.Logger
	clock func() time.Time

	refreshMu sync.Mutex // serializes Refresh

	mu         sync.RWMutex
	records    []Record
	subtotal   Price
	generation uint64
	observedAt time.Time
	stale      bool

	listenersMu sync.Mutex
	listeners   []func(Snapshot)
}

func NewMirror(fetch RefreshFunc, opts ...Option) *Mirror {
	o := collectOptions(opts)
	return &Mirror{
		fetch:    fetch,
		log:      o.log,
		clock:    o.clock,
		subtotal: ZeroPrice,
	}
}

// OnRefresh registers fn to be called after every successful refresh.
// Listeners run on the refreshing goroutine, after the swap.
func (m *Mirror) OnRefresh(fn func(Snapshot)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Refresh fetches and swaps in the remote record set.
func (m *Mirror) Refresh(ctx context.Context) (Summary, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	listing, err := m.fetch(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("refresh failed, keeping previous mirror")
		return Summary{}, err
	}
	if err := ValidateListing(listing); err != nil {
		m.log.Warn().Err(err).Msg("refresh returned malformed data, keeping previous mirror")
		return Summary{}, err
	}

	records := make([]Record, len(listing.Records))
	copy(records, listing.Records)
	subtotal := Sum(records)

	m.mu.Lock()
	m.records = records
	m.subtotal = subtotal
	m.generation++
	m.observedAt = m.clock()
	m.stale = false
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Debug().
		Int("count", len(records)).
		Str("subtotal", subtotal.Key()).
		Uint64("generation", snap.Generation).
		Msg("mirror refreshed")

	m.notify(snap)
	return Summary{Count: len(records), Subtotal: subtotal, Generation: snap.Generation}, nil
}

// Current returns the present contents without a remote call.
func (m *Mirror) Current() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Generation is the number of successful refreshes (or seeds) so far.
func (m *Mirror) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Grouping derives the price grouping from the current contents.
func (m *Mirror) Grouping() Grouping {
	return m.Current().Grouping()
}

// Seed loads a previously persisted snapshot as the initial state. It is
// marked stale and only applies while the mirror has never been refreshed.
func (m *Mirror) Seed(snap Snapshot) bool {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != 0 {
		return false
	}
	m.records = make([]Record, len(snap.Records))
	copy(m.records, snap.Records)
	m.subtotal = Sum(m.records)
	m.generation++
	m.observedAt = snap.ObservedAt
	m.stale = true
	return true
}

func (m *Mirror) snapshotLocked() Snapshot {
	records := make([]Record, len(m.records))
	copy(records, m.records)
	return Snapshot{
		Records:    records,
		Subtotal:   m.subtotal,
		Generation: m.generation,
		ObservedAt: m.observedAt,
		Stale:      m.stale,
	}
}

func (m *Mirror) notify(snap Snapshot) {
	m.listenersMu.Lock()
	listeners := make([]func(Snapshot), len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// =============================================================================
// LISTING VALIDATION
// =============================================================================

// ValidateListing checks that a listing is internally consistent. A listing
// that fails is never swapped into the mirror.
func ValidateListing(l Listing) error {
	const op = "list records"
	if l.Count != len(l.Records) {
		return &MalformedError{Op: op, Reason: fmt.Sprintf("count %d does not match %d records", l.Count, len(l.Records))}
	}
	seen := make(map[RecordID]bool, len(l.Records))
	for _, r := range l.Records {
		if r.ID == "" {
			return &MalformedError{Op: op, Reason: "record without id"}
		}
		if seen[r.ID] {
			return &MalformedError{Op: op, Reason: fmt.Sprintf("duplicate record id %s", r.ID)}
		}
		seen[r.ID] = true
		if r.Price.IsNegative() {
			return &MalformedError{Op: op, Reason: fmt.Sprintf("record %s has negative price %s", r.ID, r.Price.Key())}
		}
	}
	if sum := Sum(l.Records); !sum.Equal(l.Subtotal) {
		return &MalformedError{Op: op, Reason: fmt.Sprintf("subtotal %s does not match sum of prices %s", l.Subtotal.Key(), sum.Key())}
	}
	return nil
}
