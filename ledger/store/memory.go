// Package store provides ledger.Remote implementations that keep records in
// process memory.
package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/warp/patient-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory record book (for testing/dev)
// =============================================================================

// Default prices applied when a record is created without one: the first
// FirstTierSize records get FirstTierPrice, the rest get SecondTierPrice.
const (
	FirstTierSize   = 20
	FirstTierPrice  = 100_000
	SecondTierPrice = 70_000
)

// AcceptedExtensions lists the source files Ingest turns into records.
var AcceptedExtensions = []string{".doc", ".docx", ".pdf"}

// Call records one operation received by Memory, in arrival order.
type Call struct {
	Op    string
	ID    ledger.RecordID
	Price string
}

// Memory implements ledger.Remote. Ids are sequential integers and are never
// reused.
type Memory struct {
	mu      sync.RWMutex
	records []ledger.Record
	nextID  int
	calls   []Call

	failList   error
	failUpdate func(id ledger.RecordID) error
}

func NewMemory(records ...ledger.Record) *Memory {
	m := &Memory{}
	for _, r := range records {
		m.records = append(m.records, r)
		if n, err := strconv.Atoi(r.ID.String()); err == nil && n > m.nextID {
			m.nextID = n
		}
	}
	return m
}

// FailList makes every List call fail with err. nil restores normal behavior.
func (m *Memory) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failList = err
}

// FailUpdates makes Update consult fn first; a non-nil result fails the call.
func (m *Memory) FailUpdates(fn func(id ledger.RecordID) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpdate = fn
}

// Calls returns every operation received so far.
func (m *Memory) Calls() []Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CountCalls returns how many calls of op were received.
func (m *Memory) CountCalls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// List returns every record in insertion order.
func (m *Memory) List(_ context.Context) (ledger.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "list"})
	if m.failList != nil {
		return ledger.Listing{}, m.failList
	}

	records := make([]ledger.Record, len(m.records))
	copy(records, m.records)
	return ledger.Listing{Records: records, Count: len(records), Subtotal: ledger.Sum(records)}, nil
}

// Create adds a record, applying the default price when none is given.
func (m *Memory) Create(_ context.Context, draft ledger.RecordDraft) (ledger.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "create"})

	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return ledger.Record{}, rejection("create record", http.StatusBadRequest, "name is required")
	}
	price := DefaultPrice(len(m.records))
	if draft.Price != nil {
		if draft.Price.IsNegative() {
			return ledger.Record{}, rejection("create record", http.StatusBadRequest, "invalid price")
		}
		price = *draft.Price
	}
	return m.appendLocked(name, price), nil
}

// Update renames and/or re-prices a record. Like the remote, a patch without
// a price resets the record to the default price for its position.
func (m *Memory) Update(_ context.Context, id ledger.RecordID, patch ledger.RecordPatch) (ledger.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := Call{Op: "update", ID: id}
	if patch.Price != nil {
		call.Price = patch.Price.Key()
	}
	m.calls = append(m.calls, call)

	if m.failUpdate != nil {
		if err := m.failUpdate(id); err != nil {
			return ledger.Record{}, err
		}
	}

	i := m.indexLocked(id)
	if i < 0 {
		return ledger.Record{}, rejection("update record", http.StatusNotFound, "")
	}
	rec := m.records[i]
	if patch.Name != nil {
		rec.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Price != nil {
		if patch.Price.IsNegative() {
			return ledger.Record{}, rejection("update record", http.StatusBadRequest, "invalid price")
		}
		rec.Price = *patch.Price
	} else {
		rec.Price = DefaultPrice(i)
	}
	m.records[i] = rec
	return rec, nil
}

// Delete removes one record.
func (m *Memory) Delete(_ context.Context, id ledger.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "delete", ID: id})

	i := m.indexLocked(id)
	if i < 0 {
		return rejection("delete record", http.StatusNotFound, "")
	}
	m.records = append(m.records[:i], m.records[i+1:]...)
	return nil
}

// Clear removes every record.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "clear"})
	m.records = nil
	return nil
}

// Ingest turns each accepted file into a record named after the file.
// Other files are ignored. Bodies are drained so progress reporting sees
// every byte.
func (m *Memory) Ingest(_ context.Context, files []ledger.Upload, progress ledger.ProgressFunc) error {
	var sent, total int64
	for _, f := range files {
		total += f.Size
	}
	last := -1
	report := func(pct int) {
		pct = min(pct, 100)
		if progress == nil || pct <= last {
			return
		}
		last = pct
		progress(pct)
	}
	report(0)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "ingest"})
	for _, f := range files {
		if f.Body != nil {
			n, err := io.Copy(io.Discard, f.Body)
			if err != nil {
				return fmt.Errorf("read %s: %w", f.Name, err)
			}
			sent += n
			if total > 0 {
				report(int(sent * 100 / total))
			}
		}
		if !Accepted(f.Name) {
			continue
		}
		m.appendLocked(NameFromFile(f.Name), DefaultPrice(len(m.records)))
	}
	report(100)
	return nil
}

// GenerateInvoice returns a plain-text placeholder document. Rendering real
// PDF or Word files is the remote's job.
func (m *Memory) GenerateInvoice(_ context.Context, req ledger.InvoiceRequest) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "invoice"})

	if len(m.records) == 0 {
		return nil, rejection("generate invoice", http.StatusBadRequest, "no records to invoice")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "INVOICE %s (%s)\n", req.Number, req.Format)
	for i, r := range m.records {
		fmt.Fprintf(&b, "%d\t%s\t%s\n", i+1, r.Name, r.Price.Key())
	}
	fmt.Fprintf(&b, "TOTAL\t%s\n", ledger.Sum(m.records).Key())
	return []byte(b.String()), nil
}

func (m *Memory) appendLocked(name string, price ledger.Price) ledger.Record {
	m.nextID++
	rec := ledger.Record{ID: ledger.RecordID(strconv.Itoa(m.nextID)), Name: name, Price: price}
	m.records = append(m.records, rec)
	return rec
}

func (m *Memory) indexLocked(id ledger.RecordID) int {
	for i, r := range m.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// HELPERS
// =============================================================================

// DefaultPrice is the price given to the record at position idx.
func DefaultPrice(idx int) ledger.Price {
	if idx < FirstTierSize {
		return ledger.NewPrice(FirstTierPrice)
	}
	return ledger.NewPrice(SecondTierPrice)
}

// Accepted reports whether a file name has an ingestible extension.
func Accepted(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range AcceptedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// NameFromFile derives a record name from a file name:
// "ana_maria_PEREZ.pdf" becomes "Ana Maria Perez".
func NameFromFile(name string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return cases.Title(language.Und).String(strings.ReplaceAll(stem, "_", " "))
}

func rejection(op string, status int, msg string) error {
	return &ledger.RejectionError{Op: op, Status: status, Message: msg}
}

var _ ledger.Remote = (*Memory)(nil)
