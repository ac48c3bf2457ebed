package ledger_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/patient-ledger/ledger"
	"github.com/warp/patient-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestSession(t *testing.T, records ...ledger.Record) (*ledger.Session, *store.Memory) {
	t.Helper()
	remote := store.NewMemory(records...)
	s := ledger.NewSession(remote)
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	return s, remote
}

func ptr[T any](v T) *T { return &v }

// =============================================================================
// REFRESH AFTER EVERY MUTATION
// =============================================================================

func TestSession_EveryCommandRefreshesExactlyOnce(t *testing.T) {
	commands := map[string]ledger.Command{
		"create": ledger.CreateRecord{Draft: ledger.RecordDraft{Name: "New"}},
		"update": ledger.UpdateRecord{ID: "1", Patch: ledger.RecordPatch{Name: ptr("Renamed")}},
		"delete": ledger.DeleteRecord{ID: "1"},
		"clear":  ledger.ClearAll{},
		"ingest": ledger.IngestFiles{Files: []ledger.Upload{{Name: "a.pdf", Body: strings.NewReader("x"), Size: 1}}},
	}
	for name, cmd := range commands {
		t.Run(name, func(t *testing.T) {
			s, remote := newTestSession(t, rec("1", 100))
			before := remote.CountCalls("list")

			out, err := s.Dispatch(context.Background(), cmd)

			require.NoError(t, err)
			assert.True(t, out.Refreshed)
			assert.Equal(t, before+1, remote.CountCalls("list"))
		})
	}
}

func TestSession_FailedCommandStillRefreshes(t *testing.T) {
	// GIVEN: A delete for a record that does not exist
	s, remote := newTestSession(t, rec("1", 100))
	before := remote.CountCalls("list")

	// WHEN: Dispatching it
	out, err := s.Dispatch(context.Background(), ledger.DeleteRecord{ID: "404"})

	// THEN: The failure is reported and the mirror was refreshed anyway
	assert.True(t, ledger.IsNotFound(err))
	assert.True(t, out.Refreshed)
	assert.Equal(t, before+1, remote.CountCalls("list"))
}

func TestSession_CreateTrimsNameAndMirrorsServer(t *testing.T) {
	s, _ := newTestSession(t)

	out, err := s.Dispatch(context.Background(), ledger.CreateRecord{
		Draft: ledger.RecordDraft{Name: "  Ana Perez  ", Price: ptr(ledger.NewPrice(80000))},
	})

	require.NoError(t, err)
	require.NotNil(t, out.Record)
	assert.Equal(t, "Ana Perez", out.Record.Name)
	snap := s.Snapshot()
	require.Equal(t, 1, snap.Count())
	assert.Equal(t, "80000", snap.Subtotal.Key())
	assert.Equal(t, 1, out.Summary.Count)
}

func TestSession_RefreshFailureIsJoined(t *testing.T) {
	s, remote := newTestSession(t, rec("1", 100))
	remote.FailList(&ledger.TransportError{Op: "list records", Err: errors.New("down")})

	out, err := s.Dispatch(context.Background(), ledger.ClearAll{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrTransport)
	assert.False(t, out.Refreshed)
	assert.Equal(t, 1, s.Snapshot().Count(), "mirror keeps last observed state")
}

// =============================================================================
// BULK EDIT
// =============================================================================

func TestSession_BulkEditScenario(t *testing.T) {
	// GIVEN: mirror = [{1,100},{2,100},{3,200}]
	s, remote := newTestSession(t, rec("1", 100), rec("2", 100), rec("3", 200))
	g, err := s.OpenBulkEdit()
	require.NoError(t, err)

	// WHEN: Repricing 100 to 150
	out, err := s.Dispatch(context.Background(), ledger.ApplyBulkEdit{Grouping: g, Edits: ledger.Edits{"100": "150"}})

	// THEN: Records 1 and 2 were updated in order and the mirror reflects it
	require.NoError(t, err)
	require.Len(t, out.Plan, 2)
	assert.Equal(t, []store.Call{
		{Op: "update", ID: "1", Price: "150"},
		{Op: "update", ID: "2", Price: "150"},
	}, updateCalls(remote))
	assert.Equal(t, "500", s.Snapshot().Subtotal.Key())
	assert.Equal(t, 2, out.Batch.Succeeded())
}

func TestSession_BulkEditPartialFailureRefreshesOnce(t *testing.T) {
	// GIVEN: Two planned operations, the first fails with a transport error
	s, remote := newTestSession(t, rec("1", 100), rec("2", 100))
	remote.FailUpdates(func(id ledger.RecordID) error {
		if id == "1" {
			return errNetwork
		}
		return nil
	})
	g, err := s.OpenBulkEdit()
	require.NoError(t, err)
	before := remote.CountCalls("list")

	// WHEN: Applying the edit
	out, err := s.Dispatch(context.Background(), ledger.ApplyBulkEdit{Grouping: g, Edits: ledger.Edits{"100": "150"}})

	// THEN: PartialBatchFailure, second op applied, exactly one refresh
	assert.ErrorIs(t, err, ledger.ErrPartialBatch)
	assert.Len(t, updateCalls(remote), 2)
	assert.Equal(t, before+1, remote.CountCalls("list"))
	assert.True(t, out.Refreshed)

	snap := s.Snapshot()
	assert.Equal(t, "100", snap.Records[0].Price.Key())
	assert.Equal(t, "150", snap.Records[1].Price.Key())
}

func TestSession_InvalidEditSendsNothing(t *testing.T) {
	s, remote := newTestSession(t, rec("1", 100), rec("2", 100), rec("3", 200))
	g, err := s.OpenBulkEdit()
	require.NoError(t, err)

	out, err := s.Dispatch(context.Background(), ledger.ApplyBulkEdit{Grouping: g, Edits: ledger.Edits{"100": "0"}})

	require.NoError(t, err)
	assert.Empty(t, out.Plan)
	assert.Empty(t, updateCalls(remote))
}

func TestSession_StaleGroupingRejected(t *testing.T) {
	// GIVEN: A grouping opened before another mutation refreshed the mirror
	s, remote := newTestSession(t, rec("1", 100), rec("2", 100))
	g, err := s.OpenBulkEdit()
	require.NoError(t, err)
	_, err = s.Dispatch(context.Background(), ledger.DeleteRecord{ID: "2"})
	require.NoError(t, err)
	lists := remote.CountCalls("list")

	// WHEN: Submitting the old grouping
	_, err = s.Dispatch(context.Background(), ledger.ApplyBulkEdit{Grouping: g, Edits: ledger.Edits{"100": "150"}})

	// THEN: Rejected before any request is sent
	assert.ErrorIs(t, err, ledger.ErrStaleGrouping)
	assert.Empty(t, updateCalls(remote))
	assert.Equal(t, lists, remote.CountCalls("list"))
}

func TestSession_BareGroupingIsStale(t *testing.T) {
	s, _ := newTestSession(t, rec("1", 100))

	_, err := s.PlanBulkEdit(ledger.GroupByPrice(s.Snapshot().Records), ledger.Edits{"100": "1"})

	assert.ErrorIs(t, err, ledger.ErrStaleGrouping)
}

func TestSession_OpenBulkEditOnEmptyMirror(t *testing.T) {
	s, _ := newTestSession(t)

	g, err := s.OpenBulkEdit()

	assert.ErrorIs(t, err, ledger.ErrEmptyMirror)
	assert.True(t, g.IsEmpty())
	assert.False(t, s.Snapshot().BulkEditEnabled())
}

func TestSession_UnknownCommand(t *testing.T) {
	s, _ := newTestSession(t)

	_, err := s.Dispatch(context.Background(), nil)

	assert.ErrorIs(t, err, ledger.ErrUnknownCommand)
}

// =============================================================================
// INVOICES
// =============================================================================

func TestSession_GenerateInvoice(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	remote := store.NewMemory(rec("1", 100))
	s := ledger.NewSession(remote, ledger.WithClock(func() time.Time { return now }))
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	lists := remote.CountCalls("list")

	inv, err := s.GenerateInvoice(context.Background(), ledger.InvoiceRequest{Format: ledger.InvoiceWord})

	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultInvoiceNumber(now), inv.Request.Number)
	assert.True(t, strings.HasSuffix(inv.Request.FileName(), ".docx"))
	assert.Contains(t, string(inv.Body), inv.Request.Number)
	assert.Equal(t, lists, remote.CountCalls("list"), "invoices are not mutations")
}

func TestSession_GenerateInvoiceRefusesEmptyMirror(t *testing.T) {
	s, remote := newTestSession(t)

	_, err := s.GenerateInvoice(context.Background(), ledger.InvoiceRequest{Number: "FAC-1"})

	assert.ErrorIs(t, err, ledger.ErrEmptyMirror)
	assert.Equal(t, 0, remote.CountCalls("invoice"))
}

func TestDefaultInvoiceNumber(t *testing.T) {
	now := time.UnixMilli(1_790_000_001_234).UTC()

	assert.Equal(t, "FAC-"+now.Format("2006")+"1234", ledger.DefaultInvoiceNumber(now))
}
