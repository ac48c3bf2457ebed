package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/patient-ledger/ledger"
)

func remotePrices(t *testing.T, h *harness) map[ledger.RecordID]string {
	t.Helper()
	listing, err := h.mem.List(context.Background())
	require.NoError(t, err)
	prices := make(map[ledger.RecordID]string, len(listing.Records))
	for _, r := range listing.Records {
		prices[r.ID] = r.Price.Key()
	}
	return prices
}

// =============================================================================
// READ COMMANDS
// =============================================================================

func TestList(t *testing.T) {
	h := newHarness(t, sampleRecords()...)

	out, err := h.run("list")

	require.NoError(t, err)
	assert.Contains(t, out, "| 1 | 1 | Ana | $100,000.00 |")
	assert.Contains(t, out, "| 3 | 3 | Cai | $70,000.00 |")
	assert.Contains(t, out, "**Subtotal:** $270,000.00")
}

func TestList_FallsBackToLastSnapshot(t *testing.T) {
	// GIVEN: One successful list saved a snapshot
	h := newHarness(t, sampleRecords()...)
	_, err := h.run("list")
	require.NoError(t, err)

	// WHEN: The remote goes away
	h.srv.Close()
	out, err := h.run("list")

	// THEN: The saved copy is shown and flagged
	require.NoError(t, err)
	assert.Contains(t, out, "_Offline copy observed")
	assert.Contains(t, out, "| 2 | 2 | Bea | $100,000.00 |")
}

func TestList_Offline(t *testing.T) {
	h := newHarness(t, sampleRecords()...)

	_, err := h.run("list", "--offline")
	assert.Error(t, err, "nothing saved yet")

	_, err = h.run("groups")
	require.NoError(t, err)
	calls := h.mem.CountCalls("list")

	out, err := h.run("list", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "_Offline copy observed")
	assert.Equal(t, calls, h.mem.CountCalls("list"), "offline never contacts the remote")
}

func TestGroups(t *testing.T) {
	h := newHarness(t, sampleRecords()...)

	out, err := h.run("groups")

	require.NoError(t, err)
	assert.Contains(t, out, "| $100,000.00 | 2 | 1, 2 |")
	assert.Contains(t, out, "| $70,000.00 | 1 | 3 |")
}

func TestHistory(t *testing.T) {
	h := newHarness(t, sampleRecords()...)
	_, err := h.run("list")
	require.NoError(t, err)

	out, err := h.run("history")

	require.NoError(t, err)
	assert.Contains(t, out, "| Observed | Generation | Records | Subtotal |")
	assert.Contains(t, out, "| 3 | $270,000.00 |")
}

// =============================================================================
// SINGLE RECORD COMMANDS
// =============================================================================

func TestAdd(t *testing.T) {
	h := newHarness(t, sampleRecords()...)

	out, err := h.run("add", "  Zed  ", "--price", "5")

	require.NoError(t, err)
	assert.Contains(t, out, `Created 4 "Zed" at $5.00`)
	assert.Contains(t, out, "4 record(s), subtotal $270,005.00")
}

func TestAdd_RejectsNegativePrice(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("add", "Zed", "--price", "-1")

	assert.Error(t, err)
	assert.Zero(t, h.mem.CountCalls("create"))
}

func TestEdit(t *testing.T) {
	h := newHarness(t, sampleRecords()...)

	_, err := h.run("edit", "1")
	assert.Error(t, err, "no changes requested")

	out, err := h.run("edit", "1", "--name", "Ana Maria", "--price", "90000")
	require.NoError(t, err)
	assert.Contains(t, out, `Updated 1 "Ana Maria" at $90,000.00`)
}

func TestEdit_RenameKeepsCurrentPrice(t *testing.T) {
	// GIVEN: A record priced away from the remote's default
	h := newHarness(t, rec("1", "Ana", 55000))

	// WHEN: Renaming it only
	out, err := h.run("edit", "1", "--name", "Ana Maria")

	// THEN: The current price was sent along and survives
	require.NoError(t, err)
	assert.Contains(t, out, `Updated 1 "Ana Maria" at $55,000.00`)
	assert.Equal(t, map[ledger.RecordID]string{"1": "55000"}, remotePrices(t, h))
}

func TestEdit_UnknownRecordStillRefreshes(t *testing.T) {
	h := newHarness(t, sampleRecords()...)

	out, err := h.run("edit", "99", "--price", "1")

	require.Error(t, err)
	assert.True(t, ledger.IsNotFound(err))
	assert.Contains(t, out, "3 record(s)")
}

func TestDeleteAndClear(t *testing.T) {
	h := newHarness(t, sampleRecords()...)

	out, err := h.run("delete", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2 record(s), subtotal $170,000.00")

	_, err = h.run("clear")
	assert.Error(t, err, "clear needs --yes")
	assert.Zero(t, h.mem.CountCalls("clear"))

	out, err = h.run("clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "0 record(s)")
}

func TestUpload(t *testing.T) {
	h := newHarness(t)
	src := t.TempDir()
	a := filepath.Join(src, "ana_perez.pdf")
	b := filepath.Join(src, "juan_gomez.docx")
	require.NoError(t, os.WriteFile(a, []byte("%PDF-1.4"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("PK"), 0o600))

	out, err := h.run("upload", "-q", a, b)

	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded 2 file(s)")
	assert.Contains(t, out, "2 record(s), subtotal $200,000.00")
}

func TestUpload_FailureEndsProgressLine(t *testing.T) {
	// GIVEN: A remote that is gone
	h := newHarness(t)
	file := filepath.Join(t.TempDir(), "ana_perez.pdf")
	require.NoError(t, os.WriteFile(file, []byte("%PDF-1.4"), 0o600))
	h.srv.Close()

	// WHEN: Uploading with progress shown
	_, err := h.run("upload", file)

	// THEN: The progress line is terminated before the error is printed
	require.Error(t, err)
	assert.Contains(t, h.errOut, "Uploading...")
	assert.NotContains(t, h.errOut, "100%")
	assert.True(t, strings.HasSuffix(h.errOut, "\n"), "stderr: %q", h.errOut)
}

// =============================================================================
// BULK EDIT
// =============================================================================

func TestBulkEdit(t *testing.T) {
	// GIVEN: Two records at 100000 and one at 70000
	h := newHarness(t, sampleRecords()...)

	// WHEN: Re-pricing the 100000 group
	out, err := h.run("bulk-edit", "--set", "100000=120000")

	// THEN: Exactly the group members were updated
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 2 update(s) applied")
	assert.Contains(t, out, "| $120,000.00 | 2 | 1, 2 |")
	assert.Equal(t, map[ledger.RecordID]string{"1": "120000", "2": "120000", "3": "70000"}, remotePrices(t, h))
}

func TestBulkEdit_FromYAMLWithFlagOverride(t *testing.T) {
	h := newHarness(t, sampleRecords()...)
	file := filepath.Join(t.TempDir(), "prices.yaml")
	require.NoError(t, os.WriteFile(file, []byte("100000: 110000\n70000: 75000\n"), 0o600))

	_, err := h.run("bulk-edit", "-f", file, "--set", "70000=80000")

	require.NoError(t, err)
	assert.Equal(t, map[ledger.RecordID]string{"1": "110000", "2": "110000", "3": "80000"}, remotePrices(t, h))
}

func TestBulkEdit_DryRunSendsNothing(t *testing.T) {
	h := newHarness(t, sampleRecords()...)

	out, err := h.run("bulk-edit", "--set", "100000=120000", "--dry-run")

	require.NoError(t, err)
	assert.Contains(t, out, "2 update(s).")
	assert.Zero(t, h.mem.CountCalls("update"))
}

func TestBulkEdit_PartialFailureExitsNonZero(t *testing.T) {
	h := newHarness(t, sampleRecords()...)
	h.mem.FailUpdates(func(id ledger.RecordID) error {
		if id == "1" {
			return &ledger.RejectionError{Op: "update record", Status: 500, Message: "boom"}
		}
		return nil
	})

	out, err := h.run("bulk-edit", "--set", "100000=120000")

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrPartialBatch)
	assert.Contains(t, out, "1 of 2 update(s) applied")
	assert.Equal(t, "120000", remotePrices(t, h)["2"])
}

func TestBulkEdit_NeedsEditsAndRecords(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("bulk-edit")
	assert.Error(t, err)

	_, err = h.run("bulk-edit", "--set", "1=2")
	assert.ErrorIs(t, err, ledger.ErrEmptyMirror)
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestInvoice(t *testing.T) {
	h := newHarness(t, sampleRecords()...)

	out, err := h.run("invoice", "--number", "FAC-1", "--format", "word")

	require.NoError(t, err)
	path := filepath.Join(h.dir, "Factura_FAC-1.docx")
	assert.Contains(t, out, path)
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "INVOICE FAC-1")
}

func TestInvoice_EmptyList(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("invoice")

	assert.ErrorIs(t, err, ledger.ErrEmptyMirror)
	assert.Zero(t, h.mem.CountCalls("invoice"))
}

func TestExport(t *testing.T) {
	h := newHarness(t, sampleRecords()...)
	path := filepath.Join(t.TempDir(), "patients.xlsx")

	out, err := h.run("export", path)

	require.NoError(t, err)
	assert.Contains(t, out, "Exported 3 record(s)")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_PrintsOnlyChanges(t *testing.T) {
	// GIVEN: A remote that does not change while watched
	h := newHarness(t, sampleRecords()...)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	// WHEN: Watching with a short interval until the context ends
	out, err := h.runContext(ctx, "watch", "--interval", "20ms")

	// THEN: Several refreshes happened but one line was printed
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "3 record(s), subtotal $270,000.00"))
	assert.Greater(t, h.mem.CountCalls("list"), 1)
}
