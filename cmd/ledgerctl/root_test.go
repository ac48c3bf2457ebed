package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/patient-ledger/api"
	"github.com/warp/patient-ledger/ledger"
	"github.com/warp/patient-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// harness runs ledgerctl against a sandbox server with its own snapshot db.
type harness struct {
	t   *testing.T
	srv *httptest.Server
	mem *store.Memory
	dir string

	// stderr of the last run
	errOut string
}

func newHarness(t *testing.T, records ...ledger.Record) *harness {
	t.Helper()
	mem := store.NewMemory(records...)
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(mem, zerolog.Nop()), api.RouterOptions{Logger: zerolog.Nop()}))
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv, mem: mem, dir: t.TempDir()}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	return h.runContext(context.Background(), args...)
}

func (h *harness) runContext(ctx context.Context, args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{
		"--base-url", h.srv.URL,
		"--raw",
		"--currency", "USD",
		"--log-level", "error",
		"--snapshot-db", filepath.Join(h.dir, "ledger.db"),
		"--output-dir", h.dir,
	}, args...))
	err := cmd.ExecuteContext(ctx)
	h.errOut = errOut.String()
	return out.String(), err
}

func rec(id, name string, price int64) ledger.Record {
	return ledger.Record{ID: ledger.RecordID(id), Name: name, Price: ledger.NewPrice(price)}
}

func sampleRecords() []ledger.Record {
	return []ledger.Record{
		rec("1", "Ana", 100000),
		rec("2", "Bea", 100000),
		rec("3", "Cai", 70000),
	}
}

// =============================================================================
// COMMAND TREE
// =============================================================================

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ledgerctl", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"list", "groups", "add", "edit", "delete", "clear", "upload",
		"bulk-edit", "invoice", "export", "watch", "history",
	}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"config", "raw", "style", "base-url", "timeout", "log-level", "log-format", "snapshot-db", "currency", "output-dir"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "", cmd.PersistentFlags().Lookup("base-url").DefValue, "unset flags defer to config")
}

func TestBulkEditFlags(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"bulk-edit"})
	require.NoError(t, err)

	assert.NotNil(t, sub.Flags().Lookup("set"))
	assert.Equal(t, "f", sub.Flags().Lookup("file").Shorthand)
	assert.Equal(t, "false", sub.Flags().Lookup("dry-run").DefValue)
}
