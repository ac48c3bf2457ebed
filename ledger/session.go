/*
session.go - Refresh orchestrator and command dispatch

PURPOSE:
  The single choke point between operator actions and the remote. It runs
  one command, then re-synchronizes the mirror exactly once, whether the
  command succeeded, failed, or partially failed.

EXPOSED TO THE UI LAYER:
  Snapshot()        current records, count, subtotal
  OpenBulkEdit()    fresh price grouping for the bulk edit view
  Dispatch(cmd)     create / update / delete / clear / bulk edit / ingest
  Mirror().OnRefresh(fn)   refresh-completed notification

ERROR POLICY:
  The command error and the refresh error are joined. A command error never
  skips the refresh, and a refresh error never hides the command error.

SEE ALSO:
  - commands.go: Command types
  - mirror.go: Refresh
  - planner.go, executor.go: Bulk edit path
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Session struct {
	remote   Remote
	mirror   *Mirror
	executor *Executor
	log      zerolog.Logger
	clock    func() time.Time
}

// NewSession wires a mirror and an executor around remote.
func NewSession(remote Remote, opts ...Option) *Session {
	o := collectOptions(opts)
	return &Session{
		remote:   remote,
		mirror:   NewMirror(remote.List, opts...),
		executor: NewExecutor(remote, opts...),
		log:      o.log,
		clock:    o.clock,
	}
}

// Mirror exposes the underlying cache, e.g. to register refresh listeners.
func (s *Session) Mirror() *Mirror { return s.mirror }

// Snapshot returns the current mirror contents.
func (s *Session) Snapshot() Snapshot { return s.mirror.Current() }

// Refresh loads the mirror without a preceding mutation.
func (s *Session) Refresh(ctx context.Context) (Summary, error) {
	return s.mirror.Refresh(ctx)
}

// AfterMutation re-synchronizes the mirror. It always issues exactly one
// refresh.
func (s *Session) AfterMutation(ctx context.Context) (Summary, error) {
	summary, err := s.mirror.Refresh(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("refresh after mutation: %w", err)
	}
	return summary, nil
}

// OpenBulkEdit derives a fresh grouping from the current mirror. With no
// records the bulk edit entry point is disabled and ErrEmptyMirror is returned.
func (s *Session) OpenBulkEdit() (Grouping, error) {
	g := s.mirror.Grouping()
	if g.IsEmpty() {
		return g, ErrEmptyMirror
	}
	return g, nil
}

// PlanBulkEdit previews the mutations for edits without applying them.
func (s *Session) PlanBulkEdit(grouping Grouping, edits Edits) ([]Mutation, error) {
	if grouping.Generation() != s.mirror.Generation() {
		return nil, ErrStaleGrouping
	}
	return Plan(grouping, edits), nil
}

// Dispatch runs cmd against the remote, then refreshes the mirror.
func (s *Session) Dispatch(ctx context.Context, cmd Command) (Outcome, error) {
	if cmd == nil {
		return Outcome{}, fmt.Errorf("%w: nil", ErrUnknownCommand)
	}
	out := Outcome{Command: cmd.commandName()}
	log := s.log.With().Str("command", out.Command).Logger()

	var opErr error
	switch c := cmd.(type) {
	case CreateRecord:
		draft := c.Draft
		draft.Name = strings.TrimSpace(draft.Name)
		rec, err := s.remote.Create(ctx, draft)
		if err == nil {
			out.Record = &rec
		}
		opErr = err

	case UpdateRecord:
		patch := c.Patch
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			patch.Name = &name
		}
		rec, err := s.remote.Update(ctx, c.ID, patch)
		if err == nil {
			out.Record = &rec
		}
		opErr = err

	case DeleteRecord:
		opErr = s.remote.Delete(ctx, c.ID)

	case ClearAll:
		opErr = s.remote.Clear(ctx)

	case ApplyBulkEdit:
		plan, err := s.PlanBulkEdit(c.Grouping, c.Edits)
		if err != nil {
			// Nothing was sent: no mutation to re-synchronize after.
			return out, err
		}
		out.Plan = plan
		batch := s.executor.ApplyAll(ctx, plan)
		out.Batch = &batch
		opErr = batch.Err()

	case IngestFiles:
		opErr = s.remote.Ingest(ctx, c.Files, c.Progress)

	default:
		return out, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}

	if opErr != nil {
		log.Warn().Err(opErr).Msg("command failed")
		opErr = fmt.Errorf("%s: %w", out.Command, opErr)
	}

	summary, refreshErr := s.AfterMutation(ctx)
	if refreshErr == nil {
		out.Summary = summary
		out.Refreshed = true
	}
	return out, errors.Join(opErr, refreshErr)
}

// =============================================================================
// INVOICES - Not a mutation, no refresh
// =============================================================================

// Invoice is a generated document.
type Invoice struct {
	Request InvoiceRequest
	Body    []byte
}

// GenerateInvoice asks the remote for a document. It refuses an empty mirror
// and fills in a default invoice number when none is given.
func (s *Session) GenerateInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error) {
	if s.mirror.Current().Count() == 0 {
		return Invoice{}, ErrEmptyMirror
	}
	if req.Format == "" {
		req.Format = InvoicePDF
	}
	req.Number = strings.TrimSpace(req.Number)
	if req.Number == "" {
		req.Number = DefaultInvoiceNumber(s.clock())
	}
	body, err := s.remote.GenerateInvoice(ctx, req)
	if err != nil {
		return Invoice{}, fmt.Errorf("generate invoice %s: %w", req.Number, err)
	}
	s.log.Info().Str("invoice", req.Number).Str("format", string(req.Format)).Int("bytes", len(body)).Msg("invoice generated")
	return Invoice{Request: req, Body: body}, nil
}

// DefaultInvoiceNumber is FAC-<year><last four digits of the unix millis>.
func DefaultInvoiceNumber(now time.Time) string {
	return fmt.Sprintf("FAC-%d%04d", now.Year(), now.UnixMilli()%10000)
}
