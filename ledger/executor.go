/*
executor.go - Sequential mutation executor

PURPOSE:
  Applies a planned list of mutations against the remote.

POLICY (best-effort sequential):
  - One operation at a time, in plan order. The next request is only sent
    after the previous one completed. Never parallelized: the remote store
    sees no concurrent writes from a batch.
  - A failed operation does NOT abort the batch. Every planned operation is
    attempted exactly once.
  - The aggregate outcome is reported once, after the last operation.
  - No rollback. A partially failed batch leaves the remote in whatever mixed
    state the successful subset produced; the caller refreshes the mirror
    to observe it.

USAGE:
  exec := ledger.NewExecutor(remote, ledger.WithLogger(log))
  result := exec.ApplyAll(ctx, ops)
  if err := result.Err(); err != nil {
      // *PartialBatchFailure
  }
  session.AfterMutation(ctx)

SEE ALSO:
  - planner.go: Produces the mutations
  - session.go: Refreshes after the batch
*/
package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Executor applies mutations one by one through an Updater.
type Executor struct {
	remote Updater
	log    zerolog.Logger
}

func NewExecutor(remote Updater, opts ...Option) *Executor {
	o := collectOptions(opts)
	return &Executor{remote: remote, log: o.log}
}

// BatchResult is the aggregate outcome of ApplyAll.
type BatchResult struct {
	BatchID   string
	Attempted int
	Updated   []Record
	Failures  []OperationFailure
}

// Succeeded is the number of operations that went through.
func (r BatchResult) Succeeded() int { return r.Attempted - len(r.Failures) }

// Failed reports whether any operation failed.
func (r BatchResult) Failed() bool { return len(r.Failures) > 0 }

// Err returns a *PartialBatchFailure when any operation failed, nil otherwise.
func (r BatchResult) Err() error {
	if !r.Failed() {
		return nil
	}
	return &PartialBatchFailure{
		BatchID:   r.BatchID,
		Attempted: r.Attempted,
		Failures:  r.Failures,
	}
}

// ApplyAll runs every operation in order and never stops early.
func (e *Executor) ApplyAll(ctx context.Context, ops []Mutation) BatchResult {
	result := BatchResult{BatchID: uuid.NewString()}
	log := e.log.With().Str("batch_id", result.BatchID).Int("operations", len(ops)).Logger()
	log.Debug().Msg("batch started")

	for i, op := range ops {
		result.Attempted++
		updated, err := e.remote.Update(ctx, op.RecordID, op.Patch())
		if err != nil {
			log.Warn().Err(err).
				Int("index", i).
				Str("record_id", op.RecordID.String()).
				Str("price", op.Price.Key()).
				Msg("operation failed, continuing")
			result.Failures = append(result.Failures, OperationFailure{Index: i, Mutation: op, Err: err})
			continue
		}
		result.Updated = append(result.Updated, updated)
	}

	evt := log.Info()
	if result.Failed() {
		evt = log.Error()
	}
	evt.Int("succeeded", result.Succeeded()).Int("failed", len(result.Failures)).Msg("batch finished")
	return result
}
