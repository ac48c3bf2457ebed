/*
watch.go - Periodic mirror refresh

PURPOSE:
  Keeps the mirror close to server truth while the operator is idle, e.g.
  when another client edits the list. Used by `ledgerctl watch`.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Refreshes once immediately on start
  - Failed refreshes are logged and retried on the next tick; the mirror
    keeps its previous contents meanwhile
  - Goes through Mirror.Refresh, so it serializes with refreshes triggered
    by mutations

USAGE:
  scheduler := ledger.NewRefreshScheduler(session.Mirror(), time.Minute)
  scheduler.Start(ctx)
  // ... later
  scheduler.Stop()
*/
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RefreshScheduler refreshes a mirror on a fixed interval.
type RefreshScheduler struct {
	Mirror   *Mirror
	Interval time.Duration

	log    zerolog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewRefreshScheduler(mirror *Mirror, interval time.Duration, opts ...Option) *RefreshScheduler {
	o := collectOptions(opts)
	if interval <= 0 {
		interval = time.Minute
	}
	return &RefreshScheduler{Mirror: mirror, Interval: interval, log: o.log}
}

// Start begins refreshing. Calling Start on a running scheduler is a no-op.
func (rs *RefreshScheduler) Start(ctx context.Context) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.wg.Add(1)
	go rs.run(ctx)

	rs.log.Info().Dur("interval", rs.Interval).Msg("refresh scheduler started")
}

// Stop halts the scheduler and waits for an in-flight refresh to return.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	rs.wg.Wait()
	rs.cancel = nil
	rs.log.Info().Msg("refresh scheduler stopped")
}

func (rs *RefreshScheduler) run(ctx context.Context) {
	defer rs.wg.Done()

	ticker := time.NewTicker(rs.Interval)
	defer ticker.Stop()

	rs.tick(ctx)
	for {
		select {
		case <-ticker.C:
			rs.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (rs *RefreshScheduler) tick(ctx context.Context) {
	if _, err := rs.Mirror.Refresh(ctx); err != nil && ctx.Err() == nil {
		rs.log.Warn().Err(err).Msg("scheduled refresh failed")
	}
}
