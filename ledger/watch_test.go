package ledger_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/patient-ledger/ledger"
)

func TestRefreshScheduler_RefreshesImmediatelyAndOnTick(t *testing.T) {
	var calls int32
	m := ledger.NewMirror(func(context.Context) (ledger.Listing, error) {
		atomic.AddInt32(&calls, 1)
		return listing(rec("1", 100)), nil
	})
	rs := ledger.NewRefreshScheduler(m, 10*time.Millisecond)

	rs.Start(context.Background())
	rs.Start(context.Background()) // no-op
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
	rs.Stop()

	stopped := atomic.LoadInt32(&calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, atomic.LoadInt32(&calls), "no refresh after Stop")
	assert.Equal(t, 1, m.Current().Count())
}

func TestRefreshScheduler_DefaultInterval(t *testing.T) {
	rs := ledger.NewRefreshScheduler(ledger.NewMirror(staticFetch(listing())), 0)

	assert.Equal(t, time.Minute, rs.Interval)
	rs.Stop() // stopping a scheduler that never started is safe
}
