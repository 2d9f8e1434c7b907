// internal/browser/idle_test.go
package browser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeClock is advanced by hand so quiet periods need no sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(t *testing.T, maxInflight int) (*idleTracker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	tr := newIdleTracker(zaptest.NewLogger(t), maxInflight)
	tr.now = clock.Now
	tr.reset()
	return tr, clock
}

func TestIdleTracker_Counting(t *testing.T) {
	tr, clock := newTestTracker(t, 2)

	for _, id := range []network.RequestID{"1", "2", "3"} {
		tr.handleEvent(&network.EventRequestWillBeSent{RequestID: id})
	}
	// A redirect re-announces the same request.
	tr.handleEvent(&network.EventRequestWillBeSent{RequestID: "3"})

	n, quiet := tr.state()
	assert.Equal(t, 3, n)
	assert.Zero(t, quiet, "over the threshold is never quiet")

	clock.Advance(time.Second)
	tr.handleEvent(&network.EventLoadingFinished{RequestID: "1"})
	clock.Advance(300 * time.Millisecond)

	n, quiet = tr.state()
	assert.Equal(t, 2, n)
	assert.Equal(t, 300*time.Millisecond, quiet, "quiet period starts when the count drops to the threshold")

	tr.handleEvent(&network.EventLoadingFailed{RequestID: "2"})
	tr.handleEvent(&network.EventLoadingFinished{RequestID: "unknown"})
	n, quiet = tr.state()
	assert.Equal(t, 1, n)
	assert.Equal(t, 300*time.Millisecond, quiet, "dropping further does not restart the period")
}

func TestIdleTracker_Reset(t *testing.T) {
	tr, clock := newTestTracker(t, 0)
	tr.handleEvent(&network.EventRequestWillBeSent{RequestID: "a"})
	clock.Advance(time.Minute)
	tr.reset()

	n, quiet := tr.state()
	assert.Zero(t, n)
	assert.Zero(t, quiet)
}

func TestIdleTracker_Wait(t *testing.T) {
	t.Run("returns once quiet long enough", func(t *testing.T) {
		tr := newIdleTracker(zaptest.NewLogger(t), 2)
		tr.handleEvent(&network.EventRequestWillBeSent{RequestID: "1"})

		start := time.Now()
		require.NoError(t, tr.wait(context.Background(), 50*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("blocks while busy", func(t *testing.T) {
		tr := newIdleTracker(zaptest.NewLogger(t), 0)
		tr.handleEvent(&network.EventRequestWillBeSent{RequestID: "long-poll"})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err := tr.wait(ctx, 20*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("finishes after the last request completes", func(t *testing.T) {
		tr := newIdleTracker(zaptest.NewLogger(t), 0)
		tr.handleEvent(&network.EventRequestWillBeSent{RequestID: "x"})
		go func() {
			time.Sleep(30 * time.Millisecond)
			tr.handleEvent(&network.EventLoadingFinished{RequestID: "x"})
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, tr.wait(ctx, 20*time.Millisecond))
	})

	t.Run("zero quiet period does not wait", func(t *testing.T) {
		tr := newIdleTracker(zaptest.NewLogger(t), 0)
		tr.handleEvent(&network.EventRequestWillBeSent{RequestID: "x"})
		assert.NoError(t, tr.wait(context.Background(), 0))
	})
}
