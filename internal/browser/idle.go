// internal/browser/idle.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
)

const minIdlePoll = 10 * time.Millisecond

// idleTracker counts in-flight requests of one tab from CDP network events
// and decides when the tab has gone quiet.
type idleTracker struct {
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	// quietSince is the last moment the count dropped to maxInflight or below.
	maxInflight int
	quietSince  time.Time
}

func newIdleTracker(logger *zap.Logger, maxInflight int) *idleTracker {
	t := &idleTracker{
		logger:      logger,
		now:         time.Now,
		inflight:    make(map[network.RequestID]struct{}),
		maxInflight: maxInflight,
	}
	t.quietSince = t.now()
	return t
}

// handleEvent is registered with chromedp.ListenTarget.
func (t *idleTracker) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		// Redirects reuse the request ID, so the map keeps the count right.
		t.started(e.RequestID)
	case *network.EventLoadingFinished:
		t.finished(e.RequestID)
	case *network.EventLoadingFailed:
		t.finished(e.RequestID)
	}
}

func (t *idleTracker) started(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
}

func (t *idleTracker) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inflight[id]; !ok {
		return
	}
	wasBusy := len(t.inflight) > t.maxInflight
	delete(t.inflight, id)
	if wasBusy && len(t.inflight) <= t.maxInflight {
		t.quietSince = t.now()
	}
}

// reset forgets requests from a previous document.
func (t *idleTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight = make(map[network.RequestID]struct{})
	t.quietSince = t.now()
}

// state reports the in-flight count and how long it has been at or under
// the threshold, zero while over it.
func (t *idleTracker) state() (int, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.inflight)
	if n > t.maxInflight {
		return n, 0
	}
	return n, t.now().Sub(t.quietSince)
}

// wait blocks until no more than maxInflight requests have been in flight
// for quietPeriod, or ctx ends.
func (t *idleTracker) wait(ctx context.Context, quietPeriod time.Duration) error {
	if quietPeriod <= 0 {
		return nil
	}
	poll := quietPeriod / 4
	if poll < minIdlePoll {
		poll = minIdlePoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		n, quietFor := t.state()
		if quietFor >= quietPeriod {
			return nil
		}
		select {
		case <-ctx.Done():
			t.logger.Debug("Network idle wait aborted.", zap.Int("inflight_requests", n), zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
