// internal/browser/context_utils.go
package browser

import (
	"context"
)

// CombineContext returns a context that carries the values of tabCtx (chromedp
// keeps the target there) and is cancelled when either tabCtx or callerCtx is.
func CombineContext(tabCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)
	if deadline, ok := callerCtx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		combined, cancelDeadline = context.WithDeadline(combined, deadline)
		prev := cancel
		cancel = func() { cancelDeadline(); prev() }
	}
	stop := context.AfterFunc(callerCtx, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
