// internal/browser/tab.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-a11y/internal/config"
)

// ErrTabClosed is returned by operations on a closed tab.
var ErrTabClosed = errors.New("tab is closed")

// Tab is one browser page context. It is used by a single goroutine at a
// time and must be closed by whoever opened it.
type Tab struct {
	id      string
	logger  *zap.Logger
	netCfg  config.NetworkConfig
	noCache bool

	ctx     context.Context
	cancel  context.CancelFunc
	tracker *idleTracker

	onClose   func()
	closeOnce sync.Once
	closed    chan struct{}
}

func newTab(browserCtx context.Context, netCfg config.NetworkConfig, noCache bool, logger *zap.Logger) *Tab {
	id := uuid.New().String()
	l := logger.With(zap.String("tab_id", id[:8]))
	ctx, cancel := chromedp.NewContext(browserCtx)
	return &Tab{
		id:      id,
		logger:  l,
		netCfg:  netCfg,
		noCache: noCache,
		ctx:     ctx,
		cancel:  cancel,
		tracker: newIdleTracker(l, netCfg.IdleMaxInflight),
		closed:  make(chan struct{}),
	}
}

// initialize creates the target and enables the network domain. The first
// Run must use the tab context itself, or chromedp ties the target's
// lifetime to the derived context.
func (t *Tab) initialize() error {
	chromedp.ListenTarget(t.ctx, t.tracker.handleEvent)
	return chromedp.Run(t.ctx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if t.noCache {
				return network.SetCacheDisabled(true).Do(ctx)
			}
			return nil
		}),
	)
}

// ID returns the unique identifier for this tab.
func (t *Tab) ID() string { return t.id }

func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	select {
	case <-t.closed:
		return ErrTabClosed
	default:
	}
	runCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the load event followed by network idle,
// all within the configured navigation timeout.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	navCtx := ctx
	if t.netCfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, t.netCfg.NavigationTimeout)
		defer cancel()
	}

	start := time.Now()
	t.logger.Debug("Navigating.", zap.String("url", url))
	t.tracker.reset()

	if err := t.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	runCtx, cancel := CombineContext(t.ctx, navCtx)
	defer cancel()
	if err := t.tracker.wait(runCtx, t.netCfg.IdleQuietPeriod); err != nil {
		return fmt.Errorf("waiting for network idle on %s: %w", url, err)
	}

	t.logger.Debug("Page settled.", zap.String("url", url), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// InjectScript evaluates source in the current document and discards its
// completion value.
func (t *Tab) InjectScript(ctx context.Context, source string) error {
	if err := t.run(ctx, chromedp.Evaluate(source+"\n;void 0;", nil)); err != nil {
		return fmt.Errorf("script injection failed: %w", err)
	}
	return nil
}

// Evaluate runs expression, awaits a returned promise and decodes the value
// into res. A *[]byte receives the raw JSON.
func (t *Tab) Evaluate(ctx context.Context, expression string, res interface{}) error {
	return t.run(ctx, chromedp.Evaluate(expression, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

// HTML returns the serialized document.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	var doc string
	if err := t.run(ctx, chromedp.OuterHTML("html", &doc, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return doc, nil
}

// URL returns the current document URL, after any redirects.
func (t *Tab) URL(ctx context.Context) (string, error) {
	var loc string
	if err := t.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// Close closes the browser tab. It is safe to call more than once.
func (t *Tab) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		// Cancelling the context returned by chromedp.NewContext closes the target.
		t.cancel()
		if t.onClose != nil {
			t.onClose()
		}
		t.logger.Debug("Tab closed.")
	})
	return nil
}
