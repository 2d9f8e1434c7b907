// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-a11y/internal/config"
)

const defaultStartupTimeout = 30 * time.Second

// Manager owns one headless browser process. Tabs opened through it share
// the process; Shutdown waits for them and then kills the browser.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig
	netCfg config.NetworkConfig

	// allocatorCtx manages the browser process; browserCtx is its first
	// target and the parent of every tab.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	// wg tracks open tabs for a graceful shutdown.
	wg       sync.WaitGroup
	shutdown sync.Once
}

// NewManager launches the browser and verifies it responds.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg.Browser,
		netCfg: cfg.Network,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Launching browser...", zap.Bool("headless", m.cfg.Headless))

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, m.buildAllocatorOptions()...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)

	timeout := m.cfg.StartupTimeout
	if timeout <= 0 {
		timeout = defaultStartupTimeout
	}

	// The first Run starts the process. It cannot take a timeout context,
	// since chromedp would kill the browser when that context ends.
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(m.browserCtx, chromedp.Navigate("about:blank"))
	}()

	var err error
	select {
	case err = <-started:
	case <-time.After(timeout):
		err = fmt.Errorf("browser did not respond within %s", timeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return err
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	flags := allocatorFlags(m.cfg, runtime.GOOS)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	if m.cfg.ExecPath != "" {
		path, err := config.ExpandPath(m.cfg.ExecPath)
		if err != nil {
			m.logger.Warn("Ignoring browser exec_path.", zap.String("exec_path", m.cfg.ExecPath), zap.Error(err))
		} else {
			opts = append(opts, chromedp.ExecPath(path))
		}
	}
	return opts
}

// allocatorFlags computes the Chrome command line flags layered on top of
// chromedp's defaults. A false value removes a default flag.
func allocatorFlags(cfg config.BrowserConfig, goos string) map[string]interface{} {
	flags := map[string]interface{}{
		// Pages behave as for a regular visitor.
		"enable-automation":      false,
		"headless":               cfg.Headless,
		"disable-gpu":            cfg.Headless,
		"disable-extensions":     true,
		"hide-scrollbars":        cfg.Headless,
		"mute-audio":             true,
		"window-size":            "1280,800",
		"disable-blink-features": "AutomationControlled",
	}

	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
		flags["allow-insecure-localhost"] = true
	}
	if cfg.DisableCache {
		flags["disk-cache-size"] = "0"
		flags["media-cache-size"] = "0"
		flags["disable-application-cache"] = true
	}

	// Containers usually run Chrome as root without a usable /dev/shm.
	if goos == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimLeft(parts[0], "-")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}
	return flags
}

// NewPage opens a new tab in the shared browser. The caller must Close it.
func (m *Manager) NewPage(ctx context.Context) (*Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("browser is no longer running: %w", err)
	}

	tab := newTab(m.browserCtx, m.netCfg, m.cfg.DisableCache, m.logger)
	m.wg.Add(1)
	tab.onClose = m.wg.Done

	if err := tab.initialize(); err != nil {
		_ = tab.Close()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	m.logger.Debug("Tab opened.", zap.String("tab_id", tab.ID()))
	return tab, nil
}

// Shutdown waits for open tabs until ctx ends, then terminates the browser.
// Only the first call does anything.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdown.Do(func() {
		m.logger.Info("Browser manager shutdown initiated.")

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			m.logger.Debug("All tabs have been closed.")
		case <-ctx.Done():
			m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
		}

		// Cancelling the browser context closes it gracefully; the allocator
		// cancel then waits for the process to exit.
		m.browserCancel()
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
		m.logger.Info("Browser process terminated.")
	})
	return nil
}
