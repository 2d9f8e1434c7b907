// File: internal/orchestrator/orchestrator.go
// Description: Drives one audit run. Pages are processed strictly one after
// another: open, navigate, audit, collect, close.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-a11y/internal/axe"
	"github.com/xkilldash9x/scalpel-a11y/internal/discovery"
	"github.com/xkilldash9x/scalpel-a11y/internal/results"
)

// Page labels used when links are followed.
const (
	MainPageName   = "Main page"
	linkedPageName = "Page %d"
)

// ErrNoTargets is returned when a run is started without URLs.
var ErrNoTargets = errors.New("please provide one or more URLs as arguments")

// Page is one navigable browser tab.
type Page interface {
	axe.Page
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Close() error
}

// PageOpener opens a fresh page in the shared browser session.
type PageOpener interface {
	NewPage(ctx context.Context) (Page, error)
}

// PageOpenerFunc adapts a function to PageOpener.
type PageOpenerFunc func(ctx context.Context) (Page, error)

// NewPage calls f.
func (f PageOpenerFunc) NewPage(ctx context.Context) (Page, error) { return f(ctx) }

// Auditor runs the accessibility engine against the document loaded in a page.
type Auditor interface {
	Run(ctx context.Context, page axe.Page) (*axe.Results, error)
}

// Options select between auditing a list of pages and auditing each page
// plus a bounded set of the links it contains.
type Options struct {
	FollowLinks bool
	MaxLinks    int
	SameSite    bool
}

// Orchestrator manages the lifecycle of an audit run.
type Orchestrator struct {
	opener  PageOpener
	auditor Auditor
	opts    Options
	logger  *zap.Logger
}

// New creates an Orchestrator.
func New(opener PageOpener, auditor Auditor, opts Options, logger *zap.Logger) (*Orchestrator, error) {
	if opener == nil || auditor == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if opts.MaxLinks < 0 {
		return nil, fmt.Errorf("max links must not be negative, got %d", opts.MaxLinks)
	}
	return &Orchestrator{
		opener:  opener,
		auditor: auditor,
		opts:    opts,
		logger:  logger.Named("orchestrator"),
	}, nil
}

// Run audits every target and returns the deduplicated records. The first
// failure aborts the run and nothing is returned.
func (o *Orchestrator) Run(ctx context.Context, targets []string) ([]results.Record, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	runID := uuid.New().String()
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("Audit run starting.",
		zap.Strings("targets", targets),
		zap.Bool("follow_links", o.opts.FollowLinks),
	)
	start := time.Now()

	collector := results.NewCollector(logger)
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !o.opts.FollowLinks {
			if _, err := o.auditPage(ctx, logger, collector, results.PageRef{URL: target}, false); err != nil {
				return nil, err
			}
			continue
		}

		links, err := o.auditPage(ctx, logger, collector, results.PageRef{Name: MainPageName, URL: target}, true)
		if err != nil {
			return nil, err
		}
		for i, link := range links {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			page := results.PageRef{Name: fmt.Sprintf(linkedPageName, i+1), URL: link}
			if _, err := o.auditPage(ctx, logger, collector, page, false); err != nil {
				return nil, err
			}
		}
	}

	records := collector.Records()
	summary := results.Summarize(records)
	logger.Info("Audit run complete.", append(summary.Fields(),
		zap.Int("pages", collector.Pages()),
		zap.Int("duplicates_removed", len(collector.Raw())-len(records)),
		zap.Duration("elapsed", time.Since(start)),
	)...)
	return records, nil
}

// auditPage handles one page from open to close. The page is closed on every
// path. With discover set it also returns the links to follow.
func (o *Orchestrator) auditPage(ctx context.Context, logger *zap.Logger, collector *results.Collector, ref results.PageRef, discover bool) (links []string, err error) {
	page, err := o.opener.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page for %s: %w", ref.URL, err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Warn("Failed to close page.", zap.String("url", ref.URL), zap.Error(cerr))
		}
	}()

	logger.Info("Auditing page.", zap.String("url", ref.URL), zap.String("page", ref.Name))
	if err := page.Navigate(ctx, ref.URL); err != nil {
		return nil, err
	}

	res, err := o.auditor.Run(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("audit of %s failed: %w", ref.URL, err)
	}
	collector.Add(res, ref)

	if !discover {
		return nil, nil
	}
	return o.discoverLinks(ctx, page, ref.URL)
}

func (o *Orchestrator) discoverLinks(ctx context.Context, page Page, requested string) ([]string, error) {
	doc, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("link discovery on %s failed: %w", requested, err)
	}

	// Resolve against where the browser ended up, which differs after a redirect.
	current, err := page.URL(ctx)
	if err != nil || current == "" {
		current = requested
	}
	base, err := url.Parse(current)
	if err != nil {
		return nil, fmt.Errorf("link discovery on %s failed: %w", requested, err)
	}

	var scope discovery.Scope
	if o.opts.SameSite {
		s, err := discovery.NewSiteScope(base)
		if err != nil {
			return nil, fmt.Errorf("link discovery on %s failed: %w", requested, err)
		}
		scope = s
	}

	links, err := discovery.ExtractLinks(doc, base, scope, o.opts.MaxLinks)
	if err != nil {
		return nil, fmt.Errorf("link discovery on %s failed: %w", requested, err)
	}
	o.logger.Debug("Discovered links.", zap.String("url", requested), zap.Strings("links", links))
	return links, nil
}
