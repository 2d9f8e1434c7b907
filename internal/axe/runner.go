// File: internal/axe/runner.go
package axe

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

//go:embed run.js
var runScriptTemplate string

const optionsPlaceholder = "__AXE_OPTIONS__"

// Page is the slice of a browser tab the runner needs. Evaluate awaits
// promises and decodes the returned value into res; a *[]byte receives the
// raw JSON.
type Page interface {
	InjectScript(ctx context.Context, source string) error
	Evaluate(ctx context.Context, expression string, res interface{}) error
}

// Runner injects axe-core into a page and runs it.
type Runner struct {
	source    string
	runScript string
	logger    *zap.Logger
}

// NewRunner prepares a runner for the given engine source and rule tags.
func NewRunner(source string, tags []string, logger *zap.Logger) (*Runner, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: empty engine source", ErrEngineUnavailable)
	}
	script, err := BuildRunScript(NewRunOptions(tags))
	if err != nil {
		return nil, err
	}
	return &Runner{
		source:    source,
		runScript: script,
		logger:    logger.Named("axe_runner"),
	}, nil
}

// BuildRunScript renders the embedded invocation script with opts.
func BuildRunScript(opts RunOptions) (string, error) {
	if runScriptTemplate == "" {
		return "", errors.New("embedded run.js template is empty or failed to load")
	}
	if n := strings.Count(runScriptTemplate, optionsPlaceholder); n != 1 {
		return "", fmt.Errorf("run.js must contain %s exactly once, found %d", optionsPlaceholder, n)
	}
	encoded, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("failed to encode run options: %w", err)
	}
	return strings.ReplaceAll(runScriptTemplate, optionsPlaceholder, string(encoded)), nil
}

// Run audits the document currently loaded in page.
func (r *Runner) Run(ctx context.Context, page Page) (*Results, error) {
	if err := page.InjectScript(ctx, r.source); err != nil {
		return nil, fmt.Errorf("%w: injection failed: %v", ErrEngineUnavailable, err)
	}

	start := time.Now()
	var raw []byte
	if err := page.Evaluate(ctx, r.runScript, &raw); err != nil {
		return nil, fmt.Errorf("axe.run failed: %w", err)
	}

	res, err := DecodeResults(raw)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Audit complete.",
		zap.String("url", res.URL),
		zap.String("engine_version", res.TestEngine.Version),
		zap.Int("violations", len(res.Violations)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// DecodeResults parses the JSON value returned by the run script.
func DecodeResults(raw []byte) (*Results, error) {
	if len(raw) == 0 {
		return nil, errors.New("axe.run returned no result")
	}
	var res Results
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to decode axe results: %w", err)
	}
	return &res, nil
}
