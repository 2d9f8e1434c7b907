// internal/reporting/reporter.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-a11y/internal/results"
)

// Supported report formats.
const (
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatSARIF = "sarif"
)

// Reporter renders violation records to an output.
type Reporter interface {
	// Write renders records. A reporter may buffer until Close.
	Write(records []results.Record) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// Options selects the format and destination of a report.
type Options struct {
	Format string
	// Output is a file path; empty or "stdout" writes to standard output.
	Output string
	// IncludePageName adds the page label column (link following mode).
	IncludePageName bool
	ToolVersion     string
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for opts. The output file is created (truncated)
// immediately, so a later write overwrites any previous report.
func New(opts Options, logger *zap.Logger) (Reporter, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	var writer io.WriteCloser
	isStdOut := opts.Output == "" || opts.Output == "stdout"

	if isStdOut {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(opts.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", opts.Output, err)
		}
		writer = f
	}

	cleanup := func() {
		if !isStdOut {
			_ = writer.Close()
		}
	}

	switch strings.ToLower(opts.Format) {
	case "", FormatCSV:
		return NewCSVReporter(writer, opts.IncludePageName, logger), nil
	case FormatJSON:
		return NewJSONReporter(writer, logger), nil
	case FormatSARIF:
		return NewSARIFReporter(writer, opts.ToolVersion, logger), nil
	default:
		cleanup()
		return nil, fmt.Errorf("unsupported output format: %s", opts.Format)
	}
}

// WriteReport is the one-shot form used by the CLI: create, write, close.
// The first error wins but Close always runs.
func WriteReport(opts Options, records []results.Record, logger *zap.Logger) error {
	r, err := New(opts, logger)
	if err != nil {
		return err
	}
	writeErr := r.Write(records)
	closeErr := r.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}
