// internal/reporting/csv_reporter.go
package reporting

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-a11y/internal/results"
)

var (
	csvHeader = []string{"id", "impact", "description", "help", "helpUrl", "html", "target", "url"}
	// The page label sits just before url.
	csvHeaderWithPage = []string{"id", "impact", "description", "help", "helpUrl", "html", "target", "pageName", "url"}
)

// CSVReporter writes one row per record under a fixed header. Rows are
// streamed; the header is written before the first row, or on Close when
// there were none.
type CSVReporter struct {
	writer      io.WriteCloser
	csv         *csv.Writer
	logger      *zap.Logger
	withPage    bool
	wroteHeader bool
	rows        int
}

// NewCSVReporter creates a CSV reporter that owns writer.
func NewCSVReporter(writer io.WriteCloser, includePageName bool, logger *zap.Logger) *CSVReporter {
	return &CSVReporter{
		writer:   writer,
		csv:      csv.NewWriter(writer),
		logger:   logger.Named("csv_reporter"),
		withPage: includePageName,
	}
}

// Header returns the column names in order.
func (r *CSVReporter) Header() []string {
	if r.withPage {
		return csvHeaderWithPage
	}
	return csvHeader
}

func (r *CSVReporter) writeHeader() error {
	if r.wroteHeader {
		return nil
	}
	r.wroteHeader = true
	return r.csv.Write(r.Header())
}

func (r *CSVReporter) row(rec results.Record) []string {
	row := []string{
		rec.ID,
		string(rec.Impact),
		rec.Description,
		rec.Help,
		rec.HelpURL,
		rec.HTML,
		rec.Target,
	}
	if r.withPage {
		row = append(row, rec.PageName)
	}
	return append(row, rec.URL)
}

// Write appends one row per record.
func (r *CSVReporter) Write(records []results.Record) error {
	if err := r.writeHeader(); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, rec := range records {
		if err := r.csv.Write(r.row(rec)); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", rec.ID, err)
		}
		r.rows++
	}
	return nil
}

// Close flushes buffered rows and closes the writer.
func (r *CSVReporter) Close() error {
	headerErr := r.writeHeader()
	r.csv.Flush()
	flushErr := r.csv.Error()
	closeErr := r.writer.Close()

	if err := errors.Join(headerErr, flushErr); err != nil {
		return fmt.Errorf("failed to write CSV output: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Info("Wrote CSV report", zap.Int("rows", r.rows))
	return nil
}
