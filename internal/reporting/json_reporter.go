// internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-a11y/internal/results"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONReporter buffers records and writes them as one indented JSON array
// on Close.
type JSONReporter struct {
	writer  io.WriteCloser
	logger  *zap.Logger
	records []results.Record
}

// NewJSONReporter creates a JSON reporter that owns writer.
func NewJSONReporter(writer io.WriteCloser, logger *zap.Logger) *JSONReporter {
	return &JSONReporter{
		writer:  writer,
		logger:  logger.Named("json_reporter"),
		records: []results.Record{},
	}
}

func (r *JSONReporter) Write(records []results.Record) error {
	r.records = append(r.records, records...)
	return nil
}

func (r *JSONReporter) Close() error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(r.records)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		return fmt.Errorf("failed to encode JSON output: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Info("Wrote JSON report", zap.Int("records", len(r.records)))
	return nil
}
