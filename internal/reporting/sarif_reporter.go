// internal/reporting/sarif_reporter.go
package reporting

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-a11y/internal/reporting/sarif"
	"github.com/xkilldash9x/scalpel-a11y/internal/results"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "scalpel-a11y"
	ToolInfoURI  = "https://github.com/xkilldash9x/scalpel-a11y"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"

	fingerprintKey = "axeViolation/v1"
)

// SARIFReporter implements the Reporter interface for the SARIF 2.1.0 format.
// Each axe rule id becomes one rule; each record becomes one result.
// It is thread safe.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and the rule index.
	mu    sync.Mutex
	rules map[string]struct{}
}

// NewSARIFReporter creates a new reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string, logger *zap.Logger) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						// Initialize empty slices (not nil) for proper JSON marshalling
						Rules: []*sarif.ReportingDescriptor{},
					},
				},
				Results: []*sarif.Result{},
			},
		},
	}

	return &SARIFReporter{
		writer: writer,
		logger: logger.Named("sarif_reporter"),
		log:    log,
		rules:  make(map[string]struct{}),
	}
}

// Write converts records into SARIF results and adds them to the log.
func (r *SARIFReporter) Write(records []results.Record) error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	for _, rec := range records {
		r.ensureRule(rec)

		messageText := rec.Help
		if messageText == "" {
			messageText = rec.Description
		}

		run.Results = append(run.Results, &sarif.Result{
			RuleID:    rec.ID,
			Message:   &sarif.Message{Text: pString(messageText)},
			Level:     mapImpactToSARIFLevel(rec.Impact),
			Locations: createLocations(rec),
			PartialFingerprints: map[string]string{
				fingerprintKey: fingerprint(rec.Key()),
			},
		})
	}

	if len(records) > 0 {
		r.logger.Debug("Wrote records to SARIF buffer",
			zap.Int("records", len(records)),
			zap.Duration("duration_ms", time.Since(startTime)),
		)
	}
	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	r.logger.Info("Finalizing SARIF report",
		zap.Int("total_results", len(run.Results)),
		zap.Int("total_rules", len(run.Tool.Driver.Rules)),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

// ensureRule registers the axe rule the first time one of its records is seen.
// NOTE: Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(rec results.Record) {
	if _, ok := r.rules[rec.ID]; ok {
		return
	}
	r.rules[rec.ID] = struct{}{}

	markdownHelp := fmt.Sprintf("**%s**\n\n%s\n\n[Rule documentation](%s)", rec.Help, rec.Description, rec.HelpURL)
	rule := &sarif.ReportingDescriptor{
		ID:               rec.ID,
		Name:             pString(rec.ID),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(rec.Help)},
		FullDescription:  &sarif.MultiformatMessageString{Text: pString(rec.Description)},
		Help: &sarif.MultiformatMessageString{
			Text:     pString(rec.Help),
			Markdown: pString(markdownHelp),
		},
		Properties: &sarif.PropertyBag{
			"tags":   []string{"accessibility", "axe-core"},
			"impact": rec.Impact.Label(),
		},
	}
	if rec.HelpURL != "" {
		rule.HelpURI = pString(rec.HelpURL)
	}
	r.log.Runs[0].Tool.Driver.Rules = append(r.log.Runs[0].Tool.Driver.Rules, rule)
}

// createLocations points at the page URL, with the element selector as a
// logical location and its markup as the snippet.
func createLocations(rec results.Record) []*sarif.Location {
	loc := &sarif.Location{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(rec.URL)},
		},
		Message: &sarif.Message{Text: pString(fmt.Sprintf("Element %s on %s", rec.Target, rec.URL))},
	}
	if rec.HTML != "" {
		loc.PhysicalLocation.Region = &sarif.Region{Snippet: &sarif.ArtifactContent{Text: pString(rec.HTML)}}
	}
	if rec.Target != "" {
		loc.LogicalLocations = []*sarif.LogicalLocation{{
			FullyQualifiedName: pString(rec.Target),
			Kind:               pString("element"),
		}}
	}
	return []*sarif.Location{loc}
}

// fingerprint hashes the record identity so viewers can track a result across runs.
func fingerprint(k results.Key) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", k.ID, k.Target, k.URL)
	return hex.EncodeToString(h.Sum(nil))
}

// mapImpactToSARIFLevel converts an axe impact to a SARIF level.
func mapImpactToSARIFLevel(impact results.Impact) sarif.Level {
	switch impact {
	case results.ImpactCritical, results.ImpactSerious:
		return sarif.LevelError
	case results.ImpactModerate:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}
