// File: internal/results/pipeline.go
package results

import (
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-a11y/internal/axe"
)

// Collector accumulates records across the pages of one run. It is owned by
// the crawl loop and is not safe for concurrent use.
type Collector struct {
	records []Record
	pages   int
	logger  *zap.Logger
}

// NewCollector creates an empty collector.
func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{logger: logger.Named("results")}
}

// Add flattens one page's results and appends them.
func (c *Collector) Add(res *axe.Results, page PageRef) int {
	recs := Flatten(res, page)
	c.records = append(c.records, recs...)
	c.pages++
	c.logger.Debug("Collected page results.",
		zap.String("url", page.URL),
		zap.String("page", page.Name),
		zap.Int("records", len(recs)),
	)
	return len(recs)
}

// Pages is the number of result trees added so far.
func (c *Collector) Pages() int { return c.pages }

// Raw returns a copy of everything collected, duplicates included.
func (c *Collector) Raw() []Record {
	return append([]Record(nil), c.records...)
}

// Records returns the deduplicated records in first-seen order.
func (c *Collector) Records() []Record {
	return Deduplicate(c.records)
}

// Summary is a per-impact breakdown of a record set.
type Summary struct {
	Total    int
	ByImpact map[Impact]int
	ByRule   map[string]int
}

// Summarize counts records by impact and by rule.
func Summarize(records []Record) Summary {
	s := Summary{
		Total:    len(records),
		ByImpact: make(map[Impact]int),
		ByRule:   make(map[string]int),
	}
	for _, r := range records {
		s.ByImpact[r.Impact]++
		s.ByRule[r.ID]++
	}
	return s
}

// Impacts returns the impacts present in s, most severe first.
func (s Summary) Impacts() []Impact {
	out := make([]Impact, 0, len(s.ByImpact))
	for i := range s.ByImpact {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Rank() != out[b].Rank() {
			return out[a].Rank() < out[b].Rank()
		}
		return out[a] < out[b]
	})
	return out
}

// Fields renders the summary as zap fields for the end of run log line.
func (s Summary) Fields() []zap.Field {
	fields := []zap.Field{zap.Int("total", s.Total), zap.Int("rules", len(s.ByRule))}
	for _, i := range s.Impacts() {
		fields = append(fields, zap.Int(i.Label(), s.ByImpact[i]))
	}
	return fields
}
