// File: internal/axe/types.go
package axe

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Results is the subset of the axe.run() result object the audit consumes.
// Passes, incomplete and inapplicable entries are ignored.
type Results struct {
	URL        string           `json:"url"`
	Timestamp  string           `json:"timestamp"`
	TestEngine TestEngine       `json:"testEngine"`
	Violations []ViolationGroup `json:"violations"`
}

// TestEngine identifies the axe-core build that produced the results.
type TestEngine struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ViolationGroup is one violated rule and every node that violates it.
type ViolationGroup struct {
	ID          string   `json:"id"`
	Impact      string   `json:"impact"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
	Help        string   `json:"help"`
	HelpURL     string   `json:"helpUrl"`
	Nodes       []Node   `json:"nodes"`
}

// Node is an offending DOM element. Target holds one selector per frame or
// shadow root boundary crossed to reach it.
type Node struct {
	HTML           string     `json:"html"`
	Impact         string     `json:"impact"`
	Target         []Selector `json:"target"`
	FailureSummary string     `json:"failureSummary"`
}

// RunOptions is serialized into the options argument of axe.run().
type RunOptions struct {
	RunOnly       *RunOnly `json:"runOnly,omitempty"`
	ResultTypes   []string `json:"resultTypes,omitempty"`
	ElementRef    bool     `json:"elementRef"`
	AbsolutePaths bool     `json:"absolutePaths,omitempty"`
}

// RunOnly restricts a run to rules carrying the given tags.
type RunOnly struct {
	Type   string   `json:"type"`
	Values []string `json:"values"`
}

// NewRunOptions builds run options for the given tags. Only violations are
// requested since nothing else is reported.
func NewRunOptions(tags []string) RunOptions {
	opts := RunOptions{ResultTypes: []string{"violations"}}
	if len(tags) > 0 {
		opts.RunOnly = &RunOnly{Type: "tag", Values: append([]string(nil), tags...)}
	}
	return opts
}

// ShadowSeparator joins the selectors of a path that crosses shadow roots.
const ShadowSeparator = " >>> "

// Selector is one entry of a node's target. axe reports a plain string for
// light DOM elements and a list of selectors for elements inside shadow roots,
// which is flattened with ShadowSeparator.
type Selector string

// UnmarshalJSON accepts either a string or an array of strings.
func (s *Selector) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = Selector(single)
		return nil
	}
	var path []string
	if err := json.Unmarshal(data, &path); err != nil {
		return fmt.Errorf("target selector is neither a string nor a string list: %s", data)
	}
	*s = Selector(strings.Join(path, ShadowSeparator))
	return nil
}
