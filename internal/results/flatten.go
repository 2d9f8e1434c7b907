package results

import (
	"strings"

	"github.com/xkilldash9x/scalpel-a11y/internal/axe"
)

// TargetSeparator joins the selector segments of a node's target.
const TargetSeparator = ", "

// Flatten turns one page's result tree into records, one per node, in group
// then node order. A nil tree or a group without nodes contributes nothing.
func Flatten(res *axe.Results, page PageRef) []Record {
	if res == nil {
		return nil
	}

	var out []Record
	for _, group := range res.Violations {
		for _, node := range group.Nodes {
			out = append(out, Record{
				ID:          group.ID,
				Impact:      Impact(group.Impact),
				Description: group.Description,
				Help:        group.Help,
				HelpURL:     group.HelpURL,
				HTML:        node.HTML,
				Target:      JoinTarget(node.Target),
				PageName:    page.Name,
				URL:         page.URL,
			})
		}
	}
	return out
}

// JoinTarget renders a node target as a single selector string.
func JoinTarget(target []axe.Selector) string {
	parts := make([]string, len(target))
	for i, s := range target {
		parts[i] = string(s)
	}
	return strings.Join(parts, TargetSeparator)
}
