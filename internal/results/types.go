package results

// Impact is the axe severity of a violation. Empty means axe did not assign one.
type Impact string

const (
	ImpactCritical Impact = "critical"
	ImpactSerious  Impact = "serious"
	ImpactModerate Impact = "moderate"
	ImpactMinor    Impact = "minor"
	ImpactNone     Impact = ""
)

// Rank orders impacts from most to least severe. Unknown values sort last.
func (i Impact) Rank() int {
	switch i {
	case ImpactCritical:
		return 0
	case ImpactSerious:
		return 1
	case ImpactModerate:
		return 2
	case ImpactMinor:
		return 3
	default:
		return 4
	}
}

// Label is the impact as shown in summaries.
func (i Impact) Label() string {
	if i == ImpactNone {
		return "none"
	}
	return string(i)
}

// Record is one (rule, node) pair observed on one page. Records are values;
// nothing mutates one after Flatten builds it.
type Record struct {
	ID          string `json:"id"`
	Impact      Impact `json:"impact"`
	Description string `json:"description"`
	Help        string `json:"help"`
	HelpURL     string `json:"helpUrl"`
	HTML        string `json:"html"`
	Target      string `json:"target"`
	PageName    string `json:"pageName,omitempty"`
	URL         string `json:"url"`
}

// Key is the identity of a record for deduplication. Two records that differ
// only in Impact or HTML share a Key.
type Key struct {
	ID     string
	Target string
	URL    string
}

// Key returns the record's identity.
func (r Record) Key() Key {
	return Key{ID: r.ID, Target: r.Target, URL: r.URL}
}

// PageRef labels the page a result tree came from.
type PageRef struct {
	// Name is empty unless the run follows links.
	Name string
	URL  string
}
