package secrets

import "sort"

// Result contains the redaction result.
type Result struct {
	// Redacted is the content with secrets replaced by markers.
	Redacted string `json:"redacted"`

	// Findings contains the detected secrets (without actual values).
	Findings []Finding `json:"findings,omitempty"`

	// ByRule maps rule IDs to finding counts.
	ByRule map[string]int `json:"by_rule,omitempty"`
}

// Finding represents a detected secret.
type Finding struct {
	// RuleID identifies which rule matched.
	RuleID string `json:"rule_id"`

	// StartIndex and EndIndex locate the match in the text the rule ran
	// against, which already carries markers from earlier rules.
	StartIndex int `json:"start_index"`
	EndIndex   int `json:"end_index"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`
}

// HasFindings returns true if any secrets were found.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// TotalFindings returns the number of redacted matches.
func (r *Result) TotalFindings() int {
	return len(r.Findings)
}

// RuleIDs returns the unique rule IDs that matched, sorted.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
