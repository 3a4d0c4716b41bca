package safety

import (
	"sort"
	"time"
)

// Finding is the evidence that one rule matched content.
type Finding struct {
	RuleID   string   `json:"rule_id"`
	Category Category `json:"category"`
	Severity Level    `json:"severity"`
	Evidence Span     `json:"evidence"`
}

// Result is the outcome of one rule-engine evaluation. Level always equals
// the maximum severity among findings and is LevelSafe exactly when findings
// is empty. Findings are ordered by severity descending, then rule ID
// ascending; when several findings tie at the top severity all of them are
// kept and TopFinding picks the first by that order.
type Result struct {
	Level          Level     `json:"level"`
	Findings       []Finding `json:"findings"`
	RuleSetVersion string    `json:"rule_set_version"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}

// NewResult builds a Result from findings, enforcing the level invariant and
// the deterministic finding order.
func NewResult(ruleSetVersion string, findings []Finding) Result {
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Severity != sorted[j].Severity {
			return sorted[i].Severity > sorted[j].Severity
		}
		return sorted[i].RuleID < sorted[j].RuleID
	})

	level := LevelSafe
	for _, f := range sorted {
		level = level.Max(f.Severity)
	}

	return Result{
		Level:          level,
		Findings:       sorted,
		RuleSetVersion: ruleSetVersion,
		EvaluatedAt:    time.Now(),
	}
}

// TopFinding returns the highest-severity finding, ties broken by rule ID.
func (r Result) TopFinding() (Finding, bool) {
	if len(r.Findings) == 0 {
		return Finding{}, false
	}
	return r.Findings[0], true
}

// Raise returns a copy of the result with the level lifted to at least min.
// Findings are untouched; the lift records that an independent signal (crisis
// classification) dominated the rule outcome.
func (r Result) Raise(min Level) Result {
	if r.Level >= min {
		return r
	}
	out := r
	out.Level = min
	return out
}
