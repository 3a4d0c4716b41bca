package safety

import (
	"sort"
	"time"
)

// RuleSet is a versioned, immutable snapshot of safety rules. Stores swap the
// whole set atomically; readers never observe a partially updated set.
type RuleSet struct {
	Version   string
	Rules     []Rule
	CreatedAt time.Time
}

// NewRuleSet copies rules into a snapshot sorted by rule ID so that every
// consumer observes the same deterministic order.
func NewRuleSet(version string, rules []Rule) *RuleSet {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})
	return &RuleSet{
		Version:   version,
		Rules:     sorted,
		CreatedAt: time.Now(),
	}
}

// RulesFor returns the rules whose scope covers the given role, preserving
// rule-ID order.
func (s *RuleSet) RulesFor(role ContentRole) []Rule {
	out := make([]Rule, 0, len(s.Rules))
	for _, r := range s.Rules {
		if r.Scope.AppliesTo(role) {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of rules in the set.
func (s *RuleSet) Len() int {
	return len(s.Rules)
}
