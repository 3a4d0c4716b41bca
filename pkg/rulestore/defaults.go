package rulestore

import (
	"regexp"

	"github.com/serenmind/sentinel/pkg/domain/safety"
)

// DefaultRuleSetVersion identifies the bundled rule set compiled into the
// binary. It keeps serving whenever no persistent store is configured or the
// configured one is unreachable.
const DefaultRuleSetVersion = "bundled-v1"

var selfHarmPattern = regexp.MustCompile(`(?i)(` +
	`\b(?:kill|hurt|harm)(?:ing)?\s+myself\b|` +
	`\bend(?:ing)?\s+(?:it\s+all|my\s+life)\b|` +
	`\b(?:want|wish)\s+to\s+(?:die|be\s+dead)\b|` +
	`\bno\s+reason\s+to\s+(?:live|go\s+on)\b|` +
	`\bsuicid(?:e|al)\b` +
	`)`)

var violencePattern = regexp.MustCompile(`(?i)(` +
	`\b(?:kill|hurt|attack)\s+(?:him|her|them|you|someone)\b|` +
	`\bmake\s+(?:him|her|them)\s+pay\b` +
	`)`)

var abusePattern = regexp.MustCompile(`(?i)(` +
	`\b(?:he|she|they)\s+(?:hits?|beats?|hurts?)\s+me\b|` +
	`\bafraid\s+to\s+go\s+home\b|` +
	`\b(?:touch(?:es|ed)?\s+me|won'?t\s+let\s+me\s+leave)\b` +
	`)`)

// DefaultRuleSet builds the bundled rule set. Severities are deliberately
// conservative: anything ambiguous surfaces as a warning rather than passing
// silently.
func DefaultRuleSet() *safety.RuleSet {
	rules := []safety.Rule{
		{
			ID:          "default.self_harm.direct",
			Category:    safety.CategorySelfHarm,
			Severity:    safety.LevelBlocked,
			Description: "Direct self-harm or suicidal ideation language",
			Matcher:     &safety.PatternMatcher{Pattern: selfHarmPattern},
		},
		{
			ID:          "default.crisis.distress",
			Category:    safety.CategoryCrisisLanguage,
			Severity:    safety.LevelWarning,
			Description: "Crisis-adjacent distress language",
			Matcher: safety.NewKeywordMatcher(
				"hopeless", "can't go on", "worthless", "give up",
				"nobody would care", "what's the point",
			),
		},
		{
			ID:          "default.abuse.disclosure",
			Category:    safety.CategoryAbuse,
			Severity:    safety.LevelWarning,
			Description: "Possible abuse disclosure",
			Scope:       safety.Scope{Roles: []safety.ContentRole{safety.RoleUser}},
			Matcher:     &safety.PatternMatcher{Pattern: abusePattern},
		},
		{
			ID:          "default.violence.threat",
			Category:    safety.CategoryViolence,
			Severity:    safety.LevelBlocked,
			Description: "Threats of violence toward others",
			Matcher:     &safety.PatternMatcher{Pattern: violencePattern},
		},
		{
			ID:          "default.agent.unsafe_advice",
			Category:    safety.CategoryCrisisLanguage,
			Severity:    safety.LevelBlocked,
			Description: "Agent output that instructs or encourages harm",
			Scope:       safety.Scope{Roles: []safety.ContentRole{safety.RoleAgent}},
			Matcher: safety.NewKeywordMatcher(
				"you should hurt", "here is how to harm", "you deserve pain",
			),
		},
	}
	return safety.NewRuleSet(DefaultRuleSetVersion, rules)
}
