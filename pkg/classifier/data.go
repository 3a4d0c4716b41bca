package classifier

import (
	"regexp"

	"github.com/serenmind/sentinel/pkg/domain/crisis"
)

// signal is one weighted crisis indicator. Confidence contributions from
// several signals of the same type accumulate; the level reported is the
// highest level among the signals that fired.
type signal struct {
	pattern    *regexp.Regexp
	level      crisis.Level
	confidence float64
}

var heuristicSignals = map[crisis.Type][]signal{
	crisis.TypeSelfHarm: {
		{
			pattern:    regexp.MustCompile(`(?i)\b(?:kill(?:ing)?|hurt(?:ing)?|harm(?:ing)?)\s+myself\b`),
			level:      crisis.LevelCritical,
			confidence: 0.9,
		},
		{
			pattern:    regexp.MustCompile(`(?i)\bend(?:ing)?\s+(?:it\s+all|my\s+life)\b`),
			level:      crisis.LevelHigh,
			confidence: 0.85,
		},
		{
			pattern:    regexp.MustCompile(`(?i)\b(?:want|wish)(?:ed)?\s+to\s+(?:die|be\s+dead|disappear\s+forever)\b`),
			level:      crisis.LevelHigh,
			confidence: 0.8,
		},
		{
			pattern:    regexp.MustCompile(`(?i)\bsuicid(?:e|al)\b`),
			level:      crisis.LevelHigh,
			confidence: 0.75,
		},
		{
			pattern:    regexp.MustCompile(`(?i)\bno\s+reason\s+to\s+(?:live|keep\s+going|go\s+on)\b`),
			level:      crisis.LevelModerate,
			confidence: 0.6,
		},
		{
			pattern:    regexp.MustCompile(`(?i)\b(?:cut(?:ting)?\s+myself|self[- ]harm)\b`),
			level:      crisis.LevelHigh,
			confidence: 0.8,
		},
	},
	crisis.TypeAbuseDisclosure: {
		{
			pattern:    regexp.MustCompile(`(?i)\b(?:he|she|they|my\s+\w+)\s+(?:hits?|beats?|hurts?|chokes?)\s+me\b`),
			level:      crisis.LevelHigh,
			confidence: 0.8,
		},
		{
			pattern:    regexp.MustCompile(`(?i)\bafraid\s+(?:to\s+go|of\s+going)\s+home\b`),
			level:      crisis.LevelModerate,
			confidence: 0.6,
		},
		{
			pattern:    regexp.MustCompile(`(?i)\b(?:touch(?:es|ed)?\s+me\s+(?:there|at\s+night)|won'?t\s+let\s+me\s+(?:leave|eat|sleep))\b`),
			level:      crisis.LevelHigh,
			confidence: 0.75,
		},
	},
	crisis.TypeSevereDistress: {
		{
			pattern:    regexp.MustCompile(`(?i)\b(?:can'?t\s+(?:take|do)\s+(?:this|it)\s+anymore|completely\s+hopeless)\b`),
			level:      crisis.LevelModerate,
			confidence: 0.55,
		},
		{
			pattern:    regexp.MustCompile(`(?i)\b(?:nobody\s+(?:cares|would\s+(?:care|notice|miss\s+me))|everyone\s+would\s+be\s+better\s+off)\b`),
			level:      crisis.LevelModerate,
			confidence: 0.6,
		},
		{
			pattern:    regexp.MustCompile(`(?i)\bpanic\s+attack\b`),
			level:      crisis.LevelLow,
			confidence: 0.4,
		},
	},
}
