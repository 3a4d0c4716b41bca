package safety

import (
	"regexp"
	"strings"
)

// KeywordMatcher matches when any of its keywords occurs in the content,
// case-insensitively.
type KeywordMatcher struct {
	Keywords []string
}

func NewKeywordMatcher(keywords ...string) *KeywordMatcher {
	return &KeywordMatcher{Keywords: keywords}
}

func (m *KeywordMatcher) Match(content string) (Span, bool) {
	lower := strings.ToLower(content)
	for _, kw := range m.Keywords {
		idx := strings.Index(lower, strings.ToLower(kw))
		if idx < 0 {
			continue
		}
		return Span{
			Start:   idx,
			End:     idx + len(kw),
			Excerpt: content[idx : idx+len(kw)],
		}, true
	}
	return Span{}, false
}

// PatternMatcher matches content against a compiled regular expression.
type PatternMatcher struct {
	Pattern *regexp.Regexp
}

func NewPatternMatcher(expr string) (*PatternMatcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &PatternMatcher{Pattern: re}, nil
}

func (m *PatternMatcher) Match(content string) (Span, bool) {
	loc := m.Pattern.FindStringIndex(content)
	if loc == nil {
		return Span{}, false
	}
	return Span{
		Start:   loc[0],
		End:     loc[1],
		Excerpt: content[loc[0]:loc[1]],
	}, true
}

// HookFunc is an externally supplied classifier hook a rule can delegate to.
type HookFunc func(content string) (Span, bool)

// HookMatcher delegates matching to a registered classifier hook. A rule that
// references an unregistered hook never matches; the compiler rejects it
// before it reaches an active set.
type HookMatcher struct {
	Name string
	Hook HookFunc
}

func (m *HookMatcher) Match(content string) (Span, bool) {
	if m.Hook == nil {
		return Span{}, false
	}
	return m.Hook(content)
}
