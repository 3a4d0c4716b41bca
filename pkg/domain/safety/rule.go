package safety

// Category groups rules by the kind of harm they detect.
type Category string

const (
	CategorySelfHarm       Category = "self_harm"
	CategoryAbuse          Category = "abuse"
	CategoryViolence       Category = "violence"
	CategoryHarassment     Category = "harassment"
	CategoryCrisisLanguage Category = "crisis_language"
)

// ContentRole identifies who produced the content under evaluation.
type ContentRole string

const (
	RoleUser  ContentRole = "user"
	RoleAgent ContentRole = "agent"
)

// Span locates the evidence that triggered a finding inside the evaluated
// content. Excerpt carries the matched text for review surfaces.
type Span struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Excerpt string `json:"excerpt"`
}

// Matcher tests content against a single rule's condition. Implementations
// must be stateless and safe for concurrent use.
type Matcher interface {
	Match(content string) (Span, bool)
}

// Scope restricts which content a rule applies to. An empty role list means
// the rule applies to every role.
type Scope struct {
	Roles []ContentRole `json:"roles,omitempty"`
}

// AppliesTo reports whether content produced by role falls within the scope.
func (s Scope) AppliesTo(role ContentRole) bool {
	if len(s.Roles) == 0 {
		return true
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Rule is a single safety rule. Rules are immutable once loaded into an
// active rule set; updates replace the whole set.
type Rule struct {
	ID          string
	Category    Category
	Severity    Level
	Description string
	Scope       Scope
	Matcher     Matcher
}

// Match applies the rule's matcher and, on a hit, returns the finding for it.
func (r *Rule) Match(content string) (Finding, bool) {
	if r.Matcher == nil {
		return Finding{}, false
	}
	span, ok := r.Matcher.Match(content)
	if !ok {
		return Finding{}, false
	}
	return Finding{
		RuleID:   r.ID,
		Category: r.Category,
		Severity: r.Severity,
		Evidence: span,
	}, true
}
