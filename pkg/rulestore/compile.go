package rulestore

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"github.com/serenmind/sentinel/pkg/domain/safety"
)

// Definition is the wire form of one safety rule as stored in the backing
// key-value store.
type Definition struct {
	ID          string   `json:"id" mapstructure:"id"`
	Category    string   `json:"category" mapstructure:"category"`
	Severity    string   `json:"severity" mapstructure:"severity"`
	Description string   `json:"description" mapstructure:"description"`
	Match       string   `json:"match" mapstructure:"match"` // keyword | pattern | hook
	Keywords    []string `json:"keywords,omitempty" mapstructure:"keywords"`
	Pattern     string   `json:"pattern,omitempty" mapstructure:"pattern"`
	Hook        string   `json:"hook,omitempty" mapstructure:"hook"`
	Roles       []string `json:"roles,omitempty" mapstructure:"roles"`
}

// SetDefinition is the wire form of a versioned rule set.
type SetDefinition struct {
	Version string       `json:"version" mapstructure:"version"`
	Rules   []Definition `json:"rules" mapstructure:"rules"`
}

// Compiler turns rule definitions into an immutable rule set. Hooks map
// names referenced by hook rules to registered classifier hooks.
type Compiler struct {
	logger *logrus.Logger
	hooks  map[string]safety.HookFunc
}

func NewCompiler(logger *logrus.Logger, hooks map[string]safety.HookFunc) *Compiler {
	if hooks == nil {
		hooks = map[string]safety.HookFunc{}
	}
	return &Compiler{logger: logger, hooks: hooks}
}

// DecodeSet decodes a raw settings map into a SetDefinition.
func DecodeSet(raw map[string]interface{}) (SetDefinition, error) {
	var def SetDefinition
	if err := mapstructure.Decode(raw, &def); err != nil {
		return SetDefinition{}, fmt.Errorf("failed to decode rule set: %w", err)
	}
	return def, nil
}

// Compile validates and compiles a set definition. Individual invalid rules
// are skipped and logged; a set with no version or no valid rule at all is
// rejected so the caller retains its last-known-good set.
func (c *Compiler) Compile(def SetDefinition) (*safety.RuleSet, error) {
	if def.Version == "" {
		return nil, errors.New("rule set has no version")
	}

	rules := make([]safety.Rule, 0, len(def.Rules))
	for _, rd := range def.Rules {
		rule, err := c.compileRule(rd)
		if err != nil {
			c.logger.WithError(err).WithField("rule_id", rd.ID).Warn("skipping invalid rule definition")
			continue
		}
		rules = append(rules, rule)
	}

	if len(rules) == 0 {
		return nil, fmt.Errorf("rule set %s contains no valid rules", def.Version)
	}

	return safety.NewRuleSet(def.Version, rules), nil
}

func (c *Compiler) compileRule(def Definition) (safety.Rule, error) {
	if def.ID == "" {
		return safety.Rule{}, errors.New("rule has no id")
	}

	var matcher safety.Matcher
	switch def.Match {
	case "keyword":
		if len(def.Keywords) == 0 {
			return safety.Rule{}, fmt.Errorf("keyword rule %s has no keywords", def.ID)
		}
		matcher = safety.NewKeywordMatcher(def.Keywords...)
	case "pattern":
		pm, err := safety.NewPatternMatcher(def.Pattern)
		if err != nil {
			return safety.Rule{}, fmt.Errorf("pattern rule %s: %w", def.ID, err)
		}
		matcher = pm
	case "hook":
		hook, ok := c.hooks[def.Hook]
		if !ok {
			return safety.Rule{}, fmt.Errorf("hook rule %s references unregistered hook %q", def.ID, def.Hook)
		}
		matcher = &safety.HookMatcher{Name: def.Hook, Hook: hook}
	default:
		return safety.Rule{}, fmt.Errorf("rule %s has unknown match kind %q", def.ID, def.Match)
	}

	roles := make([]safety.ContentRole, 0, len(def.Roles))
	for _, r := range def.Roles {
		roles = append(roles, safety.ContentRole(r))
	}

	return safety.Rule{
		ID:          def.ID,
		Category:    safety.Category(def.Category),
		Severity:    safety.ParseLevel(def.Severity),
		Description: def.Description,
		Scope:       safety.Scope{Roles: roles},
		Matcher:     matcher,
	}, nil
}
