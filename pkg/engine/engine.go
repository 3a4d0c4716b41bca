package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/serenmind/sentinel/pkg/domain/safety"
	"github.com/serenmind/sentinel/pkg/infra/prometheus"
	"github.com/serenmind/sentinel/pkg/rulestore"
)

// Engine evaluates content against the active rule set. Rules run
// concurrently against an immutable snapshot, so evaluation takes no locks
// and two evaluations against the same rule-set version always agree.
type Engine struct {
	store  rulestore.Store
	logger *logrus.Logger

	// failureRatio is the fraction of failed rules in one evaluation above
	// which the result is forced to blocked. Partial rule coverage must
	// never be reported as safe.
	failureRatio float64
	maxParallel  int
}

type Config struct {
	FailureRatio float64
	MaxParallel  int
}

func New(store rulestore.Store, cfg Config, logger *logrus.Logger) *Engine {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 8
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = 0.25
	}
	return &Engine{
		store:        store,
		logger:       logger,
		failureRatio: cfg.FailureRatio,
		maxParallel:  cfg.MaxParallel,
	}
}

type ruleOutcome struct {
	finding safety.Finding
	matched bool
	err     error
}

// Evaluate applies every in-scope rule to the content and aggregates the
// findings. A single failing rule is skipped and counted (fail-open per
// rule); too many failures in one evaluation force a blocked result
// (fail-closed overall).
func (e *Engine) Evaluate(ctx context.Context, content string, role safety.ContentRole) safety.Result {
	set := e.store.Active()
	rules := set.RulesFor(role)
	if len(rules) == 0 {
		return safety.NewResult(set.Version, nil)
	}

	outcomes := make([]ruleOutcome, len(rules))
	sem := make(chan struct{}, e.maxParallel)
	var wg sync.WaitGroup

	for i := range rules {
		if ctx.Err() != nil {
			// A cancelled evaluation cannot vouch for the content.
			wg.Wait()
			return e.blockedResult(set.Version, outcomes[:i])
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return e.blockedResult(set.Version, outcomes[:i])
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = e.applyRule(&rules[i], content)
		}(i)
	}
	wg.Wait()

	var findings []safety.Finding
	failures := 0
	for _, out := range outcomes {
		if out.err != nil {
			failures++
			continue
		}
		if out.matched {
			findings = append(findings, out.finding)
		}
	}

	if failures > 0 && float64(failures)/float64(len(rules)) > e.failureRatio {
		e.logger.WithFields(logrus.Fields{
			"failures": failures,
			"rules":    len(rules),
		}).Error("rule failure ratio exceeded, failing closed")
		return e.blockedResult(set.Version, outcomes)
	}

	return safety.NewResult(set.Version, findings)
}

// applyRule runs one rule, converting a panic inside a matcher into a
// counted failure instead of taking down the evaluation.
func (e *Engine) applyRule(rule *safety.Rule, content string) (out ruleOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = ruleOutcome{err: fmt.Errorf("rule %s panicked: %v", rule.ID, r)}
			e.countFailure(rule.ID, out.err)
		}
	}()

	finding, matched := rule.Match(content)
	return ruleOutcome{finding: finding, matched: matched}
}

func (e *Engine) countFailure(ruleID string, err error) {
	prometheus.RuleFailuresTotal.Inc()
	e.logger.WithError(err).WithField("rule_id", ruleID).Warn("rule evaluation failed, skipping rule")
}

// blockedResult keeps whatever findings were collected but pins the level at
// blocked.
func (e *Engine) blockedResult(version string, outcomes []ruleOutcome) safety.Result {
	var findings []safety.Finding
	for _, out := range outcomes {
		if out.err == nil && out.matched {
			findings = append(findings, out.finding)
		}
	}
	return safety.NewResult(version, findings).Raise(safety.LevelBlocked)
}
