package validator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/serenmind/sentinel/pkg/classifier"
	"github.com/serenmind/sentinel/pkg/domain/crisis"
	"github.com/serenmind/sentinel/pkg/domain/safety"
	"github.com/serenmind/sentinel/pkg/engine"
	"github.com/serenmind/sentinel/pkg/infra/prometheus"
)

// Context carries the therapeutic context for one evaluation: which session
// the content belongs to, who produced it, and the bounded recent history the
// classifier may consult.
type Context struct {
	SessionID string
	Role      safety.ContentRole
	History   []crisis.HistoryEntry
}

// Interventions receives non-none assessments after the decision is made.
type Interventions interface {
	OnAssessment(sessionID string, assessment crisis.Assessment) *crisis.Intervention
}

// Validator joins the rule engine and the crisis classifier into one
// decision. It holds no mutable state and is safe for any number of
// concurrent callers; its only side effects are metrics and driving the
// intervention workflow.
type Validator struct {
	engine        *engine.Engine
	classifier    classifier.Classifier
	interventions Interventions
	logger        *logrus.Logger
}

func New(
	eng *engine.Engine,
	cls classifier.Classifier,
	interventions Interventions,
	logger *logrus.Logger,
) *Validator {
	return &Validator{
		engine:        eng,
		classifier:    cls,
		interventions: interventions,
		logger:        logger,
	}
}

// Validate evaluates content and returns the gating decision.
func (v *Validator) Validate(ctx context.Context, content string, tctx Context) safety.Result {
	result, _ := v.ValidateAndAssess(ctx, content, tctx)
	return result
}

// ValidateAndAssess evaluates rules and crisis classification concurrently
// and merges them. Crisis detection always dominates rule findings: any
// detected level lifts the decision to at least warning, high or critical to
// blocked.
func (v *Validator) ValidateAndAssess(ctx context.Context, content string, tctx Context) (safety.Result, crisis.Assessment) {
	start := time.Now()

	var (
		result     safety.Result
		assessment crisis.Assessment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result = v.engine.Evaluate(gctx, content, tctx.Role)
		return nil
	})
	g.Go(func() error {
		assessment = v.classifier.Assess(gctx, content, tctx.History)
		return nil
	})
	// Both branches recover internally; the group only joins them.
	_ = g.Wait()

	result = result.Raise(dominanceFloor(assessment))

	if assessment.Detected() && v.interventions != nil {
		v.interventions.OnAssessment(tctx.SessionID, assessment)
	}

	prometheus.EvaluationsTotal.WithLabelValues(result.Level.String()).Inc()
	prometheus.EvaluationLatency.Observe(float64(time.Since(start).Milliseconds()))

	v.logger.WithFields(logrus.Fields{
		"session_id": tctx.SessionID,
		"role":       tctx.Role,
		"level":      result.Level.String(),
		"findings":   len(result.Findings),
		"crisis":     assessment.Type,
	}).Debug("content validated")

	return result, assessment
}

// dominanceFloor maps a crisis level to the minimum acceptable safety level.
func dominanceFloor(assessment crisis.Assessment) safety.Level {
	switch {
	case assessment.Level >= crisis.LevelHigh:
		return safety.LevelBlocked
	case assessment.Level > crisis.LevelNone:
		return safety.LevelWarning
	default:
		return safety.LevelSafe
	}
}
