package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Latency buckets in milliseconds; the crisis path must resolve well
	// under a second, so the upper buckets exist to expose budget violations.
	latencyBuckets = []float64{
		1, 2, 5, 10, 25,
		50, 100, 200, 500,
		1000, 2500, 5000,
	}

	EvaluationsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_evaluations_total",
			Help: "Total content evaluations, by resulting safety level",
		},
		[]string{"level"},
	)

	EvaluationLatency = promauto.With(registerer).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_evaluation_latency_ms",
			Help:    "End-to-end validation latency in milliseconds",
			Buckets: latencyBuckets,
		},
	)

	RuleFailuresTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_rule_failures_total",
			Help: "Individual rule evaluation failures, skipped fail-open",
		},
	)

	RuleSetReloadsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_ruleset_reloads_total",
			Help: "Rule set reload attempts, by outcome",
		},
		[]string{"outcome"},
	)

	RuleSetInfo = promauto.With(registerer).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_ruleset_info",
			Help: "Active rule set version (value is always 1)",
		},
		[]string{"version"},
	)

	RuleStoreDegraded = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_rulestore_degraded",
			Help: "1 while the persistent rule store is unreachable and the last-known-good set is being served",
		},
	)

	CrisisDetectionsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_crisis_detections_total",
			Help: "Crisis detections, by type and level",
		},
		[]string{"type", "level"},
	)

	ClassifierFallbacksTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_classifier_fallbacks_total",
			Help: "Times the remote crisis classifier was replaced by the local heuristic",
		},
	)

	ActiveInterventions = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_active_interventions",
			Help: "Interventions currently in a non-terminal state",
		},
	)

	InterventionsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_interventions_total",
			Help: "Interventions reaching a terminal state, by state",
		},
		[]string{"state"},
	)

	StateViolationsTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_state_violations_total",
			Help: "Attempted transitions rejected by the intervention state graph",
		},
	)

	EscalationsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_escalations_total",
			Help: "Escalation delivery outcomes, by result (delivered, duplicate, dead_lettered)",
		},
		[]string{"result"},
	)

	EscalationAttemptsTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_escalation_attempts_total",
			Help: "Individual escalation delivery attempts, including retries",
		},
	)
)

// Registry exposes the private registry for the pull-style metrics endpoint.
func Registry() *prometheus.Registry {
	return registry
}

func Initialize() {
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
