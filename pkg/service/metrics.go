package service

import "github.com/serenmind/sentinel/pkg/rulestore"

// MetricsSnapshot is the programmatic read API over the engine's state.
// Counter time series are served by the prometheus endpoint; this snapshot
// carries the gauges a caller may want without scraping.
type MetricsSnapshot struct {
	RuleSetVersion      string `json:"rule_set_version"`
	RuleCount           int    `json:"rule_count"`
	ProtocolVersion     string `json:"protocol_version"`
	RuleStoreDegraded   bool   `json:"rule_store_degraded"`
	ActiveInterventions int    `json:"active_interventions"`
	DeadLetteredCount   int    `json:"dead_lettered_count"`
}

// Metrics assembles a read-only snapshot. It never mutates decision state.
func (s *Service) Metrics() MetricsSnapshot {
	set := s.store.Active()

	degraded := false
	if rs, ok := s.store.(*rulestore.RedisStore); ok {
		degraded = rs.Degraded()
	}

	return MetricsSnapshot{
		RuleSetVersion:      set.Version,
		RuleCount:           set.Len(),
		ProtocolVersion:     s.protocol.Version,
		RuleStoreDegraded:   degraded,
		ActiveInterventions: s.coordinator.ActiveCount(),
		DeadLetteredCount:   len(s.dispatcher.DeadLetters()),
	}
}
