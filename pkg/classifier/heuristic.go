package classifier

import (
	"context"
	"time"

	"github.com/serenmind/sentinel/pkg/domain/crisis"
	"github.com/serenmind/sentinel/pkg/domain/safety"
)

// historyWindow bounds how much recent history the heuristic inspects.
const historyWindow = 10

// Heuristic is the conservative local crisis classifier. It never fails and
// is tuned toward sensitivity: it sits underneath the remote classifier as
// the floor detection can never drop below.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) Assess(_ context.Context, content string, history []crisis.HistoryEntry) crisis.Assessment {
	best := crisis.None(crisis.SourceHeuristic)

	for crisisType, signals := range heuristicSignals {
		level := crisis.LevelNone
		confidence := 0.0
		var evidence []safety.Span

		for _, sig := range signals {
			loc := sig.pattern.FindStringIndex(content)
			if loc == nil {
				continue
			}
			level = level.Max(sig.level)
			confidence += (1 - confidence) * sig.confidence
			evidence = append(evidence, safety.Span{
				Start:   loc[0],
				End:     loc[1],
				Excerpt: content[loc[0]:loc[1]],
			})
		}

		if level == crisis.LevelNone {
			continue
		}

		// Recent crisis signals in the same session corroborate the
		// current one: repeated disclosures raise the level one step.
		if h.historyCorroborates(crisisType, history) {
			if level < crisis.LevelCritical {
				level++
			}
			confidence += (1 - confidence) * 0.3
		}

		candidate := crisis.Assessment{
			Type:       crisisType,
			Level:      level,
			Confidence: confidence,
			Evidence:   evidence,
			Source:     crisis.SourceHeuristic,
			AssessedAt: time.Now(),
		}
		best = crisis.MoreSevere(best, candidate)
	}

	return best
}

func (h *Heuristic) historyCorroborates(crisisType crisis.Type, history []crisis.HistoryEntry) bool {
	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	for _, entry := range history[start:] {
		if entry.Role != safety.RoleUser {
			continue
		}
		for _, sig := range heuristicSignals[crisisType] {
			if sig.pattern.MatchString(entry.Content) {
				return true
			}
		}
	}
	return false
}
