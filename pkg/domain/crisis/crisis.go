package crisis

import (
	"time"

	"github.com/serenmind/sentinel/pkg/domain/safety"
)

// Type classifies a detected crisis signal.
type Type string

const (
	TypeNone            Type = "none"
	TypeSelfHarm        Type = "self_harm"
	TypeAbuseDisclosure Type = "abuse_disclosure"
	TypeSevereDistress  Type = "severe_distress"
)

// Level is the severity of a detected crisis signal, ordered.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelModerate
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelLow:
		return "low"
	case LevelModerate:
		return "moderate"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Max returns the higher of the two levels.
func (l Level) Max(other Level) Level {
	if other > l {
		return other
	}
	return l
}

// AssessmentSource records which classifier produced an assessment.
type AssessmentSource string

const (
	SourceRemote    AssessmentSource = "remote"
	SourceHeuristic AssessmentSource = "heuristic"
)

// Assessment is the pure output of one crisis classification. It carries no
// workflow state of its own.
type Assessment struct {
	Type       Type             `json:"type"`
	Level      Level            `json:"level"`
	Confidence float64          `json:"confidence"`
	Evidence   []safety.Span    `json:"evidence,omitempty"`
	Source     AssessmentSource `json:"source"`
	AssessedAt time.Time        `json:"assessed_at"`
}

// None is the assessment for content with no crisis signal.
func None(source AssessmentSource) Assessment {
	return Assessment{
		Type:       TypeNone,
		Level:      LevelNone,
		Confidence: 1,
		Source:     source,
		AssessedAt: time.Now(),
	}
}

// Detected reports whether the assessment carries any crisis signal.
func (a Assessment) Detected() bool {
	return a.Type != TypeNone && a.Level > LevelNone
}

// MoreSevere picks the more severe of two assessments: higher level wins,
// equal levels keep the higher confidence.
func MoreSevere(a, b Assessment) Assessment {
	if b.Level > a.Level {
		return b
	}
	if b.Level == a.Level && b.Confidence > a.Confidence {
		return b
	}
	return a
}

// HistoryEntry is one turn of bounded recent session history handed to the
// classifier.
type HistoryEntry struct {
	Role    safety.ContentRole `json:"role"`
	Content string             `json:"content"`
	At      time.Time          `json:"at"`
}
