package escalation

import (
	"time"

	"github.com/google/uuid"

	"github.com/serenmind/sentinel/pkg/domain/crisis"
	"github.com/serenmind/sentinel/pkg/domain/safety"
)

// Incident is the human-oversight escalation payload. It carries everything
// a reviewer needs: the crisis classification, the evidence, and the action
// history taken before the hand-off.
type Incident struct {
	IncidentID     uuid.UUID       `json:"incident_id"`
	InterventionID uuid.UUID       `json:"intervention_id"`
	SessionID      string          `json:"session_id"`
	Type           crisis.Type     `json:"type"`
	Level          crisis.Level    `json:"level"`
	Confidence     float64         `json:"confidence"`
	Evidence       []safety.Span   `json:"evidence,omitempty"`
	Actions        []crisis.Action `json:"actions,omitempty"`
	Reason         string          `json:"reason"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Outcome summarizes one escalation dispatch.
type Outcome struct {
	Delivered    bool `json:"delivered"`
	Duplicate    bool `json:"duplicate"`
	DeadLettered bool `json:"dead_lettered"`
	Attempts     int  `json:"attempts"`
}
