package crisis

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActionType identifies one kind of intervention action.
type ActionType string

const (
	ActionImmediateSafetyMessage ActionType = "immediate_safety_message"
	ActionResourceLink           ActionType = "resource_link"
	ActionSoftBlock              ActionType = "soft_block"
	ActionHumanReviewRequest     ActionType = "human_review_request"
	ActionContinuousMonitoring   ActionType = "continuous_monitoring"
)

// Action is one step of an intervention, produced deterministically by the
// emergency protocol for a (type, level) pair.
type Action struct {
	Type      ActionType `json:"type"`
	Target    string     `json:"target"`
	Rationale string     `json:"rationale"`
}

// State is the workflow state of a crisis intervention.
type State string

const (
	StateDetected    State = "detected"
	StateAssessing   State = "assessing"
	StateIntervening State = "intervening"
	StateResolved    State = "resolved"
	StateEscalated   State = "escalated"
	StateTimedOut    State = "timed_out"
)

// IsTerminal reports whether the state admits no further transitions, except
// the TimedOut backstop which is always followed by an escalation hand-off.
func (s State) IsTerminal() bool {
	switch s {
	case StateResolved, StateEscalated, StateTimedOut:
		return true
	default:
		return false
	}
}

var validTransitions = map[State][]State{
	StateDetected:    {StateAssessing, StateResolved, StateTimedOut},
	StateAssessing:   {StateIntervening, StateResolved, StateTimedOut},
	StateIntervening: {StateResolved, StateEscalated, StateTimedOut},
	StateTimedOut:    {StateEscalated},
}

// CanTransition reports whether from -> to is a legal workflow transition.
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EscalationRecord tracks delivery of the human-oversight notification for
// one incident. Delivered goes false -> true at most once per incident,
// regardless of retry count.
type EscalationRecord struct {
	IncidentID   uuid.UUID  `json:"incident_id"`
	Attempts     int        `json:"attempts"`
	Delivered    bool       `json:"delivered"`
	DeadLettered bool       `json:"dead_lettered"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
}

// Intervention is the per-session crisis workflow. It is owned exclusively by
// the intervention coordinator for its session; at most one active instance
// exists per session at any time.
type Intervention struct {
	ID         uuid.UUID         `json:"id"`
	SessionID  string            `json:"session_id"`
	Assessment Assessment        `json:"assessment"`
	Actions    []Action          `json:"actions"`
	State      State             `json:"state"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Escalation *EscalationRecord `json:"escalation,omitempty"`
}

// NewIntervention creates an intervention in the Detected state for the first
// non-none assessment seen on a session.
func NewIntervention(sessionID string, assessment Assessment) *Intervention {
	now := time.Now()
	return &Intervention{
		ID:         uuid.New(),
		SessionID:  sessionID,
		Assessment: assessment,
		State:      StateDetected,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition moves the intervention to the next state, rejecting anything the
// workflow graph does not allow.
func (i *Intervention) Transition(to State) error {
	if !CanTransition(i.State, to) {
		return fmt.Errorf("%w: %s -> %s (session %s)", ErrInvalidTransition, i.State, to, i.SessionID)
	}
	i.State = to
	i.UpdatedAt = time.Now()
	return nil
}

// Merge folds a new detection into an already-active intervention: the
// severity can only rise and evidence accumulates. It never creates a second
// instance for the session.
func (i *Intervention) Merge(assessment Assessment) {
	merged := MoreSevere(i.Assessment, assessment)
	merged.Evidence = append(i.Assessment.Evidence, assessment.Evidence...)
	i.Assessment = merged
	i.UpdatedAt = time.Now()
}

// AppendActions extends the action history, skipping action types already
// recorded so merged detections do not duplicate steps.
func (i *Intervention) AppendActions(actions []Action) {
	seen := make(map[ActionType]bool, len(i.Actions))
	for _, a := range i.Actions {
		seen[a.Type] = true
	}
	for _, a := range actions {
		if seen[a.Type] {
			continue
		}
		seen[a.Type] = true
		i.Actions = append(i.Actions, a)
	}
	i.UpdatedAt = time.Now()
}
