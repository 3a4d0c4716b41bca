package crisis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from State
		to   State
		want bool
	}{
		{StateDetected, StateAssessing, true},
		{StateDetected, StateResolved, true},
		{StateDetected, StateTimedOut, true},
		{StateDetected, StateIntervening, false},
		{StateAssessing, StateIntervening, true},
		{StateAssessing, StateEscalated, false},
		{StateIntervening, StateResolved, true},
		{StateIntervening, StateEscalated, true},
		{StateTimedOut, StateEscalated, true},
		{StateResolved, StateAssessing, false},
		{StateEscalated, StateResolved, false},
		{StateEscalated, StateEscalated, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestIntervention_Transition(t *testing.T) {
	iv := NewIntervention("sess-1", Assessment{Type: TypeSelfHarm, Level: LevelHigh})
	assert.Equal(t, StateDetected, iv.State)

	require.NoError(t, iv.Transition(StateAssessing))
	require.NoError(t, iv.Transition(StateIntervening))
	require.NoError(t, iv.Transition(StateEscalated))

	err := iv.Transition(StateResolved)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StateEscalated, iv.State)
}

func TestIntervention_Merge_SeverityOnlyRises(t *testing.T) {
	iv := NewIntervention("sess-1", Assessment{
		Type:       TypeSevereDistress,
		Level:      LevelModerate,
		Confidence: 0.6,
	})

	iv.Merge(Assessment{Type: TypeSelfHarm, Level: LevelHigh, Confidence: 0.8})
	assert.Equal(t, TypeSelfHarm, iv.Assessment.Type)
	assert.Equal(t, LevelHigh, iv.Assessment.Level)

	// A weaker follow-up signal never lowers the merged assessment.
	iv.Merge(Assessment{Type: TypeSevereDistress, Level: LevelLow, Confidence: 0.9})
	assert.Equal(t, LevelHigh, iv.Assessment.Level)
	assert.Equal(t, TypeSelfHarm, iv.Assessment.Type)
}

func TestIntervention_AppendActions_DeduplicatesByType(t *testing.T) {
	iv := NewIntervention("sess-1", Assessment{Type: TypeSelfHarm, Level: LevelHigh})

	iv.AppendActions([]Action{
		{Type: ActionImmediateSafetyMessage},
		{Type: ActionResourceLink, Target: "crisis-hotline"},
	})
	iv.AppendActions([]Action{
		{Type: ActionResourceLink, Target: "crisis-hotline"},
		{Type: ActionHumanReviewRequest},
	})

	require.Len(t, iv.Actions, 3)
	assert.Equal(t, ActionImmediateSafetyMessage, iv.Actions[0].Type)
	assert.Equal(t, ActionResourceLink, iv.Actions[1].Type)
	assert.Equal(t, ActionHumanReviewRequest, iv.Actions[2].Type)
}

func TestMoreSevere(t *testing.T) {
	high := Assessment{Type: TypeSelfHarm, Level: LevelHigh, Confidence: 0.5}
	moderate := Assessment{Type: TypeSevereDistress, Level: LevelModerate, Confidence: 0.9}

	assert.Equal(t, high, MoreSevere(high, moderate))
	assert.Equal(t, high, MoreSevere(moderate, high))

	confident := Assessment{Type: TypeSelfHarm, Level: LevelHigh, Confidence: 0.9}
	assert.Equal(t, confident, MoreSevere(high, confident))
}

func TestAssessment_Detected(t *testing.T) {
	assert.False(t, None(SourceHeuristic).Detected())
	assert.False(t, Assessment{Type: TypeSelfHarm, Level: LevelNone}.Detected())
	assert.True(t, Assessment{Type: TypeSelfHarm, Level: LevelLow}.Detected())
}
