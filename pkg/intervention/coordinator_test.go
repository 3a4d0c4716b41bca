package intervention

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serenmind/sentinel/pkg/domain/crisis"
	"github.com/serenmind/sentinel/pkg/escalation"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type stubEscalator struct {
	mu        sync.Mutex
	incidents []escalation.Incident
}

func (s *stubEscalator) Escalate(_ context.Context, incident escalation.Incident) escalation.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = append(s.incidents, incident)
	return escalation.Outcome{Delivered: true, Attempts: 1}
}

func (s *stubEscalator) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.incidents)
}

func (s *stubEscalator) last() escalation.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incidents[len(s.incidents)-1]
}

type stubArchiver struct {
	mu       sync.Mutex
	archived []*crisis.Intervention
}

func (s *stubArchiver) Archive(_ context.Context, iv *crisis.Intervention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived = append(s.archived, iv)
	return nil
}

func (s *stubArchiver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.archived)
}

func testConfig() Config {
	return Config{
		ConfidenceThreshold: 0.4,
		AssessmentWindow:    30 * time.Second,
		CoolDown:            2 * time.Minute,
		Timeout:             5 * time.Minute,
		HardCeiling:         15 * time.Minute,
		EscalateLevel:       crisis.LevelCritical,
	}
}

type fixture struct {
	coordinator *Coordinator
	escalator   *stubEscalator
	archiver    *stubArchiver
	clock       *FakeClock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	escalator := &stubEscalator{}
	archiver := &stubArchiver{}
	clock := NewFakeClock(time.Unix(1_700_000_000, 0))
	c := NewCoordinator(DefaultProtocol(), escalator, archiver, clock, cfg, testLogger())
	return &fixture{coordinator: c, escalator: escalator, archiver: archiver, clock: clock}
}

func highAssessment() crisis.Assessment {
	return crisis.Assessment{
		Type:       crisis.TypeSelfHarm,
		Level:      crisis.LevelHigh,
		Confidence: 0.85,
		Source:     crisis.SourceHeuristic,
	}
}

func TestCoordinator_HighConfidenceDetectionIntervenes(t *testing.T) {
	f := newFixture(t, testConfig())
	defer f.coordinator.Close()

	iv := f.coordinator.OnAssessment("sess-1", highAssessment())
	require.NotNil(t, iv)
	assert.Equal(t, crisis.StateIntervening, iv.State)

	// Self-harm at high level leads with the safety message.
	require.NotEmpty(t, iv.Actions)
	assert.Equal(t, crisis.ActionImmediateSafetyMessage, iv.Actions[0].Type)

	active, ok := f.coordinator.Active("sess-1")
	require.True(t, ok)
	assert.Equal(t, iv.ID, active.ID)
	assert.Equal(t, 1, f.coordinator.ActiveCount())
	assert.Equal(t, 0, f.escalator.count())
}

func TestCoordinator_NoSignalNoIntervention(t *testing.T) {
	f := newFixture(t, testConfig())
	defer f.coordinator.Close()

	iv := f.coordinator.OnAssessment("sess-1", crisis.None(crisis.SourceHeuristic))
	assert.Nil(t, iv)
	assert.Equal(t, 0, f.coordinator.ActiveCount())
}

func TestCoordinator_LowConfidenceResolvesAsFalsePositive(t *testing.T) {
	f := newFixture(t, testConfig())
	defer f.coordinator.Close()

	iv := f.coordinator.OnAssessment("sess-1", crisis.Assessment{
		Type:       crisis.TypeSevereDistress,
		Level:      crisis.LevelLow,
		Confidence: 0.2,
	})
	require.NotNil(t, iv)
	assert.Equal(t, crisis.StateAssessing, iv.State)

	f.clock.Advance(31 * time.Second)

	_, ok := f.coordinator.Active("sess-1")
	assert.False(t, ok)
	assert.Equal(t, 0, f.escalator.count())
}

func TestCoordinator_CorroborationInsideWindowIntervenes(t *testing.T) {
	f := newFixture(t, testConfig())
	defer f.coordinator.Close()

	first := f.coordinator.OnAssessment("sess-1", crisis.Assessment{
		Type:       crisis.TypeSevereDistress,
		Level:      crisis.LevelModerate,
		Confidence: 0.3,
	})
	require.Equal(t, crisis.StateAssessing, first.State)

	f.clock.Advance(10 * time.Second)
	second := f.coordinator.OnAssessment("sess-1", crisis.Assessment{
		Type:       crisis.TypeSevereDistress,
		Level:      crisis.LevelModerate,
		Confidence: 0.35,
	})
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, crisis.StateIntervening, second.State)

	// The assessment window must no longer resolve the corroborated case.
	f.clock.Advance(time.Minute)
	active, ok := f.coordinator.Active("sess-1")
	require.True(t, ok)
	assert.Equal(t, crisis.StateIntervening, active.State)
}

func TestCoordinator_MergePreservesSingleInstance(t *testing.T) {
	f := newFixture(t, testConfig())
	defer f.coordinator.Close()

	first := f.coordinator.OnAssessment("sess-1", highAssessment())
	merged := f.coordinator.OnAssessment("sess-1", crisis.Assessment{
		Type:       crisis.TypeSevereDistress,
		Level:      crisis.LevelModerate,
		Confidence: 0.9,
	})

	assert.Equal(t, first.ID, merged.ID)
	// The weaker follow-up never lowers the merged severity.
	assert.Equal(t, crisis.LevelHigh, merged.Assessment.Level)
	assert.Equal(t, 1, f.coordinator.ActiveCount())
}

func TestCoordinator_CriticalLevelEscalatesImmediately(t *testing.T) {
	f := newFixture(t, testConfig())

	iv := f.coordinator.OnAssessment("sess-1", crisis.Assessment{
		Type:       crisis.TypeSelfHarm,
		Level:      crisis.LevelCritical,
		Confidence: 0.95,
	})
	require.NotNil(t, iv)
	assert.Equal(t, crisis.StateEscalated, iv.State)
	require.NotNil(t, iv.Escalation)

	f.coordinator.Close()

	require.Equal(t, 1, f.escalator.count())
	incident := f.escalator.last()
	assert.Equal(t, iv.Escalation.IncidentID, incident.IncidentID)
	assert.Equal(t, crisis.LevelCritical, incident.Level)
	assert.Equal(t, "sess-1", incident.SessionID)

	_, ok := f.coordinator.Active("sess-1")
	assert.False(t, ok)
}

func TestCoordinator_MergeToCriticalEscalatesOnce(t *testing.T) {
	f := newFixture(t, testConfig())

	first := f.coordinator.OnAssessment("sess-1", highAssessment())
	require.Equal(t, crisis.StateIntervening, first.State)

	escalated := f.coordinator.OnAssessment("sess-1", crisis.Assessment{
		Type:       crisis.TypeSelfHarm,
		Level:      crisis.LevelCritical,
		Confidence: 0.95,
	})
	assert.Equal(t, first.ID, escalated.ID)
	assert.Equal(t, crisis.StateEscalated, escalated.State)

	f.coordinator.Close()
	assert.Equal(t, 1, f.escalator.count())
}

func TestCoordinator_TimeoutEscalates(t *testing.T) {
	f := newFixture(t, testConfig())

	iv := f.coordinator.OnAssessment("sess-1", highAssessment())
	require.Equal(t, crisis.StateIntervening, iv.State)

	f.clock.Advance(5*time.Minute + time.Second)
	f.coordinator.Close()

	require.Equal(t, 1, f.escalator.count())
	assert.Equal(t, "intervention unresolved past timeout", f.escalator.last().Reason)

	_, ok := f.coordinator.Active("sess-1")
	assert.False(t, ok)
}

func TestCoordinator_HardCeilingTimesOutThenEscalates(t *testing.T) {
	cfg := testConfig()
	// With the ordinary timeout out of the way only the backstop can fire.
	cfg.Timeout = time.Hour
	f := newFixture(t, cfg)

	iv := f.coordinator.OnAssessment("sess-1", highAssessment())
	require.Equal(t, crisis.StateIntervening, iv.State)

	f.clock.Advance(15*time.Minute + time.Second)
	f.coordinator.Close()

	require.Equal(t, 1, f.escalator.count())
	assert.Equal(t, "hard ceiling timeout with no resolution", f.escalator.last().Reason)
}

func TestCoordinator_CompleteActionsThenCoolDownResolves(t *testing.T) {
	f := newFixture(t, testConfig())

	iv := f.coordinator.OnAssessment("sess-1", highAssessment())
	require.Equal(t, crisis.StateIntervening, iv.State)

	require.NoError(t, f.coordinator.CompleteActions("sess-1"))
	f.clock.Advance(2 * time.Minute)

	_, ok := f.coordinator.Active("sess-1")
	assert.False(t, ok)

	f.coordinator.Close()
	assert.Equal(t, 0, f.escalator.count())
	require.Equal(t, 1, f.archiver.count())
	assert.Equal(t, crisis.StateResolved, f.archiver.archived[0].State)
}

func TestCoordinator_SignalDuringCoolDownDefersResolution(t *testing.T) {
	f := newFixture(t, testConfig())
	defer f.coordinator.Close()

	f.coordinator.OnAssessment("sess-1", highAssessment())
	require.NoError(t, f.coordinator.CompleteActions("sess-1"))

	f.clock.Advance(time.Minute)
	f.coordinator.OnAssessment("sess-1", crisis.Assessment{
		Type:       crisis.TypeSelfHarm,
		Level:      crisis.LevelModerate,
		Confidence: 0.8,
	})

	// The new signal reopens the action list, so the cool-down alone no
	// longer resolves the intervention.
	f.clock.Advance(3 * time.Minute)
	active, ok := f.coordinator.Active("sess-1")
	require.True(t, ok)
	assert.Equal(t, crisis.StateIntervening, active.State)

	require.NoError(t, f.coordinator.CompleteActions("sess-1"))
	f.clock.Advance(2 * time.Minute)
	_, ok = f.coordinator.Active("sess-1")
	assert.False(t, ok)
}

func TestCoordinator_CompleteActionsUnknownSession(t *testing.T) {
	f := newFixture(t, testConfig())
	defer f.coordinator.Close()

	err := f.coordinator.CompleteActions("nobody-home")
	assert.ErrorIs(t, err, crisis.ErrInterventionNotFound)
}

func TestCoordinator_ConcurrentDetectionsMergeIntoOneInstance(t *testing.T) {
	f := newFixture(t, testConfig())
	defer f.coordinator.Close()

	const goroutines = 16
	ids := make([]uuid.UUID, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			iv := f.coordinator.OnAssessment("sess-1", crisis.Assessment{
				Type:       crisis.TypeSevereDistress,
				Level:      crisis.LevelModerate,
				Confidence: 0.8,
			})
			ids[i] = iv.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, f.coordinator.ActiveCount())
}

func TestCoordinator_SessionsAreIndependent(t *testing.T) {
	f := newFixture(t, testConfig())
	defer f.coordinator.Close()

	a := f.coordinator.OnAssessment("sess-a", highAssessment())
	b := f.coordinator.OnAssessment("sess-b", highAssessment())

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, f.coordinator.ActiveCount())

	require.NoError(t, f.coordinator.CompleteActions("sess-a"))
	f.clock.Advance(2 * time.Minute)

	_, okA := f.coordinator.Active("sess-a")
	_, okB := f.coordinator.Active("sess-b")
	assert.False(t, okA)
	assert.True(t, okB)
}

func TestCoordinator_NewDetectionAfterTerminalStartsFresh(t *testing.T) {
	f := newFixture(t, testConfig())
	defer f.coordinator.Close()

	first := f.coordinator.OnAssessment("sess-1", highAssessment())
	require.NoError(t, f.coordinator.CompleteActions("sess-1"))
	f.clock.Advance(2 * time.Minute)

	second := f.coordinator.OnAssessment("sess-1", highAssessment())
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, crisis.StateIntervening, second.State)
}
