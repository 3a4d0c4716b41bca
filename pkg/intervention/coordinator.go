package intervention

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/serenmind/sentinel/pkg/domain/crisis"
	"github.com/serenmind/sentinel/pkg/escalation"
	"github.com/serenmind/sentinel/pkg/infra/prometheus"
)

//go:generate mockery --name=Escalator --dir=. --output=./mocks --filename=escalator_mock.go --case=underscore --with-expecter

// Escalator hands an incident to the human-oversight delivery path.
type Escalator interface {
	Escalate(ctx context.Context, incident escalation.Incident) escalation.Outcome
}

// Archiver persists interventions that reached a terminal state. A nil
// archiver is valid and skips persistence.
type Archiver interface {
	Archive(ctx context.Context, intervention *crisis.Intervention) error
}

type Config struct {
	// ConfidenceThreshold gates Detected -> Intervening. Below it the
	// intervention waits in Assessing for a corroborating signal.
	ConfidenceThreshold float64
	// AssessmentWindow bounds how long an uncorroborated low-confidence
	// detection stays open before resolving as a false positive.
	AssessmentWindow time.Duration
	// CoolDown is how long after the last crisis signal a completed
	// intervention waits before resolving.
	CoolDown time.Duration
	// Timeout escalates an intervention that stays unresolved.
	Timeout time.Duration
	// HardCeiling is the backstop: past it the intervention times out and is
	// escalated regardless of its state.
	HardCeiling time.Duration
	// EscalateLevel triggers immediate escalation at or above it.
	EscalateLevel crisis.Level
}

// Coordinator owns the per-session intervention workflow. Exactly one
// instance is active per session; concurrent detections for the same session
// serialize on the session's lock and merge instead of forking. Different
// sessions proceed fully in parallel.
type Coordinator struct {
	protocol  *Protocol
	escalator Escalator
	archiver  Archiver
	clock     Clock
	logger    *logrus.Logger
	cfg       Config

	mu       sync.Mutex
	sessions map[string]*sessionState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type sessionState struct {
	mu sync.Mutex
	iv *crisis.Intervention

	assessTimer   Timer
	timeoutTimer  Timer
	coolDownTimer Timer
	ceilingTimer  Timer

	lastSignalAt time.Time
	actionsDone  bool
}

func NewCoordinator(
	protocol *Protocol,
	escalator Escalator,
	archiver Archiver,
	clock Clock,
	cfg Config,
	logger *logrus.Logger,
) *Coordinator {
	if clock == nil {
		clock = NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		protocol:  protocol,
		escalator: escalator,
		archiver:  archiver,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
		sessions:  make(map[string]*sessionState),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnAssessment drives the workflow for one crisis assessment. The first
// non-none assessment for a session creates an intervention; further ones
// merge into the active instance. It returns a snapshot of the intervention,
// or nil when the assessment carries no signal.
func (c *Coordinator) OnAssessment(sessionID string, assessment crisis.Assessment) *crisis.Intervention {
	if !assessment.Detected() {
		return nil
	}

	prometheus.CrisisDetectionsTotal.WithLabelValues(
		string(assessment.Type), assessment.Level.String(),
	).Inc()

	st := c.lockSession(sessionID)
	defer st.mu.Unlock()

	if st.iv == nil || st.iv.State.IsTerminal() {
		c.startLocked(st, sessionID, assessment)
	} else {
		c.mergeLocked(st, assessment)
	}
	st.lastSignalAt = c.clock.Now()

	return snapshot(st.iv)
}

func (c *Coordinator) startLocked(st *sessionState, sessionID string, assessment crisis.Assessment) {
	st.iv = crisis.NewIntervention(sessionID, assessment)
	st.actionsDone = false
	prometheus.ActiveInterventions.Inc()

	c.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"type":       assessment.Type,
		"level":      assessment.Level.String(),
		"confidence": assessment.Confidence,
	}).Info("crisis detected, intervention created")

	st.ceilingTimer = c.clock.AfterFunc(c.cfg.HardCeiling, func() {
		c.onHardCeiling(sessionID, st)
	})

	c.transitionLocked(st, crisis.StateAssessing)

	if assessment.Confidence >= c.cfg.ConfidenceThreshold {
		c.interveneLocked(st)
		return
	}

	// Low confidence with no corroboration inside the window resolves as a
	// false positive.
	st.assessTimer = c.clock.AfterFunc(c.cfg.AssessmentWindow, func() {
		c.onAssessmentWindow(sessionID, st)
	})
}

func (c *Coordinator) mergeLocked(st *sessionState, assessment crisis.Assessment) {
	st.iv.Merge(assessment)

	switch st.iv.State {
	case crisis.StateAssessing:
		// A second signal inside the window corroborates the first.
		c.interveneLocked(st)
	case crisis.StateIntervening:
		st.iv.AppendActions(c.protocol.ActionsFor(st.iv.Assessment.Type, st.iv.Assessment.Level))
		st.actionsDone = false
		if st.iv.Assessment.Level >= c.cfg.EscalateLevel {
			c.escalateLocked(st, "crisis level reached escalation threshold")
		}
	}
}

func (c *Coordinator) interveneLocked(st *sessionState) {
	stopTimer(&st.assessTimer)
	if !c.transitionLocked(st, crisis.StateIntervening) {
		return
	}

	st.iv.AppendActions(c.protocol.ActionsFor(st.iv.Assessment.Type, st.iv.Assessment.Level))

	sessionID := st.iv.SessionID
	st.timeoutTimer = c.clock.AfterFunc(c.cfg.Timeout, func() {
		c.onTimeout(sessionID, st)
	})

	if st.iv.Assessment.Level >= c.cfg.EscalateLevel {
		c.escalateLocked(st, "crisis level reached escalation threshold")
	}
}

// CompleteActions records that every pending action for the session's
// intervention was carried out. Resolution follows once the cool-down window
// passes with no further crisis signal.
func (c *Coordinator) CompleteActions(sessionID string) error {
	st, ok := c.lookup(sessionID)
	if !ok {
		return crisis.ErrInterventionNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.iv == nil || st.iv.State != crisis.StateIntervening {
		return crisis.ErrInterventionNotFound
	}

	st.actionsDone = true
	stopTimer(&st.coolDownTimer)
	st.coolDownTimer = c.clock.AfterFunc(c.cfg.CoolDown, func() {
		c.onCoolDown(sessionID, st)
	})
	return nil
}

func (c *Coordinator) onAssessmentWindow(sessionID string, st *sessionState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.iv == nil || st.iv.State != crisis.StateAssessing {
		return
	}
	c.logger.WithField("session_id", sessionID).Info("uncorroborated low-confidence detection resolved as false positive")
	c.resolveLocked(st)
}

func (c *Coordinator) onCoolDown(sessionID string, st *sessionState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.iv == nil || st.iv.State != crisis.StateIntervening || !st.actionsDone {
		return
	}

	// A signal during the cool-down restarts the wait.
	quiet := c.clock.Now().Sub(st.lastSignalAt)
	if quiet < c.cfg.CoolDown {
		st.coolDownTimer = c.clock.AfterFunc(c.cfg.CoolDown-quiet, func() {
			c.onCoolDown(sessionID, st)
		})
		return
	}

	c.resolveLocked(st)
}

func (c *Coordinator) onTimeout(sessionID string, st *sessionState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.iv == nil || st.iv.State != crisis.StateIntervening {
		return
	}
	c.logger.WithField("session_id", sessionID).Warn("intervention unresolved past timeout, escalating")
	c.escalateLocked(st, "intervention unresolved past timeout")
}

func (c *Coordinator) onHardCeiling(sessionID string, st *sessionState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.iv == nil || st.iv.State.IsTerminal() {
		return
	}
	c.logger.WithField("session_id", sessionID).Error("intervention hit hard ceiling, timing out")
	if !c.transitionLocked(st, crisis.StateTimedOut) {
		return
	}
	prometheus.InterventionsTotal.WithLabelValues(string(crisis.StateTimedOut)).Inc()
	c.escalateLocked(st, "hard ceiling timeout with no resolution")
}

func (c *Coordinator) resolveLocked(st *sessionState) {
	if !c.transitionLocked(st, crisis.StateResolved) {
		return
	}
	iv := st.iv
	c.finalizeLocked(st)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.archive(iv)
	}()
}

// escalateLocked transitions to Escalated and hands the incident off for
// delivery. The transition is what makes escalation exactly-once from the
// workflow side: a terminal instance can never re-enter this path.
func (c *Coordinator) escalateLocked(st *sessionState, reason string) {
	if !c.transitionLocked(st, crisis.StateEscalated) {
		return
	}

	iv := st.iv
	record := &crisis.EscalationRecord{IncidentID: uuid.New()}
	iv.Escalation = record

	incident := escalation.Incident{
		IncidentID:     record.IncidentID,
		InterventionID: iv.ID,
		SessionID:      iv.SessionID,
		Type:           iv.Assessment.Type,
		Level:          iv.Assessment.Level,
		Confidence:     iv.Assessment.Confidence,
		Evidence:       iv.Assessment.Evidence,
		Actions:        append([]crisis.Action(nil), iv.Actions...),
		Reason:         reason,
		CreatedAt:      c.clock.Now(),
	}

	c.finalizeLocked(st)

	// Delivery blocks on network I/O, so it runs off the validation path.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		outcome := c.escalator.Escalate(c.ctx, incident)
		st.mu.Lock()
		record.Attempts = outcome.Attempts
		record.Delivered = outcome.Delivered
		record.DeadLettered = outcome.DeadLettered
		if outcome.Delivered {
			now := time.Now()
			record.DeliveredAt = &now
		}
		st.mu.Unlock()
		c.archive(iv)
	}()
}

// finalizeLocked retires a terminal intervention: timers stop, gauges move,
// and the session slot frees so a later detection starts a fresh instance.
func (c *Coordinator) finalizeLocked(st *sessionState) {
	stopTimer(&st.assessTimer)
	stopTimer(&st.timeoutTimer)
	stopTimer(&st.coolDownTimer)
	stopTimer(&st.ceilingTimer)

	prometheus.InterventionsTotal.WithLabelValues(string(st.iv.State)).Inc()
	prometheus.ActiveInterventions.Dec()

	c.logger.WithFields(logrus.Fields{
		"session_id":      st.iv.SessionID,
		"intervention_id": st.iv.ID,
		"state":           st.iv.State,
	}).Info("intervention reached terminal state")

	c.mu.Lock()
	if c.sessions[st.iv.SessionID] == st {
		delete(c.sessions, st.iv.SessionID)
	}
	c.mu.Unlock()
}

// transitionLocked applies a workflow transition, treating a rejected one as
// a defect signal rather than propagating it: the attempt is logged, counted,
// and the instance left untouched.
func (c *Coordinator) transitionLocked(st *sessionState, to crisis.State) bool {
	if err := st.iv.Transition(to); err != nil {
		prometheus.StateViolationsTotal.Inc()
		c.logger.WithError(err).Error("intervention state violation")
		return false
	}
	return true
}

func (c *Coordinator) archive(iv *crisis.Intervention) {
	if c.archiver == nil {
		return
	}
	if err := c.archiver.Archive(c.ctx, iv); err != nil {
		c.logger.WithError(err).WithField("intervention_id", iv.ID).Error("failed to archive intervention")
	}
}

// Active returns a snapshot of the session's active intervention, if any.
func (c *Coordinator) Active(sessionID string) (*crisis.Intervention, bool) {
	st, ok := c.lookup(sessionID)
	if !ok {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.iv == nil || st.iv.State.IsTerminal() {
		return nil, false
	}
	return snapshot(st.iv), true
}

// ActiveCount returns the number of non-terminal interventions.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	states := make([]*sessionState, 0, len(c.sessions))
	for _, st := range c.sessions {
		states = append(states, st)
	}
	c.mu.Unlock()

	count := 0
	for _, st := range states {
		st.mu.Lock()
		if st.iv != nil && !st.iv.State.IsTerminal() {
			count++
		}
		st.mu.Unlock()
	}
	return count
}

// Close cancels pending escalation deliveries and waits for in-flight work.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

// lockSession returns the session's state with its lock held, retrying when
// the entry was finalized and removed between lookup and lock.
func (c *Coordinator) lockSession(sessionID string) *sessionState {
	for {
		c.mu.Lock()
		st, ok := c.sessions[sessionID]
		if !ok {
			st = &sessionState{}
			c.sessions[sessionID] = st
		}
		c.mu.Unlock()

		st.mu.Lock()
		c.mu.Lock()
		current := c.sessions[sessionID]
		c.mu.Unlock()
		if current == st {
			return st
		}
		st.mu.Unlock()
	}
}

func (c *Coordinator) lookup(sessionID string) (*sessionState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[sessionID]
	return st, ok
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func snapshot(iv *crisis.Intervention) *crisis.Intervention {
	if iv == nil {
		return nil
	}
	out := *iv
	out.Actions = append([]crisis.Action(nil), iv.Actions...)
	if iv.Escalation != nil {
		rec := *iv.Escalation
		out.Escalation = &rec
	}
	return &out
}
