package escalation

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/serenmind/sentinel/pkg/infra/prometheus"
)

// Dispatcher delivers exactly-once human-oversight notifications with
// bounded retries and a dead-letter queue. It runs off the synchronous
// validation path; callers hand it an incident and move on.
type Dispatcher struct {
	notifier Notifier
	ledger   DeliveryLedger
	logger   *logrus.Logger

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu         sync.Mutex
	deadLetter []Incident
}

type DispatcherConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewDispatcher(notifier Notifier, ledger DeliveryLedger, cfg DispatcherConfig, logger *logrus.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	return &Dispatcher{
		notifier:    notifier,
		ledger:      ledger,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
		maxBackoff:  cfg.MaxBackoff,
	}
}

// Escalate delivers the incident at most once. The claim is taken atomically
// before any send, so concurrent or repeated escalations of the same incident
// collapse into one delivery. Transient failures retry with jittered
// exponential backoff; exhaustion dead-letters the incident and raises a
// critical alarm, never dropping it silently.
func (d *Dispatcher) Escalate(ctx context.Context, incident Incident) Outcome {
	first, err := d.ledger.Claim(ctx, incident.IncidentID)
	if err != nil {
		// The ledger is unreachable; proceeding could double-notify, but
		// dropping a crisis escalation is worse. Deliver and let the
		// oversight channel de-duplicate by incident ID.
		d.logger.WithError(err).WithField("incident_id", incident.IncidentID).
			Error("delivery ledger unavailable, proceeding with escalation")
	} else if !first {
		prometheus.EscalationsTotal.WithLabelValues("duplicate").Inc()
		return Outcome{Duplicate: true}
	}

	attempts := 0
	for attempts < d.maxAttempts {
		attempts++
		prometheus.EscalationAttemptsTotal.Inc()

		err := d.notifier.Notify(ctx, incident)
		if err == nil {
			prometheus.EscalationsTotal.WithLabelValues("delivered").Inc()
			d.logger.WithFields(logrus.Fields{
				"incident_id": incident.IncidentID,
				"session_id":  incident.SessionID,
				"attempts":    attempts,
			}).Info("escalation delivered")
			return Outcome{Delivered: true, Attempts: attempts}
		}

		d.logger.WithError(err).WithFields(logrus.Fields{
			"incident_id": incident.IncidentID,
			"attempt":     attempts,
		}).Warn("escalation delivery attempt failed")

		if attempts >= d.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			// The incident resolved or the service is shutting down before
			// delivery completed; surface it as dead-lettered so it is
			// never lost without trace.
			return d.deadLetterIncident(incident, attempts)
		case <-time.After(d.backoff(attempts)):
		}
	}

	return d.deadLetterIncident(incident, attempts)
}

// backoff returns the jittered exponential delay before the next attempt.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.baseBackoff << (attempt - 1)
	if delay > d.maxBackoff {
		delay = d.maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1)) // #nosec G404
	return delay/2 + jitter
}

func (d *Dispatcher) deadLetterIncident(incident Incident, attempts int) Outcome {
	d.mu.Lock()
	d.deadLetter = append(d.deadLetter, incident)
	d.mu.Unlock()

	prometheus.EscalationsTotal.WithLabelValues("dead_lettered").Inc()
	d.logger.WithFields(logrus.Fields{
		"incident_id": incident.IncidentID,
		"session_id":  incident.SessionID,
		"attempts":    attempts,
		"alarm":       "critical",
	}).Error("escalation delivery exhausted, incident dead-lettered")

	return Outcome{DeadLettered: true, Attempts: attempts}
}

// DeadLetters returns a copy of the incidents whose delivery was exhausted.
func (d *Dispatcher) DeadLetters() []Incident {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Incident, len(d.deadLetter))
	copy(out, d.deadLetter)
	return out
}
