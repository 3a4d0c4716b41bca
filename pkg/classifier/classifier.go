package classifier

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/serenmind/sentinel/pkg/domain/crisis"
	"github.com/serenmind/sentinel/pkg/infra/prometheus"
)

//go:generate mockery --name=Classifier --dir=. --output=./mocks --filename=classifier_mock.go --case=underscore --with-expecter

// Classifier scores content plus bounded recent session history for crisis
// indicators. Implementations are pure functions of their inputs and must be
// safe for concurrent use.
type Classifier interface {
	Assess(ctx context.Context, content string, history []crisis.HistoryEntry) crisis.Assessment
}

// Hybrid tries the remote classifier and falls back to the local heuristic
// whenever the remote path errors, times out, or is circuit-broken. When both
// produce a signal, the more severe one wins: unavailability of the primary
// can only ever make detection more sensitive, never less.
type Hybrid struct {
	remote    *Remote
	heuristic *Heuristic
	logger    *logrus.Logger
}

func NewHybrid(remote *Remote, heuristic *Heuristic, logger *logrus.Logger) *Hybrid {
	return &Hybrid{remote: remote, heuristic: heuristic, logger: logger}
}

func (h *Hybrid) Assess(ctx context.Context, content string, history []crisis.HistoryEntry) crisis.Assessment {
	local := h.heuristic.Assess(ctx, content, history)

	if h.remote == nil {
		return local
	}

	primary, err := h.remote.Assess(ctx, content, history)
	if err != nil {
		prometheus.ClassifierFallbacksTotal.Inc()
		h.logger.WithError(err).Debug("remote crisis classifier unavailable, using heuristic")
		return local
	}

	return crisis.MoreSevere(primary, local)
}
