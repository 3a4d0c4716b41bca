package rulestore

import (
	"context"
	"sync/atomic"

	"github.com/serenmind/sentinel/pkg/domain/safety"
	"github.com/serenmind/sentinel/pkg/infra/prometheus"
)

//go:generate mockery --name=Store --dir=. --output=./mocks --filename=store_mock.go --case=underscore --with-expecter

// Store serves the active rule set. Implementations must guarantee that
// Active never blocks on a backend and never returns nil: when a backend is
// unreachable the last-known-good (or bundled default) set keeps serving.
type Store interface {
	Active() *safety.RuleSet
	Reload(ctx context.Context) (*safety.RuleSet, error)
	Watch(ctx context.Context, onSwap func(*safety.RuleSet))
	Close() error
}

// MemoryStore holds an in-memory rule set with zero external dependencies.
// Swaps are a single atomic pointer update; readers never block.
type MemoryStore struct {
	active atomic.Pointer[safety.RuleSet]
}

// NewMemoryStore creates a store serving the given set, or the bundled
// default set when nil.
func NewMemoryStore(set *safety.RuleSet) *MemoryStore {
	if set == nil {
		set = DefaultRuleSet()
	}
	s := &MemoryStore{}
	s.swap(set)
	return s
}

func (s *MemoryStore) swap(set *safety.RuleSet) {
	s.active.Store(set)
	prometheus.RuleSetInfo.Reset()
	prometheus.RuleSetInfo.WithLabelValues(set.Version).Set(1)
}

func (s *MemoryStore) Active() *safety.RuleSet {
	return s.active.Load()
}

func (s *MemoryStore) Reload(_ context.Context) (*safety.RuleSet, error) {
	return s.active.Load(), nil
}

// Swap atomically replaces the active set. Used by composition roots that
// load rule files at startup and by tests.
func (s *MemoryStore) Swap(set *safety.RuleSet) {
	s.swap(set)
}

func (s *MemoryStore) Watch(_ context.Context, _ func(*safety.RuleSet)) {}

func (s *MemoryStore) Close() error { return nil }
