package rulestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/serenmind/sentinel/pkg/domain/safety"
	"github.com/serenmind/sentinel/pkg/infra/prometheus"
)

const fetchTimeout = 5 * time.Second

// RedisStore serves versioned rule sets from redis. The backing store is a
// configuration source only: when it is unreachable the store keeps serving
// the last-known-good set (or the bundled default) and reports degraded
// health, never an error to callers on the request path.
type RedisStore struct {
	client        *redis.Client
	compiler      *Compiler
	logger        *logrus.Logger
	key           string
	updateChannel string

	active   atomic.Pointer[safety.RuleSet]
	degraded atomic.Bool
	cancel   context.CancelFunc
}

type RedisStoreConfig struct {
	Key           string
	UpdateChannel string
}

// NewRedisStore builds the store and attempts a first load. A failed first
// load is not fatal: the fallback set serves until the backend recovers.
func NewRedisStore(
	client *redis.Client,
	compiler *Compiler,
	fallback *safety.RuleSet,
	cfg RedisStoreConfig,
	logger *logrus.Logger,
) *RedisStore {
	if fallback == nil {
		fallback = DefaultRuleSet()
	}
	s := &RedisStore{
		client:        client,
		compiler:      compiler,
		logger:        logger,
		key:           cfg.Key,
		updateChannel: cfg.UpdateChannel,
	}
	s.swap(fallback)

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	if _, err := s.Reload(ctx); err != nil {
		logger.WithError(err).Warn("rule store unreachable at startup, serving default rules")
	}
	return s
}

func (s *RedisStore) swap(set *safety.RuleSet) {
	s.active.Store(set)
	prometheus.RuleSetInfo.Reset()
	prometheus.RuleSetInfo.WithLabelValues(set.Version).Set(1)
}

func (s *RedisStore) Active() *safety.RuleSet {
	return s.active.Load()
}

// Degraded reports whether the last reload attempt failed.
func (s *RedisStore) Degraded() bool {
	return s.degraded.Load()
}

// Reload fetches, validates and atomically swaps in the newest rule set.
// On any failure the previous set stays active and degraded health is
// reported through metrics.
func (s *RedisStore) Reload(ctx context.Context) (*safety.RuleSet, error) {
	set, err := s.fetch(ctx)
	if err != nil {
		s.markDegraded(err)
		return s.active.Load(), err
	}

	s.degraded.Store(false)
	prometheus.RuleStoreDegraded.Set(0)

	current := s.active.Load()
	if current != nil && current.Version == set.Version {
		return current, nil
	}

	s.swap(set)
	prometheus.RuleSetReloadsTotal.WithLabelValues("success").Inc()
	s.logger.WithFields(logrus.Fields{
		"version": set.Version,
		"rules":   set.Len(),
	}).Info("rule set reloaded")
	return set, nil
}

func (s *RedisStore) fetch(ctx context.Context) (*safety.RuleSet, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rule set from redis: %w", err)
	}

	var def SetDefinition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return nil, fmt.Errorf("malformed rule set payload: %w", err)
	}

	set, err := s.compiler.Compile(def)
	if err != nil {
		return nil, fmt.Errorf("rule set rejected: %w", err)
	}
	return set, nil
}

func (s *RedisStore) markDegraded(err error) {
	prometheus.RuleSetReloadsTotal.WithLabelValues("failure").Inc()
	if !s.degraded.Swap(true) {
		s.logger.WithError(err).Warn("rule store degraded, serving last-known-good set")
	}
	prometheus.RuleStoreDegraded.Set(1)
}

// Watch subscribes to the update channel and reloads on every notification,
// reconnecting with a short delay on pubsub failure. It blocks until ctx is
// cancelled, so callers run it on its own goroutine.
func (s *RedisStore) Watch(ctx context.Context, onSwap func(*safety.RuleSet)) {
	ctx, s.cancel = context.WithCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("rule store watcher shutting down")
			return
		default:
		}

		s.listen(ctx, onSwap)

		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("rule store pubsub disconnected, reconnecting in 1s")
		time.Sleep(time.Second)
	}
}

func (s *RedisStore) listen(ctx context.Context, onSwap func(*safety.RuleSet)) {
	pubsub := s.client.Subscribe(ctx, s.updateChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.logger.WithField("payload", msg.Payload).Debug("rule set update notification")
			before := s.active.Load()
			after, err := s.Reload(ctx)
			if err != nil {
				continue
			}
			if onSwap != nil && after != before {
				onSwap(after)
			}
		}
	}
}

func (s *RedisStore) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
