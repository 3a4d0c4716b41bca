package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DeliveryLedger arbitrates dispatch ownership so an incident is notified at
// most once no matter how many concurrent dispatches race for it. The flag is
// checked and set atomically before any send is attempted.
type DeliveryLedger interface {
	// Claim reports whether this call was the first to claim the incident.
	// Only the first claimant may deliver.
	Claim(ctx context.Context, incidentID uuid.UUID) (bool, error)
}

// MemoryLedger is the in-process ledger used when no shared backend is
// configured.
type MemoryLedger struct {
	mu      sync.Mutex
	claimed map[uuid.UUID]bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{claimed: make(map[uuid.UUID]bool)}
}

func (l *MemoryLedger) Claim(_ context.Context, incidentID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimed[incidentID] {
		return false, nil
	}
	l.claimed[incidentID] = true
	return true, nil
}

const claimedKeyPattern = "escalation:claimed:%s"

// RedisLedger shares the delivered flag across processes via SETNX.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisLedger{client: client, ttl: ttl}
}

func (l *RedisLedger) Claim(ctx context.Context, incidentID uuid.UUID) (bool, error) {
	key := fmt.Sprintf(claimedKeyPattern, incidentID)
	first, err := l.client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim incident: %w", err)
	}
	return first, nil
}
