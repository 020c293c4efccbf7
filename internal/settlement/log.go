package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"scenestudio/internal/domain"
)

// MemoryLog is a process-local SettledLog.
type MemoryLog struct {
	mu      sync.Mutex
	settled map[string]map[string]struct{}
}

var _ domain.SettledLog = (*MemoryLog)(nil)

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{settled: make(map[string]map[string]struct{})}
}

func (l *MemoryLog) Unsettled(_ context.Context, batchID string, artifactIDs []string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := l.settled[batchID]
	out := make([]string, 0, len(artifactIDs))
	for _, id := range artifactIDs {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (l *MemoryLog) Record(_ context.Context, batchID string, artifactIDs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen, ok := l.settled[batchID]
	if !ok {
		seen = make(map[string]struct{}, len(artifactIDs))
		l.settled[batchID] = seen
	}
	for _, id := range artifactIDs {
		seen[id] = struct{}{}
	}
	return nil
}

// Len returns how many artifact ids are recorded for batchID.
func (l *MemoryLog) Len(batchID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.settled[batchID])
}

// RedisLog records settled artifact ids in one set per batch so the record
// survives process restarts.
type RedisLog struct {
	client    goredis.Cmdable
	keyPrefix string
	retention time.Duration
}

var _ domain.SettledLog = (*RedisLog)(nil)

// NewRedisLog wraps a connected client. Keys expire after retention, which
// must outlive the batch registry entry.
func NewRedisLog(client goredis.Cmdable, keyPrefix string, retention time.Duration) *RedisLog {
	if keyPrefix == "" {
		keyPrefix = "scenestudio:"
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &RedisLog{client: client, keyPrefix: keyPrefix, retention: retention}
}

func (l *RedisLog) key(batchID string) string {
	return l.keyPrefix + "settled:" + batchID
}

func (l *RedisLog) Unsettled(ctx context.Context, batchID string, artifactIDs []string) ([]string, error) {
	if len(artifactIDs) == 0 {
		return nil, nil
	}
	members := make([]interface{}, len(artifactIDs))
	for i, id := range artifactIDs {
		members[i] = id
	}
	found, err := l.client.SMIsMember(ctx, l.key(batchID), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("settled log lookup %s: %w", batchID, err)
	}
	out := make([]string, 0, len(artifactIDs))
	for i, ok := range found {
		if !ok {
			out = append(out, artifactIDs[i])
		}
	}
	return out, nil
}

func (l *RedisLog) Record(ctx context.Context, batchID string, artifactIDs []string) error {
	if len(artifactIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(artifactIDs))
	for i, id := range artifactIDs {
		members[i] = id
	}
	key := l.key(batchID)
	_, err := l.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.SAdd(ctx, key, members...)
		p.Expire(ctx, key, l.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("settled log record %s: %w", batchID, err)
	}
	return nil
}
