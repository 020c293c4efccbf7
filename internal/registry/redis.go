package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"scenestudio/internal/domain"
)

// RedisStore keeps batch snapshots as JSON strings. Non-terminal batches are
// indexed in a set so any instance can schedule them after a restart;
// terminal snapshots carry a TTL equal to the retention window.
type RedisStore struct {
	client    goredis.Cmdable
	keyPrefix string
	retention time.Duration
}

var (
	_ domain.BatchStore  = (*RedisStore)(nil)
	_ domain.BatchLocker = (*RedisStore)(nil)
)

// Option configures RedisStore.
type Option func(*RedisStore)

// WithKeyPrefix sets the key prefix (default "scenestudio:").
func WithKeyPrefix(prefix string) Option {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// WithRetention sets how long terminal batches are kept.
func WithRetention(d time.Duration) Option {
	return func(s *RedisStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client goredis.Cmdable, opts ...Option) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: "scenestudio:",
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) batchKey(id string) string {
	return s.keyPrefix + "batch:" + id
}

func (s *RedisStore) activeKey() string {
	return s.keyPrefix + "batches:active"
}

func (s *RedisStore) leaseKey(id string) string {
	return s.keyPrefix + "lease:" + id
}

// unlockScript deletes the lease only while it still carries our token.
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes the lease with SET NX EX so pollers in other processes skip
// the batch until it is released or ttl passes.
func (s *RedisStore) Lock(ctx context.Context, batchID string, ttl time.Duration) (func(), bool, error) {
	key := s.leaseKey(batchID)
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("registry lock %s: %w", batchID, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = unlockScript.Run(uctx, s.client, []string{key}, token).Result()
	}, true, nil
}

func (s *RedisStore) Get(ctx context.Context, batchID string) (*domain.Batch, error) {
	raw, err := s.client.Get(ctx, s.batchKey(batchID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry get %s: %w", batchID, err)
	}
	var b domain.Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("registry decode %s: %w", batchID, err)
	}
	return &b, nil
}

func (s *RedisStore) Put(ctx context.Context, b *domain.Batch) error {
	if b == nil || b.ID == "" {
		return domain.ErrInvalidRequest
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("registry encode %s: %w", b.ID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		if b.Status.Terminal() {
			p.Set(ctx, s.batchKey(b.ID), raw, s.retention)
			p.SRem(ctx, s.activeKey(), b.ID)
			return nil
		}
		p.Set(ctx, s.batchKey(b.ID), raw, 0)
		p.SAdd(ctx, s.activeKey(), b.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("registry put %s: %w", b.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, batchID string) error {
	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, s.batchKey(batchID))
		p.SRem(ctx, s.activeKey(), batchID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("registry delete %s: %w", batchID, err)
	}
	return nil
}

func (s *RedisStore) ActiveIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.activeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("registry active: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Sweep removes active-set members whose snapshot no longer exists. Terminal
// snapshots expire through their Redis TTL.
func (s *RedisStore) Sweep(ctx context.Context, _ time.Time) (int, error) {
	ids, err := s.client.SMembers(ctx, s.activeKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("registry sweep: %w", err)
	}
	n := 0
	for _, id := range ids {
		exists, err := s.client.Exists(ctx, s.batchKey(id)).Result()
		if err != nil {
			return n, fmt.Errorf("registry sweep %s: %w", id, err)
		}
		if exists > 0 {
			continue
		}
		if err := s.client.SRem(ctx, s.activeKey(), id).Err(); err != nil {
			return n, fmt.Errorf("registry sweep %s: %w", id, err)
		}
		n++
	}
	return n, nil
}
