package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"scenestudio/internal/cache"
	"scenestudio/internal/domain"
)

// MemoryOwners is a per-process OwnerIndex.
type MemoryOwners struct {
	owners *cache.TTLCache[string, string]
}

var _ domain.OwnerIndex = (*MemoryOwners)(nil)

func NewMemoryOwners() *MemoryOwners {
	return &MemoryOwners{owners: cache.NewTTLCache[string, string]()}
}

func (o *MemoryOwners) SetOwner(_ context.Context, id, userID string, ttl time.Duration) error {
	o.owners.Set(id, userID, ttl)
	return nil
}

func (o *MemoryOwners) Owner(_ context.Context, id string) (string, error) {
	owner, ok := o.owners.Get(id)
	if !ok {
		return "", domain.ErrNotFound
	}
	return owner, nil
}

// RedisOwners keeps owners under "<prefix><kind>:<id>" so every API replica
// sees the same mapping.
type RedisOwners struct {
	client    goredis.Cmdable
	keyPrefix string
	kind      string
}

var _ domain.OwnerIndex = (*RedisOwners)(nil)

func NewRedisOwners(client goredis.Cmdable, keyPrefix, kind string) *RedisOwners {
	return &RedisOwners{client: client, keyPrefix: keyPrefix, kind: kind}
}

func (o *RedisOwners) key(id string) string {
	return o.keyPrefix + o.kind + ":" + id
}

func (o *RedisOwners) SetOwner(ctx context.Context, id, userID string, ttl time.Duration) error {
	if err := o.client.Set(ctx, o.key(id), userID, ttl).Err(); err != nil {
		return fmt.Errorf("registry set %s owner %s: %w", o.kind, id, err)
	}
	return nil
}

func (o *RedisOwners) Owner(ctx context.Context, id string) (string, error) {
	owner, err := o.client.Get(ctx, o.key(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("registry get %s owner %s: %w", o.kind, id, err)
	}
	return owner, nil
}
