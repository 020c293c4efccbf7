//go:build integration

package settlement

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func TestRedisLogRecordAndLookup(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}
	prefix := "test:" + t.Name() + ":"
	t.Cleanup(func() {
		client.Del(ctx, prefix+"settled:b1")
		client.Close()
	})

	log := NewRedisLog(client, prefix, time.Minute)
	if err := log.Record(ctx, "b1", []string{"a", "b"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	open, err := log.Unsettled(ctx, "b1", []string{"a", "c", "b"})
	if err != nil {
		t.Fatalf("unsettled: %v", err)
	}
	if len(open) != 1 || open[0] != "c" {
		t.Fatalf("expected [c], got %v", open)
	}
	ttl, err := client.TTL(ctx, prefix+"settled:b1").Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("expected ttl on settled key, got %v %v", ttl, err)
	}
}
