package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"scenestudio/internal/domain"
)

func TestMemoryStoreRoundTripIsolation(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	b := &domain.Batch{ID: "b1", Status: domain.BatchStatusGenerating, Operations: []domain.Operation{{Index: 0}}}
	if err := s.Put(ctx, b); err != nil {
		t.Fatalf("put: %v", err)
	}
	b.Operations[0].Status = domain.OperationCompleted

	got, err := s.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Operations[0].Status != "" {
		t.Fatalf("store must hold a copy, got %q", got.Operations[0].Status)
	}
	got.MarkSettled("x")

	again, _ := s.Get(ctx, "b1")
	if len(again.SettledIDs) != 0 {
		t.Fatalf("reader mutation leaked into store")
	}
}

func TestMemoryStoreActiveIDsAndSweep(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Put(ctx, &domain.Batch{ID: "late", Status: domain.BatchStatusGenerating, CreatedAt: now.Add(time.Minute)})
	_ = s.Put(ctx, &domain.Batch{ID: "early", Status: domain.BatchStatusGenerating, CreatedAt: now})
	_ = s.Put(ctx, &domain.Batch{ID: "done", Status: domain.BatchStatusCompleted, CreatedAt: now})

	ids, err := s.ActiveIDs(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(ids) != 2 || ids[0] != "early" || ids[1] != "late" {
		t.Fatalf("unexpected active ids %v", ids)
	}

	if n, _ := s.Sweep(ctx, now.Add(30*time.Minute)); n != 0 {
		t.Fatalf("nothing should expire yet, swept %d", n)
	}
	if n, _ := s.Sweep(ctx, now.Add(2*time.Hour)); n != 1 {
		t.Fatalf("expected terminal batch swept, got %d", n)
	}
	if _, err := s.Get(ctx, "done"); err != domain.ErrNotFound {
		t.Fatalf("expected not found after sweep, got %v", err)
	}
	if _, err := s.Get(ctx, "early"); err != nil {
		t.Fatalf("active batch must survive sweep: %v", err)
	}
}

func TestMemoryStoreExpiredReadsAsMissing(t *testing.T) {
	now := time.Now()
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Put(ctx, &domain.Batch{ID: "b", Status: domain.BatchStatusTimedOut})
	now = now.Add(2 * time.Minute)
	if _, err := s.Get(ctx, "b"); err != domain.ErrNotFound {
		t.Fatalf("expected expired batch to read as missing, got %v", err)
	}
}

func TestMemoryStoreLockIsExclusive(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	unlock, ok, err := s.Lock(ctx, "b1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock = %v, %v", ok, err)
	}
	if _, ok, _ := s.Lock(ctx, "b1", time.Minute); ok {
		t.Fatalf("second holder got the lease")
	}
	if _, ok, _ := s.Lock(ctx, "b2", time.Minute); !ok {
		t.Fatalf("other batch should lock independently")
	}

	unlock()
	relock, ok, _ := s.Lock(ctx, "b1", time.Minute)
	if !ok {
		t.Fatalf("lease not released")
	}

	// A lapsed lease can be taken over, and the stale unlock must not free it.
	now = now.Add(2 * time.Minute)
	_, ok, _ = s.Lock(ctx, "b1", time.Minute)
	if !ok {
		t.Fatalf("expired lease not reclaimed")
	}
	relock()
	if _, ok, _ := s.Lock(ctx, "b1", time.Minute); ok {
		t.Fatalf("stale unlock released the new holder's lease")
	}
}

func TestMemoryOwners(t *testing.T) {
	o := NewMemoryOwners()
	ctx := context.Background()
	if err := o.SetOwner(ctx, "r1", "u1", time.Hour); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	if got, err := o.Owner(ctx, "r1"); err != nil || got != "u1" {
		t.Fatalf("owner = %q, %v", got, err)
	}
	if _, err := o.Owner(ctx, "r2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
