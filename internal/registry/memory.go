// Package registry stores batch snapshots between poller ticks.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"scenestudio/internal/domain"
)

// DefaultRetention is how long a terminal batch stays readable.
const DefaultRetention = 24 * time.Hour

type memLease struct {
	token uint64
	until time.Time
}

type memEntry struct {
	batch     *domain.Batch
	expiresAt time.Time
}

// MemoryStore is an in-process BatchStore. Terminal batches expire after the
// retention window and are removed by Sweep.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[string]memEntry
	leases    map[string]memLease
	nextToken uint64
	retention time.Duration
	now       func() time.Time
}

var (
	_ domain.BatchStore  = (*MemoryStore)(nil)
	_ domain.BatchLocker = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store. retention <= 0 uses DefaultRetention.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{
		items:     make(map[string]memEntry),
		leases:    make(map[string]memLease),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, batchID string) (*domain.Batch, error) {
	s.mu.RLock()
	e, ok := s.items[batchID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		return nil, domain.ErrNotFound
	}
	return e.batch.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, b *domain.Batch) error {
	if b == nil || b.ID == "" {
		return domain.ErrInvalidRequest
	}
	e := memEntry{batch: b.Clone()}
	if b.Status.Terminal() {
		e.expiresAt = s.now().Add(s.retention)
	}
	s.mu.Lock()
	s.items[b.ID] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, batchID string) error {
	s.mu.Lock()
	delete(s.items, batchID)
	s.mu.Unlock()
	return nil
}

// ActiveIDs returns non-terminal batches, oldest first.
func (s *MemoryStore) ActiveIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	active := make([]*domain.Batch, 0, len(s.items))
	for _, e := range s.items {
		if !e.batch.Status.Terminal() {
			active = append(active, e.batch)
		}
	}
	s.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		if active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].ID < active[j].ID
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	ids := make([]string, len(active))
	for i, b := range active {
		ids[i] = b.ID
	}
	return ids, nil
}

// Lock leases batchID to the caller within this process.
func (s *MemoryStore) Lock(_ context.Context, batchID string, ttl time.Duration) (func(), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if l, held := s.leases[batchID]; held && now.Before(l.until) {
		return nil, false, nil
	}
	s.nextToken++
	token := s.nextToken
	s.leases[batchID] = memLease{token: token, until: now.Add(ttl)}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if l, ok := s.leases[batchID]; ok && l.token == token {
			delete(s.leases, batchID)
		}
	}, true, nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.items {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.items, id)
			n++
		}
	}
	for id, l := range s.leases {
		if !now.Before(l.until) {
			delete(s.leases, id)
		}
	}
	return n, nil
}
