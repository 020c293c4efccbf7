// Package memstore keeps users in process memory. It backs STORE_DRIVER=memory
// for local development and serves as the store in pipeline tests.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scenestudio/internal/domain"
)

// UserStore implements domain.UserStore with a mutex-guarded map.
type UserStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	payments map[string]struct{}
	now      func() time.Time

	// FailCommits makes CommitUsage return an error while it is > 0,
	// decrementing on every call. Tests use it to simulate write failures.
	FailCommits int
	commits     int
}

var _ domain.UserStore = (*UserStore)(nil)

// NewUserStore returns an empty store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:    make(map[string]*domain.User),
		payments: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Put inserts or replaces a user.
func (s *UserStore) Put(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneUser(&u)
	s.users[u.ID] = cp
}

// Commits returns how many CommitUsage calls succeeded.
func (s *UserStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *UserStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *UserStore) EnsureUser(_ context.Context, user *domain.User) (*domain.User, error) {
	if user == nil || user.ID == "" {
		return nil, domain.ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[user.ID]; ok {
		return cloneUser(existing), nil
	}
	cp := cloneUser(user)
	now := s.now()
	if cp.Tier == "" {
		cp.Tier = domain.TierNone
	}
	if cp.BillingStatus == "" {
		cp.BillingStatus = domain.BillingStatusInactive
	}
	if cp.Usage.PeriodStart.IsZero() {
		cp.Usage.PeriodStart = now
	}
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.users[cp.ID] = cp
	return cloneUser(cp), nil
}

func (s *UserStore) SetPlan(_ context.Context, userID string, tier domain.Tier, status domain.BillingStatus, resetUsage bool) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u.Tier = tier
	u.BillingStatus = status
	if resetUsage {
		u.Usage = domain.Usage{PeriodStart: s.now()}
	}
	u.UpdatedAt = s.now()
	return cloneUser(u), nil
}

func (s *UserStore) CommitUsage(_ context.Context, userID string, completed int, artifacts []domain.Artifact) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCommits > 0 {
		s.FailCommits--
		return nil, fmt.Errorf("memstore: simulated write failure")
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	fresh, charge := domain.NewArtifacts(u.Library, artifacts, completed)
	u.Usage.OperationsUsed += charge
	u.Library = append(u.Library, fresh...)
	u.UpdatedAt = s.now()
	s.commits++
	return cloneUser(u), nil
}

func (s *UserStore) ListLibrary(_ context.Context, userID string, limit int) ([]domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]domain.Artifact, 0, len(u.Library))
	for i := len(u.Library) - 1; i >= 0; i-- {
		out = append(out, u.Library[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *UserStore) DeleteArtifact(_ context.Context, userID, artifactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	for i, a := range u.Library {
		if a.ID == artifactID {
			u.Library = append(u.Library[:i:i], u.Library[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *UserStore) ConsumeCredits(_ context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if u.Credits < amount {
		return u.Credits, domain.ErrInsufficientCredits
	}
	u.Credits -= amount
	return u.Credits, nil
}

func (s *UserStore) RefundCredits(_ context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	u.Credits += amount
	return u.Credits, nil
}

func (s *UserStore) GrantCredits(_ context.Context, userID string, amount int, paymentRef string) (int, error) {
	if amount <= 0 || paymentRef == "" {
		return 0, domain.ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if _, seen := s.payments[paymentRef]; seen {
		return u.Credits, domain.ErrDuplicateOperation
	}
	s.payments[paymentRef] = struct{}{}
	u.Credits += amount
	return u.Credits, nil
}

func cloneUser(u *domain.User) *domain.User {
	cp := *u
	cp.Library = append([]domain.Artifact(nil), u.Library...)
	return &cp
}
