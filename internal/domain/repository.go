package domain

import (
	"context"
	"time"
)

// UserStore persists users, their usage counters, libraries and credits.
// Every mutating method must be a single atomic write in the backing store.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	EnsureUser(ctx context.Context, user *User) (*User, error)
	SetPlan(ctx context.Context, userID string, tier Tier, status BillingStatus, resetUsage bool) (*User, error)

	// CommitUsage appends artifacts to the library and increments the usage
	// counter by completed in one write. Artifacts whose id is already in the
	// library are skipped and not charged, so a replayed settlement is a no-op.
	CommitUsage(ctx context.Context, userID string, completed int, artifacts []Artifact) (*User, error)
	ListLibrary(ctx context.Context, userID string, limit int) ([]Artifact, error)
	DeleteArtifact(ctx context.Context, userID, artifactID string) error

	ConsumeCredits(ctx context.Context, userID string, amount int) (int, error)
	RefundCredits(ctx context.Context, userID string, amount int) (int, error)
	// GrantCredits adds purchased credits once per paymentRef. A repeated
	// paymentRef returns ErrDuplicateOperation.
	GrantCredits(ctx context.Context, userID string, amount int, paymentRef string) (int, error)
}

// BatchStore is the batch registry: a key-value view of in-flight and
// recently finished batches with retention-based expiry.
type BatchStore interface {
	Get(ctx context.Context, batchID string) (*Batch, error)
	Put(ctx context.Context, batch *Batch) error
	Delete(ctx context.Context, batchID string) error
	// ActiveIDs lists batches that have not reached a terminal status.
	ActiveIDs(ctx context.Context) ([]string, error)
	// Sweep drops entries whose retention elapsed before now.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// SettledLog is the append-only record of settled artifact identities.
type SettledLog interface {
	// Unsettled returns the subset of artifactIDs not yet recorded for batchID.
	Unsettled(ctx context.Context, batchID string, artifactIDs []string) ([]string, error)
	Record(ctx context.Context, batchID string, artifactIDs []string) error
}

// BatchLocker grants short exclusive leases so one poller at a time advances
// a batch, even with several processes sharing the registry.
type BatchLocker interface {
	// Lock reports ok=false when another holder owns batchID. unlock releases
	// the lease early; otherwise it lapses after ttl.
	Lock(ctx context.Context, batchID string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// OwnerIndex remembers which user started an external job, such as a render,
// so later reads can be checked against the caller.
type OwnerIndex interface {
	SetOwner(ctx context.Context, id, userID string, ttl time.Duration) error
	// Owner returns ErrNotFound for unknown or expired ids.
	Owner(ctx context.Context, id string) (string, error)
}
