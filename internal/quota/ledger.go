// Package quota decides how many generation operations a user may start and
// commits usage once operations complete.
package quota

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"scenestudio/internal/domain"
)

// Admission is the outcome of an admission check.
type Admission struct {
	Allowed   bool
	Allowance int
	Remaining int
}

// Ledger is the quota accounting front for the user store.
type Ledger struct {
	users  domain.UserStore
	tiers  domain.TierCatalog
	logger zerolog.Logger
}

// NewLedger wires a Ledger. A nil catalog uses the built-in allowances.
func NewLedger(users domain.UserStore, tiers domain.TierCatalog, logger zerolog.Logger) *Ledger {
	if tiers == nil {
		tiers = domain.DefaultTierCatalog()
	}
	return &Ledger{users: users, tiers: tiers, logger: logger}
}

// Tiers returns the catalog the ledger enforces.
func (l *Ledger) Tiers() domain.TierCatalog {
	return l.tiers
}

// CheckAdmission reports whether userID may start requested more operations.
// Usage is always re-read from the store because another batch may have
// settled since the caller last looked.
func (l *Ledger) CheckAdmission(ctx context.Context, userID string, requested int) (Admission, error) {
	if requested <= 0 {
		return Admission{}, fmt.Errorf("%w: requested count must be positive", domain.ErrInvalidRequest)
	}
	user, err := l.users.GetUser(ctx, userID)
	if err != nil {
		return Admission{}, fmt.Errorf("load user: %w", err)
	}
	allowance := user.Allowance(l.tiers)
	if allowance == 0 {
		return Admission{}, domain.ErrSubscriptionRequired
	}
	remaining := user.Remaining(l.tiers)
	adm := Admission{
		Allowed:   requested <= remaining,
		Allowance: allowance,
		Remaining: remaining,
	}
	if !adm.Allowed {
		l.logger.Info().
			Str("user_id", userID).
			Int("requested", requested).
			Int("remaining", remaining).
			Msg("quota: admission denied")
		return adm, &domain.QuotaExceededError{Requested: requested, Remaining: remaining}
	}
	return adm, nil
}

// CommitUsage increments usage by completed and appends artifacts in a single
// durable write. Artifacts already in the library are not charged again.
func (l *Ledger) CommitUsage(ctx context.Context, userID string, completed int, artifacts []domain.Artifact) (*domain.User, error) {
	if completed < 0 {
		return nil, fmt.Errorf("%w: negative usage", domain.ErrInvalidRequest)
	}
	if completed == 0 && len(artifacts) == 0 {
		return l.users.GetUser(ctx, userID)
	}
	user, err := l.users.CommitUsage(ctx, userID, completed, artifacts)
	if err != nil {
		return nil, fmt.Errorf("commit usage: %w", err)
	}
	l.logger.Info().
		Str("user_id", userID).
		Int("completed", completed).
		Int("operations_used", user.Usage.OperationsUsed).
		Msg("quota: usage committed")
	return user, nil
}
