package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenestudio/internal/adapter/memstore"
	"scenestudio/internal/domain"
)

func newLedger(t *testing.T, users ...domain.User) (*Ledger, *memstore.UserStore) {
	t.Helper()
	store := memstore.NewUserStore()
	for _, u := range users {
		store.Put(u)
	}
	return NewLedger(store, domain.DefaultTierCatalog(), zerolog.Nop()), store
}

func TestCheckAdmissionBoundaries(t *testing.T) {
	catalog := domain.DefaultTierCatalog()
	for _, tier := range domain.Tiers {
		allowance := catalog.Allowance(tier)
		if allowance == 0 {
			continue
		}
		for used := 0; used <= allowance; used++ {
			ledger, _ := newLedger(t, domain.User{ID: "u", Tier: tier, Usage: domain.Usage{OperationsUsed: used}})
			remaining := allowance - used
			ctx := context.Background()

			if remaining > 0 {
				adm, err := ledger.CheckAdmission(ctx, "u", remaining)
				require.NoError(t, err, "tier=%s used=%d", tier, used)
				assert.True(t, adm.Allowed)
				assert.Equal(t, remaining, adm.Remaining)
			}

			adm, err := ledger.CheckAdmission(ctx, "u", remaining+1)
			var qe *domain.QuotaExceededError
			require.True(t, errors.As(err, &qe), "tier=%s used=%d", tier, used)
			assert.False(t, adm.Allowed)
			assert.Equal(t, remaining, qe.Remaining)
		}
	}
}

func TestCheckAdmissionSubscriptionRequired(t *testing.T) {
	ledger, _ := newLedger(t, domain.User{ID: "u", Tier: domain.TierNone})
	_, err := ledger.CheckAdmission(context.Background(), "u", 1)
	assert.ErrorIs(t, err, domain.ErrSubscriptionRequired)
}

func TestCheckAdmissionRejectsNonPositive(t *testing.T) {
	ledger, _ := newLedger(t, domain.User{ID: "u", Tier: domain.TierPro})
	_, err := ledger.CheckAdmission(context.Background(), "u", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestCheckAdmissionReadsCurrentUsage(t *testing.T) {
	ledger, store := newLedger(t, domain.User{ID: "u", Tier: domain.TierPro, Usage: domain.Usage{OperationsUsed: 3}})
	ctx := context.Background()

	adm, err := ledger.CheckAdmission(ctx, "u", 2)
	require.NoError(t, err)
	require.True(t, adm.Allowed)

	_, err = store.CommitUsage(ctx, "u", 2, nil)
	require.NoError(t, err)

	_, err = ledger.CheckAdmission(ctx, "u", 1)
	var qe *domain.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 0, qe.Remaining)
}

func TestCommitUsageAppendsArtifacts(t *testing.T) {
	ledger, _ := newLedger(t, domain.User{ID: "u", Tier: domain.TierPro})
	user, err := ledger.CommitUsage(context.Background(), "u", 2, []domain.Artifact{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, user.Usage.OperationsUsed)
	assert.Len(t, user.Library, 2)
}

func TestCommitUsageUnknownUser(t *testing.T) {
	ledger, _ := newLedger(t)
	_, err := ledger.CommitUsage(context.Background(), "ghost", 1, []domain.Artifact{{ID: "a"}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
