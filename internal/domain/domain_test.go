package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		billing BillingStatus
		want    Tier
	}{
		{name: "known tier", raw: "pro", billing: BillingStatusActive, want: TierPro},
		{name: "case and spaces", raw: "  Business ", billing: BillingStatusInactive, want: TierBusiness},
		{name: "empty inactive", raw: "", billing: BillingStatusInactive, want: TierNone},
		{name: "unknown active falls back to basic", raw: "premium-annual", billing: BillingStatusActive, want: TierBasic},
		{name: "unknown inactive", raw: "premium-annual", billing: BillingStatusPastDue, want: TierNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseTier(tc.raw, tc.billing))
		})
	}
}

func TestUserRemaining(t *testing.T) {
	catalog := DefaultTierCatalog()
	u := User{Tier: TierPro, Usage: Usage{OperationsUsed: 3}}
	assert.Equal(t, 5, u.Allowance(catalog))
	assert.Equal(t, 2, u.Remaining(catalog))

	u.Usage.OperationsUsed = 9
	assert.Equal(t, 0, u.Remaining(catalog))

	assert.Equal(t, 0, User{Tier: "gold"}.Allowance(catalog))
}

func TestDurationBoundsClamp(t *testing.T) {
	b := DurationBounds{Min: 4, Max: 8}
	assert.Equal(t, 4, b.Clamp(0))
	assert.Equal(t, 6, b.Clamp(6))
	assert.Equal(t, 8, b.Clamp(30))
}

func TestArtifactIDDeterministic(t *testing.T) {
	a := ArtifactID("batch-1", 0)
	require.Equal(t, a, ArtifactID("batch-1", 0))
	assert.NotEqual(t, a, ArtifactID("batch-1", 1))
	assert.NotEqual(t, a, ArtifactID("batch-2", 0))
}

func TestBatchSettlementBookkeeping(t *testing.T) {
	a0 := Artifact{ID: ArtifactID("b", 0)}
	a1 := Artifact{ID: ArtifactID("b", 1)}
	b := &Batch{
		ID: "b",
		Operations: []Operation{
			{Index: 0, Status: OperationCompleted, Artifact: &a0},
			{Index: 1, Status: OperationCompleted, Artifact: &a1},
			{Index: 2, Status: OperationPending},
			{Index: 3, Status: OperationExpired},
		},
	}
	require.Len(t, b.Unsettled(), 2)
	assert.Equal(t, []int{2}, b.PendingIndexes())
	assert.False(t, b.AllTerminal())

	b.MarkSettled(a0.ID)
	b.MarkSettled(a0.ID)
	assert.Equal(t, []string{a0.ID}, b.SettledIDs)
	assert.Equal(t, []Artifact{a1}, b.Unsettled())

	clone := b.Clone()
	clone.Operations[0].Artifact.URL = "changed"
	clone.MarkSettled(a1.ID)
	assert.Empty(t, b.Operations[0].Artifact.URL)
	assert.Len(t, b.SettledIDs, 1)
}

func TestQuotaExceededErrorUnwraps(t *testing.T) {
	var err error = &QuotaExceededError{Requested: 3, Remaining: 1}
	assert.True(t, errors.Is(err, ErrQuotaExceeded))
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 1, qe.Remaining)
}

func TestNewArtifactsSkipsKnownIDs(t *testing.T) {
	library := []Artifact{{ID: "a"}}
	fresh, charge := NewArtifacts(library, []Artifact{{ID: "a"}, {ID: "b"}, {ID: "b"}}, 3)
	require.Len(t, fresh, 1)
	assert.Equal(t, "b", fresh[0].ID)
	assert.Equal(t, 1, charge)

	fresh, charge = NewArtifacts(nil, nil, 2)
	assert.Empty(t, fresh)
	assert.Equal(t, 2, charge, "usage without artifacts is charged as given")

	_, charge = NewArtifacts(library, []Artifact{{ID: "a"}}, 0)
	assert.Zero(t, charge)
}
