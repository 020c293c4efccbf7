package settlement

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

func fixture(t *testing.T) (*Settler, *memstore.UserStore, *MemoryLog) {
	t.Helper()
	users := memstore.NewUserStore()
	users.Put(domain.User{ID: "u1", Tier: domain.TierPro})
	log := NewMemoryLog()
	return NewSettler(users, log, nil, 0, zerolog.Nop()), users, log
}

func artifacts(batchID string, idx ...int) []domain.Artifact {
	out := make([]domain.Artifact, len(idx))
	for i, n := range idx {
		out[i] = domain.Artifact{ID: domain.ArtifactID(batchID, n), BatchID: batchID, OperationIndex: n}
	}
	return out
}

func TestSettleIsAtMostOnce(t *testing.T) {
	s, users, log := fixture(t)
	ctx := context.Background()
	b := &domain.Batch{ID: "b1", UserID: "u1", QuotaStatus: domain.QuotaPending}
	arts := artifacts("b1", 0, 1)

	n, err := s.Settle(ctx, b, arts, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, domain.QuotaDeducted, b.QuotaStatus)

	for i := 0; i < 3; i++ {
		n, err = s.Settle(ctx, b, arts, false)
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	u, _ := users.GetUser(ctx, "u1")
	assert.Equal(t, 2, u.Usage.OperationsUsed)
	assert.Len(t, u.Library, 2)
	assert.Equal(t, 2, log.Len("b1"))
	assert.Equal(t, 1, users.Commits())
}

func TestSettleDeduplicatesInput(t *testing.T) {
	s, users, _ := fixture(t)
	ctx := context.Background()
	b := &domain.Batch{ID: "b1", UserID: "u1"}
	arts := append(artifacts("b1", 0), artifacts("b1", 0)...)

	n, err := s.Settle(ctx, b, arts, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	u, _ := users.GetUser(ctx, "u1")
	assert.Equal(t, 1, u.Usage.OperationsUsed)
}

func TestSettleFailureChangesNothing(t *testing.T) {
	s, users, log := fixture(t)
	users.FailCommits = 1
	ctx := context.Background()
	b := &domain.Batch{ID: "b1", UserID: "u1", QuotaStatus: domain.QuotaPending}
	arts := artifacts("b1", 0)

	_, err := s.Settle(ctx, b, arts, false)
	require.True(t, errors.Is(err, domain.ErrSettlementFailed))
	assert.Empty(t, b.SettledIDs)
	assert.Equal(t, domain.QuotaPending, b.QuotaStatus)
	assert.Zero(t, log.Len("b1"))

	n, err := s.Settle(ctx, b, arts, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	u, _ := users.GetUser(ctx, "u1")
	assert.Equal(t, 1, u.Usage.OperationsUsed)
}

func TestSettleHonoursLogAfterSnapshotLoss(t *testing.T) {
	s, users, log := fixture(t)
	ctx := context.Background()
	arts := artifacts("b1", 0, 1)
	require.NoError(t, log.Record(ctx, "b1", []string{arts[0].ID}))

	b := &domain.Batch{ID: "b1", UserID: "u1"}
	n, err := s.Settle(ctx, b, arts, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []string{arts[0].ID, arts[1].ID}, b.SettledIDs)
	assert.Equal(t, domain.QuotaPartialDeducted, b.QuotaStatus)

	u, _ := users.GetUser(ctx, "u1")
	assert.Equal(t, 1, u.Usage.OperationsUsed)
}

type unwritableLog struct {
	*MemoryLog
}

func (unwritableLog) Record(context.Context, string, []string) error {
	return errors.New("settled log unavailable")
}

func TestSettleReplayAfterLogWriteFailureIsNotCharged(t *testing.T) {
	users := memstore.NewUserStore()
	users.Put(domain.User{ID: "u1", Tier: domain.TierPro})
	s := NewSettler(users, unwritableLog{NewMemoryLog()}, nil, 0, zerolog.Nop())
	ctx := context.Background()
	arts := artifacts("b1", 0)

	// Each call sees a fresh snapshot, as after a lost registry write.
	for i := 0; i < 2; i++ {
		_, err := s.Settle(ctx, &domain.Batch{ID: "b1", UserID: "u1"}, arts, false)
		require.NoError(t, err)
	}

	u, _ := users.GetUser(ctx, "u1")
	assert.Equal(t, 1, u.Usage.OperationsUsed)
	assert.Len(t, u.Library, 1)
}

func TestSettleSurvivesCancelledContext(t *testing.T) {
	s, users, _ := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &domain.Batch{ID: "b1", UserID: "u1"}
	n, err := s.Settle(ctx, b, artifacts("b1", 0), false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	u, _ := users.GetUser(context.Background(), "u1")
	assert.Equal(t, 1, u.Usage.OperationsUsed)
}

func TestMemoryLogUnsettled(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()
	require.NoError(t, log.Record(ctx, "b", []string{"a"}))

	open, err := log.Unsettled(ctx, "b", []string{"a", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, open)

	open, err = log.Unsettled(ctx, "other", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, open)
}
