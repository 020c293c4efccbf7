//go:build integration

package mongostore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"scenestudio/internal/adapter/mongostore"
	"scenestudio/internal/domain"
)

func newTestStore(t *testing.T) *mongostore.UserStore {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("mongo not available: %v", err)
	}
	db := client.Database("scenestudio_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	s := mongostore.NewUserStore(db, domain.DefaultTierCatalog())
	require.NoError(t, s.EnsureIndexes(ctx))
	return s
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.EnsureUser(ctx, &domain.User{ID: "u1", Email: "a@example.test", Credits: 3})
	require.NoError(t, err)
	assert.Equal(t, domain.TierNone, u.Tier)
	assert.Equal(t, 3, u.Credits)

	u, err = s.EnsureUser(ctx, &domain.User{ID: "u1", Email: "b@example.test"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.test", u.Email)
	assert.Equal(t, 3, u.Credits)
}

func TestCommitUsageAndLibrary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, &domain.User{ID: "u1"})
	require.NoError(t, err)
	_, err = s.SetPlan(ctx, "u1", domain.TierPro, domain.BillingStatusActive, false)
	require.NoError(t, err)

	arts := []domain.Artifact{
		{ID: domain.ArtifactID("b1", 0), BatchID: "b1", URL: "https://cdn.test/0.mp4", CreatedAt: time.Now().UTC()},
		{ID: domain.ArtifactID("b1", 1), BatchID: "b1", OperationIndex: 1, URL: "https://cdn.test/1.mp4", CreatedAt: time.Now().UTC()},
	}
	u, err := s.CommitUsage(ctx, "u1", 2, arts)
	require.NoError(t, err)
	assert.Equal(t, 2, u.Usage.OperationsUsed)
	assert.Len(t, u.Library, 2)

	lib, err := s.ListLibrary(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, lib, 1)
	assert.Equal(t, arts[1].ID, lib[0].ID)

	require.NoError(t, s.DeleteArtifact(ctx, "u1", arts[0].ID))
	assert.ErrorIs(t, s.DeleteArtifact(ctx, "u1", arts[0].ID), domain.ErrNotFound)

	_, err = s.CommitUsage(ctx, "missing", 1, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCommitUsageReplayIsNotCharged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, &domain.User{ID: "u1"})
	require.NoError(t, err)

	first := domain.Artifact{ID: domain.ArtifactID("b1", 0), BatchID: "b1", CreatedAt: time.Now().UTC()}
	second := domain.Artifact{ID: domain.ArtifactID("b1", 1), BatchID: "b1", OperationIndex: 1, CreatedAt: time.Now().UTC()}

	_, err = s.CommitUsage(ctx, "u1", 1, []domain.Artifact{first})
	require.NoError(t, err)
	u, err := s.CommitUsage(ctx, "u1", 1, []domain.Artifact{first})
	require.NoError(t, err)
	assert.Equal(t, 1, u.Usage.OperationsUsed)
	assert.Len(t, u.Library, 1)

	u, err = s.CommitUsage(ctx, "u1", 2, []domain.Artifact{first, second})
	require.NoError(t, err)
	assert.Equal(t, 2, u.Usage.OperationsUsed)
	assert.Len(t, u.Library, 2)
}

func TestCreditsAreAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, &domain.User{ID: "u1"})
	require.NoError(t, err)

	left, err := s.GrantCredits(ctx, "u1", 4, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, 4, left)

	left, err = s.GrantCredits(ctx, "u1", 4, "pay_1")
	assert.ErrorIs(t, err, domain.ErrDuplicateOperation)
	assert.Equal(t, 4, left)

	left, err = s.ConsumeCredits(ctx, "u1", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	_, err = s.ConsumeCredits(ctx, "u1", 2)
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)

	left, err = s.RefundCredits(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, left)
}
