// Package mongostore implements domain.UserStore on MongoDB. Each user is one
// document holding usage counters, credits and the artifact library, so every
// mutation is a single-document atomic update.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"scenestudio/internal/domain"
)

const (
	usersCollection    = "users"
	paymentsCollection = "payments"
)

type usageDoc struct {
	Count       int       `bson:"count"`
	Allowance   int       `bson:"allowance"`
	PeriodStart time.Time `bson:"period_start"`
}

type userDoc struct {
	ID            string            `bson:"_id"`
	Email         string            `bson:"email"`
	Tier          string            `bson:"tier"`
	BillingStatus string            `bson:"billing_status"`
	Usage         usageDoc          `bson:"usage"`
	Credits       int               `bson:"credits"`
	PaymentRefs   []string          `bson:"payment_refs,omitempty"`
	Library       []domain.Artifact `bson:"library"`
	CreatedAt     time.Time         `bson:"created_at"`
	UpdatedAt     time.Time         `bson:"updated_at"`
}

func (d *userDoc) toDomain() *domain.User {
	status := domain.BillingStatus(d.BillingStatus)
	return &domain.User{
		ID:            d.ID,
		Email:         d.Email,
		Tier:          domain.ParseTier(d.Tier, status),
		BillingStatus: status,
		Usage:         domain.Usage{OperationsUsed: d.Usage.Count, PeriodStart: d.Usage.PeriodStart},
		Credits:       d.Credits,
		Library:       d.Library,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type paymentDoc struct {
	Ref       string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Amount    int       `bson:"amount"`
	CreatedAt time.Time `bson:"created_at"`
}

// UserStore persists users in the "users" collection.
type UserStore struct {
	users    *mongo.Collection
	payments *mongo.Collection
	tiers    domain.TierCatalog
	now      func() time.Time
}

var _ domain.UserStore = (*UserStore)(nil)

func NewUserStore(db *mongo.Database, tiers domain.TierCatalog) *UserStore {
	return &UserStore{
		users:    db.Collection(usersCollection),
		payments: db.Collection(paymentsCollection),
		tiers:    tiers,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the secondary indexes the store queries by.
func (s *UserStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "library.id", Value: 1}}},
		{Keys: bson.D{{Key: "payment_refs", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongostore: ensure indexes: %w", err)
	}
	return nil
}

func (s *UserStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	return doc.toDomain(), nil
}

func (s *UserStore) EnsureUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil || user.ID == "" {
		return nil, domain.ErrInvalidRequest
	}
	tier := user.Tier
	if tier == "" {
		tier = domain.TierNone
	}
	status := user.BillingStatus
	if status == "" {
		status = domain.BillingStatusInactive
	}
	now := s.now()
	update := bson.M{"$setOnInsert": bson.M{
		"email":          user.Email,
		"tier":           string(tier),
		"billing_status": string(status),
		"usage":          usageDoc{Allowance: s.tiers.Allowance(tier), PeriodStart: now},
		"credits":        user.Credits,
		"library":        []domain.Artifact{},
		"created_at":     now,
		"updated_at":     now,
	}}
	return s.findAndUpdate(ctx, bson.M{"_id": user.ID}, update, true)
}

func (s *UserStore) SetPlan(ctx context.Context, userID string, tier domain.Tier, status domain.BillingStatus, resetUsage bool) (*domain.User, error) {
	now := s.now()
	set := bson.M{
		"tier":            string(tier),
		"billing_status":  string(status),
		"usage.allowance": s.tiers.Allowance(tier),
		"updated_at":      now,
	}
	if resetUsage {
		set["usage.count"] = 0
		set["usage.period_start"] = now
	}
	return s.findAndUpdate(ctx, bson.M{"_id": userID}, bson.M{"$set": set}, false)
}

// commitAttempts bounds retries when a concurrent commit adds one of the
// same artifacts between the read and the guarded update.
const commitAttempts = 3

// CommitUsage increments usage.count and pushes artifacts in one update.
// Artifacts already in the library are dropped and not charged; the update
// filter requires the pushed ids to still be absent.
func (s *UserStore) CommitUsage(ctx context.Context, userID string, completed int, artifacts []domain.Artifact) (*domain.User, error) {
	for attempt := 0; attempt < commitAttempts; attempt++ {
		var doc userDoc
		opts := options.FindOne().SetProjection(bson.M{"library.id": 1})
		if err := s.users.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&doc); err != nil {
			return nil, mapErr(err)
		}
		fresh, charge := domain.NewArtifacts(doc.Library, artifacts, completed)
		if len(fresh) == 0 && charge == 0 {
			return s.GetUser(ctx, userID)
		}

		filter := bson.M{"_id": userID}
		if len(fresh) > 0 {
			ids := make([]string, len(fresh))
			for i, a := range fresh {
				ids[i] = a.ID
			}
			filter["library.id"] = bson.M{"$nin": ids}
		}
		update := bson.M{
			"$inc":  bson.M{"usage.count": charge},
			"$push": bson.M{"library": bson.M{"$each": fresh}},
			"$set":  bson.M{"updated_at": s.now()},
		}
		u, err := s.findAndUpdate(ctx, filter, update, false)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		return u, err
	}
	return nil, fmt.Errorf("mongostore: commit usage for %s: library changed concurrently", userID)
}

func (s *UserStore) ListLibrary(ctx context.Context, userID string, limit int) ([]domain.Artifact, error) {
	var doc userDoc
	opts := options.FindOne().SetProjection(bson.M{"library": 1})
	if err := s.users.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	out := make([]domain.Artifact, 0, len(doc.Library))
	for i := len(doc.Library) - 1; i >= 0; i-- {
		out = append(out, doc.Library[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *UserStore) DeleteArtifact(ctx context.Context, userID, artifactID string) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID, "library.id": artifactID},
		bson.M{"$pull": bson.M{"library": bson.M{"id": artifactID}}, "$set": bson.M{"updated_at": s.now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *UserStore) ConsumeCredits(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidRequest
	}
	u, err := s.findAndUpdate(ctx,
		bson.M{"_id": userID, "credits": bson.M{"$gte": amount}},
		bson.M{"$inc": bson.M{"credits": -amount}, "$set": bson.M{"updated_at": s.now()}},
		false,
	)
	if err == nil {
		return u.Credits, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}
	current, err := s.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return current.Credits, domain.ErrInsufficientCredits
}

func (s *UserStore) RefundCredits(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidRequest
	}
	u, err := s.findAndUpdate(ctx, bson.M{"_id": userID},
		bson.M{"$inc": bson.M{"credits": amount}, "$set": bson.M{"updated_at": s.now()}}, false)
	if err != nil {
		return 0, err
	}
	return u.Credits, nil
}

// GrantCredits applies a payment at most once. The payment reference is
// pushed onto the user document in the same update that adds the credits.
func (s *UserStore) GrantCredits(ctx context.Context, userID string, amount int, paymentRef string) (int, error) {
	if amount <= 0 || paymentRef == "" {
		return 0, domain.ErrInvalidRequest
	}
	now := s.now()
	u, err := s.findAndUpdate(ctx,
		bson.M{"_id": userID, "payment_refs": bson.M{"$ne": paymentRef}},
		bson.M{
			"$inc":  bson.M{"credits": amount},
			"$push": bson.M{"payment_refs": paymentRef},
			"$set":  bson.M{"updated_at": now},
		},
		false,
	)
	if errors.Is(err, domain.ErrNotFound) {
		current, gerr := s.GetUser(ctx, userID)
		if gerr != nil {
			return 0, gerr
		}
		return current.Credits, domain.ErrDuplicateOperation
	}
	if err != nil {
		return 0, err
	}

	_, err = s.payments.InsertOne(ctx, paymentDoc{Ref: paymentRef, UserID: userID, Amount: amount, CreatedAt: now})
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return u.Credits, fmt.Errorf("mongostore: record payment: %w", err)
	}
	return u.Credits, nil
}

func (s *UserStore) findAndUpdate(ctx context.Context, filter, update bson.M, upsert bool) (*domain.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetUpsert(upsert)
	var doc userDoc
	if err := s.users.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	return doc.toDomain(), nil
}

func mapErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return err
}
