package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"scenestudio/internal/domain"
	"scenestudio/internal/infra"
	"scenestudio/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserStore backed by PostgreSQL.
type UserRepositoryPG struct {
	sql infra.TxExecutor
}

var _ domain.UserStore = (*UserRepositoryPG)(nil)

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(sql infra.TxExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// EnsureSchema creates the tables the repository needs if they don't exist.
func (r *UserRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QEnsureSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *UserRepositoryPG) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByID, userID))
}

func (r *UserRepositoryPG) EnsureUser(ctx context.Context, user *domain.User) (*domain.User, error) {
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
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QEnsureUser, user.ID, user.Email, string(tier), string(status), user.Credits))
}

func (r *UserRepositoryPG) SetPlan(ctx context.Context, userID string, tier domain.Tier, status domain.BillingStatus, resetUsage bool) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QUpdateUserPlan, userID, string(tier), string(status), resetUsage))
}

// CommitUsage appends artifacts and charges completed, less any artifact
// already in the library, in one transaction.
func (r *UserRepositoryPG) CommitUsage(ctx context.Context, userID string, completed int, artifacts []domain.Artifact) (*domain.User, error) {
	var out *domain.User
	err := r.sql.WithTx(ctx, func(tx infra.SQLExecutor) error {
		var locked string
		if err := tx.QueryRow(ctx, sqlinline.QLockUser, userID).Scan(&locked); err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrNotFound
			}
			return err
		}
		charge := completed
		for _, a := range artifacts {
			meta, err := json.Marshal(a.Provenance)
			if err != nil {
				return fmt.Errorf("encode provenance: %w", err)
			}
			tag, err := tx.Exec(ctx, sqlinline.QInsertArtifact,
				a.ID, userID, a.BatchID, a.OperationIndex, a.URL,
				a.SizeBytes, a.DurationSeconds, a.Prompt, meta, a.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert artifact %s: %w", a.ID, err)
			}
			if tag.RowsAffected() == 0 {
				charge--
			}
		}
		u, err := scanUser(tx.QueryRow(ctx, sqlinline.QIncrementUsage, userID, max(charge, 0)))
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *UserRepositoryPG) ListLibrary(ctx context.Context, userID string, limit int) ([]domain.Artifact, error) {
	if _, err := r.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListArtifacts, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		var meta []byte
		if err := rows.Scan(&a.ID, &a.BatchID, &a.OperationIndex, &a.URL, &a.SizeBytes, &a.DurationSeconds, &a.Prompt, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Provenance); err != nil {
				return nil, fmt.Errorf("decode provenance: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *UserRepositoryPG) DeleteArtifact(ctx context.Context, userID, artifactID string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteArtifact, userID, artifactID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepositoryPG) ConsumeCredits(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidRequest
	}
	var left int
	err := r.sql.QueryRow(ctx, sqlinline.QConsumeCredits, userID, amount).Scan(&left)
	if err == nil {
		return left, nil
	}
	if !infra.IsNoRows(err) {
		return 0, err
	}
	// Either the user is missing or the balance is short.
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectCredits, userID).Scan(&left); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return left, domain.ErrInsufficientCredits
}

func (r *UserRepositoryPG) RefundCredits(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidRequest
	}
	var left int
	if err := r.sql.QueryRow(ctx, sqlinline.QAddCredits, userID, amount).Scan(&left); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return left, nil
}

// GrantCredits records paymentRef and adds amount in one transaction.
func (r *UserRepositoryPG) GrantCredits(ctx context.Context, userID string, amount int, paymentRef string) (int, error) {
	if amount <= 0 || paymentRef == "" {
		return 0, domain.ErrInvalidRequest
	}
	var left int
	err := r.sql.WithTx(ctx, func(tx infra.SQLExecutor) error {
		if err := tx.QueryRow(ctx, sqlinline.QSelectCredits, userID).Scan(&left); err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrNotFound
			}
			return err
		}
		var inserted bool
		if err := tx.QueryRow(ctx, sqlinline.QInsertCreditGrant, paymentRef, userID, amount).Scan(&inserted); err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrDuplicateOperation
			}
			return err
		}
		return tx.QueryRow(ctx, sqlinline.QAddCredits, userID, amount).Scan(&left)
	})
	if err != nil {
		return left, err
	}
	return left, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var tier, status string
	if err := row.Scan(&u.ID, &u.Email, &tier, &status, &u.Usage.OperationsUsed, &u.Usage.PeriodStart, &u.Credits, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	u.BillingStatus = domain.BillingStatus(status)
	u.Tier = domain.ParseTier(tier, u.BillingStatus)
	return &u, nil
}
