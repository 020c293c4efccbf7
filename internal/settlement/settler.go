// Package settlement turns newly completed artifacts into usage and library
// entries exactly once.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"scenestudio/internal/domain"
	"scenestudio/internal/metrics"
)

// DefaultTimeout bounds one settlement write.
const DefaultTimeout = 10 * time.Second

// Committer is the durable usage write settlement depends on.
type Committer interface {
	CommitUsage(ctx context.Context, userID string, completed int, artifacts []domain.Artifact) (*domain.User, error)
}

// Settler commits completed artifacts against a batch's owner.
type Settler struct {
	ledger  Committer
	log     domain.SettledLog
	metrics *metrics.Pipeline
	timeout time.Duration
	logger  zerolog.Logger
}

// NewSettler wires a Settler. timeout <= 0 uses DefaultTimeout.
func NewSettler(ledger Committer, log domain.SettledLog, m *metrics.Pipeline, timeout time.Duration, logger zerolog.Logger) *Settler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Settler{ledger: ledger, log: log, metrics: m, timeout: timeout, logger: logger}
}

// Settle commits every artifact not yet settled for b in a single ledger
// write and marks them settled on b. It returns how many artifacts were
// committed. On error b is left unchanged and the caller retries later.
//
// The write runs detached from ctx cancellation so shutdown does not abort a
// commit halfway through.
func (s *Settler) Settle(ctx context.Context, b *domain.Batch, artifacts []domain.Artifact, partial bool) (int, error) {
	fresh := s.filter(b, artifacts)
	if len(fresh) == 0 {
		return 0, nil
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	ids := make([]string, len(fresh))
	for i, a := range fresh {
		ids[i] = a.ID
	}
	open, err := s.log.Unsettled(wctx, b.ID, ids)
	if err != nil {
		s.metrics.SettlementFailed(err)
		return 0, fmt.Errorf("%w: read settled log: %v", domain.ErrSettlementFailed, err)
	}
	openSet := make(map[string]struct{}, len(open))
	for _, id := range open {
		openSet[id] = struct{}{}
	}

	// Ids already in the log were committed by an earlier attempt whose batch
	// snapshot was lost. Mark them without charging again.
	var pending, recorded []string
	survivors := make([]domain.Artifact, 0, len(open))
	for _, a := range fresh {
		if _, ok := openSet[a.ID]; ok {
			survivors = append(survivors, a)
			pending = append(pending, a.ID)
			continue
		}
		recorded = append(recorded, a.ID)
	}
	for _, id := range recorded {
		b.MarkSettled(id)
	}
	if len(survivors) == 0 {
		s.markQuota(b, partial)
		return 0, nil
	}

	user, err := s.ledger.CommitUsage(wctx, b.UserID, len(survivors), survivors)
	if err != nil {
		s.metrics.SettlementFailed(err)
		s.logger.Error().Err(err).
			Str("batch_id", b.ID).
			Str("user_id", b.UserID).
			Int("artifacts", len(survivors)).
			Msg("settlement: commit failed, will retry")
		return 0, fmt.Errorf("%w: %w", domain.ErrSettlementFailed, err)
	}

	if err := s.log.Record(wctx, b.ID, pending); err != nil {
		s.logger.Error().Err(err).
			Str("batch_id", b.ID).
			Strs("artifact_ids", pending).
			Msg("settlement: settled log write failed")
	}
	for _, id := range pending {
		b.MarkSettled(id)
	}
	s.markQuota(b, partial)
	s.metrics.Settled(len(survivors))

	s.logger.Info().
		Str("batch_id", b.ID).
		Str("user_id", b.UserID).
		Int("settled", len(survivors)).
		Int("operations_used", user.Usage.OperationsUsed).
		Bool("partial", partial).
		Msg("settlement: committed")
	return len(survivors), nil
}

func (s *Settler) filter(b *domain.Batch, artifacts []domain.Artifact) []domain.Artifact {
	seen := make(map[string]struct{}, len(artifacts))
	out := make([]domain.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		if a.ID == "" || b.IsSettled(a.ID) {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

func (s *Settler) markQuota(b *domain.Batch, partial bool) {
	if partial {
		b.QuotaStatus = domain.QuotaPartialDeducted
		return
	}
	b.QuotaStatus = domain.QuotaDeducted
}
