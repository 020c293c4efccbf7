package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"scenestudio/internal/cache"
	"scenestudio/internal/domain"
	"scenestudio/internal/metrics"
	"scenestudio/internal/quota"
)

// DefaultStatusTTL is how long a status read may be served from cache.
const DefaultStatusTTL = 3 * time.Second

// Service is the entry point used by handlers: admission, submission and
// status reads.
type Service struct {
	ledger    *quota.Ledger
	submitter *Submitter
	batches   domain.BatchStore
	status    cache.Cache[string, *domain.Batch]
	statusTTL time.Duration
	metrics   *metrics.Pipeline
	logger    zerolog.Logger
}

func NewService(ledger *quota.Ledger, submitter *Submitter, batches domain.BatchStore, statusTTL time.Duration, m *metrics.Pipeline, logger zerolog.Logger) *Service {
	var status cache.Cache[string, *domain.Batch] = cache.NewTTLCache[string, *domain.Batch]()
	if statusTTL < 0 {
		status = cache.NoopCache[string, *domain.Batch]{}
	}
	if statusTTL == 0 {
		statusTTL = DefaultStatusTTL
	}
	return &Service{
		ledger:    ledger,
		submitter: submitter,
		batches:   batches,
		status:    status,
		statusTTL: statusTTL,
		metrics:   m,
		logger:    logger,
	}
}

// Start admits and submits a batch for userID. Quota is only checked here;
// it is charged later by settlement.
func (s *Service) Start(ctx context.Context, userID string, reqs []domain.GenerationRequest) (*domain.Batch, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: at least one request is required", domain.ErrInvalidRequest)
	}
	if _, err := s.ledger.CheckAdmission(ctx, userID, len(reqs)); err != nil {
		s.metrics.Submitted("rejected")
		return nil, err
	}
	return s.submitter.Submit(ctx, userID, reqs)
}

// Batch returns the snapshot of batchID if userID owns it.
func (s *Service) Batch(ctx context.Context, userID, batchID string) (*domain.Batch, error) {
	b, ok := s.status.Get(batchID)
	if !ok {
		loaded, err := s.batches.Get(ctx, batchID)
		if err != nil {
			return nil, err
		}
		s.status.Set(batchID, loaded, s.statusTTL)
		b = loaded
	}
	if b.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return b.Clone(), nil
}
