// Package pipeline runs generation batches from submission to settlement.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"scenestudio/internal/domain"
	"scenestudio/internal/metrics"
	"scenestudio/internal/providers/video"
)

const defaultAspectRatio = "16:9"

// SubmitterConfig tunes request normalization and cost estimates.
type SubmitterConfig struct {
	Bounds        domain.DurationBounds
	CostPerSecond float64
	AspectRatios  []string
}

// Submitter forwards requests to the generator and registers the batch. It
// never touches quota.
type Submitter struct {
	generator video.Generator
	batches   domain.BatchStore
	cfg       SubmitterConfig
	metrics   *metrics.Pipeline
	now       func() time.Time
	logger    zerolog.Logger
}

func NewSubmitter(generator video.Generator, batches domain.BatchStore, cfg SubmitterConfig, m *metrics.Pipeline, logger zerolog.Logger) *Submitter {
	if cfg.Bounds.Min <= 0 {
		cfg.Bounds.Min = 4
	}
	if cfg.Bounds.Max < cfg.Bounds.Min {
		cfg.Bounds.Max = cfg.Bounds.Min
	}
	if len(cfg.AspectRatios) == 0 {
		cfg.AspectRatios = []string{defaultAspectRatio, "9:16"}
	}
	return &Submitter{
		generator: generator,
		batches:   batches,
		cfg:       cfg,
		metrics:   m,
		now:       time.Now,
		logger:    logger,
	}
}

// Normalize clamps duration and fixes the aspect ratio of req.
func (s *Submitter) Normalize(req domain.GenerationRequest) domain.GenerationRequest {
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.DurationSeconds = s.cfg.Bounds.Clamp(req.DurationSeconds)
	ratio := strings.TrimSpace(req.AspectRatio)
	req.AspectRatio = s.cfg.AspectRatios[0]
	for _, allowed := range s.cfg.AspectRatios {
		if ratio == allowed {
			req.AspectRatio = ratio
			break
		}
	}
	return req
}

// EstimateCost returns the collaborator cost estimate for one request.
func (s *Submitter) EstimateCost(req domain.GenerationRequest) float64 {
	return float64(req.DurationSeconds) * s.cfg.CostPerSecond
}

// Submit starts one collaborator operation per request and registers the
// resulting batch. A fatal rejection or a batch where nothing could be
// started returns ErrGenerationFailed and registers nothing.
func (s *Submitter) Submit(ctx context.Context, userID string, reqs []domain.GenerationRequest) (*domain.Batch, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: at least one request is required", domain.ErrInvalidRequest)
	}
	now := s.now()
	b := &domain.Batch{
		ID:          uuid.NewString(),
		UserID:      userID,
		Operations:  make([]domain.Operation, 0, len(reqs)),
		Status:      domain.BatchStatusGenerating,
		QuotaStatus: domain.QuotaPending,
		CreatedAt:   now,
	}
	log := s.logger.With().Str("batch_id", b.ID).Str("user_id", userID).Logger()

	started := 0
	for i, raw := range reqs {
		req := s.Normalize(raw)
		op := domain.Operation{
			Index:         i,
			Status:        domain.OperationPending,
			Request:       req,
			EstimatedCost: s.EstimateCost(req),
			UpdatedAt:     now,
		}
		handle, err := s.generator.Submit(ctx, req)
		switch {
		case err != nil && (video.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
			s.metrics.Submitted("failed")
			if started > 0 {
				log.Warn().Int("orphaned", started).Msg("submit: abandoning started operations")
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
		case err != nil:
			log.Warn().Err(err).Int("index", i).Msg("submit: request rejected")
			op.Status = domain.OperationFailed
			op.Error = err.Error()
		case strings.TrimSpace(handle) == "":
			log.Warn().Int("index", i).Msg("submit: collaborator returned no handle")
			op.Status = domain.OperationFailed
			op.Error = "missing operation handle"
		default:
			op.Handle = strings.TrimSpace(handle)
			started++
		}
		b.Operations = append(b.Operations, op)
		b.EstimatedCost += op.EstimatedCost
	}
	if started == 0 {
		s.metrics.Submitted("failed")
		return nil, fmt.Errorf("%w: every request was rejected", domain.ErrGenerationFailed)
	}

	if err := s.batches.Put(ctx, b); err != nil {
		s.metrics.Submitted("failed")
		return nil, fmt.Errorf("register batch: %w", err)
	}
	s.metrics.Submitted("accepted")
	log.Info().
		Int("operations", len(b.Operations)).
		Int("started", started).
		Float64("estimated_cost", b.EstimatedCost).
		Msg("submit: batch registered")
	return b, nil
}
