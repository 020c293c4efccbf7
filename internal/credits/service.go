// Package credits charges image generation against a user's credit balance.
package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"scenestudio/internal/domain"
	"scenestudio/internal/imagegen"
	"scenestudio/internal/metrics"
	"scenestudio/internal/storage"
)

// MaxQuantity caps images per request.
const MaxQuantity = 4

// Result is the outcome of one image job.
type Result struct {
	JobID       string   `json:"job_id"`
	Images      []string `json:"images"`
	Charged     int      `json:"charged"`
	Refunded    int      `json:"refunded"`
	CreditsLeft int      `json:"credits_left"`
}

// Service debits credits up front and refunds images the editor failed to
// produce.
type Service struct {
	users   domain.UserStore
	editor  imagegen.Editor
	store   storage.ArtifactStore
	metrics *metrics.Pipeline
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(users domain.UserStore, editor imagegen.Editor, store storage.ArtifactStore, m *metrics.Pipeline, logger zerolog.Logger) *Service {
	return &Service{users: users, editor: editor, store: store, metrics: m, logger: logger, now: time.Now}
}

// Generate edits the request's source photo Quantity times.
func (s *Service) Generate(ctx context.Context, userID string, req imagegen.Request) (*Result, error) {
	source := strings.TrimSpace(req.Prompt.SourceURL)
	if source == "" {
		return nil, fmt.Errorf("%w: prompt.source_url is required", domain.ErrInvalidRequest)
	}
	qty := req.Quantity
	if qty <= 0 {
		qty = 1
	}
	if qty > MaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be at most %d", domain.ErrInvalidRequest, MaxQuantity)
	}

	left, err := s.users.ConsumeCredits(ctx, userID, qty)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			s.metrics.CreditCharge("insufficient")
		}
		return nil, err
	}
	s.metrics.CreditCharge("charged")

	res := &Result{JobID: uuid.NewString(), Charged: qty, CreditsLeft: left}
	log := s.logger.With().Str("job_id", res.JobID).Str("user_id", userID).Logger()
	instruction := imagegen.BuildInstruction(req)

	var lastErr error
	for i := 0; i < qty; i++ {
		url, err := s.editOne(ctx, res.JobID, i, req, instruction)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("index", i).Msg("credits: image failed")
			continue
		}
		res.Images = append(res.Images, url)
	}

	if failed := qty - len(res.Images); failed > 0 {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		left, err := s.users.RefundCredits(rctx, userID, failed)
		if err != nil {
			log.Error().Err(err).Int("amount", failed).Msg("credits: refund failed")
		} else {
			res.Refunded = failed
			res.CreditsLeft = left
			s.metrics.CreditCharge("refunded")
		}
	}
	if len(res.Images) == 0 {
		return res, fmt.Errorf("%w: %v", domain.ErrProviderFailure, lastErr)
	}
	log.Info().Int("images", len(res.Images)).Int("credits_left", res.CreditsLeft).Msg("credits: images generated")
	return res, nil
}

func (s *Service) editOne(ctx context.Context, jobID string, index int, req imagegen.Request, instruction string) (string, error) {
	var seed *int
	if req.Prompt.Seed != nil {
		v := *req.Prompt.Seed + index
		seed = &v
	}
	url, err := s.editor.EditOnce(ctx, imagegen.SourceImage{URL: req.Prompt.SourceURL}, instruction, req.Prompt.Watermark, req.Prompt.Negative, seed)
	if err != nil {
		return "", err
	}
	if s.store == nil {
		return url, nil
	}
	key := storage.ImageKey(jobID, index)
	stored, err := s.store.Persist(ctx, key, storage.Source{URL: url, MIME: "image/png"})
	if err != nil {
		return "", fmt.Errorf("persist image: %w", err)
	}
	return stored.URL, nil
}
