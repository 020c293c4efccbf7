package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"scenestudio/internal/domain"
	"scenestudio/internal/middleware"
	"scenestudio/internal/prompt"
)

type batchRequestItem struct {
	Prompt          string        `json:"prompt"`
	Scene           *prompt.Scene `json:"scene,omitempty"`
	DurationSeconds int           `json:"duration_seconds"`
	AspectRatio     string        `json:"aspect_ratio"`
	Audio           bool          `json:"audio"`
}

type startBatchRequest struct {
	Requests []batchRequestItem `json:"requests"`
	Locale   string             `json:"locale"`
}

type startBatchResponse struct {
	BatchID          string             `json:"batch_id"`
	OperationHandles []string           `json:"operation_handles"`
	EstimatedCost    float64            `json:"estimated_cost"`
	Status           domain.BatchStatus `json:"status"`
	QuotaStatus      domain.QuotaStatus `json:"quota_status"`
}

type operationView struct {
	Index         int                    `json:"index"`
	Handle        string                 `json:"handle,omitempty"`
	Status        domain.OperationStatus `json:"status"`
	EstimatedCost float64                `json:"estimated_cost"`
	Artifact      *domain.Artifact       `json:"artifact,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

type batchView struct {
	BatchID       string             `json:"batch_id"`
	Status        domain.BatchStatus `json:"status"`
	QuotaStatus   domain.QuotaStatus `json:"quota_status"`
	EstimatedCost float64            `json:"estimated_cost"`
	SettledCount  int                `json:"settled_count"`
	Operations    []operationView    `json:"operations"`
	CreatedAt     time.Time          `json:"created_at"`
	LastPollAt    *time.Time         `json:"last_poll_at,omitempty"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
}

// StartBatch handles POST /v1/batches.
func (a *App) StartBatch(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	var req startBatchRequest
	if !a.decode(w, r, &req) {
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	reqs, err := a.generationRequests(req.Requests, locale)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	batch, err := a.Pipeline.Start(r.Context(), user.ID, reqs)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	handles := make([]string, 0, len(batch.Operations))
	for _, op := range batch.Operations {
		handles = append(handles, op.Handle)
	}
	a.json(w, http.StatusCreated, startBatchResponse{
		BatchID:          batch.ID,
		OperationHandles: handles,
		EstimatedCost:    batch.EstimatedCost,
		Status:           batch.Status,
		QuotaStatus:      batch.QuotaStatus,
	})
}

// generationRequests turns API items into collaborator requests, rendering
// structured scenes into prompt text.
func (a *App) generationRequests(items []batchRequestItem, locale string) ([]domain.GenerationRequest, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one request is required", domain.ErrInvalidRequest)
	}
	out := make([]domain.GenerationRequest, 0, len(items))
	for i, item := range items {
		text := strings.TrimSpace(item.Prompt)
		if item.Scene != nil && !item.Scene.Empty() {
			built, err := a.Prompts.Build(*item.Scene, locale)
			if err != nil {
				if errors.Is(err, prompt.ErrEmptyScene) {
					return nil, fmt.Errorf("%w: request %d: empty scene", domain.ErrInvalidRequest, i)
				}
				return nil, err
			}
			text = built
		}
		if text == "" {
			return nil, fmt.Errorf("%w: request %d: prompt or scene is required", domain.ErrInvalidRequest, i)
		}
		out = append(out, domain.GenerationRequest{
			Prompt:          text,
			DurationSeconds: item.DurationSeconds,
			AspectRatio:     item.AspectRatio,
			Audio:           item.Audio,
		})
	}
	return out, nil
}

// GetBatch handles GET /v1/batches/{batchID}.
func (a *App) GetBatch(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.domainError(w, r, domain.ErrUnauthorized)
		return
	}
	batch, err := a.Pipeline.Batch(r.Context(), userID, chi.URLParam(r, "batchID"))
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newBatchView(batch))
}

func newBatchView(b *domain.Batch) batchView {
	view := batchView{
		BatchID:       b.ID,
		Status:        b.Status,
		QuotaStatus:   b.QuotaStatus,
		EstimatedCost: b.EstimatedCost,
		SettledCount:  len(b.SettledIDs),
		Operations:    make([]operationView, 0, len(b.Operations)),
		CreatedAt:     b.CreatedAt,
		LastPollAt:    optionalTime(b.LastPollAt),
		CompletedAt:   optionalTime(b.CompletedAt),
	}
	for _, op := range b.Operations {
		view.Operations = append(view.Operations, operationView{
			Index:         op.Index,
			Handle:        op.Handle,
			Status:        op.Status,
			EstimatedCost: op.EstimatedCost,
			Artifact:      op.Artifact,
			Error:         op.Error,
		})
	}
	return view
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
