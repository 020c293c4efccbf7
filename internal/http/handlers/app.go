package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"scenestudio/internal/credits"
	"scenestudio/internal/domain"
	"scenestudio/internal/middleware"
	"scenestudio/internal/payments"
	"scenestudio/internal/pipeline"
	"scenestudio/internal/prompt"
	"scenestudio/internal/providers/render"
	"scenestudio/internal/registry"
	"scenestudio/internal/storage"
)

const maxBodyBytes = 1 << 20

// RenderClient is the template render collaborator.
type RenderClient interface {
	Submit(ctx context.Context, req render.Request) (render.Render, error)
	Get(ctx context.Context, id string) (render.Render, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps are the services the HTTP layer calls into. Optional features are
// disabled when their dependency is nil.
type Deps struct {
	Logger   zerolog.Logger
	Pipeline *pipeline.Service
	Users    domain.UserStore
	Tiers    domain.TierCatalog
	Prompts  *prompt.Builder
	Storage  storage.ArtifactStore
	Credits  *credits.Service
	Payments *payments.Processor
	Renders  RenderClient
	Checks   map[string]HealthCheck

	// RenderOwners maps render ids to the user who started them. Defaults
	// to a per-process index.
	RenderOwners domain.OwnerIndex
}

type App struct {
	Deps
	renderTTL time.Duration
}

func NewApp(deps Deps) *App {
	if deps.Tiers == nil {
		deps.Tiers = domain.DefaultTierCatalog()
	}
	if deps.Prompts == nil {
		deps.Prompts = prompt.NewBuilder()
	}
	if deps.RenderOwners == nil {
		deps.RenderOwners = registry.NewMemoryOwners()
	}
	return &App{
		Deps:      deps,
		renderTTL: 24 * time.Hour,
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Remaining *int   `json:"remaining,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errCode, Message: message})
}

// domainError maps service errors onto HTTP responses.
func (a *App) domainError(w http.ResponseWriter, r *http.Request, err error) {
	var quotaErr *domain.QuotaExceededError
	switch {
	case errors.As(err, &quotaErr):
		remaining := quotaErr.Remaining
		a.json(w, http.StatusTooManyRequests, errorResponse{Error: "quota_exceeded", Message: err.Error(), Remaining: &remaining})
	case errors.Is(err, domain.ErrSubscriptionRequired):
		a.error(w, http.StatusPaymentRequired, "subscription_required", "an active subscription is required")
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits")
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
	case errors.Is(err, domain.ErrForbidden):
		a.error(w, http.StatusForbidden, "forbidden", "resource belongs to another user")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrGenerationFailed):
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("generation failed")
		a.error(w, http.StatusInternalServerError, "generation_failed", "the video service rejected the batch")
	case errors.Is(err, domain.ErrProviderFailure):
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("provider failure")
		a.error(w, http.StatusBadGateway, "provider_failure", "an upstream service failed")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// currentUser loads the caller, creating an account without a plan on first
// contact.
func (a *App) currentUser(r *http.Request) (*domain.User, error) {
	userID := a.currentUserID(r)
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	return a.Users.EnsureUser(r.Context(), &domain.User{
		ID:    userID,
		Email: middleware.UserEmailFromContext(r.Context()),
	})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}
