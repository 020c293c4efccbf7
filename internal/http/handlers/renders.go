package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"scenestudio/internal/domain"
	"scenestudio/internal/providers/render"
)

type renderRequest struct {
	TemplateID    string            `json:"template_id"`
	ArtifactIDs   []string          `json:"artifact_ids"`
	Modifications map[string]string `json:"modifications"`
}

// StartRender handles POST /v1/renders. Clips are taken from the caller's
// library in the order given.
func (a *App) StartRender(w http.ResponseWriter, r *http.Request) {
	if a.Renders == nil {
		a.error(w, http.StatusServiceUnavailable, "render_unavailable", "rendering is not configured")
		return
	}
	user, err := a.currentUser(r)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	var req renderRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TemplateID) == "" || len(req.ArtifactIDs) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "template_id and artifact_ids are required")
		return
	}

	library, err := a.Users.ListLibrary(r.Context(), user.ID, 0)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	owned := make(map[string]domain.Artifact, len(library))
	for _, item := range library {
		owned[item.ID] = item
	}
	clips := make([]render.Clip, 0, len(req.ArtifactIDs))
	for _, id := range req.ArtifactIDs {
		item, ok := owned[id]
		if !ok {
			a.domainError(w, r, fmt.Errorf("%w: artifact %s", domain.ErrNotFound, id))
			return
		}
		clips = append(clips, render.Clip{URL: item.URL, DurationSeconds: item.DurationSeconds})
	}

	out, err := a.Renders.Submit(r.Context(), render.Request{
		TemplateID:    req.TemplateID,
		Clips:         clips,
		Modifications: req.Modifications,
	})
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if err := a.RenderOwners.SetOwner(r.Context(), out.ID, user.ID, a.renderTTL); err != nil {
		a.Logger.Error().Err(err).Str("render_id", out.ID).Msg("renders: owner not recorded")
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, out)
}

// GetRender handles GET /v1/renders/{renderID}. Only renders started by the
// caller within the owner retention window are visible.
func (a *App) GetRender(w http.ResponseWriter, r *http.Request) {
	if a.Renders == nil {
		a.error(w, http.StatusServiceUnavailable, "render_unavailable", "rendering is not configured")
		return
	}
	userID := a.currentUserID(r)
	if userID == "" {
		a.domainError(w, r, domain.ErrUnauthorized)
		return
	}
	id := chi.URLParam(r, "renderID")
	owner, err := a.RenderOwners.Owner(r.Context(), id)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if owner != userID {
		a.domainError(w, r, domain.ErrForbidden)
		return
	}
	out, err := a.Renders.Get(r.Context(), id)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, out)
}
