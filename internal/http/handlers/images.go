package handlers

import (
	"net/http"

	"scenestudio/internal/imagegen"
	"scenestudio/internal/middleware"
)

// GenerateImages handles POST /v1/images/generate, paid for with credits.
func (a *App) GenerateImages(w http.ResponseWriter, r *http.Request) {
	if a.Credits == nil {
		a.error(w, http.StatusServiceUnavailable, "images_unavailable", "image generation is not configured")
		return
	}
	user, err := a.currentUser(r)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	var req imagegen.Request
	if !a.decode(w, r, &req) {
		return
	}
	req.Locale = middleware.LocaleFromContext(r.Context())

	res, err := a.Credits.Generate(r.Context(), user.ID, req)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}
