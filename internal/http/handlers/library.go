package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"scenestudio/internal/domain"
	"scenestudio/internal/storage"
	"scenestudio/pkg/zip"
)

const (
	defaultLibraryLimit = 50
	maxLibraryLimit     = 200
	maxExportArtifacts  = 50
)

type libraryResponse struct {
	Items []domain.Artifact `json:"items"`
}

// ListLibrary handles GET /v1/library, newest first.
func (a *App) ListLibrary(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	limit := defaultLibraryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxLibraryLimit)
	}
	items, err := a.Users.ListLibrary(r.Context(), user.ID, limit)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Artifact{}
	}
	a.json(w, http.StatusOK, libraryResponse{Items: items})
}

// DeleteArtifact handles DELETE /v1/library/{artifactID}. The stored file
// is left in place; only the library entry goes away.
func (a *App) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.domainError(w, r, domain.ErrUnauthorized)
		return
	}
	if err := a.Users.DeleteArtifact(r.Context(), userID, chi.URLParam(r, "artifactID")); err != nil {
		a.domainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type exportEntry struct {
	ArtifactID      string    `json:"artifact_id"`
	Filename        string    `json:"filename,omitempty"`
	BatchID         string    `json:"batch_id"`
	Prompt          string    `json:"prompt"`
	DurationSeconds int       `json:"duration_seconds"`
	URL             string    `json:"url"`
	CreatedAt       time.Time `json:"created_at"`
	Missing         bool      `json:"missing,omitempty"`
}

type exportManifest struct {
	UserID     string        `json:"user_id"`
	ExportedAt time.Time     `json:"exported_at"`
	Artifacts  []exportEntry `json:"artifacts"`
}

// ExportLibrary handles GET /v1/library/export. Artifacts whose file can no
// longer be read are listed in the manifest as missing.
func (a *App) ExportLibrary(w http.ResponseWriter, r *http.Request) {
	if a.Storage == nil {
		a.error(w, http.StatusServiceUnavailable, "storage_unavailable", "artifact storage is not configured")
		return
	}
	user, err := a.currentUser(r)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	items, err := a.Users.ListLibrary(r.Context(), user.ID, maxExportArtifacts)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if len(items) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "library is empty")
		return
	}

	manifest := exportManifest{UserID: user.ID, ExportedAt: time.Now().UTC()}
	assets := make([]zip.Asset, 0, len(items))
	for _, item := range items {
		entry := exportEntry{
			ArtifactID:      item.ID,
			BatchID:         item.BatchID,
			Prompt:          item.Prompt,
			DurationSeconds: item.DurationSeconds,
			URL:             item.URL,
			CreatedAt:       item.CreatedAt,
		}
		data, err := a.Storage.Read(r.Context(), storage.VideoKey(item.BatchID, item.OperationIndex))
		if err != nil {
			a.Logger.Warn().Err(err).Str("artifact_id", item.ID).Msg("export: artifact unreadable")
			entry.Missing = true
			manifest.Artifacts = append(manifest.Artifacts, entry)
			continue
		}
		entry.Filename = item.ID + ".mp4"
		manifest.Artifacts = append(manifest.Artifacts, entry)
		assets = append(assets, zip.Asset{Filename: entry.Filename, MIME: "video/mp4", Data: data, Modified: item.CreatedAt})
	}

	var buf bytes.Buffer
	if err := zip.Write(&buf, assets, manifest); err != nil {
		a.domainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="library.zip"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
