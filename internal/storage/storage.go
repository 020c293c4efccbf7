package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxArtifactBytes caps a single persisted object.
const MaxArtifactBytes = 256 << 20

// Source is what a collaborator handed back for one artifact: inline bytes
// or a URL to fetch them from.
type Source struct {
	URL  string
	Data []byte
	MIME string
}

// Stored describes a persisted object.
type Stored struct {
	Key  string
	URL  string
	Size int64
	MIME string
}

// ArtifactStore copies generated media into durable storage and returns a
// URL that stays valid after the collaborator forgets the output.
type ArtifactStore interface {
	Persist(ctx context.Context, key string, src Source) (Stored, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// Fetcher downloads remote sources.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Fetcher{client: client}
}

// Resolve returns the bytes of src, downloading them when only a URL is set.
func (f *Fetcher) Resolve(ctx context.Context, src Source) ([]byte, string, error) {
	if len(src.Data) > 0 {
		return src.Data, src.MIME, nil
	}
	url := strings.TrimSpace(src.URL)
	if url == "" {
		return nil, "", errors.New("storage: source has neither data nor url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("storage: fetch source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("storage: fetch source: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxArtifactBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("storage: read source: %w", err)
	}
	if len(data) > MaxArtifactBytes {
		return nil, "", errors.New("storage: source exceeds size limit")
	}
	mime := src.MIME
	if mime == "" {
		mime = resp.Header.Get("Content-Type")
	}
	return data, mime, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// VideoKey is the object key of the scene video produced by operation index
// of batchID.
func VideoKey(batchID string, index int) string {
	return fmt.Sprintf("generated/videos/%s/scene-%02d.mp4", batchID, index)
}

// ImageKey is the object key of the index-th image of an image job.
func ImageKey(jobID string, index int) string {
	return fmt.Sprintf("generated/images/%s/img-%02d.png", jobID, index)
}
