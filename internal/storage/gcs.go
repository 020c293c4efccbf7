package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore persists artifacts into a Cloud Storage bucket.
type GCSStore struct {
	client        *gcs.Client
	bucket        string
	publicBaseURL string
	fetcher       *Fetcher
}

var _ ArtifactStore = (*GCSStore)(nil)

type GCSOptions struct {
	Bucket          string
	CredentialsFile string
	// PublicBaseURL overrides the https://storage.googleapis.com/<bucket> prefix.
	PublicBaseURL string
}

// NewGCSStore opens a client using application default credentials unless a
// credentials file is given.
func NewGCSStore(ctx context.Context, opts GCSOptions, fetcher *Fetcher) (*GCSStore, error) {
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, errors.New("storage: gcs bucket is required")
	}
	var clientOpts []option.ClientOption
	if f := strings.TrimSpace(opts.CredentialsFile); f != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(f))
	}
	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: gcs client: %w", err)
	}
	base := strings.TrimRight(strings.TrimSpace(opts.PublicBaseURL), "/")
	if base == "" {
		base = "https://storage.googleapis.com/" + bucket
	}
	if fetcher == nil {
		fetcher = NewFetcher(nil)
	}
	return &GCSStore{client: client, bucket: bucket, publicBaseURL: base, fetcher: fetcher}, nil
}

func (s *GCSStore) Persist(ctx context.Context, key string, src Source) (Stored, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return Stored{}, err
	}
	data, mime, err := s.fetcher.Resolve(ctx, src)
	if err != nil {
		return Stored{}, err
	}
	w := s.client.Bucket(s.bucket).Object(cleanKey).NewWriter(ctx)
	if mime != "" {
		w.ContentType = mime
	}
	w.CacheControl = "public, max-age=31536000, immutable"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return Stored{}, fmt.Errorf("storage: gcs write %s: %w", cleanKey, err)
	}
	if err := w.Close(); err != nil {
		return Stored{}, fmt.Errorf("storage: gcs close %s: %w", cleanKey, err)
	}
	return Stored{
		Key:  cleanKey,
		URL:  joinURL(s.publicBaseURL, cleanKey),
		Size: int64(len(data)),
		MIME: mime,
	}, nil
}

func (s *GCSStore) Read(ctx context.Context, key string) ([]byte, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(cleanKey).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: gcs open %s: %w", cleanKey, err)
	}
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, MaxArtifactBytes))
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
