// Package video talks to long-running video generation collaborators.
package video

import (
	"context"
	"errors"

	"scenestudio/internal/domain"
)

var (
	// ErrUnauthorized means the collaborator rejected our credentials.
	ErrUnauthorized = errors.New("video: unauthorized")
	// ErrBillingRequired means the collaborator account cannot be charged.
	ErrBillingRequired = errors.New("video: billing required")
	// ErrNotFound means the operation handle is unknown or has expired.
	ErrNotFound = errors.New("video: operation not found")
)

// IsFatal reports whether err rejects every request, not just one.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrBillingRequired)
}

// State is the collaborator's view of one operation.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateExpired   State = "expired"
)

// Status is a point-in-time answer to a status query. A completed status
// carries either a fetchable VideoURL or the bytes in Data.
type Status struct {
	State    State
	VideoURL string
	Data     []byte
	MIME     string
	Reason   string
}

// Generator submits generation requests and answers status queries.
type Generator interface {
	Submit(ctx context.Context, req domain.GenerationRequest) (string, error)
	Status(ctx context.Context, handle string) (Status, error)
	Model() string
}
