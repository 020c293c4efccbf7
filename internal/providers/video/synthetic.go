package video

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"scenestudio/internal/domain"
)

// Synthetic is an offline Generator for development. Every operation
// completes after CompleteAfter status queries with a small placeholder
// payload. Prompts containing "#fail" finish as failed.
type Synthetic struct {
	CompleteAfter int

	mu    sync.Mutex
	polls map[string]int
	fails map[string]bool
}

var _ Generator = (*Synthetic)(nil)

func NewSynthetic(completeAfter int) *Synthetic {
	if completeAfter <= 0 {
		completeAfter = 2
	}
	return &Synthetic{
		CompleteAfter: completeAfter,
		polls:         make(map[string]int),
		fails:         make(map[string]bool),
	}
}

func (s *Synthetic) Model() string {
	return "synthetic"
}

func (s *Synthetic) Submit(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("%w: prompt required", domain.ErrInvalidRequest)
	}
	handle := "operations/synthetic-" + uuid.NewString()
	s.mu.Lock()
	s.polls[handle] = 0
	s.fails[handle] = strings.Contains(req.Prompt, "#fail")
	s.mu.Unlock()
	return handle, nil
}

func (s *Synthetic) Status(ctx context.Context, handle string) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.polls[handle]
	if !ok {
		return Status{State: StateExpired, Reason: "unknown handle"}, nil
	}
	n++
	s.polls[handle] = n
	if n < s.CompleteAfter {
		return Status{State: StatePending}, nil
	}
	if s.fails[handle] {
		return Status{State: StateFailed, Reason: "synthetic failure"}, nil
	}
	return Status{
		State: StateCompleted,
		Data:  []byte("synthetic-video:" + handle),
		MIME:  "video/mp4",
	}, nil
}
