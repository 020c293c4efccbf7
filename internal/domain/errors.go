package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrSubscriptionRequired = errors.New("subscription required")
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrGenerationFailed     = errors.New("generation failed")
	ErrSettlementFailed     = errors.New("settlement failed")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrProviderFailure      = errors.New("provider failure")
	ErrDuplicateOperation   = errors.New("duplicate operation")
)

// QuotaExceededError reports an admission denial together with the allowance
// that is still available, so callers can shrink the request.
type QuotaExceededError struct {
	Requested int
	Remaining int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: requested %d, remaining %d", e.Requested, e.Remaining)
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}
