package domain

import "time"

// Usage tracks operations consumed in the current billing period.
type Usage struct {
	OperationsUsed int       `json:"operations_used"`
	PeriodStart    time.Time `json:"period_start"`
}

// User represents an account together with its billing and usage state.
type User struct {
	ID            string
	Email         string
	Tier          Tier
	BillingStatus BillingStatus
	Usage         Usage
	Credits       int
	Library       []Artifact
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Allowance returns the operation allowance granted by the user's tier.
func (u User) Allowance(c TierCatalog) int {
	return c.Allowance(u.Tier)
}

// Remaining returns how many operations the user may still start this period.
func (u User) Remaining(c TierCatalog) int {
	remaining := u.Allowance(c) - u.Usage.OperationsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
