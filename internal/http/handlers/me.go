package handlers

import (
	"net/http"
	"time"

	"scenestudio/internal/domain"
)

type meResponse struct {
	UserID        string               `json:"user_id"`
	Email         string               `json:"email,omitempty"`
	Tier          domain.Tier          `json:"tier"`
	BillingStatus domain.BillingStatus `json:"billing_status,omitempty"`
	Allowance     int                  `json:"allowance"`
	Used          int                  `json:"used"`
	Remaining     int                  `json:"remaining"`
	Credits       int                  `json:"credits"`
	PeriodStart   *time.Time           `json:"period_start,omitempty"`
}

// Me handles GET /v1/me: plan, usage and credit balance of the caller.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, meResponse{
		UserID:        user.ID,
		Email:         user.Email,
		Tier:          user.Tier,
		BillingStatus: user.BillingStatus,
		Allowance:     user.Allowance(a.Tiers),
		Used:          user.Usage.OperationsUsed,
		Remaining:     user.Remaining(a.Tiers),
		Credits:       user.Credits,
		PeriodStart:   optionalTime(user.Usage.PeriodStart),
	})
}
