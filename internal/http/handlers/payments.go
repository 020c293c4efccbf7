package handlers

import (
	"errors"
	"io"
	"net/http"

	"scenestudio/internal/payments"
)

// SignatureHeader carries the payment collaborator's webhook signature.
const SignatureHeader = "Payment-Signature"

// PaymentWebhook handles POST /v1/payments/webhook. It is unauthenticated;
// the signature is the only trust anchor.
func (a *App) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if a.Payments == nil {
		a.error(w, http.StatusServiceUnavailable, "payments_unavailable", "payment webhooks are not configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	outcome, err := a.Payments.Handle(r.Context(), r.Header.Get(SignatureHeader), body)
	if err != nil {
		if errors.Is(err, payments.ErrBadSignature) || errors.Is(err, payments.ErrStale) {
			a.error(w, http.StatusBadRequest, "invalid_signature", err.Error())
			return
		}
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}
