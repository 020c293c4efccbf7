// Package payments applies payment collaborator webhooks to user accounts.
package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"scenestudio/internal/domain"
	"scenestudio/internal/metrics"
)

var (
	ErrBadSignature = errors.New("payments: invalid signature")
	ErrStale        = errors.New("payments: signature timestamp outside tolerance")
)

const (
	EventCreditsPurchased    = "credits.purchased"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionRenewed = "subscription.renewed"
)

// Outcome reports what a webhook delivery did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Event is the webhook body.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		UserID        string    `json:"user_id"`
		Credits       int       `json:"credits"`
		Plan          string    `json:"plan"`
		BillingStatus string    `json:"billing_status"`
		PeriodStart   time.Time `json:"period_start"`
	} `json:"data"`
}

// Verifier checks "t=<unix>,v1=<hex hmac-sha256>" signature headers over
// "<t>.<body>".
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// Sign returns a header value for body at ts.
func (v *Verifier) Sign(ts time.Time, body []byte) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + v.mac(t, body)
}

func (v *Verifier) Verify(header string, body []byte) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: secret not configured", ErrBadSignature)
	}
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			sigs = append(sigs, val)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrBadSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if d := v.now().Sub(time.Unix(unix, 0)); d > v.tolerance || d < -v.tolerance {
		return ErrStale
	}
	want := v.mac(ts, body)
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(want)) {
			return nil
		}
	}
	return ErrBadSignature
}

func (v *Verifier) mac(ts string, body []byte) string {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(ts))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Processor verifies and applies webhook deliveries.
type Processor struct {
	users    domain.UserStore
	verifier *Verifier
	metrics  *metrics.Pipeline
	logger   zerolog.Logger
}

func NewProcessor(users domain.UserStore, verifier *Verifier, m *metrics.Pipeline, logger zerolog.Logger) *Processor {
	return &Processor{users: users, verifier: verifier, metrics: m, logger: logger}
}

// Handle applies one delivery. Redelivered credit purchases are no-ops.
func (p *Processor) Handle(ctx context.Context, signature string, body []byte) (Outcome, error) {
	if err := p.verifier.Verify(signature, body); err != nil {
		p.metrics.Webhook("rejected")
		return "", err
	}
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		p.metrics.Webhook("rejected")
		return "", fmt.Errorf("%w: decode event: %v", domain.ErrInvalidRequest, err)
	}
	if ev.ID == "" || ev.Data.UserID == "" {
		p.metrics.Webhook("rejected")
		return "", fmt.Errorf("%w: event id and user id are required", domain.ErrInvalidRequest)
	}
	log := p.logger.With().Str("event_id", ev.ID).Str("event_type", ev.Type).Str("user_id", ev.Data.UserID).Logger()

	outcome, err := p.apply(ctx, ev)
	if err != nil {
		p.metrics.Webhook("failed")
		log.Error().Err(err).Msg("payments: apply failed")
		return "", err
	}
	p.metrics.Webhook(string(outcome))
	log.Info().Str("outcome", string(outcome)).Msg("payments: webhook handled")
	return outcome, nil
}

func (p *Processor) apply(ctx context.Context, ev Event) (Outcome, error) {
	switch ev.Type {
	case EventCreditsPurchased:
		if ev.Data.Credits <= 0 {
			return "", fmt.Errorf("%w: credits must be positive", domain.ErrInvalidRequest)
		}
		_, err := p.users.GrantCredits(ctx, ev.Data.UserID, ev.Data.Credits, ev.ID)
		if errors.Is(err, domain.ErrDuplicateOperation) {
			return OutcomeDuplicate, nil
		}
		if err != nil {
			return "", err
		}
		return OutcomeApplied, nil

	case EventSubscriptionUpdated, EventSubscriptionRenewed:
		status := domain.BillingStatus(strings.ToLower(strings.TrimSpace(ev.Data.BillingStatus)))
		if status == "" {
			status = domain.BillingStatusActive
		}
		tier := domain.ParseTier(ev.Data.Plan, status)
		if !status.Active() {
			tier = domain.TierNone
		}
		reset := false
		if ev.Type == EventSubscriptionRenewed {
			u, err := p.users.GetUser(ctx, ev.Data.UserID)
			if err != nil {
				return "", err
			}
			// Only a renewal for a period newer than the current one resets
			// usage, so redeliveries are harmless.
			reset = ev.Data.PeriodStart.After(u.Usage.PeriodStart)
			if !reset && u.Tier == tier && u.BillingStatus == status {
				return OutcomeDuplicate, nil
			}
		}
		if _, err := p.users.SetPlan(ctx, ev.Data.UserID, tier, status, reset); err != nil {
			return "", err
		}
		return OutcomeApplied, nil

	default:
		return OutcomeIgnored, nil
	}
}
