package domain

import "strings"

// Tier enumerates subscription levels. Each tier maps to a fixed number of
// generation operations per billing period.
type Tier string

const (
	TierNone       Tier = "none"
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierBusiness   Tier = "business"
	TierEnterprise Tier = "enterprise"
)

// Tiers lists every known tier ordered from lowest to highest.
var Tiers = []Tier{TierNone, TierBasic, TierPro, TierBusiness, TierEnterprise}

// BillingStatus mirrors the payment processor's view of the account.
type BillingStatus string

const (
	BillingStatusActive   BillingStatus = "active"
	BillingStatusInactive BillingStatus = "inactive"
	BillingStatusPastDue  BillingStatus = "past_due"
)

// Active reports whether the account is currently paying.
func (s BillingStatus) Active() bool {
	return s == BillingStatusActive
}

// TierCatalog holds the per-period operation allowance of every tier.
type TierCatalog map[Tier]int

// DefaultTierCatalog returns the built-in allowances.
func DefaultTierCatalog() TierCatalog {
	return TierCatalog{
		TierNone:       0,
		TierBasic:      2,
		TierPro:        5,
		TierBusiness:   15,
		TierEnterprise: 50,
	}
}

// Allowance returns the operation allowance for t. Unknown tiers grant nothing.
func (c TierCatalog) Allowance(t Tier) int {
	if c == nil {
		return DefaultTierCatalog().Allowance(t)
	}
	if n, ok := c[t]; ok && n > 0 {
		return n
	}
	return 0
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	for _, known := range Tiers {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTier decodes a stored plan name into a Tier. It is the only place a
// raw plan string is interpreted. An unrecognized value on an account whose
// billing is active falls back to TierBasic, the nearest paid tier, so a
// paying user is never locked out by a naming mismatch.
func ParseTier(raw string, billing BillingStatus) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if t == "" {
		t = TierNone
	}
	if t.Valid() {
		return t
	}
	if billing.Active() {
		return TierBasic
	}
	return TierNone
}
