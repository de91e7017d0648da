// Package quota decides whether a user's AI request fits inside the daily
// allowance of their tier.
package quota

import (
	"fmt"

	"github.com/codeduck/codeduck/internal/model"
)

// Default daily ceilings. Operators override them through configuration.
const (
	DefaultFreeDailyLimit = 15
	DefaultProDailyLimit  = 200
)

// Limits maps each tier to its daily ceiling.
type Limits map[model.Tier]int

// DefaultLimits returns the built-in ceilings.
func DefaultLimits() Limits {
	return Limits{
		model.TierFree: DefaultFreeDailyLimit,
		model.TierPro:  DefaultProDailyLimit,
	}
}

// Decision is the outcome of evaluating a request against the policy.
// Remaining already accounts for the request being evaluated when it is admitted.
type Decision struct {
	Admitted  bool
	Limit     int
	Remaining int
}

// Policy evaluates daily usage against per-tier ceilings.
type Policy struct {
	limits Limits
}

// NewPolicy creates a Policy. Tiers missing from limits use the defaults.
func NewPolicy(limits Limits) (*Policy, error) {
	merged := DefaultLimits()
	for tier, limit := range limits {
		if !tier.IsValid() {
			return nil, fmt.Errorf("unknown tier %q", tier)
		}
		if limit < 0 {
			return nil, fmt.Errorf("negative daily limit %d for tier %s", limit, tier)
		}
		merged[tier] = limit
	}
	return &Policy{limits: merged}, nil
}

// Limit returns the daily ceiling for tier. Unknown tiers get the FREE ceiling.
func (p *Policy) Limit(tier model.Tier) int {
	if limit, ok := p.limits[tier]; ok {
		return limit
	}
	return p.limits[model.TierFree]
}

// Evaluate admits the request when used is strictly below the tier ceiling.
func (p *Policy) Evaluate(tier model.Tier, used int) Decision {
	limit := p.Limit(tier)
	admitted := used < limit

	remaining := limit - used
	if admitted {
		remaining--
	}
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Admitted:  admitted,
		Limit:     limit,
		Remaining: remaining,
	}
}
