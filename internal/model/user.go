// Package model defines domain entities for the application.
package model

import (
	"strings"
	"time"
)

// Tier is a user's subscription class. It controls the daily quota ceiling.
type Tier string

// Subscription tiers.
const (
	TierFree Tier = "FREE"
	TierPro  Tier = "PRO"
)

// ParseTier normalizes a stored or user-supplied tier name.
// Unknown values fall back to TierFree.
func ParseTier(s string) Tier {
	switch Tier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierPro:
		return TierPro
	default:
		return TierFree
	}
}

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	return t == TierFree || t == TierPro
}

// User is a local account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         *string   `json:"name"`
	PasswordHash string    `json:"-"`
	Tier         Tier      `json:"tier"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserStats aggregates per-user counters shown on the profile.
type UserStats struct {
	GitHubAccounts int `json:"githubAccounts"`
	AIRequests     int `json:"aiRequests"`
}
