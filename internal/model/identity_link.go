package model

import "time"

// ProviderGitHub identifies GitHub identity links.
const ProviderGitHub = "github"

// IdentityLink binds one external identity to exactly one local user.
type IdentityLink struct {
	ID           string
	Provider     string
	ExternalID   string
	OwnerUserID  string
	AccessToken  string
	Handle       string
	ContactEmail *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LinkUpsert is the input to an identity link upsert.
type LinkUpsert struct {
	Provider     string
	ExternalID   string
	OwnerUserID  string
	AccessToken  string
	Handle       string
	ContactEmail *string
}

// LinkDescriptor is what a caller learns about a completed link.
type LinkDescriptor struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Descriptor returns the public view of the link.
func (l *IdentityLink) Descriptor() *LinkDescriptor {
	return &LinkDescriptor{
		ID:          l.ID,
		Username:    l.Handle,
		ConnectedAt: l.CreatedAt,
	}
}

// ExternalProfile is the identity reported by an external provider.
// Email is nil when the provider does not expose a public address.
type ExternalProfile struct {
	ID    string
	Login string
	Email *string
}

// ExternalEmail is one entry of an external account's address list.
type ExternalEmail struct {
	Email    string
	Primary  bool
	Verified bool
}
