package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeduck/codeduck/internal/metrics"
	"github.com/codeduck/codeduck/internal/model"
	"github.com/codeduck/codeduck/internal/repository"
)

// LinkState is a step of the account linking flow.
type LinkState string

// Linking states, in order.
const (
	StateAwaitingCode         LinkState = "awaiting_code"
	StateExchangingToken      LinkState = "exchanging_token"
	StateResolvingIdentity    LinkState = "resolving_identity"
	StateReconcilingOwnership LinkState = "reconciling_ownership"
	StateLinked               LinkState = "linked"
	StateFailed               LinkState = "failed"
)

// LinkFailureReason explains why a linking attempt ended in StateFailed.
type LinkFailureReason string

// Failure reasons.
const (
	ReasonMissingCode            LinkFailureReason = "missing_code"
	ReasonNoSession              LinkFailureReason = "no_session"
	ReasonUpstreamAuthFailure    LinkFailureReason = "upstream_auth_failure"
	ReasonUpstreamError          LinkFailureReason = "upstream_error"
	ReasonAlreadyLinkedElsewhere LinkFailureReason = "already_linked_elsewhere"
	ReasonStorageFailure         LinkFailureReason = "storage_failure"
)

// Linking errors, matched by LinkError.Is on its reason.
var (
	ErrMissingCode            = errors.New("no code provided")
	ErrNoSession              = errors.New("a signed-in user is required")
	ErrAlreadyLinkedElsewhere = errors.New("GitHub account already linked to another user")
)

// LinkError is a linking attempt that ended in StateFailed. State is the
// state the flow was in when it failed.
type LinkError struct {
	State  LinkState
	Reason LinkFailureReason
	Err    error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("github link failed in %s (%s): %v", e.State, e.Reason, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// Is matches the service error that corresponds to the failure reason.
func (e *LinkError) Is(target error) bool {
	switch e.Reason {
	case ReasonMissingCode:
		return target == ErrMissingCode
	case ReasonNoSession:
		return target == ErrNoSession
	case ReasonUpstreamAuthFailure:
		return target == ErrUpstreamAuthFailure
	case ReasonUpstreamError:
		return target == ErrUpstreamError
	case ReasonAlreadyLinkedElsewhere:
		return target == ErrAlreadyLinkedElsewhere
	case ReasonStorageFailure:
		return target == ErrStorageFailure
	}
	return false
}

// IdentityProvider is the OAuth side of GitHub.
type IdentityProvider interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
	GetUser(ctx context.Context, token string) (*model.ExternalProfile, error)
	ListEmails(ctx context.Context, token string) ([]model.ExternalEmail, error)
}

// LinkStore persists identity links.
type LinkStore interface {
	UpsertLink(ctx context.Context, in model.LinkUpsert) (*model.IdentityLink, error)
	FindLinkByOwner(ctx context.Context, provider, ownerUserID string) (*model.IdentityLink, error)
}

// Linker binds a GitHub identity to the signed-in user. Each call runs the
// whole flow from StateAwaitingCode; nothing is kept between calls.
type Linker struct {
	idp     IdentityProvider
	store   LinkStore
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewLinker creates a new Linker.
func NewLinker(idp IdentityProvider, store LinkStore, recorder metrics.Recorder, logger *slog.Logger) *Linker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{idp: idp, store: store, metrics: recorder, logger: logger}
}

// linkAttempt carries one run of the flow.
type linkAttempt struct {
	l      *Linker
	userID string
	state  LinkState
}

func (a *linkAttempt) enter(s LinkState) {
	a.l.logger.Debug("github_link_state", "user_id", a.userID, "from", a.state, "to", s)
	a.state = s
}

func (a *linkAttempt) fail(reason LinkFailureReason, err error) error {
	linkErr := &LinkError{State: a.state, Reason: reason, Err: err}
	a.l.metrics.IncGitHubLink(string(reason))
	a.l.logger.Warn("github_link_failed",
		"user_id", a.userID,
		"state", a.state,
		"reason", reason,
		"error", err,
	)
	a.state = StateFailed
	return linkErr
}

// Link runs the flow for an authorization code on behalf of userID.
// Failures are returned as *LinkError.
func (l *Linker) Link(ctx context.Context, userID, code string) (*model.LinkDescriptor, error) {
	a := &linkAttempt{l: l, userID: userID, state: StateAwaitingCode}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, a.fail(ReasonMissingCode, ErrMissingCode)
	}
	if userID == "" {
		return nil, a.fail(ReasonNoSession, ErrNoSession)
	}

	a.enter(StateExchangingToken)
	token, err := l.idp.ExchangeCode(ctx, code)
	if err != nil {
		if errors.Is(upstreamError(err), ErrUpstreamAuthFailure) {
			return nil, a.fail(ReasonUpstreamAuthFailure, err)
		}
		return nil, a.fail(ReasonUpstreamError, err)
	}

	a.enter(StateResolvingIdentity)
	profile, err := l.idp.GetUser(ctx, token)
	if err != nil {
		return nil, a.fail(ReasonUpstreamError, err)
	}
	email, err := l.resolveEmail(ctx, token, profile)
	if err != nil {
		return nil, a.fail(ReasonUpstreamError, err)
	}

	a.enter(StateReconcilingOwnership)
	link, err := l.store.UpsertLink(ctx, model.LinkUpsert{
		Provider:     model.ProviderGitHub,
		ExternalID:   profile.ID,
		OwnerUserID:  userID,
		AccessToken:  token,
		Handle:       profile.Login,
		ContactEmail: email,
	})
	if err != nil {
		if errors.Is(err, repository.ErrOwnershipConflict) {
			return nil, a.fail(ReasonAlreadyLinkedElsewhere, ErrAlreadyLinkedElsewhere)
		}
		return nil, a.fail(ReasonStorageFailure, err)
	}

	a.enter(StateLinked)
	l.metrics.IncGitHubLink(string(StateLinked))
	l.logger.Info("github_link_completed",
		"user_id", userID,
		"link_id", link.ID,
		"github_id", link.ExternalID,
		"username", link.Handle,
	)

	return link.Descriptor(), nil
}

// resolveEmail returns the profile's public address or, failing that, the
// account's primary address. No address at all is not an error.
func (l *Linker) resolveEmail(ctx context.Context, token string, profile *model.ExternalProfile) (*string, error) {
	if profile.Email != nil && *profile.Email != "" {
		return profile.Email, nil
	}

	emails, err := l.idp.ListEmails(ctx, token)
	if err != nil {
		return nil, err
	}
	for _, e := range emails {
		if e.Primary && e.Email != "" {
			addr := e.Email
			return &addr, nil
		}
	}
	return nil, nil
}

// LinkedAccount returns the GitHub link of a user, or ErrGitHubNotConnected.
func (l *Linker) LinkedAccount(ctx context.Context, userID string) (*model.IdentityLink, error) {
	link, err := l.store.FindLinkByOwner(ctx, model.ProviderGitHub, userID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrGitHubNotConnected
		}
		return nil, fmt.Errorf("%w: find link: %w", ErrStorageFailure, err)
	}
	return link, nil
}
