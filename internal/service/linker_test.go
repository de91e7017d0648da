package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeduck/codeduck/internal/metrics"
	"github.com/codeduck/codeduck/internal/model"
	"github.com/codeduck/codeduck/internal/provider"
)

func newTestLinker(idp *fakeIdentityProvider, store *fakeLinkStore) (*Linker, *metrics.InMemoryRecorder) {
	rec := metrics.NewInMemory()
	return NewLinker(idp, store, rec, nil), rec
}

func requireLinkError(t *testing.T, err error, state LinkState, reason LinkFailureReason) *LinkError {
	t.Helper()
	var linkErr *LinkError
	require.True(t, errors.As(err, &linkErr), "expected *LinkError, got %v", err)
	assert.Equal(t, state, linkErr.State)
	assert.Equal(t, reason, linkErr.Reason)
	return linkErr
}

func strPtr(s string) *string { return &s }

func TestLink_MissingCode(t *testing.T) {
	idp := &fakeIdentityProvider{}
	store := newFakeLinkStore()
	linker, rec := newTestLinker(idp, store)

	for _, code := range []string{"", "   "} {
		_, err := linker.Link(context.Background(), "u1", code)
		requireLinkError(t, err, StateAwaitingCode, ReasonMissingCode)
		assert.ErrorIs(t, err, ErrMissingCode)
	}

	assert.Zero(t, idp.exchangeCalls, "no provider call without a code")
	assert.Zero(t, store.upserts)
	assert.Equal(t, uint64(2), rec.Snapshot().GitHubLinks[string(ReasonMissingCode)])
}

func TestLink_NoSession(t *testing.T) {
	idp := &fakeIdentityProvider{}
	linker, _ := newTestLinker(idp, newFakeLinkStore())

	_, err := linker.Link(context.Background(), "", "code")
	requireLinkError(t, err, StateAwaitingCode, ReasonNoSession)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Zero(t, idp.exchangeCalls)
}

func TestLink_FirstLinkCreates(t *testing.T) {
	idp := &fakeIdentityProvider{profile: &model.ExternalProfile{ID: "42", Login: "octocat", Email: strPtr("octo@example.com")}}
	store := newFakeLinkStore()
	linker, rec := newTestLinker(idp, store)

	desc, err := linker.Link(context.Background(), "u1", "code-1")
	require.NoError(t, err)
	assert.Equal(t, "octocat", desc.Username)
	assert.NotEmpty(t, desc.ID)
	assert.False(t, desc.ConnectedAt.IsZero())

	stored := store.get("42")
	require.NotNil(t, stored)
	assert.Equal(t, "u1", stored.OwnerUserID)
	assert.Equal(t, "tok-code-1", stored.AccessToken)
	require.NotNil(t, stored.ContactEmail)
	assert.Equal(t, "octo@example.com", *stored.ContactEmail)

	assert.Zero(t, idp.emailCalls, "public profile email needs no address lookup")
	assert.Equal(t, uint64(1), rec.Snapshot().GitHubLinks[string(StateLinked)])
}

func TestLink_ExchangeFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason LinkFailureReason
		is     error
	}{
		{"rejected code", fmt.Errorf("%w: bad_verification_code", provider.ErrAuthFailed), ReasonUpstreamAuthFailure, ErrUpstreamAuthFailure},
		{"unreachable", fmt.Errorf("%w: dial tcp", provider.ErrUnavailable), ReasonUpstreamError, ErrUpstreamError},
		{"rate limited", provider.ErrRateLimited, ReasonUpstreamError, ErrUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeLinkStore()
			linker, _ := newTestLinker(&fakeIdentityProvider{exchangeErr: tt.err}, store)

			_, err := linker.Link(context.Background(), "u1", "code")
			requireLinkError(t, err, StateExchangingToken, tt.reason)
			assert.ErrorIs(t, err, tt.is)
			assert.Zero(t, store.upserts)
		})
	}
}

func TestLink_ProfileFailure(t *testing.T) {
	store := newFakeLinkStore()
	linker, _ := newTestLinker(&fakeIdentityProvider{profileErr: provider.ErrUnavailable}, store)

	_, err := linker.Link(context.Background(), "u1", "code")
	requireLinkError(t, err, StateResolvingIdentity, ReasonUpstreamError)
	assert.Zero(t, store.upserts)
}

func TestLink_EmailResolution(t *testing.T) {
	tests := []struct {
		name   string
		emails []model.ExternalEmail
		want   *string
	}{
		{
			name: "primary from list",
			emails: []model.ExternalEmail{
				{Email: "other@example.com"},
				{Email: "main@example.com", Primary: true, Verified: true},
			},
			want: strPtr("main@example.com"),
		},
		{
			name:   "no primary",
			emails: []model.ExternalEmail{{Email: "other@example.com"}},
			want:   nil,
		},
		{
			name:   "empty list",
			emails: nil,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idp := &fakeIdentityProvider{emails: tt.emails}
			store := newFakeLinkStore()
			linker, _ := newTestLinker(idp, store)

			_, err := linker.Link(context.Background(), "u1", "code")
			require.NoError(t, err, "a missing address is not a failure")
			assert.Equal(t, 1, idp.emailCalls)
			assert.Equal(t, tt.want, store.get("583231").ContactEmail)
		})
	}
}

func TestLink_EmailListFailure(t *testing.T) {
	store := newFakeLinkStore()
	linker, _ := newTestLinker(&fakeIdentityProvider{emailsErr: provider.ErrAuthFailed}, store)

	_, err := linker.Link(context.Background(), "u1", "code")
	requireLinkError(t, err, StateResolvingIdentity, ReasonUpstreamError)
	assert.Zero(t, store.upserts)
}

func TestLink_SameOwnerRefreshesToken(t *testing.T) {
	store := newFakeLinkStore()
	linker, _ := newTestLinker(&fakeIdentityProvider{}, store)

	first, err := linker.Link(context.Background(), "u1", "c1")
	require.NoError(t, err)
	before := store.get("583231")

	second, err := linker.Link(context.Background(), "u1", "c2")
	require.NoError(t, err)
	after := store.get("583231")

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "tok-c2", after.AccessToken)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
	assert.True(t, after.CreatedAt.Equal(before.CreatedAt))
}

func TestLink_OtherOwnerConflict(t *testing.T) {
	store := newFakeLinkStore()
	linker, rec := newTestLinker(&fakeIdentityProvider{}, store)

	_, err := linker.Link(context.Background(), "owner", "c1")
	require.NoError(t, err)

	_, err = linker.Link(context.Background(), "intruder", "c2")
	requireLinkError(t, err, StateReconcilingOwnership, ReasonAlreadyLinkedElsewhere)
	assert.ErrorIs(t, err, ErrAlreadyLinkedElsewhere)

	stored := store.get("583231")
	assert.Equal(t, "owner", stored.OwnerUserID, "ownership is never reassigned")
	assert.Equal(t, "tok-c1", stored.AccessToken, "the intruder's token is discarded")
	assert.Equal(t, uint64(1), rec.Snapshot().GitHubLinks[string(ReasonAlreadyLinkedElsewhere)])
}

func TestLink_StorageFailure(t *testing.T) {
	store := newFakeLinkStore()
	store.upsertErr = errors.New("connection refused")
	linker, _ := newTestLinker(&fakeIdentityProvider{}, store)

	_, err := linker.Link(context.Background(), "u1", "code")
	requireLinkError(t, err, StateReconcilingOwnership, ReasonStorageFailure)
	assert.ErrorIs(t, err, ErrStorageFailure)
}

func TestLink_ConcurrentUsersOneWinner(t *testing.T) {
	store := newFakeLinkStore()
	linker, _ := newTestLinker(&fakeIdentityProvider{}, store)

	const contenders = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			<-start
			_, err := linker.Link(context.Background(), userID, "code-"+userID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyLinkedElsewhere):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(fmt.Sprintf("user-%d", i))
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, contenders-1, conflicts)
}

func TestLinkedAccount(t *testing.T) {
	store := newFakeLinkStore()
	linker, _ := newTestLinker(&fakeIdentityProvider{}, store)

	_, err := linker.LinkedAccount(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrGitHubNotConnected)

	_, err = linker.Link(context.Background(), "u1", "code")
	require.NoError(t, err)

	link, err := linker.LinkedAccount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok-code", link.AccessToken)

	store.findErr = errors.New("db down")
	_, err = linker.LinkedAccount(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrStorageFailure)
}
