package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codeduck/codeduck/internal/cache"
	"github.com/codeduck/codeduck/internal/model"
	"github.com/codeduck/codeduck/internal/repository"
)

// fakeLedger is an in-memory UsageLedger.
type fakeLedger struct {
	mu        sync.Mutex
	records   []*model.UsageRecord
	countErr  error
	appendErr error
	appends   int
}

func (l *fakeLedger) CountUsageSince(ctx context.Context, userID string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.countErr != nil {
		return 0, l.countErr
	}
	n := 0
	for _, r := range l.records {
		if r.UserID == userID && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (l *fakeLedger) AppendUsage(ctx context.Context, rec *model.UsageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appends++
	if l.appendErr != nil {
		return l.appendErr
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *fakeLedger) ListRecentUsage(ctx context.Context, userID string, limit int) ([]*model.UsageRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*model.UsageRecord
	for _, r := range l.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *fakeLedger) seed(userID string, n int, at time.Time) {
	for i := 0; i < n; i++ {
		l.records = append(l.records, &model.UsageRecord{
			ID:          ulid.Make().String(),
			UserID:      userID,
			RequestType: model.RequestTypeExplain,
			Cost:        1,
			CreatedAt:   at,
		})
	}
}

func (l *fakeLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// fakeExplainer is a CodeExplainer driven by a function.
type fakeExplainer struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, in model.ExplainInput) (*model.ExplainResult, error)
}

func (e *fakeExplainer) Explain(ctx context.Context, in model.ExplainInput) (*model.ExplainResult, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fn != nil {
		return e.fn(ctx, in)
	}
	return &model.ExplainResult{
		Explanation: model.Explanation{Explanation: "It works.", Complexity: model.ComplexityLow},
		TokensUsed:  42,
	}, nil
}

func (e *fakeExplainer) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fakeIdentityProvider is a scripted IdentityProvider.
type fakeIdentityProvider struct {
	mu          sync.Mutex
	token       string
	exchangeErr error
	profile     *model.ExternalProfile
	profileErr  error
	emails      []model.ExternalEmail
	emailsErr   error

	exchangeCalls int
	emailCalls    int
}

func (p *fakeIdentityProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchangeCalls++
	if p.exchangeErr != nil {
		return "", p.exchangeErr
	}
	if p.token != "" {
		return p.token, nil
	}
	return "tok-" + code, nil
}

func (p *fakeIdentityProvider) GetUser(ctx context.Context, token string) (*model.ExternalProfile, error) {
	if p.profileErr != nil {
		return nil, p.profileErr
	}
	if p.profile != nil {
		cp := *p.profile
		return &cp, nil
	}
	return &model.ExternalProfile{ID: "583231", Login: "octocat"}, nil
}

func (p *fakeIdentityProvider) ListEmails(ctx context.Context, token string) ([]model.ExternalEmail, error) {
	p.mu.Lock()
	p.emailCalls++
	p.mu.Unlock()
	return p.emails, p.emailsErr
}

// fakeLinkStore mirrors the conditional upsert of the Postgres store under a mutex.
type fakeLinkStore struct {
	mu        sync.Mutex
	links     map[string]*model.IdentityLink
	upsertErr error
	findErr   error
	upserts   int
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{links: make(map[string]*model.IdentityLink)}
}

func (s *fakeLinkStore) UpsertLink(ctx context.Context, in model.LinkUpsert) (*model.IdentityLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}

	key := in.Provider + ":" + in.ExternalID
	now := time.Now().UTC()
	existing, ok := s.links[key]
	if !ok {
		link := &model.IdentityLink{
			ID:           ulid.Make().String(),
			Provider:     in.Provider,
			ExternalID:   in.ExternalID,
			OwnerUserID:  in.OwnerUserID,
			AccessToken:  in.AccessToken,
			Handle:       in.Handle,
			ContactEmail: in.ContactEmail,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.links[key] = link
		cp := *link
		return &cp, nil
	}
	if existing.OwnerUserID != in.OwnerUserID {
		return nil, repository.ErrOwnershipConflict
	}

	existing.AccessToken = in.AccessToken
	existing.Handle = in.Handle
	existing.ContactEmail = in.ContactEmail
	if !now.After(existing.UpdatedAt) {
		now = existing.UpdatedAt.Add(time.Microsecond)
	}
	existing.UpdatedAt = now
	cp := *existing
	return &cp, nil
}

func (s *fakeLinkStore) FindLinkByOwner(ctx context.Context, provider, ownerUserID string) (*model.IdentityLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var best *model.IdentityLink
	for _, l := range s.links {
		if l.Provider == provider && l.OwnerUserID == ownerUserID {
			if best == nil || l.UpdatedAt.After(best.UpdatedAt) {
				best = l
			}
		}
	}
	if best == nil {
		return nil, repository.ErrLinkNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *fakeLinkStore) get(externalID string) *model.IdentityLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[model.ProviderGitHub+":"+externalID]
	if !ok {
		return nil
	}
	cp := *l
	return &cp
}

// fakeUserStore is an in-memory UserStore.
type fakeUserStore struct {
	mu     sync.Mutex
	byID   map[string]*model.User
	stats  model.UserStats
	getErr error
	gets   int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byID: make(map[string]*model.User)}
}

func (s *fakeUserStore) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if equalFoldASCII(u.Email, user.Email) {
			return repository.ErrEmailExists
		}
	}
	cp := *user
	s.byID[user.ID] = &cp
	return nil
}

func (s *fakeUserStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	u, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if equalFoldASCII(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *fakeUserStore) SetUserTier(ctx context.Context, id string, tier model.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Tier = tier
	return nil
}

func (s *fakeUserStore) GetUserStats(ctx context.Context, id string) (*model.UserStats, error) {
	st := s.stats
	return &st, nil
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// fakeUserCache is an in-memory UserCache.
type fakeUserCache struct {
	mu    sync.Mutex
	users map[string]*model.User
	err   error
}

func newFakeUserCache() *fakeUserCache {
	return &fakeUserCache{users: make(map[string]*model.User)}
}

func (c *fakeUserCache) GetSessionUser(ctx context.Context, userID string) (*model.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	u, ok := c.users[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	cp := *u
	return &cp, nil
}

func (c *fakeUserCache) SetSessionUser(ctx context.Context, user *model.User, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *user
	c.users[user.ID] = &cp
	return nil
}

func (c *fakeUserCache) DeleteSessionUser(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	delete(c.users, userID)
	return nil
}

// fakeTokens issues predictable tokens.
type fakeTokens struct{}

func (fakeTokens) Issue(user *model.User) (string, error) {
	if user.ID == "" {
		return "", errors.New("no subject")
	}
	return "token-for-" + user.ID, nil
}

// fakeGitHubAPI is a scripted GitHubAPI.
type fakeGitHubAPI struct {
	mu        sync.Mutex
	repos     []model.Repository
	contents  *model.RepoContents
	issues    []model.Issue
	err       error
	repoCalls int
	lastToken string
}

func (a *fakeGitHubAPI) ListRepos(ctx context.Context, token string) ([]model.Repository, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.repoCalls++
	a.lastToken = token
	return a.repos, a.err
}

func (a *fakeGitHubAPI) GetContents(ctx context.Context, token, owner, repo, path string) (*model.RepoContents, error) {
	a.lastToken = token
	return a.contents, a.err
}

func (a *fakeGitHubAPI) ListIssues(ctx context.Context, token, owner, repo string) ([]model.Issue, error) {
	a.lastToken = token
	return a.issues, a.err
}

// fakeRepoCache is an in-memory RepoCache.
type fakeRepoCache struct {
	mu      sync.Mutex
	entries map[string][]model.Repository
}

func newFakeRepoCache() *fakeRepoCache {
	return &fakeRepoCache{entries: make(map[string][]model.Repository)}
}

func (c *fakeRepoCache) GetRepoList(ctx context.Context, linkID, tokenDigest string) ([]model.Repository, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	repos, ok := c.entries[linkID+":"+tokenDigest]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return repos, nil
}

func (c *fakeRepoCache) SetRepoList(ctx context.Context, linkID, tokenDigest string, repos []model.Repository, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[linkID+":"+tokenDigest] = repos
	return nil
}
