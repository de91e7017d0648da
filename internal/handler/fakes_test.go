package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codeduck/codeduck/internal/auth"
	"github.com/codeduck/codeduck/internal/model"
	"github.com/codeduck/codeduck/internal/service"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

// newRequest builds a request, optionally signed in as userID.
func newRequest(method, target, body, userID string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req = req.WithContext(auth.ContextWithSession(req.Context(), &model.Session{UserID: userID}))
	}
	return req
}

type fakeAccounts struct {
	users       map[string]*model.User
	stats       model.UserStats
	registerErr error
	loginErr    error
	lastInput   service.RegisterInput
}

func (f *fakeAccounts) Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error) {
	f.lastInput = in
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &service.AuthResult{User: &model.User{ID: "new", Email: in.Email, Tier: model.TierFree}, Token: "tok"}, nil
}

func (f *fakeAccounts) Login(ctx context.Context, email, password string) (*service.AuthResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &service.AuthResult{User: &model.User{ID: "u1", Email: email, Tier: model.TierFree}, Token: "tok"}, nil
}

func (f *fakeAccounts) GetUser(ctx context.Context, userID string) (*model.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, service.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeAccounts) Profile(ctx context.Context, userID string) (*model.User, *model.UserStats, error) {
	u, err := f.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	st := f.stats
	return u, &st, nil
}

type fakeExplain struct {
	lastReq service.ExplainRequest
	resp    *service.ExplainResponse
	err     error
	history []*model.UsageRecord
}

func (f *fakeExplain) Explain(ctx context.Context, req service.ExplainRequest) (*service.ExplainResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

func (f *fakeExplain) Usage(ctx context.Context, userID string, tier model.Tier) (*service.UsageSummary, error) {
	limit := 15
	if tier == model.TierPro {
		limit = 200
	}
	return &service.UsageSummary{Tier: tier, DailyLimit: limit, RequestsToday: 3, RemainingRequests: limit - 3}, nil
}

func (f *fakeExplain) History(ctx context.Context, userID string) ([]*model.UsageRecord, error) {
	return f.history, f.err
}

type fakeLinker struct {
	lastUser string
	lastCode string
	desc     *model.LinkDescriptor
	err      error
}

func (f *fakeLinker) Link(ctx context.Context, userID, code string) (*model.LinkDescriptor, error) {
	f.lastUser, f.lastCode = userID, code
	return f.desc, f.err
}

type fakeGitHub struct {
	repos    []model.Repository
	contents *model.RepoContents
	issues   []model.Issue
	err      error
	lastPath string
}

func (f *fakeGitHub) ListRepos(ctx context.Context, userID string) ([]model.Repository, error) {
	return f.repos, f.err
}

func (f *fakeGitHub) GetContents(ctx context.Context, userID, owner, repo, path string) (*model.RepoContents, error) {
	f.lastPath = owner + "/" + repo + ":" + path
	return f.contents, f.err
}

func (f *fakeGitHub) ListIssues(ctx context.Context, userID, owner, repo string) ([]model.Issue, error) {
	return f.issues, f.err
}

type staticURL string

func (s staticURL) AuthorizeURL() string { return string(s) }
