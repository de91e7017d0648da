// Package github is a minimal client for GitHub's OAuth web flow and the
// REST endpoints CodeDuck reads on behalf of a linked account.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeduck/codeduck/internal/model"
	"github.com/codeduck/codeduck/internal/provider"
)

const (
	// DefaultOAuthBaseURL hosts the authorize and token endpoints.
	DefaultOAuthBaseURL = "https://github.com"
	// DefaultAPIBaseURL is the REST API root.
	DefaultAPIBaseURL = "https://api.github.com"

	oauthScope = "repo,user:email"
	apiVersion = "2022-11-28"
	userAgent  = "CodeDuck/1.0"
)

// Config holds the OAuth application credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	OAuthBaseURL string
	APIBaseURL   string
}

// Client talks to GitHub. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a client. Empty base URLs fall back to the public GitHub hosts.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.OAuthBaseURL == "" {
		cfg.OAuthBaseURL = DefaultOAuthBaseURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	cfg.OAuthBaseURL = strings.TrimRight(cfg.OAuthBaseURL, "/")
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if httpClient == nil {
		httpClient = provider.NewHTTPClient()
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// AuthorizeURL returns the page users are sent to for granting access.
func (c *Client) AuthorizeURL() string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("scope", oauthScope)
	return c.cfg.OAuthBaseURL + "/login/oauth/authorize?" + q.Encode()
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	Scope            string `json:"scope"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeCode trades an authorization code for an access token.
//
// GitHub reports a rejected code with status 200 and an error field. That
// case, any non-2xx status and a missing token all wrap provider.ErrAuthFailed.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	body, err := json.Marshal(tokenRequest{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Code:         code,
		RedirectURI:  c.cfg.RedirectURI,
	})
	if err != nil {
		return "", fmt.Errorf("github: marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OAuthBaseURL+"/login/oauth/access_token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("github: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", provider.TransportError(err)
	}
	if err := provider.CheckResponse(resp); err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", provider.ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", provider.ErrMalformedResponse, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s: %s", provider.ErrAuthFailed, out.Error, out.ErrorDescription)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", provider.ErrAuthFailed)
	}

	return out.AccessToken, nil
}

type apiUser struct {
	ID    int64   `json:"id"`
	Login string  `json:"login"`
	Email *string `json:"email"`
}

// GetUser returns the profile of the token's owner.
func (c *Client) GetUser(ctx context.Context, token string) (*model.ExternalProfile, error) {
	var u apiUser
	if err := c.get(ctx, token, "/user", nil, &u); err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("%w: user without id", provider.ErrMalformedResponse)
	}

	profile := &model.ExternalProfile{
		ID:    strconv.FormatInt(u.ID, 10),
		Login: u.Login,
	}
	if u.Email != nil && *u.Email != "" {
		profile.Email = u.Email
	}
	return profile, nil
}

type apiEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// ListEmails returns every address on the token owner's account.
func (c *Client) ListEmails(ctx context.Context, token string) ([]model.ExternalEmail, error) {
	var raw []apiEmail
	if err := c.get(ctx, token, "/user/emails", nil, &raw); err != nil {
		return nil, err
	}

	emails := make([]model.ExternalEmail, len(raw))
	for i, e := range raw {
		emails[i] = model.ExternalEmail{Email: e.Email, Primary: e.Primary, Verified: e.Verified}
	}
	return emails, nil
}

type apiRepo struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Description     *string   `json:"description"`
	Private         bool      `json:"private"`
	Language        *string   `json:"language"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListRepos returns up to 100 repositories of the token owner, most recently
// updated first.
func (c *Client) ListRepos(ctx context.Context, token string) ([]model.Repository, error) {
	q := url.Values{}
	q.Set("sort", "updated")
	q.Set("per_page", "100")

	var raw []apiRepo
	if err := c.get(ctx, token, "/user/repos", q, &raw); err != nil {
		return nil, err
	}

	repos := make([]model.Repository, len(raw))
	for i, r := range raw {
		repos[i] = model.Repository{
			ID:          r.ID,
			Name:        r.Name,
			FullName:    r.FullName,
			Description: r.Description,
			Private:     r.Private,
			Language:    r.Language,
			Stars:       r.StargazersCount,
			Forks:       r.ForksCount,
			UpdatedAt:   r.UpdatedAt,
		}
	}
	return repos, nil
}

type apiContent struct {
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	SHA         string  `json:"sha"`
	Size        int64   `json:"size"`
	Content     string  `json:"content"`
	Encoding    string  `json:"encoding"`
	DownloadURL *string `json:"download_url"`
	HTMLURL     string  `json:"html_url"`
}

func (a apiContent) entry() model.ContentEntry {
	return model.ContentEntry{
		Type:        a.Type,
		Name:        a.Name,
		Path:        a.Path,
		SHA:         a.SHA,
		Size:        a.Size,
		Content:     a.Content,
		Encoding:    a.Encoding,
		DownloadURL: a.DownloadURL,
		HTMLURL:     a.HTMLURL,
	}
}

// GetContents returns a directory listing or a single file. An empty path
// means the repository root.
func (c *Client) GetContents(ctx context.Context, token, owner, repo, path string) (*model.RepoContents, error) {
	endpoint := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/contents"
	if p := escapePath(path); p != "" {
		endpoint += "/" + p
	}

	var raw json.RawMessage
	if err := c.get(ctx, token, endpoint, nil, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []apiContent
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%w: decode directory: %v", provider.ErrMalformedResponse, err)
		}
		entries := make([]model.ContentEntry, len(list))
		for i, item := range list {
			entries[i] = item.entry()
			entries[i].Content = ""
			entries[i].Encoding = ""
		}
		return &model.RepoContents{Entries: entries}, nil
	}

	var file apiContent
	if err := json.Unmarshal(trimmed, &file); err != nil {
		return nil, fmt.Errorf("%w: decode file: %v", provider.ErrMalformedResponse, err)
	}
	entry := file.entry()
	return &model.RepoContents{File: &entry}, nil
}

type apiIssue struct {
	ID     int64   `json:"id"`
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Body   *string `json:"body"`
	State  string  `json:"state"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Assignee *struct {
		Login string `json:"login"`
	} `json:"assignee"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListIssues returns the open issues of a repository, most recently updated
// first.
func (c *Client) ListIssues(ctx context.Context, token, owner, repo string) ([]model.Issue, error) {
	q := url.Values{}
	q.Set("state", "open")
	q.Set("sort", "updated")

	var raw []apiIssue
	endpoint := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/issues"
	if err := c.get(ctx, token, endpoint, q, &raw); err != nil {
		return nil, err
	}

	issues := make([]model.Issue, len(raw))
	for i, r := range raw {
		labels := make([]string, len(r.Labels))
		for j, l := range r.Labels {
			labels[j] = l.Name
		}

		issue := model.Issue{
			ID:        r.ID,
			Number:    r.Number,
			Title:     r.Title,
			Body:      r.Body,
			State:     r.State,
			Labels:    labels,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		}
		if r.Assignee != nil {
			login := r.Assignee.Login
			issue.Assignee = &login
		}
		issues[i] = issue
	}
	return issues, nil
}

// get performs an authenticated REST call and decodes the JSON answer into out.
func (c *Client) get(ctx context.Context, token, endpoint string, query url.Values, out any) error {
	u := c.cfg.APIBaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("github: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.TransportError(err)
	}
	if err := provider.CheckResponse(resp); err != nil {
		return fmt.Errorf("github: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", provider.ErrMalformedResponse, endpoint, err)
	}
	return nil
}

// escapePath escapes each segment of a slash-separated repository path and
// drops empty and dot segments.
func escapePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		out = append(out, url.PathEscape(p))
	}
	return strings.Join(out, "/")
}
