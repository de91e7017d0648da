package dto

import "github.com/codeduck/codeduck/internal/model"

// AuthURLResponse is returned by GET /api/github/auth.
type AuthURLResponse struct {
	URL string `json:"url"`
}

// LinkResponse is returned by a successful GitHub callback.
type LinkResponse struct {
	Success       bool                  `json:"success"`
	GitHubAccount *model.LinkDescriptor `json:"githubAccount"`
}

// ReposResponse is returned by GET /api/github/repos.
type ReposResponse struct {
	Repos []model.Repository `json:"repos"`
}

// ContentsResponse wraps a directory listing or a single file.
type ContentsResponse struct {
	Data any `json:"data"`
}

// IssuesResponse is returned by GET /api/github/repos/{owner}/{repo}/issues.
type IssuesResponse struct {
	Issues []model.Issue `json:"issues"`
}

// ToContentsResponse unwraps directory entries or the single file.
func ToContentsResponse(c *model.RepoContents) ContentsResponse {
	if c.IsDir() {
		entries := c.Entries
		if entries == nil {
			entries = []model.ContentEntry{}
		}
		return ContentsResponse{Data: entries}
	}
	return ContentsResponse{Data: c.File}
}
