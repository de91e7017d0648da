package model

import "time"

// Repository is a GitHub repository summary.
type Repository struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"fullName"`
	Description *string   `json:"description"`
	Private     bool      `json:"private"`
	Language    *string   `json:"language"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ContentEntry is a file or directory inside a repository.
// Content is only populated when a single file is requested.
type ContentEntry struct {
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	SHA         string  `json:"sha"`
	Size        int64   `json:"size"`
	Content     string  `json:"content,omitempty"`
	Encoding    string  `json:"encoding,omitempty"`
	DownloadURL *string `json:"downloadUrl"`
	HTMLURL     string  `json:"htmlUrl"`
}

// RepoContents is either a directory listing or a single file.
type RepoContents struct {
	Entries []ContentEntry `json:"entries,omitempty"`
	File    *ContentEntry  `json:"file,omitempty"`
}

// IsDir reports whether the contents describe a directory.
func (c *RepoContents) IsDir() bool {
	return c.File == nil
}

// Issue is an open GitHub issue summary.
type Issue struct {
	ID        int64     `json:"id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      *string   `json:"body"`
	State     string    `json:"state"`
	Labels    []string  `json:"labels"`
	Assignee  *string   `json:"assignee"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
