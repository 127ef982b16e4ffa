// Package gitlab provides client and data types for the GitLab REST API.
//
// This package covers the calls the migration makes against the target
// project: project and member discovery, issue creation and updates,
// notes and file uploads. Every mutating call takes an explicit actingAs
// username, sent as the Sudo header on that request only.
package gitlab

import (
	"time"

	"github.com/jira2gitlab/j2g/internal/types"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitLab API v4 endpoint suffix.
	DefaultAPIEndpoint = "/api/v4"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxPageSize is the maximum number of items to fetch per page.
	MaxPageSize = 100

	// MaxPages is the maximum number of pages to fetch before stopping.
	// This prevents infinite loops from malformed X-Next-Page headers.
	MaxPages = 1000
)

// AuthMode selects how the token is presented.
type AuthMode string

const (
	AuthPrivateToken AuthMode = "private-token"
	AuthOAuth        AuthMode = "oauth"
)

// Issue represents an issue from the GitLab API.
type Issue struct {
	ID          int        `json:"id"`  // Global issue ID
	IID         int        `json:"iid"` // Project-scoped issue ID
	ProjectID   int        `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	State       string     `json:"state"` // "opened", "closed", "reopened"
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
	Labels      []string   `json:"labels"`
	Assignees   []User     `json:"assignees,omitempty"`
	Author      *User      `json:"author,omitempty"`
	WebURL      string     `json:"web_url"`
}

// User represents a GitLab user.
type User struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	State       string `json:"state,omitempty"` // "active", "blocked", etc.
	AccessLevel int    `json:"access_level,omitempty"`
}

// Member converts a user listing entry to a roster member.
func (u User) Member() types.Member {
	return types.Member{ID: u.ID, Username: u.Username, Name: u.Name, State: u.State}
}

// Project represents a GitLab project.
type Project struct {
	ID                int           `json:"id"`
	Name              string        `json:"name"`
	Path              string        `json:"path"`
	PathWithNamespace string        `json:"path_with_namespace"`
	WebURL            string        `json:"web_url"`
	Namespace         *Namespace    `json:"namespace,omitempty"`
	SharedWithGroups  []SharedGroup `json:"shared_with_groups,omitempty"`
}

// Namespace represents a GitLab namespace (group or user).
type Namespace struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Kind     string `json:"kind"` // "user" or "group"
	FullPath string `json:"full_path"`
}

// SharedGroup is a group the project has been shared with.
type SharedGroup struct {
	GroupID       int    `json:"group_id"`
	GroupName     string `json:"group_name"`
	GroupFullPath string `json:"group_full_path"`
}

// MemberGroups returns the groups whose members can act on the project:
// the owning namespace when it is a group, then shared groups.
func (p *Project) MemberGroups(includeNamespace, includeShared bool) []string {
	var groups []string
	seen := map[string]bool{}
	add := func(g string) {
		if g != "" && !seen[g] {
			seen[g] = true
			groups = append(groups, g)
		}
	}
	if includeNamespace && p.Namespace != nil && p.Namespace.Kind == "group" {
		add(p.Namespace.FullPath)
	}
	if includeShared {
		for _, sg := range p.SharedWithGroups {
			add(sg.GroupFullPath)
		}
	}
	return groups
}

// Note is a comment on an issue.
type Note struct {
	ID     int    `json:"id"`
	Body   string `json:"body"`
	Author *User  `json:"author,omitempty"`
	System bool   `json:"system"`
}

// Upload is the result of uploading a file to a project.
type Upload struct {
	Alt      string `json:"alt"`
	URL      string `json:"url"`
	FullPath string `json:"full_path"`
	Markdown string `json:"markdown"`
}
