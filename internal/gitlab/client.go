package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/jira2gitlab/j2g/internal/httpx"
	"github.com/jira2gitlab/j2g/internal/types"
)

// Client provides methods to interact with the GitLab REST API.
type Client struct {
	Token      string       // GitLab personal access token or OAuth token
	BaseURL    string       // GitLab instance URL (e.g., "https://gitlab.com")
	AuthMode   AuthMode     // defaults to AuthPrivateToken
	HTTPClient *http.Client // Optional custom HTTP client
	MaxRetries int          // retries on HTTP 429 only
	Logger     *slog.Logger
}

// NewClient creates a new GitLab client.
func NewClient(token, baseURL string) *Client {
	return &Client{
		Token:    token,
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		AuthMode: AuthPrivateToken,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns the client with a custom HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.HTTPClient = hc
	return c
}

// WithoutTimeout returns a copy of the client whose HTTP client has no
// overall request timeout. Authentication is kept; callers bound requests
// through the context.
func (c *Client) WithoutTimeout() *Client {
	cp := *c
	hc := http.Client{}
	if c.HTTPClient != nil {
		hc = *c.HTTPClient
	}
	hc.Timeout = 0
	cp.HTTPClient = &hc
	return &cp
}

// WithOAuth switches to OAuth bearer authentication. The base transport is
// taken from ctx (see oauth2.HTTPClient); the request timeout is kept.
func (c *Client) WithOAuth(ctx context.Context) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.Token, TokenType: "Bearer"})
	hc := oauth2.NewClient(ctx, src)
	if c.HTTPClient != nil {
		hc.Timeout = c.HTTPClient.Timeout
	}
	c.HTTPClient = hc
	c.AuthMode = AuthOAuth
	return c
}

// buildURL constructs the full API URL for a path like "/projects/1/issues".
func (c *Client) buildURL(path string, params map[string]string) string {
	base := c.BaseURL
	if !strings.HasSuffix(base, DefaultAPIEndpoint) {
		base += DefaultAPIEndpoint
	}
	u := base + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}
	return u
}

// GetProject looks a project up by its namespaced path (e.g. "group/project").
func (c *Client) GetProject(ctx context.Context, path string) (*Project, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/projects/"+url.PathEscape(path), nil), nil, "", "")
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", path, err)
	}
	var p Project
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return nil, fmt.Errorf("parse project response: %w", err)
	}
	return &p, nil
}

// ListProjectMembers returns the direct members of a project.
func (c *Client) ListProjectMembers(ctx context.Context, projectID int) ([]types.Member, error) {
	members, err := c.listMembers(ctx, "/projects/"+strconv.Itoa(projectID)+"/members")
	if err != nil {
		return nil, fmt.Errorf("list members of project %d: %w", projectID, err)
	}
	return members, nil
}

// ListGroupMembers returns the members of a group given its id or full path.
func (c *Client) ListGroupMembers(ctx context.Context, group string) ([]types.Member, error) {
	members, err := c.listMembers(ctx, "/groups/"+url.PathEscape(group)+"/members")
	if err != nil {
		return nil, fmt.Errorf("list members of group %s: %w", group, err)
	}
	return members, nil
}

func (c *Client) listMembers(ctx context.Context, path string) ([]types.Member, error) {
	var out []types.Member
	page := 1
	for i := 0; i < MaxPages; i++ {
		params := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		resp, err := c.doRequest(ctx, http.MethodGet, c.buildURL(path, params), nil, "", "")
		if err != nil {
			return nil, err
		}
		var users []User
		if err := json.Unmarshal(resp.Body, &users); err != nil {
			return nil, fmt.Errorf("parse members response: %w", err)
		}
		for _, u := range users {
			out = append(out, u.Member())
		}

		next := resp.Header.Get("X-Next-Page")
		if next == "" {
			return out, nil
		}
		n, err := strconv.Atoi(next)
		if err != nil || n <= page {
			return out, nil
		}
		page = n
	}
	return out, nil
}

// CreateIssue creates an issue from a field map (title, description, labels, assignee_ids...).
func (c *Client) CreateIssue(ctx context.Context, projectID int, fields map[string]any, actingAs string) (*Issue, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal issue: %w", err)
	}
	path := "/projects/" + strconv.Itoa(projectID) + "/issues"
	resp, err := c.doRequest(ctx, http.MethodPost, c.buildURL(path, nil), data, "application/json", actingAs)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return parseIssue(resp.Body)
}

// UpdateIssue updates the issue with project-scoped id iid.
func (c *Client) UpdateIssue(ctx context.Context, projectID, iid int, fields map[string]any, actingAs string) (*Issue, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal issue: %w", err)
	}
	path := fmt.Sprintf("/projects/%d/issues/%d", projectID, iid)
	resp, err := c.doRequest(ctx, http.MethodPut, c.buildURL(path, nil), data, "application/json", actingAs)
	if err != nil {
		return nil, fmt.Errorf("update issue #%d: %w", iid, err)
	}
	return parseIssue(resp.Body)
}

// CloseIssue moves an issue to the closed state.
func (c *Client) CloseIssue(ctx context.Context, projectID, iid int, actingAs string) error {
	if _, err := c.UpdateIssue(ctx, projectID, iid, map[string]any{"state_event": "close"}, actingAs); err != nil {
		return fmt.Errorf("close issue #%d: %w", iid, err)
	}
	return nil
}

// AddNote posts a note on an issue.
func (c *Client) AddNote(ctx context.Context, projectID, iid int, body, actingAs string) (*Note, error) {
	data, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return nil, fmt.Errorf("marshal note: %w", err)
	}
	path := fmt.Sprintf("/projects/%d/issues/%d/notes", projectID, iid)
	resp, err := c.doRequest(ctx, http.MethodPost, c.buildURL(path, nil), data, "application/json", actingAs)
	if err != nil {
		return nil, fmt.Errorf("add note to issue #%d: %w", iid, err)
	}
	var n Note
	if err := json.Unmarshal(resp.Body, &n); err != nil {
		return nil, fmt.Errorf("parse note response: %w", err)
	}
	return &n, nil
}

// UploadFile stores a file in the project's uploads area.
func (c *Client) UploadFile(ctx context.Context, projectID int, filename string, content []byte) (*Upload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	path := "/projects/" + strconv.Itoa(projectID) + "/uploads"
	resp, err := c.doRequest(ctx, http.MethodPost, c.buildURL(path, nil), buf.Bytes(), mw.FormDataContentType(), "")
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	var up Upload
	if err := json.Unmarshal(resp.Body, &up); err != nil {
		return nil, fmt.Errorf("parse upload response: %w", err)
	}
	return &up, nil
}

func parseIssue(body []byte) (*Issue, error) {
	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("parse issue response: %w", err)
	}
	return &issue, nil
}

// doRequest sends an authenticated request. A non-empty actingAs is sent as
// the Sudo header for this request only.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body []byte, contentType, actingAs string) (*httpx.Response, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("gitlab URL not configured")
	}
	if c.Token == "" {
		return nil, fmt.Errorf("gitlab token not configured")
	}

	r := &httpx.Requester{
		Service:    "gitlab",
		HTTPClient: c.HTTPClient,
		MaxRetries: c.MaxRetries,
		Logger:     c.Logger,
	}
	return r.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return nil, err
		}
		if c.AuthMode != AuthOAuth {
			req.Header.Set("PRIVATE-TOKEN", c.Token)
		}
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if actingAs != "" {
			req.Header.Set("Sudo", actingAs)
		}
		return req, nil
	})
}
