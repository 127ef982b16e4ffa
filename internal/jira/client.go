// Package jira is a Jira REST API v2 client covering what the migration needs:
// custom field discovery and creation, paginated JQL search, issue reads,
// issue field updates and attachment downloads.
package jira

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jira2gitlab/j2g/internal/httpx"
	"github.com/jira2gitlab/j2g/internal/types"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultAPIVersion is the REST API version used when none is configured.
const DefaultAPIVersion = "2"

// CustomFieldTextType is the schema type of the correlation field.
const CustomFieldTextType = "com.atlassian.jira.plugin.system.customfieldtypes:textfield"

// Field describes a Jira field as returned by /rest/api/2/field.
type Field struct {
	ID     string `json:"id"`
	Key    string `json:"key,omitempty"`
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
}

// CustomFieldSpec is the payload for creating a custom field.
type CustomFieldSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// SearchResult is one page of a JQL search.
type SearchResult struct {
	StartAt    int                 `json:"startAt"`
	MaxResults int                 `json:"maxResults"`
	Total      int                 `json:"total"`
	Issues     []types.SourceIssue `json:"issues"`
}

// Client provides HTTP access to a Jira instance.
type Client struct {
	URL        string
	Username   string
	APIToken   string
	APIVersion string
	HTTPClient *http.Client
	MaxRetries int
	Logger     *slog.Logger
}

// NewClient creates a new Jira client.
func NewClient(url, username, apiToken string) *Client {
	return &Client{
		URL:        strings.TrimSuffix(url, "/"),
		Username:   username,
		APIToken:   apiToken,
		APIVersion: DefaultAPIVersion,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.HTTPClient = hc
	return c
}

// WithoutTimeout returns a copy of the client whose HTTP client has no
// overall request timeout. Callers bound requests through the context.
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

// WithInsecureTLS disables certificate verification (jira.strictSSL=false).
func (c *Client) WithInsecureTLS() *Client {
	timeout := DefaultTimeout
	if c.HTTPClient != nil {
		timeout = c.HTTPClient.Timeout
	}
	c.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in via config
		},
	}
	return c
}

func (c *Client) apiURL(path string) string {
	version := c.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	return c.URL + "/rest/api/" + version + path
}

// ListFields returns all system and custom fields.
func (c *Client) ListFields(ctx context.Context) ([]Field, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.apiURL("/field"), nil)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	var fields []Field
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("parse fields response: %w", err)
	}
	return fields, nil
}

// CreateCustomField creates a custom field and returns its definition.
func (c *Client) CreateCustomField(ctx context.Context, spec CustomFieldSpec) (*Field, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal field spec: %w", err)
	}
	body, err := c.doRequest(ctx, http.MethodPost, c.apiURL("/field"), data)
	if err != nil {
		return nil, fmt.Errorf("create custom field %s: %w", spec.Name, err)
	}
	var field Field
	if err := json.Unmarshal(body, &field); err != nil {
		return nil, fmt.Errorf("parse create field response: %w", err)
	}
	return &field, nil
}

// AddFieldToDefaultScreen puts a field on the default screen so it can be edited.
func (c *Client) AddFieldToDefaultScreen(ctx context.Context, fieldID string) error {
	apiURL := c.apiURL("/screens/addToDefault/" + url.PathEscape(fieldID))
	if _, err := c.doRequest(ctx, http.MethodPost, apiURL, nil); err != nil {
		return fmt.Errorf("add field %s to default screen: %w", fieldID, err)
	}
	return nil
}

// SearchIssues returns one page of issues matching jql.
func (c *Client) SearchIssues(ctx context.Context, jql string, startAt, maxResults int) (*SearchResult, error) {
	params := url.Values{
		"jql":        {jql},
		"startAt":    {strconv.Itoa(startAt)},
		"maxResults": {strconv.Itoa(maxResults)},
		"fields":     {"*all"},
	}
	body, err := c.doRequest(ctx, http.MethodGet, c.apiURL("/search?"+params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}
	var result SearchResult
	if err := decode(body, &result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return &result, nil
}

// GetIssue fetches one issue with all fields, comments included.
func (c *Client) GetIssue(ctx context.Context, idOrKey string) (types.SourceIssue, error) {
	apiURL := c.apiURL("/issue/" + url.PathEscape(idOrKey) + "?fields=*all")
	body, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", idOrKey, err)
	}
	var issue types.SourceIssue
	if err := decode(body, &issue); err != nil {
		return nil, fmt.Errorf("parse issue response: %w", err)
	}
	return issue, nil
}

// UpdateIssue sets fields on an existing issue.
func (c *Client) UpdateIssue(ctx context.Context, idOrKey string, fields map[string]any) error {
	data, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return fmt.Errorf("marshal update request: %w", err)
	}
	if _, err := c.doRequest(ctx, http.MethodPut, c.apiURL("/issue/"+url.PathEscape(idOrKey)), data); err != nil {
		return fmt.Errorf("update issue %s: %w", idOrKey, err)
	}
	return nil
}

// Download fetches an attachment's content. contentURL is the absolute
// "content" link of the attachment.
func (c *Client) Download(ctx context.Context, contentURL string) ([]byte, error) {
	body, err := c.doRequest(ctx, http.MethodGet, contentURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", contentURL, err)
	}
	return body, nil
}

// doRequest executes an authenticated HTTP request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body []byte) ([]byte, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("jira URL not configured")
	}
	if c.APIToken == "" {
		return nil, fmt.Errorf("jira password or API token not configured")
	}

	r := &httpx.Requester{
		Service:    "jira",
		HTTPClient: c.HTTPClient,
		MaxRetries: c.MaxRetries,
		Logger:     c.Logger,
	}
	resp, err := r.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return nil, err
		}
		c.setAuth(req)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "j2g/1.0")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	// PUT returns 204 No Content on success
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	return resp.Body, nil
}

// setAuth uses Basic auth when a username is configured, otherwise a bearer token.
func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.APIToken))
		req.Header.Set("Authorization", "Basic "+auth)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
}

// decode preserves numbers as json.Number so ids and durations survive intact.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
