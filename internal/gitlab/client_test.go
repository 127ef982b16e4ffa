package gitlab

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jira2gitlab/j2g/internal/httpx"
)

// TestNewClient verifies the constructor creates a properly configured client.
func TestNewClient(t *testing.T) {
	client := NewClient("test-token", "https://gitlab.example.com/")

	assert.Equal(t, "test-token", client.Token)
	assert.Equal(t, "https://gitlab.example.com", client.BaseURL)
	assert.Equal(t, AuthPrivateToken, client.AuthMode)
	require.NotNil(t, client.HTTPClient)

	custom := &http.Client{Timeout: 60 * time.Second}
	assert.Same(t, custom, client.WithHTTPClient(custom).HTTPClient)
}

// TestBuildURL verifies URL construction for API endpoints.
func TestBuildURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		path    string
		params  map[string]string
		wantURL string
	}{
		{"issues endpoint", "https://gitlab.example.com", "/projects/123/issues", nil, "https://gitlab.example.com/api/v4/projects/123/issues"},
		{"base already has endpoint", "https://gitlab.example.com/api/v4", "/projects/1", nil, "https://gitlab.example.com/api/v4/projects/1"},
		{"with query params", "https://gitlab.example.com", "/groups/g/members", map[string]string{"page": "2", "per_page": "100"}, "https://gitlab.example.com/api/v4/groups/g/members?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewClient("token", tt.base).buildURL(tt.path, tt.params)
			assert.True(t, strings.HasPrefix(got, tt.wantURL), "buildURL = %q", got)
			for k, v := range tt.params {
				assert.Contains(t, got, k+"="+v)
			}
		})
	}
}

func TestGetProjectEncodesPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/projects/team%2Fapp", r.URL.EscapedPath())
		assert.Equal(t, "test-token", r.Header.Get("PRIVATE-TOKEN"))
		assert.Empty(t, r.Header.Get("Sudo"))
		_, _ = io.WriteString(w, `{"id": 77, "path_with_namespace": "team/app",
			"namespace": {"id": 5, "kind": "group", "full_path": "team"},
			"shared_with_groups": [{"group_id": 8, "group_full_path": "qa"}, {"group_id": 5, "group_full_path": "team"}]}`)
	}))
	defer server.Close()

	p, err := NewClient("test-token", server.URL).GetProject(context.Background(), "team/app")
	require.NoError(t, err)
	assert.Equal(t, 77, p.ID)
	assert.Equal(t, []string{"team", "qa"}, p.MemberGroups(true, true))
	assert.Equal(t, []string{"qa", "team"}, p.MemberGroups(false, true))
	assert.Empty(t, p.MemberGroups(false, false))
}

func TestGetProjectNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"404 Project Not Found"}`)
	}))
	defer server.Close()

	_, err := NewClient("t", server.URL).GetProject(context.Background(), "nope/nope")
	require.Error(t, err)
	assert.True(t, httpx.IsNotFound(err))
	assert.Contains(t, err.Error(), "get project nope/nope")
}

func TestListMembersPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/groups/team/members", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		switch r.URL.Query().Get("page") {
		case "1":
			w.Header().Set("X-Next-Page", "2")
			_, _ = io.WriteString(w, `[{"id":1,"username":"ann"}]`)
		case "2":
			w.Header().Set("X-Next-Page", "")
			_, _ = io.WriteString(w, `[{"id":2,"username":"bob","state":"active"}]`)
		default:
			t.Errorf("unexpected page %s", r.URL.Query().Get("page"))
		}
	}))
	defer server.Close()

	members, err := NewClient("t", server.URL).ListGroupMembers(context.Background(), "team")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "bob", members[1].Username)
	assert.Equal(t, "active", members[1].State)
}

func TestListProjectMembers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/projects/77/members", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":1,"username":"ann","name":"Ann"}]`)
	}))
	defer server.Close()

	members, err := NewClient("t", server.URL).ListProjectMembers(context.Background(), 77)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "Ann", members[0].Name)
}

func TestMutationsCarryActingAs(t *testing.T) {
	type seen struct {
		method, path, sudo string
		body               map[string]any
	}
	var calls []seen
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, seen{r.Method, r.URL.Path, r.Header.Get("Sudo"), body})
		switch {
		case strings.HasSuffix(r.URL.Path, "/notes"):
			_, _ = io.WriteString(w, `{"id": 900, "body": "x"}`)
		default:
			_, _ = io.WriteString(w, `{"id": 5000, "iid": 12, "project_id": 77, "state": "opened"}`)
		}
	}))
	defer server.Close()

	c := NewClient("t", server.URL)
	ctx := context.Background()

	issue, err := c.CreateIssue(ctx, 77, map[string]any{"title": "T", "labels": "a,b"}, "ann")
	require.NoError(t, err)
	assert.Equal(t, 12, issue.IID)

	_, err = c.UpdateIssue(ctx, 77, 12, map[string]any{"title": "T2"}, "")
	require.NoError(t, err)

	note, err := c.AddNote(ctx, 77, 12, "hello", "bob")
	require.NoError(t, err)
	assert.Equal(t, 900, note.ID)

	require.NoError(t, c.CloseIssue(ctx, 77, 12, ""))

	require.Len(t, calls, 4)
	assert.Equal(t, seen{http.MethodPost, "/api/v4/projects/77/issues", "ann", map[string]any{"title": "T", "labels": "a,b"}}, calls[0])
	assert.Equal(t, "", calls[1].sudo, "impersonation must not leak into later calls")
	assert.Equal(t, http.MethodPut, calls[1].method)
	assert.Equal(t, "/api/v4/projects/77/issues/12/notes", calls[2].path)
	assert.Equal(t, "bob", calls[2].sudo)
	assert.Equal(t, map[string]any{"state_event": "close"}, calls[3].body)
	assert.Equal(t, "", calls[3].sudo)
}

func TestUploadFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/projects/77/uploads", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "shot.png", header.Filename)
		assert.Equal(t, "PNG", string(data))
		_, _ = io.WriteString(w, `{"alt":"shot","url":"/uploads/abc/shot.png","markdown":"![shot](/uploads/abc/shot.png)"}`)
	}))
	defer server.Close()

	up, err := NewClient("t", server.URL).UploadFile(context.Background(), 77, "shot.png", []byte("PNG"))
	require.NoError(t, err)
	assert.Equal(t, "![shot](/uploads/abc/shot.png)", up.Markdown)
}

func TestOAuthMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer oauth-token", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("PRIVATE-TOKEN"))
		_, _ = io.WriteString(w, `{"id": 1}`)
	}))
	defer server.Close()

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, server.Client())
	c := NewClient("oauth-token", server.URL).WithOAuth(ctx)
	assert.Equal(t, AuthOAuth, c.AuthMode)
	assert.Equal(t, DefaultTimeout, c.HTTPClient.Timeout)

	_, err := c.GetProject(context.Background(), "a/b")
	require.NoError(t, err)
}

func TestWithoutTimeoutKeepsOAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer oauth-token", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"id": 1}`)
	}))
	defer server.Close()

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, server.Client())
	c := NewClient("oauth-token", server.URL).WithOAuth(ctx)
	cp := c.WithoutTimeout()

	assert.Zero(t, cp.HTTPClient.Timeout)
	assert.Equal(t, DefaultTimeout, c.HTTPClient.Timeout)
	assert.Equal(t, AuthOAuth, cp.AuthMode)
	_, err := cp.GetProject(context.Background(), "a/b")
	require.NoError(t, err)
}

// TestErrorHandling verifies error responses are properly reported.
func TestErrorHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "401 Unauthorized"}`))
	}))
	defer server.Close()

	_, err := NewClient("bad-token", server.URL).CreateIssue(context.Background(), 1, map[string]any{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = NewClient("", server.URL).GetProject(context.Background(), "a/b")
	assert.ErrorContains(t, err, "token not configured")
}
