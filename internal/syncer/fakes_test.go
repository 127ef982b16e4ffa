package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jira2gitlab/j2g/internal/attachment"
	"github.com/jira2gitlab/j2g/internal/gitlab"
	"github.com/jira2gitlab/j2g/internal/httpx"
	"github.com/jira2gitlab/j2g/internal/jira"
	"github.com/jira2gitlab/j2g/internal/logging"
	"github.com/jira2gitlab/j2g/internal/types"
)

const corrField = "customfield_10042"

// issue decodes a source issue the way the Jira client does.
func issue(t *testing.T, id, key, fields string) types.SourceIssue {
	t.Helper()
	raw := fmt.Sprintf(`{"id": %q, "key": %q, "fields": {%s}}`, id, key, fields)
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var out types.SourceIssue
	require.NoError(t, dec.Decode(&out))
	return out
}

type fieldUpdate struct {
	id     string
	fields map[string]any
}

type fakeSource struct {
	fields      []jira.Field
	fieldsErr   error
	issues      []types.SourceIssue
	total       int // defaults to len(issues)
	full        map[string]types.SourceIssue
	searchErrAt map[int]error
	// maxResultsCap mimics the server-side maxResults limit.
	maxResultsCap int

	searches      []int
	jql           string
	createdFields []jira.CustomFieldSpec
	screened      []string
	updates       []fieldUpdate
}

func (f *fakeSource) ListFields(context.Context) ([]jira.Field, error) {
	return f.fields, f.fieldsErr
}

func (f *fakeSource) CreateCustomField(_ context.Context, spec jira.CustomFieldSpec) (*jira.Field, error) {
	f.createdFields = append(f.createdFields, spec)
	return &jira.Field{ID: "customfield_99999", Name: spec.Name, Custom: true}, nil
}

func (f *fakeSource) AddFieldToDefaultScreen(_ context.Context, id string) error {
	f.screened = append(f.screened, id)
	return nil
}

func (f *fakeSource) SearchIssues(_ context.Context, jql string, startAt, maxResults int) (*jira.SearchResult, error) {
	f.searches = append(f.searches, startAt)
	f.jql = jql
	if err := f.searchErrAt[startAt]; err != nil {
		return nil, err
	}
	if f.maxResultsCap > 0 && maxResults > f.maxResultsCap {
		maxResults = f.maxResultsCap
	}
	total := f.total
	if total == 0 {
		total = len(f.issues)
	}
	end := min(startAt+maxResults, len(f.issues))
	var page []types.SourceIssue
	if startAt < end {
		page = f.issues[startAt:end]
	}
	return &jira.SearchResult{StartAt: startAt, MaxResults: maxResults, Total: total, Issues: page}, nil
}

func (f *fakeSource) GetIssue(_ context.Context, id string) (types.SourceIssue, error) {
	if full, ok := f.full[id]; ok {
		return full, nil
	}
	return nil, &httpx.APIError{Service: "jira", StatusCode: 404}
}

func (f *fakeSource) UpdateIssue(_ context.Context, id string, fields map[string]any) error {
	f.updates = append(f.updates, fieldUpdate{id, fields})
	return nil
}

type issueCall struct {
	iid      int
	fields   map[string]any
	actingAs string
}

type noteCall struct {
	iid      int
	body     string
	actingAs string
}

type fakeTarget struct {
	project      *gitlab.Project
	projectErr   error
	members      []types.Member
	groupMembers map[string][]types.Member
	updateErr    map[int]error
	createErr    map[string]error // by title
	onCreate     func()

	nextIID int
	creates []issueCall
	updates []issueCall
	notes   []noteCall
	closes  []int
}

func newTarget() *fakeTarget {
	return &fakeTarget{
		project: &gitlab.Project{ID: 77, PathWithNamespace: "team/app"},
		members: []types.Member{
			{ID: 1, Username: "ann"},
			{ID: 2, Username: "bob"},
		},
		nextIID: 100,
	}
}

func (f *fakeTarget) GetProject(context.Context, string) (*gitlab.Project, error) {
	if f.projectErr != nil {
		return nil, f.projectErr
	}
	return f.project, nil
}

func (f *fakeTarget) ListProjectMembers(context.Context, int) ([]types.Member, error) {
	return f.members, nil
}

func (f *fakeTarget) ListGroupMembers(_ context.Context, group string) ([]types.Member, error) {
	if m, ok := f.groupMembers[group]; ok {
		return m, nil
	}
	return nil, errors.New("group not found")
}

func (f *fakeTarget) CreateIssue(_ context.Context, projectID int, fields map[string]any, actingAs string) (*gitlab.Issue, error) {
	if f.onCreate != nil {
		f.onCreate()
	}
	title, _ := fields["title"].(string)
	if err := f.createErr[title]; err != nil {
		return nil, err
	}
	f.nextIID++
	f.creates = append(f.creates, issueCall{f.nextIID, fields, actingAs})
	return &gitlab.Issue{ID: 5000 + f.nextIID, IID: f.nextIID, ProjectID: projectID, State: "opened"}, nil
}

func (f *fakeTarget) UpdateIssue(_ context.Context, projectID, iid int, fields map[string]any, actingAs string) (*gitlab.Issue, error) {
	if err := f.updateErr[iid]; err != nil {
		return nil, err
	}
	f.updates = append(f.updates, issueCall{iid, fields, actingAs})
	return &gitlab.Issue{IID: iid, ProjectID: projectID}, nil
}

func (f *fakeTarget) CloseIssue(_ context.Context, _ int, iid int, _ string) error {
	f.closes = append(f.closes, iid)
	return nil
}

func (f *fakeTarget) AddNote(_ context.Context, _ int, iid int, body, actingAs string) (*gitlab.Note, error) {
	f.notes = append(f.notes, noteCall{iid, body, actingAs})
	return &gitlab.Note{ID: len(f.notes), Body: body}, nil
}

func (f *fakeTarget) mutations() int {
	return len(f.creates) + len(f.updates) + len(f.notes) + len(f.closes)
}

// fakeBlobs stores every attachment under /uploads/<name>.
type fakeBlobs struct {
	stored []string
}

func (f *fakeBlobs) Fetch(_ context.Context, ref types.Attachment) ([]byte, error) {
	return []byte(ref.Filename), nil
}

func (f *fakeBlobs) Store(_ context.Context, _ int, _ []byte, filename string) (attachment.Stored, error) {
	f.stored = append(f.stored, filename)
	return attachment.Stored{Name: filename, Markdown: "![" + filename + "](/uploads/" + filename + ")"}, nil
}

func newTestLogger(w io.Writer) *slog.Logger {
	return logging.New(w, logging.Options{Level: slog.LevelDebug, Format: logging.FormatText})
}
