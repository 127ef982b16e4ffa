package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jira2gitlab/j2g/internal/logging"
	"github.com/jira2gitlab/j2g/internal/types"
)

func issueFromJSON(t *testing.T, raw string) types.SourceIssue {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var issue types.SourceIssue
	require.NoError(t, dec.Decode(&issue))
	return issue
}

const fixture = `{
	"key": "PROJ-9",
	"fields": {
		"summary": "Crash on save",
		"description": "Stack trace attached",
		"priority": {"name": "High"},
		"labels": ["backend", "null", "wontfix-later"],
		"components": [{"name": "api"}, {"name": "storage"}],
		"fixVersions": [],
		"issuetype": {"name": "Bug"},
		"storyPoints": 5,
		"environment": null
	}
}`

func mustCompile(t *testing.T, rules ...types.MappingRule) []Action {
	t.Helper()
	actions, err := Compile(rules)
	require.NoError(t, err)
	return actions
}

func TestCompile(t *testing.T) {
	actions := mustCompile(t,
		types.MappingRule{Source: "fields.summary", Target: "title"},
		types.MappingRule{Source: "fields.labels", Target: "$asLabel", Ignore: []string{"^wontfix"}, Prefix: "jira::"},
	)
	require.Len(t, actions, 2)

	direct, ok := actions[0].(DirectAssign)
	require.True(t, ok)
	assert.Equal(t, "title", direct.Key)

	label, ok := actions[1].(AsLabel)
	require.True(t, ok)
	assert.Equal(t, "jira::", label.Prefix)
	require.Len(t, label.Ignore, 1)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		rule    types.MappingRule
		wantErr error
	}{
		{"unknown macro", types.MappingRule{Source: "fields.summary", Target: "$asMilestone"}, ErrUnknownMacro},
		{"bad pattern", types.MappingRule{Source: "fields.labels", Target: "$asLabel", Ignore: []string{"(unclosed"}}, nil},
		{"missing source", types.MappingRule{Target: "title"}, nil},
		{"missing target", types.MappingRule{Source: "fields.summary"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]types.MappingRule{tt.rule})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
		})
	}
}

func TestApplyDirectAssign(t *testing.T) {
	issue := issueFromJSON(t, fixture)
	draft := NewEngine(nil).Apply(issue, mustCompile(t,
		types.MappingRule{Source: "fields.summary", Target: "title"},
		types.MappingRule{Source: "fields.description", Target: "description"},
		types.MappingRule{Source: "fields.storyPoints", Target: "weight"},
		types.MappingRule{Source: "fields.environment", Target: "environment"},
	))

	assert.Equal(t, []string{"title", "description", "weight", "environment"}, draft.Keys())
	assert.Equal(t, "Crash on save", draft.String("title"))
	weight, _ := draft.Get("weight")
	assert.Equal(t, json.Number("5"), weight, "values are assigned without coercion")
	env, ok := draft.Get("environment")
	assert.True(t, ok)
	assert.Nil(t, env)
}

func TestApplySkipsMissingSource(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, logging.Options{Format: logging.FormatText})

	issue := issueFromJSON(t, fixture)
	draft := NewEngine(logger).Apply(issue, mustCompile(t,
		types.MappingRule{Source: "fields.duedate", Target: "due_date"},
		types.MappingRule{Source: "fields.summary", Target: "title"},
	))

	assert.Equal(t, []string{"title"}, draft.Keys())
	assert.Contains(t, buf.String(), "source field does not exist")
	assert.Contains(t, buf.String(), "fields.duedate")
}

func TestApplyLabels(t *testing.T) {
	issue := issueFromJSON(t, fixture)

	tests := []struct {
		name  string
		rules []types.MappingRule
		want  string
		unset bool
	}{
		{
			name:  "scalar wrapped",
			rules: []types.MappingRule{{Source: "fields.issuetype.name", Target: MacroAsLabel}},
			want:  "Bug",
		},
		{
			name:  "scalar list drops null strings",
			rules: []types.MappingRule{{Source: "fields.labels", Target: MacroAsLabel}},
			want:  "backend,wontfix-later",
		},
		{
			name:  "object list projected",
			rules: []types.MappingRule{{Source: "fields.components", Target: MacroAsLabel, Field: "name"}},
			want:  "api,storage",
		},
		{
			name:  "object list without field contributes nothing",
			rules: []types.MappingRule{{Source: "fields.components", Target: MacroAsLabel}},
			unset: true,
		},
		{
			name:  "object list with absent field contributes nothing",
			rules: []types.MappingRule{{Source: "fields.components", Target: MacroAsLabel, Field: "id"}},
			unset: true,
		},
		{
			name:  "ignore and prefix",
			rules: []types.MappingRule{{Source: "fields.labels", Target: MacroAsLabel, Ignore: []string{"^wontfix", "^zzz"}, Prefix: "jira-"}},
			want:  "jira-backend",
		},
		{
			name: "rules concatenate in order without dedup",
			rules: []types.MappingRule{
				{Source: "fields.priority.name", Target: MacroAsLabel, Prefix: "prio::"},
				{Source: "fields.components", Target: MacroAsLabel, Field: "name"},
				{Source: "fields.components", Target: MacroAsLabel, Field: "name"},
			},
			want: "prio::High,api,storage,api,storage",
		},
		{
			name:  "empty list",
			rules: []types.MappingRule{{Source: "fields.fixVersions", Target: MacroAsLabel}},
			unset: true,
		},
		{
			name:  "null value",
			rules: []types.MappingRule{{Source: "fields.environment", Target: MacroAsLabel}},
			unset: true,
		},
		{
			name:  "numbers rendered as text",
			rules: []types.MappingRule{{Source: "fields.storyPoints", Target: MacroAsLabel, Prefix: "sp-"}},
			want:  "sp-5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := NewEngine(nil).Apply(issue, mustCompile(t, tt.rules...))
			got, ok := draft.Get("labels")
			if tt.unset {
				assert.False(t, ok, "labels = %v", got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyLabelsAppendsToDirectLabels(t *testing.T) {
	issue := issueFromJSON(t, fixture)
	draft := NewEngine(nil).Apply(issue, mustCompile(t,
		types.MappingRule{Source: "fields.issuetype.name", Target: "labels"},
		types.MappingRule{Source: "fields.priority.name", Target: MacroAsLabel},
	))
	assert.Equal(t, "Bug,High", draft.String("labels"))
}

func TestApplyLabelsTracesDrops(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, logging.Options{Level: logging.LevelTrace})

	issue := issueFromJSON(t, fixture)
	NewEngine(logger).Apply(issue, mustCompile(t,
		types.MappingRule{Source: "fields.labels", Target: MacroAsLabel, Ignore: []string{"^wontfix"}},
	))
	assert.Contains(t, buf.String(), "ignoring label")
	assert.Contains(t, buf.String(), "wontfix-later")
}

func TestFilterLabels(t *testing.T) {
	patterns := []*regexp.Regexp{regexp.MustCompile("^tmp"), regexp.MustCompile("Draft")}

	tests := []struct {
		name   string
		labels []string
		want   []string
	}{
		{"no matches", []string{"a", "b"}, []string{"a", "b"}},
		{"adjacent matches", []string{"tmp1", "tmp2", "keep"}, []string{"keep"}},
		{"case sensitive", []string{"draft", "Draft"}, []string{"draft"}},
		{"all removed", []string{"tmp", "Draft"}, []string{}},
		{"empty", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]string(nil), tt.labels...)
			got := FilterLabels(in, patterns)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.labels, in, "input must not be modified")
		})
	}
}

func TestFilterLabelsNoPatterns(t *testing.T) {
	assert.Equal(t, []string{"x"}, FilterLabels([]string{"x"}, nil))
}
