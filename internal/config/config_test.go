package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jira2gitlab/j2g/internal/gitlab"
	"github.com/jira2gitlab/j2g/internal/mapping"
)

const minimalYAML = `
jira:
  host: jira.example.com/
  password: secret
  projectKey: PROJ
gitlab:
  url: https://gitlab.example.com
  token: glpat-x
  namespace: team
  projectName: app
userMapping:
  - jiraMail: ann@example.com
    gitlabUsername: ann
issueMapping:
  - jira: fields.summary
    gitlab: title
  - jira: fields.labels
    gitlab: $asLabel
    prefix: "jira::"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "j2g.yaml", minimalYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.False(t, cfg.Simulation)
	assert.Equal(t, "https://jira.example.com", cfg.Jira.BaseURL())
	assert.True(t, cfg.Jira.StrictSSL)
	assert.Equal(t, "2", cfg.Jira.APIVersion)
	assert.Equal(t, "jira2gitlab", cfg.Jira.CorrelationField)
	assert.Equal(t, gitlab.AuthPrivateToken, cfg.GitLab.AuthMode)
	assert.Equal(t, "team/app", cfg.GitLab.ProjectPath())
	assert.True(t, cfg.GitLab.IncludeNamespaceMembers)
	assert.True(t, cfg.General.Correlation)
	assert.Equal(t, 50, cfg.General.PageSize)
	assert.Equal(t, "fields.created", cfg.Filter.DateField)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Zero(t, cfg.Attachments.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)

	require.Len(t, cfg.Actions, 2)
	assert.Equal(t, mapping.DirectAssign{From: "fields.summary", Key: "title"}, cfg.Actions[0])
	label, ok := cfg.Actions[1].(mapping.AsLabel)
	require.True(t, ok)
	assert.Equal(t, "jira::", label.Prefix)

	require.Len(t, cfg.UserMapping, 1)
	assert.Equal(t, "ann", cfg.UserMapping[0].TargetUsername)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "j2g.yaml", minimalYAML)
	t.Setenv("J2G_GITLAB_TOKEN", "from-env")
	t.Setenv("J2G_SIMULATION", "true")
	t.Setenv("J2G_GENERAL_PAGESIZE", "20")
	t.Setenv("J2G_TELEMETRY_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.GitLab.Token)
	assert.True(t, cfg.Simulation)
	assert.Equal(t, 20, cfg.General.PageSize)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "J2G_JIRA_PASSWORD=dotenv-secret\n")
	path := writeFile(t, dir, "j2g.yaml", minimalYAML)
	t.Setenv("J2G_JIRA_PASSWORD", "")
	require.NoError(t, os.Unsetenv("J2G_JIRA_PASSWORD"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-secret", cfg.Jira.Password)
}

func TestLoadSearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "j2g.toml", `
[jira]
host = "jira.local"
protocol = "http"
password = "p"
projectKey = "K"

[gitlab]
url = "https://gitlab.local"
token = "t"
namespace = "ns"
projectName = "p"

[attachments]
timeout = "2m"
maxBytes = 1048576
`)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://jira.local", cfg.Jira.BaseURL())
	assert.Equal(t, 2*time.Minute, cfg.Attachments.Timeout)
	assert.Equal(t, int64(1048576), cfg.Attachments.MaxBytes)
	assert.Empty(t, cfg.Actions)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr []string
	}{
		{
			name:    "missing required keys",
			content: "jira:\n  host: x\n",
			wantErr: []string{"jira.password is required", "gitlab.url is required", "gitlab.token is required"},
		},
		{
			name:    "unknown macro",
			content: minimalYAML + "  - jira: fields.x\n    gitlab: $asMilestone\n",
			wantErr: []string{"invalid issueMapping", "$asMilestone"},
		},
		{
			name:    "bad ignore pattern",
			content: minimalYAML + "  - jira: fields.x\n    gitlab: $asLabel\n    ignore: ['(']\n",
			wantErr: []string{"invalid issueMapping"},
		},
		{
			name:    "non-positive page size",
			content: minimalYAML + "general:\n  pageSize: 0\n",
			wantErr: []string{"general.pageSize must be positive"},
		},
		{
			name:    "bad excludeBefore",
			content: minimalYAML + "filter:\n  excludeBefore: flurbo\n",
			wantErr: []string{"filter.excludeBefore"},
		},
		{
			name:    "bad auth mode",
			content: strings.Replace(minimalYAML, "namespace: team", "namespace: team\n  authMode: basic", 1),
			wantErr: []string{"gitlab.authMode"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			_, err := Load(writeFile(t, dir, "j2g.yaml", tt.content))
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.ErrorContains(t, err, want)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.yaml")
	assert.ErrorContains(t, err, "failed to read config")
}

func TestFilterThreshold(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	_, ok, err := FilterConfig{}.Threshold(now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err := FilterConfig{ExcludeBefore: "2024-01-31"}.Threshold(now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2024, got.Year())
	assert.Equal(t, time.January, got.Month())

	got, ok, err = FilterConfig{ExcludeBefore: "-7d"}.Threshold(now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, now.AddDate(0, 0, -7), got)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	example := Example()
	example.Jira.Password = "p"
	example.GitLab.Token = "t"

	path := filepath.Join(dir, "nested", "j2g.yaml")
	require.NoError(t, Save(path, example))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, example.IssueMapping, cfg.IssueMapping)
	assert.Equal(t, example.General, cfg.General)
	assert.Equal(t, example.HTTP, cfg.HTTP)
	assert.Len(t, cfg.Actions, len(example.IssueMapping))
}
