package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jira2gitlab/j2g/internal/gitlab"
	"github.com/jira2gitlab/j2g/internal/jira"
	"github.com/jira2gitlab/j2g/internal/mapping"
	"github.com/jira2gitlab/j2g/internal/types"
)

// Example returns a starter configuration with every section filled in.
func Example() *Config {
	return &Config{
		Simulation: true,
		Jira: JiraConfig{
			Host:             "jira.example.com",
			Protocol:         "https",
			Username:         "migration-bot",
			Password:         "",
			ProjectKey:       "PROJ",
			StrictSSL:        true,
			APIVersion:       jira.DefaultAPIVersion,
			CorrelationField: "jira2gitlab",
		},
		GitLab: GitLabConfig{
			URL:                     "https://gitlab.example.com",
			AuthMode:                gitlab.AuthPrivateToken,
			Namespace:               "team",
			ProjectName:             "project",
			IncludeNamespaceMembers: true,
			IncludeSharedGroups:     true,
		},
		IssueMapping: []types.MappingRule{
			{Source: "fields.summary", Target: "title"},
			{Source: "fields.description", Target: "description"},
			{Source: "fields.labels", Target: mapping.MacroAsLabel},
			{Source: "fields.components", Target: mapping.MacroAsLabel, Field: "name", Prefix: "component::"},
			{Source: "fields.priority", Target: mapping.MacroAsLabel, Field: "name", Prefix: "priority::", Ignore: []string{"^Medium$"}},
		},
		UserMapping: []types.UserMapping{
			{SourceIdentity: "jane.doe@example.com", TargetUsername: "jdoe"},
		},
		General: GeneralConfig{
			Worklog:       true,
			EstimatedTime: true,
			Backlink:      true,
			Comments:      true,
			Attachments:   true,
			Correlation:   true,
			PageSize:      50,
		},
		Filter: FilterConfig{
			DateField: "fields.created",
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Save writes cfg to path as YAML, creating parent directories.
// Secrets are written as-is; callers decide whether to blank them first.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
