// Package config loads and validates the migration configuration.
//
// Configuration comes from a YAML, JSON or TOML file read through viper.
// Any scalar key can be overridden from the environment with the J2G_ prefix
// and dots replaced by underscores (J2G_JIRA_PASSWORD, J2G_GITLAB_TOKEN,
// J2G_SIMULATION...). A .env file in the working directory is loaded first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jira2gitlab/j2g/internal/gitlab"
	"github.com/jira2gitlab/j2g/internal/jira"
	"github.com/jira2gitlab/j2g/internal/mapping"
	"github.com/jira2gitlab/j2g/internal/timeparsing"
	"github.com/jira2gitlab/j2g/internal/types"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "J2G"

// DefaultFileName is the config file searched for when no path is given.
const DefaultFileName = "j2g"

// Config is the full migration configuration.
type Config struct {
	Simulation   bool                `mapstructure:"simulation" yaml:"simulation"`
	Jira         JiraConfig          `mapstructure:"jira" yaml:"jira"`
	GitLab       GitLabConfig        `mapstructure:"gitlab" yaml:"gitlab"`
	IssueMapping []types.MappingRule `mapstructure:"issueMapping" yaml:"issueMapping"`
	UserMapping  []types.UserMapping `mapstructure:"userMapping" yaml:"userMapping"`
	General      GeneralConfig       `mapstructure:"general" yaml:"general"`
	Filter       FilterConfig        `mapstructure:"filter" yaml:"filter"`
	Attachments  AttachmentConfig    `mapstructure:"attachments" yaml:"attachments"`
	HTTP         HTTPConfig          `mapstructure:"http" yaml:"http"`
	Log          LogConfig           `mapstructure:"log" yaml:"log"`
	Telemetry    TelemetryConfig     `mapstructure:"telemetry" yaml:"telemetry"`

	// Actions holds IssueMapping compiled by Load.
	Actions []mapping.Action `mapstructure:"-" yaml:"-"`
	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// JiraConfig describes the source instance.
type JiraConfig struct {
	Host             string `mapstructure:"host" yaml:"host"`
	Protocol         string `mapstructure:"protocol" yaml:"protocol"`
	Username         string `mapstructure:"username" yaml:"username"`
	Password         string `mapstructure:"password" yaml:"password"`
	ProjectKey       string `mapstructure:"projectKey" yaml:"projectKey"`
	StrictSSL        bool   `mapstructure:"strictSSL" yaml:"strictSSL"`
	JQL              string `mapstructure:"jql" yaml:"jql,omitempty"`
	APIVersion       string `mapstructure:"apiVersion" yaml:"apiVersion"`
	CorrelationField string `mapstructure:"correlationField" yaml:"correlationField"`
}

// BaseURL is the normalized instance URL used for API calls and backlinks.
func (j JiraConfig) BaseURL() string {
	return jira.BaseURL(j.Protocol, j.Host)
}

// GitLabConfig describes the target instance and project.
type GitLabConfig struct {
	URL                     string          `mapstructure:"url" yaml:"url"`
	Token                   string          `mapstructure:"token" yaml:"token"`
	AuthMode                gitlab.AuthMode `mapstructure:"authMode" yaml:"authMode"`
	Namespace               string          `mapstructure:"namespace" yaml:"namespace"`
	ProjectName             string          `mapstructure:"projectName" yaml:"projectName"`
	IncludeNamespaceMembers bool            `mapstructure:"includeNamespaceMembers" yaml:"includeNamespaceMembers"`
	IncludeSharedGroups     bool            `mapstructure:"includeSharedGroups" yaml:"includeSharedGroups"`
}

// ProjectPath is the namespaced path of the target project.
func (g GitLabConfig) ProjectPath() string {
	return strings.Trim(g.Namespace, "/") + "/" + g.ProjectName
}

// GeneralConfig holds the per-feature toggles.
type GeneralConfig struct {
	Worklog          bool `mapstructure:"worklog" yaml:"worklog"`
	EstimatedTime    bool `mapstructure:"estimatedTime" yaml:"estimatedTime"`
	Backlink         bool `mapstructure:"backlink" yaml:"backlink"`
	AsOriginalAuthor bool `mapstructure:"asOriginalAuthor" yaml:"asOriginalAuthor"`
	Comments         bool `mapstructure:"comments" yaml:"comments"`
	Attachments      bool `mapstructure:"attachments" yaml:"attachments"`
	Correlation      bool `mapstructure:"correlation" yaml:"correlation"`
	PageSize         int  `mapstructure:"pageSize" yaml:"pageSize"`
}

// FilterConfig decides which source issues take part in the run.
type FilterConfig struct {
	ExcludeClosed bool `mapstructure:"excludeClosed" yaml:"excludeClosed"`
	// ExcludeBefore is a date ("2024-01-31"), a compact duration ("-6m") or
	// a natural language expression ("6 months ago").
	ExcludeBefore string `mapstructure:"excludeBefore" yaml:"excludeBefore,omitempty"`
	DateField     string `mapstructure:"dateField" yaml:"dateField"`
}

// Threshold resolves ExcludeBefore relative to now. ok is false when unset.
func (f FilterConfig) Threshold(now time.Time) (t time.Time, ok bool, err error) {
	expr := strings.TrimSpace(f.ExcludeBefore)
	if expr == "" {
		return time.Time{}, false, nil
	}
	t, err = timeparsing.ParseRelativeTime(expr, now)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("filter.excludeBefore: %w", err)
	}
	return t, true, nil
}

// AttachmentConfig bounds attachment transfers.
type AttachmentConfig struct {
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxBytes int64         `mapstructure:"maxBytes" yaml:"maxBytes"`
}

// HTTPConfig applies to every API call.
type HTTPConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"maxRetries" yaml:"maxRetries"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TelemetryConfig controls the OpenTelemetry exporters. An empty endpoint
// falls back to the standard OTEL_EXPORTER_OTLP_* variables.
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Stdout   bool   `mapstructure:"stdout" yaml:"stdout"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"simulation": false,

		"jira.host":             "",
		"jira.protocol":         "https",
		"jira.username":         "",
		"jira.password":         "",
		"jira.projectKey":       "",
		"jira.strictSSL":        true,
		"jira.jql":              "",
		"jira.apiVersion":       jira.DefaultAPIVersion,
		"jira.correlationField": "jira2gitlab",

		"gitlab.url":                     "",
		"gitlab.token":                   "",
		"gitlab.authMode":                string(gitlab.AuthPrivateToken),
		"gitlab.namespace":               "",
		"gitlab.projectName":             "",
		"gitlab.includeNamespaceMembers": true,
		"gitlab.includeSharedGroups":     true,

		"general.worklog":          false,
		"general.estimatedTime":    false,
		"general.backlink":         false,
		"general.asOriginalAuthor": false,
		"general.comments":         false,
		"general.attachments":      false,
		"general.correlation":      true,
		"general.pageSize":         50,

		"filter.excludeClosed": false,
		"filter.excludeBefore": "",
		"filter.dateField":     "fields.created",

		"attachments.timeout":  time.Duration(0),
		"attachments.maxBytes": 0,

		"http.timeout":    30 * time.Second,
		"http.maxRetries": 0,

		"log.level":  "info",
		"log.format": "text",

		"telemetry.enabled":  false,
		"telemetry.stdout":   false,
		"telemetry.endpoint": "",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads the config file at path (or searches ./j2g.{yaml,yml,json,toml}
// and $HOME/.config/j2g when path is empty), applies env overrides,
// validates it and compiles the issue mapping.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFileName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "j2g"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	actions, err := mapping.Compile(cfg.IssueMapping)
	if err != nil {
		return nil, fmt.Errorf("invalid issueMapping: %w", err)
	}
	cfg.Actions = actions
	return &cfg, nil
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var errs []error
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	require("jira.host", c.Jira.Host)
	require("jira.password", c.Jira.Password)
	require("jira.projectKey", c.Jira.ProjectKey)
	require("gitlab.url", c.GitLab.URL)
	require("gitlab.token", c.GitLab.Token)
	require("gitlab.namespace", c.GitLab.Namespace)
	require("gitlab.projectName", c.GitLab.ProjectName)
	if c.General.Correlation {
		require("jira.correlationField", c.Jira.CorrelationField)
	}

	switch strings.ToLower(c.Jira.Protocol) {
	case "", "http", "https":
	default:
		errs = append(errs, fmt.Errorf("jira.protocol %q must be http or https", c.Jira.Protocol))
	}
	switch c.GitLab.AuthMode {
	case "", gitlab.AuthPrivateToken, gitlab.AuthOAuth:
	default:
		errs = append(errs, fmt.Errorf("gitlab.authMode %q must be %s or %s", c.GitLab.AuthMode, gitlab.AuthPrivateToken, gitlab.AuthOAuth))
	}
	if c.General.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("general.pageSize must be positive, got %d", c.General.PageSize))
	}
	if c.HTTP.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("http.maxRetries must not be negative, got %d", c.HTTP.MaxRetries))
	}
	if c.Attachments.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("attachments.maxBytes must not be negative, got %d", c.Attachments.MaxBytes))
	}
	if _, _, err := c.Filter.Threshold(time.Now()); err != nil {
		errs = append(errs, err)
	}
	for i, m := range c.UserMapping {
		if m.SourceIdentity == "" || m.TargetUsername == "" {
			errs = append(errs, fmt.Errorf("userMapping[%d]: jiraMail and gitlabUsername are required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
