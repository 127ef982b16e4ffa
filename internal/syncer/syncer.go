// Package syncer drives a migration run: it pages through the source
// project, decides per issue whether to create or update the linked target
// issue, and applies the post-create annotations.
//
// Pages and issues are processed strictly one after another. Impersonation
// is passed explicitly on every mutating call, so no client state is shared
// between steps.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jira2gitlab/j2g/internal/attachment"
	"github.com/jira2gitlab/j2g/internal/config"
	"github.com/jira2gitlab/j2g/internal/gitlab"
	"github.com/jira2gitlab/j2g/internal/identity"
	"github.com/jira2gitlab/j2g/internal/jira"
	"github.com/jira2gitlab/j2g/internal/logging"
	"github.com/jira2gitlab/j2g/internal/mapping"
	"github.com/jira2gitlab/j2g/internal/report"
	"github.com/jira2gitlab/j2g/internal/telemetry"
	"github.com/jira2gitlab/j2g/internal/types"
)

// Source is the tracker issues are migrated from.
type Source interface {
	ListFields(ctx context.Context) ([]jira.Field, error)
	CreateCustomField(ctx context.Context, spec jira.CustomFieldSpec) (*jira.Field, error)
	AddFieldToDefaultScreen(ctx context.Context, fieldID string) error
	SearchIssues(ctx context.Context, jql string, startAt, maxResults int) (*jira.SearchResult, error)
	GetIssue(ctx context.Context, idOrKey string) (types.SourceIssue, error)
	UpdateIssue(ctx context.Context, idOrKey string, fields map[string]any) error
}

// Target is the tracker issues are migrated to. A non-empty actingAs makes
// that single call on behalf of the named user.
type Target interface {
	identity.MemberLister
	GetProject(ctx context.Context, path string) (*gitlab.Project, error)
	CreateIssue(ctx context.Context, projectID int, fields map[string]any, actingAs string) (*gitlab.Issue, error)
	UpdateIssue(ctx context.Context, projectID, iid int, fields map[string]any, actingAs string) (*gitlab.Issue, error)
	CloseIssue(ctx context.Context, projectID, iid int, actingAs string) error
	AddNote(ctx context.Context, projectID, iid int, body, actingAs string) (*gitlab.Note, error)
}

// DefaultPageSize is used when Options.PageSize is not positive.
const DefaultPageSize = 50

// CorrelationFieldDescription is set on the custom field when it is created.
const CorrelationFieldDescription = "Custom field for keeping track of already synced issues"

// Options controls one run.
type Options struct {
	Simulation bool

	ProjectKey string
	// JQL is and-ed with the project clause.
	JQL     string
	BaseURL string

	ProjectPath             string
	IncludeNamespaceMembers bool
	IncludeSharedGroups     bool

	Actions     []mapping.Action
	UserMapping []types.UserMapping

	Worklog          bool
	EstimatedTime    bool
	Backlink         bool
	AsOriginalAuthor bool
	Comments         bool
	Attachments      bool
	Correlation      bool
	CorrelationField string

	PageSize int

	ExcludeClosed bool
	// ExcludeBefore is disabled when zero.
	ExcludeBefore time.Time
	DateField     string

	Attachment attachment.Options
}

// OptionsFromConfig converts a loaded configuration. Relative excludeBefore
// expressions are resolved against now.
func OptionsFromConfig(cfg *config.Config, now time.Time) (Options, error) {
	threshold, _, err := cfg.Filter.Threshold(now)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Simulation:              cfg.Simulation,
		ProjectKey:              cfg.Jira.ProjectKey,
		JQL:                     cfg.Jira.JQL,
		BaseURL:                 cfg.Jira.BaseURL(),
		ProjectPath:             cfg.GitLab.ProjectPath(),
		IncludeNamespaceMembers: cfg.GitLab.IncludeNamespaceMembers,
		IncludeSharedGroups:     cfg.GitLab.IncludeSharedGroups,
		Actions:                 cfg.Actions,
		UserMapping:             cfg.UserMapping,
		Worklog:                 cfg.General.Worklog,
		EstimatedTime:           cfg.General.EstimatedTime,
		Backlink:                cfg.General.Backlink,
		AsOriginalAuthor:        cfg.General.AsOriginalAuthor,
		Comments:                cfg.General.Comments,
		Attachments:             cfg.General.Attachments,
		Correlation:             cfg.General.Correlation,
		CorrelationField:        cfg.Jira.CorrelationField,
		PageSize:                cfg.General.PageSize,
		ExcludeClosed:           cfg.Filter.ExcludeClosed,
		ExcludeBefore:           threshold,
		DateField:               cfg.Filter.DateField,
		Attachment: attachment.Options{
			Timeout:  cfg.Attachments.Timeout,
			MaxBytes: cfg.Attachments.MaxBytes,
		},
	}, nil
}

// Stats summarizes a run.
type Stats struct {
	Fetched     int `json:"fetched" yaml:"fetched"`
	Filtered    int `json:"filtered" yaml:"filtered"`
	Created     int `json:"created" yaml:"created"`
	Updated     int `json:"updated" yaml:"updated"`
	Errors      int `json:"errors" yaml:"errors"`
	Notes       int `json:"notes" yaml:"notes"`
	Attachments int `json:"attachments" yaml:"attachments"`
}

// Syncer runs a migration from a Source to a Target.
type Syncer struct {
	source    Source
	target    Target
	transport attachment.BlobTransport
	opts      Options
	logger    *slog.Logger
	report    *report.Report
	inst      *telemetry.SyncInstruments

	// OnPreview receives the rewritten description of every migrated issue.
	OnPreview func(key, markdown string)
}

// New creates a syncer. transport moves attachments in live runs; simulated
// runs always use attachment.DryRunTransport.
func New(source Source, target Target, transport attachment.BlobTransport, opts Options, logger *slog.Logger) *Syncer {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.DateField == "" {
		opts.DateField = "fields.created"
	}
	if opts.Simulation || transport == nil {
		transport = attachment.DryRunTransport{}
	}
	return &Syncer{
		source:    source,
		target:    target,
		transport: transport,
		opts:      opts,
		logger:    logging.OrDiscard(logger),
		inst:      telemetry.NewSyncInstruments(),
	}
}

// WithReport records planned and executed actions in r.
func (s *Syncer) WithReport(r *report.Report) *Syncer {
	s.report = r
	return s
}

// run holds what is resolved once before the issue loop.
type run struct {
	project   *gitlab.Project
	fieldID   string
	mapper    *identity.Mapper
	engine    *mapping.Engine
	relocator *attachment.Relocator
}

// Query returns the JQL used to page through the source project.
func (s *Syncer) Query() string {
	jql := "project=" + s.opts.ProjectKey
	if s.opts.JQL != "" {
		jql += " AND (" + s.opts.JQL + ")"
	}
	return jql
}

// Run migrates every issue of the source project. Setup failures and search
// failures are returned; per-issue failures are logged and counted.
func (s *Syncer) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if s.opts.Simulation {
		s.logger.Info("running in simulation mode, nothing will be written")
	}

	fieldID, err := s.ensureCorrelationField(ctx)
	if err != nil {
		return stats, err
	}

	s.logger.Info("resolving target project", slog.String("project", s.opts.ProjectPath))
	project, err := s.target.GetProject(ctx, s.opts.ProjectPath)
	if err != nil {
		return stats, fmt.Errorf("could not find target project %s: %w", s.opts.ProjectPath, err)
	}

	groups := project.MemberGroups(s.opts.IncludeNamespaceMembers, s.opts.IncludeSharedGroups)
	roster, err := identity.BuildRoster(ctx, s.target, project.ID, groups, s.logger)
	if err != nil {
		return stats, err
	}
	s.logger.Info("loaded member roster", slog.Int("members", roster.Len()), slog.Int("groups", len(groups)))

	r := &run{
		project:   project,
		fieldID:   fieldID,
		mapper:    identity.NewMapper(s.opts.UserMapping, roster),
		engine:    mapping.NewEngine(s.logger),
		relocator: attachment.NewRelocator(s.transport, project.ID, s.opts.Attachment, s.logger),
	}

	jql := s.Query()
	total := -1
	step := s.opts.PageSize
	for startAt := 0; total < 0 || startAt < total; startAt += step {
		if err := ctx.Err(); err != nil {
			return stats, s.interrupted(stats, err)
		}
		s.logger.Info("querying source", slog.Int("startAt", startAt), slog.Int("pageSize", step))
		page, err := s.source.SearchIssues(ctx, jql, startAt, step)
		if err != nil {
			return stats, fmt.Errorf("search issues at %d: %w", startAt, err)
		}
		if total < 0 {
			total = page.Total
			s.logger.Info("source query matched", slog.Int("total", total))
		}
		// Jira caps maxResults server side; follow the page size it applied.
		if page.MaxResults > 0 && page.MaxResults < step {
			s.logger.Warn("source capped the page size",
				slog.Int("requested", step),
				slog.Int("applied", page.MaxResults))
			step = page.MaxResults
		}
		for _, issue := range page.Issues {
			if err := ctx.Err(); err != nil {
				return stats, s.interrupted(stats, err)
			}
			stats.Fetched++
			s.syncIssue(ctx, r, issue, &stats)
		}
	}

	s.logger.Info("migration finished",
		slog.Int("fetched", stats.Fetched),
		slog.Int("filtered", stats.Filtered),
		slog.Int("created", stats.Created),
		slog.Int("updated", stats.Updated),
		slog.Int("errors", stats.Errors),
		slog.Int("notes", stats.Notes),
		slog.Int("attachments", stats.Attachments),
	)
	return stats, nil
}

func (s *Syncer) interrupted(stats Stats, err error) error {
	s.logger.Warn("migration interrupted", slog.Int("processed", stats.Fetched))
	return fmt.Errorf("interrupted after %d issues: %w", stats.Fetched, err)
}

// ensureCorrelationField returns the id of the correlation custom field,
// creating it when missing. It returns "" when correlation is disabled, or when
// the field does not exist yet in a simulated run.
func (s *Syncer) ensureCorrelationField(ctx context.Context) (string, error) {
	if !s.opts.Correlation {
		return "", nil
	}
	name := s.opts.CorrelationField
	fields, err := s.source.ListFields(ctx)
	if err != nil {
		return "", fmt.Errorf("discover correlation field %s: %w", name, err)
	}
	for _, f := range fields {
		if f.Name == name {
			s.logger.Debug("found correlation field", slog.String("field", f.ID))
			return f.ID, nil
		}
	}

	if s.opts.Simulation {
		s.logger.Info("[simulation] would create custom field", slog.String("name", name))
		return "", nil
	}

	s.logger.Info("creating custom field", slog.String("name", name))
	field, err := s.source.CreateCustomField(ctx, jira.CustomFieldSpec{
		Name:        name,
		Description: CorrelationFieldDescription,
		Type:        jira.CustomFieldTextType,
	})
	if err != nil {
		return "", fmt.Errorf("create correlation field: %w", err)
	}
	if err := s.source.AddFieldToDefaultScreen(ctx, field.ID); err != nil {
		s.logger.Warn("correlation field is not on the default screen", slog.String("field", field.ID), slog.Any("error", err))
	}
	return field.ID, nil
}
