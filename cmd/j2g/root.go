package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jira2gitlab/j2g/internal/config"
	"github.com/jira2gitlab/j2g/internal/gitlab"
	"github.com/jira2gitlab/j2g/internal/jira"
	"github.com/jira2gitlab/j2g/internal/logging"
	"github.com/jira2gitlab/j2g/internal/ui"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	verbose    bool
	quiet      bool
	logFormat  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "j2g",
		Short: "Migrate Jira issues into a GitLab project",
		Long: `j2g copies the issues of a Jira project into a GitLab project.

Fields are mapped by the issueMapping rules of the config file, users by
userMapping. Already migrated issues are remembered in a Jira custom field,
so running j2g again updates the linked GitLab issues instead of creating
duplicates. Use --simulate to see what a run would do.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.ConfigureColor()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default ./j2g.yaml or ~/.config/j2g/j2g.yaml)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "only log warnings and errors")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: text or json (overrides log.format)")
	root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	root.AddCommand(
		newMigrateCmd(flags),
		newCheckCmd(flags),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and builds the logger it asks for, with the
// command line flags taking precedence.
func (f *globalFlags) load(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case f.verbose:
		level = slog.LevelDebug
	case f.quiet:
		level = slog.LevelWarn
	}

	formatName := cfg.Log.Format
	if f.logFormat != "" {
		formatName = f.logFormat
	}
	format, err := logging.ParseFormat(formatName)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.New(stderr, logging.Options{Level: level, Format: format})
	if cfg.File != "" {
		logger.Debug("loaded config", slog.String("file", cfg.File))
	}
	return cfg, logger, nil
}

// clients holds the two API clients configured from cfg.
type clients struct {
	jira   *jira.Client
	gitlab *gitlab.Client
}

func newClients(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*clients, error) {
	jc := jira.NewClient(cfg.Jira.BaseURL(), cfg.Jira.Username, cfg.Jira.Password)
	jc.APIVersion = cfg.Jira.APIVersion
	jc.MaxRetries = cfg.HTTP.MaxRetries
	jc.Logger = logger.With(slog.String("service", "jira"))
	jc.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout})
	if !cfg.Jira.StrictSSL {
		logger.Warn("TLS certificate verification disabled for jira", slog.String("host", cfg.Jira.Host))
		jc.WithInsecureTLS()
	}

	gc := gitlab.NewClient(cfg.GitLab.Token, cfg.GitLab.URL)
	gc.MaxRetries = cfg.HTTP.MaxRetries
	gc.Logger = logger.With(slog.String("service", "gitlab"))
	gc.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout})
	switch cfg.GitLab.AuthMode {
	case gitlab.AuthOAuth:
		gc.WithOAuth(cmd.Context())
	case gitlab.AuthPrivateToken, "":
	default:
		return nil, fmt.Errorf("unsupported gitlab.authMode %q", cfg.GitLab.AuthMode)
	}
	return &clients{jira: jc, gitlab: gc}, nil
}
