package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jira2gitlab/j2g/internal/attachment"
	"github.com/jira2gitlab/j2g/internal/report"
	"github.com/jira2gitlab/j2g/internal/syncer"
	"github.com/jira2gitlab/j2g/internal/telemetry"
	"github.com/jira2gitlab/j2g/internal/ui"
)

type migrateFlags struct {
	simulate     bool
	reportPath   string
	preview      bool
	previewLines int
	yes          bool
}

func newMigrateCmd(global *globalFlags) *cobra.Command {
	flags := &migrateFlags{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the configured Jira project into GitLab",
		Long: `Migrate pages through the Jira project and creates or updates one GitLab
issue per Jira issue.

With --simulate (or simulation: true in the config) nothing is written to
either system; the log and the optional --report describe what would happen.
A live run asks for confirmation unless --yes is given.`,
		Example: `  j2g migrate --simulate --report plan.yaml --preview
  j2g migrate --config prod.yaml --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, global, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.simulate, "simulate", false, "log planned actions without changing Jira or GitLab")
	cmd.Flags().StringVar(&flags.reportPath, "report", "", "write a run report (.yaml, .toml or .json)")
	cmd.Flags().BoolVar(&flags.preview, "preview", false, "render each rewritten description in the terminal")
	cmd.Flags().IntVar(&flags.previewLines, "preview-lines", 20, "maximum lines shown per preview (0 for all)")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "skip the confirmation prompt for live runs")
	return cmd
}

func runMigrate(cmd *cobra.Command, global *globalFlags, flags *migrateFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, logger, err := global.load(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if flags.simulate {
		cfg.Simulation = true
	}

	if flags.reportPath != "" {
		if _, err := report.FormatFor(flags.reportPath); err != nil {
			return err
		}
	}

	started := time.Now()
	opts, err := syncer.OptionsFromConfig(cfg, started)
	if err != nil {
		return err
	}

	c, err := newClients(cmd, cfg, logger)
	if err != nil {
		return err
	}

	if !opts.Simulation && !flags.yes {
		ok, err := ui.Confirm(
			fmt.Sprintf("Migrate %s into %s?", opts.ProjectKey, opts.ProjectPath),
			"This creates and updates GitLab issues and writes the correlation field in Jira.",
		)
		if errors.Is(err, ui.ErrNotInteractive) {
			return fmt.Errorf("live migration needs confirmation: %w", err)
		}
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, ui.RenderMuted("Migration cancelled."))
			return nil
		}
	}

	providers, err := telemetry.Init(ctx, telemetry.Options{
		Enabled:     cfg.Telemetry.Enabled,
		Stdout:      cfg.Telemetry.Stdout,
		Endpoint:    cfg.Telemetry.Endpoint,
		Writer:      cmd.ErrOrStderr(),
		ServiceName: "j2g",
		Version:     Version,
	})
	if err != nil {
		logger.Warn("telemetry disabled", slog.Any("error", err))
	}
	defer func() {
		if err := providers.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	rep := report.New(opts.ProjectPath, opts.Simulation, started)
	transport := attachment.NewHTTPTransport(c.jira, c.gitlab)
	s := syncer.New(c.jira, c.gitlab, transport, opts, logger).WithReport(rep)
	if flags.preview {
		s.OnPreview = func(key, markdown string) {
			printPreview(out, key, markdown, flags.previewLines)
		}
	}

	if opts.Simulation {
		fmt.Fprintln(out, ui.RenderBanner("SIMULATION: nothing will be written to Jira or GitLab"))
	}
	logger.Info("starting migration",
		slog.String("jql", s.Query()),
		slog.String("project", opts.ProjectPath),
		slog.Bool("simulation", opts.Simulation))

	stats, runErr := s.Run(ctx)

	if flags.reportPath != "" {
		if err := rep.WriteFile(flags.reportPath); err != nil {
			logger.Error("could not write report", slog.String("file", flags.reportPath), slog.Any("error", err))
			runErr = errors.Join(runErr, err)
		} else {
			logger.Info("wrote report", slog.String("file", flags.reportPath))
		}
	}

	printFailures(out, rep)
	printSummary(out, stats, opts.Simulation, time.Since(started))
	return runErr
}

func printFailures(w io.Writer, rep *report.Report) {
	n := rep.Count(report.OutcomeFailed)
	if n == 0 {
		return
	}
	fmt.Fprintln(w, ui.RenderCategory(fmt.Sprintf("%d failed", n)))
	for _, e := range rep.Entries {
		if e.Outcome != report.OutcomeFailed {
			continue
		}
		fmt.Fprintln(w, ui.RenderOutcome(string(e.Outcome))+" "+e.Key)
		if e.Reason != "" {
			fmt.Fprintln(w, ui.RenderDetail(e.Reason))
		}
	}
}

func printPreview(w io.Writer, key, markdown string, maxLines int) {
	fmt.Fprintln(w, ui.RenderCategory(key))
	fmt.Fprintln(w, ui.RenderSeparator())
	fmt.Fprintln(w, ui.TruncateLines(ui.RenderMarkdown(markdown), maxLines))
}

func printSummary(w io.Writer, stats syncer.Stats, simulation bool, elapsed time.Duration) {
	title := "Migration summary"
	if simulation {
		title = "Simulation summary"
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.RenderCategory(title))
	fmt.Fprintln(w, ui.RenderCount("fetched", stats.Fetched, ui.AccentStyle))
	fmt.Fprintln(w, ui.RenderCount("created", stats.Created, ui.PassStyle))
	fmt.Fprintln(w, ui.RenderCount("updated", stats.Updated, ui.PassStyle))
	fmt.Fprintln(w, ui.RenderCount("filtered", stats.Filtered, ui.MutedStyle))
	fmt.Fprintln(w, ui.RenderCount("notes", stats.Notes, ui.AccentStyle))
	fmt.Fprintln(w, ui.RenderCount("attachments", stats.Attachments, ui.AccentStyle))
	fmt.Fprintln(w, ui.RenderCount("errors", stats.Errors, ui.FailStyle))
	fmt.Fprintln(w, ui.RenderMuted(fmt.Sprintf("  took %s", elapsed.Round(time.Millisecond))))
}
