package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jira2gitlab/j2g/internal/config"
	"github.com/jira2gitlab/j2g/internal/identity"
	"github.com/jira2gitlab/j2g/internal/ui"
)

func newCheckCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the config and both connections without changing anything",
		Long: `Check loads and validates the config, compiles the issue mapping, resolves
the GitLab project and its member roster, and looks for the Jira correlation
field. It only reads from Jira and GitLab.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, global)
		},
	}
}

func runCheck(cmd *cobra.Command, global *globalFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, logger, err := global.load(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	pass(out, "config valid, %d mapping actions", len(cfg.Actions))

	c, err := newClients(cmd, cfg, logger)
	if err != nil {
		return err
	}

	project, err := c.gitlab.GetProject(ctx, cfg.GitLab.ProjectPath())
	if err != nil {
		return fmt.Errorf("could not find target project %s: %w", cfg.GitLab.ProjectPath(), err)
	}
	pass(out, "gitlab project %s (id %d)", cfg.GitLab.ProjectPath(), project.ID)

	groups := project.MemberGroups(cfg.GitLab.IncludeNamespaceMembers, cfg.GitLab.IncludeSharedGroups)
	roster, err := identity.BuildRoster(ctx, c.gitlab, project.ID, groups, logger)
	if err != nil {
		return err
	}
	pass(out, "%d members across the project and %d groups", roster.Len(), len(groups))
	checkUserMapping(out, cfg, roster)

	fields, err := c.jira.ListFields(ctx)
	if err != nil {
		return fmt.Errorf("list jira fields: %w", err)
	}
	if !cfg.General.Correlation {
		fmt.Fprintln(out, ui.RenderMuted(ui.IconSkip+" correlation disabled"))
		return nil
	}
	for _, f := range fields {
		if f.Name == cfg.Jira.CorrelationField {
			pass(out, "jira correlation field %s (%s)", f.Name, f.ID)
			return nil
		}
	}
	warn(out, "jira correlation field %s does not exist yet; migrate will create it", cfg.Jira.CorrelationField)
	return nil
}

func checkUserMapping(out io.Writer, cfg *config.Config, roster *identity.Roster) {
	for _, m := range cfg.UserMapping {
		if _, ok := roster.Lookup(m.TargetUsername); !ok {
			warn(out, "%s maps to %s, who is not a project member", m.SourceIdentity, m.TargetUsername)
		}
	}
}

func pass(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, ui.RenderPass(ui.IconPass)+" "+fmt.Sprintf(format, args...))
}

func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, ui.RenderWarn(ui.IconWarn)+" "+fmt.Sprintf(format, args...))
}
