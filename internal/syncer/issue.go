package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jira2gitlab/j2g/internal/attr"
	"github.com/jira2gitlab/j2g/internal/gitlab"
	"github.com/jira2gitlab/j2g/internal/jira"
	"github.com/jira2gitlab/j2g/internal/markup"
	"github.com/jira2gitlab/j2g/internal/report"
	"github.com/jira2gitlab/j2g/internal/telemetry"
	"github.com/jira2gitlab/j2g/internal/types"
)

// Issue states, logged at Debug as each issue moves through them.
const (
	stateFetched     = "fetched"
	stateFilteredOut = "filtered-out"
	stateMapped      = "mapped"
	stateIdentity    = "resolving-identity"
	stateAttachments = "relocating-attachments"
	stateRewriting   = "rewriting-text"
	stateUpdating    = "updating"
	stateCreating    = "creating"
	stateAnnotating  = "annotating"
	statePersisting  = "persisting-correlation"
	stateDone        = "done"
)

const (
	timeNoteHeader     = "Apply time entries from jira."
	backlinkNotePrefix = "Imported from jira. Original issue: "
	attachmentsHeader  = "Attachments applied from jira:"
)

// issueRun carries the per-issue context through the steps.
type issueRun struct {
	issue types.SourceIssue
	key   string
	log   *slog.Logger
	span  *telemetry.IssueSpan
	stats *Stats
}

func (ir *issueRun) enter(state string) {
	ir.log.Debug("issue state", slog.String("state", state))
	ir.span.Event(state)
}

func (s *Syncer) syncIssue(ctx context.Context, r *run, issue types.SourceIssue, stats *Stats) {
	key := issue.Key()
	ctx, span := s.inst.StartIssue(ctx, key, s.opts.Simulation)
	ir := &issueRun{
		issue: issue,
		key:   key,
		log:   s.logger.With(slog.String("issue", key)),
		span:  span,
		stats: stats,
	}
	ir.enter(stateFetched)

	if reason, skip := s.excluded(issue); skip {
		ir.enter(stateFilteredOut)
		ir.log.Info("skipping issue", slog.String("reason", reason))
		stats.Filtered++
		s.report.Finish(key, report.OutcomeFiltered, 0, reason)
		span.End(ctx, string(report.OutcomeFiltered), nil)
		return
	}

	ir.log.Info("syncing issue")
	draft := r.engine.Apply(issue, s.opts.Actions)
	ir.enter(stateMapped)
	ir.log.Debug("mapped fields", slog.Any("fields", draft.Keys()))

	ir.enter(stateIdentity)
	if email := issue.UserEmail("assignee"); email != "" {
		if member, ok := s.resolveUser(r, ir, email, "assignee"); ok {
			draft.Set("assignee_ids", []int{member.ID})
		}
	}
	actingAs := ""
	if s.opts.AsOriginalAuthor {
		if member, ok := s.resolveUser(r, ir, issue.UserEmail("creator"), "creator"); ok {
			actingAs = member.Username
		}
	}

	var refs []types.AttachmentRef
	if s.opts.Attachments {
		ir.enter(stateAttachments)
		refs = r.relocator.Relocate(ctx, issue)
		stats.Attachments += len(refs)
		for _, ref := range refs {
			if s.opts.Simulation {
				s.report.Action(key, "would upload attachment %s", ref.SourceName)
			} else {
				s.report.Action(key, "uploaded attachment %s", ref.SourceName)
			}
		}
	}

	ir.enter(stateRewriting)
	if desc, ok := draft.Get("description"); ok {
		if text, ok := desc.(string); ok {
			rewritten := markup.Rewrite(text, refs)
			draft.Set("description", rewritten)
			if s.OnPreview != nil {
				s.OnPreview(key, rewritten)
			}
			if s.opts.Simulation {
				s.report.SetPreview(key, rewritten)
			}
		}
	}

	target, created, err := s.upsert(ctx, r, ir, draft.Map(), actingAs)
	if err != nil {
		ir.log.Error("failed to create issue", slog.Any("error", err))
		stats.Errors++
		s.report.Finish(key, report.OutcomeFailed, 0, err.Error())
		span.End(ctx, string(report.OutcomeFailed), err)
		return
	}

	outcome := report.OutcomeUpdated
	if created {
		outcome = report.OutcomeCreated
		stats.Created++
		ir.enter(stateAnnotating)
		s.annotate(ctx, r, ir, target, refs)
		ir.enter(statePersisting)
		s.persistCorrelation(ctx, r, ir, target)
	} else {
		stats.Updated++
	}

	if issue.HasResolution() {
		s.closeIssue(ctx, r, ir, target)
	}

	ir.enter(stateDone)
	s.report.Finish(key, outcome, target.IID, "")
	span.End(ctx, string(outcome), nil)
}

// excluded evaluates the inclusion filter.
func (s *Syncer) excluded(issue types.SourceIssue) (string, bool) {
	if s.opts.ExcludeClosed && issue.HasResolution() {
		return "resolved", true
	}
	if s.opts.ExcludeBefore.IsZero() {
		return "", false
	}
	v, ok := attr.Resolve(issue, s.opts.DateField)
	if !ok || v == nil {
		return "", false
	}
	t, err := jira.ParseTimestamp(types.Stringify(v))
	if err != nil {
		s.logger.Warn("cannot evaluate date filter",
			slog.String("issue", issue.Key()),
			slog.String("field", s.opts.DateField),
			slog.Any("error", err))
		return "", false
	}
	if t.Before(s.opts.ExcludeBefore) {
		return fmt.Sprintf("%s %s is before %s", s.opts.DateField, t.Format("2006-01-02"), s.opts.ExcludeBefore.Format("2006-01-02")), true
	}
	return "", false
}

func (s *Syncer) resolveUser(r *run, ir *issueRun, email, role string) (types.Member, bool) {
	if email == "" {
		return types.Member{}, false
	}
	member, err := r.mapper.Resolve(email)
	if err != nil {
		ir.log.Warn("could not map user", slog.String("role", role), slog.Any("error", err))
		return types.Member{}, false
	}
	ir.log.Debug("mapped user", slog.String("role", role), slog.String("username", member.Username))
	return member, true
}

// linkedIID reads the correlation value of issue.
func (s *Syncer) linkedIID(r *run, ir *issueRun) (int, bool) {
	if r.fieldID == "" {
		return 0, false
	}
	v, ok := ir.issue.Field(r.fieldID)
	if !ok || v == nil {
		return 0, false
	}
	raw := strings.TrimSpace(types.Stringify(v))
	if raw == "" {
		return 0, false
	}
	iid, err := strconv.Atoi(raw)
	if err != nil || iid <= 0 {
		ir.log.Warn("ignoring malformed correlation value", slog.String("value", raw))
		return 0, false
	}
	return iid, true
}

// upsert updates the linked target issue, falling back to creation when
// there is no link or the update fails.
func (s *Syncer) upsert(ctx context.Context, r *run, ir *issueRun, fields map[string]any, actingAs string) (*gitlab.Issue, bool, error) {
	if iid, ok := s.linkedIID(r, ir); ok {
		ir.enter(stateUpdating)
		if s.opts.Simulation {
			ir.log.Info("[simulation] would update issue", slog.Int("iid", iid))
			s.report.Action(ir.key, "would update issue #%d", iid)
			return &gitlab.Issue{IID: iid, ProjectID: r.project.ID}, false, nil
		}
		issue, err := s.target.UpdateIssue(ctx, r.project.ID, iid, fields, actingAs)
		if err == nil {
			ir.log.Info("updated issue", slog.Int("iid", issue.IID))
			s.report.Action(ir.key, "updated issue #%d", issue.IID)
			return issue, false, nil
		}
		ir.log.Warn("linked issue could not be updated, creating a new one",
			slog.Int("iid", iid), slog.Any("error", err))
	}

	ir.enter(stateCreating)
	if s.opts.Simulation {
		ir.log.Info("[simulation] would create issue",
			slog.String("title", types.Stringify(fields["title"])),
			slog.String("actingAs", actingAs))
		s.report.Action(ir.key, "would create issue %q", types.Stringify(fields["title"]))
		return &gitlab.Issue{ProjectID: r.project.ID}, true, nil
	}
	issue, err := s.target.CreateIssue(ctx, r.project.ID, fields, actingAs)
	if err != nil {
		return nil, false, err
	}
	ir.log.Info("created issue", slog.Int("iid", issue.IID))
	s.report.Action(ir.key, "created issue #%d", issue.IID)
	return issue, true, nil
}

func (s *Syncer) annotate(ctx context.Context, r *run, ir *issueRun, target *gitlab.Issue, refs []types.AttachmentRef) {
	if body, ok := s.timeNote(ir.issue); ok {
		s.addNote(ctx, r, ir, target, "time tracking", body, "")
	}

	if s.opts.Backlink {
		s.addNote(ctx, r, ir, target, "backlink", backlinkNotePrefix+jira.BrowseURL(s.opts.BaseURL, ir.key), "")
	}

	if len(refs) > 0 {
		var b strings.Builder
		b.WriteString(attachmentsHeader)
		for _, ref := range refs {
			b.WriteString("\n- ")
			b.WriteString(ref.TargetMarkdown)
		}
		s.addNote(ctx, r, ir, target, "attachments", b.String(), "")
	}

	if s.opts.Comments {
		s.replayComments(ctx, r, ir, target, refs)
	}
}

// timeNote builds the quick-action note for spent and estimated time.
func (s *Syncer) timeNote(issue types.SourceIssue) (string, bool) {
	body := timeNoteHeader
	added := false
	if s.opts.Worklog {
		if v, _ := issue.Field("timespent"); v != nil {
			if n, ok := types.AsInt64(v); ok && n > 0 {
				body += fmt.Sprintf("\n/spend %ds", n)
				added = true
			}
		}
	}
	if s.opts.EstimatedTime {
		if v, _ := issue.Field("timeestimate"); v != nil {
			if n, ok := types.AsInt64(v); ok && n > 0 {
				body += fmt.Sprintf("\n/estimate %ds", n)
				added = true
			}
		}
	}
	return body, added
}

func (s *Syncer) replayComments(ctx context.Context, r *run, ir *issueRun, target *gitlab.Issue, refs []types.AttachmentRef) {
	full, err := s.source.GetIssue(ctx, ir.issue.ID())
	if err != nil {
		ir.log.Warn("could not fetch comments", slog.Any("error", err))
		return
	}
	for _, c := range full.Comments() {
		author := ""
		if s.opts.AsOriginalAuthor {
			if member, ok := s.resolveUser(r, ir, c.AuthorEmail, "comment author"); ok {
				author = member.Username
			}
		}
		s.addNote(ctx, r, ir, target, "comment", markup.Rewrite(c.Body, refs), author)
	}
}

func (s *Syncer) addNote(ctx context.Context, r *run, ir *issueRun, target *gitlab.Issue, kind, body, actingAs string) {
	if s.opts.Simulation {
		ir.log.Info("[simulation] would add note", slog.String("kind", kind), slog.String("actingAs", actingAs))
		s.report.Action(ir.key, "would add %s note", kind)
		ir.stats.Notes++
		return
	}
	if _, err := s.target.AddNote(ctx, r.project.ID, target.IID, body, actingAs); err != nil {
		ir.log.Warn("failed to add note", slog.String("kind", kind), slog.Any("error", err))
		return
	}
	ir.log.Debug("added note", slog.String("kind", kind))
	s.report.Action(ir.key, "added %s note", kind)
	ir.stats.Notes++
}

func (s *Syncer) persistCorrelation(ctx context.Context, r *run, ir *issueRun, target *gitlab.Issue) {
	if !s.opts.Correlation {
		return
	}
	if s.opts.Simulation {
		ir.log.Info("[simulation] would link source issue to target issue")
		s.report.Action(ir.key, "would store correlation in %s", s.opts.CorrelationField)
		return
	}
	if r.fieldID == "" {
		return
	}
	value := strconv.Itoa(target.IID)
	if err := s.source.UpdateIssue(ctx, ir.issue.ID(), map[string]any{r.fieldID: value}); err != nil {
		ir.log.Warn("could not store correlation", slog.Any("error", err))
		return
	}
	ir.log.Debug("stored correlation", slog.String("field", r.fieldID), slog.String("value", value))
	s.report.Action(ir.key, "stored correlation #%s", value)
}

func (s *Syncer) closeIssue(ctx context.Context, r *run, ir *issueRun, target *gitlab.Issue) {
	if s.opts.Simulation {
		ir.log.Info("[simulation] would close issue")
		s.report.Action(ir.key, "would close issue")
		return
	}
	if err := s.target.CloseIssue(ctx, r.project.ID, target.IID, ""); err != nil {
		ir.log.Warn("failed to close issue", slog.Int("iid", target.IID), slog.Any("error", err))
		return
	}
	ir.log.Info("closed issue", slog.Int("iid", target.IID))
	s.report.Action(ir.key, "closed issue #%d", target.IID)
}
