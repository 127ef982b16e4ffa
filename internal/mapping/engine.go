package mapping

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/jira2gitlab/j2g/internal/attr"
	"github.com/jira2gitlab/j2g/internal/logging"
	"github.com/jira2gitlab/j2g/internal/types"
)

// Engine applies compiled actions to source issues.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logging.OrDiscard(logger)}
}

// Apply builds a draft by running actions in order against issue.
// Actions whose source path is absent are skipped with a warning.
func (e *Engine) Apply(issue types.SourceIssue, actions []Action) *types.Draft {
	draft := types.NewDraft()
	log := e.logger.With(slog.String("issue", issue.Key()))

	for _, action := range actions {
		value, ok := attr.Resolve(issue, action.SourcePath())
		if !ok {
			log.Warn("skipping field mapping, source field does not exist",
				slog.String("source", action.SourcePath()))
			continue
		}

		switch a := action.(type) {
		case DirectAssign:
			log.Debug("mapping field", slog.String("source", a.From), slog.String("target", a.Key))
			draft.Set(a.Key, value)
		case AsLabel:
			labels := e.labels(log, value, a)
			log.Debug("mapping labels", slog.String("source", a.From), slog.Any("labels", labels))
			draft.AppendLabels(labels)
		}
	}
	return draft
}

// labels expands one $asLabel action.
func (e *Engine) labels(log *slog.Logger, value any, a AsLabel) []string {
	var raw []any
	switch v := value.(type) {
	case []any:
		if len(v) > 0 {
			if first, isObject := v[0].(map[string]any); isObject {
				if a.Field == "" {
					log.Warn("skipping label mapping, no object field configured",
						slog.String("source", a.From))
					return nil
				}
				if _, has := first[a.Field]; !has {
					log.Warn("skipping label mapping, object field not present",
						slog.String("source", a.From), slog.String("field", a.Field))
					return nil
				}
				raw = project(v, a.Field)
				break
			}
		}
		raw = v
	default:
		raw = []any{v}
	}

	labels := make([]string, 0, len(raw))
	for _, item := range raw {
		if isNullish(item) {
			continue
		}
		labels = append(labels, types.Stringify(item))
	}

	labels = e.filter(log, labels, a.Ignore)
	if a.Prefix != "" {
		for i := range labels {
			labels[i] = a.Prefix + labels[i]
		}
	}
	return labels
}

func (e *Engine) filter(log *slog.Logger, labels []string, patterns []*regexp.Regexp) []string {
	if len(patterns) == 0 {
		return labels
	}
	kept := FilterLabels(labels, patterns)
	if len(kept) != len(labels) && log.Enabled(context.Background(), logging.LevelTrace) {
		for _, l := range labels {
			if matchesAny(l, patterns) {
				log.Log(context.Background(), logging.LevelTrace, "ignoring label", slog.String("label", l))
			}
		}
	}
	return kept
}

func project(objects []any, field string) []any {
	out := make([]any, 0, len(objects))
	for _, o := range objects {
		m, ok := o.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, m[field])
	}
	return out
}

func isNullish(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && (s == "null" || s == "undefined")
}

// FilterLabels returns the labels that match none of the patterns.
// The input slice is not modified.
func FilterLabels(labels []string, patterns []*regexp.Regexp) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if !matchesAny(l, patterns) {
			out = append(out, l)
		}
	}
	return out
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
