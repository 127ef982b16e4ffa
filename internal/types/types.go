// Package types defines the core data structures shared across the migration pipeline.
package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// MacroSigil marks a mapping target that names a built-in transformation
// instead of a literal target field.
const MacroSigil = "$"

// SourceIssue is a source tracker issue as decoded from the REST API.
// Nested objects are map[string]any, lists are []any and numbers are
// json.Number. It is never mutated after it has been fetched.
type SourceIssue map[string]any

// Key returns the human-readable issue key (e.g. "PROJ-42").
func (s SourceIssue) Key() string {
	v, _ := s["key"].(string)
	return v
}

// ID returns the numeric source issue id as a string.
func (s SourceIssue) ID() string {
	return Stringify(s["id"])
}

// Fields returns the "fields" object, or nil if the issue has none.
func (s SourceIssue) Fields() map[string]any {
	f, _ := s["fields"].(map[string]any)
	return f
}

// Field returns a single top-level field value.
func (s SourceIssue) Field(name string) (any, bool) {
	f := s.Fields()
	if f == nil {
		return nil, false
	}
	v, ok := f[name]
	return v, ok
}

// HasResolution reports whether the issue carries a non-null resolution.
func (s SourceIssue) HasResolution() bool {
	v, ok := s.Field("resolution")
	return ok && v != nil
}

// UserEmail returns the emailAddress of a user-valued field such as
// "assignee", "creator" or "reporter".
func (s SourceIssue) UserEmail(field string) string {
	v, _ := s.Field(field)
	u, _ := v.(map[string]any)
	if u == nil {
		return ""
	}
	email, _ := u["emailAddress"].(string)
	return email
}

// MappingRule is one declarative mapping instruction as authored in config.
type MappingRule struct {
	Source string   `json:"jira" yaml:"jira" toml:"jira" mapstructure:"jira"`
	Target string   `json:"gitlab" yaml:"gitlab" toml:"gitlab" mapstructure:"gitlab"`
	Field  string   `json:"field,omitempty" yaml:"field,omitempty" toml:"field,omitempty" mapstructure:"field"`
	Ignore []string `json:"ignore,omitempty" yaml:"ignore,omitempty" toml:"ignore,omitempty" mapstructure:"ignore"`
	Prefix string   `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix,omitempty" mapstructure:"prefix"`
}

// IsMacro reports whether the rule target names a macro.
func (r MappingRule) IsMacro() bool {
	return strings.HasPrefix(r.Target, MacroSigil)
}

// UserMapping pairs a source identity (email) with a target username.
type UserMapping struct {
	SourceIdentity string `json:"jiraMail" yaml:"jiraMail" toml:"jiraMail" mapstructure:"jiraMail"`
	TargetUsername string `json:"gitlabUsername" yaml:"gitlabUsername" toml:"gitlabUsername" mapstructure:"gitlabUsername"`
}

// Member is a user with access to the target project.
type Member struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	State    string `json:"state,omitempty"`
}

// AttachmentRef pairs a source attachment filename with the markdown the
// target system returned for the stored copy.
type AttachmentRef struct {
	SourceName     string `json:"source_name" yaml:"source_name" toml:"source_name"`
	TargetMarkdown string `json:"target_markdown" yaml:"target_markdown" toml:"target_markdown"`
}

// Attachment describes one attachment on a source issue.
type Attachment struct {
	ID         string
	Filename   string
	ContentURL string
	MimeType   string
	Size       int64
}

// Attachments extracts the attachment list from fields.attachment.
// Entries without a filename or content URL are ignored.
func (s SourceIssue) Attachments() []Attachment {
	v, _ := s.Field("attachment")
	list, _ := v.([]any)
	var out []Attachment
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		a := Attachment{
			ID:         Stringify(m["id"]),
			Filename:   Stringify(m["filename"]),
			ContentURL: Stringify(m["content"]),
			MimeType:   Stringify(m["mimeType"]),
		}
		if n, ok := AsInt64(m["size"]); ok {
			a.Size = n
		}
		if a.Filename == "" || a.ContentURL == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Comment is one source issue comment.
type Comment struct {
	ID          string
	Body        string
	AuthorEmail string
}

// Comments extracts fields.comment.comments in source order.
func (s SourceIssue) Comments() []Comment {
	v, _ := s.Field("comment")
	holder, _ := v.(map[string]any)
	if holder == nil {
		return nil
	}
	list, _ := holder["comments"].([]any)
	out := make([]Comment, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		c := Comment{ID: Stringify(m["id"]), Body: Stringify(m["body"])}
		if author, ok := m["author"].(map[string]any); ok {
			c.AuthorEmail = Stringify(author["emailAddress"])
		}
		out = append(out, c)
	}
	return out
}

// Stringify renders a decoded JSON scalar as text. Nil becomes "".
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// AsInt64 converts a decoded JSON number to int64.
func AsInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
