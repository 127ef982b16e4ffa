package markup

import (
	"strings"

	"github.com/jira2gitlab/j2g/internal/types"
)

// Unavailable is appended to attachment names that have no relocated copy.
const Unavailable = "|unavailable"

var styleMarkers = map[Kind][2]string{
	Bold:      {"**", "**"},
	Underline: {"*", "*"},
	Italic:    {"_", "_"},
	Strike:    {"~~", "~~"},
	Inserted:  {"", ""},
	Color:     {"", ""},
}

type renderer struct {
	translate  bool
	substitute bool
	refs       map[string]string
}

// Translate converts inline styles, mentions and code blocks to markdown.
// Attachment references are left untouched.
func Translate(body string) string {
	r := renderer{translate: true}
	return r.render(Parse(body))
}

// SubstituteAttachments replaces !name! and [^name] references with the
// matching target markdown. Unknown names become "name|unavailable".
// Everything else, code blocks included, is left untouched.
func SubstituteAttachments(body string, refs []types.AttachmentRef) string {
	r := renderer{substitute: true, refs: refTable(refs)}
	return r.render(Parse(body))
}

// Rewrite applies both passes in a single render.
func Rewrite(body string, refs []types.AttachmentRef) string {
	r := renderer{translate: true, substitute: true, refs: refTable(refs)}
	return r.render(Parse(body))
}

// refTable indexes refs by source name; the first entry for a name wins.
func refTable(refs []types.AttachmentRef) map[string]string {
	table := make(map[string]string, len(refs))
	for _, ref := range refs {
		if _, dup := table[ref.SourceName]; !dup {
			table[ref.SourceName] = ref.TargetMarkdown
		}
	}
	return table
}

func (r renderer) render(spans []Span) string {
	var b strings.Builder
	for _, sp := range spans {
		r.write(&b, sp)
	}
	return b.String()
}

func (r renderer) write(b *strings.Builder, sp Span) {
	switch sp.Kind {
	case Text:
		b.WriteString(sp.Value)
	case Mention:
		if r.translate {
			b.WriteString("@" + sp.Value)
		} else {
			b.WriteString(sp.Raw)
		}
	case CodeBlock, NoFormat:
		if r.translate {
			writeFence(b, sp)
		} else {
			b.WriteString(sp.Raw)
		}
	case Image, Link:
		if !r.substitute {
			b.WriteString(sp.Raw)
			return
		}
		if md, ok := r.refs[sp.Value]; ok {
			b.WriteString(md)
		} else {
			b.WriteString(sp.Value + Unavailable)
		}
	default:
		open, closing := sp.Open, sp.Close
		if r.translate {
			m := styleMarkers[sp.Kind]
			open, closing = m[0], m[1]
		}
		b.WriteString(open)
		for _, child := range sp.Children {
			r.write(b, child)
		}
		b.WriteString(closing)
	}
}

func writeFence(b *strings.Builder, sp Span) {
	body := strings.Trim(sp.Value, "\n")
	b.WriteString("```")
	b.WriteString(sp.Lang)
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n```")
}
