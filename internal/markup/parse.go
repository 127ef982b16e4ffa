// Package markup rewrites Jira wiki markup into GitLab flavored markdown.
//
// Text is parsed into a flat-or-nested sequence of typed spans. Code and
// noformat blocks are recognized first and their contents are never parsed
// for inline styles or attachment references. Translate, SubstituteAttachments
// and Rewrite all render the same span tree with different options.
package markup

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind identifies a span type.
type Kind int

const (
	Text Kind = iota
	Bold
	Underline // _x_
	Italic    // /x/
	Strike
	Inserted
	Color
	Mention
	CodeBlock
	NoFormat
	Image // !name! or !name|thumbnail!
	Link  // [^name]
)

var kindNames = map[Kind]string{
	Text: "text", Bold: "bold", Underline: "underline", Italic: "italic",
	Strike: "strike", Inserted: "inserted", Color: "color", Mention: "mention",
	CodeBlock: "code", NoFormat: "noformat", Image: "image", Link: "link",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Span is one parsed element.
//
// For Text it holds the literal text. For Mention, Image and Link, Value is
// the user or attachment name. For blocks Value is the body and Lang the
// optional language. Styled spans carry Children plus the exact Open and
// Close markers so they can be re-emitted verbatim.
type Span struct {
	Kind     Kind
	Value    string
	Lang     string
	Raw      string
	Open     string
	Close    string
	Children []Span
}

var styleKinds = map[byte]Kind{
	'*': Bold,
	'_': Underline,
	'/': Italic,
	'-': Strike,
	'+': Inserted,
}

var blockOpenRe = regexp.MustCompile(`\{(code|noformat)(?::([^}\n]*))?\}`)

// Parse splits s into spans. It accepts any input.
func Parse(s string) []Span {
	var spans []Span
	for s != "" {
		loc := blockOpenRe.FindStringSubmatchIndex(s)
		if loc == nil {
			return append(spans, parseInline(s)...)
		}
		name := s[loc[2]:loc[3]]
		closing := "{" + name + "}"
		bodyStart := loc[1]
		end := strings.Index(s[bodyStart:], closing)
		if end < 0 {
			return append(spans, parseInline(s)...)
		}
		spans = append(spans, parseInline(s[:loc[0]])...)

		blk := Span{
			Kind:  CodeBlock,
			Value: s[bodyStart : bodyStart+end],
			Raw:   s[loc[0] : bodyStart+end+len(closing)],
		}
		if name == "noformat" {
			blk.Kind = NoFormat
		}
		if loc[4] >= 0 {
			blk.Lang = codeLang(s[loc[4]:loc[5]])
		}
		spans = append(spans, blk)
		s = s[bodyStart+end+len(closing):]
	}
	return spans
}

// codeLang extracts the language from "{code:go}" or "{code:java|title=X}".
func codeLang(param string) string {
	first, _, _ := strings.Cut(param, "|")
	first = strings.TrimSpace(first)
	if strings.Contains(first, "=") {
		return ""
	}
	return first
}

func parseInline(s string) []Span {
	var out []Span
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, Span{Kind: Text, Value: buf.String()})
			buf.Reset()
		}
	}
	unclosed := make(unclosedStyles)
	for i := 0; i < len(s); {
		if span, n, ok := matchAt(s, i, unclosed); ok {
			flush()
			out = append(out, span)
			i += n
			continue
		}
		buf.WriteByte(s[i])
		i++
	}
	flush()
	return out
}

// unclosedStyles records, per style marker, the offset up to which s is known
// to hold no valid closing marker. Closing validity depends only on the
// closer's own position, so one failed scan rules out every later opener
// before that offset.
type unclosedStyles map[byte]int

// matchAt tries every inline construct at byte offset i.
func matchAt(s string, i int, unclosed unclosedStyles) (Span, int, bool) {
	switch c := s[i]; c {
	case '[':
		if strings.HasPrefix(s[i:], "[~") {
			return matchBracket(s, i, Mention)
		}
		if strings.HasPrefix(s[i:], "[^") {
			return matchBracket(s, i, Link)
		}
	case '!':
		return matchImage(s, i)
	case '{':
		return matchColor(s, i)
	default:
		if kind, ok := styleKinds[c]; ok {
			return matchStyle(s, i, c, kind, unclosed)
		}
	}
	return Span{}, 0, false
}

func matchBracket(s string, i int, kind Kind) (Span, int, bool) {
	rest := s[i+2:]
	end := strings.IndexByte(rest, ']')
	if end <= 0 {
		return Span{}, 0, false
	}
	name := rest[:end]
	if strings.ContainsAny(name, "\n[") {
		return Span{}, 0, false
	}
	if kind == Mention && strings.ContainsFunc(name, unicode.IsSpace) {
		return Span{}, 0, false
	}
	n := end + 3
	return Span{Kind: kind, Value: name, Raw: s[i : i+n]}, n, true
}

func matchImage(s string, i int) (Span, int, bool) {
	if prev, ok := runeBefore(s, i); ok && (isWord(prev) || prev == '!') {
		return Span{}, 0, false
	}
	if isEmoticon(s, i) {
		return Span{}, 0, false
	}
	rest := s[i+1:]
	end := strings.IndexByte(rest, '!')
	if end <= 0 {
		return Span{}, 0, false
	}
	body := rest[:end]
	if strings.ContainsRune(body, '\n') || body != strings.TrimSpace(body) {
		return Span{}, 0, false
	}
	// (!) is the warning emoticon, not the start of an image.
	if strings.HasPrefix(body, ")") || strings.HasSuffix(body, "(") {
		return Span{}, 0, false
	}
	name, _, _ := strings.Cut(body, "|")
	if name == "" {
		return Span{}, 0, false
	}
	n := end + 2
	return Span{Kind: Image, Value: name, Raw: s[i : i+n]}, n, true
}

func matchColor(s string, i int) (Span, int, bool) {
	const openPrefix, closeTag = "{color:", "{color}"
	if !strings.HasPrefix(s[i:], openPrefix) {
		return Span{}, 0, false
	}
	tagEnd := strings.IndexByte(s[i:], '}')
	if tagEnd < 0 {
		return Span{}, 0, false
	}
	innerStart := i + tagEnd + 1
	closeAt := strings.Index(s[innerStart:], closeTag)
	if closeAt < 0 {
		return Span{}, 0, false
	}
	inner := s[innerStart : innerStart+closeAt]
	n := tagEnd + 1 + closeAt + len(closeTag)
	return Span{
		Kind:     Color,
		Open:     s[i:innerStart],
		Close:    closeTag,
		Raw:      s[i : i+n],
		Children: parseInline(inner),
	}, n, true
}

// matchStyle recognizes d...d where the opening marker follows a non-word
// character and precedes a non-space, and the closing marker follows a
// non-space and precedes a non-word character. Styles never span lines.
func matchStyle(s string, i int, d byte, kind Kind, unclosed unclosedStyles) (Span, int, bool) {
	if prev, ok := runeBefore(s, i); ok && (isWord(prev) || prev == rune(d)) {
		return Span{}, 0, false
	}
	next, ok := runeAfter(s, i+1)
	if !ok || unicode.IsSpace(next) || next == rune(d) || isEmoticon(s, i) {
		return Span{}, 0, false
	}
	if end, ok := unclosed[d]; ok && end > i {
		return Span{}, 0, false
	}
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\n':
			unclosed[d] = j
			return Span{}, 0, false
		case d:
			before, _ := runeBefore(s, j)
			if unicode.IsSpace(before) || isEmoticon(s, j) {
				continue
			}
			if after, ok := runeAfter(s, j+1); ok && (isWord(after) || after == rune(d)) {
				continue
			}
			marker := string(d)
			return Span{
				Kind:     kind,
				Open:     marker,
				Close:    marker,
				Raw:      s[i : j+1],
				Children: parseInline(s[i+1 : j]),
			}, j + 1 - i, true
		}
	}
	unclosed[d] = len(s)
	return Span{}, 0, false
}

// isEmoticon reports whether the byte at i is the middle of a Jira
// emoticon such as (!), (/), (*) or (-).
func isEmoticon(s string, i int) bool {
	return i > 0 && i+1 < len(s) && s[i-1] == '(' && s[i+1] == ')'
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func runeBefore(s string, i int) (rune, bool) {
	if i <= 0 {
		return 0, false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return r, true
}

func runeAfter(s string, i int) (rune, bool) {
	if i >= len(s) {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return r, true
}
