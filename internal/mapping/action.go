// Package mapping turns declarative field-mapping rules into target issue drafts.
//
// Rules are compiled once, at configuration load, into typed actions.
// A rule whose target starts with "$" names a macro; "$asLabel" is the
// only macro. Any other macro name is rejected by Compile, so authoring
// mistakes fail before any tracker is contacted.
package mapping

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jira2gitlab/j2g/internal/types"
)

// MacroAsLabel synthesizes labels from the resolved source value.
const MacroAsLabel = "$asLabel"

// ErrUnknownMacro is returned by Compile for an unrecognized macro target.
var ErrUnknownMacro = errors.New("unknown mapping macro")

// Action is a compiled mapping rule. It is one of DirectAssign or AsLabel.
type Action interface {
	// SourcePath is the dotted path resolved against the source issue.
	SourcePath() string
	isAction()
}

// DirectAssign copies the resolved value into Key unchanged.
type DirectAssign struct {
	From string
	Key  string
}

func (a DirectAssign) SourcePath() string { return a.From }
func (DirectAssign) isAction()            {}

// AsLabel appends the resolved value, or a projection of it, to the labels field.
type AsLabel struct {
	From   string
	Field  string           // object key projected from list-of-object values
	Ignore []*regexp.Regexp // labels matching any of these are dropped
	Prefix string
}

func (a AsLabel) SourcePath() string { return a.From }
func (AsLabel) isAction()            {}

// Compile validates rules and decodes them into actions, preserving order.
func Compile(rules []types.MappingRule) ([]Action, error) {
	actions := make([]Action, 0, len(rules))
	for i, r := range rules {
		src := strings.TrimSpace(r.Source)
		if src == "" {
			return nil, fmt.Errorf("mapping rule %d: source path is required", i+1)
		}
		target := strings.TrimSpace(r.Target)
		if target == "" {
			return nil, fmt.Errorf("mapping rule %d (%s): target is required", i+1, src)
		}

		if !r.IsMacro() {
			actions = append(actions, DirectAssign{From: src, Key: target})
			continue
		}

		switch target {
		case MacroAsLabel:
			patterns, err := CompilePatterns(r.Ignore)
			if err != nil {
				return nil, fmt.Errorf("mapping rule %d (%s): %w", i+1, src, err)
			}
			actions = append(actions, AsLabel{
				From:   src,
				Field:  r.Field,
				Ignore: patterns,
				Prefix: r.Prefix,
			})
		default:
			return nil, fmt.Errorf("mapping rule %d (%s): %w %q", i+1, src, ErrUnknownMacro, target)
		}
	}
	return actions, nil
}

// CompilePatterns compiles ignore patterns. Matching is case-sensitive.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
