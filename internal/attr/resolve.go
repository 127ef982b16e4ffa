// Package attr resolves dotted attribute paths against decoded JSON records.
package attr

import (
	"strconv"
	"strings"

	"github.com/jira2gitlab/j2g/internal/types"
)

// Resolve walks record along a dotted path such as "fields.assignee.emailAddress".
// Numeric segments index into lists. The second return value is false when
// any segment is missing; a present JSON null resolves to (nil, true).
func Resolve(record any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	cur := record
	for _, seg := range strings.Split(path, ".") {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func step(node any, seg string) (any, bool) {
	switch n := node.(type) {
	case types.SourceIssue:
		v, ok := n[seg]
		return v, ok
	case map[string]any:
		v, ok := n[seg]
		return v, ok
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(n) {
			return nil, false
		}
		return n[idx], true
	default:
		return nil, false
	}
}
