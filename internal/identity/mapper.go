// Package identity maps source tracker users to target project members.
package identity

import (
	"errors"
	"fmt"

	"github.com/jira2gitlab/j2g/internal/types"
)

var (
	// ErrNoMapping means the source identity has no configured user mapping.
	ErrNoMapping = errors.New("no user mapping")
	// ErrNotMember means the mapped username is not a member of the target project.
	ErrNotMember = errors.New("mapped user is not a project member")
)

// Roster is the read-only set of users with access to the target project.
type Roster struct {
	members    []types.Member
	byUsername map[string]types.Member
}

// NewRoster merges member lists in order. When a username appears more
// than once the first occurrence wins.
func NewRoster(lists ...[]types.Member) *Roster {
	r := &Roster{byUsername: make(map[string]types.Member)}
	for _, list := range lists {
		for _, m := range list {
			if m.Username == "" {
				continue
			}
			if _, dup := r.byUsername[m.Username]; dup {
				continue
			}
			r.byUsername[m.Username] = m
			r.members = append(r.members, m)
		}
	}
	return r
}

// Lookup finds a member by username.
func (r *Roster) Lookup(username string) (types.Member, bool) {
	if r == nil {
		return types.Member{}, false
	}
	m, ok := r.byUsername[username]
	return m, ok
}

// Len returns the number of distinct members.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.members)
}

// Mapper resolves source identities against the user mapping and roster.
type Mapper struct {
	mappings []types.UserMapping
	roster   *Roster
}

// NewMapper creates a mapper.
func NewMapper(mappings []types.UserMapping, roster *Roster) *Mapper {
	return &Mapper{mappings: mappings, roster: roster}
}

// Resolve returns the target member for a source identity (email).
// The first matching user mapping is used.
func (m *Mapper) Resolve(source string) (types.Member, error) {
	if source == "" {
		return types.Member{}, fmt.Errorf("empty identity: %w", ErrNoMapping)
	}
	for _, um := range m.mappings {
		if um.SourceIdentity != source {
			continue
		}
		member, ok := m.roster.Lookup(um.TargetUsername)
		if !ok {
			return types.Member{}, fmt.Errorf("%s -> %s: %w", source, um.TargetUsername, ErrNotMember)
		}
		return member, nil
	}
	return types.Member{}, fmt.Errorf("%s: %w", source, ErrNoMapping)
}
