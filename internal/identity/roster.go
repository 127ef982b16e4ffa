package identity

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jira2gitlab/j2g/internal/logging"
	"github.com/jira2gitlab/j2g/internal/types"
)

// MemberLister lists members of a target project or group.
type MemberLister interface {
	ListProjectMembers(ctx context.Context, projectID int) ([]types.Member, error)
	ListGroupMembers(ctx context.Context, group string) ([]types.Member, error)
}

// BuildRoster fetches project and group members concurrently and merges them,
// project members first, then groups in the order given.
// A failing group is logged and contributes no members; a failing
// project member listing is returned as an error.
func BuildRoster(ctx context.Context, lister MemberLister, projectID int, groups []string, logger *slog.Logger) (*Roster, error) {
	logger = logging.OrDiscard(logger)
	results := make([][]types.Member, len(groups)+1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		members, err := lister.ListProjectMembers(gctx, projectID)
		if err != nil {
			return fmt.Errorf("list project members: %w", err)
		}
		results[0] = members
		return nil
	})
	for i, group := range groups {
		g.Go(func() error {
			members, err := lister.ListGroupMembers(gctx, group)
			if err != nil {
				logger.Warn("could not fetch group members", slog.String("group", group), slog.Any("error", err))
				return nil
			}
			results[i+1] = members
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	roster := NewRoster(results...)
	logger.Info("built member roster",
		slog.Int("project_members", len(results[0])),
		slog.Int("groups", len(groups)),
		slog.Int("members", roster.Len()))
	return roster, nil
}
