package fetcher

import (
	"context"
	"fmt"

	"github.com/robalyx/bgcheck/internal/database/types"
	"github.com/robalyx/bgcheck/internal/fetch"
	"github.com/robalyx/bgcheck/pkg/utils"
	"go.uber.org/zap"
)

// groupRolesResponse is the list of groups and roles of a user.
type groupRolesResponse struct {
	Data []struct {
		Group struct {
			ID   uint64 `json:"id"`
			Name string `json:"name"`
		} `json:"group"`
		Role struct {
			ID   uint64 `json:"id"`
			Name string `json:"name"`
			Rank int    `json:"rank"`
		} `json:"role"`
	} `json:"data"`
}

// GroupFetcher handles retrieval of group memberships from the Roblox groups API.
type GroupFetcher struct {
	client  *fetch.Client
	baseURL string
	logger  *zap.Logger
}

// NewGroupFetcher creates a GroupFetcher with the provided client and logger.
func NewGroupFetcher(client *fetch.Client, baseURL string, logger *zap.Logger) *GroupFetcher {
	return &GroupFetcher{
		client:  client,
		baseURL: baseURL,
		logger:  logger.Named("group_fetcher"),
	}
}

// GetUserGroups retrieves every group membership of a user.
func (g *GroupFetcher) GetUserGroups(ctx context.Context, userID uint64) ([]types.Membership, error) {
	resp, err := g.client.Do(ctx, &fetch.Request{
		URL: fmt.Sprintf("%s/v2/users/%d/groups/roles", g.baseURL, userID),
	})
	if err != nil {
		return nil, upstreamError("failed to fetch user groups", err)
	}

	var data groupRolesResponse
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	memberships := make([]types.Membership, 0, len(data.Data))
	for _, entry := range data.Data {
		memberships = append(memberships, types.Membership{
			GroupID:   entry.Group.ID,
			GroupName: utils.CompressAllWhitespace(entry.Group.Name),
			RoleID:    entry.Role.ID,
			Rank:      clampRank(entry.Role.Rank),
			RoleName:  utils.CompressAllWhitespace(entry.Role.Name),
		})
	}

	g.logger.Debug("Finished fetching user groups",
		zap.Uint64("userID", userID),
		zap.Int("totalGroups", len(memberships)))

	return memberships, nil
}

// clampRank keeps a rank within the 0-255 range used by Roblox roles.
func clampRank(rank int) uint8 {
	switch {
	case rank < 0:
		return 0
	case rank > 255:
		return 255
	default:
		return uint8(rank)
	}
}
