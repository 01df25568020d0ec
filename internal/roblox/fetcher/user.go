package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/robalyx/bgcheck/internal/database/types"
	"github.com/robalyx/bgcheck/internal/fetch"
	"github.com/robalyx/bgcheck/pkg/utils"
	"go.uber.org/zap"
)

// userResponse is the profile returned by the users API.
type userResponse struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description"`
	Created     time.Time `json:"created"`
	IsBanned    bool      `json:"isBanned"`
}

// usernamesRequest is the body of a username lookup.
type usernamesRequest struct {
	Usernames          []string `json:"usernames"`
	ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
}

// usernamesResponse is the answer to a username lookup.
type usernamesResponse struct {
	Data []struct {
		RequestedUsername string `json:"requestedUsername"`
		ID                uint64 `json:"id"`
		Name              string `json:"name"`
		DisplayName       string `json:"displayName"`
	} `json:"data"`
}

// UserFetcher handles retrieval of user profiles from the Roblox users API.
type UserFetcher struct {
	client  *fetch.Client
	baseURL string
	logger  *zap.Logger
}

// NewUserFetcher creates a UserFetcher with the provided client and logger.
func NewUserFetcher(client *fetch.Client, baseURL string, logger *zap.Logger) *UserFetcher {
	return &UserFetcher{
		client:  client,
		baseURL: baseURL,
		logger:  logger.Named("user_fetcher"),
	}
}

// GetUserByID retrieves the profile of a user.
func (u *UserFetcher) GetUserByID(ctx context.Context, userID uint64) (*types.Subject, error) {
	resp, err := u.client.Do(ctx, &fetch.Request{
		URL: fmt.Sprintf("%s/v1/users/%d", u.baseURL, userID),
	})
	if err != nil {
		if fetch.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}

		return nil, upstreamError("failed to fetch user profile", err)
	}

	var data userResponse
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	u.logger.Debug("Fetched user profile",
		zap.Uint64("userID", data.ID),
		zap.Bool("isBanned", data.IsBanned))

	return &types.Subject{
		ID:          data.ID,
		Name:        data.Name,
		DisplayName: utils.CompressAllWhitespace(data.DisplayName),
		CreatedAt:   data.Created,
		IsBanned:    data.IsBanned,
	}, nil
}

// GetUserIDByName resolves a username to a user ID. Banned users are included.
func (u *UserFetcher) GetUserIDByName(ctx context.Context, username string) (uint64, error) {
	resp, err := u.client.Do(ctx, &fetch.Request{
		Method: http.MethodPost,
		URL:    u.baseURL + "/v1/usernames/users",
		Body: usernamesRequest{
			Usernames:          []string{username},
			ExcludeBannedUsers: false,
		},
	})
	if err != nil {
		return 0, upstreamError("failed to look up username", err)
	}

	var data usernamesResponse
	if err := resp.Decode(&data); err != nil {
		return 0, err
	}

	for _, user := range data.Data {
		if user.ID != 0 && (user.RequestedUsername == "" || strings.EqualFold(user.RequestedUsername, username)) {
			return user.ID, nil
		}
	}

	return 0, fmt.Errorf("%w: %s", ErrUserNotFound, username)
}
