package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/bgcheck/internal/roblox/fetcher"
	"go.uber.org/zap"
)

var (
	// ErrInvalidInput indicates zero or several identifier forms were supplied.
	ErrInvalidInput = errors.New("exactly one of discord user, roblox user id or username is required")
	// ErrNotVerified indicates the Discord user has no linked Roblox account.
	ErrNotVerified = errors.New("discord user is not verified")
	// ErrNameNotFound indicates no Roblox account has the given username.
	ErrNameNotFound = errors.New("username not found")
)

// usernamePattern matches valid Roblox usernames.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// Source records which identifier form produced a resolution.
type Source string

const (
	SourceDiscord  Source = "discord"
	SourceRobloxID Source = "roblox_id"
	SourceUsername Source = "username"
)

// Input identifies the subject of a background check. Exactly one field must be set.
type Input struct {
	DiscordUserID *snowflake.ID
	RobloxUserID  *uint64
	Username      string
}

// Resolution is the canonical subject identifier.
type Resolution struct {
	UserID uint64 `json:"userId"`
	Source Source `json:"source"`
}

// VerificationLookup maps Discord users to Roblox users.
type VerificationLookup interface {
	DiscordToRoblox(ctx context.Context, guildID, discordID snowflake.ID) (uint64, error)
}

// UsernameLookup maps usernames to Roblox users.
type UsernameLookup interface {
	GetUserIDByName(ctx context.Context, username string) (uint64, error)
}

// Resolver converts an Input into a Roblox user ID.
type Resolver struct {
	verification VerificationLookup
	users        UsernameLookup
	logger       *zap.Logger
}

// NewResolver creates a Resolver using the given lookups.
func NewResolver(verification VerificationLookup, users UsernameLookup, logger *zap.Logger) *Resolver {
	return &Resolver{
		verification: verification,
		users:        users,
		logger:       logger.Named("identity"),
	}
}

// Resolve returns the Roblox user ID for the input within the given guild.
func (r *Resolver) Resolve(ctx context.Context, guildID snowflake.ID, input Input) (*Resolution, error) {
	username := strings.TrimSpace(input.Username)

	set := 0
	if input.DiscordUserID != nil {
		set++
	}
	if input.RobloxUserID != nil {
		set++
	}
	if username != "" {
		set++
	}

	if set != 1 {
		return nil, ErrInvalidInput
	}

	switch {
	case input.RobloxUserID != nil:
		if *input.RobloxUserID == 0 {
			return nil, fmt.Errorf("%w: roblox user id must be positive", ErrInvalidInput)
		}

		return &Resolution{UserID: *input.RobloxUserID, Source: SourceRobloxID}, nil

	case input.DiscordUserID != nil:
		userID, err := r.verification.DiscordToRoblox(ctx, guildID, *input.DiscordUserID)
		if err != nil {
			if errors.Is(err, fetcher.ErrNotLinked) {
				return nil, fmt.Errorf("%w: %w", ErrNotVerified, err)
			}

			return nil, err
		}

		r.logger.Debug("Resolved discord user",
			zap.String("discordID", input.DiscordUserID.String()),
			zap.Uint64("userID", userID))

		return &Resolution{UserID: userID, Source: SourceDiscord}, nil

	default:
		if !usernamePattern.MatchString(username) {
			return nil, fmt.Errorf("%w: %q is not a valid username", ErrNameNotFound, username)
		}

		userID, err := r.users.GetUserIDByName(ctx, username)
		if err != nil {
			if errors.Is(err, fetcher.ErrUserNotFound) {
				return nil, fmt.Errorf("%w: %w", ErrNameNotFound, err)
			}

			return nil, err
		}

		r.logger.Debug("Resolved username",
			zap.String("username", username),
			zap.Uint64("userID", userID))

		return &Resolution{UserID: userID, Source: SourceUsername}, nil
	}
}
