package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/bgcheck/internal/fetch"
	"go.uber.org/zap"
)

// roverResponse is the registry answer for a Discord to Roblox lookup.
// Older registry versions name the account field roblox_id or id.
type roverResponse struct {
	RobloxID       registryID `json:"robloxId"`
	LegacyRobloxID registryID `json:"roblox_id"` //nolint:tagliatelle // legacy registry field
	ID             registryID `json:"id"`
	CachedUsername string     `json:"cachedUsername"`
	DiscordID      string     `json:"discordId"`
}

// robloxID returns the first account field that is set.
func (r *roverResponse) robloxID() uint64 {
	for _, id := range []registryID{r.RobloxID, r.LegacyRobloxID, r.ID} {
		if id != 0 {
			return uint64(id)
		}
	}

	return 0
}

// registryID is an account ID sent either as a JSON number or a string.
type registryID uint64

// UnmarshalJSON implements json.Unmarshaler.
func (id *registryID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*id = 0
		return nil
	}

	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid roblox ID %s: %w", data, err)
	}

	*id = registryID(value)

	return nil
}

// VerificationFetcher resolves Discord users to their linked Roblox accounts.
type VerificationFetcher struct {
	client  *fetch.Client
	baseURL string
	apiKey  string
	logger  *zap.Logger
}

// NewVerificationFetcher creates a VerificationFetcher for the RoVer registry.
func NewVerificationFetcher(client *fetch.Client, baseURL, apiKey string, logger *zap.Logger) *VerificationFetcher {
	return &VerificationFetcher{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger.Named("verification_fetcher"),
	}
}

// DiscordToRoblox returns the Roblox user linked to a Discord user within a guild.
func (v *VerificationFetcher) DiscordToRoblox(ctx context.Context, guildID, discordID snowflake.ID) (uint64, error) {
	header := http.Header{}
	if v.apiKey != "" {
		header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.client.Do(ctx, &fetch.Request{
		URL:    fmt.Sprintf("%s/guilds/%s/discord-to-roblox/%s", v.baseURL, guildID, discordID),
		Header: header,
	})
	if err != nil {
		if fetch.IsNotFound(err) {
			return 0, fmt.Errorf("%w: %s", ErrNotLinked, discordID)
		}

		return 0, upstreamError("failed to look up verification", err)
	}

	var data roverResponse
	if err := resp.Decode(&data); err != nil {
		return 0, err
	}

	robloxID := data.robloxID()
	if robloxID == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotLinked, discordID)
	}

	v.logger.Debug("Resolved verified account",
		zap.String("discordID", discordID.String()),
		zap.Uint64("robloxID", robloxID))

	return robloxID, nil
}
