package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/robalyx/bgcheck/internal/fetch"
	"go.uber.org/zap"
)

// inventoryResponse is one page of a user's holdings for an asset type.
type inventoryResponse struct {
	Data []struct {
		AssetID uint64 `json:"assetId"`
		Name    string `json:"name"`
	} `json:"data"`
	NextPageCursor *string `json:"nextPageCursor"`
}

// InventoryFetcher handles retrieval of user inventory pages from the Roblox inventory API.
type InventoryFetcher struct {
	client  *fetch.Client
	baseURL string
	logger  *zap.Logger
}

// NewInventoryFetcher creates an InventoryFetcher with the provided client and logger.
func NewInventoryFetcher(client *fetch.Client, baseURL string, logger *zap.Logger) *InventoryFetcher {
	return &InventoryFetcher{
		client:  client,
		baseURL: baseURL,
		logger:  logger.Named("inventory_fetcher"),
	}
}

// GetAssetPage retrieves one page of asset IDs the user holds for the given asset type.
// Private inventories fail with a status error that fetch.IsPrivate recognizes.
func (i *InventoryFetcher) GetAssetPage(
	ctx context.Context, userID uint64, assetType int, limit int, cursor string,
) (*fetch.Page[uint64], error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("sortOrder", "Desc")
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	resp, err := i.client.Do(ctx, &fetch.Request{
		URL:   fmt.Sprintf("%s/v2/users/%d/inventory/%d", i.baseURL, userID, assetType),
		Query: query,
	})
	if err != nil {
		return nil, upstreamError("failed to fetch inventory page", err)
	}

	var data inventoryResponse
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	page := &fetch.Page[uint64]{Items: make([]uint64, 0, len(data.Data))}
	for _, asset := range data.Data {
		page.Items = append(page.Items, asset.AssetID)
	}

	if data.NextPageCursor != nil {
		page.NextCursor = *data.NextPageCursor
	}

	i.logger.Debug("Fetched inventory page",
		zap.Uint64("userID", userID),
		zap.Int("assetType", assetType),
		zap.Int("items", len(page.Items)))

	return page, nil
}
