package fetcher

import (
	"context"
	"fmt"

	"github.com/robalyx/bgcheck/internal/fetch"
	"go.uber.org/zap"
)

// AssetDetails is the catalog information used to price an item.
type AssetDetails struct {
	AssetID         uint64 `json:"AssetId"`
	Name            string `json:"Name"`
	PriceInRobux    *int64 `json:"PriceInRobux"`
	IsForSale       bool   `json:"IsForSale"`
	IsLimited       bool   `json:"IsLimited"`
	IsLimitedUnique bool   `json:"IsLimitedUnique"`
}

// IsCollectible reports whether the item trades on the resale market.
func (a *AssetDetails) IsCollectible() bool {
	return a.IsLimited || a.IsLimitedUnique
}

// ResaleData is the resale market summary of a limited item.
type ResaleData struct {
	AssetStock         *int64 `json:"assetStock"`
	Sales              int64  `json:"sales"`
	RecentAveragePrice int64  `json:"recentAveragePrice"`
	OriginalPrice      *int64 `json:"originalPrice"`
}

// EconomyFetcher handles retrieval of item prices from the Roblox economy API.
type EconomyFetcher struct {
	client  *fetch.Client
	baseURL string
	logger  *zap.Logger
}

// NewEconomyFetcher creates an EconomyFetcher with the provided client and logger.
func NewEconomyFetcher(client *fetch.Client, baseURL string, logger *zap.Logger) *EconomyFetcher {
	return &EconomyFetcher{
		client:  client,
		baseURL: baseURL,
		logger:  logger.Named("economy_fetcher"),
	}
}

// GetAssetDetails retrieves the catalog details of an asset.
func (e *EconomyFetcher) GetAssetDetails(ctx context.Context, assetID uint64) (*AssetDetails, error) {
	resp, err := e.client.Do(ctx, &fetch.Request{
		URL: fmt.Sprintf("%s/v2/assets/%d/details", e.baseURL, assetID),
	})
	if err != nil {
		return nil, upstreamError("failed to fetch asset details", err)
	}

	var data AssetDetails
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	return &data, nil
}

// GetResaleData retrieves the resale summary of a limited asset.
func (e *EconomyFetcher) GetResaleData(ctx context.Context, assetID uint64) (*ResaleData, error) {
	resp, err := e.client.Do(ctx, &fetch.Request{
		URL: fmt.Sprintf("%s/v1/assets/%d/resale-data", e.baseURL, assetID),
	})
	if err != nil {
		return nil, upstreamError("failed to fetch resale data", err)
	}

	var data ResaleData
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	e.logger.Debug("Fetched resale data",
		zap.Uint64("assetID", assetID),
		zap.Int64("recentAveragePrice", data.RecentAveragePrice))

	return &data, nil
}
