package valuation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robalyx/bgcheck/internal/fetch"
	"github.com/robalyx/bgcheck/internal/progress"
	"github.com/robalyx/bgcheck/internal/roblox/fetcher"
	"github.com/robalyx/bgcheck/internal/setup/config"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Sample size bounds applied regardless of configuration.
const (
	MinSampleSize = 30
	MaxSampleSize = 300
)

// Share of the progress bar spent scanning. Pricing fills the rest up to 99.
const scanProgressShare = 40

// Caveats attached to estimates.
const (
	CaveatInventoryPrivate   = "Inventory is private, no valuation possible"
	CaveatPricingUnavailable = "No sampled item had a price, value unavailable"
	CaveatEmptyInventory     = "No items found in the scanned categories, value unavailable"
	CaveatCanceled           = "Valuation was canceled before completion"
	CaveatPricingRateLimited = "Pricing was rate limited, some items were left out of the estimate"
)

var errInventoryPrivate = errors.New("inventory private")

// InventorySource pages through a user's holdings of one asset type.
type InventorySource interface {
	GetAssetPage(ctx context.Context, userID uint64, assetType int, limit int, cursor string) (*fetch.Page[uint64], error)
}

// PriceSource looks up item prices.
type PriceSource interface {
	GetAssetDetails(ctx context.Context, assetID uint64) (*fetcher.AssetDetails, error)
	GetResaleData(ctx context.Context, assetID uint64) (*fetcher.ResaleData, error)
}

// Options bounds the cost of a valuation run.
type Options struct {
	PagesPerCategory   int
	PageSize           int
	SampleSize         int
	ScanConcurrency    int
	PricingConcurrency int
	ProgressEvery      int
	UseResaleData      bool
}

// DefaultOptions returns the default valuation limits.
func DefaultOptions() Options {
	return Options{
		PagesPerCategory:   2,
		PageSize:           100,
		SampleSize:         100,
		ScanConcurrency:    4,
		PricingConcurrency: 4,
		ProgressEvery:      10,
		UseResaleData:      true,
	}
}

// OptionsFromConfig builds Options from configuration, keeping defaults for unset values.
func OptionsFromConfig(cfg *config.Valuation) Options {
	opts := DefaultOptions()
	if cfg.PagesPerCategory > 0 {
		opts.PagesPerCategory = cfg.PagesPerCategory
	}
	if cfg.PageSize > 0 {
		opts.PageSize = cfg.PageSize
	}
	if cfg.SampleSize > 0 {
		opts.SampleSize = cfg.SampleSize
	}
	if cfg.ScanConcurrency > 0 {
		opts.ScanConcurrency = cfg.ScanConcurrency
	}
	if cfg.PricingConcurrency > 0 {
		opts.PricingConcurrency = cfg.PricingConcurrency
	}
	if cfg.ProgressEvery > 0 {
		opts.ProgressEvery = cfg.ProgressEvery
	}
	if cfg.UseResaleData != nil {
		opts.UseResaleData = *cfg.UseResaleData
	}

	return opts
}

// ClampSampleSize bounds a requested sample size to [MinSampleSize, MaxSampleSize].
func ClampSampleSize(n int) int {
	return min(max(n, MinSampleSize), MaxSampleSize)
}

// Estimate is a best-effort, sampled valuation of a user's inventory.
type Estimate struct {
	State            State            `json:"state"`
	Categories       []CategoryResult `json:"categories"`
	DistinctItems    int              `json:"distinctItems"`
	SampledItems     int              `json:"sampledItems"`
	PricedItems      int              `json:"pricedItems"`
	FailedPrices     int              `json:"failedPrices"`
	RateLimited      int              `json:"rateLimited"`    // Failed prices caused by upstream rate limiting
	EstimatedValue   *int64           `json:"estimatedValue"` // Nil when no item could be priced
	InventoryPrivate bool             `json:"inventoryPrivate"`
	Caveats          []string         `json:"caveats"`
}

// Estimator scans inventories and prices a bounded sample of the holdings.
type Estimator struct {
	inventory InventorySource
	prices    PriceSource
	opts      Options
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewEstimator creates an Estimator.
func NewEstimator(inventory InventorySource, prices PriceSource, opts Options, logger *zap.Logger) *Estimator {
	return &Estimator{
		inventory: inventory,
		prices:    prices,
		opts:      opts,
		logger:    logger.Named("valuation"),
		tracer:    otel.Tracer("github.com/robalyx/bgcheck/internal/valuation"),
	}
}

// Estimate values the inventory of a user. Failures are recorded in the estimate instead of
// being returned. The stream, if not nil, receives progress and is finished before returning.
func (e *Estimator) Estimate(ctx context.Context, userID uint64, stream *progress.Stream) *Estimate {
	defer stream.Finish("Valuation complete")

	ctx, span := e.tracer.Start(ctx, "valuation.Estimate", trace.WithAttributes(
		attribute.Int64("roblox.user_id", int64(userID)), //nolint:gosec // ids fit in int64
	))
	defer span.End()

	estimate := &Estimate{State: StateScanningInventory, Caveats: []string{}}
	stream.Emit(0, "Scanning inventory")

	private := e.scan(ctx, userID, estimate, stream)
	if private {
		estimate.State = StateBlocked
		estimate.InventoryPrivate = true
		estimate.Caveats = append(estimate.Caveats, CaveatInventoryPrivate)

		span.SetAttributes(attribute.String("valuation.state", estimate.State.String()))
		e.logger.Debug("Inventory is private", zap.Uint64("userID", userID))

		return estimate
	}

	assets := merge(estimate.Categories)
	estimate.DistinctItems = len(assets)

	if ctx.Err() != nil {
		estimate.State = StateDone
		estimate.Caveats = append(estimate.Caveats, CaveatCanceled)

		return estimate
	}

	sample := assets[:min(len(assets), ClampSampleSize(e.opts.SampleSize))]
	estimate.SampledItems = len(sample)
	if len(sample) < len(assets) {
		estimate.Caveats = append(estimate.Caveats,
			fmt.Sprintf("Only %d of %d distinct items were priced", len(sample), len(assets)))
	}

	estimate.State = StatePricingSample
	stream.Emit(scanProgressShare, fmt.Sprintf("Pricing %d items", len(sample)))

	e.price(ctx, sample, estimate, stream)

	switch {
	case ctx.Err() != nil:
		estimate.Caveats = append(estimate.Caveats, CaveatCanceled)
	case len(assets) == 0:
		estimate.Caveats = append(estimate.Caveats, CaveatEmptyInventory)
	case estimate.PricedItems == 0:
		estimate.Caveats = append(estimate.Caveats, CaveatPricingUnavailable)
	}

	if estimate.PricedItems == 0 {
		estimate.EstimatedValue = nil
	}

	estimate.State = StateDone

	span.SetAttributes(
		attribute.String("valuation.state", estimate.State.String()),
		attribute.Int("valuation.distinct", estimate.DistinctItems),
		attribute.Int("valuation.priced", estimate.PricedItems),
	)

	e.logger.Debug("Finished valuation",
		zap.Uint64("userID", userID),
		zap.Int("distinctItems", estimate.DistinctItems),
		zap.Int("sampledItems", estimate.SampledItems),
		zap.Int("pricedItems", estimate.PricedItems))

	return estimate
}

// scan pages through every category concurrently. Returns true if the inventory is private.
func (e *Estimator) scan(ctx context.Context, userID uint64, estimate *Estimate, stream *progress.Stream) bool {
	results := make([]CategoryResult, len(Categories))
	for i, category := range Categories {
		results[i] = CategoryResult{Category: category, Status: CategorySkipped}
	}

	var (
		completed atomic.Int32
		p         = pool.New().
				WithContext(ctx).
				WithMaxGoroutines(max(e.opts.ScanConcurrency, 1)).
				WithCancelOnError()
	)

	for i, category := range Categories {
		p.Go(func(ctx context.Context) error {
			result := &results[i]

			fetchPage := func(ctx context.Context, cursor string) (*fetch.Page[uint64], error) {
				return e.inventory.GetAssetPage(ctx, userID, category.AssetType, e.opts.PageSize, cursor)
			}

			pages, err := fetch.Paginate(ctx, fetchPage, e.opts.PagesPerCategory)

			done := int(completed.Add(1))
			stream.Emit(done*scanProgressShare/len(Categories), "Scanned "+category.Name)

			switch {
			case err == nil:
				result.Status = CategoryOK
				result.Items = len(pages.Items)
				result.Pages = pages.Pages
				result.Truncated = pages.Truncated
				result.assets = pages.Items

				return nil
			case fetch.IsPrivate(err):
				result.Status = CategoryPrivate
				return errInventoryPrivate
			case ctx.Err() != nil:
				result.Status = CategoryCanceled
				return nil
			default:
				result.Status = CategoryFailed
				e.logger.Warn("Failed to scan inventory category",
					zap.Uint64("userID", userID),
					zap.String("category", category.Name),
					zap.Error(err))

				return nil
			}
		})
	}

	err := p.Wait()
	estimate.Categories = results

	for _, result := range results {
		if result.Status == CategoryFailed {
			estimate.Caveats = append(estimate.Caveats,
				fmt.Sprintf("Category %s could not be scanned", result.Name))
		}
	}

	return errors.Is(err, errInventoryPrivate)
}

// merge returns the distinct asset IDs in category order.
func merge(results []CategoryResult) []uint64 {
	seen := make(map[uint64]struct{})

	var assets []uint64
	for _, result := range results {
		for _, id := range result.assets {
			if _, ok := seen[id]; ok {
				continue
			}

			seen[id] = struct{}{}
			assets = append(assets, id)
		}
	}

	return assets
}

// price looks up every sampled item with bounded concurrency and sums the prices found.
func (e *Estimator) price(ctx context.Context, sample []uint64, estimate *Estimate, stream *progress.Stream) {
	if len(sample) == 0 {
		return
	}

	var (
		total       int64
		priced      int
		failed      int
		rateLimited int
		done        atomic.Int32
		mu          sync.Mutex
		p           = pool.New().WithContext(ctx).WithMaxGoroutines(max(e.opts.PricingConcurrency, 1))
		every       = max(e.opts.ProgressEvery, 1)
	)

	for _, assetID := range sample {
		p.Go(func(ctx context.Context) error {
			value, err := e.priceItem(ctx, assetID)

			mu.Lock()
			switch {
			case err != nil:
				failed++
				if fetch.IsRateLimited(err) {
					rateLimited++
				}
			case value > 0:
				total += value
				priced++
			}
			mu.Unlock()

			n := int(done.Add(1))
			if n == 1 || n%every == 0 || n == len(sample) {
				percent := scanProgressShare + n*(99-scanProgressShare)/len(sample)
				stream.Emit(percent, fmt.Sprintf("Priced %d/%d items", n, len(sample)))
			}

			return nil
		})
	}

	_ = p.Wait()

	estimate.PricedItems = priced
	estimate.FailedPrices = failed
	estimate.RateLimited = rateLimited
	if priced > 0 {
		estimate.EstimatedValue = &total
	}

	if failed > 0 && ctx.Err() == nil {
		estimate.Caveats = append(estimate.Caveats, fmt.Sprintf("%d items could not be priced", failed))
	}
	if rateLimited > 0 && ctx.Err() == nil {
		estimate.Caveats = append(estimate.Caveats, CaveatPricingRateLimited)
	}
}

// priceItem returns the Robux value of one item, or zero if it has no price.
// Collectibles use the recent average resale price when resale data is enabled.
func (e *Estimator) priceItem(ctx context.Context, assetID uint64) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	details, err := e.prices.GetAssetDetails(ctx, assetID)
	if err != nil {
		return 0, err
	}

	if details.IsCollectible() && e.opts.UseResaleData {
		resale, err := e.prices.GetResaleData(ctx, assetID)
		if err == nil && resale.RecentAveragePrice > 0 {
			return resale.RecentAveragePrice, nil
		}

		if err != nil {
			e.logger.Debug("Failed to fetch resale data",
				zap.Uint64("assetID", assetID),
				zap.Error(err))
		}
	}

	if details.PriceInRobux != nil && *details.PriceInRobux > 0 {
		return *details.PriceInRobux, nil
	}

	return 0, nil
}
