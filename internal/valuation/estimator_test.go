package valuation_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/robalyx/bgcheck/internal/fetch"
	"github.com/robalyx/bgcheck/internal/progress"
	"github.com/robalyx/bgcheck/internal/roblox/fetcher"
	"github.com/robalyx/bgcheck/internal/setup/config"
	"github.com/robalyx/bgcheck/internal/valuation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errUpstream = errors.New("upstream down")

// mockInventory serves fixed items per asset type, one page each.
type mockInventory struct {
	items   map[int][]uint64
	private bool
	denied  map[int]bool
	failing map[int]bool

	mu    sync.Mutex
	calls int
}

func (m *mockInventory) GetAssetPage(_ context.Context, _ uint64, assetType int, _ int, _ string) (*fetch.Page[uint64], error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.private {
		return nil, &fetch.Error{Kind: fetch.KindStatus, StatusCode: http.StatusForbidden}
	}
	if m.denied[assetType] {
		return nil, &fetch.Error{Kind: fetch.KindStatus, StatusCode: http.StatusUnauthorized}
	}
	if m.failing[assetType] {
		return nil, errUpstream
	}

	return &fetch.Page[uint64]{Items: m.items[assetType]}, nil
}

// mockPrices prices each asset at its id unless listed otherwise.
type mockPrices struct {
	unpriced    map[uint64]bool
	limited     map[uint64]int64
	throttled   map[uint64]bool
	failDetails bool

	mu          sync.Mutex
	detailCalls map[uint64]int
	resaleCalls int
}

func (m *mockPrices) GetAssetDetails(_ context.Context, assetID uint64) (*fetcher.AssetDetails, error) {
	m.mu.Lock()
	if m.detailCalls == nil {
		m.detailCalls = make(map[uint64]int)
	}
	m.detailCalls[assetID]++
	m.mu.Unlock()

	if m.failDetails {
		return nil, errUpstream
	}
	if m.throttled[assetID] {
		exhausted := &fetch.Error{Kind: fetch.KindExhausted, StatusCode: http.StatusTooManyRequests, Err: fetch.ErrRetryableStatus}
		return nil, fmt.Errorf("failed to fetch asset details: %w: %w", fetcher.ErrUpstreamUnavailable, exhausted)
	}

	details := &fetcher.AssetDetails{AssetID: assetID, Name: "Item " + strconv.FormatUint(assetID, 10)}
	if _, ok := m.limited[assetID]; ok {
		details.IsLimited = true
		return details, nil
	}
	if !m.unpriced[assetID] {
		price := int64(assetID)
		details.PriceInRobux = &price
	}

	return details, nil
}

func (m *mockPrices) GetResaleData(_ context.Context, assetID uint64) (*fetcher.ResaleData, error) {
	m.mu.Lock()
	m.resaleCalls++
	m.mu.Unlock()

	return &fetcher.ResaleData{RecentAveragePrice: m.limited[assetID]}, nil
}

func (m *mockPrices) totalDetailCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, n := range m.detailCalls {
		total += n
	}
	return total
}

func TestEstimateDeduplicatesAcrossCategories(t *testing.T) {
	t.Parallel()

	inventory := &mockInventory{items: map[int][]uint64{
		8:  {10, 20},
		41: {20, 30},
		19: {10},
	}}
	prices := &mockPrices{}

	estimator := valuation.NewEstimator(inventory, prices, valuation.DefaultOptions(), zaptest.NewLogger(t))
	estimate := estimator.Estimate(t.Context(), 1, nil)

	assert.Equal(t, valuation.StateDone, estimate.State)
	assert.Equal(t, 3, estimate.DistinctItems)
	assert.Equal(t, 3, estimate.SampledItems)
	assert.Equal(t, 3, estimate.PricedItems)
	require.NotNil(t, estimate.EstimatedValue)
	assert.Equal(t, int64(60), *estimate.EstimatedValue)

	assert.Equal(t, 3, prices.totalDetailCalls())
	for id, n := range prices.detailCalls {
		assert.Equal(t, 1, n, "asset %d priced more than once", id)
	}

	require.Len(t, estimate.Categories, len(valuation.Categories))
	assert.Equal(t, "Hat", estimate.Categories[0].Name)
	assert.Equal(t, valuation.CategoryOK, estimate.Categories[0].Status)
	assert.Equal(t, 2, estimate.Categories[0].Items)
}

func TestEstimatePrivateInventory(t *testing.T) {
	t.Parallel()

	inventory := &mockInventory{private: true}
	prices := &mockPrices{}

	estimator := valuation.NewEstimator(inventory, prices, valuation.DefaultOptions(), zaptest.NewLogger(t))
	estimate := estimator.Estimate(t.Context(), 1, nil)

	assert.Equal(t, valuation.StateBlocked, estimate.State)
	assert.True(t, estimate.InventoryPrivate)
	assert.Nil(t, estimate.EstimatedValue)
	assert.Contains(t, estimate.Caveats, valuation.CaveatInventoryPrivate)
	assert.Zero(t, prices.totalDetailCalls())
	assert.Zero(t, estimate.SampledItems)
}

func TestEstimateSingleDeniedCategoryBlocksInventory(t *testing.T) {
	t.Parallel()

	inventory := &mockInventory{
		items: map[int][]uint64{
			8:  {1, 2},
			41: {3},
			11: {4},
		},
		denied: map[int]bool{19: true},
	}
	prices := &mockPrices{}

	estimator := valuation.NewEstimator(inventory, prices, valuation.DefaultOptions(), zaptest.NewLogger(t))
	estimate := estimator.Estimate(t.Context(), 1, nil)

	assert.Equal(t, valuation.StateBlocked, estimate.State)
	assert.True(t, estimate.InventoryPrivate)
	assert.Nil(t, estimate.EstimatedValue)
	assert.Equal(t, []string{valuation.CaveatInventoryPrivate}, estimate.Caveats)
	assert.Zero(t, prices.totalDetailCalls())

	for _, c := range estimate.Categories {
		if c.AssetType == 19 {
			assert.Equal(t, valuation.CategoryPrivate, c.Status)
		}
	}
}

func TestEstimateNothingPriced(t *testing.T) {
	t.Parallel()

	inventory := &mockInventory{items: map[int][]uint64{8: {1, 2, 3}}}
	prices := &mockPrices{unpriced: map[uint64]bool{1: true, 2: true, 3: true}}

	estimator := valuation.NewEstimator(inventory, prices, valuation.DefaultOptions(), zaptest.NewLogger(t))
	estimate := estimator.Estimate(t.Context(), 1, nil)

	assert.Equal(t, valuation.StateDone, estimate.State)
	assert.Zero(t, estimate.PricedItems)
	assert.Nil(t, estimate.EstimatedValue)
	assert.Contains(t, estimate.Caveats, valuation.CaveatPricingUnavailable)
}

func TestEstimateEmptyInventory(t *testing.T) {
	t.Parallel()

	estimator := valuation.NewEstimator(&mockInventory{}, &mockPrices{}, valuation.DefaultOptions(), zaptest.NewLogger(t))
	estimate := estimator.Estimate(t.Context(), 1, nil)

	assert.Equal(t, valuation.StateDone, estimate.State)
	assert.Nil(t, estimate.EstimatedValue)
	assert.Contains(t, estimate.Caveats, valuation.CaveatEmptyInventory)
}

func TestEstimatePricingFailures(t *testing.T) {
	t.Parallel()

	inventory := &mockInventory{items: map[int][]uint64{8: {1, 2}}}
	prices := &mockPrices{failDetails: true}

	estimator := valuation.NewEstimator(inventory, prices, valuation.DefaultOptions(), zaptest.NewLogger(t))
	estimate := estimator.Estimate(t.Context(), 1, nil)

	assert.Equal(t, 2, estimate.FailedPrices)
	assert.Nil(t, estimate.EstimatedValue)
	assert.Contains(t, estimate.Caveats, "2 items could not be priced")
	assert.Contains(t, estimate.Caveats, valuation.CaveatPricingUnavailable)
}

func TestEstimateRateLimitedPricing(t *testing.T) {
	t.Parallel()

	inventory := &mockInventory{items: map[int][]uint64{8: {1, 2, 3}}}
	prices := &mockPrices{throttled: map[uint64]bool{2: true, 3: true}}

	estimator := valuation.NewEstimator(inventory, prices, valuation.DefaultOptions(), zaptest.NewLogger(t))
	estimate := estimator.Estimate(t.Context(), 1, nil)

	assert.Equal(t, valuation.StateDone, estimate.State)
	assert.Equal(t, 1, estimate.PricedItems)
	assert.Equal(t, 2, estimate.FailedPrices)
	assert.Equal(t, 2, estimate.RateLimited)
	require.NotNil(t, estimate.EstimatedValue)
	assert.Equal(t, int64(1), *estimate.EstimatedValue)
	assert.Contains(t, estimate.Caveats, "2 items could not be priced")
	assert.Contains(t, estimate.Caveats, valuation.CaveatPricingRateLimited)

	// Other failures are not reported as rate limiting
	estimate = valuation.NewEstimator(inventory, &mockPrices{failDetails: true}, valuation.DefaultOptions(),
		zaptest.NewLogger(t)).Estimate(t.Context(), 1, nil)
	assert.Zero(t, estimate.RateLimited)
	assert.NotContains(t, estimate.Caveats, valuation.CaveatPricingRateLimited)
}

func TestEstimateCategoryFailureIsCaveat(t *testing.T) {
	t.Parallel()

	inventory := &mockInventory{
		items:   map[int][]uint64{8: {5}},
		failing: map[int]bool{19: true},
	}

	estimator := valuation.NewEstimator(inventory, &mockPrices{}, valuation.DefaultOptions(), zaptest.NewLogger(t))
	estimate := estimator.Estimate(t.Context(), 1, nil)

	assert.Equal(t, valuation.StateDone, estimate.State)
	assert.Contains(t, estimate.Caveats, "Category Gear could not be scanned")
	require.NotNil(t, estimate.EstimatedValue)
	assert.Equal(t, int64(5), *estimate.EstimatedValue)

	var gear valuation.CategoryResult
	for _, c := range estimate.Categories {
		if c.AssetType == 19 {
			gear = c
		}
	}
	assert.Equal(t, valuation.CategoryFailed, gear.Status)
}

func TestEstimateUsesResaleForLimiteds(t *testing.T) {
	t.Parallel()

	inventory := &mockInventory{items: map[int][]uint64{8: {7, 1000}}}
	prices := &mockPrices{limited: map[uint64]int64{1000: 25000}}

	estimator := valuation.NewEstimator(inventory, prices, valuation.DefaultOptions(), zaptest.NewLogger(t))
	estimate := estimator.Estimate(t.Context(), 1, nil)

	require.NotNil(t, estimate.EstimatedValue)
	assert.Equal(t, int64(25007), *estimate.EstimatedValue)
	assert.Equal(t, 1, prices.resaleCalls)

	opts := valuation.DefaultOptions()
	opts.UseResaleData = false
	prices = &mockPrices{limited: map[uint64]int64{1000: 25000}}

	estimate = valuation.NewEstimator(inventory, prices, opts, zaptest.NewLogger(t)).Estimate(t.Context(), 1, nil)
	require.NotNil(t, estimate.EstimatedValue)
	assert.Equal(t, int64(7), *estimate.EstimatedValue)
	assert.Zero(t, prices.resaleCalls)
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	enabled, disabled := true, false

	tests := []struct {
		name     string
		cfg      config.Valuation
		expected func(opts *valuation.Options)
	}{
		{
			name:     "unset keeps defaults",
			cfg:      config.Valuation{},
			expected: func(*valuation.Options) {},
		},
		{
			name: "resale data disabled",
			cfg:  config.Valuation{UseResaleData: &disabled},
			expected: func(opts *valuation.Options) {
				opts.UseResaleData = false
			},
		},
		{
			name: "explicit values",
			cfg: config.Valuation{
				PagesPerCategory: 1,
				SampleSize:       50,
				UseResaleData:    &enabled,
			},
			expected: func(opts *valuation.Options) {
				opts.PagesPerCategory = 1
				opts.SampleSize = 50
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			expected := valuation.DefaultOptions()
			tt.expected(&expected)

			assert.Equal(t, expected, valuation.OptionsFromConfig(&tt.cfg))
		})
	}
}

func TestEstimateSampleIsBounded(t *testing.T) {
	t.Parallel()

	items := make([]uint64, 0, 50)
	for i := range 50 {
		items = append(items, uint64(i+1))
	}

	opts := valuation.DefaultOptions()
	opts.SampleSize = 5 // Raised to the minimum

	inventory := &mockInventory{items: map[int][]uint64{8: items}}
	prices := &mockPrices{}

	estimate := valuation.NewEstimator(inventory, prices, opts, zaptest.NewLogger(t)).Estimate(t.Context(), 1, nil)

	assert.Equal(t, 50, estimate.DistinctItems)
	assert.Equal(t, valuation.MinSampleSize, estimate.SampledItems)
	assert.Equal(t, valuation.MinSampleSize, prices.totalDetailCalls())
	assert.Contains(t, estimate.Caveats, "Only 30 of 50 distinct items were priced")
}

func TestClampSampleSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 30, valuation.ClampSampleSize(0))
	assert.Equal(t, 100, valuation.ClampSampleSize(100))
	assert.Equal(t, 300, valuation.ClampSampleSize(10000))
}

func TestEstimateProgress(t *testing.T) {
	t.Parallel()

	inventory := &mockInventory{items: map[int][]uint64{8: {1, 2, 3}}}
	stream := progress.NewStream(progress.WithMinInterval(0), progress.WithBuffer(256))

	estimator := valuation.NewEstimator(inventory, &mockPrices{}, valuation.DefaultOptions(), zaptest.NewLogger(t))
	estimator.Estimate(t.Context(), 1, stream)

	var updates []progress.Update
	for update := range stream.Updates() {
		updates = append(updates, update)
	}

	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, 100, last.Percent)
	assert.True(t, last.Final)

	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Percent, updates[i-1].Percent)
	}
	for _, update := range updates[:len(updates)-1] {
		assert.Less(t, update.Percent, 100)
	}
}

func TestEstimateCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	inventory := &mockInventory{items: map[int][]uint64{8: {1}}}
	estimator := valuation.NewEstimator(inventory, &mockPrices{}, valuation.DefaultOptions(), zaptest.NewLogger(t))

	done := make(chan *valuation.Estimate, 1)
	go func() { done <- estimator.Estimate(ctx, 1, nil) }()

	select {
	case estimate := <-done:
		assert.Contains(t, estimate.Caveats, valuation.CaveatCanceled)
		assert.Nil(t, estimate.EstimatedValue)
	case <-time.After(5 * time.Second):
		t.Fatal("estimate did not return after cancellation")
	}
}
