package fetch_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/robalyx/bgcheck/internal/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errPage = errors.New("page failed")

// numberedPages returns a PageFunc serving total pages of two items each.
func numberedPages(total int, calls *int) fetch.PageFunc[int] {
	return func(_ context.Context, cursor string) (*fetch.Page[int], error) {
		*calls++

		index := 0
		if cursor != "" {
			index, _ = strconv.Atoi(cursor)
		}

		next := ""
		if index+1 < total {
			next = strconv.Itoa(index + 1)
		}

		return &fetch.Page[int]{Items: []int{index * 2, index*2 + 1}, NextCursor: next}, nil
	}
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		total         int
		maxPages      int
		expectedPages int
		expectedItems []int
		truncated     bool
	}{
		{
			name:          "single page",
			total:         1,
			maxPages:      2,
			expectedPages: 1,
			expectedItems: []int{0, 1},
		},
		{
			name:          "stops at end of listing",
			total:         2,
			maxPages:      5,
			expectedPages: 2,
			expectedItems: []int{0, 1, 2, 3},
		},
		{
			name:          "stops at page limit",
			total:         10,
			maxPages:      2,
			expectedPages: 2,
			expectedItems: []int{0, 1, 2, 3},
			truncated:     true,
		},
		{
			name:          "no page limit",
			total:         4,
			maxPages:      0,
			expectedPages: 4,
			expectedItems: []int{0, 1, 2, 3, 4, 5, 6, 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			result, err := fetch.Paginate(t.Context(), numberedPages(tt.total, &calls), tt.maxPages)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedPages, result.Pages)
			assert.Equal(t, tt.expectedPages, calls)
			assert.Equal(t, tt.expectedItems, result.Items)
			assert.Equal(t, tt.truncated, result.Truncated)
			assert.False(t, result.CycleDetected)
		})
	}
}

func TestPaginateRepeatedCursorTerminates(t *testing.T) {
	t.Parallel()

	calls := 0
	fetchPage := func(_ context.Context, cursor string) (*fetch.Page[string], error) {
		calls++
		if cursor == "" {
			return &fetch.Page[string]{Items: []string{"a"}, NextCursor: "loop"}, nil
		}
		return &fetch.Page[string]{Items: []string{"b"}, NextCursor: "loop"}, nil
	}

	result, err := fetch.Paginate(t.Context(), fetchPage, 0)
	require.NoError(t, err)

	assert.True(t, result.CycleDetected)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"a", "b"}, result.Items)
}

func TestPaginateError(t *testing.T) {
	t.Parallel()

	fetchPage := func(_ context.Context, cursor string) (*fetch.Page[int], error) {
		if cursor == "" {
			return &fetch.Page[int]{Items: []int{1}, NextCursor: "next"}, nil
		}
		return nil, errPage
	}

	result, err := fetch.Paginate(t.Context(), fetchPage, 5)
	require.ErrorIs(t, err, errPage)
	assert.Nil(t, result)
}
