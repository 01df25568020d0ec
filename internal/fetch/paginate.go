package fetch

import (
	"context"
)

// Page is one page of a cursor-paginated listing.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// PageFunc fetches the page at the given cursor. The first call receives an empty cursor.
type PageFunc[T any] func(ctx context.Context, cursor string) (*Page[T], error)

// PageResult holds the items collected by Paginate.
type PageResult[T any] struct {
	Items         []T
	Pages         int
	Truncated     bool // More pages existed beyond maxPages
	CycleDetected bool // The upstream returned a cursor that was already visited
}

// Paginate follows next cursors until the listing ends, maxPages is reached, or a cursor repeats.
// A maxPages of zero or less means no page limit. Items collected before an error are discarded.
func Paginate[T any](ctx context.Context, fetch PageFunc[T], maxPages int) (*PageResult[T], error) {
	result := &PageResult[T]{}
	seen := make(map[string]struct{})
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}

		result.Pages++
		result.Items = append(result.Items, page.Items...)

		next := page.NextCursor
		if next == "" {
			return result, nil
		}

		if _, ok := seen[next]; ok || next == cursor {
			result.CycleDetected = true
			return result, nil
		}

		if maxPages > 0 && result.Pages >= maxPages {
			result.Truncated = true
			return result, nil
		}

		seen[next] = struct{}{}
		cursor = next
	}
}
