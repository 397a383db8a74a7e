// Package view provides the pure query functions over a read-model
// snapshot: search, sort, paginate. Nothing here mutates its input; every
// function returns fresh slices over the same entries.
package view

import (
	"sort"
	"strings"

	"github.com/udlabs/pulseratings/internal/domain"
)

// MarketOrder selects a catalog sort.
type MarketOrder string

const (
	MarketsByNewest    MarketOrder = "newest"
	MarketsByUpvotes   MarketOrder = "upvotes"
	MarketsByDownvotes MarketOrder = "downvotes"
)

// UserOrder selects a leaderboard sort.
type UserOrder string

const (
	UsersByActivity       UserOrder = "activity"
	UsersByMarketsCreated UserOrder = "markets"
	UsersByUpvotes        UserOrder = "upvotes"
	UsersByDownvotes      UserOrder = "downvotes"
)

// FilterMarkets keeps entries whose URL contains the search substring,
// case-insensitively. An empty query passes everything through.
func FilterMarkets(markets []domain.CatalogEntry, search string) []domain.CatalogEntry {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return append([]domain.CatalogEntry(nil), markets...)
	}
	out := make([]domain.CatalogEntry, 0, len(markets))
	for _, m := range markets {
		if strings.Contains(strings.ToLower(m.URL), search) {
			out = append(out, m)
		}
	}
	return out
}

// SortMarkets returns the catalog in the requested order, descending. An
// unknown order falls back to newest first.
func SortMarkets(markets []domain.CatalogEntry, order MarketOrder) []domain.CatalogEntry {
	out := append([]domain.CatalogEntry(nil), markets...)
	sort.SliceStable(out, func(i, j int) bool {
		switch order {
		case MarketsByUpvotes:
			if c := out[i].Upvotes.Cmp(out[j].Upvotes); c != 0 {
				return c > 0
			}
		case MarketsByDownvotes:
			if c := out[i].Downvotes.Cmp(out[j].Downvotes); c != 0 {
				return c > 0
			}
		}
		return out[i].Sequence > out[j].Sequence
	})
	return out
}

// SortUsers returns the leaderboard in the requested order, descending. An
// unknown order falls back to total activity.
func SortUsers(users []domain.LeaderboardEntry, order UserOrder) []domain.LeaderboardEntry {
	out := append([]domain.LeaderboardEntry(nil), users...)
	sort.SliceStable(out, func(i, j int) bool {
		switch order {
		case UsersByMarketsCreated:
			if out[i].MarketsCreated != out[j].MarketsCreated {
				return out[i].MarketsCreated > out[j].MarketsCreated
			}
		case UsersByUpvotes:
			if c := out[i].Upvotes.Cmp(out[j].Upvotes); c != 0 {
				return c > 0
			}
		case UsersByDownvotes:
			if c := out[i].Downvotes.Cmp(out[j].Downvotes); c != 0 {
				return c > 0
			}
		}
		return out[i].TotalActivity.Cmp(out[j].TotalActivity) > 0
	})
	return out
}

// Page is one page of a paginated sequence. Pages are 1-indexed; PageCount
// is at least 1 even over an empty sequence.
type Page[T any] struct {
	Items      []T
	PageNumber int
	PageSize   int
	PageCount  int
	Total      int
}

// Paginate slices items into the requested 1-indexed page. A page past the
// end yields an empty page, never an error; a page number below 1 is clamped
// to 1 and a non-positive page size to a single-item page.
func Paginate[T any](items []T, pageSize, pageNumber int) Page[T] {
	if pageSize < 1 {
		pageSize = 1
	}
	if pageNumber < 1 {
		pageNumber = 1
	}
	total := len(items)
	count := (total + pageSize - 1) / pageSize
	if count < 1 {
		count = 1
	}
	start := (pageNumber - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return Page[T]{
		Items:      append([]T(nil), items[start:end]...),
		PageNumber: pageNumber,
		PageSize:   pageSize,
		PageCount:  count,
		Total:      total,
	}
}
