package view

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udlabs/pulseratings/internal/domain"
)

func catalog() []domain.CatalogEntry {
	return []domain.CatalogEntry{
		{URL: "alpha.com", Sequence: 1, Upvotes: big.NewInt(500), Downvotes: big.NewInt(10)},
		{URL: "beta.org", Sequence: 2, Upvotes: big.NewInt(100), Downvotes: big.NewInt(900)},
		{URL: "news.alpha.dev", Sequence: 3, Upvotes: big.NewInt(300), Downvotes: big.NewInt(50)},
	}
}

func TestFilterMarkets(t *testing.T) {
	markets := catalog()

	all := FilterMarkets(markets, "")
	assert.Len(t, all, 3)

	got := FilterMarkets(markets, "ALPHA")
	require.Len(t, got, 2)
	assert.Equal(t, "alpha.com", got[0].URL)
	assert.Equal(t, "news.alpha.dev", got[1].URL)

	assert.Empty(t, FilterMarkets(markets, "missing"))

	// Input order untouched.
	assert.Equal(t, "alpha.com", markets[0].URL)
}

func TestSortMarkets(t *testing.T) {
	markets := catalog()

	byNewest := SortMarkets(markets, MarketsByNewest)
	assert.Equal(t, "news.alpha.dev", byNewest[0].URL)
	assert.Equal(t, "alpha.com", byNewest[2].URL)

	byUp := SortMarkets(markets, MarketsByUpvotes)
	assert.Equal(t, "alpha.com", byUp[0].URL)

	byDown := SortMarkets(markets, MarketsByDownvotes)
	assert.Equal(t, "beta.org", byDown[0].URL)

	// Unknown order falls back to newest.
	fallback := SortMarkets(markets, MarketOrder("bogus"))
	assert.Equal(t, "news.alpha.dev", fallback[0].URL)
}

func TestSortUsers(t *testing.T) {
	users := []domain.LeaderboardEntry{
		{User: common.HexToAddress("0x01"), MarketsCreated: 5, Upvotes: big.NewInt(100), Downvotes: big.NewInt(0), TotalActivity: big.NewInt(105)},
		{User: common.HexToAddress("0x02"), MarketsCreated: 1, Upvotes: big.NewInt(900), Downvotes: big.NewInt(50), TotalActivity: big.NewInt(951)},
		{User: common.HexToAddress("0x03"), MarketsCreated: 2, Upvotes: big.NewInt(10), Downvotes: big.NewInt(400), TotalActivity: big.NewInt(412)},
	}

	byActivity := SortUsers(users, UsersByActivity)
	assert.Equal(t, common.HexToAddress("0x02"), byActivity[0].User)

	byMarkets := SortUsers(users, UsersByMarketsCreated)
	assert.Equal(t, common.HexToAddress("0x01"), byMarkets[0].User)

	byDown := SortUsers(users, UsersByDownvotes)
	assert.Equal(t, common.HexToAddress("0x03"), byDown[0].User)
}

func TestPaginateEmpty(t *testing.T) {
	page := Paginate([]int{}, 10, 1)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.PageCount)
	assert.Equal(t, 0, page.Total)
}

func TestPaginateLastPartialPage(t *testing.T) {
	items := make([]string, 25)
	for i := range items {
		items[i] = fmt.Sprintf("item-%02d", i)
	}

	page := Paginate(items, 10, 3)
	require.Len(t, page.Items, 5)
	assert.Equal(t, "item-20", page.Items[0])
	assert.Equal(t, "item-24", page.Items[4])
	assert.Equal(t, 3, page.PageCount)
}

func TestPaginateBeyondEnd(t *testing.T) {
	page := Paginate([]int{1, 2, 3}, 10, 7)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.PageCount)
	assert.Equal(t, 3, page.Total)
}

func TestPaginateClampsDegenerateInputs(t *testing.T) {
	page := Paginate([]int{1, 2, 3}, 0, 0)
	assert.Equal(t, 1, page.PageSize)
	assert.Equal(t, 1, page.PageNumber)
	assert.Equal(t, []int{1}, page.Items)
	assert.Equal(t, 3, page.PageCount)
}
