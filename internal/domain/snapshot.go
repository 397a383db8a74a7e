package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CatalogEntry is one market in the rebuilt catalog. Upvotes and Downvotes
// come from the ledger's authoritative balance query when it succeeds and
// degrade to zero when it does not.
type CatalogEntry struct {
	URL       string         `json:"url"`
	Address   common.Address `json:"address"`
	Upvotes   *big.Int       `json:"upvotes"`
	Downvotes *big.Int       `json:"downvotes"`
	Sequence  uint64         `json:"sequence"` // creation sequence, recency ordering
}

// LeaderboardEntry is one participant in the rebuilt leaderboard.
// TotalActivity = MarketsCreated + Upvotes + Downvotes, matching how the
// catalog page ranks users.
type LeaderboardEntry struct {
	User           common.Address `json:"user"`
	MarketsCreated int            `json:"markets_created"`
	Upvotes        *big.Int       `json:"upvotes"`
	Downvotes      *big.Int       `json:"downvotes"`
	TotalActivity  *big.Int       `json:"total_activity"`
}

// Snapshot is a fully rebuilt read model as of one aggregation pass. It is
// derived and disposable: every refresh produces a new Snapshot from a full
// event replay, never by patching the previous one.
type Snapshot struct {
	Markets        []CatalogEntry     `json:"markets"`
	Users          []LeaderboardEntry `json:"users"`
	LatestSequence uint64             `json:"latest_sequence"`
	RefreshedAt    time.Time          `json:"refreshed_at"`
}
