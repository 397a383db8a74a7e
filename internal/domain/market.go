package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RatingDirection distinguishes the two reputation books.
type RatingDirection string

const (
	RatingUp   RatingDirection = "up"
	RatingDown RatingDirection = "down"
)

// Market is a registered rating market. The normalized (case-folded) URL and
// its derived address identify the market; both are immutable once set. Only
// the cumulative stake totals change after creation, and only through rating
// settlement.
type Market struct {
	URL      string         `json:"url"`      // normalized form
	Address  common.Address `json:"address"`  // derived from the URL, never looked up
	Sequence uint64         `json:"sequence"` // creation event sequence, recency ordering
	Creator  common.Address `json:"creator"`
}

// Rating is the caller-supplied payload of a rating submission. Amount is
// the stake in base units.
type Rating struct {
	URL    string   `json:"url"`
	Amount *big.Int `json:"amount"`
}

// RatingReceipt describes a settled rating: what was staked, what was
// charged, and what was returned.
type RatingReceipt struct {
	User      common.Address  `json:"user"`
	Market    common.Address  `json:"market"`
	Direction RatingDirection `json:"direction"`
	Amount    *big.Int        `json:"amount"`
	Charged   *big.Int        `json:"charged"`
	Refunded  *big.Int        `json:"refunded"`
	Sequence  uint64          `json:"sequence"`
}
