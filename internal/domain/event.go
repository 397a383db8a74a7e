package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind identifies the type of a ledger event.
type EventKind string

const (
	EventMarketCreated     EventKind = "MarketCreated"
	EventRatingUpCreated   EventKind = "RatingUpCreated"
	EventRatingDownCreated EventKind = "RatingDownCreated"
	EventPaused            EventKind = "Paused"
	EventReceiverUpdated   EventKind = "ReceiverUpdated"
)

// Event is a single immutable entry in the ledger's append-only log.
// Sequence numbers are assigned by the ledger, start at 1, and strictly
// increase in emission order. Which payload fields are meaningful depends on
// Kind:
//
//	MarketCreated:       Market, URL, Caller
//	RatingUpCreated:     Caller (user), Market, Amount
//	RatingDownCreated:   Caller (user), Market, Amount
//	Paused:              PausedState
//	ReceiverUpdated:     Receiver
type Event struct {
	Sequence    uint64         `json:"sequence"`
	Kind        EventKind      `json:"kind"`
	Caller      common.Address `json:"caller"`
	Market      common.Address `json:"market,omitempty"`
	URL         string         `json:"url,omitempty"`
	Amount      *big.Int       `json:"amount,omitempty"`
	PausedState bool           `json:"paused_state,omitempty"`
	Receiver    common.Address `json:"receiver,omitempty"`
	EmittedAt   time.Time      `json:"emitted_at"`
}
