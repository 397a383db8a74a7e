package domain

import (
	"context"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventLog is the append-only ledger event log. Append assigns nothing: the
// ledger owns sequence numbering and passes fully-formed events. Query
// returns events with from <= Sequence < to in ascending sequence order;
// to == 0 means "to the end of the log".
type EventLog interface {
	Append(ctx context.Context, ev Event) error
	Query(ctx context.Context, from, to uint64) ([]Event, error)
	LatestSequence(ctx context.Context) (uint64, error)
}

// BalanceSource is the ledger's authoritative balance query surface. The
// aggregator reconciles replay-derived figures against it; when both are
// available the balance query always wins.
type BalanceSource interface {
	// MarketVotes returns the cumulative up and down stake held by a market.
	MarketVotes(ctx context.Context, market common.Address) (up, down *big.Int, err error)
	// UserVotes returns a user's cumulative up and down stake across all
	// markets.
	UserVotes(ctx context.Context, user common.Address) (up, down *big.Int, err error)
}

// PaymentChannel moves the payment currency between participants and the
// ledger's holding account. All three operations are exact to the unit.
// Settlement calls them in order (Collect, Pay, Refund); any failure aborts
// the enclosing operation and the caller must undo prior transfers.
type PaymentChannel interface {
	// Collect debits amount from the payer into the ledger's holding account.
	Collect(ctx context.Context, from common.Address, amount *big.Int) error
	// Pay credits amount from the holding account to the recipient.
	Pay(ctx context.Context, to common.Address, amount *big.Int) error
	// Refund returns amount from the holding account to the recipient.
	Refund(ctx context.Context, to common.Address, amount *big.Int) error
}

// SnapshotCache stores the most recent aggregation snapshot for fast reads
// across instances.
type SnapshotCache interface {
	Set(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context) (Snapshot, error)
}

// LockManager provides distributed mutual exclusion. Acquire returns
// ErrLockHeld when the lock is already held by another party.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// StreamMessage is one entry read from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus is a lightweight pub/sub channel for progress and status
// signals. Subscribe returns a channel that is closed when ctx is cancelled.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter bounds request rates per key over a sliding window.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted and counts it.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter stores an object in the configured bucket.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobInfo is object metadata returned by blob listings.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobReader retrieves and enumerates stored objects.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// SnapshotArchiver persists a refreshed snapshot and its source event range
// to long-term storage.
type SnapshotArchiver interface {
	ArchiveSnapshot(ctx context.Context, snap Snapshot) error
}
