// Package aggregator rebuilds the read model from the ledger's append-only
// event log. Each refresh is a full replay from genesis reconciled against
// the ledger's authoritative balance query; the result is a disposable
// Snapshot, never a patch of the previous one. Full replay is correct but
// not scalable; incremental sync is a known gap.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/udlabs/pulseratings/internal/domain"
	"github.com/udlabs/pulseratings/internal/ledger"
)

const refreshLockKey = "pulseratings:aggregator:refresh"

// Options wires optional infrastructure into the Aggregator. Every field may
// be nil; a nil field simply disables that concern.
type Options struct {
	// Cache receives each refreshed snapshot for cross-instance reads.
	Cache domain.SnapshotCache
	// Archiver persists each refreshed snapshot to long-term storage.
	Archiver domain.SnapshotArchiver
	// Locks extends the single-flight guard across instances.
	Locks domain.LockManager
	// LockTTL bounds how long a crashed refresh can hold the distributed
	// lock. Zero means one minute.
	LockTTL time.Duration
}

// Aggregator builds the Market Catalog and Leaderboard read models. Refresh
// is single-flight: a call arriving while one is active is dropped with
// ErrRefreshInProgress, not queued.
type Aggregator struct {
	log      domain.EventLog
	balances domain.BalanceSource
	opts     Options
	logger   *slog.Logger

	refreshing atomic.Bool

	mu   sync.RWMutex
	last domain.Snapshot
	have bool
}

// New creates an Aggregator over the given event log and balance source.
func New(log domain.EventLog, balances domain.BalanceSource, opts Options, logger *slog.Logger) *Aggregator {
	if opts.LockTTL == 0 {
		opts.LockTTL = time.Minute
	}
	return &Aggregator{
		log:      log,
		balances: balances,
		opts:     opts,
		logger:   logger.With(slog.String("component", "aggregator")),
	}
}

// Snapshot returns the last successfully built snapshot. The bool is false
// until the first refresh completes.
func (a *Aggregator) Snapshot() (domain.Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last, a.have
}

// SeedFromCache installs the cached snapshot, typically written by another
// instance, so reads are served before this instance's first refresh
// completes. A newer snapshot already in place is kept; a miss or a cache
// error only logs. It reports whether the cached snapshot was installed.
func (a *Aggregator) SeedFromCache(ctx context.Context) bool {
	if a.opts.Cache == nil {
		return false
	}
	snap, err := a.opts.Cache.Get(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.logger.WarnContext(ctx, "snapshot cache read failed", slog.Any("error", err))
		}
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.have && a.last.LatestSequence >= snap.LatestSequence {
		return false
	}
	a.last = snap
	a.have = true
	a.logger.InfoContext(ctx, "snapshot seeded from cache",
		slog.Uint64("latest_sequence", snap.LatestSequence),
		slog.Time("refreshed_at", snap.RefreshedAt),
	)
	return true
}

// Refresh rebuilds the read model from a full event replay. A refresh
// already in progress, here or on another instance holding the distributed
// lock, causes the call to return ErrRefreshInProgress immediately. On any
// other failure the previous snapshot stays in place.
func (a *Aggregator) Refresh(ctx context.Context) (domain.Snapshot, error) {
	if !a.refreshing.CompareAndSwap(false, true) {
		return domain.Snapshot{}, fmt.Errorf("aggregator: %w", domain.ErrRefreshInProgress)
	}
	defer a.refreshing.Store(false)

	if a.opts.Locks != nil {
		release, err := a.opts.Locks.Acquire(ctx, refreshLockKey, a.opts.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.Snapshot{}, fmt.Errorf("aggregator: refresh running elsewhere: %w", domain.ErrRefreshInProgress)
			}
			return domain.Snapshot{}, fmt.Errorf("aggregator: acquire refresh lock: %w", err)
		}
		defer release()
	}

	started := time.Now()
	snap, err := a.rebuild(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "refresh failed", slog.Any("error", err))
		return domain.Snapshot{}, err
	}

	a.mu.Lock()
	a.last = snap
	a.have = true
	a.mu.Unlock()

	if a.opts.Cache != nil {
		if err := a.opts.Cache.Set(ctx, snap); err != nil {
			a.logger.WarnContext(ctx, "snapshot cache write failed", slog.Any("error", err))
		}
	}
	if a.opts.Archiver != nil {
		if err := a.opts.Archiver.ArchiveSnapshot(ctx, snap); err != nil {
			a.logger.WarnContext(ctx, "snapshot archive failed", slog.Any("error", err))
		}
	}

	a.logger.InfoContext(ctx, "refresh complete",
		slog.Int("markets", len(snap.Markets)),
		slog.Int("users", len(snap.Users)),
		slog.Uint64("latest_sequence", snap.LatestSequence),
		slog.Duration("elapsed", time.Since(started)),
	)
	return snap, nil
}

// userTally is the provisional per-user fold over the event stream.
type userTally struct {
	marketsCreated int
	up             *big.Int
	down           *big.Int
}

func (a *Aggregator) rebuild(ctx context.Context) (domain.Snapshot, error) {
	// A log read failure aborts the whole refresh; there is nothing to
	// degrade to without the event stream.
	events, err := a.log.Query(ctx, 0, 0)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("aggregator: query event log: %w", err)
	}

	markets := make(map[string]domain.CatalogEntry)
	users := make(map[common.Address]*userTally)
	var latest uint64

	tally := func(user common.Address) *userTally {
		t, ok := users[user]
		if !ok {
			t = &userTally{up: new(big.Int), down: new(big.Int)}
			users[user] = t
		}
		return t
	}

	for _, ev := range events {
		if ev.Sequence > latest {
			latest = ev.Sequence
		}
		switch ev.Kind {
		case domain.EventMarketCreated:
			url := ledger.Normalize(ev.URL)
			// Keep only the highest-sequence record per URL. The ledger
			// rejects duplicate creations, so this guards against replay
			// artifacts from the transport, not ledger behavior.
			if cur, ok := markets[url]; ok && cur.Sequence >= ev.Sequence {
				continue
			}
			markets[url] = domain.CatalogEntry{
				URL:      url,
				Address:  ev.Market,
				Sequence: ev.Sequence,
			}
			tally(ev.Caller).marketsCreated++
		case domain.EventRatingUpCreated:
			if ev.Amount != nil {
				t := tally(ev.Caller)
				t.up.Add(t.up, ev.Amount)
			}
		case domain.EventRatingDownCreated:
			if ev.Amount != nil {
				t := tally(ev.Caller)
				t.down.Add(t.down, ev.Amount)
			}
		}
	}

	snap := domain.Snapshot{
		Markets:        make([]domain.CatalogEntry, 0, len(markets)),
		Users:          make([]domain.LeaderboardEntry, 0, len(users)),
		LatestSequence: latest,
		RefreshedAt:    time.Now().UTC(),
	}

	// Reconcile each market against the authoritative balance query. A
	// failed lookup degrades that one entry to zero instead of aborting the
	// refresh.
	for _, entry := range markets {
		up, down, err := a.balances.MarketVotes(ctx, entry.Address)
		if err != nil {
			a.logger.WarnContext(ctx, "market balance query failed, degrading to zero",
				slog.String("url", entry.URL),
				slog.Any("error", err),
			)
			up, down = new(big.Int), new(big.Int)
		}
		entry.Upvotes, entry.Downvotes = up, down
		snap.Markets = append(snap.Markets, entry)
	}

	// Same reconciliation for users, but a failed lookup falls back to the
	// provisional event-derived sums; they are derivable from the same
	// history and better than nothing.
	for user, t := range users {
		up, down, err := a.balances.UserVotes(ctx, user)
		if err != nil {
			a.logger.WarnContext(ctx, "user balance query failed, using event-derived sums",
				slog.String("user", user.Hex()),
				slog.Any("error", err),
			)
			up, down = t.up, t.down
		}
		total := new(big.Int).Add(up, down)
		total.Add(total, big.NewInt(int64(t.marketsCreated)))
		snap.Users = append(snap.Users, domain.LeaderboardEntry{
			User:           user,
			MarketsCreated: t.marketsCreated,
			Upvotes:        up,
			Downvotes:      down,
			TotalActivity:  total,
		})
	}

	// Deterministic default orders: markets newest first, users by activity.
	sort.Slice(snap.Markets, func(i, j int) bool {
		return snap.Markets[i].Sequence > snap.Markets[j].Sequence
	})
	sort.Slice(snap.Users, func(i, j int) bool {
		if c := snap.Users[i].TotalActivity.Cmp(snap.Users[j].TotalActivity); c != 0 {
			return c > 0
		}
		return snap.Users[i].User.Hex() < snap.Users[j].User.Hex()
	})
	return snap, nil
}
