package aggregator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udlabs/pulseratings/internal/bank"
	"github.com/udlabs/pulseratings/internal/domain"
	"github.com/udlabs/pulseratings/internal/ledger"
	"github.com/udlabs/pulseratings/internal/store/memory"
)

var (
	owner    = common.HexToAddress("0xA0A0A0A0A0A0A0A0A0A0A0A0A0A0A0A0A0A0A0A0")
	receiver = common.HexToAddress("0xB1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1")
	alice    = common.HexToAddress("0xC2C2C2C2C2C2C2C2C2C2C2C2C2C2C2C2C2C2C2C2")
	bob      = common.HexToAddress("0xD3D3D3D3D3D3D3D3D3D3D3D3D3D3D3D3D3D3D3D3")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubBalances is a BalanceSource with injectable per-address failures.
type stubBalances struct {
	mu         sync.Mutex
	marketUp   map[common.Address]*big.Int
	marketDown map[common.Address]*big.Int
	failMarket map[common.Address]bool
	failUsers  bool
	entered    chan struct{} // closed once MarketVotes is first called
	release    chan struct{} // when non-nil, MarketVotes blocks on it
	enterOnce  sync.Once
}

func newStubBalances() *stubBalances {
	return &stubBalances{
		marketUp:   make(map[common.Address]*big.Int),
		marketDown: make(map[common.Address]*big.Int),
		failMarket: make(map[common.Address]bool),
		entered:    make(chan struct{}),
	}
}

func (s *stubBalances) MarketVotes(ctx context.Context, market common.Address) (*big.Int, *big.Int, error) {
	s.enterOnce.Do(func() { close(s.entered) })
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMarket[market] {
		return nil, nil, errors.New("balance backend unavailable")
	}
	return orZero(s.marketUp[market]), orZero(s.marketDown[market]), nil
}

func (s *stubBalances) UserVotes(ctx context.Context, user common.Address) (*big.Int, *big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUsers {
		return nil, nil, errors.New("balance backend unavailable")
	}
	return new(big.Int), new(big.Int), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func marketCreated(seq uint64, creator common.Address, url string) domain.Event {
	return domain.Event{
		Sequence:  seq,
		Kind:      domain.EventMarketCreated,
		Caller:    creator,
		Market:    ledger.DeriveAddress(ledger.Normalize(url)),
		URL:       ledger.Normalize(url),
		EmittedAt: time.Now().UTC(),
	}
}

func ratingEvent(seq uint64, kind domain.EventKind, user common.Address, url string, amount int64) domain.Event {
	return domain.Event{
		Sequence:  seq,
		Kind:      kind,
		Caller:    user,
		Market:    ledger.DeriveAddress(ledger.Normalize(url)),
		URL:       ledger.Normalize(url),
		Amount:    big.NewInt(amount),
		EmittedAt: time.Now().UTC(),
	}
}

func TestRefreshAgainstLiveLedger(t *testing.T) {
	ctx := context.Background()
	b := bank.New()
	log := memory.NewEventStore()
	l, err := ledger.New(ledger.Params{Owner: owner, Receiver: receiver}, b, log, testLogger())
	require.NoError(t, err)
	b.Deposit(alice, big.NewInt(100_000))
	b.Deposit(bob, big.NewInt(100_000))

	_, err = l.CreateMarket(ctx, alice, "one.com")
	require.NoError(t, err)
	_, err = l.CreateMarket(ctx, bob, "two.com")
	require.NoError(t, err)
	_, err = l.CreateUpRating(ctx, alice, domain.Rating{URL: "one.com", Amount: big.NewInt(2000)}, big.NewInt(1400))
	require.NoError(t, err)
	_, err = l.CreateDownRating(ctx, bob, domain.Rating{URL: "one.com", Amount: big.NewInt(1000)}, big.NewInt(700))
	require.NoError(t, err)

	agg := New(log, l, Options{}, testLogger())
	snap, err := agg.Refresh(ctx)
	require.NoError(t, err)

	require.Len(t, snap.Markets, 2)
	assert.Equal(t, uint64(4), snap.LatestSequence)

	// Default order is newest first.
	assert.Equal(t, "two.com", snap.Markets[0].URL)
	assert.Equal(t, "one.com", snap.Markets[1].URL)
	assert.Equal(t, int64(2000), snap.Markets[1].Upvotes.Int64())
	assert.Equal(t, int64(1000), snap.Markets[1].Downvotes.Int64())
	assert.Zero(t, snap.Markets[0].Upvotes.Sign())

	require.Len(t, snap.Users, 2)
	for _, u := range snap.Users {
		switch u.User {
		case alice:
			assert.Equal(t, 1, u.MarketsCreated)
			assert.Equal(t, int64(2000), u.Upvotes.Int64())
			assert.Equal(t, int64(2001), u.TotalActivity.Int64())
		case bob:
			assert.Equal(t, 1, u.MarketsCreated)
			assert.Equal(t, int64(1000), u.Downvotes.Int64())
			assert.Equal(t, int64(1001), u.TotalActivity.Int64())
		default:
			t.Fatalf("unexpected user %s", u.User.Hex())
		}
	}

	got, ok := agg.Snapshot()
	require.True(t, ok)
	assert.Equal(t, snap.LatestSequence, got.LatestSequence)
}

func TestRefreshDedupsMarketsByHighestSequence(t *testing.T) {
	ctx := context.Background()
	log := memory.NewEventStore()

	// Two creation events for the same normalized URL, differing only in
	// case and sequence, as a transport replay could deliver them.
	require.NoError(t, log.Append(ctx, marketCreated(1, alice, "Dup.com")))
	require.NoError(t, log.Append(ctx, marketCreated(2, alice, "other.com")))
	require.NoError(t, log.Append(ctx, marketCreated(3, bob, "DUP.COM")))

	agg := New(log, newStubBalances(), Options{}, testLogger())
	snap, err := agg.Refresh(ctx)
	require.NoError(t, err)

	require.Len(t, snap.Markets, 2)
	var dup domain.CatalogEntry
	for _, m := range snap.Markets {
		if m.URL == "dup.com" {
			dup = m
		}
	}
	assert.Equal(t, uint64(3), dup.Sequence, "later record wins")
	assert.Equal(t, ledger.DeriveAddress("dup.com"), dup.Address)
}

func TestRefreshIsolatesMarketBalanceFailures(t *testing.T) {
	ctx := context.Background()
	log := memory.NewEventStore()
	require.NoError(t, log.Append(ctx, marketCreated(1, alice, "healthy.com")))
	require.NoError(t, log.Append(ctx, marketCreated(2, alice, "broken.com")))

	stub := newStubBalances()
	healthy := ledger.DeriveAddress("healthy.com")
	stub.marketUp[healthy] = big.NewInt(5000)
	stub.failMarket[ledger.DeriveAddress("broken.com")] = true

	agg := New(log, stub, Options{}, testLogger())
	snap, err := agg.Refresh(ctx)
	require.NoError(t, err)

	require.Len(t, snap.Markets, 2)
	for _, m := range snap.Markets {
		switch m.URL {
		case "healthy.com":
			assert.Equal(t, int64(5000), m.Upvotes.Int64())
		case "broken.com":
			assert.Zero(t, m.Upvotes.Sign(), "failed lookup degrades to zero")
			assert.Zero(t, m.Downvotes.Sign())
		}
	}
}

func TestRefreshUserBalanceFailureFallsBackToEvents(t *testing.T) {
	ctx := context.Background()
	log := memory.NewEventStore()
	require.NoError(t, log.Append(ctx, marketCreated(1, alice, "site.com")))
	require.NoError(t, log.Append(ctx, ratingEvent(2, domain.EventRatingUpCreated, alice, "site.com", 3000)))

	stub := newStubBalances()
	stub.failUsers = true

	agg := New(log, stub, Options{}, testLogger())
	snap, err := agg.Refresh(ctx)
	require.NoError(t, err)

	require.Len(t, snap.Users, 1)
	assert.Equal(t, int64(3000), snap.Users[0].Upvotes.Int64())
	assert.Equal(t, int64(3001), snap.Users[0].TotalActivity.Int64())
}

func TestRefreshLogFailurePreservesLastSnapshot(t *testing.T) {
	ctx := context.Background()
	log := memory.NewEventStore()
	require.NoError(t, log.Append(ctx, marketCreated(1, alice, "site.com")))

	agg := New(log, newStubBalances(), Options{}, testLogger())
	first, err := agg.Refresh(ctx)
	require.NoError(t, err)

	boom := errors.New("log backend down")
	agg.log = &failingLog{inner: log, err: boom}

	_, err = agg.Refresh(ctx)
	require.ErrorIs(t, err, boom)

	kept, ok := agg.Snapshot()
	require.True(t, ok)
	assert.Equal(t, first.LatestSequence, kept.LatestSequence)
	assert.Len(t, kept.Markets, 1)
}

type failingLog struct {
	inner domain.EventLog
	err   error
}

func (f *failingLog) Append(ctx context.Context, ev domain.Event) error { return f.inner.Append(ctx, ev) }
func (f *failingLog) Query(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	return nil, f.err
}
func (f *failingLog) LatestSequence(ctx context.Context) (uint64, error) { return 0, f.err }

type stubCache struct {
	snap domain.Snapshot
	err  error
	sets int
}

func (c *stubCache) Set(ctx context.Context, snap domain.Snapshot) error {
	c.sets++
	return nil
}

func (c *stubCache) Get(ctx context.Context) (domain.Snapshot, error) {
	if c.err != nil {
		return domain.Snapshot{}, c.err
	}
	return c.snap, nil
}

func TestSeedFromCacheServesReadsBeforeFirstRefresh(t *testing.T) {
	ctx := context.Background()
	cache := &stubCache{snap: domain.Snapshot{
		Markets: []domain.CatalogEntry{{
			URL:      "cached.com",
			Address:  ledger.DeriveAddress("cached.com"),
			Sequence: 7,
		}},
		LatestSequence: 7,
		RefreshedAt:    time.Now().UTC(),
	}}

	agg := New(memory.NewEventStore(), newStubBalances(), Options{Cache: cache}, testLogger())
	require.True(t, agg.SeedFromCache(ctx))

	snap, ok := agg.Snapshot()
	require.True(t, ok)
	assert.Equal(t, uint64(7), snap.LatestSequence)
	require.Len(t, snap.Markets, 1)
	assert.Equal(t, "cached.com", snap.Markets[0].URL)
}

func TestSeedFromCacheKeepsNewerSnapshot(t *testing.T) {
	ctx := context.Background()
	log := memory.NewEventStore()
	require.NoError(t, log.Append(ctx, marketCreated(1, alice, "a.com")))
	require.NoError(t, log.Append(ctx, marketCreated(2, alice, "b.com")))
	require.NoError(t, log.Append(ctx, marketCreated(3, bob, "c.com")))

	cache := &stubCache{snap: domain.Snapshot{LatestSequence: 2}}
	agg := New(log, newStubBalances(), Options{Cache: cache}, testLogger())

	_, err := agg.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	assert.False(t, agg.SeedFromCache(ctx), "stale cached snapshot must not replace a newer one")
	snap, _ := agg.Snapshot()
	assert.Equal(t, uint64(3), snap.LatestSequence)
}

func TestSeedFromCacheMissIsNotFatal(t *testing.T) {
	cache := &stubCache{err: domain.ErrNotFound}
	agg := New(memory.NewEventStore(), newStubBalances(), Options{Cache: cache}, testLogger())

	assert.False(t, agg.SeedFromCache(context.Background()))
	_, ok := agg.Snapshot()
	assert.False(t, ok)
}

func TestRefreshSingleFlightDropsConcurrentCall(t *testing.T) {
	ctx := context.Background()
	log := memory.NewEventStore()
	require.NoError(t, log.Append(ctx, marketCreated(1, alice, "site.com")))

	stub := newStubBalances()
	stub.release = make(chan struct{})

	agg := New(log, stub, Options{}, testLogger())

	done := make(chan error, 1)
	go func() {
		_, err := agg.Refresh(ctx)
		done <- err
	}()

	<-stub.entered // first refresh is now mid-flight

	_, err := agg.Refresh(ctx)
	assert.ErrorIs(t, err, domain.ErrRefreshInProgress)

	close(stub.release)
	require.NoError(t, <-done)

	// The guard is released; a follow-up refresh runs.
	_, err = agg.Refresh(ctx)
	require.NoError(t, err)
}
