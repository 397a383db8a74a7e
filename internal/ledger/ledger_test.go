package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udlabs/pulseratings/internal/bank"
	"github.com/udlabs/pulseratings/internal/domain"
	"github.com/udlabs/pulseratings/internal/store/memory"
)

var (
	owner    = common.HexToAddress("0xA0A0A0A0A0A0A0A0A0A0A0A0A0A0A0A0A0A0A0A0")
	receiver = common.HexToAddress("0xB1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1")
	alice    = common.HexToAddress("0xC2C2C2C2C2C2C2C2C2C2C2C2C2C2C2C2C2C2C2C2")
	bob      = common.HexToAddress("0xD3D3D3D3D3D3D3D3D3D3D3D3D3D3D3D3D3D3D3D3")
)

type fixture struct {
	ledger *Ledger
	bank   *bank.Bank
	log    *memory.EventStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := bank.New()
	log := memory.NewEventStore()
	l, err := New(Params{Owner: owner, Receiver: receiver}, b, log,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	b.Deposit(alice, big.NewInt(1_000_000))
	b.Deposit(bob, big.NewInt(1_000_000))
	return &fixture{ledger: l, bank: b, log: log}
}

func TestNewRejectsZeroAddresses(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(Params{Receiver: receiver}, bank.New(), memory.NewEventStore(), logger)
	assert.ErrorIs(t, err, domain.ErrZeroAddress)

	_, err = New(Params{Owner: owner}, bank.New(), memory.NewEventStore(), logger)
	assert.ErrorIs(t, err, domain.ErrZeroAddress)
}

func TestPreviewPayment(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		amount int64
		want   int64
	}{
		{1000, 700},
		{2000, 1400},
		{1001, 700}, // integer quotient, remainder dropped
		{10, 7},
	}
	for _, tc := range cases {
		got := f.ledger.PreviewPayment(big.NewInt(tc.amount))
		assert.Equal(t, tc.want, got.Int64(), "amount %d", tc.amount)
	}

	// Quoting the same stake twice is bit-identical.
	a := f.ledger.PreviewPayment(big.NewInt(12345))
	b := f.ledger.PreviewPayment(big.NewInt(12345))
	assert.Zero(t, a.Cmp(b))
}

func TestCreateMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.ledger.CreateMarket(ctx, alice, "  Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "example.com", m.URL)
	assert.Equal(t, DeriveAddress("example.com"), m.Address)
	assert.Equal(t, alice, m.Creator)
	assert.Equal(t, uint64(1), m.Sequence)

	assert.Equal(t, m.Address, f.ledger.URLToMarket("EXAMPLE.com"))

	url, err := f.ledger.MarketToURL(m.Address)
	require.NoError(t, err)
	assert.Equal(t, "example.com", url)

	events, err := f.log.Query(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventMarketCreated, events[0].Kind)
	assert.Equal(t, "example.com", events[0].URL)
}

func TestCreateMarketDuplicateConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.ledger.CreateMarket(ctx, alice, "test.com")
	require.NoError(t, err)

	// Case and whitespace variants collapse to the same market.
	_, err = f.ledger.CreateMarket(ctx, bob, " TEST.COM ")
	assert.ErrorIs(t, err, domain.ErrMarketExists)
	assert.Equal(t, domain.KindConflict, domain.Kind(err))

	// The variant would have derived the identical address anyway.
	assert.Equal(t, first.Address, f.ledger.MarketAddress("TEST.COM"))
}

func TestCreateMarketEmptyURL(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.CreateMarket(context.Background(), alice, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyURL)
	assert.Equal(t, domain.KindValidation, domain.Kind(err))
}

func TestCreateRatingExactPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	receipt, err := f.ledger.CreateUpRating(ctx, alice,
		domain.Rating{URL: "news.site", Amount: big.NewInt(1000)}, big.NewInt(700))
	require.NoError(t, err)

	assert.Equal(t, int64(1000), receipt.Amount.Int64())
	assert.Equal(t, int64(700), receipt.Charged.Int64())
	assert.Zero(t, receipt.Refunded.Sign())
	assert.Equal(t, DeriveAddress("news.site"), receipt.Market)

	assert.Equal(t, int64(1_000_000-700), f.bank.BalanceOf(alice).Int64())
	assert.Equal(t, int64(700), f.bank.BalanceOf(receiver).Int64())

	up, down, err := f.ledger.MarketVotes(ctx, receipt.Market)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), up.Int64())
	assert.Zero(t, down.Sign())
}

func TestCreateRatingRefundsExcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	receipt, err := f.ledger.CreateDownRating(ctx, alice,
		domain.Rating{URL: "news.site", Amount: big.NewInt(1000)}, big.NewInt(800))
	require.NoError(t, err)

	assert.Equal(t, int64(100), receipt.Refunded.Int64())
	// Only the required 700 left alice's account.
	assert.Equal(t, int64(1_000_000-700), f.bank.BalanceOf(alice).Int64())
	assert.Equal(t, int64(700), f.bank.BalanceOf(receiver).Int64())
}

func TestCreateRatingWithoutMarketRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No CreateMarket call; the rating still lands on the derived address.
	receipt, err := f.ledger.CreateUpRating(ctx, alice,
		domain.Rating{URL: "unregistered.org", Amount: big.NewInt(1000)}, big.NewInt(700))
	require.NoError(t, err)
	assert.Equal(t, DeriveAddress("unregistered.org"), receipt.Market)

	// The registry still has no entry for it.
	assert.Equal(t, common.Address{}, f.ledger.URLToMarket("unregistered.org"))
}

func TestCreateRatingBelowMinimum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreateUpRating(ctx, alice,
		domain.Rating{URL: "news.site", Amount: big.NewInt(999)}, big.NewInt(1_000_000))
	assert.ErrorIs(t, err, domain.ErrInvalidRatingAmount)
	assert.Equal(t, domain.KindValidation, domain.Kind(err))

	// Nothing moved, nothing logged.
	assert.Equal(t, int64(1_000_000), f.bank.BalanceOf(alice).Int64())
	seq, err := f.log.LatestSequence(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)
}

func TestCreateRatingInsufficientPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreateUpRating(ctx, alice,
		domain.Rating{URL: "news.site", Amount: big.NewInt(1000)}, big.NewInt(350))
	assert.ErrorIs(t, err, domain.ErrInsufficientPayment)

	assert.Equal(t, int64(1_000_000), f.bank.BalanceOf(alice).Int64())
	assert.Zero(t, f.bank.BalanceOf(receiver).Sign())
	up, _, err := f.ledger.UserVotes(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, up.Sign())
}

func TestCreateRatingAppendFailureUnwindsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("log unavailable")
	f.log.FailAppend = func(domain.Event) error { return boom }

	// Overpay so the excess refund leg runs before the append fails; the
	// unwind must return only what is still held, not the full payment.
	_, err := f.ledger.CreateUpRating(ctx, alice,
		domain.Rating{URL: "news.site", Amount: big.NewInt(1000)}, big.NewInt(800))
	require.ErrorIs(t, err, boom)

	// Every settlement leg was reversed.
	assert.Equal(t, int64(1_000_000), f.bank.BalanceOf(alice).Int64())
	assert.Zero(t, f.bank.BalanceOf(receiver).Sign())
	up, _, err := f.ledger.UserVotes(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, up.Sign())

	// The same rating settles cleanly once the log recovers, proving the
	// bank's books balanced through the unwind.
	f.log.FailAppend = nil
	receipt, err := f.ledger.CreateUpRating(ctx, alice,
		domain.Rating{URL: "news.site", Amount: big.NewInt(1000)}, big.NewInt(800))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Sequence)
	assert.Equal(t, int64(999_300), f.bank.BalanceOf(alice).Int64())
	assert.Equal(t, int64(700), f.bank.BalanceOf(receiver).Int64())
}

func TestCreateRatingPayFailureRefundsCollected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("receiver leg down")
	f.bank.FailPay = func(common.Address, *big.Int) error { return boom }

	_, err := f.ledger.CreateUpRating(ctx, alice,
		domain.Rating{URL: "news.site", Amount: big.NewInt(1000)}, big.NewInt(700))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1_000_000), f.bank.BalanceOf(alice).Int64())
}

func TestUserRatingsAccumulate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	urls := []string{"a.com", "b.com", "a.com", "c.com"}
	for i, url := range urls {
		var err error
		if i%2 == 0 {
			_, err = f.ledger.CreateUpRating(ctx, alice,
				domain.Rating{URL: url, Amount: big.NewInt(1000)}, big.NewInt(700))
		} else {
			_, err = f.ledger.CreateDownRating(ctx, alice,
				domain.Rating{URL: url, Amount: big.NewInt(1000)}, big.NewInt(700))
		}
		require.NoError(t, err)
	}

	assert.Equal(t, int64(4000), f.ledger.UserRatings(alice).Int64())

	up, down, err := f.ledger.UserVotes(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), up.Int64())
	assert.Equal(t, int64(2000), down.Int64())
}

func TestPauseGatesMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.SetPaused(ctx, owner, true))
	assert.True(t, f.ledger.IsPaused())

	_, err := f.ledger.CreateMarket(ctx, alice, "paused.com")
	assert.ErrorIs(t, err, domain.ErrPaused)
	_, err = f.ledger.CreateUpRating(ctx, alice,
		domain.Rating{URL: "paused.com", Amount: big.NewInt(1000)}, big.NewInt(700))
	assert.ErrorIs(t, err, domain.ErrPaused)
	assert.Equal(t, domain.KindAvailability, domain.Kind(err))

	// Owner control surface stays operable while paused.
	require.NoError(t, f.ledger.SetReceiver(ctx, owner, bob))
	require.NoError(t, f.ledger.SetPaused(ctx, owner, false))

	_, err = f.ledger.CreateMarket(ctx, alice, "paused.com")
	require.NoError(t, err)
}

func TestSetPausedRequiresOwner(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.SetPaused(context.Background(), alice, true)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, f.ledger.IsPaused())
}

func TestSetReceiver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.ledger.SetReceiver(ctx, alice, bob)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = f.ledger.SetReceiver(ctx, owner, common.Address{})
	assert.ErrorIs(t, err, domain.ErrZeroAddress)

	require.NoError(t, f.ledger.SetReceiver(ctx, owner, bob))
	assert.Equal(t, bob, f.ledger.Receiver())

	// Subsequent ratings pay the new receiver.
	_, err = f.ledger.CreateUpRating(ctx, alice,
		domain.Rating{URL: "news.site", Amount: big.NewInt(1000)}, big.NewInt(700))
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000+700), f.bank.BalanceOf(bob).Int64())
}

func TestTwoPhaseOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.TransferOwnership(ctx, owner, bob))
	assert.Equal(t, owner, f.ledger.Owner(), "owner unchanged until acceptance")
	assert.Equal(t, bob, f.ledger.PendingOwner())

	// Only the exact candidate may accept.
	err := f.ledger.AcceptOwnership(ctx, alice)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// The incumbent retains full authority meanwhile.
	require.NoError(t, f.ledger.SetPaused(ctx, owner, true))
	require.NoError(t, f.ledger.SetPaused(ctx, owner, false))

	require.NoError(t, f.ledger.AcceptOwnership(ctx, bob))
	assert.Equal(t, bob, f.ledger.Owner())
	assert.Equal(t, common.Address{}, f.ledger.PendingOwner())

	// The old owner is out.
	err = f.ledger.SetPaused(ctx, owner, true)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTransferOwnershipZeroCandidateCancels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.TransferOwnership(ctx, owner, bob))
	require.NoError(t, f.ledger.TransferOwnership(ctx, owner, common.Address{}))

	err := f.ledger.AcceptOwnership(ctx, bob)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRecoverForeignAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asset := common.HexToAddress("0xE4E4E4E4E4E4E4E4E4E4E4E4E4E4E4E4E4E4E4E4")

	f.ledger.CreditForeignAsset(asset, big.NewInt(5000))

	_, err := f.ledger.RecoverForeignAsset(ctx, alice, asset, bob)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	held, err := f.ledger.RecoverForeignAsset(ctx, owner, asset, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), held.Int64())

	// Already drained.
	held, err = f.ledger.RecoverForeignAsset(ctx, owner, asset, bob)
	require.NoError(t, err)
	assert.Zero(t, held.Sign())
}

func TestRestoreRebuildsStateFromLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreateMarket(ctx, alice, "example.com")
	require.NoError(t, err)
	_, err = f.ledger.CreateUpRating(ctx, alice,
		domain.Rating{URL: "example.com", Amount: big.NewInt(2000)}, big.NewInt(1400))
	require.NoError(t, err)
	_, err = f.ledger.CreateDownRating(ctx, bob,
		domain.Rating{URL: "example.com", Amount: big.NewInt(1000)}, big.NewInt(700))
	require.NoError(t, err)
	require.NoError(t, f.ledger.SetPaused(ctx, owner, true))

	// A fresh ledger over the same log picks up where the first left off.
	restored, err := New(Params{Owner: owner, Receiver: receiver}, f.bank, f.log,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, restored.Restore(ctx))

	market := restored.URLToMarket("example.com")
	assert.Equal(t, f.ledger.URLToMarket("example.com"), market)
	assert.NotEqual(t, common.Address{}, market)

	up, down, err := restored.MarketVotes(ctx, market)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), up.Int64())
	assert.Equal(t, int64(1000), down.Int64())

	aliceUp, _, err := restored.UserVotes(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), aliceUp.Int64())

	assert.True(t, restored.IsPaused())

	// The next mutation continues the sequence rather than restarting it.
	require.NoError(t, restored.SetPaused(ctx, owner, false))
	latest, err := f.log.LatestSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), latest)
}
