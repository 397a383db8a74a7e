// Package ledger implements the Pulse Ratings accounting engine: the market
// registry, the two reputation books, stake-weighted rating settlement, and
// the owner/pause/receiver configuration surface. Every successful mutation
// appends exactly one event to the append-only event log; either the full
// state change and its event happen, or none of it does.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/udlabs/pulseratings/internal/domain"
)

// Params configures a new Ledger. Zero-value pricing fields fall back to the
// defaults in pricing.go.
type Params struct {
	Owner            common.Address
	Receiver         common.Address
	MinRatingAmount  *big.Int
	PriceNumerator   int64
	PriceDenominator int64
}

// Ledger is the authoritative reputation market ledger. All mutation flows
// through CreateMarket, the two rating operations, and the owner-gated
// configuration setters; each is atomic per call.
type Ledger struct {
	mu sync.RWMutex

	owner        common.Address
	pendingOwner common.Address
	receiver     common.Address
	paused       bool

	markets map[string]common.Address // normalized URL -> market address
	urls    map[common.Address]string // reverse lookup

	sequence uint64

	minAmount *big.Int
	priceNum  int64
	priceDen  int64

	up   *Book
	down *Book

	// foreign tracks assets mistakenly sent to the ledger's holding address,
	// keyed by asset identifier, recoverable by the owner.
	foreign map[common.Address]*big.Int

	payments domain.PaymentChannel
	log      domain.EventLog
	logger   *slog.Logger
}

// New creates a Ledger with empty books. Owner and receiver must be
// non-zero, matching the original deployment guards.
func New(p Params, payments domain.PaymentChannel, log domain.EventLog, logger *slog.Logger) (*Ledger, error) {
	if p.Owner == (common.Address{}) || p.Receiver == (common.Address{}) {
		return nil, fmt.Errorf("ledger: new: %w", domain.ErrZeroAddress)
	}
	minAmount := p.MinRatingAmount
	if minAmount == nil {
		minAmount = DefaultMinRatingAmount
	}
	num, den := p.PriceNumerator, p.PriceDenominator
	if num == 0 || den == 0 {
		num, den = DefaultPriceNumerator, DefaultPriceDenominator
	}
	return &Ledger{
		owner:     p.Owner,
		receiver:  p.Receiver,
		markets:   make(map[string]common.Address),
		urls:      make(map[common.Address]string),
		minAmount: new(big.Int).Set(minAmount),
		priceNum:  num,
		priceDen:  den,
		up:        NewBook("Pulse Thumbs Up", "PUP"),
		down:      NewBook("Pulse Thumbs Down", "PDN"),
		foreign:   make(map[common.Address]*big.Int),
		payments:  payments,
		log:       log,
		logger:    logger.With(slog.String("component", "ledger")),
	}, nil
}

// Restore folds every event already in the log back into ledger state. Call
// once at startup, before serving traffic. Payments are not re-settled; the
// log records only settlements that completed.
func (l *Ledger) Restore(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.log.Query(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("ledger: restore: %w", err)
	}
	for _, ev := range events {
		switch ev.Kind {
		case domain.EventMarketCreated:
			l.markets[ev.URL] = ev.Market
			l.urls[ev.Market] = ev.URL
		case domain.EventRatingUpCreated:
			l.up.Mint(ev.Caller, ev.Market, ev.Amount)
		case domain.EventRatingDownCreated:
			l.down.Mint(ev.Caller, ev.Market, ev.Amount)
		case domain.EventPaused:
			l.paused = ev.PausedState
		case domain.EventReceiverUpdated:
			l.receiver = ev.Receiver
		}
		if ev.Sequence > l.sequence {
			l.sequence = ev.Sequence
		}
	}
	l.logger.InfoContext(ctx, "ledger restored",
		slog.Int("events", len(events)),
		slog.Uint64("sequence", l.sequence),
	)
	return nil
}

// CreateMarket registers a market for the given URL. Deliberately not
// idempotent: re-creating an existing market is a hard conflict so a stale
// caller can never silently reuse an address it did not register.
func (l *Ledger) CreateMarket(ctx context.Context, caller common.Address, url string) (domain.Market, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return domain.Market{}, fmt.Errorf("ledger: create market: %w", domain.ErrPaused)
	}
	normalized := Normalize(url)
	if normalized == "" {
		return domain.Market{}, fmt.Errorf("ledger: create market: %w", domain.ErrEmptyURL)
	}
	if _, ok := l.markets[normalized]; ok {
		return domain.Market{}, fmt.Errorf("ledger: create market %q: %w", normalized, domain.ErrMarketExists)
	}

	addr := DeriveAddress(normalized)
	seq := l.sequence + 1
	ev := domain.Event{
		Sequence:  seq,
		Kind:      domain.EventMarketCreated,
		Caller:    caller,
		Market:    addr,
		URL:       normalized,
		EmittedAt: time.Now().UTC(),
	}
	if err := l.log.Append(ctx, ev); err != nil {
		return domain.Market{}, fmt.Errorf("ledger: append MarketCreated: %w", err)
	}

	l.sequence = seq
	l.markets[normalized] = addr
	l.urls[addr] = normalized

	l.logger.InfoContext(ctx, "market created",
		slog.String("url", normalized),
		slog.String("address", addr.Hex()),
		slog.Uint64("sequence", seq),
	)
	return domain.Market{URL: normalized, Address: addr, Sequence: seq, Creator: caller}, nil
}

// CreateUpRating settles an up-stake on the market derived from the rating's
// URL. The market does not need to be registered: the address derivation is
// the same either way, matching the original contract.
func (l *Ledger) CreateUpRating(ctx context.Context, caller common.Address, r domain.Rating, payment *big.Int) (domain.RatingReceipt, error) {
	return l.createRating(ctx, caller, r, payment, domain.RatingUp)
}

// CreateDownRating settles a down-stake on the market derived from the
// rating's URL.
func (l *Ledger) CreateDownRating(ctx context.Context, caller common.Address, r domain.Rating, payment *big.Int) (domain.RatingReceipt, error) {
	return l.createRating(ctx, caller, r, payment, domain.RatingDown)
}

func (l *Ledger) createRating(ctx context.Context, caller common.Address, r domain.Rating, payment *big.Int, dir domain.RatingDirection) (domain.RatingReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return domain.RatingReceipt{}, fmt.Errorf("ledger: create %s rating: %w", dir, domain.ErrPaused)
	}
	normalized := Normalize(r.URL)
	if normalized == "" {
		return domain.RatingReceipt{}, fmt.Errorf("ledger: create %s rating: %w", dir, domain.ErrEmptyURL)
	}
	if r.Amount == nil || r.Amount.Cmp(l.minAmount) < 0 {
		return domain.RatingReceipt{}, fmt.Errorf("ledger: create %s rating: %w", dir, domain.ErrInvalidRatingAmount)
	}
	required := l.PreviewPayment(r.Amount)
	if payment == nil || payment.Cmp(required) < 0 {
		return domain.RatingReceipt{}, fmt.Errorf("ledger: create %s rating: %w", dir, domain.ErrInsufficientPayment)
	}
	excess := new(big.Int).Sub(payment, required)
	market := DeriveAddress(normalized)

	// Settle the payment before touching any ledger state: collect the full
	// payment into the holding account, forward exactly the required price
	// to the receiver, and return the excess to the caller. A failed leg
	// unwinds every prior leg so no partial settlement survives.
	if err := l.payments.Collect(ctx, caller, payment); err != nil {
		return domain.RatingReceipt{}, fmt.Errorf("ledger: collect payment: %w", err)
	}
	if err := l.payments.Pay(ctx, l.receiver, required); err != nil {
		return domain.RatingReceipt{}, l.unwind(ctx, caller, payment, nil,
			fmt.Errorf("ledger: forward payment to receiver: %w", err))
	}
	if excess.Sign() > 0 {
		if err := l.payments.Refund(ctx, caller, excess); err != nil {
			return domain.RatingReceipt{}, l.unwind(ctx, caller, payment, required,
				fmt.Errorf("ledger: refund excess: %w", err))
		}
	}

	kind := domain.EventRatingUpCreated
	book := l.up
	if dir == domain.RatingDown {
		kind = domain.EventRatingDownCreated
		book = l.down
	}

	seq := l.sequence + 1
	ev := domain.Event{
		Sequence:  seq,
		Kind:      kind,
		Caller:    caller,
		Market:    market,
		URL:       normalized,
		Amount:    new(big.Int).Set(r.Amount),
		EmittedAt: time.Now().UTC(),
	}
	if err := l.log.Append(ctx, ev); err != nil {
		// The excess already went back to the caller; only the forwarded
		// price is still outstanding.
		return domain.RatingReceipt{}, l.unwind(ctx, caller, required, required,
			fmt.Errorf("ledger: append %s: %w", kind, err))
	}

	l.sequence = seq
	book.Mint(caller, market, r.Amount)

	l.logger.InfoContext(ctx, "rating settled",
		slog.String("direction", string(dir)),
		slog.String("url", normalized),
		slog.String("user", caller.Hex()),
		slog.String("amount", r.Amount.String()),
		slog.String("charged", required.String()),
	)
	return domain.RatingReceipt{
		User:      caller,
		Market:    market,
		Direction: dir,
		Amount:    new(big.Int).Set(r.Amount),
		Charged:   required,
		Refunded:  excess,
		Sequence:  seq,
	}, nil
}

// unwind reverses completed settlement legs after a later leg failed.
// outstanding is the portion of the collected payment not yet returned to
// the caller; paid is the amount already forwarded to the receiver, nil if
// that leg did not run. Compensation failures are joined onto cause; there
// is nothing better to do than report them.
func (l *Ledger) unwind(ctx context.Context, caller common.Address, outstanding, paid *big.Int, cause error) error {
	errs := []error{cause}
	if paid != nil && paid.Sign() > 0 {
		if err := l.payments.Collect(ctx, l.receiver, paid); err != nil {
			errs = append(errs, fmt.Errorf("ledger: unwind receiver payment: %w", err))
		}
	}
	if err := l.payments.Refund(ctx, caller, outstanding); err != nil {
		errs = append(errs, fmt.Errorf("ledger: unwind collected payment: %w", err))
	}
	if len(errs) > 1 {
		l.logger.ErrorContext(ctx, "settlement unwind incomplete", slog.Any("errors", errs))
	}
	return errors.Join(errs...)
}

// URLToMarket resolves a registered URL to its market address, or the zero
// address when no market is registered for it.
func (l *Ledger) URLToMarket(url string) common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.markets[Normalize(url)]
}

// MarketToURL reverse-resolves a registered market address to its URL.
func (l *Ledger) MarketToURL(market common.Address) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	url, ok := l.urls[market]
	if !ok {
		return "", fmt.Errorf("ledger: market %s: %w", market.Hex(), domain.ErrNotFound)
	}
	return url, nil
}

// MarketAddress derives the address a URL maps to, registered or not.
func (l *Ledger) MarketAddress(url string) common.Address {
	return DeriveAddress(Normalize(url))
}

// MarketVotes returns the cumulative up and down stake held by a market.
func (l *Ledger) MarketVotes(ctx context.Context, market common.Address) (up, down *big.Int, err error) {
	return l.up.BalanceOf(market), l.down.BalanceOf(market), nil
}

// UserVotes returns a user's cumulative up and down stake across all markets.
func (l *Ledger) UserVotes(ctx context.Context, user common.Address) (up, down *big.Int, err error) {
	return l.up.VotesOf(user), l.down.VotesOf(user), nil
}

// UserRatings returns a user's combined up + down stake total.
func (l *Ledger) UserRatings(user common.Address) *big.Int {
	return new(big.Int).Add(l.up.VotesOf(user), l.down.VotesOf(user))
}

// MinRatingAmount returns the stake floor.
func (l *Ledger) MinRatingAmount() *big.Int {
	return new(big.Int).Set(l.minAmount)
}

// IsPaused reports whether mutations are currently gated.
func (l *Ledger) IsPaused() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.paused
}

// Owner returns the current owner address.
func (l *Ledger) Owner() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.owner
}

// PendingOwner returns the nominated-but-unaccepted owner, zero when none.
func (l *Ledger) PendingOwner() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pendingOwner
}

// Receiver returns the current fee receiver.
func (l *Ledger) Receiver() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.receiver
}

// SetPaused toggles the pause gate. Owner-only, and deliberately operable
// while paused so the owner can always un-pause.
func (l *Ledger) SetPaused(ctx context.Context, caller common.Address, paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return fmt.Errorf("ledger: set paused: %w", domain.ErrUnauthorized)
	}
	seq := l.sequence + 1
	ev := domain.Event{
		Sequence:    seq,
		Kind:        domain.EventPaused,
		Caller:      caller,
		PausedState: paused,
		EmittedAt:   time.Now().UTC(),
	}
	if err := l.log.Append(ctx, ev); err != nil {
		return fmt.Errorf("ledger: append Paused: %w", err)
	}
	l.sequence = seq
	l.paused = paused
	l.logger.InfoContext(ctx, "pause state changed", slog.Bool("paused", paused))
	return nil
}

// SetReceiver changes the fee receiver. Owner-only, operable while paused.
func (l *Ledger) SetReceiver(ctx context.Context, caller, receiver common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return fmt.Errorf("ledger: set receiver: %w", domain.ErrUnauthorized)
	}
	if receiver == (common.Address{}) {
		return fmt.Errorf("ledger: set receiver: %w", domain.ErrZeroAddress)
	}
	seq := l.sequence + 1
	ev := domain.Event{
		Sequence:  seq,
		Kind:      domain.EventReceiverUpdated,
		Caller:    caller,
		Receiver:  receiver,
		EmittedAt: time.Now().UTC(),
	}
	if err := l.log.Append(ctx, ev); err != nil {
		return fmt.Errorf("ledger: append ReceiverUpdated: %w", err)
	}
	l.sequence = seq
	l.receiver = receiver
	l.logger.InfoContext(ctx, "receiver updated", slog.String("receiver", receiver.Hex()))
	return nil
}

// TransferOwnership nominates a candidate owner. The current owner keeps
// full authority until the candidate accepts; nominating the zero address
// cancels a pending transfer.
func (l *Ledger) TransferOwnership(ctx context.Context, caller, candidate common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return fmt.Errorf("ledger: transfer ownership: %w", domain.ErrUnauthorized)
	}
	l.pendingOwner = candidate
	l.logger.InfoContext(ctx, "ownership transfer nominated",
		slog.String("candidate", candidate.Hex()),
	)
	return nil
}

// AcceptOwnership completes a two-phase ownership transfer. Only the exact
// nominated candidate may accept.
func (l *Ledger) AcceptOwnership(ctx context.Context, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pendingOwner == (common.Address{}) || caller != l.pendingOwner {
		return fmt.Errorf("ledger: accept ownership: %w", domain.ErrUnauthorized)
	}
	l.owner = caller
	l.pendingOwner = common.Address{}
	l.logger.InfoContext(ctx, "ownership transferred", slog.String("owner", caller.Hex()))
	return nil
}

// CreditForeignAsset records an asset balance mistakenly sent to the
// ledger's holding address so the owner can later recover it.
func (l *Ledger) CreditForeignAsset(asset common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.foreign[asset] = add(l.foreign[asset], amount)
}

// RecoverForeignAsset sends the full held balance of a mistakenly-received
// asset to the recipient. Owner-only rescue hatch; operable while paused.
func (l *Ledger) RecoverForeignAsset(ctx context.Context, caller, asset, recipient common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return nil, fmt.Errorf("ledger: recover asset: %w", domain.ErrUnauthorized)
	}
	if asset == (common.Address{}) || recipient == (common.Address{}) {
		return nil, fmt.Errorf("ledger: recover asset: %w", domain.ErrZeroAddress)
	}
	held := copyOrZero(l.foreign[asset])
	delete(l.foreign, asset)
	l.logger.InfoContext(ctx, "foreign asset recovered",
		slog.String("asset", asset.Hex()),
		slog.String("recipient", recipient.Hex()),
		slog.String("amount", held.String()),
	)
	return held, nil
}

// Compile-time interface check.
var _ domain.BalanceSource = (*Ledger)(nil)
