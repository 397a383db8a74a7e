package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Book is one of the two reputation token books. Minting a rating credits
// the market's balance and the staking user's direction counter by the same
// amount; both are monotonically non-decreasing under normal operation
// (burn exists only to unwind a settlement whose event emission failed).
type Book struct {
	name   string
	symbol string

	mu       sync.RWMutex
	balances map[common.Address]*big.Int // market -> cumulative stake
	votes    map[common.Address]*big.Int // user -> cumulative stake
}

// NewBook creates an empty reputation book with the given identity.
func NewBook(name, symbol string) *Book {
	return &Book{
		name:     name,
		symbol:   symbol,
		balances: make(map[common.Address]*big.Int),
		votes:    make(map[common.Address]*big.Int),
	}
}

// Name returns the book's full name, e.g. "Pulse Thumbs Up".
func (b *Book) Name() string { return b.name }

// Symbol returns the book's short symbol, e.g. "PUP".
func (b *Book) Symbol() string { return b.symbol }

// Mint credits amount to the market's balance and the user's vote counter.
func (b *Book) Mint(user, market common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[market] = add(b.balances[market], amount)
	b.votes[user] = add(b.votes[user], amount)
}

// burn reverses a Mint. Only settlement rollback uses it.
func (b *Book) burn(user, market common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[market] = sub(b.balances[market], amount)
	b.votes[user] = sub(b.votes[user], amount)
}

// BalanceOf returns the cumulative stake held by a market. The result is a
// copy; callers may mutate it freely.
func (b *Book) BalanceOf(market common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyOrZero(b.balances[market])
}

// VotesOf returns the user's cumulative stake across all markets.
func (b *Book) VotesOf(user common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyOrZero(b.votes[user])
}

func add(cur, amount *big.Int) *big.Int {
	if cur == nil {
		return new(big.Int).Set(amount)
	}
	return new(big.Int).Add(cur, amount)
}

func sub(cur, amount *big.Int) *big.Int {
	if cur == nil {
		return new(big.Int).Neg(amount)
	}
	return new(big.Int).Sub(cur, amount)
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
