// Package bank provides an in-process payment channel backed by per-account
// balances. It is the settlement currency for single-node deployments and
// the payment fixture for tests; failure modes can be injected per leg.
package bank

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/udlabs/pulseratings/internal/domain"
)

// holdingAccount is the bank-internal account settlement funds pass through.
var holdingAccount = common.HexToAddress("0x0000000000000000000000000000000000000001")

// Bank is an in-memory domain.PaymentChannel. All transfers are exact to the
// unit and atomic per call.
type Bank struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int

	// Fail hooks abort the matching leg when non-nil. Test use only.
	FailCollect func(from common.Address, amount *big.Int) error
	FailPay     func(to common.Address, amount *big.Int) error
	FailRefund  func(to common.Address, amount *big.Int) error
}

// New creates an empty bank.
func New() *Bank {
	return &Bank{balances: make(map[common.Address]*big.Int)}
}

// Deposit credits amount to an account. Used to fund participants.
func (b *Bank) Deposit(account common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(account, amount)
}

// BalanceOf returns a copy of the account's balance.
func (b *Bank) BalanceOf(account common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.balances[account]; ok {
		return new(big.Int).Set(cur)
	}
	return new(big.Int)
}

// Collect debits amount from the payer into the holding account.
func (b *Bank) Collect(ctx context.Context, from common.Address, amount *big.Int) error {
	if b.FailCollect != nil {
		if err := b.FailCollect(from, amount); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debit(from, amount); err != nil {
		return fmt.Errorf("bank: collect from %s: %w", from.Hex(), err)
	}
	b.credit(holdingAccount, amount)
	return nil
}

// Pay credits amount from the holding account to the recipient.
func (b *Bank) Pay(ctx context.Context, to common.Address, amount *big.Int) error {
	if b.FailPay != nil {
		if err := b.FailPay(to, amount); err != nil {
			return err
		}
	}
	return b.fromHolding(to, amount, "pay")
}

// Refund returns amount from the holding account to the recipient.
func (b *Bank) Refund(ctx context.Context, to common.Address, amount *big.Int) error {
	if b.FailRefund != nil {
		if err := b.FailRefund(to, amount); err != nil {
			return err
		}
	}
	return b.fromHolding(to, amount, "refund")
}

func (b *Bank) fromHolding(to common.Address, amount *big.Int, op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debit(holdingAccount, amount); err != nil {
		return fmt.Errorf("bank: %s to %s: %w", op, to.Hex(), err)
	}
	b.credit(to, amount)
	return nil
}

// credit and debit require b.mu held.
func (b *Bank) credit(account common.Address, amount *big.Int) {
	cur, ok := b.balances[account]
	if !ok {
		cur = new(big.Int)
		b.balances[account] = cur
	}
	cur.Add(cur, amount)
}

func (b *Bank) debit(account common.Address, amount *big.Int) error {
	cur, ok := b.balances[account]
	if !ok || cur.Cmp(amount) < 0 {
		return domain.ErrInsufficientFunds
	}
	cur.Sub(cur, amount)
	return nil
}

var _ domain.PaymentChannel = (*Bank)(nil)
