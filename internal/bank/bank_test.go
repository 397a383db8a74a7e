package bank

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udlabs/pulseratings/internal/domain"
)

var (
	payer    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	receiver = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestCollectPayRefundRoundTrip(t *testing.T) {
	b := New()
	ctx := context.Background()
	b.Deposit(payer, big.NewInt(1000))

	require.NoError(t, b.Collect(ctx, payer, big.NewInt(1000)))
	assert.Zero(t, b.BalanceOf(payer).Sign())

	require.NoError(t, b.Pay(ctx, receiver, big.NewInt(700)))
	assert.Equal(t, int64(700), b.BalanceOf(receiver).Int64())

	require.NoError(t, b.Refund(ctx, payer, big.NewInt(300)))
	assert.Equal(t, int64(300), b.BalanceOf(payer).Int64())
}

func TestCollectInsufficientFunds(t *testing.T) {
	b := New()
	ctx := context.Background()
	b.Deposit(payer, big.NewInt(500))

	err := b.Collect(ctx, payer, big.NewInt(501))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	// A failed debit leaves the balance untouched.
	assert.Equal(t, int64(500), b.BalanceOf(payer).Int64())
}

func TestPayExceedingHoldingFails(t *testing.T) {
	b := New()
	ctx := context.Background()
	b.Deposit(payer, big.NewInt(100))
	require.NoError(t, b.Collect(ctx, payer, big.NewInt(100)))

	err := b.Pay(ctx, receiver, big.NewInt(101))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestFailureInjection(t *testing.T) {
	b := New()
	ctx := context.Background()
	b.Deposit(payer, big.NewInt(1000))

	boom := errors.New("boom")
	b.FailCollect = func(common.Address, *big.Int) error { return boom }
	assert.ErrorIs(t, b.Collect(ctx, payer, big.NewInt(100)), boom)
	b.FailCollect = nil

	require.NoError(t, b.Collect(ctx, payer, big.NewInt(100)))
	b.FailRefund = func(common.Address, *big.Int) error { return boom }
	assert.ErrorIs(t, b.Refund(ctx, payer, big.NewInt(100)), boom)
}

func TestBalanceOfReturnsCopy(t *testing.T) {
	b := New()
	b.Deposit(payer, big.NewInt(42))
	b.BalanceOf(payer).SetInt64(0)
	assert.Equal(t, int64(42), b.BalanceOf(payer).Int64())
}
