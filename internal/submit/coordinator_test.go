package submit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udlabs/pulseratings/internal/domain"
)

var (
	marketA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	marketB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func newCoordinator() *Coordinator {
	return NewCoordinator(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubmitCompletes(t *testing.T) {
	c := newCoordinator()
	ctx := context.Background()

	p, err := c.Submit(ctx, marketA, "card-up", func(context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, p.Wait(ctx))

	assert.Equal(t, StatusIdle, c.SurfaceStatus(marketA, "card-up"))
	assert.False(t, c.Busy(marketA))
}

func TestSubmitBlocksConcurrentSameMarket(t *testing.T) {
	c := newCoordinator()
	ctx := context.Background()
	release := make(chan struct{})

	p, err := c.Submit(ctx, marketA, "card-up", func(context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	// Same market, any surface: blocked while in flight.
	_, err = c.Submit(ctx, marketA, "card-up", nil)
	assert.ErrorIs(t, err, domain.ErrSubmissionPending)
	_, err = c.Submit(ctx, marketA, "detail-up", nil)
	assert.ErrorIs(t, err, domain.ErrSubmissionPending)

	// Unrelated market proceeds concurrently.
	other, err := c.Submit(ctx, marketB, "card-up", func(context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, other.Wait(ctx))

	close(release)
	require.NoError(t, p.Wait(ctx))

	// Re-enabled after completion.
	p2, err := c.Submit(ctx, marketA, "detail-up", func(context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, p2.Wait(ctx))
}

func TestSubmitFailureReEnablesAllSurfaces(t *testing.T) {
	c := newCoordinator()
	ctx := context.Background()
	boom := errors.New("settlement failed")

	// A second surface for the same market has been seen before.
	c.setStatus(marketA, "detail-up", StatusIdle)

	p, err := c.Submit(ctx, marketA, "card-up", func(context.Context) error { return boom })
	require.NoError(t, err)
	assert.ErrorIs(t, p.Wait(ctx), boom)

	assert.Equal(t, StatusIdle, c.SurfaceStatus(marketA, "card-up"))
	assert.Equal(t, StatusIdle, c.SurfaceStatus(marketA, "detail-up"))
	assert.False(t, c.Busy(marketA))
}

func TestSubmitSurvivesCallerCancellation(t *testing.T) {
	c := newCoordinator()
	ctx, cancel := context.WithCancel(context.Background())

	entered := make(chan struct{})
	release := make(chan struct{})
	p, err := c.Submit(ctx, marketA, "card-up", func(opCtx context.Context) error {
		close(entered)
		<-release
		// Settlement context is detached from the caller's cancellation.
		return opCtx.Err()
	})
	require.NoError(t, err)

	<-entered
	cancel()

	// Wait with a cancelled context returns immediately.
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)

	close(release)
	require.NoError(t, p.Wait(context.Background()))
}

func TestWaitTimesOutIndependently(t *testing.T) {
	c := newCoordinator()
	release := make(chan struct{})

	p, err := c.Submit(context.Background(), marketA, "card-up", func(context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Wait(waitCtx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.Wait(context.Background()))
}
