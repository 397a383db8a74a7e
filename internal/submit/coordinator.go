// Package submit coordinates mutating ledger submissions initiated from
// interaction surfaces. Each submission is keyed by (market, surface); while
// one is in flight every surface referencing that market is disabled, and
// completion, success or failure, re-enables them all. Independent markets
// submit concurrently.
package submit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/udlabs/pulseratings/internal/domain"
)

// StatusChannel is the signal-bus channel submission progress is published on.
const StatusChannel = "pulseratings:submissions"

// Status is the lifecycle of one surface's trigger.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConfirming Status = "confirming"
	StatusPending    Status = "pending"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Progress is one status transition, published to the signal bus as JSON.
type Progress struct {
	Market  common.Address `json:"market"`
	Surface string         `json:"surface"`
	Status  Status         `json:"status"`
	Detail  string         `json:"detail,omitempty"`
}

// Pending is the awaitable handle for an in-flight submission.
type Pending struct {
	done chan struct{}
	err  error
}

// Done is closed when the submission completes.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until completion or context cancellation. The submission
// itself is not cancelled by ctx; settlement cannot be aborted mid-flight.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type surfaceKey struct {
	market  common.Address
	surface string
}

// Coordinator owns the (market, surface) trigger states. Bus may be nil;
// progress publication is then skipped.
type Coordinator struct {
	bus    domain.SignalBus
	logger *slog.Logger

	mu       sync.Mutex
	active   map[common.Address]string // market -> surface of the in-flight op
	surfaces map[surfaceKey]Status
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(bus domain.SignalBus, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		bus:      bus,
		logger:   logger.With(slog.String("component", "submit")),
		active:   make(map[common.Address]string),
		surfaces: make(map[surfaceKey]Status),
	}
}

// Submit runs op for the given market, initiated from the given surface, and
// returns a pending handle. A submission already in flight for the market,
// from any surface, fails with ErrSubmissionPending. op runs on its own
// goroutine with a context detached from the caller's cancellation.
func (c *Coordinator) Submit(ctx context.Context, market common.Address, surface string, op func(context.Context) error) (*Pending, error) {
	c.mu.Lock()
	if holder, busy := c.active[market]; busy {
		c.mu.Unlock()
		return nil, fmt.Errorf("submit: market %s busy via surface %q: %w",
			market.Hex(), holder, domain.ErrSubmissionPending)
	}
	c.active[market] = surface
	c.surfaces[surfaceKey{market, surface}] = StatusConfirming
	c.mu.Unlock()

	c.publish(ctx, Progress{Market: market, Surface: surface, Status: StatusConfirming})

	p := &Pending{done: make(chan struct{})}
	go func() {
		opCtx := context.WithoutCancel(ctx)

		c.setStatus(market, surface, StatusPending)
		c.publish(opCtx, Progress{Market: market, Surface: surface, Status: StatusPending})

		err := op(opCtx)

		final := StatusDone
		detail := ""
		if err != nil {
			final = StatusError
			detail = err.Error()
			c.logger.WarnContext(opCtx, "submission failed",
				slog.String("market", market.Hex()),
				slog.String("surface", surface),
				slog.Any("error", err),
			)
		}
		c.setStatus(market, surface, final)
		c.publish(opCtx, Progress{Market: market, Surface: surface, Status: final, Detail: detail})

		// Re-enable every surface referencing this market, regardless of
		// outcome. A trigger must never stay disabled after a failure.
		c.mu.Lock()
		delete(c.active, market)
		for k := range c.surfaces {
			if k.market == market {
				c.surfaces[k] = StatusIdle
			}
		}
		c.mu.Unlock()
		c.publish(opCtx, Progress{Market: market, Surface: surface, Status: StatusIdle})

		p.err = err
		close(p.done)
	}()
	return p, nil
}

// SurfaceStatus reports a surface's current trigger state. Unknown surfaces
// are idle.
func (c *Coordinator) SurfaceStatus(market common.Address, surface string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.surfaces[surfaceKey{market, surface}]; ok {
		return s
	}
	return StatusIdle
}

// Busy reports whether any submission is in flight for the market.
func (c *Coordinator) Busy(market common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.active[market]
	return busy
}

func (c *Coordinator) setStatus(market common.Address, surface string, s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surfaces[surfaceKey{market, surface}] = s
}

func (c *Coordinator) publish(ctx context.Context, pr Progress) {
	if c.bus == nil {
		return
	}
	payload, err := json.Marshal(pr)
	if err != nil {
		return
	}
	if err := c.bus.Publish(ctx, StatusChannel, payload); err != nil {
		c.logger.WarnContext(ctx, "progress publish failed", slog.Any("error", err))
	}
}
