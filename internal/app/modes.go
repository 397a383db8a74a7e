package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/udlabs/pulseratings/internal/aggregator"
	"github.com/udlabs/pulseratings/internal/bank"
	"github.com/udlabs/pulseratings/internal/domain"
	"github.com/udlabs/pulseratings/internal/ledger"
	"github.com/udlabs/pulseratings/internal/notify"
	"github.com/udlabs/pulseratings/internal/server"
	"github.com/udlabs/pulseratings/internal/server/handler"
	"github.com/udlabs/pulseratings/internal/server/ws"
	"github.com/udlabs/pulseratings/internal/submit"
)

// core bundles the domain objects every mode operates on: the authoritative
// ledger, its payment bank, the read-model aggregator, and the submission
// coordinator.
type core struct {
	ledger *ledger.Ledger
	bank   *bank.Bank
	agg    *aggregator.Aggregator
	subs   *submit.Coordinator
}

// buildCore constructs the ledger and read model from wired dependencies and
// replays the event log so state survives restarts.
func (a *App) buildCore(ctx context.Context, deps *Dependencies) (*core, error) {
	if !common.IsHexAddress(a.cfg.Ledger.Receiver) {
		return nil, fmt.Errorf("app: ledger receiver %q is not a valid address", a.cfg.Ledger.Receiver)
	}
	receiver := common.HexToAddress(a.cfg.Ledger.Receiver)

	log := deps.EventLog
	if deps.SignalBus != nil {
		log = newPublishingLog(log, deps.SignalBus, a.logger)
	}

	bk := bank.New()
	led, err := ledger.New(ledger.Params{
		Owner:            deps.Operator.Address(),
		Receiver:         receiver,
		MinRatingAmount:  a.cfg.Ledger.MinStake(),
		PriceNumerator:   a.cfg.Ledger.PriceNumerator,
		PriceDenominator: a.cfg.Ledger.PriceDenominator,
	}, bk, log, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: build ledger: %w", err)
	}
	if err := led.Restore(ctx); err != nil {
		return nil, fmt.Errorf("app: restore ledger: %w", err)
	}

	agg := aggregator.New(log, led, aggregator.Options{
		Cache:    deps.SnapshotCache,
		Archiver: deps.Archiver,
		Locks:    deps.LockManager,
		LockTTL:  a.cfg.Aggregator.LockTTL.Duration,
	}, a.logger)
	// Serve reads from another instance's snapshot until our first refresh.
	agg.SeedFromCache(ctx)

	return &core{
		ledger: led,
		bank:   bk,
		agg:    agg,
		subs:   submit.NewCoordinator(deps.SignalBus, a.logger),
	}, nil
}

// ServerMode serves the HTTP and WebSocket API without a background refresh
// loop; the read model refreshes on demand.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, c)
	return g.Wait()
}

// ReplayMode rebuilds the read model from the event log once, reports the
// result, and exits. Useful for verifying a log or re-seeding the snapshot
// cache and archive.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode")

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return err
	}

	snap, err := c.agg.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("app: replay refresh: %w", err)
	}

	a.logger.InfoContext(ctx, "replay complete",
		slog.Int("markets", len(snap.Markets)),
		slog.Int("users", len(snap.Users)),
		slog.Uint64("latest_sequence", snap.LatestSequence),
	)
	return nil
}

// FullMode serves the API and keeps the read model fresh with a periodic
// background refresh.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	// Seed the snapshot before serving so reads never 404 on a fresh start.
	if _, err := c.agg.Refresh(ctx); err != nil && !errors.Is(err, domain.ErrRefreshInProgress) {
		a.logger.WarnContext(ctx, "initial refresh failed",
			slog.String("error", err.Error()),
		)
	}

	if interval := a.cfg.Aggregator.RefreshInterval.Duration; interval > 0 {
		g.Go(func() error {
			return a.refreshLoop(ctx, deps, c, interval)
		})
	}

	a.startHTTPServer(ctx, g, deps, c)
	return g.Wait()
}

// refreshLoop refreshes the read model on a fixed interval, publishing a
// notice after each successful rebuild. A refresh already in flight is
// skipped, not queued.
func (a *App) refreshLoop(ctx context.Context, deps *Dependencies, c *core, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap, err := c.agg.Refresh(ctx)
			if err != nil {
				if errors.Is(err, domain.ErrRefreshInProgress) {
					a.logger.DebugContext(ctx, "refresh already in flight, skipping tick")
					continue
				}
				a.logger.WarnContext(ctx, "scheduled refresh failed",
					slog.String("error", err.Error()),
				)
				if deps.Notifier != nil {
					_ = deps.Notifier.Notify(ctx, notify.EventRefreshFailed,
						"Read-model refresh failed", err.Error())
				}
				continue
			}
			a.publishSnapshotNotice(ctx, deps, snap)
		}
	}
}

// publishSnapshotNotice tells live consumers a new snapshot is available.
func (a *App) publishSnapshotNotice(ctx context.Context, deps *Dependencies, snap domain.Snapshot) {
	if deps.SignalBus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"latest_sequence": snap.LatestSequence,
		"refreshed_at":    snap.RefreshedAt,
		"markets":         len(snap.Markets),
		"users":           len(snap.Users),
	})
	if err != nil {
		return
	}
	if err := deps.SignalBus.Publish(ctx, ws.SnapshotChannel, payload); err != nil {
		a.logger.WarnContext(ctx, "snapshot notice publish failed",
			slog.String("error", err.Error()),
		)
	}
}

// startHTTPServer adds the HTTP server (and WebSocket hub, when a signal bus
// is wired) to the given errgroup. The server is shut down gracefully when
// the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled")
		return
	}

	pingers := map[string]handler.Pinger{}
	if deps.Postgres != nil {
		pingers["postgres"] = deps.Postgres
	}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(pingers, a.logger),
		Markets:     handler.NewMarketHandler(c.ledger, c.agg, a.logger),
		Ratings:     handler.NewRatingHandler(c.ledger, c.subs, a.logger),
		Leaderboard: handler.NewLeaderboardHandler(c.agg, a.logger),
		Snapshots:   handler.NewSnapshotHandler(c.agg, deps.BlobReader, a.logger),
		Users:       handler.NewUserHandler(c.ledger, a.logger),
		Bank:        handler.NewBankHandler(c.bank, a.logger),
		Admin:       handler.NewAdminHandler(c.ledger, deps.Operator.Address(), deps.Notifier, a.logger),
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		AdminAPIKey:     a.cfg.Server.AdminAPIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// publishingLog decorates an EventLog so every appended event is also
// published on the signal bus for live consumers. Publish failures are
// logged, never surfaced: the log write already succeeded and wins.
type publishingLog struct {
	inner  domain.EventLog
	bus    domain.SignalBus
	logger *slog.Logger
}

func newPublishingLog(inner domain.EventLog, bus domain.SignalBus, logger *slog.Logger) *publishingLog {
	return &publishingLog{
		inner:  inner,
		bus:    bus,
		logger: logger.With(slog.String("component", "publishing_log")),
	}
}

func (p *publishingLog) Append(ctx context.Context, ev domain.Event) error {
	if err := p.inner.Append(ctx, ev); err != nil {
		return err
	}
	if payload, err := json.Marshal(ev); err == nil {
		if err := p.bus.Publish(ctx, ws.EventsChannel, payload); err != nil {
			p.logger.WarnContext(ctx, "event publish failed",
				slog.Uint64("sequence", ev.Sequence),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (p *publishingLog) Query(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	return p.inner.Query(ctx, from, to)
}

func (p *publishingLog) LatestSequence(ctx context.Context) (uint64, error) {
	return p.inner.LatestSequence(ctx)
}

var _ domain.EventLog = (*publishingLog)(nil)
