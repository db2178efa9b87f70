package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/pumpsly/duelcore/internal/crypto"
	"github.com/pumpsly/duelcore/internal/feed"
	"github.com/pumpsly/duelcore/internal/jobs"
	"github.com/pumpsly/duelcore/internal/ledger"
	"github.com/pumpsly/duelcore/internal/notify"
	"github.com/pumpsly/duelcore/internal/server"
	"github.com/pumpsly/duelcore/internal/server/handler"
	"github.com/pumpsly/duelcore/internal/server/ws"
	"github.com/pumpsly/duelcore/internal/service"
)

// services bundles the domain services the modes compose from.
type services struct {
	escrow *service.EscrowService
	duels  *service.DuelService
	pools  *service.PoolService
	prices *service.PriceService
}

// noSubmitter satisfies the settlement submitter interface in modes that run
// without a signing key. Every call fails; read paths are unaffected.
type noSubmitter struct{}

func (noSubmitter) StartDuel(context.Context, uint64, uint64) (string, error) {
	return "", fmt.Errorf("app: no settlement key configured in this mode")
}

func (noSubmitter) ResolveDuel(context.Context, uint64, uint64, uint8, solana.PublicKey, solana.PublicKey) (string, error) {
	return "", fmt.Errorf("app: no settlement key configured in this mode")
}

func (noSubmitter) CancelDuel(context.Context, uint64, solana.PublicKey) (string, error) {
	return "", fmt.Errorf("app: no settlement key configured in this mode")
}

// buildServices wires the ledger clients and domain services. withSigner
// controls whether a settlement submitter is constructed from the wallet key;
// modes without signing get a submitter that refuses chain writes.
func (a *App) buildServices(deps *Dependencies, withSigner bool) (*services, error) {
	rpc := ledger.NewRPCClient(a.cfg.Ledger.RPCEndpoint, a.logger)
	verifier := ledger.NewVerifier(rpc, a.logger)

	duelProgram, err := solana.PublicKeyFromBase58(a.cfg.Ledger.DuelProgramID)
	if err != nil && a.cfg.Ledger.DuelProgramID != "" {
		return nil, fmt.Errorf("build services: duel program id: %w", err)
	}
	marketProgram, err := solana.PublicKeyFromBase58(a.cfg.Ledger.MarketProgramID)
	if err != nil && a.cfg.Ledger.MarketProgramID != "" {
		return nil, fmt.Errorf("build services: market program id: %w", err)
	}
	reader := ledger.NewReader(rpc, duelProgram, marketProgram)

	var submitter service.SettlementSubmitter = noSubmitter{}
	if withSigner {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    a.cfg.Wallet.PrivateKey,
			EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      a.cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("build services: load settlement key: %w", err)
		}
		feeCollector, err := solana.PublicKeyFromBase58(a.cfg.Wallet.FeeCollector)
		if err != nil {
			return nil, fmt.Errorf("build services: fee collector: %w", err)
		}
		submitter = ledger.NewSubmitter(rpc, duelProgram, key, feeCollector, a.logger)
	}

	minConfs := uint64(a.cfg.Ledger.MinConfirmations)
	escrowSvc := service.NewEscrowService(
		deps.EscrowStore, deps.ConfirmationStore, deps.AuditStore, verifier, minConfs, a.logger,
	)
	duelSvc := service.NewDuelService(
		deps.DuelStore, escrowSvc, deps.ResultStore, deps.StatsStore, deps.AuditStore,
		deps.PriceCache, deps.LockManager, deps.SignalBus, reader, submitter,
		service.DuelConfig{
			FeeBps:       uint16(a.cfg.Duel.FeeBps),
			JoinWindow:   a.cfg.Duel.JoinWindow.Duration,
			Countdown:    a.cfg.Duel.Countdown.Duration,
			DuelDuration: a.cfg.Duel.DuelDuration.Duration,
			PriceScale:   a.cfg.Duel.PriceScale,
		},
		a.logger,
	)
	poolSvc := service.NewPoolService(
		deps.PoolStore, deps.AuditStore, verifier, reader, deps.SignalBus,
		marketProgram, minConfs, a.logger,
	)
	priceSvc := service.NewPriceService(deps.PriceCache, deps.SignalBus, a.logger)

	return &services{
		escrow: escrowSvc,
		duels:  duelSvc,
		pools:  poolSvc,
		prices: priceSvc,
	}, nil
}

// SettleMode runs the settlement engine without the public API: price feed,
// lifecycle sweeper, cold-storage archiver, and operator notifications.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settle mode")

	svcs, err := a.buildServices(deps, true)
	if err != nil {
		return fmt.Errorf("settle mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startFeed(ctx, g, svcs)
	a.startSweeper(ctx, g, svcs)
	a.startArchiver(ctx, g, deps)
	a.startNotifyWatcher(ctx, g, deps)

	return g.Wait()
}

// MonitorMode runs read-only observation: price feed, API server and
// notifications. No settlement key is loaded and no chain writes happen.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	svcs, err := a.buildServices(deps, false)
	if err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startFeed(ctx, g, svcs)
	a.startNotifyWatcher(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// ServerMode runs only the HTTP and WebSocket API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	svcs, err := a.buildServices(deps, false)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// FullMode runs everything: settlement, feed, archiver, notifications and
// the API server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svcs, err := a.buildServices(deps, true)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startFeed(ctx, g, svcs)
	a.startSweeper(ctx, g, svcs)
	a.startArchiver(ctx, g, deps)
	a.startNotifyWatcher(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs)
	}

	return g.Wait()
}

// startFeed adds the price feed goroutine when the feed is enabled.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, svcs *services) {
	if !a.cfg.Feed.Enabled {
		a.logger.InfoContext(ctx, "price feed disabled")
		return
	}
	priceFeed := feed.NewPriceFeed(
		a.cfg.Feed.WsHost,
		a.cfg.Feed.Symbols,
		func(ctx context.Context, tick feed.Tick) {
			if err := svcs.prices.HandleTick(ctx, service.PriceUpdate{
				Symbol:    tick.Symbol,
				Price:     tick.Price,
				Timestamp: tick.Timestamp,
			}); err != nil {
				a.logger.WarnContext(ctx, "price tick rejected", slog.String("error", err.Error()))
			}
		},
		a.logger,
	)
	g.Go(func() error {
		defer priceFeed.Close()
		err := priceFeed.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// startSweeper adds the lifecycle sweeper goroutine when enabled.
func (a *App) startSweeper(ctx context.Context, g *errgroup.Group, svcs *services) {
	if !a.cfg.Sweeper.Enabled {
		a.logger.InfoContext(ctx, "sweeper disabled")
		return
	}
	sweeper := jobs.NewSweeper(svcs.duels, jobs.SweeperConfig{
		Interval:     a.cfg.Sweeper.Interval.Duration,
		BatchSize:    a.cfg.Sweeper.BatchSize,
		Countdown:    a.cfg.Duel.Countdown.Duration,
		DuelDuration: a.cfg.Duel.DuelDuration.Duration,
	}, a.logger)
	g.Go(func() error {
		err := sweeper.RunLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// startArchiver adds the cold-storage archiver cron goroutine when blob
// storage is wired.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil || a.cfg.Sweeper.ArchiveCron == "" {
		a.logger.InfoContext(ctx, "archiver disabled")
		return
	}
	archiver := jobs.NewArchiver(deps.Archiver, a.cfg.Sweeper.ArchiveAfter.Duration, a.logger)
	cron := a.cfg.Sweeper.ArchiveCron
	g.Go(func() error {
		err := archiver.RunCron(ctx, cron)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// startNotifyWatcher adds the bus-to-notifier bridge goroutine.
func (a *App) startNotifyWatcher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	watcher := notify.NewWatcher(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		err := watcher.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// startHTTPServer adds the API server and WebSocket hub goroutines. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Duels:  handler.NewDuelHandler(svcs.duels, a.logger),
		Pools:  handler.NewPoolHandler(svcs.pools, a.logger),
		Escrow: handler.NewEscrowHandler(svcs.escrow, deps.StatsStore, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
