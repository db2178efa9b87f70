package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PriceFeed connects to the market data WebSocket, subscribes to the
// configured symbols and invokes the handler on each tick. It reconnects on
// disconnect.
type PriceFeed struct {
	wsURL     string
	symbols   []string
	onTick    func(ctx context.Context, tick Tick)
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewPriceFeed creates a feed that will subscribe to the given symbols.
func NewPriceFeed(wsURL string, symbols []string, onTick func(ctx context.Context, tick Tick), logger *slog.Logger) *PriceFeed {
	return &PriceFeed{
		wsURL:   wsURL,
		symbols: symbols,
		onTick:  onTick,
		logger:  logger.With(slog.String("component", "price_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects, subscribes to the configured symbols and runs until ctx is
// cancelled. Reconnects with backoff on disconnect.
func (f *PriceFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("price feed disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *PriceFeed) runConnection(ctx context.Context) error {
	client := NewWSClient(f.wsURL)
	defer client.Close()

	client.OnTick(func(tick Tick) {
		if f.onTick != nil {
			f.onTick(context.Background(), tick)
		}
	})

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}
	if err := client.Subscribe(ctx, f.symbols); err != nil {
		return err
	}
	f.logger.Info("price feed subscribed", slog.Int("symbols", len(f.symbols)))

	<-ctx.Done()
	return ctx.Err()
}

// Close stops the feed.
func (f *PriceFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
