package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pumpsly/duelcore/internal/domain"
)

// PriceUpdate is one tick from the external price feed.
type PriceUpdate struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

// PriceService fans feed ticks into the price cache and onto the signal
// bus. Duel settlement reads entry and exit prices from the cache this
// service maintains.
type PriceService struct {
	cache  domain.PriceCache
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewPriceService creates a PriceService with all required dependencies.
func NewPriceService(cache domain.PriceCache, bus domain.SignalBus, logger *slog.Logger) *PriceService {
	return &PriceService{
		cache:  cache,
		bus:    bus,
		logger: logger,
	}
}

// HandleTick stores a feed tick and publishes a price event.
func (s *PriceService) HandleTick(ctx context.Context, update PriceUpdate) error {
	price, _ := update.Price.Float64()
	if price <= 0 {
		return fmt.Errorf("price_service: %w: price %s", domain.ErrInvalidAmount, update.Price)
	}

	if err := s.cache.SetPrice(ctx, update.Symbol, price, update.Timestamp); err != nil {
		return fmt.Errorf("price_service: set price %q: %w", update.Symbol, err)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "price_update",
		"symbol":    update.Symbol,
		"price":     update.Price.String(),
		"timestamp": update.Timestamp.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, "prices", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "price_service: publish tick failed",
			slog.String("symbol", update.Symbol),
			slog.String("error", pubErr.Error()),
		)
	}
	return nil
}

// Current returns the latest cached price for a symbol.
func (s *PriceService) Current(ctx context.Context, symbol string) (float64, time.Time, error) {
	price, ts, err := s.cache.GetPrice(ctx, symbol)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("price_service: get %q: %w", symbol, err)
	}
	return price, ts, nil
}
