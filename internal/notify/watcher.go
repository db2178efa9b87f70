package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pumpsly/duelcore/internal/domain"
)

// busEvent is the JSON envelope published on the "duels" channel by the
// services.
type busEvent struct {
	Event     string  `json:"event"`
	ID        string  `json:"id"`
	Winner    string  `json:"winner"`
	ExitPrice float64 `json:"exit_price"`
}

// Watcher subscribes to the duel event channel and forwards noteworthy
// events to the Notifier. It is the bridge between the signal bus and
// operator alerting.
type Watcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewWatcher creates a Watcher over the given bus and notifier.
func NewWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_watcher")),
	}
}

// Run subscribes to "duels" and forwards each event until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ch, err := w.bus.Subscribe(ctx, "duels")
	if err != nil {
		return fmt.Errorf("notify: subscribe duels: %w", err)
	}
	w.logger.Info("notify watcher started")
	defer w.logger.Info("notify watcher stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, data)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, data []byte) {
	var ev busEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		w.logger.Debug("notify watcher drop unparseable event",
			slog.Int("payload_len", len(data)),
		)
		return
	}

	var title, message string
	switch ev.Event {
	case "duel_resolved":
		if ev.Winner == "" {
			title = "Duel pushed"
			message = fmt.Sprintf("duel %s ended flat at %.6f, both deposits refunded", ev.ID, ev.ExitPrice)
		} else {
			title = "Duel resolved"
			message = fmt.Sprintf("duel %s settled at %.6f, winner %s", ev.ID, ev.ExitPrice, ev.Winner)
		}
	case "duel_cancelled":
		title = "Duel cancelled"
		message = fmt.Sprintf("duel %s cancelled before matching", ev.ID)
	case "duel_expired":
		title = "Duel expired"
		message = fmt.Sprintf("duel %s expired without an opponent", ev.ID)
	default:
		return
	}

	if err := w.notifier.Notify(ctx, ev.Event, title, message); err != nil {
		w.logger.WarnContext(ctx, "notify dispatch failed",
			slog.String("event", ev.Event),
			slog.String("error", err.Error()),
		)
	}
}
