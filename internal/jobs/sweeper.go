// Package jobs runs the background loops that move duels through their
// lifecycle without client involvement: join-window expiry, deposit
// confirmation, countdown starts, overdue settlement and cold-storage
// archival.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pumpsly/duelcore/internal/domain"
	"github.com/pumpsly/duelcore/internal/metrics"
)

// DuelSweepService is the slice of the duel service the sweeper drives.
type DuelSweepService interface {
	ExpirePending(ctx context.Context, limit int) (int, error)
	ConfirmDeposits(ctx context.Context, id uuid.UUID) error
	Start(ctx context.Context, id uuid.UUID) (domain.Duel, error)
	Resolve(ctx context.Context, id uuid.UUID) (domain.Duel, error)
	ListByStatus(ctx context.Context, status domain.DuelStatus, opts domain.ListOpts) ([]domain.Duel, error)
}

// SweeperConfig carries the sweeper's tunables.
type SweeperConfig struct {
	Interval     time.Duration
	BatchSize    int
	Countdown    time.Duration
	DuelDuration time.Duration
}

// Sweeper periodically advances duels that are waiting on time rather than
// on a client action.
type Sweeper struct {
	duels  DuelSweepService
	cfg    SweeperConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewSweeper creates a Sweeper with all required dependencies.
func NewSweeper(duels DuelSweepService, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		duels:  duels,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "sweeper")),
	}
}

// RunLoop runs sweep passes on the configured interval until the context is
// cancelled. The first pass fires immediately.
func (s *Sweeper) RunLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep executes one pass. Failures on individual duels are logged and do
// not stop the pass; every step is safe to retry on the next tick.
func (s *Sweeper) Sweep(ctx context.Context) {
	if n, err := s.duels.ExpirePending(ctx, s.cfg.BatchSize); err != nil {
		s.logger.WarnContext(ctx, "expire pass failed", slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.InfoContext(ctx, "expired stale duels", slog.Int("count", n))
	}

	s.confirmDeposits(ctx)
	s.startCountdowns(ctx)
	s.resolveOverdue(ctx)

	metrics.SweepCycles.Inc()
}

// confirmDeposits re-checks duels whose deposits are awaiting ledger depth.
func (s *Sweeper) confirmDeposits(ctx context.Context) {
	duels, err := s.duels.ListByStatus(ctx, domain.DuelStatusConfirmingTransaction, domain.ListOpts{Limit: s.cfg.BatchSize})
	if err != nil {
		s.logger.WarnContext(ctx, "list confirming duels failed", slog.String("error", err.Error()))
		return
	}
	for _, d := range duels {
		if err := s.duels.ConfirmDeposits(ctx, d.ID); err != nil {
			s.logger.WarnContext(ctx, "deposit confirmation pass failed",
				slog.String("duel", d.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// startCountdowns flips countdown duels to active once the countdown has
// elapsed.
func (s *Sweeper) startCountdowns(ctx context.Context) {
	duels, err := s.duels.ListByStatus(ctx, domain.DuelStatusCountdown, domain.ListOpts{Limit: s.cfg.BatchSize})
	if err != nil {
		s.logger.WarnContext(ctx, "list countdown duels failed", slog.String("error", err.Error()))
		return
	}
	now := s.now()
	for _, d := range duels {
		if now.Before(d.UpdatedAt.Add(s.cfg.Countdown)) {
			continue
		}
		if _, err := s.duels.Start(ctx, d.ID); err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				continue
			}
			s.logger.WarnContext(ctx, "countdown start failed",
				slog.String("duel", d.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// resolveOverdue settles active duels whose duration has run out.
func (s *Sweeper) resolveOverdue(ctx context.Context) {
	duels, err := s.duels.ListByStatus(ctx, domain.DuelStatusActive, domain.ListOpts{Limit: s.cfg.BatchSize})
	if err != nil {
		s.logger.WarnContext(ctx, "list active duels failed", slog.String("error", err.Error()))
		return
	}
	now := s.now()
	for _, d := range duels {
		if d.StartedAt == nil || now.Before(d.StartedAt.Add(s.cfg.DuelDuration)) {
			continue
		}
		if _, err := s.duels.Resolve(ctx, d.ID); err != nil {
			// Another settler may have won the race; both outcomes are fine.
			if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrPayoutExists) || errors.Is(err, domain.ErrLockHeld) {
				continue
			}
			s.logger.WarnContext(ctx, "overdue settlement failed",
				slog.String("duel", d.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	// FINISHED duels whose payout step crashed mid-settlement are retried
	// the same way.
	finished, err := s.duels.ListByStatus(ctx, domain.DuelStatusFinished, domain.ListOpts{Limit: s.cfg.BatchSize})
	if err != nil {
		s.logger.WarnContext(ctx, "list finished duels failed", slog.String("error", err.Error()))
		return
	}
	for _, d := range finished {
		if _, err := s.duels.Resolve(ctx, d.ID); err != nil {
			if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrPayoutExists) || errors.Is(err, domain.ErrLockHeld) {
				continue
			}
			s.logger.WarnContext(ctx, "settlement retry failed",
				slog.String("duel", d.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
