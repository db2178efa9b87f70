package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pumpsly/duelcore/internal/domain"
)

// Archiver moves settled history from the database to S3 cold storage.
type Archiver struct {
	blobArchiver domain.Archiver
	archiveAfter time.Duration
	logger       *slog.Logger
}

// NewArchiver creates a new Archiver. archiveAfter is the age a record must
// reach before it is moved to cold storage.
func NewArchiver(blobArchiver domain.Archiver, archiveAfter time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver: blobArchiver,
		archiveAfter: archiveAfter,
		logger:       logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive run. It calculates the cutoff time from
// archiveAfter and archives resolved duels and pool trades older than the
// cutoff.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.archiveAfter)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Duration("archive_after", a.archiveAfter),
	)

	duelsArchived, err := a.blobArchiver.ArchiveResolvedDuels(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving resolved duels before %v: %w", cutoff, err)
	}
	a.logger.Info("archived resolved duels", slog.Int64("count", duelsArchived))

	tradesArchived, err := a.blobArchiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving trades before %v: %w", cutoff, err)
	}
	a.logger.Info("archived trades", slog.Int64("count", tradesArchived))

	a.logger.Info("archive run complete",
		slog.Int64("duels_archived", duelsArchived),
		slog.Int64("trades_archived", tradesArchived),
	)

	return nil
}

// RunCron runs the archiver on a cron schedule until the context is cancelled.
// It supports cron expressions in the standard 5-field format:
// "minute hour day-of-month month day-of-week"
//
// Example: "0 3 * * *" runs at 3:00 AM every day.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}

		waitDuration := time.Until(next)
		a.logger.Info("archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", waitDuration),
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField is one parsed field: a wildcard or an explicit value list.
type cronField struct {
	wildcard bool
	values   []int
}

func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField accepts "*", a single number, or a comma list ("1,15").
func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}
	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron is a five-field cron expression: minute, hour, day of month,
// month, day of week.
type parsedCron struct {
	fields [5]cronField
}

func (c parsedCron) matchesTime(t time.Time) bool {
	parts := [5]int{t.Minute(), t.Hour(), t.Day(), int(t.Month()), int(t.Weekday())}
	for i, f := range c.fields {
		if !f.matches(parts[i]) {
			return false
		}
	}
	return true
}

func parseCron(expr string) (parsedCron, error) {
	raw := strings.Fields(expr)
	if len(raw) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(raw))
	}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}
	var c parsedCron
	for i, field := range raw {
		parsed, err := parseCronField(field)
		if err != nil {
			return parsedCron{}, fmt.Errorf("parsing %s field: %w", names[i], err)
		}
		c.fields[i] = parsed
	}
	return c, nil
}

// nextCronTime finds the first minute after 'after' matching the expression,
// scanning minute-by-minute with a one-year cap.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
