package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pumpsly/duelcore/internal/domain"
)

// StatsStore implements domain.StatsStore using PostgreSQL.
type StatsStore struct {
	pool *pgxpool.Pool
}

// NewStatsStore creates a new StatsStore backed by the given connection pool.
func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

const statsUpsert = `
	INSERT INTO duel_stats (player, total_duels, wins, losses, total_wagered, total_won, total_lost, updated_at)
	VALUES ($1, 1, $2, $3, $4, $5, $6, NOW())
	ON CONFLICT (player) DO UPDATE SET
		total_duels   = duel_stats.total_duels + 1,
		wins          = duel_stats.wins + EXCLUDED.wins,
		losses        = duel_stats.losses + EXCLUDED.losses,
		total_wagered = duel_stats.total_wagered + EXCLUDED.total_wagered,
		total_won     = duel_stats.total_won + EXCLUDED.total_won,
		total_lost    = duel_stats.total_lost + EXCLUDED.total_lost,
		updated_at    = NOW()`

// ApplyResult folds a duel outcome into both players' aggregates. A push
// (nil winner) counts the duel without moving the win/loss columns.
func (s *StatsStore) ApplyResult(ctx context.Context, r domain.DuelResult, wagered uint64) error {
	if r.Winner == nil || r.Loser == nil {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin stats tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, statsUpsert,
		*r.Winner, 1, 0, wagered, r.AmountWon, 0,
	); err != nil {
		return fmt.Errorf("postgres: apply winner stats: %w", err)
	}
	if _, err := tx.Exec(ctx, statsUpsert,
		*r.Loser, 0, 1, wagered, 0, wagered,
	); err != nil {
		return fmt.Errorf("postgres: apply loser stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit stats tx: %w", err)
	}
	return nil
}

// Get fetches a wallet's aggregates.
func (s *StatsStore) Get(ctx context.Context, wallet string) (domain.DuelStats, error) {
	const query = `
		SELECT player, total_duels, wins, losses, total_wagered, total_won, total_lost, updated_at
		FROM duel_stats WHERE player = $1`

	var st domain.DuelStats
	err := s.pool.QueryRow(ctx, query, wallet).Scan(
		&st.Player, &st.TotalDuels, &st.Wins, &st.Losses,
		&st.TotalWagered, &st.TotalWon, &st.TotalLost, &st.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.DuelStats{}, domain.ErrNotFound
		}
		return domain.DuelStats{}, fmt.Errorf("postgres: get stats for %s: %w", wallet, err)
	}
	return st, nil
}

// TopByWins returns the leaderboard ordered by win count.
func (s *StatsStore) TopByWins(ctx context.Context, limit int) ([]domain.DuelStats, error) {
	const query = `
		SELECT player, total_duels, wins, losses, total_wagered, total_won, total_lost, updated_at
		FROM duel_stats ORDER BY wins DESC, total_won DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.DuelStats
	for rows.Next() {
		var st domain.DuelStats
		if err := rows.Scan(
			&st.Player, &st.TotalDuels, &st.Wins, &st.Losses,
			&st.TotalWagered, &st.TotalWon, &st.TotalLost, &st.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan stats: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: leaderboard rows: %w", err)
	}
	return out, nil
}
