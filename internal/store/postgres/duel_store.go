package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pumpsly/duelcore/internal/domain"
)

// DuelStore implements domain.DuelStore using PostgreSQL.
type DuelStore struct {
	pool *pgxpool.Pool
}

// NewDuelStore creates a new DuelStore backed by the given connection pool.
func NewDuelStore(pool *pgxpool.Pool) *DuelStore {
	return &DuelStore{pool: pool}
}

const duelCols = `id, duel_id, player1, player2, bet_amount, player2_amount,
	currency, direction, status, winner, entry_price, exit_price,
	tx_hash, confirmations, created_at, started_at, resolved_at, expires_at, updated_at`

// scanDuel scans a single duel row into a domain.Duel.
func scanDuel(row pgx.Row) (domain.Duel, error) {
	var d domain.Duel
	var status string
	err := row.Scan(
		&d.ID, &d.DuelID, &d.Player1, &d.Player2, &d.BetAmount, &d.Player2Amount,
		&d.Currency, &d.Direction, &status, &d.Winner, &d.EntryPrice, &d.ExitPrice,
		&d.TxHash, &d.Confirmations, &d.CreatedAt, &d.StartedAt, &d.ResolvedAt, &d.ExpiresAt, &d.UpdatedAt,
	)
	if err != nil {
		return domain.Duel{}, err
	}
	d.Status = domain.DuelStatus(status)
	return d, nil
}

// Create inserts a new duel row.
func (s *DuelStore) Create(ctx context.Context, d domain.Duel) error {
	const query = `
		INSERT INTO duels (
			id, duel_id, player1, player2, bet_amount, player2_amount,
			currency, direction, status, winner, entry_price, exit_price,
			tx_hash, confirmations, created_at, started_at, resolved_at, expires_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.DuelID, d.Player1, d.Player2, d.BetAmount, d.Player2Amount,
		d.Currency, d.Direction, string(d.Status), d.Winner, d.EntryPrice, d.ExitPrice,
		d.TxHash, d.Confirmations, d.CreatedAt, d.StartedAt, d.ResolvedAt, d.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create duel %s: %w", d.ID, err)
	}
	return nil
}

// GetByID retrieves a duel by its primary key.
func (s *DuelStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Duel, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+duelCols+` FROM duels WHERE id = $1`, id)
	d, err := scanDuel(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Duel{}, domain.ErrNotFound
		}
		return domain.Duel{}, fmt.Errorf("postgres: get duel %s: %w", id, err)
	}
	return d, nil
}

// GetByDuelID retrieves a duel by its on-chain numeric ID.
func (s *DuelStore) GetByDuelID(ctx context.Context, duelID uint64) (domain.Duel, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+duelCols+` FROM duels WHERE duel_id = $1`, duelID)
	d, err := scanDuel(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Duel{}, domain.ErrNotFound
		}
		return domain.Duel{}, fmt.Errorf("postgres: get duel by chain id %d: %w", duelID, err)
	}
	return d, nil
}

// Update overwrites the mutable fields of a duel.
func (s *DuelStore) Update(ctx context.Context, d domain.Duel) error {
	const query = `
		UPDATE duels SET
			player2        = $2,
			player2_amount = $3,
			status         = $4,
			winner         = $5,
			entry_price    = $6,
			exit_price     = $7,
			tx_hash        = $8,
			confirmations  = $9,
			started_at     = $10,
			resolved_at    = $11,
			expires_at     = $12,
			updated_at     = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		d.ID, d.Player2, d.Player2Amount, string(d.Status), d.Winner,
		d.EntryPrice, d.ExitPrice, d.TxHash, d.Confirmations,
		d.StartedAt, d.ResolvedAt, d.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update duel %s: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus transitions a duel between two lifecycle states. The guard
// on the current state makes concurrent transitions lose cleanly.
func (s *DuelStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.DuelStatus) error {
	const query = `
		UPDATE duels SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("postgres: transition duel %s %s->%s: %w", id, from, to, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// ClaimPendingSlot atomically fills the player2 slot of a pending duel.
// Losers of the race observe zero affected rows and get ErrDuelFull.
func (s *DuelStore) ClaimPendingSlot(ctx context.Context, id uuid.UUID, player2 string, amount uint64) error {
	const query = `
		UPDATE duels SET
			player2        = $2,
			player2_amount = $3,
			status         = 'MATCHED',
			updated_at     = NOW()
		WHERE id = $1 AND status = 'PENDING' AND player2 IS NULL`

	tag, err := s.pool.Exec(ctx, query, id, player2, amount)
	if err != nil {
		return fmt.Errorf("postgres: claim duel slot %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuelFull
	}
	return nil
}

// ListByStatus returns duels in the given state, newest first.
func (s *DuelStore) ListByStatus(ctx context.Context, status domain.DuelStatus, opts domain.ListOpts) ([]domain.Duel, error) {
	query := `SELECT ` + duelCols + ` FROM duels WHERE status = $1`
	args := []any{string(status)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryDuels(ctx, query, args...)
}

// ListByPlayer returns duels a wallet participated in on either side.
func (s *DuelStore) ListByPlayer(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Duel, error) {
	query := `SELECT ` + duelCols + ` FROM duels WHERE (player1 = $1 OR player2 = $1)`
	args := []any{wallet}
	argIdx := 2

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryDuels(ctx, query, args...)
}

// ListExpired returns pending duels whose expiry has passed.
func (s *DuelStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Duel, error) {
	const query = `
		SELECT ` + duelCols + ` FROM duels
		WHERE status = 'PENDING' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2`

	return s.queryDuels(ctx, query, now, limit)
}

// ListResolvedBefore returns terminal duels whose last update precedes the
// cutoff, for cold-storage archival.
func (s *DuelStore) ListResolvedBefore(ctx context.Context, before time.Time) ([]domain.Duel, error) {
	const query = `
		SELECT ` + duelCols + ` FROM duels
		WHERE status IN ('RESOLVED', 'CANCELLED', 'EXPIRED') AND updated_at < $1
		ORDER BY updated_at ASC`

	return s.queryDuels(ctx, query, before)
}

func (s *DuelStore) queryDuels(ctx context.Context, query string, args ...any) ([]domain.Duel, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list duels: %w", err)
	}
	defer rows.Close()

	var duels []domain.Duel
	for rows.Next() {
		d, err := scanDuel(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan duel: %w", err)
		}
		duels = append(duels, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list duels rows: %w", err)
	}
	return duels, nil
}
