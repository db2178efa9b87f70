package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pumpsly/duelcore/internal/domain"
)

// ResultStore implements domain.ResultStore using PostgreSQL.
type ResultStore struct {
	pool *pgxpool.Pool
}

// NewResultStore creates a new ResultStore backed by the given connection pool.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

const resultCols = `id, duel_id, winner, loser, amount_won, fee_amount, currency,
	entry_price, exit_price, price_change, direction, was_correct, created_at`

func scanResult(row pgx.Row) (domain.DuelResult, error) {
	var r domain.DuelResult
	err := row.Scan(
		&r.ID, &r.DuelID, &r.Winner, &r.Loser, &r.AmountWon, &r.FeeAmount, &r.Currency,
		&r.EntryPrice, &r.ExitPrice, &r.PriceChange, &r.Direction, &r.WasCorrect, &r.CreatedAt,
	)
	return r, err
}

// Insert writes the outcome of a resolved duel. The unique duel_id
// constraint makes double-resolution fail with ErrAlreadyExists.
func (s *ResultStore) Insert(ctx context.Context, r domain.DuelResult) error {
	const query = `
		INSERT INTO duel_results (
			id, duel_id, winner, loser, amount_won, fee_amount, currency,
			entry_price, exit_price, price_change, direction, was_correct, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.DuelID, r.Winner, r.Loser, r.AmountWon, r.FeeAmount, r.Currency,
		r.EntryPrice, r.ExitPrice, r.PriceChange, r.Direction, r.WasCorrect, r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert result for duel %s: %w", r.DuelID, err)
	}
	return nil
}

// GetByDuelID fetches the result of a resolved duel.
func (s *ResultStore) GetByDuelID(ctx context.Context, duelID uuid.UUID) (domain.DuelResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resultCols+` FROM duel_results WHERE duel_id = $1`, duelID)
	r, err := scanResult(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.DuelResult{}, domain.ErrNotFound
		}
		return domain.DuelResult{}, fmt.Errorf("postgres: get result for duel %s: %w", duelID, err)
	}
	return r, nil
}

// ListByPlayer returns results where the wallet won or lost, newest first.
func (s *ResultStore) ListByPlayer(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.DuelResult, error) {
	query := `SELECT ` + resultCols + ` FROM duel_results
		WHERE winner = $1 OR loser = $1 ORDER BY created_at DESC`
	args := []any{wallet}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list results for %s: %w", wallet, err)
	}
	defer rows.Close()

	var results []domain.DuelResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list results rows: %w", err)
	}
	return results, nil
}
