package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pumpsly/duelcore/internal/domain"
)

// PoolStore implements domain.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *pgxpool.Pool
}

// NewPoolStore creates a new PoolStore backed by the given connection pool.
func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

const poolCols = `id, market_id, address, authority, token_mint, question,
	yes_reserve, no_reserve, base_yes_liquidity, base_no_liquidity,
	fee_bps, status, winning_outcome, bump, created_at, resolved_at, updated_at`

func scanPool(row pgx.Row) (domain.Pool, error) {
	var p domain.Pool
	var status string
	var outcome *string
	err := row.Scan(
		&p.ID, &p.MarketID, &p.Address, &p.Authority, &p.TokenMint, &p.Question,
		&p.YesReserve, &p.NoReserve, &p.BaseYesLiquidity, &p.BaseNoLiquidity,
		&p.FeeBps, &status, &outcome, &p.Bump, &p.CreatedAt, &p.ResolvedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Pool{}, err
	}
	p.Status = domain.PoolStatus(status)
	if outcome != nil {
		o := domain.Outcome(*outcome)
		p.WinningOutcome = &o
	}
	return p, nil
}

// Create inserts a new pool row.
func (s *PoolStore) Create(ctx context.Context, p domain.Pool) error {
	const query = `
		INSERT INTO pools (
			id, market_id, address, authority, token_mint, question,
			yes_reserve, no_reserve, base_yes_liquidity, base_no_liquidity,
			fee_bps, status, bump, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.MarketID, p.Address, p.Authority, p.TokenMint, p.Question,
		p.YesReserve, p.NoReserve, p.BaseYesLiquidity, p.BaseNoLiquidity,
		p.FeeBps, string(p.Status), p.Bump, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create pool %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a pool by its primary key.
func (s *PoolStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Pool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poolCols+` FROM pools WHERE id = $1`, id)
	p, err := scanPool(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Pool{}, domain.ErrNotFound
		}
		return domain.Pool{}, fmt.Errorf("postgres: get pool %s: %w", id, err)
	}
	return p, nil
}

// GetByAddress retrieves a pool by its on-chain account address.
func (s *PoolStore) GetByAddress(ctx context.Context, address string) (domain.Pool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poolCols+` FROM pools WHERE address = $1`, address)
	p, err := scanPool(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Pool{}, domain.ErrNotFound
		}
		return domain.Pool{}, fmt.Errorf("postgres: get pool by address %s: %w", address, err)
	}
	return p, nil
}

// UpdateReserves replaces the cached reserve snapshot.
func (s *PoolStore) UpdateReserves(ctx context.Context, id uuid.UUID, yesReserve, noReserve uint64) error {
	const query = `
		UPDATE pools SET yes_reserve = $2, no_reserve = $3, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, yesReserve, noReserve)
	if err != nil {
		return fmt.Errorf("postgres: update pool reserves %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Resolve marks an active pool resolved with the winning outcome.
func (s *PoolStore) Resolve(ctx context.Context, id uuid.UUID, outcome domain.Outcome, at time.Time) error {
	const query = `
		UPDATE pools SET status = 'RESOLVED', winning_outcome = $2, resolved_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'`

	tag, err := s.pool.Exec(ctx, query, id, string(outcome), at)
	if err != nil {
		return fmt.Errorf("postgres: resolve pool %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// ListActive returns tradeable pools, newest first.
func (s *PoolStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Pool, error) {
	query := `SELECT ` + poolCols + ` FROM pools WHERE status = 'ACTIVE' ORDER BY created_at DESC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list active pools: %w", err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active pools rows: %w", err)
	}
	return pools, nil
}

// InsertTrade records an executed swap. The unique signature constraint
// makes repeated indexing of the same transaction fail with
// ErrAlreadyExists.
func (s *PoolStore) InsertTrade(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO amm_trades (
			id, pool_id, trader, trade_type, input_amount, output_amount,
			fee_amount, signature, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.PoolID, t.Trader, string(t.Type), t.InputAmount, t.OutputAmount,
		t.FeeAmount, t.Signature, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert trade %s: %w", t.Signature, err)
	}
	return nil
}

// GetTradeBySignature fetches a trade by its transaction signature.
func (s *PoolStore) GetTradeBySignature(ctx context.Context, signature string) (domain.Trade, error) {
	const query = `
		SELECT id, pool_id, trader, trade_type, input_amount, output_amount,
			fee_amount, signature, created_at
		FROM amm_trades WHERE signature = $1`

	var t domain.Trade
	var tradeType string
	err := s.pool.QueryRow(ctx, query, signature).Scan(
		&t.ID, &t.PoolID, &t.Trader, &tradeType, &t.InputAmount, &t.OutputAmount,
		&t.FeeAmount, &t.Signature, &t.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Trade{}, domain.ErrNotFound
		}
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s: %w", signature, err)
	}
	t.Type = domain.TradeType(tradeType)
	return t, nil
}

// ListTrades returns a pool's trades, newest first.
func (s *PoolStore) ListTrades(ctx context.Context, poolID uuid.UUID, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `
		SELECT id, pool_id, trader, trade_type, input_amount, output_amount,
			fee_amount, signature, created_at
		FROM amm_trades WHERE pool_id = $1 ORDER BY created_at DESC`
	args := []any{poolID}
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
		return nil, fmt.Errorf("postgres: list trades for pool %s: %w", poolID, err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var tradeType string
		if err := rows.Scan(
			&t.ID, &t.PoolID, &t.Trader, &tradeType, &t.InputAmount, &t.OutputAmount,
			&t.FeeAmount, &t.Signature, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Type = domain.TradeType(tradeType)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades rows: %w", err)
	}
	return trades, nil
}

// ListTradesBefore returns all trades created strictly before the cutoff,
// for cold-storage archival.
func (s *PoolStore) ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	const query = `
		SELECT id, pool_id, trader, trade_type, input_amount, output_amount,
			fee_amount, signature, created_at
		FROM amm_trades WHERE created_at < $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %v: %w", before, err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var tradeType string
		if err := rows.Scan(
			&t.ID, &t.PoolID, &t.Trader, &tradeType, &t.InputAmount, &t.OutputAmount,
			&t.FeeAmount, &t.Signature, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Type = domain.TradeType(tradeType)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades rows: %w", err)
	}
	return trades, nil
}

// isUniqueViolation reports whether err is a 23505 unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
