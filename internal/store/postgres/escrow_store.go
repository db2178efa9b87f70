package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pumpsly/duelcore/internal/domain"
)

// EscrowStore implements domain.EscrowStore using PostgreSQL. The ledger is
// append-only: rows are inserted and their status flipped, never deleted.
type EscrowStore struct {
	pool *pgxpool.Pool
}

// NewEscrowStore creates a new EscrowStore backed by the given connection pool.
func NewEscrowStore(pool *pgxpool.Pool) *EscrowStore {
	return &EscrowStore{pool: pool}
}

const escrowCols = `id, duel_id, pool_id, wallet, tx_type, amount, currency,
	tx_hash, status, created_at, updated_at`

func scanEscrow(row pgx.Row) (domain.EscrowTransaction, error) {
	var e domain.EscrowTransaction
	var txType, status string
	err := row.Scan(
		&e.ID, &e.DuelID, &e.PoolID, &e.Wallet, &txType, &e.Amount, &e.Currency,
		&e.TxHash, &status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return domain.EscrowTransaction{}, err
	}
	e.Type = domain.EscrowType(txType)
	e.Status = domain.EscrowStatus(status)
	return e, nil
}

// Insert appends a new escrow entry. A duplicate tx hash yields
// ErrAlreadyExists via the unique constraint.
func (s *EscrowStore) Insert(ctx context.Context, e domain.EscrowTransaction) error {
	const query = `
		INSERT INTO escrow_transactions (
			id, duel_id, pool_id, wallet, tx_type, amount, currency,
			tx_hash, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.DuelID, e.PoolID, e.Wallet, string(e.Type), e.Amount, e.Currency,
		e.TxHash, string(e.Status), e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert escrow entry %s: %w", e.TxHash, err)
	}
	return nil
}

// Confirm flips a pending entry to confirmed.
func (s *EscrowStore) Confirm(ctx context.Context, txHash string) error {
	return s.setStatus(ctx, txHash, domain.EscrowConfirmed)
}

// MarkFailed flips a pending entry to failed.
func (s *EscrowStore) MarkFailed(ctx context.Context, txHash string) error {
	return s.setStatus(ctx, txHash, domain.EscrowFailed)
}

func (s *EscrowStore) setStatus(ctx context.Context, txHash string, status domain.EscrowStatus) error {
	const query = `
		UPDATE escrow_transactions SET status = $2, updated_at = NOW()
		WHERE tx_hash = $1`

	tag, err := s.pool.Exec(ctx, query, txHash, string(status))
	if err != nil {
		return fmt.Errorf("postgres: set escrow status %s=%s: %w", txHash, status, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByTxHash fetches an escrow entry by transaction hash.
func (s *EscrowStore) GetByTxHash(ctx context.Context, txHash string) (domain.EscrowTransaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+escrowCols+` FROM escrow_transactions WHERE tx_hash = $1`, txHash)
	e, err := scanEscrow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.EscrowTransaction{}, domain.ErrNotFound
		}
		return domain.EscrowTransaction{}, fmt.Errorf("postgres: get escrow entry %s: %w", txHash, err)
	}
	return e, nil
}

// HasPayout reports whether the duel already has a payout or refund entry.
func (s *EscrowStore) HasPayout(ctx context.Context, duelID uuid.UUID) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM escrow_transactions
			WHERE duel_id = $1 AND tx_type IN ('PAYOUT', 'REFUND') AND status <> 'FAILED'
		)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, duelID).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: check payout for duel %s: %w", duelID, err)
	}
	return exists, nil
}

// ListByDuel returns all entries booked against a duel, oldest first.
func (s *EscrowStore) ListByDuel(ctx context.Context, duelID uuid.UUID) ([]domain.EscrowTransaction, error) {
	const query = `SELECT ` + escrowCols + ` FROM escrow_transactions
		WHERE duel_id = $1 ORDER BY created_at ASC`

	return s.queryEscrow(ctx, query, duelID)
}

// ListByWallet returns a wallet's escrow history, newest first.
func (s *EscrowStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.EscrowTransaction, error) {
	query := `SELECT ` + escrowCols + ` FROM escrow_transactions
		WHERE wallet = $1 ORDER BY created_at DESC`
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

	return s.queryEscrow(ctx, query, args...)
}

func (s *EscrowStore) queryEscrow(ctx context.Context, query string, args ...any) ([]domain.EscrowTransaction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list escrow entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.EscrowTransaction
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan escrow entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list escrow entries rows: %w", err)
	}
	return entries, nil
}
