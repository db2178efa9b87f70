package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pumpsly/duelcore/internal/domain"
)

// ConfirmationStore implements domain.ConfirmationStore using PostgreSQL.
type ConfirmationStore struct {
	pool *pgxpool.Pool
}

// NewConfirmationStore creates a new ConfirmationStore backed by the given
// connection pool.
func NewConfirmationStore(pool *pgxpool.Pool) *ConfirmationStore {
	return &ConfirmationStore{pool: pool}
}

// Upsert stores the verified facts for a transaction. Re-verification of
// the same signature overwrites the row with identical data, so the
// operation is idempotent.
func (s *ConfirmationStore) Upsert(ctx context.Context, c domain.TransactionConfirmation) error {
	const query = `
		INSERT INTO transaction_confirmations (
			id, tx_hash, sender, receiver, amount, slot, confirmations, finalized, verified_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tx_hash) DO UPDATE SET
			confirmations = EXCLUDED.confirmations,
			finalized     = EXCLUDED.finalized,
			verified_at   = EXCLUDED.verified_at`

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.TxHash, c.Sender, c.Receiver, c.Amount, c.Slot,
		c.Confirmations, c.Finalized, c.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert confirmation %s: %w", c.TxHash, err)
	}
	return nil
}

// GetByTxHash fetches the verified facts for a transaction hash.
func (s *ConfirmationStore) GetByTxHash(ctx context.Context, txHash string) (domain.TransactionConfirmation, error) {
	const query = `
		SELECT id, tx_hash, sender, receiver, amount, slot, confirmations, finalized, verified_at
		FROM transaction_confirmations WHERE tx_hash = $1`

	var c domain.TransactionConfirmation
	err := s.pool.QueryRow(ctx, query, txHash).Scan(
		&c.ID, &c.TxHash, &c.Sender, &c.Receiver, &c.Amount, &c.Slot,
		&c.Confirmations, &c.Finalized, &c.VerifiedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.TransactionConfirmation{}, domain.ErrNotFound
		}
		return domain.TransactionConfirmation{}, fmt.Errorf("postgres: get confirmation %s: %w", txHash, err)
	}
	return c, nil
}
