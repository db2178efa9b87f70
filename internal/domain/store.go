package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// DuelStore persists duels.
type DuelStore interface {
	Create(ctx context.Context, duel Duel) error
	GetByID(ctx context.Context, id uuid.UUID) (Duel, error)
	GetByDuelID(ctx context.Context, duelID uint64) (Duel, error)
	Update(ctx context.Context, duel Duel) error
	// UpdateStatus transitions a duel only if it is currently in the given
	// state; it returns ErrInvalidState when the guard does not match.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to DuelStatus) error
	// ClaimPendingSlot sets player2 atomically, failing with ErrDuelFull if
	// another caller already took the slot.
	ClaimPendingSlot(ctx context.Context, id uuid.UUID, player2 string, amount uint64) error
	ListByStatus(ctx context.Context, status DuelStatus, opts ListOpts) ([]Duel, error)
	ListByPlayer(ctx context.Context, wallet string, opts ListOpts) ([]Duel, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Duel, error)
}

// PoolStore persists prediction pools and their trades.
type PoolStore interface {
	Create(ctx context.Context, pool Pool) error
	GetByID(ctx context.Context, id uuid.UUID) (Pool, error)
	GetByAddress(ctx context.Context, address string) (Pool, error)
	UpdateReserves(ctx context.Context, id uuid.UUID, yesReserve, noReserve uint64) error
	Resolve(ctx context.Context, id uuid.UUID, outcome Outcome, at time.Time) error
	ListActive(ctx context.Context, opts ListOpts) ([]Pool, error)
	InsertTrade(ctx context.Context, trade Trade) error
	GetTradeBySignature(ctx context.Context, signature string) (Trade, error)
	ListTrades(ctx context.Context, poolID uuid.UUID, opts ListOpts) ([]Trade, error)
}

// EscrowStore persists the append-only escrow ledger.
type EscrowStore interface {
	Insert(ctx context.Context, tx EscrowTransaction) error
	Confirm(ctx context.Context, txHash string) error
	MarkFailed(ctx context.Context, txHash string) error
	GetByTxHash(ctx context.Context, txHash string) (EscrowTransaction, error)
	// HasPayout reports whether a PAYOUT or REFUND entry already exists for
	// the duel. Consulted before any payout insert.
	HasPayout(ctx context.Context, duelID uuid.UUID) (bool, error)
	ListByDuel(ctx context.Context, duelID uuid.UUID) ([]EscrowTransaction, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]EscrowTransaction, error)
}

// ConfirmationStore persists verified transaction facts.
type ConfirmationStore interface {
	Upsert(ctx context.Context, c TransactionConfirmation) error
	GetByTxHash(ctx context.Context, txHash string) (TransactionConfirmation, error)
}

// ResultStore persists immutable duel outcomes.
type ResultStore interface {
	Insert(ctx context.Context, result DuelResult) error
	GetByDuelID(ctx context.Context, duelID uuid.UUID) (DuelResult, error)
	ListByPlayer(ctx context.Context, wallet string, opts ListOpts) ([]DuelResult, error)
}

// StatsStore persists per-player duel aggregates.
type StatsStore interface {
	ApplyResult(ctx context.Context, result DuelResult, wagered uint64) error
	Get(ctx context.Context, wallet string) (DuelStats, error)
	TopByWins(ctx context.Context, limit int) ([]DuelStats, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
