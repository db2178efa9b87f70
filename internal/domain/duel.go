package domain

import (
	"time"

	"github.com/google/uuid"
)

// DuelStatus represents the lifecycle state of a duel.
type DuelStatus string

const (
	DuelStatusPending               DuelStatus = "PENDING"
	DuelStatusMatched               DuelStatus = "MATCHED"
	DuelStatusWaitingDeposit        DuelStatus = "WAITING_DEPOSIT"
	DuelStatusConfirmingTransaction DuelStatus = "CONFIRMING_TRANSACTIONS"
	DuelStatusCountdown             DuelStatus = "COUNTDOWN"
	DuelStatusActive                DuelStatus = "ACTIVE"
	DuelStatusFinished              DuelStatus = "FINISHED"
	DuelStatusResolved              DuelStatus = "RESOLVED"
	DuelStatusCancelled             DuelStatus = "CANCELLED"
	DuelStatusExpired               DuelStatus = "EXPIRED"
)

// Terminal reports whether no further mutation of the duel is permitted.
func (s DuelStatus) Terminal() bool {
	switch s {
	case DuelStatusResolved, DuelStatusCancelled, DuelStatusExpired:
		return true
	}
	return false
}

// Direction is a player's predicted price direction.
type Direction int16

const (
	DirectionUp   Direction = 0
	DirectionDown Direction = 1
)

// Duel is a two-party wager settled against an external price feed. The
// numeric DuelID doubles as the on-chain PDA seed; ID is the internal
// database key.
type Duel struct {
	ID            uuid.UUID
	DuelID        uint64
	Player1       string // base58 wallet address
	Player2       *string
	BetAmount     uint64 // lamports (token smallest unit)
	Player2Amount *uint64
	Currency      int16 // 0: SOL, 1: PUMP
	Direction     Direction
	Status        DuelStatus
	Winner        *string
	EntryPrice    *float64
	ExitPrice     *float64
	TxHash        *string
	Confirmations int16
	CreatedAt     time.Time
	StartedAt     *time.Time
	ResolvedAt    *time.Time
	ExpiresAt     *time.Time
	UpdatedAt     time.Time
}

// Pot returns the total amount at stake once both players have deposited.
func (d Duel) Pot() uint64 {
	return d.BetAmount * 2
}

// Joinable reports whether the duel is still waiting for a second player.
func (d Duel) Joinable(now time.Time) bool {
	if d.Status != DuelStatusPending || d.Player2 != nil {
		return false
	}
	return d.ExpiresAt == nil || now.Before(*d.ExpiresAt)
}

// DuelResult is the immutable outcome record written when a duel resolves.
// A nil Winner means the duel was a push and both deposits were refunded.
type DuelResult struct {
	ID          uuid.UUID
	DuelID      uuid.UUID
	Winner      *string
	Loser       *string
	AmountWon   uint64
	FeeAmount   uint64
	Currency    int16
	EntryPrice  float64
	ExitPrice   float64
	PriceChange float64
	Direction   Direction
	WasCorrect  bool
	CreatedAt   time.Time
}

// DuelStats aggregates per-player duel outcomes.
type DuelStats struct {
	Player       string
	TotalDuels   int64
	Wins         int64
	Losses       int64
	TotalWagered uint64
	TotalWon     uint64
	TotalLost    uint64
	UpdatedAt    time.Time
}
