package domain

import (
	"time"

	"github.com/google/uuid"
)

// EscrowType classifies escrow ledger entries.
type EscrowType string

const (
	EscrowDeposit EscrowType = "DEPOSIT"
	EscrowPayout  EscrowType = "PAYOUT"
	EscrowRefund  EscrowType = "REFUND"
	EscrowFee     EscrowType = "FEE"
)

// EscrowStatus tracks an entry's confirmation state.
type EscrowStatus string

const (
	EscrowPending   EscrowStatus = "PENDING"
	EscrowConfirmed EscrowStatus = "CONFIRMED"
	EscrowFailed    EscrowStatus = "FAILED"
)

// EscrowTransaction is one append-only escrow ledger row. TxHash is unique
// across the ledger so the same on-chain transaction can never be booked
// twice.
type EscrowTransaction struct {
	ID        uuid.UUID
	DuelID    *uuid.UUID
	PoolID    *uuid.UUID
	Wallet    string
	Type      EscrowType
	Amount    uint64
	Currency  int16
	TxHash    string
	Status    EscrowStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionConfirmation records the verified facts of an on-chain
// transfer: who paid, who received, how much, and how deep it is.
type TransactionConfirmation struct {
	ID            uuid.UUID
	TxHash        string
	Sender        string
	Receiver      string
	Amount        uint64
	Slot          uint64
	Confirmations uint64
	Finalized     bool
	VerifiedAt    time.Time
}
