package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pumpsly/duelcore/internal/domain"
)

// TxVerifier confirms on-ledger transactions and extracts transfer facts.
type TxVerifier interface {
	Verify(ctx context.Context, txHash string, minConfirmations uint64) (*domain.TransactionConfirmation, error)
}

// EscrowService maintains the append-only escrow ledger. Every on-chain
// movement of player funds gets exactly one row here; the unique tx-hash
// constraint and the payout guard keep the ledger honest under retries.
type EscrowService struct {
	escrow        domain.EscrowStore
	confirmations domain.ConfirmationStore
	audit         domain.AuditStore
	verifier      TxVerifier
	minConfs      uint64
	logger        *slog.Logger
}

// NewEscrowService creates an EscrowService with all required dependencies.
func NewEscrowService(
	escrow domain.EscrowStore,
	confirmations domain.ConfirmationStore,
	audit domain.AuditStore,
	verifier TxVerifier,
	minConfirmations uint64,
	logger *slog.Logger,
) *EscrowService {
	return &EscrowService{
		escrow:        escrow,
		confirmations: confirmations,
		audit:         audit,
		verifier:      verifier,
		minConfs:      minConfirmations,
		logger:        logger,
	}
}

// Record appends an escrow entry for an already-observed transaction.
// Recording the same tx hash twice is a no-op returning the existing entry.
func (s *EscrowService) Record(ctx context.Context, entry domain.EscrowTransaction) (domain.EscrowTransaction, error) {
	if entry.Amount == 0 && entry.Type != domain.EscrowRefund {
		return domain.EscrowTransaction{}, fmt.Errorf("escrow_service: %w: zero amount", domain.ErrInvalidAmount)
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = domain.EscrowPending
	}

	err := s.escrow.Insert(ctx, entry)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			existing, getErr := s.escrow.GetByTxHash(ctx, entry.TxHash)
			if getErr != nil {
				return domain.EscrowTransaction{}, fmt.Errorf("escrow_service: reload entry %s: %w", entry.TxHash, getErr)
			}
			return existing, nil
		}
		return domain.EscrowTransaction{}, fmt.Errorf("escrow_service: record: %w", err)
	}

	if auditErr := s.audit.Log(ctx, "escrow_recorded", map[string]any{
		"tx_hash": entry.TxHash,
		"type":    string(entry.Type),
		"wallet":  entry.Wallet,
		"amount":  entry.Amount,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "escrow_service: audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}
	return entry, nil
}

// Confirm re-verifies a pending entry against the ledger and flips it to
// confirmed once the required depth is reached. It reports the verified
// facts so callers can validate amounts.
func (s *EscrowService) Confirm(ctx context.Context, txHash string) (*domain.TransactionConfirmation, error) {
	conf, err := s.verifier.Verify(ctx, txHash, s.minConfs)
	if err != nil {
		if errors.Is(err, domain.ErrVerificationFailed) {
			if markErr := s.escrow.MarkFailed(ctx, txHash); markErr != nil && !errors.Is(markErr, domain.ErrNotFound) {
				s.logger.WarnContext(ctx, "escrow_service: mark failed entry",
					slog.String("tx_hash", txHash),
					slog.String("error", markErr.Error()),
				)
			}
		}
		return nil, err
	}

	if conf.ID == uuid.Nil {
		conf.ID = uuid.New()
	}
	if err := s.confirmations.Upsert(ctx, *conf); err != nil {
		return nil, fmt.Errorf("escrow_service: store confirmation: %w", err)
	}
	if err := s.escrow.Confirm(ctx, txHash); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("escrow_service: confirm entry: %w", err)
	}
	return conf, nil
}

// MarkFailed flags an entry whose transaction can never back its duel, for
// example a deposit below the stake. Unknown hashes are ignored.
func (s *EscrowService) MarkFailed(ctx context.Context, txHash string) error {
	if err := s.escrow.MarkFailed(ctx, txHash); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("escrow_service: mark failed %s: %w", txHash, err)
	}
	return nil
}

// HasPayout reports whether a payout or refund was already booked for the
// duel. Settlement consults this before submitting anything.
func (s *EscrowService) HasPayout(ctx context.Context, duelID uuid.UUID) (bool, error) {
	has, err := s.escrow.HasPayout(ctx, duelID)
	if err != nil {
		return false, fmt.Errorf("escrow_service: payout check: %w", err)
	}
	return has, nil
}

// ListByDuel returns a duel's ledger entries, oldest first.
func (s *EscrowService) ListByDuel(ctx context.Context, duelID uuid.UUID) ([]domain.EscrowTransaction, error) {
	entries, err := s.escrow.ListByDuel(ctx, duelID)
	if err != nil {
		return nil, fmt.Errorf("escrow_service: list by duel %s: %w", duelID, err)
	}
	return entries, nil
}

// ListByWallet returns a wallet's escrow history with pagination.
func (s *EscrowService) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.EscrowTransaction, error) {
	entries, err := s.escrow.ListByWallet(ctx, wallet, opts)
	if err != nil {
		return nil, fmt.Errorf("escrow_service: list by wallet %q: %w", wallet, err)
	}
	return entries, nil
}
