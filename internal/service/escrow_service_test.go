package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/pumpsly/duelcore/internal/domain"
)

type escrowFixture struct {
	svc      *EscrowService
	store    *fakeEscrowStore
	confs    *fakeConfirmationStore
	verifier *fakeVerifier
}

func newEscrowFixture(t *testing.T) *escrowFixture {
	t.Helper()
	f := &escrowFixture{
		store:    newFakeEscrowStore(),
		confs:    newFakeConfirmationStore(),
		verifier: newFakeVerifier(),
	}
	f.svc = NewEscrowService(f.store, f.confs, &fakeAuditStore{}, f.verifier, 3, testLogger())
	return f
}

func TestEscrowRecordIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)
	duelID := uuid.New()

	entry, err := f.svc.Record(ctx, domain.EscrowTransaction{
		DuelID: &duelID,
		Wallet: wallet(),
		Type:   domain.EscrowDeposit,
		Amount: 1_000,
		TxHash: "sig-1",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if entry.Status != domain.EscrowPending {
		t.Errorf("status = %s, want %s", entry.Status, domain.EscrowPending)
	}

	again, err := f.svc.Record(ctx, domain.EscrowTransaction{
		DuelID: &duelID,
		Wallet: wallet(),
		Type:   domain.EscrowDeposit,
		Amount: 1_000,
		TxHash: "sig-1",
	})
	if err != nil {
		t.Fatalf("replayed Record: %v", err)
	}
	if again.ID != entry.ID {
		t.Errorf("replay returned entry %s, want original %s", again.ID, entry.ID)
	}
}

func TestEscrowRecordRejectsZeroAmount(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	_, err := f.svc.Record(ctx, domain.EscrowTransaction{
		Wallet: wallet(),
		Type:   domain.EscrowDeposit,
		TxHash: "sig-zero",
	})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestEscrowConfirmFlipsEntry(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)
	duelID := uuid.New()

	if _, err := f.svc.Record(ctx, domain.EscrowTransaction{
		DuelID: &duelID,
		Wallet: wallet(),
		Type:   domain.EscrowDeposit,
		Amount: 5_000,
		TxHash: "sig-2",
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Still waiting for depth.
	f.verifier.pending["sig-2"] = true
	if _, err := f.svc.Confirm(ctx, "sig-2"); !errors.Is(err, domain.ErrVerificationPending) {
		t.Fatalf("err = %v, want ErrVerificationPending", err)
	}
	got, _ := f.store.GetByTxHash(ctx, "sig-2")
	if got.Status != domain.EscrowPending {
		t.Errorf("status after pending check = %s, want %s", got.Status, domain.EscrowPending)
	}

	f.verifier.confirm("sig-2", 5_000)
	conf, err := f.svc.Confirm(ctx, "sig-2")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if conf.Amount != 5_000 {
		t.Errorf("confirmed amount = %d, want 5000", conf.Amount)
	}

	got, _ = f.store.GetByTxHash(ctx, "sig-2")
	if got.Status != domain.EscrowConfirmed {
		t.Errorf("status = %s, want %s", got.Status, domain.EscrowConfirmed)
	}
	if _, err := f.confs.GetByTxHash(ctx, "sig-2"); err != nil {
		t.Errorf("confirmation row not stored: %v", err)
	}
}

func TestEscrowConfirmMarksFailedEntries(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)
	duelID := uuid.New()

	if _, err := f.svc.Record(ctx, domain.EscrowTransaction{
		DuelID: &duelID,
		Wallet: wallet(),
		Type:   domain.EscrowDeposit,
		Amount: 5_000,
		TxHash: "sig-3",
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	f.verifier.failed["sig-3"] = true
	if _, err := f.svc.Confirm(ctx, "sig-3"); !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("err = %v, want ErrVerificationFailed", err)
	}
	got, _ := f.store.GetByTxHash(ctx, "sig-3")
	if got.Status != domain.EscrowFailed {
		t.Errorf("status = %s, want %s", got.Status, domain.EscrowFailed)
	}
}

func TestEscrowHasPayout(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)
	duelID := uuid.New()

	has, err := f.svc.HasPayout(ctx, duelID)
	if err != nil {
		t.Fatalf("HasPayout: %v", err)
	}
	if has {
		t.Error("fresh duel reports a payout")
	}

	// Deposits do not count as payouts.
	if _, err := f.svc.Record(ctx, domain.EscrowTransaction{
		DuelID: &duelID,
		Wallet: wallet(),
		Type:   domain.EscrowDeposit,
		Amount: 1_000,
		TxHash: "dep",
	}); err != nil {
		t.Fatalf("Record deposit: %v", err)
	}
	if has, _ = f.svc.HasPayout(ctx, duelID); has {
		t.Error("deposit counted as payout")
	}

	if _, err := f.svc.Record(ctx, domain.EscrowTransaction{
		DuelID: &duelID,
		Wallet: wallet(),
		Type:   domain.EscrowPayout,
		Amount: 1_900,
		TxHash: "pay",
	}); err != nil {
		t.Fatalf("Record payout: %v", err)
	}
	if has, _ = f.svc.HasPayout(ctx, duelID); !has {
		t.Error("booked payout not reported")
	}
}

func TestEscrowRefundCountsAsPayout(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)
	duelID := uuid.New()

	if _, err := f.svc.Record(ctx, domain.EscrowTransaction{
		DuelID: &duelID,
		Wallet: wallet(),
		Type:   domain.EscrowRefund,
		Amount: 1_000,
		TxHash: "ref",
	}); err != nil {
		t.Fatalf("Record refund: %v", err)
	}
	has, err := f.svc.HasPayout(ctx, duelID)
	if err != nil {
		t.Fatalf("HasPayout: %v", err)
	}
	if !has {
		t.Error("refund not treated as a payout")
	}
}
