package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/pumpsly/duelcore/internal/domain"
)

type fakeClient struct {
	status *SignatureStatus
	detail *TransactionDetail

	statusCalls int
	txCalls     int
}

func (f *fakeClient) SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	f.statusCalls++
	return f.status, nil
}

func (f *fakeClient) Transaction(ctx context.Context, sig solana.Signature) (*TransactionDetail, error) {
	f.txCalls++
	return f.detail, nil
}

func (f *fakeClient) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return solana.Hash{}, errors.New("not implemented")
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return solana.Signature{}, errors.New("not implemented")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSignature() string {
	var sig solana.Signature
	sig[0] = 1
	return sig.String()
}

func uptr(v uint64) *uint64 { return &v }

func TestVerifyPendingWhenUnknown(t *testing.T) {
	v := NewVerifier(&fakeClient{status: nil}, testLogger())

	_, err := v.Verify(context.Background(), testSignature(), 1)
	if !errors.Is(err, domain.ErrVerificationPending) {
		t.Fatalf("err = %v, want ErrVerificationPending", err)
	}
}

func TestVerifyPendingBelowDepth(t *testing.T) {
	fc := &fakeClient{status: &SignatureStatus{Slot: 10, Confirmations: uptr(2)}}
	v := NewVerifier(fc, testLogger())

	_, err := v.Verify(context.Background(), testSignature(), 5)
	if !errors.Is(err, domain.ErrVerificationPending) {
		t.Fatalf("err = %v, want ErrVerificationPending", err)
	}
	if fc.txCalls != 0 {
		t.Errorf("transaction fetched before depth reached (%d calls)", fc.txCalls)
	}
}

func TestVerifyFailedOnLedgerError(t *testing.T) {
	fc := &fakeClient{status: &SignatureStatus{Slot: 10, Err: map[string]any{"InstructionError": 0}}}
	v := NewVerifier(fc, testLogger())

	_, err := v.Verify(context.Background(), testSignature(), 1)
	if !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("err = %v, want ErrVerificationFailed", err)
	}
}

func TestVerifyMalformedSignature(t *testing.T) {
	v := NewVerifier(&fakeClient{}, testLogger())

	_, err := v.Verify(context.Background(), "not-base58!!", 1)
	if !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("err = %v, want ErrVerificationFailed", err)
	}
}

func TestVerifyExtractsLargestDelta(t *testing.T) {
	sender := solana.NewWallet().PublicKey()
	vault := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()

	fc := &fakeClient{
		status: &SignatureStatus{Slot: 100, Confirmations: uptr(12)},
		detail: &TransactionDetail{
			Slot:        100,
			AccountKeys: []solana.PublicKey{sender, vault, other},
			// Sender pays 1.5 SOL plus fees; the vault gains the most.
			PreBalances:  []uint64{2_000_000_000, 500_000_000, 100_000_000},
			PostBalances: []uint64{495_000_000, 2_000_000_000, 105_000_000},
		},
	}
	v := NewVerifier(fc, testLogger())

	conf, err := v.Verify(context.Background(), testSignature(), 10)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if conf.Sender != sender.String() {
		t.Errorf("Sender = %s, want fee payer %s", conf.Sender, sender)
	}
	if conf.Receiver != vault.String() {
		t.Errorf("Receiver = %s, want %s", conf.Receiver, vault)
	}
	if conf.Amount != 1_500_000_000 {
		t.Errorf("Amount = %d, want 1500000000", conf.Amount)
	}
	if conf.Slot != 100 || conf.Confirmations != 12 {
		t.Errorf("slot/confirmations = %d/%d, want 100/12", conf.Slot, conf.Confirmations)
	}
}

func TestVerifyFinalizedSatisfiesAnyDepth(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	fc := &fakeClient{
		status: &SignatureStatus{Slot: 50, Confirmations: nil, Finalized: true},
		detail: &TransactionDetail{
			Slot:         50,
			AccountKeys:  []solana.PublicKey{key, solana.NewWallet().PublicKey()},
			PreBalances:  []uint64{100, 0},
			PostBalances: []uint64{40, 50},
		},
	}
	v := NewVerifier(fc, testLogger())

	conf, err := v.Verify(context.Background(), testSignature(), 1_000_000)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !conf.Finalized {
		t.Error("Finalized = false, want true")
	}
}

func TestVerifyNoPositiveDelta(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	fc := &fakeClient{
		status: &SignatureStatus{Slot: 1, Confirmations: uptr(5)},
		detail: &TransactionDetail{
			AccountKeys:  []solana.PublicKey{key},
			PreBalances:  []uint64{100},
			PostBalances: []uint64{95},
		},
	}
	v := NewVerifier(fc, testLogger())

	_, err := v.Verify(context.Background(), testSignature(), 1)
	if !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("err = %v, want ErrVerificationFailed", err)
	}
}

func TestVerifyIdempotent(t *testing.T) {
	sender := solana.NewWallet().PublicKey()
	vault := solana.NewWallet().PublicKey()
	fc := &fakeClient{
		status: &SignatureStatus{Slot: 9, Confirmations: uptr(3)},
		detail: &TransactionDetail{
			Slot:         9,
			AccountKeys:  []solana.PublicKey{sender, vault},
			PreBalances:  []uint64{1_000, 0},
			PostBalances: []uint64{200, 750},
		},
	}
	v := NewVerifier(fc, testLogger())

	first, err := v.Verify(context.Background(), testSignature(), 1)
	if err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	second, err := v.Verify(context.Background(), testSignature(), 1)
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if first.Amount != second.Amount || first.Sender != second.Sender || first.Receiver != second.Receiver {
		t.Errorf("repeated verification diverged: %+v vs %+v", first, second)
	}
}
