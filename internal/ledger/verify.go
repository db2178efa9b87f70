package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/pumpsly/duelcore/internal/domain"
	"github.com/pumpsly/duelcore/internal/metrics"
)

// Verifier confirms that a transaction signature landed on the ledger and
// extracts the transfer facts from its balance deltas. Verification is a
// pure read: calling it again for the same signature yields the same
// result and touches no local state.
type Verifier struct {
	client Client
	logger *slog.Logger
}

// NewVerifier builds a Verifier over the given ledger client.
func NewVerifier(client Client, logger *slog.Logger) *Verifier {
	return &Verifier{
		client: client,
		logger: logger.With(slog.String("component", "verifier")),
	}
}

// Verify checks a signature against the ledger.
//
// It returns ErrVerificationPending while the ledger has not seen the
// signature or it has fewer than minConfirmations confirmations, and
// ErrVerificationFailed when the ledger reports the transaction errored.
// On success the returned confirmation carries sender (fee payer),
// receiver and amount, where the amount is the largest positive
// post-minus-pre balance delta across the transaction's accounts.
func (v *Verifier) Verify(ctx context.Context, txHash string, minConfirmations uint64) (*domain.TransactionConfirmation, error) {
	sig, err := solana.SignatureFromBase58(txHash)
	if err != nil {
		metrics.Verifications.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: malformed signature %q", domain.ErrVerificationFailed, txHash)
	}

	status, err := v.client.SignatureStatus(ctx, sig)
	if err != nil {
		return nil, err
	}
	if status == nil {
		metrics.Verifications.WithLabelValues("pending").Inc()
		return nil, domain.ErrVerificationPending
	}
	if status.Err != nil {
		metrics.Verifications.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: ledger reports error: %v", domain.ErrVerificationFailed, status.Err)
	}

	confirmations := uint64(0)
	switch {
	case status.Finalized || status.Confirmations == nil:
		// Rooted transactions no longer report a confirmation count.
		confirmations = minConfirmations
	default:
		confirmations = *status.Confirmations
	}
	if confirmations < minConfirmations {
		v.logger.DebugContext(ctx, "confirmation depth not reached",
			slog.String("signature", txHash),
			slog.Uint64("confirmations", confirmations),
			slog.Uint64("required", minConfirmations),
		)
		metrics.Verifications.WithLabelValues("pending").Inc()
		return nil, domain.ErrVerificationPending
	}

	detail, err := v.client.Transaction(ctx, sig)
	if err != nil {
		return nil, err
	}
	if detail.Err != nil {
		return nil, fmt.Errorf("%w: ledger reports error: %v", domain.ErrVerificationFailed, detail.Err)
	}
	if len(detail.AccountKeys) == 0 {
		return nil, fmt.Errorf("%w: transaction has no account keys", domain.ErrVerificationFailed)
	}
	if len(detail.PreBalances) != len(detail.PostBalances) {
		return nil, fmt.Errorf("%w: balance array mismatch", domain.ErrVerificationFailed)
	}

	amount, receiverIdx := largestPositiveDelta(detail.PreBalances, detail.PostBalances)
	if amount == 0 {
		return nil, fmt.Errorf("%w: no positive balance delta", domain.ErrVerificationFailed)
	}
	if receiverIdx >= len(detail.AccountKeys) {
		return nil, fmt.Errorf("%w: delta index out of range", domain.ErrVerificationFailed)
	}

	metrics.Verifications.WithLabelValues("confirmed").Inc()
	return &domain.TransactionConfirmation{
		TxHash:        txHash,
		Sender:        detail.AccountKeys[0].String(),
		Receiver:      detail.AccountKeys[receiverIdx].String(),
		Amount:        amount,
		Slot:          status.Slot,
		Confirmations: confirmations,
		Finalized:     status.Finalized,
		VerifiedAt:    time.Now().UTC(),
	}, nil
}

// largestPositiveDelta scans the balance arrays and returns the biggest
// post-pre increase and the account index it landed on.
func largestPositiveDelta(pre, post []uint64) (uint64, int) {
	var best uint64
	idx := -1
	for i := range post {
		if post[i] <= pre[i] {
			continue
		}
		if delta := post[i] - pre[i]; delta > best {
			best = delta
			idx = i
		}
	}
	if idx < 0 {
		return 0, 0
	}
	return best, idx
}
