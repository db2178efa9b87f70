// Package ledger talks to the Solana ledger: account reads, transaction
// verification, and settlement submission for the duel and pool programs.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SignatureStatus is the subset of the ledger's status response the
// verifier needs. A nil Confirmations means the transaction is rooted.
type SignatureStatus struct {
	Slot          uint64
	Confirmations *uint64
	Err           any
	Finalized     bool
}

// TransactionDetail carries the decoded account keys and balance arrays of
// a confirmed transaction. PreBalances and PostBalances are indexed by
// account key position.
type TransactionDetail struct {
	Slot         uint64
	Err          any
	AccountKeys  []solana.PublicKey
	PreBalances  []uint64
	PostBalances []uint64
}

// Client is the narrow ledger surface the settlement core depends on. It is
// injected everywhere so tests can substitute a fake.
type Client interface {
	SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error)
	Transaction(ctx context.Context, sig solana.Signature) (*TransactionDetail, error)
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// RPCClient implements Client over a JSON-RPC endpoint.
type RPCClient struct {
	rpc    *rpc.Client
	logger *slog.Logger
}

var _ Client = (*RPCClient)(nil)

// NewRPCClient connects to the given RPC endpoint.
func NewRPCClient(endpoint string, logger *slog.Logger) *RPCClient {
	return &RPCClient{
		rpc:    rpc.New(endpoint),
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// SignatureStatus looks up the confirmation state of a signature. It
// returns (nil, nil) when the ledger does not know the signature yet.
func (c *RPCClient) SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, fmt.Errorf("ledger: get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}
	st := out.Value[0]
	return &SignatureStatus{
		Slot:          st.Slot,
		Confirmations: st.Confirmations,
		Err:           st.Err,
		Finalized:     st.ConfirmationStatus == rpc.ConfirmationStatusFinalized,
	}, nil
}

// Transaction fetches a confirmed transaction with its balance arrays.
func (c *RPCClient) Transaction(ctx context.Context, sig solana.Signature) (*TransactionDetail, error) {
	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: get transaction: %w", err)
	}
	if out == nil || out.Meta == nil || out.Transaction == nil {
		return nil, fmt.Errorf("ledger: transaction %s has no metadata", sig)
	}
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("ledger: decode transaction %s: %w", sig, err)
	}
	return &TransactionDetail{
		Slot:         out.Slot,
		Err:          out.Meta.Err,
		AccountKeys:  tx.Message.AccountKeys,
		PreBalances:  out.Meta.PreBalances,
		PostBalances: out.Meta.PostBalances,
	}, nil
}

// AccountData returns the raw bytes of an account, or domain.ErrNotFound
// via the caller's mapping when the account does not exist.
func (c *RPCClient) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	out, err := c.rpc.GetAccountInfo(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("ledger: get account %s: %w", account, err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("ledger: account %s not found", account)
	}
	return out.Value.Data.GetBinary(), nil
}

// LatestBlockhash returns a recent blockhash for transaction assembly.
func (c *RPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("ledger: get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

// SendTransaction submits a signed transaction with preflight enabled.
func (c *RPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("ledger: send transaction: %w", err)
	}
	c.logger.Debug("transaction submitted", slog.String("signature", sig.String()))
	return sig, nil
}
