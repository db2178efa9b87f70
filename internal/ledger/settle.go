package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

// Anchor instruction discriminators for the duel program, taken from its
// published IDL.
var (
	startDuelDiscriminator   = []byte{188, 143, 206, 111, 77, 207, 62, 244}
	resolveDuelDiscriminator = []byte{213, 162, 203, 235, 151, 236, 178, 64}
	cancelDuelDiscriminator  = []byte{0x5f, 0x8e, 0x3d, 0x7c, 0x9a, 0x2b, 0x1e, 0x4f}
)

// Submitter assembles, signs and submits settlement instructions to the
// duel program. The authority key is the platform settlement signer loaded
// from the encrypted key store.
type Submitter struct {
	client       Client
	programID    solana.PublicKey
	authority    solana.PrivateKey
	feeCollector solana.PublicKey
	logger       *slog.Logger
}

// NewSubmitter builds a Submitter for the given program and signer.
func NewSubmitter(client Client, programID solana.PublicKey, authority solana.PrivateKey, feeCollector solana.PublicKey, logger *slog.Logger) *Submitter {
	return &Submitter{
		client:       client,
		programID:    programID,
		authority:    authority,
		feeCollector: feeCollector,
		logger:       logger.With(slog.String("component", "submitter")),
	}
}

// StartDuel records the entry price on-chain and flips the duel to active.
func (s *Submitter) StartDuel(ctx context.Context, duelID, entryPrice uint64) (string, error) {
	duelPDA, _, err := DuelAddress(s.programID, duelID)
	if err != nil {
		return "", err
	}

	data := make([]byte, 16)
	copy(data[0:8], startDuelDiscriminator)
	binary.LittleEndian.PutUint64(data[8:16], entryPrice)

	ix := solana.NewInstruction(s.programID, solana.AccountMetaSlice{
		solana.Meta(duelPDA).WRITE(),
		solana.Meta(s.authority.PublicKey()).SIGNER(),
	}, data)

	return s.submit(ctx, "start_duel", duelID, ix)
}

// ResolveDuel records the exit price and winner on-chain; the program pays
// the winner from the duel vault and the platform fee to the collector.
func (s *Submitter) ResolveDuel(ctx context.Context, duelID, exitPrice uint64, winnerID uint8, player1, player2 solana.PublicKey) (string, error) {
	duelPDA, _, err := DuelAddress(s.programID, duelID)
	if err != nil {
		return "", err
	}

	data := make([]byte, 17)
	copy(data[0:8], resolveDuelDiscriminator)
	binary.LittleEndian.PutUint64(data[8:16], exitPrice)
	data[16] = winnerID

	ix := solana.NewInstruction(s.programID, solana.AccountMetaSlice{
		solana.Meta(duelPDA).WRITE(),
		solana.Meta(player1).WRITE(),
		solana.Meta(player2).WRITE(),
		solana.Meta(s.feeCollector).WRITE(),
		solana.Meta(s.authority.PublicKey()).SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data)

	return s.submit(ctx, "resolve_duel", duelID, ix)
}

// CancelDuel refunds player 1 from the duel vault and closes the duel.
func (s *Submitter) CancelDuel(ctx context.Context, duelID uint64, player1 solana.PublicKey) (string, error) {
	duelPDA, _, err := DuelAddress(s.programID, duelID)
	if err != nil {
		return "", err
	}
	vaultPDA, _, err := DuelVaultAddress(s.programID, duelID)
	if err != nil {
		return "", err
	}

	ix := solana.NewInstruction(s.programID, solana.AccountMetaSlice{
		solana.Meta(duelPDA).WRITE(),
		solana.Meta(player1).WRITE(),
		solana.Meta(vaultPDA).WRITE(),
		solana.Meta(s.authority.PublicKey()).SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, cancelDuelDiscriminator)

	return s.submit(ctx, "cancel_duel", duelID, ix)
}

func (s *Submitter) submit(ctx context.Context, name string, duelID uint64, ix solana.Instruction) (string, error) {
	blockhash, err := s.client.LatestBlockhash(ctx)
	if err != nil {
		return "", err
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		blockhash,
		solana.TransactionPayer(s.authority.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("ledger: build %s transaction: %w", name, err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.authority.PublicKey()) {
			return &s.authority
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("ledger: sign %s transaction: %w", name, err)
	}

	sig, err := s.client.SendTransaction(ctx, tx)
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "settlement instruction submitted",
		slog.String("instruction", name),
		slog.Uint64("duel_id", duelID),
		slog.String("signature", sig.String()),
	)
	return sig.String(), nil
}
