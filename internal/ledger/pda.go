package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// PDA seed prefixes used by the duel and pool programs.
const (
	duelSeed      = "duel"
	duelVaultSeed = "duel_vault"
	poolSeed      = "pool"
)

func u64Seed(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// DuelAddress derives the duel account PDA for a numeric duel ID.
func DuelAddress(programID solana.PublicKey, duelID uint64) (solana.PublicKey, uint8, error) {
	pda, bump, err := solana.FindProgramAddress([][]byte{[]byte(duelSeed), u64Seed(duelID)}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("ledger: derive duel pda: %w", err)
	}
	return pda, bump, nil
}

// DuelVaultAddress derives the escrow vault PDA holding a duel's deposits.
func DuelVaultAddress(programID solana.PublicKey, duelID uint64) (solana.PublicKey, uint8, error) {
	pda, bump, err := solana.FindProgramAddress([][]byte{[]byte(duelVaultSeed), u64Seed(duelID)}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("ledger: derive duel vault pda: %w", err)
	}
	return pda, bump, nil
}

// PoolAddress derives the pool account PDA for a numeric market ID.
func PoolAddress(programID solana.PublicKey, marketID uint64) (solana.PublicKey, uint8, error) {
	pda, bump, err := solana.FindProgramAddress([][]byte{[]byte(poolSeed), u64Seed(marketID)}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("ledger: derive pool pda: %w", err)
	}
	return pda, bump, nil
}
