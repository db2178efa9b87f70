package ledger

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Reader fetches and decodes program accounts. The chain copy is the
// authoritative source for reserves and duel state.
type Reader struct {
	client        Client
	duelProgram   solana.PublicKey
	marketProgram solana.PublicKey
}

// NewReader builds a Reader over the two program IDs.
func NewReader(client Client, duelProgram, marketProgram solana.PublicKey) *Reader {
	return &Reader{client: client, duelProgram: duelProgram, marketProgram: marketProgram}
}

// Duel fetches the on-chain duel account for a numeric duel ID.
func (r *Reader) Duel(ctx context.Context, duelID uint64) (*DuelAccount, error) {
	pda, _, err := DuelAddress(r.duelProgram, duelID)
	if err != nil {
		return nil, err
	}
	data, err := r.client.AccountData(ctx, pda)
	if err != nil {
		return nil, err
	}
	return DecodeDuel(data)
}

// Pool fetches the on-chain pool account for a numeric market ID.
func (r *Reader) Pool(ctx context.Context, marketID uint64) (*PoolAccount, error) {
	pda, _, err := PoolAddress(r.marketProgram, marketID)
	if err != nil {
		return nil, err
	}
	data, err := r.client.AccountData(ctx, pda)
	if err != nil {
		return nil, err
	}
	return DecodePool(data)
}
