package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/pumpsly/duelcore/internal/domain"
)

// On-chain duel status codes as written by the duel program.
const (
	ChainDuelPending    uint8 = 0
	ChainDuelMatched    uint8 = 1
	ChainDuelWaiting    uint8 = 2
	ChainDuelConfirming uint8 = 3
	ChainDuelCountdown  uint8 = 4
	ChainDuelActive     uint8 = 5
	ChainDuelFinished   uint8 = 6
	ChainDuelResolved   uint8 = 7
	ChainDuelCancelled  uint8 = 8
)

// On-chain pool status codes.
const (
	ChainPoolActive   uint8 = 0
	ChainPoolResolved uint8 = 1
)

// Account payload sizes after the 8-byte discriminator. Anchor writes
// fixed-width records; anything shorter is corrupt and is rejected whole.
const (
	discriminatorLen = 8
	poolPayloadLen   = 108
	duelPayloadLen   = 174
)

// PoolAccount is the decoded on-chain pool record.
type PoolAccount struct {
	MarketID         uint64
	Authority        solana.PublicKey
	TokenMint        solana.PublicKey
	YesReserve       uint64
	NoReserve        uint64
	BaseYesLiquidity uint64
	BaseNoLiquidity  uint64
	FeeBps           uint16
	Status           uint8
	Bump             uint8
}

// DuelAccount is the decoded on-chain duel record. Optional fields are nil
// when the chain flag byte was zero.
type DuelAccount struct {
	DuelID     uint64
	Player1    solana.PublicKey
	Player2    *solana.PublicKey
	BetAmount  uint64
	TokenMint  solana.PublicKey
	Status     uint8
	Winner     *solana.PublicKey
	CreatedAt  int64
	StartedAt  *int64
	ResolvedAt *int64
	Bump       uint8
}

// reader walks a fixed-layout account payload. Bounds are checked up front
// so individual reads never slice past the end.
type reader struct {
	buf []byte
	off int
}

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) i64() int64 {
	return int64(r.u64())
}

func (r *reader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) pubkey() solana.PublicKey {
	v := solana.PublicKeyFromBytes(r.buf[r.off : r.off+32])
	r.off += 32
	return v
}

// optPubkey reads an Option<Pubkey>. The program reserves the full 33 bytes
// regardless of the flag, so the cursor always advances past the payload.
func (r *reader) optPubkey() *solana.PublicKey {
	set := r.u8() != 0
	v := r.pubkey()
	if !set {
		return nil
	}
	return &v
}

func (r *reader) optI64() *int64 {
	set := r.u8() != 0
	v := r.i64()
	if !set {
		return nil
	}
	return &v
}

// DecodePool decodes raw pool account bytes. It fails closed: any buffer
// shorter than the fixed record length yields a DecodeError and no record.
func DecodePool(data []byte) (*PoolAccount, error) {
	if len(data) < discriminatorLen {
		return nil, &domain.DecodeError{
			Account: "pool",
			Kind:    domain.TruncatedData,
			Detail:  fmt.Sprintf("%d bytes, discriminator needs %d", len(data), discriminatorLen),
		}
	}
	payload := data[discriminatorLen:]
	if len(payload) < poolPayloadLen {
		return nil, &domain.DecodeError{
			Account: "pool",
			Kind:    domain.TruncatedData,
			Detail:  fmt.Sprintf("payload %d bytes, need %d", len(payload), poolPayloadLen),
		}
	}

	r := &reader{buf: payload}
	p := &PoolAccount{
		MarketID:         r.u64(),
		Authority:        r.pubkey(),
		TokenMint:        r.pubkey(),
		YesReserve:       r.u64(),
		NoReserve:        r.u64(),
		BaseYesLiquidity: r.u64(),
		BaseNoLiquidity:  r.u64(),
		FeeBps:           r.u16(),
		Status:           r.u8(),
		Bump:             r.u8(),
	}
	if p.Status > ChainPoolResolved {
		return nil, &domain.DecodeError{
			Account: "pool",
			Kind:    domain.UnknownStatusCode,
			Detail:  fmt.Sprintf("status %d", p.Status),
		}
	}
	return p, nil
}

// DecodeDuel decodes raw duel account bytes, failing closed on truncation.
func DecodeDuel(data []byte) (*DuelAccount, error) {
	if len(data) < discriminatorLen {
		return nil, &domain.DecodeError{
			Account: "duel",
			Kind:    domain.TruncatedData,
			Detail:  fmt.Sprintf("%d bytes, discriminator needs %d", len(data), discriminatorLen),
		}
	}
	payload := data[discriminatorLen:]
	if len(payload) < duelPayloadLen {
		return nil, &domain.DecodeError{
			Account: "duel",
			Kind:    domain.TruncatedData,
			Detail:  fmt.Sprintf("payload %d bytes, need %d", len(payload), duelPayloadLen),
		}
	}

	r := &reader{buf: payload}
	d := &DuelAccount{
		DuelID:    r.u64(),
		Player1:   r.pubkey(),
		Player2:   r.optPubkey(),
		BetAmount: r.u64(),
		TokenMint: r.pubkey(),
		Status:    r.u8(),
		Winner:    r.optPubkey(),
		CreatedAt: r.i64(),
	}
	d.StartedAt = r.optI64()
	d.ResolvedAt = r.optI64()
	d.Bump = r.u8()

	if d.Status > ChainDuelCancelled {
		return nil, &domain.DecodeError{
			Account: "duel",
			Kind:    domain.UnknownStatusCode,
			Detail:  fmt.Sprintf("status %d", d.Status),
		}
	}
	return d, nil
}

// DuelStatusFromChain maps an on-chain status code to the lifecycle status
// used by the controllers.
func DuelStatusFromChain(code uint8) (domain.DuelStatus, bool) {
	switch code {
	case ChainDuelPending:
		return domain.DuelStatusPending, true
	case ChainDuelMatched:
		return domain.DuelStatusMatched, true
	case ChainDuelWaiting:
		return domain.DuelStatusWaitingDeposit, true
	case ChainDuelConfirming:
		return domain.DuelStatusConfirmingTransaction, true
	case ChainDuelCountdown:
		return domain.DuelStatusCountdown, true
	case ChainDuelActive:
		return domain.DuelStatusActive, true
	case ChainDuelFinished:
		return domain.DuelStatusFinished, true
	case ChainDuelResolved:
		return domain.DuelStatusResolved, true
	case ChainDuelCancelled:
		return domain.DuelStatusCancelled, true
	}
	return "", false
}
