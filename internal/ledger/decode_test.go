package ledger

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/pumpsly/duelcore/internal/domain"
)

func buildPoolBytes(t *testing.T, marketID, yes, no uint64, feeBps uint16, status uint8) []byte {
	t.Helper()
	buf := make([]byte, discriminatorLen+poolPayloadLen)
	p := buf[discriminatorLen:]
	binary.LittleEndian.PutUint64(p[0:8], marketID)
	copy(p[8:40], solana.NewWallet().PublicKey().Bytes())
	copy(p[40:72], solana.NewWallet().PublicKey().Bytes())
	binary.LittleEndian.PutUint64(p[72:80], yes)
	binary.LittleEndian.PutUint64(p[80:88], no)
	binary.LittleEndian.PutUint64(p[88:96], yes)
	binary.LittleEndian.PutUint64(p[96:104], no)
	binary.LittleEndian.PutUint16(p[104:106], feeBps)
	p[106] = status
	p[107] = 255
	return buf
}

func buildDuelBytes(t *testing.T, duelID, bet uint64, status uint8, withPlayer2, withWinner bool) []byte {
	t.Helper()
	buf := make([]byte, discriminatorLen+duelPayloadLen)
	p := buf[discriminatorLen:]
	binary.LittleEndian.PutUint64(p[0:8], duelID)
	copy(p[8:40], solana.NewWallet().PublicKey().Bytes())
	if withPlayer2 {
		p[40] = 1
		copy(p[41:73], solana.NewWallet().PublicKey().Bytes())
	}
	binary.LittleEndian.PutUint64(p[73:81], bet)
	copy(p[81:113], solana.NewWallet().PublicKey().Bytes())
	p[113] = status
	if withWinner {
		p[114] = 1
		copy(p[115:147], solana.NewWallet().PublicKey().Bytes())
	}
	binary.LittleEndian.PutUint64(p[147:155], 1700000000)
	// started_at and resolved_at flags left unset, payload space reserved.
	p[173] = 254
	return buf
}

func TestDecodePool(t *testing.T) {
	data := buildPoolBytes(t, 42, 1_000_000, 2_000_000, 300, ChainPoolActive)

	pool, err := DecodePool(data)
	if err != nil {
		t.Fatalf("DecodePool: %v", err)
	}
	if pool.MarketID != 42 {
		t.Errorf("MarketID = %d, want 42", pool.MarketID)
	}
	if pool.YesReserve != 1_000_000 || pool.NoReserve != 2_000_000 {
		t.Errorf("reserves = %d/%d, want 1000000/2000000", pool.YesReserve, pool.NoReserve)
	}
	if pool.FeeBps != 300 {
		t.Errorf("FeeBps = %d, want 300", pool.FeeBps)
	}
	if pool.Status != ChainPoolActive {
		t.Errorf("Status = %d, want %d", pool.Status, ChainPoolActive)
	}
	if pool.Bump != 255 {
		t.Errorf("Bump = %d, want 255", pool.Bump)
	}
}

func TestDecodePoolTruncated(t *testing.T) {
	full := buildPoolBytes(t, 1, 10, 10, 100, ChainPoolActive)

	for _, n := range []int{0, 4, discriminatorLen, discriminatorLen + poolPayloadLen - 1} {
		pool, err := DecodePool(full[:n])
		if pool != nil {
			t.Fatalf("len %d: got partial record %+v", n, pool)
		}
		var de *domain.DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("len %d: error %v, want DecodeError", n, err)
		}
		if de.Kind != domain.TruncatedData {
			t.Errorf("len %d: kind = %q, want %q", n, de.Kind, domain.TruncatedData)
		}
	}
}

func TestDecodePoolUnknownStatus(t *testing.T) {
	data := buildPoolBytes(t, 1, 10, 10, 100, 9)

	if _, err := DecodePool(data); err == nil {
		t.Fatal("DecodePool accepted unknown status code")
	}
}

func TestDecodeDuel(t *testing.T) {
	data := buildDuelBytes(t, 7, 500_000_000, ChainDuelActive, true, false)

	duel, err := DecodeDuel(data)
	if err != nil {
		t.Fatalf("DecodeDuel: %v", err)
	}
	if duel.DuelID != 7 {
		t.Errorf("DuelID = %d, want 7", duel.DuelID)
	}
	if duel.BetAmount != 500_000_000 {
		t.Errorf("BetAmount = %d, want 500000000", duel.BetAmount)
	}
	if duel.Player2 == nil {
		t.Error("Player2 = nil, want set")
	}
	if duel.Winner != nil {
		t.Errorf("Winner = %v, want nil", duel.Winner)
	}
	if duel.StartedAt != nil || duel.ResolvedAt != nil {
		t.Error("optional timestamps set, want nil")
	}
	if duel.Bump != 254 {
		t.Errorf("Bump = %d, want 254", duel.Bump)
	}
}

func TestDecodeDuelOptionalAbsent(t *testing.T) {
	data := buildDuelBytes(t, 3, 100, ChainDuelPending, false, false)

	duel, err := DecodeDuel(data)
	if err != nil {
		t.Fatalf("DecodeDuel: %v", err)
	}
	if duel.Player2 != nil {
		t.Errorf("Player2 = %v, want nil", duel.Player2)
	}
	if duel.Status != ChainDuelPending {
		t.Errorf("Status = %d, want %d", duel.Status, ChainDuelPending)
	}
}

func TestDecodeDuelTruncated(t *testing.T) {
	full := buildDuelBytes(t, 3, 100, ChainDuelPending, false, false)

	for _, n := range []int{0, discriminatorLen, discriminatorLen + duelPayloadLen - 1} {
		duel, err := DecodeDuel(full[:n])
		if duel != nil {
			t.Fatalf("len %d: got partial record %+v", n, duel)
		}
		var de *domain.DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("len %d: error %v, want DecodeError", n, err)
		}
	}
}

func TestDuelStatusFromChain(t *testing.T) {
	cases := []struct {
		code uint8
		want domain.DuelStatus
	}{
		{ChainDuelPending, domain.DuelStatusPending},
		{ChainDuelMatched, domain.DuelStatusMatched},
		{ChainDuelCountdown, domain.DuelStatusCountdown},
		{ChainDuelActive, domain.DuelStatusActive},
		{ChainDuelFinished, domain.DuelStatusFinished},
		{ChainDuelCancelled, domain.DuelStatusCancelled},
	}
	for _, tc := range cases {
		got, ok := DuelStatusFromChain(tc.code)
		if !ok || got != tc.want {
			t.Errorf("DuelStatusFromChain(%d) = %q,%v want %q", tc.code, got, ok, tc.want)
		}
	}
	if _, ok := DuelStatusFromChain(99); ok {
		t.Error("DuelStatusFromChain(99) accepted unknown code")
	}
}
