package domain

import (
	"time"

	"github.com/google/uuid"
)

// PoolStatus represents the lifecycle state of a prediction pool.
type PoolStatus string

const (
	PoolStatusActive   PoolStatus = "ACTIVE"
	PoolStatusPaused   PoolStatus = "PAUSED"
	PoolStatusResolved PoolStatus = "RESOLVED"
)

// Outcome identifies one side of a binary prediction pool.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// TradeType enumerates the four directions a pool trade can take.
type TradeType string

const (
	TradeBuyYes  TradeType = "BUY_YES"
	TradeBuyNo   TradeType = "BUY_NO"
	TradeSellYes TradeType = "SELL_YES"
	TradeSellNo  TradeType = "SELL_NO"
)

// Pool is a binary-outcome prediction pool backed by a constant-product
// market maker. Reserves are held in the token's smallest unit and mirror
// the on-chain pool account; the chain copy is authoritative.
type Pool struct {
	ID               uuid.UUID
	MarketID         uint64
	Address          string // base58 pool account
	Authority        string
	TokenMint        string
	Question         string
	YesReserve       uint64
	NoReserve        uint64
	BaseYesLiquidity uint64
	BaseNoLiquidity  uint64
	FeeBps           uint16
	Status           PoolStatus
	WinningOutcome   *Outcome
	Bump             uint8
	CreatedAt        time.Time
	ResolvedAt       *time.Time
	UpdatedAt        time.Time
}

// Product returns the constant-product invariant k = yes * no.
func (p Pool) Product() uint64 {
	return p.YesReserve * p.NoReserve
}

// Tradeable reports whether the pool accepts new trades.
func (p Pool) Tradeable() bool {
	return p.Status == PoolStatusActive && p.YesReserve > 0 && p.NoReserve > 0
}

// Trade is one executed swap against a pool, keyed by the transaction
// signature so repeated indexing of the same signature is a no-op.
type Trade struct {
	ID           uuid.UUID
	PoolID       uuid.UUID
	Trader       string
	Type         TradeType
	InputAmount  uint64
	OutputAmount uint64
	FeeAmount    uint64
	Signature    string
	CreatedAt    time.Time
}

// TradeQuote is the result of pricing a prospective trade. All amounts are
// integers in the token's smallest unit; PriceImpact is a display-only
// percentage.
type TradeQuote struct {
	Type           TradeType
	InputAmount    uint64
	OutputAmount   uint64
	FeeAmount      uint64
	MinReceived    uint64
	PriceImpact    float64
	NewYesReserve  uint64
	NewNoReserve   uint64
	YesPriceBefore float64
	YesPriceAfter  float64
}
