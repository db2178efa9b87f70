package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/pumpsly/duelcore/internal/amm"
	"github.com/pumpsly/duelcore/internal/domain"
	"github.com/pumpsly/duelcore/internal/ledger"
	"github.com/pumpsly/duelcore/internal/metrics"
)

// PoolService owns the prediction pool lifecycle: creation, pricing,
// idempotent trade indexing and resolution. The on-chain pool account is
// authoritative for reserves; the database keeps a snapshot for listing and
// quoting between refreshes.
type PoolService struct {
	pools    domain.PoolStore
	audit    domain.AuditStore
	verifier TxVerifier
	reader   ChainReader
	bus      domain.SignalBus

	programID solana.PublicKey
	minConfs  uint64
	now       func() time.Time
	logger    *slog.Logger
}

// NewPoolService creates a PoolService with all required dependencies.
func NewPoolService(
	pools domain.PoolStore,
	audit domain.AuditStore,
	verifier TxVerifier,
	reader ChainReader,
	bus domain.SignalBus,
	programID solana.PublicKey,
	minConfirmations uint64,
	logger *slog.Logger,
) *PoolService {
	return &PoolService{
		pools:     pools,
		audit:     audit,
		verifier:  verifier,
		reader:    reader,
		bus:       bus,
		programID: programID,
		minConfs:  minConfirmations,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// Create registers a pool after its on-chain initialization. The init
// signature is verified first, then the authoritative reserves are re-read
// from the decoded chain account rather than trusted from the caller.
func (s *PoolService) Create(ctx context.Context, marketID uint64, question, initSignature string) (domain.Pool, error) {
	if _, err := s.verifier.Verify(ctx, initSignature, s.minConfs); err != nil {
		return domain.Pool{}, fmt.Errorf("pool_service: init signature: %w", err)
	}

	onchain, err := s.reader.Pool(ctx, marketID)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("pool_service: chain read: %w", err)
	}
	address, _, err := ledger.PoolAddress(s.programID, marketID)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("pool_service: %w", err)
	}

	pool := domain.Pool{
		ID:               uuid.New(),
		MarketID:         onchain.MarketID,
		Address:          address.String(),
		Authority:        onchain.Authority.String(),
		TokenMint:        onchain.TokenMint.String(),
		Question:         question,
		YesReserve:       onchain.YesReserve,
		NoReserve:        onchain.NoReserve,
		BaseYesLiquidity: onchain.BaseYesLiquidity,
		BaseNoLiquidity:  onchain.BaseNoLiquidity,
		FeeBps:           onchain.FeeBps,
		Status:           domain.PoolStatusActive,
		Bump:             onchain.Bump,
		CreatedAt:        s.now(),
	}

	if err := s.pools.Create(ctx, pool); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			existing, getErr := s.pools.GetByAddress(ctx, pool.Address)
			if getErr == nil {
				return existing, nil
			}
		}
		return domain.Pool{}, fmt.Errorf("pool_service: create: %w", err)
	}

	s.publishPool(ctx, "pool_created", pool.ID, map[string]any{
		"market_id": pool.MarketID,
		"address":   pool.Address,
	})
	return pool, nil
}

// Quote prices a prospective trade. Reserves are refreshed from the chain
// when possible so quotes track the authoritative state; the cached
// snapshot serves as fallback.
func (s *PoolService) Quote(ctx context.Context, id uuid.UUID, input uint64, tradeType domain.TradeType, slippageBps uint32) (domain.TradeQuote, error) {
	pool, err := s.refreshedPool(ctx, id)
	if err != nil {
		return domain.TradeQuote{}, err
	}
	if !pool.Tradeable() {
		return domain.TradeQuote{}, fmt.Errorf("pool_service: %w: pool %s is %s", domain.ErrInvalidState, id, pool.Status)
	}

	quote, err := amm.Quote(pool, input, tradeType, slippageBps)
	if err != nil {
		return domain.TradeQuote{}, fmt.Errorf("pool_service: quote: %w", err)
	}
	metrics.Quotes.WithLabelValues(string(tradeType)).Inc()
	return quote, nil
}

// RecordTrade indexes an executed on-chain swap. The signature is verified
// before any local write, the unique constraint makes re-indexing the same
// signature return the original row, and the reserve snapshot is advanced
// only if the constant product does not shrink.
func (s *PoolService) RecordTrade(ctx context.Context, id uuid.UUID, trader string, tradeType domain.TradeType, input uint64, signature string) (domain.Trade, error) {
	if existing, err := s.pools.GetTradeBySignature(ctx, signature); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Trade{}, fmt.Errorf("pool_service: trade lookup: %w", err)
	}

	if _, err := s.verifier.Verify(ctx, signature, s.minConfs); err != nil {
		return domain.Trade{}, fmt.Errorf("pool_service: trade signature: %w", err)
	}

	pool, err := s.pools.GetByID(ctx, id)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("pool_service: record trade: %w", err)
	}
	if !pool.Tradeable() {
		return domain.Trade{}, fmt.Errorf("pool_service: %w: pool %s is %s", domain.ErrInvalidState, id, pool.Status)
	}

	quote, err := amm.Quote(pool, input, tradeType, 0)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("pool_service: record trade: %w", err)
	}

	trade := domain.Trade{
		ID:           uuid.New(),
		PoolID:       id,
		Trader:       trader,
		Type:         tradeType,
		InputAmount:  input,
		OutputAmount: quote.OutputAmount,
		FeeAmount:    quote.FeeAmount,
		Signature:    signature,
		CreatedAt:    s.now(),
	}
	if err := s.pools.InsertTrade(ctx, trade); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			existing, getErr := s.pools.GetTradeBySignature(ctx, signature)
			if getErr == nil {
				return existing, nil
			}
		}
		return domain.Trade{}, fmt.Errorf("pool_service: record trade: %w", err)
	}

	if err := s.pools.UpdateReserves(ctx, id, quote.NewYesReserve, quote.NewNoReserve); err != nil {
		return domain.Trade{}, fmt.Errorf("pool_service: record trade: %w", err)
	}

	if auditErr := s.audit.Log(ctx, "trade_recorded", map[string]any{
		"pool":      id.String(),
		"signature": signature,
		"type":      string(tradeType),
		"input":     input,
		"output":    quote.OutputAmount,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "pool_service: audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}
	s.publishPool(ctx, "pool_traded", id, map[string]any{
		"signature": signature,
		"type":      string(tradeType),
	})
	return trade, nil
}

// Resolve marks a pool resolved with the winning outcome. Resolution of an
// already-resolved pool fails with ErrInvalidState.
func (s *PoolService) Resolve(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error {
	if outcome != domain.OutcomeYes && outcome != domain.OutcomeNo {
		return fmt.Errorf("pool_service: %w: outcome %q", domain.ErrInvalidAmount, outcome)
	}
	if err := s.pools.Resolve(ctx, id, outcome, s.now()); err != nil {
		return fmt.Errorf("pool_service: resolve: %w", err)
	}

	s.publishPool(ctx, "pool_resolved", id, map[string]any{
		"outcome": string(outcome),
	})
	return nil
}

// Claim records a trader collecting winnings from a resolved pool. The
// on-chain pool account is re-read first so a stale local snapshot can never
// authorize a payout, and the claim transaction is verified before any local
// write. Returns the verified transfer amount.
func (s *PoolService) Claim(ctx context.Context, id uuid.UUID, wallet, signature string) (uint64, error) {
	pool, err := s.pools.GetByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("pool_service: claim: %w", err)
	}

	onchain, err := s.reader.Pool(ctx, pool.MarketID)
	if err != nil {
		return 0, fmt.Errorf("pool_service: claim chain read: %w", err)
	}
	if onchain.Status != ledger.ChainPoolResolved {
		return 0, fmt.Errorf("pool_service: %w: pool %s not resolved on chain", domain.ErrInvalidState, id)
	}

	conf, err := s.verifier.Verify(ctx, signature, s.minConfs)
	if err != nil {
		return 0, fmt.Errorf("pool_service: claim signature: %w", err)
	}

	if auditErr := s.audit.Log(ctx, "pool_claimed", map[string]any{
		"pool":      id.String(),
		"wallet":    wallet,
		"signature": signature,
		"amount":    conf.Amount,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "pool_service: audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}
	s.publishPool(ctx, "pool_claimed", id, map[string]any{
		"wallet": wallet,
		"amount": conf.Amount,
	})
	return conf.Amount, nil
}

// Get returns a pool by ID.
func (s *PoolService) Get(ctx context.Context, id uuid.UUID) (domain.Pool, error) {
	pool, err := s.pools.GetByID(ctx, id)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("pool_service: get %s: %w", id, err)
	}
	return pool, nil
}

// ListActive returns tradeable pools with pagination.
func (s *PoolService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Pool, error) {
	pools, err := s.pools.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("pool_service: list active: %w", err)
	}
	return pools, nil
}

// ListTrades returns a pool's trade history with pagination.
func (s *PoolService) ListTrades(ctx context.Context, id uuid.UUID, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.pools.ListTrades(ctx, id, opts)
	if err != nil {
		return nil, fmt.Errorf("pool_service: list trades for %s: %w", id, err)
	}
	return trades, nil
}

// refreshedPool loads a pool and overlays the reserves read from the chain.
// Chain read failures fall back to the stored snapshot.
func (s *PoolService) refreshedPool(ctx context.Context, id uuid.UUID) (domain.Pool, error) {
	pool, err := s.pools.GetByID(ctx, id)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("pool_service: get pool %s: %w", id, err)
	}

	onchain, err := s.reader.Pool(ctx, pool.MarketID)
	if err != nil {
		s.logger.WarnContext(ctx, "pool_service: chain refresh failed, using snapshot",
			slog.String("pool", id.String()),
			slog.String("error", err.Error()),
		)
		return pool, nil
	}

	if onchain.YesReserve != pool.YesReserve || onchain.NoReserve != pool.NoReserve {
		pool.YesReserve = onchain.YesReserve
		pool.NoReserve = onchain.NoReserve
		if err := s.pools.UpdateReserves(ctx, id, pool.YesReserve, pool.NoReserve); err != nil {
			s.logger.WarnContext(ctx, "pool_service: snapshot update failed",
				slog.String("pool", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return pool, nil
}

func (s *PoolService) publishPool(ctx context.Context, event string, id uuid.UUID, extra map[string]any) {
	payload := map[string]any{
		"event": event,
		"id":    id.String(),
		"ts":    s.now().Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, "pools", evt); err != nil {
		s.logger.WarnContext(ctx, "pool_service: publish event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
