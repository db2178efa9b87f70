package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/pumpsly/duelcore/internal/domain"
)

// PoolService defines the methods that the pool handler requires from the
// service layer.
type PoolService interface {
	Create(ctx context.Context, marketID uint64, question, initSignature string) (domain.Pool, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Pool, error)
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Pool, error)
	Quote(ctx context.Context, id uuid.UUID, input uint64, tradeType domain.TradeType, slippageBps uint32) (domain.TradeQuote, error)
	RecordTrade(ctx context.Context, id uuid.UUID, trader string, tradeType domain.TradeType, input uint64, signature string) (domain.Trade, error)
	ListTrades(ctx context.Context, id uuid.UUID, opts domain.ListOpts) ([]domain.Trade, error)
	Resolve(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error
	Claim(ctx context.Context, id uuid.UUID, wallet, signature string) (uint64, error)
}

// PoolHandler serves prediction pool HTTP endpoints.
type PoolHandler struct {
	pools  PoolService
	logger *slog.Logger
}

// NewPoolHandler creates a PoolHandler with the given service and logger.
func NewPoolHandler(pools PoolService, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{
		pools:  pools,
		logger: logger,
	}
}

// listPoolsResponse wraps the list endpoint output with pagination metadata.
type listPoolsResponse struct {
	Pools  []domain.Pool `json:"pools"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListPools returns active pools with pagination.
// GET /api/pools?limit=50&offset=0
func (h *PoolHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	pools, err := h.pools.ListActive(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list pools")
		return
	}
	if pools == nil {
		pools = []domain.Pool{}
	}
	writeJSON(w, http.StatusOK, listPoolsResponse{
		Pools:  pools,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetPool returns a single pool by its ID.
// GET /api/pools/{id}
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePoolID(w, r)
	if !ok {
		return
	}

	pool, err := h.pools.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get pool")
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// createPoolRequest is the JSON body for registering an initialized pool.
type createPoolRequest struct {
	MarketID      uint64 `json:"market_id"`
	Question      string `json:"question"`
	InitSignature string `json:"init_signature"`
}

// CreatePool registers a pool after its on-chain initialization.
// POST /api/pools
func (h *PoolHandler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.InitSignature == "" {
		writeError(w, http.StatusBadRequest, "init_signature is required")
		return
	}

	pool, err := h.pools.Create(r.Context(), req.MarketID, req.Question, req.InitSignature)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create pool")
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

// QuotePool prices a prospective trade against current reserves.
// GET /api/pools/{id}/quote?amount=1000&type=BUY_YES&slippage_bps=50
func (h *PoolHandler) QuotePool(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePoolID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	amount, err := strconv.ParseUint(q.Get("amount"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a non-negative integer")
		return
	}
	tradeType := domain.TradeType(q.Get("type"))
	if tradeType == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	var slippageBps uint64
	if v := q.Get("slippage_bps"); v != "" {
		slippageBps, err = strconv.ParseUint(v, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "slippage_bps must be a non-negative integer")
			return
		}
	}

	quote, err := h.pools.Quote(r.Context(), id, amount, tradeType, uint32(slippageBps))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to quote trade")
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// recordTradeRequest is the JSON body for indexing an executed swap.
type recordTradeRequest struct {
	Trader    string `json:"trader"`
	Type      string `json:"type"`
	Amount    uint64 `json:"amount"`
	Signature string `json:"signature"`
}

// RecordTrade indexes an executed on-chain swap.
// POST /api/pools/{id}/trades
func (h *PoolHandler) RecordTrade(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePoolID(w, r)
	if !ok {
		return
	}

	var req recordTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Trader == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "trader and signature are required")
		return
	}

	trade, err := h.pools.RecordTrade(r.Context(), id, req.Trader, domain.TradeType(req.Type), req.Amount, req.Signature)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to record trade")
		return
	}
	writeJSON(w, http.StatusCreated, trade)
}

// listTradesResponse wraps the trade history output.
type listTradesResponse struct {
	Trades []domain.Trade `json:"trades"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListTrades returns a pool's trade history.
// GET /api/pools/{id}/trades?limit=50&offset=0
func (h *PoolHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePoolID(w, r)
	if !ok {
		return
	}
	opts := parseListOpts(r)

	trades, err := h.pools.ListTrades(r.Context(), id, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{
		Trades: trades,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// resolvePoolRequest is the JSON body for pool resolution.
type resolvePoolRequest struct {
	Outcome string `json:"outcome"`
}

// ResolvePool marks a pool resolved with the winning outcome.
// POST /api/pools/{id}/resolve
func (h *PoolHandler) ResolvePool(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePoolID(w, r)
	if !ok {
		return
	}

	var req resolvePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.pools.Resolve(r.Context(), id, domain.Outcome(req.Outcome)); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to resolve pool")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "resolved",
		"pool_id": id.String(),
		"outcome": req.Outcome,
	})
}

// claimPoolRequest is the JSON body for claiming winnings.
type claimPoolRequest struct {
	Wallet string `json:"wallet"`
	TxHash string `json:"tx_hash"`
}

// ClaimPool records a winnings claim against a resolved pool.
// POST /api/pools/{id}/claim
func (h *PoolHandler) ClaimPool(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePoolID(w, r)
	if !ok {
		return
	}

	var req claimPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Wallet == "" || req.TxHash == "" {
		writeError(w, http.StatusBadRequest, "wallet and tx_hash are required")
		return
	}

	amount, err := h.pools.Claim(r.Context(), id, req.Wallet, req.TxHash)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to claim pool winnings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "claimed",
		"pool_id": id.String(),
		"wallet":  req.Wallet,
		"amount":  amount,
	})
}

// parsePoolID extracts and validates the {id} path parameter.
func parsePoolID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := pathParam(r, "id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing pool id")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pool id")
		return uuid.Nil, false
	}
	return id, true
}
