package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pumpsly/duelcore/internal/domain"
)

// DuelService defines the methods that the duel handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type DuelService interface {
	Create(ctx context.Context, player1 string, betAmount uint64, currency int16, direction domain.Direction, signature string) (domain.Duel, error)
	Join(ctx context.Context, id uuid.UUID, player2 string, amount uint64, signature string) (domain.Duel, error)
	SubmitDeposit(ctx context.Context, id uuid.UUID, wallet, txHash string) error
	Resolve(ctx context.Context, id uuid.UUID) (domain.Duel, error)
	Claim(ctx context.Context, id uuid.UUID, wallet string) (domain.Duel, error)
	Cancel(ctx context.Context, id uuid.UUID, wallet string) error
	Get(ctx context.Context, id uuid.UUID) (domain.Duel, error)
	ListByStatus(ctx context.Context, status domain.DuelStatus, opts domain.ListOpts) ([]domain.Duel, error)
	ListByPlayer(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Duel, error)
}

// DuelHandler serves duel lifecycle HTTP endpoints.
type DuelHandler struct {
	duels  DuelService
	logger *slog.Logger
}

// NewDuelHandler creates a DuelHandler with the given service and logger.
func NewDuelHandler(duels DuelService, logger *slog.Logger) *DuelHandler {
	return &DuelHandler{
		duels:  duels,
		logger: logger,
	}
}

// listDuelsResponse wraps the list endpoint output with pagination metadata.
type listDuelsResponse struct {
	Duels  []domain.Duel `json:"duels"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListDuels returns duels filtered by status or wallet.
// GET /api/duels?status=PENDING&wallet=...&limit=50&offset=0
func (h *DuelHandler) ListDuels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	wallet := q.Get("wallet")
	opts := parseListOpts(r)

	var (
		duels []domain.Duel
		err   error
	)
	switch {
	case wallet != "":
		duels, err = h.duels.ListByPlayer(r.Context(), wallet, opts)
	case status != "":
		duels, err = h.duels.ListByStatus(r.Context(), domain.DuelStatus(status), opts)
	default:
		duels, err = h.duels.ListByStatus(r.Context(), domain.DuelStatusPending, opts)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list duels")
		return
	}

	if duels == nil {
		duels = []domain.Duel{}
	}
	writeJSON(w, http.StatusOK, listDuelsResponse{
		Duels:  duels,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetDuel returns a single duel by its ID.
// GET /api/duels/{id}
func (h *DuelHandler) GetDuel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDuelID(w, r)
	if !ok {
		return
	}

	duel, err := h.duels.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get duel")
		return
	}
	writeJSON(w, http.StatusOK, duel)
}

// createDuelRequest is the JSON body for duel creation. TxHash is the
// creator's already-signed deposit transaction.
type createDuelRequest struct {
	Wallet    string `json:"wallet"`
	BetAmount uint64 `json:"bet_amount"`
	Currency  int16  `json:"currency"`
	Direction int16  `json:"direction"`
	TxHash    string `json:"tx_hash"`
}

// CreateDuel opens a new duel. The deposit transaction is verified before
// anything is persisted.
// POST /api/duels
func (h *DuelHandler) CreateDuel(w http.ResponseWriter, r *http.Request) {
	var req createDuelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Wallet == "" || req.TxHash == "" {
		writeError(w, http.StatusBadRequest, "wallet and tx_hash are required")
		return
	}

	duel, err := h.duels.Create(r.Context(), req.Wallet, req.BetAmount, req.Currency, domain.Direction(req.Direction), req.TxHash)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create duel")
		return
	}
	writeJSON(w, http.StatusCreated, duel)
}

// joinDuelRequest is the JSON body for joining a duel. TxHash is the
// challenger's already-signed deposit transaction.
type joinDuelRequest struct {
	Wallet string `json:"wallet"`
	Amount uint64 `json:"amount"`
	TxHash string `json:"tx_hash"`
}

// JoinDuel fills the open slot of a pending duel once the challenger's
// deposit verifies.
// POST /api/duels/{id}/join
func (h *DuelHandler) JoinDuel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDuelID(w, r)
	if !ok {
		return
	}

	var req joinDuelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Wallet == "" || req.TxHash == "" {
		writeError(w, http.StatusBadRequest, "wallet and tx_hash are required")
		return
	}

	duel, err := h.duels.Join(r.Context(), id, req.Wallet, req.Amount, req.TxHash)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to join duel")
		return
	}
	writeJSON(w, http.StatusOK, duel)
}

// depositRequest is the JSON body for submitting a deposit transaction.
type depositRequest struct {
	Wallet string `json:"wallet"`
	TxHash string `json:"tx_hash"`
}

// SubmitDeposit registers a player's deposit transaction for verification.
// POST /api/duels/{id}/deposit
func (h *DuelHandler) SubmitDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDuelID(w, r)
	if !ok {
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Wallet == "" || req.TxHash == "" {
		writeError(w, http.StatusBadRequest, "wallet and tx_hash are required")
		return
	}

	if err := h.duels.SubmitDeposit(r.Context(), id, req.Wallet, req.TxHash); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to submit deposit")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"tx_hash": req.TxHash,
	})
}

// ResolveDuel settles an active duel at the current price.
// POST /api/duels/{id}/resolve
func (h *DuelHandler) ResolveDuel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDuelID(w, r)
	if !ok {
		return
	}

	duel, err := h.duels.Resolve(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to resolve duel")
		return
	}
	writeJSON(w, http.StatusOK, duel)
}

// claimRequest is the JSON body for claiming a finished duel.
type claimRequest struct {
	Wallet string `json:"wallet"`
}

// ClaimDuel settles a finished duel on behalf of a participant.
// POST /api/duels/{id}/claim
func (h *DuelHandler) ClaimDuel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDuelID(w, r)
	if !ok {
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet is required")
		return
	}

	duel, err := h.duels.Claim(r.Context(), id, req.Wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to claim duel")
		return
	}
	writeJSON(w, http.StatusOK, duel)
}

// cancelRequest is the JSON body for cancelling a pending duel.
type cancelRequest struct {
	Wallet string `json:"wallet"`
}

// CancelDuel withdraws a pending duel before a challenger joins.
// POST /api/duels/{id}/cancel
func (h *DuelHandler) CancelDuel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDuelID(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet is required")
		return
	}

	if err := h.duels.Cancel(r.Context(), id, req.Wallet); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to cancel duel")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "cancelled",
		"duel_id": id.String(),
	})
}

// parseDuelID extracts and validates the {id} path parameter.
func parseDuelID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := pathParam(r, "id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing duel id")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid duel id")
		return uuid.Nil, false
	}
	return id, true
}
