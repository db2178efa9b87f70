package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pumpsly/duelcore/internal/domain"
)

// EscrowService defines the methods that the escrow handler requires from the
// service layer.
type EscrowService interface {
	ListByDuel(ctx context.Context, duelID uuid.UUID) ([]domain.EscrowTransaction, error)
	ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.EscrowTransaction, error)
}

// StatsReader exposes player statistics lookups.
type StatsReader interface {
	Get(ctx context.Context, wallet string) (domain.DuelStats, error)
	TopByWins(ctx context.Context, limit int) ([]domain.DuelStats, error)
}

// EscrowHandler serves escrow ledger and player statistics endpoints.
type EscrowHandler struct {
	escrow EscrowService
	stats  StatsReader
	logger *slog.Logger
}

// NewEscrowHandler creates an EscrowHandler with the given services and logger.
func NewEscrowHandler(escrow EscrowService, stats StatsReader, logger *slog.Logger) *EscrowHandler {
	return &EscrowHandler{
		escrow: escrow,
		stats:  stats,
		logger: logger,
	}
}

// listEscrowResponse wraps the escrow ledger output.
type listEscrowResponse struct {
	Entries []domain.EscrowTransaction `json:"entries"`
}

// ListDuelEscrow returns a duel's escrow ledger entries, oldest first.
// GET /api/duels/{id}/escrow
func (h *EscrowHandler) ListDuelEscrow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDuelID(w, r)
	if !ok {
		return
	}

	entries, err := h.escrow.ListByDuel(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list escrow entries")
		return
	}
	if entries == nil {
		entries = []domain.EscrowTransaction{}
	}
	writeJSON(w, http.StatusOK, listEscrowResponse{Entries: entries})
}

// ListWalletEscrow returns a wallet's escrow history.
// GET /api/escrow?wallet=...&limit=50&offset=0
func (h *EscrowHandler) ListWalletEscrow(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter required")
		return
	}

	entries, err := h.escrow.ListByWallet(r.Context(), wallet, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list escrow entries")
		return
	}
	if entries == nil {
		entries = []domain.EscrowTransaction{}
	}
	writeJSON(w, http.StatusOK, listEscrowResponse{Entries: entries})
}

// GetStats returns a player's aggregate win/loss record.
// GET /api/stats/{wallet}
func (h *EscrowHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	wallet := pathParam(r, "wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "missing wallet")
		return
	}

	stats, err := h.stats.Get(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// leaderboardResponse wraps the leaderboard output.
type leaderboardResponse struct {
	Players []domain.DuelStats `json:"players"`
}

// Leaderboard returns the top players by win count.
// GET /api/leaderboard?limit=50
func (h *EscrowHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	players, err := h.stats.TopByWins(r.Context(), opts.Limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load leaderboard")
		return
	}
	if players == nil {
		players = []domain.DuelStats{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Players: players})
}
