package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// SettlementService is the slice of the service layer the settlement handler
// needs.
type SettlementService interface {
	Settle(ctx context.Context, gameID uint64) (domain.Settlement, error)
	GetSettlement(ctx context.Context, gameID uint64) (domain.Settlement, error)
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error)
}

// SettlementHandler serves the settlement trigger and lookup endpoints.
type SettlementHandler struct {
	settlements SettlementService
	logger      *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settlements SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{settlements: settlements, logger: logger}
}

// Settle runs the claim for one resolved game.
// POST /api/games/{gameId}/settle
func (h *SettlementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	gameID, ok := gameIDParam(r, "gameId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}

	st, err := h.settlements.Settle(r.Context(), gameID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "settlement already in progress")
		case errors.Is(err, domain.ErrSettlementNotReady):
			writeError(w, http.StatusConflict, "game is not ready to settle")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "game not found")
		case errors.Is(err, domain.ErrSettlementFailed):
			h.logError(r, gameID, err)
			writeError(w, http.StatusBadGateway, "settlement transaction failed")
		case errors.Is(err, domain.ErrLedgerUnavailable):
			writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		default:
			h.logError(r, gameID, err)
			writeError(w, http.StatusInternalServerError, "failed to settle game")
		}
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// GetSettlement returns the persisted settlement for a game.
// GET /api/games/{gameId}/settlement
func (h *SettlementHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	gameID, ok := gameIDParam(r, "gameId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}

	st, err := h.settlements.GetSettlement(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "game has not been settled")
			return
		}
		h.logError(r, gameID, err)
		writeError(w, http.StatusInternalServerError, "failed to get settlement")
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// ListSettlements returns the most recent settlements.
// GET /api/settlements
func (h *SettlementHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.settlements.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list settlements failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list settlements")
		return
	}
	if settlements == nil {
		settlements = []domain.Settlement{}
	}

	writeJSON(w, http.StatusOK, settlements)
}

func (h *SettlementHandler) logError(r *http.Request, gameID uint64, err error) {
	h.logger.ErrorContext(r.Context(), "handler: settlement request failed",
		slog.Uint64("game_id", gameID),
		slog.String("error", err.Error()),
	)
}
