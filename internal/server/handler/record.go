package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// RecordHandler serves the delegation-record CRUD endpoints the frontend uses
// to persist signed authorizations between sessions.
type RecordHandler struct {
	records domain.DelegationStore
	logger  *slog.Logger
}

// NewRecordHandler creates a RecordHandler backed by the given store.
func NewRecordHandler(records domain.DelegationStore, logger *slog.Logger) *RecordHandler {
	return &RecordHandler{records: records, logger: logger}
}

// createRecordRequest is the POST body: the game id plus the serialized
// delegation payload.
type createRecordRequest struct {
	GameID  uint64 `json:"gameId"`
	Payload string `json:"text"`
}

// CreateRecord stores a signed delegation payload for a game. The payload
// must decode as a delegation; the delegator address identifies the player.
// POST /api/records
func (h *RecordHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Payload == "" {
		writeError(w, http.StatusBadRequest, "missing delegation payload")
		return
	}

	deleg, err := domain.DecodeDelegation(req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "payload is not a valid delegation")
		return
	}
	if !deleg.Signed() {
		writeError(w, http.StatusBadRequest, "delegation is not signed")
		return
	}

	rec, err := h.records.Create(r.Context(), domain.DelegationRecord{
		GameID:  req.GameID,
		Player:  deleg.Delegator,
		Payload: req.Payload,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "record already exists for this game and player")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create record failed",
			slog.Uint64("game_id", req.GameID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create record")
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// ListByGame returns all records for a game, newest first.
// GET /api/records/game/{gameId}
func (h *RecordHandler) ListByGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := gameIDParam(r, "gameId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}

	records, err := h.records.ListByGame(r.Context(), gameID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list records failed",
			slog.Uint64("game_id", gameID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if records == nil {
		records = []domain.DelegationRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// DeleteByGame removes every record for a game and reports the count.
// DELETE /api/records/game/{gameId}
func (h *RecordHandler) DeleteByGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := gameIDParam(r, "gameId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}

	deleted, err := h.records.DeleteByGame(r.Context(), gameID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: delete records failed",
			slog.Uint64("game_id", gameID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// DeleteByID removes one record.
// DELETE /api/records/id/{id}
func (h *RecordHandler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing record id")
		return
	}

	if err := h.records.DeleteByID(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: delete record failed",
			slog.String("record_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete record")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
