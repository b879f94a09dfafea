package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jaylabs/cryptocasino/internal/domain"
)

// GameService is the slice of the service layer the game handler needs.
type GameService interface {
	GetGame(ctx context.Context, gameID uint64) (domain.Game, error)
	ListGames(ctx context.Context) ([]domain.Game, error)
	LatestGame(ctx context.Context) (domain.Game, error)
	JoinGame(ctx context.Context, gameID uint64, player string, guessPrice *big.Int, deleg *domain.Delegation) (domain.AuthorizationResult, error)
}

// GameHandler serves game state and the join endpoint.
type GameHandler struct {
	games     GameService
	limiter   domain.RateLimiter
	joinLimit int // joins per player per minute
	logger    *slog.Logger
}

// NewGameHandler creates a GameHandler. limiter may be nil to disable join
// rate limiting.
func NewGameHandler(games GameService, limiter domain.RateLimiter, joinLimit int, logger *slog.Logger) *GameHandler {
	return &GameHandler{
		games:     games,
		limiter:   limiter,
		joinLimit: joinLimit,
		logger:    logger,
	}
}

// ListGames returns every game on the ledger, newest first.
// GET /api/games
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.games.ListGames(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, err, "failed to list games")
		return
	}
	if games == nil {
		games = []domain.Game{}
	}
	writeJSON(w, http.StatusOK, games)
}

// GetGame returns one game with its bets.
// GET /api/games/{gameId}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := gameIDParam(r, "gameId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}

	game, err := h.games.GetGame(r.Context(), gameID)
	if err != nil {
		h.writeLedgerError(w, r, err, "failed to get game")
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// GetLatestGame returns the most recently created game.
// GET /api/games/latest
func (h *GameHandler) GetLatestGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.games.LatestGame(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no games yet")
			return
		}
		h.writeLedgerError(w, r, err, "failed to get latest game")
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// joinRequest is the POST body for the join endpoint. The guess price is a
// decimal string at 1e8 scale. The delegation is the player-signed
// authorization produced by the wallet; it is required when settlements
// redeem on a real ledger.
type joinRequest struct {
	Player     string          `json:"player"`
	GuessPrice string          `json:"guessPrice"`
	Delegation json.RawMessage `json:"delegation,omitempty"`
}

// JoinGame runs the authorization-plus-relay join flow for one player.
// POST /api/games/{gameId}/join
func (h *GameHandler) JoinGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := gameIDParam(r, "gameId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Player) {
		writeError(w, http.StatusBadRequest, "invalid player address")
		return
	}
	guess, ok := new(big.Int).SetString(req.GuessPrice, 10)
	if !ok || guess.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "invalid guess price")
		return
	}

	var deleg *domain.Delegation
	if len(req.Delegation) > 0 {
		d, err := domain.DecodeDelegation(string(req.Delegation))
		if err != nil {
			writeError(w, http.StatusBadRequest, "payload is not a valid delegation")
			return
		}
		if !d.Signed() {
			writeError(w, http.StatusBadRequest, "delegation is not signed")
			return
		}
		deleg = &d
	}

	if h.limiter != nil && h.joinLimit > 0 {
		allowed, err := h.limiter.Allow(r.Context(), "join:"+req.Player, h.joinLimit, time.Minute)
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: join rate limiter failed",
				slog.String("error", err.Error()),
			)
			// Fail open.
		} else if !allowed {
			w.Header().Set("Retry-After", "10")
			writeError(w, http.StatusTooManyRequests, domain.ErrRateLimited.Error())
			return
		}
	}

	result, err := h.games.JoinGame(r.Context(), gameID, req.Player, guess, deleg)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrGameNotJoinable):
			writeError(w, http.StatusConflict, "join window is closed")
		case errors.Is(err, domain.ErrDuplicatePlayer):
			writeError(w, http.StatusConflict, "player already joined this game")
		case errors.Is(err, domain.ErrInvalidDelegation):
			writeError(w, http.StatusBadRequest, "delegation rejected")
		default:
			h.writeLedgerError(w, r, err, "failed to join game")
		}
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// writeLedgerError maps ledger failures onto upstream-error status codes.
func (h *GameHandler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.logger.ErrorContext(r.Context(), "handler: "+msg,
		slog.String("error", err.Error()),
	)
	switch {
	case errors.Is(err, domain.ErrLedgerUnavailable):
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
	case errors.Is(err, domain.ErrMalformedLedgerResponse):
		writeError(w, http.StatusBadGateway, "malformed ledger response")
	default:
		writeError(w, http.StatusInternalServerError, msg)
	}
}
