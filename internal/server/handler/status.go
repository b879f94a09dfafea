package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports backend runtime metadata for the frontend.
type StatusHandler struct {
	Mode           string
	SettlementMode string
	Operator       string
	ChainID        int64
	StartedAt      time.Time
}

// GetStatus responds with the backend mode, settlement path, operator
// address, and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":            h.Mode,
		"settlement_mode": h.SettlementMode,
		"operator":        h.Operator,
		"chain_id":        h.ChainID,
		"uptime_seconds":  int64(time.Since(h.StartedAt).Seconds()),
	})
}
