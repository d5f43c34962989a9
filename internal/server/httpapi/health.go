package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger reports whether the metadata store is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message,omitempty"`
}

func writeHealth(w http.ResponseWriter, status int, resp healthResponse) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleHealthLive answers 200 while the process is up.
func (h *Handler) handleHealthLive(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, http.StatusOK, healthResponse{Status: "ok"})
}

// handleHealthReady answers 200 when the database is reachable, 503 otherwise.
func (h *Handler) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeHealth(w, http.StatusServiceUnavailable, healthResponse{Status: "fail", Message: "database not configured"})
		return
	}
	if err := h.db.PingContext(r.Context()); err != nil {
		writeHealth(w, http.StatusServiceUnavailable, healthResponse{Status: "fail", Message: err.Error()})
		return
	}
	writeHealth(w, http.StatusOK, healthResponse{Status: "ok"})
}
