package server

import (
	"net/http"

	"github.com/SevenofThr4wn/HardwareStore/internal/services/directory"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Sync   string `json:"sync"`
}

// HandleHealth reports liveness and whether a sync is in flight.
// With sync disabled the state is always "idle".
func HandleHealth(sync SyncController) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		state := directory.StateIdle
		if sync != nil {
			state = sync.State()
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Sync: string(state)})
	}
}
