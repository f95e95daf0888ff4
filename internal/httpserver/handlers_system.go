package httpserver

import (
	"net/http"
	"time"

	"github.com/MesaPay/hub/pkg/responders"
)

var serverStartTime = time.Now()

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(serverStartTime).Seconds()),
	})
}

func (h *handlers) getStats(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, h.hub.GetStats(r.Context()))
}
