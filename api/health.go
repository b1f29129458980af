package api

import (
	"net/http"
	"time"

	"github.com/malwarebo/reserva/resilience"
)

type HealthHandler struct {
	breakers *resilience.BreakerRegistry
}

func CreateHealthHandler(breakers *resilience.BreakerRegistry) *HealthHandler {
	return &HealthHandler{breakers: breakers}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	circuits := make(map[string]string)
	for name, state := range h.breakers.States() {
		circuits[name] = state.String()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"circuits":  circuits,
	})
}
