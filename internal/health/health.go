// Package health serves the liveness and readiness endpoints shared by the
// service binaries.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Probe checks one dependency; nil means healthy.
type Probe func(ctx context.Context) error

// Handler reports process liveness and per-dependency readiness.
type Handler struct {
	probes map[string]Probe
}

func NewHandler() *Handler {
	return &Handler{probes: make(map[string]Probe)}
}

// AddProbe registers a named dependency check.
func (h *Handler) AddProbe(name string, p Probe) {
	h.probes[name] = p
}

// Live always answers ok while the process can serve HTTP.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready runs every probe with a short deadline and reports per-dependency
// state; any failure turns the response 503.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.probes))
	status := http.StatusOK
	for name, probe := range h.probes {
		if err := probe(ctx); err != nil {
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "dependencies": deps})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
