package httpapi

import (
	"net/http"
	"strings"

	"calcium-cam/api/internal/config"
)

type statusResp struct {
	EstimationEnabled bool   `json:"estimation_enabled"`
	LockoutActive     bool   `json:"lockout_active"`
	Message           string `json:"message"`
}

// Status is the cheap liveness probe the client hits before converting and
// uploading a photo.
func (h *Handle) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	cfg := config.Resolve()
	w.Header().Set("x-request-id", strings.TrimSpace(r.Header.Get("x-request-id")))

	msg := "ok"
	if !cfg.EstimationEnabled || cfg.LockoutActive {
		msg = "estimation temporarily unavailable"
	}
	writeJSON(w, http.StatusOK, statusResp{
		EstimationEnabled: cfg.EstimationEnabled,
		LockoutActive:     cfg.LockoutActive,
		Message:           msg,
	})
}
