package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"calcium-cam/api/internal/config"
)

// DiagnosticsEnv reports recognized variables, required-ness and derived
// config. The raw (redacted) value snapshot is included only when the caller
// presents the admin key; otherwise the field is omitted entirely.
func (h *Handle) DiagnosticsEnv(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	cfg := config.Resolve()
	w.Header().Set("x-request-id", strings.TrimSpace(r.Header.Get("x-request-id")))

	rep := config.Report(cfg)
	if !adminKeyMatches(cfg, r.Header.Get("x-admin-key")) {
		rep.Snapshot = nil
	}
	writeJSON(w, http.StatusOK, rep)
}

func adminKeyMatches(cfg *config.Config, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(cfg.AdminKey)) == 1
}
