package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"calcium-cam/api/internal/config"
	"calcium-cam/api/internal/estimate"
	"calcium-cam/api/internal/store"
)

const suggestionMessageCap = 500

type suggestionReq struct {
	Category           string         `json:"category"`
	Message            string         `json:"message"`
	IncludeDiagnostics bool           `json:"include_diagnostics"`
	Diagnostics        map[string]any `json:"diagnostics,omitempty"`
}

// Suggestion accepts user feedback. Acceptance never depends on storage:
// without a database the payload is logged (sans diagnostics) and dropped.
func (h *Handle) Suggestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	cfg := config.Resolve()
	requestID := strings.TrimSpace(r.Header.Get("x-request-id"))
	w.Header().Set("x-request-id", requestID)

	if gerr := sharedGateError(cfg, ""); gerr != nil {
		writeKind(w, requestID, gerr.Kind, gerr.Message)
		return
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var req suggestionReq
	if err := dec.Decode(&req); err != nil {
		writeKind(w, requestID, estimate.KindInvalidRequest, "bad json: "+err.Error())
		return
	}
	switch req.Category {
	case "bug", "feature", "confusing":
	default:
		writeKind(w, requestID, estimate.KindInvalidRequest, "category must be bug|feature|confusing")
		return
	}
	if strings.TrimSpace(req.Message) == "" || len(req.Message) > suggestionMessageCap {
		writeKind(w, requestID, estimate.KindInvalidRequest, "message must be 1..500 chars")
		return
	}

	var deviceHash string
	if id := strings.TrimSpace(r.Header.Get("x-device-install-id")); id != "" {
		deviceHash = hashDeviceID(cfg.DeviceHashSalt, id)
	}

	if h.Suggestions != nil {
		err := h.Suggestions.Insert(r.Context(), store.Suggestion{
			Category:           req.Category,
			Message:            req.Message,
			IncludeDiagnostics: req.IncludeDiagnostics,
			Diagnostics:        req.Diagnostics,
			DeviceHash:         deviceHash,
			RequestID:          requestID,
		})
		if err != nil {
			// Feedback loss is not worth a user-facing failure.
			log.Printf("suggestion insert failed request_id=%s: %v", requestID, err)
		}
	} else {
		log.Printf("suggestion (unpersisted) request_id=%s category=%s device=%s", requestID, req.Category, deviceHash)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
