package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"calcium-cam/api/internal/config"
	"calcium-cam/api/internal/estimate"
)

// LocalizationLatest resolves the newest pack metadata for a supported
// locale.
func (h *Handle) LocalizationLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	cfg := config.Resolve()
	requestID := strings.TrimSpace(r.Header.Get("x-request-id"))
	w.Header().Set("x-request-id", requestID)

	if gerr := sharedGateError(cfg, ""); gerr != nil {
		writeKind(w, requestID, gerr.Kind, gerr.Message)
		return
	}

	locale := strings.TrimSpace(r.URL.Query().Get("locale"))
	info, err := h.Localization.Latest(r.Context(), locale)
	if err != nil {
		writeKind(w, requestID, estimate.KindInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type regenerateReq struct {
	UIVersion  string   `json:"ui_version"`
	BaseEnJSON string   `json:"base_en_json"`
	Locales    []string `json:"locales"`
}

type regenerateResp struct {
	UIVersion string   `json:"ui_version"`
	Generated []string `json:"generated"`
	Warnings  []string `json:"warnings"`
}

// LocalizationRegenerate rebuilds packs from an English base. Admin only;
// a key mismatch is reported as 400 unauthorized (historical mapping, kept).
func (h *Handle) LocalizationRegenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	cfg := config.Resolve()
	requestID := strings.TrimSpace(r.Header.Get("x-request-id"))
	w.Header().Set("x-request-id", requestID)

	if !adminKeyMatches(cfg, r.Header.Get("x-admin-key")) {
		writeKind(w, requestID, estimate.KindUnauthorized, "admin key mismatch")
		return
	}
	if gerr := sharedGateError(cfg, ""); gerr != nil {
		writeKind(w, requestID, gerr.Kind, gerr.Message)
		return
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var req regenerateReq
	if err := dec.Decode(&req); err != nil {
		writeKind(w, requestID, estimate.KindInvalidRequest, "bad json: "+err.Error())
		return
	}

	generated, warnings, err := h.Localization.Regenerate(r.Context(), req.UIVersion, req.BaseEnJSON, req.Locales)
	if err != nil {
		writeKind(w, requestID, estimate.KindInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, regenerateResp{
		UIVersion: req.UIVersion,
		Generated: generated,
		Warnings:  warnings,
	})
}
