package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"calcium-cam/api/internal/estimate"
	"calcium-cam/api/internal/localization"
	"calcium-cam/api/internal/store"
	"calcium-cam/api/internal/util"
)

// Handle owns the /api routes. It keeps no per-request state; config is
// resolved fresh inside every handler.
type Handle struct {
	Service      *estimate.Service
	Suggestions  *store.SuggestionRepo
	Localization *localization.Service
	Log          estimate.EventLogger
}

func New(svc *estimate.Service, sugg *store.SuggestionRepo, loc *localization.Service) *Handle {
	return &Handle{Service: svc, Suggestions: sugg, Localization: loc}
}

func (h *Handle) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", h.Status)
	mux.HandleFunc("/api/diagnostics/env", h.DiagnosticsEnv)
	mux.HandleFunc("/api/estimateCalcium", h.EstimateCalcium)
	mux.HandleFunc("/api/localization/latest", h.LocalizationLatest)
	mux.HandleFunc("/api/localization/regenerate", h.LocalizationRegenerate)
	mux.HandleFunc("/api/suggestion", h.Suggestion)
}

type apiError struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RequestID         string `json:"request_id,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps error kinds, never message text, to HTTP statuses.
func statusFor(kind estimate.Kind) int {
	switch kind {
	case estimate.KindInvalidRequest, estimate.KindUnauthorized:
		return http.StatusBadRequest
	case estimate.KindRateLimited:
		return http.StatusTooManyRequests
	case estimate.KindTemporarilyDisabled:
		return http.StatusServiceUnavailable
	case estimate.KindServerNotConfigured:
		return http.StatusInternalServerError
	case estimate.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case estimate.KindUpstreamUnavailable, estimate.KindModelInvalidResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeKind(w http.ResponseWriter, requestID string, kind estimate.Kind, msg string) {
	body := apiError{Error: string(kind), Message: msg, RequestID: requestID}
	if kind == estimate.KindRateLimited {
		body.RetryAfterSeconds = rateLimitRetryAfterSeconds
	}
	writeJSON(w, statusFor(kind), body)
}

func writeTyped(w http.ResponseWriter, requestID string, err error) {
	kind := estimate.KindOf(err)
	if kind == "" {
		kind = estimate.KindUpstreamUnavailable
	}
	msg := "internal error"
	var typed *estimate.Error
	if errors.As(err, &typed) {
		msg = typed.Message
	}
	writeKind(w, requestID, kind, msg)
}

// hashDeviceID one-way hashes a device install id with the configured salt.
// Raw install ids never appear in logs or responses.
func hashDeviceID(salt, id string) string {
	return util.SHA256Hex([]byte(salt + ":" + id))[:16]
}
