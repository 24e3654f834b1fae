package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"calcium-cam/api/internal/config"
	"calcium-cam/api/internal/estimate"
)

type estimateReq struct {
	ImageBase64 string           `json:"image_base64"`
	ImageMime   string           `json:"image_mime"`
	Answers     estimate.Answers `json:"answers"`
	Locale      string           `json:"locale"`
	UIVersion   string           `json:"ui_version"`
}

type estimateResp struct {
	CalciumMg        int            `json:"calcium_mg"`
	Confidence       float64        `json:"confidence"`
	ConfidenceLabel  string         `json:"confidence_label"`
	ExplanationShort string         `json:"explanation_short"`
	Warnings         []string       `json:"warnings"`
	FollowUpQuestion *string        `json:"follow_up_question"`
	Debug            *estimateDebug `json:"debug,omitempty"`
}

type estimateDebug struct {
	Mode          string `json:"mode"`
	Model         string `json:"model"`
	PromptVersion string `json:"prompt_version"`
	LatencyMs     int64  `json:"latency_ms"`
}

// EstimateCalcium is the core endpoint: headers → gates → strict body
// validation → orchestrator → typed status mapping. All failures are
// rejected before any upstream work starts where possible.
func (h *Handle) EstimateCalcium(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	cfg := config.Resolve()

	requestID := strings.TrimSpace(r.Header.Get("x-request-id"))
	deviceID := strings.TrimSpace(r.Header.Get("x-device-install-id"))
	appVersion := strings.TrimSpace(r.Header.Get("x-app-version"))
	w.Header().Set("x-request-id", requestID)

	if deviceID == "" || requestID == "" || appVersion == "" {
		writeKind(w, requestID, estimate.KindInvalidRequest,
			"x-device-install-id, x-request-id and x-app-version headers are required")
		return
	}
	deviceHash := hashDeviceID(cfg.DeviceHashSalt, deviceID)

	if gerr := estimateGateError(cfg, deviceHash); gerr != nil {
		writeKind(w, requestID, gerr.Kind, gerr.Message)
		return
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var req estimateReq
	if err := dec.Decode(&req); err != nil {
		writeKind(w, requestID, estimate.KindInvalidRequest, "bad json: "+err.Error())
		return
	}
	if strings.TrimSpace(req.ImageBase64) == "" {
		writeKind(w, requestID, estimate.KindInvalidRequest, "image_base64 is required")
		return
	}
	if req.ImageMime != "image/jpeg" {
		writeKind(w, requestID, estimate.KindInvalidRequest, `image_mime must be "image/jpeg"`)
		return
	}
	if err := req.Answers.Validate(); err != nil {
		writeKind(w, requestID, estimate.KindInvalidRequest, err.Error())
		return
	}
	locale := strings.TrimSpace(req.Locale)
	if locale == "" {
		locale = "en"
	}

	// Missing required secret is a server misconfiguration, reported before
	// any upstream work is attempted.
	if !cfg.UseMock && !cfg.APIKeyPresent() {
		log.Printf("estimate: missing upstream api key request_id=%s device=%s", requestID, deviceHash)
		writeKind(w, requestID, estimate.KindServerNotConfigured, "upstream api key is not configured")
		return
	}

	out, err := h.Service.Estimate(r.Context(), estimate.Input{
		ImageBase64: req.ImageBase64,
		Answers:     req.Answers,
		Locale:      locale,
		RequestID:   requestID,
	}, cfg, h.Log)
	if err != nil {
		log.Printf("estimate failed request_id=%s device=%s kind=%s", requestID, deviceHash, estimate.KindOf(err))
		writeTyped(w, requestID, err)
		return
	}

	resp := estimateResp{
		CalciumMg:        out.Result.CalciumMg,
		Confidence:       out.Result.Confidence,
		ConfidenceLabel:  out.Result.ConfidenceLabel,
		ExplanationShort: out.Result.ExplanationShort,
		Warnings:         out.Result.Warnings,
		FollowUpQuestion: nil,
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	if debugRequested(cfg, r) {
		resp.Debug = &estimateDebug{
			Mode:          out.Mode,
			Model:         cfg.Model(),
			PromptVersion: cfg.PromptVersion,
			LatencyMs:     out.LatencyMs,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func debugRequested(cfg *config.Config, r *http.Request) bool {
	return !cfg.IsProduction() || r.Header.Get("x-debug") == "1"
}
