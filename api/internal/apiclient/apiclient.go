package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"calcium-cam/api/internal/estimate"
)

// ErrorKind classifies a failed submission for the retry/cancel UI.
type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindTimeout   ErrorKind = "timeout"
	KindHTTP      ErrorKind = "http"
	KindCancelled ErrorKind = "cancelled"
	KindUnknown   ErrorKind = "unknown"
)

type Error struct {
	Kind       ErrorKind
	StatusCode int    // set for KindHTTP
	Code       string // server error code for KindHTTP
	Message    string
	TraceID    string
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d %s): %s", e.Kind, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether a manual retry is worth offering.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindHTTP:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// Client talks to the backend on behalf of one installed device.
type Client struct {
	BaseURL         string
	DeviceInstallID string
	AppVersion      string

	httpc *http.Client
}

func New(baseURL, deviceInstallID, appVersion string) *Client {
	return &Client{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		DeviceInstallID: deviceInstallID,
		AppVersion:      appVersion,
		httpc:           &http.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient overrides the internal HTTP client (tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpc = hc
	}
	return c
}

// NewTraceID mints the per-request correlation id echoed through server
// logs and responses.
func NewTraceID() string { return uuid.NewString() }

type StatusInfo struct {
	EstimationEnabled bool   `json:"estimation_enabled"`
	LockoutActive     bool   `json:"lockout_active"`
	Message           string `json:"message"`
}

// Status is the cheap liveness probe; the submit flow calls it before doing
// any base64 work.
func (c *Client) Status(ctx context.Context) (StatusInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/api/status", nil)
	if err != nil {
		return StatusInfo{}, &Error{Kind: KindUnknown, Message: err.Error(), Cause: err}
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return StatusInfo{}, classifyTransport(err, "")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return StatusInfo{}, httpError(resp, "")
	}
	var out StatusInfo
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return StatusInfo{}, &Error{Kind: KindUnknown, Message: "bad status body", Cause: err}
	}
	return out, nil
}

type EstimateRequest struct {
	ImageBase64 string           `json:"image_base64"`
	ImageMime   string           `json:"image_mime"`
	Answers     estimate.Answers `json:"answers"`
	Locale      string           `json:"locale"`
	UIVersion   string           `json:"ui_version"`
}

type EstimateResponse struct {
	CalciumMg        int      `json:"calcium_mg"`
	Confidence       float64  `json:"confidence"`
	ConfidenceLabel  string   `json:"confidence_label"`
	ExplanationShort string   `json:"explanation_short"`
	Warnings         []string `json:"warnings"`
}

// EstimateCalcium submits one capture. The returned trace id identifies the
// attempt in server logs even when the call fails.
func (c *Client) EstimateCalcium(ctx context.Context, in EstimateRequest) (EstimateResponse, string, error) {
	traceID := NewTraceID()

	payload, _ := json.Marshal(in)
	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/estimateCalcium", bytes.NewReader(payload))
	if err != nil {
		return EstimateResponse{}, traceID, &Error{Kind: KindUnknown, Message: err.Error(), TraceID: traceID, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-device-install-id", c.DeviceInstallID)
	req.Header.Set("x-request-id", traceID)
	req.Header.Set("x-app-version", c.AppVersion)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return EstimateResponse{}, traceID, classifyTransport(err, traceID)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return EstimateResponse{}, traceID, httpError(resp, traceID)
	}
	var out EstimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return EstimateResponse{}, traceID, &Error{Kind: KindUnknown, Message: "bad estimate body", TraceID: traceID, Cause: err}
	}
	return out, traceID, nil
}

func classifyTransport(err error, traceID string) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCancelled, Message: "request cancelled", TraceID: traceID, Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "request timed out", TraceID: traceID, Cause: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out", TraceID: traceID, Cause: err}
	}
	return &Error{Kind: KindNetwork, Message: "can't reach server", TraceID: traceID, Cause: err}
}

func httpError(resp *http.Response, traceID string) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	e := &Error{Kind: KindHTTP, StatusCode: resp.StatusCode, TraceID: traceID}
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		e.Code = apiErr.Error
		e.Message = apiErr.Message
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}
