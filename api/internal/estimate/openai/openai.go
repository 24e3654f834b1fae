package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"calcium-cam/api/internal/estimate"
	"calcium-cam/api/internal/util"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Engine struct {
	httpc *http.Client
}

func New() *Engine {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second, // TCP connect
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}
	// Client Timeout stays 0; per-call deadlines come from the context.
	return &Engine{httpc: &http.Client{Timeout: 0, Transport: tr}}
}

// WithHTTPClient overrides the internal HTTP client (tests, tracing).
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string { return estimate.ModeOpenAI }

// Invoke performs a single non-streaming Responses API call carrying the
// prompt and the photo as separate content parts, then validates the text
// the model returned. The context deadline is the only timeout; hitting it
// surfaces as KindUpstreamTimeout, not a generic transport failure.
func (e *Engine) Invoke(ctx context.Context, in estimate.Invocation) (estimate.Result, string, error) {
	if strings.TrimSpace(in.APIKey) == "" {
		return estimate.Result{}, "", estimate.NewError(estimate.KindUpstreamUnavailable, "OPENAI_API_KEY is empty")
	}

	// accept raw base64 or data: URL
	imgBytes, mimeFromDataURL, err := util.DecodeBase64MaybeDataURL(in.ImageBase64)
	if err != nil || len(imgBytes) == 0 {
		return estimate.Result{}, "", estimate.NewError(estimate.KindInvalidRequest, "invalid image base64")
	}
	mime := util.PickMIME("", mimeFromDataURL, imgBytes)
	if !util.IsSupportedImageMIME(mime) {
		return estimate.Result{}, "", estimate.NewError(estimate.KindInvalidRequest,
			fmt.Sprintf("unsupported MIME %s (need image/jpeg|png|webp)", mime))
	}
	dataURL := util.MakeDataURL(mime, base64.StdEncoding.EncodeToString(imgBytes))

	body := map[string]any{
		"model": in.Model,
		"input": []any{
			map[string]any{
				"type": "message",
				"role": "user",
				"content": []any{
					map[string]any{"type": "input_text", "text": in.Prompt},
					map[string]any{"type": "input_image", "image_url": dataURL},
				},
			},
		},
		"temperature": 0,
		"stream":      false,
		"text": map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   "calcium_estimate",
				"strict": true,
				"schema": estimate.ResultSchema(),
			},
		},
	}
	if strings.Contains(in.Model, "gpt-5") {
		body["temperature"] = 1
	}

	base := strings.TrimRight(in.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}

	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, "POST", base+"/responses", bytes.NewReader(payload))
	if err != nil {
		return estimate.Result{}, "", estimate.WrapError(estimate.KindUpstreamUnavailable, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+in.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return estimate.Result{}, "", estimate.WrapError(estimate.KindUpstreamTimeout, "openai call timed out", err)
		}
		return estimate.Result{}, "", estimate.WrapError(estimate.KindUpstreamUnavailable, "openai call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return estimate.Result{}, "", estimate.NewError(estimate.KindUpstreamUnavailable,
			fmt.Sprintf("openai %d: %s", resp.StatusCode, strings.TrimSpace(string(x))))
	}
	// The pipeline only accepts complete payloads.
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "text/event-stream") {
		return estimate.Result{}, "", estimate.NewError(estimate.KindModelInvalidResponse, "streaming response not supported")
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return estimate.Result{}, "", estimate.WrapError(estimate.KindUpstreamTimeout, "openai read timed out", err)
		}
		return estimate.Result{}, "", estimate.WrapError(estimate.KindUpstreamUnavailable, "openai read failed", err)
	}

	out := extractResponsesText(raw)
	out = util.StripCodeFences(strings.TrimSpace(out))
	if out == "" {
		return estimate.Result{}, "", estimate.NewError(estimate.KindModelInvalidResponse,
			"responses: no extractable text; body="+truncateBytes(raw, 512))
	}

	res, err := estimate.ParseResult(out)
	if err != nil {
		return estimate.Result{}, out, err
	}
	return res, out, nil
}

// extractResponsesText pulls model text out of the Responses API envelope.
// It prefers the convenience `output_text` field and otherwise concatenates
// text segments from `output[i].content[j].text`.
func extractResponsesText(raw []byte) string {
	type content struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	type output struct {
		Content []content `json:"content"`
		Role    string    `json:"role,omitempty"`
	}
	var env struct {
		Object     string   `json:"object"`
		Status     string   `json:"status"`
		Output     []output `json:"output"`
		OutputText string   `json:"output_text"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}

	if s := strings.TrimSpace(env.OutputText); s != "" {
		return s
	}

	var b strings.Builder
	for _, o := range env.Output {
		for _, c := range o.Content {
			if strings.TrimSpace(c.Text) == "" {
				continue
			}
			// Both `output_text` and `text` are seen in practice
			if c.Type == "output_text" || c.Type == "text" || c.Type == "" {
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
				b.WriteString(c.Text)
			}
		}
	}
	return b.String()
}

func truncateBytes(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
