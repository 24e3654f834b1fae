package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"calcium-cam/api/internal/estimate"
	"calcium-cam/api/internal/util"
)

// Engine is the alternate upstream provider, selected with
// ESTIMATE_PROVIDER=gemini.
type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) Name() string { return estimate.ModeGemini }

func (e *Engine) Invoke(ctx context.Context, in estimate.Invocation) (estimate.Result, string, error) {
	if strings.TrimSpace(in.APIKey) == "" {
		return estimate.Result{}, "", estimate.NewError(estimate.KindUpstreamUnavailable, "GEMINI_API_KEY is empty")
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(in.APIKey))
	if err != nil {
		return estimate.Result{}, "", estimate.WrapError(estimate.KindUpstreamUnavailable, "gemini client", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(strings.TrimSpace(in.Model))
	if m == nil {
		return estimate.Result{}, "", estimate.NewError(estimate.KindUpstreamUnavailable, "gemini: model is nil")
	}
	// JSON only
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}

	imgBytes, mimeFromDataURL, err := util.DecodeBase64MaybeDataURL(in.ImageBase64)
	if err != nil || len(imgBytes) == 0 {
		return estimate.Result{}, "", estimate.NewError(estimate.KindInvalidRequest, "invalid image base64")
	}
	mime := util.PickMIME("", mimeFromDataURL, imgBytes)

	parts := []genai.Part{
		genai.Text(in.Prompt),
		&genai.Blob{MIMEType: mime, Data: imgBytes},
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return estimate.Result{}, "", estimate.WrapError(estimate.KindUpstreamTimeout, "gemini call timed out", err)
		}
		return estimate.Result{}, "", estimate.WrapError(estimate.KindUpstreamUnavailable, "gemini call failed", err)
	}

	txt := firstText(resp)
	if strings.TrimSpace(txt) == "" {
		return estimate.Result{}, "", estimate.NewError(estimate.KindModelInvalidResponse, "gemini: empty response")
	}
	txt = util.StripCodeFences(strings.TrimSpace(txt))

	res, err := estimate.ParseResult(txt)
	if err != nil {
		return estimate.Result{}, txt, fmt.Errorf("gemini: %w", err)
	}
	return res, txt, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
