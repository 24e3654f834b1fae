package estimate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"calcium-cam/api/internal/config"
)

// EventLogger receives one structured lifecycle event per call. The
// orchestrator depends only on this callback, never on a concrete sink;
// tests substitute a capturing logger.
type EventLogger func(event string, fields map[string]any)

// LogEvent is the default sink.
func LogEvent(event string, fields map[string]any) {
	b, _ := json.Marshal(fields)
	log.Printf("%s %s", event, b)
}

// Invocation carries everything an upstream engine needs for one call.
type Invocation struct {
	ImageBase64 string
	Prompt      string
	Model       string
	APIKey      string
	BaseURL     string
	RequestID   string
}

// Engine is one upstream provider. Invoke returns the validated result plus
// the raw model text it was parsed from. No retries inside.
type Engine interface {
	Name() string
	Invoke(ctx context.Context, in Invocation) (Result, string, error)
}

// Service orchestrates one estimation: mode selection, prompt build,
// upstream call under deadline, typed failure mapping. Stateless and
// reentrant; config arrives per call.
type Service struct {
	OpenAI Engine
	Gemini Engine
}

func NewService(openAI, gemini Engine) *Service {
	return &Service{OpenAI: openAI, Gemini: gemini}
}

func (s *Service) engine(provider string) Engine {
	switch provider {
	case "gemini":
		return s.Gemini
	default:
		return s.OpenAI
	}
}

// Estimate runs the request state machine: mock short-circuit, missing-key
// guard, then a single upstream call. Emits exactly one event per phase
// (start, upstream completion, done) regardless of outcome.
func (s *Service) Estimate(ctx context.Context, in Input, cfg *config.Config, logf EventLogger) (out Outcome, err error) {
	if logf == nil {
		logf = LogEvent
	}
	started := time.Now()

	logf("estimate.start", map[string]any{
		"request_id":    in.RequestID,
		"locale":        in.Locale,
		"image_b64_len": len(in.ImageBase64),
		"answers":       in.Answers,
		"mode":          modeFor(cfg),
	})
	defer func() {
		done := map[string]any{
			"request_id": in.RequestID,
			"mode":       out.Mode,
			"latency_ms": out.LatencyMs,
			"total_ms":   time.Since(started).Milliseconds(),
			"ok":         err == nil,
		}
		if err != nil {
			done["mode"] = modeFor(cfg)
			done["error_kind"] = string(KindOf(err))
			done["error"] = err.Error()
		} else {
			done["calcium_mg"] = out.Result.CalciumMg
		}
		logf("estimate.done", done)
	}()

	if cfg.UseMock {
		out = Outcome{Result: MockResult(), LatencyMs: 0, Mode: ModeMock}
		return out, nil
	}

	if !cfg.APIKeyPresent() {
		err = NewError(KindUpstreamUnavailable, "upstream api key is not configured")
		return out, err
	}
	eng := s.engine(cfg.Provider)
	if eng == nil {
		err = NewError(KindUpstreamUnavailable, fmt.Sprintf("provider %q is not wired", cfg.Provider))
		return out, err
	}

	prompt := BuildPrompt(in.Answers, in.Locale, cfg.PromptOverride)

	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	var (
		res     Result
		rawText string
		callErr error
	)
	callStart := time.Now()
	func() {
		defer func() {
			logf("estimate.upstream", map[string]any{
				"request_id": in.RequestID,
				"provider":   eng.Name(),
				"model":      cfg.Model(),
				"latency_ms": time.Since(callStart).Milliseconds(),
				"ok":         callErr == nil,
			})
		}()
		res, rawText, callErr = eng.Invoke(cctx, Invocation{
			ImageBase64: in.ImageBase64,
			Prompt:      prompt,
			Model:       cfg.Model(),
			APIKey:      cfg.APIKey(),
			BaseURL:     cfg.OpenAIBaseURL,
			RequestID:   in.RequestID,
		})
	}()
	latency := time.Since(callStart).Milliseconds()

	if callErr != nil {
		var typed *Error
		switch {
		case errors.As(callErr, &typed):
			err = typed
		case errors.Is(callErr, context.DeadlineExceeded):
			err = WrapError(KindUpstreamTimeout,
				fmt.Sprintf("upstream call exceeded %dms", cfg.TimeoutMs), callErr)
		default:
			err = WrapError(KindUpstreamUnavailable, "upstream call failed", callErr)
		}
		return out, err
	}

	out = Outcome{Result: res, RawText: rawText, LatencyMs: latency, Mode: eng.Name()}
	return out, nil
}

func modeFor(cfg *config.Config) string {
	if cfg.UseMock {
		return ModeMock
	}
	return cfg.Provider
}
