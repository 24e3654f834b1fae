package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calcium-cam/api/internal/estimate"
	"calcium-cam/api/internal/localization"
)

type fakeEngine struct {
	name string
	res  estimate.Result
	err  error

	mu    sync.Mutex
	calls int
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Invoke(ctx context.Context, in estimate.Invocation) (estimate.Result, string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return estimate.Result{}, "", f.err
	}
	return f.res, "raw", nil
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var allEnvVars = []string{
	"APP_ENV", "PORT", "ESTIMATE_PROVIDER", "USE_MOCK_ESTIMATE",
	"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
	"GEMINI_API_KEY", "GEMINI_MODEL",
	"ESTIMATE_TIMEOUT_MS", "PROMPT_VERSION", "PROMPT_OVERRIDE",
	"ESTIMATION_ENABLED", "LOCKOUT_ACTIVE", "RATE_LIMIT_ENABLED", "COST_CIRCUIT_ENABLED",
	"ADMIN_KEY", "DEVICE_HASH_SALT", "LOCALIZATION_BASE_URL", "DATABASE_URL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range allEnvVars {
		t.Setenv(v, "")
	}
}

func newTestHandle(oai *fakeEngine) (*Handle, *http.ServeMux) {
	if oai == nil {
		oai = &fakeEngine{name: estimate.ModeOpenAI}
	}
	svc := estimate.NewService(oai, &fakeEngine{name: estimate.ModeGemini})
	h := New(svc, nil, &localization.Service{})
	mux := http.NewServeMux()
	h.Register(mux)
	return h, mux
}

func validBody() string {
	b, _ := json.Marshal(map[string]any{
		"image_base64": "aGVsbG8gd29ybGQ=",
		"image_mime":   "image/jpeg",
		"answers": map[string]string{
			"portion_size":                      "medium",
			"contains_dairy":                    "yes",
			"contains_tofu_or_small_fish_bones": "no",
		},
		"locale":     "en",
		"ui_version": "test",
	})
	return string(b)
}

func estimateRequest(body string) *http.Request {
	r := httptest.NewRequest("POST", "/api/estimateCalcium", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("x-device-install-id", "device-abc")
	r.Header.Set("x-request-id", "trace-123")
	r.Header.Set("x-app-version", "1.0")
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apiError {
	t.Helper()
	var e apiError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestEstimateMockHappyPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("USE_MOCK_ESTIMATE", "true")

	oai := &fakeEngine{name: estimate.ModeOpenAI}
	_, mux := newTestHandle(oai)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, estimateRequest(validBody()))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "trace-123", w.Header().Get("x-request-id"))
	assert.Zero(t, oai.callCount())

	var resp struct {
		CalciumMg        int             `json:"calcium_mg"`
		Confidence       float64         `json:"confidence"`
		ConfidenceLabel  string          `json:"confidence_label"`
		Warnings         []string        `json:"warnings"`
		FollowUpQuestion json.RawMessage `json:"follow_up_question"`
		Debug            *estimateDebug  `json:"debug"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 300, resp.CalciumMg)
	assert.InDelta(t, 0.6, resp.Confidence, 1e-9)
	assert.Equal(t, "medium", resp.ConfidenceLabel)
	assert.NotNil(t, resp.Warnings)
	assert.Empty(t, resp.Warnings)
	assert.Equal(t, "null", string(resp.FollowUpQuestion))

	// development env includes the debug block without x-debug
	require.NotNil(t, resp.Debug)
	assert.Equal(t, "mock", resp.Debug.Mode)
	assert.Equal(t, "v1", resp.Debug.PromptVersion)
}

func TestEstimateDebugHiddenInProduction(t *testing.T) {
	clearEnv(t)
	t.Setenv("USE_MOCK_ESTIMATE", "true")
	t.Setenv("APP_ENV", "production")

	_, mux := newTestHandle(nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, estimateRequest(validBody()))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"debug"`)

	// opt back in per request
	r := estimateRequest(validBody())
	r.Header.Set("x-debug", "1")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"debug"`)
}

func TestEstimateMissingHeaders(t *testing.T) {
	clearEnv(t)
	t.Setenv("USE_MOCK_ESTIMATE", "true")
	_, mux := newTestHandle(nil)

	for _, missing := range []string{"x-device-install-id", "x-request-id", "x-app-version"} {
		r := estimateRequest(validBody())
		r.Header.Del(missing)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code, "missing %s", missing)
		e := decodeError(t, w)
		assert.Equal(t, "invalid_request", e.Error, "missing %s", missing)
	}
}

func TestEstimateMissingKeyIsServerNotConfigured(t *testing.T) {
	clearEnv(t)

	oai := &fakeEngine{name: estimate.ModeOpenAI}
	_, mux := newTestHandle(oai)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, estimateRequest(validBody()))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, "server_not_configured", e.Error)
	assert.Equal(t, "trace-123", e.RequestID)
	assert.Zero(t, oai.callCount())
}

func TestEstimateBodyValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("USE_MOCK_ESTIMATE", "true")
	_, mux := newTestHandle(nil)

	cases := []struct {
		name string
		body string
	}{
		{"unknown field", `{"image_base64":"aGk=","image_mime":"image/jpeg","answers":{"portion_size":"small","contains_dairy":"no","contains_tofu_or_small_fish_bones":"no"},"surprise":1}`},
		{"missing image", `{"image_mime":"image/jpeg","answers":{"portion_size":"small","contains_dairy":"no","contains_tofu_or_small_fish_bones":"no"}}`},
		{"wrong mime", `{"image_base64":"aGk=","image_mime":"image/png","answers":{"portion_size":"small","contains_dairy":"no","contains_tofu_or_small_fish_bones":"no"}}`},
		{"bad answers", `{"image_base64":"aGk=","image_mime":"image/jpeg","answers":{"portion_size":"gigantic","contains_dairy":"no","contains_tofu_or_small_fish_bones":"no"}}`},
		{"not json", `this is not json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, estimateRequest(tc.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_request", decodeError(t, w).Error)
		})
	}
}

func TestEstimateGates(t *testing.T) {
	clearEnv(t)
	t.Setenv("USE_MOCK_ESTIMATE", "true")
	_, mux := newTestHandle(nil)

	t.Setenv("ESTIMATION_ENABLED", "false")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, estimateRequest(validBody()))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "temporarily_disabled", decodeError(t, w).Error)
	t.Setenv("ESTIMATION_ENABLED", "")

	t.Setenv("LOCKOUT_ACTIVE", "true")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, estimateRequest(validBody()))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "temporarily_disabled", decodeError(t, w).Error)
}

func TestEstimateLiveSuccessAndFailureMapping(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ESTIMATE_TIMEOUT_MS", "5000")

	oai := &fakeEngine{
		name: estimate.ModeOpenAI,
		res:  estimate.Result{CalciumMg: 410, Confidence: 0.8, ConfidenceLabel: "high", Warnings: []string{}},
	}
	_, mux := newTestHandle(oai)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, estimateRequest(validBody()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"calcium_mg":410`)
	assert.Equal(t, 1, oai.callCount())

	for _, tc := range []struct {
		kind   estimate.Kind
		status int
	}{
		{estimate.KindUpstreamTimeout, http.StatusGatewayTimeout},
		{estimate.KindUpstreamUnavailable, http.StatusBadGateway},
		{estimate.KindModelInvalidResponse, http.StatusBadGateway},
	} {
		oai2 := &fakeEngine{name: estimate.ModeOpenAI, err: estimate.NewError(tc.kind, "boom")}
		_, mux2 := newTestHandle(oai2)
		w := httptest.NewRecorder()
		mux2.ServeHTTP(w, estimateRequest(validBody()))
		assert.Equal(t, tc.status, w.Code, tc.kind)
		assert.Equal(t, string(tc.kind), decodeError(t, w).Error)
	}
}

func TestStatusEndpoint(t *testing.T) {
	clearEnv(t)
	_, mux := newTestHandle(nil)

	r := httptest.NewRequest("GET", "/api/status", nil)
	r.Header.Set("x-request-id", "s-1")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s-1", w.Header().Get("x-request-id"))

	var resp statusResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.EstimationEnabled)
	assert.False(t, resp.LockoutActive)
	assert.Equal(t, "ok", resp.Message)

	t.Setenv("LOCKOUT_ACTIVE", "true")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/status", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.LockoutActive)
	assert.Equal(t, "estimation temporarily unavailable", resp.Message)
}

func TestDiagnosticsSnapshotGatedByAdminKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMIN_KEY", "real-admin-key")
	t.Setenv("OPENAI_API_KEY", "sk-very-secret")
	_, mux := newTestHandle(nil)

	get := func(adminKey string) map[string]json.RawMessage {
		r := httptest.NewRequest("GET", "/api/diagnostics/env", nil)
		if adminKey != "" {
			r.Header.Set("x-admin-key", adminKey)
		}
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "sk-very-secret")
		var body map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body
	}

	// no key and wrong key: vars and derived only, snapshot omitted
	for _, k := range []string{"", "wrong-key"} {
		body := get(k)
		assert.Contains(t, body, "vars")
		assert.Contains(t, body, "derived")
		assert.NotContains(t, body, "snapshot")
	}

	body := get("real-admin-key")
	require.Contains(t, body, "snapshot")
	var snap map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body["snapshot"], &snap))
	assert.Contains(t, snap, "OPENAI_API_KEY")
}

func TestDiagnosticsEmptyAdminKeyNeverMatches(t *testing.T) {
	clearEnv(t)
	// ADMIN_KEY unset falls back to a default; a blank header must still fail
	_, mux := newTestHandle(nil)

	r := httptest.NewRequest("GET", "/api/diagnostics/env", nil)
	r.Header.Set("x-admin-key", "   ")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	assert.NotContains(t, w.Body.String(), `"snapshot"`)
}

func TestRegenerateAdminMismatchIs400(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMIN_KEY", "real-admin-key")
	_, mux := newTestHandle(nil)

	body := `{"ui_version":"1.2.0","base_en_json":"{\"hello\":\"Hello\"}"}`
	r := httptest.NewRequest("POST", "/api/localization/regenerate", strings.NewReader(body))
	r.Header.Set("x-admin-key", "wrong")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	// historical mapping: unauthorized is reported as 400, not 401
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unauthorized", decodeError(t, w).Error)
}

func TestRegenerateHappyPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMIN_KEY", "real-admin-key")
	_, mux := newTestHandle(nil)

	body := `{"ui_version":"1.2.0","base_en_json":"{\"hello\":\"Hello\"}"}`
	r := httptest.NewRequest("POST", "/api/localization/regenerate", strings.NewReader(body))
	r.Header.Set("x-admin-key", "real-admin-key")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp regenerateResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "1.2.0", resp.UIVersion)
	assert.Equal(t, []string{"en", "ru", "es"}, resp.Generated)
	assert.Len(t, resp.Warnings, 2) // ru and es are untranslated copies
}

func TestLocalizationLatest(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOCALIZATION_BASE_URL", "https://cdn.example.com")
	_, mux := newTestHandle(nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/localization/latest?locale=ru", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var info localization.LatestInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "ru", info.Locale)
	assert.Equal(t, "builtin", info.UIVersion)
	assert.Equal(t, "https://cdn.example.com/packs/builtin/ru.json", info.PackURL)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/localization/latest?locale=xx", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuggestionValidation(t *testing.T) {
	clearEnv(t)
	_, mux := newTestHandle(nil)

	post := func(body string) *httptest.ResponseRecorder {
		r := httptest.NewRequest("POST", "/api/suggestion", strings.NewReader(body))
		r.Header.Set("x-request-id", "sug-1")
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, r)
		return w
	}

	w := post(`{"category":"bug","message":"the photo flow loops"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, post(`{"category":"rant","message":"hi"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"category":"bug","message":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"category":"bug","message":"`+strings.Repeat("a", 501)+`"}`).Code)
}

func TestMethodGuards(t *testing.T) {
	clearEnv(t)
	_, mux := newTestHandle(nil)

	for path, method := range map[string]string{
		"/api/estimateCalcium":         "GET",
		"/api/status":                  "POST",
		"/api/diagnostics/env":         "POST",
		"/api/suggestion":              "GET",
		"/api/localization/regenerate": "GET",
	} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, path)
	}
}

func TestStatusForMapping(t *testing.T) {
	cases := map[estimate.Kind]int{
		estimate.KindInvalidRequest:       http.StatusBadRequest,
		estimate.KindUnauthorized:         http.StatusBadRequest,
		estimate.KindRateLimited:          http.StatusTooManyRequests,
		estimate.KindTemporarilyDisabled:  http.StatusServiceUnavailable,
		estimate.KindServerNotConfigured:  http.StatusInternalServerError,
		estimate.KindUpstreamUnavailable:  http.StatusBadGateway,
		estimate.KindUpstreamTimeout:      http.StatusGatewayTimeout,
		estimate.KindModelInvalidResponse: http.StatusBadGateway,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(kind), kind)
	}
}

func TestWriteKindRateLimitedCarriesRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	writeKind(w, "r-1", estimate.KindRateLimited, "too many requests")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var e apiError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, 30, e.RetryAfterSeconds)
	assert.Equal(t, "r-1", e.RequestID)
}

func TestWriteTypedUnwrapsWrappedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	wrapped := estimate.WrapError(estimate.KindUpstreamTimeout, "took too long", context.DeadlineExceeded)
	writeTyped(w, "r-2", wrapped)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	var e apiError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, "upstream_timeout", e.Error)
	assert.Equal(t, "took too long", e.Message)
}

func TestHashDeviceIDIsSaltedAndShort(t *testing.T) {
	h1 := hashDeviceID("salt-a", "device-1")
	h2 := hashDeviceID("salt-b", "device-1")
	assert.Len(t, h1, 16)
	assert.NotEqual(t, h1, h2)
	assert.NotContains(t, h1, "device-1")
}
