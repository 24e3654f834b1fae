package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultTimeoutMs   = 45000
	DefaultPromptTag   = "v1"

	// Shipped defaults are deliberately useless; real deployments MUST
	// override ADMIN_KEY and DEVICE_HASH_SALT.
	insecureAdminKey = "change-me-admin"
	insecureSalt     = "change-me-salt"
)

// Config is a snapshot of the environment taken at Resolve time. It is never
// mutated and never cached across requests: handlers call Resolve() fresh so
// that env changes between invocations (tests, dev) take effect immediately.
type Config struct {
	Env  string
	Port string

	Provider       string // "openai" | "gemini"
	UseMock        bool
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	GeminiAPIKey   string
	GeminiModel    string
	TimeoutMs      int
	PromptVersion  string
	PromptOverride string

	EstimationEnabled bool
	LockoutActive     bool
	RateLimitEnabled  bool
	CircuitEnabled    bool

	AdminKey            string
	DeviceHashSalt      string
	LocalizationBaseURL string
	DatabaseURL         string
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// getPositiveInt falls back to def on garbage or non-positive input.
func getPositiveInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Resolve reads the ambient environment and returns a fresh snapshot.
func Resolve() *Config {
	return &Config{
		Env:  getEnv("APP_ENV", "development"),
		Port: getEnv("PORT", "8000"),

		Provider:       strings.ToLower(getEnv("ESTIMATE_PROVIDER", "openai")),
		UseMock:        getBool("USE_MOCK_ESTIMATE", false),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getEnv("OPENAI_MODEL", DefaultOpenAIModel),
		OpenAIBaseURL:  strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", DefaultGeminiModel),
		TimeoutMs:      getPositiveInt("ESTIMATE_TIMEOUT_MS", DefaultTimeoutMs),
		PromptVersion:  getEnv("PROMPT_VERSION", DefaultPromptTag),
		PromptOverride: os.Getenv("PROMPT_OVERRIDE"),

		EstimationEnabled: getBool("ESTIMATION_ENABLED", true),
		LockoutActive:     getBool("LOCKOUT_ACTIVE", false),
		RateLimitEnabled:  getBool("RATE_LIMIT_ENABLED", true),
		CircuitEnabled:    getBool("COST_CIRCUIT_ENABLED", true),

		AdminKey:            getEnv("ADMIN_KEY", insecureAdminKey),
		DeviceHashSalt:      getEnv("DEVICE_HASH_SALT", insecureSalt),
		LocalizationBaseURL: strings.TrimSpace(os.Getenv("LOCALIZATION_BASE_URL")),
		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}
}

// APIKey returns the selected provider's key.
func (c *Config) APIKey() string {
	if c.Provider == "gemini" {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}

// Model returns the selected provider's model id.
func (c *Config) Model() string {
	if c.Provider == "gemini" {
		return c.GeminiModel
	}
	return c.OpenAIModel
}

func (c *Config) APIKeyPresent() bool { return strings.TrimSpace(c.APIKey()) != "" }

// APIKeyRequired: the upstream key is mandatory exactly when a live call
// could happen.
func (c *Config) APIKeyRequired() bool {
	return c.EstimationEnabled && !c.LockoutActive && !c.UseMock
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c *Config) IsProduction() bool { return c.Env == "production" }
