package config

import (
	"os"
	"strings"

	"calcium-cam/api/internal/util"
)

const snapshotValueCap = 120

// VarReport describes one recognized environment variable without its value.
type VarReport struct {
	Name        string `json:"name"`
	Present     bool   `json:"present"`
	Required    bool   `json:"required"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description"`
}

// SnapshotEntry is the redaction-safe view of one variable's value. Secrets
// carry only presence, length and a short one-way fingerprint.
type SnapshotEntry struct {
	Present bool   `json:"present"`
	Length  int    `json:"length,omitempty"`
	Hash8   string `json:"hash8,omitempty"`
	Value   string `json:"value,omitempty"`
}

// Derived summarizes the config actually in effect, for diagnostics.
type Derived struct {
	Env               string `json:"env"`
	Provider          string `json:"provider"`
	UseMock           bool   `json:"use_mock"`
	Model             string `json:"model"`
	TimeoutMs         int    `json:"timeout_ms"`
	PromptVersion     string `json:"prompt_version"`
	EstimationEnabled bool   `json:"estimation_enabled"`
	LockoutActive     bool   `json:"lockout_active"`
	APIKeyPresent     bool   `json:"api_key_present"`
}

type EnvReport struct {
	Vars            []VarReport              `json:"vars"`
	MissingRequired []string                 `json:"missing_required"`
	Derived         Derived                  `json:"derived"`
	Snapshot        map[string]SnapshotEntry `json:"snapshot,omitempty"`
}

type varSpec struct {
	name     string
	def      string
	desc     string
	secret   bool
	required func(*Config) bool
}

func always(*Config) bool { return false }

// variables is the single place each var is classified secret or not.
var variables = []varSpec{
	{"APP_ENV", "development", "deployment environment name", false, always},
	{"ESTIMATE_PROVIDER", "openai", "upstream provider: openai | gemini", false, always},
	{"USE_MOCK_ESTIMATE", "false", "return a canned estimate, never call upstream", false, always},
	{"OPENAI_API_KEY", "", "OpenAI API key", true, func(c *Config) bool {
		return c.Provider != "gemini" && c.APIKeyRequired()
	}},
	{"OPENAI_MODEL", DefaultOpenAIModel, "OpenAI model id", false, always},
	{"OPENAI_BASE_URL", "", "alternate OpenAI-compatible endpoint", false, always},
	{"GEMINI_API_KEY", "", "Gemini API key", true, func(c *Config) bool {
		return c.Provider == "gemini" && c.APIKeyRequired()
	}},
	{"GEMINI_MODEL", DefaultGeminiModel, "Gemini model id", false, always},
	{"ESTIMATE_TIMEOUT_MS", "45000", "upstream call deadline in ms", false, always},
	{"PROMPT_VERSION", DefaultPromptTag, "diagnostic prompt tag", false, always},
	{"PROMPT_OVERRIDE", "", "full replacement prompt text", false, always},
	{"ESTIMATION_ENABLED", "true", "master switch for the estimate endpoint", false, always},
	{"LOCKOUT_ACTIVE", "false", "emergency lockout of the estimate endpoint", false, always},
	{"RATE_LIMIT_ENABLED", "true", "consult the per-device rate limit gate", false, always},
	{"COST_CIRCUIT_ENABLED", "true", "consult the spend circuit breaker gate", false, always},
	{"ADMIN_KEY", insecureAdminKey, "gates privileged diagnostics; override the default", true, always},
	{"DEVICE_HASH_SALT", insecureSalt, "salt for device-id hashing; override the default", true, always},
	{"LOCALIZATION_BASE_URL", "", "base URL for localization pack downloads", false, always},
	{"DATABASE_URL", "", "Postgres DSN for suggestions/localization", true, always},
	{"PORT", "8000", "listen port", false, always},
}

// Report projects the same environment Resolve reads into a diagnostic view.
// The two must agree: required-ness is computed from cfg, presence from the
// ambient env.
func Report(cfg *Config) EnvReport {
	rep := EnvReport{
		MissingRequired: []string{},
		Snapshot:        make(map[string]SnapshotEntry, len(variables)),
		Derived: Derived{
			Env:               cfg.Env,
			Provider:          cfg.Provider,
			UseMock:           cfg.UseMock,
			Model:             cfg.Model(),
			TimeoutMs:         cfg.TimeoutMs,
			PromptVersion:     cfg.PromptVersion,
			EstimationEnabled: cfg.EstimationEnabled,
			LockoutActive:     cfg.LockoutActive,
			APIKeyPresent:     cfg.APIKeyPresent(),
		},
	}

	for _, v := range variables {
		raw := strings.TrimSpace(os.Getenv(v.name))
		present := raw != ""
		required := v.required(cfg)

		rep.Vars = append(rep.Vars, VarReport{
			Name:        v.name,
			Present:     present,
			Required:    required,
			Default:     v.def,
			Description: v.desc,
		})
		if required && !present {
			rep.MissingRequired = append(rep.MissingRequired, v.name)
		}

		if !present {
			rep.Snapshot[v.name] = SnapshotEntry{Present: false}
			continue
		}
		if v.secret {
			rep.Snapshot[v.name] = SnapshotEntry{
				Present: true,
				Length:  len(raw),
				Hash8:   util.Hash8(raw),
			}
			continue
		}
		rep.Snapshot[v.name] = SnapshotEntry{
			Present: true,
			Value:   util.Truncate(raw, snapshotValueCap),
		}
	}
	return rep
}
