package localization

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"calcium-cam/api/internal/store"
)

// SupportedLocales is the closed set the endpoints accept.
var SupportedLocales = []string{"en", "ru", "es"}

const fallbackUIVersion = "builtin"

func IsSupported(locale string) bool {
	for _, l := range SupportedLocales {
		if l == locale {
			return true
		}
	}
	return false
}

// Service serves pack metadata and regenerates packs. Persistence is
// optional: without a repo, regeneration still validates and reports, and
// Latest falls back to the builtin version tag.
type Service struct {
	Repo    *store.LocalizationRepo
	BaseURL string
}

type LatestInfo struct {
	UIVersion        string   `json:"ui_version"`
	SupportedLocales []string `json:"supported_locales"`
	Locale           string   `json:"locale"`
	PackURL          string   `json:"pack_url"`
}

func (s *Service) Latest(ctx context.Context, locale string) (LatestInfo, error) {
	if !IsSupported(locale) {
		return LatestInfo{}, fmt.Errorf("unsupported locale %q", locale)
	}
	version := fallbackUIVersion
	if s.Repo != nil {
		if p, err := s.Repo.Latest(ctx, locale); err == nil {
			version = p.UIVersion
		}
	}
	info := LatestInfo{
		UIVersion:        version,
		SupportedLocales: SupportedLocales,
		Locale:           locale,
	}
	if base := strings.TrimRight(s.BaseURL, "/"); base != "" {
		info.PackURL = fmt.Sprintf("%s/packs/%s/%s.json", base, version, locale)
	}
	return info, nil
}

// Regenerate builds one pack per requested locale from the English base.
// Machine translation is not wired yet, so non-English packs are copies of
// the base and carry a warning saying so.
func (s *Service) Regenerate(ctx context.Context, uiVersion, baseEnJSON string, locales []string) (generated []string, warnings []string, err error) {
	if strings.TrimSpace(uiVersion) == "" {
		return nil, nil, fmt.Errorf("ui_version is required")
	}
	var base map[string]string
	if err := json.Unmarshal([]byte(baseEnJSON), &base); err != nil {
		return nil, nil, fmt.Errorf("base_en_json is not a flat string map: %w", err)
	}
	if len(locales) == 0 {
		locales = SupportedLocales
	}

	generated = []string{}
	warnings = []string{}
	for _, loc := range locales {
		if !IsSupported(loc) {
			return nil, nil, fmt.Errorf("unsupported locale %q", loc)
		}
		pack := store.Pack{UIVersion: uiVersion, Locale: loc, Strings: base, Warnings: []string{}}
		if loc != "en" {
			w := fmt.Sprintf("locale %s: translation not configured, english copy served", loc)
			pack.Warnings = append(pack.Warnings, w)
			warnings = append(warnings, w)
		}
		if s.Repo != nil {
			if err := s.Repo.Upsert(ctx, pack); err != nil {
				return nil, nil, fmt.Errorf("store pack %s: %w", loc, err)
			}
		}
		generated = append(generated, loc)
	}
	return generated, warnings, nil
}
