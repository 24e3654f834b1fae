package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Pack is one generated localization pack.
type Pack struct {
	UIVersion   string
	Locale      string
	Strings     map[string]string
	Warnings    []string
	GeneratedAt time.Time
}

type LocalizationRepo struct{ DB *sql.DB }

func NewLocalizationRepo(db *sql.DB) *LocalizationRepo { return &LocalizationRepo{DB: db} }

// Latest returns the newest pack for the locale, or sql.ErrNoRows.
func (r *LocalizationRepo) Latest(ctx context.Context, locale string) (Pack, error) {
	const q = `
select ui_version, locale, strings_json, warnings_json, generated_at
from localization_packs
where locale=$1
order by generated_at desc
limit 1`
	var (
		p        Pack
		strs     []byte
		warnings []byte
	)
	if err := r.DB.QueryRowContext(ctx, q, locale).Scan(&p.UIVersion, &p.Locale, &strs, &warnings, &p.GeneratedAt); err != nil {
		return Pack{}, err
	}
	if err := json.Unmarshal(strs, &p.Strings); err != nil {
		return Pack{}, sql.ErrNoRows
	}
	_ = json.Unmarshal(warnings, &p.Warnings)
	return p, nil
}

// Upsert stores/replaces the pack for (ui_version, locale).
func (r *LocalizationRepo) Upsert(ctx context.Context, p Pack) error {
	strs, _ := json.Marshal(p.Strings)
	warnings, _ := json.Marshal(p.Warnings)
	const q = `
insert into localization_packs(ui_version, locale, strings_json, warnings_json)
values ($1,$2,$3,$4)
on conflict (ui_version, locale)
do update set strings_json=excluded.strings_json, warnings_json=excluded.warnings_json, generated_at=now()`
	_, err := r.DB.ExecContext(ctx, q, p.UIVersion, p.Locale, strs, warnings)
	return err
}
