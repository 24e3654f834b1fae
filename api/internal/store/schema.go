package store

import (
	"context"
	"database/sql"
)

// EnsureSchema creates the tables the repos need. Idempotent; called once at
// startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
create table if not exists suggestions (
    id bigserial primary key,
    category text not null,
    message text not null,
    include_diagnostics boolean not null default false,
    diagnostics_json jsonb,
    device_hash text not null default '',
    request_id text not null default '',
    created_at timestamptz not null default now()
);

create table if not exists localization_packs (
    ui_version text not null,
    locale text not null,
    strings_json jsonb not null,
    warnings_json jsonb not null default '[]',
    generated_at timestamptz not null default now(),
    primary key (ui_version, locale)
);

create index if not exists idx_suggestions_created on suggestions(created_at desc);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}
