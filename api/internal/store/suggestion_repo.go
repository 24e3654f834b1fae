package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Suggestion is one piece of user feedback from the app.
type Suggestion struct {
	ID                 int64
	Category           string // bug | feature | confusing
	Message            string
	IncludeDiagnostics bool
	Diagnostics        map[string]any
	DeviceHash         string
	RequestID          string
	CreatedAt          time.Time
}

type SuggestionRepo struct{ DB *sql.DB }

func NewSuggestionRepo(db *sql.DB) *SuggestionRepo { return &SuggestionRepo{DB: db} }

func (r *SuggestionRepo) Insert(ctx context.Context, s Suggestion) error {
	var diag []byte
	if s.IncludeDiagnostics && s.Diagnostics != nil {
		diag, _ = json.Marshal(s.Diagnostics)
	}
	const q = `
insert into suggestions(category, message, include_diagnostics, diagnostics_json, device_hash, request_id)
values ($1,$2,$3,$4,$5,$6)`
	_, err := r.DB.ExecContext(ctx, q,
		s.Category, s.Message, s.IncludeDiagnostics, diag, s.DeviceHash, s.RequestID)
	return err
}

// Recent returns the latest n suggestions, newest first.
func (r *SuggestionRepo) Recent(ctx context.Context, n int) ([]Suggestion, error) {
	const q = `
select id, category, message, include_diagnostics, coalesce(diagnostics_json, '{}'), device_hash, request_id, created_at
from suggestions
order by created_at desc
limit $1`
	rows, err := r.DB.QueryContext(ctx, q, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Suggestion
	for rows.Next() {
		var (
			s  Suggestion
			js []byte
		)
		if err := rows.Scan(&s.ID, &s.Category, &s.Message, &s.IncludeDiagnostics, &js, &s.DeviceHash, &s.RequestID, &s.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(js, &s.Diagnostics)
		out = append(out, s)
	}
	return out, rows.Err()
}
