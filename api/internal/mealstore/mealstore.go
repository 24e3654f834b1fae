package mealstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one logged meal estimate. Entries are written only after a fully
// successful submission; failed flows leave the log untouched.
type Entry struct {
	TraceID          string
	ChatID           int64
	CapturedAt       time.Time
	CalciumMg        int
	Confidence       float64
	ConfidenceLabel  string
	ExplanationShort string
	PortionSize      string
	ContainsDairy    string
	ContainsTofu     string
	Locale           string
}

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS meals (
        trace_id TEXT PRIMARY KEY,
        chat_id INTEGER NOT NULL,
        captured_at DATETIME NOT NULL,
        calcium_mg INTEGER NOT NULL,
        confidence REAL NOT NULL,
        confidence_label TEXT NOT NULL,
        explanation_short TEXT NOT NULL,
        portion_size TEXT NOT NULL,
        contains_dairy TEXT NOT NULL,
        contains_tofu TEXT NOT NULL,
        locale TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS device (
        k TEXT PRIMARY KEY,
        v TEXT NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_meals_chat_time ON meals(chat_id, captured_at);
    `
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) SaveEntry(e Entry) error {
	const q = `
        INSERT INTO meals (trace_id, chat_id, captured_at, calcium_mg, confidence, confidence_label,
                           explanation_short, portion_size, contains_dairy, contains_tofu, locale)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := s.db.Exec(q,
		e.TraceID, e.ChatID, e.CapturedAt, e.CalciumMg, e.Confidence, e.ConfidenceLabel,
		e.ExplanationShort, e.PortionSize, e.ContainsDairy, e.ContainsTofu, e.Locale)
	if err != nil {
		return fmt.Errorf("failed to insert meal: %w", err)
	}
	return nil
}

// Recent returns the chat's latest entries, newest first.
func (s *Store) Recent(chatID int64, limit int) ([]Entry, error) {
	const q = `
        SELECT trace_id, chat_id, captured_at, calcium_mg, confidence, confidence_label,
               explanation_short, portion_size, contains_dairy, contains_tofu, locale
        FROM meals
        WHERE chat_id = ?
        ORDER BY captured_at DESC
        LIMIT ?
    `
	rows, err := s.db.Query(q, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TraceID, &e.ChatID, &e.CapturedAt, &e.CalciumMg, &e.Confidence,
			&e.ConfidenceLabel, &e.ExplanationShort, &e.PortionSize, &e.ContainsDairy,
			&e.ContainsTofu, &e.Locale); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TodayTotal sums calcium logged by the chat on the given local date.
func (s *Store) TodayTotal(chatID int64, day time.Time) (int, error) {
	const q = `
        SELECT COALESCE(SUM(calcium_mg), 0)
        FROM meals
        WHERE chat_id = ? AND DATE(captured_at) = DATE(?)
    `
	var total int
	if err := s.db.QueryRow(q, chatID, day).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// DeviceInstallID returns the persisted per-installation id, minting one on
// first use.
func (s *Store) DeviceInstallID() (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT v FROM device WHERE k = 'install_id'`).Scan(&v)
	if err == nil {
		return v, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}
	v = uuid.NewString()
	if _, err := s.db.Exec(`INSERT INTO device (k, v) VALUES ('install_id', ?)`, v); err != nil {
		return "", err
	}
	return v, nil
}
