package mealstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "meals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(trace string, chat int64, at time.Time, mg int) Entry {
	return Entry{
		TraceID:          trace,
		ChatID:           chat,
		CapturedAt:       at,
		CalciumMg:        mg,
		Confidence:       0.7,
		ConfidenceLabel:  "medium",
		ExplanationShort: "test entry",
		PortionSize:      "medium",
		ContainsDairy:    "yes",
		ContainsTofu:     "no",
		Locale:           "en",
	}
}

func TestSaveAndRecent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.SaveEntry(entry("t-1", 10, now.Add(-2*time.Hour), 200)))
	require.NoError(t, s.SaveEntry(entry("t-2", 10, now.Add(-1*time.Hour), 350)))
	require.NoError(t, s.SaveEntry(entry("t-3", 99, now, 500))) // other chat

	got, err := s.Recent(10, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// newest first
	assert.Equal(t, "t-2", got[0].TraceID)
	assert.Equal(t, 350, got[0].CalciumMg)
	assert.Equal(t, "t-1", got[1].TraceID)

	got, err = s.Recent(10, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t-2", got[0].TraceID)
}

func TestRecentEmpty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Recent(42, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDuplicateTraceIDRejected(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.SaveEntry(entry("dup", 1, now, 100)))
	assert.Error(t, s.SaveEntry(entry("dup", 1, now, 100)))
}

func TestTodayTotal(t *testing.T) {
	s := newTestStore(t)
	day := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveEntry(entry("a", 7, day.Add(-3*time.Hour), 150)))
	require.NoError(t, s.SaveEntry(entry("b", 7, day.Add(2*time.Hour), 250)))
	require.NoError(t, s.SaveEntry(entry("c", 7, day.AddDate(0, 0, -1), 999))) // yesterday
	require.NoError(t, s.SaveEntry(entry("d", 8, day, 500)))                   // other chat

	total, err := s.TodayTotal(7, day)
	require.NoError(t, err)
	assert.Equal(t, 400, total)

	total, err = s.TodayTotal(7, day.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestDeviceInstallIDPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meals.db")

	s, err := New(path)
	require.NoError(t, err)
	id1, err := s.DeviceInstallID()
	require.NoError(t, err)
	require.NotEmpty(t, id1)
	id2, err := s.DeviceInstallID()
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	require.NoError(t, s.Close())

	// survives reopen
	s2, err := New(path)
	require.NoError(t, err)
	defer s2.Close()
	id3, err := s2.DeviceInstallID()
	require.NoError(t, err)
	assert.Equal(t, id1, id3)
}
