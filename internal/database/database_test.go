package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	db, err := NewDatabase(filepath.Join(t.TempDir(), "ledger.db"), 2, logger)
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLastMiss(t *testing.T) {
	db := newTestDatabase(t)

	if _, ok, err := db.LastMiss("song", "lyrics"); err != nil || ok {
		t.Fatalf("LastMiss() on empty ledger = %v, %v", ok, err)
	}

	missAt := time.Now().Add(-time.Minute).Truncate(time.Second)
	if err := db.RecordFetch(FetchRecord{
		CacheKey:  "song",
		Title:     "Song",
		Kind:      "lyrics",
		Outcome:   OutcomeMiss,
		Error:     "not found",
		FetchedAt: missAt,
	}); err != nil {
		t.Fatalf("RecordFetch() error = %v", err)
	}

	at, ok, err := db.LastMiss("song", "lyrics")
	if err != nil || !ok {
		t.Fatalf("LastMiss() = %v, %v, want a miss", ok, err)
	}
	if !at.Equal(missAt) {
		t.Errorf("LastMiss() at = %v, want %v", at, missAt)
	}

	// other kind is independent
	if _, ok, _ := db.LastMiss("song", "cover"); ok {
		t.Errorf("cover should have no miss recorded")
	}

	// a later hit clears the miss
	if err := db.RecordFetch(FetchRecord{
		CacheKey: "song",
		Title:    "Song",
		Kind:     "lyrics",
		Outcome:  OutcomeHit,
		Provider: "netease",
	}); err != nil {
		t.Fatalf("RecordFetch() error = %v", err)
	}
	if _, ok, _ := db.LastMiss("song", "lyrics"); ok {
		t.Errorf("LastMiss() after hit should report no miss")
	}
}

func TestLastMissIgnoresErrors(t *testing.T) {
	db := newTestDatabase(t)

	if err := db.RecordFetch(FetchRecord{
		CacheKey:  "song",
		Kind:      "lyrics",
		Outcome:   OutcomeError,
		Error:     "dial tcp 127.0.0.1:1: connection refused",
		FetchedAt: time.Now(),
	}); err != nil {
		t.Fatalf("RecordFetch() error = %v", err)
	}
	if _, ok, err := db.LastMiss("song", "lyrics"); err != nil || ok {
		t.Errorf("LastMiss() after only an error = %v, %v, want no miss", ok, err)
	}

	// an error after a miss neither clears nor refreshes it
	missAt := time.Now().Add(-2 * time.Minute).Truncate(time.Second)
	if err := db.RecordFetch(FetchRecord{
		CacheKey:  "other",
		Kind:      "lyrics",
		Outcome:   OutcomeMiss,
		FetchedAt: missAt,
	}); err != nil {
		t.Fatalf("RecordFetch() error = %v", err)
	}
	if err := db.RecordFetch(FetchRecord{
		CacheKey:  "other",
		Kind:      "lyrics",
		Outcome:   OutcomeError,
		FetchedAt: time.Now(),
	}); err != nil {
		t.Fatalf("RecordFetch() error = %v", err)
	}
	at, ok, err := db.LastMiss("other", "lyrics")
	if err != nil || !ok || !at.Equal(missAt) {
		t.Errorf("LastMiss() = %v, %v, %v, want the earlier miss at %v", at, ok, err, missAt)
	}
}

func TestRecentFetches(t *testing.T) {
	db := newTestDatabase(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		err := db.RecordFetch(FetchRecord{
			CacheKey:  "k",
			Title:     "t",
			Kind:      "cover",
			Outcome:   OutcomeMiss,
			FetchedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	records, err := db.RecentFetches(3)
	if err != nil {
		t.Fatalf("RecentFetches() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("RecentFetches() returned %d rows, want 3", len(records))
	}
	if !records[0].FetchedAt.After(records[1].FetchedAt) {
		t.Errorf("rows not newest first: %v, %v", records[0].FetchedAt, records[1].FetchedAt)
	}
	if records[0].Outcome != OutcomeMiss {
		t.Errorf("outcome = %q", records[0].Outcome)
	}

	if err := db.Ping(); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
