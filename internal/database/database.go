package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Outcome of a single remote fetch attempt
type Outcome string

const (
	OutcomeHit  Outcome = "hit"
	OutcomeMiss Outcome = "miss"

	// The provider could not be reached. Errors never start a backoff.
	OutcomeError Outcome = "error"
)

// FetchRecord is one row of the remote fetch ledger.
type FetchRecord struct {
	ID        int64     `json:"id"`
	CacheKey  string    `json:"cacheKey"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Kind      string    `json:"kind"` // "lyrics" or "cover"
	Outcome   Outcome   `json:"outcome"`
	Provider  string    `json:"provider,omitempty"`
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Database wraps a *sql.DB holding the remote fetch ledger: which titles
// were looked up remotely, when, and whether anything came back. The
// resolver uses it to avoid hammering providers for tracks they don't know.
// It is safe for concurrent use because the underlying *sql.DB is.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	insertFetchStmt *sql.Stmt
	lastMissStmt    *sql.Stmt
	recentStmt      *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures the ledger tables and indices exist. It also applies the usual
// WAL pragmas. Caller should Close() it when finished.
func NewDatabase(dbPath string, maxConns int, logger *logrus.Logger) (*Database, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns < 1 {
		maxConns = 1
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=memory;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Fetch ledger initialized")
	return db, nil
}

// createTables is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	fetchLogTable := `
	CREATE TABLE IF NOT EXISTS fetch_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cache_key TEXT NOT NULL,
		title TEXT NOT NULL,
		artist TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		outcome TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		fetched_at DATETIME NOT NULL
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_fetch_log_key_kind ON fetch_log(cache_key, kind, fetched_at);",
		"CREATE INDEX IF NOT EXISTS idx_fetch_log_fetched ON fetch_log(fetched_at);",
	}

	if _, err := db.conn.Exec(fetchLogTable); err != nil {
		return err
	}

	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}

	return nil
}

func (db *Database) prepareStatements() error {
	var err error

	db.insertFetchStmt, err = db.conn.Prepare(`
		INSERT INTO fetch_log (cache_key, title, artist, kind, outcome, provider, error, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("insert fetch: %w", err)
	}

	// Only misses newer than the most recent hit count.
	db.lastMissStmt, err = db.conn.Prepare(`
		SELECT outcome, fetched_at FROM fetch_log
		WHERE cache_key = ? AND kind = ? AND outcome != 'error'
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1`)
	if err != nil {
		return fmt.Errorf("last miss: %w", err)
	}

	db.recentStmt, err = db.conn.Prepare(`
		SELECT id, cache_key, title, artist, kind, outcome, provider, error, fetched_at
		FROM fetch_log
		ORDER BY fetched_at DESC, id DESC
		LIMIT ?`)
	if err != nil {
		return fmt.Errorf("recent fetches: %w", err)
	}

	return nil
}

// RecordFetch appends one fetch attempt to the ledger.
func (db *Database) RecordFetch(rec FetchRecord) error {
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now()
	}

	_, err := db.insertFetchStmt.Exec(
		rec.CacheKey, rec.Title, rec.Artist, rec.Kind, string(rec.Outcome),
		rec.Provider, rec.Error, rec.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}
	return nil
}

// LastMiss returns when the latest attempt for key/kind was a miss. ok is
// false when there is no answer on record or the latest one was a hit.
// Attempts that ended in an error are not answers and are skipped.
func (db *Database) LastMiss(cacheKey, kind string) (time.Time, bool, error) {
	var (
		outcome   string
		fetchedAt time.Time
	)

	err := db.lastMissStmt.QueryRow(cacheKey, kind).Scan(&outcome, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last miss: %w", err)
	}

	if Outcome(outcome) != OutcomeMiss {
		return time.Time{}, false, nil
	}
	return fetchedAt, true, nil
}

// RecentFetches returns up to limit ledger rows, newest first.
func (db *Database) RecentFetches(limit int) ([]FetchRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.recentStmt.Query(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fetches: %w", err)
	}
	defer rows.Close()

	var records []FetchRecord
	for rows.Next() {
		var rec FetchRecord
		var outcome string
		if err := rows.Scan(&rec.ID, &rec.CacheKey, &rec.Title, &rec.Artist, &rec.Kind,
			&outcome, &rec.Provider, &rec.Error, &rec.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fetch row: %w", err)
		}
		rec.Outcome = Outcome(outcome)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Ping checks database connectivity
func (db *Database) Ping() error {
	return db.conn.Ping()
}

// Close closes prepared statements and the database connection
func (db *Database) Close() error {
	statements := []*sql.Stmt{db.insertFetchStmt, db.lastMissStmt, db.recentStmt}
	for _, stmt := range statements {
		if stmt != nil {
			stmt.Close()
		}
	}
	return db.conn.Close()
}
