// Package connlog persists a write-only historical record of completed
// connections and health-check probe cycles to SQLite, the way the
// original's ConnectionLog wrote structured JSON-ish lines to a log file.
package connlog

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/runwayproxy/multipath/internal/dispatch"
)

// Store wraps the SQLite database connection used for connection and
// health-check history.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (or reuses) a multipathproxy.db under dataDir and ensures
// its schema exists.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "multipathproxy.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("connlog: open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("connlog: create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS connections (
			id TEXT PRIMARY KEY,
			client_ip TEXT NOT NULL,
			client_port INTEGER,
			target_host TEXT,
			target_port INTEGER,
			method TEXT,
			path TEXT,
			runway_id TEXT,
			status TEXT NOT NULL,
			status_code INTEGER,
			bytes_sent INTEGER DEFAULT 0,
			bytes_received INTEGER DEFAULT 0,
			error TEXT,
			duration_secs INTEGER,
			start_time DATETIME NOT NULL,
			logged_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_start_time ON connections(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_target_host ON connections(target_host)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_runway_id ON connections(runway_id)`,

		`CREATE TABLE IF NOT EXISTS health_probes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			target TEXT NOT NULL,
			runway_id TEXT NOT NULL,
			network_success INTEGER NOT NULL,
			user_success INTEGER NOT NULL,
			response_time_secs REAL,
			probed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_health_probes_target ON health_probes(target)`,
		`CREATE INDEX IF NOT EXISTS idx_health_probes_probed_at ON health_probes(probed_at)`,
	}

	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("execute %q: %w", table, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LogConnection appends one completed connection's record. It is safe to
// register directly as a dispatch.Server.OnComplete callback.
func (s *Store) LogConnection(info dispatch.ConnectionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO connections
			(id, client_ip, client_port, target_host, target_port, method, path,
			 runway_id, status, status_code, bytes_sent, bytes_received, error,
			 duration_secs, start_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime(?, 'unixepoch'))`,
		info.ID, info.ClientIP, info.ClientPort, info.TargetHost, info.TargetPort,
		info.Method, info.Path, info.RunwayID, info.Status, info.StatusCode,
		info.BytesSent, info.BytesReceived, info.Error, info.DurationSecs, info.StartTime,
	)
	if err != nil {
		// Best-effort logging: a connlog write failure must never interrupt
		// proxying, so the error is discarded.
		return
	}
}

// LogHealthProbe appends one health-monitor probe outcome.
func (s *Store) LogHealthProbe(target, runwayID string, networkSuccess, userSuccess bool, responseTimeSecs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.db.Exec(
		`INSERT INTO health_probes (target, runway_id, network_success, user_success, response_time_secs)
		 VALUES (?, ?, ?, ?, ?)`,
		target, runwayID, boolToInt(networkSuccess), boolToInt(userSuccess), responseTimeSecs,
	)
}

// TargetSummary aggregates one target's connection history since a point
// in time.
type TargetSummary struct {
	Target         string
	TotalRequests  int
	CompletedCount int
	ErrorCount     int
	BytesSent      uint64
	BytesReceived  uint64
	RunwaysUsed    []string
}

// RunwaySummary aggregates one runway's connection history since a point
// in time.
type RunwaySummary struct {
	RunwayID       string
	TotalRequests  int
	CompletedCount int
	ErrorCount     int
}

// TargetSummaries returns per-target connection aggregates for connections
// started at or after since, ordered by request volume descending.
func (s *Store) TargetSummaries(since time.Time) ([]TargetSummary, error) {
	rows, err := s.db.Query(
		`SELECT target_host,
			COUNT(*),
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END),
			SUM(bytes_sent), SUM(bytes_received)
		 FROM connections
		 WHERE start_time >= datetime(?, 'unixepoch')
		 GROUP BY target_host
		 ORDER BY COUNT(*) DESC`,
		since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("connlog: query target summaries: %w", err)
	}
	defer rows.Close()

	var summaries []TargetSummary
	for rows.Next() {
		var ts TargetSummary
		if err := rows.Scan(&ts.Target, &ts.TotalRequests, &ts.CompletedCount, &ts.ErrorCount, &ts.BytesSent, &ts.BytesReceived); err != nil {
			return nil, fmt.Errorf("connlog: scan target summary: %w", err)
		}
		runways, err := s.runwaysForTarget(ts.Target, since)
		if err == nil {
			ts.RunwaysUsed = runways
		}
		summaries = append(summaries, ts)
	}
	return summaries, rows.Err()
}

func (s *Store) runwaysForTarget(target string, since time.Time) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT runway_id FROM connections WHERE target_host = ? AND start_time >= datetime(?, 'unixepoch') AND runway_id != ''`,
		target, since.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runways []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		runways = append(runways, id)
	}
	return runways, rows.Err()
}

// RunwaySummaries returns per-runway connection aggregates for connections
// started at or after since, ordered by request volume descending.
func (s *Store) RunwaySummaries(since time.Time) ([]RunwaySummary, error) {
	rows, err := s.db.Query(
		`SELECT runway_id,
			COUNT(*),
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END)
		 FROM connections
		 WHERE start_time >= datetime(?, 'unixepoch') AND runway_id != ''
		 GROUP BY runway_id
		 ORDER BY COUNT(*) DESC`,
		since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("connlog: query runway summaries: %w", err)
	}
	defer rows.Close()

	var summaries []RunwaySummary
	for rows.Next() {
		var rs RunwaySummary
		if err := rows.Scan(&rs.RunwayID, &rs.TotalRequests, &rs.CompletedCount, &rs.ErrorCount); err != nil {
			return nil, fmt.Errorf("connlog: scan runway summary: %w", err)
		}
		summaries = append(summaries, rs)
	}
	return summaries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
