package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS user_location (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		updatedAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS alert_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		message TEXT NOT NULL,
		severity TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		cameraId TEXT NOT NULL DEFAULT '',
		confidence REAL,
		timestamp TEXT NOT NULL DEFAULT '',
		receivedAt REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alert_log_received ON alert_log(receivedAt);
`

// maxAlertLog bounds the alert_log table.
const maxAlertLog = 500

// Store provides access to the AgroVision client database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database with WAL so the MCP server can
// read while the dashboard writes.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Location returns the saved location, or nil if none was saved.
func (s *Store) Location() (*SavedLocation, error) {
	row := s.db.QueryRow(`SELECT lat, lon, name, updatedAt FROM user_location WHERE id = 1`)

	var loc SavedLocation
	var updatedAt float64
	if err := row.Scan(&loc.Lat, &loc.Lon, &loc.Name, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan location: %w", err)
	}
	loc.UpdatedAt = timeFromUnix(updatedAt)
	return &loc, nil
}

// SaveLocation stores loc as the single saved location.
func (s *Store) SaveLocation(loc SavedLocation) error {
	if loc.UpdatedAt.IsZero() {
		loc.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO user_location (id, lat, lon, name, updatedAt)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			name = excluded.name,
			updatedAt = excluded.updatedAt
	`, loc.Lat, loc.Lon, loc.Name, unixFromTime(loc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save location: %w", err)
	}
	return nil
}

// ClearLocation removes the saved location.
func (s *Store) ClearLocation() error {
	if _, err := s.db.Exec(`DELETE FROM user_location`); err != nil {
		return fmt.Errorf("clear location: %w", err)
	}
	return nil
}

// AppendAlert logs a received alert and trims the log to its bound.
func (s *Store) AppendAlert(a AlertRecord) error {
	if a.ReceivedAt.IsZero() {
		a.ReceivedAt = time.Now()
	}
	var confidence sql.NullFloat64
	if a.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *a.Confidence, Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO alert_log (id, message, severity, type, cameraId, confidence, timestamp, receivedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Message, a.Severity, a.Type, a.CameraID, confidence, a.Timestamp, unixFromTime(a.ReceivedAt)); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	if _, err := tx.Exec(`
		DELETE FROM alert_log
		WHERE seq NOT IN (SELECT seq FROM alert_log ORDER BY seq DESC LIMIT ?)
	`, maxAlertLog); err != nil {
		return fmt.Errorf("trim alert log: %w", err)
	}
	return tx.Commit()
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Store) RecentAlerts(limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, message, severity, type, cameraId, confidence, timestamp, receivedAt
		FROM alert_log
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		var a AlertRecord
		var confidence sql.NullFloat64
		var receivedAt float64
		if err := rows.Scan(&a.ID, &a.Message, &a.Severity, &a.Type, &a.CameraID,
			&confidence, &a.Timestamp, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if confidence.Valid {
			c := confidence.Float64
			a.Confidence = &c
		}
		a.ReceivedAt = timeFromUnix(receivedAt)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
