// Package storage is the local SQLite store for this frontend: persisted
// session state (the server-side stand-in for browser local storage) and an
// audit trail of bookings confirmed through this instance.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the frontend service.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Per-session state: auth token and booking form draft, stored as
		// a JSON blob keyed by session ID.
		`CREATE TABLE IF NOT EXISTS session_states (
			session_id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Bookings confirmed through this frontend instance.
		`CREATE TABLE IF NOT EXISTS booking_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id INTEGER NOT NULL,
			client_name TEXT NOT NULL,
			client_email TEXT,
			service TEXT NOT NULL,
			booked_date TEXT NOT NULL,
			booked_time TEXT NOT NULL,
			hair_artist_id INTEGER,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// GetSessionState returns the stored JSON blob for a session, or
// sql.ErrNoRows when the session is unknown.
func (db *DB) GetSessionState(ctx context.Context, sessionID string) (string, error) {
	var data string
	err := db.QueryRowContext(ctx,
		"SELECT data FROM session_states WHERE session_id = ?", sessionID,
	).Scan(&data)
	if err != nil {
		return "", err
	}
	return data, nil
}

// SetSessionState upserts the JSON blob for a session.
func (db *DB) SetSessionState(ctx context.Context, sessionID, data string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO session_states (session_id, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		sessionID, data,
	)
	return err
}

// ClearSessionState removes a session's stored state.
func (db *DB) ClearSessionState(ctx context.Context, sessionID string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM session_states WHERE session_id = ?", sessionID)
	return err
}

// PurgeStaleSessions drops session state rows untouched for longer than maxAge.
func (db *DB) PurgeStaleSessions(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC().Format("2006-01-02 15:04:05")
	res, err := db.ExecContext(ctx, "DELETE FROM session_states WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AuditEntry is one confirmed-booking record.
type AuditEntry struct {
	ID           int64
	BookingID    int64
	ClientName   string
	ClientEmail  string
	Service      string
	BookedDate   string
	BookedTime   string
	HairArtistID int64
	Status       string
	CreatedAt    time.Time
}

// InsertBookingAudit records a booking confirmed through this frontend.
func (db *DB) InsertBookingAudit(ctx context.Context, e *AuditEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO booking_audit
			(booking_id, client_name, client_email, service, booked_date, booked_time, hair_artist_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BookingID, e.ClientName, e.ClientEmail, e.Service, e.BookedDate, e.BookedTime, e.HairArtistID, e.Status,
	)
	return err
}

// ListBookingAudit returns audit entries for booked dates inside [start, end],
// both YYYY-MM-DD, newest first.
func (db *DB) ListBookingAudit(ctx context.Context, start, end string) ([]AuditEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, booking_id, client_name, client_email, service,
		       booked_date, booked_time, hair_artist_id, status, created_at
		FROM booking_audit
		WHERE booked_date >= ? AND booked_date <= ?
		ORDER BY created_at DESC`,
		start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(
			&e.ID, &e.BookingID, &e.ClientName, &e.ClientEmail, &e.Service,
			&e.BookedDate, &e.BookedTime, &e.HairArtistID, &e.Status, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
