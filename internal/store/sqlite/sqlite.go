package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ringline/ringline-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS calls (
	id           TEXT PRIMARY KEY,
	peer_id      TEXT NOT NULL,
	device_id    INTEGER NOT NULL,
	direction    TEXT NOT NULL,
	media_type   TEXT NOT NULL,
	status       TEXT NOT NULL,
	end_reason   TEXT,
	started_at   TIMESTAMP NOT NULL,
	connected_at TIMESTAMP,
	ended_at     TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_calls_started_at ON calls(started_at DESC);

CREATE TABLE IF NOT EXISTS group_rings (
	ring_id    INTEGER PRIMARY KEY,
	group_id   BLOB NOT NULL,
	sender_id  BLOB NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and applies the
// schema. Use ":memory:" for an ephemeral database.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== CallStore implementation ====

// CreateCall inserts a new call record with status ringing.
func (s *SQLiteStore) CreateCall(ctx context.Context, rec *store.CallRecord) error {
	query := `
		INSERT INTO calls (id, peer_id, device_id, direction, media_type, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.PeerID, rec.DeviceID, rec.Direction, rec.MediaType,
		string(store.CallStatusRinging), rec.StartedAt)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// MarkCallConnected stamps the connect time and moves the record to
// connected. No-op if the call is already ended.
func (s *SQLiteStore) MarkCallConnected(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE calls
		SET status = ?, connected_at = ?
		WHERE id = ? AND status != ?
	`
	_, err := s.db.ExecContext(ctx, query,
		string(store.CallStatusConnected), at, id, string(store.CallStatusEnded))
	if err != nil {
		return fmt.Errorf("update call connected: %w", err)
	}
	return nil
}

// MarkCallEnded closes the record with the given reason.
func (s *SQLiteStore) MarkCallEnded(ctx context.Context, id, reason string, at time.Time) error {
	query := `
		UPDATE calls
		SET status = ?, end_reason = ?, ended_at = ?
		WHERE id = ?
	`
	_, err := s.db.ExecContext(ctx, query,
		string(store.CallStatusEnded), reason, at, id)
	if err != nil {
		return fmt.Errorf("update call ended: %w", err)
	}
	return nil
}

// GetCall retrieves one call record by id.
func (s *SQLiteStore) GetCall(ctx context.Context, id string) (*store.CallRecord, error) {
	query := `
		SELECT id, peer_id, device_id, direction, media_type, status,
		       end_reason, started_at, connected_at, ended_at
		FROM calls
		WHERE id = ?
	`
	rec, err := scanCall(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select call: %w", err)
	}
	return rec, nil
}

// ListRecentCalls returns the newest records, most recent first.
func (s *SQLiteStore) ListRecentCalls(ctx context.Context, limit int) ([]*store.CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, peer_id, device_id, direction, media_type, status,
		       end_reason, started_at, connected_at, ended_at
		FROM calls
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent calls: %w", err)
	}
	defer rows.Close()

	var recs []*store.CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return recs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*store.CallRecord, error) {
	var rec store.CallRecord
	var status string
	if err := row.Scan(&rec.ID, &rec.PeerID, &rec.DeviceID, &rec.Direction,
		&rec.MediaType, &status, &rec.EndReason, &rec.StartedAt,
		&rec.ConnectedAt, &rec.EndedAt); err != nil {
		return nil, err
	}
	rec.Status = store.CallStatus(status)
	return &rec, nil
}

// ==== RingStore implementation ====

// CreateRing inserts a new ring record. Inserting the same ring id again
// updates the timestamp only.
func (s *SQLiteStore) CreateRing(ctx context.Context, rec *store.RingRecord) error {
	query := `
		INSERT INTO group_rings (ring_id, group_id, sender_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ring_id) DO UPDATE SET updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.RingID, rec.GroupID, rec.SenderID, string(rec.Status),
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ring: %w", err)
	}
	return nil
}

// MarkRingCancelled moves the ring to cancelled.
func (s *SQLiteStore) MarkRingCancelled(ctx context.Context, ringID int64, at time.Time) error {
	query := `
		UPDATE group_rings
		SET status = ?, updated_at = ?
		WHERE ring_id = ?
	`
	_, err := s.db.ExecContext(ctx, query,
		string(store.RingStatusCancelled), at, ringID)
	if err != nil {
		return fmt.Errorf("update ring cancelled: %w", err)
	}
	return nil
}

// GetRing retrieves one ring record by id.
func (s *SQLiteStore) GetRing(ctx context.Context, ringID int64) (*store.RingRecord, error) {
	query := `
		SELECT ring_id, group_id, sender_id, status, created_at, updated_at
		FROM group_rings
		WHERE ring_id = ?
	`
	var rec store.RingRecord
	var status string
	err := s.db.QueryRowContext(ctx, query, ringID).Scan(
		&rec.RingID, &rec.GroupID, &rec.SenderID, &status,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select ring: %w", err)
	}
	rec.Status = store.RingStatus(status)
	return &rec, nil
}

var _ store.Store = (*SQLiteStore)(nil)
