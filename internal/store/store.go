package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// CallStatus defines the recorded state of a call.
type CallStatus string

const (
	CallStatusRinging   CallStatus = "ringing"
	CallStatusConnected CallStatus = "connected"
	CallStatusEnded     CallStatus = "ended"
)

// CallRecord is one row in the call detail log. It mirrors the lifecycle
// of a 1:1 session: created when the offer goes out (or comes in), stamped
// when media connects, and closed with the end reason.
type CallRecord struct {
	ID          string // hex call id
	PeerID      string
	DeviceID    uint32
	Direction   string // "outgoing" or "incoming"
	MediaType   string // "audio" or "video"
	Status      CallStatus
	EndReason   *string
	StartedAt   time.Time
	ConnectedAt *time.Time
	EndedAt     *time.Time
}

// RingStatus defines the recorded state of a group ring.
type RingStatus string

const (
	RingStatusRinging   RingStatus = "ringing"
	RingStatusCancelled RingStatus = "cancelled"
)

// RingRecord is one row in the group ring log.
type RingRecord struct {
	RingID    int64
	GroupID   []byte
	SenderID  []byte
	Status    RingStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CallStore persists call detail records.
type CallStore interface {
	// CreateCall inserts a new call record with status ringing.
	CreateCall(ctx context.Context, rec *CallRecord) error

	// MarkCallConnected stamps the connect time and moves the record
	// to connected. No-op if the call is already ended.
	MarkCallConnected(ctx context.Context, id string, at time.Time) error

	// MarkCallEnded closes the record with the given reason.
	MarkCallEnded(ctx context.Context, id, reason string, at time.Time) error

	// GetCall retrieves one call record. Returns ErrNotFound when absent.
	GetCall(ctx context.Context, id string) (*CallRecord, error)

	// ListRecentCalls returns the newest records, most recent first.
	ListRecentCalls(ctx context.Context, limit int) ([]*CallRecord, error)
}

// RingStore persists group ring records.
type RingStore interface {
	// CreateRing inserts a new ring record with status ringing. Inserting
	// the same ring id again updates the timestamp only.
	CreateRing(ctx context.Context, rec *RingRecord) error

	// MarkRingCancelled moves the ring to cancelled.
	MarkRingCancelled(ctx context.Context, ringID int64, at time.Time) error

	// GetRing retrieves one ring record. Returns ErrNotFound when absent.
	GetRing(ctx context.Context, ringID int64) (*RingRecord, error)
}

// Store combines all persistence interfaces.
type Store interface {
	CallStore
	RingStore

	// Close releases underlying resources.
	Close() error
}
