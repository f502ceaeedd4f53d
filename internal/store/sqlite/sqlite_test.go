package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ringline/ringline-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCallLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	err := s.CreateCall(ctx, &store.CallRecord{
		ID:        "00000000000000a1",
		PeerID:    "alice",
		DeviceID:  3,
		Direction: "outgoing",
		MediaType: "video",
		StartedAt: started,
	})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}

	rec, err := s.GetCall(ctx, "00000000000000a1")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if rec.Status != store.CallStatusRinging {
		t.Fatalf("expected ringing, got %s", rec.Status)
	}
	if rec.PeerID != "alice" || rec.DeviceID != 3 || rec.Direction != "outgoing" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	connected := started.Add(2 * time.Second)
	if err := s.MarkCallConnected(ctx, rec.ID, connected); err != nil {
		t.Fatalf("mark connected: %v", err)
	}

	rec, err = s.GetCall(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if rec.Status != store.CallStatusConnected {
		t.Fatalf("expected connected, got %s", rec.Status)
	}
	if rec.ConnectedAt == nil {
		t.Fatal("expected connected_at to be set")
	}

	ended := connected.Add(30 * time.Second)
	if err := s.MarkCallEnded(ctx, rec.ID, "remote_hangup", ended); err != nil {
		t.Fatalf("mark ended: %v", err)
	}

	rec, err = s.GetCall(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if rec.Status != store.CallStatusEnded {
		t.Fatalf("expected ended, got %s", rec.Status)
	}
	if rec.EndReason == nil || *rec.EndReason != "remote_hangup" {
		t.Fatalf("unexpected end reason: %v", rec.EndReason)
	}
	if rec.EndedAt == nil {
		t.Fatal("expected ended_at to be set")
	}
}

func TestMarkConnectedAfterEndedIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateCall(ctx, &store.CallRecord{
		ID:        "00000000000000b2",
		PeerID:    "bob",
		Direction: "incoming",
		MediaType: "audio",
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	if err := s.MarkCallEnded(ctx, "00000000000000b2", "busy", time.Now().UTC()); err != nil {
		t.Fatalf("mark ended: %v", err)
	}
	// A late connect signal must not resurrect the record.
	if err := s.MarkCallConnected(ctx, "00000000000000b2", time.Now().UTC()); err != nil {
		t.Fatalf("mark connected: %v", err)
	}

	rec, err := s.GetCall(ctx, "00000000000000b2")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if rec.Status != store.CallStatusEnded {
		t.Fatalf("expected ended, got %s", rec.Status)
	}
}

func TestGetCallNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCall(context.Background(), "ffffffffffffffff")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRecentCalls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	ids := []string{"0000000000000001", "0000000000000002", "0000000000000003"}
	for i, id := range ids {
		err := s.CreateCall(ctx, &store.CallRecord{
			ID:        id,
			PeerID:    "peer",
			Direction: "outgoing",
			MediaType: "audio",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create call %s: %v", id, err)
		}
	}

	recs, err := s.ListRecentCalls(ctx, 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	// Newest first.
	if recs[0].ID != "0000000000000003" || recs[1].ID != "0000000000000002" {
		t.Fatalf("unexpected order: %s, %s", recs[0].ID, recs[1].ID)
	}
}

func TestRingLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	rec := &store.RingRecord{
		RingID:    -42,
		GroupID:   []byte{1, 2, 3},
		SenderID:  []byte{9, 9},
		Status:    store.RingStatusRinging,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateRing(ctx, rec); err != nil {
		t.Fatalf("create ring: %v", err)
	}

	// Re-insert with the same id must not fail and must not reset status.
	rec2 := *rec
	rec2.UpdatedAt = now.Add(time.Second)
	if err := s.CreateRing(ctx, &rec2); err != nil {
		t.Fatalf("re-create ring: %v", err)
	}

	if err := s.MarkRingCancelled(ctx, -42, now.Add(2*time.Second)); err != nil {
		t.Fatalf("cancel ring: %v", err)
	}

	got, err := s.GetRing(ctx, -42)
	if err != nil {
		t.Fatalf("get ring: %v", err)
	}
	if got.Status != store.RingStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if len(got.GroupID) != 3 {
		t.Fatalf("unexpected group id: %v", got.GroupID)
	}

	if _, err := s.GetRing(ctx, 7); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
