package core

import (
	"errors"
	"testing"
)

func groupParams() GroupCallParams {
	return GroupCallParams{
		GroupID: []byte("group-1"),
		SFUURL:  "https://sfu.example.org",
		Handles: MediaHandles{FactoryRef: 10, AudioTrackRef: 11, VideoTrackRef: 12},
	}
}

func linkParams(adminPasskey []byte) CallLinkCallParams {
	return CallLinkCallParams{
		SFUURL:           "https://sfu.example.org",
		AuthPresentation: []byte("presentation"),
		RootKey:          []byte("root-key"),
		AdminPasskey:     adminPasskey,
	}
}

func TestGroupClientLifecycle(t *testing.T) {
	m, sink, _ := newTestManager(t)

	id, err := m.CreateGroupCallClient(groupParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == InvalidClientID {
		t.Fatalf("expected a valid client id")
	}
	mustGroupState(t, sink.ch, GroupStateCreated)

	// Join before connect is out of order.
	if err := m.Join(id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("join before connect should fail, got %v", err)
	}

	if err := m.Connect(id); err != nil {
		t.Fatalf("connect: %v", err)
	}
	mustGroupState(t, sink.ch, GroupStateConnecting)
	mustGroupState(t, sink.ch, GroupStateConnected)

	if err := m.Join(id); err != nil {
		t.Fatalf("join: %v", err)
	}
	mustGroupState(t, sink.ch, GroupStateJoining)
	mustGroupState(t, sink.ch, GroupStateJoined)

	if err := m.Leave(id); err != nil {
		t.Fatalf("leave: %v", err)
	}
	mustGroupState(t, sink.ch, GroupStateConnected)

	if err := m.Disconnect(id); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	mustGroupState(t, sink.ch, GroupStateEnded)
}

func TestGroupClientCreationValidation(t *testing.T) {
	m, _, _ := newTestManager(t)

	tests := []struct {
		name   string
		params GroupCallParams
	}{
		{"missing group id", GroupCallParams{SFUURL: "https://sfu.example.org"}},
		{"missing sfu url", GroupCallParams{GroupID: []byte("g")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := m.CreateGroupCallClient(tt.params)
			if id != InvalidClientID {
				t.Fatalf("expected invalid client id, got %v", id)
			}
			if !errors.Is(err, ErrAllocationFailed) {
				t.Fatalf("expected allocation_failed, got %v", err)
			}
		})
	}
}

func TestDeleteRequiresEnded(t *testing.T) {
	m, _, _ := newTestManager(t)

	id, err := m.CreateGroupCallClient(groupParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.DeleteGroupCallClient(id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("delete before ended should fail, got %v", err)
	}

	if err := m.Connect(id); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := m.Disconnect(id); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := m.DeleteGroupCallClient(id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// The handle must never resolve again.
	if err := m.Connect(id); !errors.Is(err, ErrUnknownClient) {
		t.Fatalf("deleted id should be unknown, got %v", err)
	}
	if _, err := m.GroupClientSnapshot(id); !errors.Is(err, ErrUnknownClient) {
		t.Fatalf("deleted id should be unknown, got %v", err)
	}
}

func TestDeletedSlotReuseRejectsStaleHandle(t *testing.T) {
	m, _, _ := newTestManager(t)

	first, err := m.CreateGroupCallClient(groupParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Connect(first); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := m.Disconnect(first); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := m.DeleteGroupCallClient(first); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Reuses the freed slot under a new generation.
	second, err := m.CreateGroupCallClient(groupParams())
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second == first {
		t.Fatalf("reused handle must differ from the deleted one")
	}
	if err := m.Connect(first); !errors.Is(err, ErrUnknownClient) {
		t.Fatalf("stale handle resolved after slot reuse: %v", err)
	}
	if err := m.Connect(second); err != nil {
		t.Fatalf("fresh handle should resolve: %v", err)
	}
}

func TestMuteAndDataModeIndependentOfLifecycle(t *testing.T) {
	m, _, _ := newTestManager(t)

	id, err := m.CreateGroupCallClient(groupParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Still in Created; setters apply immediately.
	if err := m.SetOutgoingAudioMuted(id, false); err != nil {
		t.Fatalf("audio mute: %v", err)
	}
	if err := m.SetOutgoingVideoMuted(id, false); err != nil {
		t.Fatalf("video mute: %v", err)
	}
	if err := m.SetGroupDataMode(id, DataModeHigh); err != nil {
		t.Fatalf("data mode: %v", err)
	}

	info, err := m.GroupClientSnapshot(id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if info.AudioMuted || info.VideoMuted || info.DataMode != DataModeHigh {
		t.Fatalf("setters not applied: %+v", info)
	}
	if info.State != GroupStateCreated {
		t.Fatalf("setters must not change lifecycle state: %v", info.State)
	}
}

func TestModerationRequiresAdminRole(t *testing.T) {
	m, sink, _ := newTestManager(t)

	member, err := m.CreateCallLinkCallClient(linkParams(nil))
	if err != nil {
		t.Fatalf("create member client: %v", err)
	}
	if err := m.ApproveUser(member, []byte("user-a")); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("member approve should fail, got %v", err)
	}
	if err := m.RemoveClient(member, 42); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("member remove should fail, got %v", err)
	}

	admin, err := m.CreateCallLinkCallClient(linkParams([]byte("passkey")))
	if err != nil {
		t.Fatalf("create admin client: %v", err)
	}
	if err := m.ApproveUser(admin, []byte("user-a")); err != nil {
		t.Fatalf("admin approve: %v", err)
	}
	approved := mustEvent(t, sink.ch, EventUserApproved)
	if string(approved.UserID) != "user-a" {
		t.Fatalf("unexpected approved user: %q", approved.UserID)
	}

	if err := m.DenyUser(admin, []byte("user-b")); err != nil {
		t.Fatalf("admin deny: %v", err)
	}
	mustEvent(t, sink.ch, EventUserDenied)

	if err := m.BlockClient(admin, 42); err != nil {
		t.Fatalf("admin block: %v", err)
	}
	blocked := mustEvent(t, sink.ch, EventClientBlocked)
	if blocked.DemuxID != 42 {
		t.Fatalf("unexpected demux id: %v", blocked.DemuxID)
	}
	info, err := m.GroupClientSnapshot(admin)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(info.BlockedDemuxIDs) != 1 || info.BlockedDemuxIDs[0] != 42 {
		t.Fatalf("block list not updated: %+v", info.BlockedDemuxIDs)
	}
}

func TestReactAndRaiseHand(t *testing.T) {
	m, sink, _ := newTestManager(t)

	id, err := m.CreateGroupCallClient(groupParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.React(id, "🎉"); err != nil {
		t.Fatalf("react: %v", err)
	}
	ev := mustEvent(t, sink.ch, EventReaction)
	if ev.Value != "🎉" {
		t.Fatalf("unexpected reaction value: %q", ev.Value)
	}

	if err := m.RaiseHand(id, true); err != nil {
		t.Fatalf("raise hand: %v", err)
	}
	up := mustEvent(t, sink.ch, EventRaisedHand)
	if !up.Raised {
		t.Fatalf("expected raised=true")
	}
	info, _ := m.GroupClientSnapshot(id)
	if !info.RaisedHand {
		t.Fatalf("raised-hand flag not stored")
	}
}

func TestResendMediaKeysRotatesEpoch(t *testing.T) {
	m, sink, _ := newTestManager(t)

	id, err := m.CreateGroupCallClient(groupParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.ResendMediaKeys(id); err != nil {
		t.Fatalf("resend: %v", err)
	}
	first := mustEvent(t, sink.ch, EventMediaKeysResent)
	if first.KeyEpoch != 1 {
		t.Fatalf("expected epoch 1, got %d", first.KeyEpoch)
	}
	if err := m.ResendMediaKeys(id); err != nil {
		t.Fatalf("resend: %v", err)
	}
	second := mustEvent(t, sink.ch, EventMediaKeysResent)
	if second.KeyEpoch != 2 {
		t.Fatalf("expected epoch 2, got %d", second.KeyEpoch)
	}
}

func TestGroupRingRequiresJoined(t *testing.T) {
	m, sink, _ := newTestManager(t)
	m.SetSelfUUID([]byte("self"))

	id, err := m.CreateGroupCallClient(groupParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.GroupRing(id, nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("ring before joined should fail, got %v", err)
	}

	if err := m.Connect(id); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := m.Join(id); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := m.GroupRing(id, nil); err != nil {
		t.Fatalf("ring: %v", err)
	}
	ev := mustEvent(t, sink.ch, EventGroupRing)
	if string(ev.Sender) != "self" || ev.RingID == 0 {
		t.Fatalf("unexpected ring event: %+v", ev)
	}
}

func TestCancelGroupRing(t *testing.T) {
	m, sink, _ := newTestManager(t)

	ringID := RingIDFromEraID("era-7")
	if err := m.CancelGroupRing([]byte("group-1"), ringID, RingCancelDeclinedByUser); err != nil {
		t.Fatalf("cancel ring: %v", err)
	}
	ev := mustEvent(t, sink.ch, EventGroupRingCancelled)
	if ev.RingID != ringID || ev.Value != "declined" {
		t.Fatalf("unexpected cancel event: %+v", ev)
	}
}

func TestLeaveBumpsJoinEpoch(t *testing.T) {
	m, _, _ := newTestManager(t)

	id, err := m.CreateGroupCallClient(groupParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Leave(id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("leave before join should fail, got %v", err)
	}
	if err := m.Connect(id); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := m.Join(id); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := m.Leave(id); err != nil {
		t.Fatalf("leave: %v", err)
	}
	info, err := m.GroupClientSnapshot(id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if info.State != GroupStateConnected {
		t.Fatalf("leave should return the client to connected, got %v", info.State)
	}
}
