package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// CallID correlates every signaling message that belongs to one call
// attempt. It is assigned by the initiator and never reused while signaling
// for the attempt could still arrive.
type CallID uint64

func (id CallID) String() string {
	return fmt.Sprintf("0x%016x", uint64(id))
}

// DeviceID identifies one device of a user. A user may signal independently
// from several devices.
type DeviceID uint32

// DemuxID is the per-session numeric identity of a participant's media
// stream inside a group call. Distinct from ClientID.
type DemuxID uint32

// ClientID is an opaque handle for one active group-call client instance.
// The zero value is never handed out.
type ClientID uint64

// InvalidClientID is returned when client creation fails.
const InvalidClientID ClientID = 0

// RingID deduplicates and cancels group ring notifications. It is derived
// deterministically from the call era identifier.
type RingID int64

// RingIDFromEraID derives a RingID from an era identifier string. The
// derivation is a stable hash: identical era ids always map to the same
// RingID.
func RingIDFromEraID(eraID string) RingID {
	sum := sha256.Sum256([]byte(eraID))
	return RingID(binary.BigEndian.Uint64(sum[:8]))
}

// NewCallID returns a fresh random call id for an outgoing call attempt.
func NewCallID() CallID {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	id := binary.BigEndian.Uint64(buf[:])
	if id == 0 {
		id = 1
	}
	return CallID(id)
}

// NewRingID returns a fresh random ring id for an outgoing group ring.
func NewRingID() RingID {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return RingID(binary.BigEndian.Uint64(buf[:]))
}
