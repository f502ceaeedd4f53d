package core

import "time"

// CallMediaType tells the UI and media setup whether a call carries video.
// Set once at call creation; not renegotiated mid-call.
type CallMediaType int

const (
	MediaAudio CallMediaType = iota
	MediaVideo
)

func (t CallMediaType) String() string {
	switch t {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	}
	return "unknown"
}

// DataMode controls bandwidth adaptation. Mutable at any time during an
// active call or per group-call client.
type DataMode int

const (
	DataModeLow DataMode = iota
	DataModeNormal
	DataModeHigh
)

func (m DataMode) String() string {
	switch m {
	case DataModeLow:
		return "low"
	case DataModeNormal:
		return "normal"
	case DataModeHigh:
		return "high"
	}
	return "unknown"
}

// HangupType qualifies a terminal hangup signal for a 1:1 call.
type HangupType int

const (
	HangupNormal HangupType = iota
	HangupAccepted
	HangupDeclined
	HangupBusy
	HangupNeedPermission
)

func (t HangupType) String() string {
	switch t {
	case HangupNormal:
		return "normal"
	case HangupAccepted:
		return "accepted"
	case HangupDeclined:
		return "declined"
	case HangupBusy:
		return "busy"
	case HangupNeedPermission:
		return "need_permission"
	}
	return "unknown"
}

// Hangup carries the hangup type together with the device it originated on.
type Hangup struct {
	Type     HangupType
	DeviceID DeviceID
}

// CallState is the lifecycle state of the single 1:1 call session.
type CallState int

const (
	CallStateIdle CallState = iota
	CallStateProceeding
	CallStateConnecting
	CallStateReconnecting
	CallStateConnected
	CallStateTerminated
)

func (s CallState) String() string {
	switch s {
	case CallStateIdle:
		return "idle"
	case CallStateProceeding:
		return "proceeding"
	case CallStateConnecting:
		return "connecting"
	case CallStateReconnecting:
		return "reconnecting"
	case CallStateConnected:
		return "connected"
	case CallStateTerminated:
		return "terminated"
	}
	return "unknown"
}

func (s CallState) terminal() bool {
	return s == CallStateTerminated
}

// EndReason says why a session reached Terminated.
type EndReason int

const (
	EndReasonNone EndReason = iota
	EndReasonLocalHangup
	EndReasonRemoteHangup
	EndReasonBusy
	EndReasonSendFailure
	EndReasonReset
	EndReasonDropped
)

func (r EndReason) String() string {
	switch r {
	case EndReasonNone:
		return "none"
	case EndReasonLocalHangup:
		return "local_hangup"
	case EndReasonRemoteHangup:
		return "remote_hangup"
	case EndReasonBusy:
		return "busy"
	case EndReasonSendFailure:
		return "send_failure"
	case EndReasonReset:
		return "reset"
	case EndReasonDropped:
		return "dropped"
	}
	return "unknown"
}

// CallDirection distinguishes outgoing from incoming 1:1 sessions.
type CallDirection int

const (
	DirectionOutgoing CallDirection = iota
	DirectionIncoming
)

func (d CallDirection) String() string {
	switch d {
	case DirectionOutgoing:
		return "outgoing"
	case DirectionIncoming:
		return "incoming"
	}
	return "unknown"
}

// GroupClientState is the lifecycle state of one group-call client.
type GroupClientState int

const (
	GroupStateCreated GroupClientState = iota
	GroupStateConnecting
	GroupStateConnected
	GroupStateJoining
	GroupStateJoined
	GroupStateReconnecting
	GroupStateEnded
)

func (s GroupClientState) String() string {
	switch s {
	case GroupStateCreated:
		return "created"
	case GroupStateConnecting:
		return "connecting"
	case GroupStateConnected:
		return "connected"
	case GroupStateJoining:
		return "joining"
	case GroupStateJoined:
		return "joined"
	case GroupStateReconnecting:
		return "reconnecting"
	case GroupStateEnded:
		return "ended"
	}
	return "unknown"
}

// ModerationRole gates approve/deny/remove/block actions on a group client.
type ModerationRole int

const (
	RoleMember ModerationRole = iota
	RoleAdmin
)

// RingCancelReason explains why an outgoing group ring was cancelled.
type RingCancelReason int

const (
	RingCancelDeclinedByUser RingCancelReason = iota
	RingCancelBusy
)

// MediaHandles are opaque references to media-transport resources owned by
// the platform. The orchestrator stores and forwards them but never
// dereferences or destroys them.
type MediaHandles struct {
	FactoryRef    uint64
	AudioTrackRef uint64
	VideoTrackRef uint64
}

// IceCandidate is an opaque transport candidate received from one remote
// device. Candidates from the same device must be applied in arrival order.
type IceCandidate struct {
	DeviceID DeviceID
	Opaque   []byte
}

// VideoRequest expresses the rendered resolution the UI currently wants for
// one remote stream. A bandwidth-adaptive hint, not a delivery guarantee.
type VideoRequest struct {
	DemuxID DemuxID
	Width   uint16
	Height  uint16
}

// OfferParams carries a received 1:1 offer into the state machine.
type OfferParams struct {
	CallID              CallID
	Remote              string
	RemoteDevice        DeviceID
	Opaque              []byte
	MessageAge          time.Duration
	MediaType           CallMediaType
	LocalDevice         DeviceID
	LocalDevicePrimary  bool
	SenderIdentityKey   []byte
	ReceiverIdentityKey []byte
}

// AnswerParams carries a received 1:1 answer into the state machine.
type AnswerParams struct {
	CallID              CallID
	RemoteDevice        DeviceID
	Opaque              []byte
	SenderIdentityKey   []byte
	ReceiverIdentityKey []byte
}

// GroupCallParams configures a new group-call client bound to a group id.
type GroupCallParams struct {
	GroupID             []byte
	SFUURL              string
	HkdfExtraInfo       []byte
	AudioLevelsInterval time.Duration
	Handles             MediaHandles
}

// CallLinkCallParams configures a new client joining through a call link.
// A non-empty AdminPasskey grants the admin moderation role.
type CallLinkCallParams struct {
	SFUURL              string
	AuthPresentation    []byte
	RootKey             []byte
	AdminPasskey        []byte
	HkdfExtraInfo       []byte
	AudioLevelsInterval time.Duration
	Handles             MediaHandles
}

// CallLinkRestrictions controls who may join through a call link.
type CallLinkRestrictions int

const (
	RestrictionsNone CallLinkRestrictions = iota
	RestrictionsAdminApproval
)

// CallLinkState is the service-side state of a shareable call link.
type CallLinkState struct {
	Name         string               `json:"name"`
	Restrictions CallLinkRestrictions `json:"restrictions"`
	Revoked      bool                 `json:"revoked"`
	Expiration   int64                `json:"expiration"`
}

// PeekInfo summarizes an active (or absent) group call without joining it.
type PeekInfo struct {
	EraID        string   `json:"era_id"`
	Creator      string   `json:"creator"`
	DeviceCount  uint32   `json:"device_count"`
	MaxDevices   uint32   `json:"max_devices"`
	PendingUsers []string `json:"pending_users"`
}

// CredentialVerifier validates the opaque credential material that
// accompanies signaling. Buffers pass through uninterpreted; freshness and
// validity windows are the verifier's concern.
type CredentialVerifier interface {
	VerifyIdentityKeys(sender, receiver []byte) error
	VerifyMembershipProof(proof []byte) error
	VerifyCredentialPresentation(presentation []byte) error
}

// HTTPRequest is an outbound request the orchestrator hands to its HTTP
// collaborator. The collaborator performs the round trip off the caller's
// goroutine and reports back through ReceivedHTTPResponse or
// HTTPRequestFailed with the same request id.
type HTTPRequest struct {
	RequestID uint64
	Method    string
	URL       string
	Headers   map[string]string
	Body      []byte
}

// Requester sends HTTPRequests without blocking the caller. Timeouts are
// the requester's responsibility; the orchestrator only distinguishes
// completed, failed and pending.
type Requester interface {
	Send(req HTTPRequest)
}
