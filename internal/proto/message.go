package proto

import "encoding/json"

// Inbound is the envelope for signaling commands coming from the client.
// Byte fields are base64 in transit (encoding/json default for []byte).
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	// 1:1 session commands.
	InboundTypeCall          = "call"
	InboundTypeProceed       = "proceed"
	InboundTypeAccept        = "accept"
	InboundTypeHangup        = "hangup"
	InboundTypeDrop          = "drop"
	InboundTypeReset         = "reset"
	InboundTypeSetVideo      = "set_video"
	InboundTypeSetDataMode   = "set_data_mode"
	InboundTypeOffer         = "received_offer"
	InboundTypeAnswer        = "received_answer"
	InboundTypeICE           = "received_ice"
	InboundTypeRemoteHangup  = "received_hangup"
	InboundTypeBusy          = "received_busy"
	InboundTypeMessageSent   = "message_sent"
	InboundTypeMessageFailed = "message_send_failure"
	InboundTypeInterrupted   = "connection_interrupted"
	InboundTypeRecovered     = "connection_recovered"

	// Group-call client commands.
	InboundTypeGroupCreate     = "group_create"
	InboundTypeLinkCreate      = "call_link_client_create"
	InboundTypeGroupConnect    = "group_connect"
	InboundTypeGroupJoin       = "group_join"
	InboundTypeGroupLeave      = "group_leave"
	InboundTypeGroupDisconnect = "group_disconnect"
	InboundTypeGroupDelete     = "group_delete"
	InboundTypeSetAudioMute    = "set_audio_mute"
	InboundTypeSetVideoMute    = "set_video_mute"
	InboundTypeRequestVideo    = "request_video"
	InboundTypeResendKeys      = "resend_media_keys"
	InboundTypeReact           = "react"
	InboundTypeRaiseHand       = "raise_hand"
	InboundTypeApproveUser     = "approve_user"
	InboundTypeDenyUser        = "deny_user"
	InboundTypeRemoveClient    = "remove_client"
	InboundTypeBlockClient     = "block_client"
	InboundTypeGroupRing       = "group_ring"
	InboundTypeCancelRing      = "cancel_group_ring"
	InboundTypeSetMembers      = "set_group_members"
	InboundTypeSetProof        = "set_membership_proof"
	InboundTypeCallMessage     = "received_call_message"
	InboundTypeSetSelfUUID     = "set_self_uuid"

	OutboundTypeEvent = "event"
	OutboundTypeReply = "reply"
	OutboundTypeError = "error"
)

// CallData starts an outgoing 1:1 call.
type CallData struct {
	Remote      string `json:"remote"`
	MediaType   string `json:"media_type"`
	LocalDevice uint32 `json:"local_device"`
}

// ProceedData confirms call setup after the platform prepared media.
type ProceedData struct {
	CallID                string `json:"call_id"`
	DataMode              string `json:"data_mode"`
	AudioLevelsIntervalMs int64  `json:"audio_levels_interval_ms,omitempty"`
}

// AcceptData answers an incoming call.
type AcceptData struct {
	CallID string `json:"call_id"`
}

// SetVideoData toggles local video for the active call.
type SetVideoData struct {
	Enable bool `json:"enable"`
}

// SetDataModeData changes bandwidth mode for the active call.
type SetDataModeData struct {
	DataMode string `json:"data_mode"`
}

// OfferData is a relayed remote offer.
type OfferData struct {
	CallID              string `json:"call_id"`
	Remote              string `json:"remote"`
	RemoteDevice        uint32 `json:"remote_device"`
	Opaque              []byte `json:"opaque"`
	MessageAgeMs        int64  `json:"message_age_ms"`
	MediaType           string `json:"media_type"`
	LocalDevice         uint32 `json:"local_device"`
	LocalDevicePrimary  bool   `json:"local_device_primary"`
	SenderIdentityKey   []byte `json:"sender_identity_key"`
	ReceiverIdentityKey []byte `json:"receiver_identity_key"`
}

// AnswerData is a relayed remote answer.
type AnswerData struct {
	CallID              string `json:"call_id"`
	RemoteDevice        uint32 `json:"remote_device"`
	Opaque              []byte `json:"opaque"`
	SenderIdentityKey   []byte `json:"sender_identity_key"`
	ReceiverIdentityKey []byte `json:"receiver_identity_key"`
}

// ICEData is a batch of relayed remote candidates from one device.
type ICEData struct {
	CallID       string   `json:"call_id"`
	RemoteDevice uint32   `json:"remote_device"`
	Candidates   [][]byte `json:"candidates"`
}

// RemoteHangupData is a relayed remote hangup.
type RemoteHangupData struct {
	CallID       string `json:"call_id"`
	RemoteDevice uint32 `json:"remote_device"`
	HangupType   string `json:"hangup_type"`
	OriginDevice uint32 `json:"origin_device,omitempty"`
}

// BusyData is a relayed remote busy signal.
type BusyData struct {
	CallID       string `json:"call_id"`
	RemoteDevice uint32 `json:"remote_device"`
}

// MessageStatusData acknowledges or fails an outbound signaling message.
type MessageStatusData struct {
	CallID string `json:"call_id"`
}

// ConnectionData reports a media transport interruption or recovery.
type ConnectionData struct {
	CallID string `json:"call_id"`
}

// GroupCreateData creates a group-call client bound to a group id.
type GroupCreateData struct {
	GroupID               []byte `json:"group_id"`
	SFUURL                string `json:"sfu_url,omitempty"`
	HkdfExtraInfo         []byte `json:"hkdf_extra_info,omitempty"`
	AudioLevelsIntervalMs int64  `json:"audio_levels_interval_ms,omitempty"`
}

// LinkCreateData creates a group-call client joining through a call link.
type LinkCreateData struct {
	SFUURL                string `json:"sfu_url,omitempty"`
	AuthPresentation      []byte `json:"auth_presentation"`
	RootKey               []byte `json:"root_key"`
	AdminPasskey          []byte `json:"admin_passkey,omitempty"`
	HkdfExtraInfo         []byte `json:"hkdf_extra_info,omitempty"`
	AudioLevelsIntervalMs int64  `json:"audio_levels_interval_ms,omitempty"`
}

// ClientData addresses one group-call client.
type ClientData struct {
	ClientID uint64 `json:"client_id"`
}

// MuteData toggles outgoing audio or video for one client.
type MuteData struct {
	ClientID uint64 `json:"client_id"`
	Muted    bool   `json:"muted"`
}

// VideoRequestData asks for specific remote resolutions.
type VideoRequestData struct {
	ClientID            uint64            `json:"client_id"`
	Resolutions         []VideoResolution `json:"resolutions"`
	ActiveSpeakerHeight uint16            `json:"active_speaker_height,omitempty"`
}

// VideoResolution is the wanted rendered size for one remote stream.
type VideoResolution struct {
	DemuxID uint32 `json:"demux_id"`
	Width   uint16 `json:"width"`
	Height  uint16 `json:"height"`
}

// ReactData broadcasts a reaction string.
type ReactData struct {
	ClientID uint64 `json:"client_id"`
	Value    string `json:"value"`
}

// RaiseHandData toggles the raised-hand flag.
type RaiseHandData struct {
	ClientID uint64 `json:"client_id"`
	Raised   bool   `json:"raised"`
}

// ModerationData targets a user or participant for an admin action.
type ModerationData struct {
	ClientID uint64 `json:"client_id"`
	UserID   []byte `json:"user_id,omitempty"`
	DemuxID  uint32 `json:"demux_id,omitempty"`
}

// GroupRingData rings members of the client's group.
type GroupRingData struct {
	ClientID  uint64 `json:"client_id"`
	Recipient []byte `json:"recipient,omitempty"`
}

// CancelRingData revokes an outstanding group ring.
type CancelRingData struct {
	GroupID []byte `json:"group_id"`
	RingID  int64  `json:"ring_id"`
	Reason  string `json:"reason"`
}

// MembersData replaces the serialized member list for one client.
type MembersData struct {
	ClientID uint64 `json:"client_id"`
	Members  []byte `json:"members"`
}

// ProofData replaces the membership proof for one client.
type ProofData struct {
	ClientID uint64 `json:"client_id"`
	Proof    []byte `json:"proof"`
}

// CallMessageData is an out-of-band call message from another user.
type CallMessageData struct {
	SenderUUID   []byte `json:"sender_uuid"`
	SenderDevice uint32 `json:"sender_device"`
	LocalDevice  uint32 `json:"local_device"`
	Message      []byte `json:"message"`
	MessageAgeMs int64  `json:"message_age_ms"`
}

// SelfUUIDData sets the local user identity.
type SelfUUIDData struct {
	UUID []byte `json:"uuid"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventCallState reports a 1:1 lifecycle transition.
type EventCallState struct {
	CallID    string `json:"call_id"`
	State     string `json:"state"`
	EndReason string `json:"end_reason,omitempty"`
	Hangup    string `json:"hangup,omitempty"`
}

// EventOutgoingCall asks the platform to send an offer.
type EventOutgoingCall struct {
	CallID      string `json:"call_id"`
	Remote      string `json:"remote"`
	MediaType   string `json:"media_type"`
	LocalDevice uint32 `json:"local_device"`
}

// EventIncomingCall announces a received offer.
type EventIncomingCall struct {
	CallID       string `json:"call_id"`
	Remote       string `json:"remote"`
	RemoteDevice uint32 `json:"remote_device"`
	MediaType    string `json:"media_type"`
	StaleOffer   bool   `json:"stale_offer,omitempty"`
}

// EventRemoteICE delivers buffered candidates ready to apply.
type EventRemoteICE struct {
	CallID     string   `json:"call_id"`
	Candidates [][]byte `json:"candidates"`
}

// EventGroupState reports a group-client lifecycle transition.
type EventGroupState struct {
	ClientID uint64 `json:"client_id"`
	State    string `json:"state"`
}

// EventGroupRing asks the platform to ring group members.
type EventGroupRing struct {
	ClientID  uint64 `json:"client_id,omitempty"`
	GroupID   []byte `json:"group_id"`
	RingID    int64  `json:"ring_id"`
	Sender    []byte `json:"sender,omitempty"`
	Recipient []byte `json:"recipient,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// EventParticipant reports a reaction, raised hand, or moderation result.
type EventParticipant struct {
	ClientID uint64 `json:"client_id"`
	UserID   []byte `json:"user_id,omitempty"`
	DemuxID  uint32 `json:"demux_id,omitempty"`
	Value    string `json:"value,omitempty"`
	Raised   bool   `json:"raised,omitempty"`
	KeyEpoch uint32 `json:"key_epoch,omitempty"`
}

// EventCallMessage delivers an out-of-band call message.
type EventCallMessage struct {
	Sender       []byte `json:"sender"`
	SenderDevice uint32 `json:"sender_device"`
	Message      []byte `json:"message"`
}

// EventRequestDone resolves a correlated call-link or peek request.
type EventRequestDone struct {
	RequestID  uint64 `json:"request_id"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Peek       any    `json:"peek,omitempty"`
	Link       any    `json:"link,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
