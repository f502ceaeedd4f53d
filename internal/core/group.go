package core

import "time"

type groupClientKind int

const (
	groupKindGroup groupClientKind = iota
	groupKindCallLink
)

// groupCallClient is one entry in the group-call client registry. Each is
// independent; the manager lock covers all of them.
type groupCallClient struct {
	id   ClientID
	kind groupClientKind

	groupID          []byte
	sfuURL           string
	rootKey          []byte
	authPresentation []byte
	adminPasskey     []byte
	hkdfExtraInfo    []byte
	audioLevels      time.Duration
	handles          MediaHandles

	state GroupClientState
	role  ModerationRole

	// Media adaptation and signaling flags, independent of lifecycle.
	audioMuted bool
	videoMuted bool
	dataMode   DataMode
	raisedHand bool

	members         []byte
	membershipProof []byte

	clientSecret []byte
	keyEpoch     uint32
	mediaSendKey []byte

	// joinEpoch invalidates in-flight join completions after a leave.
	joinEpoch uint32

	blocked       map[DemuxID]struct{}
	videoRequest  []VideoRequest
	speakerHeight uint16
}

// CreateGroupCallClient allocates a group-call client bound to a group id.
// Returns InvalidClientID plus a typed error on malformed input; it never
// panics.
func (m *Manager) CreateGroupCallClient(params GroupCallParams) (ClientID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return InvalidClientID, err
	}
	if len(params.GroupID) == 0 {
		return InvalidClientID, coreError(ErrCodeAllocationFailed, "group id is required")
	}
	if params.SFUURL == "" {
		return InvalidClientID, coreError(ErrCodeAllocationFailed, "sfu url is required")
	}

	c, err := m.newClientLocked(groupKindGroup, params.SFUURL, params.HkdfExtraInfo, params.AudioLevelsInterval, params.Handles)
	if err != nil {
		return InvalidClientID, err
	}
	c.groupID = append([]byte(nil), params.GroupID...)

	id := m.registry.insert(c)
	m.log.Info().
		Uint64("client_id", uint64(id)).
		Str("sfu_url", c.sfuURL).
		Msg("group call client created")
	m.emitGroupStateLocked(c)
	return id, nil
}

// CreateCallLinkCallClient allocates a client joining through a call link.
// A non-empty admin passkey grants the admin moderation role.
func (m *Manager) CreateCallLinkCallClient(params CallLinkCallParams) (ClientID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return InvalidClientID, err
	}
	if params.SFUURL == "" {
		return InvalidClientID, coreError(ErrCodeAllocationFailed, "sfu url is required")
	}
	if len(params.RootKey) == 0 {
		return InvalidClientID, coreError(ErrCodeAllocationFailed, "call link root key is required")
	}
	if err := m.verifier.VerifyCredentialPresentation(params.AuthPresentation); err != nil {
		return InvalidClientID, coreError(ErrCodeAllocationFailed, "auth presentation rejected")
	}

	c, err := m.newClientLocked(groupKindCallLink, params.SFUURL, params.HkdfExtraInfo, params.AudioLevelsInterval, params.Handles)
	if err != nil {
		return InvalidClientID, err
	}
	c.rootKey = append([]byte(nil), params.RootKey...)
	c.authPresentation = append([]byte(nil), params.AuthPresentation...)
	if len(params.AdminPasskey) > 0 {
		c.adminPasskey = append([]byte(nil), params.AdminPasskey...)
		c.role = RoleAdmin
	}

	id := m.registry.insert(c)
	m.log.Info().
		Uint64("client_id", uint64(id)).
		Str("sfu_url", c.sfuURL).
		Bool("admin", c.role == RoleAdmin).
		Msg("call link call client created")
	m.emitGroupStateLocked(c)
	return id, nil
}

func (m *Manager) newClientLocked(kind groupClientKind, sfuURL string, extraInfo []byte, audioLevels time.Duration, handles MediaHandles) (*groupCallClient, *CoreError) {
	secret, err := newClientSecret()
	if err != nil {
		return nil, coreError(ErrCodeAllocationFailed, "client secret generation failed")
	}
	if audioLevels < 0 {
		audioLevels = 0
	}
	return &groupCallClient{
		kind:          kind,
		sfuURL:        sfuURL,
		hkdfExtraInfo: append([]byte(nil), extraInfo...),
		audioLevels:   audioLevels,
		handles:       handles,
		state:         GroupStateCreated,
		audioMuted:    true,
		videoMuted:    true,
		dataMode:      DataModeNormal,
		clientSecret:  secret,
		blocked:       make(map[DemuxID]struct{}),
	}, nil
}

// Connect binds the client to the SFU. Created -> Connecting -> Connected;
// both transitions are observable in order.
func (m *Manager) Connect(id ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	if c.state != GroupStateCreated {
		return coreError(ErrCodeInvalidState, "connect requires state created")
	}
	c.state = GroupStateConnecting
	m.emitGroupStateLocked(c)
	c.state = GroupStateConnected
	m.emitGroupStateLocked(c)
	return nil
}

// Join enters the call. Requires having reached Connected.
func (m *Manager) Join(id ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	if c.state != GroupStateConnected {
		return coreError(ErrCodeInvalidState, "join requires state connected")
	}
	c.state = GroupStateJoining
	m.emitGroupStateLocked(c)
	c.state = GroupStateJoined
	m.emitGroupStateLocked(c)
	return nil
}

// Leave exits the call but keeps the SFU connection. In-flight completions
// for the abandoned join attempt are discarded on arrival.
func (m *Manager) Leave(id ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	switch c.state {
	case GroupStateJoining, GroupStateJoined, GroupStateReconnecting:
		c.joinEpoch++
		c.state = GroupStateConnected
		m.emitGroupStateLocked(c)
		return nil
	default:
		return coreError(ErrCodeInvalidState, "leave requires a joined or joining client")
	}
}

// Disconnect tears the client down. Terminal for the lifecycle; only a
// Disconnected (Ended) client may be deleted.
func (m *Manager) Disconnect(id ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	if c.state == GroupStateEnded {
		return coreError(ErrCodeInvalidState, "client already ended")
	}
	c.joinEpoch++
	c.state = GroupStateEnded
	m.emitGroupStateLocked(c)
	return nil
}

// GroupConnectionInterrupted moves a joined client to Reconnecting.
func (m *Manager) GroupConnectionInterrupted(id ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	if c.state != GroupStateJoined {
		return nil
	}
	c.state = GroupStateReconnecting
	m.emitGroupStateLocked(c)
	return nil
}

// GroupConnectionRecovered returns a reconnecting client to Joined.
func (m *Manager) GroupConnectionRecovered(id ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	if c.state != GroupStateReconnecting {
		return nil
	}
	c.state = GroupStateJoined
	m.emitGroupStateLocked(c)
	return nil
}

// SetOutgoingAudioMuted applies immediately, independent of lifecycle state.
func (m *Manager) SetOutgoingAudioMuted(id ClientID, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	c.audioMuted = muted
	return nil
}

// SetOutgoingVideoMuted applies immediately, independent of lifecycle state.
func (m *Manager) SetOutgoingVideoMuted(id ClientID, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	c.videoMuted = muted
	return nil
}

// SetGroupDataMode applies immediately, independent of lifecycle state.
func (m *Manager) SetGroupDataMode(id ClientID, mode DataMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	c.dataMode = mode
	return nil
}

// RequestVideo records the UI's current rendering demand so the media
// collaborator can pick which remote sources to request at which
// resolution.
func (m *Manager) RequestVideo(id ClientID, resolutions []VideoRequest, activeSpeakerHeight uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	c.videoRequest = append([]VideoRequest(nil), resolutions...)
	c.speakerHeight = activeSpeakerHeight
	return nil
}

// ResendMediaKeys rotates the outgoing media key and announces a fresh
// distribution round. Used after membership changes to re-secure media.
func (m *Manager) ResendMediaKeys(id ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	c.keyEpoch++
	key, derr := deriveMediaSendKey(c.clientSecret, c.hkdfExtraInfo, c.keyEpoch)
	if derr != nil {
		c.keyEpoch--
		return derr
	}
	c.mediaSendKey = key
	m.emit(Event{Kind: EventMediaKeysResent, ClientID: c.id, KeyEpoch: c.keyEpoch})
	return nil
}

// GroupRing asks the SFU to ring the group, or a single recipient when one
// is given. Requires the client to be in the call.
func (m *Manager) GroupRing(id ClientID, recipient []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	if c.state != GroupStateJoined {
		return coreError(ErrCodeInvalidState, "ring requires a joined client")
	}
	m.emit(Event{
		Kind:     EventGroupRing,
		ClientID: c.id,
		GroupID:  append([]byte(nil), c.groupID...),
		RingID:   NewRingID(),
		Sender:   append([]byte(nil), m.selfUUID...),
		UserID:   append([]byte(nil), recipient...),
	})
	return nil
}

// CancelGroupRing revokes an earlier group ring, identified by its RingID.
func (m *Manager) CancelGroupRing(groupID []byte, ringID RingID, reason RingCancelReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	m.emit(Event{
		Kind:    EventGroupRingCancelled,
		GroupID: append([]byte(nil), groupID...),
		RingID:  ringID,
		Value:   reasonString(reason),
	})
	return nil
}

func reasonString(reason RingCancelReason) string {
	switch reason {
	case RingCancelDeclinedByUser:
		return "declined"
	case RingCancelBusy:
		return "busy"
	}
	return "unknown"
}

// ReceivedCallMessage routes an opaque out-of-band call message (ring
// requests and cancellations travel this way) to the observer.
func (m *Manager) ReceivedCallMessage(senderUUID []byte, senderDevice, localDevice DeviceID, message []byte, messageAge time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	stale := m.cfg.MaxOfferAge > 0 && messageAge > m.cfg.MaxOfferAge
	m.emit(Event{
		Kind:       EventCallMessage,
		Sender:     append([]byte(nil), senderUUID...),
		DeviceID:   senderDevice,
		Message:    append([]byte(nil), message...),
		StaleOffer: stale,
	})
	return nil
}

// ApproveUser admits a pending user. Admin role required.
func (m *Manager) ApproveUser(id ClientID, otherUserID []byte) error {
	return m.moderate(id, EventUserApproved, otherUserID, 0)
}

// DenyUser rejects a pending user. Admin role required.
func (m *Manager) DenyUser(id ClientID, otherUserID []byte) error {
	return m.moderate(id, EventUserDenied, otherUserID, 0)
}

// RemoveClient removes a participant identified by demux id. Admin role
// required.
func (m *Manager) RemoveClient(id ClientID, otherDemuxID DemuxID) error {
	return m.moderate(id, EventClientRemoved, nil, otherDemuxID)
}

// BlockClient removes and blacklists a participant identified by demux id.
// Admin role required.
func (m *Manager) BlockClient(id ClientID, otherDemuxID DemuxID) error {
	return m.moderate(id, EventClientBlocked, nil, otherDemuxID)
}

func (m *Manager) moderate(id ClientID, kind EventKind, userID []byte, demuxID DemuxID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	if c.role != RoleAdmin {
		return coreError(ErrCodePermissionDenied, "moderation requires the admin role")
	}
	if kind == EventClientBlocked {
		c.blocked[demuxID] = struct{}{}
	}
	m.emit(Event{
		Kind:     kind,
		ClientID: c.id,
		UserID:   append([]byte(nil), userID...),
		DemuxID:  demuxID,
	})
	return nil
}

// SetGroupMembers replaces the serialized membership set used to validate
// who may join.
func (m *Manager) SetGroupMembers(id ClientID, serializedMembers []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	c.members = append([]byte(nil), serializedMembers...)
	return nil
}

// SetMembershipProof installs a fresh membership proof. Validity windows
// are enforced by the credential collaborator, not here.
func (m *Manager) SetMembershipProof(id ClientID, proof []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	if verr := m.verifier.VerifyMembershipProof(proof); verr != nil {
		return coreError(ErrCodePermissionDenied, "membership proof rejected")
	}
	c.membershipProof = append([]byte(nil), proof...)
	return nil
}

// React broadcasts a lightweight reaction. No state machine impact.
func (m *Manager) React(id ClientID, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	m.emit(Event{Kind: EventReaction, ClientID: c.id, Value: value})
	return nil
}

// RaiseHand toggles the raised-hand flag and broadcasts the change.
func (m *Manager) RaiseHand(id ClientID, raised bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	c.raisedHand = raised
	m.emit(Event{Kind: EventRaisedHand, ClientID: c.id, Raised: raised})
	return nil
}

// DeleteGroupCallClient frees the ClientID. Only valid once the client has
// reached Ended; the id never resolves again.
func (m *Manager) DeleteGroupCallClient(id ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return err
	}
	if c.state != GroupStateEnded {
		return coreError(ErrCodeInvalidState, "delete requires state ended")
	}
	// Borrowed media handles are released by reference only.
	c.handles = MediaHandles{}
	if rerr := m.registry.remove(id); rerr != nil {
		return rerr
	}
	m.log.Info().Uint64("client_id", uint64(id)).Msg("group call client deleted")
	return nil
}

// GroupClientInfo is a read-only snapshot of one group-call client.
type GroupClientInfo struct {
	ClientID            ClientID
	State               GroupClientState
	Role                ModerationRole
	AudioMuted          bool
	VideoMuted          bool
	DataMode            DataMode
	RaisedHand          bool
	KeyEpoch            uint32
	BlockedDemuxIDs     []DemuxID
	VideoRequest        []VideoRequest
	ActiveSpeakerHeight uint16
	SFUURL              string
}

// GroupClientSnapshot returns a copy of the client's observable state.
func (m *Manager) GroupClientSnapshot(id ClientID) (GroupClientInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.resolveLocked(id)
	if err != nil {
		return GroupClientInfo{}, err
	}
	info := GroupClientInfo{
		ClientID:            c.id,
		State:               c.state,
		Role:                c.role,
		AudioMuted:          c.audioMuted,
		VideoMuted:          c.videoMuted,
		DataMode:            c.dataMode,
		RaisedHand:          c.raisedHand,
		KeyEpoch:            c.keyEpoch,
		VideoRequest:        append([]VideoRequest(nil), c.videoRequest...),
		ActiveSpeakerHeight: c.speakerHeight,
		SFUURL:              c.sfuURL,
	}
	for demux := range c.blocked {
		info.BlockedDemuxIDs = append(info.BlockedDemuxIDs, demux)
	}
	return info, nil
}

func (m *Manager) resolveLocked(id ClientID) (*groupCallClient, error) {
	if err := m.checkOpenLocked(); err != nil {
		return nil, err
	}
	c, err := m.registry.resolve(id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (m *Manager) emitGroupStateLocked(c *groupCallClient) {
	m.emit(Event{
		Kind:       EventGroupStateChanged,
		ClientID:   c.id,
		GroupState: c.state,
		GroupID:    append([]byte(nil), c.groupID...),
	})
}
