package core

import "time"

// callSession is the singular 1:1 call context. At most one exists per
// manager; a new one may only replace a session that reached Terminated.
type callSession struct {
	callID       CallID
	remote       string
	remoteDevice DeviceID
	localDevice  DeviceID
	direction    CallDirection
	mediaType    CallMediaType

	state        CallState
	dataMode     DataMode
	audioLevels  time.Duration
	videoEnabled bool

	// Candidates that arrived before Connecting, in arrival order. A single
	// slice keeps per-device order; cross-device order carries no meaning.
	pendingICE []IceCandidate

	// Answer received while still Proceeding; applied right after proceed.
	pendingAnswer *AnswerParams

	endReason    EndReason
	remoteHangup *Hangup
	offerAge     time.Duration
}

// Call starts an outgoing 1:1 call. Only valid while no session is active;
// a terminated session is replaced.
func (m *Manager) Call(remote string, mediaType CallMediaType, localDevice DeviceID) (CallID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return 0, err
	}
	if s := m.session; s != nil && !s.state.terminal() {
		return 0, coreError(ErrCodeInvalidState, "a call session is already active")
	}

	s := &callSession{
		callID:      NewCallID(),
		remote:      remote,
		localDevice: localDevice,
		direction:   DirectionOutgoing,
		mediaType:   mediaType,
		state:       CallStateProceeding,
		dataMode:    DataModeNormal,
	}
	m.session = s

	m.log.Info().
		Stringer("call_id", s.callID).
		Str("remote", remote).
		Stringer("media", mediaType).
		Msg("outgoing call started")

	m.emit(Event{
		Kind:      EventOutgoingCall,
		CallID:    s.callID,
		Remote:    remote,
		MediaType: mediaType,
		DeviceID:  localDevice,
		Direction: DirectionOutgoing,
	})
	m.emitCallStateLocked(s)
	return s.callID, nil
}

// Proceed binds the local call context and media adaptation policy and moves
// the session from Proceeding to Connecting. An audio-levels interval <= 0
// disables periodic sampling; that is configuration, not an error.
func (m *Manager) Proceed(callID CallID, dataMode DataMode, audioLevelsInterval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	s := m.session
	if s == nil || s.callID != callID {
		return coreError(ErrCodeUnknownCall, "proceed for untracked call")
	}
	if s.state != CallStateProceeding {
		return coreError(ErrCodeInvalidState, "proceed requires state proceeding")
	}

	s.dataMode = dataMode
	if audioLevelsInterval > 0 {
		s.audioLevels = audioLevelsInterval
	} else {
		s.audioLevels = 0
	}
	s.state = CallStateConnecting
	m.emitCallStateLocked(s)
	m.flushPendingICELocked(s)

	if answer := s.pendingAnswer; answer != nil {
		s.pendingAnswer = nil
		m.applyAnswerLocked(s, answer)
	}
	return nil
}

// ReceivedOffer feeds a remote offer into the state machine. With no active
// session it starts an incoming one; with an active session and a different
// call id the event is dropped as a stale-id anomaly, not surfaced.
func (m *Manager) ReceivedOffer(offer OfferParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	if err := m.verifier.VerifyIdentityKeys(offer.SenderIdentityKey, offer.ReceiverIdentityKey); err != nil {
		m.log.Warn().
			Stringer("call_id", offer.CallID).
			Err(err).
			Msg("offer identity verification failed, dropped")
		return nil
	}

	if s := m.session; s != nil && !s.state.terminal() {
		if s.callID == offer.CallID {
			m.log.Debug().Stringer("call_id", offer.CallID).Msg("duplicate offer ignored")
		} else {
			m.log.Warn().
				Stringer("call_id", offer.CallID).
				Stringer("active_call_id", s.callID).
				Msg("offer for unknown call dropped")
		}
		return nil
	}

	stale := m.cfg.MaxOfferAge > 0 && offer.MessageAge > m.cfg.MaxOfferAge
	s := &callSession{
		callID:       offer.CallID,
		remote:       offer.Remote,
		remoteDevice: offer.RemoteDevice,
		localDevice:  offer.LocalDevice,
		direction:    DirectionIncoming,
		mediaType:    offer.MediaType,
		state:        CallStateProceeding,
		dataMode:     DataModeNormal,
		offerAge:     offer.MessageAge,
	}
	m.session = s

	m.log.Info().
		Stringer("call_id", s.callID).
		Str("remote", s.remote).
		Bool("stale", stale).
		Msg("incoming call started")

	m.emit(Event{
		Kind:       EventIncomingCall,
		CallID:     s.callID,
		Remote:     s.remote,
		MediaType:  s.mediaType,
		DeviceID:   s.remoteDevice,
		Direction:  DirectionIncoming,
		StaleOffer: stale,
	})
	m.emitCallStateLocked(s)
	return nil
}

// ReceivedAnswer feeds a remote answer in. A mismatched call id is absorbed
// locally: logged, dropped, never surfaced.
func (m *Manager) ReceivedAnswer(answer AnswerParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	s := m.session
	if s == nil || s.callID != answer.CallID || s.state.terminal() {
		m.log.Warn().Stringer("call_id", answer.CallID).Msg("answer for unknown call dropped")
		return nil
	}
	if s.direction != DirectionOutgoing {
		m.log.Warn().Stringer("call_id", answer.CallID).Msg("answer on incoming call dropped")
		return nil
	}
	if err := m.verifier.VerifyIdentityKeys(answer.SenderIdentityKey, answer.ReceiverIdentityKey); err != nil {
		m.log.Warn().
			Stringer("call_id", answer.CallID).
			Err(err).
			Msg("answer identity verification failed, dropped")
		return nil
	}

	switch s.state {
	case CallStateProceeding:
		// Signaling raced ahead of the local proceed; hold the answer.
		a := answer
		s.pendingAnswer = &a
	case CallStateConnecting, CallStateReconnecting:
		m.applyAnswerLocked(s, &answer)
	default:
		m.log.Debug().Stringer("call_id", answer.CallID).Msg("duplicate answer ignored")
	}
	return nil
}

func (m *Manager) applyAnswerLocked(s *callSession, answer *AnswerParams) {
	s.remoteDevice = answer.RemoteDevice
	s.state = CallStateConnected
	m.emitCallStateLocked(s)
}

// ReceivedICE buffers candidates that arrive before Connecting and forwards
// them once the underlying transport can exist. Arrival order within one
// device is preserved.
func (m *Manager) ReceivedICE(callID CallID, device DeviceID, candidates [][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	s := m.session
	if s == nil || s.callID != callID || s.state.terminal() {
		m.log.Warn().Stringer("call_id", callID).Msg("ice for unknown call dropped")
		return nil
	}

	batch := make([]IceCandidate, 0, len(candidates))
	for _, c := range candidates {
		batch = append(batch, IceCandidate{DeviceID: device, Opaque: c})
	}

	if s.state == CallStateProceeding {
		s.pendingICE = append(s.pendingICE, batch...)
		return nil
	}
	m.emit(Event{Kind: EventRemoteICE, CallID: s.callID, Candidates: batch})
	return nil
}

func (m *Manager) flushPendingICELocked(s *callSession) {
	if len(s.pendingICE) == 0 {
		return
	}
	m.emit(Event{Kind: EventRemoteICE, CallID: s.callID, Candidates: s.pendingICE})
	s.pendingICE = nil
}

// ReceivedHangup force-terminates the session. Idempotent: a hangup for an
// already-terminated or unknown call is a no-op.
func (m *Manager) ReceivedHangup(callID CallID, remoteDevice DeviceID, hangupType HangupType, originDevice DeviceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	s := m.session
	if s == nil || s.callID != callID {
		m.log.Debug().Stringer("call_id", callID).Msg("hangup for unknown call ignored")
		return nil
	}
	if s.state.terminal() {
		return nil
	}
	m.terminateSessionLocked(s, EndReasonRemoteHangup, &Hangup{Type: hangupType, DeviceID: originDevice})
	return nil
}

// ReceivedBusy terminates the session with a busy reason. Idempotent.
func (m *Manager) ReceivedBusy(callID CallID, remoteDevice DeviceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	s := m.session
	if s == nil || s.callID != callID {
		m.log.Debug().Stringer("call_id", callID).Msg("busy for unknown call ignored")
		return nil
	}
	if s.state.terminal() {
		return nil
	}
	m.terminateSessionLocked(s, EndReasonBusy, nil)
	return nil
}

// MessageSent acknowledges a delivered outbound signaling message.
func (m *Manager) MessageSent(callID CallID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	if s := m.session; s == nil || s.callID != callID {
		m.log.Debug().Stringer("call_id", callID).Msg("send ack for unknown call ignored")
	}
	return nil
}

// MessageSendFailure reports a failed outbound signaling message. The call
// is not terminated; the observer decides retry vs abort.
func (m *Manager) MessageSendFailure(callID CallID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	s := m.session
	if s == nil || s.callID != callID {
		m.log.Debug().Stringer("call_id", callID).Msg("send failure for unknown call ignored")
		return nil
	}
	m.emit(Event{Kind: EventMessageSendFailed, CallID: callID, State: s.state})
	return nil
}

// AcceptCall answers the active incoming call.
func (m *Manager) AcceptCall(callID CallID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	s := m.session
	if s == nil || s.callID != callID {
		return coreError(ErrCodeUnknownCall, "accept for untracked call")
	}
	if s.direction != DirectionIncoming {
		return coreError(ErrCodeInvalidState, "accept only applies to incoming calls")
	}
	switch s.state {
	case CallStateConnecting, CallStateReconnecting:
		s.state = CallStateConnected
		m.emitCallStateLocked(s)
		return nil
	case CallStateConnected:
		return nil
	default:
		return coreError(ErrCodeInvalidState, "accept requires a connecting call")
	}
}

// Hangup ends the active session locally. A no-op when nothing is active.
func (m *Manager) Hangup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	s := m.session
	if s == nil || s.state.terminal() {
		return nil
	}
	m.terminateSessionLocked(s, EndReasonLocalHangup, nil)
	return nil
}

// DropCall abandons the session only when callID matches the tracked one;
// stale ids are ignored.
func (m *Manager) DropCall(callID CallID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	s := m.session
	if s == nil || s.callID != callID {
		m.log.Debug().Stringer("call_id", callID).Msg("drop for stale call ignored")
		return nil
	}
	if s.state.terminal() {
		return nil
	}
	m.terminateSessionLocked(s, EndReasonDropped, nil)
	return nil
}

// Reset forces the machine back to Idle regardless of current state.
// Emergency recovery; an active session is terminated first.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	if s := m.session; s != nil && !s.state.terminal() {
		m.terminateSessionLocked(s, EndReasonReset, nil)
	}
	m.session = nil
	m.log.Info().Msg("call state machine reset")
	return nil
}

// ConnectionInterrupted reports a transport interruption on the active call.
func (m *Manager) ConnectionInterrupted(callID CallID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	s := m.session
	if s == nil || s.callID != callID {
		m.log.Debug().Stringer("call_id", callID).Msg("interruption for unknown call ignored")
		return nil
	}
	if s.state != CallStateConnected && s.state != CallStateConnecting {
		return nil
	}
	s.state = CallStateReconnecting
	m.emitCallStateLocked(s)
	return nil
}

// ConnectionRecovered reports the transport healing after an interruption.
func (m *Manager) ConnectionRecovered(callID CallID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	s := m.session
	if s == nil || s.callID != callID || s.state != CallStateReconnecting {
		return nil
	}
	s.state = CallStateConnected
	m.emitCallStateLocked(s)
	return nil
}

// SetVideoEnable toggles outgoing video on the live session. Valid in any
// non-terminal state; no lifecycle transition.
func (m *Manager) SetVideoEnable(enable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	s := m.session
	if s == nil || s.state.terminal() {
		return coreError(ErrCodeInvalidState, "no active call session")
	}
	s.videoEnabled = enable
	return nil
}

// UpdateDataMode changes the bandwidth adaptation mode on the live session.
func (m *Manager) UpdateDataMode(mode DataMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	s := m.session
	if s == nil || s.state.terminal() {
		return coreError(ErrCodeInvalidState, "no active call session")
	}
	s.dataMode = mode
	return nil
}

// CallInfo is a read-only snapshot of the active session.
type CallInfo struct {
	CallID       CallID
	Remote       string
	RemoteDevice DeviceID
	LocalDevice  DeviceID
	Direction    CallDirection
	MediaType    CallMediaType
	State        CallState
	DataMode     DataMode
	VideoEnabled bool
	EndReason    EndReason
}

// CurrentCall returns a snapshot of the tracked session, if any.
func (m *Manager) CurrentCall() (CallInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s == nil {
		return CallInfo{}, false
	}
	return CallInfo{
		CallID:       s.callID,
		Remote:       s.remote,
		RemoteDevice: s.remoteDevice,
		LocalDevice:  s.localDevice,
		Direction:    s.direction,
		MediaType:    s.mediaType,
		State:        s.state,
		DataMode:     s.dataMode,
		VideoEnabled: s.videoEnabled,
		EndReason:    s.endReason,
	}, true
}

func (m *Manager) terminateSessionLocked(s *callSession, reason EndReason, hangup *Hangup) {
	s.state = CallStateTerminated
	s.endReason = reason
	s.remoteHangup = hangup
	s.pendingICE = nil
	s.pendingAnswer = nil

	m.log.Info().
		Stringer("call_id", s.callID).
		Stringer("reason", reason).
		Msg("call terminated")

	ev := Event{
		Kind:   EventCallStateChanged,
		CallID: s.callID,
		State:  s.state,
		Reason: reason,
	}
	if hangup != nil {
		h := *hangup
		ev.Hangup = &h
	}
	m.emit(ev)
}

func (m *Manager) emitCallStateLocked(s *callSession) {
	m.emit(Event{
		Kind:      EventCallStateChanged,
		CallID:    s.callID,
		State:     s.state,
		Reason:    s.endReason,
		Direction: s.direction,
	})
}
