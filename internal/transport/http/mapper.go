package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ringline/ringline-server/internal/core"
	"github.com/ringline/ringline-server/internal/proto"
)

const errCodeBadRequest = "bad_request"

// commandDefaults carries config-derived fallbacks applied when a command
// omits an optional field.
type commandDefaults struct {
	SFUURL              string
	AudioLevelsInterval time.Duration
}

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: errCodeBadRequest, Msg: msg}
}

func protoFromCoreError(err error) *proto.Error {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		return &proto.Error{Code: ce.Code, Msg: ce.Message}
	}
	return &proto.Error{Code: "internal", Msg: err.Error()}
}

func parseCallID(s string) (core.CallID, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse call id %q: %w", s, err)
	}
	return core.CallID(v), nil
}

func parseMediaType(s string) (core.CallMediaType, bool) {
	switch s {
	case "", "audio":
		return core.MediaAudio, true
	case "video":
		return core.MediaVideo, true
	}
	return 0, false
}

func parseDataMode(s string) (core.DataMode, bool) {
	switch s {
	case "low":
		return core.DataModeLow, true
	case "", "normal":
		return core.DataModeNormal, true
	case "high":
		return core.DataModeHigh, true
	}
	return 0, false
}

func parseHangupType(s string) (core.HangupType, bool) {
	switch s {
	case "", "normal":
		return core.HangupNormal, true
	case "accepted":
		return core.HangupAccepted, true
	case "declined":
		return core.HangupDeclined, true
	case "busy":
		return core.HangupBusy, true
	case "need_permission":
		return core.HangupNeedPermission, true
	}
	return 0, false
}

func parseRingCancelReason(s string) (core.RingCancelReason, bool) {
	switch s {
	case "", "declined":
		return core.RingCancelDeclinedByUser, true
	case "busy":
		return core.RingCancelBusy, true
	}
	return 0, false
}

// applyInbound maps one wire command onto the call manager. A nil, nil
// return means the command was applied; a non-nil *proto.Error is a
// client-visible rejection; a non-nil error is a protocol failure that
// should drop the connection.
func applyInbound(m *core.Manager, defaults commandDefaults, inbound proto.Inbound) (*proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeCall:
		var d proto.CallData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		if d.Remote == "" {
			return badRequest("remote is required"), nil
		}
		mt, ok := parseMediaType(d.MediaType)
		if !ok {
			return badRequest("unknown media type"), nil
		}
		if _, err := m.Call(d.Remote, mt, core.DeviceID(d.LocalDevice)); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeProceed:
		var d proto.ProceedData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		callID, err := parseCallID(d.CallID)
		if err != nil {
			return badRequest("malformed call id"), nil
		}
		mode, ok := parseDataMode(d.DataMode)
		if !ok {
			return badRequest("unknown data mode"), nil
		}
		interval := defaults.AudioLevelsInterval
		if d.AudioLevelsIntervalMs > 0 {
			interval = time.Duration(d.AudioLevelsIntervalMs) * time.Millisecond
		}
		if err := m.Proceed(callID, mode, interval); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeAccept:
		var d proto.AcceptData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		callID, err := parseCallID(d.CallID)
		if err != nil {
			return badRequest("malformed call id"), nil
		}
		if err := m.AcceptCall(callID); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeHangup:
		if err := m.Hangup(); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeDrop:
		var d proto.AcceptData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		callID, err := parseCallID(d.CallID)
		if err != nil {
			return badRequest("malformed call id"), nil
		}
		if err := m.DropCall(callID); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeReset:
		if err := m.Reset(); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeSetVideo:
		var d proto.SetVideoData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		if err := m.SetVideoEnable(d.Enable); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeSetDataMode:
		var d proto.SetDataModeData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		mode, ok := parseDataMode(d.DataMode)
		if !ok {
			return badRequest("unknown data mode"), nil
		}
		if err := m.UpdateDataMode(mode); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeOffer:
		var d proto.OfferData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		callID, err := parseCallID(d.CallID)
		if err != nil {
			return badRequest("malformed call id"), nil
		}
		mt, ok := parseMediaType(d.MediaType)
		if !ok {
			return badRequest("unknown media type"), nil
		}
		err = m.ReceivedOffer(core.OfferParams{
			CallID:              callID,
			Remote:              d.Remote,
			RemoteDevice:        core.DeviceID(d.RemoteDevice),
			Opaque:              d.Opaque,
			MessageAge:          time.Duration(d.MessageAgeMs) * time.Millisecond,
			MediaType:           mt,
			LocalDevice:         core.DeviceID(d.LocalDevice),
			LocalDevicePrimary:  d.LocalDevicePrimary,
			SenderIdentityKey:   d.SenderIdentityKey,
			ReceiverIdentityKey: d.ReceiverIdentityKey,
		})
		if err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeAnswer:
		var d proto.AnswerData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		callID, err := parseCallID(d.CallID)
		if err != nil {
			return badRequest("malformed call id"), nil
		}
		err = m.ReceivedAnswer(core.AnswerParams{
			CallID:              callID,
			RemoteDevice:        core.DeviceID(d.RemoteDevice),
			Opaque:              d.Opaque,
			SenderIdentityKey:   d.SenderIdentityKey,
			ReceiverIdentityKey: d.ReceiverIdentityKey,
		})
		if err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeICE:
		var d proto.ICEData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		callID, err := parseCallID(d.CallID)
		if err != nil {
			return badRequest("malformed call id"), nil
		}
		if err := m.ReceivedICE(callID, core.DeviceID(d.RemoteDevice), d.Candidates); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeRemoteHangup:
		var d proto.RemoteHangupData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		callID, err := parseCallID(d.CallID)
		if err != nil {
			return badRequest("malformed call id"), nil
		}
		ht, ok := parseHangupType(d.HangupType)
		if !ok {
			return badRequest("unknown hangup type"), nil
		}
		err = m.ReceivedHangup(callID, core.DeviceID(d.RemoteDevice), ht, core.DeviceID(d.OriginDevice))
		if err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeBusy:
		var d proto.BusyData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		callID, err := parseCallID(d.CallID)
		if err != nil {
			return badRequest("malformed call id"), nil
		}
		if err := m.ReceivedBusy(callID, core.DeviceID(d.RemoteDevice)); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeMessageSent, proto.InboundTypeMessageFailed:
		var d proto.MessageStatusData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		callID, err := parseCallID(d.CallID)
		if err != nil {
			return badRequest("malformed call id"), nil
		}
		var opErr error
		if inbound.Type == proto.InboundTypeMessageSent {
			opErr = m.MessageSent(callID)
		} else {
			opErr = m.MessageSendFailure(callID)
		}
		if opErr != nil {
			return protoFromCoreError(opErr), nil
		}
		return nil, nil

	case proto.InboundTypeInterrupted, proto.InboundTypeRecovered:
		var d proto.ConnectionData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		callID, err := parseCallID(d.CallID)
		if err != nil {
			return badRequest("malformed call id"), nil
		}
		var opErr error
		if inbound.Type == proto.InboundTypeInterrupted {
			opErr = m.ConnectionInterrupted(callID)
		} else {
			opErr = m.ConnectionRecovered(callID)
		}
		if opErr != nil {
			return protoFromCoreError(opErr), nil
		}
		return nil, nil

	case proto.InboundTypeGroupCreate:
		var d proto.GroupCreateData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		sfuURL := d.SFUURL
		if sfuURL == "" {
			sfuURL = defaults.SFUURL
		}
		interval := defaults.AudioLevelsInterval
		if d.AudioLevelsIntervalMs > 0 {
			interval = time.Duration(d.AudioLevelsIntervalMs) * time.Millisecond
		}
		_, err := m.CreateGroupCallClient(core.GroupCallParams{
			GroupID:             d.GroupID,
			SFUURL:              sfuURL,
			HkdfExtraInfo:       d.HkdfExtraInfo,
			AudioLevelsInterval: interval,
		})
		if err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeLinkCreate:
		var d proto.LinkCreateData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		sfuURL := d.SFUURL
		if sfuURL == "" {
			sfuURL = defaults.SFUURL
		}
		interval := defaults.AudioLevelsInterval
		if d.AudioLevelsIntervalMs > 0 {
			interval = time.Duration(d.AudioLevelsIntervalMs) * time.Millisecond
		}
		_, err := m.CreateCallLinkCallClient(core.CallLinkCallParams{
			SFUURL:              sfuURL,
			AuthPresentation:    d.AuthPresentation,
			RootKey:             d.RootKey,
			AdminPasskey:        d.AdminPasskey,
			HkdfExtraInfo:       d.HkdfExtraInfo,
			AudioLevelsInterval: interval,
		})
		if err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeGroupConnect, proto.InboundTypeGroupJoin,
		proto.InboundTypeGroupLeave, proto.InboundTypeGroupDisconnect,
		proto.InboundTypeGroupDelete, proto.InboundTypeResendKeys:
		var d proto.ClientData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		id := core.ClientID(d.ClientID)
		var opErr error
		switch inbound.Type {
		case proto.InboundTypeGroupConnect:
			opErr = m.Connect(id)
		case proto.InboundTypeGroupJoin:
			opErr = m.Join(id)
		case proto.InboundTypeGroupLeave:
			opErr = m.Leave(id)
		case proto.InboundTypeGroupDisconnect:
			opErr = m.Disconnect(id)
		case proto.InboundTypeGroupDelete:
			opErr = m.DeleteGroupCallClient(id)
		case proto.InboundTypeResendKeys:
			opErr = m.ResendMediaKeys(id)
		}
		if opErr != nil {
			return protoFromCoreError(opErr), nil
		}
		return nil, nil

	case proto.InboundTypeSetAudioMute, proto.InboundTypeSetVideoMute:
		var d proto.MuteData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		var opErr error
		if inbound.Type == proto.InboundTypeSetAudioMute {
			opErr = m.SetOutgoingAudioMuted(core.ClientID(d.ClientID), d.Muted)
		} else {
			opErr = m.SetOutgoingVideoMuted(core.ClientID(d.ClientID), d.Muted)
		}
		if opErr != nil {
			return protoFromCoreError(opErr), nil
		}
		return nil, nil

	case proto.InboundTypeRequestVideo:
		var d proto.VideoRequestData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		resolutions := make([]core.VideoRequest, 0, len(d.Resolutions))
		for _, r := range d.Resolutions {
			resolutions = append(resolutions, core.VideoRequest{
				DemuxID: core.DemuxID(r.DemuxID),
				Width:   r.Width,
				Height:  r.Height,
			})
		}
		if err := m.RequestVideo(core.ClientID(d.ClientID), resolutions, d.ActiveSpeakerHeight); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeReact:
		var d proto.ReactData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		if d.Value == "" {
			return badRequest("reaction value is required"), nil
		}
		if err := m.React(core.ClientID(d.ClientID), d.Value); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeRaiseHand:
		var d proto.RaiseHandData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		if err := m.RaiseHand(core.ClientID(d.ClientID), d.Raised); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeApproveUser, proto.InboundTypeDenyUser,
		proto.InboundTypeRemoveClient, proto.InboundTypeBlockClient:
		var d proto.ModerationData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		id := core.ClientID(d.ClientID)
		var opErr error
		switch inbound.Type {
		case proto.InboundTypeApproveUser:
			opErr = m.ApproveUser(id, d.UserID)
		case proto.InboundTypeDenyUser:
			opErr = m.DenyUser(id, d.UserID)
		case proto.InboundTypeRemoveClient:
			opErr = m.RemoveClient(id, core.DemuxID(d.DemuxID))
		case proto.InboundTypeBlockClient:
			opErr = m.BlockClient(id, core.DemuxID(d.DemuxID))
		}
		if opErr != nil {
			return protoFromCoreError(opErr), nil
		}
		return nil, nil

	case proto.InboundTypeGroupRing:
		var d proto.GroupRingData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		if err := m.GroupRing(core.ClientID(d.ClientID), d.Recipient); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeCancelRing:
		var d proto.CancelRingData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		reason, ok := parseRingCancelReason(d.Reason)
		if !ok {
			return badRequest("unknown ring cancel reason"), nil
		}
		if err := m.CancelGroupRing(d.GroupID, core.RingID(d.RingID), reason); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeSetMembers:
		var d proto.MembersData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		if err := m.SetGroupMembers(core.ClientID(d.ClientID), d.Members); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeSetProof:
		var d proto.ProofData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		if err := m.SetMembershipProof(core.ClientID(d.ClientID), d.Proof); err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeCallMessage:
		var d proto.CallMessageData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		err := m.ReceivedCallMessage(d.SenderUUID, core.DeviceID(d.SenderDevice),
			core.DeviceID(d.LocalDevice), d.Message,
			time.Duration(d.MessageAgeMs)*time.Millisecond)
		if err != nil {
			return protoFromCoreError(err), nil
		}
		return nil, nil

	case proto.InboundTypeSetSelfUUID:
		var d proto.SelfUUIDData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, err
		}
		if len(d.UUID) == 0 {
			return badRequest("uuid is required"), nil
		}
		m.SetSelfUUID(d.UUID)
		return nil, nil

	default:
		return &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(ev core.Event) proto.Outbound {
	switch ev.Kind {
	case core.EventOutgoingCall:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "outgoing_call",
			Data: proto.EventOutgoingCall{
				CallID:      ev.CallID.String(),
				Remote:      ev.Remote,
				MediaType:   ev.MediaType.String(),
				LocalDevice: uint32(ev.DeviceID),
			},
		}
	case core.EventIncomingCall:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "incoming_call",
			Data: proto.EventIncomingCall{
				CallID:       ev.CallID.String(),
				Remote:       ev.Remote,
				RemoteDevice: uint32(ev.DeviceID),
				MediaType:    ev.MediaType.String(),
				StaleOffer:   ev.StaleOffer,
			},
		}
	case core.EventCallStateChanged:
		data := proto.EventCallState{
			CallID: ev.CallID.String(),
			State:  ev.State.String(),
		}
		if ev.State == core.CallStateTerminated {
			data.EndReason = ev.Reason.String()
		}
		if ev.Hangup != nil {
			data.Hangup = ev.Hangup.Type.String()
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "call_state",
			Data:  data,
		}
	case core.EventRemoteICE:
		candidates := make([][]byte, 0, len(ev.Candidates))
		for _, c := range ev.Candidates {
			candidates = append(candidates, c.Opaque)
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "remote_ice",
			Data: proto.EventRemoteICE{
				CallID:     ev.CallID.String(),
				Candidates: candidates,
			},
		}
	case core.EventMessageSendFailed:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "message_send_failed",
			Data:  proto.EventCallState{CallID: ev.CallID.String()},
		}
	case core.EventGroupStateChanged:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "group_state",
			Data: proto.EventGroupState{
				ClientID: uint64(ev.ClientID),
				State:    ev.GroupState.String(),
			},
		}
	case core.EventGroupRing:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "group_ring",
			Data: proto.EventGroupRing{
				ClientID:  uint64(ev.ClientID),
				GroupID:   ev.GroupID,
				RingID:    int64(ev.RingID),
				Sender:    ev.Sender,
				Recipient: ev.UserID,
			},
		}
	case core.EventGroupRingCancelled:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "group_ring_cancelled",
			Data: proto.EventGroupRing{
				GroupID:   ev.GroupID,
				RingID:    int64(ev.RingID),
				Cancelled: true,
				Reason:    ev.Value,
			},
		}
	case core.EventCallMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "call_message",
			Data: proto.EventCallMessage{
				Sender:       ev.Sender,
				SenderDevice: uint32(ev.DeviceID),
				Message:      ev.Message,
			},
		}
	case core.EventReaction:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "reaction",
			Data: proto.EventParticipant{
				ClientID: uint64(ev.ClientID),
				DemuxID:  uint32(ev.DemuxID),
				Value:    ev.Value,
			},
		}
	case core.EventRaisedHand:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "raised_hand",
			Data: proto.EventParticipant{
				ClientID: uint64(ev.ClientID),
				DemuxID:  uint32(ev.DemuxID),
				Raised:   ev.Raised,
			},
		}
	case core.EventUserApproved, core.EventUserDenied:
		name := "user_approved"
		if ev.Kind == core.EventUserDenied {
			name = "user_denied"
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data: proto.EventParticipant{
				ClientID: uint64(ev.ClientID),
				UserID:   ev.UserID,
			},
		}
	case core.EventClientRemoved, core.EventClientBlocked:
		name := "client_removed"
		if ev.Kind == core.EventClientBlocked {
			name = "client_blocked"
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data: proto.EventParticipant{
				ClientID: uint64(ev.ClientID),
				DemuxID:  uint32(ev.DemuxID),
			},
		}
	case core.EventMediaKeysResent:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "media_keys_resent",
			Data: proto.EventParticipant{
				ClientID: uint64(ev.ClientID),
				KeyEpoch: ev.KeyEpoch,
			},
		}
	case core.EventPeekCompleted, core.EventPeekFailed,
		core.EventCallLinkCompleted, core.EventCallLinkFailed:
		data := proto.EventRequestDone{
			RequestID:  ev.RequestID,
			HTTPStatus: ev.HTTPStatus,
		}
		if ev.Peek != nil {
			data.Peek = ev.Peek
		}
		if ev.Link != nil {
			data.Link = ev.Link
		}
		if ev.Err != nil {
			data.Error = ev.Err.Message
		}
		name := "request_completed"
		if ev.Kind == core.EventPeekFailed || ev.Kind == core.EventCallLinkFailed {
			name = "request_failed"
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data:  data,
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
