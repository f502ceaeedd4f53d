package http

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ringline/ringline-server/internal/core"
	"github.com/ringline/ringline-server/internal/proto"
)

func TestParseCallID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    core.CallID
		wantErr bool
	}{
		{name: "with prefix", in: "0x00000000000000a1", want: 0xa1},
		{name: "without prefix", in: "a1", want: 0xa1},
		{name: "garbage", in: "not-a-call-id", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCallID(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse %q: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("parse %q: got %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseCallIDRoundTrip(t *testing.T) {
	id := core.NewCallID()
	got, err := parseCallID(id.String())
	if err != nil {
		t.Fatalf("parse %q: %v", id.String(), err)
	}
	if got != id {
		t.Fatalf("round trip mismatch: got %v, want %v", got, id)
	}
}

func newTestManager(t *testing.T) *core.Manager {
	t.Helper()
	logger := zerolog.Nop()
	m := core.NewManager(core.Config{}, core.Deps{Logger: &logger})
	t.Cleanup(m.Close)
	return m
}

func TestApplyInboundUnknownType(t *testing.T) {
	m := newTestManager(t)

	protoErr, err := applyInbound(m, commandDefaults{}, proto.Inbound{Type: "bogus"})
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	if protoErr == nil || protoErr.Code != "invalid_message" {
		t.Fatalf("expected invalid_message rejection, got %+v", protoErr)
	}
}

func TestApplyInboundMalformedPayload(t *testing.T) {
	m := newTestManager(t)

	_, err := applyInbound(m, commandDefaults{}, proto.Inbound{
		Type: proto.InboundTypeCall,
		Data: json.RawMessage(`{not json`),
	})
	if err == nil {
		t.Fatal("expected decode error to propagate")
	}
}

func TestApplyInboundSurfacesCoreErrorCode(t *testing.T) {
	m := newTestManager(t)

	payload, _ := json.Marshal(proto.CallData{Remote: "alice", MediaType: "audio", LocalDevice: 1})
	in := proto.Inbound{Type: proto.InboundTypeCall, Data: payload}

	if protoErr, err := applyInbound(m, commandDefaults{}, in); err != nil || protoErr != nil {
		t.Fatalf("first call rejected: %v %+v", err, protoErr)
	}
	// A second concurrent call is an invalid state transition.
	protoErr, err := applyInbound(m, commandDefaults{}, in)
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	if protoErr == nil || protoErr.Code != core.ErrCodeInvalidState {
		t.Fatalf("expected invalid_state, got %+v", protoErr)
	}
}

func TestApplyInboundGroupCreateUsesDefaults(t *testing.T) {
	m := newTestManager(t)

	payload, _ := json.Marshal(proto.GroupCreateData{GroupID: []byte{1, 2, 3}})
	protoErr, err := applyInbound(m, commandDefaults{SFUURL: "https://sfu.test"}, proto.Inbound{
		Type: proto.InboundTypeGroupCreate,
		Data: payload,
	})
	if err != nil || protoErr != nil {
		t.Fatalf("group create rejected: %v %+v", err, protoErr)
	}
}

func TestOutboundFromEventCallState(t *testing.T) {
	out := outboundFromEvent(core.Event{
		Kind:   core.EventCallStateChanged,
		CallID: 0xbeef,
		State:  core.CallStateTerminated,
		Reason: core.EndReasonRemoteHangup,
	})
	if out.Type != proto.OutboundTypeEvent || out.Event != "call_state" {
		t.Fatalf("unexpected envelope: %+v", out)
	}
	data, ok := out.Data.(proto.EventCallState)
	if !ok {
		t.Fatalf("unexpected data type: %T", out.Data)
	}
	if data.State != "terminated" || data.EndReason != "remote_hangup" {
		t.Fatalf("unexpected payload: %+v", data)
	}
}
