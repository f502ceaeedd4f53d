package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/ringline/ringline-server/internal/auth"
	"github.com/ringline/ringline-server/internal/config"
	"github.com/ringline/ringline-server/internal/core"
	"github.com/ringline/ringline-server/internal/proto"
	"github.com/ringline/ringline-server/internal/store/sqlite"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zerolog.Nop()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	broadcaster := NewBroadcaster(&logger)
	manager := core.NewManager(core.Config{}, core.Deps{
		Logger:   &logger,
		Observer: broadcaster,
	})
	t.Cleanup(manager.Close)

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}

	cfg := config.Default()
	server := NewServer(manager, broadcaster, st, nil, jwtConfig, cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts
}

func issueToken(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	body, _ := json.Marshal(TokenRequest{UserID: "alice", DeviceID: 1})
	resp, err := ts.Client().Post(ts.URL+"/api/token", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("token request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	return tokenResp.Token
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/calls/current")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	token := issueToken(t, ts)
	req, _ := stdhttp.NewRequest(stdhttp.MethodGet, ts.URL+"/api/calls/current", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp2, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("authorized request failed: %v", err)
	}
	defer resp2.Body.Close()
	// No active call yet.
	if resp2.StatusCode != stdhttp.StatusNotFound {
		t.Fatalf("expected 404 with token and no call, got %d", resp2.StatusCode)
	}
}

func TestCallLinkRequestAccepted(t *testing.T) {
	ts := startTestServer(t)
	token := issueToken(t, ts)

	body, _ := json.Marshal(ReadCallLinkRequest{
		SFUURL:           "https://sfu.test",
		AuthPresentation: []byte("presentation"),
		RootKey:          []byte("root-key"),
	})
	req, _ := stdhttp.NewRequest(stdhttp.MethodPost, ts.URL+"/api/call-links/read", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var accepted AcceptedResponse
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if accepted.RequestID == 0 {
		t.Fatal("expected non-zero request id")
	}
}

func TestWebSocketOutgoingCall(t *testing.T) {
	ts := startTestServer(t)

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	payload, _ := json.Marshal(proto.CallData{Remote: "bob", MediaType: "video", LocalDevice: 1})
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeCall, Data: payload}); err != nil {
		t.Fatalf("write call command: %v", err)
	}

	var outbound struct {
		Type  string          `json:"type"`
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := wsjson.Read(ctx, conn, &outbound); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	if outbound.Type != "event" || outbound.Event != "outgoing_call" {
		t.Fatalf("unexpected first event: %s/%s", outbound.Type, outbound.Event)
	}

	var outgoing proto.EventOutgoingCall
	if err := json.Unmarshal(outbound.Data, &outgoing); err != nil {
		t.Fatalf("unmarshal event data: %v", err)
	}
	if outgoing.Remote != "bob" || outgoing.MediaType != "video" {
		t.Fatalf("unexpected event payload: %+v", outgoing)
	}

	// The state transition follows in order.
	if err := wsjson.Read(ctx, conn, &outbound); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	if outbound.Event != "call_state" {
		t.Fatalf("unexpected second event: %s", outbound.Event)
	}
	var state proto.EventCallState
	if err := json.Unmarshal(outbound.Data, &state); err != nil {
		t.Fatalf("unmarshal state data: %v", err)
	}
	if state.State != "proceeding" || state.CallID != outgoing.CallID {
		t.Fatalf("unexpected state payload: %+v", state)
	}
}

func TestWebSocketRejectsBadCommand(t *testing.T) {
	ts := startTestServer(t)

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	payload, _ := json.Marshal(proto.CallData{Remote: "", MediaType: "audio"})
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeCall, Data: payload}); err != nil {
		t.Fatalf("write call command: %v", err)
	}

	var outbound struct {
		Type  string       `json:"type"`
		Error *proto.Error `json:"error"`
	}
	if err := wsjson.Read(ctx, conn, &outbound); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	if outbound.Type != "error" || outbound.Error == nil || outbound.Error.Code != "bad_request" {
		t.Fatalf("unexpected response: %+v", outbound)
	}
}
