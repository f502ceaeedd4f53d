package sfu

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ringline/ringline-server/internal/core"
)

type recordingCompleter struct {
	mu       sync.Mutex
	statuses map[uint64]int
	bodies   map[uint64]string
	failed   map[uint64]bool
	done     chan struct{}
}

func newRecordingCompleter() *recordingCompleter {
	return &recordingCompleter{
		statuses: make(map[uint64]int),
		bodies:   make(map[uint64]string),
		failed:   make(map[uint64]bool),
		done:     make(chan struct{}, 8),
	}
}

func (r *recordingCompleter) ReceivedHTTPResponse(requestID uint64, status int, body []byte) {
	r.mu.Lock()
	r.statuses[requestID] = status
	r.bodies[requestID] = string(body)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recordingCompleter) HTTPRequestFailed(requestID uint64) {
	r.mu.Lock()
	r.failed[requestID] = true
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recordingCompleter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("completion not delivered")
	}
}

func TestClientDeliversResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Membership-Proof"); got != "proof" {
			t.Errorf("missing membership proof header, got %q", got)
		}
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "Bearer ") {
			t.Errorf("missing bearer token, got %q", auth)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"era_id":"era-1"}`))
	}))
	defer srv.Close()

	completer := newRecordingCompleter()
	client := New(Options{Timeout: time.Second, AuthSecret: []byte("secret"), Issuer: "ringline"})
	client.Bind(completer)

	client.Send(core.HTTPRequest{
		RequestID: 7,
		Method:    http.MethodGet,
		URL:       srv.URL + "/v1/conference",
		Headers:   map[string]string{"X-Membership-Proof": "proof"},
	})
	completer.wait(t)

	completer.mu.Lock()
	defer completer.mu.Unlock()
	if completer.statuses[7] != http.StatusOK {
		t.Fatalf("expected 200, got %d", completer.statuses[7])
	}
	if !strings.Contains(completer.bodies[7], "era-1") {
		t.Fatalf("unexpected body: %q", completer.bodies[7])
	}
}

func TestClientReportsTransportFailure(t *testing.T) {
	completer := newRecordingCompleter()
	client := New(Options{Timeout: 200 * time.Millisecond})
	client.Bind(completer)

	// Nothing listens on this address.
	client.Send(core.HTTPRequest{
		RequestID: 8,
		Method:    http.MethodGet,
		URL:       "http://127.0.0.1:1/v1/conference",
	})
	completer.wait(t)

	completer.mu.Lock()
	defer completer.mu.Unlock()
	if !completer.failed[8] {
		t.Fatalf("transport failure not reported")
	}
}

func TestClientPassesNonSuccessStatusThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	completer := newRecordingCompleter()
	client := New(Options{Timeout: time.Second})
	client.Bind(completer)

	client.Send(core.HTTPRequest{RequestID: 9, Method: http.MethodGet, URL: srv.URL})
	completer.wait(t)

	completer.mu.Lock()
	defer completer.mu.Unlock()
	// Status interpretation belongs to the orchestrator, not the client.
	if completer.failed[9] {
		t.Fatalf("non-success status must not be a transport failure")
	}
	if completer.statuses[9] != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", completer.statuses[9])
	}
}
