package core

import (
	"sync"
	"testing"
	"time"
)

// sinkRecorder buffers emitted events for assertions.
type sinkRecorder struct {
	ch chan Event
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{ch: make(chan Event, 256)}
}

func (s *sinkRecorder) OnEvent(ev Event) {
	select {
	case s.ch <- ev:
	default:
	}
}

// fakeRequester records outbound requests instead of sending them.
type fakeRequester struct {
	mu   sync.Mutex
	sent []HTTPRequest
}

func (f *fakeRequester) Send(req HTTPRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
}

func (f *fakeRequester) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestManager(t *testing.T) (*Manager, *sinkRecorder, *fakeRequester) {
	t.Helper()

	sink := newSinkRecorder()
	req := &fakeRequester{}
	m := NewManager(Config{MaxOfferAge: 2 * time.Minute}, Deps{
		Observer:  sink,
		Requester: req,
	})
	t.Cleanup(m.Close)
	return m, sink, req
}

func mustEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return Event{}
}

// mustState waits for a call state-change event reporting the given state.
func mustState(t *testing.T, ch <-chan Event, state CallState) Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev.Kind == EventCallStateChanged && ev.State == state {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected call state %v not reached", state)
	return Event{}
}

// mustGroupState waits for a group state-change event for the given state.
func mustGroupState(t *testing.T, ch <-chan Event, state GroupClientState) Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev.Kind == EventGroupStateChanged && ev.GroupState == state {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected group state %v not reached", state)
	return Event{}
}

func identityKey() []byte {
	key := make([]byte, 33)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}
