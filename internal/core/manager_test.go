package core

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// orderObserver records every event in delivery order.
type orderObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *orderObserver) OnEvent(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *orderObserver) snapshot() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Event(nil), o.events...)
}

func TestEventDeliveryMatchesApplyOrder(t *testing.T) {
	obs := &orderObserver{}
	m := NewManager(Config{}, Deps{Observer: obs})

	callID, err := m.Call("remote", MediaAudio, 1)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if err := m.Proceed(callID, DataModeNormal, 0); err != nil {
		t.Fatalf("proceed: %v", err)
	}
	if err := m.ReceivedAnswer(AnswerParams{CallID: callID, RemoteDevice: 2, SenderIdentityKey: identityKey(), ReceiverIdentityKey: identityKey()}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := m.Hangup(); err != nil {
		t.Fatalf("hangup: %v", err)
	}

	// Close drains the queue before returning.
	m.Close()

	var states []CallState
	for _, ev := range obs.snapshot() {
		if ev.Kind == EventCallStateChanged {
			states = append(states, ev.State)
		}
	}
	want := []CallState{CallStateProceeding, CallStateConnecting, CallStateConnected, CallStateTerminated}
	if len(states) != len(want) {
		t.Fatalf("expected %d state changes, got %v", len(want), states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state %d out of order: got %v want %v", i, states[i], want[i])
		}
	}
}

func TestOperationsAfterCloseFail(t *testing.T) {
	m := NewManager(Config{}, Deps{})
	m.Close()

	if _, err := m.Call("remote", MediaAudio, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("call after close should fail, got %v", err)
	}
	if _, err := m.CreateGroupCallClient(groupParams()); !errors.Is(err, ErrClosed) {
		t.Fatalf("create after close should fail, got %v", err)
	}
	// Closing twice is safe.
	m.Close()
}

func TestCloseEndsLiveGroupClients(t *testing.T) {
	obs := &orderObserver{}
	m := NewManager(Config{}, Deps{Observer: obs})

	id, err := m.CreateGroupCallClient(groupParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Connect(id); err != nil {
		t.Fatalf("connect: %v", err)
	}
	m.Close()

	events := obs.snapshot()
	last := events[len(events)-1]
	if last.Kind != EventGroupStateChanged || last.GroupState != GroupStateEnded {
		t.Fatalf("close should end live clients, last event: %+v", last)
	}
}

func TestConcurrentCommandAndEventSafety(t *testing.T) {
	m, _, _ := newTestManager(t)

	id, err := m.CreateGroupCallClient(groupParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range 8 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			for j := 0; j < 50; j++ {
				switch n % 4 {
				case 0:
					_ = m.SetOutgoingAudioMuted(id, j%2 == 0)
				case 1:
					_ = m.SetGroupDataMode(id, DataMode(j%3))
				case 2:
					_ = m.RaiseHand(id, j%2 == 0)
				case 3:
					_, _ = m.GroupClientSnapshot(id)
				}
			}
		}(i)
	}
	close(start)
	wg.Wait()

	info, err := m.GroupClientSnapshot(id)
	if err != nil {
		t.Fatalf("snapshot after concurrent access: %v", err)
	}
	if info.State != GroupStateCreated {
		t.Fatalf("setters disturbed lifecycle state: %v", info.State)
	}
}

func TestSlowObserverDoesNotBlockOperations(t *testing.T) {
	release := make(chan struct{})
	slow := ObserverFunc(func(ev Event) {
		<-release
	})
	m := NewManager(Config{}, Deps{Observer: slow})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			id, err := m.CreateGroupCallClient(groupParams())
			if err != nil {
				return
			}
			_ = m.Connect(id)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("operations blocked behind a slow observer")
	}
	close(release)
	m.Close()
}
