package core

import "sync"

// EventKind is a notification the orchestrator emits to its observer.
type EventKind int

const (
	// EventOutgoingCall asks the platform to send the offer for a new call.
	EventOutgoingCall EventKind = iota
	// EventIncomingCall announces a received offer that started a session.
	EventIncomingCall
	// EventCallStateChanged reports a 1:1 lifecycle transition.
	EventCallStateChanged
	// EventRemoteICE delivers remote candidates ready to apply, in order.
	EventRemoteICE
	// EventMessageSendFailed reports a failed outbound signaling message.
	// The call is not terminated; retry vs abort is the observer's call.
	EventMessageSendFailed
	// EventGroupStateChanged reports a group-client lifecycle transition.
	EventGroupStateChanged
	// EventGroupRing asks the platform to ring group members.
	EventGroupRing
	// EventGroupRingCancelled revokes a previously announced group ring.
	EventGroupRingCancelled
	// EventCallMessage delivers an opaque out-of-band call message.
	EventCallMessage
	// EventReaction broadcasts a participant reaction.
	EventReaction
	// EventRaisedHand reports a raised-hand flag change.
	EventRaisedHand
	// EventUserApproved reports an admin approving a pending user.
	EventUserApproved
	// EventUserDenied reports an admin denying a pending user.
	EventUserDenied
	// EventClientRemoved reports an admin removing a participant.
	EventClientRemoved
	// EventClientBlocked reports an admin removing and blacklisting one.
	EventClientBlocked
	// EventMediaKeysResent reports a completed media key rotation round.
	EventMediaKeysResent
	// EventPeekCompleted resolves a pending peek query.
	EventPeekCompleted
	// EventPeekFailed fails a pending peek query.
	EventPeekFailed
	// EventCallLinkCompleted resolves a pending call-link operation.
	EventCallLinkCompleted
	// EventCallLinkFailed fails a pending call-link operation.
	EventCallLinkFailed
)

// Event describes one thing that happened inside the orchestrator. Delivery
// order to the observer matches the order transitions were applied.
type Event struct {
	Kind EventKind

	// 1:1 session fields.
	CallID     CallID
	State      CallState
	Reason     EndReason
	Hangup     *Hangup
	Remote     string
	MediaType  CallMediaType
	Direction  CallDirection
	DeviceID   DeviceID
	StaleOffer bool
	Candidates []IceCandidate

	// Group fields.
	ClientID   ClientID
	GroupState GroupClientState
	GroupID    []byte
	RingID     RingID
	Sender     []byte
	UserID     []byte
	DemuxID    DemuxID
	Value      string
	Raised     bool
	KeyEpoch   uint32
	Message    []byte

	// Correlated request fields.
	RequestID  uint64
	HTTPStatus int
	Peek       *PeekInfo
	Link       *CallLinkState
	Err        *CoreError
}

// Observer receives orchestrator events on a single dispatch goroutine.
// Implementations must not call back into the Manager from OnEvent while
// expecting synchronous effects; treat it as a mailbox.
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// MultiObserver fans one event stream out to several observers, preserving
// order for each of them.
func MultiObserver(obs ...Observer) Observer {
	return ObserverFunc(func(ev Event) {
		for _, o := range obs {
			if o != nil {
				o.OnEvent(ev)
			}
		}
	})
}

// eventQueue decouples event emission (under the manager lock) from
// delivery. A single goroutine drains it so observers see transitions in
// apply order.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	notify chan struct{}
	done   chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// run delivers queued events until close() is called and the queue drains.
func (q *eventQueue) run(obs Observer) {
	for {
		q.mu.Lock()
		items := q.items
		q.items = nil
		closed := q.closed
		q.mu.Unlock()

		for _, ev := range items {
			if obs != nil {
				obs.OnEvent(ev)
			}
		}

		if closed {
			q.mu.Lock()
			empty := len(q.items) == 0
			q.mu.Unlock()
			if empty {
				close(q.done)
				return
			}
			continue
		}

		<-q.notify
	}
}

// close stops the queue after delivering everything already pushed.
func (q *eventQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	<-q.done
}
