package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config tunes orchestrator policy knobs.
type Config struct {
	// MaxOfferAge flags received offers older than this as stale. Zero
	// disables flagging; the orchestrator never rejects on age itself.
	MaxOfferAge time.Duration
}

// Deps are the external collaborators the manager borrows. Observer receives
// lifecycle events in apply order. Requester performs HTTP round trips for
// peek and call-link flows. Verifier validates opaque credential material.
type Deps struct {
	Logger    *zerolog.Logger
	Observer  Observer
	Requester Requester
	Verifier  CredentialVerifier
}

// Manager is the call/session orchestrator: the single 1:1 call state
// machine, the group-call client registry and the request correlator behind
// one lock. All state-mutating operations are atomic; none blocks on the
// network.
type Manager struct {
	mu  sync.Mutex
	cfg Config
	log zerolog.Logger

	verifier  CredentialVerifier
	requester Requester
	queue     *eventQueue

	session  *callSession
	registry clientRegistry
	requests *correlator

	selfUUID []byte
	closed   bool
}

// NewManager builds a manager and starts its event dispatch goroutine.
// Callers own the lifecycle and must Close it when done.
func NewManager(cfg Config, deps Deps) *Manager {
	logger := zerolog.Nop()
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	verifier := deps.Verifier
	if verifier == nil {
		verifier = acceptAllVerifier{}
	}

	m := &Manager{
		cfg:       cfg,
		log:       logger.With().Str("component", "call_manager").Logger(),
		verifier:  verifier,
		requester: deps.Requester,
		queue:     newEventQueue(),
		requests:  newCorrelator(),
	}
	go m.queue.run(deps.Observer)
	return m
}

// SetSelfUUID binds the local user identity used for ring direction and
// moderation self-checks.
func (m *Manager) SetSelfUUID(uuid []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selfUUID = append([]byte(nil), uuid...)
}

// Close tears down the orchestrator. The active session is dropped, all
// group clients are released, and the event queue is drained before Close
// returns. Terminal: every later operation fails.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true

	if s := m.session; s != nil && !s.state.terminal() {
		m.terminateSessionLocked(s, EndReasonDropped, nil)
	}
	m.session = nil

	m.registry.each(func(c *groupCallClient) {
		if c.state != GroupStateEnded {
			c.state = GroupStateEnded
			m.emitGroupStateLocked(c)
		}
		c.handles = MediaHandles{}
	})
	m.registry = clientRegistry{}
	m.requests = newCorrelator()
	m.mu.Unlock()

	m.queue.close()
	m.log.Info().Msg("call manager closed")
}

// emit enqueues an event for ordered delivery. Callers hold m.mu, which is
// what serializes the apply order the observer sees.
func (m *Manager) emit(ev Event) {
	m.queue.push(ev)
}

func (m *Manager) checkOpenLocked() *CoreError {
	if m.closed {
		return coreError(ErrCodeClosed, "call manager is closed")
	}
	return nil
}

// acceptAllVerifier is the default when no credential collaborator is
// configured. It only rejects empty material.
type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyIdentityKeys(sender, receiver []byte) error {
	if len(sender) == 0 || len(receiver) == 0 {
		return coreError(ErrCodePermissionDenied, "missing identity key")
	}
	return nil
}

func (acceptAllVerifier) VerifyMembershipProof(proof []byte) error {
	if len(proof) == 0 {
		return coreError(ErrCodePermissionDenied, "missing membership proof")
	}
	return nil
}

func (acceptAllVerifier) VerifyCredentialPresentation(presentation []byte) error {
	if len(presentation) == 0 {
		return coreError(ErrCodePermissionDenied, "missing credential presentation")
	}
	return nil
}
