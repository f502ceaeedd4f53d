package core

import "time"

// RequestKind classifies a pending asynchronous request.
type RequestKind int

const (
	// RequestHTTPCorrelated waits for a call-link HTTP round trip.
	RequestHTTPCorrelated RequestKind = iota
	// RequestPeekQuery waits for an SFU peek response.
	RequestPeekQuery
)

// requestOp says which completion path a response resumes.
type requestOp int

const (
	opReadCallLink requestOp = iota
	opCreateCallLink
	opUpdateCallLink
	opPeekGroupCall
	opPeekCallLinkCall
)

// pendingRequest is one outstanding round trip keyed by a caller-supplied
// request id. At most one live entry per id.
type pendingRequest struct {
	id        uint64
	kind      RequestKind
	op        requestOp
	createdAt time.Time
}

// correlator maps outstanding request ids to the operation waiting on them.
// It is not self-synchronized; the manager lock covers it.
type correlator struct {
	pending map[uint64]pendingRequest
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[uint64]pendingRequest)}
}

// register adds a pending entry. Reusing a live request id fails.
func (c *correlator) register(id uint64, kind RequestKind, op requestOp) *CoreError {
	if _, live := c.pending[id]; live {
		return coreError(ErrCodeDuplicateRequest, "request id already outstanding")
	}
	c.pending[id] = pendingRequest{
		id:        id,
		kind:      kind,
		op:        op,
		createdAt: time.Now(),
	}
	return nil
}

// resolve removes and returns the entry for id. A miss means the response
// raced against local cancellation and should be dropped by the caller.
func (c *correlator) resolve(id uint64) (pendingRequest, bool) {
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return req, ok
}

func (c *correlator) outstanding() int {
	return len(c.pending)
}
