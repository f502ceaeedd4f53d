package core

// clientRegistry is a generation-checked slot map for group-call clients.
// ClientIDs pack a slot index and a generation counter; deleting a client
// bumps the slot generation so stale handles fail to resolve instead of
// silently hitting a reused slot.
type clientRegistry struct {
	slots []clientSlot
	free  []uint32
}

type clientSlot struct {
	gen    uint32
	client *groupCallClient
}

const registryIndexMask = 0xffffffff

func makeClientID(index, gen uint32) ClientID {
	// index+1 keeps the zero value reserved for InvalidClientID.
	return ClientID(uint64(gen)<<32 | uint64(index+1))
}

func splitClientID(id ClientID) (index, gen uint32, ok bool) {
	raw := uint64(id) & registryIndexMask
	if raw == 0 {
		return 0, 0, false
	}
	return uint32(raw - 1), uint32(uint64(id) >> 32), true
}

func (r *clientRegistry) insert(c *groupCallClient) ClientID {
	var index uint32
	if n := len(r.free); n > 0 {
		index = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, clientSlot{gen: 1})
		index = uint32(len(r.slots) - 1)
	}
	slot := &r.slots[index]
	slot.client = c
	id := makeClientID(index, slot.gen)
	c.id = id
	return id
}

// resolve returns the live client for id, or UnknownClient. Deleted and
// malformed handles fail loudly rather than being ignored.
func (r *clientRegistry) resolve(id ClientID) (*groupCallClient, *CoreError) {
	index, gen, ok := splitClientID(id)
	if !ok || int(index) >= len(r.slots) {
		return nil, coreError(ErrCodeUnknownClient, "no such group call client")
	}
	slot := &r.slots[index]
	if slot.client == nil || slot.gen != gen {
		return nil, coreError(ErrCodeUnknownClient, "no such group call client")
	}
	return slot.client, nil
}

// remove frees the slot for id. The id is never resolvable again.
func (r *clientRegistry) remove(id ClientID) *CoreError {
	index, gen, ok := splitClientID(id)
	if !ok || int(index) >= len(r.slots) {
		return coreError(ErrCodeUnknownClient, "no such group call client")
	}
	slot := &r.slots[index]
	if slot.client == nil || slot.gen != gen {
		return coreError(ErrCodeUnknownClient, "no such group call client")
	}
	slot.client = nil
	slot.gen++
	r.free = append(r.free, index)
	return nil
}

// each visits every live client.
func (r *clientRegistry) each(fn func(c *groupCallClient)) {
	for i := range r.slots {
		if c := r.slots[i].client; c != nil {
			fn(c)
		}
	}
}

func (r *clientRegistry) liveCount() int {
	n := 0
	for i := range r.slots {
		if r.slots[i].client != nil {
			n++
		}
	}
	return n
}
