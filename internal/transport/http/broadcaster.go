package http

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/ringline/ringline-server/internal/core"
	"github.com/ringline/ringline-server/internal/proto"
)

const subscriberBuffer = 64

// Broadcaster fans orchestrator events out to connected WebSocket
// subscribers. Delivery to each subscriber is non-blocking; a subscriber
// that stops draining loses events rather than stalling the dispatch
// goroutine.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]chan proto.Outbound
	log  *zerolog.Logger
}

// NewBroadcaster builds an empty broadcaster.
func NewBroadcaster(logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]chan proto.Outbound),
		log:  logger,
	}
}

// Subscribe registers a subscriber and returns its event channel.
func (b *Broadcaster) Subscribe(id string) <-chan proto.Outbound {
	ch := make(chan proto.Outbound, subscriberBuffer)
	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// OnEvent implements core.Observer.
func (b *Broadcaster) OnEvent(ev core.Event) {
	out := outboundFromEvent(ev)

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- out:
		default:
			b.log.Warn().Str("subscriber", id).Str("event", out.Event).Msg("subscriber buffer full, dropping event")
		}
	}
}

var _ core.Observer = (*Broadcaster)(nil)
