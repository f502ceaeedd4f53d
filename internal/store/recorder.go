package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ringline/ringline-server/internal/core"
)

// Recorder turns orchestrator events into call detail records. It runs on
// the manager's dispatch goroutine, so every write uses a short timeout and
// failures are logged rather than surfaced.
type Recorder struct {
	store   Store
	log     *zerolog.Logger
	timeout time.Duration
}

// NewRecorder creates a recorder writing to the given store.
func NewRecorder(s Store, log *zerolog.Logger) *Recorder {
	return &Recorder{
		store:   s,
		log:     log,
		timeout: 2 * time.Second,
	}
}

// OnEvent implements core.Observer.
func (r *Recorder) OnEvent(ev core.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var err error
	switch ev.Kind {
	case core.EventOutgoingCall, core.EventIncomingCall:
		err = r.store.CreateCall(ctx, &CallRecord{
			ID:        ev.CallID.String(),
			PeerID:    ev.Remote,
			DeviceID:  uint32(ev.DeviceID),
			Direction: ev.Direction.String(),
			MediaType: ev.MediaType.String(),
			Status:    CallStatusRinging,
			StartedAt: time.Now().UTC(),
		})
	case core.EventCallStateChanged:
		switch ev.State {
		case core.CallStateConnected:
			err = r.store.MarkCallConnected(ctx, ev.CallID.String(), time.Now().UTC())
		case core.CallStateTerminated:
			err = r.store.MarkCallEnded(ctx, ev.CallID.String(), ev.Reason.String(), time.Now().UTC())
		}
	case core.EventGroupRing:
		now := time.Now().UTC()
		err = r.store.CreateRing(ctx, &RingRecord{
			RingID:    int64(ev.RingID),
			GroupID:   ev.GroupID,
			SenderID:  ev.Sender,
			Status:    RingStatusRinging,
			CreatedAt: now,
			UpdatedAt: now,
		})
	case core.EventGroupRingCancelled:
		err = r.store.MarkRingCancelled(ctx, int64(ev.RingID), time.Now().UTC())
	default:
		return
	}

	if err != nil {
		r.log.Error().Err(err).
			Int("kind", int(ev.Kind)).
			Str("call_id", ev.CallID.String()).
			Msg("record call event")
	}
}

var _ core.Observer = (*Recorder)(nil)
