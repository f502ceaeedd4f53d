package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ringline/ringline-server/internal/core"
	"github.com/ringline/ringline-server/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to the call manager.
// Commands flow in over the socket; orchestrator events flow back out
// through the broadcaster subscription.
type WSHandler struct {
	manager     *core.Manager
	broadcaster *Broadcaster
	defaults    commandDefaults
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(manager *core.Manager, broadcaster *Broadcaster, defaults commandDefaults, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		manager:     manager,
		broadcaster: broadcaster,
		defaults:    defaults,
		log:         logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	subID := uuid.NewString()
	events := h.broadcaster.Subscribe(subID)
	defer h.broadcaster.Unsubscribe(subID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, subID)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, events)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("subscriber", subID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, subID string) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		protoErr, err := applyInbound(h.manager, h.defaults, inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("subscriber", subID).Str("type", inbound.Type).Msg("failed to decode inbound")
			return err
		}
		if protoErr != nil {
			h.log.Debug().Str("subscriber", subID).Str("type", inbound.Type).Str("code", protoErr.Code).Msg("inbound rejected")
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan proto.Outbound) error {
	for {
		select {
		case out, ok := <-events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, out); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
