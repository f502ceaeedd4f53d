package livekit

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/ringline/ringline-server/internal/callengine"
)

// Engine implements callengine.Engine using LiveKit as the media backend.
type Engine struct {
	apiKey    string
	apiSecret string
	wsURL     string
}

// New creates a LiveKit-backed engine.
func New(apiKey, apiSecret, wsURL string) *Engine {
	return &Engine{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
	}
}

// GroupJoinInfo mints a join token for the given room. Rooms are created
// on demand when the first participant joins, so no provisioning call is
// needed here.
func (e *Engine) GroupJoinInfo(_ context.Context, room, identity, name string) (*callengine.JoinInfo, error) {
	if room == "" || identity == "" {
		return nil, fmt.Errorf("room and identity are required")
	}

	at := auth.NewAccessToken(e.apiKey, e.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(time.Hour)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &callengine.JoinInfo{
		URL:      e.wsURL,
		Token:    token,
		RoomName: room,
		Identity: identity,
	}, nil
}

var _ callengine.Engine = (*Engine)(nil)
