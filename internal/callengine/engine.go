package callengine

import "context"

// JoinInfo contains credentials for a group-call client to reach the SFU.
type JoinInfo struct {
	URL      string `json:"url"`       // media WebSocket URL
	Token    string `json:"token"`     // signed join token
	RoomName string `json:"room_name"` // SFU room name
	Identity string `json:"identity"`  // client identity in the room
}

// Engine abstracts the media backend used for group calls. Implementations
// mint join credentials; the orchestrator core never sees them.
type Engine interface {
	// GroupJoinInfo creates join credentials for a group room.
	GroupJoinInfo(ctx context.Context, room, identity, name string) (*JoinInfo, error)
}
