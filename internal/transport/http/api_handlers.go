package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ringline/ringline-server/internal/auth"
	"github.com/ringline/ringline-server/internal/callengine"
	"github.com/ringline/ringline-server/internal/core"
	"github.com/ringline/ringline-server/internal/store"
	"github.com/ringline/ringline-server/internal/utils"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	manager   *core.Manager
	store     store.Store
	engine    callengine.Engine
	jwtConfig *auth.JWTConfig
	log       *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(manager *core.Manager, st store.Store, engine callengine.Engine, jwtConfig *auth.JWTConfig, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		manager:   manager,
		store:     st,
		engine:    engine,
		jwtConfig: jwtConfig,
		log:       logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TokenRequest represents the token issue request body.
type TokenRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	DeviceID uint32 `json:"device_id"`
}

// TokenResponse represents the token issue response body.
type TokenResponse struct {
	Token string `json:"token"`
}

// AcceptedResponse carries the correlation id of an async request. The
// result arrives on the event stream as request_completed or
// request_failed with the same id.
type AcceptedResponse struct {
	RequestID uint64 `json:"request_id"`
}

// IssueToken mints a signaling token for one user device. The endpoint is
// unauthenticated; deployments front it with their own identity layer.
// POST /api/token
func (h *APIHandlers) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := auth.GenerateToken(h.jwtConfig, req.UserID, req.DeviceID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("failed to issue token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// CallInfoResponse represents the active call in API responses.
type CallInfoResponse struct {
	CallID       string `json:"call_id"`
	Remote       string `json:"remote"`
	RemoteDevice uint32 `json:"remote_device,omitempty"`
	LocalDevice  uint32 `json:"local_device"`
	Direction    string `json:"direction"`
	MediaType    string `json:"media_type"`
	State        string `json:"state"`
	DataMode     string `json:"data_mode"`
	VideoEnabled bool   `json:"video_enabled"`
	EndReason    string `json:"end_reason,omitempty"`
}

// CurrentCall returns the tracked 1:1 session, if any.
// GET /api/calls/current
func (h *APIHandlers) CurrentCall(c *gin.Context) {
	info, ok := h.manager.CurrentCall()
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no active call"})
		return
	}

	resp := CallInfoResponse{
		CallID:       info.CallID.String(),
		Remote:       info.Remote,
		RemoteDevice: uint32(info.RemoteDevice),
		LocalDevice:  uint32(info.LocalDevice),
		Direction:    info.Direction.String(),
		MediaType:    info.MediaType.String(),
		State:        info.State.String(),
		DataMode:     info.DataMode.String(),
		VideoEnabled: info.VideoEnabled,
	}
	if info.State == core.CallStateTerminated {
		resp.EndReason = info.EndReason.String()
	}
	c.JSON(http.StatusOK, resp)
}

// CallRecordResponse represents one call detail record.
type CallRecordResponse struct {
	ID          string  `json:"id"`
	PeerID      string  `json:"peer_id"`
	DeviceID    uint32  `json:"device_id"`
	Direction   string  `json:"direction"`
	MediaType   string  `json:"media_type"`
	Status      string  `json:"status"`
	EndReason   *string `json:"end_reason,omitempty"`
	StartedAt   string  `json:"started_at"`
	ConnectedAt *string `json:"connected_at,omitempty"`
	EndedAt     *string `json:"ended_at,omitempty"`
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func recordToResponse(rec *store.CallRecord) CallRecordResponse {
	resp := CallRecordResponse{
		ID:        rec.ID,
		PeerID:    rec.PeerID,
		DeviceID:  rec.DeviceID,
		Direction: rec.Direction,
		MediaType: rec.MediaType,
		Status:    string(rec.Status),
		EndReason: rec.EndReason,
		StartedAt: rec.StartedAt.Format(timeLayout),
	}
	if rec.ConnectedAt != nil {
		s := rec.ConnectedAt.Format(timeLayout)
		resp.ConnectedAt = &s
	}
	if rec.EndedAt != nil {
		s := rec.EndedAt.Format(timeLayout)
		resp.EndedAt = &s
	}
	return resp
}

// RecentCalls lists the newest call detail records.
// GET /api/calls/recent
func (h *APIHandlers) RecentCalls(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	recs, err := h.store.ListRecentCalls(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list recent calls")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]CallRecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordToResponse(rec))
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

// GetCall returns one call detail record.
// GET /api/calls/:id
func (h *APIHandlers) GetCall(c *gin.Context) {
	rec, err := h.store.GetCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "call not found"})
			return
		}
		h.log.Error().Err(err).Str("call_id", c.Param("id")).Msg("failed to get call")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, recordToResponse(rec))
}

// GroupClientResponse represents one group-call client snapshot.
type GroupClientResponse struct {
	ClientID   uint64 `json:"client_id"`
	State      string `json:"state"`
	Admin      bool   `json:"admin"`
	AudioMuted bool   `json:"audio_muted"`
	VideoMuted bool   `json:"video_muted"`
	DataMode   string `json:"data_mode"`
	RaisedHand bool   `json:"raised_hand"`
	KeyEpoch   uint32 `json:"key_epoch"`
	SFUURL     string `json:"sfu_url"`
}

// GroupClient returns a snapshot of one group-call client.
// GET /api/group/clients/:id
func (h *APIHandlers) GroupClient(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid client id"})
		return
	}

	info, err := h.manager.GroupClientSnapshot(core.ClientID(id))
	if err != nil {
		if errors.Is(err, core.ErrUnknownClient) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "client not found"})
			return
		}
		h.log.Error().Err(err).Uint64("client_id", id).Msg("failed to snapshot client")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, GroupClientResponse{
		ClientID:   uint64(info.ClientID),
		State:      info.State.String(),
		Admin:      info.Role == core.RoleAdmin,
		AudioMuted: info.AudioMuted,
		VideoMuted: info.VideoMuted,
		DataMode:   info.DataMode.String(),
		RaisedHand: info.RaisedHand,
		KeyEpoch:   info.KeyEpoch,
		SFUURL:     info.SFUURL,
	})
}

// JoinInfoRequest represents the join-info request body.
type JoinInfoRequest struct {
	Room string `json:"room" binding:"required"`
	Name string `json:"name"`
}

// JoinInfoResponse represents join credentials in API responses.
type JoinInfoResponse struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	RoomName string `json:"room_name"`
	Identity string `json:"identity"`
}

// GroupJoinInfo mints media join credentials for the caller.
// POST /api/group/join-info
func (h *APIHandlers) GroupJoinInfo(c *gin.Context) {
	if h.engine == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "media engine not configured"})
		return
	}

	var req JoinInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	identity := c.GetString(ContextKeyUserID)
	name := req.Name
	if name == "" {
		name = identity
	}

	info, err := h.engine.GroupJoinInfo(c.Request.Context(), req.Room, identity, name)
	if err != nil {
		h.log.Error().Err(err).Str("room", req.Room).Msg("failed to mint join info")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, JoinInfoResponse{
		URL:      info.URL,
		Token:    info.Token,
		RoomName: info.RoomName,
		Identity: info.Identity,
	})
}

// CreateCallLinkRequest represents the call-link creation body. Byte
// fields are base64.
type CreateCallLinkRequest struct {
	SFUURL             string `json:"sfu_url"`
	CreatePresentation []byte `json:"create_presentation" binding:"required"`
	RootKey            []byte `json:"root_key" binding:"required"`
	AdminPasskey       []byte `json:"admin_passkey" binding:"required"`
	PublicParams       []byte `json:"public_params" binding:"required"`
}

// CreateCallLink starts an async call-link creation round trip.
// POST /api/call-links
func (h *APIHandlers) CreateCallLink(c *gin.Context) {
	var req CreateCallLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	requestID := utils.NewRequestID()
	err := h.manager.CreateCallLink(requestID, req.SFUURL, req.CreatePresentation,
		req.RootKey, req.AdminPasskey, req.PublicParams)
	if err != nil {
		h.respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{RequestID: requestID})
}

// ReadCallLinkRequest represents the call-link read body.
type ReadCallLinkRequest struct {
	SFUURL           string `json:"sfu_url"`
	AuthPresentation []byte `json:"auth_presentation" binding:"required"`
	RootKey          []byte `json:"root_key" binding:"required"`
}

// ReadCallLink starts an async call-link read round trip.
// POST /api/call-links/read
func (h *APIHandlers) ReadCallLink(c *gin.Context) {
	var req ReadCallLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	requestID := utils.NewRequestID()
	if err := h.manager.ReadCallLink(requestID, req.SFUURL, req.AuthPresentation, req.RootKey); err != nil {
		h.respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{RequestID: requestID})
}

// UpdateCallLinkRequest represents the call-link update body. Only the
// fields present are changed.
type UpdateCallLinkRequest struct {
	SFUURL           string  `json:"sfu_url"`
	AuthPresentation []byte  `json:"auth_presentation" binding:"required"`
	RootKey          []byte  `json:"root_key" binding:"required"`
	AdminPasskey     []byte  `json:"admin_passkey" binding:"required"`
	Name             *string `json:"name,omitempty"`
	Restrictions     *string `json:"restrictions,omitempty"`
	Revoked          *bool   `json:"revoked,omitempty"`
}

// UpdateCallLink starts an async call-link update round trip.
// PATCH /api/call-links
func (h *APIHandlers) UpdateCallLink(c *gin.Context) {
	var req UpdateCallLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	var restrictions *core.CallLinkRestrictions
	if req.Restrictions != nil {
		var r core.CallLinkRestrictions
		switch *req.Restrictions {
		case "none":
			r = core.RestrictionsNone
		case "admin_approval":
			r = core.RestrictionsAdminApproval
		default:
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown restrictions value"})
			return
		}
		restrictions = &r
	}

	requestID := utils.NewRequestID()
	err := h.manager.UpdateCallLink(requestID, req.SFUURL, req.AuthPresentation,
		req.RootKey, req.AdminPasskey, req.Name, restrictions, req.Revoked)
	if err != nil {
		h.respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{RequestID: requestID})
}

// PeekGroupRequest represents the group peek body.
type PeekGroupRequest struct {
	SFUURL          string `json:"sfu_url"`
	MembershipProof []byte `json:"membership_proof" binding:"required"`
	Members         []byte `json:"members"`
}

// PeekGroupCall starts an async group peek round trip.
// POST /api/peek/group
func (h *APIHandlers) PeekGroupCall(c *gin.Context) {
	var req PeekGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	requestID := utils.NewRequestID()
	if err := h.manager.PeekGroupCall(requestID, req.SFUURL, req.MembershipProof, req.Members); err != nil {
		h.respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{RequestID: requestID})
}

// PeekLinkRequest represents the call-link peek body.
type PeekLinkRequest struct {
	SFUURL           string `json:"sfu_url"`
	AuthPresentation []byte `json:"auth_presentation" binding:"required"`
	RootKey          []byte `json:"root_key" binding:"required"`
}

// PeekCallLinkCall starts an async call-link peek round trip.
// POST /api/peek/link
func (h *APIHandlers) PeekCallLinkCall(c *gin.Context) {
	var req PeekLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	requestID := utils.NewRequestID()
	if err := h.manager.PeekCallLinkCall(requestID, req.SFUURL, req.AuthPresentation, req.RootKey); err != nil {
		h.respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{RequestID: requestID})
}

func (h *APIHandlers) respondCoreError(c *gin.Context, err error) {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		status := http.StatusConflict
		switch ce.Code {
		case core.ErrCodeAllocationFailed:
			status = http.StatusBadRequest
		case core.ErrCodeClosed:
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, ErrorResponse{Error: ce.Message})
		return
	}
	h.log.Error().Err(err).Msg("unexpected core error")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
