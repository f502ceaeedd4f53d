package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Call-link and peek flows share one shape: register a correlator entry
// under the caller's request id, hand the request to the HTTP collaborator,
// and resume through ReceivedHTTPResponse / HTTPRequestFailed.

type callLinkUpdate struct {
	Name         *string               `json:"name,omitempty"`
	Restrictions *CallLinkRestrictions `json:"restrictions,omitempty"`
	Revoked      *bool                 `json:"revoked,omitempty"`
}

// ReadCallLink fetches the current state of a call link.
func (m *Manager) ReadCallLink(requestID uint64, sfuURL string, authPresentation, rootKey []byte) error {
	return m.sendCallLinkRequest(requestID, opReadCallLink, http.MethodGet, sfuURL, authPresentation, rootKey, nil, nil)
}

// CreateCallLink provisions a new call link. The admin passkey authorizes
// later mutations; public params describe the link to other members.
func (m *Manager) CreateCallLink(requestID uint64, sfuURL string, createPresentation, rootKey, adminPasskey, publicParams []byte) error {
	body := map[string]string{
		"admin_passkey": base64.StdEncoding.EncodeToString(adminPasskey),
		"public_params": base64.StdEncoding.EncodeToString(publicParams),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode create call link body: %w", err)
	}
	return m.sendCallLinkRequest(requestID, opCreateCallLink, http.MethodPut, sfuURL, createPresentation, rootKey, adminPasskey, payload)
}

// UpdateCallLink mutates name, restrictions or revocation on a call link.
// Nil fields are left unchanged by the service.
func (m *Manager) UpdateCallLink(requestID uint64, sfuURL string, authPresentation, rootKey, adminPasskey []byte, newName *string, newRestrictions *CallLinkRestrictions, newRevoked *bool) error {
	payload, err := json.Marshal(callLinkUpdate{
		Name:         newName,
		Restrictions: newRestrictions,
		Revoked:      newRevoked,
	})
	if err != nil {
		return fmt.Errorf("encode update call link body: %w", err)
	}
	return m.sendCallLinkRequest(requestID, opUpdateCallLink, http.MethodPatch, sfuURL, authPresentation, rootKey, adminPasskey, payload)
}

func (m *Manager) sendCallLinkRequest(requestID uint64, op requestOp, method, sfuURL string, presentation, rootKey, adminPasskey, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	if m.requester == nil {
		return coreError(ErrCodeInvalidState, "no http requester configured")
	}
	if err := m.verifier.VerifyCredentialPresentation(presentation); err != nil {
		return coreError(ErrCodePermissionDenied, "credential presentation rejected")
	}
	if err := m.requests.register(requestID, RequestHTTPCorrelated, op); err != nil {
		return err
	}

	headers := map[string]string{
		"X-Auth-Credential": base64.StdEncoding.EncodeToString(presentation),
		"X-Room-Key":        base64.StdEncoding.EncodeToString(rootKey),
	}
	if len(adminPasskey) > 0 {
		headers["X-Admin-Passkey"] = base64.StdEncoding.EncodeToString(adminPasskey)
	}
	if len(body) > 0 {
		headers["Content-Type"] = "application/json"
	}

	m.requester.Send(HTTPRequest{
		RequestID: requestID,
		Method:    method,
		URL:       callLinkURL(sfuURL),
		Headers:   headers,
		Body:      body,
	})
	return nil
}

// PeekGroupCall queries the SFU for the state of a group call without
// joining it.
func (m *Manager) PeekGroupCall(requestID uint64, sfuURL string, membershipProof, serializedMembers []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	if m.requester == nil {
		return coreError(ErrCodeInvalidState, "no http requester configured")
	}
	if err := m.verifier.VerifyMembershipProof(membershipProof); err != nil {
		return coreError(ErrCodePermissionDenied, "membership proof rejected")
	}
	if err := m.requests.register(requestID, RequestPeekQuery, opPeekGroupCall); err != nil {
		return err
	}

	m.requester.Send(HTTPRequest{
		RequestID: requestID,
		Method:    http.MethodGet,
		URL:       peekURL(sfuURL),
		Headers: map[string]string{
			"X-Membership-Proof": base64.StdEncoding.EncodeToString(membershipProof),
			"X-Group-Members":    base64.StdEncoding.EncodeToString(serializedMembers),
		},
	})
	return nil
}

// PeekCallLinkCall queries the SFU for the state of a call-link call.
func (m *Manager) PeekCallLinkCall(requestID uint64, sfuURL string, authPresentation, rootKey []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	if m.requester == nil {
		return coreError(ErrCodeInvalidState, "no http requester configured")
	}
	if err := m.verifier.VerifyCredentialPresentation(authPresentation); err != nil {
		return coreError(ErrCodePermissionDenied, "credential presentation rejected")
	}
	if err := m.requests.register(requestID, RequestPeekQuery, opPeekCallLinkCall); err != nil {
		return err
	}

	m.requester.Send(HTTPRequest{
		RequestID: requestID,
		Method:    http.MethodGet,
		URL:       peekURL(sfuURL),
		Headers: map[string]string{
			"X-Auth-Credential": base64.StdEncoding.EncodeToString(authPresentation),
			"X-Room-Key":        base64.StdEncoding.EncodeToString(rootKey),
		},
	})
	return nil
}

// ReceivedHTTPResponse resumes the operation waiting on requestID. An
// unknown id is a stale or duplicate response racing local cancellation;
// it is logged and dropped.
func (m *Manager) ReceivedHTTPResponse(requestID uint64, status int, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	req, ok := m.requests.resolve(requestID)
	if !ok {
		m.log.Warn().Uint64("request_id", requestID).Msg("response for unknown request dropped")
		return
	}

	if status < 200 || status > 299 {
		m.emitRequestFailureLocked(req, status)
		return
	}

	switch req.kind {
	case RequestPeekQuery:
		var peek PeekInfo
		if err := json.Unmarshal(body, &peek); err != nil {
			m.log.Warn().Uint64("request_id", requestID).Err(err).Msg("malformed peek response")
			m.emitRequestFailureLocked(req, status)
			return
		}
		m.emit(Event{Kind: EventPeekCompleted, RequestID: requestID, HTTPStatus: status, Peek: &peek})
	case RequestHTTPCorrelated:
		var link CallLinkState
		if err := json.Unmarshal(body, &link); err != nil {
			m.log.Warn().Uint64("request_id", requestID).Err(err).Msg("malformed call link response")
			m.emitRequestFailureLocked(req, status)
			return
		}
		m.emit(Event{Kind: EventCallLinkCompleted, RequestID: requestID, HTTPStatus: status, Link: &link})
	}
}

// HTTPRequestFailed fails the operation waiting on requestID. Unknown ids
// are dropped for the same reason as in ReceivedHTTPResponse.
func (m *Manager) HTTPRequestFailed(requestID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	req, ok := m.requests.resolve(requestID)
	if !ok {
		m.log.Warn().Uint64("request_id", requestID).Msg("failure for unknown request dropped")
		return
	}
	m.emitRequestFailureLocked(req, 0)
}

func (m *Manager) emitRequestFailureLocked(req pendingRequest, status int) {
	kind := EventCallLinkFailed
	if req.kind == RequestPeekQuery {
		kind = EventPeekFailed
	}
	m.emit(Event{
		Kind:       kind,
		RequestID:  req.id,
		HTTPStatus: status,
		Err:        coreError(ErrCodeAllocationFailed, "request to calling service failed"),
	})
}

// OutstandingRequests reports how many round trips are still pending.
func (m *Manager) OutstandingRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests.outstanding()
}

func callLinkURL(sfuURL string) string {
	return strings.TrimRight(sfuURL, "/") + "/v1/call-link"
}

func peekURL(sfuURL string) string {
	return strings.TrimRight(sfuURL, "/") + "/v1/conference"
}
