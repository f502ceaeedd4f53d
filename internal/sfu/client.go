// Package sfu is the HTTP collaborator for peek and call-link round trips.
// It owns timeouts and transport concerns; the orchestrator only learns
// "completed" or "failed" through the Completer callback.
package sfu

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ringline/ringline-server/internal/core"
)

// Completer receives round-trip results keyed by request id. The call
// manager implements it.
type Completer interface {
	ReceivedHTTPResponse(requestID uint64, status int, body []byte)
	HTTPRequestFailed(requestID uint64)
}

const maxResponseBody = 1 << 20

// Client performs outbound requests for the orchestrator. Send never
// blocks the caller; each round trip runs on its own goroutine.
type Client struct {
	http       *http.Client
	log        zerolog.Logger
	authSecret []byte
	issuer     string
	completer  Completer
}

// Options configures a Client.
type Options struct {
	Timeout    time.Duration
	AuthSecret []byte
	Issuer     string
	Logger     *zerolog.Logger
}

// New builds a client. Bind must be called with the completer before the
// first Send; construction is split so the manager can take the client as
// its Requester.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		log:        logger.With().Str("component", "sfu_client").Logger(),
		authSecret: append([]byte(nil), opts.AuthSecret...),
		issuer:     opts.Issuer,
	}
}

// Bind installs the completion callback.
func (c *Client) Bind(completer Completer) {
	c.completer = completer
}

// Send performs the request asynchronously and reports the outcome to the
// bound completer.
func (c *Client) Send(req core.HTTPRequest) {
	go c.do(req)
}

func (c *Client) do(req core.HTTPRequest) {
	if c.completer == nil {
		c.log.Error().Uint64("request_id", req.RequestID).Msg("send before bind, dropping request")
		return
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequest(req.Method, req.URL, body)
	if err != nil {
		c.log.Warn().Uint64("request_id", req.RequestID).Err(err).Msg("build request")
		c.completer.HTTPRequestFailed(req.RequestID)
		return
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if len(c.authSecret) > 0 {
		token, terr := c.mintToken()
		if terr != nil {
			c.log.Warn().Uint64("request_id", req.RequestID).Err(terr).Msg("mint auth token")
			c.completer.HTTPRequestFailed(req.RequestID)
			return
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn().Uint64("request_id", req.RequestID).Err(err).Msg("request failed")
		c.completer.HTTPRequestFailed(req.RequestID)
		return
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		c.log.Warn().Uint64("request_id", req.RequestID).Err(err).Msg("read response body")
		c.completer.HTTPRequestFailed(req.RequestID)
		return
	}

	c.log.Debug().
		Uint64("request_id", req.RequestID).
		Int("status", resp.StatusCode).
		Msg("request completed")
	c.completer.ReceivedHTTPResponse(req.RequestID, resp.StatusCode, payload)
}

// mintToken signs a short-lived service token for the calling service.
func (c *Client) mintToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Audience:  jwt.ClaimStrings{"sfu"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(30 * time.Second)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.authSecret)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}

var _ core.Requester = (*Client)(nil)
