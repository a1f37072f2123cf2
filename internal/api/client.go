package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nema-ac/worminal/internal/models"
)

// TokenSource supplies the bearer token attached to authenticated calls.
// An empty token means the call goes out unauthenticated.
type TokenSource interface {
	Token() string
}

// Wire shapes of the Worminal REST surface. The simulator reuses these
// so client and server cannot drift apart.

type SessionResponse struct {
	Session         *models.Session `json:"session"`
	TimeRemainingMS int64           `json:"time_remaining_ms"`
	OpenForAnyone   bool            `json:"open_for_anyone"`
}

type CanClaimResponse struct {
	CanClaim bool   `json:"can_claim"`
	Reason   string `json:"reason"`
}

type ClaimResponse struct {
	Session *models.Session `json:"session"`
}

type AccessResponse struct {
	HasAccess bool `json:"has_access"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
}

// GetSession fetches the authoritative session snapshot (public).
func (c *Client) GetSession(ctx context.Context) (*models.SessionSnapshot, error) {
	var resp SessionResponse
	if err := c.do(ctx, http.MethodGet, "/worminal/session", false, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Session != nil {
		resp.Session.OpenForAnyone = resp.OpenForAnyone
	}
	return &models.SessionSnapshot{
		Session:         resp.Session,
		TimeRemainingMS: resp.TimeRemainingMS,
	}, nil
}

// CanClaim asks the server whether the local identity may claim the
// pending session. The server is the sole arbiter of claim races.
func (c *Client) CanClaim(ctx context.Context) (models.ClaimEligibility, error) {
	var resp CanClaimResponse
	if err := c.do(ctx, http.MethodGet, "/worminal/can-claim", true, nil, &resp); err != nil {
		return models.ClaimEligibility{Reason: models.ClaimReasonError}, err
	}
	return models.ClaimEligibility{
		CanClaim: resp.CanClaim,
		Reason:   models.ClaimReason(resp.Reason),
	}, nil
}

// Claim attempts to take exclusive control of the pending session.
// A 409 means another identity won the race.
func (c *Client) Claim(ctx context.Context) (*models.Session, error) {
	var resp ClaimResponse
	if err := c.do(ctx, http.MethodPost, "/worminal/claim", true, nil, &resp); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusConflict {
			return nil, fmt.Errorf("%w: %s", models.ErrAlreadyClaimed, se.Body)
		}
		return nil, err
	}
	return resp.Session, nil
}

// CheckAccess asks the server whether the local identity may act on the
// active session. Identity comparison alone is not enough: the session
// can be reassigned underneath a stale snapshot.
func (c *Client) CheckAccess(ctx context.Context) (bool, error) {
	var resp AccessResponse
	if err := c.do(ctx, http.MethodGet, "/worminal/access", true, nil, &resp); err != nil {
		return false, err
	}
	return resp.HasAccess, nil
}

// GetPublicState fetches the spectator snapshot (public).
func (c *Client) GetPublicState(ctx context.Context) (*models.PublicSnapshot, error) {
	var resp models.PublicSnapshot
	if err := c.do(ctx, http.MethodGet, "/worminal/", false, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp LoginResponse
	req := LoginRequest{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", false, req, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, method, path string, authed bool, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed && c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
	}
	return nil
}
