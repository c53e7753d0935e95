// Package api is the REST collaborator: login, room listing, history and membership.
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
	"sync"
	"time"

	"chat-client/internal/models"
)

// ErrUnauthorized is returned for 401 responses.
var ErrUnauthorized = errors.New("api: unauthorized")

// Error is a non-2xx response or an envelope that reported failure.
type Error struct {
	Path       string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request %s failed: %s", e.Path, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("request %s failed: %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("request %s failed: %d (%s)", e.Path, e.StatusCode, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetToken sets the bearer credential for later requests. An empty token clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Login(ctx context.Context, email, password string) (models.LoginResponse, error) {
	var out struct {
		Token string             `json:"token"`
		User  models.BackendUser `json:"user"`
	}
	req := models.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &out); err != nil {
		return models.LoginResponse{}, err
	}
	if out.Token == "" {
		return models.LoginResponse{}, &Error{Path: "/auth/login", Message: "response carried no token"}
	}
	return models.LoginResponse{Token: out.Token, User: models.NormalizeUser(out.User)}, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (c *Client) Me(ctx context.Context) (models.User, error) {
	var out models.BackendUser
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return models.User{}, err
	}
	return models.NormalizeUser(out), nil
}

func (c *Client) ListRooms(ctx context.Context) ([]models.BackendRoom, error) {
	var rooms []models.BackendRoom
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// GetRoomMessages returns raw history payloads; callers normalize them.
func (c *Client) GetRoomMessages(ctx context.Context, roomID int64, limit, offset int) ([]models.MessagePayload, error) {
	path := fmt.Sprintf("/rooms/%d/messages?limit=%d&offset=%d", roomID, limit, offset)

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	var messages []models.MessagePayload
	if err := json.Unmarshal(raw, &messages); err == nil {
		return messages, nil
	}
	var wrapped struct {
		Messages []models.MessagePayload `json:"messages"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return wrapped.Messages, nil
}

// SendMessage posts a message over REST. It is the fallback path when the realtime
// connection is not used.
func (c *Client) SendMessage(ctx context.Context, roomID int64, content string) (models.MessagePayload, error) {
	var out models.MessagePayload
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/rooms/%d/messages", roomID), body, &out); err != nil {
		return models.MessagePayload{}, err
	}
	return out, nil
}

func (c *Client) GetRoomMembers(ctx context.Context, roomID int64) ([]models.Member, error) {
	var users []models.BackendUser
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/rooms/%d/members", roomID), nil, &users); err != nil {
		return nil, err
	}
	members := make([]models.Member, 0, len(users))
	for _, u := range users {
		members = append(members, models.NormalizeMember(u))
	}
	return members, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if env, ok := parseEnvelope(respBody); ok && env.Message != "" {
			msg = env.Message
		}
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return &Error{Path: path, StatusCode: resp.StatusCode, Message: msg}
	}

	data, err := unwrap(path, respBody)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// envelope covers both {success, message, data} and {status, message, data}.
type envelope struct {
	Success *bool           `json:"success"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) ok() bool {
	return e.Status == "success" || (e.Success != nil && *e.Success)
}

func parseEnvelope(body []byte) (envelope, bool) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, false
	}
	if env.Success == nil && env.Status == "" {
		return envelope{}, false
	}
	return env, true
}

// unwrap returns the payload of an envelope, or the body itself when the response
// is bare JSON.
func unwrap(path string, body []byte) (json.RawMessage, error) {
	env, isEnvelope := parseEnvelope(body)
	if !isEnvelope {
		return body, nil
	}
	if !env.ok() {
		msg := env.Message
		if msg == "" {
			msg = "request unsuccessful"
		}
		return nil, &Error{Path: path, Message: msg}
	}
	if string(env.Data) == "null" {
		return nil, nil
	}
	return env.Data, nil
}
