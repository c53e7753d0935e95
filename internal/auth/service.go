package auth

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"chat-client/internal/models"
	"chat-client/internal/websocket"
	"chat-client/pkg/logger"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Authenticator is the REST side of the session: it issues and revokes credentials.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (models.LoginResponse, error)
	Logout(ctx context.Context) error
}

type Service struct {
	api  Authenticator
	gate *Gate
}

func NewService(api Authenticator, gate *Gate) *Service {
	return &Service{api: api, gate: gate}
}

// Login authenticates against the backend and opens the realtime connection.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("missing required fields")
	}
	if !isValidEmail(email) {
		return nil, fmt.Errorf("invalid email format")
	}

	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	session := NewSession(resp.Token, resp.User)
	if err := s.gate.SetSession(session); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	logger.Info("Logged in as %s", resp.User.Email)
	return session, nil
}

// Resume starts a session from a stored token, e.g. CHAT_TOKEN.
func (s *Service) Resume(token string) (*Session, error) {
	session := NewSession(token, models.User{})
	if session.Token() == "" {
		return nil, websocket.ErrAuthMissing
	}
	if err := s.gate.SetSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Logout revokes the credential on the server, best effort, and stops the connection.
func (s *Service) Logout(ctx context.Context) error {
	if s.gate.Session() != nil {
		if err := s.api.Logout(ctx); err != nil {
			logger.Warn("Logout request failed: %v", err)
		}
	}
	return s.gate.Clear()
}

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}
