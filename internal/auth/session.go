package auth

import (
	"strings"
	"time"

	"chat-client/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// userIDClaims are checked in order when the login response did not carry a user id.
var userIDClaims = []string{"user_uuid", "uuid", "sub", "user_id"}

// Session is the authenticated context handed to the connection layer. A nil
// *Session is valid and has no token.
type Session struct {
	token     string
	User      models.User
	ExpiresAt time.Time

	now func() time.Time
}

// NewSession inspects token without verifying it. JWTs contribute their expiry and,
// when user has no id, the user id; any other token is accepted as opaque.
func NewSession(token string, user models.User) *Session {
	s := &Session{
		token: strings.TrimSpace(token),
		User:  user,
		now:   time.Now,
	}
	if s.token == "" {
		return s
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.token, claims); err != nil {
		return s
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	if s.User.ID == "" {
		for _, name := range userIDClaims {
			if v, ok := claims[name].(string); ok && strings.TrimSpace(v) != "" {
				s.User.ID = models.CanonicalUserID(v)
				break
			}
		}
	}
	return s
}

// Token returns the credential, or "" when it is missing or expired.
func (s *Session) Token() string {
	if s == nil || s.token == "" || s.Expired() {
		return ""
	}
	return s.token
}

func (s *Session) Expired() bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !s.now().Before(s.ExpiresAt)
}

func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}
