// Package session holds the explicit session context passed to the
// transport. The core never reaches into another subsystem's global state
// to find the current session.
package session

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Session is the credential state for one logged-in account. Token is the
// backend-issued session JWT, encrypted when persisted at rest.
type Session struct {
	SessionID string `gorm:"column:session_id"`
	UserID    string `gorm:"column:user_id"`
	Token     string `gorm:"column:token" gocrypt:"aes"`
}

// Established reports whether a session exists at all.
func (s *Session) Established() bool {
	return s != nil && s.SessionID != ""
}

// Expired checks the token's exp claim against now. The token is parsed
// without signature verification; the client holds no verification key and
// only needs the local expiry pre-check. Tokens without an exp claim, or
// unparseable tokens, are treated as unexpired and left for the server to
// reject.
func (s *Session) Expired(now time.Time) bool {
	if !s.Established() || s.Token == "" {
		return false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(now)
}
