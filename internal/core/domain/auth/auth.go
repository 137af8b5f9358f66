package auth

import (
	"time"

	"github.com/avatarctic/herdbook/go/internal/core/domain/user"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity is a verified caller as handed to the authorization layer.
type Identity struct {
	UserID          uuid.UUID  `json:"user_id"`
	OrgID           uuid.UUID  `json:"org_id"`
	Role            user.Role  `json:"role"`
	AccessProfileID *uuid.UUID `json:"access_profile_id,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at"`
	SessionID       string     `json:"-"`
}

// Valid reports whether the identity is well formed and unexpired at now.
func (i *Identity) Valid(now time.Time) bool {
	if i == nil {
		return false
	}
	if i.UserID == uuid.Nil || i.OrgID == uuid.Nil || !i.Role.IsValid() {
		return false
	}
	return now.Before(i.ExpiresAt)
}

// Claims represents the session token issued by the identity provider
type Claims struct {
	UserID    uuid.UUID `json:"user_id"`
	OrgID     uuid.UUID `json:"org_id"`
	SessionID string    `json:"sid"`

	jwt.RegisteredClaims
}

// Session is the server-side record backing a token.
type Session struct {
	ID           string    `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	OrgID        uuid.UUID `json:"org_id"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SessionRefresh carries a rotated token back to the caller.
type SessionRefresh struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
