package ports

import (
	"context"
	"time"

	"github.com/avatarctic/herdbook/go/internal/core/domain/auth"
	"github.com/avatarctic/herdbook/go/internal/core/domain/user"
)

// SessionService resolves and renews sessions issued by the identity provider.
type SessionService interface {
	// ResolveSession verifies token, refreshes the session's activity and returns
	// the caller's identity. refresh is non-nil when the token was rotated.
	// Every failure is an authentication error.
	ResolveSession(ctx context.Context, token string, ipAddress, userAgent string) (identity *auth.Identity, refresh *auth.SessionRefresh, err error)
	IssueSession(ctx context.Context, u *user.User, ipAddress, userAgent string) (*auth.SessionRefresh, error)
	RevokeSession(ctx context.Context, sessionID string) error
}

// SessionRepository defines the interface for session storage operations
type SessionRepository interface {
	Store(ctx context.Context, s *auth.Session, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*auth.Session, error)
	// Touch records activity and extends the session's TTL.
	Touch(ctx context.Context, sessionID string, ipAddress, userAgent string, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}
