package services

import (
	"context"
	"fmt"
	"time"

	config "github.com/avatarctic/herdbook/go/configs"
	"github.com/avatarctic/herdbook/go/internal/core/domain/auth"
	"github.com/avatarctic/herdbook/go/internal/core/domain/user"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionService adapts the identity provider's session tokens into identities.
type SessionService struct {
	userRepo   ports.UserRepository
	tenantRepo ports.TenantRepository
	sessions   ports.SessionRepository
	cfg        *config.SessionConfig
	logger     *logrus.Logger
	now        func() time.Time
}

func NewSessionService(userRepo ports.UserRepository, tenantRepo ports.TenantRepository, sessions ports.SessionRepository, cfg *config.SessionConfig, logger *logrus.Logger) ports.SessionService {
	return &SessionService{
		userRepo:   userRepo,
		tenantRepo: tenantRepo,
		sessions:   sessions,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *SessionService) ResolveSession(ctx context.Context, token string, ipAddress, userAgent string) (*auth.Identity, *auth.SessionRefresh, error) {
	if token == "" {
		return nil, nil, ports.NewAuthenticationError("missing session token", nil)
	}
	claims, err := s.parseToken(token)
	if err != nil {
		return nil, nil, ports.NewAuthenticationError("invalid session token", err)
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, nil, ports.NewAuthenticationError("session not found - it may have been revoked", err)
	}
	if sess.UserID != claims.UserID || sess.OrgID != claims.OrgID {
		return nil, nil, ports.NewAuthenticationError("session validation failed - token/session mismatch", nil)
	}

	now := s.now()
	if now.Sub(sess.LastActivity) > s.cfg.SessionTimeout {
		if err := s.sessions.Delete(ctx, sess.ID); err != nil && s.logger != nil {
			s.logger.WithFields(logrus.Fields{"session_id": sess.ID, "user_id": sess.UserID}).WithError(err).Warn("failed to delete timed-out session")
		}
		return nil, nil, ports.NewAuthenticationError("session timed out due to inactivity", nil)
	}

	// Activity is recorded before any authorization decision is made.
	if err := s.sessions.Touch(ctx, sess.ID, ipAddress, userAgent, s.cfg.SessionTimeout); err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"session_id": sess.ID, "user_id": sess.UserID}).WithError(err).Warn("failed to update session activity")
		}
	}

	u, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, ports.NewAuthenticationError("user not found", err)
	}
	if u.OrgID != claims.OrgID {
		return nil, nil, ports.NewAuthenticationError("user does not belong to session org", nil)
	}
	if !u.CanSignIn() {
		return nil, nil, ports.NewAuthenticationError(fmt.Sprintf("user account is %s", u.Status), nil)
	}
	t, err := s.tenantRepo.GetByID(ctx, u.OrgID)
	if err != nil {
		return nil, nil, ports.NewAuthenticationError("tenant not found", err)
	}
	if !t.CanAccess() {
		return nil, nil, ports.NewAuthenticationError("tenant access is not available", nil)
	}

	identity := &auth.Identity{
		UserID:          u.ID,
		OrgID:           u.OrgID,
		Role:            u.Role,
		AccessProfileID: u.AccessProfileID,
		ExpiresAt:       claims.ExpiresAt.Time,
		SessionID:       sess.ID,
	}

	var refresh *auth.SessionRefresh
	if identity.ExpiresAt.Sub(now) <= s.cfg.RotateBefore {
		refresh, err = s.rotate(ctx, u, sess, ipAddress, userAgent)
		if err != nil {
			// The presented token is still valid; rotation is retried on the next request.
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{"session_id": sess.ID, "user_id": u.ID}).WithError(err).Warn("failed to rotate session token")
			}
		} else {
			identity.ExpiresAt = refresh.ExpiresAt
		}
	}
	return identity, refresh, nil
}

// IssueSession starts a new session for u.
func (s *SessionService) IssueSession(ctx context.Context, u *user.User, ipAddress, userAgent string) (*auth.SessionRefresh, error) {
	now := s.now()
	sess := &auth.Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		OrgID:     u.OrgID,
		CreatedAt: now,
	}
	return s.persist(ctx, u, sess, ipAddress, userAgent, now)
}

func (s *SessionService) RevokeSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ports.NewAuthenticationError("missing session id", nil)
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"session_id": sessionID}).Info("session revoked")
	}
	return nil
}

// rotate mints a new token for the same session and extends its record.
func (s *SessionService) rotate(ctx context.Context, u *user.User, sess *auth.Session, ipAddress, userAgent string) (*auth.SessionRefresh, error) {
	refresh, err := s.persist(ctx, u, sess, ipAddress, userAgent, s.now())
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"session_id": sess.ID, "user_id": u.ID}).Debug("session token rotated")
	}
	return refresh, nil
}

// persist signs a token for sess and stores the record with a fresh inactivity window.
func (s *SessionService) persist(ctx context.Context, u *user.User, sess *auth.Session, ipAddress, userAgent string, now time.Time) (*auth.SessionRefresh, error) {
	token, err := s.signToken(u, sess.ID, now)
	if err != nil {
		return nil, err
	}
	sess.ExpiresAt = now.Add(s.cfg.TokenTTL)
	sess.LastActivity = now
	if ipAddress != "" {
		sess.IPAddress = ipAddress
	}
	if userAgent != "" {
		sess.UserAgent = userAgent
	}
	if err := s.sessions.Store(ctx, sess, s.cfg.SessionTimeout); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return &auth.SessionRefresh{Token: token, ExpiresAt: sess.ExpiresAt}, nil
}

func (s *SessionService) signToken(u *user.User, sessionID string, now time.Time) (string, error) {
	claims := &auth.Claims{
		UserID:    u.ID,
		OrgID:     u.OrgID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

func (s *SessionService) parseToken(tokenString string) (*auth.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &auth.Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Ensure the token's signing method is HMAC (prevent alg confusion)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(*auth.Claims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.SessionID == "" || claims.UserID == uuid.Nil || claims.OrgID == uuid.Nil {
		return nil, fmt.Errorf("token is missing session claims")
	}
	return claims, nil
}
