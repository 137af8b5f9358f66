package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avatarctic/herdbook/go/internal/core/domain/auth"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const sessionPrefix = "herdbook_sessions"

// ErrSessionNotFound is returned when a session is absent, expired or revoked.
var ErrSessionNotFound = errors.New("session not found or expired")

// SessionRedisRepository stores session records with a sliding TTL.
type SessionRedisRepository struct {
	client redis.Cmdable
	logger *logrus.Logger
	now    func() time.Time
}

func NewSessionRedisRepository(client redis.Cmdable, logger *logrus.Logger) *SessionRedisRepository {
	return &SessionRedisRepository{client: client, logger: logger, now: time.Now}
}

func sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", sessionPrefix, id)
}

func (r *SessionRedisRepository) Store(ctx context.Context, s *auth.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in Redis: %w", err)
	}
	return nil
}

func (r *SessionRedisRepository) Get(ctx context.Context, sessionID string) (*auth.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}
	var s auth.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// Touch records activity on the session and restarts its inactivity TTL.
func (r *SessionRedisRepository) Touch(ctx context.Context, sessionID string, ipAddress, userAgent string, ttl time.Duration) error {
	s, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.LastActivity = r.now()
	if ipAddress != "" {
		s.IPAddress = ipAddress
	}
	if userAgent != "" {
		s.UserAgent = userAgent
	}
	return r.Store(ctx, s, ttl)
}

func (r *SessionRedisRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"session_id": sessionID}).WithError(err).Warn("failed to delete session")
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
