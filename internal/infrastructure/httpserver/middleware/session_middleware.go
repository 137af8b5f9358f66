package middleware

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/herdbook/go/internal/core/domain/auth"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/httpserver/helpers"
)

const defaultIdentityTimeout = 2 * time.Second

type SessionMiddleware struct {
	sessions ports.SessionService
	timeout  time.Duration
	logger   *logrus.Logger
	now      func() time.Time
}

func NewSessionMiddleware(sessions ports.SessionService, timeout time.Duration, logger *logrus.Logger) *SessionMiddleware {
	if timeout <= 0 {
		timeout = defaultIdentityTimeout
	}
	return &SessionMiddleware{sessions: sessions, timeout: timeout, logger: logger, now: time.Now}
}

type resolved struct {
	identity *auth.Identity
	refresh  *auth.SessionRefresh
	err      error
}

// RequireSession resolves the caller's identity and refreshes the session.
// Any failure, including a slow identity provider, ends the request with 401.
// A rotated token is written to the response before the handler runs, so it
// reaches the client even when authorization later denies the request.
func (m *SessionMiddleware) RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := helpers.GetSessionTokenFromContext(c)
			if err != nil {
				m.reject(c, "missing or malformed session token", nil)
				return err
			}

			ip, ua := c.RealIP(), c.Request().UserAgent()
			ctx, cancel := context.WithTimeout(c.Request().Context(), m.timeout)
			defer cancel()

			out := make(chan resolved, 1)
			go func() {
				id, refresh, err := m.sessions.ResolveSession(ctx, token, ip, ua)
				out <- resolved{identity: id, refresh: refresh, err: err}
			}()

			var res resolved
			select {
			case <-ctx.Done():
				m.reject(c, "identity resolution timed out", ctx.Err())
				return helpers.AuthRequired()
			case res = <-out:
			}

			if res.err != nil {
				m.reject(c, "session validation failed", res.err)
				return helpers.AuthRequired()
			}
			if !res.identity.Valid(m.now()) {
				m.reject(c, "resolved identity is invalid or expired", nil)
				return helpers.AuthRequired()
			}

			if res.refresh != nil {
				c.Response().Header().Set(helpers.SessionTokenHeader, res.refresh.Token)
				c.Response().Header().Set(helpers.SessionTokenHeader+"-Expires", res.refresh.ExpiresAt.UTC().Format(time.RFC3339))
			}
			helpers.SetIdentity(c, res.identity)

			if m.logger != nil {
				m.logger.WithFields(logrus.Fields{"user_id": res.identity.UserID, "org_id": res.identity.OrgID, "role": res.identity.Role}).Debug("session resolved and identity set")
			}
			return next(c)
		}
	}
}

func (m *SessionMiddleware) reject(c echo.Context, msg string, err error) {
	if m.logger == nil {
		return
	}
	entry := m.logger.WithFields(logrus.Fields{"ip": c.RealIP(), "path": c.Path()})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn(msg)
}
