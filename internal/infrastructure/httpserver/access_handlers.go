package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/httpserver/helpers"
)

// getEffectiveAccess reports what the caller may do on every resource, for UI gating.
func (s *Server) getEffectiveAccess(c echo.Context) error {
	p, err := s.principal(c)
	if err != nil {
		return s.principalError(c, err)
	}

	return c.JSON(http.StatusOK, &access.EffectiveAccessResponse{
		RegistryVersion: access.RegistryVersion,
		Role:            string(p.Identity.Role),
		Resources:       s.engine.EffectiveAccess(*p),
	})
}

// logout revokes the caller's session. Later requests with the same token get 401.
func (s *Server) logout(c echo.Context) error {
	identity, err := helpers.GetIdentityFromContext(c)
	if err != nil {
		return err
	}

	if err := s.sessionSvc.RevokeSession(c.Request().Context(), identity.SessionID); err != nil {
		return s.serviceError(c, err)
	}
	// a rotated token for the revoked session is useless
	c.Response().Header().Del(helpers.SessionTokenHeader)
	c.Response().Header().Del(helpers.SessionTokenHeader + "-Expires")
	return c.NoContent(http.StatusNoContent)
}
