package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/httpserver/helpers"
)

func badRequest() error {
	return helpers.NewAPIError(http.StatusBadRequest, ports.CodeInvalidRequest)
}

// principal returns the caller as loaded by the enforcement middleware.
func (s *Server) principal(c echo.Context) (*access.Principal, error) {
	return s.middleware.Enforcement.LoadPrincipal(c)
}

func (s *Server) listProfiles(c echo.Context) error {
	p, err := s.principal(c)
	if err != nil {
		return s.principalError(c, err)
	}

	profiles, err := s.profileSvc.ListProfiles(c.Request().Context(), *p)
	if err != nil {
		return s.serviceError(c, err)
	}

	return c.JSON(http.StatusOK, &access.ListProfilesResponse{Profiles: profiles, Total: len(profiles)})
}

func (s *Server) getProfile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest()
	}
	p, err := s.principal(c)
	if err != nil {
		return s.principalError(c, err)
	}

	profile, err := s.profileSvc.GetProfile(c.Request().Context(), *p, id)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) createProfile(c echo.Context) error {
	var req access.CreateProfileRequest
	if err := c.Bind(&req); err != nil {
		return badRequest()
	}
	p, err := s.principal(c)
	if err != nil {
		return s.principalError(c, err)
	}

	profile, err := s.profileSvc.CreateProfile(c.Request().Context(), *p, &req)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, profile)
}

func (s *Server) updateProfile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest()
	}
	var req access.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return badRequest()
	}
	p, err := s.principal(c)
	if err != nil {
		return s.principalError(c, err)
	}

	profile, err := s.profileSvc.UpdateProfile(c.Request().Context(), *p, id, &req)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) deleteProfile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest()
	}
	var reassignTo *uuid.UUID
	if raw := c.QueryParam("reassign_to"); raw != "" {
		target, err := uuid.Parse(raw)
		if err != nil {
			return badRequest()
		}
		reassignTo = &target
	}
	p, err := s.principal(c)
	if err != nil {
		return s.principalError(c, err)
	}

	if err := s.profileSvc.DeleteProfile(c.Request().Context(), *p, id, reassignTo); err != nil {
		return s.serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) bindUserProfile(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest()
	}
	var req access.BindUserRequest
	if err := c.Bind(&req); err != nil {
		return badRequest()
	}
	p, err := s.principal(c)
	if err != nil {
		return s.principalError(c, err)
	}

	if err := s.profileSvc.BindUser(c.Request().Context(), *p, userID, req.ProfileID); err != nil {
		return s.serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// principalError keeps a missing identity a 401 and turns loader failures into 503.
func (s *Server) principalError(c echo.Context, err error) error {
	if he, ok := err.(*echo.HTTPError); ok {
		return he
	}
	if s.logger != nil {
		s.logger.WithField("route", c.Path()).WithError(err).Error("failed to load access profile")
	}
	return helpers.AccessUnavailable()
}
