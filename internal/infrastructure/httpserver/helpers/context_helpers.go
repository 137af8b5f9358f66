package helpers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/domain/auth"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
)

// SessionTokenHeader carries a rotated session token back to the client.
const SessionTokenHeader = "X-Session-Token"

// CodeAccessUnavailable is returned when grants could not be loaded.
const CodeAccessUnavailable = "access_unavailable"

// ErrorBody is the JSON body of every error response. Deny reasons never appear in it.
type ErrorBody struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
}

func NewAPIError(status int, code string) *echo.HTTPError {
	return echo.NewHTTPError(status, ErrorBody{Status: status, Code: code})
}

func AuthRequired() *echo.HTTPError {
	return NewAPIError(http.StatusUnauthorized, ports.CodeAuthRequired)
}

func AccessDenied() *echo.HTTPError {
	return NewAPIError(http.StatusForbidden, ports.CodeAccessDenied)
}

func AccessUnavailable() *echo.HTTPError {
	return NewAPIError(http.StatusServiceUnavailable, CodeAccessUnavailable)
}

func GetIdentityFromContext(c echo.Context) (*auth.Identity, error) {
	id, ok := GetIdentityRaw(c)
	if !ok {
		return nil, AuthRequired()
	}
	return id, nil
}

// GetPrincipalFromContext returns the principal stored by the enforcement middleware.
func GetPrincipalFromContext(c echo.Context) (*access.Principal, error) {
	p, ok := GetPrincipalRaw(c)
	if !ok {
		return nil, AccessDenied()
	}
	return p, nil
}

// GetSessionTokenFromContext reads the bearer token from the Authorization header.
func GetSessionTokenFromContext(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", AuthRequired()
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", AuthRequired()
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", AuthRequired()
	}
	return token, nil
}
