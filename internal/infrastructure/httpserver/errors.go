package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/httpserver/helpers"
)

// serviceError maps an error from the access layer to an HTTP response.
// Only the stable code reaches the client.
func (s *Server) serviceError(c echo.Context, err error) error {
	var ae ports.AccessError
	if errors.As(err, &ae) {
		switch ae.Kind() {
		case ports.KindAuthentication:
			return helpers.AuthRequired()
		case ports.KindAuthorization:
			return helpers.AccessDenied()
		case ports.KindNotFound:
			return helpers.NewAPIError(http.StatusNotFound, ports.CodeNotFound)
		case ports.KindValidation:
			switch ae.Code() {
			case ports.CodeDuplicateName, ports.CodeInUse:
				return helpers.NewAPIError(http.StatusConflict, ae.Code())
			default:
				return helpers.NewAPIError(http.StatusBadRequest, ae.Code())
			}
		}
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"method": c.Request().Method, "route": c.Path()}).WithError(err).Error("request failed")
	}
	return helpers.NewAPIError(http.StatusInternalServerError, ports.CodeStoreFailure)
}
