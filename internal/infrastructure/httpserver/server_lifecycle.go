package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

func (s *Server) Start() error {
	s.LogMetricsInitialization()
	s.WarnUnmappedRoutes()

	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	server := &http.Server{
		Addr:         addr,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"addr": addr, "route_table_entries": s.routes.Len()}).Info("starting access server")
	}
	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		return s.echo.StartTLS(addr, s.config.TLSCertFile, s.config.TLSKeyFile)
	}
	if s.logger != nil {
		s.logger.Warn("Running in HTTP mode - TLS certificates not configured")
	}
	return s.echo.StartServer(server)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}
