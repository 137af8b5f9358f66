package httpserver

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

const apiPrefix = "/api/v1"

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	api := s.echo.Group(apiPrefix)

	// Order matters: the session is refreshed before rate limiting and before
	// any authorization decision, so denied requests still renew it.
	protected := api.Group("")
	protected.Use(s.middleware.Session.RequireSession())
	protected.Use(s.middleware.RateLimit.Handler())
	protected.Use(s.middleware.Enforcement.Authorize())
	s.protected = protected

	protected.GET("/me/access", s.getEffectiveAccess)
	protected.DELETE("/session", s.logout)

	profiles := protected.Group("/profiles")
	profiles.GET("", s.listProfiles)
	profiles.POST("", s.createProfile)
	profiles.GET("/:id", s.getProfile)
	profiles.PUT("/:id", s.updateProfile)
	profiles.DELETE("/:id", s.deleteProfile)

	protected.PUT("/users/:id/profile", s.bindUserProfile)
}

// UnmappedRoutes lists registered /api/v1 routes that have no route table entry.
// Requests to them are denied at runtime.
func (s *Server) UnmappedRoutes() []string {
	var missing []string
	for _, r := range s.echo.Routes() {
		if !strings.HasPrefix(r.Path, apiPrefix) || strings.HasSuffix(r.Path, "/*") {
			continue
		}
		// skips echo's internal not-found routes
		if !isStandardMethod(r.Method) {
			continue
		}
		if _, ok := s.routes.Lookup(r.Method, r.Path); !ok {
			missing = append(missing, r.Method+" "+r.Path)
		}
	}
	return missing
}

// WarnUnmappedRoutes logs every route UnmappedRoutes reports.
func (s *Server) WarnUnmappedRoutes() {
	if s.logger == nil {
		return
	}
	for _, r := range s.UnmappedRoutes() {
		s.logger.WithFields(logrus.Fields{"route": r}).Warn("route not mapped to a resource; requests will be denied")
	}
}

func isStandardMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}
