package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
)

// MiddlewareCollection holds all middleware instances
type MiddlewareCollection struct {
	Session     *SessionMiddleware
	Enforcement *EnforcementMiddleware
	Logging     *LoggingMiddleware
	RateLimit   *RateLimitMiddleware
	Metrics     *MetricsMiddleware
}

// Metrics groups the collectors the middleware report to.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Decisions       *prometheus.CounterVec
}

// NewMiddlewareCollection creates a new collection of all middleware
func NewMiddlewareCollection(
	sessionService ports.SessionService,
	loader ports.PrincipalLoader,
	engine ports.AuthorizationEngine,
	auditHook ports.AuditHook,
	rateLimiterService ports.RateLimiterService,
	routes *access.RouteTable,
	identityTimeout time.Duration,
	metrics Metrics,
	logger *logrus.Logger,
) *MiddlewareCollection {
	return &MiddlewareCollection{
		Session:     NewSessionMiddleware(sessionService, identityTimeout, logger),
		Enforcement: NewEnforcementMiddleware(routes, loader, engine, auditHook, metrics.Decisions, logger),
		Logging:     NewLoggingMiddleware(logger),
		RateLimit:   NewRateLimitMiddleware(rateLimiterService, logger),
		Metrics:     NewMetricsMiddleware(metrics.RequestsTotal, metrics.RequestDuration),
	}
}
