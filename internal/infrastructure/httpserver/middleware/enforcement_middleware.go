package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/domain/audit"
	"github.com/avatarctic/herdbook/go/internal/core/domain/auth"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/httpserver/helpers"
)

// ReasonUnmappedRoute labels denials for routes missing from the route table.
const ReasonUnmappedRoute = "unmapped_route"

// EnforcementMiddleware maps each route to a (resource, verb) check and asks the
// engine for a decision. It must run after RequireSession.
type EnforcementMiddleware struct {
	routes    *access.RouteTable
	loader    ports.PrincipalLoader
	engine    ports.AuthorizationEngine
	audit     ports.AuditHook
	decisions *prometheus.CounterVec
	logger    *logrus.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewEnforcementMiddleware(
	routes *access.RouteTable,
	loader ports.PrincipalLoader,
	engine ports.AuthorizationEngine,
	auditHook ports.AuditHook,
	decisions *prometheus.CounterVec,
	logger *logrus.Logger,
) *EnforcementMiddleware {
	return &EnforcementMiddleware{
		routes:    routes,
		loader:    loader,
		engine:    engine,
		audit:     auditHook,
		decisions: decisions,
		logger:    logger,
		tracer:    otel.Tracer("herdbook/access/enforcement"),
		now:       time.Now,
	}
}

// Authorize denies by default: a route the table does not know is forbidden.
func (m *EnforcementMiddleware) Authorize() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, err := helpers.GetIdentityFromContext(c)
			if err != nil {
				return err
			}

			method, route := c.Request().Method, c.Path()
			target, ok := m.routes.Lookup(method, route)
			if !ok {
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"method": method, "route": route, "org_id": identity.OrgID}).Warn("route not mapped to a resource; denying")
				}
				m.count("", "", "deny", ReasonUnmappedRoute)
				m.record(c, identity, nil, target, access.Deny(access.DenyReason(ReasonUnmappedRoute)))
				return helpers.AccessDenied()
			}
			if target.AuthenticatedOnly {
				return next(c)
			}

			ctx, span := m.tracer.Start(c.Request().Context(), "access.authorize")
			span.SetAttributes(
				attribute.String("access.resource", string(target.Resource)),
				attribute.String("access.verb", string(target.Verb)),
				attribute.String("http.route", route),
			)
			c.SetRequest(c.Request().WithContext(ctx))

			principal, err := m.LoadPrincipal(c)
			if err != nil {
				span.RecordError(err)
				span.End()
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"org_id": identity.OrgID, "user_id": identity.UserID}).WithError(err).Error("failed to load access profile")
				}
				return helpers.AccessUnavailable()
			}

			decision := m.engine.Decide(*principal, target.Resource, target.Verb)
			span.SetAttributes(
				attribute.String("access.outcome", decision.Outcome()),
				attribute.String("access.reason", string(decision.Reason)),
			)
			span.End()

			m.count(target.Resource, target.Verb, decision.Outcome(), string(decision.Reason))
			m.record(c, identity, principal.Profile, target, decision)

			if !decision.Allowed {
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{
						"org_id":   identity.OrgID,
						"user_id":  identity.UserID,
						"role":     identity.Role,
						"resource": target.Resource,
						"verb":     target.Verb,
						"reason":   decision.Reason,
					}).Info("access denied")
				}
				return helpers.AccessDenied()
			}
			return next(c)
		}
	}
}

// LoadPrincipal returns the request's principal, loading it once per request.
func (m *EnforcementMiddleware) LoadPrincipal(c echo.Context) (*access.Principal, error) {
	if p, ok := helpers.GetPrincipalRaw(c); ok {
		return p, nil
	}
	identity, err := helpers.GetIdentityFromContext(c)
	if err != nil {
		return nil, err
	}
	p, err := m.loader.Load(c.Request().Context(), *identity)
	if err != nil {
		return nil, err
	}
	helpers.SetPrincipal(c, p)
	return p, nil
}

func (m *EnforcementMiddleware) count(resource access.Resource, verb access.Verb, outcome, reason string) {
	if m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(string(resource), string(verb), outcome, reason).Inc()
}

func (m *EnforcementMiddleware) record(c echo.Context, identity *auth.Identity, profile *access.AccessProfile, target access.Target, d access.Decision) {
	if m.audit == nil {
		return
	}
	ev := &audit.DecisionEvent{
		OrgID:     identity.OrgID,
		UserID:    identity.UserID,
		Role:      string(identity.Role),
		Method:    c.Request().Method,
		Route:     c.Path(),
		Resource:  target.Resource,
		Verb:      target.Verb,
		Outcome:   d.Outcome(),
		Reason:    d.Reason,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		Timestamp: m.now().UTC(),
	}
	if profile != nil {
		id := profile.ID
		ev.ProfileID = &id
	}
	m.audit.RecordDecision(c.Request().Context(), ev)
}
