package middleware_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/herdbook/go/internal/application/services"
	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/domain/auth"
	"github.com/avatarctic/herdbook/go/internal/core/domain/user"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/httpserver/helpers"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/httpserver/middleware"
	"github.com/avatarctic/herdbook/go/internal/mocks"
)

const testRoutes = `
version: 1
routes:
  - {method: GET, path: /api/v1/me/access, authenticated_only: true}
  - {method: GET, path: /api/v1/feeding, resource: feeding, verb: view}
  - {method: DELETE, path: "/api/v1/feeding/:id", resource: feeding, verb: delete}
`

type harness struct {
	e         *echo.Echo
	sessions  *mocks.SessionServiceMock
	loader    *mocks.PrincipalLoaderMock
	audit     *mocks.AuditHookMock
	decisions *prometheus.CounterVec
}

func newHarness(t *testing.T, identity *auth.Identity, profile *access.AccessProfile) *harness {
	t.Helper()
	rt, err := access.ParseRouteTable([]byte(testRoutes))
	require.NoError(t, err)

	h := &harness{
		e: echo.New(),
		sessions: &mocks.SessionServiceMock{ResolveSessionFn: func(ctx context.Context, token, ip, ua string) (*auth.Identity, *auth.SessionRefresh, error) {
			if token != "good" {
				return nil, nil, fmt.Errorf("bad token")
			}
			return identity, &auth.SessionRefresh{Token: "rotated", ExpiresAt: time.Now().Add(time.Hour)}, nil
		}},
		loader: &mocks.PrincipalLoaderMock{Profile: profile},
		audit:  &mocks.AuditHookMock{},
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_access_decisions_total"},
			[]string{"resource", "verb", "outcome", "reason"}),
	}

	logger := logrus.New()
	logger.SetOutput(nopWriter{})
	session := middleware.NewSessionMiddleware(h.sessions, 50*time.Millisecond, logger)
	enforce := middleware.NewEnforcementMiddleware(rt, h.loader, services.NewAuthorizationService(), h.audit, h.decisions, logger)

	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	api := h.e.Group("/api/v1")
	api.Use(session.RequireSession(), enforce.Authorize())
	api.GET("/me/access", ok)
	api.GET("/feeding", ok)
	api.DELETE("/feeding/:id", ok)
	api.GET("/reports", ok)
	return h
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func (h *harness) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) helpers.ErrorBody {
	t.Helper()
	var body helpers.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func staffIdentity(profileID uuid.UUID, org uuid.UUID) *auth.Identity {
	return &auth.Identity{UserID: uuid.New(), OrgID: org, Role: user.RoleStaff, AccessProfileID: &profileID, ExpiresAt: time.Now().Add(time.Hour)}
}

func feedingViewer() (*auth.Identity, *access.AccessProfile) {
	org, pid := uuid.New(), uuid.New()
	prof := &access.AccessProfile{ID: pid, OrgID: org, AccessControls: []access.AccessControl{
		{Resource: access.ResourceFeeding, CanView: true},
	}}
	return staffIdentity(pid, org), prof
}

func TestMissingOrBadTokenIs401(t *testing.T) {
	id, prof := feedingViewer()
	h := newHarness(t, id, prof)

	for _, token := range []string{"", "bad"} {
		rec := h.do(http.MethodGet, "/api/v1/feeding", token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, helpers.ErrorBody{Status: 401, Code: "auth_required"}, errorBody(t, rec))
	}
	assert.Zero(t, h.loader.Calls, "no authorization work without an identity")
}

func TestAllowedRequestPasses(t *testing.T) {
	id, prof := feedingViewer()
	h := newHarness(t, id, prof)

	rec := h.do(http.MethodGet, "/api/v1/feeding", "good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rotated", rec.Header().Get(helpers.SessionTokenHeader))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.decisions.WithLabelValues("feeding", "view", "allow", "")))
}

func TestDeniedRequestIs403AndStillRefreshesSession(t *testing.T) {
	id, prof := feedingViewer()
	h := newHarness(t, id, prof)

	rec := h.do(http.MethodDelete, "/api/v1/feeding/"+uuid.NewString(), "good")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, helpers.ErrorBody{Status: 403, Code: "access_denied"}, errorBody(t, rec))
	assert.NotContains(t, rec.Body.String(), "verb_not_granted", "deny reasons stay server-side")
	assert.Equal(t, "rotated", rec.Header().Get(helpers.SessionTokenHeader))

	require.Len(t, h.audit.Decisions, 1)
	assert.Equal(t, access.ReasonVerbNotGranted, h.audit.Decisions[0].Reason)
	assert.Equal(t, "/api/v1/feeding/:id", h.audit.Decisions[0].Route)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.decisions.WithLabelValues("feeding", "delete", "deny", "verb_not_granted")))
}

func TestUnmappedRouteIsDenied(t *testing.T) {
	id, prof := feedingViewer()
	h := newHarness(t, id, prof)

	rec := h.do(http.MethodGet, "/api/v1/reports", "good")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.decisions.WithLabelValues("", "", "deny", middleware.ReasonUnmappedRoute)))

	rec = h.do(http.MethodGet, "/api/v1/does-not-exist", "good")
	assert.Equal(t, http.StatusForbidden, rec.Code, "unknown paths under the group are denied, not leaked as 404")
}

func TestAuthenticatedOnlyRouteSkipsDecision(t *testing.T) {
	id := &auth.Identity{UserID: uuid.New(), OrgID: uuid.New(), Role: user.RoleStaff, ExpiresAt: time.Now().Add(time.Hour)}
	h := newHarness(t, id, nil)

	rec := h.do(http.MethodGet, "/api/v1/me/access", "good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, h.loader.Calls)
}

func TestOwnerBypassesProfile(t *testing.T) {
	id := &auth.Identity{UserID: uuid.New(), OrgID: uuid.New(), Role: user.RoleOwner, ExpiresAt: time.Now().Add(time.Hour)}
	h := newHarness(t, id, nil)

	rec := h.do(http.MethodDelete, "/api/v1/feeding/"+uuid.NewString(), "good")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoaderFailureFailsClosed(t *testing.T) {
	id, prof := feedingViewer()
	h := newHarness(t, id, prof)
	h.loader.LoadFn = func(ctx context.Context, identity auth.Identity) (*access.Principal, error) {
		return nil, fmt.Errorf("redis: i/o timeout")
	}

	rec := h.do(http.MethodGet, "/api/v1/feeding", "good")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, helpers.CodeAccessUnavailable, errorBody(t, rec).Code)
}

func TestIdentityTimeoutFailsClosed(t *testing.T) {
	id, prof := feedingViewer()
	h := newHarness(t, id, prof)
	release := make(chan struct{})
	defer close(release)
	h.sessions.ResolveSessionFn = func(ctx context.Context, token, ip, ua string) (*auth.Identity, *auth.SessionRefresh, error) {
		<-release
		return id, nil, nil
	}

	start := time.Now()
	rec := h.do(http.MethodGet, "/api/v1/feeding", "good")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExpiredIdentityIs401(t *testing.T) {
	id, prof := feedingViewer()
	id.ExpiresAt = time.Now().Add(-time.Minute)
	h := newHarness(t, id, prof)

	rec := h.do(http.MethodGet, "/api/v1/feeding", "good")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileFromAnotherTenantGrantsNothing(t *testing.T) {
	id, prof := feedingViewer()
	prof.OrgID = uuid.New()
	h := newHarness(t, id, prof)

	rec := h.do(http.MethodGet, "/api/v1/feeding", "good")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
