package httpserver

import (
	"time"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	customMiddleware "github.com/avatarctic/herdbook/go/internal/infrastructure/httpserver/middleware"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCertFile  string
	TLSKeyFile   string
}

type ServerDeps struct {
	SessionService     ports.SessionService
	ProfileService     ports.ProfileService
	Engine             ports.AuthorizationEngine
	PrincipalLoader    ports.PrincipalLoader
	AuditHook          ports.AuditHook
	RateLimiterService ports.RateLimiterService
	RouteTable         *access.RouteTable
	IdentityTimeout    time.Duration
	HealthCheckers     []ports.HealthChecker
}

type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	logger         *logrus.Logger
	sessionSvc     ports.SessionService
	profileSvc     ports.ProfileService
	engine         ports.AuthorizationEngine
	routes         *access.RouteTable
	middleware     *customMiddleware.MiddlewareCollection
	protected      *echo.Group
	healthCheckers []ports.HealthChecker
}

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true

	server := &Server{
		echo:           e,
		config:         serverConfig,
		logger:         logger,
		sessionSvc:     deps.SessionService,
		profileSvc:     deps.ProfileService,
		engine:         deps.Engine,
		routes:         deps.RouteTable,
		healthCheckers: deps.HealthCheckers,
		middleware: customMiddleware.NewMiddlewareCollection(
			deps.SessionService,
			deps.PrincipalLoader,
			deps.Engine,
			deps.AuditHook,
			deps.RateLimiterService,
			deps.RouteTable,
			deps.IdentityTimeout,
			customMiddleware.Metrics{
				RequestsTotal:   GetRequestsTotal(),
				RequestDuration: GetRequestDuration(),
				Decisions:       GetAccessDecisions(),
			},
			logger,
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// Protected is the /api/v1 group behind session resolution and enforcement.
// Dashboard handlers register here and must have a route table entry.
func (s *Server) Protected() *echo.Group {
	return s.protected
}
