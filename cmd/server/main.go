package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/avatarctic/herdbook/go/configs"
	"github.com/avatarctic/herdbook/go/internal/application/services"
	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/db"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/health"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/httpserver"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/redis"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/repositories"
	"github.com/avatarctic/herdbook/go/internal/infrastructure/tracing"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Setup logger
	logger := logrus.New()
	if cfg.Log.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}

	logger.Info("Starting herdbook access service...")

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := tracing.Init(rootCtx, &cfg.Tracing, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize tracing; continuing without it")
	}

	// Route table is validated before anything else touches the network
	routeSource, err := cfg.Access.RouteTableSource()
	if err != nil {
		logger.Fatal("Failed to read route table:", err)
	}
	routes, err := access.ParseRouteTable(routeSource)
	if err != nil {
		logger.Fatal("Invalid route table:", err)
	}
	logger.WithFields(logrus.Fields{"entries": routes.Len(), "registry_version": routes.Version()}).Info("Route table loaded")

	// Initialize database (apply pool settings from config)
	database, err := db.NewDatabaseWithConfig(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	logger.Info("Connected to database successfully")

	if err := database.Migrate(cfg.Server.MigrationsPath); err != nil {
		logger.Fatal("Failed to run migrations:", err)
	}

	// Initialize Redis client
	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	logger.Info("Connected to Redis successfully")

	redisCache := redis.NewRedisCache(redisClient, cfg.Access.CachePrefix)
	invalidationBus := redis.NewInvalidationBus(redisClient, cfg.Access.InvalidationChannel, logger)
	sessionRepo := repositories.NewSessionRedisRepository(redisClient, logger)
	rateLimitRepo := repositories.NewRateLimitRedisRepository(redisClient)

	// Decorate with caching
	userRepo := repositories.NewCachingUserRepository(repositories.NewUserRepository(database, logger), redisCache, cfg.Access.UserCacheTTL)
	tenantRepo := repositories.NewCachingTenantRepository(repositories.NewTenantRepository(database, logger), redisCache, cfg.Access.UserCacheTTL)
	profileRepo := repositories.NewCachingProfileRepository(
		repositories.NewProfileRepository(database, logger),
		redisCache,
		invalidationBus,
		repositories.ProfileCacheConfig{
			LocalSize: cfg.Access.ProfileLocalSize,
			LocalTTL:  cfg.Access.ProfileLocalTTL,
			RemoteTTL: cfg.Access.ProfileCacheTTL,
		},
		httpserver.GetProfileCacheLookups(),
		logger,
	)
	if err := profileRepo.Listen(rootCtx); err != nil {
		logger.WithError(err).Warn("Failed to subscribe to profile invalidations; relying on local TTL")
	}

	engine := services.NewAuthorizationService()
	auditHook := services.NewAuditService(&cfg.Audit, logger)
	sessionService := services.NewSessionService(userRepo, tenantRepo, sessionRepo, &cfg.Session, logger)
	profileService := services.NewProfileService(profileRepo, engine, auditHook, logger)
	principalLoader := services.NewPrincipalLoader(profileRepo, logger)

	rateLimiterConfig := &services.RateLimiterConfig{
		DefaultRequestsPerMinute: cfg.RateLimit.DefaultRequestsPerMinute,
		BurstMultiplier:          cfg.RateLimit.BurstMultiplier,
		Window:                   cfg.RateLimit.Window,
		KeyPrefix:                cfg.RateLimit.KeyPrefix,
	}
	rateLimiterService := services.NewRateLimiterService(rateLimitRepo, tenantRepo, rateLimiterConfig, logger)

	hcSlice := []ports.HealthChecker{health.NewDBHealthChecker(database), health.NewRedisHealthChecker(redisClient)}

	serverConfig := &httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		TLSCertFile:  cfg.Server.TLSCertFile,
		TLSKeyFile:   cfg.Server.TLSKeyFile,
	}

	deps := httpserver.ServerDeps{
		SessionService:     sessionService,
		ProfileService:     profileService,
		Engine:             engine,
		PrincipalLoader:    principalLoader,
		AuditHook:          auditHook,
		RateLimiterService: rateLimiterService,
		RouteTable:         routes,
		IdentityTimeout:    cfg.Access.IdentityTimeout,
		HealthCheckers:     hcSlice,
	}

	server := httpserver.NewServer(serverConfig, logger, deps)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Info("Server stopped")
		}
	}()

	logger.Infof("Server started on %s:%s", cfg.Server.Host, cfg.Server.Port)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(ctx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}

	logger.Info("Server exited")
}
