package configs

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultRouteTable is the route-to-resource table shipped with the binary.
//
//go:embed routes.yaml
var DefaultRouteTable []byte

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Session   SessionConfig
	Redis     RedisConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	Access    AccessConfig
	Audit     AuditConfig
	Tracing   TracingConfig
}

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TLSCertFile    string
	TLSKeyFile     string
	MigrationsPath string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	DSN      string
	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SessionConfig describes the tokens issued by the identity provider.
type SessionConfig struct {
	Secret         string
	TokenTTL       time.Duration
	SessionTimeout time.Duration // Max inactivity before the session is revoked
	RotateBefore   time.Duration // Rotate tokens this close to expiry
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

type RateLimitConfig struct {
	DefaultRequestsPerMinute int
	BurstMultiplier          float64
	Window                   time.Duration
	KeyPrefix                string
}

// AccessConfig tunes the authorization layer. ProfileLocalTTL plus ProfileCacheTTL
// bounds how long a revoked grant can still be honored by another instance.
type AccessConfig struct {
	IdentityTimeout     time.Duration
	ProfileLocalTTL     time.Duration
	ProfileLocalSize    int
	ProfileCacheTTL     time.Duration
	UserCacheTTL        time.Duration
	RouteTablePath      string
	InvalidationChannel string
	CachePrefix         string
}

type AuditConfig struct {
	Enabled          bool
	AllowedDecisions bool
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Insecure    bool
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:    getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:     getEnv("TLS_KEY_FILE", ""),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "herdbook"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Session: SessionConfig{
			Secret:         getEnvRequired("SESSION_SECRET"),
			TokenTTL:       getDurationEnv("SESSION_TOKEN_TTL", 15*time.Minute),
			SessionTimeout: getDurationEnv("SESSION_TIMEOUT", 2*time.Hour),
			RotateBefore:   getDurationEnv("SESSION_ROTATE_BEFORE", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			DefaultRequestsPerMinute: getIntEnv("RATE_LIMIT_RPM", 120),
			BurstMultiplier:          getFloatEnv("RATE_LIMIT_BURST", 2.0),
			Window:                   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
			KeyPrefix:                getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit:org"),
		},
		Access: AccessConfig{
			IdentityTimeout:     getDurationEnv("ACCESS_IDENTITY_TIMEOUT", 2*time.Second),
			ProfileLocalTTL:     getDurationEnv("ACCESS_PROFILE_LOCAL_TTL", 2*time.Second),
			ProfileLocalSize:    getIntEnv("ACCESS_PROFILE_LOCAL_SIZE", 4096),
			ProfileCacheTTL:     getDurationEnv("ACCESS_PROFILE_CACHE_TTL", 5*time.Second),
			UserCacheTTL:        getDurationEnv("ACCESS_USER_CACHE_TTL", 5*time.Second),
			RouteTablePath:      getEnv("ACCESS_ROUTE_TABLE", ""),
			InvalidationChannel: getEnv("ACCESS_INVALIDATION_CHANNEL", "access:profile:invalidate"),
			CachePrefix:         getEnv("ACCESS_CACHE_PREFIX", "herdbook"),
		},
		Audit: AuditConfig{
			Enabled:          getBoolEnv("AUDIT_ENABLED", true),
			AllowedDecisions: getBoolEnv("AUDIT_ALLOWED_DECISIONS", false),
		},
		Tracing: TracingConfig{
			Enabled:     getBoolEnv("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "herdbook-access"),
			Insecure:    getBoolEnv("OTEL_INSECURE", true),
		},
	}

	if cfg.Access.ProfileLocalTTL > cfg.Access.ProfileCacheTTL {
		return nil, fmt.Errorf("ACCESS_PROFILE_LOCAL_TTL (%s) must not exceed ACCESS_PROFILE_CACHE_TTL (%s)", cfg.Access.ProfileLocalTTL, cfg.Access.ProfileCacheTTL)
	}

	// Build database DSN
	cfg.Database.DSN = fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	return cfg, nil
}

// RouteTableSource returns the configured route table file, or the embedded default.
func (c *AccessConfig) RouteTableSource() ([]byte, error) {
	if c.RouteTablePath == "" {
		return DefaultRouteTable, nil
	}
	data, err := os.ReadFile(c.RouteTablePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read route table %s: %w", c.RouteTablePath, err)
	}
	return data, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvRequired(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
