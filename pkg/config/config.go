package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pragati-platform/identity/pkg/auth"
	"github.com/pragati-platform/identity/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Token signing and lifetimes
	Token TokenConfig

	// Session store configuration
	Session SessionConfig

	// User database configuration
	Database DatabaseConfig

	// Access policy configuration
	Policy PolicyConfig

	// Audit trail configuration
	Audit AuditConfig

	// Institutional OIDC login configuration
	SSO SSOConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// TokenConfig holds signing secret and token lifetimes.
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	// Backend is "redis" or "memory".
	Backend       string
	RedisURL      string
	RedisPassword string
	RedisDB       int
	// SweepSchedule is a cron spec for the expired-session sweep.
	SweepSchedule string
}

// DatabaseConfig holds user database settings.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite3".
	Driver string
	DSN    string
	// Migrate creates the schema on startup (dev mode).
	Migrate bool
	// ResolverCacheSize <= 0 disables the resolver's user cache.
	ResolverCacheSize int
	ResolverCacheTTL  time.Duration
}

// PolicyConfig holds access rule settings.
type PolicyConfig struct {
	// RulesFile overrides the built-in rule table; empty means use
	// the defaults compiled into the binary.
	RulesFile string
	// WatchRules hot-reloads RulesFile on change.
	WatchRules bool
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	// FilePath is the JSONL audit log destination; empty disables
	// file output.
	FilePath string
	// S3 archival of rotated audit files.
	S3Enabled   bool
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
	// S3PathStyle is needed for MinIO and other S3-compatibles.
	S3PathStyle bool
}

// SSOConfig holds the OIDC relying-party settings for institutional
// login.
type SSOConfig struct {
	Enabled      bool
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled     bool
	OTelEndpoint    string
	OTelServiceName string
	OTelInsecure    bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("PRAGATI_HOST", "0.0.0.0"),
			Port:            getEnv("PRAGATI_PORT", "8080"),
			ReadTimeout:     getEnvDuration("PRAGATI_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("PRAGATI_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("PRAGATI_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("PRAGATI_SHUTDOWN_TIMEOUT", 30*time.Second),
			CORSOrigins:     getEnvList("PRAGATI_CORS_ORIGINS", []string{"*"}),
			MaxBodyBytes:    int64(getEnvInt("PRAGATI_MAX_BODY_BYTES", 1<<20)),
			HealthPort:      getEnv("PRAGATI_HEALTH_PORT", "9090"),
		},
		Token: TokenConfig{
			Secret:     getEnv("PRAGATI_TOKEN_SECRET", ""),
			AccessTTL:  getEnvDuration("PRAGATI_ACCESS_TTL", 15*time.Minute),
			RefreshTTL: getEnvDuration("PRAGATI_REFRESH_TTL", 168*time.Hour),
			Leeway:     getEnvDuration("PRAGATI_TOKEN_LEEWAY", auth.DefaultLeeway),
		},
		Session: SessionConfig{
			Backend:       getEnv("PRAGATI_SESSION_BACKEND", "redis"),
			RedisURL:      getEnv("PRAGATI_REDIS_URL", "localhost:6379"),
			RedisPassword: getEnv("PRAGATI_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("PRAGATI_REDIS_DB", 0),
			SweepSchedule: getEnv("PRAGATI_SESSION_SWEEP", "@every 10m"),
		},
		Database: DatabaseConfig{
			Driver:            getEnv("PRAGATI_DB_DRIVER", "postgres"),
			DSN:               getEnv("PRAGATI_DB_DSN", ""),
			Migrate:           getEnvBool("PRAGATI_DB_MIGRATE", false),
			ResolverCacheSize: getEnvInt("PRAGATI_RESOLVER_CACHE_SIZE", 1024),
			ResolverCacheTTL:  getEnvDuration("PRAGATI_RESOLVER_CACHE_TTL", 30*time.Second),
		},
		Policy: PolicyConfig{
			RulesFile:  getEnv("PRAGATI_POLICY_FILE", ""),
			WatchRules: getEnvBool("PRAGATI_POLICY_WATCH", true),
		},
		Audit: AuditConfig{
			FilePath:    getEnv("PRAGATI_AUDIT_FILE", ""),
			S3Enabled:   getEnvBool("PRAGATI_AUDIT_S3_ENABLED", false),
			S3Endpoint:  getEnv("PRAGATI_AUDIT_S3_ENDPOINT", ""),
			S3Region:    getEnv("PRAGATI_AUDIT_S3_REGION", "us-east-1"),
			S3Bucket:    getEnv("PRAGATI_AUDIT_S3_BUCKET", ""),
			S3Prefix:    getEnv("PRAGATI_AUDIT_S3_PREFIX", "identity-audit"),
			S3AccessKey: getEnv("PRAGATI_AUDIT_S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("PRAGATI_AUDIT_S3_SECRET_KEY", ""),
			S3PathStyle: getEnvBool("PRAGATI_AUDIT_S3_PATH_STYLE", false),
		},
		SSO: SSOConfig{
			Enabled:      getEnvBool("PRAGATI_SSO_ENABLED", false),
			IssuerURL:    getEnv("PRAGATI_SSO_ISSUER", ""),
			ClientID:     getEnv("PRAGATI_SSO_CLIENT_ID", ""),
			ClientSecret: getEnv("PRAGATI_SSO_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("PRAGATI_SSO_REDIRECT_URL", ""),
			Scopes:       getEnvList("PRAGATI_SSO_SCOPES", nil),
		},
		Observability: ObservabilityConfig{
			LogLevel:        observability.ParseLogLevel(getEnv("PRAGATI_LOG_LEVEL", "info")),
			MetricsEnabled:  getEnvBool("PRAGATI_METRICS_ENABLED", true),
			OTelEnabled:     getEnvBool("PRAGATI_OTEL_ENABLED", false),
			OTelEndpoint:    getEnv("PRAGATI_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName: getEnv("PRAGATI_OTEL_SERVICE_NAME", "pragati-identity"),
			OTelInsecure:    getEnvBool("PRAGATI_OTEL_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid. Startup aborts on any
// failure here; a misconfigured identity service must not serve.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if len(c.Token.Secret) < auth.MinSecretLength {
		return fmt.Errorf("PRAGATI_TOKEN_SECRET must be at least %d bytes, got %d",
			auth.MinSecretLength, len(c.Token.Secret))
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return fmt.Errorf("access token lifetime must be shorter than refresh lifetime")
	}

	switch c.Session.Backend {
	case "redis":
		if c.Session.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis session backend")
		}
	case "memory":
		// Dev mode only; revocation is not shared across replicas.
	default:
		return fmt.Errorf("invalid session backend: %s (must be redis or memory)", c.Session.Backend)
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	if c.Audit.S3Enabled && c.Audit.S3Bucket == "" {
		return fmt.Errorf("audit S3 bucket is required when S3 archival is enabled")
	}

	if c.SSO.Enabled {
		if c.SSO.IssuerURL == "" || c.SSO.ClientID == "" || c.SSO.ClientSecret == "" || c.SSO.RedirectURL == "" {
			return fmt.Errorf("SSO issuer, client id, client secret, and redirect URL are all required when SSO is enabled")
		}
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
