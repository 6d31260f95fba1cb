// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. The only mandatory variables are the token
// signing secret and the user database DSN; everything else has working defaults.
//
// # Configuration Structure
//
// Server settings:
//
//	PRAGATI_HOST="0.0.0.0"
//	PRAGATI_PORT="8080"
//	PRAGATI_HEALTH_PORT="9090"
//	PRAGATI_READ_TIMEOUT="15s"
//	PRAGATI_WRITE_TIMEOUT="15s"
//
// Token settings:
//
//	PRAGATI_TOKEN_SECRET=""        # required, minimum 32 bytes
//	PRAGATI_ACCESS_TTL="15m"
//	PRAGATI_REFRESH_TTL="168h"
//	PRAGATI_TOKEN_LEEWAY="30s"
//
// Session settings:
//
//	PRAGATI_SESSION_BACKEND="redis"  # redis, memory
//	PRAGATI_REDIS_URL="localhost:6379"
//	PRAGATI_SESSION_SWEEP="@every 10m"
//
// Database settings:
//
//	PRAGATI_DB_DRIVER="postgres"   # postgres, sqlite3
//	PRAGATI_DB_DSN=""              # required
//	PRAGATI_RESOLVER_CACHE_TTL="30s"
//
// Policy settings:
//
//	PRAGATI_POLICY_FILE=""         # empty uses built-in rules
//	PRAGATI_POLICY_WATCH="true"
//
// Observability settings:
//
//	PRAGATI_LOG_LEVEL="info"  # debug, info, warn, error
//	PRAGATI_METRICS_ENABLED="true"
//	PRAGATI_OTEL_ENABLED="false"
//	PRAGATI_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/observability: Uses observability configuration
//   - pkg/session: Uses session and token configuration
package config
