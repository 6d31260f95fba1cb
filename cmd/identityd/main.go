// Command identityd runs the Pragati identity service: login, token
// refresh, session revocation, and role-gated authorization for the
// platform's API routes.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pragati-platform/identity/pkg/api"
	"github.com/pragati-platform/identity/pkg/audit"
	"github.com/pragati-platform/identity/pkg/auth"
	"github.com/pragati-platform/identity/pkg/config"
	"github.com/pragati-platform/identity/pkg/middleware"
	"github.com/pragati-platform/identity/pkg/observability"
	"github.com/pragati-platform/identity/pkg/policy"
	"github.com/pragati-platform/identity/pkg/session"
	"github.com/pragati-platform/identity/pkg/sso"
	"github.com/pragati-platform/identity/pkg/userstore"
)

func main() {
	boot := logrus.New()
	boot.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	tracingShutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.OTelEnabled,
		Endpoint:    cfg.Observability.OTelEndpoint,
		ServiceName: cfg.Observability.OTelServiceName,
		Insecure:    cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		boot.Fatalf("Failed to initialize tracing: %v", err)
	}

	db, err := userstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		boot.Fatalf("Failed to open user database: %v", err)
	}
	if cfg.Database.Migrate {
		if err := userstore.Migrate(ctx, db); err != nil {
			boot.Fatalf("Failed to migrate user database: %v", err)
		}
		boot.Info("User database schema migrated")
	}
	users := userstore.New(db, cfg.Database.Driver)

	var redisClient *redis.Client
	var store session.Store
	switch cfg.Session.Backend {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Session.RedisURL,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			boot.Fatalf("Failed to connect to redis at %s: %v", cfg.Session.RedisURL, err)
		}
		store = session.NewRedisStore(redisClient)
		boot.Infof("Session store: redis (%s)", cfg.Session.RedisURL)
	case "memory":
		store = session.NewMemoryStore()
		boot.Warn("Session store: in-memory; revocation is not shared across replicas")
	}

	codec, err := auth.NewTokenCodec(cfg.Token.Secret, cfg.Token.Leeway)
	if err != nil {
		boot.Fatalf("Failed to build token codec: %v", err)
	}

	metrics := observability.NewMetrics()
	sessions := session.NewManager(codec, users, store, session.Config{
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
	}, logger, metrics)
	resolver := auth.NewResolver(users, cfg.Database.ResolverCacheSize, cfg.Database.ResolverCacheTTL)

	table, watchCancel, err := buildPolicyTable(cfg.Policy, logger)
	if err != nil {
		boot.Fatalf("Failed to load policy rules: %v", err)
	}

	auditLogger, err := buildAuditLogger(ctx, cfg.Audit, logger)
	if err != nil {
		boot.Fatalf("Failed to build audit trail: %v", err)
	}

	authn := middleware.NewAuthenticator(codec, sessions, resolver, table, logger, metrics)
	server := api.NewServer(authn, api.Options{
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}, logger)

	loginLimit := middleware.LoginRateLimit(middleware.NewRateLimiter(middleware.LoginRateLimitConfig()))
	if redisClient != nil {
		distributed := middleware.NewDistributedRateLimiter(redisClient, middleware.LoginRateLimitConfig(), "identity:ratelimit:login")
		loginLimit = middleware.DistributedLoginRateLimit(distributed, logger)
	}
	server.Register(api.NewAuthHandlers(sessions, users, loginLimit, auditLogger, logger))
	server.Register(api.NewAdminHandlers(users, resolver, sessions, auditLogger, logger))

	if cfg.SSO.Enabled {
		provider, err := sso.NewProvider(ctx, sso.Config{
			IssuerURL:    cfg.SSO.IssuerURL,
			ClientID:     cfg.SSO.ClientID,
			ClientSecret: cfg.SSO.ClientSecret,
			RedirectURL:  cfg.SSO.RedirectURL,
			Scopes:       cfg.SSO.Scopes,
		})
		if err != nil {
			boot.Fatalf("Failed to initialize SSO provider: %v", err)
		}
		server.Register(sso.NewHandlers(provider, sessions, auditLogger, logger))
		boot.Infof("SSO login enabled, issuer %s", cfg.SSO.IssuerURL)
	}

	sweeper := session.NewSweeper(store, logger)
	if err := sweeper.Start(cfg.Session.SweepSchedule); err != nil {
		boot.Fatalf("Invalid session sweep schedule %q: %v", cfg.Session.SweepSchedule, err)
	}

	var apiHandler http.Handler = server
	if cfg.Observability.OTelEnabled {
		apiHandler = observability.TraceHandler("identity", apiHandler)
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      apiHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux(db, redisClient, metrics, cfg.Observability.MetricsEnabled),
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.Register(tracingShutdown)
	shutdown.Register(sweeper.Stop)
	shutdown.Register(func(context.Context) error { return auditLogger.Close() })
	shutdown.Register(func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register(func(context.Context) error { return redisClient.Close() })
	}
	if watchCancel != nil {
		shutdown.Register(func(context.Context) error { watchCancel(); return nil })
	}

	var group errgroup.Group
	group.Go(func() error {
		boot.Infof("Identity API listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		boot.Infof("Health/metrics listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	group.Go(shutdown.Wait)

	if err := group.Wait(); err != nil {
		boot.Fatalf("Service exited with error: %v", err)
	}
}

// buildPolicyTable loads the rules file or falls back to the built-in
// set, optionally starting the hot-reload watcher.
func buildPolicyTable(cfg config.PolicyConfig, logger *observability.Logger) (*policy.Table, context.CancelFunc, error) {
	if cfg.RulesFile == "" {
		return policy.DefaultTable(), nil, nil
	}

	table, err := policy.LoadFile(cfg.RulesFile)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.WatchRules {
		return table, nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := policy.WatchFile(ctx, cfg.RulesFile, table, logger); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("policy rules watcher stopped")
		}
	}()
	return table, cancel, nil
}

// buildAuditLogger assembles the audit trail: nop when unconfigured,
// JSONL file otherwise, with rotated segments shipped to S3 when
// archival is enabled.
func buildAuditLogger(ctx context.Context, cfg config.AuditConfig, logger *observability.Logger) (audit.Logger, error) {
	if cfg.FilePath == "" {
		return audit.NopLogger{}, nil
	}

	fileCfg := audit.FileLoggerConfig{Path: cfg.FilePath}
	if cfg.S3Enabled {
		archiver, err := audit.NewArchiver(ctx, audit.S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3PathStyle,
		}, logger)
		if err != nil {
			return nil, err
		}
		fileCfg.OnRotate = archiver.RotationHook()
	}

	fileLogger, err := audit.NewFileLogger(fileCfg)
	if err != nil {
		return nil, err
	}
	return fileLogger, nil
}

// healthMux serves the probe and metrics endpoints on the side port.
func healthMux(db *sql.DB, redisClient *redis.Client, metrics *observability.Metrics, metricsEnabled bool) http.Handler {
	checker := observability.NewHealthChecker(db, redisClient)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checker.Liveness)
	mux.HandleFunc("/readyz", checker.Readiness)
	if metricsEnabled {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}
