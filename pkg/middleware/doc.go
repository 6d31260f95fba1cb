// Package middleware provides HTTP middleware for authentication, authorization, and rate limiting.
//
// # Overview
//
// This package implements the request gate for the identity service and
// for services embedding it: token verification, session revocation
// checks, identity resolution, role-based authorization, and login rate
// limiting.
//
// # Middleware Components
//
// Authenticator: the full auth pipeline
//
//	authn := middleware.NewAuthenticator(codec, sessions, resolver, table, logger, metrics)
//	router.Use(authn.Handler)
//	// Verifies the Bearer token, checks revocation, resolves the
//	// stored user, authorizes against the rule table, and attaches
//	// the identity to the request context.
//
// LoginRateLimit: in-memory throttle for the login endpoint
//
//	limiter := middleware.NewRateLimiter(middleware.LoginRateLimitConfig())
//	loginRoute.Use(middleware.LoginRateLimit(limiter))
//
// DistributedLoginRateLimit: Redis-backed throttle shared across replicas
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, nil, "")
//	loginRoute.Use(middleware.DistributedLoginRateLimit(limiter, logger))
//
// RequireCollege: per-route college scope enforcement
//
//	route.Use(middleware.RequireCollege("collegeId"))
//
// # Error Surface
//
// All rejections use coarse statuses: 401 for anything wrong with the
// token or session, 403 for a valid caller lacking access, 503 when a
// backing store cannot answer. The detailed reason is logged and
// counted in metrics, never returned to the client.
//
// # Related Packages
//
//   - pkg/auth: Token verification and identity resolution
//   - pkg/policy: Role-based access rules
//   - pkg/session: Revocation checks
package middleware
