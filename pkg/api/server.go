// Package api assembles the identity service's HTTP surface: the auth
// endpoints (login, refresh, logout, validate-token), admin account
// management, and a mount point for external domain handlers that run
// behind the access policy.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pragati-platform/identity/pkg/httputil"
	"github.com/pragati-platform/identity/pkg/middleware"
	"github.com/pragati-platform/identity/pkg/observability"
)

// Server owns the router and the request middleware chain. Every
// mounted route runs behind the authenticator; which roles may reach
// it is decided by the policy table, not by the handler.
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger
}

// Options tune the outer request plumbing.
type Options struct {
	// CORSOrigins lists origins allowed to call the API from a
	// browser. Empty disables CORS handling entirely.
	CORSOrigins []string
	// MaxBodyBytes caps request body size. Zero means no cap.
	MaxBodyBytes int64
}

// NewServer builds the router with the standard chain: CORS and body
// caps outside the router (preflight OPTIONS never reaches a route),
// then request id, access logging, panic recovery, and
// authentication/authorization on matched routes.
func NewServer(authn *middleware.Authenticator, opts Options, logger *observability.Logger) *Server {
	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(logger))
	router.Use(httputil.RecoveryMiddleware(logger))
	router.Use(authn.Handler)

	var outer []func(http.Handler) http.Handler
	if len(opts.CORSOrigins) > 0 {
		outer = append(outer, httputil.CORSMiddleware(opts.CORSOrigins))
	}
	if opts.MaxBodyBytes > 0 {
		outer = append(outer, httputil.MaxBytesMiddleware(opts.MaxBodyBytes))
	}

	return &Server{
		router:  router,
		handler: httputil.Chain(outer...)(router),
		logger:  logger,
	}
}

// RouteRegistrar is implemented by handler groups that mount their own
// routes.
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// Register mounts a handler group on the server's router.
func (s *Server) Register(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// Router exposes the underlying router so external domain services
// (ideas, teams, reports, notifications) can mount their handlers
// behind the same policy gate.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
