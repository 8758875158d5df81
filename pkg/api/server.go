package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/waypoint/pkg/audit"
	"github.com/platinummonkey/waypoint/pkg/dashboard"
	"github.com/platinummonkey/waypoint/pkg/httputil"
	"github.com/platinummonkey/waypoint/pkg/middleware"
	"github.com/platinummonkey/waypoint/pkg/observability"
	"github.com/platinummonkey/waypoint/pkg/rbac"
)

// maxBodyBytes bounds every request body
const maxBodyBytes = 1 << 20

// Config wires the server to its collaborators. RBAC, Shell and Audit are
// required.
type Config struct {
	RBAC  *rbac.Service
	Shell *dashboard.Shell
	Audit *audit.Logger

	// Metrics and Gatherer enable request metrics and GET /metrics
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer

	Health    *observability.HealthChecker
	RateLimit *middleware.RateLimitMiddleware
	Logger    *logrus.Logger
}

// Server is the waypoint HTTP surface
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *logrus.Logger
}

// NewServer builds the router and the middleware chain
func NewServer(cfg Config) (*Server, error) {
	if cfg.RBAC == nil || cfg.Shell == nil || cfg.Audit == nil {
		return nil, errors.New("api: RBAC, Shell and Audit are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Health == nil {
		cfg.Health = observability.NewHealthChecker("", 0)
	}

	s := &Server{
		router: mux.NewRouter(),
		logger: cfg.Logger,
	}
	s.setupRoutes(cfg)

	chain := []func(http.Handler) http.Handler{
		httputil.RecoveryMiddleware(cfg.Logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(cfg.Logger),
		httputil.MaxBytesMiddleware(maxBodyBytes),
		httputil.ContentTypeMiddleware,
		middleware.ActorMiddleware(cfg.RBAC, cfg.Logger),
	}
	if cfg.RateLimit != nil {
		chain = append(chain, cfg.RateLimit.Handler)
	}
	s.handler = otelhttp.NewHandler(httputil.Chain(chain...)(s.router), "waypoint")
	return s, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(cfg Config) {
	if cfg.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}

	// Probes
	s.router.HandleFunc("/healthz", cfg.Health.Liveness).Methods("GET")
	s.router.HandleFunc("/readyz", cfg.Health.Readiness).Methods("GET")
	if cfg.Gatherer != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(cfg.Gatherer)).Methods("GET")
	}

	guard := rbac.NewPermissionMiddleware(cfg.RBAC.Evaluator())
	rbac.NewHandlers(cfg.RBAC, guard).RegisterRoutes(s.router)
	dashboard.NewHandlers(cfg.Shell).RegisterRoutes(s.router)

	// The audit trail is an administrative view
	auditRouter := s.router.MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool {
		return strings.HasPrefix(r.URL.Path, "/audit/")
	}).Subrouter()
	auditRouter.Use(guard.RequirePermission(rbac.PermAdminRoles))
	audit.NewHandlers(cfg.Audit).RegisterRoutes(auditRouter)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "no route for "+r.Method+" "+r.URL.Path)
	})
}

// Router exposes the route table
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
