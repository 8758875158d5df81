// Package api assembles the waypoint HTTP surface.
//
// NewServer mounts the probes, the Prometheus endpoint, the RBAC
// management routes, the dashboard session routes and the audit trail on one
// gorilla/mux router, then wraps it with recovery, request ids, request
// logging, body limits, actor resolution, optional rate limiting and
// otelhttp tracing.
//
//	srv, err := api.NewServer(api.Config{
//		RBAC:     svc,
//		Shell:    shell,
//		Audit:    auditLog,
//		Metrics:  metrics,
//		Gatherer: registry,
//	})
//	http.ListenAndServe(":8080", srv)
//
// Callers identify themselves with the X-Actor-ID header. Audit routes
// require admin_roles.
package api
