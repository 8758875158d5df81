// Package observability provides the logrus logger, Prometheus metrics,
// OpenTelemetry setup, health probes and graceful shutdown.
//
// # Logging
//
//	logger, err := observability.NewLogger(observability.LoggerConfig{Level: "debug", Format: "text"})
//	observability.FromContext(r.Context(), logger).Info("section loaded")
//
// # Metrics
//
// Metrics implements the recorder interfaces of the audit, events, rbac
// and modules packages, so one value is handed to each of them:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	bus := events.NewBus(events.Config{Recorder: metrics})
//
// Module, operation and event measurements are mirrored to OpenTelemetry
// instruments after Mirror is called.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version, 5*time.Second)
//	checker.Register("datastore", true, func(ctx context.Context) error { ... })
//	router.HandleFunc("/readyz", checker.Readiness)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "waypoint",
//	}, logger)
//	defer providers.Shutdown(ctx)
package observability
