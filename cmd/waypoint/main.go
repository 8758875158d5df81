package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/waypoint/pkg/api"
	"github.com/platinummonkey/waypoint/pkg/audit"
	"github.com/platinummonkey/waypoint/pkg/config"
	"github.com/platinummonkey/waypoint/pkg/dashboard"
	"github.com/platinummonkey/waypoint/pkg/datastore"
	"github.com/platinummonkey/waypoint/pkg/events"
	"github.com/platinummonkey/waypoint/pkg/middleware"
	"github.com/platinummonkey/waypoint/pkg/modules"
	"github.com/platinummonkey/waypoint/pkg/observability"
	"github.com/platinummonkey/waypoint/pkg/rbac"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print the version and exit")
	seedFile := flag.String("seed", "", "YAML role and user seed (overrides WAYPOINT_SEED_FILE)")
	flag.Parse()

	if *showVersion {
		fmt.Println("waypoint", version)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *seedFile != "" {
		cfg.Modules.SeedFile = *seedFile
	}

	logger, err := observability.NewLogger(cfg.Observability.Logger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("waypoint exited with error")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Observability.OTelServiceVersion == "" {
		cfg.Observability.OTelServiceVersion = version
	}
	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, srv, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("reaper", a.reaper.Stop)
	shutdown.RegisterShutdownFunc("otel", providers.Shutdown)

	a.reaper.Start()

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("waypoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- shutdown.WaitForShutdown() }()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return <-shutdownErr
	case err := <-shutdownErr:
		return err
	}
}

// app is the assembled process minus the listener
type app struct {
	handler http.Handler
	rbac    *rbac.Service
	factory *modules.Factory
	reaper  *modules.Reaper
	audit   *audit.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)
	otelMetrics, err := observability.NewOTelMetrics(nil)
	if err != nil {
		return nil, err
	}
	metrics.Mirror(otelMetrics)

	auditLog := audit.NewLogger(audit.Config{
		MaxEntries: cfg.Audit.MaxEntries,
		MinLevel:   cfg.Audit.MinLevel,
		Mirror:     logger,
		Recorder:   metrics,
	})
	bus := events.NewBus(events.Config{Audit: auditLog, Recorder: metrics, Logger: logger})

	svc := rbac.NewService(rbac.ServiceConfig{Bus: bus, Audit: auditLog, Recorder: metrics, Logger: logger})
	seed, err := config.LoadSeed(cfg.Modules.SeedFile)
	if err != nil {
		return nil, err
	}
	if err := svc.ApplySeed(seed); err != nil {
		return nil, fmt.Errorf("failed to apply seed: %w", err)
	}

	store, err := datastore.NewMemoryStore(datastore.Config{
		ReportCacheSize: cfg.Datastore.ReportCacheSize,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Load(datastore.DefaultFixtures(time.Now())); err != nil {
		return nil, fmt.Errorf("failed to load fixtures: %w", err)
	}

	factory, err := modules.NewFactory(modules.Config{
		Permissions: svc.Evaluator(),
		Catalog:     svc.Catalog(),
		Repository:  store,
		Users:       svc,
		Bus:         bus,
		Audit:       auditLog,
		Recorder:    metrics,
		Logger:      logger,
		InitTimeout: cfg.Modules.InitTimeout,
		Preloader:   modules.WarmDefaultSection,
	})
	if err != nil {
		return nil, err
	}

	reaper, err := modules.NewReaper(factory, modules.ReaperConfig{
		Schedule: cfg.Modules.ReaperSchedule,
		IdleTTL:  cfg.Modules.IdleTTL,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	shell, err := dashboard.New(dashboard.Config{
		Factory:   factory,
		Directory: svc,
		Bus:       bus,
		Audit:     auditLog,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	health := observability.NewHealthChecker(version, 5*time.Second)
	health.Register("datastore", true, func(ctx context.Context) error {
		_, err := store.LoadTrips(ctx)
		return err
	})
	health.Register("rbac", true, func(ctx context.Context) error {
		if len(svc.ListRoles()) == 0 {
			return errors.New("no roles loaded")
		}
		return nil
	})

	apiCfg := api.Config{
		RBAC:   svc,
		Shell:  shell,
		Audit:  auditLog,
		Health: health,
		Logger: logger,
	}
	if cfg.Observability.MetricsEnabled {
		apiCfg.Metrics = metrics
		apiCfg.Gatherer = registry
	}
	if cfg.Server.RateLimitEnabled {
		limiter := middleware.NewRateLimitMiddleware(nil, nil)
		limiter.StartCleanup(ctx)
		apiCfg.RateLimit = limiter
	}

	srv, err := api.NewServer(apiCfg)
	if err != nil {
		return nil, err
	}

	return &app{
		handler: srv,
		rbac:    svc,
		factory: factory,
		reaper:  reaper,
		audit:   auditLog,
	}, nil
}
