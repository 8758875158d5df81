package modules

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/waypoint/pkg/async"
	"github.com/platinummonkey/waypoint/pkg/audit"
	"github.com/platinummonkey/waypoint/pkg/datastore"
	"github.com/platinummonkey/waypoint/pkg/rbac"
)

// DefaultInitTimeout bounds a module build
const DefaultInitTimeout = 10 * time.Second

var factoryTracer = otel.Tracer("waypoint/modules/factory")

// Preloader runs while a module is Initializing, after its operation set
// is fixed. A Preloader error fails the build.
type Preloader func(ctx context.Context, m *Module) error

// Config configures a Factory. Permissions is required.
type Config struct {
	Permissions PermissionSource
	Catalog     *rbac.Catalog
	Repository  datastore.Repository
	Users       UserAdmin
	Bus         Publisher
	Audit       *audit.Logger
	Recorder    Recorder
	Logger      *logrus.Logger
	InitTimeout time.Duration
	Preloader   Preloader
}

// Factory builds capability-scoped modules and keeps at most one per user
type Factory struct {
	mu       sync.Mutex
	registry map[string]*Module

	permissions PermissionSource
	catalog     *rbac.Catalog
	env         *env
	initTimeout time.Duration
	preload     Preloader
}

// NewFactory creates a factory with an empty registry. A nil Repository
// is replaced by an empty datastore.MemoryStore.
func NewFactory(cfg Config) (*Factory, error) {
	if cfg.Permissions == nil {
		return nil, errors.New("modules: a permission source is required")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = rbac.DefaultCatalog()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	if cfg.Repository == nil {
		store, err := datastore.NewMemoryStore(datastore.Config{Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		cfg.Repository = store
	}

	return &Factory{
		registry:    make(map[string]*Module),
		permissions: cfg.Permissions,
		catalog:     cfg.Catalog,
		initTimeout: cfg.InitTimeout,
		preload:     cfg.Preloader,
		env: &env{
			repo:     cfg.Repository,
			users:    cfg.Users,
			bus:      cfg.Bus,
			audit:    cfg.Audit,
			recorder: cfg.Recorder,
			log:      cfg.Logger,
			now:      time.Now,
		},
	}, nil
}

// CreateAdminModule returns the admin module of userID. The admin
// permission list is the whole catalog; the module composes the admin
// operations with a full agent module and a full driver module.
func (f *Factory) CreateAdminModule(ctx context.Context, userID string) (*Module, error) {
	return f.Create(ctx, rbac.DepartmentAdmin, userID)
}

// CreateAgentModule returns the agent module of userID. It fails with
// ErrPermissionDenied when the user lacks read_tickets.
func (f *Factory) CreateAgentModule(ctx context.Context, userID string) (*Module, error) {
	return f.Create(ctx, rbac.DepartmentAgent, userID)
}

// CreateDriverModule returns the driver module of userID. It fails with
// ErrPermissionDenied when the user lacks read_trips.
func (f *Factory) CreateDriverModule(ctx context.Context, userID string) (*Module, error) {
	return f.Create(ctx, rbac.DepartmentDriver, userID)
}

// Create returns the user's module for dept, building it on first use.
// Callers that arrive while a build is running wait for it and receive
// the same instance.
func (f *Factory) Create(ctx context.Context, dept rbac.Department, userID string) (*Module, error) {
	m, fresh, err := f.acquire(dept, userID)
	if err != nil {
		return nil, err
	}
	if fresh {
		buildCtx, cancel := context.WithTimeout(ctx, f.initTimeout)
		defer cancel()
		f.build(buildCtx, m)
	}
	if err := m.Wait(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// InitializeAsync registers the user's module and builds it in the
// background. The returned module is Initializing until the build ends;
// use Module.Wait to block on it.
func (f *Factory) InitializeAsync(ctx context.Context, dept rbac.Department, userID string) (*Module, error) {
	m, fresh, err := f.acquire(dept, userID)
	if err != nil {
		return nil, err
	}
	if fresh {
		async.SafeGo(context.WithoutCancel(ctx), f.env.log, f.initTimeout, "module init "+userID, func(ctx context.Context) error {
			return f.build(ctx, m)
		})
	}
	return m, nil
}

// Lookup returns the registered module of userID
func (f *Factory) Lookup(userID string) (*Module, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.registry[userID]
	return m, ok
}

// Modules returns the registered modules ordered by user id
func (f *Factory) Modules() []*Module {
	f.mu.Lock()
	out := make([]*Module, 0, len(f.registry))
	for _, m := range f.registry {
		out = append(out, m)
	}
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].userID < out[j].userID })
	return out
}

// Len returns the number of registered modules
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registry)
}

// Unregister removes the user's module and resets it to Uninitialized.
// It reports whether a module was registered.
func (f *Factory) Unregister(userID string) bool {
	return f.remove(userID, nil)
}

// UnregisterIdle unregisters every Ready module last used before cutoff
// and returns the affected user ids. Each module is re-checked under the
// registry lock, so one touched meanwhile or replaced by a newer session
// stays registered.
func (f *Factory) UnregisterIdle(cutoff time.Time) []string {
	var removed []string
	for _, m := range f.Modules() {
		if f.unregisterIfIdle(m, cutoff) {
			removed = append(removed, m.userID)
		}
	}
	return removed
}

// unregisterIfIdle removes m only while it is still the registered
// instance of its user, Ready, and unused since cutoff
func (f *Factory) unregisterIfIdle(m *Module, cutoff time.Time) bool {
	return f.remove(m.userID, func(current *Module) bool {
		return current == m && m.State() == StateReady && m.LastUsed().Before(cutoff)
	})
}

// remove deletes the module of userID when match is nil or accepts it
func (f *Factory) remove(userID string, match func(*Module) bool) bool {
	f.mu.Lock()
	m, ok := f.registry[userID]
	if ok && match != nil && !match(m) {
		ok = false
	}
	if ok {
		delete(f.registry, userID)
		f.recordRegistered()
	}
	f.mu.Unlock()

	if !ok {
		return false
	}
	m.reset()
	if f.env.audit != nil {
		f.env.audit.Info(auditScope, fmt.Sprintf("%s module of %s unregistered", m.department, userID))
	}
	f.env.log.WithField("user_id", userID).Debug("module unregistered")
	return true
}

// acquire returns the live module of userID, or registers a new
// Initializing one that the caller must build
func (f *Factory) acquire(dept rbac.Department, userID string) (*Module, bool, error) {
	if userID == "" {
		return nil, false, fmt.Errorf("%w: empty user id", rbac.ErrUserNotFound)
	}
	if !dept.Valid() {
		return nil, false, fmt.Errorf("%w: unknown department %q", ErrPermissionDenied, dept)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.registry[userID]; ok {
		switch existing.State() {
		case StateInitializing, StateReady:
			if existing.department != dept {
				return nil, false, fmt.Errorf("%w: %s already holds a %s module", ErrModuleConflict, userID, existing.department)
			}
			return existing, false, nil
		}
	}

	m := newModule(dept, userID, f.env)
	m.begin()
	f.registry[userID] = m
	f.recordRegistered()
	return m, true, nil
}

// build composes m, runs the preloader and moves m to Ready or Error.
// A failed module is dropped from the registry.
func (f *Factory) build(ctx context.Context, m *Module) (err error) {
	start := time.Now()
	ctx, span := factoryTracer.Start(ctx, "BuildModule",
		trace.WithAttributes(
			attribute.String("department", string(m.department)),
			attribute.String("user_id", m.userID),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			f.env.log.WithField("user_id", m.userID).Errorf("panic building module: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("module build panicked: %v", r)
		}
		f.finish(m, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "module build failed")
		}
	}()

	if err := f.compose(m); err != nil {
		return err
	}
	if f.preload != nil {
		if err := f.preload(ctx, m); err != nil {
			return fmt.Errorf("preload %s module: %w", m.department, err)
		}
	}
	return ctx.Err()
}

func (f *Factory) finish(m *Module, err error, elapsed time.Duration) {
	fields := logrus.Fields{
		"user_id":    m.userID,
		"department": m.department,
		"elapsed":    elapsed,
	}
	outcome := "ready"

	if err != nil {
		m.fail(err)
		f.mu.Lock()
		if f.registry[m.userID] == m {
			delete(f.registry, m.userID)
			f.recordRegistered()
		}
		f.mu.Unlock()

		outcome = "error"
		if errors.Is(err, ErrPermissionDenied) {
			outcome = "denied"
		}
		if f.env.audit != nil {
			f.env.audit.Warn(auditScope, fmt.Sprintf("%s module of %s failed: %v", m.department, m.userID, err))
		}
		f.env.log.WithFields(fields).WithError(err).Warn("module build failed")
	} else {
		m.setReady()
		if f.env.audit != nil {
			f.env.audit.Info(auditScope, fmt.Sprintf("%s module of %s ready with %d operations", m.department, m.userID, len(m.Operations())))
		}
		f.env.log.WithFields(fields).Debug("module ready")
	}

	if f.env.recorder != nil {
		f.env.recorder.ModuleInitialized(string(m.department), outcome, elapsed)
	}
}

// compose fixes the operation set of m from the user's permissions
func (f *Factory) compose(m *Module) error {
	if m.department == rbac.DepartmentAdmin {
		perms := f.catalog.Set()
		agentM := f.delegate(rbac.DepartmentAgent, m.userID, perms)
		driverM := f.delegate(rbac.DepartmentDriver, m.userID, perms)

		ops := make(map[string]*Module)
		for _, name := range opsFor(rbac.DepartmentAdmin, perms) {
			ops[name] = m
		}
		for _, d := range []*Module{agentM, driverM} {
			for name := range d.ops {
				if _, ok := ops[name]; !ok {
					ops[name] = d
				}
			}
		}

		m.mu.Lock()
		m.perms, m.ops, m.agent, m.driver = perms, ops, agentM, driverM
		m.mu.Unlock()
		return nil
	}

	perms := f.permissions.GetUserPermissions(m.userID)
	if min := MinimumPermission[m.department]; !perms.Has(min) {
		return fmt.Errorf("%w: %s lacks %s required for the %s module", ErrPermissionDenied, m.userID, min, m.department)
	}

	ops := make(map[string]*Module)
	for _, name := range opsFor(m.department, perms) {
		ops[name] = m
	}
	m.mu.Lock()
	m.perms, m.ops = perms, ops
	m.mu.Unlock()
	return nil
}

// delegate builds an unregistered Ready module the admin module forwards to
func (f *Factory) delegate(dept rbac.Department, userID string, perms rbac.PermissionSet) *Module {
	d := newModule(dept, userID, f.env)
	d.perms = perms.Clone()
	for _, name := range opsFor(dept, perms) {
		d.ops[name] = d
	}
	d.setReady()
	return d
}

// recordRegistered must be called with f.mu held
func (f *Factory) recordRegistered() {
	if f.env.recorder != nil {
		f.env.recorder.ModulesRegistered(len(f.registry))
	}
}
