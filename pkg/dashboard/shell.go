package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/waypoint/pkg/audit"
	"github.com/platinummonkey/waypoint/pkg/datastore"
	"github.com/platinummonkey/waypoint/pkg/events"
	"github.com/platinummonkey/waypoint/pkg/modules"
	"github.com/platinummonkey/waypoint/pkg/rbac"
)

const auditScope = "dashboard"

var shellTracer = otel.Tracer("waypoint/dashboard")

// Directory looks up the users sessions are opened for
type Directory interface {
	GetUser(id string) (*rbac.User, error)
	RecordLogin(userID string) (*rbac.User, error)
}

// Config configures a Shell. Factory and Directory are required.
type Config struct {
	Factory   *modules.Factory
	Directory Directory
	Bus       *events.Bus
	Audit     *audit.Logger
	Logger    *logrus.Logger
}

// Shell opens department dashboards: it checks who may open one, loads
// section data through the module and runs module actions
type Shell struct {
	factory   *modules.Factory
	directory Directory
	bus       *events.Bus
	audit     *audit.Logger
	log       *logrus.Logger
}

// Overview is the data of the dashboard section
type Overview struct {
	Summary modules.Summary `json:"summary"`
	Counts  map[string]int  `json:"counts"`
}

// Stats aggregates module, bus and audit state for one session
type Stats struct {
	Module *modules.Info `json:"module,omitempty"`
	Events events.Stats  `json:"events"`
	Audit  audit.Stats   `json:"audit"`
}

// New creates a dashboard shell
func New(cfg Config) (*Shell, error) {
	if cfg.Factory == nil {
		return nil, errors.New("dashboard: a module factory is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("dashboard: a user directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Shell{
		factory:   cfg.Factory,
		directory: cfg.Directory,
		bus:       cfg.Bus,
		audit:     cfg.Audit,
		log:       cfg.Logger,
	}, nil
}

// Initialize opens the department dashboard of userID and returns its
// module. The user must exist, be active and belong to the department.
func (s *Shell) Initialize(ctx context.Context, dept rbac.Department, userID string) (*modules.Module, error) {
	if err := s.authorize(dept, userID); err != nil {
		return nil, err
	}
	m, err := s.factory.Create(ctx, dept, userID)
	if err != nil {
		s.log.WithField("user_id", userID).WithError(err).Warn("dashboard initialization failed")
		return nil, err
	}
	s.opened(dept, userID)
	return m, nil
}

// InitializeAsync is Initialize without waiting for the module build. The
// returned module may still be Initializing.
func (s *Shell) InitializeAsync(ctx context.Context, dept rbac.Department, userID string) (*modules.Module, error) {
	if err := s.authorize(dept, userID); err != nil {
		return nil, err
	}
	m, err := s.factory.InitializeAsync(ctx, dept, userID)
	if err != nil {
		return nil, err
	}
	s.opened(dept, userID)
	return m, nil
}

func (s *Shell) authorize(dept rbac.Department, userID string) error {
	user, err := s.directory.GetUser(userID)
	if err != nil {
		return err
	}
	if user.Status != rbac.StatusActive {
		return fmt.Errorf("%w: user %s is %s", rbac.ErrPermissionDenied, userID, user.Status)
	}
	if user.Department != dept {
		return fmt.Errorf("%w: user %s belongs to %s, not %s", rbac.ErrPermissionDenied, userID, user.Department, dept)
	}
	return nil
}

func (s *Shell) opened(dept rbac.Department, userID string) {
	if _, err := s.directory.RecordLogin(userID); err != nil {
		s.log.WithField("user_id", userID).WithError(err).Warn("failed to record login")
	}
	if s.audit != nil {
		s.audit.Info(auditScope, fmt.Sprintf("%s opened the %s dashboard", userID, dept))
	}
}

// Session returns the open module of userID
func (s *Shell) Session(userID string) (*modules.Module, bool) {
	return s.factory.Lookup(userID)
}

// EndSession closes the dashboard of userID
func (s *Shell) EndSession(userID string) bool {
	if !s.factory.Unregister(userID) {
		return false
	}
	if s.audit != nil {
		s.audit.Info(auditScope, fmt.Sprintf("%s closed the dashboard", userID))
	}
	return true
}

// LoadSectionData returns the data of section. A section the module
// cannot load returns nil data and no error.
func (s *Shell) LoadSectionData(ctx context.Context, m *modules.Module, section string) (interface{}, error) {
	if err := ready(m); err != nil {
		return nil, err
	}
	if !modules.KnownSection(section) {
		return nil, fmt.Errorf("%w: %s", modules.ErrUnknownSection, section)
	}
	if section == modules.SectionDashboard {
		return s.overview(ctx, m)
	}

	loader, _ := modules.LoaderFor(section)
	if !m.Operation(loader) {
		return nil, nil
	}
	return m.Invoke(ctx, loader, nil)
}

// overview runs every section loader of m concurrently and counts the rows
func (s *Shell) overview(ctx context.Context, m *modules.Module) (*Overview, error) {
	summaryData, err := m.Invoke(ctx, modules.OpLoadDashboard, nil)
	if err != nil {
		return nil, err
	}
	out := &Overview{Counts: make(map[string]int)}
	if summary, ok := summaryData.(modules.Summary); ok {
		out.Summary = summary
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, section := range modules.Sections() {
		if section == modules.SectionDashboard {
			continue
		}
		loader, _ := modules.LoaderFor(section)
		if !m.Operation(loader) {
			continue
		}
		section, loader := section, loader
		g.Go(func() error {
			data, err := m.Invoke(gctx, loader, nil)
			if err != nil {
				return fmt.Errorf("load %s: %w", section, err)
			}
			mu.Lock()
			out.Counts[section] = countOf(data)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func countOf(data interface{}) int {
	switch v := data.(type) {
	case []*datastore.Trip:
		return len(v)
	case []*datastore.Ticket:
		return len(v)
	case []*datastore.Vehicle:
		return len(v)
	case []*datastore.Report:
		return len(v)
	case []*rbac.User:
		return len(v)
	default:
		return 0
	}
}

// ExecuteAction runs action on m
func (s *Shell) ExecuteAction(ctx context.Context, m *modules.Module, action string, payload modules.Payload) (interface{}, error) {
	if err := ready(m); err != nil {
		return nil, err
	}

	ctx, span := shellTracer.Start(ctx, "ExecuteAction",
		trace.WithAttributes(
			attribute.String("action", action),
			attribute.String("department", string(m.Department())),
			attribute.String("user_id", m.UserID()),
		),
	)
	defer span.End()

	out, err := m.Invoke(ctx, action, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "action failed")
		s.log.WithFields(logrus.Fields{
			"action":  action,
			"user_id": m.UserID(),
		}).WithError(err).Debug("action rejected")
		return nil, err
	}
	return out, nil
}

// Stats reports the session of m alongside bus and audit totals. m may be nil.
func (s *Shell) Stats(m *modules.Module) Stats {
	var st Stats
	if m != nil {
		info := m.Info()
		st.Module = &info
	}
	if s.bus != nil {
		st.Events = s.bus.Stats()
	}
	if s.audit != nil {
		st.Audit = s.audit.Stats()
	}
	return st
}

func ready(m *modules.Module) error {
	if m == nil {
		return fmt.Errorf("%w: no module", modules.ErrModuleNotInitialized)
	}
	if state := m.State(); state != modules.StateReady {
		return fmt.Errorf("%w: module is %s", modules.ErrModuleNotInitialized, state)
	}
	return nil
}
