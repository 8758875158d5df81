package modules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/waypoint/pkg/rbac"
)

// State is the lifecycle state of a module
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Module is the capability handle through which a user invokes
// operations. Its operation set is fixed when it is built: operations the
// user lacks permission for are absent.
type Module struct {
	department rbac.Department
	userID     string
	env        *env

	mu     sync.RWMutex
	state  State
	err    error
	ready  chan struct{}
	closed bool
	perms  rbac.PermissionSet
	ops    map[string]*Module
	agent  *Module
	driver *Module
	warm   map[string]interface{}

	createdAt time.Time
	lastUsed  atomic.Int64
}

// Info is a point-in-time description of a module
type Info struct {
	Department rbac.Department `json:"department"`
	UserID     string          `json:"user_id"`
	State      State           `json:"state"`
	Error      string          `json:"error,omitempty"`
	Operations []string        `json:"operations"`
	CreatedAt  time.Time       `json:"created_at"`
	LastUsed   time.Time       `json:"last_used"`
}

func newModule(dept rbac.Department, userID string, e *env) *Module {
	now := e.now()
	m := &Module{
		department: dept,
		userID:     userID,
		env:        e,
		state:      StateUninitialized,
		ready:      make(chan struct{}),
		ops:        make(map[string]*Module),
		warm:       make(map[string]interface{}),
		createdAt:  now,
	}
	m.lastUsed.Store(now.UnixNano())
	return m
}

// Department returns the department the module was built for
func (m *Module) Department() rbac.Department { return m.department }

// UserID returns the owning user
func (m *Module) UserID() string { return m.userID }

// State returns the current lifecycle state
func (m *Module) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Err returns the build failure of a module in StateError
func (m *Module) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Operations returns the exposed operation names, sorted
func (m *Module) Operations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.ops))
	for name := range m.ops {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Operation reports whether the module exposes the named operation
func (m *Module) Operation(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ops[name]
	return ok
}

// Permissions returns the permission snapshot the module was built from
func (m *Module) Permissions() rbac.PermissionSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.perms.Clone()
}

// PerformAgentActions returns the agent module an admin module delegates
// to, or nil for other departments
func (m *Module) PerformAgentActions() *Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agent
}

// PerformDriverActions returns the driver module an admin module delegates
// to, or nil for other departments
func (m *Module) PerformDriverActions() *Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.driver
}

// Preloaded returns section data warmed while the module was initializing
func (m *Module) Preloaded(section string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.warm[section]
	return v, ok
}

// Wait blocks until the module is Ready or has failed, or ctx ends
func (m *Module) Wait(ctx context.Context) error {
	select {
	case <-m.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case m.err != nil:
		return m.err
	case m.state != StateReady:
		return fmt.Errorf("%w: module for %s is %s", ErrModuleNotInitialized, m.userID, m.state)
	}
	return nil
}

// Touch marks the module as used now
func (m *Module) Touch() {
	m.lastUsed.Store(m.env.now().UnixNano())
}

// LastUsed returns when the module was last invoked
func (m *Module) LastUsed() time.Time {
	return time.Unix(0, m.lastUsed.Load())
}

// Info describes the module
func (m *Module) Info() Info {
	info := Info{
		Department: m.department,
		UserID:     m.userID,
		State:      m.State(),
		Operations: m.Operations(),
		CreatedAt:  m.createdAt,
		LastUsed:   m.LastUsed(),
	}
	if err := m.Err(); err != nil {
		info.Error = err.Error()
	}
	return info
}

// Invoke runs the named operation with payload. It fails with
// ErrModuleNotInitialized unless the module is Ready, ErrUnknownAction
// for names outside the catalog, and ErrPermissionDenied for catalog
// operations the module does not expose.
func (m *Module) Invoke(ctx context.Context, name string, payload Payload) (interface{}, error) {
	return m.invoke(ctx, name, payload, m)
}

func (m *Module) invoke(ctx context.Context, name string, payload Payload, origin *Module) (interface{}, error) {
	if state := m.State(); state != StateReady {
		return nil, fmt.Errorf("%w: %s module for %s is %s", ErrModuleNotInitialized, m.department, m.userID, state)
	}
	spec, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}

	m.mu.RLock()
	target, ok := m.ops[name]
	m.mu.RUnlock()
	if !ok {
		m.env.operationInvoked(name, "denied")
		return nil, fmt.Errorf("%w: %s is not available to the %s module of %s", ErrPermissionDenied, name, m.department, m.userID)
	}
	origin.Touch()
	if target != m {
		return target.invoke(ctx, name, payload, origin)
	}

	run := handlers[name]
	out, err := run(ctx, &call{env: m.env, spec: spec, module: m, origin: origin, payload: payload})
	if err != nil {
		m.env.operationInvoked(name, "error")
		return nil, err
	}
	m.env.operationInvoked(name, "ok")
	m.env.completed(spec, origin, out)
	return out.value, nil
}

// Warm runs the loader of section and keeps its result for Preloaded.
// Sections the module cannot load are skipped.
func (m *Module) Warm(ctx context.Context, section string) error {
	loader, ok := LoaderFor(section)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSection, section)
	}
	m.mu.RLock()
	target, ok := m.ops[loader]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	spec, _ := Lookup(loader)
	out, err := handlers[loader](ctx, &call{env: target.env, spec: spec, module: target, origin: m})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.warm[section] = out.value
	m.mu.Unlock()
	return nil
}

// DefaultSection is the section a department's dashboard opens on
func DefaultSection(dept rbac.Department) string {
	switch dept {
	case rbac.DepartmentAdmin:
		return SectionUsers
	case rbac.DepartmentAgent:
		return SectionTickets
	default:
		return SectionTrips
	}
}

// WarmDefaultSection is a Preloader that warms the module's default section
func WarmDefaultSection(ctx context.Context, m *Module) error {
	return m.Warm(ctx, DefaultSection(m.department))
}

// transitions

func (m *Module) begin() {
	m.mu.Lock()
	m.state = StateInitializing
	m.mu.Unlock()
}

func (m *Module) setReady() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateInitializing && m.state != StateUninitialized {
		return
	}
	if m.closed {
		// unregistered while building
		return
	}
	m.state = StateReady
	m.closeReady()
}

func (m *Module) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.state = StateError
	m.err = err
	m.closeReady()
}

func (m *Module) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateUninitialized
	m.closeReady()
}

// closeReady must be called with m.mu held
func (m *Module) closeReady() {
	if !m.closed {
		close(m.ready)
		m.closed = true
	}
}
