package rbac

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/waypoint/pkg/audit"
	"github.com/platinummonkey/waypoint/pkg/events"
)

const (
	eventSource = "rbac"
	auditScope  = "rbac"
)

// Topics published by Service after a successful mutation
const (
	TopicRoleCreated  = "rbac.role.created"
	TopicRoleUpdated  = "rbac.role.updated"
	TopicRoleDeleted  = "rbac.role.deleted"
	TopicRoleAssigned = "rbac.role.assigned"
	TopicUserCreated  = "rbac.user.created"
	TopicUserUpdated  = "rbac.user.updated"
	TopicUserDeleted  = "rbac.user.deleted"
)

// Publisher is the part of the event bus Service needs
type Publisher interface {
	PublishFrom(source, topic string, payload map[string]interface{}) events.Event
}

// ServiceConfig configures a Service. Every field is optional.
type ServiceConfig struct {
	Catalog  *Catalog
	Bus      Publisher
	Audit    *audit.Logger
	Recorder CheckRecorder
	Logger   *logrus.Logger
}

// Service owns the role store and user directory. Operations that touch
// both run under one lock, so a reference check and the mutation it guards
// form a single step.
type Service struct {
	mu        sync.Mutex
	catalog   *Catalog
	roles     *RoleStore
	users     *UserDirectory
	evaluator *Evaluator

	bus   Publisher
	audit *audit.Logger
	log   *logrus.Logger
	now   func() time.Time
}

// NewService creates a service with empty stores
func NewService(cfg ServiceConfig) *Service {
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	roles := NewRoleStore(cfg.Catalog)
	users := NewUserDirectory()

	return &Service{
		catalog:   cfg.Catalog,
		roles:     roles,
		users:     users,
		evaluator: NewEvaluator(roles, users, cfg.Recorder),
		bus:       cfg.Bus,
		audit:     cfg.Audit,
		log:       cfg.Logger,
		now:       time.Now,
	}
}

// Catalog returns the permission catalog
func (s *Service) Catalog() *Catalog { return s.catalog }

// Evaluator returns the permission evaluator over this service's stores
func (s *Service) Evaluator() *Evaluator { return s.evaluator }

// CreateRole creates a role from in
func (s *Service) CreateRole(in RoleInput) (*Role, error) {
	role, err := s.roles.Create(in)
	if err != nil {
		return nil, err
	}
	s.changed(TopicRoleCreated, role.ID, fmt.Sprintf("role %q created with %d permissions", role.Name, role.Permissions.Len()))
	return role, nil
}

// UpdateRole merges upd into the role. Evaluations made afterwards see the
// new permissions immediately.
func (s *Service) UpdateRole(id string, upd RoleUpdate) (*Role, error) {
	role, err := s.roles.Update(id, upd)
	if err != nil {
		return nil, err
	}
	s.changed(TopicRoleUpdated, role.ID, fmt.Sprintf("role %q updated", role.Name))
	return role, nil
}

// DeleteRole removes a role that no user references
func (s *Service) DeleteRole(id string) error {
	s.mu.Lock()
	if !s.roles.Exists(id) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}
	if n := s.users.CountByRole(id); n > 0 {
		s.mu.Unlock()
		s.log.WithField("role_id", id).Warnf("refusing to delete role assigned to %d users", n)
		return fmt.Errorf("%w: %s is assigned to %d users", ErrRoleInUse, id, n)
	}
	err := s.roles.Delete(id)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.changed(TopicRoleDeleted, id, "role deleted")
	return nil
}

// AssignRole points the user at an existing role
func (s *Service) AssignRole(userID, roleID string) (*User, error) {
	s.mu.Lock()
	if !s.roles.Exists(roleID) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	user, err := s.users.Modify(userID, func(u *User) {
		id := roleID
		u.RoleID = &id
	})
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.changed(TopicRoleAssigned, userID, fmt.Sprintf("role %s assigned to user %s", roleID, userID))
	return user, nil
}

// UnassignRole clears the user's role, leaving them with no permissions
func (s *Service) UnassignRole(userID string) (*User, error) {
	s.mu.Lock()
	user, err := s.users.Modify(userID, func(u *User) { u.RoleID = nil })
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.changed(TopicRoleAssigned, userID, fmt.Sprintf("role cleared for user %s", userID))
	return user, nil
}

// GetRoleByID returns the role with id
func (s *Service) GetRoleByID(id string) (*Role, error) {
	return s.roles.Get(id)
}

// GetUsersByRole returns the users referencing roleID
func (s *Service) GetUsersByRole(roleID string) []*User {
	return s.users.ByRole(roleID)
}

// ListRoles returns every role
func (s *Service) ListRoles() []*Role {
	return s.roles.List()
}

// ListPermissions returns the catalog
func (s *Service) ListPermissions() []Permission {
	return s.catalog.All()
}

// HasPermission reports whether the user currently holds permID
func (s *Service) HasPermission(userID, permID string) bool {
	return s.evaluator.HasPermission(userID, permID)
}

// GetUserPermissions returns the user's effective permission set
func (s *Service) GetUserPermissions(userID string) PermissionSet {
	return s.evaluator.GetUserPermissions(userID)
}

// GetUser returns the user with id
func (s *Service) GetUser(id string) (*User, error) {
	return s.users.Get(id)
}

// ListUsers returns every user
func (s *Service) ListUsers() []*User {
	return s.users.List()
}

// CreateUser adds a user. A referenced role must exist.
func (s *Service) CreateUser(in UserInput) (*User, error) {
	user := User{
		ID:         strings.TrimSpace(in.ID),
		Name:       strings.TrimSpace(in.Name),
		Email:      strings.TrimSpace(in.Email),
		Department: in.Department,
		Status:     in.Status,
		CreatedAt:  s.now().UTC(),
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Status == "" {
		user.Status = StatusActive
	}
	if in.RoleID != nil {
		id := *in.RoleID
		user.RoleID = &id
	}

	s.mu.Lock()
	if s.users.Exists(user.ID) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: user %s already exists", ErrInvalidUser, user.ID)
	}
	if user.RoleID != nil && !s.roles.Exists(*user.RoleID) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, *user.RoleID)
	}
	created, err := s.users.Put(user)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.changed(TopicUserCreated, created.ID, fmt.Sprintf("user %q created in %s", created.Name, created.Department))
	return created, nil
}

// UpdateUser merges the non-nil fields of upd into the user
func (s *Service) UpdateUser(id string, upd UserUpdate) (*User, error) {
	s.mu.Lock()
	user, err := s.users.Modify(id, func(u *User) {
		if upd.Name != nil {
			u.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Email != nil {
			u.Email = strings.TrimSpace(*upd.Email)
		}
		if upd.Department != nil {
			u.Department = *upd.Department
		}
		if upd.Status != nil {
			u.Status = *upd.Status
		}
	})
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.changed(TopicUserUpdated, id, fmt.Sprintf("user %q updated", user.Name))
	return user, nil
}

// DeleteUser removes a user
func (s *Service) DeleteUser(id string) error {
	s.mu.Lock()
	err := s.users.Delete(id)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.changed(TopicUserDeleted, id, "user deleted")
	return nil
}

// RecordLogin stamps the user's last login time
func (s *Service) RecordLogin(userID string) (*User, error) {
	now := s.now().UTC()
	return s.users.Modify(userID, func(u *User) { u.LastLogin = &now })
}

// changed records a completed mutation in the audit log and on the bus
func (s *Service) changed(topic, entityID, summary string) {
	if s.audit != nil {
		s.audit.Info(auditScope, summary)
	}
	s.log.WithFields(logrus.Fields{
		"topic":     topic,
		"entity_id": entityID,
	}).Debug(summary)
	if s.bus != nil {
		s.bus.PublishFrom(eventSource, topic, map[string]interface{}{
			"entity_id": entityID,
			"summary":   summary,
		})
	}
}
