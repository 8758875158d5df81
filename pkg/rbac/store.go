package rbac

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RoleStore holds roles in memory. Every stored role only references
// catalog permissions.
type RoleStore struct {
	mu      sync.RWMutex
	roles   map[string]*Role
	catalog *Catalog
	now     func() time.Time
}

// NewRoleStore creates an empty role store validating against catalog
func NewRoleStore(catalog *Catalog) *RoleStore {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &RoleStore{
		roles:   make(map[string]*Role),
		catalog: catalog,
		now:     time.Now,
	}
}

// Create adds a new role with a fresh id
func (s *RoleStore) Create(in RoleInput) (*Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRole)
	}
	perms, err := s.catalog.Validate(in.Permissions)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	role := &Role{
		ID:          uuid.New().String(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Permissions: perms,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.roles[role.ID] = role
	s.mu.Unlock()

	return role.clone(), nil
}

// Put stores a role under its own id, replacing any existing one. It is
// used when seeding.
func (s *RoleStore) Put(role Role) (*Role, error) {
	if strings.TrimSpace(role.ID) == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRole)
	}
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRole)
	}
	perms, err := s.catalog.Validate(role.Permissions.Slice())
	if err != nil {
		return nil, err
	}
	role.Permissions = perms

	now := s.now().UTC()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	if role.UpdatedAt.IsZero() {
		role.UpdatedAt = role.CreatedAt
	}

	s.mu.Lock()
	s.roles[role.ID] = &role
	s.mu.Unlock()

	return role.clone(), nil
}

// Get returns a copy of the role
func (s *RoleStore) Get(id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}
	return role.clone(), nil
}

// Exists reports whether a role with id is stored
func (s *RoleStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roles[id]
	return ok
}

// Permissions returns a copy of the role's permission set
func (s *RoleStore) Permissions(id string) (PermissionSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[id]
	if !ok {
		return nil, false
	}
	return role.Permissions.Clone(), true
}

// Update merges the non-nil fields of upd into the role and bumps UpdatedAt.
// On error the role is left unchanged.
func (s *RoleStore) Update(id string, upd RoleUpdate) (*Role, error) {
	var name string
	if upd.Name != nil {
		name = strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidRole)
		}
	}
	var perms PermissionSet
	if upd.Permissions != nil {
		var err error
		if perms, err = s.catalog.Validate(upd.Permissions); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}

	updated := role.clone()
	if upd.Name != nil {
		updated.Name = name
	}
	if upd.Description != nil {
		updated.Description = strings.TrimSpace(*upd.Description)
	}
	if perms != nil {
		updated.Permissions = perms
	}
	updated.UpdatedAt = s.now().UTC()
	if !updated.UpdatedAt.After(role.UpdatedAt) {
		updated.UpdatedAt = role.UpdatedAt.Add(time.Nanosecond)
	}

	s.roles[id] = updated
	return updated.clone(), nil
}

// Delete removes the role. Callers that must refuse deleting an assigned
// role check references first while holding their own lock.
func (s *RoleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}
	delete(s.roles, id)
	return nil
}

// List returns copies of every role ordered by creation time, then name
func (s *RoleStore) List() []*Role {
	s.mu.RLock()
	out := make([]*Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len returns the number of stored roles
func (s *RoleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roles)
}
