package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// UserDirectory holds users in memory. It does not know about roles;
// referential checks are made by Service.
type UserDirectory struct {
	mu       sync.RWMutex
	users    map[string]*User
	validate *validator.Validate
}

// NewUserDirectory creates an empty directory
func NewUserDirectory() *UserDirectory {
	return &UserDirectory{
		users:    make(map[string]*User),
		validate: validator.New(),
	}
}

// Validate checks the user's field constraints
func (d *UserDirectory) Validate(u *User) error {
	if err := d.validate.Struct(u); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidUser, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	return nil
}

// Put validates and stores a copy of u, replacing any user with the same id
func (d *UserDirectory) Put(u User) (*User, error) {
	if err := d.Validate(&u); err != nil {
		return nil, err
	}
	stored := u.clone()

	d.mu.Lock()
	d.users[u.ID] = stored
	d.mu.Unlock()

	return stored.clone(), nil
}

// Get returns a copy of the user
func (d *UserDirectory) Get(id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return u.clone(), nil
}

// Exists reports whether a user with id is stored
func (d *UserDirectory) Exists(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[id]
	return ok
}

// RoleOf returns the user's role id, or "" when the user is unknown or has none
func (d *UserDirectory) RoleOf(id string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok || u.RoleID == nil {
		return ""
	}
	return *u.RoleID
}

// Modify applies fn to the stored user. The result must pass validation,
// otherwise the user is left unchanged.
func (d *UserDirectory) Modify(id string, fn func(u *User)) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}

	updated := u.clone()
	fn(updated)
	updated.ID = id
	if err := d.Validate(updated); err != nil {
		return nil, err
	}

	d.users[id] = updated
	return updated.clone(), nil
}

// Delete removes the user
func (d *UserDirectory) Delete(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	delete(d.users, id)
	return nil
}

// ByRole returns copies of the users referencing roleID, ordered by id
func (d *UserDirectory) ByRole(roleID string) []*User {
	d.mu.RLock()
	var out []*User
	for _, u := range d.users {
		if u.HasRole(roleID) {
			out = append(out, u.clone())
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CountByRole returns the number of users referencing roleID
func (d *UserDirectory) CountByRole(roleID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, u := range d.users {
		if u.HasRole(roleID) {
			n++
		}
	}
	return n
}

// List returns copies of every user ordered by id
func (d *UserDirectory) List() []*User {
	d.mu.RLock()
	out := make([]*User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u.clone())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of users
func (d *UserDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}
