package rbac

import (
	"time"
)

// Category groups permissions by the kind of right they grant
type Category string

const (
	CategoryRead     Category = "read"
	CategoryWrite    Category = "write"
	CategoryValidate Category = "validate"
	CategoryCancel   Category = "cancel"
	CategoryRefund   Category = "refund"
	CategoryPublish  Category = "publish"
	CategoryAdmin    Category = "admin"
)

// Permission is an atomic, named right to perform one kind of action
type Permission struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
}

// Department is the part of the operation a user works in
type Department string

const (
	DepartmentAdmin  Department = "admin"
	DepartmentAgent  Department = "agent"
	DepartmentDriver Department = "driver"
)

// Valid reports whether d is a known department
func (d Department) Valid() bool {
	switch d {
	case DepartmentAdmin, DepartmentAgent, DepartmentDriver:
		return true
	}
	return false
}

// UserStatus is the account state of a user
type UserStatus string

const (
	StatusActive    UserStatus = "active"
	StatusInactive  UserStatus = "inactive"
	StatusSuspended UserStatus = "suspended"
)

// Role is a named set of catalog permissions
type Role struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Permissions PermissionSet `json:"permissions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (r *Role) clone() *Role {
	c := *r
	c.Permissions = r.Permissions.Clone()
	return &c
}

// User is a directory entry. RoleID is nil when no role is assigned.
type User struct {
	ID         string     `json:"id" validate:"required"`
	Name       string     `json:"name" validate:"required"`
	Email      string     `json:"email" validate:"omitempty,email"`
	RoleID     *string    `json:"role_id"`
	Department Department `json:"department" validate:"required,oneof=admin agent driver"`
	Status     UserStatus `json:"status" validate:"required,oneof=active inactive suspended"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (u *User) clone() *User {
	c := *u
	if u.RoleID != nil {
		id := *u.RoleID
		c.RoleID = &id
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

// HasRole reports whether the user references roleID
func (u *User) HasRole(roleID string) bool {
	return u.RoleID != nil && *u.RoleID == roleID
}

// RoleInput holds the fields of a new role
type RoleInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// RoleUpdate is a partial role update. Nil fields are left untouched;
// a non-nil empty Permissions slice clears the role.
type RoleUpdate struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// UserInput holds the fields of a new user. ID is generated when empty.
type UserInput struct {
	ID         string     `json:"id,omitempty"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	RoleID     *string    `json:"role_id,omitempty"`
	Department Department `json:"department"`
	Status     UserStatus `json:"status,omitempty"`
}

// UserUpdate is a partial user update. Role changes go through AssignRole.
type UserUpdate struct {
	Name       *string     `json:"name,omitempty"`
	Email      *string     `json:"email,omitempty"`
	Department *Department `json:"department,omitempty"`
	Status     *UserStatus `json:"status,omitempty"`
}

// CheckResult is the outcome of a single permission check
type CheckResult struct {
	Allowed    bool      `json:"allowed"`
	Permission string    `json:"permission"`
	Reason     string    `json:"reason,omitempty"`
	RoleID     string    `json:"role_id,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}
