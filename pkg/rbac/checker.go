package rbac

import (
	"fmt"
	"time"
)

// CheckRecorder receives the outcome of every permission check
type CheckRecorder interface {
	PermissionChecked(permission string, allowed bool)
}

// Evaluator resolves a user's effective permissions through their role.
// Nothing is cached: every call reads the current role and user state.
type Evaluator struct {
	roles    *RoleStore
	users    *UserDirectory
	recorder CheckRecorder
	now      func() time.Time
}

// NewEvaluator creates an evaluator over the given stores. recorder may be nil.
func NewEvaluator(roles *RoleStore, users *UserDirectory, recorder CheckRecorder) *Evaluator {
	return &Evaluator{
		roles:    roles,
		users:    users,
		recorder: recorder,
		now:      time.Now,
	}
}

// GetUserPermissions returns the user's effective permission set. It is
// empty when the user is unknown, has no role, or references a missing role.
func (e *Evaluator) GetUserPermissions(userID string) PermissionSet {
	perms, _ := e.resolve(userID)
	return perms
}

// HasPermission reports whether the user currently holds permID
func (e *Evaluator) HasPermission(userID, permID string) bool {
	return e.Check(userID, permID).Allowed
}

// HasAll reports whether the user currently holds every permission
func (e *Evaluator) HasAll(userID string, permIDs ...string) bool {
	perms, _ := e.resolve(userID)
	allowed := perms.HasAll(permIDs...)
	for _, id := range permIDs {
		e.record(id, perms.Has(id))
	}
	return allowed
}

// HasAny reports whether the user currently holds at least one permission
func (e *Evaluator) HasAny(userID string, permIDs ...string) bool {
	perms, _ := e.resolve(userID)
	allowed := perms.HasAny(permIDs...)
	for _, id := range permIDs {
		e.record(id, perms.Has(id))
	}
	return allowed
}

// Check evaluates a single permission and explains the outcome
func (e *Evaluator) Check(userID, permID string) CheckResult {
	perms, roleID := e.resolve(userID)

	result := CheckResult{
		Permission: permID,
		Allowed:    perms.Has(permID),
		RoleID:     roleID,
		CheckedAt:  e.now().UTC(),
	}

	switch {
	case result.Allowed:
		result.Reason = fmt.Sprintf("granted by role %s", roleID)
	case !e.users.Exists(userID):
		result.Reason = "unknown user"
	case roleID == "":
		result.Reason = "no role assigned"
	case !e.roles.Exists(roleID):
		result.Reason = fmt.Sprintf("role %s not found", roleID)
	default:
		result.Reason = fmt.Sprintf("role %s lacks %s", roleID, permID)
	}

	e.record(permID, result.Allowed)
	return result
}

func (e *Evaluator) resolve(userID string) (PermissionSet, string) {
	roleID := e.users.RoleOf(userID)
	if roleID == "" {
		return PermissionSet{}, ""
	}
	perms, ok := e.roles.Permissions(roleID)
	if !ok {
		return PermissionSet{}, roleID
	}
	return perms, roleID
}

func (e *Evaluator) record(permID string, allowed bool) {
	if e.recorder != nil {
		e.recorder.PermissionChecked(permID, allowed)
	}
}
