package rbac

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/waypoint/pkg/httputil"
)

// Handlers provides HTTP handlers for RBAC operations
type Handlers struct {
	svc   *Service
	guard *PermissionMiddleware
}

// NewHandlers creates new RBAC handlers. With a nil guard no route is
// permission-checked.
func NewHandlers(svc *Service, guard *PermissionMiddleware) *Handlers {
	return &Handlers{
		svc:   svc,
		guard: guard,
	}
}

// RegisterRoutes registers all RBAC routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Catalog
	router.HandleFunc("/rbac/permissions", h.ListPermissions).Methods("GET")

	// Role management
	router.Handle("/rbac/roles", h.guard.guard(PermAdminRoles, h.CreateRole)).Methods("POST")
	router.HandleFunc("/rbac/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/rbac/roles/{id}", h.GetRole).Methods("GET")
	router.Handle("/rbac/roles/{id}", h.guard.guard(PermAdminRoles, h.UpdateRole)).Methods("PUT", "PATCH")
	router.Handle("/rbac/roles/{id}", h.guard.guard(PermAdminRoles, h.DeleteRole)).Methods("DELETE")
	router.Handle("/rbac/roles/{id}/users", h.guard.guard(PermReadUsers, h.GetRoleUsers)).Methods("GET")

	// User directory
	router.Handle("/rbac/users", h.guard.guard(PermReadUsers, h.ListUsers)).Methods("GET")
	router.Handle("/rbac/users", h.guard.guard(PermAdminUsers, h.CreateUser)).Methods("POST")
	router.Handle("/rbac/users/{id}", h.guard.guardSelf(PermReadUsers, h.GetUser)).Methods("GET")
	router.Handle("/rbac/users/{id}", h.guard.guard(PermAdminUsers, h.UpdateUser)).Methods("PUT", "PATCH")
	router.Handle("/rbac/users/{id}", h.guard.guard(PermAdminUsers, h.DeleteUser)).Methods("DELETE")

	// Role assignment
	router.Handle("/rbac/users/{id}/role", h.guard.guard(PermAdminRoles, h.AssignRole)).Methods("PUT")
	router.Handle("/rbac/users/{id}/permissions", h.guard.guardSelf(PermReadUsers, h.GetUserPermissions)).Methods("GET")

	// Permission checking
	router.HandleFunc("/rbac/check", h.CheckPermission).Methods("POST")
}

// ListPermissions lists the catalog, optionally filtered by ?category=
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms := h.svc.ListPermissions()
	if category := httputil.ParseQueryString(r, "category", ""); category != "" {
		perms = h.svc.Catalog().ByCategory(Category(category))
		if perms == nil {
			perms = []Permission{}
		}
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"permissions": perms,
		"count":       len(perms),
	})
}

// CreateRole creates a new role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var in RoleInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	role, err := h.svc.CreateRole(in)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// ListRoles lists all roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles := h.svc.ListRoles()
	httputil.WriteSuccess(w, map[string]interface{}{
		"roles": roles,
		"count": len(roles),
	})
}

// GetRole returns one role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.svc.GetRoleByID(id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole applies a partial update to a role
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var upd RoleUpdate
	if !httputil.ParseJSONOrError(w, r, &upd) {
		return
	}

	role, err := h.svc.UpdateRole(id, upd)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRole deletes an unassigned role
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteRole(id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetRoleUsers lists the users assigned to a role
func (h *Handlers) GetRoleUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.svc.GetRoleByID(id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	users := h.svc.GetUsersByRole(id)
	if users == nil {
		users = []*User{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"role_id": id,
		"users":   users,
		"count":   len(users),
	})
}

// ListUsers lists the directory
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users := h.svc.ListUsers()
	httputil.WriteSuccess(w, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// CreateUser adds a user
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in UserInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	user, err := h.svc.CreateUser(in)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, user)
}

// GetUser returns one user
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	user, err := h.svc.GetUser(id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// UpdateUser applies a partial update to a user
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var upd UserUpdate
	if !httputil.ParseJSONOrError(w, r, &upd) {
		return
	}

	user, err := h.svc.UpdateUser(id, upd)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// DeleteUser removes a user
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteUser(id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AssignRole sets or clears a user's role. A null role_id clears it.
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		RoleID *string `json:"role_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	var (
		user *User
		err  error
	)
	if req.RoleID == nil {
		user, err = h.svc.UnassignRole(id)
	} else {
		user, err = h.svc.AssignRole(id, *req.RoleID)
	}
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// GetUserPermissions returns a user's effective permissions
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.svc.GetUser(id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	perms := h.svc.GetUserPermissions(id)
	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":     id,
		"permissions": perms,
		"count":       perms.Len(),
	})
}

// CheckPermission evaluates one permission for one user
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string `json:"user_id"`
		Permission string `json:"permission"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") || !httputil.RequireNonEmpty(w, req.Permission, "permission") {
		return
	}
	if !h.svc.Catalog().Has(req.Permission) {
		httputil.WriteAppError(w, r, fmt.Errorf("%w: unknown permission %s", ErrInvalidPermissionSet, req.Permission))
		return
	}

	httputil.WriteSuccess(w, h.svc.Evaluator().Check(req.UserID, req.Permission))
}
