package rbac

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/waypoint/pkg/contextkeys"
	"github.com/platinummonkey/waypoint/pkg/httputil"
)

// PermissionMiddleware gates handlers on the acting user's permissions.
// The actor id is read from the request context, where an upstream
// middleware placed it.
type PermissionMiddleware struct {
	evaluator *Evaluator
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(evaluator *Evaluator) *PermissionMiddleware {
	return &PermissionMiddleware{
		evaluator: evaluator,
	}
}

// RequirePermission creates middleware that requires a specific permission
func (pm *PermissionMiddleware) RequirePermission(permID string) func(http.Handler) http.Handler {
	return pm.RequireAllPermissions(permID)
}

// RequireAllPermissions creates middleware that requires all of the specified permissions
func (pm *PermissionMiddleware) RequireAllPermissions(permIDs ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := contextkeys.GetUserID(r.Context())
			if actor == "" {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !pm.evaluator.HasAll(actor, permIDs...) {
				httputil.WriteForbidden(w, fmt.Sprintf("Insufficient permissions: requires %s", strings.Join(permIDs, ", ")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission creates middleware that requires any of the specified permissions
func (pm *PermissionMiddleware) RequireAnyPermission(permIDs ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := contextkeys.GetUserID(r.Context())
			if actor == "" {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !pm.evaluator.HasAny(actor, permIDs...) {
				httputil.WriteForbidden(w, fmt.Sprintf("Insufficient permissions: requires one of %s", strings.Join(permIDs, ", ")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireSelfOrPermission lets an actor through when the route variable
// param names the actor itself, and otherwise requires permID
func (pm *PermissionMiddleware) RequireSelfOrPermission(param, permID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := contextkeys.GetUserID(r.Context())
			if actor == "" {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			if actor != mux.Vars(r)[param] && !pm.evaluator.HasPermission(actor, permID) {
				httputil.WriteForbidden(w, fmt.Sprintf("Insufficient permissions: requires %s", permID))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// guard wraps h with RequirePermission when pm is non-nil
func (pm *PermissionMiddleware) guard(permID string, h http.HandlerFunc) http.Handler {
	if pm == nil {
		return h
	}
	return pm.RequirePermission(permID)(h)
}

// guardSelf wraps h with RequireSelfOrPermission on the {id} route variable
// when pm is non-nil
func (pm *PermissionMiddleware) guardSelf(permID string, h http.HandlerFunc) http.Handler {
	if pm == nil {
		return h
	}
	return pm.RequireSelfOrPermission("id", permID)(h)
}
