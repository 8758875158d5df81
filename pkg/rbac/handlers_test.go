package rbac

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/waypoint/pkg/contextkeys"
)

// withActor stands in for the actor middleware
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get("X-Actor-ID"); actor != "" {
			r = r.WithContext(contextkeys.WithUserID(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

func setupRouter(t *testing.T) (http.Handler, *Service) {
	t.Helper()
	svc := NewService(ServiceConfig{})
	require.NoError(t, svc.ApplySeed(DefaultSeed()))

	router := mux.NewRouter()
	NewHandlers(svc, NewPermissionMiddleware(svc.Evaluator())).RegisterRoutes(router)
	return withActor(router), svc
}

func doRequest(t *testing.T, h http.Handler, method, path, actor string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(dest))
}

func TestHandlers_ListPermissions(t *testing.T) {
	h, _ := setupRouter(t)

	w := doRequest(t, h, "GET", "/rbac/permissions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Permissions []Permission `json:"permissions"`
		Count       int          `json:"count"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, 18, body.Count)

	w = doRequest(t, h, "GET", "/rbac/permissions?category=refund", "", nil)
	decodeBody(t, w, &body)
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, PermRefundTickets, body.Permissions[0].ID)
}

func TestHandlers_CreateRole(t *testing.T) {
	h, svc := setupRouter(t)

	tests := []struct {
		name       string
		actor      string
		body       interface{}
		wantStatus int
		wantKind   string
	}{
		{"no actor", "", RoleInput{Name: "Support"}, http.StatusUnauthorized, ""},
		{"agent lacks admin_roles", "u2", RoleInput{Name: "Support"}, http.StatusForbidden, "PermissionDenied"},
		{"unknown permission", "u1", RoleInput{Name: "Bad", Permissions: []string{"x"}}, http.StatusBadRequest, "InvalidPermissionSet"},
		{"blank name", "u1", RoleInput{Name: " "}, http.StatusBadRequest, "InvalidRole"},
		{"admin creates", "u1", RoleInput{Name: "Support", Permissions: []string{PermReadTrips}}, http.StatusCreated, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, h, "POST", "/rbac/roles", tt.actor, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantKind != "" {
				var body map[string]string
				decodeBody(t, w, &body)
				assert.Equal(t, tt.wantKind, body["kind"])
			}
		})
	}

	assert.Len(t, svc.ListRoles(), 4)
}

func TestHandlers_RoleLifecycle(t *testing.T) {
	h, _ := setupRouter(t)

	w := doRequest(t, h, "POST", "/rbac/roles", "u1", RoleInput{Name: "Support", Permissions: []string{PermReadTrips}})
	require.Equal(t, http.StatusCreated, w.Code)
	var role Role
	decodeBody(t, w, &role)
	assert.Equal(t, []string{PermReadTrips}, role.Permissions.Slice())

	w = doRequest(t, h, "PUT", "/rbac/users/u2/role", "u1", map[string]string{"role_id": role.ID})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, h, "POST", "/rbac/check", "", map[string]string{"user_id": "u2", "permission": PermReadTrips})
	require.Equal(t, http.StatusOK, w.Code)
	var check CheckResult
	decodeBody(t, w, &check)
	assert.True(t, check.Allowed)
	assert.Equal(t, role.ID, check.RoleID)

	w = doRequest(t, h, "GET", "/rbac/roles/"+role.ID+"/users", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users struct {
		Count int `json:"count"`
	}
	decodeBody(t, w, &users)
	assert.Equal(t, 1, users.Count)

	w = doRequest(t, h, "DELETE", "/rbac/roles/"+role.ID, "u1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, h, "PUT", "/rbac/roles/"+role.ID, "u1", map[string]interface{}{"permissions": []string{PermReadTrips, PermWriteTrips}})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, h, "GET", "/rbac/users/u2/permissions", "u2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var perms struct {
		Permissions []string `json:"permissions"`
	}
	decodeBody(t, w, &perms)
	assert.Equal(t, []string{PermReadTrips, PermWriteTrips}, perms.Permissions)

	w = doRequest(t, h, "PUT", "/rbac/users/u2/role", "u1", map[string]interface{}{"role_id": nil})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, h, "DELETE", "/rbac/roles/"+role.ID, "u1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, h, "GET", "/rbac/roles/"+role.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_AssignMissingRole(t *testing.T) {
	h, _ := setupRouter(t)

	w := doRequest(t, h, "PUT", "/rbac/users/u2/role", "u1", map[string]string{"role_id": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]string
	decodeBody(t, w, &body)
	assert.Equal(t, "RoleNotFound", body["kind"])
}

func TestHandlers_Users(t *testing.T) {
	h, _ := setupRouter(t)

	w := doRequest(t, h, "GET", "/rbac/users", "u3", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(t, h, "GET", "/rbac/users", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, h, "POST", "/rbac/users", "u1", UserInput{ID: "u7", Name: "Nia", Email: "nia@example.com", Department: DepartmentDriver, RoleID: strPtr(SeedRoleDriver)})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, h, "PUT", "/rbac/users/u7", "u1", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, h, "GET", "/rbac/users/u7", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user User
	decodeBody(t, w, &user)
	assert.Equal(t, "nia@example.com", user.Email)

	w = doRequest(t, h, "DELETE", "/rbac/users/u7", "u1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, h, "GET", "/rbac/users/u7/permissions", "u1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_UserReadsRequireReadUsers(t *testing.T) {
	h, _ := setupRouter(t)

	tests := []struct {
		name   string
		path   string
		actor  string
		status int
	}{
		{"anonymous user record", "/rbac/users/u1", "", http.StatusUnauthorized},
		{"anonymous role members", "/rbac/roles/" + SeedRoleAdmin + "/users", "", http.StatusUnauthorized},
		{"anonymous user permissions", "/rbac/users/u1/permissions", "", http.StatusUnauthorized},
		{"driver reads another user", "/rbac/users/u1", "u3", http.StatusForbidden},
		{"driver reads role members", "/rbac/roles/" + SeedRoleAdmin + "/users", "u3", http.StatusForbidden},
		{"driver reads another user's permissions", "/rbac/users/u2/permissions", "u3", http.StatusForbidden},
		{"driver reads own record", "/rbac/users/u3", "u3", http.StatusOK},
		{"driver reads own permissions", "/rbac/users/u3/permissions", "u3", http.StatusOK},
		{"admin reads any record", "/rbac/users/u3", "u1", http.StatusOK},
		{"admin reads role members", "/rbac/roles/" + SeedRoleAdmin + "/users", "u1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, h, "GET", tt.path, tt.actor, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				assert.NotContains(t, w.Body.String(), "@waypoint.local")
			}
		})
	}
}

func TestHandlers_CheckRejectsUnknownPermission(t *testing.T) {
	h, _ := setupRouter(t)

	w := doRequest(t, h, "POST", "/rbac/check", "", map[string]string{"user_id": "u1", "permission": "moonwalk"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, h, "POST", "/rbac/check", "", map[string]string{"user_id": "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPermissionMiddleware_RequireAny(t *testing.T) {
	svc := NewService(ServiceConfig{})
	require.NoError(t, svc.ApplySeed(DefaultSeed()))
	pm := NewPermissionMiddleware(svc.Evaluator())

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := withActor(pm.RequireAnyPermission(PermReadVehicles, PermReadTickets)(ok))

	w := doRequest(t, h, "GET", "/", "u2", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, h, "GET", "/", "ghost", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(t, h, "GET", "/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
