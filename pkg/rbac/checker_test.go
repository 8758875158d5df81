package rbac

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCheck struct {
	permission string
	allowed    bool
}

type mockCheckRecorder struct {
	mu     sync.Mutex
	checks []recordedCheck
}

func (m *mockCheckRecorder) PermissionChecked(permission string, allowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, recordedCheck{permission, allowed})
}

func setupEvaluator(t *testing.T) (*Evaluator, *RoleStore, *UserDirectory, *mockCheckRecorder) {
	t.Helper()
	roles := NewRoleStore(nil)
	users := NewUserDirectory()
	recorder := &mockCheckRecorder{}

	_, err := roles.Put(Role{ID: "r-support", Name: "Support", Permissions: NewPermissionSet(PermReadTrips, PermReadTickets)})
	require.NoError(t, err)

	_, err = users.Put(User{ID: "with-role", Name: "A", Department: DepartmentAgent, Status: StatusActive, RoleID: strPtr("r-support")})
	require.NoError(t, err)
	_, err = users.Put(User{ID: "no-role", Name: "B", Department: DepartmentAgent, Status: StatusActive})
	require.NoError(t, err)
	_, err = users.Put(User{ID: "dangling", Name: "C", Department: DepartmentAgent, Status: StatusActive, RoleID: strPtr("r-gone")})
	require.NoError(t, err)

	return NewEvaluator(roles, users, recorder), roles, users, recorder
}

func TestEvaluator_GetUserPermissions(t *testing.T) {
	eval, _, _, _ := setupEvaluator(t)

	tests := []struct {
		user string
		want []string
	}{
		{"with-role", []string{PermReadTickets, PermReadTrips}},
		{"no-role", []string{}},
		{"dangling", []string{}},
		{"unknown", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			perms := eval.GetUserPermissions(tt.user)
			require.NotNil(t, perms)
			assert.Equal(t, tt.want, perms.Slice())
		})
	}
}

func TestEvaluator_Check(t *testing.T) {
	eval, _, _, recorder := setupEvaluator(t)

	tests := []struct {
		user       string
		permission string
		allowed    bool
		reason     string
	}{
		{"with-role", PermReadTrips, true, "granted by role r-support"},
		{"with-role", PermWriteTrips, false, "role r-support lacks write_trips"},
		{"no-role", PermReadTrips, false, "no role assigned"},
		{"dangling", PermReadTrips, false, "role r-gone not found"},
		{"unknown", PermReadTrips, false, "unknown user"},
	}

	for _, tt := range tests {
		t.Run(tt.user+"/"+tt.permission, func(t *testing.T) {
			result := eval.Check(tt.user, tt.permission)
			assert.Equal(t, tt.allowed, result.Allowed)
			assert.Equal(t, tt.reason, result.Reason)
			assert.Equal(t, tt.permission, result.Permission)
			assert.False(t, result.CheckedAt.IsZero())
		})
	}

	assert.Len(t, recorder.checks, len(tests))
}

func TestEvaluator_HasAllHasAny(t *testing.T) {
	eval, _, _, _ := setupEvaluator(t)

	assert.True(t, eval.HasAll("with-role", PermReadTrips, PermReadTickets))
	assert.False(t, eval.HasAll("with-role", PermReadTrips, PermWriteTrips))
	assert.True(t, eval.HasAny("with-role", PermWriteTrips, PermReadTickets))
	assert.False(t, eval.HasAny("no-role", PermReadTrips))
}

func TestEvaluator_ReflectsRoleUpdateImmediately(t *testing.T) {
	eval, roles, _, _ := setupEvaluator(t)

	assert.False(t, eval.HasPermission("with-role", PermWriteTickets))

	_, err := roles.Update("r-support", RoleUpdate{Permissions: []string{PermWriteTickets}})
	require.NoError(t, err)

	assert.True(t, eval.HasPermission("with-role", PermWriteTickets))
	assert.False(t, eval.HasPermission("with-role", PermReadTrips))
}

func TestEvaluator_ReflectsAssignmentImmediately(t *testing.T) {
	eval, _, users, _ := setupEvaluator(t)

	assert.False(t, eval.HasPermission("no-role", PermReadTickets))

	_, err := users.Modify("no-role", func(u *User) { u.RoleID = strPtr("r-support") })
	require.NoError(t, err)

	assert.True(t, eval.HasPermission("no-role", PermReadTickets))
}

func TestEvaluator_ResultIsACopy(t *testing.T) {
	eval, roles, _, _ := setupEvaluator(t)

	perms := eval.GetUserPermissions("with-role")
	perms[PermAdminRoles] = struct{}{}

	stored, ok := roles.Permissions("r-support")
	require.True(t, ok)
	assert.False(t, stored.Has(PermAdminRoles))
}
