package rbac

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/waypoint/pkg/audit"
	"github.com/platinummonkey/waypoint/pkg/events"
)

func newSeededService(t *testing.T) (*Service, *events.Bus, *audit.Logger) {
	t.Helper()
	auditLog := audit.NewLogger(audit.Config{MaxEntries: 200, MinLevel: audit.LevelDebug})
	bus := events.NewBus(events.Config{Audit: auditLog})
	svc := NewService(ServiceConfig{Bus: bus, Audit: auditLog})
	require.NoError(t, svc.ApplySeed(DefaultSeed()))
	return svc, bus, auditLog
}

func TestService_SupportRoleScenario(t *testing.T) {
	svc, _, _ := newSeededService(t)

	role, err := svc.CreateRole(RoleInput{Name: "Support", Permissions: []string{PermReadTrips}})
	require.NoError(t, err)

	_, err = svc.AssignRole("u2", role.ID)
	require.NoError(t, err)

	assert.True(t, svc.HasPermission("u2", PermReadTrips))
	assert.False(t, svc.HasPermission("u2", PermWriteTrips))
}

func TestService_UserWithoutRoleHasNoPermissions(t *testing.T) {
	svc, _, _ := newSeededService(t)

	user, err := svc.CreateUser(UserInput{Name: "New Hire", Department: DepartmentAgent})
	require.NoError(t, err)
	assert.Nil(t, user.RoleID)
	assert.Equal(t, StatusActive, user.Status)

	assert.Equal(t, 0, svc.GetUserPermissions(user.ID).Len())

	_, err = svc.UnassignRole("u2")
	require.NoError(t, err)
	assert.Equal(t, 0, svc.GetUserPermissions("u2").Len())
}

func TestService_DeleteRoleInUse(t *testing.T) {
	svc, _, _ := newSeededService(t)

	before, err := svc.GetRoleByID(SeedRoleAgent)
	require.NoError(t, err)
	usersBefore := svc.GetUsersByRole(SeedRoleAgent)
	require.Len(t, usersBefore, 1)

	err = svc.DeleteRole(SeedRoleAgent)
	assert.ErrorIs(t, err, ErrRoleInUse)

	after, err := svc.GetRoleByID(SeedRoleAgent)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, usersBefore, svc.GetUsersByRole(SeedRoleAgent))
}

func TestService_DeleteUnassignedRole(t *testing.T) {
	svc, bus, _ := newSeededService(t)

	role, err := svc.CreateRole(RoleInput{Name: "Temp"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRole(role.ID))
	_, err = svc.GetRoleByID(role.ID)
	assert.ErrorIs(t, err, ErrRoleNotFound)

	assert.ErrorIs(t, svc.DeleteRole(role.ID), ErrRoleNotFound)
	assert.Equal(t, int64(1), bus.Stats().PerTopic[TopicRoleDeleted])
}

func TestService_AssignMissingRole(t *testing.T) {
	svc, _, _ := newSeededService(t)

	_, err := svc.AssignRole("u2", "role-nope")
	assert.ErrorIs(t, err, ErrRoleNotFound)

	user, err := svc.GetUser("u2")
	require.NoError(t, err)
	assert.Equal(t, SeedRoleAgent, *user.RoleID)

	_, err = svc.AssignRole("ghost", SeedRoleAgent)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestService_UpdateRoleIsVisibleImmediately(t *testing.T) {
	svc, _, _ := newSeededService(t)

	_, err := svc.CreateUser(UserInput{ID: "u9", Name: "Second Agent", Department: DepartmentAgent, RoleID: strPtr(SeedRoleAgent)})
	require.NoError(t, err)

	assert.False(t, svc.HasPermission("u2", PermPublishReports))
	assert.False(t, svc.HasPermission("u9", PermPublishReports))

	_, err = svc.UpdateRole(SeedRoleAgent, RoleUpdate{Permissions: []string{PermReadTickets, PermPublishReports}})
	require.NoError(t, err)

	for _, u := range svc.GetUsersByRole(SeedRoleAgent) {
		assert.True(t, svc.HasPermission(u.ID, PermPublishReports), u.ID)
		assert.False(t, svc.HasPermission(u.ID, PermRefundTickets), u.ID)
	}
}

func TestService_UpdateRoleRejectsUnknownPermission(t *testing.T) {
	svc, _, _ := newSeededService(t)
	before, err := svc.GetRoleByID(SeedRoleDriver)
	require.NoError(t, err)

	_, err = svc.UpdateRole(SeedRoleDriver, RoleUpdate{Permissions: []string{"teleport"}})
	assert.ErrorIs(t, err, ErrInvalidPermissionSet)

	after, err := svc.GetRoleByID(SeedRoleDriver)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestService_CreateUserValidation(t *testing.T) {
	svc, _, _ := newSeededService(t)

	_, err := svc.CreateUser(UserInput{ID: "u1", Name: "Dup", Department: DepartmentAdmin})
	assert.ErrorIs(t, err, ErrInvalidUser)

	_, err = svc.CreateUser(UserInput{Name: "Orphan", Department: DepartmentAgent, RoleID: strPtr("missing")})
	assert.ErrorIs(t, err, ErrRoleNotFound)

	_, err = svc.CreateUser(UserInput{Name: "Pilot", Department: "pilot"})
	assert.ErrorIs(t, err, ErrInvalidUser)
}

func TestService_UpdateAndDeleteUser(t *testing.T) {
	svc, bus, _ := newSeededService(t)

	suspended := StatusSuspended
	user, err := svc.UpdateUser("u3", UserUpdate{Status: &suspended, Name: strPtr("  Dee D.  ")})
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, user.Status)
	assert.Equal(t, "Dee D.", user.Name)

	require.NoError(t, svc.DeleteUser("u3"))
	assert.ErrorIs(t, svc.DeleteUser("u3"), ErrUserNotFound)

	stats := bus.Stats()
	assert.Equal(t, int64(1), stats.PerTopic[TopicUserUpdated])
	assert.Equal(t, int64(1), stats.PerTopic[TopicUserDeleted])
}

func TestService_RecordLogin(t *testing.T) {
	svc, _, _ := newSeededService(t)

	user, err := svc.RecordLogin("u1")
	require.NoError(t, err)
	require.NotNil(t, user.LastLogin)

	_, err = svc.RecordLogin("ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestService_MutationsPublishAndAudit(t *testing.T) {
	svc, bus, auditLog := newSeededService(t)

	var got []events.Event
	bus.Subscribe("rbac.*", func(e events.Event) error {
		got = append(got, e)
		return nil
	})

	role, err := svc.CreateRole(RoleInput{Name: "Support"})
	require.NoError(t, err)
	_, err = svc.AssignRole("u2", role.ID)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, TopicRoleCreated, got[0].Topic)
	assert.Equal(t, role.ID, got[0].Payload["entity_id"])
	assert.Equal(t, "rbac", got[0].Source)
	assert.Equal(t, TopicRoleAssigned, got[1].Topic)
	assert.Equal(t, "u2", got[1].Payload["entity_id"])

	infos := auditLog.Search(audit.Filter{MinLevel: audit.LevelInfo, Scope: "rbac"})
	assert.GreaterOrEqual(t, len(infos), 3)
}

func TestService_ConcurrentDeleteAndAssign(t *testing.T) {
	for i := 0; i < 50; i++ {
		svc, _, _ := newSeededService(t)
		role, err := svc.CreateRole(RoleInput{Name: "Contested"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		var deleteErr, assignErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			deleteErr = svc.DeleteRole(role.ID)
		}()
		go func() {
			defer wg.Done()
			_, assignErr = svc.AssignRole("u2", role.ID)
		}()
		wg.Wait()

		// Exactly one of the two wins; a user never references a deleted role.
		if deleteErr == nil {
			assert.ErrorIs(t, assignErr, ErrRoleNotFound)
			user, err := svc.GetUser("u2")
			require.NoError(t, err)
			assert.Equal(t, SeedRoleAgent, *user.RoleID)
		} else {
			assert.ErrorIs(t, deleteErr, ErrRoleInUse)
			assert.NoError(t, assignErr)
		}
	}
}
