// Package rbac provides role-based access control for the Waypoint
// transit operations platform.
//
// # Overview
//
// Access is modeled in three layers:
//
//  1. Permissions: a fixed catalog of capability ids such as "read_trips"
//     or "refund_tickets", grouped by category (read, write, cancel, ...).
//  2. Roles: named sets of catalog permissions, created and edited at runtime.
//  3. Users: directory entries that belong to a department and reference at
//     most one role.
//
// A user's effective permissions are exactly the permissions of their
// assigned role. Users without a role, or whose role cannot be resolved,
// hold no permissions.
//
// # Usage
//
//	svc := rbac.NewService(rbac.ServiceConfig{Bus: bus, Audit: auditLog})
//	if err := svc.ApplySeed(rbac.DefaultSeed()); err != nil {
//		log.Fatal(err)
//	}
//
//	role, err := svc.CreateRole(rbac.RoleInput{
//		Name:        "Support",
//		Permissions: []string{rbac.PermReadTrips},
//	})
//	_, err = svc.AssignRole("u2", role.ID)
//
//	svc.HasPermission("u2", rbac.PermReadTrips)  // true
//	svc.HasPermission("u2", rbac.PermWriteTrips) // false
//
// Evaluation never caches. Role edits and reassignments are visible to the
// next check.
//
// # Invariants
//
// Every permission id stored on a role is in the catalog; unknown ids are
// rejected with ErrInvalidPermissionSet. A role that is still assigned to
// any user cannot be deleted (ErrRoleInUse), and deletion races with
// assignment are serialized so a user never references a deleted role.
//
// # Events
//
// Each successful mutation writes an audit entry and publishes an event
// on the "rbac." topics (TopicRoleCreated, TopicRoleAssigned, ...).
//
// # HTTP
//
// Handlers exposes the service under /rbac. Mutating routes are guarded
// by PermissionMiddleware, which reads the acting user id from the
// request context.
package rbac
