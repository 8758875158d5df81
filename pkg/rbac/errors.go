package rbac

import "github.com/platinummonkey/waypoint/pkg/apperr"

var (
	ErrInvalidPermissionSet = apperr.New(apperr.KindInvalidPermissionSet, "invalid permission set")
	ErrInvalidRole          = apperr.New(apperr.KindInvalidRole, "invalid role")
	ErrRoleNotFound         = apperr.New(apperr.KindRoleNotFound, "role not found")
	ErrRoleInUse            = apperr.New(apperr.KindRoleInUse, "role is assigned to users")
	ErrUserNotFound         = apperr.New(apperr.KindUserNotFound, "user not found")
	ErrInvalidUser          = apperr.New(apperr.KindInvalidUser, "invalid user")
	ErrPermissionDenied     = apperr.New(apperr.KindPermissionDenied, "permission denied")
)
