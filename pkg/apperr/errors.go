// Package apperr defines the error kinds shared by every waypoint package.
//
// Each package declares its own sentinel errors with New so callers can use
// errors.Is against the sentinel, while transports use KindOf to branch on
// the kind without importing every domain package.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for callers that need to pick a reaction.
type Kind string

const (
	KindInvalidPermissionSet Kind = "InvalidPermissionSet"
	KindInvalidRole          Kind = "InvalidRole"
	KindInvalidUser          Kind = "InvalidUser"
	KindRoleNotFound         Kind = "RoleNotFound"
	KindRoleInUse            Kind = "RoleInUse"
	KindUserNotFound         Kind = "UserNotFound"
	KindPermissionDenied     Kind = "PermissionDenied"
	KindModuleNotInitialized Kind = "ModuleNotInitialized"
	KindUnknownAction        Kind = "UnknownAction"
	KindUnknownSection       Kind = "UnknownSection"
	KindModuleConflict       Kind = "ModuleConflict"
	KindNotFound             Kind = "NotFound"
	KindValidation           Kind = "ValidationError"
	KindInternal             Kind = "Internal"
)

// Error is a sentinel error tagged with a Kind.
type Error struct {
	kind Kind
	msg  string
}

// New returns a sentinel error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

// Kind returns the error kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// KindOf returns the kind of the first tagged error in err's chain, or
// KindInternal when none is found.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var tagged interface{ Kind() Kind }
	if errors.As(err, &tagged) {
		return tagged.Kind()
	}
	return KindInternal
}

// HTTPStatus maps a kind to the status code transports should answer with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidPermissionSet, KindInvalidRole, KindInvalidUser, KindValidation:
		return http.StatusBadRequest
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindRoleNotFound, KindUserNotFound, KindNotFound:
		return http.StatusNotFound
	case KindRoleInUse, KindModuleConflict:
		return http.StatusConflict
	case KindModuleNotInitialized:
		return http.StatusPreconditionFailed
	case KindUnknownAction, KindUnknownSection:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
