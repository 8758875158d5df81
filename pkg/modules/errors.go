package modules

import (
	"github.com/platinummonkey/waypoint/pkg/apperr"
	"github.com/platinummonkey/waypoint/pkg/rbac"
)

var (
	// ErrModuleNotInitialized is returned when invoking a module that is not Ready
	ErrModuleNotInitialized = apperr.New(apperr.KindModuleNotInitialized, "module not initialized")

	// ErrUnknownAction is returned for operation names outside the catalog
	ErrUnknownAction = apperr.New(apperr.KindUnknownAction, "unknown action")

	// ErrUnknownSection is returned for section names outside the catalog
	ErrUnknownSection = apperr.New(apperr.KindUnknownSection, "unknown section")

	// ErrModuleConflict is returned when a user already holds a module of
	// another department
	ErrModuleConflict = apperr.New(apperr.KindModuleConflict, "module conflict")

	// ErrInvalidPayload is returned when an operation payload cannot be decoded
	// or lacks a required field
	ErrInvalidPayload = apperr.New(apperr.KindValidation, "invalid payload")

	// ErrPermissionDenied is rbac.ErrPermissionDenied, re-exported for callers
	// that only import this package
	ErrPermissionDenied = rbac.ErrPermissionDenied
)
