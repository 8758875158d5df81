// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/platinummonkey/waypoint/pkg/contextkeys"
//   ctx = contextkeys.WithUserID(ctx, actorID)
//   actorID := contextkeys.GetUserID(ctx)
package contextkeys

import (
	"context"
	"time"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware (pkg/httputil/middleware.go)
	// Used by: Logger, error responses
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the acting user's ID
	// Set by: middleware.ActorMiddleware (pkg/middleware/actor.go)
	// Used by: rbac.PermissionMiddleware, session handlers
	// Type: string
	UserIDKey Key = "user_id"

	// DepartmentKey contains the acting user's department
	// Set by: middleware.ActorMiddleware
	// Used by: session handlers
	// Type: string
	DepartmentKey Key = "department"

	// RequestStartTimeKey contains request start timestamp
	// Set by: httputil.LoggingMiddleware
	// Type: time.Time
	RequestStartTimeKey Key = "request_start_time"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds the acting user's ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithDepartment adds the acting user's department to the context
func WithDepartment(ctx context.Context, department string) context.Context {
	return context.WithValue(ctx, DepartmentKey, department)
}

// WithRequestStartTime adds request start time to the context
func WithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, startTime)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves the acting user's ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetDepartment retrieves the acting user's department from context
func GetDepartment(ctx context.Context) string {
	if dept, ok := ctx.Value(DepartmentKey).(string); ok {
		return dept
	}
	return ""
}

// GetRequestStartTime retrieves the request start time from context
func GetRequestStartTime(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(RequestStartTimeKey).(time.Time)
	return t, ok
}
