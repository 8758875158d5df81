// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, role)
//	httputil.WriteAppError(w, r, err) // status and kind from apperr.KindOf(err)
//
// Every error body has the shape {"error": "...", "kind": "RoleInUse"}.
//
// # Request Parsing
//
//	var in rbac.RoleInput
//	if !httputil.ParseJSONOrError(w, r, &in) {
//		return // Error response already written
//	}
//	id, ok := httputil.ParsePathStringOrError(w, r, "id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
