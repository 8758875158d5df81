// Package middleware provides request identity and rate limiting.
//
// ActorMiddleware resolves the X-Actor-ID header set by the upstream login
// flow and exposes the user id and department through contextkeys:
//
//	router.Use(middleware.ActorMiddleware(svc, logger))
//
// RateLimitMiddleware runs after it and keys buckets by actor, falling back
// to the client address for anonymous callers:
//
//	limiter := middleware.NewRateLimitMiddleware(nil, nil)
//	limiter.StartCleanup(ctx)
//	router.Use(limiter.Handler)
package middleware
