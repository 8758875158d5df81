// Package async provides panic-safe background goroutines.
//
// SafeGo runs a task with a timeout, recovers panics with their stack
// trace, and logs failures through logrus instead of crashing the process.
//
//	async.SafeGo(ctx, log, 10*time.Second, "module init", func(ctx context.Context) error {
//		return build(ctx)
//	})
//
// The modules package uses it for background module initialization.
package async
