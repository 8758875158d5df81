package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo executes fn in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// A nil logger logs to the logrus standard logger.
//
// Example:
//
//	SafeGo(ctx, log, 10*time.Second, "module init u2", func(ctx context.Context) error {
//	    return factory.build(ctx, m)
//	})
func SafeGo(parentCtx context.Context, logger logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("task", taskName)

	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.WithField("stack", string(debug.Stack())).Errorf("panic in background task: %v", r)
			}
		}()

		if err := fn(ctx); err != nil {
			// Caller decides whether the failure matters
			log.WithError(err).Warn("background task failed")
		}
	}()
}
