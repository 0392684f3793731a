package safego

import (
	"go.uber.org/zap"
)

// Go launches a goroutine with panic recovery. A panicking goroutine is
// logged with its stack and exits cleanly instead of taking the process down.
//
// Usage:
//
//	safego.Go(logger, "audit-worker", func() {
//	    // work that might panic
//	})
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover is the deferred half of Go, exposed for loops that guard each
// iteration without spawning a goroutine per item:
//
//	for msg := range ch {
//	    func() {
//	        defer safego.Recover(logger, "handle-message")
//	        handle(msg)
//	    }()
//	}
func Recover(logger *zap.Logger, name string) {
	if r := recover(); r != nil {
		logger.Error("Goroutine panicked",
			zap.String("goroutine", name),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
	}
}
