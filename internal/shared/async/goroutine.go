// Package async provides panic-safe goroutine helpers shared by the
// service's long-lived background loops (HTTP listener, worker pool).
package async

import (
	"github.com/aglm/taskqueue/internal/shared/logging"
)

// Go runs fn in a new goroutine, recovering and logging any panic through
// logger rather than crashing the process. name identifies the goroutine in
// the log line.
func Go(logger logging.Logger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover must be called via defer inside a goroutine body; it recovers a
// panic and logs it through logger. logger may be nil.
func Recover(logger logging.Logger, name string) {
	if r := recover(); r != nil {
		logging.OrNop(logger).Error("goroutine panic [%s]: %v", name, r)
	}
}
