package safe

import (
	"DMChat/logger"
	"DMChat/tools/errs"

	"go.uber.org/zap"
)

// Go starts f in a goroutine that logs and swallows panics, so one broken
// connection pump cannot take the process down.
func Go(name string, f func()) {
	go func() {
		defer Recover(name)
		f()
	}()
}

// Recover must be deferred directly.
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Error("[SafeGo] panic recovered", zap.String("goroutine", name), zap.Error(errs.ErrPanic(r)))
	}
}

// DefaultString returns the dereferenced value of a string pointer,
// or the fallback if the pointer is nil.
func DefaultString(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
