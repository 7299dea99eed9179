package observability

import "runtime/debug"

// RecoverPanic logs a recovered panic with its stack trace. Meant for defer
// in background work that must not take the process down, like an
// expiration sweep. The panic is swallowed after logging.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic":   r,
			"stack":   string(debug.Stack()),
			"context": context,
		}).Error("panic recovered")
	}
}
