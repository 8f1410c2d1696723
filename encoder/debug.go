package encoder

import (
	"log/slog"
	"sync/atomic"
)

var debugLogger atomic.Pointer[slog.Logger]

// SetLogger routes encoder debug output to l. Passing nil silences it.
func SetLogger(l *slog.Logger) {
	if l != nil {
		l = l.With("component", "encoder")
	}
	debugLogger.Store(l)
}

func encoderDebug(msg string, args ...any) {
	if l := debugLogger.Load(); l != nil {
		l.Debug(msg, args...)
	}
}
