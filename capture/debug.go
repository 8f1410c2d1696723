package capture

import (
	"log/slog"
	"sync/atomic"
	"time"
)

var debugLogger atomic.Pointer[slog.Logger]

// SetLogger routes the package's debug output to l. Passing nil silences it.
func SetLogger(l *slog.Logger) {
	if l != nil {
		l = l.With("component", "capture")
	}
	debugLogger.Store(l)
}

func captureDebug(msg string, args ...any) {
	l := debugLogger.Load()
	if l == nil {
		return
	}
	l.Debug(msg, args...)
}

func shouldLogEvery(last *atomic.Int64, period time.Duration) bool {
	if last == nil || period <= 0 {
		return true
	}

	now := time.Now().UnixNano()
	for {
		prev := last.Load()
		if prev != 0 && time.Duration(now-prev) < period {
			return false
		}
		if last.CompareAndSwap(prev, now) {
			return true
		}
	}
}
