package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerHook rewrites the reported caller so log lines point at the code
// that called into this package, not at the wrapper methods themselves.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(0, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		fn := frame.Function
		if strings.Contains(fn, "runtime.") ||
			strings.Contains(fn, "logrus") ||
			strings.Contains(fn, "notion-dashboard/logger") {
			continue
		}
		entry.Caller = &runtime.Frame{
			PC:       frame.PC,
			File:     frame.File,
			Line:     frame.Line,
			Function: frame.Function,
		}
		break
	}
	return nil
}
