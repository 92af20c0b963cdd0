package ut88

import "github.com/golang/glog"

// traceLevel is the glog verbosity instruction traces are written at.
const traceLevel = glog.Level(2)

// LogContext controls instruction tracing. Breakpoint handlers that shortcut slow
// firmware routines call Enter when the routine starts and Exit when it returns, the
// trace stays quiet in between. Scopes nest.
type LogContext struct {
	depth int
}

// Enter starts a quiet scope.
func (l *LogContext) Enter() {
	l.depth++
}

// Exit ends the innermost quiet scope. Unbalanced calls are ignored.
func (l *LogContext) Exit() {
	if l.depth > 0 {
		l.depth--
	}
}

// Enabled reports whether traces are written.
func (l *LogContext) Enabled() bool {
	return l.depth == 0 && bool(glog.V(traceLevel))
}

// Tracef writes an instruction trace line.
func (l *LogContext) Tracef(format string, args ...interface{}) {
	if l.Enabled() {
		glog.V(traceLevel).Infof(format, args...)
	}
}
