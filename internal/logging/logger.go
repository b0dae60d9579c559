// Package logging provides structured logging for the daemon (§4.5.1).
// Unlike the teacher's CLI/GUI dual-mode logger, overlayd always runs
// headless/backgrounded, so there is exactly one output mode: stdout.
package logging

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/overlayd/overlayd/internal/events"
)

// Logger wraps zerolog with a mirror-to-event-bus side channel, so the
// daemon's LogBuffer (behind the control socket's recent-logs query) can
// collect daemon logs via events.LogEvent instead of parsing the zerolog
// stream.
type Logger struct {
	zlog *zerolog.Logger
	bus  *events.Bus
}

// New creates a Logger writing structured JSON to stdout, optionally
// mirroring every Debugf/Infof/Warnf/Errorf line to bus as an
// events.LogEvent (bus may be nil). Lines logged through Debug/Info/Warn/
// Error/Fatal are not mirrored.
func New(bus *events.Bus) *Logger {
	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	return &Logger{zlog: &zlog, bus: bus}
}

// Component returns a child Logger that tags every event with a
// "component" field, matching the hook used throughout this codebase
// (e.g. `log.With().Str("component", "agentfabric").Logger()`).
func (l *Logger) Component(name string) *Logger {
	child := l.zlog.With().Str("component", name).Logger()
	return &Logger{zlog: &child, bus: l.bus}
}

// Bus returns the event bus this Logger mirrors log lines onto (nil if
// none was configured), so a caller building other bus-subscribing
// components can share the same bus rather than missing log events.
func (l *Logger) Bus() *events.Bus {
	return l.bus
}

// Zerolog returns the underlying zerolog.Logger, for packages (like
// agentfabric.NewServer) whose constructors take a zerolog.Logger
// directly rather than this package's wrapper.
func (l *Logger) Zerolog() zerolog.Logger {
	return *l.zlog
}

// Debug returns a debug-level event.
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }

// Info returns an info-level event.
func (l *Logger) Info() *zerolog.Event { return l.zlog.Info() }

// Warn returns a warn-level event.
func (l *Logger) Warn() *zerolog.Event { return l.zlog.Warn() }

// Error returns an error-level event.
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// Fatal returns a fatal-level event; zerolog's Msg/Msgf on it calls
// os.Exit(1) after logging.
func (l *Logger) Fatal() *zerolog.Event { return l.zlog.Fatal() }

// Debugf logs a debug message with printf-style formatting.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
	l.mirror(events.DebugLevel, format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
	l.mirror(events.InfoLevel, format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
	l.mirror(events.WarnLevel, format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
	l.mirror(events.ErrorLevel, format, args...)
}

func (l *Logger) mirror(level events.LogLevel, format string, args ...interface{}) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(events.LogEvent{
		BaseEvent: events.NewBaseEvent(events.EventLog),
		Level:     level,
		Message:   fmt.Sprintf(format, args...),
	})
}

// SetGlobalLevel sets the minimum level zerolog emits process-wide.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}
