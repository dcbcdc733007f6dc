// Package sink defines where decoded controller readings go. The session
// only knows the Emit operation; transports live behind it.
package sink

import "log/slog"

// Sink consumes one reading for a logical channel. Implementations must be
// safe for use from multiple sessions.
type Sink interface {
	Emit(channel int, value float64, valid bool)
}

// LogSink writes readings to the logger. Useful when no collector is
// configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Emit(channel int, value float64, valid bool) {
	s.Logger.Info("reading", "channel", channel, "value", value, "valid", valid)
}
