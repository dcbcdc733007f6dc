package sink

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/hypebeast/go-osc/osc"
)

// OSCSink forwards readings as OSC messages, one address per logical
// channel: /controller/pot<channel> with (value, valid) arguments.
type OSCSink struct {
	client *osc.Client
	logger *slog.Logger
}

// NewOSC creates a sink sending to an OSC collector at host:port.
func NewOSC(addr string, logger *slog.Logger) (*OSCSink, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("osc address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("osc address %q: bad port: %w", addr, err)
	}
	return &OSCSink{client: osc.NewClient(host, port), logger: logger}, nil
}

// Emit sends the reading. OSC is fire-and-forget over UDP; send failures are
// logged and dropped rather than propagated into the session.
func (s *OSCSink) Emit(channel int, value float64, valid bool) {
	msg := osc.NewMessage(fmt.Sprintf("/controller/pot%d", channel))
	msg.Append(float32(value))
	msg.Append(valid)
	if err := s.client.Send(msg); err != nil {
		s.logger.Warn("osc send failed", "channel", channel, "error", err)
	}
}
