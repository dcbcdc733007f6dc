// Package session runs the per-device worker: the initialization sequence
// followed by either the pixel streaming loop or the sensor reading loop,
// until cancelled or the hardware fails.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cdelston0/pixelpusher/hostusb"
	"github.com/cdelston0/pixelpusher/internal/log"
	"github.com/cdelston0/pixelpusher/internal/portmap"
	"github.com/cdelston0/pixelpusher/sink"
	"github.com/cdelston0/pixelpusher/wipp"
)

// Operating modes. The WIOC firmware supports both; which one a session runs
// is configuration, not per-device negotiation.
const (
	ModeStream = "stream"
	ModeSensor = "sensor"
)

// Config selects the operating mode and the transfer geometry.
type Config struct {
	Mode        string        `help:"Session operating mode" enum:"stream,sensor" default:"stream" env:"PIXELPUSHER_SESSION_MODE"`
	Pixels      uint16        `help:"Pixels per sub-unit strip" default:"12" env:"PIXELPUSHER_SESSION_PIXELS"`
	Units       int           `help:"Sub-unit strips per controller" default:"8" env:"PIXELPUSHER_SESSION_UNITS"`
	ReadSize    int           `help:"Sensor transfer buffer size in bytes" default:"300" env:"PIXELPUSHER_SESSION_READ_SIZE"`
	ReadTimeout time.Duration `help:"Sensor read timeout" default:"1s" env:"PIXELPUSHER_SESSION_READ_TIMEOUT"`
	Period      uint32        `help:"Sensor sampling period sent before start" default:"15" env:"PIXELPUSHER_SESSION_PERIOD"`
}

// Session owns one claimed interface for its entire lifetime. No other
// component touches the interface once the session is launched.
type Session struct {
	claimed  hostusb.ClaimedInterface
	port     int
	channels *portmap.Table
	sink     sink.Sink
	cfg      Config
	logger   *slog.Logger
	raw      log.RawLogger
}

func New(claimed hostusb.ClaimedInterface, port int, channels *portmap.Table, snk sink.Sink, cfg Config, logger *slog.Logger, raw log.RawLogger) *Session {
	return &Session{
		claimed:  claimed,
		port:     port,
		channels: channels,
		sink:     snk,
		cfg:      cfg,
		logger:   logger,
		raw:      raw,
	}
}

// Run performs the initialization sequence and the configured transfer loop.
// It returns nil on cancellation and an error on hardware failure; either
// way the claimed interface has been released when it returns.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		if err := s.claimed.Close(); err != nil {
			s.logger.Warn("interface release failed", "error", err)
		}
	}()

	if err := s.initialize(); err != nil {
		return err
	}

	switch s.cfg.Mode {
	case ModeSensor:
		return s.runSensor(ctx)
	default:
		return s.runStream(ctx)
	}
}

// initialize configures every sub-unit strip. The firmware requires strictly
// increasing unit order; do not reorder or parallelize these requests.
func (s *Session) initialize() error {
	for unit := 0; unit < s.cfg.Units; unit++ {
		payload := wipp.EncodeInit(uint8(unit), true, s.cfg.Pixels)
		s.raw.Log(true, payload)
		if _, err := s.claimed.Control(wipp.ReqConfigStrip, 0, payload); err != nil {
			return fmt.Errorf("configure sub-unit %d: %w", unit, err)
		}
	}
	return nil
}

// runStream writes one frame per sub-unit with a rolling fill byte, forever.
// Cancellation is observed between frame batches, so cancellation latency is
// bounded by one full batch of Units writes, not by a single write.
func (s *Session) runStream(ctx context.Context) error {
	counter := 0
	windowStart := time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		counter++
		if counter > 255 {
			counter = 0
			elapsed := time.Since(windowStart)
			windowStart = time.Now()
			if elapsed > 0 {
				s.logger.Info("streaming", "fps", float64(255)/elapsed.Seconds())
			}
		}
		for unit := 0; unit < s.cfg.Units; unit++ {
			frame := wipp.EncodeStreamFrame(uint8(unit), uint8(counter), s.cfg.Pixels)
			s.raw.Log(true, frame)
			if _, err := s.claimed.Write(ctx, frame); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("frame write: %w", err)
			}
		}
	}
}

// runSensor starts the firmware's sampling loop and forwards decoded
// readings to the sink until cancelled. Timeouts retry the read; any other
// transfer error ends the session as if the device had departed.
//
// Out-of-range suppression: once an invalid reading has been emitted,
// further invalid readings are dropped until validity returns. This
// reconstructs the original controller host behavior, which shipped with
// this branch disabled; treat the exact semantics as best-effort.
func (s *Session) runSensor(ctx context.Context) error {
	if _, err := s.claimed.Control(wipp.ReqPeriod, 0, wipp.EncodePeriod(s.cfg.Period)); err != nil {
		return fmt.Errorf("set period: %w", err)
	}
	if _, err := s.claimed.Control(wipp.ReqStart, 0, nil); err != nil {
		return fmt.Errorf("start sampling: %w", err)
	}

	channel, mapped := s.channels.Channel(s.port)
	if !mapped {
		s.logger.Debug("port has no channel mapping, readings will be dropped", "port", s.port)
	}

	buf := make([]byte, s.cfg.ReadSize)
	outOfRange := false
	for ctx.Err() == nil {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
		n, err := s.claimed.Read(rctx, buf)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if hostusb.IsTimeout(err) {
				s.logger.Debug("sensor read timeout")
				continue
			}
			return fmt.Errorf("sensor read: %w", err)
		}
		s.raw.Log(false, buf[:n])

		for _, r := range wipp.DecodeSensorBuffer(buf[:n]) {
			if !r.Valid && outOfRange {
				continue
			}
			if mapped {
				s.sink.Emit(channel, float64(r.Magnitude)/10, r.Valid)
			}
			outOfRange = !r.Valid
		}
	}

	// Best effort: the device may already be gone.
	if _, err := s.claimed.Control(wipp.ReqStop, 0, nil); err != nil {
		s.logger.Debug("stop request failed", "error", err)
	}
	return nil
}
