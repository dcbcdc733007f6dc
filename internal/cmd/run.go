package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cdelston0/pixelpusher/hostusb"
	"github.com/cdelston0/pixelpusher/internal/log"
	"github.com/cdelston0/pixelpusher/internal/monitor"
	"github.com/cdelston0/pixelpusher/internal/portmap"
	"github.com/cdelston0/pixelpusher/internal/session"
	"github.com/cdelston0/pixelpusher/sink"
)

// Run is the hotplug monitor daemon.
type Run struct {
	Vendor       string        `help:"USB vendor id filter (hex)" default:"cafe" env:"PIXELPUSHER_VENDOR"`
	Product      string        `help:"USB product id filter (hex)" default:"4001" env:"PIXELPUSHER_PRODUCT"`
	Interface    string        `help:"Required interface name" default:"WIPPv1" env:"PIXELPUSHER_INTERFACE"`
	PollInterval time.Duration `help:"Hotplug poll interval" default:"250ms" env:"PIXELPUSHER_POLL_INTERVAL"`
	PortMap      []string      `help:"Port to channel mappings as port=channel (default 2=1,4=0)" env:"PIXELPUSHER_PORT_MAP"`
	OscAddr      string        `help:"OSC collector address (host:port) for sensor readings" env:"PIXELPUSHER_OSC_ADDR"`

	Session session.Config `embed:"" prefix:"session."`
}

// Run is called by kong when the run command is executed.
func (r *Run) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vendor, err := parseUSBID(r.Vendor)
	if err != nil {
		return err
	}
	product, err := parseUSBID(r.Product)
	if err != nil {
		return err
	}

	channels := portmap.Default()
	if len(r.PortMap) > 0 {
		channels, err = portmap.Parse(r.PortMap)
		if err != nil {
			return err
		}
	}

	var snk sink.Sink = &sink.LogSink{Logger: logger}
	if r.OscAddr != "" {
		snk, err = sink.NewOSC(r.OscAddr, logger)
		if err != nil {
			return err
		}
		logger.Info("forwarding readings over OSC", "addr", r.OscAddr)
	}

	// Fatal when enumeration is unavailable; nothing to recover into.
	catalog, err := hostusb.NewCatalog()
	if err != nil {
		return err
	}
	defer func() { _ = catalog.Close() }()

	mon := monitor.New(monitor.Config{
		Vendor:        vendor,
		Product:       product,
		InterfaceName: r.Interface,
		PollInterval:  r.PollInterval,
	}, catalog, r.Session, channels, snk, logger, rawLogger)

	return mon.Run(ctx)
}
