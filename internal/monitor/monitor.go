// Package monitor owns the hotplug event loop: it watches the device
// catalog for arrivals and departures of matching hardware and starts and
// stops one device session per attached controller.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cdelston0/pixelpusher/hostusb"
	"github.com/cdelston0/pixelpusher/internal/log"
	"github.com/cdelston0/pixelpusher/internal/portmap"
	"github.com/cdelston0/pixelpusher/internal/registry"
	"github.com/cdelston0/pixelpusher/internal/session"
	"github.com/cdelston0/pixelpusher/internal/watch"
	"github.com/cdelston0/pixelpusher/sink"
)

// Config filters which devices the monitor manages.
type Config struct {
	Vendor        uint16
	Product       uint16
	InterfaceName string
	PollInterval  time.Duration
}

// Monitor runs the event loop. Device-level failures never stop it; only a
// failing startup enumeration is fatal.
type Monitor struct {
	cfg        Config
	catalog    hostusb.Catalog
	reg        *registry.Registry
	sessionCfg session.Config
	channels   *portmap.Table
	sink       sink.Sink
	logger     *slog.Logger
	raw        log.RawLogger

	ready     chan struct{}
	readyOnce sync.Once
}

func New(cfg Config, catalog hostusb.Catalog, sessionCfg session.Config, channels *portmap.Table, snk sink.Sink, logger *slog.Logger, raw log.RawLogger) *Monitor {
	return &Monitor{
		cfg:        cfg,
		catalog:    catalog,
		reg:        registry.New(),
		sessionCfg: sessionCfg,
		channels:   channels,
		sink:       snk,
		logger:     logger,
		raw:        raw,
		ready:      make(chan struct{}),
	}
}

// Ready returns a channel closed after the first scan completed, meaning
// already-attached devices have been picked up.
func (m *Monitor) Ready() <-chan struct{} { return m.ready }

// Registry exposes the session registry, mainly for tests and status output.
func (m *Monitor) Registry() *registry.Registry { return m.reg }

// Run blocks until ctx is cancelled, then stops every session and waits for
// each to exit before returning.
func (m *Monitor) Run(ctx context.Context) error {
	differ := watch.NewDiffer()

	// The initial scan doubles as the capability check: if the catalog
	// cannot enumerate at all, there is nothing to monitor.
	snap, err := m.catalog.Snapshot(m.cfg.Vendor, m.cfg.Product)
	if err != nil {
		return fmt.Errorf("hotplug support unavailable: %w", err)
	}
	m.logger.Info("monitoring usb events",
		"vendor", fmt.Sprintf("%04x", m.cfg.Vendor),
		"product", fmt.Sprintf("%04x", m.cfg.Product),
		"interface", m.cfg.InterfaceName)
	m.process(ctx, differ.Diff(snap))
	m.readyOnce.Do(func() { close(m.ready) })

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case <-ticker.C:
			snap, err := m.catalog.Snapshot(m.cfg.Vendor, m.cfg.Product)
			if err != nil {
				// Transient enumeration hiccup; the next tick retries.
				m.logger.Warn("enumeration failed", "error", err)
				continue
			}
			m.process(ctx, differ.Diff(snap))
		}
	}
}

// process handles events serially. For one identity an arrival is therefore
// fully processed, session registered and launched, before a later departure
// for the same identity can be seen.
func (m *Monitor) process(ctx context.Context, events []watch.Event) {
	for _, ev := range events {
		switch ev.Type {
		case watch.Arrived:
			m.handleArrival(ctx, ev.Info)
		case watch.Left:
			m.handleDeparture(ev.Info.ID)
		}
	}
}

func (m *Monitor) handleArrival(ctx context.Context, info hostusb.DeviceInfo) {
	m.logger.Info("device arrived", "device", info.String())

	if _, exists := m.reg.Get(info.ID); exists {
		m.logger.Warn("arrival for already-registered device ignored", "device", info.ID.String())
		return
	}

	dev, err := m.catalog.FindByBusAddress(info.ID, m.cfg.Vendor, m.cfg.Product)
	if err != nil {
		if errors.Is(err, hostusb.ErrNotFound) {
			m.logger.Debug("device vanished before it could be resolved", "device", info.ID.String())
		} else {
			m.logger.Warn("device resolve failed", "device", info.ID.String(), "error", err)
		}
		return
	}

	var target hostusb.InterfaceInfo
	found := false
	for _, ii := range dev.Interfaces() {
		m.logger.Debug("interface", "device", info.ID.String(), "number", ii.Number, "name", ii.Name)
		if ii.Name == m.cfg.InterfaceName {
			target = ii
			found = true
			break
		}
	}
	if !found {
		// Vendor/product pairs are generic; hardware without the expected
		// interface is simply out of scope.
		m.logger.Debug("no matching interface", "device", info.ID.String(), "want", m.cfg.InterfaceName)
		_ = dev.Close()
		return
	}

	claimed, err := dev.Claim(target.Config, target.Number)
	if err != nil {
		m.logger.Warn("interface claim failed", "device", info.ID.String(), "interface", target.Number, "error", err)
		_ = dev.Close()
		return
	}
	m.logger.Info("interface claimed", "device", info.ID.String(), "interface", target.Number, "port", info.Port)

	handle, ok := m.reg.InsertIfAbsent(ctx, info)
	if !ok {
		m.logger.Warn("lost registration race, dropping claim", "device", info.ID.String())
		_ = claimed.Close()
		return
	}

	sess := session.New(claimed, info.Port, m.channels, m.sink, m.sessionCfg,
		m.logger.With("device", info.ID.String()), m.raw)
	m.logger.Info("session starting", "device", info.ID.String(), "mode", m.sessionCfg.Mode)
	go func() {
		defer handle.Finish()
		if err := sess.Run(handle.Context()); err != nil {
			m.logger.Error("session ended", "device", info.ID.String(), "error", err)
		} else {
			m.logger.Info("session exited", "device", info.ID.String())
		}
	}()
}

func (m *Monitor) handleDeparture(id hostusb.DeviceID) {
	handle, ok := m.reg.Get(id)
	if !ok {
		// Already stopped, or a device we never claimed.
		m.logger.Debug("departure for unregistered device", "device", id.String())
		return
	}
	m.logger.Info("device left", "device", id.String())
	handle.Cancel()
	<-handle.Done()
	m.reg.Remove(id)
	m.logger.Info("session stopped", "device", id.String())
}

// shutdown cancels every session and joins each before returning.
func (m *Monitor) shutdown() {
	handles := m.reg.Drain()
	for _, h := range handles {
		<-h.Done()
		m.logger.Info("session stopped", "device", h.Info.ID.String())
	}
	m.logger.Info("monitor stopped", "sessions", len(handles))
}
