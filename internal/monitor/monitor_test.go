package monitor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdelston0/pixelpusher/hostusb"
	"github.com/cdelston0/pixelpusher/internal/log"
	"github.com/cdelston0/pixelpusher/internal/monitor"
	"github.com/cdelston0/pixelpusher/internal/portmap"
	"github.com/cdelston0/pixelpusher/internal/session"
	th "github.com/cdelston0/pixelpusher/internal/testing"
)

const (
	testVendor  = 0xcafe
	testProduct = 0x4001
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDevice(bus, addr, port int, ifaceName string) *th.FakeDevice {
	claimed := th.NewFakeClaimed(0)
	claimed.WriteDelay = time.Millisecond
	return &th.FakeDevice{
		DeviceInfo: hostusb.DeviceInfo{
			ID:      hostusb.DeviceID{Bus: bus, Address: addr},
			Port:    port,
			Vendor:  testVendor,
			Product: testProduct,
		},
		Ifaces:  []hostusb.InterfaceInfo{{Config: 1, Number: 0, Name: ifaceName}},
		Claimed: claimed,
	}
}

func startMonitor(t *testing.T, catalog *th.FakeCatalog) (*monitor.Monitor, context.CancelFunc, <-chan error) {
	t.Helper()
	cfg := monitor.Config{
		Vendor:        testVendor,
		Product:       testProduct,
		InterfaceName: "WIPPv1",
		PollInterval:  5 * time.Millisecond,
	}
	sessionCfg := session.Config{
		Mode:        session.ModeStream,
		Pixels:      2,
		Units:       8,
		ReadSize:    300,
		ReadTimeout: 20 * time.Millisecond,
		Period:      15,
	}
	m := monitor.New(cfg, catalog, sessionCfg, portmap.Default(), &th.FakeSink{}, testLogger(), log.NewRaw(nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case <-m.Ready():
	case err := <-done:
		t.Fatalf("monitor exited before ready: %v", err)
	}
	return m, cancel, done
}

func TestArrivalStartsSession(t *testing.T) {
	catalog := th.NewFakeCatalog()
	dev := newDevice(1, 2, 2, "WIPPv1")
	catalog.Attach(dev)

	m, cancel, done := startMonitor(t, catalog)
	defer cancel()

	assert.Equal(t, 1, m.Registry().Len())

	// Initialization issued 8 ordered strip configs, then streaming began.
	require.Eventually(t, func() bool { return dev.Claimed.WriteCount() > 8 },
		5*time.Second, time.Millisecond)
	controls := dev.Claimed.Controls()
	require.GreaterOrEqual(t, len(controls), 8)
	for i := 0; i < 8; i++ {
		assert.Equal(t, uint8(i), controls[i].Payload[0])
	}

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, dev.Claimed.Closes(), "shutdown must release the interface exactly once")
	assert.Equal(t, 0, m.Registry().Len())
}

func TestDeviceWithoutMatchingInterfaceIgnored(t *testing.T) {
	catalog := th.NewFakeCatalog()
	dev := newDevice(1, 2, 2, "SomeOtherInterface")
	catalog.Attach(dev)

	m, cancel, done := startMonitor(t, catalog)
	defer cancel()

	assert.Equal(t, 0, m.Registry().Len())
	assert.Equal(t, 0, dev.ClaimCalls(), "no claim may be attempted")
	assert.GreaterOrEqual(t, dev.CloseCalls(), 1, "resolved handle must be closed")

	cancel()
	require.NoError(t, <-done)
}

func TestClaimFailureDoesNotStopMonitor(t *testing.T) {
	catalog := th.NewFakeCatalog()
	bad := newDevice(1, 2, 2, "WIPPv1")
	bad.ClaimErr = errors.New("interface busy")
	catalog.Attach(bad)

	m, cancel, done := startMonitor(t, catalog)
	defer cancel()

	assert.Equal(t, 0, m.Registry().Len())
	assert.GreaterOrEqual(t, bad.ClaimCalls(), 1)

	// The monitor keeps going: a later arrival still gets a session.
	good := newDevice(1, 3, 4, "WIPPv1")
	catalog.Attach(good)
	require.Eventually(t, func() bool { return m.Registry().Len() == 1 },
		5*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestDepartureStopsSessionAndReleasesOnce(t *testing.T) {
	catalog := th.NewFakeCatalog()
	dev := newDevice(1, 2, 2, "WIPPv1")
	catalog.Attach(dev)

	m, cancel, done := startMonitor(t, catalog)
	defer cancel()

	// Let the session get into its write loop before pulling the device.
	require.Eventually(t, func() bool { return dev.Claimed.WriteCount() > 8 },
		5*time.Second, time.Millisecond)

	catalog.Detach(dev.DeviceInfo.ID)
	require.Eventually(t, func() bool { return m.Registry().Len() == 0 },
		5*time.Second, time.Millisecond)
	assert.Equal(t, 1, dev.Claimed.Closes())

	// Departing again is a benign no-op; the monitor keeps running.
	catalog.Detach(dev.DeviceInfo.ID)
	time.Sleep(20 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("monitor exited unexpectedly: %v", err)
	default:
	}

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, dev.Claimed.Closes(), "no double release")
}

func TestTwoDevicesStreamIndependently(t *testing.T) {
	catalog := th.NewFakeCatalog()
	devA := newDevice(1, 2, 2, "WIPPv1")
	devB := newDevice(1, 3, 4, "WIPPv1")
	catalog.Attach(devA)
	catalog.Attach(devB)

	m, cancel, done := startMonitor(t, catalog)
	defer cancel()

	assert.Equal(t, 2, m.Registry().Len())
	require.Eventually(t, func() bool {
		return devA.Claimed.WriteCount() > 16 && devB.Claimed.WriteCount() > 16
	}, 5*time.Second, time.Millisecond, "both sessions must make progress")

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, devA.Claimed.Closes())
	assert.Equal(t, 1, devB.Claimed.Closes())
}

func TestStartupEnumerationFailureIsFatal(t *testing.T) {
	catalog := th.NewFakeCatalog()
	catalog.SnapshotErr = errors.New("libusb init failed")

	cfg := monitor.Config{
		Vendor:        testVendor,
		Product:       testProduct,
		InterfaceName: "WIPPv1",
		PollInterval:  5 * time.Millisecond,
	}
	m := monitor.New(cfg, catalog, session.Config{Mode: session.ModeStream, Pixels: 2, Units: 8},
		portmap.Default(), &th.FakeSink{}, testLogger(), log.NewRaw(nil))

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "hotplug support unavailable")
}
