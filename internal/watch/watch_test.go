package watch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdelston0/pixelpusher/hostusb"
	"github.com/cdelston0/pixelpusher/internal/watch"
)

func info(bus, addr, port int) hostusb.DeviceInfo {
	return hostusb.DeviceInfo{
		ID:      hostusb.DeviceID{Bus: bus, Address: addr},
		Port:    port,
		Vendor:  0xcafe,
		Product: 0x4001,
	}
}

func TestFirstSnapshotIsAllArrivals(t *testing.T) {
	d := watch.NewDiffer()
	events := d.Diff([]hostusb.DeviceInfo{info(1, 2, 2), info(1, 3, 4)})
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, watch.Arrived, ev.Type)
	}
}

func TestStableSnapshotIsQuiet(t *testing.T) {
	d := watch.NewDiffer()
	snap := []hostusb.DeviceInfo{info(1, 2, 2)}
	d.Diff(snap)
	assert.Empty(t, d.Diff(snap))
	assert.Empty(t, d.Diff(snap))
}

func TestDeparture(t *testing.T) {
	d := watch.NewDiffer()
	d.Diff([]hostusb.DeviceInfo{info(1, 2, 2), info(1, 3, 4)})

	events := d.Diff([]hostusb.DeviceInfo{info(1, 3, 4)})
	require.Len(t, events, 1)
	assert.Equal(t, watch.Left, events[0].Type)
	assert.Equal(t, hostusb.DeviceID{Bus: 1, Address: 2}, events[0].Info.ID)

	// The departed device does not linger.
	assert.Empty(t, d.Diff([]hostusb.DeviceInfo{info(1, 3, 4)}))
}

func TestReplugSameBusNewAddress(t *testing.T) {
	d := watch.NewDiffer()
	d.Diff([]hostusb.DeviceInfo{info(1, 2, 2)})

	// Detach and re-attach between polls: the device reappears at a new
	// address, producing an arrival for the new identity and a departure
	// for the old one in the same diff.
	events := d.Diff([]hostusb.DeviceInfo{info(1, 7, 2)})
	require.Len(t, events, 2)
	assert.Equal(t, watch.Arrived, events[0].Type)
	assert.Equal(t, hostusb.DeviceID{Bus: 1, Address: 7}, events[0].Info.ID)
	assert.Equal(t, watch.Left, events[1].Type)
	assert.Equal(t, hostusb.DeviceID{Bus: 1, Address: 2}, events[1].Info.ID)
}

func TestEmptyAfterEverythingLeaves(t *testing.T) {
	d := watch.NewDiffer()
	d.Diff([]hostusb.DeviceInfo{info(1, 2, 2), info(2, 2, 4)})
	events := d.Diff(nil)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, watch.Left, ev.Type)
	}
	assert.Empty(t, d.Diff(nil))
}
