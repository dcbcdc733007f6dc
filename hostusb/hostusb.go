// Package hostusb provides host-side access to attached USB devices behind a
// small capability interface, so the hotplug monitor and device sessions can
// be exercised without real hardware. The production implementation is backed
// by libusb via gousb.
package hostusb

import (
	"context"
	"errors"
	"fmt"
)

// DeviceID identifies an attached device by its position on the bus. It is a
// value type on purpose: identities stay comparable and hashable after the
// underlying handle is gone.
type DeviceID struct {
	Bus     int
	Address int
}

func (id DeviceID) String() string {
	return fmt.Sprintf("%03d:%03d", id.Bus, id.Address)
}

// DeviceInfo describes an attached device as seen by enumeration, without
// opening it.
type DeviceInfo struct {
	ID      DeviceID
	Port    int
	Vendor  uint16
	Product uint16
}

func (i DeviceInfo) String() string {
	return fmt.Sprintf("%s %04x:%04x port %d", i.ID, i.Vendor, i.Product, i.Port)
}

// InterfaceInfo describes one interface of an open device.
type InterfaceInfo struct {
	Config int
	Number int
	// Name is the interface string descriptor, empty if the device does not
	// provide one.
	Name string
}

// ErrNotFound is returned when a device reference cannot be resolved through
// the full-enumeration view, typically because it detached in between.
var ErrNotFound = errors.New("device not found")

// Catalog is the enumeration capability. Snapshot lists attached devices
// matching a vendor/product pair; FindByBusAddress resolves an identity from
// a hotplug notification to an open device handle.
type Catalog interface {
	Snapshot(vendor, product uint16) ([]DeviceInfo, error)
	FindByBusAddress(id DeviceID, vendor, product uint16) (Device, error)
	Close() error
}

// Device is an open device handle. Callers either Claim an interface, which
// transfers ownership of the handle to the returned ClaimedInterface, or
// Close the handle themselves.
type Device interface {
	Info() DeviceInfo
	Interfaces() []InterfaceInfo
	Claim(cfg, number int) (ClaimedInterface, error)
	Close() error
}

// ClaimedInterface is an exclusively claimed interface with its first OUT and
// IN bulk/interrupt endpoints resolved. Close releases the claim and the
// device handle; it is safe to call more than once, only the first call
// releases.
type ClaimedInterface interface {
	Number() int
	// Control issues a vendor request addressed to this interface
	// (wIndex = interface number).
	Control(request uint8, value uint16, payload []byte) (int, error)
	// Write sends to the first OUT endpoint.
	Write(ctx context.Context, p []byte) (int, error)
	// Read fills p from the first IN endpoint.
	Read(ctx context.Context, p []byte) (int, error)
	Close() error
}
