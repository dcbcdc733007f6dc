package hostusb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/gousb"
)

// GousbCatalog backs the Catalog interface with a libusb context.
type GousbCatalog struct {
	ctx *gousb.Context
}

// NewCatalog opens a libusb context. A failing probe here is the "hotplug
// support unavailable" startup condition; callers should treat it as fatal.
func NewCatalog() (*GousbCatalog, error) {
	c := &GousbCatalog{ctx: gousb.NewContext()}
	// Probe: one full enumeration pass. If libusb cannot deliver the device
	// list there is no point entering the monitor loop.
	if _, err := c.Snapshot(0, 0); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("usb enumeration unavailable: %w", err)
	}
	return c, nil
}

// Snapshot enumerates attached devices matching vendor/product without
// opening any of them. Zero vendor/product matches everything.
func (c *GousbCatalog) Snapshot(vendor, product uint16) ([]DeviceInfo, error) {
	var out []DeviceInfo
	// The opener always declines, so OpenDevices only walks descriptors.
	_, err := c.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if vendor != 0 && desc.Vendor != gousb.ID(vendor) {
			return false
		}
		if product != 0 && desc.Product != gousb.ID(product) {
			return false
		}
		out = append(out, DeviceInfo{
			ID:      DeviceID{Bus: desc.Bus, Address: desc.Address},
			Port:    desc.Port,
			Vendor:  uint16(desc.Vendor),
			Product: uint16(desc.Product),
		})
		return false
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID.Bus != out[j].ID.Bus {
			return out[i].ID.Bus < out[j].ID.Bus
		}
		return out[i].ID.Address < out[j].ID.Address
	})
	return out, nil
}

// FindByBusAddress correlates a hotplug identity with the full-enumeration
// view and opens the matching device.
func (c *GousbCatalog) FindByBusAddress(id DeviceID, vendor, product uint16) (Device, error) {
	devs, err := c.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == id.Bus && desc.Address == id.Address &&
			desc.Vendor == gousb.ID(vendor) && desc.Product == gousb.ID(product)
	})
	if err != nil {
		for _, d := range devs {
			_ = d.Close()
		}
		return nil, err
	}
	if len(devs) == 0 {
		return nil, ErrNotFound
	}
	// Bus+address is unique; anything beyond the first is a stale duplicate.
	for _, d := range devs[1:] {
		_ = d.Close()
	}
	return &gousbDevice{dev: devs[0]}, nil
}

func (c *GousbCatalog) Close() error {
	return c.ctx.Close()
}

type gousbDevice struct {
	dev *gousb.Device
}

func (d *gousbDevice) Info() DeviceInfo {
	desc := d.dev.Desc
	return DeviceInfo{
		ID:      DeviceID{Bus: desc.Bus, Address: desc.Address},
		Port:    desc.Port,
		Vendor:  uint16(desc.Vendor),
		Product: uint16(desc.Product),
	}
}

// Interfaces lists every interface of every configuration, with the string
// descriptor name where the device provides one.
func (d *gousbDevice) Interfaces() []InterfaceInfo {
	var out []InterfaceInfo
	for cfgNum, cfg := range d.dev.Desc.Configs {
		for _, intf := range cfg.Interfaces {
			name, err := d.dev.InterfaceDescription(cfgNum, intf.Number, 0)
			if err != nil {
				name = ""
			}
			out = append(out, InterfaceInfo{Config: cfgNum, Number: intf.Number, Name: name})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Config != out[j].Config {
			return out[i].Config < out[j].Config
		}
		return out[i].Number < out[j].Number
	})
	return out
}

func (d *gousbDevice) Claim(cfgNum, number int) (ClaimedInterface, error) {
	// Let libusb detach a kernel driver if one is bound; harmless when the
	// interface is vendor-specific and unbound.
	_ = d.dev.SetAutoDetach(true)

	cfg, err := d.dev.Config(cfgNum)
	if err != nil {
		return nil, fmt.Errorf("set config %d: %w", cfgNum, err)
	}
	intf, err := cfg.Interface(number, 0)
	if err != nil {
		_ = cfg.Close()
		return nil, fmt.Errorf("claim interface %d: %w", number, err)
	}

	ci := &gousbClaimed{dev: d.dev, cfg: cfg, intf: intf}
	for _, num := range endpointNumbers(intf.Setting, gousb.EndpointDirectionOut) {
		if ep, err := intf.OutEndpoint(num); err == nil {
			ci.out = ep
			break
		}
	}
	for _, num := range endpointNumbers(intf.Setting, gousb.EndpointDirectionIn) {
		if ep, err := intf.InEndpoint(num); err == nil {
			ci.in = ep
			break
		}
	}
	return ci, nil
}

func (d *gousbDevice) Close() error {
	return d.dev.Close()
}

// endpointNumbers returns the bulk/interrupt endpoint numbers of a setting in
// ascending order for one direction.
func endpointNumbers(s gousb.InterfaceSetting, dir gousb.EndpointDirection) []int {
	var nums []int
	for _, ep := range s.Endpoints {
		if ep.Direction != dir {
			continue
		}
		if ep.TransferType != gousb.TransferTypeBulk && ep.TransferType != gousb.TransferTypeInterrupt {
			continue
		}
		nums = append(nums, ep.Number)
	}
	sort.Ints(nums)
	return nums
}

type gousbClaimed struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint

	closeOnce sync.Once
	closeErr  error
}

func (c *gousbClaimed) Number() int { return c.intf.Setting.Number }

func (c *gousbClaimed) Control(request uint8, value uint16, payload []byte) (int, error) {
	rType := uint8(gousb.ControlOut | gousb.ControlVendor | gousb.ControlInterface)
	return c.dev.Control(rType, request, value, uint16(c.intf.Setting.Number), payload)
}

func (c *gousbClaimed) Write(ctx context.Context, p []byte) (int, error) {
	if c.out == nil {
		return 0, errors.New("interface has no OUT endpoint")
	}
	return c.out.WriteContext(ctx, p)
}

func (c *gousbClaimed) Read(ctx context.Context, p []byte) (int, error) {
	if c.in == nil {
		return 0, errors.New("interface has no IN endpoint")
	}
	return c.in.ReadContext(ctx, p)
}

// Close releases the interface, configuration and device handle. Subsequent
// calls return the first result.
func (c *gousbClaimed) Close() error {
	c.closeOnce.Do(func() {
		c.intf.Close()
		cfgErr := c.cfg.Close()
		devErr := c.dev.Close()
		c.closeErr = errors.Join(cfgErr, devErr)
	})
	return c.closeErr
}

// IsTimeout reports whether a transfer error is a timeout, which sessions
// retry rather than treat as device loss.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var le gousb.Error
	if errors.As(err, &le) && le == gousb.ErrorTimeout {
		return true
	}
	var ts gousb.TransferStatus
	if errors.As(err, &ts) && ts == gousb.TransferTimedOut {
		return true
	}
	return false
}
