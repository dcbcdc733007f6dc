// Package testing provides fakes for the hostusb interfaces so sessions and
// the monitor can be exercised without hardware.
package testing

import (
	"context"
	"sync"
	"time"

	"github.com/cdelston0/pixelpusher/hostusb"
)

// ControlCall records one vendor control request.
type ControlCall struct {
	Request uint8
	Value   uint16
	Payload []byte
}

// ReadStep scripts one Read result.
type ReadStep struct {
	Data []byte
	Err  error
}

// FakeClaimed implements hostusb.ClaimedInterface, recording controls and
// writes and replaying scripted reads.
type FakeClaimed struct {
	IfaceNumber int
	// WriteDelay throttles the hot streaming loop in tests.
	WriteDelay time.Duration
	// FailWriteAfter makes Write fail once that many writes have happened.
	// Negative means never.
	FailWriteAfter int
	WriteErr       error
	// Reads is the scripted sequence; once exhausted, Read blocks until the
	// context ends.
	Reads []ReadStep

	mu       sync.Mutex
	controls []ControlCall
	writes   [][]byte
	readIdx  int
	closes   int
}

func NewFakeClaimed(number int) *FakeClaimed {
	return &FakeClaimed{IfaceNumber: number, FailWriteAfter: -1}
}

func (f *FakeClaimed) Number() int { return f.IfaceNumber }

func (f *FakeClaimed) Control(request uint8, value uint16, payload []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := append([]byte(nil), payload...)
	f.controls = append(f.controls, ControlCall{Request: request, Value: value, Payload: p})
	return len(payload), nil
}

func (f *FakeClaimed) Write(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if f.WriteDelay > 0 {
		time.Sleep(f.WriteDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWriteAfter >= 0 && len(f.writes) >= f.FailWriteAfter {
		return 0, f.WriteErr
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *FakeClaimed) Read(ctx context.Context, p []byte) (int, error) {
	f.mu.Lock()
	if f.readIdx < len(f.Reads) {
		step := f.Reads[f.readIdx]
		f.readIdx++
		f.mu.Unlock()
		if step.Err != nil {
			return 0, step.Err
		}
		return copy(p, step.Data), nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return 0, ctx.Err()
}

func (f *FakeClaimed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *FakeClaimed) Controls() []ControlCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ControlCall(nil), f.controls...)
}

func (f *FakeClaimed) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

func (f *FakeClaimed) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *FakeClaimed) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Emission records one sink call.
type Emission struct {
	Channel int
	Value   float64
	Valid   bool
}

// FakeSink implements sink.Sink.
type FakeSink struct {
	mu        sync.Mutex
	emissions []Emission
}

func (s *FakeSink) Emit(channel int, value float64, valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emissions = append(s.emissions, Emission{Channel: channel, Value: value, Valid: valid})
}

func (s *FakeSink) Emissions() []Emission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Emission(nil), s.emissions...)
}

// FakeDevice implements hostusb.Device.
type FakeDevice struct {
	DeviceInfo hostusb.DeviceInfo
	Ifaces     []hostusb.InterfaceInfo
	Claimed    *FakeClaimed
	ClaimErr   error

	mu         sync.Mutex
	claimCalls int
	closeCalls int
}

func (d *FakeDevice) Info() hostusb.DeviceInfo { return d.DeviceInfo }

func (d *FakeDevice) Interfaces() []hostusb.InterfaceInfo {
	return append([]hostusb.InterfaceInfo(nil), d.Ifaces...)
}

func (d *FakeDevice) Claim(cfg, number int) (hostusb.ClaimedInterface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.claimCalls++
	if d.ClaimErr != nil {
		return nil, d.ClaimErr
	}
	return d.Claimed, nil
}

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	return nil
}

func (d *FakeDevice) ClaimCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.claimCalls
}

func (d *FakeDevice) CloseCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCalls
}

// FakeCatalog implements hostusb.Catalog over an attachable device set.
type FakeCatalog struct {
	mu      sync.Mutex
	devices map[hostusb.DeviceID]*FakeDevice
	// SnapshotErr, when set, fails every Snapshot call.
	SnapshotErr error
}

func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{devices: make(map[hostusb.DeviceID]*FakeDevice)}
}

func (c *FakeCatalog) Attach(dev *FakeDevice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices[dev.DeviceInfo.ID] = dev
}

func (c *FakeCatalog) Detach(id hostusb.DeviceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.devices, id)
}

func (c *FakeCatalog) Snapshot(vendor, product uint16) ([]hostusb.DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SnapshotErr != nil {
		return nil, c.SnapshotErr
	}
	var out []hostusb.DeviceInfo
	for _, d := range c.devices {
		info := d.DeviceInfo
		if vendor != 0 && info.Vendor != vendor {
			continue
		}
		if product != 0 && info.Product != product {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func (c *FakeCatalog) FindByBusAddress(id hostusb.DeviceID, vendor, product uint16) (hostusb.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.devices[id]
	if !ok {
		return nil, hostusb.ErrNotFound
	}
	return d, nil
}

func (c *FakeCatalog) Close() error { return nil }
