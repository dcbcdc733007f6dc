// Package watch turns successive enumeration snapshots into arrival and
// departure events. libusb's native hotplug callbacks are not exposed by
// gousb, so the monitor polls the catalog at a bounded interval and diffs;
// the event contract is the same either way.
package watch

import (
	"sort"

	"github.com/cdelston0/pixelpusher/hostusb"
)

// EventType distinguishes attach from detach.
type EventType int

const (
	Arrived EventType = iota
	Left
)

func (t EventType) String() string {
	if t == Arrived {
		return "arrived"
	}
	return "left"
}

// Event is one hotplug notification.
type Event struct {
	Type EventType
	Info hostusb.DeviceInfo
}

// Differ tracks the last seen device set and emits the delta for each new
// snapshot. Not safe for concurrent use; it belongs to the monitor loop.
type Differ struct {
	known map[hostusb.DeviceID]hostusb.DeviceInfo
}

func NewDiffer() *Differ {
	return &Differ{known: make(map[hostusb.DeviceID]hostusb.DeviceInfo)}
}

// Diff compares a snapshot against the previous one. Arrivals are reported
// before departures; each group is ordered by bus then address so event
// processing is deterministic.
func (d *Differ) Diff(current []hostusb.DeviceInfo) []Event {
	var events []Event
	seen := make(map[hostusb.DeviceID]bool, len(current))
	for _, info := range current {
		seen[info.ID] = true
		if _, ok := d.known[info.ID]; !ok {
			d.known[info.ID] = info
			events = append(events, Event{Type: Arrived, Info: info})
		}
	}
	var gone []hostusb.DeviceInfo
	for id, info := range d.known {
		if !seen[id] {
			gone = append(gone, info)
		}
	}
	sort.Slice(gone, func(i, j int) bool {
		if gone[i].ID.Bus != gone[j].ID.Bus {
			return gone[i].ID.Bus < gone[j].ID.Bus
		}
		return gone[i].ID.Address < gone[j].ID.Address
	})
	for _, info := range gone {
		delete(d.known, info.ID)
		events = append(events, Event{Type: Left, Info: info})
	}
	return events
}
