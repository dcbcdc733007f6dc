// Package portmap maps physical USB port numbers to logical controller
// channels for downstream reporting.
package portmap

import (
	"fmt"
	"strconv"
	"strings"
)

// Table is an immutable port to channel lookup.
type Table struct {
	m map[int]int
}

// Default returns the standard bench wiring: port 2 is controller 1, port 4
// is controller 0.
func Default() *Table {
	return &Table{m: map[int]int{2: 1, 4: 0}}
}

// Parse builds a table from "port=channel" pairs.
func Parse(pairs []string) (*Table, error) {
	m := make(map[int]int, len(pairs))
	for _, p := range pairs {
		port, channel, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("port mapping %q: want port=channel", p)
		}
		pn, err := strconv.Atoi(strings.TrimSpace(port))
		if err != nil {
			return nil, fmt.Errorf("port mapping %q: bad port: %w", p, err)
		}
		cn, err := strconv.Atoi(strings.TrimSpace(channel))
		if err != nil {
			return nil, fmt.Errorf("port mapping %q: bad channel: %w", p, err)
		}
		if _, dup := m[pn]; dup {
			return nil, fmt.Errorf("port mapping %q: port %d mapped twice", p, pn)
		}
		m[pn] = cn
	}
	return &Table{m: m}, nil
}

// Channel returns the logical channel for a port. Ports without a mapping
// have no channel; the caller decides whether to drop or complain.
func (t *Table) Channel(port int) (int, bool) {
	c, ok := t.m[port]
	return c, ok
}

// Len returns the number of mapped ports.
func (t *Table) Len() int { return len(t.m) }
