// Package registry tracks running device sessions keyed by device identity.
package registry

import (
	"context"
	"sync"

	"github.com/cdelston0/pixelpusher/hostusb"
)

// Handle associates a device identity with its running session: a
// cancellation signal and a done channel the session closes on exit.
type Handle struct {
	Info   hostusb.DeviceInfo
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Context returns the session's context.
func (h *Handle) Context() context.Context { return h.ctx }

// Cancel signals the session to stop. Idempotent.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed once the session worker has fully exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Finish marks the session as exited. Called exactly once by the worker.
func (h *Handle) Finish() { close(h.done) }

// Registry is the only shared mutable state between the monitor and the
// sessions. It guarantees at most one handle per device identity.
type Registry struct {
	mu       sync.Mutex
	sessions map[hostusb.DeviceID]*Handle
}

func New() *Registry {
	return &Registry{sessions: make(map[hostusb.DeviceID]*Handle)}
}

// InsertIfAbsent creates and registers a handle for the device, deriving the
// session context from parent. If the identity is already present, no handle
// is created and ok is false.
func (r *Registry) InsertIfAbsent(parent context.Context, info hostusb.DeviceInfo) (h *Handle, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[info.ID]; exists {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	h = &Handle{Info: info, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	r.sessions[info.ID] = h
	return h, true
}

// Get returns the handle for an identity, if present.
func (r *Registry) Get(id hostusb.DeviceID) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.sessions[id]
	return h, ok
}

// Remove deletes the entry for an identity. Removing an absent identity is a
// no-op; arrival/departure races make that a normal occurrence.
func (r *Registry) Remove(id hostusb.DeviceID) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return h, ok
}

// Drain removes and returns every handle, cancelling each. Callers wait on
// each handle's Done channel to complete shutdown.
func (r *Registry) Drain() []*Handle {
	r.mu.Lock()
	out := make([]*Handle, 0, len(r.sessions))
	for id, h := range r.sessions {
		out = append(out, h)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, h := range out {
		h.Cancel()
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
