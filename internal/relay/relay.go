// Package relay hands the most recent captured frame from the capture
// callback, which runs on whatever goroutine the stream chooses, to the
// render loop, which polls once per output frame. It is a single-slot
// mailbox: a publish overwrites whatever is stored, and frames produced
// between two consecutive reads are silently discarded. The loop renders
// "latest available", not "every captured frame".
package relay

import (
	"sync"

	"github.com/dualview-dev/dualview/internal/render"
)

// Frame is one captured video frame: a texture handle and the stream's
// monotonically assigned identifier. IDs increase with each delivered frame
// but are not gap-free, since frames that fail texture extraction are
// skipped upstream.
type Frame struct {
	Texture *render.TextureHandle
	ID      uint64
}

// Relay is the single-slot frame mailbox. The zero value is not usable;
// construct with New and inject into both the capture wiring and the viewer.
type Relay struct {
	mu     sync.Mutex
	frame  *Frame
	closed bool
	drops  uint64
	reads  uint64
}

// New creates an empty relay.
func New() *Relay {
	return &Relay{}
}

// Publish stores f, replacing and releasing any previously stored frame.
// The critical section is a handle swap; Publish never blocks the capture
// callback beyond that. Concurrent publishes are safe: the relay ends up
// holding exactly one of them. Publish reports false after Close, in which
// case f's texture is released on the caller's behalf.
func (r *Relay) Publish(f Frame) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		if f.Texture != nil {
			f.Texture.Release()
		}
		return false
	}
	prev := r.frame
	r.frame = &f
	if prev != nil {
		r.drops++
	}
	r.mu.Unlock()

	// Release outside the lock; the handle may unregister from the texture
	// manager.
	if prev != nil && prev.Texture != nil {
		prev.Texture.Release()
	}
	return true
}

// TryRead returns the most recently published frame with its texture
// retained for the caller, who must release it after use. ok is false if
// nothing has been published yet or the relay is closed. Reads are
// idempotent: the slot is left unchanged.
func (r *Relay) TryRead() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.frame == nil {
		return Frame{}, false
	}
	r.reads++
	f := *r.frame
	if f.Texture != nil {
		f.Texture.Retain()
	}
	return f, true
}

// Close releases the stored frame and rejects further publishes. It is
// idempotent.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	prev := r.frame
	r.frame = nil
	r.mu.Unlock()

	if prev != nil && prev.Texture != nil {
		prev.Texture.Release()
	}
}

// Stats reports how many publishes replaced a stored frame and how many
// reads returned a frame.
func (r *Relay) Stats() (drops, reads uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drops, r.reads
}
