package render

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gg"
)

// TextureHandle is a reference-counted handle to pixel data registered with
// a TextureManager. Handles are created with one reference held by the
// creator; every additional consumer must Retain before use and Release when
// done. When the count drops to zero the texture is unregistered and its
// pixels become unreachable through the manager.
type TextureHandle struct {
	id    uint64
	label string
	buf   *gg.ImageBuf
	refs  atomic.Int32
	mgr   *TextureManager
}

// Retain bumps the reference count and returns the handle for chaining.
func (h *TextureHandle) Retain() *TextureHandle {
	if h.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("render: retain of released texture %q", h.label))
	}
	return h
}

// Release drops one reference. The handle must not be used after the final
// release.
func (h *TextureHandle) Release() {
	n := h.refs.Add(-1)
	switch {
	case n == 0:
		h.mgr.unregister(h.id)
	case n < 0:
		panic(fmt.Sprintf("render: over-release of texture %q", h.label))
	}
}

// Image returns the underlying pixel buffer. The buffer is owned by the
// handle and must not be written to by callers.
func (h *TextureHandle) Image() *gg.ImageBuf { return h.buf }

// Label returns the debug label the texture was registered with.
func (h *TextureHandle) Label() string { return h.label }

// Width returns the texture width in pixels.
func (h *TextureHandle) Width() int { return h.buf.Width() }

// Height returns the texture height in pixels.
func (h *TextureHandle) Height() int { return h.buf.Height() }

// TextureManager registers externally produced images so the view builders
// can draw them. It tracks registered textures by id; liveness is observable
// through Len, which the relay and stream tests use to verify that replaced
// and shut-down frames actually release their textures.
type TextureManager struct {
	mu       sync.Mutex
	nextID   uint64
	textures map[uint64]*TextureHandle
}

// NewTextureManager creates an empty texture manager.
func NewTextureManager() *TextureManager {
	return &TextureManager{textures: make(map[uint64]*TextureHandle)}
}

// CreateFromImage registers a standard image as a texture. The pixels are
// copied into an internal buffer, so the caller keeps ownership of img.
func (m *TextureManager) CreateFromImage(label string, img image.Image) (*TextureHandle, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("texture %q has empty bounds %v", label, b)
	}
	return m.register(label, gg.ImageBufFromImage(img)), nil
}

// CreateFromBuffer registers an already-converted pixel buffer as a texture.
// The manager takes ownership of buf.
func (m *TextureManager) CreateFromBuffer(label string, buf *gg.ImageBuf) (*TextureHandle, error) {
	if buf == nil || buf.Width() <= 0 || buf.Height() <= 0 {
		return nil, fmt.Errorf("texture %q has no pixel data", label)
	}
	return m.register(label, buf), nil
}

// Len reports how many textures are currently live.
func (m *TextureManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.textures)
}

func (m *TextureManager) register(label string, buf *gg.ImageBuf) *TextureHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	h := &TextureHandle{
		id:    m.nextID,
		label: label,
		buf:   buf,
		mgr:   m,
	}
	h.refs.Store(1)
	m.textures[h.id] = h
	return h
}

func (m *TextureManager) unregister(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.textures, id)
}
