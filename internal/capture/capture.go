// Package capture is the client side of the platform screen-capture
// service: access negotiation, display enumeration, and a stream that
// delivers frame events from a background goroutine.
package capture

import (
	"fmt"
	"image"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/dualview-dev/dualview/internal/logger"
	"github.com/dualview-dev/dualview/internal/render"
)

// PixelFormat identifies the byte layout of raw captured pixels.
type PixelFormat int

const (
	// PixelFormatBGRA8888 is the layout X servers deliver for 24/32-bit
	// ZPixmap images.
	PixelFormatBGRA8888 PixelFormat = iota
	// PixelFormatRGBA8888 is already in texture layout.
	PixelFormatRGBA8888
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatBGRA8888:
		return "bgra8888"
	case PixelFormatRGBA8888:
		return "rgba8888"
	default:
		return fmt.Sprintf("pixelformat(%d)", int(f))
	}
}

// PlaneLayout names the color layout a consumer wants a frame's texture in.
type PlaneLayout int

// PlaneRGBA is the only layout the renderer consumes.
const PlaneRGBA PlaneLayout = iota

// Display describes one capturable display.
type Display struct {
	Index   int
	X, Y    int
	Width   int
	Height  int
	Primary bool
}

// RawFrame is one grabbed frame before texture conversion.
type RawFrame struct {
	Data   []byte
	Width  int
	Height int
	Format PixelFormat
}

// Source produces raw frames for a display. Implementations must be safe for
// use from the stream's goroutine.
type Source interface {
	// Displays enumerates capturable displays.
	Displays() ([]Display, error)

	// Grab captures the current contents of the display.
	Grab(d Display) (*RawFrame, error)

	// Close releases the source's platform resources.
	Close() error
}

// Event is a stream event. The only concrete type is *VideoFrame.
type Event interface {
	isEvent()
}

// VideoFrame is one delivered frame. The raw pixels stay owned by the frame;
// Texture converts them into a handle registered with the texture manager.
type VideoFrame struct {
	id       uint64
	raw      *RawFrame
	textures *render.TextureManager
	scale    float64
}

func (f *VideoFrame) isEvent() {}

// FrameID returns the stream-assigned frame identifier. IDs increase per
// delivered frame but are not gap-free: failed grabs consume an ID.
func (f *VideoFrame) FrameID() uint64 { return f.id }

// Texture converts the frame to a texture handle in the requested layout.
// The caller owns the returned handle's reference. Unsupported layouts and
// pixel formats are per-frame errors; the stream stays healthy.
func (f *VideoFrame) Texture(plane PlaneLayout) (*render.TextureHandle, error) {
	if plane != PlaneRGBA {
		return nil, fmt.Errorf("unsupported plane layout %d", plane)
	}

	raw := f.raw
	rgba := image.NewRGBA(image.Rect(0, 0, raw.Width, raw.Height))
	switch raw.Format {
	case PixelFormatBGRA8888:
		if len(raw.Data) < raw.Width*raw.Height*4 {
			return nil, fmt.Errorf("frame %d: short pixel data (%d bytes for %dx%d)",
				f.id, len(raw.Data), raw.Width, raw.Height)
		}
		for i := 0; i+3 < raw.Width*raw.Height*4; i += 4 {
			rgba.Pix[i] = raw.Data[i+2]
			rgba.Pix[i+1] = raw.Data[i+1]
			rgba.Pix[i+2] = raw.Data[i]
			rgba.Pix[i+3] = 0xff
		}
	case PixelFormatRGBA8888:
		if len(raw.Data) < raw.Width*raw.Height*4 {
			return nil, fmt.Errorf("frame %d: short pixel data (%d bytes for %dx%d)",
				f.id, len(raw.Data), raw.Width, raw.Height)
		}
		copy(rgba.Pix, raw.Data[:raw.Width*raw.Height*4])
	default:
		return nil, fmt.Errorf("frame %d: unsupported pixel format %s", f.id, raw.Format)
	}

	// Downscale before registering; full-resolution screen frames are
	// wastefully large for the demo viewports.
	if f.scale > 0 && f.scale < 1 {
		w := int(float64(raw.Width) * f.scale)
		h := int(float64(raw.Height) * f.scale)
		if w > 0 && h > 0 {
			scaled := image.NewRGBA(image.Rect(0, 0, w, h))
			draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), rgba, rgba.Bounds(), draw.Over, nil)
			rgba = scaled
		}
	}

	return f.textures.CreateFromImage(fmt.Sprintf("screen frame %d", f.id), rgba)
}

// StreamConfig parameterizes an open capture stream.
type StreamConfig struct {
	Display   Display
	Format    PixelFormat
	FrameRate int
	// Scale in (0,1] downsizes frames before texture registration.
	Scale    float64
	Textures *render.TextureManager
}

// Stream delivers frame events from a background goroutine until stopped.
type Stream struct {
	cfg     StreamConfig
	src     Source
	onEvent func(Event)

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewStream opens a capture stream against src and begins delivering
// *VideoFrame events to onEvent from a goroutine of the stream's choosing.
// The callback must not block for long; the next grab waits for it.
func NewStream(token *Token, cfg StreamConfig, src Source, onEvent func(Event)) (*Stream, error) {
	if token == nil {
		return nil, fmt.Errorf("capture access not granted")
	}
	if cfg.Textures == nil {
		return nil, fmt.Errorf("stream config has no texture manager")
	}
	if cfg.Display.Width <= 0 || cfg.Display.Height <= 0 {
		return nil, fmt.Errorf("display %d has invalid size %dx%d",
			cfg.Display.Index, cfg.Display.Width, cfg.Display.Height)
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}

	s := &Stream{
		cfg:     cfg,
		src:     src,
		onEvent: onEvent,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *Stream) run() {
	defer close(s.done)

	log := logger.WithComponent("capture-stream")
	interval := time.Second / time.Duration(s.cfg.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().
		Int("display", s.cfg.Display.Index).
		Int("fps", s.cfg.FrameRate).
		Str("format", s.cfg.Format.String()).
		Msg("Capture stream opened")

	var nextID uint64
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			id := nextID
			nextID++

			raw, err := s.src.Grab(s.cfg.Display)
			if err != nil {
				// Per-frame failure: log and keep the stream alive.
				log.Warn().Err(err).Uint64("frame_id", id).Msg("Frame grab failed")
				continue
			}
			s.onEvent(&VideoFrame{
				id:       id,
				raw:      raw,
				textures: s.cfg.Textures,
				scale:    s.cfg.Scale,
			})
		}
	}
}

// Stop ends frame delivery, waits for the delivery goroutine to exit, and
// releases the source. Idempotent.
func (s *Stream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		err = s.src.Close()
		logger.WithComponent("capture-stream").Info().Msg("Capture stream stopped")
	})
	return err
}
