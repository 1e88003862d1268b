package output

import (
	"image"
)

// Output is a sink for composited frames. The render loop writes one frame
// per tick to every configured output.
type Output interface {
	// Start initializes the output.
	Start() error

	// Stop cleanly shuts down the output.
	Stop() error

	// WriteFrame sends an RGBA frame to the output.
	WriteFrame(frame image.Image) error

	// Name returns a human-readable name for this output type.
	Name() string

	// IsRunning reports whether the output is active.
	IsRunning() bool
}

// Config holds common configuration for all output types.
type Config struct {
	Width       int
	Height      int
	FPS         int
	JPEGQuality int
}
