package render

// SizeMode selects how a radius or point size is interpreted when a view is
// rasterized.
type SizeMode uint8

const (
	// SizeModeScene sizes are in world units and scale with the projection.
	SizeModeScene SizeMode = iota
	// SizeModePoints sizes are in UI points and scale with PixelsFromPoint.
	SizeModePoints
	// SizeModeAuto lets the renderer pick a thin default.
	SizeModeAuto
	// SizeModeAutoLarge lets the renderer pick a thick default.
	SizeModeAutoLarge
)

// Size is a radius or point size with deferred unit interpretation.
type Size struct {
	Mode  SizeMode
	Value float32
}

// SceneSize returns a size in world units.
func SceneSize(v float32) Size { return Size{Mode: SizeModeScene, Value: v} }

// PointSize returns a size in UI points.
func PointSize(v float32) Size { return Size{Mode: SizeModePoints, Value: v} }

// AutoSize is a renderer-determined thin size.
var AutoSize = Size{Mode: SizeModeAuto}

// AutoSizeLarge is a renderer-determined thick size.
var AutoSizeLarge = Size{Mode: SizeModeAutoLarge}

// Renderer-chosen pixel radii for the auto modes.
const (
	autoRadiusPixels      = 1.5
	autoLargeRadiusPixels = 3.0
)
