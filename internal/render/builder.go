package render

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gg"
)

// DrawData is an immutable, ready-to-raster batch of geometry. A DrawData
// value may be queued on any number of view builders in the same frame.
type DrawData interface {
	drawTo(r *viewRaster) error
}

// LineFlags control per-strip cap and shading behavior.
type LineFlags uint8

const (
	LineFlagCapStartRound LineFlags = 1 << iota
	LineFlagCapEndRound
	LineFlagCapStartTriangle
	LineFlagCapEndTriangle
	LineFlagColorGradient
)

// Default arrow-head proportions, relative to the strip radius.
const (
	defaultTriangleCapLength = 4.0
	defaultTriangleCapWidth  = 2.0
)

// LineStrip is one polyline within a batch.
type LineStrip struct {
	Points []mgl32.Vec3
	Radius Size
	Color  gg.RGBA
	Flags  LineFlags
}

type lineBatch struct {
	name              string
	depthOffset       int
	triangleCapLength float32
	triangleCapWidth  float32
	strips            []LineStrip
}

// LineBuilder accumulates line strips into batches and finalizes them into
// an immutable LineDrawData.
type LineBuilder struct {
	batches []*lineBatch
}

// NewLineBuilder creates an empty line builder.
func NewLineBuilder() *LineBuilder {
	return &LineBuilder{}
}

// Batch starts a new named batch. Batch-level settings apply to every strip
// added through the returned builder.
func (b *LineBuilder) Batch(name string) *LineBatchBuilder {
	batch := &lineBatch{
		name:              name,
		triangleCapLength: defaultTriangleCapLength,
		triangleCapWidth:  defaultTriangleCapWidth,
	}
	b.batches = append(b.batches, batch)
	return &LineBatchBuilder{batch: batch}
}

// IntoDrawData finalizes the builder. The builder must not be reused after.
func (b *LineBuilder) IntoDrawData() (*LineDrawData, error) {
	for _, batch := range b.batches {
		for i, s := range batch.strips {
			if len(s.Points) < 2 {
				return nil, fmt.Errorf("line batch %q strip %d has %d points, need at least 2", batch.name, i, len(s.Points))
			}
		}
	}
	d := &LineDrawData{batches: b.batches}
	b.batches = nil
	return d, nil
}

// LineBatchBuilder adds strips to one batch.
type LineBatchBuilder struct {
	batch *lineBatch
}

// DepthOffset biases this batch's draw order; higher offsets draw on top.
func (bb *LineBatchBuilder) DepthOffset(offset int) *LineBatchBuilder {
	bb.batch.depthOffset = offset
	return bb
}

// TriangleCapLengthFactor sets the arrow-head length relative to the radius.
func (bb *LineBatchBuilder) TriangleCapLengthFactor(f float32) *LineBatchBuilder {
	bb.batch.triangleCapLength = f
	return bb
}

// TriangleCapWidthFactor sets the arrow-head width relative to the radius.
func (bb *LineBatchBuilder) TriangleCapWidthFactor(f float32) *LineBatchBuilder {
	bb.batch.triangleCapWidth = f
	return bb
}

// AddSegment2D adds a two-point strip on the z=0 plane.
func (bb *LineBatchBuilder) AddSegment2D(from, to mgl32.Vec2) *LineStripBuilder {
	return bb.AddStrip([]mgl32.Vec3{from.Vec3(0), to.Vec3(0)})
}

// AddStrip adds a polyline with the given world-space points.
func (bb *LineBatchBuilder) AddStrip(points []mgl32.Vec3) *LineStripBuilder {
	bb.batch.strips = append(bb.batch.strips, LineStrip{
		Points: points,
		Radius: AutoSize,
		Color:  gg.White,
	})
	return &LineStripBuilder{strip: &bb.batch.strips[len(bb.batch.strips)-1]}
}

// AddRectangleOutline2D adds a closed outline spanning pos, pos+extentU,
// pos+extentU+extentV, pos+extentV on the z=0 plane.
func (bb *LineBatchBuilder) AddRectangleOutline2D(pos, extentU, extentV mgl32.Vec2) *LineStripBuilder {
	p0 := pos
	p1 := pos.Add(extentU)
	p2 := pos.Add(extentU).Add(extentV)
	p3 := pos.Add(extentV)
	return bb.AddStrip([]mgl32.Vec3{
		p0.Vec3(0), p1.Vec3(0), p2.Vec3(0), p3.Vec3(0), p0.Vec3(0),
	})
}

// LineStripBuilder configures the most recently added strip.
type LineStripBuilder struct {
	strip *LineStrip
}

// Radius sets the strip's half-thickness.
func (sb *LineStripBuilder) Radius(r Size) *LineStripBuilder {
	sb.strip.Radius = r
	return sb
}

// Color sets the strip color.
func (sb *LineStripBuilder) Color(c gg.RGBA) *LineStripBuilder {
	sb.strip.Color = c
	return sb
}

// Flags sets cap and shading flags.
func (sb *LineStripBuilder) Flags(f LineFlags) *LineStripBuilder {
	sb.strip.Flags = f
	return sb
}

// LineDrawData is a finalized batch set produced by LineBuilder.
type LineDrawData struct {
	batches []*lineBatch
}

func (d *LineDrawData) drawTo(r *viewRaster) error { return r.drawLines(d) }

type pointBatch struct {
	name        string
	depthOffset int
	positions   []mgl32.Vec3
	sizes       []Size
	colors      []gg.RGBA
}

// PointBuilder accumulates point batches and finalizes them into an
// immutable PointDrawData.
type PointBuilder struct {
	batches []*pointBatch
}

// NewPointBuilder creates an empty point builder.
func NewPointBuilder() *PointBuilder {
	return &PointBuilder{}
}

// Batch starts a new named point batch.
func (b *PointBuilder) Batch(name string) *PointBatchBuilder {
	batch := &pointBatch{name: name}
	b.batches = append(b.batches, batch)
	return &PointBatchBuilder{batch: batch}
}

// IntoDrawData finalizes the builder. The builder must not be reused after.
func (b *PointBuilder) IntoDrawData() (*PointDrawData, error) {
	for _, batch := range b.batches {
		if len(batch.sizes) != len(batch.positions) || len(batch.colors) != len(batch.positions) {
			return nil, fmt.Errorf("point batch %q has %d positions, %d sizes, %d colors",
				batch.name, len(batch.positions), len(batch.sizes), len(batch.colors))
		}
	}
	d := &PointDrawData{batches: b.batches}
	b.batches = nil
	return d, nil
}

// PointBatchBuilder adds points to one batch.
type PointBatchBuilder struct {
	batch *pointBatch
}

// DepthOffset biases this batch's draw order; higher offsets draw on top.
func (bb *PointBatchBuilder) DepthOffset(offset int) *PointBatchBuilder {
	bb.batch.depthOffset = offset
	return bb
}

// AddPoints adds positions with per-point sizes and colors. The three slices
// must be the same length; the mismatch is reported by IntoDrawData.
func (bb *PointBatchBuilder) AddPoints(positions []mgl32.Vec3, sizes []Size, colors []gg.RGBA) *PointBatchBuilder {
	bb.batch.positions = append(bb.batch.positions, positions...)
	bb.batch.sizes = append(bb.batch.sizes, sizes...)
	bb.batch.colors = append(bb.batch.colors, colors...)
	return bb
}

// PointDrawData is a finalized batch set produced by PointBuilder.
type PointDrawData struct {
	batches []*pointBatch
}

func (d *PointDrawData) drawTo(r *viewRaster) error { return r.drawPoints(d) }

// TextureFilter selects the sampling mode for textured rectangles.
type TextureFilter int

const (
	// FilterLinear interpolates between neighboring texels.
	FilterLinear TextureFilter = iota
	// FilterNearest picks the closest texel.
	FilterNearest
)

// ColormappedTexture wraps a texture handle for drawing. The rect does not
// own the handle; the caller keeps its reference live for the frame.
type ColormappedTexture struct {
	Texture *TextureHandle
}

// FromUnormRGBA wraps an RGBA texture handle.
func FromUnormRGBA(h *TextureHandle) ColormappedTexture {
	return ColormappedTexture{Texture: h}
}

// RectangleOptions control sampling and blending of a textured rect.
type RectangleOptions struct {
	FilterMagnification TextureFilter
	FilterMinification  TextureFilter
	Opacity             float32
}

// TexturedRect positions a texture in world space: the texture's top-left
// corner maps to TopLeft, its horizontal axis spans ExtentU and its vertical
// axis spans ExtentV.
type TexturedRect struct {
	TopLeft mgl32.Vec3
	ExtentU mgl32.Vec3
	ExtentV mgl32.Vec3
	Texture ColormappedTexture
	Options RectangleOptions
}

// RectangleDrawData is an immutable set of textured rects.
type RectangleDrawData struct {
	rects []TexturedRect
}

// NewRectangleDrawData validates and freezes a set of textured rects.
func NewRectangleDrawData(rects []TexturedRect) (*RectangleDrawData, error) {
	for i, r := range rects {
		if r.Texture.Texture == nil {
			return nil, fmt.Errorf("textured rect %d has no texture", i)
		}
		if r.ExtentU.Len() == 0 || r.ExtentV.Len() == 0 {
			return nil, fmt.Errorf("textured rect %d has a zero extent", i)
		}
	}
	frozen := make([]TexturedRect, len(rects))
	copy(frozen, rects)
	return &RectangleDrawData{rects: frozen}, nil
}

func (d *RectangleDrawData) drawTo(r *viewRaster) error { return r.drawRectangles(d) }
