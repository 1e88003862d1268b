package render

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gg"
)

// OrthographicCameraMode selects how the orthographic camera is anchored.
type OrthographicCameraMode int

const (
	// OrthoTopLeftCornerAndExtendZ puts the world origin at the top-left
	// corner of the viewport with +Y running down, the 2D-canvas convention.
	OrthoTopLeftCornerAndExtendZ OrthographicCameraMode = iota
)

// Projection maps view space to clip space.
type Projection interface {
	matrix(resolution [2]int) mgl32.Mat4
}

// Orthographic is a parallel projection.
type Orthographic struct {
	CameraMode        OrthographicCameraMode
	VerticalWorldSize float32
	FarPlaneDistance  float32
}

func (o Orthographic) matrix(resolution [2]int) mgl32.Mat4 {
	aspect := float32(resolution[0]) / float32(resolution[1])
	horizontal := o.VerticalWorldSize * aspect
	// Top-left origin, +Y down.
	return mgl32.Ortho(0, horizontal, o.VerticalWorldSize, 0, -o.FarPlaneDistance, o.FarPlaneDistance)
}

// Perspective is a pinhole projection.
type Perspective struct {
	VerticalFOV       float32
	NearPlaneDistance float32
	AspectRatio       float32
}

func (p Perspective) matrix(resolution [2]int) mgl32.Mat4 {
	aspect := p.AspectRatio
	if aspect == 0 {
		aspect = float32(resolution[0]) / float32(resolution[1])
	}
	const farPlane = 100000.0
	return mgl32.Perspective(p.VerticalFOV, aspect, p.NearPlaneDistance, farPlane)
}

// TargetConfiguration names a view target and fixes its resolution, camera
// and projection for one output frame.
type TargetConfiguration struct {
	Name              string
	ResolutionInPixel [2]int
	ViewFromWorld     mgl32.Mat4
	Projection        Projection
	PixelsFromPoint   float32
}

// CommandBuffer is the finished result of a view draw: the rasterized tile
// and the name of the target it belongs to.
type CommandBuffer struct {
	name       string
	resolution [2]int
	img        image.Image
}

// Name returns the view target's name.
func (cb *CommandBuffer) Name() string { return cb.name }

// Resolution returns the tile size in pixels.
func (cb *CommandBuffer) Resolution() [2]int { return cb.resolution }

// Image returns the rasterized tile.
func (cb *CommandBuffer) Image() image.Image { return cb.img }

// ViewBuilder accumulates draw data against one target configuration and
// finalizes it into a command buffer. A builder is single-use and not safe
// for concurrent use; construct one per view per output frame.
type ViewBuilder struct {
	cfg    TargetConfiguration
	queued []DrawData
}

// NewViewBuilder creates a view builder for the given target.
func NewViewBuilder(cfg TargetConfiguration) (*ViewBuilder, error) {
	if cfg.ResolutionInPixel[0] <= 0 || cfg.ResolutionInPixel[1] <= 0 {
		return nil, fmt.Errorf("view %q has invalid resolution %v", cfg.Name, cfg.ResolutionInPixel)
	}
	if cfg.Projection == nil {
		return nil, fmt.Errorf("view %q has no projection", cfg.Name)
	}
	if cfg.PixelsFromPoint <= 0 {
		cfg.PixelsFromPoint = 1
	}
	return &ViewBuilder{cfg: cfg}, nil
}

// QueueDraw schedules draw data for this view. Returns the builder for
// chaining.
func (vb *ViewBuilder) QueueDraw(d DrawData) *ViewBuilder {
	vb.queued = append(vb.queued, d)
	return vb
}

// Draw rasters all queued draw data over the given background color and
// returns the finished command buffer.
func (vb *ViewBuilder) Draw(background gg.RGBA) (*CommandBuffer, error) {
	res := vb.cfg.ResolutionInPixel
	r := &viewRaster{
		cfg:      vb.cfg,
		projView: vb.cfg.Projection.matrix(res).Mul4(vb.cfg.ViewFromWorld),
	}

	// Gather first so batches can be ordered by depth offset across draw
	// data boundaries.
	for _, d := range vb.queued {
		if err := d.drawTo(r); err != nil {
			return nil, fmt.Errorf("view %q: %w", vb.cfg.Name, err)
		}
	}

	dc := gg.NewContext(res[0], res[1])
	defer dc.Close()
	dc.ClearWithColor(background)
	r.dc = dc

	if err := r.raster(); err != nil {
		return nil, fmt.Errorf("view %q: %w", vb.cfg.Name, err)
	}
	return &CommandBuffer{
		name:       vb.cfg.Name,
		resolution: res,
		img:        dc.Image(),
	}, nil
}

// viewRaster projects world-space geometry into one view's pixel space and
// rasters it with a painter's ordering: textured rects first, then line and
// point batches sorted by depth offset.
type viewRaster struct {
	cfg      TargetConfiguration
	projView mgl32.Mat4
	dc       *gg.Context

	rects   []TexturedRect
	batches []rasterBatch
}

type rasterBatch struct {
	depthOffset int
	seq         int
	lines       *lineBatch
	points      *pointBatch
}

func (r *viewRaster) drawLines(d *LineDrawData) error {
	for _, b := range d.batches {
		r.batches = append(r.batches, rasterBatch{depthOffset: b.depthOffset, seq: len(r.batches), lines: b})
	}
	return nil
}

func (r *viewRaster) drawPoints(d *PointDrawData) error {
	for _, b := range d.batches {
		r.batches = append(r.batches, rasterBatch{depthOffset: b.depthOffset, seq: len(r.batches), points: b})
	}
	return nil
}

func (r *viewRaster) drawRectangles(d *RectangleDrawData) error {
	r.rects = append(r.rects, d.rects...)
	return nil
}

func (r *viewRaster) raster() error {
	for i := range r.rects {
		if err := r.rasterRect(&r.rects[i]); err != nil {
			return err
		}
	}

	sort.SliceStable(r.batches, func(i, j int) bool {
		if r.batches[i].depthOffset != r.batches[j].depthOffset {
			return r.batches[i].depthOffset < r.batches[j].depthOffset
		}
		return r.batches[i].seq < r.batches[j].seq
	})

	for _, b := range r.batches {
		switch {
		case b.lines != nil:
			if err := r.rasterLineBatch(b.lines); err != nil {
				return err
			}
		case b.points != nil:
			if err := r.rasterPointBatch(b.points); err != nil {
				return err
			}
		}
	}
	return nil
}

// project maps a world-space point to pixel coordinates. The returned clipW
// carries the perspective divide for size scaling. ok is false for points
// behind the camera.
func (r *viewRaster) project(p mgl32.Vec3) (x, y float64, clipW float32, ok bool) {
	clip := r.projView.Mul4x1(mgl32.Vec4{p[0], p[1], p[2], 1})
	w := clip.W()
	if w <= 0 {
		return 0, 0, 0, false
	}
	ndcX := clip.X() / w
	ndcY := clip.Y() / w
	res := r.cfg.ResolutionInPixel
	x = float64(ndcX*0.5+0.5) * float64(res[0])
	y = float64(1-(ndcY*0.5+0.5)) * float64(res[1])
	return x, y, w, true
}

// radiusPixels resolves a Size to a pixel radius at the given clip depth.
func (r *viewRaster) radiusPixels(s Size, clipW float32) float64 {
	switch s.Mode {
	case SizeModePoints:
		return float64(s.Value * r.cfg.PixelsFromPoint)
	case SizeModeAuto:
		return autoRadiusPixels * float64(r.cfg.PixelsFromPoint)
	case SizeModeAutoLarge:
		return autoLargeRadiusPixels * float64(r.cfg.PixelsFromPoint)
	default:
		// World units: pixels per world unit at this depth.
		m11 := math.Abs(float64(r.projView.At(1, 1)))
		perUnit := m11 * float64(r.cfg.ResolutionInPixel[1]) / 2 / float64(clipW)
		return float64(s.Value) * perUnit
	}
}

func (r *viewRaster) rasterLineBatch(b *lineBatch) error {
	for i := range b.strips {
		if err := r.rasterStrip(b, &b.strips[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *viewRaster) rasterStrip(b *lineBatch, s *LineStrip) error {
	type projected struct {
		x, y  float64
		clipW float32
	}
	pts := make([]projected, 0, len(s.Points))
	for _, p := range s.Points {
		x, y, w, ok := r.project(p)
		if !ok {
			// Strip crosses behind the camera; skip it rather than clip.
			return nil
		}
		pts = append(pts, projected{x, y, w})
	}

	radius := r.radiusPixels(s.Radius, pts[0].clipW)
	if radius <= 0 {
		radius = autoRadiusPixels
	}

	lineCap := gg.LineCapButt
	if s.Flags&(LineFlagCapStartRound|LineFlagCapEndRound) != 0 {
		lineCap = gg.LineCapRound
	}

	if s.Flags&LineFlagColorGradient != 0 {
		first, last := pts[0], pts[len(pts)-1]
		grad := gg.NewLinearGradientBrush(first.x, first.y, last.x, last.y).
			AddColorStop(0, s.Color).
			AddColorStop(1, lighten(s.Color))
		r.dc.SetStrokeBrush(grad)
	} else {
		r.dc.SetStrokeBrush(gg.Solid(s.Color))
	}
	r.dc.SetStroke(gg.DefaultStroke().
		WithWidth(radius * 2).
		WithCap(lineCap).
		WithJoin(gg.LineJoinRound))

	r.dc.MoveTo(pts[0].x, pts[0].y)
	for _, p := range pts[1:] {
		r.dc.LineTo(p.x, p.y)
	}
	if err := r.dc.Stroke(); err != nil {
		return fmt.Errorf("stroke batch %q: %w", b.name, err)
	}

	// Triangle caps as explicit arrow heads.
	if s.Flags&LineFlagCapStartTriangle != 0 {
		if err := r.arrowHead(b, s.Color, pts[1].x, pts[1].y, pts[0].x, pts[0].y, radius); err != nil {
			return err
		}
	}
	if s.Flags&LineFlagCapEndTriangle != 0 {
		n := len(pts)
		if err := r.arrowHead(b, s.Color, pts[n-2].x, pts[n-2].y, pts[n-1].x, pts[n-1].y, radius); err != nil {
			return err
		}
	}
	return nil
}

// arrowHead draws a filled triangle pointing from (fx,fy) past (tx,ty).
func (r *viewRaster) arrowHead(b *lineBatch, c gg.RGBA, fx, fy, tx, ty, radius float64) error {
	dx, dy := tx-fx, ty-fy
	l := math.Hypot(dx, dy)
	if l == 0 {
		return nil
	}
	dx, dy = dx/l, dy/l
	length := radius * float64(b.triangleCapLength)
	halfWidth := radius * float64(b.triangleCapWidth)
	tipX, tipY := tx+dx*length, ty+dy*length
	px, py := -dy, dx

	r.dc.SetRGBA(c.R, c.G, c.B, c.A)
	r.dc.MoveTo(tipX, tipY)
	r.dc.LineTo(tx+px*halfWidth, ty+py*halfWidth)
	r.dc.LineTo(tx-px*halfWidth, ty-py*halfWidth)
	r.dc.ClosePath()
	if err := r.dc.Fill(); err != nil {
		return fmt.Errorf("arrow head in batch %q: %w", b.name, err)
	}
	return nil
}

func (r *viewRaster) rasterPointBatch(b *pointBatch) error {
	for i, p := range b.positions {
		x, y, w, ok := r.project(p)
		if !ok {
			continue
		}
		radius := r.radiusPixels(b.sizes[i], w)
		if radius <= 0 {
			radius = autoRadiusPixels
		}
		c := b.colors[i]
		r.dc.SetRGBA(c.R, c.G, c.B, c.A)
		r.dc.DrawCircle(x, y, radius)
		if err := r.dc.Fill(); err != nil {
			return fmt.Errorf("point batch %q: %w", b.name, err)
		}
	}
	return nil
}

func (r *viewRaster) rasterRect(rect *TexturedRect) error {
	x0, y0, _, ok0 := r.project(rect.TopLeft)
	x1, y1, _, ok1 := r.project(rect.TopLeft.Add(rect.ExtentU))
	x2, y2, _, ok2 := r.project(rect.TopLeft.Add(rect.ExtentV))
	if !ok0 || !ok1 || !ok2 {
		return nil
	}

	tex := rect.Texture.Texture
	w := float64(tex.Width())
	h := float64(tex.Height())

	// Affine map from texture space to the projected quad: (0,0)->p0,
	// (w,0)->p1, (0,h)->p2. The fourth corner follows affinely, which is
	// exact for orthographic views and an approximation under perspective.
	m := gg.Matrix{
		A: (x1 - x0) / w, B: (x2 - x0) / h, C: x0,
		D: (y1 - y0) / w, E: (y2 - y0) / h, F: y0,
	}

	interp := gg.InterpBilinear
	if rect.Options.FilterMagnification == FilterNearest {
		interp = gg.InterpNearest
	}
	opacity := float64(rect.Options.Opacity)
	if opacity <= 0 {
		opacity = 1
	}

	r.dc.Push()
	r.dc.Transform(m)
	r.dc.DrawImageEx(tex.Image(), gg.DrawImageOptions{
		DstWidth:      w,
		DstHeight:     h,
		Interpolation: interp,
		Opacity:       opacity,
		BlendMode:     gg.BlendNormal,
	})
	r.dc.Pop()
	return nil
}

func lighten(c gg.RGBA) gg.RGBA {
	return gg.RGBA{
		R: c.R + (1-c.R)*0.7,
		G: c.G + (1-c.G)*0.7,
		B: c.B + (1-c.B)*0.7,
		A: c.A,
	}
}
