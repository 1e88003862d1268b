// Package scene constructs the demo's per-frame draw data: procedurally
// generated lines, points and rectangle outlines, plus one textured
// rectangle showing the latest captured screen frame (or a placeholder
// before the first frame arrives). Geometry is rebuilt every output frame;
// nothing here outlives the frame except the placeholder texture.
package scene

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gg"

	"github.com/dualview-dev/dualview/internal/render"
)

// Scene owns the static placeholder texture and rebuilds draw data each
// frame.
type Scene struct {
	placeholder *render.TextureHandle
}

// Data is one frame's worth of draw data, ready to queue on any number of
// view builders.
type Data struct {
	Lines  *render.LineDrawData
	Points *render.PointDrawData
	Rects  *render.RectangleDrawData
}

// New creates the scene and registers its placeholder texture with the
// texture manager. The scene holds that reference until Close.
func New(textures *render.TextureManager) (*Scene, error) {
	ph, err := textures.CreateFromBuffer("placeholder", placeholderImage(320, 180))
	if err != nil {
		return nil, err
	}
	return &Scene{placeholder: ph}, nil
}

// Placeholder returns the fallback texture drawn before the first captured
// frame arrives. The scene keeps ownership.
func (s *Scene) Placeholder() *render.TextureHandle {
	return s.placeholder
}

// Close releases the placeholder texture.
func (s *Scene) Close() {
	if s.placeholder != nil {
		s.placeholder.Release()
		s.placeholder = nil
	}
}

// Build assembles the frame's draw data. screenSize is the 2D viewport size
// in world units, elapsed the time since startup (drives the animated
// overlap pile), and screenTex the texture for the captured-screen
// rectangle; pass the placeholder when no frame has arrived yet.
func (s *Scene) Build(screenSize mgl32.Vec2, elapsed time.Duration, screenTex *render.TextureHandle) (*Data, error) {
	lines := render.NewLineBuilder()

	// Blue rect outline around the bottom right quarter, with an orange
	// one inset inside it.
	{
		batch := lines.Batch("quads")
		const lineRadius = 10.0
		pos := screenSize.Mul(0.5).Sub(mgl32.Vec2{lineRadius, lineRadius})
		batch.AddRectangleOutline2D(
			pos,
			mgl32.Vec2{screenSize.X() * 0.5, 0},
			mgl32.Vec2{0, screenSize.Y() * 0.5},
		).
			Radius(render.SceneSize(lineRadius)).
			Color(rgb8(0, 0, 255))
		batch.AddRectangleOutline2D(
			pos.Add(screenSize.Mul(0.125)),
			mgl32.Vec2{screenSize.X() * 0.25, 0},
			mgl32.Vec2{0, screenSize.Y() * 0.25},
		).
			Radius(render.SceneSize(5)).
			Color(rgb8(255, 100, 1))
	}

	// All variations of line caps.
	{
		batch := lines.Batch("line cap variations")
		for i, flags := range []render.LineFlags{
			0,
			render.LineFlagCapStartRound,
			render.LineFlagCapEndRound,
			render.LineFlagCapStartTriangle,
			render.LineFlagCapEndTriangle,
			render.LineFlagCapStartRound | render.LineFlagCapEndRound,
			render.LineFlagCapStartRound | render.LineFlagCapEndTriangle,
			render.LineFlagCapStartTriangle | render.LineFlagCapEndRound,
			render.LineFlagCapStartTriangle | render.LineFlagCapEndTriangle,
		} {
			y := float32(i+1) * 70
			batch.AddSegment2D(mgl32.Vec2{70, y}, mgl32.Vec2{400, y}).
				Radius(render.SceneSize(15)).
				Flags(flags | render.LineFlagColorGradient)
		}
	}

	// Long thin arrows with oversized heads.
	{
		batch := lines.Batch("larger arrowheads").
			TriangleCapLengthFactor(15).
			TriangleCapWidthFactor(3)
		for i, flags := range []render.LineFlags{
			render.LineFlagCapStartTriangle | render.LineFlagCapEndRound,
			render.LineFlagCapStartRound | render.LineFlagCapEndTriangle,
			render.LineFlagCapStartTriangle | render.LineFlagCapEndTriangle,
		} {
			y := float32(i+1)*40 + 650
			batch.AddSegment2D(mgl32.Vec2{70, y}, mgl32.Vec2{400, y}).
				Radius(render.SceneSize(5)).
				Flags(flags)
		}
	}

	// Lines with each kind of radius. Scene and point radii only differ
	// under scaling or perspective.
	{
		batch := lines.Batch("radius variations")
		amber := rgb8(255, 180, 1)
		for _, row := range []struct {
			y float32
			r render.Size
		}{
			{10, render.SceneSize(4)},
			{30, render.PointSize(4)},
			{60, render.AutoSize},
			{90, render.AutoSizeLarge},
		} {
			batch.AddSegment2D(mgl32.Vec2{500, row.y}, mgl32.Vec2{1000, row.y}).
				Radius(row.r).
				Color(amber)
		}
	}

	points := render.NewPointBuilder()

	// Points with each kind of radius.
	{
		green := rgb8(55, 180, 1)
		points.Batch("points").AddPoints(
			[]mgl32.Vec3{
				{500, 120, 0},
				{520, 120, 0},
				{540, 120, 0},
				{560, 120, 0},
			},
			[]render.Size{
				render.SceneSize(4),
				render.PointSize(4),
				render.AutoSize,
				render.AutoSizeLarge,
			},
			[]gg.RGBA{green, green, green, green},
		)
	}

	// A pile of overlapping lines cycling which one is on top, each in its
	// own batch so the depth offsets take effect, plus points overlapping
	// the pile.
	{
		const numLines = 20
		yStart, yEnd := float32(800), float32(880)

		seconds := elapsed.Seconds()
		topLine := int(math.Abs(float64(int(seconds*6)%(numLines*2-1) - numLines)))
		for i := 0; i < numLines; i++ {
			depthOffset := i
			if i >= topLine {
				depthOffset = topLine*2 - i
			}
			x := 15*float32(i) + 20
			lines.Batch("overlapping objects").
				DepthOffset(depthOffset).
				AddSegment2D(mgl32.Vec2{x, yStart}, mgl32.Vec2{x, yEnd}).
				Color(hsva(0.25/numLines*float64(i), 1, 0.5, 1)).
				Radius(render.PointSize(10)).
				Flags(render.LineFlagColorGradient)
		}

		const numPoints = 8
		positions := make([]mgl32.Vec3, numPoints)
		sizes := make([]render.Size, numPoints)
		colors := make([]gg.RGBA, numPoints)
		for i := 0; i < numPoints; i++ {
			positions[i] = mgl32.Vec3{
				30*float32(i) + 20,
				yStart + (yEnd-yStart)/numPoints*float32(i),
				0,
			}
			sizes[i] = render.PointSize(3)
			colors[i] = gg.White
		}
		points.Batch("points overlapping with lines").
			DepthOffset(5).
			AddPoints(positions, sizes, colors)
	}

	// The captured screen (or placeholder), slightly behind the z=0 plane
	// so the primitives draw over it. The footprint is pinned to the
	// placeholder's dimensions so the rect keeps its size when the first
	// captured frame replaces it.
	const imageScale = 4.0
	rects, err := render.NewRectangleDrawData([]render.TexturedRect{{
		TopLeft: mgl32.Vec3{500, 120, -0.05},
		ExtentU: mgl32.Vec3{float32(s.placeholder.Width()) * imageScale, 0, 0},
		ExtentV: mgl32.Vec3{0, float32(s.placeholder.Height()) * imageScale, 0},
		Texture: render.FromUnormRGBA(screenTex),
		Options: render.RectangleOptions{
			FilterMagnification: render.FilterNearest,
			FilterMinification:  render.FilterLinear,
		},
	}})
	if err != nil {
		return nil, err
	}

	lineData, err := lines.IntoDrawData()
	if err != nil {
		return nil, err
	}
	pointData, err := points.IntoDrawData()
	if err != nil {
		return nil, err
	}
	return &Data{Lines: lineData, Points: pointData, Rects: rects}, nil
}

// placeholderImage deterministically renders the fallback texture: a dark
// panel with a grid and a diagonal accent, so "no capture yet" is obvious
// at a glance.
func placeholderImage(w, h int) *gg.ImageBuf {
	dc := gg.NewContext(w, h)
	defer dc.Close()

	dc.ClearWithColor(gg.RGBA{R: 0.09, G: 0.09, B: 0.11, A: 1})

	dc.SetRGBA(0.25, 0.25, 0.3, 1)
	dc.SetLineWidth(1)
	for x := 0; x < w; x += 20 {
		dc.DrawLine(float64(x), 0, float64(x), float64(h))
		_ = dc.Stroke()
	}
	for y := 0; y < h; y += 20 {
		dc.DrawLine(0, float64(y), float64(w), float64(y))
		_ = dc.Stroke()
	}

	dc.SetRGBA(0.9, 0.35, 0.1, 1)
	dc.SetLineWidth(6)
	dc.DrawLine(0, float64(h), float64(w), 0)
	_ = dc.Stroke()
	dc.DrawCircle(float64(w)/2, float64(h)/2, 24)
	_ = dc.Fill()

	return gg.ImageBufFromImage(dc.Image())
}

func rgb8(r, g, b uint8) gg.RGBA {
	return gg.RGBA{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255, A: 1}
}

// hsva converts HSV(A) in [0,1] to RGBA.
func hsva(h, s, v, a float64) gg.RGBA {
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return gg.RGBA{R: r, G: g, B: b, A: a}
}
