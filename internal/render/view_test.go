package render

import (
	"image/color"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gg"
)

func orthoRaster(res [2]int, verticalWorldSize, pixelsFromPoint float32) *viewRaster {
	proj := Orthographic{
		CameraMode:        OrthoTopLeftCornerAndExtendZ,
		VerticalWorldSize: verticalWorldSize,
		FarPlaneDistance:  1000,
	}
	return &viewRaster{
		cfg: TargetConfiguration{
			Name:              "test",
			ResolutionInPixel: res,
			PixelsFromPoint:   pixelsFromPoint,
		},
		projView: proj.matrix(res).Mul4(mgl32.Ident4()),
	}
}

func TestOrthographicTopLeftOrigin(t *testing.T) {
	r := orthoRaster([2]int{200, 100}, 100, 1)

	cases := []struct {
		world  mgl32.Vec3
		px, py float64
	}{
		{mgl32.Vec3{0, 0, 0}, 0, 0},
		{mgl32.Vec3{200, 100, 0}, 200, 100},
		{mgl32.Vec3{100, 50, 0}, 100, 50},
	}
	for _, c := range cases {
		x, y, _, ok := r.project(c.world)
		if !ok {
			t.Fatalf("project(%v) rejected", c.world)
		}
		if math.Abs(x-c.px) > 0.01 || math.Abs(y-c.py) > 0.01 {
			t.Errorf("project(%v) = (%.2f, %.2f), want (%.0f, %.0f)", c.world, x, y, c.px, c.py)
		}
	}
}

func TestPerspectiveRejectsPointsBehindCamera(t *testing.T) {
	proj := Perspective{VerticalFOV: 1.2, NearPlaneDistance: 0.01, AspectRatio: 1}
	r := &viewRaster{
		cfg: TargetConfiguration{
			Name:              "test",
			ResolutionInPixel: [2]int{100, 100},
			PixelsFromPoint:   1,
		},
		projView: proj.matrix([2]int{100, 100}).Mul4(mgl32.Ident4()),
	}

	if _, _, _, ok := r.project(mgl32.Vec3{0, 0, -10}); !ok {
		t.Error("point in front of camera rejected")
	}
	if _, _, _, ok := r.project(mgl32.Vec3{0, 0, 10}); ok {
		t.Error("point behind camera accepted")
	}
}

func TestRadiusPixelsResolvesSizeModes(t *testing.T) {
	// 200px tall view over 100 world units: 2 pixels per world unit.
	r := orthoRaster([2]int{200, 200}, 100, 2)

	cases := []struct {
		name string
		size Size
		want float64
	}{
		{"scene units scale with the view", SceneSize(5), 10},
		{"point units scale with pixels-from-point", PointSize(5), 10},
		{"auto is a fixed pixel radius", AutoSize, 3},
		{"auto-large is a fixed pixel radius", AutoSizeLarge, 6},
	}
	for _, c := range cases {
		if got := r.radiusPixels(c.size, 1); math.Abs(got-c.want) > 0.01 {
			t.Errorf("%s: radiusPixels = %.2f, want %.2f", c.name, got, c.want)
		}
	}
}

func TestNewViewBuilderValidation(t *testing.T) {
	proj := Orthographic{VerticalWorldSize: 100, FarPlaneDistance: 1000}

	if _, err := NewViewBuilder(TargetConfiguration{
		Name:              "bad-res",
		ResolutionInPixel: [2]int{0, 100},
		Projection:        proj,
	}); err == nil {
		t.Error("expected error for zero-width resolution")
	}
	if _, err := NewViewBuilder(TargetConfiguration{
		Name:              "no-proj",
		ResolutionInPixel: [2]int{100, 100},
	}); err == nil {
		t.Error("expected error for missing projection")
	}
}

// drawPointBatches rasters point batches into a 40x40 ortho view and returns
// the center pixel.
func drawPointBatches(t *testing.T, build func(*PointBuilder)) color.RGBA {
	t.Helper()
	pb := NewPointBuilder()
	build(pb)
	points, err := pb.IntoDrawData()
	if err != nil {
		t.Fatalf("IntoDrawData: %v", err)
	}

	vb, err := NewViewBuilder(TargetConfiguration{
		Name:              "order",
		ResolutionInPixel: [2]int{40, 40},
		ViewFromWorld:     mgl32.Ident4(),
		Projection: Orthographic{
			CameraMode:        OrthoTopLeftCornerAndExtendZ,
			VerticalWorldSize: 40,
			FarPlaneDistance:  1000,
		},
		PixelsFromPoint: 1,
	})
	if err != nil {
		t.Fatalf("NewViewBuilder: %v", err)
	}
	cb, err := vb.QueueDraw(points).Draw(gg.RGBA{A: 1})
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	return color.RGBAModel.Convert(cb.Image().At(20, 20)).(color.RGBA)
}

func TestDepthOffsetOrdersBatches(t *testing.T) {
	center := []mgl32.Vec3{{20, 20, 0}}
	sizes := []Size{PointSize(10)}
	red := []gg.RGBA{{R: 1, A: 1}}
	green := []gg.RGBA{{G: 1, A: 1}}

	// The green batch is queued first but has the higher depth offset, so it
	// draws on top of the red one.
	px := drawPointBatches(t, func(pb *PointBuilder) {
		pb.Batch("top").DepthOffset(5).AddPoints(center, sizes, green)
		pb.Batch("bottom").AddPoints(center, sizes, red)
	})
	if px.G < 150 || px.R > 100 {
		t.Errorf("center pixel = %v, want green on top", px)
	}

	// With equal offsets, queue order wins and red draws last.
	px = drawPointBatches(t, func(pb *PointBuilder) {
		pb.Batch("first").AddPoints(center, sizes, green)
		pb.Batch("second").AddPoints(center, sizes, red)
	})
	if px.R < 150 || px.G > 100 {
		t.Errorf("center pixel = %v, want red on top", px)
	}
}

func TestStripBehindCameraIsSkipped(t *testing.T) {
	lb := NewLineBuilder()
	lb.Batch("behind").AddStrip([]mgl32.Vec3{
		{0, 0, 10}, {5, 0, 20},
	}).Color(gg.RGBA{R: 1, A: 1}).Radius(PointSize(5))
	lines, err := lb.IntoDrawData()
	if err != nil {
		t.Fatalf("IntoDrawData: %v", err)
	}

	vb, err := NewViewBuilder(TargetConfiguration{
		Name:              "3d",
		ResolutionInPixel: [2]int{40, 40},
		ViewFromWorld:     mgl32.Ident4(),
		Projection:        Perspective{VerticalFOV: 1.2, NearPlaneDistance: 0.01},
		PixelsFromPoint:   1,
	})
	if err != nil {
		t.Fatalf("NewViewBuilder: %v", err)
	}
	cb, err := vb.QueueDraw(lines).Draw(gg.RGBA{A: 1})
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}

	px := color.RGBAModel.Convert(cb.Image().At(20, 20)).(color.RGBA)
	if px.R > 20 {
		t.Errorf("center pixel = %v, want untouched background", px)
	}
}

func TestDrawTexturedRect(t *testing.T) {
	mgr := NewTextureManager()
	img := testImage(2, 2)
	for i := range img.Pix {
		switch i % 4 {
		case 2, 3:
			img.Pix[i] = 0xff // solid blue
		}
	}
	tex, err := mgr.CreateFromImage("blue", img)
	if err != nil {
		t.Fatalf("CreateFromImage: %v", err)
	}
	defer tex.Release()

	rects, err := NewRectangleDrawData([]TexturedRect{{
		TopLeft: mgl32.Vec3{10, 10, 0},
		ExtentU: mgl32.Vec3{20, 0, 0},
		ExtentV: mgl32.Vec3{0, 20, 0},
		Texture: FromUnormRGBA(tex),
		Options: RectangleOptions{FilterMagnification: FilterNearest},
	}})
	if err != nil {
		t.Fatalf("NewRectangleDrawData: %v", err)
	}

	vb, err := NewViewBuilder(TargetConfiguration{
		Name:              "2d",
		ResolutionInPixel: [2]int{40, 40},
		ViewFromWorld:     mgl32.Ident4(),
		Projection: Orthographic{
			CameraMode:        OrthoTopLeftCornerAndExtendZ,
			VerticalWorldSize: 40,
			FarPlaneDistance:  1000,
		},
		PixelsFromPoint: 1,
	})
	if err != nil {
		t.Fatalf("NewViewBuilder: %v", err)
	}
	cb, err := vb.QueueDraw(rects).Draw(gg.RGBA{A: 1})
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}

	inside := color.RGBAModel.Convert(cb.Image().At(20, 20)).(color.RGBA)
	if inside.B < 150 {
		t.Errorf("pixel inside rect = %v, want blue", inside)
	}
	outside := color.RGBAModel.Convert(cb.Image().At(2, 2)).(color.RGBA)
	if outside.B > 100 {
		t.Errorf("pixel outside rect = %v, want background", outside)
	}
}
