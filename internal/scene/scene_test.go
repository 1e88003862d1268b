package scene

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gg"

	"github.com/dualview-dev/dualview/internal/render"
)

func TestNewRegistersPlaceholder(t *testing.T) {
	mgr := render.NewTextureManager()
	sc, err := New(mgr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if mgr.Len() != 1 {
		t.Errorf("Len = %d after New, want 1 (placeholder)", mgr.Len())
	}
	if sc.Placeholder() == nil {
		t.Fatal("no placeholder texture")
	}

	sc.Close()
	if mgr.Len() != 0 {
		t.Errorf("Len = %d after Close, want 0", mgr.Len())
	}
	// Close is idempotent.
	sc.Close()
}

func TestBuildProducesAllDrawData(t *testing.T) {
	mgr := render.NewTextureManager()
	sc, err := New(mgr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sc.Close()

	data, err := sc.Build(mgl32.Vec2{800, 450}, 3*time.Second, sc.Placeholder())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if data.Lines == nil || data.Points == nil || data.Rects == nil {
		t.Fatal("Build left draw data nil")
	}
}

func TestBuildRendersInBothProjections(t *testing.T) {
	mgr := render.NewTextureManager()
	sc, err := New(mgr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sc.Close()

	data, err := sc.Build(mgl32.Vec2{320, 180}, 0, sc.Placeholder())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ortho, err := render.NewViewBuilder(render.TargetConfiguration{
		Name:              "2D",
		ResolutionInPixel: [2]int{320, 180},
		ViewFromWorld:     mgl32.Ident4(),
		Projection: render.Orthographic{
			CameraMode:        render.OrthoTopLeftCornerAndExtendZ,
			VerticalWorldSize: 180,
			FarPlaneDistance:  1000,
		},
	})
	if err != nil {
		t.Fatalf("NewViewBuilder: %v", err)
	}
	if _, err := ortho.
		QueueDraw(data.Rects).
		QueueDraw(data.Lines).
		QueueDraw(data.Points).
		Draw(gg.RGBA{A: 1}); err != nil {
		t.Errorf("orthographic draw: %v", err)
	}

	eye := mgl32.Vec3{160, 90, 400}
	persp, err := render.NewViewBuilder(render.TargetConfiguration{
		Name:              "3D",
		ResolutionInPixel: [2]int{320, 180},
		ViewFromWorld:     mgl32.LookAtV(eye, mgl32.Vec3{160, 90, 0}, mgl32.Vec3{0, 1, 0}),
		Projection:        render.Perspective{VerticalFOV: 1.2, NearPlaneDistance: 0.01},
	})
	if err != nil {
		t.Fatalf("NewViewBuilder: %v", err)
	}
	if _, err := persp.
		QueueDraw(data.Rects).
		QueueDraw(data.Lines).
		QueueDraw(data.Points).
		Draw(gg.RGBA{A: 1}); err != nil {
		t.Errorf("perspective draw: %v", err)
	}
}

func TestScreenRectFootprintIndependentOfTexture(t *testing.T) {
	// The captured-screen rectangle keeps the placeholder's footprint even
	// when the live texture has different dimensions, so the scene does not
	// resize when the first frame arrives.
	mgr := render.NewTextureManager()
	sc, err := New(mgr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sc.Close()

	small := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(small.Pix); i += 4 {
		small.Pix[i] = 255
		small.Pix[i+3] = 255
	}
	tex, err := mgr.CreateFromImage("live", small)
	if err != nil {
		t.Fatalf("CreateFromImage: %v", err)
	}
	defer tex.Release()

	data, err := sc.Build(mgl32.Vec2{1800, 900}, 0, tex)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	view, err := render.NewViewBuilder(render.TargetConfiguration{
		Name:              "2D",
		ResolutionInPixel: [2]int{450, 225},
		ViewFromWorld:     mgl32.Ident4(),
		Projection: render.Orthographic{
			CameraMode:        render.OrthoTopLeftCornerAndExtendZ,
			VerticalWorldSize: 900,
			FarPlaneDistance:  1000,
		},
	})
	if err != nil {
		t.Fatalf("NewViewBuilder: %v", err)
	}
	cb, err := view.QueueDraw(data.Rects).Draw(gg.RGBA{A: 1})
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}

	// World (1700, 700) sits inside the placeholder-sized footprint but far
	// outside an extent derived from the 2x2 live texture.
	px := color.RGBAModel.Convert(cb.Image().At(425, 175)).(color.RGBA)
	if px.R < 200 || px.G > 50 || px.B > 50 {
		t.Fatalf("pixel inside footprint = %+v, want the live texture's red", px)
	}
}

func TestTopLineCyclesWithTime(t *testing.T) {
	// The overlap pile's top line must stay within the pile for any elapsed
	// time, including the wrap-around of the triangle wave.
	mgr := render.NewTextureManager()
	sc, err := New(mgr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sc.Close()

	for _, elapsed := range []time.Duration{
		0,
		time.Second,
		3200 * time.Millisecond,
		time.Minute,
		90 * time.Minute,
	} {
		if _, err := sc.Build(mgl32.Vec2{800, 450}, elapsed, sc.Placeholder()); err != nil {
			t.Errorf("Build at %v: %v", elapsed, err)
		}
	}
}
