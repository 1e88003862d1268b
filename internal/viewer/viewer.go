// Package viewer runs the synchronous render loop: once per output frame it
// polls the relay for the latest captured texture (falling back to the
// scene's placeholder), renders the scene into an orthographic "2D" view
// and a perspective "3D" view side by side, and hands the composite to the
// configured outputs.
package viewer

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gg"

	"github.com/dualview-dev/dualview/internal/logger"
	"github.com/dualview-dev/dualview/internal/output"
	"github.com/dualview-dev/dualview/internal/relay"
	"github.com/dualview-dev/dualview/internal/render"
	"github.com/dualview-dev/dualview/internal/scene"
)

// Config parameterizes the render loop.
type Config struct {
	Width           int
	Height          int
	FPS             int
	PixelsFromPoint float64
}

// Stats is a snapshot of the loop's counters.
type Stats struct {
	FramesRendered   uint64 `json:"frames_rendered"`
	SkippedDraws     uint64 `json:"skipped_draws"`
	LastFrameID      uint64 `json:"last_frame_id"`
	UsingPlaceholder bool   `json:"using_placeholder"`
}

// Viewer is the render-loop driver. Construct with New and drive with Run.
type Viewer struct {
	cfg     Config
	relay   *relay.Relay
	scene   *scene.Scene
	outputs []output.Output
	clk     clock.Clock

	mu    sync.Mutex
	stats Stats
}

// New creates a viewer. clk is injectable for tests; pass clock.New() in
// production.
func New(cfg Config, r *relay.Relay, sc *scene.Scene, outputs []output.Output, clk clock.Clock) (*Viewer, error) {
	if cfg.Width < 2 || cfg.Height < 1 {
		return nil, fmt.Errorf("canvas %dx%d too small for two viewports", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.PixelsFromPoint <= 0 {
		cfg.PixelsFromPoint = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Viewer{
		cfg:     cfg,
		relay:   r,
		scene:   sc,
		outputs: outputs,
		clk:     clk,
	}, nil
}

// Stats returns a snapshot of the loop's counters.
func (v *Viewer) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// Run drives the loop until ctx is canceled. Per-frame render errors are
// logged and the frame skipped; only ctx cancellation ends the loop.
func (v *Viewer) Run(ctx context.Context) error {
	log := logger.WithComponent("viewer")
	interval := time.Second / time.Duration(v.cfg.FPS)
	ticker := v.clk.Ticker(interval)
	defer ticker.Stop()

	start := v.clk.Now()
	log.Info().
		Int("width", v.cfg.Width).
		Int("height", v.cfg.Height).
		Int("fps", v.cfg.FPS).
		Msg("Render loop started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Render loop stopped")
			return nil
		case now := <-ticker.C:
			if err := v.renderFrame(now.Sub(start)); err != nil {
				v.mu.Lock()
				v.stats.SkippedDraws++
				v.mu.Unlock()
				log.Warn().Err(err).Msg("Frame draw failed, skipping")
			}
		}
	}
}

// RenderOnce renders a single frame at the given elapsed time. Exposed for
// tests; Run calls it per tick.
func (v *Viewer) RenderOnce(elapsed time.Duration) error {
	return v.renderFrame(elapsed)
}

func (v *Viewer) renderFrame(elapsed time.Duration) error {
	// Latest captured frame, or the placeholder before the first publish.
	tex := v.scene.Placeholder()
	usingPlaceholder := true
	var frameID uint64
	if f, ok := v.relay.TryRead(); ok {
		tex = f.Texture
		frameID = f.ID
		usingPlaceholder = false
		defer f.Texture.Release()
	}

	splitW := v.cfg.Width / 2
	screenSize := mgl32.Vec2{float32(splitW), float32(v.cfg.Height)}

	data, err := v.scene.Build(screenSize, elapsed, tex)
	if err != nil {
		return fmt.Errorf("build scene: %w", err)
	}

	left, err := v.draw2D(data, splitW)
	if err != nil {
		return err
	}
	right, err := v.draw3D(data, screenSize, elapsed, splitW)
	if err != nil {
		return err
	}

	composite := image.NewRGBA(image.Rect(0, 0, v.cfg.Width, v.cfg.Height))
	draw.Draw(composite, image.Rect(0, 0, splitW, v.cfg.Height), left.Image(), image.Point{}, draw.Src)
	draw.Draw(composite, image.Rect(splitW, 0, v.cfg.Width, v.cfg.Height), right.Image(), image.Point{}, draw.Src)

	for _, out := range v.outputs {
		if err := out.WriteFrame(composite); err != nil {
			logger.WithComponent("viewer").Warn().
				Err(err).
				Str("output", out.Name()).
				Msg("Output write failed")
		}
	}

	v.mu.Lock()
	v.stats.FramesRendered++
	v.stats.LastFrameID = frameID
	v.stats.UsingPlaceholder = usingPlaceholder
	v.mu.Unlock()
	return nil
}

// draw2D renders the orthographic left viewport.
func (v *Viewer) draw2D(data *scene.Data, splitW int) (*render.CommandBuffer, error) {
	vb, err := render.NewViewBuilder(render.TargetConfiguration{
		Name:              "2D",
		ResolutionInPixel: [2]int{splitW, v.cfg.Height},
		ViewFromWorld:     mgl32.Ident4(),
		Projection: render.Orthographic{
			CameraMode:        render.OrthoTopLeftCornerAndExtendZ,
			VerticalWorldSize: float32(v.cfg.Height),
			FarPlaneDistance:  1000,
		},
		PixelsFromPoint: float32(v.cfg.PixelsFromPoint),
	})
	if err != nil {
		return nil, err
	}
	return vb.
		QueueDraw(data.Rects).
		QueueDraw(data.Lines).
		QueueDraw(data.Points).
		Draw(gg.RGBA{R: 0.05, G: 0.05, B: 0.06, A: 1})
}

// draw3D renders the perspective right viewport, the camera orbiting the
// scene center as a function of elapsed time.
func (v *Viewer) draw3D(data *scene.Data, screenSize mgl32.Vec2, elapsed time.Duration, splitW int) (*render.CommandBuffer, error) {
	seconds := elapsed.Seconds()
	center := mgl32.Vec3{screenSize.X() * 0.5, screenSize.Y() * 0.5, 0}
	orbit := float32(math.Max(float64(screenSize.X()), float64(screenSize.Y())))
	eye := mgl32.Vec3{
		float32(math.Sin(seconds)),
		0.5,
		float32(math.Cos(seconds)),
	}.Mul(orbit).Add(center)

	vb, err := render.NewViewBuilder(render.TargetConfiguration{
		Name:              "3D",
		ResolutionInPixel: [2]int{v.cfg.Width - splitW, v.cfg.Height},
		ViewFromWorld:     mgl32.LookAtV(eye, center, mgl32.Vec3{0, 1, 0}),
		Projection: render.Perspective{
			VerticalFOV:       70 * math.Pi / 180,
			NearPlaneDistance: 0.01,
			AspectRatio:       float32(v.cfg.Width) / float32(v.cfg.Height),
		},
		PixelsFromPoint: float32(v.cfg.PixelsFromPoint),
	})
	if err != nil {
		return nil, err
	}
	return vb.
		QueueDraw(data.Rects).
		QueueDraw(data.Lines).
		QueueDraw(data.Points).
		Draw(gg.RGBA{R: 0.05, G: 0.05, B: 0.06, A: 1})
}
