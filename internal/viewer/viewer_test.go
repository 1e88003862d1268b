package viewer

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dualview-dev/dualview/internal/output"
	"github.com/dualview-dev/dualview/internal/relay"
	"github.com/dualview-dev/dualview/internal/render"
	"github.com/dualview-dev/dualview/internal/scene"
)

// recordingOutput collects frames written by the loop. writeErr, when set,
// makes every WriteFrame fail.
type recordingOutput struct {
	mu       sync.Mutex
	frames   []image.Image
	writeErr error
}

func (o *recordingOutput) Start() error    { return nil }
func (o *recordingOutput) Stop() error     { return nil }
func (o *recordingOutput) Name() string    { return "recording" }
func (o *recordingOutput) IsRunning() bool { return true }

func (o *recordingOutput) WriteFrame(img image.Image) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.writeErr != nil {
		return o.writeErr
	}
	o.frames = append(o.frames, img)
	return nil
}

func (o *recordingOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}

func newTestViewer(t *testing.T, out *recordingOutput, clk clock.Clock) (*Viewer, *relay.Relay, *render.TextureManager) {
	t.Helper()
	mgr := render.NewTextureManager()
	sc, err := scene.New(mgr)
	if err != nil {
		t.Fatalf("scene.New: %v", err)
	}
	t.Cleanup(sc.Close)

	r := relay.New()
	t.Cleanup(r.Close)

	v, err := New(Config{Width: 160, Height: 90, FPS: 30}, r, sc, []output.Output{out}, clk)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v, r, mgr
}

func TestRenderOnceUsesPlaceholderBeforeFirstFrame(t *testing.T) {
	out := &recordingOutput{}
	v, _, _ := newTestViewer(t, out, clock.New())

	if err := v.RenderOnce(0); err != nil {
		t.Fatalf("RenderOnce: %v", err)
	}
	if out.count() != 1 {
		t.Fatalf("frames written = %d, want 1", out.count())
	}
	st := v.Stats()
	if !st.UsingPlaceholder {
		t.Error("expected placeholder before first published frame")
	}
	if st.FramesRendered != 1 {
		t.Errorf("FramesRendered = %d, want 1", st.FramesRendered)
	}
}

func TestRenderOnceUsesPublishedFrame(t *testing.T) {
	out := &recordingOutput{}
	v, r, mgr := newTestViewer(t, out, clock.New())

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	tex, err := mgr.CreateFromImage("captured", img)
	if err != nil {
		t.Fatalf("CreateFromImage: %v", err)
	}
	if !r.Publish(relay.Frame{Texture: tex, ID: 7}) {
		t.Fatal("publish rejected")
	}

	if err := v.RenderOnce(time.Second); err != nil {
		t.Fatalf("RenderOnce: %v", err)
	}
	st := v.Stats()
	if st.UsingPlaceholder {
		t.Error("expected the published frame, got placeholder")
	}
	if st.LastFrameID != 7 {
		t.Errorf("LastFrameID = %d, want 7", st.LastFrameID)
	}

	// Reads are idempotent: with no new publish the loop redraws the same
	// frame instead of regressing to the placeholder.
	if err := v.RenderOnce(2 * time.Second); err != nil {
		t.Fatalf("RenderOnce: %v", err)
	}
	if st := v.Stats(); st.UsingPlaceholder || st.LastFrameID != 7 {
		t.Errorf("second read got placeholder=%v id=%d, want frame 7 again", st.UsingPlaceholder, st.LastFrameID)
	}
}

func TestOutputErrorDoesNotAbortFrame(t *testing.T) {
	out := &recordingOutput{writeErr: errors.New("pipe broken")}
	v, _, _ := newTestViewer(t, out, clock.New())

	if err := v.RenderOnce(0); err != nil {
		t.Fatalf("RenderOnce: %v", err)
	}
	if st := v.Stats(); st.FramesRendered != 1 {
		t.Errorf("FramesRendered = %d, want 1 despite output error", st.FramesRendered)
	}
}

func TestRunFollowsTickerCadence(t *testing.T) {
	out := &recordingOutput{}
	mock := clock.NewMock()
	v, _, _ := newTestViewer(t, out, mock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = v.Run(ctx)
	}()

	// Let Run register its ticker before advancing the mock clock.
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 3; i++ {
		mock.Add(time.Second / 30)
		waitFor(t, func() bool { return out.count() == i+1 })
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if out.count() != 3 {
		t.Errorf("frames written = %d, want 3", out.count())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
