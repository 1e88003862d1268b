package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dualview-dev/dualview/internal/api"
	"github.com/dualview-dev/dualview/internal/capture"
	"github.com/dualview-dev/dualview/internal/config"
	"github.com/dualview-dev/dualview/internal/diag"
	"github.com/dualview-dev/dualview/internal/logger"
	"github.com/dualview-dev/dualview/internal/output"
	"github.com/dualview-dev/dualview/internal/relay"
	"github.com/dualview-dev/dualview/internal/render"
	"github.com/dualview-dev/dualview/internal/scene"
	"github.com/dualview-dev/dualview/internal/viewer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start capturing and rendering",
	Long: `Start the capture stream, the render loop, and the HTTP server.

Captured frames pass through a single-slot relay into the render loop, which
draws them at its own cadence. Until the first frame arrives the loop renders
a placeholder texture instead. Capture setup failures (permission denied, no
capturable display) are fatal.`,
	Example: `  # Run with defaults (port 8080, display 0)
  dualview run

  # Serve the stream on a custom port
  dualview run --port 9090

  # Capture the second display
  dualview run --display 1

  # Run with debug logging
  dualview run --log-level debug`,
	RunE: runRun,
}

var runDisplay int

func init() {
	runCmd.Flags().IntVar(&runDisplay, "display", -1, "display index to capture (default from config)")
	rootCmd.AddCommand(runCmd)
}

// sourceHolder hands the capture source, which comes up asynchronously, to
// the API's display listing.
type sourceHolder struct {
	mu  sync.Mutex
	src capture.Source
}

func (h *sourceHolder) set(src capture.Source) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.src = src
}

func (h *sourceHolder) displays() ([]capture.Display, error) {
	h.mu.Lock()
	src := h.src
	h.mu.Unlock()
	if src == nil {
		return nil, fmt.Errorf("capture source not available")
	}
	return src.Displays()
}

// streamGuard hands the capture stream, which also comes up asynchronously,
// to the shutdown path without racing it.
type streamGuard struct {
	mu      sync.Mutex
	stream  *capture.Stream
	stopped bool
}

// put stores a started stream. It reports false when shutdown already began,
// in which case the caller must stop the stream itself.
func (g *streamGuard) put(s *capture.Stream) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	g.stream = s
	return true
}

// take marks shutdown as begun and returns the stream to stop, if one
// arrived in time. Streams arriving later are rejected by put.
func (g *streamGuard) take() *capture.Stream {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	s := g.stream
	g.stream = nil
	return s
}

// waitForShutdown blocks until a termination signal or a failure in one of
// the background components. It returns nil on a signal and the component
// error otherwise, so that runRun exits non-zero on failures.
func waitForShutdown(sig <-chan os.Signal, serverErr, diagErr, captureErr <-chan error) error {
	select {
	case <-sig:
		return nil
	case err := <-serverErr:
		if err == nil {
			err = fmt.Errorf("server closed unexpectedly")
		}
		return fmt.Errorf("http server: %w", err)
	case err := <-diagErr:
		if err == nil {
			err = fmt.Errorf("server closed unexpectedly")
		}
		return fmt.Errorf("profiling server: %w", err)
	case err := <-captureErr:
		return fmt.Errorf("capture setup: %w", err)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	if viper.IsSet("output.port") {
		if port := viper.GetInt("output.port"); port > 0 {
			configMgr.SetOutputPort(port)
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			configMgr.SetLogLevel(level)
		}
	}
	if runDisplay >= 0 {
		configMgr.SetDisplayIndex(runDisplay)
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, true)
	log := logger.WithComponent("main")
	log.Info().Str("path", configMgr.Path()).Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Profiling endpoint. A busy loopback port is a deployment error, not
	// something to limp past.
	diagSrv := diag.NewServer(config.DiagPort)
	diagErr := make(chan error, 1)
	go func() { diagErr <- diagSrv.Start() }()
	select {
	case err := <-diagErr:
		return fmt.Errorf("profiling server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	textures := render.NewTextureManager()
	frameRelay := relay.New()

	sc, err := scene.New(textures)
	if err != nil {
		return fmt.Errorf("failed to build scene resources: %w", err)
	}

	mjpegOut := output.NewMJPEGOutput(output.Config{
		Width:       cfg.Render.Width,
		Height:      cfg.Render.Height,
		FPS:         cfg.Render.FPS,
		JPEGQuality: cfg.Output.JPEGQuality,
	})
	if err := mjpegOut.Start(); err != nil {
		return fmt.Errorf("failed to start MJPEG output: %w", err)
	}

	view, err := viewer.New(viewer.Config{
		Width:           cfg.Render.Width,
		Height:          cfg.Render.Height,
		FPS:             cfg.Render.FPS,
		PixelsFromPoint: cfg.Render.PixelsFromPoint,
	}, frameRelay, sc, []output.Output{mjpegOut}, clock.New())
	if err != nil {
		return fmt.Errorf("failed to create viewer: %w", err)
	}

	viewerDone := make(chan struct{})
	go func() {
		defer close(viewerDone)
		if err := view.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Render loop exited with error")
		}
	}()

	// Capture comes up in the background; until it does the viewer renders
	// the placeholder. Setup failures are fatal preconditions, not retried.
	holder := &sourceHolder{}
	guard := &streamGuard{}
	captureErr := make(chan error, 1)
	go func() {
		s, src, err := startCapture(ctx, cfg, textures, frameRelay)
		if err != nil {
			captureErr <- err
			return
		}
		holder.set(src)
		if !guard.put(s) {
			// Shutdown won the race; nobody else will stop this stream.
			if err := s.Stop(); err != nil {
				log.Warn().Err(err).Msg("Capture stream stop failed")
			}
		}
	}()

	server := api.NewServer(configMgr, view, frameRelay, mjpegOut, holder.displays)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start(cfg.Output.Port) }()

	log.Info().
		Str("url", fmt.Sprintf("http://localhost:%d", cfg.Output.Port)).
		Msg("DualView is running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	runErr := waitForShutdown(sigChan, serverErr, diagErr, captureErr)
	if runErr != nil {
		log.Error().Err(runErr).Msg("Shutting down after failure")
	} else {
		log.Info().Msg("Shutting down")
	}

	// Teardown order: stop producing, stop consuming, drop the stored
	// frame, then take the servers down.
	if s := guard.take(); s != nil {
		if err := s.Stop(); err != nil {
			log.Warn().Err(err).Msg("Capture stream stop failed")
		}
	}

	cancel()
	<-viewerDone

	frameRelay.Close()
	sc.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := diagSrv.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Profiling server shutdown failed")
	}
	if err := mjpegOut.Stop(); err != nil {
		log.Warn().Err(err).Msg("MJPEG output stop failed")
	}

	return runErr
}

// startCapture negotiates access, opens the platform source, and wires the
// stream callback to the relay.
func startCapture(ctx context.Context, cfg config.Config, textures *render.TextureManager, frameRelay *relay.Relay) (*capture.Stream, capture.Source, error) {
	log := logger.WithComponent("main")

	token, ok := capture.CheckAccess()
	if !ok {
		reqCtx, reqCancel := context.WithTimeout(ctx, 30*time.Second)
		defer reqCancel()
		var err error
		token, err = capture.RequestAccess(reqCtx)
		if err != nil {
			return nil, nil, fmt.Errorf("capture access denied: %w", err)
		}
	}

	src, err := capture.NewX11Source()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open capture source: %w", err)
	}

	displays, err := src.Displays()
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to enumerate displays: %w", err)
	}
	if len(displays) == 0 {
		src.Close()
		return nil, nil, fmt.Errorf("no capturable displays")
	}
	idx := cfg.Capture.DisplayIndex
	if idx < 0 || idx >= len(displays) {
		log.Warn().Int("display", idx).Msg("Configured display out of range, using display 0")
		idx = 0
	}

	stream, err := capture.NewStream(token, capture.StreamConfig{
		Display:   displays[idx],
		Format:    capture.PixelFormatBGRA8888,
		FrameRate: cfg.Capture.FPS,
		Scale:     cfg.Capture.Scale,
		Textures:  textures,
	}, src, func(event capture.Event) {
		frame, ok := event.(*capture.VideoFrame)
		if !ok {
			return
		}
		tex, err := frame.Texture(capture.PlaneRGBA)
		if err != nil {
			log.Debug().Err(err).Uint64("frame", frame.FrameID()).Msg("Frame conversion failed, skipping")
			return
		}
		frameRelay.Publish(relay.Frame{Texture: tex, ID: frame.FrameID()})
	})
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to open capture stream: %w", err)
	}

	log.Info().
		Int("display", idx).
		Int("width", displays[idx].Width).
		Int("height", displays[idx].Height).
		Int("fps", cfg.Capture.FPS).
		Msg("Capture stream started")
	return stream, src, nil
}
