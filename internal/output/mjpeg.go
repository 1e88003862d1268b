package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dualview-dev/dualview/internal/logger"
)

// MJPEGOutput streams composited frames as Motion JPEG over HTTP, so the
// dual-view demo can be watched in a plain browser tab.
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	clientsMu sync.RWMutex
	clients   map[uuid.UUID]chan []byte

	frameCount uint64
	startTime  time.Time
}

// NewMJPEGOutput creates a new MJPEG stream output.
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = 85
	}
	return &MJPEGOutput{
		config:  config,
		clients: make(map[uuid.UUID]chan []byte),
	}
}

// Start initializes the MJPEG output. The HTTP handler is mounted
// separately via Handler.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}
	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("mjpeg").Info().
		Int("width", m.config.Width).
		Int("height", m.config.Height).
		Int("fps", m.config.FPS).
		Msg("MJPEG output started")
	return nil
}

// Stop shuts down the output and disconnects all clients.
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.clientsMu.Lock()
	for _, ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[uuid.UUID]chan []byte)
	m.clientsMu.Unlock()

	logger.WithComponent("mjpeg").Info().
		Uint64("frames", m.frameCount).
		Msg("MJPEG output stopped")
	return nil
}

// WriteFrame encodes the frame as JPEG and broadcasts it. Slow clients skip
// frames rather than stalling the render loop.
func (m *MJPEGOutput) WriteFrame(frame image.Image) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: m.config.JPEGQuality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	data := buf.Bytes()

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	m.clientsMu.RLock()
	for _, ch := range m.clients {
		select {
		case ch <- data:
		default:
			// Client is slow; it gets the next frame instead.
		}
	}
	m.clientsMu.RUnlock()
	return nil
}

// Name returns the output type name.
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning reports whether the output is active.
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// FrameCount reports how many frames have been broadcast.
func (m *MJPEGOutput) FrameCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frameCount
}

// ClientCount reports how many clients are connected.
func (m *MJPEGOutput) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// Handler returns the HTTP handler serving the multipart MJPEG stream.
func (m *MJPEGOutput) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Connection", "close")

		id := uuid.New()
		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[id] = frameChan
		count := len(m.clients)
		m.clientsMu.Unlock()

		log := logger.WithComponent("mjpeg")
		log.Info().Str("client", id.String()).Int("total", count).Msg("Client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, id)
			count := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Str("client", id.String()).Int("remaining", count).Msg("Client disconnected")
		}()

		for data := range frameChan {
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}
