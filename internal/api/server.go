package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dualview-dev/dualview/internal/capture"
	"github.com/dualview-dev/dualview/internal/config"
	"github.com/dualview-dev/dualview/internal/logger"
	"github.com/dualview-dev/dualview/internal/output"
	"github.com/dualview-dev/dualview/internal/relay"
	"github.com/dualview-dev/dualview/internal/viewer"
)

// DisplayLister enumerates the capture displays the server reports on
// /api/displays. Nil when no capture source is active.
type DisplayLister func() ([]capture.Display, error)

// Server exposes the rendered stream and runtime stats over HTTP.
type Server struct {
	router    *mux.Router
	configMgr *config.Manager
	viewer    *viewer.Viewer
	relay     *relay.Relay
	stream    *output.MJPEGOutput
	displays  DisplayLister
	upgrader  websocket.Upgrader
	srv       *http.Server
}

// NewServer creates the HTTP server. stream may be nil when no MJPEG output
// is configured; /stream then returns 503.
func NewServer(configMgr *config.Manager, v *viewer.Viewer, r *relay.Relay, stream *output.MJPEGOutput, displays DisplayLister) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		configMgr: configMgr,
		viewer:    v,
		relay:     r,
		stream:    stream,
		displays:  displays,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Runtime stats
	api.HandleFunc("/stats", s.handleGetStats).Methods("GET")
	api.HandleFunc("/stats/ws", s.handleStatsStream)

	// Capture displays
	api.HandleFunc("/displays", s.handleGetDisplays).Methods("GET")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Live MJPEG stream of the composite frame
	s.router.HandleFunc("/stream", s.handleStream)

	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Start serves until Stop is called or the listener fails.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logger.WithComponent("api").Info().
		Str("addr", fmt.Sprintf("http://localhost%s", addr)).
		Msg("Starting server")
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.enableCORS(s.router),
	}
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down, letting in-flight requests drain until ctx
// expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.enableCORS(s.router)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statsSnapshot is the JSON shape served on /api/stats and the websocket.
type statsSnapshot struct {
	Viewer        viewer.Stats `json:"viewer"`
	RelayDrops    uint64       `json:"relay_drops"`
	RelayReads    uint64       `json:"relay_reads"`
	StreamFrames  uint64       `json:"stream_frames"`
	StreamViewers int          `json:"stream_viewers"`
}

func (s *Server) snapshot() statsSnapshot {
	snap := statsSnapshot{}
	if s.viewer != nil {
		snap.Viewer = s.viewer.Stats()
	}
	if s.relay != nil {
		snap.RelayDrops, snap.RelayReads = s.relay.Stats()
	}
	if s.stream != nil {
		snap.StreamFrames = s.stream.FrameCount()
		snap.StreamViewers = s.stream.ClientCount()
	}
	return snap
}

// HTTP Handlers

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.snapshot())
}

func (s *Server) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	if err := conn.WriteJSON(s.snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.snapshot()); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleGetDisplays(w http.ResponseWriter, r *http.Request) {
	if s.displays == nil {
		http.Error(w, "no capture source active", http.StatusServiceUnavailable)
		return
	}
	displays, err := s.displays()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(displays)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.configMgr.Get()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LogLevel     *string `json:"log_level"`
		OutputPort   *int    `json:"output_port"`
		DisplayIndex *int    `json:"display_index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.LogLevel != nil {
		s.configMgr.SetLogLevel(*req.LogLevel)
	}
	if req.OutputPort != nil {
		if *req.OutputPort < 1 || *req.OutputPort > 65535 {
			http.Error(w, "output_port out of range", http.StatusBadRequest)
			return
		}
		s.configMgr.SetOutputPort(*req.OutputPort)
	}
	if req.DisplayIndex != nil {
		if *req.DisplayIndex < 0 {
			http.Error(w, "display_index must be non-negative", http.StatusBadRequest)
			return
		}
		s.configMgr.SetDisplayIndex(*req.DisplayIndex)
	}

	if err := s.configMgr.Save(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		http.Error(w, "stream output not configured", http.StatusServiceUnavailable)
		return
	}
	s.stream.Handler()(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>DualView</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            max-width: 1700px;
            margin: 30px auto;
            padding: 20px;
            background: #1b1b1e;
            color: #ddd;
        }
        .container {
            background: #242428;
            padding: 30px;
            border-radius: 8px;
        }
        h1 {
            color: #eee;
            margin-top: 0;
        }
        img.stream {
            width: 100%;
            border: 1px solid #444;
            border-radius: 4px;
            background: black;
        }
        .info {
            color: #999;
            line-height: 1.6;
        }
        a {
            color: #64b5f6;
            text-decoration: none;
        }
        a:hover {
            text-decoration: underline;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>DualView</h1>
        <img class="stream" src="/stream" alt="live render output">
        <div class="info">
            <p>Left: orthographic 2D view. Right: perspective 3D view with an orbiting camera.</p>
            <h3>API Endpoints:</h3>
            <ul>
                <li><a href="/api/health">/api/health</a> - Server health check</li>
                <li><a href="/api/stats">/api/stats</a> - Render and relay counters</li>
                <li><a href="/api/displays">/api/displays</a> - Capturable displays</li>
                <li><a href="/api/config">/api/config</a> - View configuration</li>
            </ul>
        </div>
    </div>
</body>
</html>`

	// Only serve HTML for root path
	if r.URL.Path == "/" {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(html))
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/api") {
		http.NotFound(w, r)
	}
}
