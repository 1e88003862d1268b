// Package diag serves Go's pprof profiling endpoints on a loopback port so
// the render and capture paths can be profiled while the process runs.
package diag

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/dualview-dev/dualview/internal/logger"
)

// Server hosts the profiling endpoints. It binds loopback only; profiles are
// not exposed on the streaming port.
type Server struct {
	srv *http.Server
}

// NewServer prepares a profiling server on 127.0.0.1:port.
func NewServer(port int) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &Server{
		srv: &http.Server{
			Addr:    fmt.Sprintf("127.0.0.1:%d", port),
			Handler: mux,
		},
	}
}

// Start serves until Stop is called. Returns the listener error if the port
// cannot be bound.
func (s *Server) Start() error {
	logger.WithComponent("diag").Info().
		Str("addr", fmt.Sprintf("http://%s/debug/pprof/", s.srv.Addr)).
		Msg("Profiling server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the profiling server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
