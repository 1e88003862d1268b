package commands

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dualview-dev/dualview/internal/capture"
)

func TestWaitForShutdownReturnsNilOnSignal(t *testing.T) {
	sig := make(chan os.Signal, 1)
	sig <- os.Interrupt

	err := waitForShutdown(sig, make(chan error), make(chan error), make(chan error))
	if err != nil {
		t.Fatalf("expected nil on signal, got %v", err)
	}
}

func TestWaitForShutdownPropagatesCaptureError(t *testing.T) {
	captureErr := make(chan error, 1)
	cause := errors.New("capture access denied")
	captureErr <- cause

	err := waitForShutdown(make(chan os.Signal), make(chan error), make(chan error), captureErr)
	if err == nil {
		t.Fatal("expected an error when capture setup fails")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestWaitForShutdownPropagatesServerError(t *testing.T) {
	serverErr := make(chan error, 1)
	cause := errors.New("listen tcp :8080: address already in use")
	serverErr <- cause

	err := waitForShutdown(make(chan os.Signal), serverErr, make(chan error), make(chan error))
	if err == nil {
		t.Fatal("expected an error when the http server fails")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestWaitForShutdownTreatsNilServerExitAsError(t *testing.T) {
	diagErr := make(chan error, 1)
	diagErr <- nil

	err := waitForShutdown(make(chan os.Signal), make(chan error), diagErr, make(chan error))
	if err == nil {
		t.Fatal("expected an error when the profiling server exits early")
	}
}

func TestWaitForShutdownDoesNotBlockOnPopulatedChannel(t *testing.T) {
	captureErr := make(chan error, 1)
	captureErr <- errors.New("no capturable displays")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = waitForShutdown(make(chan os.Signal), make(chan error), make(chan error), captureErr)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waitForShutdown did not return")
	}
}

func TestStreamGuardHandsStreamToShutdown(t *testing.T) {
	g := &streamGuard{}
	s := &capture.Stream{}

	if !g.put(s) {
		t.Fatal("put before shutdown should be accepted")
	}
	if got := g.take(); got != s {
		t.Fatalf("take returned %v, want the stored stream", got)
	}
	if got := g.take(); got != nil {
		t.Fatalf("second take returned %v, want nil", got)
	}
}

func TestStreamGuardRejectsLateStream(t *testing.T) {
	g := &streamGuard{}

	if got := g.take(); got != nil {
		t.Fatalf("take before put returned %v, want nil", got)
	}
	if g.put(&capture.Stream{}) {
		t.Fatal("put after shutdown should be rejected so the caller stops the stream")
	}
}
