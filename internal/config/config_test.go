package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewManagerMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if mgr.Get() != Default() {
		t.Errorf("config = %+v, want defaults", mgr.Get())
	}
	if mgr.Path() != path {
		t.Errorf("Path = %q, want %q", mgr.Path(), path)
	}
}

func TestNewManagerReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("log_level: debug\noutput:\n  port: 9090\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := mgr.Get()
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Output.Port != 9090 {
		t.Errorf("Output.Port = %d, want 9090", cfg.Output.Port)
	}
	// Unset keys keep their defaults.
	if cfg.Render.Width != Default().Render.Width {
		t.Errorf("Render.Width = %d, want default %d", cfg.Render.Width, Default().Render.Width)
	}
}

func TestNewManagerRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("capture:\n  fps: 0\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(path); err == nil {
		t.Error("expected error for zero capture fps")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	mgr.SetLogLevel("warn")
	mgr.SetOutputPort(9191)
	mgr.SetDisplayIndex(1)
	if err := mgr.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager after save: %v", err)
	}
	cfg := reloaded.Get()
	if cfg.LogLevel != "warn" || cfg.Output.Port != 9191 || cfg.Capture.DisplayIndex != 1 {
		t.Errorf("reloaded config = %+v, want saved overrides", cfg)
	}
}
