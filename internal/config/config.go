package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DiagPort is the fixed loopback port for the profiling endpoint.
const DiagPort = 7901

// CaptureConfig parameterizes the screen-capture stream.
type CaptureConfig struct {
	DisplayIndex int     `json:"display_index" yaml:"display_index" mapstructure:"display_index"`
	FPS          int     `json:"fps" yaml:"fps" mapstructure:"fps"`
	Scale        float64 `json:"scale" yaml:"scale" mapstructure:"scale"`
}

// RenderConfig parameterizes the output canvas and render loop.
type RenderConfig struct {
	Width           int     `json:"width" yaml:"width" mapstructure:"width"`
	Height          int     `json:"height" yaml:"height" mapstructure:"height"`
	FPS             int     `json:"fps" yaml:"fps" mapstructure:"fps"`
	PixelsFromPoint float64 `json:"pixels_from_point" yaml:"pixels_from_point" mapstructure:"pixels_from_point"`
}

// OutputConfig parameterizes the HTTP frame output.
type OutputConfig struct {
	Port        int `json:"port" yaml:"port" mapstructure:"port"`
	JPEGQuality int `json:"jpeg_quality" yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	Capture  CaptureConfig `json:"capture" yaml:"capture" mapstructure:"capture"`
	Render   RenderConfig  `json:"render" yaml:"render" mapstructure:"render"`
	Output   OutputConfig  `json:"output" yaml:"output" mapstructure:"output"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Capture: CaptureConfig{
			DisplayIndex: 0,
			FPS:          30,
			Scale:        0.5,
		},
		Render: RenderConfig{
			Width:           1600,
			Height:          900,
			FPS:             30,
			PixelsFromPoint: 1.0,
		},
		Output: OutputConfig{
			Port:        8080,
			JPEGQuality: 85,
		},
	}
}

// Manager loads, exposes and persists the configuration.
type Manager struct {
	mu     sync.RWMutex
	config Config
	path   string
}

// NewManager loads configuration from the given file, or from the default
// location when cfgFile is empty. A missing file is not an error; defaults
// apply.
func NewManager(cfgFile string) (*Manager, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("capture.display_index", def.Capture.DisplayIndex)
	v.SetDefault("capture.fps", def.Capture.FPS)
	v.SetDefault("capture.scale", def.Capture.Scale)
	v.SetDefault("render.width", def.Render.Width)
	v.SetDefault("render.height", def.Render.Height)
	v.SetDefault("render.fps", def.Render.FPS)
	v.SetDefault("render.pixels_from_point", def.Render.PixelsFromPoint)
	v.SetDefault("output.port", def.Output.Port)
	v.SetDefault("output.jpeg_quality", def.Output.JPEGQuality)

	path := cfgFile
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			configDir = os.Getenv("HOME")
		}
		path = filepath.Join(configDir, "dualview", "config.yaml")
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil && fileExists(path) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Manager{config: cfg, path: path}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (c *Config) validate() error {
	if c.Capture.FPS <= 0 || c.Capture.FPS > 240 {
		return fmt.Errorf("capture.fps %d out of range (1-240)", c.Capture.FPS)
	}
	if c.Render.FPS <= 0 || c.Render.FPS > 240 {
		return fmt.Errorf("render.fps %d out of range (1-240)", c.Render.FPS)
	}
	if c.Render.Width < 320 || c.Render.Height < 180 {
		return fmt.Errorf("render canvas %dx%d too small", c.Render.Width, c.Render.Height)
	}
	if c.Capture.Scale <= 0 || c.Capture.Scale > 1 {
		return fmt.Errorf("capture.scale %v out of range (0-1]", c.Capture.Scale)
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("output.jpeg_quality %d out of range (1-100)", c.Output.JPEGQuality)
	}
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Path returns where the configuration was loaded from.
func (m *Manager) Path() string {
	return m.path
}

// SetLogLevel overrides the log level.
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}

// SetOutputPort overrides the HTTP output port.
func (m *Manager) SetOutputPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Output.Port = port
}

// SetDisplayIndex overrides the captured display.
func (m *Manager) SetDisplayIndex(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Capture.DisplayIndex = index
}

// Save writes the current configuration to its file as YAML.
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	path := m.path
	m.mu.RUnlock()

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
