// Package config loads engine settings from TOML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every tunable the renderer, window and engine read at startup.
type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Shaders  ShaderConfig   `toml:"shaders"`
	Log      LogConfig      `toml:"log"`
}

// WindowConfig controls the native window.
type WindowConfig struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

// RendererConfig controls device selection, surface configuration and pipeline caching.
type RendererConfig struct {
	// MSAA is the sample count of the default surface pass. 1 disables multisampling.
	MSAA uint32 `toml:"msaa"`
	// PresentMode is one of "fifo", "immediate", "mailbox".
	PresentMode string `toml:"present_mode"`
	// PipelineCachePath is where compiled shader blobs are persisted between runs. Empty disables persistence.
	PipelineCachePath string `toml:"pipeline_cache_path"`
	// ForceFallbackAdapter selects the software adapter.
	ForceFallbackAdapter bool `toml:"force_fallback_adapter"`
}

// ShaderConfig controls the shader library.
type ShaderConfig struct {
	Dir       string `toml:"dir"`
	HotReload bool   `toml:"hot_reload"`
	Workers   int    `toml:"workers"`
}

// LogConfig controls the shared logger.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is present.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	return Config{
		Window: WindowConfig{
			Title:  "oxy",
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			MSAA:              1,
			PresentMode:       "fifo",
			PipelineCachePath: "cache/pipeline_cache.wgpu",
		},
		Shaders: ShaderConfig{
			Dir:     "shaders",
			Workers: 4,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a TOML file and overlays it on Default. A missing file yields the defaults.
//
// Parameters:
//   - path: path to the TOML file
//
// Returns:
//   - Config: the merged configuration
//   - error: error if the file exists but cannot be read, decoded or validated
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML data over Default. Unknown keys are rejected.
//
// Parameters:
//   - data: TOML document
//
// Returns:
//   - Config: the merged configuration
//   - error: error if decoding or validation fails
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("unknown config keys:\n%s", strict.String())
		}
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration as TOML.
//
// Parameters:
//   - path: destination file
//
// Returns:
//   - error: error if encoding or writing fails
func (c Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks value ranges.
//
// Returns:
//   - error: the first invalid field, or nil
func (c Config) Validate() error {
	switch c.Renderer.MSAA {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("renderer.msaa must be 1, 2, 4 or 8, got %d", c.Renderer.MSAA)
	}
	switch c.Renderer.PresentMode {
	case "fifo", "immediate", "mailbox":
	default:
		return fmt.Errorf("renderer.present_mode %q is not one of fifo, immediate, mailbox", c.Renderer.PresentMode)
	}
	if c.Window.Width < 0 || c.Window.Height < 0 {
		return fmt.Errorf("window size must not be negative, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Shaders.Workers < 0 {
		return fmt.Errorf("shaders.workers must not be negative, got %d", c.Shaders.Workers)
	}
	return nil
}
