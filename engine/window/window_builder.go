package window

import "github.com/Carmen-Shannon/oxy-gpu/engine/config"

// WindowBuilderOption is a functional option for configuring a Window.
type WindowBuilderOption func(*engineWindow)

// WithTitle sets the window title.
//
// Parameters:
//   - title: the window title text
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithTitle(title string) WindowBuilderOption {
	return func(w *engineWindow) {
		w.title = title
	}
}

// WithSize sets the initial client area size in screen coordinates.
//
// Parameters:
//   - width: the initial width
//   - height: the initial height
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSize(width, height int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.width = width
		w.height = height
	}
}

// WithSizeLimits bounds how far the user can resize the window. Zero leaves a bound unset.
func WithSizeLimits(minWidth, minHeight, maxWidth, maxHeight int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.minWidth, w.minHeight = minWidth, minHeight
		w.maxWidth, w.maxHeight = maxWidth, maxHeight
	}
}

// WithResizable controls whether the user can resize the window.
func WithResizable(resizable bool) WindowBuilderOption {
	return func(w *engineWindow) {
		w.resizable = resizable
	}
}

// WithConfig applies the window section of a loaded configuration.
//
// Parameters:
//   - cfg: the configuration
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithConfig(cfg config.Config) WindowBuilderOption {
	return func(w *engineWindow) {
		if cfg.Window.Title != "" {
			w.title = cfg.Window.Title
		}
		if cfg.Window.Width > 0 && cfg.Window.Height > 0 {
			w.width, w.height = cfg.Window.Width, cfg.Window.Height
		}
	}
}
