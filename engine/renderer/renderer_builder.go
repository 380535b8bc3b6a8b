package renderer

import (
	"github.com/Carmen-Shannon/oxy-gpu/engine/config"
	"github.com/Carmen-Shannon/oxy-gpu/engine/profiler"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithDevice makes the renderer use an existing device instead of creating a wgpu device. The renderer
// does not release a device it was given.
//
// Parameters:
//   - dev: the device to render with
//
// Returns:
//   - RendererBuilderOption: a function that applies the device option to a renderer
func WithDevice(dev device.Device) RendererBuilderOption {
	return func(r *renderer) {
		r.dev = dev
	}
}

// WithSurfaceDescriptor sets the native surface the created wgpu device presents to, usually taken from
// Window.SurfaceDescriptor. Without it the created device is headless. Ignored together with WithDevice.
//
// Parameters:
//   - desc: the platform surface descriptor
//
// Returns:
//   - RendererBuilderOption: a function that applies the surface option to a renderer
func WithSurfaceDescriptor(desc *wgpu.SurfaceDescriptor) RendererBuilderOption {
	return func(r *renderer) {
		r.surfaceDescriptor = desc
	}
}

// WithForceSoftwareRenderer selects the fallback adapter when the renderer creates its own device.
//
// Parameters:
//   - force: true to request the software adapter
//
// Returns:
//   - RendererBuilderOption: a function that applies the adapter option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallback = force
	}
}

// WithPushConstantSize requests native push constant support of the given size when the renderer creates
// its own device.
func WithPushConstantSize(size uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.pushConstantSize = size
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.presentMode = mode
	}
}

// WithMSAA sets the multisample anti-aliasing sample count of the default frame pass.
// When not specified, the default is MSAAOff. Higher values are adapter-dependent and may not be
// supported by all hardware.
//
// Parameters:
//   - count: the MSAASampleCount to use
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option to a renderer
func WithMSAA(count MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.msaa = count
	}
}

// WithDepthFormat sets the format of the depth target of the default frame pass.
// wgpu.TextureFormatUndefined disables the depth target.
func WithDepthFormat(format wgpu.TextureFormat) RendererBuilderOption {
	return func(r *renderer) {
		r.depthFormat = format
	}
}

// WithPipelineCachePath sets the file the compiled shader cache is loaded from at startup and written to
// by Release. An empty path disables persistence.
//
// Parameters:
//   - path: the cache file
//
// Returns:
//   - RendererBuilderOption: a function that applies the cache path option to a renderer
func WithPipelineCachePath(path string) RendererBuilderOption {
	return func(r *renderer) {
		r.pipelineCachePath = path
	}
}

// WithProfiler makes EndFrame tick p and registers the renderer caches as its statistics sources.
func WithProfiler(p *profiler.Profiler) RendererBuilderOption {
	return func(r *renderer) {
		r.profiler = p
	}
}

// WithConfig applies the renderer section of a loaded configuration. Options given after it override it.
//
// Parameters:
//   - cfg: the configuration
//
// Returns:
//   - RendererBuilderOption: a function that applies the configuration to a renderer
func WithConfig(cfg config.Config) RendererBuilderOption {
	return func(r *renderer) {
		if cfg.Renderer.MSAA != 0 {
			r.msaa = MSAASampleCount(cfg.Renderer.MSAA)
		}
		if mode, err := ParsePresentMode(cfg.Renderer.PresentMode); err == nil {
			r.presentMode = mode
		} else {
			r.optionErr = err
		}
		r.pipelineCachePath = cfg.Renderer.PipelineCachePath
		r.forceFallback = cfg.Renderer.ForceFallbackAdapter
	}
}
