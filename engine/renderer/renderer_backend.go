package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped

	// PresentModeMailbox replaces the queued frame with the newest one. No tearing, low latency,
	// not available on every adapter.
	PresentModeMailbox
)

// String returns the configuration name of the mode.
func (m PresentMode) String() string {
	switch m {
	case PresentModeUncapped:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	}
	return "fifo"
}

// wgpu maps the mode to the native present mode.
func (m PresentMode) wgpu() wgpu.PresentMode {
	switch m {
	case PresentModeUncapped:
		return wgpu.PresentModeImmediate
	case PresentModeMailbox:
		return wgpu.PresentModeMailbox
	}
	return wgpu.PresentModeFifo
}

// ParsePresentMode converts a configuration name ("fifo", "immediate", "mailbox") to a PresentMode.
//
// Parameters:
//   - name: the configuration name
//
// Returns:
//   - PresentMode: the matching mode
//   - error: error if the name is unknown
func ParsePresentMode(name string) (PresentMode, error) {
	switch name {
	case "fifo", "vsync", "":
		return PresentModeVSync, nil
	case "immediate", "uncapped":
		return PresentModeUncapped, nil
	case "mailbox":
		return PresentModeMailbox, nil
	}
	return PresentModeVSync, fmt.Errorf("unknown present mode %q", name)
}

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// Only specific power-of-two values are valid for GPU hardware. WebGPU guarantees support for
// 1 (off) and 4; higher values are adapter-dependent and may not be available.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1). This is the default.
	MSAAOff MSAASampleCount = 1

	// MSAA2x enables 2× multisample anti-aliasing. Adapter-dependent.
	MSAA2x MSAASampleCount = 2

	// MSAA4x enables 4× multisample anti-aliasing.
	MSAA4x MSAASampleCount = 4

	// MSAA8x enables 8× multisample anti-aliasing. Adapter-dependent; not all hardware supports this.
	MSAA8x MSAASampleCount = 8
)

// valid reports whether the count is one the surface pass accepts.
func (c MSAASampleCount) valid() bool {
	switch c {
	case MSAAOff, MSAA2x, MSAA4x, MSAA8x:
		return true
	}
	return false
}

// frameTargets are the textures the default frame pass renders into besides the swapchain image. They
// follow the surface size and are recreated on every resize.
type frameTargets struct {
	msaa  resource.Texture
	depth resource.Texture
}

// createFrameTargets creates the MSAA color target (when sampleCount > 1) and the depth target (when
// depthFormat is set) for a surface of the given size and format.
//
// Parameters:
//   - pool: the pool owning the textures
//   - extent: the surface size
//   - format: the surface format
//   - sampleCount: the MSAA sample count
//   - depthFormat: the depth format, or TextureFormatUndefined for no depth target
//
// Returns:
//   - frameTargets: the created targets
//   - error: error if texture creation fails
func createFrameTargets(pool resource.Pool, extent common.Extent, format wgpu.TextureFormat, sampleCount MSAASampleCount, depthFormat wgpu.TextureFormat) (frameTargets, error) {
	var ft frameTargets
	if sampleCount > MSAAOff {
		tex, err := pool.CreateTexture(device.TextureDescriptor{
			Label:       "MSAA Texture",
			Width:       extent.Width,
			Height:      extent.Height,
			SampleCount: uint32(sampleCount),
			Dimension:   wgpu.TextureDimension2D,
			Format:      format,
			Usage:       wgpu.TextureUsageRenderAttachment,
		})
		if err != nil {
			return frameTargets{}, fmt.Errorf("failed to create MSAA texture: %w", err)
		}
		ft.msaa = tex
	}
	if depthFormat != wgpu.TextureFormatUndefined {
		tex, err := pool.CreateTexture(device.TextureDescriptor{
			Label:       "Depth Texture",
			Width:       extent.Width,
			Height:      extent.Height,
			SampleCount: uint32(sampleCount),
			Dimension:   wgpu.TextureDimension2D,
			Format:      depthFormat,
			Usage:       wgpu.TextureUsageRenderAttachment,
		})
		if err != nil {
			ft.release()
			return frameTargets{}, fmt.Errorf("failed to create depth texture: %w", err)
		}
		ft.depth = tex
	}
	return ft, nil
}

// release frees the targets. Zero handles are ignored.
func (ft *frameTargets) release() {
	if ft.msaa.Valid() {
		ft.msaa.Release()
	}
	if ft.depth.Valid() {
		ft.depth.Release()
	}
	*ft = frameTargets{}
}
