package command

import (
	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// SurfaceTexture is the swapchain image a CommandSession acquired for its frame. It stays valid until the
// session ends.
type SurfaceTexture struct {
	texture    device.Texture
	view       device.TextureView
	suboptimal bool
}

// acquireSurface acquires the next swapchain image of dev and creates its view.
func acquireSurface(dev device.Device) (*SurfaceTexture, error) {
	surface := dev.Surface()
	if surface == nil {
		return nil, device.ErrNoSurface
	}
	st, err := surface.Acquire()
	if err != nil {
		return nil, err
	}
	if st.Suboptimal {
		common.LogDebug("surface texture is suboptimal, using it for this frame")
	}
	view, err := st.Texture.CreateView()
	if err != nil {
		st.Texture.Release()
		return nil, err
	}
	return &SurfaceTexture{texture: st.Texture, view: view, suboptimal: st.Suboptimal}, nil
}

// Format returns the swapchain format.
func (s *SurfaceTexture) Format() wgpu.TextureFormat {
	return s.texture.Format()
}

// Size returns the swapchain image size.
func (s *SurfaceTexture) Size() common.Extent {
	return common.Extent{Width: s.texture.Width(), Height: s.texture.Height()}
}

// Suboptimal reports whether the surface should be reconfigured soon.
func (s *SurfaceTexture) Suboptimal() bool {
	return s.suboptimal
}

// View returns the view used as color attachment.
func (s *SurfaceTexture) View() device.TextureView {
	return s.view
}

func (s *SurfaceTexture) release() {
	s.view.Release()
	s.texture.Release()
}
