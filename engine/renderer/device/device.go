// Package device is the boundary between the rendering core and the native GPU API. The core only
// talks to the interfaces declared here; the wgpu backend implements them against a real adapter and
// the devicetest package implements them with an in-memory recorder.
package device

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrSurfaceNotAvailable is returned when the swapchain image could not be acquired this frame, e.g. on timeout.
	ErrSurfaceNotAvailable = errors.New("surface texture not available")
	// ErrSurfaceConfigNeeded is returned when the surface is unconfigured, outdated or has a zero-sized extent.
	ErrSurfaceConfigNeeded = errors.New("surface needs to be reconfigured")
	// ErrDeviceLost is returned when the device or surface was lost and cannot be recovered.
	ErrDeviceLost = errors.New("device lost")
	// ErrNoSurface is returned by operations that require a presentation surface on a headless device.
	ErrNoSurface = errors.New("device has no surface")
)

// Object is implemented by every native handle.
type Object interface {
	// Label returns the debug label the object was created with.
	Label() string
	// Release frees the native object. Releasing twice is a no-op.
	Release()
}

// ShaderModule is a compiled shader module.
type ShaderModule interface{ Object }

// BindGroupLayout is a native bind group layout.
type BindGroupLayout interface{ Object }

// PipelineLayout is a native pipeline layout.
type PipelineLayout interface{ Object }

// RenderPipeline is a native render pipeline.
type RenderPipeline interface{ Object }

// ComputePipeline is a native compute pipeline.
type ComputePipeline interface{ Object }

// BindGroup is a native bind group.
type BindGroup interface{ Object }

// Sampler is a native sampler.
type Sampler interface{ Object }

// TextureView is a view over a texture, used as attachment or binding.
type TextureView interface{ Object }

// CommandBuffer is a finished, submittable command buffer.
type CommandBuffer interface{ Object }

// Buffer is a native GPU buffer.
type Buffer interface {
	Object
	Size() uint64
	Usage() wgpu.BufferUsage
}

// Texture is a native GPU texture.
type Texture interface {
	Object
	Width() uint32
	Height() uint32
	DepthOrArrayLayers() uint32
	Format() wgpu.TextureFormat
	SampleCount() uint32
	MipLevelCount() uint32
	Usage() wgpu.TextureUsage
	Dimension() wgpu.TextureDimension
	// CreateView creates a default view over the whole texture.
	CreateView() (TextureView, error)
}

// Queue uploads data and submits command buffers.
type Queue interface {
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	WriteTexture(tex Texture, mipLevel uint32, data []byte, bytesPerRow uint32, extent common.Extent) error
	Submit(cmds ...CommandBuffer)
}

// CommandEncoder records passes and copies into a command buffer.
type CommandEncoder interface {
	BeginRenderPass(desc RenderPassDescriptor) RenderPassEncoder
	BeginComputePass(label string) ComputePassEncoder
	CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64) error
	CopyTextureToTexture(src, dst Texture, extent common.Extent) error
	CopyTextureToBuffer(src Texture, dst Buffer, bytesPerRow uint32, extent common.Extent) error
	Finish() (CommandBuffer, error)
	Release()
}

// RenderPassEncoder records render commands.
type RenderPassEncoder interface {
	SetPipeline(p RenderPipeline)
	SetBindGroup(index uint32, bg BindGroup)
	SetVertexBuffer(slot uint32, buf Buffer, offset uint64)
	SetIndexBuffer(buf Buffer, format wgpu.IndexFormat, offset uint64)
	SetPushConstants(stages wgpu.ShaderStage, offset uint32, data []byte)
	SetViewport(v common.Viewport)
	SetScissorRect(r common.Rect)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	DrawIndirect(buf Buffer, offset uint64)
	DrawIndexedIndirect(buf Buffer, offset uint64)
	End() error
}

// ComputePassEncoder records compute commands.
type ComputePassEncoder interface {
	SetPipeline(p ComputePipeline)
	SetBindGroup(index uint32, bg BindGroup)
	DispatchWorkgroups(x, y, z uint32)
	DispatchWorkgroupsIndirect(buf Buffer, offset uint64)
	End() error
}

// ComputePushConstantEncoder is implemented by compute pass encoders of devices reporting
// Features.ComputePushConstants.
type ComputePushConstantEncoder interface {
	SetPushConstants(offset uint32, data []byte)
}

// Features lists optional capabilities that differ between devices.
type Features struct {
	// ComputePushConstants is set when compute passes can set push constants.
	ComputePushConstants bool
}

// SurfaceTexture is the swapchain image acquired for one frame.
type SurfaceTexture struct {
	Texture Texture
	// Suboptimal is set when the image is usable but the surface should be reconfigured soon.
	Suboptimal bool
}

// Surface is a presentable swapchain.
type Surface interface {
	Configure(cfg SurfaceConfig) error
	// Acquire returns the next swapchain image or one of ErrSurfaceNotAvailable, ErrSurfaceConfigNeeded, ErrDeviceLost.
	Acquire() (SurfaceTexture, error)
	Present()
	Format() wgpu.TextureFormat
	Extent() common.Extent
}

// Device creates native objects and owns the queue.
type Device interface {
	Queue() Queue
	Features() Features
	// Surface returns the presentation surface, or nil for a headless device.
	Surface() Surface
	CreateShaderModule(desc ShaderModuleDescriptor) (ShaderModule, error)
	CreateBindGroupLayout(desc BindGroupLayoutDescriptor) (BindGroupLayout, error)
	CreatePipelineLayout(desc PipelineLayoutDescriptor) (PipelineLayout, error)
	CreateRenderPipeline(desc RenderPipelineDescriptor) (RenderPipeline, error)
	CreateComputePipeline(desc ComputePipelineDescriptor) (ComputePipeline, error)
	CreateBindGroup(desc BindGroupDescriptor) (BindGroup, error)
	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	CreateTexture(desc TextureDescriptor) (Texture, error)
	CreateSampler(desc SamplerDescriptor) (Sampler, error)
	CreateCommandEncoder(label string) (CommandEncoder, error)
	// ReadBuffer maps a MapRead buffer and blocks until its contents are available.
	ReadBuffer(buf Buffer, offset, size uint64) ([]byte, error)
	Release()
}
