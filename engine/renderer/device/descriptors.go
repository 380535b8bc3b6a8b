package device

import "github.com/cogentcore/webgpu/wgpu"

// PolygonMode controls triangle rasterization.
type PolygonMode uint8

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
	PolygonModePoint
)

// String returns the lowercase name of the mode.
func (m PolygonMode) String() string {
	switch m {
	case PolygonModeLine:
		return "line"
	case PolygonModePoint:
		return "point"
	default:
		return "fill"
	}
}

// ShaderModuleDescriptor describes a shader module from either WGSL text or SPIR-V words. SPIR-V wins when both are set.
type ShaderModuleDescriptor struct {
	Label string
	WGSL  string
	SPIRV []uint32
}

// BindGroupLayoutDescriptor describes a bind group layout.
type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []wgpu.BindGroupLayoutEntry
}

// PipelineLayoutDescriptor describes a pipeline layout. A zero PushConstantSize declares no push constant range.
type PipelineLayoutDescriptor struct {
	Label              string
	BindGroupLayouts   []BindGroupLayout
	PushConstantSize   uint32
	PushConstantStages wgpu.ShaderStage
}

// RenderPipelineDescriptor describes a render pipeline.
type RenderPipelineDescriptor struct {
	Label  string
	Layout PipelineLayout

	VertexModule     ShaderModule
	VertexEntryPoint string
	VertexBuffers    []wgpu.VertexBufferLayout

	FragmentModule     ShaderModule
	FragmentEntryPoint string
	Targets            []wgpu.ColorTargetState

	Primitive    wgpu.PrimitiveState
	PolygonMode  PolygonMode
	DepthStencil *wgpu.DepthStencilState
	SampleCount  uint32
}

// ComputePipelineDescriptor describes a compute pipeline.
type ComputePipelineDescriptor struct {
	Label      string
	Layout     PipelineLayout
	Module     ShaderModule
	EntryPoint string
}

// BindGroupEntry binds one resource. Exactly one of Buffer, TextureView and Sampler is set.
type BindGroupEntry struct {
	Binding     uint32
	Buffer      Buffer
	Offset      uint64
	Size        uint64
	TextureView TextureView
	Sampler     Sampler
}

// BindGroupDescriptor describes a bind group.
type BindGroupDescriptor struct {
	Label   string
	Layout  BindGroupLayout
	Entries []BindGroupEntry
}

// BufferDescriptor describes a buffer.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage wgpu.BufferUsage
}

// TextureDescriptor describes a texture. Zero DepthOrArrayLayers, MipLevelCount and SampleCount default to 1.
type TextureDescriptor struct {
	Label              string
	Width              uint32
	Height             uint32
	DepthOrArrayLayers uint32
	MipLevelCount      uint32
	SampleCount        uint32
	Dimension          wgpu.TextureDimension
	Format             wgpu.TextureFormat
	Usage              wgpu.TextureUsage
}

// Normalized returns a copy with zero counts replaced by 1.
func (d TextureDescriptor) Normalized() TextureDescriptor {
	if d.DepthOrArrayLayers == 0 {
		d.DepthOrArrayLayers = 1
	}
	if d.MipLevelCount == 0 {
		d.MipLevelCount = 1
	}
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	return d
}

// SamplerDescriptor describes a sampler.
type SamplerDescriptor = wgpu.SamplerDescriptor

// ColorAttachment is one color target of a render pass.
type ColorAttachment struct {
	View          TextureView
	ResolveTarget TextureView
	LoadOp        wgpu.LoadOp
	StoreOp       wgpu.StoreOp
	ClearValue    wgpu.Color
}

// DepthAttachment is the depth target of a render pass.
type DepthAttachment struct {
	View            TextureView
	DepthLoadOp     wgpu.LoadOp
	DepthStoreOp    wgpu.StoreOp
	DepthClearValue float32
	// HasStencil is set for combined depth-stencil formats so the stencil aspect gets load/store ops.
	HasStencil bool
}

// RenderPassDescriptor describes a render pass.
type RenderPassDescriptor struct {
	Label            string
	ColorAttachments []ColorAttachment
	DepthAttachment  *DepthAttachment
}

// SurfaceConfig configures a surface.
type SurfaceConfig struct {
	Width       uint32
	Height      uint32
	PresentMode wgpu.PresentMode
}

// BytesPerPixel returns the texel size of the uncompressed formats the engine reads back or uploads.
// It returns 0 for formats it does not know.
//
// Parameters:
//   - format: the texture format
//
// Returns:
//   - uint32: bytes per texel
func BytesPerPixel(format wgpu.TextureFormat) uint32 {
	switch format {
	case wgpu.TextureFormatR8Unorm:
		return 1
	case wgpu.TextureFormatRGBA8Unorm, wgpu.TextureFormatRGBA8UnormSrgb, wgpu.TextureFormatBGRA8Unorm,
		wgpu.TextureFormatBGRA8UnormSrgb, wgpu.TextureFormatRGBA8Snorm, wgpu.TextureFormatRGBA8Uint,
		wgpu.TextureFormatRGBA8Sint, wgpu.TextureFormatR32Float, wgpu.TextureFormatR32Uint,
		wgpu.TextureFormatR32Sint, wgpu.TextureFormatDepth32Float, wgpu.TextureFormatDepth24Plus,
		wgpu.TextureFormatDepth24PlusStencil8:
		return 4
	case wgpu.TextureFormatRG32Float, wgpu.TextureFormatRG32Uint, wgpu.TextureFormatRG32Sint,
		wgpu.TextureFormatRGBA16Float, wgpu.TextureFormatRGBA16Uint, wgpu.TextureFormatRGBA16Sint:
		return 8
	case wgpu.TextureFormatRGBA32Float, wgpu.TextureFormatRGBA32Uint, wgpu.TextureFormatRGBA32Sint:
		return 16
	}
	return 0
}

// IsDepthFormat reports whether the format has a depth aspect.
func IsDepthFormat(format wgpu.TextureFormat) bool {
	switch format {
	case wgpu.TextureFormatDepth16Unorm, wgpu.TextureFormatDepth24Plus, wgpu.TextureFormatDepth24PlusStencil8,
		wgpu.TextureFormatDepth32Float, wgpu.TextureFormatDepth32FloatStencil8:
		return true
	}
	return false
}

// HasStencil reports whether the format has a stencil aspect.
func HasStencil(format wgpu.TextureFormat) bool {
	switch format {
	case wgpu.TextureFormatDepth24PlusStencil8, wgpu.TextureFormatDepth32FloatStencil8, wgpu.TextureFormatStencil8:
		return true
	}
	return false
}
