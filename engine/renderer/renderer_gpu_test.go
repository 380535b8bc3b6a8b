//go:build gpu

package renderer

import (
	"encoding/binary"
	"image/color"
	"testing"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const texturedTriangleWGSL = `
@group(0) @binding(0) var<uniform> tint: vec4<f32>;
@group(0) @binding(1) var albedo: texture_2d<f32>;
@group(0) @binding(2) var albedo_sampler: sampler;

@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    var corners = array<vec2<f32>, 3>(
        vec2<f32>(-0.5, -0.5),
        vec2<f32>(0.5, -0.5),
        vec2<f32>(0.0, 0.5),
    );
    return vec4<f32>(corners[idx], 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return tint * textureSample(albedo, albedo_sampler, vec2<f32>(0.5, 0.5));
}`

// TestHeadlessTriangleReadback renders one indexed triangle into a 64x64 target on a real adapter and
// checks the pixel at the centroid against the shader output and the corners against the clear color.
func TestHeadlessTriangleReadback(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	defer r.Release()

	s, err := r.CreateShader("textured-triangle", shader.WithSource(texturedTriangleWGSL))
	require.NoError(t, err)
	defer s.Release()

	tint, err := r.CreateBufferInit("Tint", common.SliceToBytes([]float32{1, 1, 1, 1}), wgpu.BufferUsageUniform)
	require.NoError(t, err)
	indices, err := r.CreateBufferInit("Indices", common.SliceToBytes([]uint32{0, 1, 2}), wgpu.BufferUsageIndex)
	require.NoError(t, err)

	albedo, err := r.CreateTexture(device.TextureDescriptor{
		Label:     "Albedo",
		Width:     1,
		Height:    1,
		Dimension: wgpu.TextureDimension2D,
		Format:    wgpu.TextureFormatRGBA8Unorm,
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	require.NoError(t, err)
	require.NoError(t, albedo.Write([]byte{255, 128, 0, 255}))

	sampler, err := r.CreateSampler(device.SamplerDescriptor{
		Label:         "Nearest",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeNearest,
		MinFilter:     wgpu.FilterModeNearest,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	require.NoError(t, err)

	target, err := r.CreateTexture(device.TextureDescriptor{
		Label:     "Target",
		Width:     64,
		Height:    64,
		Dimension: wgpu.TextureDimension2D,
		Format:    wgpu.TextureFormatRGBA8Unorm,
		Usage:     wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc,
	})
	require.NoError(t, err)

	cmd, err := r.BeginHeadlessCommands()
	require.NoError(t, err)
	pass, err := cmd.BeginTexturePass(target)
	require.NoError(t, err)
	pass.SetClearColor(common.Color{B: 1, A: 1})
	pass.SetShader(s)
	pass.SetIndexBuffer(indices, 0)
	pass.SetGPUBuffer(0, 0, tint)
	pass.SetAttachmentTexture(0, 1, albedo)
	pass.SetAttachmentSampler(0, 2, sampler)
	pass.DrawIndexed(3, 1, 0, 0, 0)
	require.NoError(t, pass.End())
	require.NoError(t, cmd.Finish(false))
	r.EndFrame()

	img, err := target.Image()
	require.NoError(t, err)

	// centroid of (-0.5,-0.5) (0.5,-0.5) (0,0.5) is (0,-1/6) in NDC
	got := img.RGBAAt(32, 37)
	assert.InDelta(t, 255, got.R, 1)
	assert.InDelta(t, 128, got.G, 1)
	assert.InDelta(t, 0, got.B, 1)

	clear := color.RGBA{B: 255, A: 255}
	for _, p := range [][2]int{{0, 0}, {63, 0}, {0, 63}, {63, 63}} {
		assert.Equal(t, clear, img.RGBAAt(p[0], p[1]), "corner %v", p)
	}
	assert.Equal(t, 1, r.PipelineCache().Len())
}

const squaresWGSL = `
struct Params {
    scale: u32,
}

var<push_constant> params: Params;

@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn squares(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x < arrayLength(&data)) {
        data[id.x] = id.x * id.x;
    }
}`

// TestCompiledComputeReadback runs a compute shader created from its SPIR-V binary on a real adapter and
// reads the storage buffer back.
func TestCompiledComputeReadback(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	defer r.Release()

	s, err := r.CreateShader("squares", shader.WithSource(squaresWGSL))
	require.NoError(t, err)
	defer s.Release()
	assert.Equal(t, 1, r.CompileCache().Len())

	data, err := r.CreateBuffer(device.BufferDescriptor{
		Label: "Squares",
		Size:  128 * 4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	require.NoError(t, err)

	cmd, err := r.BeginHeadlessCommands()
	require.NoError(t, err)
	pass := cmd.BeginComputePass()
	require.NoError(t, pass.SetShader(s))
	assert.ErrorIs(t, pass.SetPushConstants([]byte{2, 0, 0, 0}), command.ErrComputePushConstantsUnsupported)
	pass.SetBuffer(0, 0, data)
	pass.DispatchThreads(128, 1, 1)
	require.NoError(t, pass.End())
	require.NoError(t, cmd.Finish(false))
	r.EndFrame()

	out, err := data.Read(0, data.Size())
	require.NoError(t, err)
	for i := uint32(0); i < 128; i++ {
		assert.Equal(t, i*i, binary.LittleEndian.Uint32(out[i*4:]), "index %d", i)
	}
}
