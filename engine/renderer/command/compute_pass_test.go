package command

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device/devicetest"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const particlesWGSL = `
struct Params {
    dt: f32,
    count: u32,
}

var<push_constant> params: Params;

@group(0) @binding(0) var<storage, read_write> particles: array<vec4<f32>>;
@group(1) @binding(0) var output: texture_storage_2d<rgba8unorm, write>;

@compute @workgroup_size(8, 8)
fn simulate(@builtin(global_invocation_id) id: vec3<u32>) {
}`

func TestComputePassDispatches(t *testing.T) {
	c := newTestContext(t)
	fill := c.shader(t, "fill", fillWGSL)
	data := c.buffer(t, "data", 1024, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)

	cmd := c.session(t, WithLabel("sim"))
	pass := cmd.BeginComputePass()
	assert.Equal(t, "sim Compute Pass 1", pass.Label())
	require.NoError(t, pass.SetShader(fill))
	pass.SetBuffer(0, 0, data)
	pass.DispatchThreads(100, 1, 1)
	pass.Dispatch(3, 2, 1)
	pass.Dispatch(0, 1, 1)
	assert.Equal(t, 2, pass.Queued())
	require.NoError(t, pass.End())
	require.NoError(t, pass.End())
	require.NoError(t, cmd.Finish(false))

	p := c.dev.LastSubmission().Passes[0]
	assert.True(t, p.Compute)
	assert.Equal(t, "sim Compute Pass 1", p.Descriptor.Label)
	assert.Equal(t, []string{
		"SetPipeline", "SetBindGroup", "DispatchWorkgroups",
		"SetPipeline", "SetBindGroup", "DispatchWorkgroups",
	}, p.Ops())
	dispatches := p.CommandsOf("DispatchWorkgroups")
	assert.Equal(t, []uint32{2, 1, 1}, dispatches[0].Args, "100 threads need two groups of 64")
	assert.Equal(t, []uint32{3, 2, 1}, dispatches[1].Args)
	assert.Equal(t, 1, c.dev.Created(devicetest.KindComputePipeline))
	assert.Equal(t, 1, c.dev.Created(devicetest.KindBindGroup))
}

func TestComputePassShaderAndPushConstants(t *testing.T) {
	c := newTestContext(t)
	particles := c.shader(t, "particles", particlesWGSL)
	fill := c.shader(t, "fill", fillWGSL)
	plain := c.shader(t, "fullscreen", fullscreenWGSL)
	storage := c.buffer(t, "particles", 256, wgpu.BufferUsageStorage)
	image := c.texture(t, "output", 16, 16, 1, wgpu.TextureFormatRGBA8Unorm, wgpu.TextureUsageStorageBinding)

	cmd := c.session(t)
	pass := cmd.BeginComputePass()
	assert.ErrorIs(t, pass.SetShader(plain), ErrNotComputeShader)
	requireViolation(t, func() { pass.Dispatch(1, 1, 1) })

	require.NoError(t, pass.SetShader(particles))
	assert.ErrorIs(t, pass.SetPushConstants(make([]byte, 12)), ErrPushConstantsTooLarge)
	require.NoError(t, pass.SetPushConstants([]byte{0, 0, 128, 63, 16, 0, 0, 0}))
	pass.SetBuffer(0, 0, storage)
	pass.SetStorageTexture(1, 0, image)
	pass.DispatchThreads(16, 16, 1)

	require.NoError(t, pass.SetShader(fill))
	assert.ErrorIs(t, pass.SetPushConstants([]byte{1, 0, 0, 0}), ErrNoPushConstants)
	require.NoError(t, pass.End())
	require.NoError(t, cmd.Finish(false))

	p := c.dev.LastSubmission().Passes[0]
	assert.Equal(t, []string{"SetPipeline", "SetBindGroup", "SetBindGroup", "SetPushConstants", "DispatchWorkgroups"}, p.Ops())
	assert.Equal(t, []byte{0, 0, 128, 63, 16, 0, 0, 0}, p.CommandsOf("SetPushConstants")[0].Data)
	assert.Equal(t, []uint32{2, 2, 1}, p.CommandsOf("DispatchWorkgroups")[0].Args)
}

func TestComputePassPushConstantsNeedDeviceSupport(t *testing.T) {
	c := newTestContext(t, devicetest.WithFeatures(device.Features{}))
	particles := c.shader(t, "particles", particlesWGSL)
	storage := c.buffer(t, "particles", 256, wgpu.BufferUsageStorage)
	image := c.texture(t, "output", 16, 16, 1, wgpu.TextureFormatRGBA8Unorm, wgpu.TextureUsageStorageBinding)

	cmd := c.session(t)
	pass := cmd.BeginComputePass()
	require.NoError(t, pass.SetShader(particles))
	assert.ErrorIs(t, pass.SetPushConstants([]byte{0, 0, 128, 63, 16, 0, 0, 0}), ErrComputePushConstantsUnsupported)
	pass.SetBuffer(0, 0, storage)
	pass.SetStorageTexture(1, 0, image)
	pass.Dispatch(1, 1, 1)
	require.NoError(t, pass.End())
	require.NoError(t, cmd.Finish(false))

	assert.Empty(t, c.dev.LastSubmission().Passes[0].CommandsOf("SetPushConstants"))
}

func TestComputePassIndirectAndViolations(t *testing.T) {
	c := newTestContext(t)
	fill := c.shader(t, "fill", fillWGSL)
	data := c.buffer(t, "data", 64, wgpu.BufferUsageStorage)
	args := c.buffer(t, "dispatch args", 12, wgpu.BufferUsageIndirect|wgpu.BufferUsageCopyDst)

	cmd := c.session(t)
	pass := cmd.BeginComputePass()
	require.NoError(t, pass.SetShader(fill))

	v := requireViolation(t, func() { pass.Dispatch(1, 1, 1) })
	assert.ErrorContains(t, v, "nothing attached")

	pass.SetBuffer(0, 0, data)
	requireViolation(t, func() { pass.DispatchIndirect(data, 0) })
	pass.DispatchIndirect(args, 0)
	require.NoError(t, pass.End())
	requireViolation(t, func() { pass.Dispatch(1, 1, 1) })
	require.NoError(t, cmd.Finish(false))

	p := c.dev.LastSubmission().Passes[0]
	indirect := p.CommandsOf("DispatchWorkgroupsIndirect")
	require.Len(t, indirect, 1)
	assert.Equal(t, "dispatch args", indirect[0].Target)
}

func TestComputePassChecksShaderAndSlots(t *testing.T) {
	c := newTestContext(t)
	fill := c.shader(t, "fill", fillWGSL)
	uniform := c.buffer(t, "uniform only", 64, wgpu.BufferUsageUniform)

	cmd := c.session(t)
	pass := cmd.BeginComputePass()

	v := requireViolation(t, func() { pass.Dispatch(0, 1, 1) })
	assert.Equal(t, "ComputePassSession.Dispatch", v.Op)
	assert.ErrorContains(t, v, "no shader")
	v = requireViolation(t, func() { pass.DispatchThreads(0, 0, 0) })
	assert.Equal(t, "ComputePassSession.DispatchThreads", v.Op)

	require.NoError(t, pass.SetShader(fill))
	v = requireViolation(t, func() { pass.SetBuffer(0, 0, uniform) })
	assert.Equal(t, "ComputePassSession.SetBuffer", v.Op)
	assert.ErrorContains(t, v, "lacks the usage")

	pass.Dispatch(0, 1, 1)
	assert.Zero(t, pass.Queued())
}

func TestCeilDiv(t *testing.T) {
	tests := []struct {
		n, d, want uint32
	}{
		{100, 64, 2},
		{64, 64, 1},
		{0, 64, 0},
		{7, 0, 7},
		{math.MaxUint32, 64, math.MaxUint32/64 + 1},
		{math.MaxUint32, 1, math.MaxUint32},
		{math.MaxUint32, math.MaxUint32, 1},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, ceilDiv(tt.n, tt.d), "ceilDiv(%d, %d)", tt.n, tt.d)
	}
}
