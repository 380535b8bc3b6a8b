package command

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/cache"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device/devicetest"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/require"
)

const quadWGSL = `
struct Params {
    offset: vec4<f32>,
}

var<push_constant> params: Params;

@group(0) @binding(0) var<uniform> tint: vec4<f32>;

@vertex
fn vs(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 0.0, 1.0) + params.offset;
}

@fragment
fn fs() -> @location(0) vec4<f32> {
    return tint;
}`

const fullscreenWGSL = `
@vertex
fn vs(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(f32(idx), 0.0, 0.0, 1.0);
}

@fragment
fn fs() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0);
}`

const fillWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn fill(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = id.x;
}`

// testContext is the Context sessions are created against in tests.
type testContext struct {
	dev        *devicetest.Device
	pool       resource.Pool
	pipelines  cache.PipelineCache
	bindGroups cache.BindGroupCache
}

func (c *testContext) Device() device.Device                { return c.dev }
func (c *testContext) PipelineCache() cache.PipelineCache   { return c.pipelines }
func (c *testContext) BindGroupCache() cache.BindGroupCache { return c.bindGroups }

func newTestContext(t *testing.T, opts ...devicetest.Option) *testContext {
	t.Helper()
	dev := devicetest.NewDevice(opts...)
	c := &testContext{
		dev:        dev,
		pool:       resource.NewPool(dev),
		pipelines:  cache.NewPipelineCache(),
		bindGroups: cache.NewBindGroupCache(),
	}
	t.Cleanup(func() {
		c.bindGroups.Purge()
		c.pipelines.Purge()
		c.pool.Release()
	})
	return c
}

func (c *testContext) shader(t *testing.T, key, src string) shader.Shader {
	t.Helper()
	s, err := shader.NewShader(c.dev, key, shader.WithSource(src))
	require.NoError(t, err)
	t.Cleanup(s.Release)
	return s
}

func (c *testContext) buffer(t *testing.T, label string, size uint64, usage wgpu.BufferUsage) resource.Buffer {
	t.Helper()
	b, err := c.pool.CreateBuffer(device.BufferDescriptor{Label: label, Size: size, Usage: usage})
	require.NoError(t, err)
	return b
}

func (c *testContext) texture(t *testing.T, label string, w, h, samples uint32, format wgpu.TextureFormat, usage wgpu.TextureUsage) resource.Texture {
	t.Helper()
	tex, err := c.pool.CreateTexture(device.TextureDescriptor{
		Label:       label,
		Width:       w,
		Height:      h,
		SampleCount: samples,
		Dimension:   wgpu.TextureDimension2D,
		Format:      format,
		Usage:       usage,
	})
	require.NoError(t, err)
	return tex
}

func (c *testContext) target(t *testing.T, w, h uint32) resource.Texture {
	t.Helper()
	return c.texture(t, "target", w, h, 1, wgpu.TextureFormatRGBA8Unorm, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageCopySrc)
}

func (c *testContext) session(t *testing.T, opts ...CommandSessionOption) CommandSession {
	t.Helper()
	cmd, err := NewCommandSession(c, opts...)
	require.NoError(t, err)
	t.Cleanup(cmd.Cancel)
	return cmd
}

// requireViolation runs fn and returns the *ContractError it panics with.
func requireViolation(t *testing.T, fn func()) (got *ContractError) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a contract violation")
		err, ok := r.(*ContractError)
		require.Truef(t, ok, "panic value %v is not a *ContractError", r)
		got = err
	}()
	fn()
	return nil
}
