package bind_group_provider

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device/devicetest"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const materialWGSL = `
@group(0) @binding(0) var<uniform> tint: vec4<f32>;
@group(1) @binding(1) var smp: sampler;
@group(1) @binding(0) var tex: texture_2d<f32>;
@group(3) @binding(0) var<storage, read> weights: array<f32>;

@vertex
fn vs(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 0.0, 1.0);
}

@fragment
fn fs() -> @location(0) vec4<f32> {
    return tint * textureSample(tex, smp, vec2<f32>(0.5)) * weights[0];
}`

type fixture struct {
	dev     *devicetest.Device
	pool    resource.Pool
	shader  shader.Shader
	tint    resource.Buffer
	weights resource.Buffer
	tex     resource.Texture
	smp     resource.Sampler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := devicetest.NewDevice()
	s, err := shader.NewShader(dev, "material", shader.WithSource(materialWGSL))
	require.NoError(t, err)
	t.Cleanup(s.Release)

	f := &fixture{dev: dev, pool: resource.NewPool(dev), shader: s}
	t.Cleanup(f.pool.Release)
	f.tint, err = f.pool.CreateBuffer(device.BufferDescriptor{Label: "tint", Size: 16, Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst})
	require.NoError(t, err)
	f.weights, err = f.pool.CreateBuffer(device.BufferDescriptor{Label: "weights", Size: 64, Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst})
	require.NoError(t, err)
	f.tex, err = f.pool.CreateTexture(device.TextureDescriptor{
		Label: "albedo", Width: 2, Height: 2, Dimension: wgpu.TextureDimension2D,
		Format: wgpu.TextureFormatRGBA8Unorm, Usage: wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	require.NoError(t, err)
	f.smp, err = f.pool.CreateSampler(device.SamplerDescriptor{Label: "linear"})
	require.NoError(t, err)
	return f
}

func (f *fixture) provider() BindGroupProvider {
	return NewBindGroupProvider("mat",
		WithBuffer(0, 0, f.tint),
		WithTexture(1, 0, 1, f.tex, f.smp),
		WithBuffers(3, map[uint32]resource.Buffer{0: f.weights}),
	)
}

func TestBuild(t *testing.T) {
	f := newFixture(t)
	p := f.provider()
	require.NoError(t, p.Validate(f.shader))

	groups, err := p.Build(f.dev, f.shader)
	require.NoError(t, err)
	require.Len(t, groups, 4)
	for i, g := range groups {
		assert.EqualValues(t, i, g.Group)
	}

	g0 := groups[0].BindGroup.(*devicetest.BindGroup)
	require.Len(t, g0.Entries, 1)
	assert.Equal(t, f.tint.Native(), g0.Entries[0].Buffer)
	assert.EqualValues(t, 16, g0.Entries[0].Size)

	g1 := groups[1].BindGroup.(*devicetest.BindGroup)
	assert.Equal(t, "mat group 1, binding: 0, 1", g1.Label())
	require.Len(t, g1.Entries, 2)
	assert.Equal(t, f.tex.View(), g1.Entries[0].TextureView)
	assert.Equal(t, f.smp.Native(), g1.Entries[1].Sampler)

	assert.Empty(t, groups[2].BindGroup.(*devicetest.BindGroup).Entries, "skipped group gets an empty bind group")

	assert.Equal(t, 4, f.dev.Live(devicetest.KindBindGroup))
	groups.Release()
	assert.Equal(t, 0, f.dev.Live(devicetest.KindBindGroup))
}

func TestBuildReleasesOnFailure(t *testing.T) {
	f := newFixture(t)
	p := f.provider()
	f.dev.FailNext(devicetest.KindBindGroup, errors.New("out of memory"))
	_, err := p.Build(f.dev, f.shader)
	require.Error(t, err)
	assert.Equal(t, 0, f.dev.Live(devicetest.KindBindGroup))

	p.Remove(0, 0)
	_, err = p.Build(f.dev, f.shader)
	assert.Error(t, err, "validation runs before any native creation")
	assert.Equal(t, 0, f.dev.Created(devicetest.KindBindGroup))
}

func TestKey(t *testing.T) {
	f := newFixture(t)
	layouts := f.shader.ID()

	a := f.provider()
	b := NewBindGroupProvider("other")
	b.SetSampler(1, 1, f.smp)
	b.SetBuffer(3, 0, f.weights)
	b.SetTexture(1, 0, f.tex)
	b.SetBuffer(0, 0, f.tint)
	assert.Equal(t, a.Key(NamespaceGraphics, layouts), b.Key(NamespaceGraphics, layouts), "insertion order and label do not matter")
	assert.NotEqual(t, a.Key(NamespaceGraphics, layouts), a.Key(NamespaceCompute, layouts))
	assert.NotEqual(t, a.Key(NamespaceGraphics, layouts), a.Key(NamespaceGraphics, uuid.New()))

	before := b.Key(NamespaceGraphics, layouts)
	b.SetBufferRange(3, 0, f.weights, 16, 32)
	assert.NotEqual(t, before, b.Key(NamespaceGraphics, layouts))

	// a recycled slot gets a new generation
	f.tint.Release()
	again, err := f.pool.CreateBuffer(device.BufferDescriptor{Label: "tint", Size: 16, Usage: wgpu.BufferUsageUniform})
	require.NoError(t, err)
	require.Equal(t, f.tint.ID().Index, again.ID().Index)
	before = a.Key(NamespaceGraphics, layouts)
	a.SetBuffer(0, 0, again)
	assert.NotEqual(t, before, a.Key(NamespaceGraphics, layouts))
}

func TestSetZeroHandleRemoves(t *testing.T) {
	f := newFixture(t)
	p := f.provider()
	require.Len(t, p.Slots(), 4)

	p.SetBuffer(0, 0, resource.Buffer{})
	_, ok := p.Attachment(0, 0)
	assert.False(t, ok)
	assert.Equal(t, []Slot{{1, 0}, {1, 1}, {3, 0}}, p.Slots())

	p.Reset()
	assert.Empty(t, p.Slots())
	assert.Empty(t, p.Key(NamespaceGraphics, f.shader.ID()).Entries)
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	small, err := f.pool.CreateBuffer(device.BufferDescriptor{Label: "small", Size: 8, Usage: wgpu.BufferUsageUniform})
	require.NoError(t, err)
	vertexOnly, err := f.pool.CreateBuffer(device.BufferDescriptor{Label: "vbo", Size: 64, Usage: wgpu.BufferUsageVertex})
	require.NoError(t, err)
	stale, err := f.pool.CreateBuffer(device.BufferDescriptor{Label: "stale", Size: 16, Usage: wgpu.BufferUsageUniform})
	require.NoError(t, err)
	stale.Release()

	tests := []struct {
		name   string
		mutate func(p BindGroupProvider)
		want   string
	}{
		{"missing binding", func(p BindGroupProvider) { p.Remove(1, 1) }, `"smp"`},
		{"unknown slot", func(p BindGroupProvider) { p.SetSampler(2, 0, f.smp) }, "declares no binding"},
		{"wrong kind", func(p BindGroupProvider) { p.SetSampler(0, 0, f.smp) }, "expects a"},
		{"too small", func(p BindGroupProvider) { p.SetBuffer(0, 0, small) }, "needs 16 bytes"},
		{"range overflow", func(p BindGroupProvider) { p.SetBufferRange(3, 0, f.weights, 32, 64) }, "exceeds"},
		{"missing usage", func(p BindGroupProvider) { p.SetBuffer(3, 0, vertexOnly) }, "lacks the usage"},
		{"stale", func(p BindGroupProvider) {
			p.SetBuffer(0, 0, stale)
		}, resource.ErrStaleHandle.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := f.provider()
			tt.mutate(p)
			err := p.Validate(f.shader)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("stale unwraps", func(t *testing.T) {
		p := f.provider()
		p.SetBuffer(0, 0, stale)
		assert.ErrorIs(t, p.Validate(f.shader), resource.ErrStaleHandle)
	})
}

func TestValidateSlot(t *testing.T) {
	f := newFixture(t)
	p := f.provider()
	assert.NoError(t, p.ValidateSlot(f.shader, 0, 0))

	p.SetSampler(0, 0, f.smp)
	assert.ErrorContains(t, p.ValidateSlot(f.shader, 0, 0), "expects a")
	assert.NoError(t, p.ValidateSlot(f.shader, 1, 0), "only the named slot is checked")

	p.Remove(1, 1)
	assert.NoError(t, p.ValidateSlot(f.shader, 1, 1), "empty slots are left to Validate")
	p.SetSampler(2, 0, f.smp)
	assert.NoError(t, p.ValidateSlot(f.shader, 2, 0), "undeclared slots are left to Validate")
}

func TestBufferWrites(t *testing.T) {
	f := newFixture(t)
	p := f.provider()

	w, err := BufferWriteFor(p, 0, 0, 4, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, f.tint, w.Buffer)
	assert.EqualValues(t, 4, w.Offset)

	_, err = BufferWriteFor(p, 1, 1, 0, nil)
	assert.Error(t, err, "samplers are not writable")

	err = ApplyWrites(w, BufferWrite{Buffer: f.tint, Offset: 12, Data: make([]byte, 8)})
	require.Error(t, err, "the overflowing write fails")
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4}, f.tint.Native().(*devicetest.Buffer).Data[:8], "the valid write still lands")
}
