package shader

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device/devicetest"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindGroupLayoutVisibility(t *testing.T) {
	tests := []struct {
		name   string
		kind   BindingKind
		stages wgpu.ShaderStage
		want   wgpu.ShaderStage
	}{
		{"uniform", BindingKind{Type: BindingUniformBuffer, Size: 16}, wgpu.ShaderStageFragment,
			wgpu.ShaderStageVertex | wgpu.ShaderStageFragment | wgpu.ShaderStageCompute},
		{"writable storage", BindingKind{Type: BindingStorageBuffer, Size: 16, Access: AccessRead | AccessWrite}, wgpu.ShaderStageCompute,
			wgpu.ShaderStageFragment | wgpu.ShaderStageCompute},
		{"texture from compute", BindingKind{Type: BindingTexture, SampleType: wgpu.TextureSampleTypeFloat}, wgpu.ShaderStageCompute,
			wgpu.ShaderStageVertex | wgpu.ShaderStageFragment | wgpu.ShaderStageCompute},
		{"sampler", BindingKind{Type: BindingSampler}, wgpu.ShaderStageFragment,
			wgpu.ShaderStageVertex | wgpu.ShaderStageFragment},
		{"storage texture in fragment", BindingKind{Type: BindingStorageTexture, Access: AccessWrite}, wgpu.ShaderStageFragment,
			wgpu.ShaderStageCompute | wgpu.ShaderStageFragment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := layoutEntry(ShaderBindingInfo{Kind: tt.kind, Stages: tt.stages})
			require.NoError(t, err)
			assert.Equal(t, tt.want, entry.Visibility)
		})
	}
}

func TestLayoutEntryTypes(t *testing.T) {
	entry, err := layoutEntry(ShaderBindingInfo{Kind: BindingKind{Type: BindingStorageBuffer, Size: DynamicSize, Access: AccessRead}})
	require.NoError(t, err)
	assert.Equal(t, wgpu.BufferBindingTypeReadOnlyStorage, entry.Buffer.Type)
	assert.Zero(t, entry.Buffer.MinBindingSize)

	entry, err = layoutEntry(ShaderBindingInfo{Kind: BindingKind{Type: BindingSampler, Comparison: true}})
	require.NoError(t, err)
	assert.Equal(t, wgpu.SamplerBindingTypeComparison, entry.Sampler.Type)

	entry, err = layoutEntry(ShaderBindingInfo{Kind: BindingKind{Type: BindingTexture, Multisampled: true, SampleType: wgpu.TextureSampleTypeFloat}})
	require.NoError(t, err)
	assert.Equal(t, wgpu.TextureSampleTypeUnfilterableFloat, entry.Texture.SampleType)

	entry, err = layoutEntry(ShaderBindingInfo{Kind: BindingKind{Type: BindingStorageTexture, Access: AccessRead | AccessWrite, StorageFormat: wgpu.TextureFormatRGBA8Unorm}})
	require.NoError(t, err)
	assert.Equal(t, wgpu.StorageTextureAccessReadWrite, entry.StorageTexture.Access)

	_, err = layoutEntry(ShaderBindingInfo{Kind: BindingKind{Type: BindingUnknown}})
	assert.Error(t, err)
}

func TestBuildBindGroupLayouts(t *testing.T) {
	dev := devicetest.NewDevice()
	r, err := Reflect(triangleWGSL)
	require.NoError(t, err)

	layouts, err := BuildBindGroupLayouts(dev, r)
	require.NoError(t, err)
	require.Len(t, layouts, 2)
	assert.Equal(t, "BindGroupLayout for group 1, binding: 0, 1", layouts[1].Native.Label())
	assert.EqualValues(t, 0, layouts[1].Entries[0].Binding)
	assert.EqualValues(t, 1, layouts[1].Entries[1].Binding)

	native := layouts[0].Native.(*devicetest.BindGroupLayout)
	assert.Equal(t, layouts[0].Entries, native.Entries)
}

func TestBuildBindGroupLayoutsSkipsPushConstants(t *testing.T) {
	r, err := Reflect(particlesWGSL)
	require.NoError(t, err)
	descs, err := bindGroupLayoutDescriptors(r)
	require.NoError(t, err)
	assert.Len(t, descs, 2)
}

func TestBuildBindGroupLayoutsConflicts(t *testing.T) {
	a := ShaderReflect{Kind: ReflectVertex, Bindings: []ShaderBindingInfo{
		{Group: 0, Binding: 0, Name: "a", Kind: BindingKind{Type: BindingUniformBuffer, Size: 16}, Stages: wgpu.ShaderStageVertex},
	}}
	b := ShaderReflect{Kind: ReflectFragment, Bindings: []ShaderBindingInfo{
		{Group: 0, Binding: 0, Name: "b", Kind: BindingKind{Type: BindingSampler}, Stages: wgpu.ShaderStageFragment},
	}}
	_, err := BuildBindGroupLayouts(devicetest.NewDevice(), a, b)
	assert.Error(t, err)
}

func TestBuildBindGroupLayoutsDeviceFailure(t *testing.T) {
	dev := devicetest.NewDevice()
	r, err := Reflect(triangleWGSL)
	require.NoError(t, err)

	dev.FailNext(devicetest.KindBindGroupLayout, errors.New("boom"))
	_, err = BuildBindGroupLayouts(dev, r)
	require.Error(t, err)
	assert.Equal(t, 0, dev.Live(devicetest.KindBindGroupLayout))

	layouts, err := BuildBindGroupLayouts(dev, r)
	require.NoError(t, err)
	assert.Equal(t, 2, dev.Live(devicetest.KindBindGroupLayout))
	for _, l := range layouts {
		l.Release()
	}
	assert.Equal(t, 0, dev.Live(devicetest.KindBindGroupLayout))
}
