package cache

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	bgp "github.com/Carmen-Shannon/oxy-gpu/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device/devicetest"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counting returns a build function that counts how often it runs.
func counting(v string, builds *int) func() (string, error) {
	return func() (string, error) {
		*builds++
		return v, nil
	}
}

func TestInsertBuildsOnlyOnMiss(t *testing.T) {
	c := NewAgeCache[string, string]("test", 3)
	builds := 0

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, "one", c.Insert("a", counting("one", &builds)))
	assert.Equal(t, "one", c.Insert("a", counting("two", &builds)))
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "one", got)
	assert.Equal(t, 1, builds)

	s := c.Stats()
	assert.Equal(t, Stats{Hits: 2, Misses: 2, Len: 1}, s)
}

func TestInsertCountsHitsAndMisses(t *testing.T) {
	c := NewAgeCache[string, string]("test", 3)
	builds := 0
	for range 3 {
		c.Insert("k", counting("v", &builds))
	}
	assert.Equal(t, 1, builds)
	assert.Equal(t, Stats{Hits: 2, Misses: 1, Len: 1}, c.Stats())
}

func TestCycleEvictsPastThreshold(t *testing.T) {
	var evicted []string
	c := NewAgeCache("test", 3, WithOnEvict(func(k string, _ int) { evicted = append(evicted, k) }))
	c.Insert("idle", func() (int, error) { return 1, nil })
	c.Insert("busy", func() (int, error) { return 2, nil })

	for i := 0; i < 3; i++ {
		_, ok := c.Get("busy")
		require.True(t, ok)
		assert.Zero(t, c.Cycle())
	}
	assert.True(t, c.Contains("idle"), "age equal to the threshold is kept")

	c.Get("busy")
	assert.Equal(t, 1, c.Cycle())
	assert.False(t, c.Contains("idle"))
	assert.Equal(t, []string{"idle"}, evicted)

	for i := 0; i < 100; i++ {
		c.Get("busy")
		c.Cycle()
	}
	assert.True(t, c.Contains("busy"), "an entry touched every cycle never evicts")
	assert.EqualValues(t, 1, c.Stats().Evictions)
}

func TestContainsDoesNotTouch(t *testing.T) {
	c := NewAgeCache[string, int]("test", 1)
	c.Insert("k", func() (int, error) { return 0, nil })
	c.Cycle()
	assert.True(t, c.Contains("k"))
	c.Cycle()
	assert.False(t, c.Contains("k"))
}

func TestInsertFailureIsFatal(t *testing.T) {
	c := NewAgeCache[string, int]("test", 1)
	cause := errors.New("device lost")
	defer func() {
		r := recover()
		fe, ok := r.(*common.FatalError)
		require.True(t, ok, "panic value %v", r)
		assert.ErrorIs(t, fe, cause)
		assert.Zero(t, c.Len())
	}()
	c.Insert("k", func() (int, error) { return 0, cause })
	t.Fatal("Insert returned")
}

func TestPurge(t *testing.T) {
	released := 0
	c := NewAgeCache("test", 10, WithOnEvict(func(int, int) { released++ }))
	for i := 0; i < 5; i++ {
		c.Insert(i, func() (int, error) { return i, nil })
	}
	c.Purge()
	assert.Equal(t, 5, released)
	assert.Zero(t, c.Len())
}

const tintWGSL = `
@group(0) @binding(0) var<uniform> tint: vec4<f32>;
@vertex
fn vs(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 0.0, 1.0);
}
@fragment
fn fs() -> @location(0) vec4<f32> { return tint; }`

func TestGPUCachesReleaseOnEviction(t *testing.T) {
	dev := devicetest.NewDevice()
	s, err := shader.NewShader(dev, "tint", shader.WithSource(tintWGSL))
	require.NoError(t, err)
	defer s.Release()
	pool := resource.NewPool(dev)
	defer pool.Release()

	pipes := NewPipelineCache()
	assert.EqualValues(t, PipelineLifetimeFrames, pipes.Threshold())
	key, err := pipeline.RenderKey(s, pipeline.NewRenderState(),
		[]pipeline.TargetState{pipeline.NewTargetState(wgpu.TextureFormatRGBA8Unorm)}, wgpu.TextureFormatUndefined, 1)
	require.NoError(t, err)
	build := func() (pipeline.Pipeline, error) { return pipeline.BuildRender(dev, s, key) }
	p := pipes.Insert(key, build)
	assert.Same(t, p, pipes.Insert(key, build))
	assert.Equal(t, 1, dev.Created(devicetest.KindRenderPipeline))

	tint, err := pool.CreateBuffer(device.BufferDescriptor{Label: "tint", Size: 16, Usage: wgpu.BufferUsageUniform})
	require.NoError(t, err)
	groups := NewBindGroupCache()
	assert.EqualValues(t, BindGroupLifetimeFrames, groups.Threshold())

	// two providers with the same attachments resolve to one native bind group
	first := bgp.NewBindGroupProvider("first", bgp.WithBuffer(0, 0, tint))
	second := bgp.NewBindGroupProvider("second", bgp.WithBuffer(0, 0, tint))
	build1 := func() (bgp.BindGroups, error) { return first.Build(dev, s) }
	build2 := func() (bgp.BindGroups, error) { return second.Build(dev, s) }
	g1 := groups.Insert(first.Key(bgp.NamespaceGraphics, s.ID()), build1)
	g2 := groups.Insert(second.Key(bgp.NamespaceGraphics, s.ID()), build2)
	assert.Equal(t, g1, g2)
	assert.Equal(t, 1, dev.Created(devicetest.KindBindGroup))

	for i := 0; i <= PipelineLifetimeFrames; i++ {
		pipes.Cycle()
		groups.Cycle()
	}
	assert.Zero(t, pipes.Len())
	assert.Equal(t, 0, dev.Live(devicetest.KindRenderPipeline))
	assert.Equal(t, 1, groups.Len())

	groups.Purge()
	assert.Equal(t, 0, dev.Live(devicetest.KindBindGroup))
}
