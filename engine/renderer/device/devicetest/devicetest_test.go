package devicetest

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopiesApplyOnSubmit(t *testing.T) {
	d := NewDevice()
	src, err := d.CreateBuffer(device.BufferDescriptor{Label: "src", Size: 8, Usage: wgpu.BufferUsageCopySrc})
	require.NoError(t, err)
	dst, err := d.CreateBuffer(device.BufferDescriptor{Label: "dst", Size: 8, Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead})
	require.NoError(t, err)
	require.NoError(t, d.Queue().WriteBuffer(src, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	enc, err := d.CreateCommandEncoder("copy")
	require.NoError(t, err)
	require.NoError(t, enc.CopyBufferToBuffer(src, 0, dst, 0, 8))

	out, err := d.ReadBuffer(dst, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), out, "copy must not apply before submit")

	cb, err := enc.Finish()
	require.NoError(t, err)
	d.Queue().Submit(cb)

	out, err = d.ReadBuffer(dst, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, out)
	assert.Len(t, d.Submissions(), 1)
}

func TestRecordsPassCommands(t *testing.T) {
	d := NewDevice()
	enc, err := d.CreateCommandEncoder("frame")
	require.NoError(t, err)
	pipe, err := d.CreateRenderPipeline(device.RenderPipelineDescriptor{Label: "tri"})
	require.NoError(t, err)

	pass := enc.BeginRenderPass(device.RenderPassDescriptor{Label: "main"})
	pass.SetPipeline(pipe)
	pass.SetViewport(common.Viewport{Width: 4, Height: 4})
	pass.Draw(3, 1, 0, 0)
	require.NoError(t, pass.End())
	assert.Panics(t, func() { pass.Draw(3, 1, 0, 0) })

	cb, err := enc.Finish()
	require.NoError(t, err)
	d.Queue().Submit(cb)

	sub := d.LastSubmission()
	require.Len(t, sub.Passes, 1)
	assert.Equal(t, []string{"SetPipeline", "SetViewport", "Draw"}, sub.Passes[0].Ops())
	assert.Equal(t, "tri", sub.Passes[0].Commands[0].Target)
}

func TestSerialsTellApartSameLabel(t *testing.T) {
	d := NewDevice()
	a, err := d.CreateRenderPipeline(device.RenderPipelineDescriptor{Label: "quad"})
	require.NoError(t, err)
	b, err := d.CreateRenderPipeline(device.RenderPipelineDescriptor{Label: "quad"})
	require.NoError(t, err)
	assert.NotEqual(t, a.(*RenderPipeline).Serial(), b.(*RenderPipeline).Serial())

	enc, err := d.CreateCommandEncoder("frame")
	require.NoError(t, err)
	pass := enc.BeginRenderPass(device.RenderPassDescriptor{Label: "main"})
	pass.SetPipeline(b)
	pass.SetPipeline(a)
	require.NoError(t, pass.End())
	cb, err := enc.Finish()
	require.NoError(t, err)
	d.Queue().Submit(cb)

	set := d.LastSubmission().Passes[0].CommandsOf("SetPipeline")
	assert.Equal(t, []int{b.(*RenderPipeline).Serial(), a.(*RenderPipeline).Serial()}, []int{set[0].Serial, set[1].Serial})
}

func TestFailNextAndCounts(t *testing.T) {
	d := NewDevice()
	boom := errors.New("boom")
	d.FailNext(KindSampler, boom)
	_, err := d.CreateSampler(device.SamplerDescriptor{})
	assert.ErrorIs(t, err, boom)

	s, err := d.CreateSampler(device.SamplerDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Created(KindSampler))
	s.Release()
	s.Release()
	assert.Equal(t, 1, d.Released(KindSampler))
	assert.Equal(t, 0, d.Live(KindSampler))
}

func TestSurfaceAcquire(t *testing.T) {
	d := NewDevice(WithSurface(wgpu.TextureFormatBGRA8Unorm))
	s := d.Surface()
	_, err := s.Acquire()
	assert.ErrorIs(t, err, device.ErrSurfaceConfigNeeded)

	require.NoError(t, s.Configure(device.SurfaceConfig{Width: 2, Height: 2}))
	st, err := s.Acquire()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), st.Texture.Width())
	assert.Equal(t, wgpu.TextureFormatBGRA8Unorm, st.Texture.Format())

	d.FakeSurface().FailAcquire(device.ErrDeviceLost)
	_, err = s.Acquire()
	assert.ErrorIs(t, err, device.ErrDeviceLost)
}
