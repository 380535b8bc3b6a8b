package resource

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device/devicetest"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaGenerations(t *testing.T) {
	a := NewArena[string]()
	first := a.Insert("first")
	assert.False(t, first.IsZero())
	assert.True(t, ID{}.IsZero())

	v, ok := a.Get(first)
	require.True(t, ok)
	assert.Equal(t, "first", v)

	_, ok = a.Remove(first)
	require.True(t, ok)
	_, ok = a.Remove(first)
	assert.False(t, ok, "double remove")

	second := a.Insert("second")
	assert.Equal(t, first.Index, second.Index, "slot is reused")
	assert.NotEqual(t, first.Generation, second.Generation)

	_, ok = a.Get(first)
	assert.False(t, ok, "stale id does not alias the new value")
	_, ok = a.Get(ID{Index: 42, Generation: 1})
	assert.False(t, ok)
	assert.Equal(t, 1, a.Len())
}

func TestArenaDrain(t *testing.T) {
	a := NewArena[int]()
	ids := []ID{a.Insert(1), a.Insert(2), a.Insert(3)}
	a.Remove(ids[1])

	var drained []int
	a.Drain(func(_ ID, v int) { drained = append(drained, v) })
	assert.Equal(t, []int{1, 3}, drained)
	assert.Equal(t, 0, a.Len())
	for _, id := range ids {
		_, ok := a.Get(id)
		assert.False(t, ok)
	}
}

func TestBufferWriteRead(t *testing.T) {
	dev := devicetest.NewDevice()
	p := NewPool(dev)

	buf, err := p.CreateBufferInit("data", []byte{1, 2, 3, 4, 5}, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	require.NoError(t, err)
	assert.EqualValues(t, 8, buf.Size(), "rounded up to 4 bytes")
	assert.NotZero(t, buf.Usage()&wgpu.BufferUsageCopyDst)
	assert.Equal(t, "data", buf.Label())

	got, err := buf.Read(0, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 0, 0, 0}, got)
	assert.Equal(t, 1, dev.Live(devicetest.KindBuffer), "staging buffer released")

	require.NoError(t, buf.Write(4, []byte{9, 9, 9, 9}))
	got, err = buf.Read(4, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9, 9}, got)

	assert.Error(t, buf.Write(6, []byte{1, 2, 3, 4}), "overflow")
	_, err = buf.Read(1, 4)
	assert.Error(t, err, "unaligned")
}

func TestBufferReadNeedsUsage(t *testing.T) {
	p := NewPool(devicetest.NewDevice())
	buf, err := p.CreateBuffer(device.BufferDescriptor{Label: "uniform", Size: 16, Usage: wgpu.BufferUsageUniform})
	require.NoError(t, err)
	_, err = buf.Read(0, 16)
	assert.Error(t, err)

	mappable, err := p.CreateBuffer(device.BufferDescriptor{Label: "mappable", Size: 16, Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst})
	require.NoError(t, err)
	got, err := mappable.Read(0, 16)
	require.NoError(t, err)
	assert.Len(t, got, 16)
}

func TestStaleHandles(t *testing.T) {
	dev := devicetest.NewDevice()
	p := NewPool(dev)
	buf, err := p.CreateBuffer(device.BufferDescriptor{Label: "b", Size: 4, Usage: wgpu.BufferUsageUniform})
	require.NoError(t, err)

	buf.Release()
	buf.Release()
	assert.False(t, buf.Valid())
	assert.Nil(t, buf.Native())
	assert.Zero(t, buf.Size())
	assert.ErrorIs(t, buf.Write(0, []byte{1, 2, 3, 4}), ErrStaleHandle)
	_, err = buf.Read(0, 4)
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.Equal(t, 0, dev.Live(devicetest.KindBuffer))

	var zero Buffer
	assert.False(t, zero.Valid())
	zero.Release()

	var tex Texture
	assert.False(t, tex.Valid())
	_, err = tex.Image()
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestTextureWriteReadImage(t *testing.T) {
	dev := devicetest.NewDevice()
	p := NewPool(dev)
	tex, err := p.CreateTexture(device.TextureDescriptor{
		Label:     "pixels",
		Width:     2,
		Height:    2,
		Dimension: wgpu.TextureDimension2D,
		Format:    wgpu.TextureFormatBGRA8Unorm,
		Usage:     wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst | wgpu.TextureUsageTextureBinding,
	})
	require.NoError(t, err)
	assert.Equal(t, common.Extent{Width: 2, Height: 2}, tex.Size())
	assert.EqualValues(t, 1, tex.SampleCount())
	assert.EqualValues(t, 1, tex.MipLevelCount())
	assert.NotNil(t, tex.View())

	pixels := []byte{
		0, 0, 255, 255, 0, 255, 0, 255,
		255, 0, 0, 255, 10, 20, 30, 40,
	}
	require.NoError(t, tex.Write(pixels))
	assert.Error(t, tex.Write(pixels[:4]))

	got, err := tex.Read()
	require.NoError(t, err)
	assert.Equal(t, pixels, got)

	img, err := tex.Image()
	require.NoError(t, err)
	r, g, b, a := img.At(0, 0).RGBA()
	assert.Equal(t, [4]uint32{0xffff, 0, 0, 0xffff}, [4]uint32{r, g, b, a}, "BGRA red becomes RGBA red")
	assert.Equal(t, []byte{30, 20, 10, 40}, img.Pix[12:16])

	tex.Release()
	assert.Equal(t, 0, dev.Live(devicetest.KindTexture))
	assert.Equal(t, 0, dev.Live(devicetest.KindTextureView))
}

func TestCreateTextureValidation(t *testing.T) {
	dev := devicetest.NewDevice()
	p := NewPool(dev)
	_, err := p.CreateTexture(device.TextureDescriptor{Label: "empty", Format: wgpu.TextureFormatRGBA8Unorm})
	assert.Error(t, err)

	dev.FailNext(devicetest.KindTextureView, errors.New("no view"))
	_, err = p.CreateTexture(device.TextureDescriptor{Label: "t", Width: 1, Height: 1, Format: wgpu.TextureFormatRGBA8Unorm})
	require.Error(t, err)
	assert.Equal(t, 0, dev.Live(devicetest.KindTexture))

	msaa, err := p.CreateTexture(device.TextureDescriptor{
		Label: "msaa", Width: 4, Height: 4, SampleCount: 4,
		Format: wgpu.TextureFormatRGBA8Unorm, Usage: wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc,
	})
	require.NoError(t, err)
	_, err = msaa.Read()
	assert.Error(t, err)
}

func TestPoolRelease(t *testing.T) {
	dev := devicetest.NewDevice()
	p := NewPool(dev)
	buf, err := p.CreateBuffer(device.BufferDescriptor{Label: "b", Size: 4, Usage: wgpu.BufferUsageUniform})
	require.NoError(t, err)
	tex, err := p.CreateTexture(device.TextureDescriptor{Label: "t", Width: 1, Height: 1, Format: wgpu.TextureFormatRGBA8Unorm})
	require.NoError(t, err)
	smp, err := p.CreateSampler(device.SamplerDescriptor{Label: "s"})
	require.NoError(t, err)
	assert.True(t, smp.Valid())

	b, tx, s := p.Counts()
	assert.Equal(t, [3]int{1, 1, 1}, [3]int{b, tx, s})

	p.Release()
	assert.False(t, buf.Valid())
	assert.False(t, tex.Valid())
	assert.False(t, smp.Valid())
	assert.Equal(t, 0, dev.Live(devicetest.KindBuffer))
	assert.Equal(t, 0, dev.Live(devicetest.KindTexture))
	assert.Equal(t, 0, dev.Live(devicetest.KindSampler))
}
