package resource

import (
	"fmt"
	"image"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// copyRowAlignment is the required bytes-per-row alignment of texture to buffer copies.
const copyRowAlignment = 256

// Texture is a handle to a pool-owned texture and its default view. The zero Texture is invalid.
type Texture struct {
	id   ID
	pool *pool
}

func (t Texture) record() (textureRecord, bool) {
	if t.pool == nil {
		return textureRecord{}, false
	}
	return t.pool.textures.Get(t.id)
}

// ID returns the slot ID of the texture.
func (t Texture) ID() ID {
	return t.id
}

// Valid reports whether the texture is still alive.
func (t Texture) Valid() bool {
	_, ok := t.record()
	return ok
}

// Label returns the debug label, or "" for a stale handle.
func (t Texture) Label() string {
	if r, ok := t.record(); ok {
		return r.native.Label()
	}
	return ""
}

// Size returns the width and height of mip level 0, zero for a stale handle.
func (t Texture) Size() common.Extent {
	if r, ok := t.record(); ok {
		return common.Extent{Width: r.native.Width(), Height: r.native.Height()}
	}
	return common.Extent{}
}

// Format returns the texel format.
func (t Texture) Format() wgpu.TextureFormat {
	if r, ok := t.record(); ok {
		return r.native.Format()
	}
	return wgpu.TextureFormatUndefined
}

// SampleCount returns the sample count, 0 for a stale handle.
func (t Texture) SampleCount() uint32 {
	if r, ok := t.record(); ok {
		return r.native.SampleCount()
	}
	return 0
}

// MipLevelCount returns the number of mip levels, 0 for a stale handle.
func (t Texture) MipLevelCount() uint32 {
	if r, ok := t.record(); ok {
		return r.native.MipLevelCount()
	}
	return 0
}

// Usage returns the texture usage flags.
func (t Texture) Usage() wgpu.TextureUsage {
	if r, ok := t.record(); ok {
		return r.native.Usage()
	}
	return wgpu.TextureUsageNone
}

// View returns the default view, or nil for a stale handle.
func (t Texture) View() device.TextureView {
	if r, ok := t.record(); ok {
		return r.view
	}
	return nil
}

// Native returns the native texture, or nil for a stale handle.
func (t Texture) Native() device.Texture {
	if r, ok := t.record(); ok {
		return r.native
	}
	return nil
}

// Write uploads tightly packed texels into mip level 0.
//
// Parameters:
//   - data: width*height*bytesPerPixel bytes, row by row
//
// Returns:
//   - error: ErrStaleHandle, a size mismatch, or a queue error
func (t Texture) Write(data []byte) error {
	r, ok := t.record()
	if !ok {
		return ErrStaleHandle
	}
	bpp := device.BytesPerPixel(r.native.Format())
	if bpp == 0 {
		return fmt.Errorf("texture %s has a format that cannot be written", r.native.Label())
	}
	extent := common.Extent{Width: r.native.Width(), Height: r.native.Height()}
	want := int(extent.Width * extent.Height * bpp)
	if len(data) != want {
		return fmt.Errorf("texture %s (%s) expects %d bytes, got %d", r.native.Label(), extent, want, len(data))
	}
	if err := t.pool.dev.Queue().WriteTexture(r.native, 0, data, extent.Width*bpp, extent); err != nil {
		return fmt.Errorf("failed to write texture %s: %w", r.native.Label(), err)
	}
	return nil
}

// Read copies mip level 0 back to the CPU as tightly packed rows. The texture needs CopySrc usage and a
// sample count of 1. Read blocks until the data is available.
//
// Returns:
//   - []byte: width*height*bytesPerPixel bytes, row by row
//   - error: ErrStaleHandle, a usage or format error, or a device error
func (t Texture) Read() ([]byte, error) {
	r, ok := t.record()
	if !ok {
		return nil, ErrStaleHandle
	}
	tex := r.native
	if tex.Usage()&wgpu.TextureUsageCopySrc == 0 {
		return nil, fmt.Errorf("texture %s needs CopySrc usage to be read", tex.Label())
	}
	if tex.SampleCount() != 1 {
		return nil, fmt.Errorf("multisampled texture %s cannot be read", tex.Label())
	}
	bpp := device.BytesPerPixel(tex.Format())
	if bpp == 0 {
		return nil, fmt.Errorf("texture %s has a format that cannot be read", tex.Label())
	}

	extent := common.Extent{Width: tex.Width(), Height: tex.Height()}
	row := extent.Width * bpp
	padded := uint32(common.AlignUp(uint64(row), copyRowAlignment))
	size := uint64(padded) * uint64(extent.Height)

	staging, err := t.pool.dev.CreateBuffer(device.BufferDescriptor{
		Label: tex.Label() + " Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readback buffer: %w", err)
	}
	defer staging.Release()

	err = t.pool.submitCopy(tex.Label()+" Readback", func(enc device.CommandEncoder) error {
		return enc.CopyTextureToBuffer(tex, staging, padded, extent)
	})
	if err != nil {
		return nil, err
	}
	raw, err := t.pool.dev.ReadBuffer(staging, 0, size)
	if err != nil {
		return nil, err
	}

	out := make([]byte, int(row)*int(extent.Height))
	for y := uint32(0); y < extent.Height; y++ {
		copy(out[y*row:(y+1)*row], raw[y*padded:])
	}
	return out, nil
}

// Image reads the texture back as an RGBA image. BGRA formats are swizzled.
//
// Returns:
//   - *image.RGBA: the texture contents
//   - error: if the format is not an 8-bit RGBA or BGRA format, or the read fails
func (t Texture) Image() (*image.RGBA, error) {
	format := t.Format()
	var swizzle bool
	switch format {
	case wgpu.TextureFormatRGBA8Unorm, wgpu.TextureFormatRGBA8UnormSrgb:
	case wgpu.TextureFormatBGRA8Unorm, wgpu.TextureFormatBGRA8UnormSrgb:
		swizzle = true
	default:
		if !t.Valid() {
			return nil, ErrStaleHandle
		}
		return nil, fmt.Errorf("texture %s format %d cannot be converted to an image", t.Label(), format)
	}

	data, err := t.Read()
	if err != nil {
		return nil, err
	}
	size := t.Size()
	img := image.NewRGBA(image.Rect(0, 0, int(size.Width), int(size.Height)))
	copy(img.Pix, data)
	if swizzle {
		for i := 0; i+3 < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		}
	}
	return img, nil
}

// Release frees the texture and its view. Releasing a stale handle is a no-op.
func (t Texture) Release() {
	if t.pool == nil {
		return
	}
	if r, ok := t.pool.textures.Remove(t.id); ok {
		r.view.Release()
		r.native.Release()
	}
}
