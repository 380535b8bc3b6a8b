// Package resource owns the buffers, textures and samplers of one renderer. Callers hold small
// generation-tagged handles; a handle whose resource was released stops resolving rather than
// pointing at whatever reused its slot.
package resource

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrStaleHandle is returned when a handle's resource has been released.
var ErrStaleHandle = errors.New("resource handle is stale")

type bufferRecord struct {
	native device.Buffer
}

type textureRecord struct {
	native device.Texture
	view   device.TextureView
}

type samplerRecord struct {
	native device.Sampler
}

// pool is the implementation of the Pool interface.
type pool struct {
	dev      device.Device
	buffers  *Arena[bufferRecord]
	textures *Arena[textureRecord]
	samplers *Arena[samplerRecord]
}

// Pool creates and owns every buffer, texture and sampler of one renderer.
type Pool interface {
	// CreateBuffer creates an uninitialized buffer.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - Buffer: the handle of the new buffer
	//   - error: if the device fails to create the buffer
	CreateBuffer(desc device.BufferDescriptor) (Buffer, error)

	// CreateBufferInit creates a buffer sized for data, rounded up to 4 bytes, and uploads data into it.
	// CopyDst is added to usage.
	//
	// Parameters:
	//   - label: the debug label
	//   - data: the initial contents
	//   - usage: the buffer usage
	//
	// Returns:
	//   - Buffer: the handle of the new buffer
	//   - error: if the device fails to create or write the buffer
	CreateBufferInit(label string, data []byte, usage wgpu.BufferUsage) (Buffer, error)

	// CreateTexture creates a texture and its default view.
	//
	// Parameters:
	//   - desc: the texture descriptor; zero counts default to 1
	//
	// Returns:
	//   - Texture: the handle of the new texture
	//   - error: if the descriptor has a zero size or the device fails
	CreateTexture(desc device.TextureDescriptor) (Texture, error)

	// CreateSampler creates a sampler.
	CreateSampler(desc device.SamplerDescriptor) (Sampler, error)

	// Counts returns the number of live buffers, textures and samplers.
	Counts() (buffers, textures, samplers int)

	// Release frees every resource still alive. Handles issued before become stale.
	Release()
}

var _ Pool = &pool{}

// NewPool creates an empty Pool on dev.
func NewPool(dev device.Device) Pool {
	return &pool{
		dev:      dev,
		buffers:  NewArena[bufferRecord](),
		textures: NewArena[textureRecord](),
		samplers: NewArena[samplerRecord](),
	}
}

func (p *pool) CreateBuffer(desc device.BufferDescriptor) (Buffer, error) {
	native, err := p.dev.CreateBuffer(desc)
	if err != nil {
		return Buffer{}, fmt.Errorf("failed to create buffer %q: %w", desc.Label, err)
	}
	id := p.buffers.Insert(bufferRecord{native: native})
	common.LogDebug("created buffer %s (%d bytes) as %s", native.Label(), desc.Size, id)
	return Buffer{id: id, pool: p}, nil
}

func (p *pool) CreateBufferInit(label string, data []byte, usage wgpu.BufferUsage) (Buffer, error) {
	size := common.AlignUp(uint64(len(data)), 4)
	b, err := p.CreateBuffer(device.BufferDescriptor{Label: label, Size: max(size, 4), Usage: usage | wgpu.BufferUsageCopyDst})
	if err != nil {
		return Buffer{}, err
	}
	if len(data) == 0 {
		return b, nil
	}
	padded := data
	if uint64(len(data)) != size {
		padded = make([]byte, size)
		copy(padded, data)
	}
	if err := b.Write(0, padded); err != nil {
		b.Release()
		return Buffer{}, err
	}
	return b, nil
}

func (p *pool) CreateTexture(desc device.TextureDescriptor) (Texture, error) {
	desc = desc.Normalized()
	if desc.Width == 0 || desc.Height == 0 {
		return Texture{}, fmt.Errorf("texture %q has zero size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	native, err := p.dev.CreateTexture(desc)
	if err != nil {
		return Texture{}, fmt.Errorf("failed to create texture %q: %w", desc.Label, err)
	}
	view, err := native.CreateView()
	if err != nil {
		native.Release()
		return Texture{}, fmt.Errorf("failed to create view of texture %q: %w", desc.Label, err)
	}
	id := p.textures.Insert(textureRecord{native: native, view: view})
	common.LogDebug("created texture %s (%dx%d, %d samples) as %s", native.Label(), desc.Width, desc.Height, desc.SampleCount, id)
	return Texture{id: id, pool: p}, nil
}

func (p *pool) CreateSampler(desc device.SamplerDescriptor) (Sampler, error) {
	native, err := p.dev.CreateSampler(desc)
	if err != nil {
		return Sampler{}, fmt.Errorf("failed to create sampler %q: %w", desc.Label, err)
	}
	return Sampler{id: p.samplers.Insert(samplerRecord{native: native}), pool: p}, nil
}

func (p *pool) Counts() (int, int, int) {
	return p.buffers.Len(), p.textures.Len(), p.samplers.Len()
}

func (p *pool) Release() {
	p.buffers.Drain(func(_ ID, r bufferRecord) { r.native.Release() })
	p.textures.Drain(func(_ ID, r textureRecord) {
		r.view.Release()
		r.native.Release()
	})
	p.samplers.Drain(func(_ ID, r samplerRecord) { r.native.Release() })
}

// submitCopy records commands with record on a fresh encoder and submits them.
func (p *pool) submitCopy(label string, record func(enc device.CommandEncoder) error) error {
	enc, err := p.dev.CreateCommandEncoder(label)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}
	defer enc.Release()
	if err := record(enc); err != nil {
		return err
	}
	cmd, err := enc.Finish()
	if err != nil {
		return fmt.Errorf("failed to finish command encoder: %w", err)
	}
	p.dev.Queue().Submit(cmd)
	return nil
}

// readback copies size bytes at offset of src into a mappable staging buffer and reads them.
func (p *pool) readback(src device.Buffer, offset, size uint64) ([]byte, error) {
	staging, err := p.dev.CreateBuffer(device.BufferDescriptor{
		Label: src.Label() + " Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readback buffer: %w", err)
	}
	defer staging.Release()
	err = p.submitCopy(src.Label()+" Readback", func(enc device.CommandEncoder) error {
		return enc.CopyBufferToBuffer(src, offset, staging, 0, size)
	})
	if err != nil {
		return nil, err
	}
	return p.dev.ReadBuffer(staging, 0, size)
}
