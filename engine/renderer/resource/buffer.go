package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// Buffer is a handle to a pool-owned GPU buffer. The zero Buffer is invalid.
type Buffer struct {
	id   ID
	pool *pool
}

func (b Buffer) record() (bufferRecord, bool) {
	if b.pool == nil {
		return bufferRecord{}, false
	}
	return b.pool.buffers.Get(b.id)
}

// ID returns the slot ID of the buffer, stable for the buffer's lifetime.
func (b Buffer) ID() ID {
	return b.id
}

// Valid reports whether the buffer is still alive.
func (b Buffer) Valid() bool {
	_, ok := b.record()
	return ok
}

// Label returns the debug label, or "" for a stale handle.
func (b Buffer) Label() string {
	if r, ok := b.record(); ok {
		return r.native.Label()
	}
	return ""
}

// Size returns the buffer size in bytes, or 0 for a stale handle.
func (b Buffer) Size() uint64 {
	if r, ok := b.record(); ok {
		return r.native.Size()
	}
	return 0
}

// Usage returns the buffer usage flags.
func (b Buffer) Usage() wgpu.BufferUsage {
	if r, ok := b.record(); ok {
		return r.native.Usage()
	}
	return wgpu.BufferUsageNone
}

// Native returns the native buffer, or nil for a stale handle.
func (b Buffer) Native() device.Buffer {
	if r, ok := b.record(); ok {
		return r.native
	}
	return nil
}

// Write uploads data at offset through the queue.
//
// Parameters:
//   - offset: the destination byte offset, a multiple of 4
//   - data: the bytes to write
//
// Returns:
//   - error: ErrStaleHandle, an out of range write, or a queue error
func (b Buffer) Write(offset uint64, data []byte) error {
	r, ok := b.record()
	if !ok {
		return ErrStaleHandle
	}
	if offset+uint64(len(data)) > r.native.Size() {
		return fmt.Errorf("write of %d bytes at offset %d overflows buffer %s of %d bytes",
			len(data), offset, r.native.Label(), r.native.Size())
	}
	if err := b.pool.dev.Queue().WriteBuffer(r.native, offset, data); err != nil {
		return fmt.Errorf("failed to write buffer %s: %w", r.native.Label(), err)
	}
	return nil
}

// Read copies size bytes at offset back to the CPU. Mappable buffers are read directly; other buffers
// need CopySrc usage and are read through a staging buffer. Read blocks until the data is available.
//
// Parameters:
//   - offset: the source byte offset, a multiple of 4
//   - size: the number of bytes, a multiple of 4
//
// Returns:
//   - []byte: the buffer contents
//   - error: ErrStaleHandle, a range or usage error, or a device error
func (b Buffer) Read(offset, size uint64) ([]byte, error) {
	r, ok := b.record()
	if !ok {
		return nil, ErrStaleHandle
	}
	if offset+size > r.native.Size() {
		return nil, fmt.Errorf("read of %d bytes at offset %d overflows buffer %s of %d bytes",
			size, offset, r.native.Label(), r.native.Size())
	}
	if r.native.Usage()&wgpu.BufferUsageMapRead != 0 {
		return b.pool.dev.ReadBuffer(r.native, offset, size)
	}
	if r.native.Usage()&wgpu.BufferUsageCopySrc == 0 {
		return nil, fmt.Errorf("buffer %s needs CopySrc or MapRead usage to be read", r.native.Label())
	}
	if offset%4 != 0 || size%4 != 0 {
		return nil, fmt.Errorf("buffer reads must be 4 byte aligned, got offset %d size %d", offset, size)
	}
	return b.pool.readback(r.native, offset, size)
}

// Release frees the buffer. Releasing a stale handle is a no-op.
func (b Buffer) Release() {
	if b.pool == nil {
		return
	}
	if r, ok := b.pool.buffers.Remove(b.id); ok {
		r.native.Release()
	}
}
