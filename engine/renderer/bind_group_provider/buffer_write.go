package bind_group_provider

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/resource"
)

// BufferWrite describes a single GPU buffer write operation targeting a buffer at a given byte offset.
type BufferWrite struct {
	Buffer resource.Buffer
	Offset uint64
	Data   []byte
}

// BufferWriteFor resolves a write targeting the buffer a provider has attached at a slot.
//
// Parameters:
//   - p: the provider holding the attachment
//   - group: the bind group index
//   - binding: the binding index
//   - offset: the byte offset relative to the attachment's range
//   - data: the bytes to write
//
// Returns:
//   - BufferWrite: the write against the attached buffer
//   - error: if no buffer is attached at the slot
func BufferWriteFor(p BindGroupProvider, group, binding uint32, offset uint64, data []byte) (BufferWrite, error) {
	a, ok := p.Attachment(group, binding)
	if !ok || a.Kind != ResourceBuffer {
		return BufferWrite{}, fmt.Errorf("provider %s has no buffer at @group(%d) @binding(%d)", p.Label(), group, binding)
	}
	return BufferWrite{Buffer: a.Buffer, Offset: a.Offset + offset, Data: data}, nil
}

// ApplyWrites performs every write in order. All writes are attempted; the failures are joined.
//
// Parameters:
//   - writes: the writes to perform
//
// Returns:
//   - error: the joined write errors, or nil
func ApplyWrites(writes ...BufferWrite) error {
	var errs []error
	for _, w := range writes {
		if err := w.Buffer.Write(w.Offset, w.Data); err != nil {
			errs = append(errs, fmt.Errorf("write to buffer %s at %d: %w", w.Buffer.Label(), w.Offset, err))
		}
	}
	return errors.Join(errs...)
}
