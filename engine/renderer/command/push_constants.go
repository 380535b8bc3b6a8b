package command

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/shader"
)

// packPushConstants checks data against the push constant block of s and zero-pads it to a multiple of 4.
// A nil or empty payload clears the push constants.
func packPushConstants(s shader.Shader, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	size := s.PushConstantSize()
	if size == 0 {
		return nil, fmt.Errorf("shader %s: %w", s.Key(), ErrNoPushConstants)
	}
	if uint32(len(data)) > size {
		return nil, fmt.Errorf("shader %s: %d bytes for a %d byte block: %w", s.Key(), len(data), size, ErrPushConstantsTooLarge)
	}
	out := make([]byte, common.AlignUp(uint64(len(data)), 4))
	copy(out, data)
	return out, nil
}
