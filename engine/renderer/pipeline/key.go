package pipeline

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// MaxColorTargets is the largest number of color attachments a render pipeline can write.
const MaxColorTargets = 8

// Key identifies a pipeline in the pipeline cache. Keys are compared by value; two keys are equal
// exactly when every input that shapes the native pipeline is equal. The bind group layouts are owned by
// the shader, so the shader identity covers them.
type Key struct {
	Type          PipelineType
	Shader        uuid.UUID
	LayoutVersion uint32

	// The remaining fields are zero for compute pipelines.

	State       RenderState
	Targets     [MaxColorTargets]TargetState
	TargetCount uint8
	// DepthFormat is wgpu.TextureFormatUndefined for passes without a depth attachment.
	DepthFormat wgpu.TextureFormat
	SampleCount uint32
}

// RenderKey derives the key of a render pipeline from a graphics shader and the shape of the pass it
// draws in.
//
// Parameters:
//   - s: the graphics shader
//   - state: the fixed-function state
//   - targets: one target per color attachment, in attachment order
//   - depthFormat: the depth attachment format, or wgpu.TextureFormatUndefined
//   - sampleCount: the pass sample count, 0 is treated as 1
//
// Returns:
//   - Key: the pipeline key
//   - error: if the shader is not a graphics shader or there are too many targets
func RenderKey(s shader.Shader, state RenderState, targets []TargetState, depthFormat wgpu.TextureFormat, sampleCount uint32) (Key, error) {
	if s.Kind() != shader.KindGraphics {
		return Key{}, fmt.Errorf("shader %s is not a graphics shader", s.Key())
	}
	if len(targets) > MaxColorTargets {
		return Key{}, fmt.Errorf("%d color targets exceed the limit of %d", len(targets), MaxColorTargets)
	}
	return makeKey(PipelineTypeRender, s, state, targets, depthFormat, max(sampleCount, 1)), nil
}

// ComputeKey derives the key of a compute pipeline. Compute pipelines have no fixed-function state, so
// the shader alone identifies them.
//
// Parameters:
//   - s: the compute shader
//
// Returns:
//   - Key: the pipeline key
//   - error: if the shader is not a compute shader
func ComputeKey(s shader.Shader) (Key, error) {
	if s.Kind() != shader.KindCompute {
		return Key{}, fmt.Errorf("shader %s is not a compute shader", s.Key())
	}
	return makeKey(PipelineTypeCompute, s, RenderState{}, nil, wgpu.TextureFormatUndefined, 0), nil
}

// makeKey is the single constructor behind RenderKey and ComputeKey.
func makeKey(t PipelineType, s shader.Shader, state RenderState, targets []TargetState, depthFormat wgpu.TextureFormat, sampleCount uint32) Key {
	k := Key{
		Type:          t,
		Shader:        s.ID(),
		LayoutVersion: s.LayoutVersion(),
		State:         state,
		TargetCount:   uint8(len(targets)),
		DepthFormat:   depthFormat,
		SampleCount:   sampleCount,
	}
	copy(k.Targets[:], targets)
	return k
}

// ColorTargets returns the targets in use.
func (k Key) ColorTargets() []TargetState {
	return k.Targets[:k.TargetCount]
}
