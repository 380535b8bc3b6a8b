package pipeline

import (
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// RenderState is the fixed-function state of a render pipeline. It is a comparable value so it can be
// part of a pipeline Key.
type RenderState struct {
	Topology  wgpu.PrimitiveTopology
	CullMode  wgpu.CullMode
	FrontFace wgpu.FrontFace
	// PolygonMode is applied only when the device supports non-fill polygon modes.
	PolygonMode device.PolygonMode
	// IndexFormat is the strip index format, used only with strip topologies.
	IndexFormat wgpu.IndexFormat

	DepthTest           bool
	DepthWrite          bool
	DepthCompare        wgpu.CompareFunction
	DepthBias           int32
	DepthBiasSlopeScale float32
}

// NewRenderState returns the default render state adjusted by opts. The defaults are a triangle list
// with counter-clockwise front faces, no culling, and depth test and write enabled with a less-than
// comparison.
//
// Parameters:
//   - opts: a variadic list of RenderStateOption functions
//
// Returns:
//   - RenderState: the resulting state
func NewRenderState(opts ...RenderStateOption) RenderState {
	s := RenderState{
		Topology:     wgpu.PrimitiveTopologyTriangleList,
		CullMode:     wgpu.CullModeNone,
		FrontFace:    wgpu.FrontFaceCCW,
		PolygonMode:  device.PolygonModeFill,
		IndexFormat:  wgpu.IndexFormatUint32,
		DepthTest:    true,
		DepthWrite:   true,
		DepthCompare: wgpu.CompareFunctionLess,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// isStrip reports whether the topology needs a strip index format.
func (s RenderState) isStrip() bool {
	return s.Topology == wgpu.PrimitiveTopologyLineStrip || s.Topology == wgpu.PrimitiveTopologyTriangleStrip
}

// primitive converts the state to the native primitive state.
func (s RenderState) primitive() wgpu.PrimitiveState {
	p := wgpu.PrimitiveState{
		Topology:  s.Topology,
		FrontFace: s.FrontFace,
		CullMode:  s.CullMode,
	}
	if s.isStrip() {
		p.StripIndexFormat = s.IndexFormat
	}
	return p
}

// depthStencil converts the state to the native depth stencil state for an attachment of the given format.
func (s RenderState) depthStencil(format wgpu.TextureFormat) *wgpu.DepthStencilState {
	if format == wgpu.TextureFormatUndefined {
		return nil
	}
	compare := s.DepthCompare
	if !s.DepthTest {
		compare = wgpu.CompareFunctionAlways
	}
	return &wgpu.DepthStencilState{
		Format:              format,
		DepthWriteEnabled:   s.DepthWrite,
		DepthCompare:        compare,
		DepthBias:           s.DepthBias,
		DepthBiasSlopeScale: s.DepthBiasSlopeScale,
		StencilFront: wgpu.StencilFaceState{
			Compare: wgpu.CompareFunctionAlways,
		},
		StencilBack: wgpu.StencilFaceState{
			Compare: wgpu.CompareFunctionAlways,
		},
	}
}

// Blend presets for TargetState.
var (
	// BlendAlpha is standard straight-alpha blending.
	BlendAlpha = wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorSrcAlpha,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
	}

	// BlendAdditive adds the source color scaled by its alpha to the destination.
	BlendAdditive = wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorSrcAlpha,
			DstFactor: wgpu.BlendFactorOne,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOne,
			Operation: wgpu.BlendOperationAdd,
		},
	}

	// BlendReplace overwrites the destination.
	BlendReplace = wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorZero,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorZero,
			Operation: wgpu.BlendOperationAdd,
		},
	}
)

// TargetState is the format and blending of one color attachment.
type TargetState struct {
	Format       wgpu.TextureFormat
	Blend        wgpu.BlendState
	BlendEnabled bool
	WriteMask    wgpu.ColorWriteMask
}

// NewTargetState returns an unblended target writing all channels of format.
func NewTargetState(format wgpu.TextureFormat) TargetState {
	return TargetState{Format: format, Blend: BlendReplace, WriteMask: wgpu.ColorWriteMaskAll}
}

// WithBlend returns a copy of the target with blending enabled using b.
//
// Parameters:
//   - b: the blend state, e.g. BlendAlpha
//
// Returns:
//   - TargetState: the blended target
func (t TargetState) WithBlend(b wgpu.BlendState) TargetState {
	t.Blend = b
	t.BlendEnabled = true
	return t
}

// colorTarget converts the target to its native state.
func (t TargetState) colorTarget() wgpu.ColorTargetState {
	state := wgpu.ColorTargetState{
		Format:    t.Format,
		WriteMask: t.WriteMask,
	}
	if t.BlendEnabled {
		blend := t.Blend
		state.Blend = &blend
	}
	return state
}
