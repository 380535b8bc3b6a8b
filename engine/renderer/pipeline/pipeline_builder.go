package pipeline

import (
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// RenderStateOption is a functional option used to configure a RenderState.
type RenderStateOption func(*RenderState)

// WithTopology sets the primitive topology.
//
// Parameters:
//   - topology: the primitive topology to use (e.g., wgpu.PrimitiveTopologyTriangleList)
//
// Returns:
//   - RenderStateOption: a function that sets the topology
func WithTopology(topology wgpu.PrimitiveTopology) RenderStateOption {
	return func(s *RenderState) {
		s.Topology = topology
	}
}

// WithCullMode sets the face culling mode.
//
// Parameters:
//   - mode: the cull mode to use (e.g., wgpu.CullModeBack)
//
// Returns:
//   - RenderStateOption: a function that sets the cull mode
func WithCullMode(mode wgpu.CullMode) RenderStateOption {
	return func(s *RenderState) {
		s.CullMode = mode
	}
}

// WithFrontFace sets the winding order of front faces.
//
// Parameters:
//   - face: the front face winding order (e.g., wgpu.FrontFaceCCW)
//
// Returns:
//   - RenderStateOption: a function that sets the front face
func WithFrontFace(face wgpu.FrontFace) RenderStateOption {
	return func(s *RenderState) {
		s.FrontFace = face
	}
}

// WithPolygonMode sets how triangles are rasterized.
func WithPolygonMode(mode device.PolygonMode) RenderStateOption {
	return func(s *RenderState) {
		s.PolygonMode = mode
	}
}

// WithIndexFormat sets the index format used with strip topologies.
func WithIndexFormat(format wgpu.IndexFormat) RenderStateOption {
	return func(s *RenderState) {
		s.IndexFormat = format
	}
}

// WithDepthTest sets whether fragments are depth tested. A disabled test compares with Always.
//
// Parameters:
//   - enabled: a boolean indicating whether depth testing should be enabled
//
// Returns:
//   - RenderStateOption: a function that sets the depth test state
func WithDepthTest(enabled bool) RenderStateOption {
	return func(s *RenderState) {
		s.DepthTest = enabled
	}
}

// WithDepthWrite sets whether fragments write depth.
//
// Parameters:
//   - enabled: a boolean indicating whether depth writing should be enabled
//
// Returns:
//   - RenderStateOption: a function that sets the depth write state
func WithDepthWrite(enabled bool) RenderStateOption {
	return func(s *RenderState) {
		s.DepthWrite = enabled
	}
}

// WithDepthCompare sets the depth comparison used when the depth test is enabled.
func WithDepthCompare(compare wgpu.CompareFunction) RenderStateOption {
	return func(s *RenderState) {
		s.DepthCompare = compare
	}
}

// WithDepthBias sets the depth bias parameters.
//
// Parameters:
//   - bias: the constant depth bias to apply
//   - slopeScale: the slope scale depth bias to apply
//
// Returns:
//   - RenderStateOption: a function that sets the depth bias
func WithDepthBias(bias int32, slopeScale float32) RenderStateOption {
	return func(s *RenderState) {
		s.DepthBias = bias
		s.DepthBiasSlopeScale = slopeScale
	}
}
