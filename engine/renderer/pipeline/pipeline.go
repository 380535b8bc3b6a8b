package pipeline

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType uint8

const (
	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender PipelineType = iota

	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute
)

func (t PipelineType) String() string {
	if t == PipelineTypeCompute {
		return "compute"
	}
	return "render"
}

// pipeline is the implementation of the Pipeline interface.
// It holds the native render or compute pipeline built for one Key.
type pipeline struct {
	mu *sync.Mutex

	key    Key
	shader shader.Shader

	// renderPipeline is the render pipeline if this is a render pipeline, nil otherwise
	renderPipeline device.RenderPipeline
	// computePipeline is the compute pipeline if this is a compute pipeline, nil otherwise
	computePipeline device.ComputePipeline

	released bool
}

// Pipeline is a native render or compute pipeline together with the key it was built for. Pipelines are
// owned by the pipeline cache, which releases them on eviction. The shader and its layouts are borrowed.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// Key returns the key the pipeline was built for.
	Key() Key

	// Shader returns the shader the pipeline was built from.
	Shader() shader.Shader

	// RenderPipeline returns the native render pipeline, nil for compute pipelines.
	RenderPipeline() device.RenderPipeline

	// ComputePipeline returns the native compute pipeline, nil for render pipelines.
	ComputePipeline() device.ComputePipeline

	// Release frees the native pipeline. Releasing twice is a no-op.
	Release()
}

var _ Pipeline = &pipeline{}

// BuildRender creates the native render pipeline for key. It is the build function handed to the
// pipeline cache on a miss.
//
// Parameters:
//   - dev: the device to create the pipeline on
//   - s: the graphics shader the key was derived from
//   - key: a key produced by RenderKey for s
//
// Returns:
//   - Pipeline: the built pipeline
//   - error: if the key does not belong to s or the device rejects the pipeline
func BuildRender(dev device.Device, s shader.Shader, key Key) (Pipeline, error) {
	if key.Type != PipelineTypeRender || key.Shader != s.ID() {
		return nil, fmt.Errorf("key does not describe a render pipeline of shader %s", s.Key())
	}

	vertex := s.Module(wgpu.ShaderStageVertex)
	fragment := s.Module(wgpu.ShaderStageFragment)
	if vertex == nil || fragment == nil {
		return nil, fmt.Errorf("shader %s lacks a vertex or fragment module", s.Key())
	}

	targets := make([]wgpu.ColorTargetState, 0, key.TargetCount)
	for _, t := range key.ColorTargets() {
		targets = append(targets, t.colorTarget())
	}

	native, err := dev.CreateRenderPipeline(device.RenderPipelineDescriptor{
		Label:              s.Key() + " Render Pipeline",
		Layout:             s.PipelineLayout(),
		VertexModule:       vertex,
		VertexEntryPoint:   s.EntryPoint(wgpu.ShaderStageVertex),
		VertexBuffers:      s.VertexLayout(),
		FragmentModule:     fragment,
		FragmentEntryPoint: s.EntryPoint(wgpu.ShaderStageFragment),
		Targets:            targets,
		Primitive:          key.State.primitive(),
		PolygonMode:        key.State.PolygonMode,
		DepthStencil:       key.State.depthStencil(key.DepthFormat),
		SampleCount:        key.SampleCount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create render pipeline for shader %s: %w", s.Key(), err)
	}
	return &pipeline{mu: &sync.Mutex{}, key: key, shader: s, renderPipeline: native}, nil
}

// BuildCompute creates the native compute pipeline for key.
//
// Parameters:
//   - dev: the device to create the pipeline on
//   - s: the compute shader the key was derived from
//   - key: a key produced by ComputeKey for s
//
// Returns:
//   - Pipeline: the built pipeline
//   - error: if the key does not belong to s or the device rejects the pipeline
func BuildCompute(dev device.Device, s shader.Shader, key Key) (Pipeline, error) {
	if key.Type != PipelineTypeCompute || key.Shader != s.ID() {
		return nil, fmt.Errorf("key does not describe a compute pipeline of shader %s", s.Key())
	}
	module := s.Module(wgpu.ShaderStageCompute)
	if module == nil {
		return nil, fmt.Errorf("shader %s lacks a compute module", s.Key())
	}

	native, err := dev.CreateComputePipeline(device.ComputePipelineDescriptor{
		Label:      s.Key() + " Compute Pipeline",
		Layout:     s.PipelineLayout(),
		Module:     module,
		EntryPoint: s.EntryPoint(wgpu.ShaderStageCompute),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create compute pipeline for shader %s: %w", s.Key(), err)
	}
	return &pipeline{mu: &sync.Mutex{}, key: key, shader: s, computePipeline: native}, nil
}

func (p *pipeline) Type() PipelineType {
	return p.key.Type
}

func (p *pipeline) Key() Key {
	return p.key
}

func (p *pipeline) Shader() shader.Shader {
	return p.shader
}

func (p *pipeline) RenderPipeline() device.RenderPipeline {
	return p.renderPipeline
}

func (p *pipeline) ComputePipeline() device.ComputePipeline {
	return p.computePipeline
}

func (p *pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return
	}
	p.released = true
	if p.renderPipeline != nil {
		p.renderPipeline.Release()
	}
	if p.computePipeline != nil {
		p.computePipeline.Release()
	}
}
