package shader

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// Kind tells graphics shaders from compute shaders.
type Kind uint8

const (
	KindGraphics Kind = iota
	KindCompute
)

func (k Kind) String() string {
	if k == KindCompute {
		return "compute"
	}
	return "graphics"
}

// shader is the implementation of the Shader interface.
// It owns the native modules, bind group layouts and pipeline layout built from its sources.
type shader struct {
	mu *sync.Mutex

	id       uuid.UUID
	key      string
	kind     Kind
	sources  []string
	reflects []ShaderReflect

	// modules holds one module per stage source, in the order of reflects.
	modules        []device.ShaderModule
	vertexInput    *VertexInput
	layoutVersion  uint32
	layouts        []BindGroupLayout
	pipelineLayout device.PipelineLayout
	pushSize       uint32
	pushStages     wgpu.ShaderStage
	released       bool
}

// Shader is a reflected and compiled graphics or compute shader. It exclusively owns its bind group
// layouts and pipeline layout; pipelines built from it share them read-only.
type Shader interface {
	// ID returns an identity unique to this shader object, used in pipeline and bind group cache keys.
	ID() uuid.UUID

	// Key returns the name the shader was created with.
	Key() string

	// Kind returns whether the shader is a graphics or compute shader.
	Kind() Kind

	// Sources returns the pre-processed WGSL sources, empty for shaders built from binaries.
	Sources() []string

	// Reflections returns the reflection of each stage source: one for combined graphics and compute
	// shaders, vertex then fragment for split graphics shaders.
	Reflections() []ShaderReflect

	// EntryPoint returns the entry point for the stage, or "" if the shader has none.
	EntryPoint(stage wgpu.ShaderStage) string

	// Module returns the native module holding the entry point of the stage, or nil.
	Module(stage wgpu.ShaderStage) device.ShaderModule

	// WorkgroupSize returns the compute workgroup size, zero for graphics shaders.
	WorkgroupSize() [3]uint32

	// VertexLayout returns the vertex buffer layout of the vertex entry point, or nil when it has no inputs.
	//
	// Returns:
	//   - []wgpu.VertexBufferLayout: zero or one interleaved buffer layout
	VertexLayout() []wgpu.VertexBufferLayout

	// SetVertexFormat changes the buffer format of one vertex attribute and repacks the layout. The new
	// format must be readable as the reflected type.
	//
	// Parameters:
	//   - location: the @location of the attribute
	//   - format: the format stored in the vertex buffer
	//
	// Returns:
	//   - error: if the location does not exist or the conversion is not allowed
	SetVertexFormat(location uint32, format wgpu.VertexFormat) error

	// LayoutVersion counts successful SetVertexFormat calls. Pipeline keys include it so a pipeline
	// built for an older vertex layout is never reused.
	LayoutVersion() uint32

	// BindGroupLayouts returns the layouts indexed by group.
	BindGroupLayouts() []BindGroupLayout

	// Binding looks up a binding across all stage reflections.
	Binding(group, binding uint32) (ShaderBindingInfo, bool)

	// UniformLocation finds the group and binding of a resource variable by name.
	//
	// Parameters:
	//   - name: the WGSL variable name
	//
	// Returns:
	//   - uint32: the group
	//   - uint32: the binding
	//   - bool: false if no stage declares the name
	UniformLocation(name string) (uint32, uint32, bool)

	// UniformSize returns the byte size of the buffer at group and binding. DynamicSize marks runtime-sized
	// storage.
	UniformSize(group, binding uint32) (uint32, bool)

	// PushConstantSize returns the declared push constant block size, 0 if none.
	PushConstantSize() uint32

	// PushConstantStages returns the stages the push constant range is visible to.
	PushConstantStages() wgpu.ShaderStage

	// PipelineLayout returns the native pipeline layout.
	PipelineLayout() device.PipelineLayout

	// Release frees every native object the shader owns. Releasing twice is a no-op.
	Release()
}

var _ Shader = &shader{}

// NewShader reflects the configured sources, creates their native modules and derives the bind group
// layouts and pipeline layout.
//
// Parameters:
//   - dev: the device to create native objects on
//   - key: a name for the shader, used in labels and lookups
//   - opts: source options; exactly one of WithSource, WithSplitSource, WithSourceFile or WithBinary is required
//
// Returns:
//   - Shader: the ready shader
//   - error: a *ParseError for bad sources, or an error for a wrong stage combination or device failure
func NewShader(dev device.Device, key string, opts ...ShaderBuilderOption) (Shader, error) {
	o := &shaderOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.err != nil {
		return nil, o.err
	}

	s := &shader{
		mu:  &sync.Mutex{},
		id:  uuid.New(),
		key: key,
	}

	var spirv [][]uint32
	switch {
	case len(o.binaries) > 0 && len(o.sources) > 0:
		return nil, fmt.Errorf("shader %s: sources and binaries are mutually exclusive", key)
	case len(o.binaries) > 0:
		for _, b := range o.binaries {
			s.reflects = append(s.reflects, b.Reflect)
			spirv = append(spirv, b.SPIRV)
		}
	case len(o.sources) > 0:
		for _, src := range o.sources {
			if o.pp != nil {
				processed, _, err := o.pp.Process(src)
				if err != nil {
					return nil, fmt.Errorf("shader %s: pre-processing failed: %w", key, err)
				}
				src = processed
			}
			s.sources = append(s.sources, src)

			if o.compileCache != nil {
				b, err := o.compileCache.GetOrCompile(src)
				if err != nil {
					return nil, fmt.Errorf("shader %s: %w", key, err)
				}
				s.reflects = append(s.reflects, b.Reflect)
				spirv = append(spirv, b.SPIRV)
				continue
			}
			r, err := Reflect(src)
			if err != nil {
				return nil, fmt.Errorf("shader %s: %w", key, err)
			}
			s.reflects = append(s.reflects, r)
			spirv = append(spirv, nil)
		}
	default:
		return nil, fmt.Errorf("shader %s: no source provided", key)
	}

	if err := s.checkStages(); err != nil {
		return nil, err
	}
	if err := s.resolvePushConstants(); err != nil {
		return nil, err
	}
	if vi := s.vertexReflect().VertexInput; vi != nil {
		cp := *vi
		cp.Attributes = append([]VertexAttribute(nil), vi.Attributes...)
		s.vertexInput = &cp
	}

	if err := s.build(dev, spirv); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

// checkStages verifies the reflections form one graphics or compute shader.
func (s *shader) checkStages() error {
	switch len(s.reflects) {
	case 1:
		switch s.reflects[0].Kind {
		case ReflectVertexFragment:
			s.kind = KindGraphics
		case ReflectCompute:
			s.kind = KindCompute
		default:
			return fmt.Errorf("shader %s: a single source must provide both vertex and fragment entry points or a compute entry point, got %s",
				s.key, s.reflects[0].Kind)
		}
	case 2:
		if s.reflects[0].Kind != ReflectVertex || s.reflects[1].Kind != ReflectFragment {
			return fmt.Errorf("shader %s: split sources must be vertex then fragment, got %s and %s",
				s.key, s.reflects[0].Kind, s.reflects[1].Kind)
		}
		s.kind = KindGraphics
	default:
		return fmt.Errorf("shader %s: expected one or two sources, got %d", s.key, len(s.reflects))
	}
	return nil
}

// resolvePushConstants merges the push constant blocks of all stages. Stages declaring one must agree on
// its size.
func (s *shader) resolvePushConstants() error {
	for _, r := range s.reflects {
		pc, ok := r.PushConstant()
		if !ok {
			continue
		}
		if s.pushSize != 0 && s.pushSize != pc.Kind.Size {
			return fmt.Errorf("shader %s: push constant size differs between stages (%d and %d)", s.key, s.pushSize, pc.Kind.Size)
		}
		s.pushSize = pc.Kind.Size
		s.pushStages |= r.Kind.Stages()
	}
	return nil
}

// build creates the native modules, bind group layouts and pipeline layout.
func (s *shader) build(dev device.Device, spirv [][]uint32) error {
	for i, r := range s.reflects {
		desc := device.ShaderModuleDescriptor{Label: fmt.Sprintf("%s (%s)", s.key, r.Kind), SPIRV: spirv[i]}
		if len(s.sources) > i {
			desc.WGSL = s.sources[i]
		}
		m, err := dev.CreateShaderModule(desc)
		if err != nil {
			return fmt.Errorf("shader %s: failed to create %s module: %w", s.key, r.Kind, err)
		}
		s.modules = append(s.modules, m)
	}

	layouts, err := BuildBindGroupLayouts(dev, s.reflects...)
	if err != nil {
		return fmt.Errorf("shader %s: %w", s.key, err)
	}
	s.layouts = layouts

	natives := make([]device.BindGroupLayout, len(layouts))
	for i, l := range layouts {
		natives[i] = l.Native
	}
	pl, err := dev.CreatePipelineLayout(device.PipelineLayoutDescriptor{
		Label:              s.key + " pipeline layout",
		BindGroupLayouts:   natives,
		PushConstantSize:   s.pushSize,
		PushConstantStages: s.pushStages,
	})
	if err != nil {
		return fmt.Errorf("shader %s: failed to create pipeline layout: %w", s.key, err)
	}
	s.pipelineLayout = pl
	return nil
}

// vertexReflect returns the reflection holding the vertex entry point, or a zero reflection.
func (s *shader) vertexReflect() ShaderReflect {
	for _, r := range s.reflects {
		if r.VertexEntry != "" {
			return r
		}
	}
	return ShaderReflect{}
}

func (s *shader) ID() uuid.UUID {
	return s.id
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Kind() Kind {
	return s.kind
}

func (s *shader) Sources() []string {
	return s.sources
}

func (s *shader) Reflections() []ShaderReflect {
	return s.reflects
}

func (s *shader) EntryPoint(stage wgpu.ShaderStage) string {
	for _, r := range s.reflects {
		if e := r.EntryPoint(stage); e != "" {
			return e
		}
	}
	return ""
}

func (s *shader) Module(stage wgpu.ShaderStage) device.ShaderModule {
	for i, r := range s.reflects {
		if r.EntryPoint(stage) != "" && i < len(s.modules) {
			return s.modules[i]
		}
	}
	return nil
}

func (s *shader) WorkgroupSize() [3]uint32 {
	if s.kind != KindCompute {
		return [3]uint32{}
	}
	return s.reflects[0].WorkgroupSize
}

func (s *shader) VertexLayout() []wgpu.VertexBufferLayout {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vertexInput == nil {
		return nil
	}
	return []wgpu.VertexBufferLayout{s.vertexInput.Layout()}
}

func (s *shader) SetVertexFormat(location uint32, format wgpu.VertexFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vertexInput == nil {
		return fmt.Errorf("shader %s has no vertex inputs", s.key)
	}
	reflected := s.vertexReflect().VertexInput
	for i, a := range s.vertexInput.Attributes {
		if a.Location != location {
			continue
		}
		if !CanConvertVertexFormat(reflected.Attributes[i].Format, format) {
			return fmt.Errorf("shader %s: attribute %s at location %d cannot be read from vertex format %d",
				s.key, a.Name, location, format)
		}
		s.vertexInput.Attributes[i].Format = format
		s.vertexInput.repack()
		s.layoutVersion++
		return nil
	}
	return fmt.Errorf("shader %s has no vertex attribute at location %d", s.key, location)
}

func (s *shader) LayoutVersion() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layoutVersion
}

func (s *shader) BindGroupLayouts() []BindGroupLayout {
	return s.layouts
}

func (s *shader) Binding(group, binding uint32) (ShaderBindingInfo, bool) {
	for _, r := range s.reflects {
		if b, ok := r.Binding(group, binding); ok {
			return b, true
		}
	}
	return ShaderBindingInfo{}, false
}

func (s *shader) UniformLocation(name string) (uint32, uint32, bool) {
	for _, r := range s.reflects {
		for _, b := range r.Bindings {
			if b.Name == name && b.Kind.Type != BindingPushConstant {
				return b.Group, b.Binding, true
			}
		}
	}
	return 0, 0, false
}

func (s *shader) UniformSize(group, binding uint32) (uint32, bool) {
	b, ok := s.Binding(group, binding)
	if !ok || (b.Kind.Type != BindingUniformBuffer && b.Kind.Type != BindingStorageBuffer) {
		return 0, false
	}
	return b.Kind.Size, true
}

func (s *shader) PushConstantSize() uint32 {
	return s.pushSize
}

func (s *shader) PushConstantStages() wgpu.ShaderStage {
	return s.pushStages
}

func (s *shader) PipelineLayout() device.PipelineLayout {
	return s.pipelineLayout
}

func (s *shader) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	if s.pipelineLayout != nil {
		s.pipelineLayout.Release()
	}
	for _, l := range s.layouts {
		l.Release()
	}
	for _, m := range s.modules {
		m.Release()
	}
}
