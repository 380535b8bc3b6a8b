package shader

import (
	"fmt"
	"math"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// DynamicSize is the size reported for runtime-sized arrays and structs ending in one.
// No real binding can have this size.
const DynamicSize uint32 = math.MaxUint32

// PushConstantGroup is the group index push constant blocks are reported under. It never collides with a
// real bind group index.
const PushConstantGroup uint32 = math.MaxUint32

// ReflectKind identifies which pipeline stages a shader source provides.
type ReflectKind uint8

const (
	// ReflectVertex is a source with only a @vertex entry point.
	ReflectVertex ReflectKind = iota
	// ReflectFragment is a source with only a @fragment entry point.
	ReflectFragment
	// ReflectVertexFragment is a source with both graphics entry points.
	ReflectVertexFragment
	// ReflectCompute is a source with a @compute entry point.
	ReflectCompute
)

func (k ReflectKind) String() string {
	switch k {
	case ReflectVertex:
		return "vertex"
	case ReflectFragment:
		return "fragment"
	case ReflectVertexFragment:
		return "vertex+fragment"
	case ReflectCompute:
		return "compute"
	}
	return fmt.Sprintf("ReflectKind(%d)", uint8(k))
}

// Stages returns the shader stages the kind covers.
func (k ReflectKind) Stages() wgpu.ShaderStage {
	switch k {
	case ReflectVertex:
		return wgpu.ShaderStageVertex
	case ReflectFragment:
		return wgpu.ShaderStageFragment
	case ReflectVertexFragment:
		return wgpu.ShaderStageVertex | wgpu.ShaderStageFragment
	case ReflectCompute:
		return wgpu.ShaderStageCompute
	}
	return wgpu.ShaderStageNone
}

// BindingType is the resource category of a binding.
type BindingType uint8

const (
	// BindingUnknown is the zero value and is rejected by BuildBindGroupLayouts.
	BindingUnknown BindingType = iota
	BindingUniformBuffer
	BindingStorageBuffer
	BindingStorageTexture
	BindingSampler
	BindingTexture
	BindingPushConstant
)

func (t BindingType) String() string {
	switch t {
	case BindingUniformBuffer:
		return "uniform"
	case BindingStorageBuffer:
		return "storage"
	case BindingStorageTexture:
		return "storage_texture"
	case BindingSampler:
		return "sampler"
	case BindingTexture:
		return "texture"
	case BindingPushConstant:
		return "push_constant"
	}
	return "unknown"
}

// StorageAccess is a set of access flags for storage buffers and textures.
type StorageAccess uint8

const (
	AccessRead StorageAccess = 1 << iota
	AccessWrite
	AccessAtomic
)

// Has reports whether all flags in f are set.
func (a StorageAccess) Has(f StorageAccess) bool {
	return a&f == f
}

func (a StorageAccess) String() string {
	var parts []string
	if a.Has(AccessRead) {
		parts = append(parts, "read")
	}
	if a.Has(AccessWrite) {
		parts = append(parts, "write")
	}
	if a.Has(AccessAtomic) {
		parts = append(parts, "atomic")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// BindingKind describes the resource a binding expects. Only the fields relevant to Type are set.
type BindingKind struct {
	Type BindingType
	// Size is the byte size of buffers and push constant blocks, DynamicSize for runtime-sized arrays.
	Size uint32
	// Access is set for storage buffers and storage textures.
	Access StorageAccess
	// Comparison is set for sampler_comparison.
	Comparison bool
	// Multisampled is set for multisampled textures.
	Multisampled bool
	// ViewDimension is set for textures and storage textures.
	ViewDimension wgpu.TextureViewDimension
	// SampleType is set for textures.
	SampleType wgpu.TextureSampleType
	// StorageFormat is set for storage textures.
	StorageFormat wgpu.TextureFormat
}

// ShaderBindingInfo is one resource declared by a shader.
type ShaderBindingInfo struct {
	Group   uint32
	Binding uint32
	Name    string
	Kind    BindingKind
	// Stages are the shader stages the declaring source provides.
	Stages wgpu.ShaderStage
}

// VertexAttribute is one @location input of the vertex entry point.
type VertexAttribute struct {
	Name     string
	Location uint32
	Offset   uint64
	Format   wgpu.VertexFormat
}

// VertexInput is the per-vertex input of a vertex entry point, packed tightly in declaration order.
type VertexInput struct {
	Name       string
	Stride     uint64
	Attributes []VertexAttribute
}

// Layout converts the input into a single interleaved vertex buffer layout.
//
// Returns:
//   - wgpu.VertexBufferLayout: the layout with per-vertex step mode
func (v VertexInput) Layout() wgpu.VertexBufferLayout {
	attrs := make([]wgpu.VertexAttribute, len(v.Attributes))
	for i, a := range v.Attributes {
		attrs[i] = wgpu.VertexAttribute{
			Format:         a.Format,
			Offset:         a.Offset,
			ShaderLocation: a.Location,
		}
	}
	return wgpu.VertexBufferLayout{
		ArrayStride: v.Stride,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes:  attrs,
	}
}

// ShaderReflect is the binding layout and entry points reflected from one shader source.
type ShaderReflect struct {
	Kind          ReflectKind
	VertexEntry   string
	FragmentEntry string
	ComputeEntry  string
	// Bindings is ordered by (group, binding). Push constant blocks sort last under PushConstantGroup.
	Bindings []ShaderBindingInfo
	// VertexInput is nil for sources without a vertex entry point or without vertex inputs.
	VertexInput   *VertexInput
	WorkgroupSize [3]uint32
}

// EntryPoint returns the entry point for a single stage, or "" if the source lacks it.
func (r ShaderReflect) EntryPoint(stage wgpu.ShaderStage) string {
	switch stage {
	case wgpu.ShaderStageVertex:
		return r.VertexEntry
	case wgpu.ShaderStageFragment:
		return r.FragmentEntry
	case wgpu.ShaderStageCompute:
		return r.ComputeEntry
	}
	return ""
}

// Binding looks up a binding by group and binding index.
func (r ShaderReflect) Binding(group, binding uint32) (ShaderBindingInfo, bool) {
	for _, b := range r.Bindings {
		if b.Group == group && b.Binding == binding {
			return b, true
		}
	}
	return ShaderBindingInfo{}, false
}

// PushConstant returns the push constant block, if declared.
func (r ShaderReflect) PushConstant() (ShaderBindingInfo, bool) {
	for _, b := range r.Bindings {
		if b.Kind.Type == BindingPushConstant {
			return b, true
		}
	}
	return ShaderBindingInfo{}, false
}

// ParseError is returned by Reflect when the source cannot be understood.
type ParseError struct {
	// Line is 1-based; 0 when the error is not tied to a line.
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("shader parse error at line %d: %s", e.Line, e.Msg)
	}
	return "shader parse error: " + e.Msg
}

// vertexFormatInfo holds the wgpu vertex format and its byte size for offset calculation
type vertexFormatInfo struct {
	format wgpu.VertexFormat
	size   uint64
}

// sampledTextureInfo holds the view dimension and multisampled flag for a sampled texture type
type sampledTextureInfo struct {
	viewDimension wgpu.TextureViewDimension
	multisampled  bool
}

// wgslTypeLayout holds the byte size and alignment of a type under the uniform layout rules.
// dynamic marks runtime-sized arrays and structs that end in one; size then holds the fixed prefix.
type wgslTypeLayout struct {
	size    uint64
	align   uint64
	dynamic bool
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	line   int
	fields []parsedField
}
