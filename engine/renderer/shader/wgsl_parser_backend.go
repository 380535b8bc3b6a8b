package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// wgslPrimitiveLayoutMap maps WGSL scalar, vector, matrix and atomic type names to their byte size and
// alignment. Three component vectors occupy a full 16 bytes and every matrix column is padded to 16 bytes,
// matching how the engine packs uniform data on the CPU side.
var wgslPrimitiveLayoutMap = map[string]wgslTypeLayout{
	"f32":  {size: 4, align: 4},
	"i32":  {size: 4, align: 4},
	"u32":  {size: 4, align: 4},
	"f16":  {size: 4, align: 4},
	"bool": {size: 4, align: 4},

	"atomic<u32>": {size: 4, align: 4},
	"atomic<i32>": {size: 4, align: 4},
}

func init() {
	scalars := map[string]string{"f32": "f", "i32": "i", "u32": "u", "f16": "h", "bool": ""}
	vecLayouts := map[int]wgslTypeLayout{
		2: {size: 8, align: 8},
		3: {size: 16, align: 16},
		4: {size: 16, align: 16},
	}
	for scalar, suffix := range scalars {
		for n, layout := range vecLayouts {
			wgslPrimitiveLayoutMap[fmt.Sprintf("vec%d<%s>", n, scalar)] = layout
			if suffix != "" {
				wgslPrimitiveLayoutMap[fmt.Sprintf("vec%d%s", n, suffix)] = layout
			}
		}
	}
	for c := 2; c <= 4; c++ {
		for r := 2; r <= 4; r++ {
			layout := wgslTypeLayout{size: uint64(c) * 16, align: 16}
			for _, scalar := range []string{"f32", "f16"} {
				wgslPrimitiveLayoutMap[fmt.Sprintf("mat%dx%d<%s>", c, r, scalar)] = layout
			}
			wgslPrimitiveLayoutMap[fmt.Sprintf("mat%dx%df", c, r)] = layout
			wgslPrimitiveLayoutMap[fmt.Sprintf("mat%dx%dh", c, r)] = layout
		}
	}
}

// roundUpAlign rounds value up to the next multiple of alignment.
// Alignment must be a power of two.
//
// Parameters:
//   - alignment: the required alignment (must be a power of two)
//   - value: the value to align
//
// Returns:
//   - uint64: value rounded up to the next multiple of alignment
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// resolveTypeLayout resolves a WGSL type name to its size and alignment using primitives
// and previously-computed struct layouts. Fixed-size arrays are count * stride; runtime-sized
// arrays resolve with dynamic set and a zero fixed size.
//
// Parameters:
//   - typeName: the WGSL type name to resolve, e.g. "f32", "CameraUniform", "array<Light, 6>"
//   - knownTypes: a map of already-resolved type names to their layouts
//
// Returns:
//   - wgslTypeLayout: the resolved layout
//   - bool: true if the type could be resolved
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	typeName = strings.Join(strings.Fields(typeName), "")

	if layout, ok := wgslPrimitiveLayoutMap[typeName]; ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}

	base, params := splitTypeParams(typeName)
	if base != "array" || params == "" {
		return wgslTypeLayout{}, false
	}
	parts := splitAtTopLevelCommas(params)
	elem, ok := resolveTypeLayout(parts[0], knownTypes)
	if !ok || elem.dynamic {
		return wgslTypeLayout{}, false
	}
	stride := roundUpAlign(elem.align, elem.size)

	if len(parts) == 1 {
		return wgslTypeLayout{size: 0, align: elem.align, dynamic: true}, true
	}
	count, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || count == 0 {
		return wgslTypeLayout{}, false
	}
	return wgslTypeLayout{size: count * stride, align: elem.align}, true
}

// computeStructLayout computes the byte size and alignment of a single WGSL struct: each field is placed at
// the next aligned offset and the total size is rounded up to the largest field alignment. A runtime-sized
// array is only valid as the last member and marks the struct dynamic. @builtin fields are skipped.
//
// Parameters:
//   - ps: the parsed struct whose layout to compute
//   - knownTypes: a map of already-resolved type names to their layouts
//
// Returns:
//   - wgslTypeLayout: the computed layout
//   - bool: true if all fields could be resolved
func computeStructLayout(ps parsedStruct, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	offset := uint64(0)
	maxAlign := uint64(1)
	dynamic := false

	for i, field := range ps.fields {
		if field.isBuiltin {
			continue
		}
		fieldLayout, ok := resolveTypeLayout(field.typeName, knownTypes)
		if !ok {
			return wgslTypeLayout{}, false
		}
		if fieldLayout.dynamic && i != len(ps.fields)-1 {
			return wgslTypeLayout{}, false
		}

		offset = roundUpAlign(fieldLayout.align, offset)
		offset += fieldLayout.size
		if fieldLayout.align > maxAlign {
			maxAlign = fieldLayout.align
		}
		dynamic = dynamic || fieldLayout.dynamic
	}

	return wgslTypeLayout{size: roundUpAlign(maxAlign, offset), align: maxAlign, dynamic: dynamic}, true
}

// computeStructSizes computes the layout of all parsed WGSL structs. Dependencies between structs are
// resolved iteratively; structs that never resolve are left out of the result.
//
// Parameters:
//   - structs: all parsed struct blocks from the WGSL source
//
// Returns:
//   - map[string]wgslTypeLayout: a map from struct name to computed layout
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	remaining := make([]parsedStruct, len(structs))
	copy(remaining, structs)

	for {
		progress := false
		next := remaining[:0]

		for _, ps := range remaining {
			if layout, ok := computeStructLayout(ps, resolved); ok {
				resolved[ps.name] = layout
				progress = true
			} else {
				next = append(next, ps)
			}
		}

		remaining = next
		if !progress || len(remaining) == 0 {
			break
		}
	}

	return resolved
}

// classifyResource turns a parsed resource declaration into a BindingKind. Declarations with an address
// space are buffers; the rest are handle types classified by type name.
//
// Parameters:
//   - addressSpace: the address space qualifier (e.g. "uniform", "storage, read_write"), empty for handle types
//   - typeName: the WGSL type string (e.g. "CameraUniform", "texture_2d<f32>", "sampler")
//   - structs: all parsed structs, used to find atomics in nested members
//   - layouts: resolved struct layouts
//
// Returns:
//   - BindingKind: the classified binding
//   - error: if the type cannot be sized or is not a known handle type
func classifyResource(addressSpace, typeName string, structs []parsedStruct, layouts map[string]wgslTypeLayout) (BindingKind, error) {
	if addressSpace != "" {
		return classifyBuffer(addressSpace, typeName, structs, layouts)
	}

	switch {
	case typeName == "sampler":
		return BindingKind{Type: BindingSampler}, nil
	case typeName == "sampler_comparison":
		return BindingKind{Type: BindingSampler, Comparison: true}, nil
	case strings.HasPrefix(typeName, "texture_storage_"):
		return classifyStorageTexture(typeName)
	case strings.HasPrefix(typeName, "texture_depth_"):
		return classifyDepthTexture(typeName)
	case strings.HasPrefix(typeName, "texture_"):
		return classifySampledTexture(typeName)
	}
	return BindingKind{}, fmt.Errorf("unknown resource type %q", typeName)
}

// classifyBuffer sizes a uniform or storage buffer declaration and derives its access flags.
func classifyBuffer(addressSpace, typeName string, structs []parsedStruct, layouts map[string]wgslTypeLayout) (BindingKind, error) {
	spaceParts := strings.Split(addressSpace, ",")
	space := strings.TrimSpace(spaceParts[0])

	layout, ok := resolveTypeLayout(typeName, layouts)
	if !ok {
		return BindingKind{}, fmt.Errorf("cannot determine the size of type %q", typeName)
	}
	size := uint32(layout.size)
	if layout.dynamic {
		size = DynamicSize
	}

	switch space {
	case "uniform":
		if layout.dynamic {
			return BindingKind{}, fmt.Errorf("uniform buffer type %q is runtime-sized", typeName)
		}
		return BindingKind{Type: BindingUniformBuffer, Size: size}, nil
	case "storage":
		access := AccessRead
		if len(spaceParts) > 1 {
			switch strings.TrimSpace(spaceParts[1]) {
			case "read":
			case "read_write":
				access = AccessRead | AccessWrite
			default:
				return BindingKind{}, fmt.Errorf("unknown storage access %q", strings.TrimSpace(spaceParts[1]))
			}
		}
		if containsAtomic(typeName, structs, map[string]bool{}) {
			access |= AccessAtomic
		}
		return BindingKind{Type: BindingStorageBuffer, Size: size, Access: access}, nil
	}
	return BindingKind{}, fmt.Errorf("unsupported address space %q", space)
}

// containsAtomic reports whether the type is or transitively contains an atomic.
func containsAtomic(typeName string, structs []parsedStruct, visited map[string]bool) bool {
	if strings.Contains(typeName, "atomic<") {
		return true
	}
	for _, ps := range structs {
		if !strings.Contains(typeName, ps.name) || visited[ps.name] || !containsIdent(typeName, ps.name) {
			continue
		}
		visited[ps.name] = true
		for _, f := range ps.fields {
			if containsAtomic(f.typeName, structs, visited) {
				return true
			}
		}
	}
	return false
}

// containsIdent reports whether ident appears in s as a whole identifier.
func containsIdent(s, ident string) bool {
	for i := strings.Index(s, ident); i >= 0; {
		end := i + len(ident)
		before := i == 0 || !isIdentByte(s[i-1])
		after := end == len(s) || !isIdentByte(s[end])
		if before && after {
			return true
		}
		next := strings.Index(s[i+1:], ident)
		if next < 0 {
			break
		}
		i += next + 1
	}
	return false
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// classifySampledTexture parses a sampled texture type such as "texture_2d<f32>".
func classifySampledTexture(typeName string) (BindingKind, error) {
	base, param := splitTypeParams(typeName)

	info, ok := wgslSampledTextureMap[base]
	if !ok {
		return BindingKind{}, fmt.Errorf("unknown texture type %q", typeName)
	}
	sampleType, ok := wgslSampleTypeMap[param]
	if !ok {
		return BindingKind{}, fmt.Errorf("unknown texture sample type %q", param)
	}
	return BindingKind{
		Type:          BindingTexture,
		ViewDimension: info.viewDimension,
		Multisampled:  info.multisampled,
		SampleType:    sampleType,
	}, nil
}

// classifyDepthTexture parses a depth texture type such as "texture_depth_2d".
func classifyDepthTexture(typeName string) (BindingKind, error) {
	info, ok := wgslSampledTextureMap[typeName]
	if !ok {
		return BindingKind{}, fmt.Errorf("unknown depth texture type %q", typeName)
	}
	return BindingKind{
		Type:          BindingTexture,
		ViewDimension: info.viewDimension,
		Multisampled:  info.multisampled,
		SampleType:    wgpu.TextureSampleTypeDepth,
	}, nil
}

// classifyStorageTexture parses a storage texture type such as "texture_storage_2d<rgba8unorm, write>".
func classifyStorageTexture(typeName string) (BindingKind, error) {
	base, params := splitTypeParams(typeName)

	dim, ok := wgslStorageTextureDimMap[base]
	if !ok {
		return BindingKind{}, fmt.Errorf("unknown storage texture type %q", typeName)
	}
	parts := strings.SplitN(params, ",", 2)
	if len(parts) != 2 {
		return BindingKind{}, fmt.Errorf("storage texture %q needs a format and an access mode", typeName)
	}
	format, ok := wgslTexelFormatMap[strings.TrimSpace(parts[0])]
	if !ok {
		return BindingKind{}, fmt.Errorf("unknown texel format %q", strings.TrimSpace(parts[0]))
	}
	access, ok := wgslStorageAccessMap[strings.TrimSpace(parts[1])]
	if !ok {
		return BindingKind{}, fmt.Errorf("unknown storage texture access %q", strings.TrimSpace(parts[1]))
	}
	return BindingKind{
		Type:          BindingStorageTexture,
		Access:        access,
		ViewDimension: dim,
		StorageFormat: format,
	}, nil
}

// splitTypeParams splits a WGSL parameterized type into its base name and parameter string.
// For "texture_2d<f32>" returns ("texture_2d", "f32").
// For "texture_depth_2d" (no params) returns ("texture_depth_2d", "").
//
// Parameters:
//   - typeName: the WGSL type string to split
//
// Returns:
//   - base: the type name before the first angle bracket
//   - params: the content between the outer angle brackets, or empty if none
func splitTypeParams(typeName string) (base string, params string) {
	before, after, ok := strings.Cut(typeName, "<")
	if !ok {
		return strings.TrimSpace(typeName), ""
	}
	base = strings.TrimSpace(before)
	params = strings.TrimSpace(after)
	params = strings.TrimSuffix(params, ">")
	params = strings.TrimSpace(params)
	return base, params
}

// stripComments removes both single-line (//) and block (/* */) comments from WGSL source.
// Block comments may be nested. Newlines inside block comments are kept so line numbers still match
// the original source.
//
// Parameters:
//   - source: raw WGSL source string
//
// Returns:
//   - string: source with all comments removed
func stripComments(source string) string {
	return stripLineComments(stripBlockComments(source))
}

// stripLineComments removes single-line // comments from WGSL source.
func stripLineComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	for i, line := range strings.Split(source, "\n") {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// stripBlockComments removes nested block comments (/* ... */) from WGSL source.
func stripBlockComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	i := 0
	for i < len(source) {
		if i+1 < len(source) {
			if source[i] == '/' && source[i+1] == '*' {
				depth++
				i += 2
				continue
			}
			if source[i] == '*' && source[i+1] == '/' && depth > 0 {
				depth--
				i += 2
				continue
			}
		}
		if depth == 0 || source[i] == '\n' {
			sb.WriteByte(source[i])
		}
		i++
	}
	return sb.String()
}

// splitAtTopLevelCommas splits a string at commas that are not nested inside angle brackets or
// parentheses, so array<Light, 6> and @location(0) stay in one piece.
//
// Parameters:
//   - s: the string to split (a struct body or parameter list)
//
// Returns:
//   - []string: substrings between top-level commas
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(':
			depth++
		case '>', ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
