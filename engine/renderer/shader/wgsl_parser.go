package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// wgslVertexFormatMap maps WGSL type names to their corresponding wgpu vertex format and byte size
var wgslVertexFormatMap = map[string]vertexFormatInfo{
	"f32":       {wgpu.VertexFormatFloat32, 4},
	"vec2f":     {wgpu.VertexFormatFloat32x2, 8},
	"vec2<f32>": {wgpu.VertexFormatFloat32x2, 8},
	"vec3f":     {wgpu.VertexFormatFloat32x3, 12},
	"vec3<f32>": {wgpu.VertexFormatFloat32x3, 12},
	"vec4f":     {wgpu.VertexFormatFloat32x4, 16},
	"vec4<f32>": {wgpu.VertexFormatFloat32x4, 16},
	"i32":       {wgpu.VertexFormatSint32, 4},
	"vec2i":     {wgpu.VertexFormatSint32x2, 8},
	"vec2<i32>": {wgpu.VertexFormatSint32x2, 8},
	"vec3i":     {wgpu.VertexFormatSint32x3, 12},
	"vec3<i32>": {wgpu.VertexFormatSint32x3, 12},
	"vec4i":     {wgpu.VertexFormatSint32x4, 16},
	"vec4<i32>": {wgpu.VertexFormatSint32x4, 16},
	"u32":       {wgpu.VertexFormatUint32, 4},
	"vec2u":     {wgpu.VertexFormatUint32x2, 8},
	"vec2<u32>": {wgpu.VertexFormatUint32x2, 8},
	"vec3u":     {wgpu.VertexFormatUint32x3, 12},
	"vec3<u32>": {wgpu.VertexFormatUint32x3, 12},
	"vec4u":     {wgpu.VertexFormatUint32x4, 16},
	"vec4<u32>": {wgpu.VertexFormatUint32x4, 16},
	"vec2<f16>": {wgpu.VertexFormatFloat16x2, 4},
	"vec2h":     {wgpu.VertexFormatFloat16x2, 4},
	"vec4<f16>": {wgpu.VertexFormatFloat16x4, 8},
	"vec4h":     {wgpu.VertexFormatFloat16x4, 8},
}

// wgslSampledTextureMap maps WGSL sampled texture base names to their view dimension and multisampled flag
var wgslSampledTextureMap = map[string]sampledTextureInfo{
	"texture_1d":                    {wgpu.TextureViewDimension1D, false},
	"texture_2d":                    {wgpu.TextureViewDimension2D, false},
	"texture_2d_array":              {wgpu.TextureViewDimension2DArray, false},
	"texture_3d":                    {wgpu.TextureViewDimension3D, false},
	"texture_cube":                  {wgpu.TextureViewDimensionCube, false},
	"texture_cube_array":            {wgpu.TextureViewDimensionCubeArray, false},
	"texture_multisampled_2d":       {wgpu.TextureViewDimension2D, true},
	"texture_depth_2d":              {wgpu.TextureViewDimension2D, false},
	"texture_depth_2d_array":        {wgpu.TextureViewDimension2DArray, false},
	"texture_depth_cube":            {wgpu.TextureViewDimensionCube, false},
	"texture_depth_cube_array":      {wgpu.TextureViewDimensionCubeArray, false},
	"texture_depth_multisampled_2d": {wgpu.TextureViewDimension2D, true},
}

// wgslStorageTextureDimMap maps WGSL storage texture base names to their view dimension
var wgslStorageTextureDimMap = map[string]wgpu.TextureViewDimension{
	"texture_storage_1d":       wgpu.TextureViewDimension1D,
	"texture_storage_2d":       wgpu.TextureViewDimension2D,
	"texture_storage_2d_array": wgpu.TextureViewDimension2DArray,
	"texture_storage_3d":       wgpu.TextureViewDimension3D,
}

// wgslSampleTypeMap maps WGSL scalar type parameters to their wgpu texture sample type
var wgslSampleTypeMap = map[string]wgpu.TextureSampleType{
	"f32": wgpu.TextureSampleTypeFloat,
	"i32": wgpu.TextureSampleTypeSint,
	"u32": wgpu.TextureSampleTypeUint,
}

// wgslStorageAccessMap maps WGSL access mode keywords to access flags
var wgslStorageAccessMap = map[string]StorageAccess{
	"write":      AccessWrite,
	"read":       AccessRead,
	"read_write": AccessRead | AccessWrite,
}

// wgslTexelFormatMap maps WGSL texel format strings to their corresponding wgpu texture formats.
var wgslTexelFormatMap = map[string]wgpu.TextureFormat{
	"rgba8unorm":  wgpu.TextureFormatRGBA8Unorm,
	"rgba8snorm":  wgpu.TextureFormatRGBA8Snorm,
	"rgba8uint":   wgpu.TextureFormatRGBA8Uint,
	"rgba8sint":   wgpu.TextureFormatRGBA8Sint,
	"rgba16uint":  wgpu.TextureFormatRGBA16Uint,
	"rgba16sint":  wgpu.TextureFormatRGBA16Sint,
	"rgba16float": wgpu.TextureFormatRGBA16Float,
	"r32uint":     wgpu.TextureFormatR32Uint,
	"r32sint":     wgpu.TextureFormatR32Sint,
	"r32float":    wgpu.TextureFormatR32Float,
	"rg32uint":    wgpu.TextureFormatRG32Uint,
	"rg32sint":    wgpu.TextureFormatRG32Sint,
	"rg32float":   wgpu.TextureFormatRG32Float,
	"rgba32uint":  wgpu.TextureFormatRGBA32Uint,
	"rgba32sint":  wgpu.TextureFormatRGBA32Sint,
	"rgba32float": wgpu.TextureFormatRGBA32Float,
	"bgra8unorm":  wgpu.TextureFormatBGRA8Unorm,
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field or parameter: optional attributes, name, colon, type.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+(?:\([^)]*\))?\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	vertexEntryRegex   = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)
	computeEntryRegex  = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`)

	// workgroupSizeRegex captures 1-3 integer dimensions from @workgroup_size(x[, y[, z]])
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> camera: CameraUniform;
	// or handle types: @group(2) @binding(0) var diffuseTexture: texture_2d<f32>;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)

	// pushConstantRegex captures the variable name and type of a var<push_constant> declaration
	pushConstantRegex = regexp.MustCompile(`var<\s*push_constant\s*>\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// Reflect parses WGSL source into its entry points, bindings, vertex input and workgroup size.
// It is a pure function of the source text.
//
// Parameters:
//   - source: the WGSL source code
//
// Returns:
//   - ShaderReflect: the reflected layout
//   - error: a *ParseError if the source is not valid WGSL, has no entry point, mixes compute with graphics
//     stages, declares a (group, binding) twice, or binds a type that cannot be classified or sized
func Reflect(source string) (ShaderReflect, error) {
	if strings.TrimSpace(source) == "" {
		return ShaderReflect{}, &ParseError{Msg: "empty source"}
	}
	cleaned := stripComments(source)
	if err := checkBraces(cleaned); err != nil {
		return ShaderReflect{}, err
	}

	r := ShaderReflect{
		VertexEntry:   parseEntryPoint(cleaned, wgpu.ShaderStageVertex),
		FragmentEntry: parseEntryPoint(cleaned, wgpu.ShaderStageFragment),
		ComputeEntry:  parseEntryPoint(cleaned, wgpu.ShaderStageCompute),
	}
	switch {
	case r.ComputeEntry != "" && (r.VertexEntry != "" || r.FragmentEntry != ""):
		return ShaderReflect{}, &ParseError{Msg: "compute entry point cannot be combined with vertex or fragment entry points"}
	case r.ComputeEntry != "":
		r.Kind = ReflectCompute
		r.WorkgroupSize = parseWorkgroupSize(cleaned)
	case r.VertexEntry != "" && r.FragmentEntry != "":
		r.Kind = ReflectVertexFragment
	case r.VertexEntry != "":
		r.Kind = ReflectVertex
	case r.FragmentEntry != "":
		r.Kind = ReflectFragment
	default:
		return ShaderReflect{}, &ParseError{Msg: "no @vertex, @fragment or @compute entry point"}
	}

	structs := parseStructBlocks(cleaned)
	layouts := computeStructSizes(structs)

	bindings, err := parseBindings(cleaned, structs, layouts, r.Kind.Stages())
	if err != nil {
		return ShaderReflect{}, err
	}
	r.Bindings = bindings

	if r.VertexEntry != "" {
		vi, err := parseVertexInput(cleaned, r.VertexEntry, structs)
		if err != nil {
			return ShaderReflect{}, err
		}
		r.VertexInput = vi
	}

	ast, err := naga.Parse(source)
	if err != nil {
		return ShaderReflect{}, &ParseError{Msg: err.Error()}
	}
	module, err := naga.Lower(ast)
	if err != nil {
		return ShaderReflect{}, &ParseError{Msg: err.Error()}
	}
	if err := checkAgainstModule(r, module.EntryPoints, module.GlobalVariables); err != nil {
		return ShaderReflect{}, err
	}
	return r, nil
}

// checkAgainstModule verifies the entry points and resource bindings found in the source text against the
// lowered naga module. Every bound global of the module must be reflected at the same (group, binding)
// and every reflected entry point must exist in the module.
func checkAgainstModule(r ShaderReflect, entryPoints []ir.EntryPoint, globals []ir.GlobalVariable) error {
	entries := make(map[string]bool, len(entryPoints))
	for _, ep := range entryPoints {
		entries[ep.Name] = true
	}
	for _, name := range []string{r.VertexEntry, r.FragmentEntry, r.ComputeEntry} {
		if name != "" && !entries[name] {
			return &ParseError{Msg: fmt.Sprintf("entry point %q is not declared by the module", name)}
		}
	}

	reflected := make(map[string]ShaderBindingInfo, len(r.Bindings))
	for _, b := range r.Bindings {
		if b.Kind.Type != BindingPushConstant {
			reflected[b.Name] = b
		}
	}
	for _, gv := range globals {
		if gv.Binding == nil {
			continue
		}
		b, ok := reflected[gv.Name]
		if !ok {
			return &ParseError{Msg: fmt.Sprintf("@group(%d) @binding(%d) %q could not be reflected",
				gv.Binding.Group, gv.Binding.Binding, gv.Name)}
		}
		if b.Group != uint32(gv.Binding.Group) || b.Binding != uint32(gv.Binding.Binding) {
			return &ParseError{Msg: fmt.Sprintf("%q is reflected at @group(%d) @binding(%d) but declared at @group(%d) @binding(%d)",
				gv.Name, b.Group, b.Binding, gv.Binding.Group, gv.Binding.Binding)}
		}
		delete(reflected, gv.Name)
	}
	for name, b := range reflected {
		return &ParseError{Msg: fmt.Sprintf("@group(%d) @binding(%d) %q is not a resource of the module", b.Group, b.Binding, name)}
	}
	return nil
}

// parseBindings extracts every @group/@binding declaration and push constant block, classifies it,
// sizes buffers and returns them ordered by (group, binding).
//
// Parameters:
//   - source: comment-free WGSL source
//   - structs: parsed struct blocks of the source
//   - layouts: resolved struct layouts
//   - stages: the stages the source provides
//
// Returns:
//   - []ShaderBindingInfo: the sorted bindings
//   - error: a *ParseError on duplicates or unclassifiable declarations
func parseBindings(source string, structs []parsedStruct, layouts map[string]wgslTypeLayout, stages wgpu.ShaderStage) ([]ShaderBindingInfo, error) {
	var bindings []ShaderBindingInfo
	seen := make(map[[2]uint32]bool)

	for _, idx := range bindGroupDeclRegex.FindAllStringSubmatchIndex(source, -1) {
		line := lineOf(source, idx[0])
		group, err := strconv.ParseUint(source[idx[2]:idx[3]], 10, 32)
		if err != nil {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("invalid group index: %v", err)}
		}
		binding, err := strconv.ParseUint(source[idx[4]:idx[5]], 10, 32)
		if err != nil {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("invalid binding index: %v", err)}
		}
		addressSpace := ""
		if idx[6] >= 0 {
			addressSpace = strings.TrimSpace(source[idx[6]:idx[7]])
		}
		name := strings.TrimSpace(source[idx[8]:idx[9]])
		typeName := strings.TrimSpace(source[idx[10]:idx[11]])

		key := [2]uint32{uint32(group), uint32(binding)}
		if seen[key] {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("duplicate binding @group(%d) @binding(%d)", group, binding)}
		}
		seen[key] = true

		kind, err := classifyResource(addressSpace, typeName, structs, layouts)
		if err != nil {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("%s: %v", name, err)}
		}
		bindings = append(bindings, ShaderBindingInfo{
			Group:   uint32(group),
			Binding: uint32(binding),
			Name:    name,
			Kind:    kind,
			Stages:  stages,
		})
	}

	pcs := pushConstantRegex.FindAllStringSubmatchIndex(source, -1)
	if len(pcs) > 1 {
		return nil, &ParseError{Line: lineOf(source, pcs[1][0]), Msg: "only one push constant block is supported"}
	}
	for _, idx := range pcs {
		name := source[idx[2]:idx[3]]
		typeName := strings.TrimSpace(source[idx[4]:idx[5]])
		layout, ok := resolveTypeLayout(typeName, layouts)
		if !ok || layout.dynamic {
			return nil, &ParseError{Line: lineOf(source, idx[0]), Msg: fmt.Sprintf("cannot size push constant type %q", typeName)}
		}
		bindings = append(bindings, ShaderBindingInfo{
			Group:   PushConstantGroup,
			Binding: 0,
			Name:    name,
			Kind:    BindingKind{Type: BindingPushConstant, Size: uint32(layout.size)},
			Stages:  stages,
		})
	}

	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].Group != bindings[j].Group {
			return bindings[i].Group < bindings[j].Group
		}
		return bindings[i].Binding < bindings[j].Binding
	})
	return bindings, nil
}

// parseVertexInput reflects the @location parameters of the vertex entry point, either declared inline or
// through a struct parameter. Builtin parameters are skipped. Returns nil when the entry point takes no
// vertex attributes.
//
// Parameters:
//   - source: comment-free WGSL source
//   - entry: the vertex entry point name
//   - structs: parsed struct blocks of the source
//
// Returns:
//   - *VertexInput: the packed vertex input, or nil
//   - error: a *ParseError if an attribute type has no vertex format
func parseVertexInput(source, entry string, structs []parsedStruct) (*VertexInput, error) {
	params, line, ok := functionParams(source, entry)
	if !ok {
		return nil, &ParseError{Msg: fmt.Sprintf("cannot find parameter list of vertex entry point %q", entry)}
	}

	byName := make(map[string]parsedStruct, len(structs))
	for _, ps := range structs {
		byName[ps.name] = ps
	}

	vi := &VertexInput{}
	var fields []parsedField
	for _, f := range parseStructFields(params) {
		if f.isBuiltin {
			continue
		}
		if f.location >= 0 {
			fields = append(fields, f)
			continue
		}
		if ps, ok := byName[f.typeName]; ok {
			vi.Name = ps.name
			for _, sf := range ps.fields {
				if !sf.isBuiltin && sf.location >= 0 {
					fields = append(fields, sf)
				}
			}
		}
	}
	if len(fields) == 0 {
		return nil, nil
	}

	for _, f := range fields {
		info, ok := wgslVertexFormatMap[f.typeName]
		if !ok {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("vertex attribute %s has unsupported type %q", f.name, f.typeName)}
		}
		vi.Attributes = append(vi.Attributes, VertexAttribute{
			Name:     f.name,
			Location: uint32(f.location),
			Offset:   vi.Stride,
			Format:   info.format,
		})
		vi.Stride += info.size
	}
	return vi, nil
}

// functionParams returns the text between the parentheses of fn name(...), and the line it starts on.
func functionParams(source, name string) (string, int, bool) {
	re := regexp.MustCompile(`\bfn\s+` + regexp.QuoteMeta(name) + `\s*\(`)
	loc := re.FindStringIndex(source)
	if loc == nil {
		return "", 0, false
	}
	depth := 1
	for i := loc[1]; i < len(source); i++ {
		switch source[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return source[loc[1]:i], lineOf(source, loc[0]), true
			}
		}
	}
	return "", 0, false
}

// parseWorkgroupSize extracts the @workgroup_size(x, y, z) dimensions from WGSL source.
// Omitted dimensions default to 1. Returns [1, 1, 1] if no @workgroup_size annotation is found.
//
// Parameters:
//   - source: comment-free WGSL source
//
// Returns:
//   - [3]uint32: the workgroup size as [x, y, z]
func parseWorkgroupSize(source string) [3]uint32 {
	result := [3]uint32{1, 1, 1}

	match := workgroupSizeRegex.FindStringSubmatch(source)
	if match == nil {
		return result
	}
	for i := 0; i < 3; i++ {
		if match[i+1] == "" {
			continue
		}
		if v, err := strconv.ParseUint(match[i+1], 10, 32); err == nil {
			result[i] = uint32(v)
		}
	}
	return result
}

// parseEntryPoint extracts the entry point function name for the given stage.
// Returns an empty string if no matching entry point attribute is found.
//
// Parameters:
//   - source: comment-free WGSL source
//   - stage: one of the vertex, fragment or compute stage flags
//
// Returns:
//   - string: the entry point function name, or empty string if not found
func parseEntryPoint(source string, stage wgpu.ShaderStage) string {
	var re *regexp.Regexp
	switch stage {
	case wgpu.ShaderStageVertex:
		re = vertexEntryRegex
	case wgpu.ShaderStageFragment:
		re = fragmentEntryRegex
	case wgpu.ShaderStageCompute:
		re = computeEntryRegex
	default:
		return ""
	}

	if match := re.FindStringSubmatch(source); match != nil {
		return match[1]
	}
	return ""
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source
// and parses their fields including @location and @builtin attributes
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatchIndex(source, -1)
	structs := make([]parsedStruct, 0, len(matches))

	for _, m := range matches {
		structs = append(structs, parsedStruct{
			name:   source[m[2]:m[3]],
			line:   lineOf(source, m[0]),
			fields: parseStructFields(source[m[4]:m[5]]),
		})
	}
	return structs
}

// parseStructFields parses a comma separated list of struct members or function parameters,
// extracting @location and @builtin attributes along with the name and type
//
// Parameters:
//   - body: the content between the braces of a struct or the parentheses of a function
//
// Returns:
//   - []parsedField: all fields found in the body
func parseStructFields(body string) []parsedField {
	parts := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		field := parsedField{location: -1}
		if builtinRegex.MatchString(part) {
			field.isBuiltin = true
		}
		if locMatch := locationRegex.FindStringSubmatch(part); locMatch != nil {
			if loc, err := strconv.Atoi(locMatch[1]); err == nil {
				field.location = loc
			}
		}

		fm := fieldRegex.FindStringSubmatch(part)
		if fm == nil {
			continue
		}
		field.name = fm[1]
		field.typeName = strings.TrimSpace(fm[2])
		fields = append(fields, field)
	}
	return fields
}

// checkBraces verifies that every { has a matching }.
func checkBraces(source string) error {
	var open []int
	for i := 0; i < len(source); i++ {
		switch source[i] {
		case '{':
			open = append(open, i)
		case '}':
			if len(open) == 0 {
				return &ParseError{Line: lineOf(source, i), Msg: "unexpected '}'"}
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) > 0 {
		return &ParseError{Line: lineOf(source, open[len(open)-1]), Msg: "unclosed '{'"}
	}
	return nil
}

// lineOf returns the 1-based line of the byte offset.
func lineOf(source string, offset int) int {
	return strings.Count(source[:offset], "\n") + 1
}
