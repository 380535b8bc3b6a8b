package shader

import "github.com/cogentcore/webgpu/wgpu"

// vertexClass is the shader-side numeric type a vertex format is read as.
type vertexClass uint8

const (
	vertexClassFloat vertexClass = iota
	vertexClassSint
	vertexClassUint
)

type vertexFormatDesc struct {
	class      vertexClass
	components uint32
	size       uint64
}

// vertexFormatTable describes every buffer-side vertex format by how the shader reads it.
var vertexFormatTable = map[wgpu.VertexFormat]vertexFormatDesc{
	wgpu.VertexFormatUint8x2:   {vertexClassUint, 2, 2},
	wgpu.VertexFormatUint8x4:   {vertexClassUint, 4, 4},
	wgpu.VertexFormatSint8x2:   {vertexClassSint, 2, 2},
	wgpu.VertexFormatSint8x4:   {vertexClassSint, 4, 4},
	wgpu.VertexFormatUnorm8x2:  {vertexClassFloat, 2, 2},
	wgpu.VertexFormatUnorm8x4:  {vertexClassFloat, 4, 4},
	wgpu.VertexFormatSnorm8x2:  {vertexClassFloat, 2, 2},
	wgpu.VertexFormatSnorm8x4:  {vertexClassFloat, 4, 4},
	wgpu.VertexFormatUint16x2:  {vertexClassUint, 2, 4},
	wgpu.VertexFormatUint16x4:  {vertexClassUint, 4, 8},
	wgpu.VertexFormatSint16x2:  {vertexClassSint, 2, 4},
	wgpu.VertexFormatSint16x4:  {vertexClassSint, 4, 8},
	wgpu.VertexFormatUnorm16x2: {vertexClassFloat, 2, 4},
	wgpu.VertexFormatUnorm16x4: {vertexClassFloat, 4, 8},
	wgpu.VertexFormatSnorm16x2: {vertexClassFloat, 2, 4},
	wgpu.VertexFormatSnorm16x4: {vertexClassFloat, 4, 8},
	wgpu.VertexFormatFloat16x2: {vertexClassFloat, 2, 4},
	wgpu.VertexFormatFloat16x4: {vertexClassFloat, 4, 8},
	wgpu.VertexFormatFloat32:   {vertexClassFloat, 1, 4},
	wgpu.VertexFormatFloat32x2: {vertexClassFloat, 2, 8},
	wgpu.VertexFormatFloat32x3: {vertexClassFloat, 3, 12},
	wgpu.VertexFormatFloat32x4: {vertexClassFloat, 4, 16},
	wgpu.VertexFormatUint32:    {vertexClassUint, 1, 4},
	wgpu.VertexFormatUint32x2:  {vertexClassUint, 2, 8},
	wgpu.VertexFormatUint32x3:  {vertexClassUint, 3, 12},
	wgpu.VertexFormatUint32x4:  {vertexClassUint, 4, 16},
	wgpu.VertexFormatSint32:    {vertexClassSint, 1, 4},
	wgpu.VertexFormatSint32x2:  {vertexClassSint, 2, 8},
	wgpu.VertexFormatSint32x3:  {vertexClassSint, 3, 12},
	wgpu.VertexFormatSint32x4:  {vertexClassSint, 4, 16},
}

// CanConvertVertexFormat reports whether a vertex attribute the shader declares with format from can be fed
// from a buffer holding format to. Both must be read as the same numeric class and to must provide at
// least as many components.
//
// Parameters:
//   - from: the format reflected from the shader
//   - to: the format stored in the vertex buffer
//
// Returns:
//   - bool: true if the conversion is allowed
func CanConvertVertexFormat(from, to wgpu.VertexFormat) bool {
	f, ok := vertexFormatTable[from]
	if !ok {
		return false
	}
	t, ok := vertexFormatTable[to]
	if !ok {
		return false
	}
	return f.class == t.class && t.components >= f.components
}

// VertexFormatSize returns the byte size of a vertex format, or 0 if unknown.
func VertexFormatSize(format wgpu.VertexFormat) uint64 {
	return vertexFormatTable[format].size
}

// repack recomputes attribute offsets and the stride after a format change. Offsets are kept in
// declaration order, each aligned to min(4, size).
func (v *VertexInput) repack() {
	var offset uint64
	for i := range v.Attributes {
		size := VertexFormatSize(v.Attributes[i].Format)
		align := min(size, 4)
		offset = roundUpAlign(align, offset)
		v.Attributes[i].Offset = offset
		offset += size
	}
	v.Stride = roundUpAlign(4, offset)
}
