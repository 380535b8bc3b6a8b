package shader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/naga"
)

// binaryMagic prefixes every binary shader blob.
const binaryMagic = "est-binary-shader-v1"

// ErrBadBinary is returned by DecodeBinary for blobs that are truncated, have the wrong magic or
// contain unknown ids.
var ErrBadBinary = errors.New("invalid binary shader")

// Binary is a precompiled shader: its reflection plus the SPIR-V it was compiled to.
type Binary struct {
	Reflect ShaderReflect
	SPIRV   []uint32
}

// CompileBinary reflects WGSL source and compiles it to SPIR-V.
//
// Parameters:
//   - source: the WGSL source
//
// Returns:
//   - Binary: the reflection and SPIR-V words
//   - error: a *ParseError from reflection or a compile error
func CompileBinary(source string) (Binary, error) {
	r, err := Reflect(source)
	if err != nil {
		return Binary{}, err
	}
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return Binary{}, fmt.Errorf("failed to compile shader: %w", err)
	}
	return Binary{Reflect: r, SPIRV: bytesToWords(spirvBytes)}, nil
}

// bytesToWords converts little-endian SPIR-V bytes to words.
func bytesToWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

// binaryKindID maps reflect kinds to their blob ids.
func binaryKindID(k ReflectKind) uint32 {
	switch k {
	case ReflectVertex:
		return 0
	case ReflectFragment:
		return 1
	case ReflectVertexFragment:
		return 2
	}
	return 3
}

// EncodeBinary serializes a Binary. All integers are little-endian u32 and strings are length prefixed.
//
// Layout:
//
//	magic | kind | entry | [workgroup x y z, compute only] | binding count | bindings... |
//	[vertex input, kinds 0 and 2] | spirv byte length | spirv bytes
//
// Parameters:
//   - b: the binary to encode
//
// Returns:
//   - []byte: the encoded blob
func EncodeBinary(b Binary) []byte {
	w := &blobWriter{}
	w.buf.WriteString(binaryMagic)

	r := b.Reflect
	w.u32(binaryKindID(r.Kind))
	switch r.Kind {
	case ReflectVertex:
		w.str(r.VertexEntry)
	case ReflectFragment:
		w.str(r.FragmentEntry)
	case ReflectVertexFragment:
		w.str(r.VertexEntry + "," + r.FragmentEntry)
	case ReflectCompute:
		w.str(r.ComputeEntry)
		for _, d := range r.WorkgroupSize {
			w.u32(d)
		}
	}

	w.u32(uint32(len(r.Bindings)))
	for _, bi := range r.Bindings {
		w.u32(bi.Group)
		w.u32(bi.Binding)
		w.str(bi.Name)
		w.u32(uint32(bi.Kind.Type) - 1)
		k := bi.Kind
		var flags uint32
		if k.Comparison {
			flags |= 1
		}
		if k.Multisampled {
			flags |= 2
		}
		w.u32(k.Size)
		w.u32(uint32(k.Access))
		w.u32(flags)
		w.u32(uint32(k.ViewDimension))
		w.u32(uint32(k.SampleType))
		w.u32(uint32(k.StorageFormat))
	}

	if r.Kind == ReflectVertex || r.Kind == ReflectVertexFragment {
		vi := r.VertexInput
		if vi == nil {
			vi = &VertexInput{}
		}
		w.str(vi.Name)
		w.u32(uint32(vi.Stride))
		w.u32(uint32(len(vi.Attributes)))
		for _, a := range vi.Attributes {
			w.str(a.Name)
			w.u32(a.Location)
			w.u32(uint32(a.Offset))
			w.u32(uint32(a.Format))
		}
	}

	w.u32(uint32(len(b.SPIRV) * 4))
	for _, word := range b.SPIRV {
		w.u32(word)
	}
	return w.buf.Bytes()
}

// DecodeBinary parses a blob produced by EncodeBinary. Stages of the decoded bindings are derived
// from the kind.
//
// Parameters:
//   - data: the encoded blob
//
// Returns:
//   - Binary: the decoded binary
//   - error: wraps ErrBadBinary when the blob is malformed
func DecodeBinary(data []byte) (Binary, error) {
	if !bytes.HasPrefix(data, []byte(binaryMagic)) {
		return Binary{}, fmt.Errorf("%w: bad magic", ErrBadBinary)
	}
	rd := &blobReader{r: bytes.NewReader(data[len(binaryMagic):])}

	var r ShaderReflect
	kindID := rd.u32()
	entry := rd.str()
	switch kindID {
	case 0:
		r.Kind, r.VertexEntry = ReflectVertex, entry
	case 1:
		r.Kind, r.FragmentEntry = ReflectFragment, entry
	case 2:
		vs, fs, ok := strings.Cut(entry, ",")
		if !ok {
			return Binary{}, fmt.Errorf("%w: entry %q is not a vertex,fragment pair", ErrBadBinary, entry)
		}
		r.Kind, r.VertexEntry, r.FragmentEntry = ReflectVertexFragment, vs, fs
	case 3:
		r.Kind, r.ComputeEntry = ReflectCompute, entry
		for i := range r.WorkgroupSize {
			r.WorkgroupSize[i] = rd.u32()
		}
	default:
		if rd.err == nil {
			return Binary{}, fmt.Errorf("%w: unknown kind id %d", ErrBadBinary, kindID)
		}
	}

	count := rd.u32()
	for i := uint32(0); i < count && rd.err == nil; i++ {
		bi := ShaderBindingInfo{Group: rd.u32(), Binding: rd.u32(), Name: rd.str(), Stages: r.Kind.Stages()}
		typeID := rd.u32()
		if typeID > 5 {
			return Binary{}, fmt.Errorf("%w: unknown binding type id %d", ErrBadBinary, typeID)
		}
		bi.Kind.Type = BindingType(typeID + 1)
		bi.Kind.Size = rd.u32()
		bi.Kind.Access = StorageAccess(rd.u32())
		flags := rd.u32()
		bi.Kind.Comparison = flags&1 != 0
		bi.Kind.Multisampled = flags&2 != 0
		bi.Kind.ViewDimension = wgpu.TextureViewDimension(rd.u32())
		bi.Kind.SampleType = wgpu.TextureSampleType(rd.u32())
		bi.Kind.StorageFormat = wgpu.TextureFormat(rd.u32())
		r.Bindings = append(r.Bindings, bi)
	}

	if r.Kind == ReflectVertex || r.Kind == ReflectVertexFragment {
		vi := &VertexInput{Name: rd.str(), Stride: uint64(rd.u32())}
		n := rd.u32()
		for i := uint32(0); i < n && rd.err == nil; i++ {
			vi.Attributes = append(vi.Attributes, VertexAttribute{
				Name:     rd.str(),
				Location: rd.u32(),
				Offset:   uint64(rd.u32()),
				Format:   wgpu.VertexFormat(rd.u32()),
			})
		}
		if len(vi.Attributes) > 0 {
			r.VertexInput = vi
		}
	}

	size := rd.u32()
	if size%4 != 0 {
		return Binary{}, fmt.Errorf("%w: spirv length %d is not a multiple of 4", ErrBadBinary, size)
	}
	spirv := rd.bytes(size)
	if rd.err != nil {
		return Binary{}, fmt.Errorf("%w: %v", ErrBadBinary, rd.err)
	}
	return Binary{Reflect: r, SPIRV: bytesToWords(spirv)}, nil
}

type blobWriter struct {
	buf bytes.Buffer
}

func (w *blobWriter) u32(v uint32) {
	_ = binary.Write(&w.buf, binary.LittleEndian, v)
}

func (w *blobWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

// blobReader reads sequential fields and keeps the first error.
type blobReader struct {
	r   *bytes.Reader
	err error
}

func (rd *blobReader) u32() uint32 {
	if rd.err != nil {
		return 0
	}
	var v uint32
	if err := binary.Read(rd.r, binary.LittleEndian, &v); err != nil {
		rd.err = err
	}
	return v
}

func (rd *blobReader) bytes(n uint32) []byte {
	if rd.err != nil {
		return nil
	}
	if int64(n) > int64(rd.r.Len()) {
		rd.err = io.ErrUnexpectedEOF
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(rd.r, b); err != nil {
		rd.err = err
	}
	return b
}

func (rd *blobReader) str() string {
	return string(rd.bytes(rd.u32()))
}
