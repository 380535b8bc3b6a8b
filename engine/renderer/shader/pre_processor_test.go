package shader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cameraSnippet = `struct CameraUniform {
    view_proj: mat4x4<f32>,
}`

const lightSnippet = `//@oxy:include camera
struct Light {
    color: vec4<f32>,
}`

func newTestPreProcessor() PreProcessor {
	pp := NewPreProcessor()
	pp.Register("camera", cameraSnippet)
	pp.Register("light", lightSnippet)
	return pp
}

func TestPreProcessorInclude(t *testing.T) {
	pp := newTestPreProcessor()
	out, decls, err := pp.Process("//@oxy:include light\n//@oxy:include camera\nfn main() {}")
	require.NoError(t, err)
	assert.Empty(t, decls)
	assert.Equal(t, 1, strings.Count(out, "struct CameraUniform"), "camera is emitted once")
	assert.Less(t, strings.Index(out, "CameraUniform"), strings.Index(out, "struct Light"))
	assert.NotContains(t, out, "@oxy:")
}

func TestPreProcessorGroup(t *testing.T) {
	pp := newTestPreProcessor()
	src := `//@oxy:include light
// @oxy:group 1 2 storage_read lights array<light>
//@oxy:group 0 0 uniform camera camera`
	out, decls, err := pp.Process(src)
	require.NoError(t, err)
	assert.Contains(t, out, "@group(1) @binding(2) var<storage, read> lights: array<Light>;")
	assert.Contains(t, out, "@group(0) @binding(0) var<uniform> camera: CameraUniform;")

	require.Len(t, decls, 2)
	assert.Equal(t, AnnotationTypeBindingGroup, decls[0].Type)
	assert.EqualValues(t, 1, decls[0].Group)
	assert.EqualValues(t, 2, decls[0].Binding)
	assert.Equal(t, AnnotationArgStorageRead, decls[0].Args[0])
	assert.Equal(t, 2, decls[0].Line)
}

func TestPreProcessorErrors(t *testing.T) {
	pp := newTestPreProcessor()
	pp.Register("a", "//@oxy:include b\nstruct A { x: f32, }")
	pp.Register("b", "//@oxy:include a\nstruct B { x: f32, }")
	pp.Register("plain", "const X: f32 = 1.0;")

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown include", "//@oxy:include nope", "unknown @oxy:include"},
		{"cycle", "//@oxy:include a", "include cycle"},
		{"unknown type", "//@oxy:group 0 0 uniform x nope", "unknown struct type"},
		{"type without struct", "//@oxy:group 0 0 uniform x plain", "unknown struct type"},
		{"bad address space", "//@oxy:group 0 0 private x camera", "unknown address space"},
		{"bad group", "//@oxy:group g 0 uniform x camera", "invalid group number"},
		{"missing args", "//@oxy:group 0 0 uniform", "requires five arguments"},
		{"unknown annotation", "//@oxy:define X", "unknown @oxy annotation"},
		{"empty annotation", "//@oxy:", "empty @oxy annotation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := pp.Process(tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPreProcessorIgnoresNonCommentLines(t *testing.T) {
	pp := newTestPreProcessor()
	src := `const tag = "@oxy:include camera";`
	out, _, err := pp.Process(src)
	require.NoError(t, err)
	assert.Equal(t, src, out)
	assert.True(t, pp.Registered("camera"))
	assert.False(t, pp.Registered("nope"))
}
