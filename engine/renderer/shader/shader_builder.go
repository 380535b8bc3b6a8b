package shader

import (
	"fmt"
	"os"
)

// ShaderBuilderOption is a functional option used to configure a Shader during construction.
type ShaderBuilderOption func(*shaderOptions)

type shaderOptions struct {
	sources      []string
	binaries     []Binary
	pp           PreProcessor
	compileCache CompileCache
	err          error
}

// WithSource sets a single WGSL source holding either both graphics entry points or one compute entry point.
//
// Parameters:
//   - source: the WGSL source
//
// Returns:
//   - ShaderBuilderOption: a function that sets the source
func WithSource(source string) ShaderBuilderOption {
	return func(o *shaderOptions) {
		o.sources = []string{source}
	}
}

// WithSplitSource sets separate vertex and fragment WGSL sources.
//
// Parameters:
//   - vertex: the source with the @vertex entry point
//   - fragment: the source with the @fragment entry point
//
// Returns:
//   - ShaderBuilderOption: a function that sets both sources
func WithSplitSource(vertex, fragment string) ShaderBuilderOption {
	return func(o *shaderOptions) {
		o.sources = []string{vertex, fragment}
	}
}

// WithSourceFile reads a single WGSL source from disk.
//
// Parameters:
//   - path: the file path to read WGSL source from
//
// Returns:
//   - ShaderBuilderOption: a function that sets the source read from path
func WithSourceFile(path string) ShaderBuilderOption {
	return func(o *shaderOptions) {
		data, err := os.ReadFile(path)
		if err != nil {
			o.err = fmt.Errorf("failed to read shader source %q: %w", path, err)
			return
		}
		o.sources = []string{string(data)}
	}
}

// WithBinary uses precompiled binaries instead of WGSL source: one combined graphics or compute binary,
// or a vertex binary followed by a fragment binary.
//
// Parameters:
//   - binaries: the binaries to build from
//
// Returns:
//   - ShaderBuilderOption: a function that sets the binaries
func WithBinary(binaries ...Binary) ShaderBuilderOption {
	return func(o *shaderOptions) {
		o.binaries = binaries
	}
}

// WithPreProcessor expands @oxy: annotations in the sources before reflection.
func WithPreProcessor(pp PreProcessor) ShaderBuilderOption {
	return func(o *shaderOptions) {
		o.pp = pp
	}
}

// WithCompileCache compiles sources to SPIR-V through the cache instead of handing WGSL to the device.
func WithCompileCache(cc CompileCache) ShaderBuilderOption {
	return func(o *shaderOptions) {
		o.compileCache = cc
	}
}
