// annotations.go defines the annotation syntax of the Oxy WGSL pre-processor. Annotations are single-line
// WGSL comments prefixed with @oxy: that pull registered WGSL snippets into a shader or generate
// @group/@binding declarations for registered struct types.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude injects the WGSL source registered under a name at the annotation site.
	//
	// Syntax: //@oxy:include <name>
	//
	// Example: //@oxy:include camera
	AnnotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a @group/@binding variable declaration whose type is the struct
	// registered under a name, optionally wrapped in a runtime-sized array.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <name|array<name>>
	//
	// Example: //@oxy:group 0 0 uniform camera camera
	AnnotationTypeBindingGroup AnnotationType = "group"
)

// Annotation is a single parsed @oxy: annotation.
type Annotation struct {
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include: [0] = registered name
	//   - group:   [0] = address space, [1] = var name, [2] = type argument
	Args []AnnotationArg

	// Line is the 1-based line number of the annotation, used for error reporting.
	Line int

	// Group and Binding are set for group annotations.
	Group   uint32
	Binding uint32
}

// AnnotationArg is a single annotation argument.
type AnnotationArg string

// Address space arguments accepted by @oxy:group.
const (
	AnnotationArgUniform          AnnotationArg = "uniform"
	AnnotationArgStorageRead      AnnotationArg = "storage_read"
	AnnotationArgStorageReadWrite AnnotationArg = "storage_read_write"
)

// addressSpaceDecl maps address space arguments to their WGSL var<> syntax.
var addressSpaceDecl = map[AnnotationArg]string{
	AnnotationArgUniform:          "var<uniform>",
	AnnotationArgStorageRead:      "var<storage, read>",
	AnnotationArgStorageReadWrite: "var<storage, read_write>",
}

var validAddressSpaces = []AnnotationArg{
	AnnotationArgUniform,
	AnnotationArgStorageRead,
	AnnotationArgStorageReadWrite,
}

// parseAnnotation attempts to parse a single line of WGSL source as an @oxy: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case AnnotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		return &Annotation{
			Type: AnnotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case AnnotationTypeBindingGroup:
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires five arguments (group, binding, address space, name, type)", lineNum)
		}
		group, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid group number %q in @oxy group annotation: %w", lineNum, args[1], err)
		}
		binding, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid binding number %q in @oxy group annotation: %w", lineNum, args[2], err)
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @oxy group annotation", lineNum, args[3])
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   uint32(group),
			Binding: uint32(binding),
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}
