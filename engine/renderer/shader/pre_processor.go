// pre_processor.go implements the Oxy WGSL shader pre-processor. It scans shader source for @oxy:
// annotations, replaces them with registered WGSL snippets or generated declarations, and records the
// generated declarations.
package shader

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// firstStructRegex finds the first struct name of a registered snippet.
var firstStructRegex = regexp.MustCompile(`struct\s+(\w+)`)

// registryEntry pairs a WGSL snippet with the type name emitted for it in generated declarations.
type registryEntry struct {
	Source string
	Type   string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	mu       *sync.RWMutex
	registry map[string]registryEntry
}

// PreProcessor expands @oxy: annotations in WGSL source.
type PreProcessor interface {
	// Register adds or replaces a named WGSL snippet usable by @oxy:include and @oxy:group. The type name
	// used by @oxy:group is the first struct declared in the snippet.
	//
	// Parameters:
	//   - name: the name annotations refer to
	//   - source: the WGSL snippet
	Register(name, source string)

	// Registered reports whether a snippet is registered under name.
	Registered(name string) bool

	// Process replaces every annotation of the source with its WGSL output. Includes are expanded
	// recursively; an include cycle is an error. Each name is included at most once per Process call.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code containing annotations to be processed
	//
	// Returns:
	//   - string: the processed WGSL shader source code
	//   - []Annotation: the group annotations found, in source order
	//   - error: an error if any annotation is malformed or references an unknown name
	Process(source string) (string, []Annotation, error)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates an empty PreProcessor.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		mu:       &sync.RWMutex{},
		registry: make(map[string]registryEntry),
	}
}

func (p *preProcessor) Register(name, source string) {
	entry := registryEntry{Source: source}
	if m := firstStructRegex.FindStringSubmatch(stripComments(source)); m != nil {
		entry.Type = m[1]
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registry[name] = entry
}

func (p *preProcessor) Registered(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.registry[name]
	return ok
}

func (p *preProcessor) Process(source string) (string, []Annotation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var decls []Annotation
	out, err := p.expand(source, map[string]bool{}, map[string]bool{}, &decls)
	if err != nil {
		return "", nil, err
	}
	return out, decls, nil
}

// expand processes one source unit. active holds the include chain for cycle detection and done the
// names already emitted.
func (p *preProcessor) expand(source string, active, done map[string]bool, decls *[]Annotation) (string, error) {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case AnnotationTypeInclude:
			name := string(a.Args[0])
			entry, ok := p.registry[name]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include name %q", a.Line, name)
			}
			if active[name] {
				return "", fmt.Errorf("line %d: include cycle through %q", a.Line, name)
			}
			if done[name] {
				out = append(out, "")
				continue
			}
			active[name] = true
			expanded, err := p.expand(entry.Source, active, done, decls)
			delete(active, name)
			if err != nil {
				return "", fmt.Errorf("include %q: %w", name, err)
			}
			done[name] = true
			out = append(out, expanded)
		case AnnotationTypeBindingGroup:
			wgslType, err := p.resolveType(string(a.Args[2]))
			if err != nil {
				return "", fmt.Errorf("line %d: %w", a.Line, err)
			}
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;",
				a.Group, a.Binding, addressSpaceDecl[a.Args[0]], a.Args[1], wgslType))
			*decls = append(*decls, *a)
		}
	}
	return strings.Join(out, "\n"), nil
}

// resolveType maps a group annotation type argument to its WGSL type name.
func (p *preProcessor) resolveType(arg string) (string, error) {
	name, isArray := strings.CutPrefix(arg, "array<")
	if isArray {
		name = strings.TrimSuffix(name, ">")
	}
	entry, ok := p.registry[name]
	if !ok || entry.Type == "" {
		return "", fmt.Errorf("unknown struct type %q in @oxy group annotation", name)
	}
	if isArray {
		return fmt.Sprintf("array<%s>", entry.Type), nil
	}
	return entry.Type, nil
}
