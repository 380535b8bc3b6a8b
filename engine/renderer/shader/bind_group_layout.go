package shader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// BindGroupLayout is the native layout of one bind group together with the entries it was created from.
type BindGroupLayout struct {
	Group   uint32
	Entries []wgpu.BindGroupLayoutEntry
	Native  device.BindGroupLayout
}

// Release frees the native layout.
func (l BindGroupLayout) Release() {
	if l.Native != nil {
		l.Native.Release()
	}
}

// BuildBindGroupLayouts creates one native bind group layout per group declared by the given reflections.
// Groups are dense: a group index skipped by the shaders gets an empty layout so that index i of the
// result is always group i. Entries are sorted by binding and push constant blocks are skipped. A binding
// declared by more than one reflection must have the same kind in each; its visibility is the union.
//
// Parameters:
//   - dev: the device creating the layouts
//   - reflects: the reflections of every stage of one pipeline
//
// Returns:
//   - []BindGroupLayout: the layouts indexed by group
//   - error: if two stages disagree on a binding or the device fails to create a layout
func BuildBindGroupLayouts(dev device.Device, reflects ...ShaderReflect) ([]BindGroupLayout, error) {
	descs, err := bindGroupLayoutDescriptors(reflects...)
	if err != nil {
		return nil, err
	}

	layouts := make([]BindGroupLayout, 0, len(descs))
	for i, desc := range descs {
		native, err := dev.CreateBindGroupLayout(desc)
		if err != nil {
			for _, l := range layouts {
				l.Release()
			}
			return nil, fmt.Errorf("failed to create bind group layout for group %d: %w", i, err)
		}
		layouts = append(layouts, BindGroupLayout{Group: uint32(i), Entries: desc.Entries, Native: native})
	}
	return layouts, nil
}

// bindGroupLayoutDescriptors merges the bindings of all reflections into dense per-group descriptors.
func bindGroupLayoutDescriptors(reflects ...ShaderReflect) ([]device.BindGroupLayoutDescriptor, error) {
	type merged struct {
		info  ShaderBindingInfo
		entry wgpu.BindGroupLayoutEntry
	}
	groups := make(map[uint32]map[uint32]*merged)
	maxGroup := -1

	for _, r := range reflects {
		for _, b := range r.Bindings {
			if b.Kind.Type == BindingPushConstant {
				continue
			}
			entry, err := layoutEntry(b)
			if err != nil {
				return nil, err
			}
			if groups[b.Group] == nil {
				groups[b.Group] = make(map[uint32]*merged)
			}
			if int(b.Group) > maxGroup {
				maxGroup = int(b.Group)
			}
			if prev, ok := groups[b.Group][b.Binding]; ok {
				if prev.info.Kind != b.Kind {
					return nil, fmt.Errorf("@group(%d) @binding(%d) is declared as %s %q and %s %q",
						b.Group, b.Binding, prev.info.Kind.Type, prev.info.Name, b.Kind.Type, b.Name)
				}
				prev.entry.Visibility |= entry.Visibility
				continue
			}
			groups[b.Group][b.Binding] = &merged{info: b, entry: entry}
		}
	}

	descs := make([]device.BindGroupLayoutDescriptor, maxGroup+1)
	for g := 0; g <= maxGroup; g++ {
		bindings := groups[uint32(g)]
		entries := make([]wgpu.BindGroupLayoutEntry, 0, len(bindings))
		for _, m := range bindings {
			entries = append(entries, m.entry)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Binding < entries[j].Binding })

		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = fmt.Sprint(e.Binding)
		}
		descs[g] = device.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("BindGroupLayout for group %d, binding: %s", g, strings.Join(ids, ", ")),
			Entries: entries,
		}
	}
	return descs, nil
}

// layoutEntry converts a reflected binding into a native layout entry.
//
// Parameters:
//   - b: the reflected binding
//
// Returns:
//   - wgpu.BindGroupLayoutEntry: the layout entry with policy visibility widened by the declaring stages
//   - error: if the binding type is unknown
func layoutEntry(b ShaderBindingInfo) (wgpu.BindGroupLayoutEntry, error) {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    b.Binding,
		Visibility: defaultVisibility(b.Kind) | b.Stages,
	}

	k := b.Kind
	switch k.Type {
	case BindingUniformBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		entry.Buffer.MinBindingSize = uint64(k.Size)
	case BindingStorageBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		if k.Access.Has(AccessWrite) || k.Access.Has(AccessAtomic) {
			entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		}
		if k.Size != DynamicSize {
			entry.Buffer.MinBindingSize = uint64(k.Size)
		}
	case BindingSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
		if k.Comparison {
			entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
		}
	case BindingTexture:
		entry.Texture.SampleType = k.SampleType
		entry.Texture.ViewDimension = k.ViewDimension
		entry.Texture.Multisampled = k.Multisampled
		if k.Multisampled && k.SampleType == wgpu.TextureSampleTypeFloat {
			entry.Texture.SampleType = wgpu.TextureSampleTypeUnfilterableFloat
		}
	case BindingStorageTexture:
		switch {
		case k.Access.Has(AccessRead | AccessWrite):
			entry.StorageTexture.Access = wgpu.StorageTextureAccessReadWrite
		case k.Access.Has(AccessRead):
			entry.StorageTexture.Access = wgpu.StorageTextureAccessReadOnly
		default:
			entry.StorageTexture.Access = wgpu.StorageTextureAccessWriteOnly
		}
		entry.StorageTexture.Format = k.StorageFormat
		entry.StorageTexture.ViewDimension = k.ViewDimension
	default:
		return wgpu.BindGroupLayoutEntry{}, fmt.Errorf("@group(%d) @binding(%d) %q has unknown binding type %s",
			b.Group, b.Binding, b.Name, k.Type)
	}
	return entry, nil
}

// defaultVisibility is the stage set a binding kind is visible to before the declaring stages are added.
// Writable storage buffers are hidden from the vertex stage, which cannot write storage.
func defaultVisibility(k BindingKind) wgpu.ShaderStage {
	switch k.Type {
	case BindingUniformBuffer:
		return wgpu.ShaderStageVertex | wgpu.ShaderStageFragment | wgpu.ShaderStageCompute
	case BindingStorageBuffer:
		if k.Access.Has(AccessWrite) {
			return wgpu.ShaderStageFragment | wgpu.ShaderStageCompute
		}
		return wgpu.ShaderStageVertex | wgpu.ShaderStageFragment | wgpu.ShaderStageCompute
	case BindingTexture, BindingSampler:
		return wgpu.ShaderStageVertex | wgpu.ShaderStageFragment
	case BindingStorageTexture:
		return wgpu.ShaderStageCompute
	}
	return wgpu.ShaderStageNone
}
