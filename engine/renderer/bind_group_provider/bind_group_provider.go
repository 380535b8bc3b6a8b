package bind_group_provider

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// ResourceKind is the kind of resource attached at a binding.
type ResourceKind uint8

const (
	ResourceBuffer ResourceKind = iota + 1
	ResourceTexture
	ResourceStorageTexture
	ResourceSampler
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceBuffer:
		return "buffer"
	case ResourceTexture:
		return "texture"
	case ResourceStorageTexture:
		return "storage texture"
	case ResourceSampler:
		return "sampler"
	}
	return "unknown"
}

// code is the single byte written for the kind in a Key.
func (k ResourceKind) code() byte {
	switch k {
	case ResourceBuffer:
		return 'b'
	case ResourceTexture:
		return 't'
	case ResourceStorageTexture:
		return 'T'
	case ResourceSampler:
		return 's'
	}
	return '?'
}

// Namespace separates the bind groups of graphics and compute passes in the cache.
type Namespace uint8

const (
	NamespaceGraphics Namespace = iota
	NamespaceCompute
)

// Attachment is one resource attached at a (group, binding) slot.
type Attachment struct {
	Kind   ResourceKind
	Buffer resource.Buffer
	Offset uint64
	// Size is the bound range of a buffer, 0 meaning the rest of the buffer after Offset.
	Size    uint64
	Texture resource.Texture
	Sampler resource.Sampler
}

// ResourceID returns the pool ID of the attached resource.
func (a Attachment) ResourceID() resource.ID {
	switch a.Kind {
	case ResourceBuffer:
		return a.Buffer.ID()
	case ResourceTexture, ResourceStorageTexture:
		return a.Texture.ID()
	case ResourceSampler:
		return a.Sampler.ID()
	}
	return resource.ID{}
}

// valid reports whether the attached resource is still alive.
func (a Attachment) valid() bool {
	switch a.Kind {
	case ResourceBuffer:
		return a.Buffer.Valid()
	case ResourceTexture, ResourceStorageTexture:
		return a.Texture.Valid()
	case ResourceSampler:
		return a.Sampler.Valid()
	}
	return false
}

// rangeSize returns the bound byte range of a buffer attachment.
func (a Attachment) rangeSize() uint64 {
	if a.Size != 0 {
		return a.Size
	}
	if size := a.Buffer.Size(); size > a.Offset {
		return size - a.Offset
	}
	return 0
}

// Slot is a (group, binding) pair.
type Slot struct {
	Group   uint32
	Binding uint32
}

// Key identifies a set of bind groups in the bind group cache. Entries is a canonical encoding of every
// attachment in (group, binding) order, so equal keys always describe the same resources bound to the
// same layouts.
type Key struct {
	Namespace Namespace
	// Layouts identifies the owner of the bind group layouts, the shader.
	Layouts uuid.UUID
	Entries string
}

// GroupBinding is one native bind group and the group index it binds to.
type GroupBinding struct {
	Group     uint32
	BindGroup device.BindGroup
}

// BindGroups is the set of native bind groups built for one Key.
type BindGroups []GroupBinding

// Release frees every native bind group.
func (b BindGroups) Release() {
	for _, g := range b {
		g.BindGroup.Release()
	}
}

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	mu *sync.Mutex

	// label is a debug label added for convenience.
	label       string
	attachments map[Slot]Attachment
}

// BindGroupProvider accumulates the resources a draw or dispatch binds. Each Set call overwrites the
// attachment at its slot; setting a zero handle removes it. The provider derives the bind group cache key
// from its attachments and builds the native bind groups on a cache miss.
type BindGroupProvider interface {
	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// SetBuffer attaches a whole buffer.
	//
	// Parameters:
	//   - group: the bind group index
	//   - binding: the binding index
	//   - buf: the buffer, or a zero Buffer to remove the attachment
	SetBuffer(group, binding uint32, buf resource.Buffer)

	// SetBufferRange attaches size bytes of a buffer starting at offset. A size of 0 binds the rest of
	// the buffer.
	SetBufferRange(group, binding uint32, buf resource.Buffer, offset, size uint64)

	// SetTexture attaches the default view of a sampled texture.
	SetTexture(group, binding uint32, tex resource.Texture)

	// SetStorageTexture attaches the default view of a storage texture.
	SetStorageTexture(group, binding uint32, tex resource.Texture)

	// SetSampler attaches a sampler.
	SetSampler(group, binding uint32, s resource.Sampler)

	// Remove detaches whatever is attached at the slot.
	Remove(group, binding uint32)

	// Attachment returns the attachment at the slot.
	Attachment(group, binding uint32) (Attachment, bool)

	// Slots returns the attached slots in (group, binding) order.
	Slots() []Slot

	// Reset removes every attachment.
	Reset()

	// Key derives the cache key of the current attachments.
	//
	// Parameters:
	//   - ns: the cache namespace of the pass kind
	//   - layouts: the identity of the bind group layouts' owner
	//
	// Returns:
	//   - Key: the bind group cache key
	Key(ns Namespace, layouts uuid.UUID) Key

	// Validate checks the attachments against a shader: every attachment must match a binding of the same
	// kind with enough size and the right usage, and every binding of the shader must be attached.
	//
	// Parameters:
	//   - s: the shader the bind groups will be used with
	//
	// Returns:
	//   - error: every problem found, joined
	Validate(s shader.Shader) error

	// ValidateSlot checks the attachment at (group, binding) against the shader binding declared there.
	// An empty slot, or one the shader does not declare, is left to Validate.
	//
	// Parameters:
	//   - s: the shader the bind groups will be used with
	//   - group: the bind group index
	//   - binding: the binding index
	//
	// Returns:
	//   - error: why the attachment cannot serve the binding, or nil
	ValidateSlot(s shader.Shader, group, binding uint32) error

	// Build creates one native bind group per bind group layout of the shader, entries sorted by binding.
	// Groups without bindings get an empty bind group.
	//
	// Parameters:
	//   - dev: the device to create bind groups on
	//   - s: the shader owning the layouts
	//
	// Returns:
	//   - BindGroups: the native bind groups
	//   - error: if validation or native creation fails
	Build(dev device.Device, s shader.Shader) (BindGroups, error)
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: a debug label used for the native bind groups
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		mu:          &sync.Mutex{},
		label:       label,
		attachments: make(map[Slot]Attachment),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) set(group, binding uint32, a Attachment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot := Slot{Group: group, Binding: binding}
	if a.ResourceID().IsZero() {
		delete(p.attachments, slot)
		return
	}
	p.attachments[slot] = a
}

func (p *bindGroupProvider) SetBuffer(group, binding uint32, buf resource.Buffer) {
	p.set(group, binding, Attachment{Kind: ResourceBuffer, Buffer: buf})
}

func (p *bindGroupProvider) SetBufferRange(group, binding uint32, buf resource.Buffer, offset, size uint64) {
	p.set(group, binding, Attachment{Kind: ResourceBuffer, Buffer: buf, Offset: offset, Size: size})
}

func (p *bindGroupProvider) SetTexture(group, binding uint32, tex resource.Texture) {
	p.set(group, binding, Attachment{Kind: ResourceTexture, Texture: tex})
}

func (p *bindGroupProvider) SetStorageTexture(group, binding uint32, tex resource.Texture) {
	p.set(group, binding, Attachment{Kind: ResourceStorageTexture, Texture: tex})
}

func (p *bindGroupProvider) SetSampler(group, binding uint32, s resource.Sampler) {
	p.set(group, binding, Attachment{Kind: ResourceSampler, Sampler: s})
}

func (p *bindGroupProvider) Remove(group, binding uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.attachments, Slot{Group: group, Binding: binding})
}

func (p *bindGroupProvider) Attachment(group, binding uint32) (Attachment, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.attachments[Slot{Group: group, Binding: binding}]
	return a, ok
}

func (p *bindGroupProvider) Slots() []Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sortedSlots()
}

func (p *bindGroupProvider) sortedSlots() []Slot {
	slots := make([]Slot, 0, len(p.attachments))
	for s := range p.attachments {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Group != slots[j].Group {
			return slots[i].Group < slots[j].Group
		}
		return slots[i].Binding < slots[j].Binding
	})
	return slots
}

func (p *bindGroupProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.attachments)
}

func (p *bindGroupProvider) Key(ns Namespace, layouts uuid.UUID) Key {
	p.mu.Lock()
	defer p.mu.Unlock()

	// group:binding:kind index.generation[@offset+size];
	buf := make([]byte, 0, 24*len(p.attachments))
	for _, slot := range p.sortedSlots() {
		a := p.attachments[slot]
		id := a.ResourceID()
		buf = strconv.AppendUint(buf, uint64(slot.Group), 10)
		buf = append(buf, ':')
		buf = strconv.AppendUint(buf, uint64(slot.Binding), 10)
		buf = append(buf, ':', a.Kind.code())
		buf = strconv.AppendUint(buf, uint64(id.Index), 10)
		buf = append(buf, '.')
		buf = strconv.AppendUint(buf, uint64(id.Generation), 10)
		if a.Kind == ResourceBuffer {
			buf = append(buf, '@')
			buf = strconv.AppendUint(buf, a.Offset, 10)
			buf = append(buf, '+')
			buf = strconv.AppendUint(buf, a.Size, 10)
		}
		buf = append(buf, ';')
	}
	return Key{Namespace: ns, Layouts: layouts, Entries: string(buf)}
}

func (p *bindGroupProvider) Validate(s shader.Shader) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.validate(s)
}

func (p *bindGroupProvider) ValidateSlot(s shader.Shader, group, binding uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot := Slot{Group: group, Binding: binding}
	a, ok := p.attachments[slot]
	if !ok {
		return nil
	}
	if b, ok := s.Binding(group, binding); !ok || b.Kind.Type == shader.BindingPushConstant {
		return nil
	}
	return checkAttachment(s, slot, a)
}

func (p *bindGroupProvider) validate(s shader.Shader) error {
	var errs []error
	for _, slot := range p.sortedSlots() {
		if err := checkAttachment(s, slot, p.attachments[slot]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, layout := range s.BindGroupLayouts() {
		for _, e := range layout.Entries {
			if _, ok := p.attachments[Slot{Group: layout.Group, Binding: e.Binding}]; !ok {
				b, _ := s.Binding(layout.Group, e.Binding)
				errs = append(errs, fmt.Errorf("@group(%d) @binding(%d) %q of shader %s has nothing attached",
					layout.Group, e.Binding, b.Name, s.Key()))
			}
		}
	}
	return errors.Join(errs...)
}

// checkAttachment verifies one attachment against the shader binding at its slot.
func checkAttachment(s shader.Shader, slot Slot, a Attachment) error {
	where := fmt.Sprintf("@group(%d) @binding(%d)", slot.Group, slot.Binding)
	b, ok := s.Binding(slot.Group, slot.Binding)
	if !ok || b.Kind.Type == shader.BindingPushConstant {
		return fmt.Errorf("%s: shader %s declares no binding there", where, s.Key())
	}
	if !a.valid() {
		return fmt.Errorf("%s: %s %s: %w", where, a.Kind, a.ResourceID(), resource.ErrStaleHandle)
	}

	mismatch := func() error {
		return fmt.Errorf("%s: %s attached to %q, which expects a %s", where, a.Kind, b.Name, b.Kind.Type)
	}
	switch a.Kind {
	case ResourceBuffer:
		var usage wgpu.BufferUsage
		switch b.Kind.Type {
		case shader.BindingUniformBuffer:
			usage = wgpu.BufferUsageUniform
		case shader.BindingStorageBuffer:
			usage = wgpu.BufferUsageStorage
		default:
			return mismatch()
		}
		if a.Buffer.Usage()&usage == 0 {
			return fmt.Errorf("%s: buffer %s lacks the usage %q needs", where, a.Buffer.Label(), b.Name)
		}
		if a.Offset+a.rangeSize() > a.Buffer.Size() {
			return fmt.Errorf("%s: range %d+%d exceeds buffer %s of %d bytes", where, a.Offset, a.rangeSize(), a.Buffer.Label(), a.Buffer.Size())
		}
		if b.Kind.Size != shader.DynamicSize && a.rangeSize() < uint64(b.Kind.Size) {
			return fmt.Errorf("%s: %q needs %d bytes, buffer %s binds %d", where, b.Name, b.Kind.Size, a.Buffer.Label(), a.rangeSize())
		}
	case ResourceTexture:
		if b.Kind.Type != shader.BindingTexture {
			return mismatch()
		}
		if a.Texture.Usage()&wgpu.TextureUsageTextureBinding == 0 {
			return fmt.Errorf("%s: texture %s lacks TextureBinding usage", where, a.Texture.Label())
		}
		if b.Kind.Multisampled != (a.Texture.SampleCount() > 1) {
			return fmt.Errorf("%s: texture %s has %d samples, %q multisampled=%t", where, a.Texture.Label(), a.Texture.SampleCount(), b.Name, b.Kind.Multisampled)
		}
	case ResourceStorageTexture:
		if b.Kind.Type != shader.BindingStorageTexture {
			return mismatch()
		}
		if a.Texture.Usage()&wgpu.TextureUsageStorageBinding == 0 {
			return fmt.Errorf("%s: texture %s lacks StorageBinding usage", where, a.Texture.Label())
		}
		if a.Texture.Format() != b.Kind.StorageFormat {
			return fmt.Errorf("%s: texture %s format %d does not match storage format %d of %q", where, a.Texture.Label(), a.Texture.Format(), b.Kind.StorageFormat, b.Name)
		}
	case ResourceSampler:
		if b.Kind.Type != shader.BindingSampler {
			return mismatch()
		}
	}
	return nil
}

func (p *bindGroupProvider) Build(dev device.Device, s shader.Shader) (BindGroups, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.validate(s); err != nil {
		return nil, err
	}

	layouts := s.BindGroupLayouts()
	groups := make(BindGroups, 0, len(layouts))
	for _, layout := range layouts {
		entries := make([]device.BindGroupEntry, 0, len(layout.Entries))
		ids := make([]string, 0, len(layout.Entries))
		for _, e := range layout.Entries {
			a := p.attachments[Slot{Group: layout.Group, Binding: e.Binding}]
			entry := device.BindGroupEntry{Binding: e.Binding}
			switch a.Kind {
			case ResourceBuffer:
				entry.Buffer = a.Buffer.Native()
				entry.Offset = a.Offset
				entry.Size = a.rangeSize()
			case ResourceTexture, ResourceStorageTexture:
				entry.TextureView = a.Texture.View()
			case ResourceSampler:
				entry.Sampler = a.Sampler.Native()
			}
			entries = append(entries, entry)
			ids = append(ids, strconv.FormatUint(uint64(e.Binding), 10))
		}

		bg, err := dev.CreateBindGroup(device.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s group %d, binding: %s", p.label, layout.Group, strings.Join(ids, ", ")),
			Layout:  layout.Native,
			Entries: entries,
		})
		if err != nil {
			groups.Release()
			return nil, fmt.Errorf("failed to create bind group %d for shader %s: %w", layout.Group, s.Key(), err)
		}
		groups = append(groups, GroupBinding{Group: layout.Group, BindGroup: bg})
	}
	return groups, nil
}
