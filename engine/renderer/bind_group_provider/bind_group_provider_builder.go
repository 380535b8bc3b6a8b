package bind_group_provider

import "github.com/Carmen-Shannon/oxy-gpu/engine/renderer/resource"

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithAttachment attaches a resource at a slot.
//
// Parameters:
//   - group: the bind group index
//   - binding: the binding index
//   - a: the attachment to set
//
// Returns:
//   - BindGroupProviderOption: a function that sets the attachment on the provider
func WithAttachment(group, binding uint32, a Attachment) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		if a.ResourceID().IsZero() {
			return
		}
		p.attachments[Slot{Group: group, Binding: binding}] = a
	}
}

// WithBuffer attaches a whole buffer at a slot.
//
// Parameters:
//   - group: the bind group index
//   - binding: the binding index for this buffer
//   - buf: the buffer to associate with this binding
//
// Returns:
//   - BindGroupProviderOption: a function that sets the buffer for the specified binding
func WithBuffer(group, binding uint32, buf resource.Buffer) BindGroupProviderOption {
	return WithAttachment(group, binding, Attachment{Kind: ResourceBuffer, Buffer: buf})
}

// WithBuffers attaches several whole buffers in one group, keyed by binding index.
//
// Parameters:
//   - group: the bind group index
//   - buffers: a map of binding indices to buffers
//
// Returns:
//   - BindGroupProviderOption: a function that sets multiple buffers for this provider
func WithBuffers(group uint32, buffers map[uint32]resource.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		for binding, buf := range buffers {
			WithBuffer(group, binding, buf)(p)
		}
	}
}

// WithTexture attaches a sampled texture and its sampler in one group.
func WithTexture(group, textureBinding, samplerBinding uint32, tex resource.Texture, s resource.Sampler) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		WithAttachment(group, textureBinding, Attachment{Kind: ResourceTexture, Texture: tex})(p)
		WithAttachment(group, samplerBinding, Attachment{Kind: ResourceSampler, Sampler: s})(p)
	}
}
