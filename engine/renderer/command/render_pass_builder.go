package command

import (
	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
)

type colorAttachment struct {
	surface *SurfaceTexture
	texture resource.Texture
	blend   *wgpu.BlendState
}

// colorTarget is a validated color attachment of an open pass.
type colorTarget struct {
	view   device.TextureView
	target pipeline.TargetState
}

// depthTarget is the validated depth attachment of an open pass.
type depthTarget struct {
	view   device.TextureView
	format wgpu.TextureFormat
}

// RenderPassBuilder collects the attachments of a render pass. Attachments are fixed once the pass is
// built. Methods return the builder so calls can be chained.
type RenderPassBuilder struct {
	cmd    *commandSession
	colors []colorAttachment
	msaa   []resource.Texture
	depth  *resource.Texture
}

// AddSurfaceAttachment adds the swapchain image as the next color attachment.
//
// Parameters:
//   - surface: the swapchain image from CommandSession.SurfaceTexture
//   - blend: the blend state of the target, or nil to write without blending
//
// Returns:
//   - *RenderPassBuilder: the builder
func (b *RenderPassBuilder) AddSurfaceAttachment(surface *SurfaceTexture, blend *wgpu.BlendState) *RenderPassBuilder {
	b.colors = append(b.colors, colorAttachment{surface: surface, blend: blend})
	return b
}

// AddColorAttachment adds tex as the next color attachment.
//
// Parameters:
//   - tex: a single-sampled texture with RenderAttachment usage
//   - blend: the blend state of the target, or nil to write without blending
//
// Returns:
//   - *RenderPassBuilder: the builder
func (b *RenderPassBuilder) AddColorAttachment(tex resource.Texture, blend *wgpu.BlendState) *RenderPassBuilder {
	b.colors = append(b.colors, colorAttachment{texture: tex, blend: blend})
	return b
}

// AddMSAAAttachment adds a multisampled texture rendered into and resolved to the color attachment of the
// same index.
func (b *RenderPassBuilder) AddMSAAAttachment(tex resource.Texture) *RenderPassBuilder {
	b.msaa = append(b.msaa, tex)
	return b
}

// SetDepthAttachment sets the depth attachment. It is cleared to 1.0 when the pass starts.
func (b *RenderPassBuilder) SetDepthAttachment(tex resource.Texture) *RenderPassBuilder {
	b.depth = &tex
	return b
}

// Build validates the attachments and opens the pass. Validation stops at the first problem and nothing is
// recorded on failure.
//
// Returns:
//   - RenderPassSession: the open pass
//   - error: a *BuildError comparable with errors.Is against the Err* sentinels
func (b *RenderPassBuilder) Build() (RenderPassSession, error) {
	b.cmd.checkOpen("RenderPassBuilder.Build", true)
	if len(b.colors) > pipeline.MaxColorTargets {
		return nil, &BuildError{Kind: BuildMismatchedAttachmentCount, ExpectedCount: pipeline.MaxColorTargets, ActualCount: uint32(len(b.colors))}
	}

	var (
		size    common.Extent
		sized   bool
		targets = make([]colorTarget, 0, len(b.colors))
	)
	matchSize := func(s common.Extent) error {
		if sized && s != size {
			return &BuildError{Kind: BuildMismatchedAttachmentSize, Expected: size, Actual: s}
		}
		if !sized {
			size, sized = s, true
		}
		return nil
	}

	for _, c := range b.colors {
		var (
			view   device.TextureView
			format wgpu.TextureFormat
			s      common.Extent
		)
		if c.surface != nil {
			view, format, s = c.surface.View(), c.surface.Format(), c.surface.Size()
		} else {
			tex := c.texture
			if !tex.Valid() {
				return nil, ErrStaleAttachment
			}
			if tex.Usage()&wgpu.TextureUsageRenderAttachment == 0 {
				return nil, &BuildError{Kind: BuildColorAttachmentNotRenderTarget, Label: tex.Label()}
			}
			if tex.Size().IsZero() {
				return nil, &BuildError{Kind: BuildMismatchedAttachmentSize, Actual: tex.Size(), Label: tex.Label()}
			}
			if tex.SampleCount() != 1 {
				return nil, &BuildError{Kind: BuildColorAttachmentMultiSampled, Label: tex.Label()}
			}
			view, format, s = tex.View(), tex.Format(), tex.Size()
		}
		if err := matchSize(s); err != nil {
			return nil, err
		}
		target := pipeline.NewTargetState(format)
		if c.blend != nil {
			target = target.WithBlend(*c.blend)
		}
		targets = append(targets, colorTarget{view: view, target: target})
	}

	var (
		msaaViews   = make([]device.TextureView, 0, len(b.msaa))
		sampleCount uint32
	)
	for _, tex := range b.msaa {
		if !tex.Valid() {
			return nil, ErrStaleAttachment
		}
		if tex.Usage()&wgpu.TextureUsageRenderAttachment == 0 {
			return nil, &BuildError{Kind: BuildMsaaTextureNotRenderAttachment, Label: tex.Label()}
		}
		if tex.SampleCount() <= 1 {
			return nil, &BuildError{Kind: BuildMsaaTextureNotMultiSampled, Label: tex.Label()}
		}
		if tex.Size().IsZero() {
			return nil, &BuildError{Kind: BuildMsaaTextureInvalidSize, Actual: tex.Size(), Label: tex.Label()}
		}
		if err := matchSize(tex.Size()); err != nil {
			return nil, err
		}
		if sampleCount != 0 && tex.SampleCount() != sampleCount {
			return nil, &BuildError{Kind: BuildMismatchedAttachmentSampleCount, ExpectedCount: sampleCount, ActualCount: tex.SampleCount(), Label: tex.Label()}
		}
		sampleCount = tex.SampleCount()
		msaaViews = append(msaaViews, tex.View())
	}
	if len(msaaViews) > 0 && len(msaaViews) != len(targets) {
		return nil, &BuildError{Kind: BuildMismatchedAttachmentCount, ExpectedCount: uint32(len(targets)), ActualCount: uint32(len(msaaViews))}
	}
	sampleCount = max(sampleCount, 1)

	var depth *depthTarget
	if b.depth != nil {
		tex := *b.depth
		if !tex.Valid() {
			return nil, ErrStaleAttachment
		}
		if tex.Usage()&wgpu.TextureUsageRenderAttachment == 0 {
			return nil, &BuildError{Kind: BuildDepthTextureNotRenderAttachment, Label: tex.Label()}
		}
		if tex.Size().IsZero() {
			return nil, &BuildError{Kind: BuildDepthTextureInvalidSize, Actual: tex.Size(), Label: tex.Label()}
		}
		if f := tex.Format(); f != wgpu.TextureFormatDepth32Float && f != wgpu.TextureFormatDepth24PlusStencil8 {
			return nil, &BuildError{Kind: BuildDepthTextureFormatNotSupported, Format: f, Label: tex.Label()}
		}
		if err := matchSize(tex.Size()); err != nil {
			return nil, err
		}
		if tex.SampleCount() != sampleCount {
			return nil, &BuildError{Kind: BuildMismatchedAttachmentSampleCount, ExpectedCount: sampleCount, ActualCount: tex.SampleCount(), Label: tex.Label()}
		}
		depth = &depthTarget{view: tex.View(), format: tex.Format()}
	}

	if !sized {
		return nil, ErrNoColorOrDepthAttachment
	}

	p := newRenderPassSession(b.cmd, b.cmd.passLabel("Render"), size, targets, msaaViews, sampleCount, depth)
	b.cmd.active = p
	return p, nil
}
