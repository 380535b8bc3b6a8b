package command

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device/devicetest"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadScene holds what a pass drawing quadWGSL needs.
type quadScene struct {
	shader   shader.Shader
	target   resource.Texture
	vertices resource.Buffer
	indices  resource.Buffer
	tint     resource.Buffer
}

func newQuadScene(t *testing.T, c *testContext) *quadScene {
	t.Helper()
	return &quadScene{
		shader:   c.shader(t, "quad", quadWGSL),
		target:   c.target(t, 64, 64),
		vertices: c.buffer(t, "quad vertices", 32, wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst),
		indices:  c.buffer(t, "quad indices", 12, wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst),
		tint:     c.buffer(t, "tint", 16, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst),
	}
}

// bind sets everything a quad draw needs on pass.
func (q *quadScene) bind(pass RenderPassSession) {
	pass.SetShader(q.shader)
	pass.SetVertexBuffer(0, q.vertices, 0)
	pass.SetGPUBuffer(0, 0, q.tint)
}

func TestRenderPassReplaysDrawsInOrder(t *testing.T) {
	c := newTestContext(t)
	q := newQuadScene(t, c)

	cmd := c.session(t, WithLabel("frame"))
	pass, err := cmd.BeginTexturePass(q.target)
	require.NoError(t, err)
	assert.Equal(t, "frame Render Pass 1", pass.Label())
	assert.Equal(t, common.Extent{Width: 64, Height: 64}, pass.Extent())
	assert.EqualValues(t, 1, pass.SampleCount())

	q.bind(pass)
	pass.Draw(4, 1, 0, 0)
	pass.SetCullMode(wgpu.CullModeBack)
	pass.Draw(4, 2, 0, 0)
	assert.Equal(t, 2, pass.Queued())
	assert.Empty(t, c.dev.Submissions(), "nothing is recorded before End")

	require.NoError(t, pass.End())
	require.NoError(t, cmd.Finish(false))

	sub := c.dev.LastSubmission()
	assert.Equal(t, "frame", sub.Label)
	require.Len(t, sub.Passes, 1)
	p := sub.Passes[0]
	assert.False(t, p.Compute)
	drawOps := []string{"SetPipeline", "SetBindGroup", "SetVertexBuffer", "SetScissorRect", "SetViewport", "Draw"}
	assert.Equal(t, append(append([]string{}, drawOps...), drawOps...), p.Ops())

	draws := p.CommandsOf("Draw")
	assert.Equal(t, []uint32{4, 1, 0, 0}, draws[0].Args)
	assert.Equal(t, []uint32{4, 2, 0, 0}, draws[1].Args)
	assert.Equal(t, []uint32{0, 0, 64, 64}, p.CommandsOf("SetScissorRect")[0].Args)

	desc := p.Descriptor
	assert.Equal(t, "frame Render Pass 1", desc.Label)
	require.Len(t, desc.ColorAttachments, 1)
	a := desc.ColorAttachments[0]
	assert.Equal(t, q.target.View(), a.View)
	assert.Nil(t, a.ResolveTarget)
	assert.Equal(t, wgpu.LoadOpClear, a.LoadOp)
	assert.Equal(t, wgpu.StoreOpStore, a.StoreOp)
	assert.Equal(t, wgpu.Color{A: 1}, a.ClearValue)
	assert.Nil(t, desc.DepthAttachment)

	// the cull mode change needs a second pipeline but the attachments are shared
	assert.Equal(t, 2, c.dev.Created(devicetest.KindRenderPipeline))
	assert.Equal(t, 1, c.dev.Created(devicetest.KindBindGroup))
	// the first draw is bound to the pipeline created first, the second to the culled one
	pipelines := p.CommandsOf("SetPipeline")
	require.Len(t, pipelines, 2)
	assert.Equal(t, pipelines[0].Target, pipelines[1].Target, "pipelines are labelled after their shader")
	assert.NotZero(t, pipelines[0].Serial)
	assert.Less(t, pipelines[0].Serial, pipelines[1].Serial)
}

func TestRenderPassReusesCachedObjects(t *testing.T) {
	c := newTestContext(t)
	q := newQuadScene(t, c)

	for range 3 {
		cmd := c.session(t)
		pass, err := cmd.BeginTexturePass(q.target)
		require.NoError(t, err)
		q.bind(pass)
		pass.Draw(4, 1, 0, 0)
		require.NoError(t, pass.End())
		require.NoError(t, cmd.Finish(false))
	}

	assert.Equal(t, 1, c.dev.Created(devicetest.KindRenderPipeline))
	assert.Equal(t, 1, c.dev.Created(devicetest.KindBindGroup))
	assert.EqualValues(t, 2, c.pipelines.Stats().Hits)
	assert.EqualValues(t, 2, c.bindGroups.Stats().Hits)
	assert.Len(t, c.dev.Submissions(), 3)
}

func TestDrawCapturesStateWhenIssued(t *testing.T) {
	c := newTestContext(t)
	q := newQuadScene(t, c)
	other := c.buffer(t, "other tint", 16, wgpu.BufferUsageUniform)

	cmd := c.session(t)
	pass, err := cmd.BeginTexturePass(q.target)
	require.NoError(t, err)
	q.bind(pass)

	first := make([]byte, 16)
	for i := range first {
		first[i] = 1
	}
	require.NoError(t, pass.SetPushConstants(first))
	pass.Draw(4, 1, 0, 0)

	pass.SetGPUBuffer(0, 0, other)
	require.NoError(t, pass.SetPushConstants([]byte{9, 9, 9, 9, 9, 9}))
	pass.SetViewport(common.Viewport{Width: 32, Height: 32, MaxDepth: 1})
	pass.Draw(4, 1, 0, 0)

	// a new shader drops the push constants
	pass.SetShader(q.shader)
	pass.Draw(4, 1, 0, 0)
	require.NoError(t, pass.End())
	require.NoError(t, cmd.Finish(false))

	p := c.dev.LastSubmission().Passes[0]
	push := p.CommandsOf("SetPushConstants")
	require.Len(t, push, 2)
	assert.Equal(t, first, push[0].Data)
	assert.Equal(t, []byte{9, 9, 9, 9, 9, 9, 0, 0}, push[1].Data, "payload is zero-padded to 4 bytes")
	assert.Equal(t, uint32(wgpu.ShaderStageVertex|wgpu.ShaderStageFragment), push[0].Args[0])

	viewports := p.CommandsOf("SetViewport")
	require.Len(t, viewports, 3)
	assert.Equal(t, []uint32{0, 0, 64, 64}, viewports[0].Args)
	assert.Equal(t, []uint32{0, 0, 32, 32}, viewports[1].Args)

	assert.Equal(t, 2, c.dev.Created(devicetest.KindBindGroup))
	assert.Equal(t, 1, c.dev.Created(devicetest.KindRenderPipeline))
}

func TestSetPushConstants(t *testing.T) {
	c := newTestContext(t)
	q := newQuadScene(t, c)
	plain := c.shader(t, "fullscreen", fullscreenWGSL)

	cmd := c.session(t)
	pass, err := cmd.BeginTexturePass(q.target)
	require.NoError(t, err)

	requireViolation(t, func() { _ = pass.SetPushConstants([]byte{1, 2, 3, 4}) })

	pass.SetShader(q.shader)
	assert.ErrorIs(t, pass.SetPushConstants(make([]byte, 20)), ErrPushConstantsTooLarge)
	assert.NoError(t, pass.SetPushConstants(make([]byte, 16)))
	assert.NoError(t, pass.SetPushConstants(nil))

	pass.SetShader(plain)
	assert.ErrorIs(t, pass.SetPushConstants([]byte{1, 2, 3, 4}), ErrNoPushConstants)
	assert.NoError(t, pass.SetPushConstants(nil))
}

func TestIndexedAndIndirectDraws(t *testing.T) {
	c := newTestContext(t)
	q := newQuadScene(t, c)
	args := c.buffer(t, "draw args", 20, wgpu.BufferUsageIndirect|wgpu.BufferUsageStorage)

	cmd := c.session(t)
	pass, err := cmd.BeginTexturePass(q.target)
	require.NoError(t, err)
	q.bind(pass)
	pass.SetIndexBuffer(q.indices, 0)
	pass.SetIndexFormat(wgpu.IndexFormatUint16)
	pass.DrawIndexed(6, 1, 0, 0, 0)
	pass.DrawIndexedIndirect(args, 0)
	pass.DrawIndirect(args, 4)
	require.NoError(t, pass.End())
	require.NoError(t, cmd.Finish(false))

	p := c.dev.LastSubmission().Passes[0]
	assert.Equal(t, []string{
		"SetPipeline", "SetBindGroup", "SetVertexBuffer", "SetScissorRect", "SetViewport", "SetIndexBuffer", "DrawIndexed",
		"SetPipeline", "SetBindGroup", "SetVertexBuffer", "SetScissorRect", "SetViewport", "SetIndexBuffer", "DrawIndexedIndirect",
		"SetPipeline", "SetBindGroup", "SetVertexBuffer", "SetScissorRect", "SetViewport", "DrawIndirect",
	}, p.Ops())

	index := p.CommandsOf("SetIndexBuffer")[0]
	assert.Equal(t, "quad indices", index.Target)
	assert.Equal(t, uint32(wgpu.IndexFormatUint16), index.Args[0])
	assert.Equal(t, []uint32{6, 1, 0, 0, 0}, p.CommandsOf("DrawIndexed")[0].Args)
	assert.Equal(t, "draw args", p.CommandsOf("DrawIndirect")[0].Target)
	assert.Equal(t, []uint32{4}, p.CommandsOf("DrawIndirect")[0].Args)
}

func TestEmptyViewportOrScissorSkipsDraw(t *testing.T) {
	c := newTestContext(t)
	q := newQuadScene(t, c)

	cmd := c.session(t)
	pass, err := cmd.BeginTexturePass(q.target)
	require.NoError(t, err)
	q.bind(pass)

	pass.SetViewport(common.Viewport{Width: 0, Height: 64, MaxDepth: 1})
	pass.Draw(4, 1, 0, 0)
	pass.SetViewport(common.FullViewport(pass.Extent()))
	pass.SetScissor(common.Rect{X: 64, Y: 0, Width: 10, Height: 10})
	pass.Draw(4, 1, 0, 0)
	assert.Equal(t, 0, pass.Queued())
	assert.Equal(t, 2, pass.Skipped())

	pass.SetScissor(common.Rect{X: 32, Y: 16, Width: 100, Height: 100})
	pass.Draw(4, 1, 0, 0)
	require.NoError(t, pass.End())
	require.NoError(t, cmd.Finish(false))

	p := c.dev.LastSubmission().Passes[0]
	require.Len(t, p.CommandsOf("Draw"), 1)
	assert.Equal(t, []uint32{32, 16, 32, 48}, p.CommandsOf("SetScissorRect")[0].Args, "scissor is clamped to the target")
	assert.Equal(t, 1, c.dev.Created(devicetest.KindRenderPipeline), "skipped draws resolve nothing")
}

func TestDrawContractViolations(t *testing.T) {
	tests := []struct {
		name string
		op   string
		draw func(t *testing.T, pass RenderPassSession, q *quadScene, c *testContext)
		msg  string
	}{
		{
			name: "no shader",
			op:   "RenderPassSession.Draw",
			draw: func(_ *testing.T, pass RenderPassSession, _ *quadScene, _ *testContext) { pass.Draw(3, 1, 0, 0) },
			msg:  "no shader",
		},
		{
			name: "missing vertex buffer",
			op:   "RenderPassSession.Draw",
			draw: func(_ *testing.T, pass RenderPassSession, q *quadScene, _ *testContext) {
				pass.SetShader(q.shader)
				pass.SetGPUBuffer(0, 0, q.tint)
				pass.Draw(4, 1, 0, 0)
			},
			msg: "vertex buffer slot 0",
		},
		{
			name: "indexed without index buffer",
			op:   "RenderPassSession.DrawIndexed",
			draw: func(_ *testing.T, pass RenderPassSession, q *quadScene, _ *testContext) {
				q.bind(pass)
				pass.DrawIndexed(6, 1, 0, 0, 0)
			},
			msg: "no index buffer",
		},
		{
			name: "undefined index format",
			op:   "RenderPassSession.DrawIndexed",
			draw: func(_ *testing.T, pass RenderPassSession, q *quadScene, _ *testContext) {
				q.bind(pass)
				pass.SetIndexBuffer(q.indices, 0)
				pass.SetIndexFormat(wgpu.IndexFormatUndefined)
				pass.DrawIndexed(6, 1, 0, 0, 0)
			},
			msg: "index format",
		},
		{
			name: "missing attachment",
			op:   "RenderPassSession.Draw",
			draw: func(_ *testing.T, pass RenderPassSession, q *quadScene, _ *testContext) {
				pass.SetShader(q.shader)
				pass.SetVertexBuffer(0, q.vertices, 0)
				pass.Draw(4, 1, 0, 0)
			},
			msg: "nothing attached",
		},
		{
			name: "compute shader",
			op:   "RenderPassSession.SetShader",
			draw: func(t *testing.T, pass RenderPassSession, _ *quadScene, c *testContext) {
				pass.SetShader(c.shader(t, "fill", fillWGSL))
			},
			msg: "not a graphics shader",
		},
		{
			name: "vertex buffer without vertex usage",
			op:   "RenderPassSession.SetVertexBuffer",
			draw: func(_ *testing.T, pass RenderPassSession, q *quadScene, _ *testContext) {
				pass.SetVertexBuffer(0, q.tint, 0)
			},
			msg: "lacks Vertex usage",
		},
		{
			name: "blend on missing target",
			op:   "RenderPassSession.SetBlend",
			draw: func(_ *testing.T, pass RenderPassSession, _ *quadScene, _ *testContext) {
				pass.SetBlend(1, nil)
			},
			msg: "no color target 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext(t)
			q := newQuadScene(t, c)
			cmd := c.session(t)
			pass, err := cmd.BeginTexturePass(q.target)
			require.NoError(t, err)

			v := requireViolation(t, func() { tt.draw(t, pass, q, c) })
			assert.Equal(t, tt.op, v.Op)
			assert.ErrorContains(t, v, tt.msg)
			assert.Equal(t, 0, pass.Queued())
		})
	}
}

func TestCallsAfterEndPanic(t *testing.T) {
	c := newTestContext(t)
	q := newQuadScene(t, c)

	cmd := c.session(t)
	pass, err := cmd.BeginTexturePass(q.target)
	require.NoError(t, err)
	require.NoError(t, pass.End())
	require.NoError(t, pass.End(), "a second End does nothing")

	requireViolation(t, func() { pass.Draw(3, 1, 0, 0) })
	requireViolation(t, func() { pass.SetShader(q.shader) })
	requireViolation(t, func() { pass.SetClearColor(common.Color{}) })

	// the session accepts a new pass once the previous one ended
	next, err := cmd.BeginTexturePass(q.target)
	require.NoError(t, err)
	assert.Contains(t, next.Label(), "Render Pass 2")
	require.NoError(t, next.End())
	require.NoError(t, cmd.Finish(false))
	assert.Len(t, c.dev.LastSubmission().Passes, 2)
}

func TestSecondOpenPassPanics(t *testing.T) {
	c := newTestContext(t)
	target := c.target(t, 16, 16)

	cmd := c.session(t)
	pass, err := cmd.BeginTexturePass(target)
	require.NoError(t, err)

	requireViolation(t, func() { _, _ = cmd.BeginTexturePass(target) })
	requireViolation(t, func() { cmd.BeginComputePass() })
	requireViolation(t, func() { _ = cmd.Finish(false) })
	require.NoError(t, pass.End())
	require.NoError(t, cmd.Finish(false))
}

func TestClearColorAndBlend(t *testing.T) {
	c := newTestContext(t)
	target := c.target(t, 16, 16)
	plain := c.shader(t, "fullscreen", fullscreenWGSL)

	cmd := c.session(t)
	pass, err := cmd.BeginTexturePass(target)
	require.NoError(t, err)
	pass.SetClearColor(common.Color{R: 1, A: 0})
	pass.SetShader(plain)
	pass.Draw(3, 1, 0, 0)
	blend := wgpu.BlendState{
		Color: wgpu.BlendComponent{Operation: wgpu.BlendOperationAdd, SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOne},
		Alpha: wgpu.BlendComponent{Operation: wgpu.BlendOperationAdd, SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOne},
	}
	pass.SetBlend(0, &blend)
	pass.Draw(3, 1, 0, 0)
	require.NoError(t, pass.End())
	require.NoError(t, cmd.Finish(false))

	p := c.dev.LastSubmission().Passes[0]
	assert.Equal(t, wgpu.LoadOpLoad, p.Descriptor.ColorAttachments[0].LoadOp, "alpha 0 keeps the previous contents")
	assert.Equal(t, 2, c.dev.Created(devicetest.KindRenderPipeline))
	assert.Empty(t, p.CommandsOf("SetBindGroup"), "a shader without bindings binds no groups")
}

func TestMSAAPass(t *testing.T) {
	c := newTestContext(t)
	color := c.target(t, 64, 64)
	msaa := c.texture(t, "msaa", 64, 64, 4, wgpu.TextureFormatRGBA8Unorm, wgpu.TextureUsageRenderAttachment)
	depth := c.texture(t, "depth", 64, 64, 4, wgpu.TextureFormatDepth24PlusStencil8, wgpu.TextureUsageRenderAttachment)
	plain := c.shader(t, "fullscreen", fullscreenWGSL)

	cmd := c.session(t)
	pass, err := cmd.RenderPassBuilder().
		AddColorAttachment(color, nil).
		AddMSAAAttachment(msaa).
		SetDepthAttachment(depth).
		Build()
	require.NoError(t, err)
	assert.EqualValues(t, 4, pass.SampleCount())
	pass.SetShader(plain)
	pass.Draw(3, 1, 0, 0)
	require.NoError(t, pass.End())
	require.NoError(t, cmd.Finish(false))

	desc := c.dev.LastSubmission().Passes[0].Descriptor
	require.Len(t, desc.ColorAttachments, 1)
	assert.Equal(t, msaa.View(), desc.ColorAttachments[0].View)
	assert.Equal(t, color.View(), desc.ColorAttachments[0].ResolveTarget)
	require.NotNil(t, desc.DepthAttachment)
	assert.Equal(t, depth.View(), desc.DepthAttachment.View)
	assert.Equal(t, wgpu.LoadOpClear, desc.DepthAttachment.DepthLoadOp)
	assert.EqualValues(t, 1.0, desc.DepthAttachment.DepthClearValue)
	assert.True(t, desc.DepthAttachment.HasStencil)
}

func TestRenderPassBuilderValidation(t *testing.T) {
	const (
		rgba  = wgpu.TextureFormatRGBA8Unorm
		depth = wgpu.TextureFormatDepth32Float
		rt    = wgpu.TextureUsageRenderAttachment
	)
	tests := []struct {
		name  string
		build func(t *testing.T, b *RenderPassBuilder, c *testContext) *RenderPassBuilder
		want  error
	}{
		{
			name:  "no attachments",
			build: func(_ *testing.T, b *RenderPassBuilder, _ *testContext) *RenderPassBuilder { return b },
			want:  ErrNoColorOrDepthAttachment,
		},
		{
			name: "color not render target",
			build: func(t *testing.T, b *RenderPassBuilder, c *testContext) *RenderPassBuilder {
				return b.AddColorAttachment(c.texture(t, "sampled", 8, 8, 1, rgba, wgpu.TextureUsageTextureBinding), nil)
			},
			want: ErrColorAttachmentNotRenderTarget,
		},
		{
			name: "multisampled color",
			build: func(t *testing.T, b *RenderPassBuilder, c *testContext) *RenderPassBuilder {
				return b.AddColorAttachment(c.texture(t, "color", 8, 8, 4, rgba, rt), nil)
			},
			want: ErrColorAttachmentMultiSampled,
		},
		{
			name: "msaa not multisampled",
			build: func(t *testing.T, b *RenderPassBuilder, c *testContext) *RenderPassBuilder {
				return b.AddColorAttachment(c.target(t, 8, 8), nil).AddMSAAAttachment(c.target(t, 8, 8))
			},
			want: ErrMsaaTextureNotMultiSampled,
		},
		{
			name: "msaa not render attachment",
			build: func(t *testing.T, b *RenderPassBuilder, c *testContext) *RenderPassBuilder {
				return b.AddColorAttachment(c.target(t, 8, 8), nil).
					AddMSAAAttachment(c.texture(t, "msaa", 8, 8, 4, rgba, wgpu.TextureUsageTextureBinding))
			},
			want: ErrMsaaTextureNotRenderAttachment,
		},
		{
			name: "msaa count differs from color count",
			build: func(t *testing.T, b *RenderPassBuilder, c *testContext) *RenderPassBuilder {
				return b.AddColorAttachment(c.target(t, 8, 8), nil).
					AddColorAttachment(c.target(t, 8, 8), nil).
					AddMSAAAttachment(c.texture(t, "msaa", 8, 8, 4, rgba, rt))
			},
			want: ErrMismatchedAttachmentCount,
		},
		{
			name: "msaa sample counts differ",
			build: func(t *testing.T, b *RenderPassBuilder, c *testContext) *RenderPassBuilder {
				return b.AddColorAttachment(c.target(t, 8, 8), nil).
					AddColorAttachment(c.target(t, 8, 8), nil).
					AddMSAAAttachment(c.texture(t, "msaa4", 8, 8, 4, rgba, rt)).
					AddMSAAAttachment(c.texture(t, "msaa8", 8, 8, 8, rgba, rt))
			},
			want: ErrMismatchedAttachmentSampleCount,
		},
		{
			name: "depth sample count differs",
			build: func(t *testing.T, b *RenderPassBuilder, c *testContext) *RenderPassBuilder {
				return b.AddColorAttachment(c.target(t, 8, 8), nil).
					AddMSAAAttachment(c.texture(t, "msaa", 8, 8, 4, rgba, rt)).
					SetDepthAttachment(c.texture(t, "depth", 8, 8, 8, depth, rt))
			},
			want: ErrMismatchedAttachmentSampleCount,
		},
		{
			name: "depth not render attachment",
			build: func(t *testing.T, b *RenderPassBuilder, c *testContext) *RenderPassBuilder {
				return b.SetDepthAttachment(c.texture(t, "depth", 8, 8, 1, depth, wgpu.TextureUsageTextureBinding))
			},
			want: ErrDepthTextureNotRenderAttachment,
		},
		{
			name: "depth format",
			build: func(t *testing.T, b *RenderPassBuilder, c *testContext) *RenderPassBuilder {
				return b.SetDepthAttachment(c.texture(t, "depth", 8, 8, 1, rgba, rt))
			},
			want: ErrDepthTextureFormatNotSupported,
		},
		{
			name: "released texture",
			build: func(t *testing.T, b *RenderPassBuilder, c *testContext) *RenderPassBuilder {
				tex := c.target(t, 8, 8)
				tex.Release()
				return b.AddColorAttachment(tex, nil)
			},
			want: ErrStaleAttachment,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext(t)
			cmd := c.session(t)
			pass, err := tt.build(t, cmd.RenderPassBuilder(), c).Build()
			assert.Nil(t, pass)
			assert.ErrorIs(t, err, tt.want)

			// a failed build leaves no pass open
			next, err := cmd.BeginTexturePass(c.target(t, 8, 8))
			require.NoError(t, err)
			require.NoError(t, next.End())
		})
	}
}

func TestRenderPassBuilderSizeMismatch(t *testing.T) {
	c := newTestContext(t)
	color := c.target(t, 800, 600)
	depth := c.texture(t, "depth", 640, 480, 1, wgpu.TextureFormatDepth32Float, wgpu.TextureUsageRenderAttachment)

	cmd := c.session(t)
	_, err := cmd.RenderPassBuilder().AddColorAttachment(color, nil).SetDepthAttachment(depth).Build()
	require.ErrorIs(t, err, ErrMismatchedAttachmentSize)

	var berr *BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, common.Extent{Width: 800, Height: 600}, berr.Expected)
	assert.Equal(t, common.Extent{Width: 640, Height: 480}, berr.Actual)
	assert.NotErrorIs(t, err, ErrMismatchedAttachmentSampleCount)

	_, err = cmd.RenderPassBuilder().
		AddColorAttachment(color, nil).
		AddMSAAAttachment(c.texture(t, "msaa4", 800, 600, 4, wgpu.TextureFormatRGBA8Unorm, wgpu.TextureUsageRenderAttachment)).
		SetDepthAttachment(c.texture(t, "depth8", 800, 600, 8, wgpu.TextureFormatDepth32Float, wgpu.TextureUsageRenderAttachment)).
		Build()
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, BuildMismatchedAttachmentSampleCount, berr.Kind)
	assert.EqualValues(t, 4, berr.ExpectedCount)
	assert.EqualValues(t, 8, berr.ActualCount)
}

func TestRenderPassBuilderMSAASampleCounts(t *testing.T) {
	c := newTestContext(t)
	const rt = wgpu.TextureUsageRenderAttachment

	cmd := c.session(t)
	_, err := cmd.RenderPassBuilder().
		AddColorAttachment(c.target(t, 16, 16), nil).
		AddColorAttachment(c.target(t, 16, 16), nil).
		AddMSAAAttachment(c.texture(t, "msaa4", 16, 16, 4, wgpu.TextureFormatRGBA8Unorm, rt)).
		AddMSAAAttachment(c.texture(t, "msaa8", 16, 16, 8, wgpu.TextureFormatRGBA8Unorm, rt)).
		Build()
	require.ErrorIs(t, err, ErrMismatchedAttachmentSampleCount)

	var berr *BuildError
	require.ErrorAs(t, err, &berr)
	assert.EqualValues(t, 4, berr.ExpectedCount)
	assert.EqualValues(t, 8, berr.ActualCount)
	assert.Equal(t, "msaa8", berr.Label)

	pass, err := cmd.RenderPassBuilder().
		AddColorAttachment(c.target(t, 16, 16), nil).
		AddColorAttachment(c.target(t, 16, 16), nil).
		AddMSAAAttachment(c.texture(t, "msaa4 a", 16, 16, 4, wgpu.TextureFormatRGBA8Unorm, rt)).
		AddMSAAAttachment(c.texture(t, "msaa4 b", 16, 16, 4, wgpu.TextureFormatRGBA8Unorm, rt)).
		Build()
	require.NoError(t, err)
	assert.EqualValues(t, 4, pass.SampleCount())
	require.NoError(t, pass.End())
}

func TestDepthOnlyPass(t *testing.T) {
	c := newTestContext(t)
	shadow := c.texture(t, "shadow map", 32, 32, 1, wgpu.TextureFormatDepth32Float, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding)

	cmd := c.session(t)
	pass, err := cmd.BeginDepthPass(shadow)
	require.NoError(t, err)
	assert.Equal(t, common.Extent{Width: 32, Height: 32}, pass.Extent())
	require.NoError(t, pass.End())
	require.NoError(t, cmd.Finish(false))

	desc := c.dev.LastSubmission().Passes[0].Descriptor
	assert.Empty(t, desc.ColorAttachments)
	require.NotNil(t, desc.DepthAttachment)
	assert.False(t, desc.DepthAttachment.HasStencil)
}

func TestAttachmentsCheckedWhenShaderSet(t *testing.T) {
	c := newTestContext(t)
	q := newQuadScene(t, c)
	albedo := c.texture(t, "albedo", 4, 4, 1, wgpu.TextureFormatRGBA8Unorm, wgpu.TextureUsageTextureBinding)
	small := c.buffer(t, "small tint", 8, wgpu.BufferUsageUniform)

	cmd := c.session(t)
	pass, err := cmd.BeginTexturePass(q.target)
	require.NoError(t, err)

	assert.NotPanics(t, func() { pass.SetAttachmentTexture(0, 0, albedo) }, "nothing to check against yet")
	pass.SetShader(q.shader)

	v := requireViolation(t, func() { pass.SetAttachmentTexture(0, 0, albedo) })
	assert.Equal(t, "RenderPassSession.SetAttachmentTexture", v.Op)
	assert.ErrorContains(t, v, `"tint"`)

	v = requireViolation(t, func() { pass.SetGPUBuffer(0, 0, small) })
	assert.Equal(t, "RenderPassSession.SetGPUBuffer", v.Op)
	assert.ErrorContains(t, v, "needs 16 bytes")

	// undeclared slots are reported by the draw
	assert.NotPanics(t, func() { pass.SetAttachmentTexture(2, 0, albedo) })
	pass.SetGPUBuffer(0, 0, q.tint)
	pass.SetVertexBuffer(0, q.vertices, 0)
	v = requireViolation(t, func() { pass.Draw(4, 1, 0, 0) })
	assert.Equal(t, "RenderPassSession.Draw", v.Op)
	assert.ErrorContains(t, v, "declares no binding")
}
