package command

import (
	"fmt"
	"maps"
	"slices"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	bgp "github.com/Carmen-Shannon/oxy-gpu/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

type drawKind uint8

const (
	drawDirect drawKind = iota
	drawIndexed
	drawIndirect
	drawIndexedIndirect
)

type vertexBinding struct {
	buffer device.Buffer
	offset uint64
}

// drawEntry is one queued draw with everything it needs resolved at enqueue time.
type drawEntry struct {
	kind       drawKind
	pipeline   pipeline.Pipeline
	bindGroups bgp.BindGroups
	vertex     map[uint32]vertexBinding
	index      vertexBinding
	format     wgpu.IndexFormat
	viewport   common.Viewport
	scissor    common.Rect

	pushConstants []byte
	pushStages    wgpu.ShaderStage

	// vertex or index count, instance count, first vertex or index, first instance
	args       [4]uint32
	baseVertex int32
	indirect   vertexBinding
}

// renderPassSession is the implementation of the RenderPassSession interface.
type renderPassSession struct {
	cmd   *commandSession
	label string

	extent      common.Extent
	targets     []colorTarget
	msaaViews   []device.TextureView
	sampleCount uint32
	depth       *depthTarget

	clearColor    common.Color
	viewport      common.Viewport
	scissor       common.Rect
	shader        shader.Shader
	state         pipeline.RenderState
	bindings      bgp.BindGroupProvider
	vertex        map[uint32]vertexBinding
	index         vertexBinding
	pushConstants []byte

	queue   []drawEntry
	skipped int
	ended   bool
}

// RenderPassSession records draws for one render pass. State setters are latest-wins and apply to the
// draws issued after them. Each draw resolves its pipeline and bind groups through the context caches when
// it is issued, so later state changes never affect it. The native pass is opened and the queue replayed
// in order when End is called. Any call after End other than End panics with a *ContractError.
type RenderPassSession interface {
	// Label returns the label of the native pass.
	Label() string

	// Extent returns the common size of the attachments.
	Extent() common.Extent

	// SampleCount returns the MSAA sample count of the pass, 1 without MSAA attachments.
	SampleCount() uint32

	// SetClearColor sets the color the color attachments are cleared to. A color with alpha <= 0 loads the
	// previous contents instead. The default is opaque black.
	SetClearColor(c common.Color)

	// SetViewport sets the viewport of subsequent draws. Draws with an empty viewport are skipped.
	SetViewport(v common.Viewport)

	// SetScissor sets the scissor rectangle of subsequent draws, clamped to the attachments. Draws with an
	// empty scissor are skipped.
	SetScissor(r common.Rect)

	// SetShader sets the graphics shader of subsequent draws and clears the push constants.
	//
	// Parameters:
	//   - s: a graphics shader; a compute shader is a contract violation
	SetShader(s shader.Shader)

	// SetRenderState replaces the whole fixed-function state.
	SetRenderState(state pipeline.RenderState)

	// RenderState returns the current fixed-function state.
	RenderState() pipeline.RenderState

	SetTopology(topology wgpu.PrimitiveTopology)
	SetCullMode(mode wgpu.CullMode)
	SetFrontFace(face wgpu.FrontFace)
	SetPolygonMode(mode device.PolygonMode)
	SetIndexFormat(format wgpu.IndexFormat)

	// SetBlend sets the blend state of color target index, nil disabling blending.
	SetBlend(index int, blend *wgpu.BlendState)

	// SetVertexBuffer binds buf at a vertex buffer slot. A zero Buffer unbinds the slot.
	SetVertexBuffer(slot uint32, buf resource.Buffer, offset uint64)

	// SetIndexBuffer binds the index buffer read by indexed draws with the current index format. A zero
	// Buffer unbinds it.
	SetIndexBuffer(buf resource.Buffer, offset uint64)

	// SetGPUBuffer attaches a uniform or storage buffer at (group, binding). A zero Buffer removes it.
	// With a shader set, a buffer that cannot serve the binding declared there is a contract violation.
	SetGPUBuffer(group, binding uint32, buf resource.Buffer)

	// SetAttachmentTexture attaches a sampled texture at (group, binding). A zero Texture removes it.
	SetAttachmentTexture(group, binding uint32, tex resource.Texture)

	// SetAttachmentSampler attaches a sampler at (group, binding). A zero Sampler removes it.
	SetAttachmentSampler(group, binding uint32, s resource.Sampler)

	// Bindings returns the provider holding the pass attachments, for ranges and bulk changes.
	Bindings() bgp.BindGroupProvider

	// SetPushConstants sets the push constant payload of subsequent draws, zero-padded to a multiple of 4.
	//
	// Parameters:
	//   - data: the payload, at most the size the shader declares; nil clears it
	//
	// Returns:
	//   - error: ErrNoPushConstants or ErrPushConstantsTooLarge, leaving the previous payload in place
	SetPushConstants(data []byte) error

	// Draw queues a non-indexed draw.
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)

	// DrawIndexed queues an indexed draw. An index buffer must be bound.
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)

	// DrawIndirect queues a draw whose arguments are read from buf, which needs Indirect usage.
	DrawIndirect(buf resource.Buffer, offset uint64)

	// DrawIndexedIndirect queues an indexed draw whose arguments are read from buf.
	DrawIndexedIndirect(buf resource.Buffer, offset uint64)

	// Queued returns the number of queued draws.
	Queued() int

	// Skipped returns the number of draws dropped for an empty viewport or scissor.
	Skipped() int

	// End opens the native pass, replays the queue and closes the pass. Calling End again does nothing.
	//
	// Returns:
	//   - error: the native pass error
	End() error
}

var _ RenderPassSession = &renderPassSession{}

func newRenderPassSession(
	cmd *commandSession,
	label string,
	extent common.Extent,
	targets []colorTarget,
	msaaViews []device.TextureView,
	sampleCount uint32,
	depth *depthTarget,
) *renderPassSession {
	return &renderPassSession{
		cmd:         cmd,
		label:       label,
		extent:      extent,
		targets:     targets,
		msaaViews:   msaaViews,
		sampleCount: sampleCount,
		depth:       depth,
		clearColor:  common.Color{A: 1},
		viewport:    common.FullViewport(extent),
		scissor:     common.FullRect(extent),
		state:       pipeline.NewRenderState(),
		bindings:    bgp.NewBindGroupProvider(label),
		vertex:      make(map[uint32]vertexBinding),
	}
}

// check panics when the pass has ended.
func (p *renderPassSession) check(op string) {
	if p.ended {
		violation("RenderPassSession."+op, nil, "pass %s has ended", p.label)
	}
}

func (p *renderPassSession) Label() string {
	return p.label
}

func (p *renderPassSession) Extent() common.Extent {
	return p.extent
}

func (p *renderPassSession) SampleCount() uint32 {
	return p.sampleCount
}

func (p *renderPassSession) SetClearColor(c common.Color) {
	p.check("SetClearColor")
	p.clearColor = c
}

func (p *renderPassSession) SetViewport(v common.Viewport) {
	p.check("SetViewport")
	p.viewport = v
}

func (p *renderPassSession) SetScissor(r common.Rect) {
	p.check("SetScissor")
	p.scissor = r
}

func (p *renderPassSession) SetShader(s shader.Shader) {
	p.check("SetShader")
	if s != nil && s.Kind() != shader.KindGraphics {
		violation("RenderPassSession.SetShader", nil, "shader %s is not a graphics shader", s.Key())
	}
	p.shader = s
	p.pushConstants = nil
}

func (p *renderPassSession) SetRenderState(state pipeline.RenderState) {
	p.check("SetRenderState")
	p.state = state
}

func (p *renderPassSession) RenderState() pipeline.RenderState {
	return p.state
}

func (p *renderPassSession) SetTopology(topology wgpu.PrimitiveTopology) {
	p.check("SetTopology")
	p.state.Topology = topology
}

func (p *renderPassSession) SetCullMode(mode wgpu.CullMode) {
	p.check("SetCullMode")
	p.state.CullMode = mode
}

func (p *renderPassSession) SetFrontFace(face wgpu.FrontFace) {
	p.check("SetFrontFace")
	p.state.FrontFace = face
}

func (p *renderPassSession) SetPolygonMode(mode device.PolygonMode) {
	p.check("SetPolygonMode")
	p.state.PolygonMode = mode
}

func (p *renderPassSession) SetIndexFormat(format wgpu.IndexFormat) {
	p.check("SetIndexFormat")
	p.state.IndexFormat = format
}

func (p *renderPassSession) SetBlend(index int, blend *wgpu.BlendState) {
	p.check("SetBlend")
	if index < 0 || index >= len(p.targets) {
		violation("RenderPassSession.SetBlend", nil, "pass %s has no color target %d", p.label, index)
	}
	t := pipeline.NewTargetState(p.targets[index].target.Format)
	if blend != nil {
		t = t.WithBlend(*blend)
	}
	p.targets[index].target = t
}

func (p *renderPassSession) SetVertexBuffer(slot uint32, buf resource.Buffer, offset uint64) {
	p.check("SetVertexBuffer")
	if buf.ID().IsZero() {
		delete(p.vertex, slot)
		return
	}
	if buf.Usage()&wgpu.BufferUsageVertex == 0 {
		violation("RenderPassSession.SetVertexBuffer", nil, "buffer %s lacks Vertex usage", buf.Label())
	}
	p.vertex[slot] = vertexBinding{buffer: buf.Native(), offset: offset}
}

func (p *renderPassSession) SetIndexBuffer(buf resource.Buffer, offset uint64) {
	p.check("SetIndexBuffer")
	if buf.ID().IsZero() {
		p.index = vertexBinding{}
		return
	}
	if buf.Usage()&wgpu.BufferUsageIndex == 0 {
		violation("RenderPassSession.SetIndexBuffer", nil, "buffer %s lacks Index usage", buf.Label())
	}
	p.index = vertexBinding{buffer: buf.Native(), offset: offset}
}

func (p *renderPassSession) SetGPUBuffer(group, binding uint32, buf resource.Buffer) {
	p.check("SetGPUBuffer")
	p.bindings.SetBuffer(group, binding, buf)
	checkSlot("RenderPassSession.SetGPUBuffer", p.bindings, p.shader, group, binding)
}

func (p *renderPassSession) SetAttachmentTexture(group, binding uint32, tex resource.Texture) {
	p.check("SetAttachmentTexture")
	p.bindings.SetTexture(group, binding, tex)
	checkSlot("RenderPassSession.SetAttachmentTexture", p.bindings, p.shader, group, binding)
}

func (p *renderPassSession) SetAttachmentSampler(group, binding uint32, s resource.Sampler) {
	p.check("SetAttachmentSampler")
	p.bindings.SetSampler(group, binding, s)
	checkSlot("RenderPassSession.SetAttachmentSampler", p.bindings, p.shader, group, binding)
}

func (p *renderPassSession) Bindings() bgp.BindGroupProvider {
	p.check("Bindings")
	return p.bindings
}

func (p *renderPassSession) SetPushConstants(data []byte) error {
	p.check("SetPushConstants")
	if p.shader == nil {
		violation("RenderPassSession.SetPushConstants", nil, "no shader set on pass %s", p.label)
	}
	packed, err := packPushConstants(p.shader, data)
	if err != nil {
		return err
	}
	p.pushConstants = packed
	return nil
}

func (p *renderPassSession) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.enqueue("Draw", drawEntry{kind: drawDirect, args: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (p *renderPassSession) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.enqueue("DrawIndexed", drawEntry{
		kind:       drawIndexed,
		args:       [4]uint32{indexCount, instanceCount, firstIndex, firstInstance},
		baseVertex: baseVertex,
	})
}

func (p *renderPassSession) DrawIndirect(buf resource.Buffer, offset uint64) {
	p.enqueue("DrawIndirect", drawEntry{kind: drawIndirect, indirect: p.indirect("DrawIndirect", buf, offset)})
}

func (p *renderPassSession) DrawIndexedIndirect(buf resource.Buffer, offset uint64) {
	p.enqueue("DrawIndexedIndirect", drawEntry{kind: drawIndexedIndirect, indirect: p.indirect("DrawIndexedIndirect", buf, offset)})
}

// indirect validates an indirect argument buffer.
func (p *renderPassSession) indirect(op string, buf resource.Buffer, offset uint64) vertexBinding {
	p.check(op)
	if !buf.Valid() {
		violation("RenderPassSession."+op, resource.ErrStaleHandle, "indirect buffer")
	}
	if buf.Usage()&wgpu.BufferUsageIndirect == 0 {
		violation("RenderPassSession."+op, nil, "buffer %s lacks Indirect usage", buf.Label())
	}
	return vertexBinding{buffer: buf.Native(), offset: offset}
}

// enqueue validates the draw against the current state, resolves its pipeline and bind groups and appends
// it to the queue.
func (p *renderPassSession) enqueue(op string, e drawEntry) {
	p.check(op)
	op = "RenderPassSession." + op
	if p.shader == nil {
		violation(op, nil, "no shader set on pass %s", p.label)
	}
	indexed := e.kind == drawIndexed || e.kind == drawIndexedIndirect
	if indexed {
		if p.index.buffer == nil {
			violation(op, nil, "no index buffer bound on pass %s", p.label)
		}
		if p.state.IndexFormat == wgpu.IndexFormatUndefined {
			violation(op, nil, "index format is undefined")
		}
	}
	for slot := range p.shader.VertexLayout() {
		if _, ok := p.vertex[uint32(slot)]; !ok {
			violation(op, nil, "shader %s reads vertex buffer slot %d but none is bound", p.shader.Key(), slot)
		}
	}

	scissor, ok := clampRect(p.scissor, p.extent)
	if p.viewport.Empty() || !ok {
		p.skipped++
		common.LogDebug("%s: skipping %s with empty viewport or scissor", p.label, op)
		return
	}

	e.pipeline = p.resolvePipeline(op)
	e.bindGroups = resolveBindGroups(p.cmd.ctx, op, p.bindings, p.shader, bgp.NamespaceGraphics)
	e.vertex = make(map[uint32]vertexBinding, len(p.vertex))
	for slot, v := range p.vertex {
		e.vertex[slot] = v
	}
	if indexed {
		e.index, e.format = p.index, p.state.IndexFormat
	}
	e.viewport, e.scissor = p.viewport, scissor
	if p.pushConstants != nil {
		e.pushConstants, e.pushStages = p.pushConstants, p.shader.PushConstantStages()
	}
	p.queue = append(p.queue, e)
}

func (p *renderPassSession) resolvePipeline(op string) pipeline.Pipeline {
	targets := make([]pipeline.TargetState, len(p.targets))
	for i, t := range p.targets {
		targets[i] = t.target
	}
	depthFormat := wgpu.TextureFormatUndefined
	if p.depth != nil {
		depthFormat = p.depth.format
	}
	key, err := pipeline.RenderKey(p.shader, p.state, targets, depthFormat, p.sampleCount)
	if err != nil {
		violation(op, err, "invalid pipeline state")
	}
	s, dev := p.shader, p.cmd.ctx.Device()
	return p.cmd.ctx.PipelineCache().Insert(key, func() (pipeline.Pipeline, error) {
		return pipeline.BuildRender(dev, s, key)
	})
}

// resolveBindGroups validates the attachments of bindings against s and returns the cached bind groups.
func resolveBindGroups(ctx Context, op string, bindings bgp.BindGroupProvider, s shader.Shader, ns bgp.Namespace) bgp.BindGroups {
	if err := bindings.Validate(s); err != nil {
		violation(op, err, "attachments do not match shader %s", s.Key())
	}
	key := bindings.Key(ns, s.ID())
	dev := ctx.Device()
	return ctx.BindGroupCache().Insert(key, func() (bgp.BindGroups, error) {
		return bindings.Build(dev, s)
	})
}

// checkSlot reports an attachment that cannot serve the binding the current shader declares at its slot.
func checkSlot(op string, bindings bgp.BindGroupProvider, s shader.Shader, group, binding uint32) {
	if s == nil {
		return
	}
	if err := bindings.ValidateSlot(s, group, binding); err != nil {
		violation(op, err, "attachment does not match shader %s", s.Key())
	}
}

// clampRect intersects r with the extent and reports whether anything is left.
func clampRect(r common.Rect, e common.Extent) (common.Rect, bool) {
	if r.X >= e.Width || r.Y >= e.Height {
		return common.Rect{}, false
	}
	r.Width = min(r.Width, e.Width-r.X)
	r.Height = min(r.Height, e.Height-r.Y)
	return r, !r.Empty()
}

func (p *renderPassSession) Queued() int {
	return len(p.queue)
}

func (p *renderPassSession) Skipped() int {
	return p.skipped
}

func (p *renderPassSession) End() error {
	if p.ended {
		return nil
	}
	p.ended = true
	defer p.cmd.passEnded(p)
	if p.cmd.done {
		// cancelled session, nothing to record into
		return nil
	}

	load := wgpu.LoadOpLoad
	if p.clearColor.A > 0 {
		load = wgpu.LoadOpClear
	}
	clear := wgpu.Color{R: p.clearColor.R, G: p.clearColor.G, B: p.clearColor.B, A: p.clearColor.A}

	desc := device.RenderPassDescriptor{Label: p.label}
	for i, t := range p.targets {
		a := device.ColorAttachment{View: t.view, LoadOp: load, StoreOp: wgpu.StoreOpStore, ClearValue: clear}
		if len(p.msaaViews) > 0 {
			a.View, a.ResolveTarget = p.msaaViews[i], t.view
		}
		desc.ColorAttachments = append(desc.ColorAttachments, a)
	}
	if p.depth != nil {
		desc.DepthAttachment = &device.DepthAttachment{
			View:            p.depth.view,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
			HasStencil:      device.HasStencil(p.depth.format),
		}
	}

	pass := p.cmd.encoder.BeginRenderPass(desc)
	for _, e := range p.queue {
		pass.SetPipeline(e.pipeline.RenderPipeline())
		for _, g := range e.bindGroups {
			pass.SetBindGroup(g.Group, g.BindGroup)
		}
		for _, slot := range slices.Sorted(maps.Keys(e.vertex)) {
			v := e.vertex[slot]
			pass.SetVertexBuffer(slot, v.buffer, v.offset)
		}
		if e.pushConstants != nil {
			pass.SetPushConstants(e.pushStages, 0, e.pushConstants)
		}
		pass.SetScissorRect(e.scissor)
		pass.SetViewport(e.viewport)

		switch e.kind {
		case drawDirect:
			pass.Draw(e.args[0], e.args[1], e.args[2], e.args[3])
		case drawIndexed:
			pass.SetIndexBuffer(e.index.buffer, e.format, e.index.offset)
			pass.DrawIndexed(e.args[0], e.args[1], e.args[2], e.baseVertex, e.args[3])
		case drawIndirect:
			pass.DrawIndirect(e.indirect.buffer, e.indirect.offset)
		case drawIndexedIndirect:
			pass.SetIndexBuffer(e.index.buffer, e.format, e.index.offset)
			pass.DrawIndexedIndirect(e.indirect.buffer, e.indirect.offset)
		}
	}
	p.queue = nil
	if err := pass.End(); err != nil {
		return fmt.Errorf("failed to end %s: %w", p.label, err)
	}
	return nil
}
