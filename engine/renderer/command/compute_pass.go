package command

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	bgp "github.com/Carmen-Shannon/oxy-gpu/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// dispatchEntry is one queued dispatch.
type dispatchEntry struct {
	pipeline      pipeline.Pipeline
	bindGroups    bgp.BindGroups
	pushConstants []byte
	groups        [3]uint32
	indirect      vertexBinding
}

// computePassSession is the implementation of the ComputePassSession interface.
type computePassSession struct {
	cmd   *commandSession
	label string

	shader        shader.Shader
	bindings      bgp.BindGroupProvider
	pushConstants []byte

	queue []dispatchEntry
	ended bool
}

// ComputePassSession records dispatches for one compute pass. Like the render pass, dispatches are queued
// with their pipeline and bind groups resolved and are replayed into a native pass by End.
type ComputePassSession interface {
	// Label returns the label of the native pass.
	Label() string

	// SetShader sets the compute shader of subsequent dispatches and clears the push constants.
	//
	// Parameters:
	//   - s: the compute shader
	//
	// Returns:
	//   - error: ErrNotComputeShader for a graphics shader, leaving the previous shader in place
	SetShader(s shader.Shader) error

	// SetPushConstants sets the push constant payload of subsequent dispatches.
	//
	// Returns:
	//   - error: ErrComputePushConstantsUnsupported when the device cannot set compute push constants,
	//     ErrNoPushConstants or ErrPushConstantsTooLarge
	SetPushConstants(data []byte) error

	// SetBuffer attaches a uniform or storage buffer at (group, binding). A zero Buffer removes it. The
	// attachment setters check the slot against the current shader, if any, like draws do.
	SetBuffer(group, binding uint32, buf resource.Buffer)

	// SetTexture attaches a sampled texture at (group, binding).
	SetTexture(group, binding uint32, tex resource.Texture)

	// SetStorageTexture attaches a storage texture at (group, binding).
	SetStorageTexture(group, binding uint32, tex resource.Texture)

	// SetSampler attaches a sampler at (group, binding).
	SetSampler(group, binding uint32, s resource.Sampler)

	// Bindings returns the provider holding the pass attachments.
	Bindings() bgp.BindGroupProvider

	// Dispatch queues a dispatch of x*y*z workgroups. A dispatch with a zero dimension is skipped, but
	// still needs a shader.
	Dispatch(x, y, z uint32)

	// DispatchThreads queues enough workgroups to cover x*y*z invocations given the shader workgroup size.
	DispatchThreads(x, y, z uint32)

	// DispatchIndirect queues a dispatch whose workgroup counts are read from buf.
	DispatchIndirect(buf resource.Buffer, offset uint64)

	// Queued returns the number of queued dispatches.
	Queued() int

	// End opens the native pass and replays the queue. Calling End again does nothing.
	End() error
}

var _ ComputePassSession = &computePassSession{}

func newComputePassSession(cmd *commandSession, label string) *computePassSession {
	return &computePassSession{
		cmd:      cmd,
		label:    label,
		bindings: bgp.NewBindGroupProvider(label),
	}
}

func (p *computePassSession) check(op string) {
	if p.ended {
		violation("ComputePassSession."+op, nil, "pass %s has ended", p.label)
	}
}

func (p *computePassSession) Label() string {
	return p.label
}

func (p *computePassSession) SetShader(s shader.Shader) error {
	p.check("SetShader")
	if s == nil || s.Kind() != shader.KindCompute {
		return ErrNotComputeShader
	}
	p.shader = s
	p.pushConstants = nil
	return nil
}

func (p *computePassSession) SetPushConstants(data []byte) error {
	p.check("SetPushConstants")
	if p.shader == nil {
		violation("ComputePassSession.SetPushConstants", nil, "no shader set on pass %s", p.label)
	}
	if !p.cmd.ctx.Device().Features().ComputePushConstants {
		return fmt.Errorf("pass %s: %w", p.label, ErrComputePushConstantsUnsupported)
	}
	packed, err := packPushConstants(p.shader, data)
	if err != nil {
		return err
	}
	p.pushConstants = packed
	return nil
}

func (p *computePassSession) SetBuffer(group, binding uint32, buf resource.Buffer) {
	p.check("SetBuffer")
	p.bindings.SetBuffer(group, binding, buf)
	checkSlot("ComputePassSession.SetBuffer", p.bindings, p.shader, group, binding)
}

func (p *computePassSession) SetTexture(group, binding uint32, tex resource.Texture) {
	p.check("SetTexture")
	p.bindings.SetTexture(group, binding, tex)
	checkSlot("ComputePassSession.SetTexture", p.bindings, p.shader, group, binding)
}

func (p *computePassSession) SetStorageTexture(group, binding uint32, tex resource.Texture) {
	p.check("SetStorageTexture")
	p.bindings.SetStorageTexture(group, binding, tex)
	checkSlot("ComputePassSession.SetStorageTexture", p.bindings, p.shader, group, binding)
}

func (p *computePassSession) SetSampler(group, binding uint32, s resource.Sampler) {
	p.check("SetSampler")
	p.bindings.SetSampler(group, binding, s)
	checkSlot("ComputePassSession.SetSampler", p.bindings, p.shader, group, binding)
}

func (p *computePassSession) Bindings() bgp.BindGroupProvider {
	p.check("Bindings")
	return p.bindings
}

func (p *computePassSession) Dispatch(x, y, z uint32) {
	p.check("Dispatch")
	if p.shader == nil {
		violation("ComputePassSession.Dispatch", nil, "no shader set on pass %s", p.label)
	}
	if x == 0 || y == 0 || z == 0 {
		common.LogDebug("%s: skipping empty dispatch %dx%dx%d", p.label, x, y, z)
		return
	}
	p.enqueue("ComputePassSession.Dispatch", dispatchEntry{groups: [3]uint32{x, y, z}})
}

func (p *computePassSession) DispatchThreads(x, y, z uint32) {
	p.check("DispatchThreads")
	if p.shader == nil {
		violation("ComputePassSession.DispatchThreads", nil, "no shader set on pass %s", p.label)
	}
	size := p.shader.WorkgroupSize()
	p.Dispatch(ceilDiv(x, size[0]), ceilDiv(y, size[1]), ceilDiv(z, size[2]))
}

// ceilDiv divides rounding up, treating a zero divisor as 1.
func ceilDiv(n, d uint32) uint32 {
	d = max(d, 1)
	q := n / d
	if n%d != 0 {
		q++
	}
	return q
}

func (p *computePassSession) DispatchIndirect(buf resource.Buffer, offset uint64) {
	const op = "ComputePassSession.DispatchIndirect"
	p.check("DispatchIndirect")
	if !buf.Valid() {
		violation(op, resource.ErrStaleHandle, "indirect buffer")
	}
	if buf.Usage()&wgpu.BufferUsageIndirect == 0 {
		violation(op, nil, "buffer %s lacks Indirect usage", buf.Label())
	}
	p.enqueue(op, dispatchEntry{indirect: vertexBinding{buffer: buf.Native(), offset: offset}})
}

func (p *computePassSession) enqueue(op string, e dispatchEntry) {
	if p.shader == nil {
		violation(op, nil, "no shader set on pass %s", p.label)
	}
	key, err := pipeline.ComputeKey(p.shader)
	if err != nil {
		violation(op, err, "invalid compute pipeline")
	}
	s, dev := p.shader, p.cmd.ctx.Device()
	e.pipeline = p.cmd.ctx.PipelineCache().Insert(key, func() (pipeline.Pipeline, error) {
		return pipeline.BuildCompute(dev, s, key)
	})
	e.bindGroups = resolveBindGroups(p.cmd.ctx, op, p.bindings, p.shader, bgp.NamespaceCompute)
	e.pushConstants = p.pushConstants
	p.queue = append(p.queue, e)
}

func (p *computePassSession) Queued() int {
	return len(p.queue)
}

func (p *computePassSession) End() error {
	if p.ended {
		return nil
	}
	p.ended = true
	defer p.cmd.passEnded(p)
	if p.cmd.done {
		return nil
	}

	pass := p.cmd.encoder.BeginComputePass(p.label)
	for _, e := range p.queue {
		pass.SetPipeline(e.pipeline.ComputePipeline())
		for _, g := range e.bindGroups {
			pass.SetBindGroup(g.Group, g.BindGroup)
		}
		if e.pushConstants != nil {
			if pc, ok := pass.(device.ComputePushConstantEncoder); ok {
				pc.SetPushConstants(0, e.pushConstants)
			}
		}
		if e.indirect.buffer != nil {
			pass.DispatchWorkgroupsIndirect(e.indirect.buffer, e.indirect.offset)
			continue
		}
		pass.DispatchWorkgroups(e.groups[0], e.groups[1], e.groups[2])
	}
	p.queue = nil
	if err := pass.End(); err != nil {
		return fmt.Errorf("failed to end %s: %w", p.label, err)
	}
	return nil
}
