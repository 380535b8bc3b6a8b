package devicetest

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

type object struct {
	dev      *Device
	kind     string
	label    string
	serial   int
	released bool
}

func (o *object) Label() string { return o.label }

// Serial returns the creation serial of the object, unique per device.
func (o *object) Serial() int { return o.serial }

// serialOf returns the creation serial of a fake object, 0 for anything else.
func serialOf(v any) int {
	if s, ok := v.(interface{ Serial() int }); ok {
		return s.Serial()
	}
	return 0
}

func (o *object) Release() {
	if o.released {
		return
	}
	o.released = true
	o.dev.release(o.kind)
}

// Released reports whether Release was called.
func (o *object) Released() bool { return o.released }

// ShaderModule exposes the descriptor it was created with.
type ShaderModule struct {
	object
	Descriptor device.ShaderModuleDescriptor
}

// PipelineLayout exposes the descriptor it was created with.
type PipelineLayout struct {
	object
	Descriptor device.PipelineLayoutDescriptor
}

// BindGroupLayout exposes the entries it was created with.
type BindGroupLayout struct {
	object
	Entries []wgpu.BindGroupLayoutEntry
}

// RenderPipeline exposes the descriptor it was created with.
type RenderPipeline struct {
	object
	Descriptor device.RenderPipelineDescriptor
}

// BindGroup exposes the entries it was created with.
type BindGroup struct {
	object
	Entries []device.BindGroupEntry
}

// Buffer stores its contents in Data.
type Buffer struct {
	object
	usage wgpu.BufferUsage
	Data  []byte
}

func (b *Buffer) Size() uint64            { return uint64(len(b.Data)) }
func (b *Buffer) Usage() wgpu.BufferUsage { return b.usage }

// Texture stores mip level 0 tightly packed in Data.
type Texture struct {
	object
	desc    device.TextureDescriptor
	surface bool
	Data    []byte
}

func newTexture(d *Device, desc device.TextureDescriptor) *Texture {
	size := desc.Width * desc.Height * desc.DepthOrArrayLayers * device.BytesPerPixel(desc.Format)
	return &Texture{
		object: object{dev: d, kind: KindTexture, label: desc.Label},
		desc:   desc,
		Data:   make([]byte, size),
	}
}

func (t *Texture) Width() uint32                    { return t.desc.Width }
func (t *Texture) Height() uint32                   { return t.desc.Height }
func (t *Texture) DepthOrArrayLayers() uint32       { return t.desc.DepthOrArrayLayers }
func (t *Texture) Format() wgpu.TextureFormat       { return t.desc.Format }
func (t *Texture) SampleCount() uint32              { return t.desc.SampleCount }
func (t *Texture) MipLevelCount() uint32            { return t.desc.MipLevelCount }
func (t *Texture) Usage() wgpu.TextureUsage         { return t.desc.Usage }
func (t *Texture) Dimension() wgpu.TextureDimension { return t.desc.Dimension }

func (t *Texture) CreateView() (device.TextureView, error) {
	obj, err := t.dev.create(KindTextureView, t.label+" View")
	if err != nil {
		return nil, err
	}
	return &TextureView{object: obj, Texture: t}, nil
}

func (t *Texture) Release() {
	if t.surface {
		t.released = true
		return
	}
	t.object.Release()
}

// TextureView points back at its texture.
type TextureView struct {
	object
	Texture *Texture
}

// CommandEncoder records passes and copies. Copies take effect when the command buffer is submitted.
type CommandEncoder struct {
	dev        *Device
	label      string
	submission Submission
	ops        []func()
	finished   bool
}

func (e *CommandEncoder) BeginRenderPass(desc device.RenderPassDescriptor) device.RenderPassEncoder {
	e.submission.Passes = append(e.submission.Passes, Pass{Descriptor: desc})
	return &renderRecorder{&passRecorder{enc: e, index: len(e.submission.Passes) - 1}}
}

func (e *CommandEncoder) BeginComputePass(label string) device.ComputePassEncoder {
	e.submission.Passes = append(e.submission.Passes, Pass{Compute: true, Descriptor: device.RenderPassDescriptor{Label: label}})
	return &computeRecorder{&passRecorder{enc: e, index: len(e.submission.Passes) - 1}}
}

func (e *CommandEncoder) CopyBufferToBuffer(src device.Buffer, srcOffset uint64, dst device.Buffer, dstOffset uint64, size uint64) error {
	s, d := src.(*Buffer), dst.(*Buffer)
	if srcOffset+size > uint64(len(s.Data)) || dstOffset+size > uint64(len(d.Data)) {
		return fmt.Errorf("copy of %d bytes out of range", size)
	}
	e.submission.Copies = append(e.submission.Copies, fmt.Sprintf("buffer %s -> buffer %s", s.label, d.label))
	e.ops = append(e.ops, func() {
		copy(d.Data[dstOffset:dstOffset+size], s.Data[srcOffset:srcOffset+size])
	})
	return nil
}

func (e *CommandEncoder) CopyTextureToTexture(src, dst device.Texture, extent common.Extent) error {
	s, d := src.(*Texture), dst.(*Texture)
	e.submission.Copies = append(e.submission.Copies, fmt.Sprintf("texture %s -> texture %s", s.label, d.label))
	e.ops = append(e.ops, func() {
		copy(d.Data, s.Data)
	})
	return nil
}

func (e *CommandEncoder) CopyTextureToBuffer(src device.Texture, dst device.Buffer, bytesPerRow uint32, extent common.Extent) error {
	s, d := src.(*Texture), dst.(*Buffer)
	bpp := device.BytesPerPixel(s.desc.Format)
	row := extent.Width * bpp
	if bytesPerRow < row || uint64(bytesPerRow)*uint64(extent.Height) > uint64(len(d.Data)) {
		return fmt.Errorf("texture copy layout does not fit buffer %s", d.label)
	}
	e.submission.Copies = append(e.submission.Copies, fmt.Sprintf("texture %s -> buffer %s", s.label, d.label))
	e.ops = append(e.ops, func() {
		for y := uint32(0); y < extent.Height; y++ {
			copy(d.Data[y*bytesPerRow:y*bytesPerRow+row], s.Data[y*s.desc.Width*bpp:])
		}
	})
	return nil
}

func (e *CommandEncoder) Finish() (device.CommandBuffer, error) {
	if e.finished {
		return nil, fmt.Errorf("command encoder %s already finished", e.label)
	}
	e.finished = true
	e.submission.Label = e.label
	return &commandBuffer{label: e.label, submission: e.submission, ops: e.ops}, nil
}

func (e *CommandEncoder) Release() {
	e.dev.release(KindCommandEncoder)
}

type commandBuffer struct {
	label      string
	submission Submission
	ops        []func()
}

func (c *commandBuffer) Label() string { return c.label }
func (c *commandBuffer) Release()      {}

type passRecorder struct {
	enc   *CommandEncoder
	index int
	ended bool
}

func (p *passRecorder) record(c Command) {
	if p.ended {
		panic("devicetest: command recorded after End")
	}
	pass := &p.enc.submission.Passes[p.index]
	pass.Commands = append(pass.Commands, c)
}

func (p *renderRecorder) SetPipeline(rp device.RenderPipeline) {
	p.record(Command{Op: "SetPipeline", Target: rp.Label(), Serial: serialOf(rp)})
}

func (p *passRecorder) SetBindGroup(index uint32, bg device.BindGroup) {
	p.record(Command{Op: "SetBindGroup", Target: bg.Label(), Serial: serialOf(bg), Index: index})
}

func (p *renderRecorder) SetVertexBuffer(slot uint32, buf device.Buffer, offset uint64) {
	p.record(Command{Op: "SetVertexBuffer", Target: buf.Label(), Index: slot, Args: []uint32{uint32(offset)}})
}

func (p *renderRecorder) SetIndexBuffer(buf device.Buffer, format wgpu.IndexFormat, offset uint64) {
	p.record(Command{Op: "SetIndexBuffer", Target: buf.Label(), Args: []uint32{uint32(format), uint32(offset)}})
}

func (p *renderRecorder) SetPushConstants(stages wgpu.ShaderStage, offset uint32, data []byte) {
	p.record(Command{Op: "SetPushConstants", Index: offset, Args: []uint32{uint32(stages)}, Data: append([]byte(nil), data...)})
}

func (p *renderRecorder) SetViewport(v common.Viewport) {
	p.record(Command{Op: "SetViewport", Args: []uint32{uint32(v.X), uint32(v.Y), uint32(v.Width), uint32(v.Height)}})
}

func (p *renderRecorder) SetScissorRect(r common.Rect) {
	p.record(Command{Op: "SetScissorRect", Args: []uint32{r.X, r.Y, r.Width, r.Height}})
}

func (p *renderRecorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.record(Command{Op: "Draw", Args: []uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (p *renderRecorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.record(Command{Op: "DrawIndexed", Args: []uint32{indexCount, instanceCount, firstIndex, uint32(baseVertex), firstInstance}})
}

func (p *renderRecorder) DrawIndirect(buf device.Buffer, offset uint64) {
	p.record(Command{Op: "DrawIndirect", Target: buf.Label(), Args: []uint32{uint32(offset)}})
}

func (p *renderRecorder) DrawIndexedIndirect(buf device.Buffer, offset uint64) {
	p.record(Command{Op: "DrawIndexedIndirect", Target: buf.Label(), Args: []uint32{uint32(offset)}})
}

func (p *computeRecorder) DispatchWorkgroups(x, y, z uint32) {
	p.record(Command{Op: "DispatchWorkgroups", Args: []uint32{x, y, z}})
}

func (p *computeRecorder) DispatchWorkgroupsIndirect(buf device.Buffer, offset uint64) {
	p.record(Command{Op: "DispatchWorkgroupsIndirect", Target: buf.Label(), Args: []uint32{uint32(offset)}})
}

func (p *passRecorder) End() error {
	if p.ended {
		return fmt.Errorf("pass already ended")
	}
	p.ended = true
	return nil
}

type renderRecorder struct {
	*passRecorder
}

type computeRecorder struct {
	*passRecorder
}

var _ device.ComputePushConstantEncoder = &computeRecorder{}

func (p *computeRecorder) SetPipeline(cp device.ComputePipeline) {
	p.record(Command{Op: "SetPipeline", Target: cp.Label(), Serial: serialOf(cp)})
}

func (p *computeRecorder) SetPushConstants(offset uint32, data []byte) {
	p.record(Command{Op: "SetPushConstants", Index: offset, Data: append([]byte(nil), data...)})
}
