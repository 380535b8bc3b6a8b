package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuDevice struct {
	mu       *sync.Mutex
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpuQueue
	surface  *wgpuSurface

	pushConstantSize uint32
	polygonWarned    bool
}

var _ Device = &wgpuDevice{}

// NewWGPUDevice acquires an adapter and device through the wgpu-native bindings. The calling goroutine is
// locked to its OS thread since surfaces and devices must be driven from the thread that created them.
//
// Parameters:
//   - opts: variadic list of DeviceBuilderOption functions
//
// Returns:
//   - Device: the wgpu-backed device
//   - error: error if no adapter or device could be acquired
func NewWGPUDevice(opts ...DeviceBuilderOption) (Device, error) {
	o := &wgpuDeviceOptions{maxBindGroups: 8, label: "Main Device"}
	for _, opt := range opts {
		opt(o)
	}

	runtime.LockOSThread()
	d := &wgpuDevice{
		mu:               &sync.Mutex{},
		instance:         wgpu.CreateInstance(nil),
		pushConstantSize: o.pushConstantSize,
	}

	var nativeSurface *wgpu.Surface
	if o.surfaceDescriptor != nil {
		nativeSurface = d.instance.CreateSurface(o.surfaceDescriptor)
	}

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: o.forceFallbackAdapter,
		CompatibleSurface:    nativeSurface,
	})
	if err != nil {
		d.instance.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	d.adapter = a

	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = o.maxBindGroups
	desc := &wgpu.DeviceDescriptor{
		Label: o.label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	}
	if o.pushConstantSize > 0 {
		desc.RequiredLimits.Limits.MaxPushConstantSize = o.pushConstantSize
		desc.RequiredFeatures = []wgpu.FeatureName{wgpu.FeatureName(wgpu.NativeFeaturePushConstants)}
	}

	nd, err := a.RequestDevice(desc)
	if err != nil {
		a.Release()
		d.instance.Release()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	d.device = nd
	d.queue = &wgpuQueue{native: nd.GetQueue()}

	if nativeSurface != nil {
		d.surface = &wgpuSurface{
			mu:      &sync.Mutex{},
			native:  nativeSurface,
			adapter: a,
			device:  nd,
		}
	}

	common.LogInfo("wgpu device ready (fallback=%v, surface=%v)", o.forceFallbackAdapter, nativeSurface != nil)
	return d, nil
}

func (d *wgpuDevice) Queue() Queue {
	return d.queue
}

func (d *wgpuDevice) Surface() Surface {
	if d.surface == nil {
		return nil
	}
	return d.surface
}

// Features reports no compute push constants; ComputePassEncoder has no SetPushConstants in these bindings.
func (d *wgpuDevice) Features() Features {
	return Features{}
}

// spirvBytes lays SPIR-V words out as little-endian bytes.
func spirvBytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func (d *wgpuDevice) CreateShaderModule(desc ShaderModuleDescriptor) (ShaderModule, error) {
	nd := &wgpu.ShaderModuleDescriptor{Label: desc.Label}
	switch {
	case len(desc.SPIRV) > 0:
		nd.SPIRVDescriptor = &wgpu.ShaderModuleSPIRVDescriptor{Code: spirvBytes(desc.SPIRV)}
	case desc.WGSL != "":
		nd.WGSLDescriptor = &wgpu.ShaderModuleWGSLDescriptor{Code: desc.WGSL}
	default:
		return nil, errors.New("shader module descriptor has no code")
	}
	m, err := d.device.CreateShaderModule(nd)
	if err != nil {
		return nil, err
	}
	return &wgpuShaderModule{label: desc.Label, native: m}, nil
}

func (d *wgpuDevice) CreateBindGroupLayout(desc BindGroupLayoutDescriptor) (BindGroupLayout, error) {
	l, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: desc.Entries,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBindGroupLayout{label: desc.Label, native: l}, nil
}

func (d *wgpuDevice) CreatePipelineLayout(desc PipelineLayoutDescriptor) (PipelineLayout, error) {
	layouts := make([]*wgpu.BindGroupLayout, len(desc.BindGroupLayouts))
	for i, l := range desc.BindGroupLayouts {
		layouts[i] = nativeBindGroupLayout(l)
	}
	nd := &wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: layouts,
	}
	if desc.PushConstantSize > 0 {
		nd.PushConstantRanges = []wgpu.PushConstantRange{{
			Stages: desc.PushConstantStages,
			Start:  0,
			End:    desc.PushConstantSize,
		}}
	}
	l, err := d.device.CreatePipelineLayout(nd)
	if err != nil {
		return nil, err
	}
	return &wgpuPipelineLayout{label: desc.Label, native: l}, nil
}

func (d *wgpuDevice) CreateRenderPipeline(desc RenderPipelineDescriptor) (RenderPipeline, error) {
	if desc.PolygonMode != PolygonModeFill {
		d.mu.Lock()
		if !d.polygonWarned {
			common.LogWarn("polygon mode %s is not supported by the wgpu backend, rasterizing as fill", desc.PolygonMode)
			d.polygonWarned = true
		}
		d.mu.Unlock()
	}

	sampleCount := common.Coalesce(desc.SampleCount, 1)
	nd := &wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: nativePipelineLayout(desc.Layout),
		Vertex: wgpu.VertexState{
			Module:     nativeShaderModule(desc.VertexModule),
			EntryPoint: desc.VertexEntryPoint,
			Buffers:    desc.VertexBuffers,
		},
		Primitive: desc.Primitive,
		Multisample: wgpu.MultisampleState{
			Count: sampleCount,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: desc.DepthStencil,
	}
	if desc.FragmentModule != nil {
		nd.Fragment = &wgpu.FragmentState{
			Module:     nativeShaderModule(desc.FragmentModule),
			EntryPoint: desc.FragmentEntryPoint,
			Targets:    desc.Targets,
		}
	}
	p, err := d.device.CreateRenderPipeline(nd)
	if err != nil {
		return nil, err
	}
	return &wgpuRenderPipeline{label: desc.Label, native: p}, nil
}

func (d *wgpuDevice) CreateComputePipeline(desc ComputePipelineDescriptor) (ComputePipeline, error) {
	p, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: nativePipelineLayout(desc.Layout),
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     nativeShaderModule(desc.Module),
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return nil, err
	}
	return &wgpuComputePipeline{label: desc.Label, native: p}, nil
}

func (d *wgpuDevice) CreateBindGroup(desc BindGroupDescriptor) (BindGroup, error) {
	entries := make([]wgpu.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entry := wgpu.BindGroupEntry{Binding: e.Binding}
		switch {
		case e.Buffer != nil:
			entry.Buffer = nativeBuffer(e.Buffer)
			entry.Offset = e.Offset
			entry.Size = e.Size
			if entry.Size == 0 {
				entry.Size = wgpu.WholeSize
			}
		case e.TextureView != nil:
			entry.TextureView = nativeTextureView(e.TextureView)
		case e.Sampler != nil:
			entry.Sampler = nativeSampler(e.Sampler)
		default:
			return nil, fmt.Errorf("bind group entry %d has no resource", e.Binding)
		}
		entries[i] = entry
	}
	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  nativeBindGroupLayout(desc.Layout),
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBindGroup{label: desc.Label, native: bg}, nil
}

func (d *wgpuDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	b, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBuffer{label: desc.Label, native: b, size: desc.Size, usage: desc.Usage}, nil
}

func (d *wgpuDevice) CreateTexture(desc TextureDescriptor) (Texture, error) {
	desc = desc.Normalized()
	t, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.DepthOrArrayLayers,
		},
		MipLevelCount: desc.MipLevelCount,
		SampleCount:   desc.SampleCount,
		Dimension:     desc.Dimension,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuTexture{desc: desc, native: t, owned: true}, nil
}

func (d *wgpuDevice) CreateSampler(desc SamplerDescriptor) (Sampler, error) {
	s, err := d.device.CreateSampler(&desc)
	if err != nil {
		return nil, err
	}
	return &wgpuSampler{label: desc.Label, native: s}, nil
}

func (d *wgpuDevice) CreateCommandEncoder(label string) (CommandEncoder, error) {
	e, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, err
	}
	return &wgpuCommandEncoder{label: label, native: e}, nil
}

func (d *wgpuDevice) ReadBuffer(buf Buffer, offset, size uint64) ([]byte, error) {
	nb := nativeBuffer(buf)
	var status wgpu.BufferMapAsyncStatus
	err := nb.MapAsync(wgpu.MapModeRead, offset, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	})
	if err != nil {
		return nil, fmt.Errorf("failed to map buffer %s: %w", buf.Label(), err)
	}
	d.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("failed to map buffer %s: status %d", buf.Label(), status)
	}
	mapped := nb.GetMappedRange(uint(offset), uint(size))
	out := make([]byte, len(mapped))
	copy(out, mapped)
	nb.Unmap()
	return out, nil
}

func (d *wgpuDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return
	}
	if d.surface != nil {
		d.surface.native.Release()
		d.surface = nil
	}
	d.queue.native.Release()
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
	d.device = nil
}

type wgpuQueue struct {
	native *wgpu.Queue
}

func (q *wgpuQueue) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	return q.native.WriteBuffer(nativeBuffer(buf), offset, data)
}

func (q *wgpuQueue) WriteTexture(tex Texture, mipLevel uint32, data []byte, bytesPerRow uint32, extent common.Extent) error {
	return q.native.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  nativeTexture(tex),
			MipLevel: mipLevel,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  bytesPerRow,
			RowsPerImage: extent.Height,
		},
		&wgpu.Extent3D{
			Width:              extent.Width,
			Height:             extent.Height,
			DepthOrArrayLayers: 1,
		},
	)
}

func (q *wgpuQueue) Submit(cmds ...CommandBuffer) {
	native := make([]*wgpu.CommandBuffer, 0, len(cmds))
	for _, c := range cmds {
		native = append(native, c.(*wgpuCommandBuffer).native)
	}
	q.native.Submit(native...)
}

type wgpuSurface struct {
	mu      *sync.Mutex
	native  *wgpu.Surface
	adapter *wgpu.Adapter
	device  *wgpu.Device
	format  wgpu.TextureFormat
	extent  common.Extent
}

func (s *wgpuSurface) Configure(cfg SurfaceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Width == 0 || cfg.Height == 0 {
		s.extent = common.Extent{}
		return ErrSurfaceConfigNeeded
	}

	capabilities := s.native.GetCapabilities(s.adapter)
	if len(capabilities.Formats) == 0 {
		return fmt.Errorf("surface reports no formats: %w", ErrSurfaceNotAvailable)
	}
	s.format = capabilities.Formats[0]
	s.native.Configure(s.adapter, s.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      s.format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		PresentMode: cfg.PresentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	s.extent = common.Extent{Width: cfg.Width, Height: cfg.Height}
	return nil
}

func (s *wgpuSurface) Acquire() (SurfaceTexture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.extent.IsZero() {
		return SurfaceTexture{}, ErrSurfaceConfigNeeded
	}
	t, err := s.native.GetCurrentTexture()
	if err != nil {
		return SurfaceTexture{}, classifySurfaceError(err)
	}
	return SurfaceTexture{
		Texture: &wgpuTexture{
			desc: TextureDescriptor{
				Label:              "Surface Texture",
				Width:              s.extent.Width,
				Height:             s.extent.Height,
				DepthOrArrayLayers: 1,
				MipLevelCount:      1,
				SampleCount:        1,
				Dimension:          wgpu.TextureDimension2D,
				Format:             s.format,
				Usage:              wgpu.TextureUsageRenderAttachment,
			},
			native: t,
			owned:  true,
		},
	}, nil
}

func (s *wgpuSurface) Present() {
	s.native.Present()
}

func (s *wgpuSurface) Format() wgpu.TextureFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

func (s *wgpuSurface) Extent() common.Extent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extent
}

func classifySurfaceError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "device"):
		return fmt.Errorf("%w: %v", ErrDeviceLost, err)
	case strings.Contains(msg, "outdated"), strings.Contains(msg, "lost"):
		return fmt.Errorf("%w: %v", ErrSurfaceConfigNeeded, err)
	default:
		return fmt.Errorf("%w: %v", ErrSurfaceNotAvailable, err)
	}
}

type wgpuCommandEncoder struct {
	label  string
	native *wgpu.CommandEncoder
}

func (e *wgpuCommandEncoder) BeginRenderPass(desc RenderPassDescriptor) RenderPassEncoder {
	nd := &wgpu.RenderPassDescriptor{Label: desc.Label}
	for _, c := range desc.ColorAttachments {
		att := wgpu.RenderPassColorAttachment{
			View:       nativeTextureView(c.View),
			LoadOp:     c.LoadOp,
			StoreOp:    c.StoreOp,
			ClearValue: c.ClearValue,
		}
		if c.ResolveTarget != nil {
			att.ResolveTarget = nativeTextureView(c.ResolveTarget)
		}
		nd.ColorAttachments = append(nd.ColorAttachments, att)
	}
	if d := desc.DepthAttachment; d != nil {
		nd.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            nativeTextureView(d.View),
			DepthLoadOp:     d.DepthLoadOp,
			DepthStoreOp:    d.DepthStoreOp,
			DepthClearValue: d.DepthClearValue,
		}
		if d.HasStencil {
			nd.DepthStencilAttachment.StencilLoadOp = wgpu.LoadOpClear
			nd.DepthStencilAttachment.StencilStoreOp = wgpu.StoreOpStore
		}
	}
	return &wgpuRenderPass{native: e.native.BeginRenderPass(nd)}
}

func (e *wgpuCommandEncoder) BeginComputePass(label string) ComputePassEncoder {
	return &wgpuComputePass{native: e.native.BeginComputePass(&wgpu.ComputePassDescriptor{Label: label})}
}

func (e *wgpuCommandEncoder) CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64) error {
	return e.native.CopyBufferToBuffer(nativeBuffer(src), srcOffset, nativeBuffer(dst), dstOffset, size)
}

func (e *wgpuCommandEncoder) CopyTextureToTexture(src, dst Texture, extent common.Extent) error {
	return e.native.CopyTextureToTexture(
		&wgpu.ImageCopyTexture{Texture: nativeTexture(src), Aspect: wgpu.TextureAspectAll},
		&wgpu.ImageCopyTexture{Texture: nativeTexture(dst), Aspect: wgpu.TextureAspectAll},
		&wgpu.Extent3D{Width: extent.Width, Height: extent.Height, DepthOrArrayLayers: 1},
	)
}

func (e *wgpuCommandEncoder) CopyTextureToBuffer(src Texture, dst Buffer, bytesPerRow uint32, extent common.Extent) error {
	return e.native.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{Texture: nativeTexture(src), Aspect: wgpu.TextureAspectAll},
		&wgpu.ImageCopyBuffer{
			Buffer: nativeBuffer(dst),
			Layout: wgpu.TextureDataLayout{
				BytesPerRow:  bytesPerRow,
				RowsPerImage: extent.Height,
			},
		},
		&wgpu.Extent3D{Width: extent.Width, Height: extent.Height, DepthOrArrayLayers: 1},
	)
}

func (e *wgpuCommandEncoder) Finish() (CommandBuffer, error) {
	cb, err := e.native.Finish(&wgpu.CommandBufferDescriptor{Label: e.label})
	if err != nil {
		return nil, err
	}
	return &wgpuCommandBuffer{label: e.label, native: cb}, nil
}

func (e *wgpuCommandEncoder) Release() {
	if e.native != nil {
		e.native.Release()
		e.native = nil
	}
}

type wgpuRenderPass struct {
	native *wgpu.RenderPassEncoder
}

func (p *wgpuRenderPass) SetPipeline(rp RenderPipeline) {
	p.native.SetPipeline(rp.(*wgpuRenderPipeline).native)
}

func (p *wgpuRenderPass) SetBindGroup(index uint32, bg BindGroup) {
	p.native.SetBindGroup(index, bg.(*wgpuBindGroup).native, nil)
}

func (p *wgpuRenderPass) SetVertexBuffer(slot uint32, buf Buffer, offset uint64) {
	p.native.SetVertexBuffer(slot, nativeBuffer(buf), offset, wgpu.WholeSize)
}

func (p *wgpuRenderPass) SetIndexBuffer(buf Buffer, format wgpu.IndexFormat, offset uint64) {
	p.native.SetIndexBuffer(nativeBuffer(buf), format, offset, wgpu.WholeSize)
}

func (p *wgpuRenderPass) SetPushConstants(stages wgpu.ShaderStage, offset uint32, data []byte) {
	p.native.SetPushConstants(stages, offset, data)
}

func (p *wgpuRenderPass) SetViewport(v common.Viewport) {
	p.native.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
}

func (p *wgpuRenderPass) SetScissorRect(r common.Rect) {
	p.native.SetScissorRect(r.X, r.Y, r.Width, r.Height)
}

func (p *wgpuRenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.native.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *wgpuRenderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.native.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (p *wgpuRenderPass) DrawIndirect(buf Buffer, offset uint64) {
	p.native.DrawIndirect(nativeBuffer(buf), offset)
}

func (p *wgpuRenderPass) DrawIndexedIndirect(buf Buffer, offset uint64) {
	p.native.DrawIndexedIndirect(nativeBuffer(buf), offset)
}

func (p *wgpuRenderPass) End() error {
	err := p.native.End()
	p.native.Release()
	return err
}

type wgpuComputePass struct {
	native *wgpu.ComputePassEncoder
}

func (p *wgpuComputePass) SetPipeline(cp ComputePipeline) {
	p.native.SetPipeline(cp.(*wgpuComputePipeline).native)
}

func (p *wgpuComputePass) SetBindGroup(index uint32, bg BindGroup) {
	p.native.SetBindGroup(index, bg.(*wgpuBindGroup).native, nil)
}

func (p *wgpuComputePass) DispatchWorkgroups(x, y, z uint32) {
	p.native.DispatchWorkgroups(x, y, z)
}

func (p *wgpuComputePass) DispatchWorkgroupsIndirect(buf Buffer, offset uint64) {
	p.native.DispatchWorkgroupsIndirect(nativeBuffer(buf), offset)
}

func (p *wgpuComputePass) End() error {
	err := p.native.End()
	p.native.Release()
	return err
}
