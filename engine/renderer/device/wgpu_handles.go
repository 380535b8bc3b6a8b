package device

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuShaderModule struct {
	label  string
	native *wgpu.ShaderModule
}

func (m *wgpuShaderModule) Label() string { return m.label }

func (m *wgpuShaderModule) Release() {
	if m.native != nil {
		m.native.Release()
		m.native = nil
	}
}

type wgpuBindGroupLayout struct {
	label  string
	native *wgpu.BindGroupLayout
}

func (l *wgpuBindGroupLayout) Label() string { return l.label }

func (l *wgpuBindGroupLayout) Release() {
	if l.native != nil {
		l.native.Release()
		l.native = nil
	}
}

type wgpuPipelineLayout struct {
	label  string
	native *wgpu.PipelineLayout
}

func (l *wgpuPipelineLayout) Label() string { return l.label }

func (l *wgpuPipelineLayout) Release() {
	if l.native != nil {
		l.native.Release()
		l.native = nil
	}
}

type wgpuRenderPipeline struct {
	label  string
	native *wgpu.RenderPipeline
}

func (p *wgpuRenderPipeline) Label() string { return p.label }

func (p *wgpuRenderPipeline) Release() {
	if p.native != nil {
		p.native.Release()
		p.native = nil
	}
}

type wgpuComputePipeline struct {
	label  string
	native *wgpu.ComputePipeline
}

func (p *wgpuComputePipeline) Label() string { return p.label }

func (p *wgpuComputePipeline) Release() {
	if p.native != nil {
		p.native.Release()
		p.native = nil
	}
}

type wgpuBindGroup struct {
	label  string
	native *wgpu.BindGroup
}

func (b *wgpuBindGroup) Label() string { return b.label }

func (b *wgpuBindGroup) Release() {
	if b.native != nil {
		b.native.Release()
		b.native = nil
	}
}

type wgpuSampler struct {
	label  string
	native *wgpu.Sampler
}

func (s *wgpuSampler) Label() string { return s.label }

func (s *wgpuSampler) Release() {
	if s.native != nil {
		s.native.Release()
		s.native = nil
	}
}

type wgpuTextureView struct {
	label  string
	native *wgpu.TextureView
}

func (v *wgpuTextureView) Label() string { return v.label }

func (v *wgpuTextureView) Release() {
	if v.native != nil {
		v.native.Release()
		v.native = nil
	}
}

type wgpuCommandBuffer struct {
	label  string
	native *wgpu.CommandBuffer
}

func (c *wgpuCommandBuffer) Label() string { return c.label }

func (c *wgpuCommandBuffer) Release() {
	if c.native != nil {
		c.native.Release()
		c.native = nil
	}
}

type wgpuBuffer struct {
	label  string
	native *wgpu.Buffer
	size   uint64
	usage  wgpu.BufferUsage
}

func (b *wgpuBuffer) Label() string           { return b.label }
func (b *wgpuBuffer) Size() uint64            { return b.size }
func (b *wgpuBuffer) Usage() wgpu.BufferUsage { return b.usage }

func (b *wgpuBuffer) Release() {
	if b.native != nil {
		b.native.Release()
		b.native = nil
	}
}

type wgpuTexture struct {
	desc   TextureDescriptor
	native *wgpu.Texture
	owned  bool
}

func (t *wgpuTexture) Label() string                    { return t.desc.Label }
func (t *wgpuTexture) Width() uint32                    { return t.desc.Width }
func (t *wgpuTexture) Height() uint32                   { return t.desc.Height }
func (t *wgpuTexture) DepthOrArrayLayers() uint32       { return t.desc.DepthOrArrayLayers }
func (t *wgpuTexture) Format() wgpu.TextureFormat       { return t.desc.Format }
func (t *wgpuTexture) SampleCount() uint32              { return t.desc.SampleCount }
func (t *wgpuTexture) MipLevelCount() uint32            { return t.desc.MipLevelCount }
func (t *wgpuTexture) Usage() wgpu.TextureUsage         { return t.desc.Usage }
func (t *wgpuTexture) Dimension() wgpu.TextureDimension { return t.desc.Dimension }

func (t *wgpuTexture) CreateView() (TextureView, error) {
	v, err := t.native.CreateView(nil)
	if err != nil {
		return nil, err
	}
	return &wgpuTextureView{label: t.desc.Label + " View", native: v}, nil
}

func (t *wgpuTexture) Release() {
	if t.native != nil && t.owned {
		t.native.Release()
	}
	t.native = nil
}

func nativeShaderModule(m ShaderModule) *wgpu.ShaderModule {
	if m == nil {
		return nil
	}
	return mustWGPU[*wgpuShaderModule](m).native
}

func nativeBindGroupLayout(l BindGroupLayout) *wgpu.BindGroupLayout {
	return mustWGPU[*wgpuBindGroupLayout](l).native
}

func nativePipelineLayout(l PipelineLayout) *wgpu.PipelineLayout {
	if l == nil {
		return nil
	}
	return mustWGPU[*wgpuPipelineLayout](l).native
}

func nativeBuffer(b Buffer) *wgpu.Buffer {
	return mustWGPU[*wgpuBuffer](b).native
}

func nativeTexture(t Texture) *wgpu.Texture {
	return mustWGPU[*wgpuTexture](t).native
}

func nativeTextureView(v TextureView) *wgpu.TextureView {
	return mustWGPU[*wgpuTextureView](v).native
}

func nativeSampler(s Sampler) *wgpu.Sampler {
	return mustWGPU[*wgpuSampler](s).native
}

func mustWGPU[T any](obj any) T {
	native, ok := obj.(T)
	if !ok {
		panic(fmt.Sprintf("device: %T was not created by the wgpu backend", obj))
	}
	return native
}
