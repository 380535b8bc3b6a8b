// Package devicetest provides an in-memory device.Device that records everything the rendering core asks of
// the GPU. Buffers and textures hold real bytes so writes, copies and readbacks can be asserted on.
package devicetest

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// Object kinds counted by Device.Created and Device.Released.
const (
	KindShaderModule    = "shader_module"
	KindBindGroupLayout = "bind_group_layout"
	KindPipelineLayout  = "pipeline_layout"
	KindRenderPipeline  = "render_pipeline"
	KindComputePipeline = "compute_pipeline"
	KindBindGroup       = "bind_group"
	KindBuffer          = "buffer"
	KindTexture         = "texture"
	KindTextureView     = "texture_view"
	KindSampler         = "sampler"
	KindCommandEncoder  = "command_encoder"
)

// Command is one recorded pass command.
type Command struct {
	// Op is the encoder method name, e.g. "SetPipeline", "DrawIndexed", "DispatchWorkgroups".
	Op string
	// Target is the label of the object the command refers to, if any.
	Target string
	// Serial is the creation serial of the target object, 0 if there is none. Objects sharing a label
	// are told apart by it.
	Serial int
	// Index is the bind group index, vertex slot or push constant offset.
	Index uint32
	// Args holds the numeric arguments in call order.
	Args []uint32
	// Data holds push constant bytes.
	Data []byte
}

// Pass is one recorded render or compute pass.
type Pass struct {
	Compute    bool
	Descriptor device.RenderPassDescriptor
	Commands   []Command
}

// Ops returns the op names of the pass commands in order.
func (p Pass) Ops() []string {
	ops := make([]string, len(p.Commands))
	for i, c := range p.Commands {
		ops[i] = c.Op
	}
	return ops
}

// CommandsOf returns the commands with the given op.
func (p Pass) CommandsOf(op string) []Command {
	var out []Command
	for _, c := range p.Commands {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Submission is one command buffer handed to Queue.Submit.
type Submission struct {
	Label  string
	Passes []Pass
	Copies []string
}

// Device is the recording fake. The zero value is not usable; call NewDevice.
type Device struct {
	mu          *sync.Mutex
	queue       *Queue
	surface     *Surface
	created     map[string]int
	released    map[string]int
	submissions []Submission
	failures    map[string]error
	nextID      int
	features    device.Features
}

var _ device.Device = &Device{}

// Option configures NewDevice.
type Option func(*Device)

// WithSurface gives the device a presentation surface with the given format.
func WithSurface(format wgpu.TextureFormat) Option {
	return func(d *Device) {
		d.surface = &Surface{dev: d, format: format}
	}
}

// WithFeatures replaces the optional capabilities the device reports. By default every feature is on.
func WithFeatures(f device.Features) Option {
	return func(d *Device) {
		d.features = f
	}
}

// NewDevice creates a headless recording device unless WithSurface is given.
//
// Parameters:
//   - opts: variadic list of Option functions
//
// Returns:
//   - *Device: the fake device
func NewDevice(opts ...Option) *Device {
	d := &Device{
		mu:       &sync.Mutex{},
		created:  make(map[string]int),
		released: make(map[string]int),
		failures: make(map[string]error),
		features: device.Features{ComputePushConstants: true},
	}
	d.queue = &Queue{dev: d}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FailNext makes the next Create call of the given kind return err.
func (d *Device) FailNext(kind string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[kind] = err
}

// Created returns how many objects of the kind were created.
func (d *Device) Created(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind]
}

// Released returns how many objects of the kind were released.
func (d *Device) Released(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released[kind]
}

// Live returns created minus released for the kind.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind] - d.released[kind]
}

// Submissions returns every submission so far.
func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Submission, len(d.submissions))
	copy(out, d.submissions)
	return out
}

// LastSubmission returns the most recent submission, or the zero value.
func (d *Device) LastSubmission() Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.submissions) == 0 {
		return Submission{}
	}
	return d.submissions[len(d.submissions)-1]
}

// FakeSurface returns the surface as its concrete type.
func (d *Device) FakeSurface() *Surface {
	return d.surface
}

// create counts a new object of kind and assigns it the next creation serial.
func (d *Device) create(kind, label string) (object, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failures[kind]; ok {
		delete(d.failures, kind)
		return object{}, err
	}
	d.created[kind]++
	d.nextID++
	if label == "" {
		label = fmt.Sprintf("%s#%d", kind, d.nextID)
	}
	return object{dev: d, kind: kind, label: label, serial: d.nextID}, nil
}

func (d *Device) release(kind string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released[kind]++
}

func (d *Device) Features() device.Features {
	return d.features
}

func (d *Device) Queue() device.Queue {
	return d.queue
}

func (d *Device) Surface() device.Surface {
	if d.surface == nil {
		return nil
	}
	return d.surface
}

func (d *Device) CreateShaderModule(desc device.ShaderModuleDescriptor) (device.ShaderModule, error) {
	obj, err := d.create(KindShaderModule, desc.Label)
	if err != nil {
		return nil, err
	}
	return &ShaderModule{object: obj, Descriptor: desc}, nil
}

func (d *Device) CreateBindGroupLayout(desc device.BindGroupLayoutDescriptor) (device.BindGroupLayout, error) {
	obj, err := d.create(KindBindGroupLayout, desc.Label)
	if err != nil {
		return nil, err
	}
	return &BindGroupLayout{object: obj, Entries: desc.Entries}, nil
}

func (d *Device) CreatePipelineLayout(desc device.PipelineLayoutDescriptor) (device.PipelineLayout, error) {
	obj, err := d.create(KindPipelineLayout, desc.Label)
	if err != nil {
		return nil, err
	}
	return &PipelineLayout{object: obj, Descriptor: desc}, nil
}

func (d *Device) CreateRenderPipeline(desc device.RenderPipelineDescriptor) (device.RenderPipeline, error) {
	obj, err := d.create(KindRenderPipeline, desc.Label)
	if err != nil {
		return nil, err
	}
	return &RenderPipeline{object: obj, Descriptor: desc}, nil
}

func (d *Device) CreateComputePipeline(desc device.ComputePipelineDescriptor) (device.ComputePipeline, error) {
	obj, err := d.create(KindComputePipeline, desc.Label)
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

func (d *Device) CreateBindGroup(desc device.BindGroupDescriptor) (device.BindGroup, error) {
	obj, err := d.create(KindBindGroup, desc.Label)
	if err != nil {
		return nil, err
	}
	return &BindGroup{object: obj, Entries: desc.Entries}, nil
}

func (d *Device) CreateBuffer(desc device.BufferDescriptor) (device.Buffer, error) {
	obj, err := d.create(KindBuffer, desc.Label)
	if err != nil {
		return nil, err
	}
	return &Buffer{object: obj, usage: desc.Usage, Data: make([]byte, desc.Size)}, nil
}

func (d *Device) CreateTexture(desc device.TextureDescriptor) (device.Texture, error) {
	obj, err := d.create(KindTexture, desc.Label)
	if err != nil {
		return nil, err
	}
	desc = desc.Normalized()
	desc.Label = obj.label
	tex := newTexture(d, desc)
	tex.serial = obj.serial
	return tex, nil
}

func (d *Device) CreateSampler(desc device.SamplerDescriptor) (device.Sampler, error) {
	obj, err := d.create(KindSampler, desc.Label)
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

func (d *Device) CreateCommandEncoder(label string) (device.CommandEncoder, error) {
	obj, err := d.create(KindCommandEncoder, label)
	if err != nil {
		return nil, err
	}
	return &CommandEncoder{dev: d, label: obj.label}, nil
}

func (d *Device) ReadBuffer(buf device.Buffer, offset, size uint64) ([]byte, error) {
	b := buf.(*Buffer)
	if b.usage&wgpu.BufferUsageMapRead == 0 {
		return nil, fmt.Errorf("buffer %s is not mappable", b.label)
	}
	if offset+size > uint64(len(b.Data)) {
		return nil, fmt.Errorf("read [%d, %d) out of range of buffer %s (%d bytes)", offset, offset+size, b.label, len(b.Data))
	}
	out := make([]byte, size)
	copy(out, b.Data[offset:offset+size])
	return out, nil
}

func (d *Device) Release() {}

func (d *Device) submit(s Submission, ops []func()) {
	for _, op := range ops {
		op()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submissions = append(d.submissions, s)
}

// Queue applies writes immediately and records submissions.
type Queue struct {
	dev *Device
}

func (q *Queue) WriteBuffer(buf device.Buffer, offset uint64, data []byte) error {
	b := buf.(*Buffer)
	if offset+uint64(len(data)) > uint64(len(b.Data)) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %s", len(data), offset, b.label)
	}
	copy(b.Data[offset:], data)
	return nil
}

func (q *Queue) WriteTexture(tex device.Texture, mipLevel uint32, data []byte, bytesPerRow uint32, extent common.Extent) error {
	t := tex.(*Texture)
	bpp := device.BytesPerPixel(t.desc.Format)
	row := extent.Width * bpp
	for y := uint32(0); y < extent.Height; y++ {
		src := data[y*bytesPerRow : y*bytesPerRow+row]
		copy(t.Data[y*t.desc.Width*bpp:], src)
	}
	return nil
}

func (q *Queue) Submit(cmds ...device.CommandBuffer) {
	for _, c := range cmds {
		cb := c.(*commandBuffer)
		q.dev.submit(cb.submission, cb.ops)
	}
}

// Surface is a fake swapchain.
type Surface struct {
	dev        *Device
	format     wgpu.TextureFormat
	extent     common.Extent
	acquireErr error
	suboptimal bool
	acquired   int
	presented  int
}

// FailAcquire makes every following Acquire return err until cleared with nil.
func (s *Surface) FailAcquire(err error) {
	s.acquireErr = err
}

// SetSuboptimal marks acquired textures as suboptimal.
func (s *Surface) SetSuboptimal(v bool) {
	s.suboptimal = v
}

// Presented returns how many times Present was called.
func (s *Surface) Presented() int {
	return s.presented
}

// Acquired returns how many swapchain images were handed out.
func (s *Surface) Acquired() int {
	return s.acquired
}

func (s *Surface) Configure(cfg device.SurfaceConfig) error {
	if cfg.Width == 0 || cfg.Height == 0 {
		s.extent = common.Extent{}
		return device.ErrSurfaceConfigNeeded
	}
	s.extent = common.Extent{Width: cfg.Width, Height: cfg.Height}
	return nil
}

func (s *Surface) Acquire() (device.SurfaceTexture, error) {
	if s.acquireErr != nil {
		return device.SurfaceTexture{}, s.acquireErr
	}
	if s.extent.IsZero() {
		return device.SurfaceTexture{}, device.ErrSurfaceConfigNeeded
	}
	s.acquired++
	tex := newTexture(s.dev, device.TextureDescriptor{
		Label:              "Surface Texture",
		Width:              s.extent.Width,
		Height:             s.extent.Height,
		DepthOrArrayLayers: 1,
		MipLevelCount:      1,
		SampleCount:        1,
		Dimension:          wgpu.TextureDimension2D,
		Format:             s.format,
		Usage:              wgpu.TextureUsageRenderAttachment,
	})
	tex.surface = true
	return device.SurfaceTexture{Texture: tex, Suboptimal: s.suboptimal}, nil
}

func (s *Surface) Present() {
	s.presented++
}

func (s *Surface) Format() wgpu.TextureFormat {
	return s.format
}

func (s *Surface) Extent() common.Extent {
	return s.extent
}
