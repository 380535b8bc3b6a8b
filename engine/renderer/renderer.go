// Package renderer is the GPU context of the engine. A Renderer owns the device, the pipeline and bind
// group caches, the resource pool, the compiled shader cache and the frame targets that follow the
// surface size, and it opens the command sessions each frame is recorded with.
package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/profiler"
	bgp "github.com/Carmen-Shannon/oxy-gpu/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/cache"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	id        uuid.UUID
	dev       device.Device
	ownDevice bool

	pipelines  cache.PipelineCache
	bindGroups cache.BindGroupCache
	pool       resource.Pool
	compiled   shader.CompileCache

	surfaceDescriptor *wgpu.SurfaceDescriptor
	forceFallback     bool
	pushConstantSize  uint32
	pipelineCachePath string
	presentMode       PresentMode
	msaa              MSAASampleCount
	depthFormat       wgpu.TextureFormat
	profiler          *profiler.Profiler
	optionErr         error

	size        common.Extent
	targets     frameTargets
	reconfigure bool
	frame       uint64
	released    bool
}

// Renderer is the GPU context: it creates shaders and resources, tracks the surface size and records
// frames through command sessions. Every completed frame must end with EndFrame so the caches age.
//
// Typical frame:
//
//	cmd, err := r.BeginCommands()
//	if err != nil { ... skip the frame ... }
//	defer cmd.Close()
//	pass, err := r.BeginFramePass(cmd)
//	...
//	pass.End()
//	err = cmd.Finish(true)
//	r.EndFrame()
type Renderer interface {
	// ID returns the unique id of this renderer instance.
	ID() uuid.UUID

	// Device returns the device the renderer draws with.
	Device() device.Device

	// Queue returns the device queue.
	Queue() device.Queue

	// PipelineCache returns the cache of render and compute pipelines.
	PipelineCache() cache.PipelineCache

	// BindGroupCache returns the cache of bind groups.
	BindGroupCache() cache.BindGroupCache

	// Resources returns the pool owning every buffer, texture and sampler of this renderer.
	Resources() resource.Pool

	// CompileCache returns the compiled shader cache shared by every shader this renderer creates.
	CompileCache() shader.CompileCache

	// CreateShader creates a shader on the renderer's device through its compiled shader cache.
	//
	// Parameters:
	//   - key: the unique shader key
	//   - opts: the shader sources and options
	//
	// Returns:
	//   - shader.Shader: the shader
	//   - error: a reflection, compile or device error
	CreateShader(key string, opts ...shader.ShaderBuilderOption) (shader.Shader, error)

	// CreateBuffer creates an uninitialized pool-owned buffer.
	CreateBuffer(desc device.BufferDescriptor) (resource.Buffer, error)

	// CreateBufferInit creates a pool-owned buffer holding data.
	CreateBufferInit(label string, data []byte, usage wgpu.BufferUsage) (resource.Buffer, error)

	// CreateTexture creates a pool-owned texture and its default view.
	CreateTexture(desc device.TextureDescriptor) (resource.Texture, error)

	// CreateSampler creates a pool-owned sampler.
	CreateSampler(desc device.SamplerDescriptor) (resource.Sampler, error)

	// WriteBuffers queues every write ahead of the next submission.
	//
	// Parameters:
	//   - writes: the buffer writes
	//
	// Returns:
	//   - error: the joined write errors, or nil
	WriteBuffers(writes ...bgp.BufferWrite) error

	// Resize reconfigures the surface and recreates the frame targets. A zero width or height leaves the
	// swapchain unavailable: BeginCommands returns device.ErrSurfaceConfigNeeded until the next non-zero
	// resize.
	//
	// Parameters:
	//   - width: the new surface width in pixels
	//   - height: the new surface height in pixels
	//
	// Returns:
	//   - error: device.ErrNoSurface on a headless device, or a configuration or texture error
	Resize(width, height int) error

	// SurfaceSize returns the configured surface size, zero while unavailable.
	SurfaceSize() common.Extent

	// MSAA returns the sample count of the default frame pass.
	MSAA() MSAASampleCount

	// PresentMode returns the surface present mode.
	PresentMode() PresentMode

	// BeginCommands opens a command session for a frame, acquiring the swapchain image.
	//
	// Returns:
	//   - command.CommandSession: the session
	//   - error: device.ErrSurfaceConfigNeeded, device.ErrSurfaceNotAvailable, device.ErrDeviceLost,
	//     device.ErrNoSurface or an encoder error
	BeginCommands() (command.CommandSession, error)

	// BeginHeadlessCommands opens a command session that does not touch the surface, for off-screen and
	// compute work.
	BeginHeadlessCommands() (command.CommandSession, error)

	// BeginFramePass opens the default render pass of a frame: the swapchain image, resolved from the MSAA
	// target when multisampling is on, plus the depth target when one is configured.
	//
	// Parameters:
	//   - cmd: a session from BeginCommands
	//
	// Returns:
	//   - command.RenderPassSession: the open pass
	//   - error: a surface error or a *command.BuildError
	BeginFramePass(cmd command.CommandSession) (command.RenderPassSession, error)

	// EndFrame completes a frame: both caches age exactly once and the profiler ticks.
	EndFrame()

	// Frame returns the number of completed frames.
	Frame() uint64

	// Release purges the caches, frees every resource, writes the compiled shader cache and releases the
	// device if the renderer created it.
	Release()
}

var _ Renderer = &renderer{}
var _ command.Context = &renderer{}

// NewRenderer creates a Renderer. Without WithDevice a wgpu device is created, presenting to the surface
// given by WithSurfaceDescriptor or headless without one.
//
// Parameters:
//   - options: variadic list of RendererBuilderOption functions
//
// Returns:
//   - Renderer: the renderer
//   - error: error if an option is invalid or the device cannot be created
func NewRenderer(options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:          &sync.Mutex{},
		id:          uuid.New(),
		presentMode: PresentModeVSync,
		msaa:        MSAAOff,
		depthFormat: wgpu.TextureFormatDepth24PlusStencil8,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.optionErr != nil {
		return nil, r.optionErr
	}
	if !r.msaa.valid() {
		return nil, fmt.Errorf("unsupported MSAA sample count %d", r.msaa)
	}
	if r.depthFormat != wgpu.TextureFormatUndefined && !device.IsDepthFormat(r.depthFormat) {
		return nil, fmt.Errorf("depth format %v is not a depth format", r.depthFormat)
	}

	if r.dev == nil {
		opts := []device.DeviceBuilderOption{
			device.WithForceFallbackAdapter(r.forceFallback),
			device.WithLabel("Renderer " + r.id.String()[:8]),
			device.WithPushConstantSize(r.pushConstantSize),
		}
		if r.surfaceDescriptor != nil {
			opts = append(opts, device.WithSurfaceDescriptor(r.surfaceDescriptor))
		}
		dev, err := device.NewWGPUDevice(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create device: %w", err)
		}
		r.dev = dev
		r.ownDevice = true
	}

	r.pipelines = cache.NewPipelineCache()
	r.bindGroups = cache.NewBindGroupCache()
	r.pool = resource.NewPool(r.dev)
	if r.pipelineCachePath != "" {
		r.compiled = shader.LoadCompileCache(r.pipelineCachePath)
	} else {
		r.compiled = shader.NewCompileCache()
	}
	if r.profiler != nil {
		r.profiler.AddSources(r.pipelines, r.bindGroups)
	}

	common.LogInfo("renderer %s ready (msaa=%d, present=%s, surface=%v)", r.id.String()[:8], r.msaa, r.presentMode, r.dev.Surface() != nil)
	return r, nil
}

func (r *renderer) ID() uuid.UUID {
	return r.id
}

func (r *renderer) Device() device.Device {
	return r.dev
}

func (r *renderer) Queue() device.Queue {
	return r.dev.Queue()
}

func (r *renderer) PipelineCache() cache.PipelineCache {
	return r.pipelines
}

func (r *renderer) BindGroupCache() cache.BindGroupCache {
	return r.bindGroups
}

func (r *renderer) Resources() resource.Pool {
	return r.pool
}

func (r *renderer) CompileCache() shader.CompileCache {
	return r.compiled
}

func (r *renderer) CreateShader(key string, opts ...shader.ShaderBuilderOption) (shader.Shader, error) {
	opts = append([]shader.ShaderBuilderOption{shader.WithCompileCache(r.compiled)}, opts...)
	return shader.NewShader(r.dev, key, opts...)
}

func (r *renderer) CreateBuffer(desc device.BufferDescriptor) (resource.Buffer, error) {
	return r.pool.CreateBuffer(desc)
}

func (r *renderer) CreateBufferInit(label string, data []byte, usage wgpu.BufferUsage) (resource.Buffer, error) {
	return r.pool.CreateBufferInit(label, data, usage)
}

func (r *renderer) CreateTexture(desc device.TextureDescriptor) (resource.Texture, error) {
	return r.pool.CreateTexture(desc)
}

func (r *renderer) CreateSampler(desc device.SamplerDescriptor) (resource.Sampler, error) {
	return r.pool.CreateSampler(desc)
}

func (r *renderer) WriteBuffers(writes ...bgp.BufferWrite) error {
	return bgp.ApplyWrites(writes...)
}

func (r *renderer) Resize(width, height int) error {
	surface := r.dev.Surface()
	if surface == nil {
		return device.ErrNoSurface
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configure(surface, uint32(max(width, 0)), uint32(max(height, 0)))
}

// configure applies a surface size and rebuilds the frame targets. Caller must hold r.mu.
func (r *renderer) configure(surface device.Surface, width, height uint32) error {
	r.targets.release()
	r.reconfigure = false

	err := surface.Configure(device.SurfaceConfig{Width: width, Height: height, PresentMode: r.presentMode.wgpu()})
	if errors.Is(err, device.ErrSurfaceConfigNeeded) {
		r.size = common.Extent{}
		common.LogDebug("surface is %dx%d, frames are skipped until the next resize", width, height)
		return nil
	}
	if err != nil {
		r.size = common.Extent{}
		return fmt.Errorf("failed to configure surface: %w", err)
	}
	r.size = common.Extent{Width: width, Height: height}

	targets, err := createFrameTargets(r.pool, r.size, surface.Format(), r.msaa, r.depthFormat)
	if err != nil {
		return err
	}
	r.targets = targets
	common.LogDebug("surface configured to %s", r.size)
	return nil
}

func (r *renderer) SurfaceSize() common.Extent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *renderer) MSAA() MSAASampleCount {
	return r.msaa
}

func (r *renderer) PresentMode() PresentMode {
	return r.presentMode
}

func (r *renderer) BeginCommands() (command.CommandSession, error) {
	cmd, err := command.NewCommandSession(r, command.WithSurface())
	if err != nil {
		return nil, err
	}
	if st, err := cmd.SurfaceTexture(); err == nil && st.Suboptimal() {
		r.mu.Lock()
		r.reconfigure = true
		r.mu.Unlock()
	}
	return cmd, nil
}

func (r *renderer) BeginHeadlessCommands() (command.CommandSession, error) {
	return command.NewCommandSession(r)
}

func (r *renderer) BeginFramePass(cmd command.CommandSession) (command.RenderPassSession, error) {
	st, err := cmd.SurfaceTexture()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	targets := r.targets
	r.mu.Unlock()

	b := cmd.RenderPassBuilder().AddSurfaceAttachment(st, nil)
	if targets.msaa.Valid() {
		b.AddMSAAAttachment(targets.msaa)
	}
	if targets.depth.Valid() {
		b.SetDepthAttachment(targets.depth)
	}
	return b.Build()
}

func (r *renderer) EndFrame() {
	r.pipelines.Cycle()
	r.bindGroups.Cycle()

	r.mu.Lock()
	r.frame++
	if r.reconfigure && !r.size.IsZero() {
		common.LogDebug("reconfiguring suboptimal surface")
		if err := r.configure(r.dev.Surface(), r.size.Width, r.size.Height); err != nil {
			common.LogWarn("failed to reconfigure surface: %v", err)
		}
	}
	r.mu.Unlock()

	if r.profiler != nil {
		r.profiler.Tick()
	}
}

func (r *renderer) Frame() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true

	r.pipelines.Purge()
	r.bindGroups.Purge()
	r.targets.release()
	r.pool.Release()

	if r.pipelineCachePath != "" {
		if err := r.compiled.Save(r.pipelineCachePath); err != nil {
			common.LogError("failed to save compile cache: %v", err)
		}
	}
	if r.ownDevice {
		r.dev.Release()
	}
	common.LogInfo("renderer %s released after %d frames", r.id.String()[:8], r.frame)
}
