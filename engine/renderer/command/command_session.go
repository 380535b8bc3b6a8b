// Package command records GPU work. A CommandSession owns one native command encoder for a frame; render
// and compute pass sessions queue draws and dispatches against it and replay them into a native pass when
// they end. Sessions are not safe for concurrent use.
package command

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/cache"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// Context is what sessions need from the GPU context that owns them.
type Context interface {
	Device() device.Device
	PipelineCache() cache.PipelineCache
	BindGroupCache() cache.BindGroupCache
}

// passSession is implemented by the render and compute pass sessions so the command session can track and
// close the open pass.
type passSession interface {
	End() error
}

// commandSession is the implementation of the CommandSession interface.
type commandSession struct {
	ctx     Context
	id      uuid.UUID
	label   string
	encoder device.CommandEncoder

	surface *SurfaceTexture
	active  passSession
	passes  int

	// staging buffers created by WriteBuffer, released once the session ends
	staging []device.Buffer

	acquireSurface bool
	done           bool
}

// CommandSession records one submission. Passes are mutually exclusive: only one pass session may be open
// at a time. The session is submitted exactly once, by Finish, End or the Close guard; Cancel discards it.
//
// Typical use:
//
//	cmd, err := NewCommandSession(ctx)
//	if err != nil { ... }
//	defer cmd.Close()
//	pass, err := cmd.BeginRenderPass()
//	...
//	pass.End()
//	return cmd.Finish(true)
type CommandSession interface {
	// ID returns the unique session id, also used in native object labels.
	ID() uuid.UUID

	// Label returns the label of the native command encoder.
	Label() string

	// RenderPassBuilder starts describing a render pass with custom attachments.
	//
	// Returns:
	//   - *RenderPassBuilder: the builder, opened with Build
	RenderPassBuilder() *RenderPassBuilder

	// BeginRenderPass opens a render pass drawing into the swapchain image.
	//
	// Returns:
	//   - RenderPassSession: the open pass
	//   - error: a surface error (device.ErrSurfaceConfigNeeded, device.ErrSurfaceNotAvailable,
	//     device.ErrDeviceLost, device.ErrNoSurface) or a *BuildError
	BeginRenderPass() (RenderPassSession, error)

	// BeginTexturePass opens a render pass drawing into tex.
	BeginTexturePass(tex resource.Texture) (RenderPassSession, error)

	// BeginDepthPass opens a depth-only render pass, e.g. for shadow maps.
	BeginDepthPass(tex resource.Texture) (RenderPassSession, error)

	// BeginComputePass opens a compute pass.
	BeginComputePass() ComputePassSession

	// CopyBuffer records a copy of all of src into the start of dst.
	//
	// Parameters:
	//   - src: the source buffer, with CopySrc usage
	//   - dst: the destination buffer, with CopyDst usage and at least src's size
	//
	// Returns:
	//   - error: if a handle is stale, usages are missing or dst is too small
	CopyBuffer(src, dst resource.Buffer) error

	// WriteBuffer records a write of data into dst at offset, ordered with the other recorded commands
	// rather than ahead of the whole submission as Buffer.Write is.
	//
	// Parameters:
	//   - dst: the destination buffer, with CopyDst usage
	//   - offset: the byte offset, a multiple of 4
	//   - data: the bytes to write, a multiple of 4 long
	//
	// Returns:
	//   - error: if the write is misaligned or out of range, or staging fails
	WriteBuffer(dst resource.Buffer, offset uint64, data []byte) error

	// CopyTexture records a copy of src into dst. Both must have the same format and size and a single mip
	// level; anything else is a contract violation and panics.
	CopyTexture(src, dst resource.Texture)

	// SurfaceTexture returns the swapchain image of this frame, acquiring it on first use.
	SurfaceTexture() (*SurfaceTexture, error)

	// Finish submits the recorded commands and optionally presents the swapchain image.
	//
	// Parameters:
	//   - present: whether to present the acquired swapchain image
	//
	// Returns:
	//   - error: ErrSessionEnded on a second call, or the encoder error
	Finish(present bool) error

	// Cancel discards the recorded commands without submitting them.
	Cancel()

	// End is Finish that does nothing once the session has ended.
	End(present bool) error

	// Close is the defer guard: when neither Finish nor Cancel ran it ends any open pass and submits
	// without presenting. It runs during panics too so no recorder is leaked.
	Close()

	// Ended reports whether the session was submitted or cancelled.
	Ended() bool
}

var _ CommandSession = &commandSession{}

// NewCommandSession creates a command session with its native command encoder.
//
// Parameters:
//   - ctx: the GPU context owning the device and caches
//   - options: variadic list of CommandSessionOption functions
//
// Returns:
//   - CommandSession: the session
//   - error: if the encoder or the requested swapchain image cannot be created
func NewCommandSession(ctx Context, options ...CommandSessionOption) (CommandSession, error) {
	s := &commandSession{ctx: ctx, id: uuid.New()}
	for _, opt := range options {
		opt(s)
	}
	if s.label == "" {
		s.label = "Command Encoder " + s.id.String()[:8]
	}

	if s.acquireSurface {
		surface, err := acquireSurface(ctx.Device())
		if err != nil {
			return nil, err
		}
		s.surface = surface
	}

	enc, err := ctx.Device().CreateCommandEncoder(s.label)
	if err != nil {
		if s.surface != nil {
			s.surface.release()
		}
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	s.encoder = enc
	return s, nil
}

func (s *commandSession) ID() uuid.UUID {
	return s.id
}

func (s *commandSession) Label() string {
	return s.label
}

// checkOpen panics when the session ended or, with noPass, while a pass is open.
func (s *commandSession) checkOpen(op string, noPass bool) {
	if s.done {
		violation(op, ErrSessionEnded, "session %s", s.label)
	}
	if noPass && s.active != nil {
		violation(op, nil, "a pass is already open on session %s", s.label)
	}
}

// passLabel returns the label of the next pass.
func (s *commandSession) passLabel(kind string) string {
	s.passes++
	return fmt.Sprintf("%s %s Pass %d", s.label, kind, s.passes)
}

// passEnded is called by a pass session when it has been flushed.
func (s *commandSession) passEnded(p passSession) {
	if s.active == p {
		s.active = nil
	}
}

func (s *commandSession) RenderPassBuilder() *RenderPassBuilder {
	s.checkOpen("CommandSession.RenderPassBuilder", false)
	return &RenderPassBuilder{cmd: s}
}

func (s *commandSession) BeginRenderPass() (RenderPassSession, error) {
	s.checkOpen("CommandSession.BeginRenderPass", true)
	surface, err := s.SurfaceTexture()
	if err != nil {
		common.LogWarn("swapchain unavailable for %s: %v", s.label, err)
		return nil, err
	}
	return s.RenderPassBuilder().AddSurfaceAttachment(surface, nil).Build()
}

func (s *commandSession) BeginTexturePass(tex resource.Texture) (RenderPassSession, error) {
	s.checkOpen("CommandSession.BeginTexturePass", true)
	return s.RenderPassBuilder().AddColorAttachment(tex, nil).Build()
}

func (s *commandSession) BeginDepthPass(tex resource.Texture) (RenderPassSession, error) {
	s.checkOpen("CommandSession.BeginDepthPass", true)
	return s.RenderPassBuilder().SetDepthAttachment(tex).Build()
}

func (s *commandSession) BeginComputePass() ComputePassSession {
	s.checkOpen("CommandSession.BeginComputePass", true)
	p := newComputePassSession(s, s.passLabel("Compute"))
	s.active = p
	return p
}

func (s *commandSession) CopyBuffer(src, dst resource.Buffer) error {
	s.checkOpen("CommandSession.CopyBuffer", true)
	if !src.Valid() || !dst.Valid() {
		return fmt.Errorf("copy buffer: %w", resource.ErrStaleHandle)
	}
	if src.Usage()&wgpu.BufferUsageCopySrc == 0 {
		return fmt.Errorf("copy buffer: %s lacks CopySrc usage", src.Label())
	}
	if dst.Usage()&wgpu.BufferUsageCopyDst == 0 {
		return fmt.Errorf("copy buffer: %s lacks CopyDst usage", dst.Label())
	}
	if src.Size() > dst.Size() {
		return fmt.Errorf("copy buffer: %s (%d bytes) does not fit %s (%d bytes)", src.Label(), src.Size(), dst.Label(), dst.Size())
	}
	return s.encoder.CopyBufferToBuffer(src.Native(), 0, dst.Native(), 0, src.Size())
}

func (s *commandSession) WriteBuffer(dst resource.Buffer, offset uint64, data []byte) error {
	s.checkOpen("CommandSession.WriteBuffer", true)
	if !dst.Valid() {
		return fmt.Errorf("write buffer: %w", resource.ErrStaleHandle)
	}
	if offset%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("write buffer: offset %d and length %d must be multiples of 4", offset, len(data))
	}
	if dst.Usage()&wgpu.BufferUsageCopyDst == 0 {
		return fmt.Errorf("write buffer: %s lacks CopyDst usage", dst.Label())
	}
	if offset+uint64(len(data)) > dst.Size() {
		return fmt.Errorf("write buffer: %d bytes at %d overflow %s (%d bytes)", len(data), offset, dst.Label(), dst.Size())
	}
	if len(data) == 0 {
		return nil
	}

	dev := s.ctx.Device()
	staging, err := dev.CreateBuffer(device.BufferDescriptor{
		Label: dst.Label() + " Staging",
		Size:  uint64(len(data)),
		Usage: wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("write buffer: failed to create staging buffer: %w", err)
	}
	s.staging = append(s.staging, staging)
	if err := dev.Queue().WriteBuffer(staging, 0, data); err != nil {
		return fmt.Errorf("write buffer: %w", err)
	}
	return s.encoder.CopyBufferToBuffer(staging, 0, dst.Native(), offset, uint64(len(data)))
}

func (s *commandSession) CopyTexture(src, dst resource.Texture) {
	const op = "CommandSession.CopyTexture"
	s.checkOpen(op, true)
	if !src.Valid() || !dst.Valid() {
		violation(op, resource.ErrStaleHandle, "copy between released textures")
	}
	if src.Format() != dst.Format() {
		violation(op, nil, "source %s and destination %s formats differ", src.Label(), dst.Label())
	}
	if src.Size() != dst.Size() {
		violation(op, nil, "source %s is %s but destination %s is %s", src.Label(), src.Size(), dst.Label(), dst.Size())
	}
	if src.MipLevelCount() != 1 || dst.MipLevelCount() != 1 {
		violation(op, nil, "textures must have exactly one mip level")
	}
	if src.Usage()&wgpu.TextureUsageCopySrc == 0 || dst.Usage()&wgpu.TextureUsageCopyDst == 0 {
		violation(op, nil, "source needs CopySrc and destination CopyDst usage")
	}
	if err := s.encoder.CopyTextureToTexture(src.Native(), dst.Native(), src.Size()); err != nil {
		common.Fatal("copy texture", err)
	}
}

func (s *commandSession) SurfaceTexture() (*SurfaceTexture, error) {
	s.checkOpen("CommandSession.SurfaceTexture", false)
	if s.surface != nil {
		return s.surface, nil
	}
	surface, err := acquireSurface(s.ctx.Device())
	if err != nil {
		return nil, err
	}
	s.surface = surface
	return surface, nil
}

func (s *commandSession) Finish(present bool) error {
	if s.done {
		return ErrSessionEnded
	}
	if s.active != nil {
		violation("CommandSession.Finish", nil, "a pass is still open on session %s", s.label)
	}
	s.done = true
	defer s.cleanup()

	cb, err := s.encoder.Finish()
	if err != nil {
		return fmt.Errorf("failed to finish %s: %w", s.label, err)
	}
	s.ctx.Device().Queue().Submit(cb)
	cb.Release()

	if present {
		if s.surface == nil {
			common.LogDebug("%s: nothing to present, no swapchain image was acquired", s.label)
			return nil
		}
		s.ctx.Device().Surface().Present()
	}
	return nil
}

// cleanup releases the encoder, staging buffers and swapchain image.
func (s *commandSession) cleanup() {
	s.encoder.Release()
	for _, b := range s.staging {
		b.Release()
	}
	s.staging = nil
	if s.surface != nil {
		s.surface.release()
		s.surface = nil
	}
}

func (s *commandSession) Cancel() {
	if s.done {
		return
	}
	s.done = true
	s.active = nil
	s.cleanup()
}

func (s *commandSession) End(present bool) error {
	if s.done {
		return nil
	}
	return s.Finish(present)
}

func (s *commandSession) Close() {
	if s.done {
		return
	}
	common.LogWarn("%s closed without Finish or Cancel, submitting without present", s.label)
	if s.active != nil {
		if err := s.active.End(); err != nil {
			common.LogError("%s: failed to end open pass: %v", s.label, err)
		}
		s.active = nil
	}
	if err := s.Finish(false); err != nil {
		common.LogError("%s: %v", s.label, err)
	}
}

func (s *commandSession) Ended() bool {
	return s.done
}
