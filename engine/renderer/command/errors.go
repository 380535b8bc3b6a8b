package command

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// BuildErrorKind identifies why a render pass could not be built.
type BuildErrorKind uint8

const (
	BuildNoColorOrDepthAttachment BuildErrorKind = iota + 1
	BuildColorAttachmentNotRenderTarget
	BuildColorAttachmentMultiSampled
	BuildMismatchedAttachmentCount
	BuildMismatchedAttachmentSize
	BuildMismatchedAttachmentSampleCount
	BuildMsaaTextureNotMultiSampled
	BuildMsaaTextureNotRenderAttachment
	BuildMsaaTextureInvalidSize
	BuildDepthTextureNotRenderAttachment
	BuildDepthTextureInvalidSize
	BuildDepthTextureFormatNotSupported
	BuildStaleAttachment
)

// BuildError is returned by RenderPassBuilder.Build. Only the fields relevant to Kind are set.
type BuildError struct {
	Kind BuildErrorKind

	Expected common.Extent
	Actual   common.Extent

	ExpectedCount uint32
	ActualCount   uint32

	Format wgpu.TextureFormat
	// Label names the offending texture, if any.
	Label string
}

// Sentinels for errors.Is. They match any *BuildError of the same kind.
var (
	ErrNoColorOrDepthAttachment        = &BuildError{Kind: BuildNoColorOrDepthAttachment}
	ErrColorAttachmentNotRenderTarget  = &BuildError{Kind: BuildColorAttachmentNotRenderTarget}
	ErrColorAttachmentMultiSampled     = &BuildError{Kind: BuildColorAttachmentMultiSampled}
	ErrMismatchedAttachmentCount       = &BuildError{Kind: BuildMismatchedAttachmentCount}
	ErrMismatchedAttachmentSize        = &BuildError{Kind: BuildMismatchedAttachmentSize}
	ErrMismatchedAttachmentSampleCount = &BuildError{Kind: BuildMismatchedAttachmentSampleCount}
	ErrMsaaTextureNotMultiSampled      = &BuildError{Kind: BuildMsaaTextureNotMultiSampled}
	ErrMsaaTextureNotRenderAttachment  = &BuildError{Kind: BuildMsaaTextureNotRenderAttachment}
	ErrMsaaTextureInvalidSize          = &BuildError{Kind: BuildMsaaTextureInvalidSize}
	ErrDepthTextureNotRenderAttachment = &BuildError{Kind: BuildDepthTextureNotRenderAttachment}
	ErrDepthTextureInvalidSize         = &BuildError{Kind: BuildDepthTextureInvalidSize}
	ErrDepthTextureFormatNotSupported  = &BuildError{Kind: BuildDepthTextureFormatNotSupported}
	ErrStaleAttachment                 = &BuildError{Kind: BuildStaleAttachment}
)

// Error implements the error interface.
func (e *BuildError) Error() string {
	switch e.Kind {
	case BuildNoColorOrDepthAttachment:
		return "render pass has no color or depth attachment"
	case BuildColorAttachmentNotRenderTarget:
		return fmt.Sprintf("color attachment %s lacks RenderAttachment usage", e.Label)
	case BuildColorAttachmentMultiSampled:
		return fmt.Sprintf("color attachment %s is multisampled, use an MSAA attachment instead", e.Label)
	case BuildMismatchedAttachmentCount:
		return fmt.Sprintf("expected %d MSAA attachments, got %d", e.ExpectedCount, e.ActualCount)
	case BuildMismatchedAttachmentSize:
		return fmt.Sprintf("expected attachment size %s, got %s", e.Expected, e.Actual)
	case BuildMismatchedAttachmentSampleCount:
		return fmt.Sprintf("expected sample count %d, got %d", e.ExpectedCount, e.ActualCount)
	case BuildMsaaTextureNotMultiSampled:
		return fmt.Sprintf("MSAA attachment %s is not multisampled", e.Label)
	case BuildMsaaTextureNotRenderAttachment:
		return fmt.Sprintf("MSAA attachment %s lacks RenderAttachment usage", e.Label)
	case BuildMsaaTextureInvalidSize:
		return fmt.Sprintf("MSAA attachment %s has invalid size %s", e.Label, e.Actual)
	case BuildDepthTextureNotRenderAttachment:
		return fmt.Sprintf("depth attachment %s lacks RenderAttachment usage", e.Label)
	case BuildDepthTextureInvalidSize:
		return fmt.Sprintf("depth attachment %s has invalid size %s", e.Label, e.Actual)
	case BuildDepthTextureFormatNotSupported:
		return fmt.Sprintf("depth attachment format %d is not Depth32Float or Depth24PlusStencil8", e.Format)
	case BuildStaleAttachment:
		return "attachment texture was released"
	}
	return "invalid render pass"
}

// Is reports whether target is a *BuildError of the same kind.
func (e *BuildError) Is(target error) bool {
	var t *BuildError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// ContractError is raised with panic when a session is used against its state machine: a call after End,
// a draw without a shader, an indexed draw without an index buffer or a second open pass.
type ContractError struct {
	// Op names the offending call, e.g. "RenderPassSession.DrawIndexed".
	Op  string
	Msg string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Unwrap returns the underlying cause.
func (e *ContractError) Unwrap() error {
	return e.Err
}

// violation panics with a *ContractError.
func violation(op string, err error, format string, args ...any) {
	panic(&ContractError{Op: op, Msg: fmt.Sprintf(format, args...), Err: err})
}

var (
	// ErrSessionEnded is returned by Finish on a session that was already finished or cancelled.
	ErrSessionEnded = errors.New("command session already ended")
	// ErrNotComputeShader is returned by ComputePassSession.SetShader for shaders without a compute entry point.
	ErrNotComputeShader = errors.New("shader has no compute entry point")
	// ErrNoPushConstants is returned when push constants are set for a shader that declares none.
	ErrNoPushConstants = errors.New("shader declares no push constants")
	// ErrPushConstantsTooLarge is returned when a push constant payload exceeds the declared size.
	ErrPushConstantsTooLarge = errors.New("push constant payload exceeds the declared size")
	// ErrComputePushConstantsUnsupported is returned by ComputePassSession.SetPushConstants on devices that
	// cannot set push constants on compute passes.
	ErrComputePushConstantsUnsupported = errors.New("device does not support compute push constants")
)
