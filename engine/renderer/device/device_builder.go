package device

import "github.com/cogentcore/webgpu/wgpu"

// DeviceBuilderOption configures NewWGPUDevice.
type DeviceBuilderOption func(*wgpuDeviceOptions)

type wgpuDeviceOptions struct {
	surfaceDescriptor    *wgpu.SurfaceDescriptor
	forceFallbackAdapter bool
	maxBindGroups        uint32
	pushConstantSize     uint32
	label                string
}

// WithSurfaceDescriptor attaches a presentation surface created from the given window descriptor.
// Without it the device is headless.
//
// Parameters:
//   - desc: the native surface descriptor, typically from window.Window.SurfaceDescriptor
//
// Returns:
//   - DeviceBuilderOption: a function that applies the option
func WithSurfaceDescriptor(desc *wgpu.SurfaceDescriptor) DeviceBuilderOption {
	return func(o *wgpuDeviceOptions) {
		o.surfaceDescriptor = desc
	}
}

// WithForceFallbackAdapter requests the software adapter.
//
// Parameters:
//   - force: true to force the fallback adapter
//
// Returns:
//   - DeviceBuilderOption: a function that applies the option
func WithForceFallbackAdapter(force bool) DeviceBuilderOption {
	return func(o *wgpuDeviceOptions) {
		o.forceFallbackAdapter = force
	}
}

// WithMaxBindGroups raises the bind group limit requested from the adapter.
//
// Parameters:
//   - n: the number of bind groups
//
// Returns:
//   - DeviceBuilderOption: a function that applies the option
func WithMaxBindGroups(n uint32) DeviceBuilderOption {
	return func(o *wgpuDeviceOptions) {
		o.maxBindGroups = n
	}
}

// WithPushConstantSize requests native push constant support of the given size in bytes.
//
// Parameters:
//   - size: the maximum push constant block size
//
// Returns:
//   - DeviceBuilderOption: a function that applies the option
func WithPushConstantSize(size uint32) DeviceBuilderOption {
	return func(o *wgpuDeviceOptions) {
		o.pushConstantSize = size
	}
}

// WithLabel sets the native device label.
func WithLabel(label string) DeviceBuilderOption {
	return func(o *wgpuDeviceOptions) {
		o.label = label
	}
}
