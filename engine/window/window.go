// Package window opens the native window the renderer presents to and reports its framebuffer size.
package window

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// Window provides platform windowing and input event handling.
// Wraps platform-specific window implementations with a common interface.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer size changes. A minimized window
	// reports 0x0; the renderer skips frames until the next non-zero size.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetKeyCallback sets the callback for key events.
	//
	// Parameters:
	//   - callback: function receiving the key code and whether it was pressed (true) or released
	SetKeyCallback(callback func(keyCode uint32, pressed bool))

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is platform-appropriate (Windows HWND, X11 Xlib, Wayland, macOS Metal, etc.)
	// and is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true if the window is still active.
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if close operation fails
	Close() error

	// ProcessMessages runs the window message loop.
	// Blocks until the window is closed. Calls the update callback each iteration.
	ProcessMessages()

	// Size returns the current framebuffer size in pixels, 0x0 while minimized.
	Size() (width, height int)

	// SetTitle changes the title bar text.
	SetTitle(title string)
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	mu *sync.Mutex

	title     string
	resizable bool
	minWidth  int
	minHeight int
	maxWidth  int
	maxHeight int

	// framebuffer size, written by the event loop and read by the render goroutine
	width  int
	height int

	// internalWindow holds the platform-specific window data (glfwWindow).
	internalWindow any

	onUpdate func()
	onResize func(width, height int)
	onKey    func(keyCode uint32, pressed bool)
}

var _ Window = &engineWindow{}

// NewWindow creates a new Window with the specified options.
// Applies default values first, then each option in order.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the opened window
//   - error: error if the platform window cannot be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		mu:        &sync.Mutex{},
		title:     "oxy",
		resizable: true,
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	if w.width <= 0 || w.height <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %dx%d", w.width, w.height)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("failed to create platform window: %w", err)
	}
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetKeyCallback(callback func(keyCode uint32, pressed bool)) {
	w.onKey = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if ok := platformProcessMessages(w); !ok {
			break
		}
		if w.onUpdate != nil {
			w.onUpdate()
		}
		runtime.Gosched()
	}
}

func (w *engineWindow) Size() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

func (w *engineWindow) SetTitle(title string) {
	w.title = title
	platformSetTitle(w, title)
}

// resized records a framebuffer size and notifies the resize callback when it changed.
func (w *engineWindow) resized(width, height int) {
	w.mu.Lock()
	changed := w.width != width || w.height != height
	w.width, w.height = width, height
	w.mu.Unlock()

	if changed && w.onResize != nil {
		w.onResize(width, height)
	}
}

// key forwards a key event to the key callback.
func (w *engineWindow) key(code uint32, pressed bool) {
	if w.onKey != nil {
		w.onKey(code, pressed)
	}
}
