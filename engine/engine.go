// Package engine runs the host loop: a fixed-rate tick goroutine for logic and a render goroutine that
// records one command session per frame against the renderer.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/profiler"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/window"
)

// RenderCallback records one frame into cmd. Returning an error stops the engine; the session is then
// cancelled instead of submitted.
type RenderCallback func(cmd command.CommandSession, deltaTime float32) error

// engine implements the Engine interface.
// Coordinates engine, render, and window threads.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window   window.Window
	renderer renderer.Renderer

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback RenderCallback

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped

	// resize reported by the window, applied by the render goroutine before its next frame
	resizeMu      sync.Mutex
	pendingResize *[2]int

	errMu sync.Mutex
	err   error
}

// Engine is the main entry point for the engine.
// It orchestrates the engine loop, render loop, and window management.
type Engine interface {
	// Window returns the underlying window, or nil for a headless engine.
	Window() window.Window

	// Renderer returns the renderer frames are recorded with.
	Renderer() renderer.Renderer

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for game logic, physics, input processing, and animation updates.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function that records each frame.
	//
	// Parameters:
	//   - callback: function receiving the frame's command session and the delta time in seconds
	SetRenderCallback(callback RenderCallback)

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run starts the engine and blocks until the window closes or Quit is called.
	//
	// Returns:
	//   - error: the error that stopped the render loop, or nil
	Run() error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine instance with the provided options.
// Options are applied directly to the engine struct via the option-builder pattern.
//
// Parameters:
//   - options: functional options for engine configuration (renderer, window, profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: error if no renderer was given
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}
	if e.renderer == nil {
		return nil, errors.New("engine needs a renderer")
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler()
	}
	e.profiler.AddSources(e.renderer.PipelineCache(), e.renderer.BindGroupCache())

	if e.window != nil {
		e.window.SetResizeCallback(e.queueResize)
		e.queueResize(e.window.Size())
	}
	return e, nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Run() error {
	e.running.Store(true)
	e.handle()
	if e.window == nil {
		<-e.quitChannel
		e.wg.Wait()
		return e.Err()
	}

	// the window must be destroyed on the thread running its message loop
	e.window.SetUpdateCallback(func() {
		select {
		case <-e.quitChannel:
			e.wg.Wait()
			_ = e.window.Close()
		default:
		}
	})
	e.window.ProcessMessages()
	e.signalQuit()
	e.wg.Wait()
	// already closed when Quit ended the loop
	_ = e.window.Close()
	return e.Err()
}

// Err returns the error that stopped the render loop, if any.
func (e *engine) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running.Store(false)
		close(e.quitChannel)
	})
}

// stop records err as the reason the engine stopped and signals quit.
func (e *engine) stop(err error) {
	e.errMu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.errMu.Unlock()
	common.LogError("engine stopped: %v", err)
	e.signalQuit()
}

// queueResize stores the latest window size for the render goroutine.
func (e *engine) queueResize(width, height int) {
	e.resizeMu.Lock()
	defer e.resizeMu.Unlock()
	e.pendingResize = &[2]int{width, height}
}

// applyResize reconfigures the renderer with the pending size, if any.
func (e *engine) applyResize() error {
	e.resizeMu.Lock()
	size := e.pendingResize
	e.pendingResize = nil
	e.resizeMu.Unlock()

	if size == nil {
		return nil
	}
	if err := e.renderer.Resize(size[0], size[1]); err != nil && !errors.Is(err, device.ErrNoSurface) {
		return fmt.Errorf("failed to resize to %dx%d: %w", size[0], size[1], err)
	}
	return nil
}

// handle launches the engine and render goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Recovers from panics, which the caches raise for fatal device failures, and stops the engine with them.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				e.stop(fmt.Errorf("render goroutine panicked: %w", err))
				return
			}
			e.stop(fmt.Errorf("render goroutine panicked: %v", r))
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		if err := e.renderFrame(dt); err != nil {
			e.stop(err)
			return
		}

		if e.renderFrameLimit > 0 {
			elapsed := time.Since(lastRender)
			if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// renderFrame records and presents one frame. Frames are skipped while the swapchain is unavailable; a
// lost device or a failing render callback is returned.
//
// Parameters:
//   - dt: seconds since the previous frame
//
// Returns:
//   - error: the error that should stop the engine, or nil
func (e *engine) renderFrame(dt float32) error {
	if err := e.applyResize(); err != nil {
		return err
	}

	cmd, err := e.renderer.BeginCommands()
	switch {
	case errors.Is(err, device.ErrSurfaceConfigNeeded):
		// an outdated swapchain at a known size is reconfigured; a zero size waits for the next resize
		if size := e.renderer.SurfaceSize(); !size.IsZero() {
			e.queueResize(int(size.Width), int(size.Height))
		}
		common.LogDebug("skipping frame: %v", err)
		return nil
	case errors.Is(err, device.ErrSurfaceNotAvailable):
		common.LogDebug("skipping frame: %v", err)
		return nil
	case err != nil:
		return fmt.Errorf("failed to begin frame: %w", err)
	}
	defer cmd.Close()

	if e.renderCallback != nil {
		if err := e.renderCallback(cmd, dt); err != nil {
			cmd.Cancel()
			return fmt.Errorf("render callback failed: %w", err)
		}
	}
	if err := cmd.Finish(true); err != nil {
		return fmt.Errorf("failed to submit frame: %w", err)
	}
	e.renderer.EndFrame()

	if e.profilingEnabled.Load() {
		e.profiler.Tick()
	}
	return nil
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running.Load() {
		e.engineTickRate = newRate
		return
	}
	// Non-blocking send - if channel is full, replace the pending value
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function that records each frame.
func (e *engine) SetRenderCallback(callback RenderCallback) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
