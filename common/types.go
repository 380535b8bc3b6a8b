// Package common contains plain types and helpers shared across the engine packages: extents,
// rectangles, colors, logging and the fatal error category.
package common

import "fmt"

// Extent is a two-dimensional size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero.
func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// String returns the extent formatted as WxH.
func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Viewport describes the rasterization rectangle and depth range of a render pass.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Empty reports whether the viewport covers no area. Draws recorded against an empty viewport are skipped.
func (v Viewport) Empty() bool {
	return v.Width <= 0 || v.Height <= 0
}

// FullViewport returns a viewport covering the whole extent with depth range [0, 1].
//
// Parameters:
//   - e: the attachment extent
//
// Returns:
//   - Viewport: the covering viewport
func FullViewport(e Extent) Viewport {
	return Viewport{Width: float32(e.Width), Height: float32(e.Height), MaxDepth: 1}
}

// Rect is an integer rectangle, used for scissor tests.
type Rect struct {
	X, Y          uint32
	Width, Height uint32
}

// Empty reports whether the rectangle covers no area.
func (r Rect) Empty() bool {
	return r.Width == 0 || r.Height == 0
}

// FullRect returns a rectangle covering the whole extent.
func FullRect(e Extent) Rect {
	return Rect{Width: e.Width, Height: e.Height}
}

// Color is a linear RGBA color used for clear values.
type Color struct {
	R, G, B, A float64
}
