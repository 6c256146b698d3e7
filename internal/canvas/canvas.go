// Package canvas defines the pixel storage capability the protocol
// engine draws on, plus an in-memory implementation.
//
// Implementations must be safe for concurrent use and must never expose
// a partially written pixel.  Coordinates are only valid when
// 0 <= x < width and 0 <= y < height; callers check bounds with Size
// before calling Get, Set or Blend.
package canvas

import (
	"errors"
	"image"

	"pxflut/internal/pixel"
)

// ErrOutOfBounds is returned by backends asked for a coordinate outside
// their dimensions.
var ErrOutOfBounds = errors.New("coordinate out of bounds")

// Canvas is the storage capability consumed by the protocol sessions.
type Canvas interface {
	// Size returns the immutable dimensions of the canvas.
	Size() (width, height int)
	// Get returns the stored, always opaque, color at (x, y).
	Get(x, y int) (pixel.Color, error)
	// Set stores an opaque color at (x, y).
	Set(x, y int, c pixel.Color) error
}

// Blender is implemented by canvases that can alpha-blend a color into
// a pixel as one atomic read-modify-write.  It returns the stored
// result.
type Blender interface {
	Blend(x, y int, c pixel.Color) (pixel.Color, error)
}

// Snapshotter is implemented by canvases that can copy their contents
// into an image.
type Snapshotter interface {
	Snapshot() *image.RGBA
}

// InBounds reports whether (x, y) lies on c.
func InBounds(c Canvas, x, y int) bool {
	w, h := c.Size()
	return x >= 0 && y >= 0 && x < w && y < h
}

// Apply writes col at (x, y), blending when col carries alpha, and
// returns the resulting stored color.  Canvases without a Blender fall
// back to Get followed by Set, which is not atomic against concurrent
// writers of the same pixel.
func Apply(c Canvas, x, y int, col pixel.Color) (pixel.Color, error) {
	if col.IsOpaque() {
		return col, c.Set(x, y, col)
	}
	if b, ok := c.(Blender); ok {
		return b.Blend(x, y, col)
	}
	cur, err := c.Get(x, y)
	if err != nil {
		return pixel.Color{}, err
	}
	out := pixel.Blend(cur, col)
	return out, c.Set(x, y, out)
}
