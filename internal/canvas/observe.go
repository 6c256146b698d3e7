package canvas

import (
	"image"

	"pxflut/internal/pixel"
)

// WriteFunc receives every pixel write applied through an observed
// canvas together with the color that ended up stored.
type WriteFunc func(x, y int, stored pixel.Color)

// Observed decorates a Canvas and reports successful writes.
type Observed struct {
	inner Canvas
	fn    WriteFunc
}

// Observe wraps c so that fn is called after each successful Set or
// Blend.  fn runs on the writer's goroutine and must not block.
func Observe(c Canvas, fn WriteFunc) *Observed {
	return &Observed{inner: c, fn: fn}
}

// Size delegates to the wrapped canvas.
func (o *Observed) Size() (int, int) { return o.inner.Size() }

// Get delegates to the wrapped canvas.
func (o *Observed) Get(x, y int) (pixel.Color, error) { return o.inner.Get(x, y) }

// Set stores c and reports the write.
func (o *Observed) Set(x, y int, c pixel.Color) error {
	if err := o.inner.Set(x, y, c); err != nil {
		return err
	}
	o.fn(x, y, pixel.RGB(c.R, c.G, c.B))
	return nil
}

// Blend blends c through the wrapped canvas and reports the result.
func (o *Observed) Blend(x, y int, c pixel.Color) (pixel.Color, error) {
	out, err := Apply(o.inner, x, y, c)
	if err != nil {
		return pixel.Color{}, err
	}
	o.fn(x, y, out)
	return out, nil
}

// Snapshot delegates to the wrapped canvas, or returns nil when it
// cannot produce one.
func (o *Observed) Snapshot() *image.RGBA {
	if s, ok := o.inner.(Snapshotter); ok {
		return s.Snapshot()
	}
	return nil
}
