package canvas

import (
	"image"
	"sync/atomic"

	"pxflut/internal/pixel"
)

// Grid is an in-memory canvas.  Every pixel is one atomic 0x00RRGGBB
// word: opaque writes are plain stores and blends are compare-and-swap
// loops, so no lock is held and no update within a blend is lost.
type Grid struct {
	width  int
	height int
	cells  []atomic.Uint32
}

// NewGrid creates a width x height canvas filled with bg.
func NewGrid(width, height int, bg pixel.Color) *Grid {
	g := &Grid{
		width:  width,
		height: height,
		cells:  make([]atomic.Uint32, width*height),
	}
	v := bg.Uint32()
	if v != 0 {
		for i := range g.cells {
			g.cells[i].Store(v)
		}
	}
	return g
}

// Size returns the grid dimensions.
func (g *Grid) Size() (int, int) { return g.width, g.height }

func (g *Grid) cell(x, y int) (*atomic.Uint32, error) {
	if x < 0 || y < 0 || x >= g.width || y >= g.height {
		return nil, ErrOutOfBounds
	}
	return &g.cells[y*g.width+x], nil
}

// Get returns the color at (x, y).
func (g *Grid) Get(x, y int) (pixel.Color, error) {
	c, err := g.cell(x, y)
	if err != nil {
		return pixel.Color{}, err
	}
	return pixel.FromUint32(c.Load()), nil
}

// Set stores col at (x, y), ignoring its alpha.
func (g *Grid) Set(x, y int, col pixel.Color) error {
	c, err := g.cell(x, y)
	if err != nil {
		return err
	}
	c.Store(col.Uint32())
	return nil
}

// Blend composites col onto (x, y) atomically.
func (g *Grid) Blend(x, y int, col pixel.Color) (pixel.Color, error) {
	c, err := g.cell(x, y)
	if err != nil {
		return pixel.Color{}, err
	}
	for {
		old := c.Load()
		out := pixel.Blend(pixel.FromUint32(old), col)
		if c.CompareAndSwap(old, out.Uint32()) {
			return out, nil
		}
	}
}

// Snapshot copies the grid into an opaque RGBA image.  Pixels are read
// one at a time; the image is not a global point-in-time view.
func (g *Grid) Snapshot() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.width, g.height))
	for i := range g.cells {
		v := g.cells[i].Load()
		o := i * 4
		img.Pix[o+0] = uint8(v >> 16)
		img.Pix[o+1] = uint8(v >> 8)
		img.Pix[o+2] = uint8(v)
		img.Pix[o+3] = pixel.Opaque
	}
	return img
}
