package telemetry

import (
	"image"
	"image/png"
	"net/http"
	"strconv"

	"golang.org/x/image/draw"

	"pxflut/internal/canvas"
)

// MaxScale bounds the /canvas.png?scale= factor.
const MaxScale = 16

// maxRenderPixels caps the size of a scaled rendering.
const maxRenderPixels = 64 << 20

func (s *Server) handleCanvas(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Canvas.(canvas.Snapshotter)
	if !ok {
		http.Error(w, "canvas cannot be rendered", http.StatusNotImplemented)
		return
	}

	scale := 1
	if v := r.URL.Query().Get("scale"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxScale {
			http.Error(w, "scale must be an integer in 1-16", http.StatusBadRequest)
			return
		}
		scale = n
	}

	img := snap.Snapshot()
	if img == nil {
		http.Error(w, "canvas cannot be rendered", http.StatusNotImplemented)
		return
	}
	out := Scale(img, scale)
	if out == nil {
		http.Error(w, "rendering too large", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, out); err != nil {
		s.Logger.Debug("canvas.png: %v", err)
	}
}

// Scale enlarges img by an integer factor with nearest-neighbour
// sampling, so every canvas pixel becomes a sharp factor×factor block.
// It returns nil when the result would exceed the render limit.
func Scale(img *image.RGBA, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx()*factor, b.Dy()*factor
	if w*h > maxRenderPixels {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
