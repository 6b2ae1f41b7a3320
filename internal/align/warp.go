package align

import (
	"image"

	"golang.org/x/image/draw"
)

// Warper resamples source frames into the canonical crop. It owns a single
// fixed-size output surface that is reused across calls to keep the
// per-frame loop free of large allocations.
type Warper struct {
	dst *image.RGBA
}

// NewWarper creates a warper with a fresh 112x112 output surface
func NewWarper() *Warper {
	return &Warper{
		dst: image.NewRGBA(image.Rect(0, 0, CropSize, CropSize)),
	}
}

// Warp draws the source image into the canonical 112x112 frame through the
// forward similarity transform, with bilinear interpolation. Destination
// pixels that map outside the source bounds stay zero. The returned buffer
// belongs to the Warper and is only valid until the next Warp call.
func (w *Warper) Warp(src *image.RGBA, tf Transform) *image.RGBA {
	for i := range w.dst.Pix {
		w.dst.Pix[i] = 0
	}
	draw.BiLinear.Transform(w.dst, tf.aff3(), src, src.Bounds(), draw.Src, nil)
	return w.dst
}
