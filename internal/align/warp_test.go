package align

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestWarpIdentity(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, CropSize, CropSize))
	for y := 0; y < CropSize; y++ {
		for x := 0; x < CropSize; x++ {
			src.SetRGBA(x, y, color.RGBA{R: uint8(x * 2), G: uint8(y * 2), B: uint8((x + y) % 256), A: 255})
		}
	}

	w := NewWarper()
	dst := w.Warp(src, Transform{A: 1, D: 1})

	require.Equal(t, image.Rect(0, 0, CropSize, CropSize), dst.Bounds())
	for y := 0; y < CropSize; y += 7 {
		for x := 0; x < CropSize; x += 7 {
			want := src.RGBAAt(x, y)
			got := dst.RGBAAt(x, y)
			assert.InDelta(t, want.R, got.R, 1, "R at (%d,%d)", x, y)
			assert.InDelta(t, want.G, got.G, 1, "G at (%d,%d)", x, y)
			assert.InDelta(t, want.B, got.B, 1, "B at (%d,%d)", x, y)
		}
	}
}

func TestWarpTranslation(t *testing.T) {
	src := solidRGBA(CropSize, CropSize, color.RGBA{A: 255})
	// 2x2 white marker at (10,10)
	for y := 10; y < 12; y++ {
		for x := 10; x < 12; x++ {
			src.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	w := NewWarper()
	dst := w.Warp(src, Transform{A: 1, D: 1, TX: 5, TY: 7})

	assert.InDelta(t, 255, dst.RGBAAt(15, 17).R, 1)
	assert.InDelta(t, 0, dst.RGBAAt(10, 10).R, 1)
}

func TestWarpOutsideSourceIsZero(t *testing.T) {
	src := solidRGBA(10, 10, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	w := NewWarper()
	dst := w.Warp(src, Transform{A: 1, D: 1})

	// Inside the mapped region the white survives
	assert.InDelta(t, 255, dst.RGBAAt(5, 5).R, 1)

	// Beyond it every channel, alpha included, stays zero
	px := dst.RGBAAt(60, 60)
	assert.Equal(t, uint8(0), px.R)
	assert.Equal(t, uint8(0), px.G)
	assert.Equal(t, uint8(0), px.B)
	assert.Equal(t, uint8(0), px.A)
}

func TestWarpReusesBuffer(t *testing.T) {
	white := solidRGBA(CropSize, CropSize, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	w := NewWarper()
	first := w.Warp(white, Transform{A: 1, D: 1})
	require.Equal(t, uint8(255), first.RGBAAt(50, 50).R)

	// A transform that maps the source entirely outside the crop window
	// must leave no stale pixels from the previous call.
	second := w.Warp(white, Transform{A: 1, D: 1, TX: 500, TY: 500})
	assert.Same(t, first, second)
	for y := 0; y < CropSize; y += 13 {
		for x := 0; x < CropSize; x += 13 {
			px := second.RGBAAt(x, y)
			assert.Equal(t, uint8(0), px.R, "at (%d,%d)", x, y)
			assert.Equal(t, uint8(0), px.A, "at (%d,%d)", x, y)
		}
	}
}
