package preprocess

import (
	"image"
	"math"
)

// equalizeLuma performs global histogram equalization on the luma
// channel and rescales each pixel's RGB proportionally, preserving hue
// while stretching contrast. Flat images come back unchanged.
func equalizeLuma(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	total := b.Dx() * b.Dy()

	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := src.PixOffset(x, y)
			hist[luma(src.Pix[i], src.Pix[i+1], src.Pix[i+2])]++
		}
	}

	var cdf [256]int
	sum := 0
	cdfMin := 0
	for i, h := range hist {
		sum += h
		cdf[i] = sum
		if cdfMin == 0 && h > 0 {
			cdfMin = cdf[i]
		}
	}

	out := image.NewRGBA(b)
	copy(out.Pix, src.Pix)
	if total == cdfMin {
		// Single-luma image, equalization is undefined
		return out
	}

	var lut [256]uint8
	for i := range lut {
		v := math.Round(float64(cdf[i]-cdfMin) / float64(total-cdfMin) * 255)
		lut[i] = uint8(math.Min(255, math.Max(0, v)))
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := out.PixOffset(x, y)
			old := luma(out.Pix[i], out.Pix[i+1], out.Pix[i+2])
			ratio := 1.0
			if old > 0 {
				ratio = float64(lut[old]) / float64(old)
			}
			out.Pix[i] = scaleClamp(out.Pix[i], ratio)
			out.Pix[i+1] = scaleClamp(out.Pix[i+1], ratio)
			out.Pix[i+2] = scaleClamp(out.Pix[i+2], ratio)
		}
	}
	return out
}

// luma is the BT.601 weighted sum, the same weighting JPEG uses.
func luma(r, g, b uint8) uint8 {
	return uint8(math.Round(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)))
}

func scaleClamp(v uint8, ratio float64) uint8 {
	s := math.Round(float64(v) * ratio)
	if s > 255 {
		return 255
	}
	if s < 0 {
		return 0
	}
	return uint8(s)
}
