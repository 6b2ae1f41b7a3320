// Package preprocess converts aligned face crops into the planar float
// tensors the embedding model consumes.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/dudu/edgeid/internal/align"
)

// TensorLen is the number of float32 values in an encoded crop, laid
// out as [1,3,112,112] in channel-major (planar) order.
const TensorLen = 3 * align.CropSize * align.CropSize

// ErrBadCrop is returned when the input image is not an aligned crop.
var ErrBadCrop = errors.New("preprocess: crop must be 112x112")

// ChannelOrder selects which color plane comes first in the tensor.
// Which one a model wants depends on the framework it was exported
// from, so it is configurable per model.
type ChannelOrder int

const (
	OrderRGB ChannelOrder = iota
	OrderBGR
)

func (o ChannelOrder) String() string {
	if o == OrderBGR {
		return "bgr"
	}
	return "rgb"
}

// ParseChannelOrder maps a flag value to a ChannelOrder.
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch strings.ToLower(s) {
	case "rgb":
		return OrderRGB, nil
	case "bgr":
		return OrderBGR, nil
	default:
		return OrderRGB, fmt.Errorf("unknown channel order %q (want rgb or bgr)", s)
	}
}

// Mode selects the pixel pipeline applied before normalization.
type Mode int

const (
	// ModeSimple feeds crop pixels straight into normalization.
	ModeSimple Mode = iota
	// ModeEqualized stretches global contrast via luma histogram
	// equalization first. Helps with under- and over-exposed frames.
	ModeEqualized
)

func (m Mode) String() string {
	if m == ModeEqualized {
		return "equalized"
	}
	return "simple"
}

// ParseMode maps a flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "simple":
		return ModeSimple, nil
	case "equalized":
		return ModeEqualized, nil
	default:
		return ModeSimple, fmt.Errorf("unknown preprocess mode %q (want simple or equalized)", s)
	}
}

// Config bundles the per-model tensor settings.
type Config struct {
	Order ChannelOrder
	Mode  Mode
}

// ToTensor encodes an aligned 112x112 crop as a planar float tensor.
// Each channel value v becomes (v - 127.5) / 128.
func ToTensor(crop *image.RGBA, cfg Config) ([]float32, error) {
	b := crop.Bounds()
	if b.Dx() != align.CropSize || b.Dy() != align.CropSize {
		return nil, fmt.Errorf("%w, got %dx%d", ErrBadCrop, b.Dx(), b.Dy())
	}

	if cfg.Mode == ModeEqualized {
		crop = equalizeLuma(crop)
	}

	const plane = align.CropSize * align.CropSize
	out := make([]float32, TensorLen)
	for y := 0; y < align.CropSize; y++ {
		for x := 0; x < align.CropSize; x++ {
			i := crop.PixOffset(b.Min.X+x, b.Min.Y+y)
			c0 := normalize(crop.Pix[i])
			c1 := normalize(crop.Pix[i+1])
			c2 := normalize(crop.Pix[i+2])
			if cfg.Order == OrderBGR {
				c0, c2 = c2, c0
			}
			pos := y*align.CropSize + x
			out[pos] = c0
			out[plane+pos] = c1
			out[2*plane+pos] = c2
		}
	}
	return out, nil
}

func normalize(v uint8) float32 {
	return (float32(v) - 127.5) / 128.0
}
