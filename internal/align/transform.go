package align

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/image/math/f64"

	"github.com/dudu/edgeid/internal/detector"
)

// CropSize is the side length of the canonical aligned face crop
const CropSize = 112

// Reference landmarks for a 112x112 aligned face (ArcFace convention)
var refLayout = [5]detector.Point{
	{X: 38.2946, Y: 51.6963}, // left eye
	{X: 73.5318, Y: 51.5014}, // right eye
	{X: 56.0252, Y: 71.7366}, // nose
	{X: 41.5493, Y: 92.3655}, // left mouth
	{X: 70.7299, Y: 92.2041}, // right mouth
}

// ReferenceLandmarks returns a copy of the canonical five-point layout
func ReferenceLandmarks() []detector.Point {
	out := make([]detector.Point, len(refLayout))
	copy(out, refLayout[:])
	return out
}

var (
	// ErrInvalidLandmarks reports a landmark set that does not have exactly
	// five points.
	ErrInvalidLandmarks = errors.New("alignment requires exactly 5 landmarks")
	// ErrDegenerateGeometry reports landmark sets with no usable geometry,
	// such as all points coinciding.
	ErrDegenerateGeometry = errors.New("degenerate landmark geometry")
)

// Transform is a 2D similarity map (uniform scale, rotation, translation):
// x' = A*x + B*y + TX, y' = C*x + D*y + TY. By construction A = D = s*cos
// and C = -B = s*sin, so no reflection or shear is possible.
type Transform struct {
	A, B, TX float64
	C, D, TY float64
}

// Apply maps a point through the transform
func (t Transform) Apply(p detector.Point) detector.Point {
	x := float64(p.X)
	y := float64(p.Y)
	return detector.Point{
		X: float32(t.A*x + t.B*y + t.TX),
		Y: float32(t.C*x + t.D*y + t.TY),
	}
}

func (t Transform) aff3() f64.Aff3 {
	return f64.Aff3{t.A, t.B, t.TX, t.C, t.D, t.TY}
}

// EstimateSimilarity computes the least-squares similarity transform mapping
// the source landmarks onto the reference layout. The source points must be
// in pixel space and in reference layout order.
func EstimateSimilarity(src []detector.Point) (Transform, error) {
	if len(src) != len(refLayout) {
		return Transform{}, fmt.Errorf("%w: got %d points", ErrInvalidLandmarks, len(src))
	}

	// Centroids of both point sets
	n := float64(len(src))
	var srcCx, srcCy, dstCx, dstCy float64
	for i, p := range src {
		srcCx += float64(p.X)
		srcCy += float64(p.Y)
		dstCx += float64(refLayout[i].X)
		dstCy += float64(refLayout[i].Y)
	}
	srcCx /= n
	srcCy /= n
	dstCx /= n
	dstCy /= n

	// Demeaned correlation sums: a is the dot-product term, b the
	// cross-product term, d the source spread.
	var a, b, d float64
	for i, p := range src {
		sx := float64(p.X) - srcCx
		sy := float64(p.Y) - srcCy
		dx := float64(refLayout[i].X) - dstCx
		dy := float64(refLayout[i].Y) - dstCy

		a += sx*dx + sy*dy
		b += sx*dy - sy*dx
		d += sx*sx + sy*sy
	}

	if d == 0 {
		return Transform{}, fmt.Errorf("%w: source points coincide", ErrDegenerateGeometry)
	}
	r := math.Hypot(a, b)
	if r == 0 {
		return Transform{}, fmt.Errorf("%w: no correlation with reference layout", ErrDegenerateGeometry)
	}

	scale := r / d
	cos := a / r
	sin := b / r

	t := Transform{
		A: scale * cos, B: -scale * sin,
		C: scale * sin, D: scale * cos,
	}
	t.TX = dstCx - (t.A*srcCx + t.B*srcCy)
	t.TY = dstCy - (t.C*srcCx + t.D*srcCy)
	return t, nil
}
