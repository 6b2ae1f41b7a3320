package detector

import "fmt"

// MeshSize is the number of points in the dense face-mesh keypoint scheme
// (MediaPipe FaceMesh layout).
const MeshSize = 468

// Keypoint indices into the mesh scheme. Left/right are viewer-relative,
// matching the Landmarks field order.
const (
	meshLeftEyeOuter  = 33
	meshLeftEyeInner  = 133
	meshRightEyeInner = 362
	meshRightEyeOuter = 263
	meshNoseTip       = 1
	meshMouthLeft     = 61
	meshMouthRight    = 291
)

// Mesh is a dense set of face landmarks in normalized (0..1) coordinates,
// indexed by the fixed keypoint scheme above.
type Mesh []Point

// FivePoint derives the ordered five-point landmark set in pixel space for a
// frame of the given dimensions. Eye centers are the midpoints of the inner
// and outer eye corners; nose tip and mouth corners are taken directly.
func (m Mesh) FivePoint(width, height int) (Landmarks, error) {
	if len(m) < MeshSize {
		return Landmarks{}, fmt.Errorf("face mesh has %d points, need %d", len(m), MeshSize)
	}

	w := float32(width)
	h := float32(height)
	scale := func(p Point) Point {
		return Point{X: p.X * w, Y: p.Y * h}
	}

	return Landmarks{
		LeftEye:    scale(midpoint(m[meshLeftEyeOuter], m[meshLeftEyeInner])),
		RightEye:   scale(midpoint(m[meshRightEyeInner], m[meshRightEyeOuter])),
		Nose:       scale(m[meshNoseTip]),
		LeftMouth:  scale(m[meshMouthLeft]),
		RightMouth: scale(m[meshMouthRight]),
	}, nil
}

// BoundingBox computes the tight pixel-space box around all mesh points
func (m Mesh) BoundingBox(width, height int) BoundingBox {
	if len(m) == 0 {
		return BoundingBox{}
	}
	minX, minY := m[0].X, m[0].Y
	maxX, maxY := m[0].X, m[0].Y
	for _, p := range m[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	w := float32(width)
	h := float32(height)
	return BoundingBox{X1: minX * w, Y1: minY * h, X2: maxX * w, Y2: maxY * h}
}

func midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}
