package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundingBoxGeometry(t *testing.T) {
	box := BoundingBox{X1: 10, Y1: 20, X2: 110, Y2: 70}

	assert.InDelta(t, 100, box.Width(), 1e-6)
	assert.InDelta(t, 50, box.Height(), 1e-6)
	assert.InDelta(t, 5000, box.Area(), 1e-6)

	center := box.Center()
	assert.InDelta(t, 60, center.X, 1e-6)
	assert.InDelta(t, 45, center.Y, 1e-6)
}

func TestLandmarksPointsOrder(t *testing.T) {
	lm := Landmarks{
		LeftEye:    Point{X: 1, Y: 2},
		RightEye:   Point{X: 3, Y: 4},
		Nose:       Point{X: 5, Y: 6},
		LeftMouth:  Point{X: 7, Y: 8},
		RightMouth: Point{X: 9, Y: 10},
	}

	pts := lm.Points()
	assert.Len(t, pts, 5)
	assert.Equal(t, lm.LeftEye, pts[0])
	assert.Equal(t, lm.RightEye, pts[1])
	assert.Equal(t, lm.Nose, pts[2])
	assert.Equal(t, lm.LeftMouth, pts[3])
	assert.Equal(t, lm.RightMouth, pts[4])
}
