package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/edgeid/internal/align"
	"github.com/dudu/edgeid/internal/detector"
	"github.com/dudu/edgeid/internal/gallery"
	"github.com/dudu/edgeid/internal/preprocess"
)

type stubDetector struct {
	faces []detector.Face
	err   error
}

func (s *stubDetector) Detect(frame *image.RGBA) ([]detector.Face, error) {
	return s.faces, s.err
}

type stubRecognizer struct {
	embedding []float32
	queue     [][]float32 // returned call by call when set
	err       error
	tensors   [][]float32
}

func (s *stubRecognizer) Recognize(ctx context.Context, tensor []float32) ([]float32, error) {
	s.tensors = append(s.tensors, tensor)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		return next, nil
	}
	return s.embedding, nil
}

// refFace carries landmarks already in the reference layout, so
// alignment reduces to the identity.
func refFace(box detector.BoundingBox) detector.Face {
	ref := align.ReferenceLandmarks()
	return detector.Face{
		BoundingBox: box,
		Landmarks: detector.Landmarks{
			LeftEye:    ref[0],
			RightEye:   ref[1],
			Nose:       ref[2],
			LeftMouth:  ref[3],
			RightMouth: ref[4],
		},
		Score: 0.9,
	}
}

func degenerateFace() detector.Face {
	p := detector.Point{X: 50, Y: 50}
	return detector.Face{
		BoundingBox: detector.BoundingBox{X1: 40, Y1: 40, X2: 60, Y2: 60},
		Landmarks:   detector.Landmarks{LeftEye: p, RightEye: p, Nose: p, LeftMouth: p, RightMouth: p},
		Score:       0.8,
	}
}

func testFrame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 200, 200))
}

func TestProcessFrameMatchesFaces(t *testing.T) {
	det := &stubDetector{faces: []detector.Face{refFace(detector.BoundingBox{X1: 30, Y1: 40, X2: 80, Y2: 100})}}
	rec := &stubRecognizer{embedding: []float32{1, 0}}
	gal := gallery.New(gallery.KnownFace{ID: uuid.New(), Name: "ada", Embedding: []float32{1, 0}})

	p := New(det, rec, gal, preprocess.Config{})
	results, err := p.ProcessFrame(context.Background(), testFrame())
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "ada", results[0].Match.Name)
	assert.InDelta(t, 1.0, results[0].Match.Score, 1e-4)

	require.Len(t, rec.tensors, 1)
	assert.Len(t, rec.tensors[0], preprocess.TensorLen)
}

func TestProcessFrameDetectorError(t *testing.T) {
	det := &stubDetector{err: errors.New("camera fell over")}
	p := New(det, &stubRecognizer{}, gallery.New(), preprocess.Config{})

	_, err := p.ProcessFrame(context.Background(), testFrame())
	assert.ErrorContains(t, err, "detection failed")
}

func TestProcessFrameSkipsDegenerateFace(t *testing.T) {
	det := &stubDetector{faces: []detector.Face{
		degenerateFace(),
		refFace(detector.BoundingBox{X1: 30, Y1: 40, X2: 80, Y2: 100}),
	}}
	rec := &stubRecognizer{embedding: []float32{1, 0}}

	p := New(det, rec, gallery.New(), preprocess.Config{})
	results, err := p.ProcessFrame(context.Background(), testFrame())
	require.NoError(t, err)

	// The degenerate face is dropped, the good one still goes through
	require.Len(t, results, 1)
	assert.Equal(t, gallery.UnknownName, results[0].Match.Name)
	assert.Len(t, rec.tensors, 1)
}

func TestProcessFrameSkipsRecognizerError(t *testing.T) {
	det := &stubDetector{faces: []detector.Face{refFace(detector.BoundingBox{X1: 30, Y1: 40, X2: 80, Y2: 100})}}
	rec := &stubRecognizer{err: errors.New("model not ready")}

	p := New(det, rec, gallery.New(), preprocess.Config{})
	results, err := p.ProcessFrame(context.Background(), testFrame())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProcessFrameNoFaces(t *testing.T) {
	p := New(&stubDetector{}, &stubRecognizer{}, gallery.New(), preprocess.Config{})

	results, err := p.ProcessFrame(context.Background(), testFrame())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotZero(t, p.LastTiming().Total)
}

func TestEnroll(t *testing.T) {
	det := &stubDetector{faces: []detector.Face{refFace(detector.BoundingBox{X1: 30, Y1: 40, X2: 80, Y2: 100})}}
	rec := &stubRecognizer{embedding: []float32{0.5, 0.5}}
	gal := gallery.New()

	p := New(det, rec, gal, preprocess.Config{})
	known, err := p.Enroll(context.Background(), testFrame(), "ada")
	require.NoError(t, err)

	assert.Equal(t, "ada", known.Name)
	assert.NotEqual(t, uuid.Nil, known.ID)
	assert.Equal(t, []float32{0.5, 0.5}, known.Embedding)
	assert.False(t, known.CreatedAt.IsZero())

	// Thumbnail is a PNG
	require.NotEmpty(t, known.Thumbnail)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, known.Thumbnail[:4])

	assert.Equal(t, 1, gal.Len())
}

func TestEnrollNoFace(t *testing.T) {
	p := New(&stubDetector{}, &stubRecognizer{}, gallery.New(), preprocess.Config{})

	_, err := p.Enroll(context.Background(), testFrame(), "ada")
	assert.ErrorIs(t, err, ErrNoFace)
}

func TestEnrollPicksLargestFace(t *testing.T) {
	// The small face here cannot be aligned, so enrollment only
	// succeeds when the larger one is the one chosen.
	small := degenerateFace()
	large := refFace(detector.BoundingBox{X1: 30, Y1: 40, X2: 130, Y2: 160})
	det := &stubDetector{faces: []detector.Face{small, large}}
	rec := &stubRecognizer{embedding: []float32{1, 0}}

	p := New(det, rec, gallery.New(), preprocess.Config{})
	known, err := p.Enroll(context.Background(), testFrame(), "ada")
	require.NoError(t, err)

	assert.Equal(t, "ada", known.Name)
	assert.Len(t, rec.tensors, 1)
}

func TestIdentifyMatchesEveryFace(t *testing.T) {
	first := refFace(detector.BoundingBox{X1: 0, Y1: 0, X2: 20, Y2: 20})
	second := refFace(detector.BoundingBox{X1: 30, Y1: 40, X2: 130, Y2: 160})
	det := &stubDetector{faces: []detector.Face{first, second}}
	rec := &stubRecognizer{queue: [][]float32{{1, 0}, {0, 1}}}
	gal := gallery.New(
		gallery.KnownFace{ID: uuid.New(), Name: "ada", Embedding: []float32{1, 0}},
		gallery.KnownFace{ID: uuid.New(), Name: "grace", Embedding: []float32{0, 1}},
	)

	p := New(det, rec, gal, preprocess.Config{})
	results, err := p.Identify(context.Background(), testFrame())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, first.BoundingBox, results[0].Face.BoundingBox)
	assert.Equal(t, "ada", results[0].Match.Name)
	assert.Equal(t, second.BoundingBox, results[1].Face.BoundingBox)
	assert.Equal(t, "grace", results[1].Match.Name)
}

func TestIdentifySkipsUnalignableFace(t *testing.T) {
	det := &stubDetector{faces: []detector.Face{
		degenerateFace(),
		refFace(detector.BoundingBox{X1: 30, Y1: 40, X2: 80, Y2: 100}),
	}}
	rec := &stubRecognizer{embedding: []float32{1, 0}}
	gal := gallery.New(gallery.KnownFace{ID: uuid.New(), Name: "ada", Embedding: []float32{1, 0}})

	p := New(det, rec, gal, preprocess.Config{})
	results, err := p.Identify(context.Background(), testFrame())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ada", results[0].Match.Name)
}

func TestIdentifyNoFace(t *testing.T) {
	p := New(&stubDetector{}, &stubRecognizer{}, gallery.New(), preprocess.Config{})

	_, err := p.Identify(context.Background(), testFrame())
	assert.ErrorIs(t, err, ErrNoFace)
}

func TestEnrollThenIdentify(t *testing.T) {
	det := &stubDetector{faces: []detector.Face{refFace(detector.BoundingBox{X1: 30, Y1: 40, X2: 80, Y2: 100})}}
	rec := &stubRecognizer{embedding: []float32{0.3, 0.9, -0.2}}
	gal := gallery.New()

	p := New(det, rec, gal, preprocess.Config{})
	known, err := p.Enroll(context.Background(), testFrame(), "ada")
	require.NoError(t, err)

	results, err := p.Identify(context.Background(), testFrame())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, known.ID, results[0].Match.ID)
	assert.Equal(t, "ada", results[0].Match.Name)
	assert.InDelta(t, 1.0, results[0].Match.Score, 1e-4)
}
