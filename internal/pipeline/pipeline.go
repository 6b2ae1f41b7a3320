// Package pipeline ties detection, alignment, embedding, and matching
// together.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/dudu/edgeid/internal/align"
	"github.com/dudu/edgeid/internal/detector"
	"github.com/dudu/edgeid/internal/gallery"
	"github.com/dudu/edgeid/internal/imageio"
	"github.com/dudu/edgeid/internal/preprocess"
)

// ErrNoFace is returned when a still image contains no detectable
// face.
var ErrNoFace = errors.New("pipeline: no face found")

// Timing holds per-stage durations for the last processed frame.
type Timing struct {
	Detection time.Duration
	Alignment time.Duration
	Embedding time.Duration
	Matching  time.Duration
	Total     time.Duration
}

// Result pairs a detected face with its gallery match.
type Result struct {
	Face  detector.Face
	Match gallery.Match
}

// Pipeline runs frames through the recognition stages. It reuses the
// alignment buffer across calls, so a Pipeline must not be shared
// between goroutines.
type Pipeline struct {
	detector   Detector
	recognizer Recognizer
	gallery    *gallery.Gallery
	warper     *align.Warper
	prep       preprocess.Config
	lastTiming Timing
}

// New assembles a pipeline from already constructed stages.
func New(det Detector, rec Recognizer, gal *gallery.Gallery, prep preprocess.Config) *Pipeline {
	return &Pipeline{
		detector:   det,
		recognizer: rec,
		gallery:    gal,
		warper:     align.NewWarper(),
		prep:       prep,
	}
}

// ProcessFrame detects and matches every face in a video frame. A
// face that fails alignment or embedding is skipped, faces found
// after it are still processed.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame *image.RGBA) ([]Result, error) {
	totalStart := time.Now()
	var timing Timing

	detectStart := time.Now()
	faces, err := p.detector.Detect(frame)
	timing.Detection = time.Since(detectStart)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	results := make([]Result, 0, len(faces))
	for _, face := range faces {
		embedding, _, err := p.embedFace(ctx, frame, face, &timing)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			continue // Skip this face
		}

		matchStart := time.Now()
		match := p.gallery.Match(embedding)
		timing.Matching += time.Since(matchStart)

		results = append(results, Result{Face: face, Match: match})
	}

	timing.Total = time.Since(totalStart)
	p.lastTiming = timing
	return results, nil
}

// embedFace aligns one face and runs it through the recognizer. The
// returned crop stays valid until the next alignment.
func (p *Pipeline) embedFace(ctx context.Context, frame *image.RGBA, face detector.Face, timing *Timing) ([]float32, *image.RGBA, error) {
	alignStart := time.Now()
	tf, err := align.EstimateSimilarity(face.Landmarks.Points())
	if err != nil {
		return nil, nil, err
	}
	crop := p.warper.Warp(frame, tf)
	tensor, err := preprocess.ToTensor(crop, p.prep)
	timing.Alignment += time.Since(alignStart)
	if err != nil {
		return nil, nil, err
	}

	embedStart := time.Now()
	embedding, err := p.recognizer.Recognize(ctx, tensor)
	timing.Embedding += time.Since(embedStart)
	if err != nil {
		return nil, nil, err
	}
	return embedding, crop, nil
}

// Enroll embeds the largest face in a still image and adds it to the
// gallery under the given name. Persisting the returned face is up to
// the caller.
func (p *Pipeline) Enroll(ctx context.Context, img *image.RGBA, name string) (gallery.KnownFace, error) {
	face, err := p.largestFace(img)
	if err != nil {
		return gallery.KnownFace{}, err
	}

	var timing Timing
	embedding, crop, err := p.embedFace(ctx, img, face, &timing)
	if err != nil {
		return gallery.KnownFace{}, fmt.Errorf("embedding failed: %w", err)
	}

	thumbnail, err := imageio.Thumbnail(crop)
	if err != nil {
		return gallery.KnownFace{}, err
	}

	known := gallery.KnownFace{
		ID:        uuid.New(),
		Name:      name,
		Embedding: embedding,
		Thumbnail: thumbnail,
		CreatedAt: time.Now().UTC(),
	}
	p.gallery.Add(known)
	return known, nil
}

// Identify matches every face in a still image against the gallery.
// Faces that fail alignment or embedding are skipped, as in
// ProcessFrame.
func (p *Pipeline) Identify(ctx context.Context, img *image.RGBA) ([]Result, error) {
	faces, err := p.detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	if len(faces) == 0 {
		return nil, ErrNoFace
	}

	var timing Timing
	results := make([]Result, 0, len(faces))
	for _, face := range faces {
		embedding, _, err := p.embedFace(ctx, img, face, &timing)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			continue
		}
		results = append(results, Result{Face: face, Match: p.gallery.Match(embedding)})
	}
	return results, nil
}

func (p *Pipeline) largestFace(img *image.RGBA) (detector.Face, error) {
	faces, err := p.detector.Detect(img)
	if err != nil {
		return detector.Face{}, fmt.Errorf("detection failed: %w", err)
	}
	if len(faces) == 0 {
		return detector.Face{}, ErrNoFace
	}

	best := faces[0]
	for _, f := range faces[1:] {
		if f.BoundingBox.Area() > best.BoundingBox.Area() {
			best = f
		}
	}
	return best, nil
}

// LastTiming returns timing from the last ProcessFrame call.
func (p *Pipeline) LastTiming() Timing {
	return p.lastTiming
}
