package pipeline

import (
	"context"
	"image"

	"github.com/dudu/edgeid/internal/detector"
)

// Detector finds faces in a frame.
type Detector interface {
	Detect(frame *image.RGBA) ([]detector.Face, error)
}

// Recognizer turns an encoded face crop into an embedding. Satisfied
// by broker.Broker.
type Recognizer interface {
	Recognize(ctx context.Context, tensor []float32) ([]float32, error)
}
