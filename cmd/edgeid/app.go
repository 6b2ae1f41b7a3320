package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/dudu/edgeid/internal/broker"
	"github.com/dudu/edgeid/internal/detector"
	"github.com/dudu/edgeid/internal/engine"
	"github.com/dudu/edgeid/internal/gallery"
	"github.com/dudu/edgeid/internal/inference"
	"github.com/dudu/edgeid/internal/pipeline"
	"github.com/dudu/edgeid/internal/preprocess"
)

const (
	detectionSize = 640
	confThreshold = 0.5
	nmsThreshold  = 0.4
)

// app bundles the long-lived recognition components. The store is
// owned by the root command, everything else by the app.
type app struct {
	gallery  *gallery.Gallery
	engine   *engine.Engine
	broker   *broker.Broker
	detector *detector.SCRFD
	pipeline *pipeline.Pipeline
}

// newApp wires the runtime, the embedding model, and the gallery
// together. Commands that never touch frames pass withDetector=false
// and skip the detector model.
func newApp(ctx context.Context, withDetector bool) (*app, error) {
	prep, err := prepConfig()
	if err != nil {
		return nil, err
	}
	accel, err := inference.ParseAccelerator(acceleratorFlag)
	if err != nil {
		return nil, err
	}

	if err := inference.Initialize(ortLibPath); err != nil {
		return nil, fmt.Errorf("failed to initialize inference: %w", err)
	}

	faces, err := DB.LoadAll(ctx)
	if err != nil {
		inference.Shutdown()
		return nil, fmt.Errorf("failed to load gallery: %w", err)
	}
	log.Debugf("loaded %d enrolled faces", len(faces))

	a := &app{
		gallery: gallery.New(faces...),
		engine: engine.New(engine.Config{
			ModelPath:    modelPath,
			EmbeddingDim: embeddingDim,
			Accelerator:  accel,
		}),
	}
	a.broker = broker.New(a.engine)
	if err := a.broker.Start(); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.broker.LoadModel(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load embedding model: %w", err)
	}

	if withDetector {
		det, err := detector.NewSCRFD(detectorPath, detectionSize, confThreshold, nmsThreshold, accel)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create detector: %w", err)
		}
		a.detector = det
		a.pipeline = pipeline.New(det, a.broker, a.gallery, prep)
	}

	return a, nil
}

func prepConfig() (preprocess.Config, error) {
	order, err := preprocess.ParseChannelOrder(orderFlag)
	if err != nil {
		return preprocess.Config{}, err
	}
	mode, err := preprocess.ParseMode(preprocessFlag)
	if err != nil {
		return preprocess.Config{}, err
	}
	return preprocess.Config{Order: order, Mode: mode}, nil
}

// Close releases app resources
func (a *app) Close() error {
	var errs []error

	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := inference.Shutdown(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
