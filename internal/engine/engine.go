// Package engine owns the embedding model session and its load state.
package engine

import (
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/edgeid/internal/align"
	"github.com/dudu/edgeid/internal/inference"
	"github.com/dudu/edgeid/internal/preprocess"
)

// ErrNotReady is returned by Infer when no model is loaded.
var ErrNotReady = errors.New("engine: model not ready")

// DefaultEmbeddingDim matches the EdgeFace and ArcFace exports.
const DefaultEmbeddingDim = 512

// State tracks the model lifecycle. Transitions are
// unloaded -> loading -> ready, with ready -> loading on reload.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unloaded"
	}
}

// Config describes the embedding model to serve.
type Config struct {
	ModelPath    string
	InputName    string
	OutputName   string
	EmbeddingDim int
	Accelerator  inference.Accelerator
}

// Engine runs the embedding model. All methods are safe for
// concurrent use.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	state   State
	session *inference.Session
}

// New creates an Engine in the unloaded state. Zero config fields get
// the EdgeFace export defaults.
func New(cfg Config) *Engine {
	if cfg.InputName == "" {
		cfg.InputName = "input"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "embedding"
	}
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = DefaultEmbeddingDim
	}
	return &Engine{cfg: cfg}
}

// State reports the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Load creates the model session. Calling it again replaces the
// current session; a Load that arrives while another is in flight is
// a no-op.
func (e *Engine) Load() error {
	e.mu.Lock()
	if e.state == StateLoading {
		e.mu.Unlock()
		return nil
	}
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			log.WithError(err).Warn("destroying previous session")
		}
		e.session = nil
	}
	e.state = StateLoading
	cfg := e.cfg
	e.mu.Unlock()

	// Session construction reads the model file, keep the lock released
	sess, err := inference.NewSession(cfg.ModelPath, []string{cfg.InputName}, []string{cfg.OutputName}, cfg.Accelerator)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = StateUnloaded
		return fmt.Errorf("load %s: %w", cfg.ModelPath, err)
	}
	e.session = sess
	e.state = StateReady
	log.WithField("model", cfg.ModelPath).Debug("embedding model ready")
	return nil
}

// Infer runs the model on one encoded crop and returns a copy of the
// flattened embedding.
func (e *Engine) Infer(data []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateReady {
		return nil, fmt.Errorf("%w (state %s)", ErrNotReady, e.state)
	}
	if len(data) != preprocess.TensorLen {
		return nil, fmt.Errorf("engine: tensor has %d values, want %d", len(data), preprocess.TensorLen)
	}

	input, err := inference.CreateTensor([]int64{1, 3, align.CropSize, align.CropSize}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := inference.CreateEmptyTensor[float32]([]int64{1, int64(e.cfg.EmbeddingDim)})
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := e.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	embedding := make([]float32, e.cfg.EmbeddingDim)
	copy(embedding, output.GetData())
	return embedding, nil
}

// Close destroys the session, if any.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = StateUnloaded
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
