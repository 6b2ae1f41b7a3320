// Package inference wraps the shared ONNX Runtime environment and the
// sessions created from it.
package inference

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	initialized bool
	initMu      sync.Mutex
)

// Accelerator selects the execution provider for a session.
type Accelerator int

const (
	// AccelAuto tries CoreML and falls back to CPU when unavailable.
	AccelAuto Accelerator = iota
	// AccelCPU never appends an execution provider.
	AccelCPU
	// AccelCoreML requires CoreML and fails when it cannot be enabled.
	AccelCoreML
)

func (a Accelerator) String() string {
	switch a {
	case AccelCPU:
		return "cpu"
	case AccelCoreML:
		return "coreml"
	default:
		return "auto"
	}
}

// ParseAccelerator maps a flag value to an Accelerator. The empty
// string means auto.
func ParseAccelerator(s string) (Accelerator, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return AccelAuto, nil
	case "cpu":
		return AccelCPU, nil
	case "coreml":
		return AccelCoreML, nil
	default:
		return AccelAuto, fmt.Errorf("unknown accelerator %q (want auto, cpu, or coreml)", s)
	}
}

func defaultLibraryPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "lib/libonnxruntime.dylib"
	case "windows":
		return "lib/onnxruntime.dll"
	default:
		return "lib/libonnxruntime.so"
	}
}

// Initialize sets up the ONNX Runtime environment (call once at
// startup). An empty libraryPath picks a platform default next to the
// binary.
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libraryPath == "" {
		libraryPath = defaultLibraryPath()
	}
	ort.SetSharedLibraryPath(libraryPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up the ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession creates an inference session from an ONNX model file.
func NewSession(modelPath string, inputNames, outputNames []string, accel Accelerator) (*Session, error) {
	if !initialized {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if accel != AccelCPU {
		// Flag 0 = default settings, use Neural Engine + GPU
		err = options.AppendExecutionProviderCoreML(0)
		switch {
		case err != nil && accel == AccelCoreML:
			return nil, fmt.Errorf("coreml requested but unavailable for %s: %w", modelPath, err)
		case err != nil:
			log.WithError(err).Debugf("coreml unavailable for %s, using cpu", modelPath)
		default:
			log.Debugf("coreml enabled for %s", modelPath)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run executes inference with the given inputs
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// CreateTensor creates a tensor with the given shape and data
func CreateTensor[T ort.TensorData](shape []int64, data []T) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// CreateEmptyTensor creates an uninitialized tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	data := make([]T, size)
	return ort.NewTensor(ort.NewShape(shape...), data)
}
