// modelcheck verifies that an ONNX model is usable for embedding
// inference before wiring it into the recognizer.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tsawler/go-metal/checkpoints"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/edgeid/internal/engine"
	"github.com/dudu/edgeid/internal/inference"
	"github.com/dudu/edgeid/internal/preprocess"
)

func main() {
	var (
		ortLib     = flag.String("ort-lib", "", "Path to the ONNX Runtime shared library")
		inputName  = flag.String("input", "input", "Model input name")
		outputName = flag.String("output", "embedding", "Model output name")
		dim        = flag.Int("embedding-dim", engine.DefaultEmbeddingDim, "Expected embedding length")
		forward    = flag.Bool("forward", false, "Run a zero-tensor forward pass through the model")
		graph      = flag.Bool("graph", false, "Parse the model graph with go-metal and list its layers")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: modelcheck [options] <model.onnx>\n\n")
		fmt.Fprintf(os.Stderr, "Checks whether an ONNX model is usable as an embedding model.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	modelPath := flag.Arg(0)

	if _, err := os.Stat(modelPath); err != nil {
		fmt.Fprintf(os.Stderr, "cannot read model: %v\n", err)
		os.Exit(1)
	}

	if *graph {
		if err := checkGraph(modelPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	if err := checkRuntime(modelPath, *ortLib, *inputName, *outputName, *dim, *forward); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// checkGraph imports the model with go-metal, which rejects graphs
// using operations outside its supported set. Useful for spotting
// exotic exports early.
func checkGraph(modelPath string) error {
	importer := checkpoints.NewONNXImporter()
	checkpoint, err := importer.ImportFromONNX(modelPath)
	if err != nil {
		return fmt.Errorf("graph import failed: %w", err)
	}

	fmt.Printf("graph: %d layers, %d weight tensors\n",
		len(checkpoint.ModelSpec.Layers), len(checkpoint.Weights))
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Printf("  %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
	return nil
}

func checkRuntime(modelPath, ortLib, inputName, outputName string, dim int, forward bool) error {
	if err := inference.Initialize(ortLib); err != nil {
		return err
	}
	defer inference.Shutdown()

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return fmt.Errorf("failed to read model info: %w", err)
	}

	fmt.Printf("model: %s\n", modelPath)
	fmt.Printf("inputs (%d):\n", len(inputs))
	for _, info := range inputs {
		fmt.Printf("  %s: shape=%v type=%v\n", info.Name, info.Dimensions, info.DataType)
	}
	fmt.Printf("outputs (%d):\n", len(outputs))
	for _, info := range outputs {
		fmt.Printf("  %s: shape=%v type=%v\n", info.Name, info.Dimensions, info.DataType)
	}

	if !forward {
		return nil
	}

	eng := engine.New(engine.Config{
		ModelPath:    modelPath,
		InputName:    inputName,
		OutputName:   outputName,
		EmbeddingDim: dim,
	})
	if err := eng.Load(); err != nil {
		return err
	}
	defer eng.Close()

	embedding, err := eng.Infer(make([]float32, preprocess.TensorLen))
	if err != nil {
		return fmt.Errorf("forward pass failed: %w", err)
	}
	fmt.Printf("forward pass ok: %d-dim embedding\n", len(embedding))
	return nil
}
