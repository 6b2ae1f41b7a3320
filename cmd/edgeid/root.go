package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dudu/edgeid/internal/engine"
	"github.com/dudu/edgeid/internal/store"
)

// Options holds shared flag values for the subcommands.
type Options struct {
	CameraIndex int
	TargetFPS   int
	Width       int
	Height      int
	Preview     bool
	ImagePath   string
	Name        string
	Iterations  int
}

var (
	// DB is the face database shared by subcommands
	DB *store.Store

	dbPath          string
	modelPath       string
	detectorPath    string
	ortLibPath      string
	orderFlag       string
	preprocessFlag  string
	acceleratorFlag string
	embeddingDim    int
	verbose         bool
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "edgeid",
	Short:   "On-device face recognition for the webcam",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}

		var err error
		DB, err = store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open face database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			DB.Close()
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "faces.db", "Path to the SQLite face database")
	rootCmd.PersistentFlags().StringVarP(&modelPath, "model", "m", "models/edgeface_xxs.onnx", "Path to the embedding ONNX model")
	rootCmd.PersistentFlags().StringVar(&detectorPath, "detector", "models/scrfd_10g.onnx", "Path to the SCRFD face detector ONNX model")
	rootCmd.PersistentFlags().StringVar(&ortLibPath, "ort-lib", "", "Path to the ONNX Runtime shared library (default: lib/ next to the binary)")
	rootCmd.PersistentFlags().StringVar(&orderFlag, "order", "rgb", "Tensor channel order the embedding model expects: rgb or bgr")
	rootCmd.PersistentFlags().StringVar(&preprocessFlag, "preprocess", "simple", "Pixel preprocessing: simple or equalized")
	rootCmd.PersistentFlags().StringVar(&acceleratorFlag, "accelerator", "auto", "Execution provider: auto, cpu, or coreml")
	rootCmd.PersistentFlags().IntVar(&embeddingDim, "embedding-dim", engine.DefaultEmbeddingDim, "Embedding vector length of the model")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
