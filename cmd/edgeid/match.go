package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dudu/edgeid/internal/gallery"
	"github.com/dudu/edgeid/internal/imageio"
	"github.com/dudu/edgeid/internal/pipeline"
)

var matchOpts Options

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match a photo against the enrolled faces",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMatch(cmd.Context(), matchOpts)
	},
}

func init() {
	matchCmd.Flags().StringVarP(&matchOpts.ImagePath, "image", "i", "", "Path to the photo to identify")
	matchCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(matchCmd)
}

func runMatch(ctx context.Context, opts Options) error {
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	img, err := imageio.Load(opts.ImagePath)
	if err != nil {
		return err
	}

	results, err := a.pipeline.Identify(ctx, img)
	if errors.Is(err, pipeline.ErrNoFace) {
		return fmt.Errorf("no face found in %s", opts.ImagePath)
	}
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("no usable face in %s", opts.ImagePath)
	}

	// One line per detected face
	for _, r := range results {
		if r.Match.Name == gallery.UnknownName {
			fmt.Printf("no match (best score %.3f)\n", r.Match.Score)
			continue
		}
		fmt.Printf("%s (confidence %.1f%%)\n", r.Match.Name, r.Match.Score*100)
	}
	return nil
}
