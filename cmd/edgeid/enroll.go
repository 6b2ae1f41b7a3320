package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dudu/edgeid/internal/imageio"
	"github.com/dudu/edgeid/internal/pipeline"
)

var enrollOpts Options

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a face from a photo",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnroll(cmd.Context(), enrollOpts)
	},
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollOpts.ImagePath, "image", "i", "", "Path to a photo of the person")
	enrollCmd.Flags().StringVarP(&enrollOpts.Name, "name", "n", "", "Name to enroll the face under")
	enrollCmd.MarkFlagRequired("image")
	enrollCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(ctx context.Context, opts Options) error {
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	img, err := imageio.Load(opts.ImagePath)
	if err != nil {
		return err
	}

	// The largest face in the photo is the one enrolled
	known, err := a.pipeline.Enroll(ctx, img, opts.Name)
	if errors.Is(err, pipeline.ErrNoFace) {
		return fmt.Errorf("no face found in %s", opts.ImagePath)
	}
	if err != nil {
		return err
	}

	if err := DB.Save(ctx, known); err != nil {
		return fmt.Errorf("failed to persist face: %w", err)
	}

	fmt.Printf("enrolled %s (%s)\n", known.Name, known.ID)
	return nil
}
