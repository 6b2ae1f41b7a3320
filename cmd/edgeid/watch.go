package main

import (
	"context"
	"fmt"
	"image"
	"image/color"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/dudu/edgeid/internal/camera"
	"github.com/dudu/edgeid/internal/gallery"
	"github.com/dudu/edgeid/internal/pipeline"
	"github.com/dudu/edgeid/internal/ui"
)

var watchOpts Options

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Recognize faces live from the webcam",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context(), watchOpts)
	},
}

func init() {
	watchCmd.Flags().IntVarP(&watchOpts.CameraIndex, "camera", "c", 0, "Camera device index")
	watchCmd.Flags().IntVar(&watchOpts.TargetFPS, "fps", 30, "Target frames per second")
	watchCmd.Flags().IntVar(&watchOpts.Width, "width", 1280, "Requested capture width")
	watchCmd.Flags().IntVar(&watchOpts.Height, "height", 720, "Requested capture height")
	watchCmd.Flags().BoolVarP(&watchOpts.Preview, "preview", "p", true, "Show the preview window")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, opts Options) error {
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	cam, err := camera.NewCapture(opts.CameraIndex, opts.TargetFPS, opts.Width, opts.Height)
	if err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}
	defer cam.Close()
	log.Infof("camera opened: %dx%d", cam.Width(), cam.Height())

	var window *ui.Window
	if opts.Preview {
		window = ui.NewWindow("edgeid")
		defer window.Close()
	}

	frame := gocv.NewMat()
	defer frame.Close()

	log.Info("watching, press q to quit")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		rgba, ok := cam.ReadRGBA(&frame)
		if !ok {
			continue
		}

		results, err := a.pipeline.ProcessFrame(ctx, rgba)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warn("frame processing failed")
			continue
		}

		if window == nil {
			logResults(results)
			continue
		}

		ui.DrawResults(&frame, results)
		drawTiming(&frame, a.pipeline.LastTiming())
		window.Show(&frame)
		// WaitKey must be called to process window events on macOS
		if key := window.WaitKey(1); key == 'q' || key == 27 {
			return nil
		}
	}
}

func drawTiming(frame *gocv.Mat, timing pipeline.Timing) {
	if timing.Total <= 0 {
		return
	}
	fps := 1.0 / timing.Total.Seconds()
	text := fmt.Sprintf("D:%3.0fms E:%3.0fms T:%3.0fms (%.1f FPS)",
		float64(timing.Detection.Milliseconds()),
		float64(timing.Embedding.Milliseconds()),
		float64(timing.Total.Milliseconds()),
		fps)
	gocv.PutText(frame, text, image.Pt(10, 60),
		gocv.FontHersheyPlain, 1.5, color.RGBA{G: 255, A: 255}, 2)
}

// logResults is the headless stand-in for the preview overlay.
func logResults(results []pipeline.Result) {
	for _, r := range results {
		if r.Match.Name == gallery.UnknownName {
			log.WithField("score", fmt.Sprintf("%.3f", r.Match.Score)).Debug("unknown face")
			continue
		}
		log.WithFields(log.Fields{
			"name":       r.Match.Name,
			"confidence": fmt.Sprintf("%.1f%%", r.Match.Score*100),
		}).Info("match")
	}
}
