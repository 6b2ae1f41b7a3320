// Package ui draws the live preview window and the match overlays.
package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/edgeid/internal/gallery"
	"github.com/dudu/edgeid/internal/pipeline"
)

var (
	knownColor   = color.RGBA{G: 255, A: 255}
	unknownColor = color.RGBA{R: 255, A: 255}
)

// Window manages the preview display
type Window struct {
	window     *gocv.Window
	name       string
	lastFrame  time.Time
	frameCount int
	fps        float64
}

// NewWindow creates a new preview window
func NewWindow(name string) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(1280, 720)
	window.MoveWindow(100, 100)
	return &Window{
		window:    window,
		name:      name,
		lastFrame: time.Now(),
	}
}

// Show displays a frame and updates FPS counter
func (w *Window) Show(frame *gocv.Mat) {
	w.frameCount++
	now := time.Now()

	// Calculate FPS every second
	elapsed := now.Sub(w.lastFrame)
	if elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}

	fpsText := fmt.Sprintf("FPS: %.1f", w.fps)
	gocv.PutText(frame, fpsText, image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, knownColor, 2)

	w.window.IMShow(*frame)
}

// DrawResults overlays each matched face: a box around it and the
// name with its confidence above.
func DrawResults(frame *gocv.Mat, results []pipeline.Result) {
	for _, r := range results {
		b := r.Face.BoundingBox
		col := matchColor(r.Match)
		rect := image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
		gocv.Rectangle(frame, rect, col, 2)

		y := int(b.Y1) - 8
		if y < 14 {
			y = int(b.Y2) + 20
		}
		gocv.PutText(frame, matchLabel(r.Match), image.Pt(int(b.X1), y),
			gocv.FontHersheyPlain, 1.5, col, 2)
	}
}

func matchLabel(m gallery.Match) string {
	if m.Name == gallery.UnknownName {
		return m.Name
	}
	return fmt.Sprintf("%s %.0f%%", m.Name, m.Score*100)
}

func matchColor(m gallery.Match) color.RGBA {
	if m.Name == gallery.UnknownName {
		return unknownColor
	}
	return knownColor
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// FPS returns current frames per second
func (w *Window) FPS() float64 {
	return w.fps
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
