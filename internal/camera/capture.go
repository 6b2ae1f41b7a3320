// Package camera manages webcam capture for the live watch loop.
package camera

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/dudu/edgeid/internal/imageio"
)

// Capture manages a webcam device.
type Capture struct {
	webcam    *gocv.VideoCapture
	deviceID  int
	targetFPS int
	width     int
	height    int
	mu        sync.Mutex
}

// NewCapture opens the camera and requests the given resolution and
// frame rate. The device may pick the closest mode it supports.
func NewCapture(deviceID, targetFPS, width, height int) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", deviceID, err)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	webcam.Set(gocv.VideoCaptureFPS, float64(targetFPS))

	// Ask back what the camera actually granted
	actualWidth := int(webcam.Get(gocv.VideoCaptureFrameWidth))
	actualHeight := int(webcam.Get(gocv.VideoCaptureFrameHeight))

	return &Capture{
		webcam:    webcam,
		deviceID:  deviceID,
		targetFPS: targetFPS,
		width:     actualWidth,
		height:    actualHeight,
	}, nil
}

// Read captures a frame into the provided Mat.
func (c *Capture) Read(frame *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return false
	}
	return c.webcam.Read(frame)
}

// ReadRGBA captures a frame into buf and converts it for the
// recognition pipeline. The Mat is reused across calls, the returned
// image is a fresh copy.
func (c *Capture) ReadRGBA(buf *gocv.Mat) (*image.RGBA, bool) {
	if !c.Read(buf) || buf.Empty() {
		return nil, false
	}
	img, err := buf.ToImage()
	if err != nil {
		return nil, false
	}
	return imageio.ToRGBA(img), true
}

// Width returns the granted frame width.
func (c *Capture) Width() int {
	return c.width
}

// Height returns the granted frame height.
func (c *Capture) Height() int {
	return c.height
}

// Close releases the camera.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam != nil {
		err := c.webcam.Close()
		c.webcam = nil
		return err
	}
	return nil
}
