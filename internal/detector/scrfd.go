package detector

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/edgeid/internal/inference"
)

// SCRFD detects faces and their five-point landmarks with an SCRFD ONNX
// model. Detection is stateless per frame.
type SCRFD struct {
	session        *inference.Session
	inputSize      int
	confThreshold  float32
	nmsThreshold   float32
	featureStrides []int
	numAnchors     int
}

// NewSCRFD creates an SCRFD detector from a model file
func NewSCRFD(modelPath string, inputSize int, confThreshold, nmsThreshold float32, accel inference.Accelerator) (*SCRFD, error) {
	// SCRFD has 1 input and 9 outputs (3 levels x 3 outputs each: score, bbox, kps)
	inputNames := []string{"input.1"}
	outputNames := []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}

	session, err := inference.NewSession(modelPath, inputNames, outputNames, accel)
	if err != nil {
		return nil, fmt.Errorf("create SCRFD session: %w", err)
	}

	return &SCRFD{
		session:        session,
		inputSize:      inputSize,
		confThreshold:  confThreshold,
		nmsThreshold:   nmsThreshold,
		featureStrides: []int{8, 16, 32},
		numAnchors:     2, // anchors per position
	}, nil
}

// Detect finds faces in a frame
func (s *SCRFD) Detect(frame *image.RGBA) ([]Face, error) {
	rgba, err := gocv.ImageToMatRGBA(frame)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer rgba.Close()

	img := gocv.NewMat()
	defer img.Close()
	gocv.CvtColor(rgba, &img, gocv.ColorRGBAToBGR)

	origWidth := img.Cols()
	origHeight := img.Rows()

	inputBlob, scale := s.preprocess(img)
	defer inputBlob.Close()

	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(s.inputSize), int64(s.inputSize)),
		bytesToFloat32(inputBlob.ToBytes()),
	)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	// One score, bbox, and keypoint tensor per stride level
	outputs := make([]ort.Value, 9)
	outputTensors := make([]*ort.Tensor[float32], 9)
	defer func() {
		for _, t := range outputTensors {
			if t != nil {
				t.Destroy()
			}
		}
	}()

	for level, stride := range s.featureStrides {
		cells := s.inputSize / stride
		anchors := int64(cells * cells * s.numAnchors)

		for i, cols := range []int64{1, 4, 10} {
			t, err := inference.CreateEmptyTensor[float32]([]int64{anchors, cols})
			if err != nil {
				return nil, fmt.Errorf("create output tensor: %w", err)
			}
			outputs[level+i*3] = t
			outputTensors[level+i*3] = t
		}
	}

	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("detector inference: %w", err)
	}

	faces := s.postprocess(outputTensors, scale, origWidth, origHeight)
	return nms(faces, s.nmsThreshold), nil
}

// preprocess letterboxes the frame into the square input size and normalizes
// pixel values to (v - 127.5) / 128.0, returning an NCHW blob and the resize
// scale applied to the original frame.
func (s *SCRFD) preprocess(img gocv.Mat) (gocv.Mat, float32) {
	height := img.Rows()
	width := img.Cols()

	scale := float32(s.inputSize) / float32(max(height, width))
	newWidth := int(float32(width) * scale)
	newHeight := int(float32(height) * scale)

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMatWithSize(s.inputSize, s.inputSize, gocv.MatTypeCV8UC3)
	padded.SetTo(gocv.NewScalar(0, 0, 0, 0))

	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()
	resized.Close()

	rgb := gocv.NewMat()
	gocv.CvtColor(padded, &rgb, gocv.ColorBGRToRGB)
	padded.Close()

	blob := gocv.NewMat()
	rgb.ConvertTo(&blob, gocv.MatTypeCV32FC3)
	rgb.Close()

	gocv.AddWeighted(blob, 1.0/128.0, blob, 0, -127.5/128.0, &blob)

	blobNCHW := gocv.BlobFromImage(blob, 1.0, image.Pt(s.inputSize, s.inputSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	blob.Close()

	return blobNCHW, scale
}

// postprocess decodes anchor-relative distances into faces in original frame
// coordinates
func (s *SCRFD) postprocess(outputs []*ort.Tensor[float32], scale float32, origWidth, origHeight int) []Face {
	var faces []Face
	for level, stride := range s.featureStrides {
		faces = append(faces, s.decodeLevel(stride,
			outputs[level].GetData(),
			outputs[level+3].GetData(),
			outputs[level+6].GetData(),
			scale, origWidth, origHeight)...)
	}
	return faces
}

// decodeLevel decodes one stride level's raw outputs: a score logit per
// anchor, boxes as four distances from the anchor center to the edges,
// and keypoints as five (x, y) offsets, all in stride units. Boxes are
// clamped to the frame; keypoints are not.
func (s *SCRFD) decodeLevel(stride int, scores, boxes, kps []float32, scale float32, origWidth, origHeight int) []Face {
	cells := s.inputSize / stride
	count := cells * cells * s.numAnchors

	var faces []Face
	for idx := 0; idx < count; idx++ {
		score := sigmoid(scores[idx])
		if score <= s.confThreshold {
			continue
		}

		pos := idx / s.numAnchors
		cx := (float32(pos%cells) + 0.5) * float32(stride)
		cy := (float32(pos/cells) + 0.5) * float32(stride)

		b := boxes[idx*4 : idx*4+4]
		box := BoundingBox{
			X1: clamp((cx-b[0]*float32(stride))/scale, 0, float32(origWidth)),
			Y1: clamp((cy-b[1]*float32(stride))/scale, 0, float32(origHeight)),
			X2: clamp((cx+b[2]*float32(stride))/scale, 0, float32(origWidth)),
			Y2: clamp((cy+b[3]*float32(stride))/scale, 0, float32(origHeight)),
		}

		k := kps[idx*10 : idx*10+10]
		kp := func(i int) Point {
			return Point{
				X: (cx + k[i*2]*float32(stride)) / scale,
				Y: (cy + k[i*2+1]*float32(stride)) / scale,
			}
		}

		faces = append(faces, Face{
			BoundingBox: box,
			Landmarks: Landmarks{
				LeftEye:    kp(0),
				RightEye:   kp(1),
				Nose:       kp(2),
				LeftMouth:  kp(3),
				RightMouth: kp(4),
			},
			Score: score,
		})
	}
	return faces
}

// Close releases detector resources
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func bytesToFloat32(data []byte) []float32 {
	result := make([]float32, len(data)/4)
	for i := range result {
		result[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return result
}
