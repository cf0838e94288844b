//go:build gocv
// +build gocv

package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/phambaophuc/vehicle-damage/internal/models"
)

const (
	onnxInputSide    = 640
	onnxNMSThreshold = 0.45
)

// ONNXDetector runs a YOLOv8 ONNX export in-process with OpenCV DNN. The network is
// not reentrant, so calls are serialized on mu.
type ONNXDetector struct {
	ModelPath     string
	ClassNames    []string
	MinConfidence float32

	mu  sync.Mutex
	net *gocv.Net
}

func NewONNXDetector(modelPath string, classNames []string, minConfidence float64) *ONNXDetector {
	return &ONNXDetector{
		ModelPath:     modelPath,
		ClassNames:    classNames,
		MinConfidence: float32(minConfidence),
	}
}

// Warmup loads the network from ModelPath.
func (d *ONNXDetector) Warmup(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if d.net != nil {
		return nil
	}
	if _, err := os.Stat(d.ModelPath); err != nil {
		return fmt.Errorf("model file: %w", err)
	}

	net := gocv.ReadNetFromONNX(d.ModelPath)
	if net.Empty() {
		return errors.New("failed to read onnx model")
	}
	d.net = &net
	return nil
}

func (d *ONNXDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// The deadline may have passed while waiting for the network.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if d.net == nil {
		return nil, ErrNotReady
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(onnxInputSide, onnxInputSide), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	// Output is [1, 4+classes, anchors]: cx, cy, w, h then one score per class.
	sizes := out.Size()
	if len(sizes) != 3 || sizes[1] < 5 {
		return nil, fmt.Errorf("%w: unexpected output shape %v", ErrUpstream, sizes)
	}
	rows, anchors := sizes[1], sizes[2]
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", ErrUpstream, err)
	}

	scaleX := float32(mat.Cols()) / onnxInputSide
	scaleY := float32(mat.Rows()) / onnxInputSide

	var (
		boxes   []image.Rectangle
		scores  []float32
		classes []int
	)
	for a := 0; a < anchors; a++ {
		best, bestScore := -1, float32(0)
		for c := 4; c < rows; c++ {
			if s := data[c*anchors+a]; s > bestScore {
				best, bestScore = c-4, s
			}
		}
		if best < 0 || bestScore < d.MinConfidence {
			continue
		}

		cx, cy := data[a]*scaleX, data[anchors+a]*scaleY
		w, h := data[2*anchors+a]*scaleX, data[3*anchors+a]*scaleY
		boxes = append(boxes, image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)))
		scores = append(scores, bestScore)
		classes = append(classes, best)
	}
	if len(boxes) == 0 {
		return []models.Detection{}, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, d.MinConfidence, onnxNMSThreshold)
	detections := make([]models.Detection, 0, len(keep))
	for _, i := range keep {
		detections = append(detections, models.Detection{
			ClassID:    classes[i],
			Class:      resolveClass(classes[i], "", d.ClassNames),
			Confidence: float64(scores[i]),
			Box:        boxes[i].Intersect(img.Bounds()),
		})
	}
	return detections, nil
}

// Close releases the network.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.net != nil {
		err := d.net.Close()
		d.net = nil
		return err
	}
	return nil
}
