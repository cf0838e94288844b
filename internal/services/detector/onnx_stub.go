//go:build !gocv
// +build !gocv

package detector

import (
	"context"
	"errors"
	"image"

	"github.com/phambaophuc/vehicle-damage/internal/models"
)

var errNoGoCV = errors.New("gocv build tag is not enabled")

type ONNXDetector struct {
	ModelPath     string
	ClassNames    []string
	MinConfidence float32
}

// NewONNXDetector creates a placeholder detector for builds without OpenCV.
func NewONNXDetector(modelPath string, classNames []string, minConfidence float64) *ONNXDetector {
	return &ONNXDetector{
		ModelPath:     modelPath,
		ClassNames:    classNames,
		MinConfidence: float32(minConfidence),
	}
}

// Warmup always fails without the gocv build tag, so the backend never becomes ready.
func (d *ONNXDetector) Warmup(context.Context) error {
	return errNoGoCV
}

func (d *ONNXDetector) Detect(context.Context, image.Image) ([]models.Detection, error) {
	return nil, errNoGoCV
}

func (d *ONNXDetector) Close() error {
	return nil
}
