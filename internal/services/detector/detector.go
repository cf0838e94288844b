// Package detector wraps object-detection backends behind a readiness-checked,
// concurrency-limited, deadline-bound boundary.
package detector

import (
	"context"
	"errors"
	"image"

	"github.com/phambaophuc/vehicle-damage/internal/models"
)

// Detector finds damage regions in a decoded image. Implementations should honour
// ctx cancellation where they can; the Backend enforces the deadline either way.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.Detection, error)
}

// Warmer is implemented by detectors that need to load or probe a model before the
// first call.
type Warmer interface {
	Warmup(ctx context.Context) error
}

var (
	// ErrNotReady means the model has not been loaded yet.
	ErrNotReady = errors.New("detection model is not loaded")
	// ErrBackend wraps every failure raised by a detector.
	ErrBackend = errors.New("detection backend failed")
	// ErrTimeout means the detector did not answer before the deadline.
	ErrTimeout = errors.New("detection timed out")

	// ErrUpstream marks backend faults (transport errors, 5xx, malformed output).
	ErrUpstream = errors.New("detection service error")
	// ErrRejected marks inputs the backend refused to process.
	ErrRejected = errors.New("detection service rejected the image")
)

func resolveClass(classID int, class string, names []string) string {
	if class != "" {
		return class
	}
	if classID >= 0 && classID < len(names) {
		return names[classID]
	}
	return "damage"
}
