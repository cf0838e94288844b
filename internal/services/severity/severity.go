// Package severity reduces raw detections to a damage verdict.
package severity

import (
	"math"

	"github.com/phambaophuc/vehicle-damage/internal/models"
)

// Provisional, uncalibrated thresholds on the peak detection confidence. Both
// comparisons are strict.
const (
	HighThreshold     = 0.75
	ModerateThreshold = 0.4
)

// Location is one detection as reported to the client, before rounding.
type Location struct {
	Label      string
	Confidence float64
}

// Summary is the aggregate view of a detection set.
type Summary struct {
	IsDamaged     bool
	Confidence    float64
	Locations     []Location
	SeverityLabel string
}

// Aggregate is pure: the same detections always produce the same Summary. Locations
// keep the backend's order.
func Aggregate(detections []models.Detection) Summary {
	s := Summary{
		IsDamaged: len(detections) > 0,
		Locations: make([]Location, 0, len(detections)),
	}

	for _, d := range detections {
		s.Locations = append(s.Locations, Location{Label: d.Class, Confidence: d.Confidence})
		if d.Confidence > s.Confidence {
			s.Confidence = d.Confidence
		}
	}

	s.SeverityLabel = Label(s.Confidence)
	return s
}

// Label maps a peak confidence to low, moderate or high.
func Label(confidence float64) string {
	switch {
	case confidence > HighThreshold:
		return models.SeverityHigh
	case confidence > ModerateThreshold:
		return models.SeverityModerate
	default:
		return models.SeverityLow
	}
}

// Round6 rounds to six decimal places, half away from zero.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
