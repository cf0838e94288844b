package models

import "image"

// Detection is one finding reported by a detection backend.
type Detection struct {
	ClassID    int             `json:"class_id"`
	Class      string          `json:"class"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"-"`
}

// BoundingBox is the wire form of a detection region, in source-image pixels.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}
