// Package render draws detections over the submitted image and encodes the result.
package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/phambaophuc/vehicle-damage/internal/models"
)

const (
	DefaultQuality = 90
	BoxThickness   = 2
	LabelPadding   = 2
)

type Options struct {
	Quality int
	MaxSide int // 0 keeps the original size
}

type Renderer struct {
	quality int
	maxSide int
}

func NewRenderer(opts Options) *Renderer {
	quality := opts.Quality
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Renderer{quality: quality, maxSide: max(0, opts.MaxSide)}
}

// Render returns the annotated image as base64 JPEG. An empty detection list still
// produces the plain image.
func (r *Renderer) Render(img image.Image, detections []models.Detection) (string, error) {
	annotated := r.Annotate(img, detections)

	buffer := &bytes.Buffer{}
	if err := encodeJPEG(buffer, annotated, r.quality); err != nil {
		return "", fmt.Errorf("failed to encode annotated image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buffer.Bytes()), nil
}

// Annotate returns a copy of img, fitted to MaxSide, with every detection outlined
// and labelled.
func (r *Renderer) Annotate(img image.Image, detections []models.Detection) image.Image {
	canvas, scale := fitCanvas(img, r.maxSide)
	srcMin := img.Bounds().Min

	for _, d := range detections {
		box := scaleRect(d.Box.Sub(srcMin), scale).Intersect(canvas.Bounds())
		if box.Empty() {
			continue
		}
		c := classColor(d.ClassID)
		drawBox(canvas, box, c)
		drawLabel(canvas, box, fmt.Sprintf("%s %.2f", d.Class, d.Confidence), c)
	}
	return canvas
}
