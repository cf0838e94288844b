package render

import (
	"image"

	"github.com/disintegration/imaging"
)

// fitCanvas returns a drawable copy of img anchored at (0,0), downscaled with
// Lanczos when its longer side exceeds maxSide, plus the scale factor applied.
func fitCanvas(img image.Image, maxSide int) (*image.NRGBA, float64) {
	bounds := img.Bounds()
	longer := max(bounds.Dx(), bounds.Dy())

	if maxSide <= 0 || longer <= maxSide {
		return imaging.Clone(img), 1
	}

	fitted := imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	return fitted, float64(fitted.Bounds().Dx()) / float64(bounds.Dx())
}

func scaleRect(r image.Rectangle, scale float64) image.Rectangle {
	if scale == 1 {
		return r
	}
	return image.Rect(
		int(float64(r.Min.X)*scale),
		int(float64(r.Min.Y)*scale),
		int(float64(r.Max.X)*scale),
		int(float64(r.Max.Y)*scale),
	)
}
