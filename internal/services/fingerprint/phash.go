// Package fingerprint derives content-based perceptual fingerprints from images.
package fingerprint

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUndecodable is returned when the payload is not an image in a supported format.
var ErrUndecodable = errors.New("undecodable image")

// Fingerprint is a 64-bit DCT perceptual hash as 16 lowercase hex digits.
type Fingerprint string

const width = 16

// DefaultMaxPixels bounds the decoded canvas when the caller sets no budget.
const DefaultMaxPixels = 50_000_000

// Decode turns raw bytes into an image, applying any EXIF orientation. Images whose
// header declares more than maxPixels pixels are rejected before any pixel data is
// allocated; maxPixels <= 0 means DefaultMaxPixels.
func Decode(data []byte, maxPixels int64) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", ErrUndecodable)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: zero-sized image", ErrUndecodable)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUndecodable, cfg.Width, cfg.Height, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: zero-sized image", ErrUndecodable)
	}

	return img, format, nil
}

// Hash computes the perceptual fingerprint of img. Re-encoded or resized copies of
// the same picture hash to the same or a nearby value.
func Hash(img image.Image) (Fingerprint, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("perception hash: %w", err)
	}
	return fromUint64(h.GetHash()), nil
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b Fingerprint) (int, error) {
	ha, err := a.imageHash()
	if err != nil {
		return 0, err
	}
	hb, err := b.imageHash()
	if err != nil {
		return 0, err
	}
	return ha.Distance(hb)
}

func (f Fingerprint) String() string {
	return string(f)
}

func (f Fingerprint) imageHash() (*goimagehash.ImageHash, error) {
	if len(f) != width {
		return nil, fmt.Errorf("fingerprint %q: want %d hex digits", string(f), width)
	}
	v, err := strconv.ParseUint(string(f), 16, 64)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %q: %w", string(f), err)
	}
	return goimagehash.NewImageHash(v, goimagehash.PHash), nil
}

func fromUint64(v uint64) Fingerprint {
	return Fingerprint(fmt.Sprintf("%016x", v))
}
