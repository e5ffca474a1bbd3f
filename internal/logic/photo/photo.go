package photo

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/cjeanneret/DualCap/internal/hw/camera"
)

// Options controls how raw captures are developed before upload.
type Options struct {
	MirrorFront  bool // flip front shots horizontally (selfie view)
	MaxDimension int  // longest side in pixels, 0 = keep
	JPEGQuality  int  // 1-100
}

// Developer turns raw sensor output into upload-ready JPEGs.
type Developer struct {
	opts Options
}

func NewDeveloper(opts Options) *Developer {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 90
	}
	return &Developer{opts: opts}
}

// Develop reads the EXIF capture time (zero if absent), applies orientation,
// mirroring and resizing, and re-encodes the image.
func (d *Developer) Develop(facing camera.Facing, data []byte) ([]byte, time.Time, error) {
	takenAt, _ := TakenAt(data)

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("decode %s capture: %w", facing, err)
	}
	if facing == camera.Front && d.opts.MirrorFront {
		img = imaging.FlipH(img)
	}
	img = fit(img, d.opts.MaxDimension)

	out, err := encode(img, d.opts.JPEGQuality)
	if err != nil {
		return nil, time.Time{}, err
	}
	return out, takenAt, nil
}

// TakenAt returns the EXIF DateTimeOriginal (or DateTime) of a JPEG.
func TakenAt(data []byte) (time.Time, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return time.Time{}, fmt.Errorf("decode exif: %w", err)
	}
	t, err := x.DateTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("exif datetime: %w", err)
	}
	return t, nil
}

// BlurredBackground renders a blurred, darkened copy of a photo, used as the
// backdrop of the details view.
func BlurredBackground(data []byte, sigma float64, darkenPercent float64) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode background source: %w", err)
	}
	img = fit(img, 640)
	blurred := imaging.Blur(img, sigma)
	dark := imaging.AdjustBrightness(blurred, -darkenPercent)
	return encode(dark, 80)
}

func fit(img image.Image, maxDim int) image.Image {
	if maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return img
	}
	return imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
}

func encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
