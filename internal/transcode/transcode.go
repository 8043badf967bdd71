// Package transcode derives the JPEG renditions stored for every gallery image.
// Everything here is a pure function of its inputs.
package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned when the source decodes to zero pixels
var ErrEmptyImage = errors.New("image has no pixels")

// Box is a maximum bounding box in pixels
type Box struct {
	Width  int
	Height int
}

// ThumbnailBox is the fixed bounding box of gallery thumbnails
var ThumbnailBox = Box{Width: 360, Height: 420}

// Options configures the main rendition and the encode qualities
type Options struct {
	MainBox          Box
	ImageQuality     int
	ThumbnailQuality int
}

// Derivatives holds the encoded renditions of one upload
type Derivatives struct {
	Thumbnail []byte
	Main      []byte
}

type Transcoder struct {
	opts Options
}

func NewTranscoder(opts Options) *Transcoder {
	return &Transcoder{opts: opts}
}

// Derive decodes data once and renders the thumbnail and the main rendition
func (t *Transcoder) Derive(data []byte) (Derivatives, error) {
	src, err := decode(data)
	if err != nil {
		return Derivatives{}, err
	}

	thumb, err := encode(flatten(src, ThumbnailBox), t.opts.ThumbnailQuality)
	if err != nil {
		return Derivatives{}, fmt.Errorf("thumbnail: %w", err)
	}

	main, err := encode(flatten(src, t.opts.MainBox), t.opts.ImageQuality)
	if err != nil {
		return Derivatives{}, fmt.Errorf("main rendition: %w", err)
	}

	return Derivatives{Thumbnail: thumb, Main: main}, nil
}

// Render produces a single JPEG that fits inside box, is never larger than the
// source and has transparent regions composited onto white.
func Render(data []byte, box Box, quality int) ([]byte, error) {
	src, err := decode(data)
	if err != nil {
		return nil, err
	}
	return encode(flatten(src, box), quality)
}

func decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrEmptyImage
	}
	return img, nil
}

// flatten fits src into box without enlarging it and removes transparency
func flatten(src image.Image, box Box) image.Image {
	fitted := imaging.Fit(src, box.Width, box.Height, imaging.Lanczos)
	b := fitted.Bounds()

	background := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(background, fitted, image.Pt(0, 0), 1.0)
}

func encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
