// Package image decodes texture sources and encodes frame captures.
//
// All pixel data handled here is tightly packed, non-premultiplied RGBA8,
// which is what the GPU texture upload and the capture readback exchange.
package image

import (
	"errors"
	"fmt"
	"image"
)

// Common errors for image operations.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("image: invalid dimensions")

	// ErrDataTooSmall is returned when provided data is smaller than required.
	ErrDataTooSmall = errors.New("image: data buffer too small")
)

// RGBA is a tightly packed RGBA8 pixel buffer.
type RGBA struct {
	Width  int
	Height int
	Pix    []byte
}

// NewRGBA allocates a zeroed w×h buffer.
func NewRGBA(width, height int) (*RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	return &RGBA{Width: width, Height: height, Pix: make([]byte, width*height*4)}, nil
}

// Stride returns the number of bytes per row.
func (b *RGBA) Stride() int { return b.Width * 4 }

// At returns the components of the pixel at (x, y).
func (b *RGBA) At(x, y int) (r, g, bl, a uint8) {
	i := y*b.Stride() + x*4
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3]
}

// Std wraps the buffer as a standard library image without copying.
func (b *RGBA) Std() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Stride(),
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// Unpad copies rows of width*4 bytes out of src, whose rows are pitch bytes
// apart, into a new tightly packed buffer.
func Unpad(src []byte, width, height, pitch int) (*RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	row := width * 4
	if pitch < row {
		return nil, fmt.Errorf("image: pitch %d shorter than row %d", pitch, row)
	}
	if len(src) < pitch*(height-1)+row {
		return nil, ErrDataTooSmall
	}
	out := &RGBA{Width: width, Height: height}
	if pitch == row {
		out.Pix = append([]byte(nil), src[:row*height]...)
		return out, nil
	}
	out.Pix = make([]byte, row*height)
	for y := range height {
		copy(out.Pix[y*row:(y+1)*row], src[y*pitch:y*pitch+row])
	}
	return out, nil
}
