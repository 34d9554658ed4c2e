package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when the image format is not supported.
	ErrUnsupportedFormat = errors.New("image: unsupported format")

	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("image: empty data")
)

// Load decodes the image file at path into RGBA8.
// Supported formats: PNG, JPEG, BMP, TIFF, WebP.
func Load(path string) (*RGBA, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("image: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// LoadFromBytes decodes an in-memory image into RGBA8.
func LoadFromBytes(data []byte) (*RGBA, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	return Decode(bytes.NewReader(data))
}

// Decode decodes an image from the given reader, auto-detecting the format.
func Decode(r io.Reader) (*RGBA, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("image: decode: %w", err)
	}
	return FromStdImage(img), nil
}

// FromStdImage converts any image.Image to non-premultiplied RGBA8.
func FromStdImage(img image.Image) *RGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	// Fast path for NRGBA images
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Stride == width*4 && bounds.Min == (image.Point{}) {
		return &RGBA{Width: width, Height: height, Pix: append([]byte(nil), nrgba.Pix...)}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return &RGBA{Width: width, Height: height, Pix: dst.Pix}
}

// EncodePNG encodes the buffer as PNG to the given writer.
func (b *RGBA) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, b.Std()); err != nil {
		return fmt.Errorf("image: encode PNG: %w", err)
	}
	return nil
}

// SavePNG writes the buffer as a PNG file.
func (b *RGBA) SavePNG(path string) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}

	if err := b.EncodePNG(f); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// SaveRGBA writes tightly packed RGBA8 pixels of the given size as a PNG file.
func SaveRGBA(path string, width, height int, pix []byte) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidDimensions
	}
	if len(pix) < width*height*4 {
		return ErrDataTooSmall
	}
	b := &RGBA{Width: width, Height: height, Pix: pix[:width*height*4]}
	return b.SavePNG(path)
}
