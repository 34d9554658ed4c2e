package image

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestFromStdImage_NRGBA(t *testing.T) {
	nrgba := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	nrgba.Set(3, 3, color.NRGBA{R: 128, G: 64, B: 32, A: 200})

	buf := FromStdImage(nrgba)

	if buf.Width != 10 || buf.Height != 10 {
		t.Errorf("Dimensions = (%d, %d), want (10, 10)", buf.Width, buf.Height)
	}

	r, g, b, a := buf.At(3, 3)
	if r != 128 || g != 64 || b != 32 || a != 200 {
		t.Errorf("Pixel = (%d, %d, %d, %d), want (128, 64, 32, 200)", r, g, b, a)
	}
}

func TestFromStdImage_Gray(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 10, 10))
	gray.SetGray(5, 5, color.Gray{Y: 128})

	buf := FromStdImage(gray)

	r, g, b, a := buf.At(5, 5)
	if r != 128 || g != 128 || b != 128 || a != 255 {
		t.Errorf("Pixel = (%d, %d, %d, %d), want (128, 128, 128, 255)", r, g, b, a)
	}
}

func TestFromStdImage_SubImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	src.Set(4, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	sub := src.SubImage(image.Rect(4, 4, 8, 8))

	buf := FromStdImage(sub)
	if buf.Width != 4 || buf.Height != 4 {
		t.Fatalf("Dimensions = (%d, %d), want (4, 4)", buf.Width, buf.Height)
	}
	if r, g, b, _ := buf.At(0, 0); r != 10 || g != 20 || b != 30 {
		t.Errorf("origin pixel = (%d, %d, %d), want (10, 20, 30)", r, g, b)
	}
}

func TestLoadPNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.Set(2, 1, color.NRGBA{R: 1, G: 2, B: 3, A: 4})

	path := filepath.Join(t.TempDir(), "in.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, src); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	buf, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if buf.Width != 3 || buf.Height != 2 {
		t.Errorf("Dimensions = (%d, %d), want (3, 2)", buf.Width, buf.Height)
	}
	if r, g, b, a := buf.At(2, 1); r != 1 || g != 2 || b != 3 || a != 4 {
		t.Errorf("Pixel = (%d, %d, %d, %d), want (1, 2, 3, 4)", r, g, b, a)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Error("Load() of missing file: expected error")
	}
}

func TestLoadFromBytes(t *testing.T) {
	if _, err := LoadFromBytes(nil); !errors.Is(err, ErrEmptyData) {
		t.Errorf("LoadFromBytes(nil) error = %v, want ErrEmptyData", err)
	}
	if _, err := LoadFromBytes([]byte("definitely not an image")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("LoadFromBytes(garbage) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestSaveRGBA(t *testing.T) {
	pix := make([]byte, 4*3*4)
	for i := range pix {
		pix[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "out.png")
	if err := SaveRGBA(path, 4, 3, pix); err != nil {
		t.Fatalf("SaveRGBA() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	if cfg.Width != 4 || cfg.Height != 3 {
		t.Errorf("saved size = %dx%d, want 4x3", cfg.Width, cfg.Height)
	}

	back, err := LoadFromBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back.Pix, pix) {
		t.Error("pixels changed across save and load")
	}
}

func TestSaveRGBAErrors(t *testing.T) {
	dir := t.TempDir()
	if err := SaveRGBA(filepath.Join(dir, "a.png"), 0, 3, nil); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("zero width: error = %v", err)
	}
	if err := SaveRGBA(filepath.Join(dir, "b.png"), 2, 2, make([]byte, 15)); !errors.Is(err, ErrDataTooSmall) {
		t.Errorf("short data: error = %v", err)
	}
	if err := SaveRGBA(filepath.Join(dir, "missing", "c.png"), 1, 1, make([]byte, 4)); err == nil {
		t.Error("unwritable path: expected error")
	}
}
