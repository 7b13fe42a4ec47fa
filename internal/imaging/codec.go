// Package imaging decodes, resizes and re-encodes raster images for the
// processing stages. Every stage works from the same decoded PixelBuffer.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Fit controls how Resize maps the source onto the target rectangle.
type Fit string

const (
	// FitCover scales to cover the target and center-crops the overflow.
	FitCover Fit = "cover"
	// FitFill distorts to the exact target dimensions.
	FitFill Fit = "fill"
	// FitInside scales down to fit within the target, preserving aspect. Never upscales.
	FitInside Fit = "inside"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

var ErrEmptyImage = errors.New("empty image")

// PixelBuffer is a decoded image held as 8-bit NRGBA or Gray pixels.
// It is treated as read-only once produced.
type PixelBuffer struct {
	Width    int
	Height   int
	Channels int // 4 for NRGBA, 1 for grayscale
	img      image.Image
}

// NewPixelBuffer wraps an already decoded image.
func NewPixelBuffer(img image.Image) *PixelBuffer {
	b := img.Bounds()
	if b.Min != (image.Point{}) {
		img = imaging.Clone(img)
	}
	switch src := img.(type) {
	case *image.Gray:
		return &PixelBuffer{Width: b.Dx(), Height: b.Dy(), Channels: 1, img: src}
	case *image.NRGBA:
		return &PixelBuffer{Width: b.Dx(), Height: b.Dy(), Channels: 4, img: src}
	default:
		return &PixelBuffer{Width: b.Dx(), Height: b.Dy(), Channels: 4, img: imaging.Clone(img)}
	}
}

// Image returns the underlying image. Callers must not modify it.
func (p *PixelBuffer) Image() image.Image {
	return p.img
}

// RGB returns the pixel at (x, y) as 8-bit RGB. Gray buffers replicate the value.
func (p *PixelBuffer) RGB(x, y int) (r, g, b uint8) {
	switch src := p.img.(type) {
	case *image.NRGBA:
		i := src.PixOffset(x, y)
		return src.Pix[i], src.Pix[i+1], src.Pix[i+2]
	case *image.Gray:
		v := src.GrayAt(x, y).Y
		return v, v, v
	default:
		c := color.NRGBAModel.Convert(p.img.At(x, y)).(color.NRGBA)
		return c.R, c.G, c.B
	}
}

// Luma returns the ITU-R BT.601 luma of the pixel at (x, y).
func (p *PixelBuffer) Luma(x, y int) float64 {
	if g, ok := p.img.(*image.Gray); ok {
		return float64(g.GrayAt(x, y).Y)
	}
	r, g, b := p.RGB(x, y)
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// Decode decodes any registered raster format, applying EXIF orientation.
func Decode(data []byte) (*PixelBuffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return NewPixelBuffer(img), nil
}

// Resize scales buf to w x h according to fit.
func Resize(buf *PixelBuffer, w, h int, fit Fit) (*PixelBuffer, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("resize: invalid target %dx%d", w, h)
	}

	switch fit {
	case FitCover:
		return NewPixelBuffer(imaging.Fill(buf.img, w, h, imaging.Center, imaging.Lanczos)), nil
	case FitFill:
		return NewPixelBuffer(imaging.Resize(buf.img, w, h, imaging.Lanczos)), nil
	case FitInside:
		if buf.Width <= w && buf.Height <= h {
			return buf, nil
		}
		return NewPixelBuffer(imaging.Fit(buf.img, w, h, imaging.Lanczos)), nil
	default:
		return nil, fmt.Errorf("resize: unknown fit %q", fit)
	}
}

// Grayscale converts buf to a single-channel buffer.
func Grayscale(buf *PixelBuffer) *PixelBuffer {
	if buf.Channels == 1 {
		return buf
	}
	b := buf.img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			l := buf.Luma(b.Min.X+x, b.Min.Y+y)
			gray.Pix[y*gray.Stride+x] = uint8(l + 0.5)
		}
	}
	return NewPixelBuffer(gray)
}

// Encode encodes buf as format. quality applies to lossy formats only.
func Encode(buf *PixelBuffer, format Format, quality int) ([]byte, error) {
	var out bytes.Buffer
	switch format {
	case FormatJPEG:
		if err := jpeg.Encode(&out, buf.img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatPNG:
		if err := png.Encode(&out, buf.img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		return nil, fmt.Errorf("encode: unsupported format %q", format)
	}
	return out.Bytes(), nil
}
