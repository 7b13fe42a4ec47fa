package vision

import (
	"image"
	"image/color"
	"math"

	dimaging "github.com/disintegration/imaging"
)

// normalization maps an 8-bit channel value v to (v - mean) / std.
type normalization struct {
	mean [3]float32
	std  [3]float32
}

var (
	retinaFaceNorm = normalization{mean: [3]float32{127.5, 127.5, 127.5}, std: [3]float32{128, 128, 128}}
	arcFaceNorm    = normalization{mean: [3]float32{127.5, 127.5, 127.5}, std: [3]float32{127.5, 127.5, 127.5}}
	yoloNorm       = normalization{std: [3]float32{255, 255, 255}}
)

// letterboxFill is the padding colour YOLO models are trained with.
var letterboxFill = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// toCHW stretches img to w x h and lays it out as planar, normalised RGB.
func toCHW(img image.Image, w, h int, n normalization) []float32 {
	var src *image.NRGBA
	if b := img.Bounds(); b.Dx() == w && b.Dy() == h {
		src = dimaging.Clone(img)
	} else {
		src = dimaging.Resize(img, w, h, dimaging.Linear)
	}

	plane := w * h
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			idx := y*w + x
			p := row[x*4:]
			data[idx] = (float32(p[0]) - n.mean[0]) / n.std[0]
			data[plane+idx] = (float32(p[1]) - n.mean[1]) / n.std[1]
			data[2*plane+idx] = (float32(p[2]) - n.mean[2]) / n.std[2]
		}
	}
	return data
}

// letterbox is an aspect-preserving resize onto a padded square canvas.
type letterbox struct {
	size   int
	scale  float32
	width  int
	height int
	padX   int
	padY   int
}

func newLetterbox(w, h, size int) letterbox {
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := min(size, max(1, int(math.Round(float64(w)*scale))))
	nh := min(size, max(1, int(math.Round(float64(h)*scale))))
	return letterbox{
		size:   size,
		scale:  float32(scale),
		width:  nw,
		height: nh,
		padX:   (size - nw) / 2,
		padY:   (size - nh) / 2,
	}
}

func (l letterbox) apply(img image.Image) *image.NRGBA {
	resized := dimaging.Resize(img, l.width, l.height, dimaging.Linear)
	canvas := dimaging.New(l.size, l.size, letterboxFill)
	return dimaging.Paste(canvas, resized, image.Pt(l.padX, l.padY))
}

// unmap converts a point in letterboxed model space back to source pixels.
func (l letterbox) unmap(x, y float32) (float32, float32) {
	return (x - float32(l.padX)) / l.scale, (y - float32(l.padY)) / l.scale
}

// cropFace cuts the face box out of img with 10% padding on each side.
// It returns nil when the box does not overlap the image.
func cropFace(img image.Image, box [4]float32) image.Image {
	bounds := img.Bounds()
	r := image.Rect(int(box[0]), int(box[1]), int(box[2]), int(box[3])).Intersect(bounds)
	if r.Empty() {
		return nil
	}

	padW := int(float32(r.Dx()) * 0.1)
	padH := int(float32(r.Dy()) * 0.1)
	r = image.Rect(r.Min.X-padW, r.Min.Y-padH, r.Max.X+padW, r.Max.Y+padH).Intersect(bounds)
	return dimaging.Crop(img, r)
}
