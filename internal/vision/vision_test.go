package vision

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/your-org/pixelmind/internal/config"
	"github.com/your-org/pixelmind/internal/imaging"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b [4]float32
		want float32
	}{
		{"identical", [4]float32{0, 0, 10, 10}, [4]float32{0, 0, 10, 10}, 1},
		{"disjoint", [4]float32{0, 0, 10, 10}, [4]float32{20, 20, 30, 30}, 0},
		{"half overlap", [4]float32{0, 0, 10, 10}, [4]float32{5, 0, 15, 10}, 50.0 / 150.0},
		{"degenerate", [4]float32{0, 0, 0, 0}, [4]float32{0, 0, 0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := iou(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("iou = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNMS(t *testing.T) {
	Convey("Given overlapping and separate boxes", t, func() {
		boxes := []faceBox{
			{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.7},
			{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.9},
			{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.6},
		}
		key := func(f faceBox) ([4]float32, float32) { return f.BBox, f.Confidence }

		Convey("The weaker overlapping box is suppressed", func() {
			kept := nms(boxes, faceNMSIoU, key)
			So(kept, ShouldHaveLength, 2)
			So(kept[0].Confidence, ShouldEqual, float32(0.9))
			So(kept[1].Confidence, ShouldEqual, float32(0.6))
		})

		Convey("Empty input stays empty", func() {
			So(nms([]faceBox{}, faceNMSIoU, key), ShouldBeEmpty)
		})
	})
}

func retinaFaceOutputsFor(inputW, inputH int) [][]float32 {
	out := make([][]float32, 3*len(strides))
	for si, stride := range strides {
		n := (inputW / stride) * (inputH / stride) * anchorsPerStride
		out[si] = make([]float32, n)
		out[si+3] = make([]float32, n*4)
		out[si+6] = make([]float32, n*10)
	}
	return out
}

func TestDecodeRetinaFace(t *testing.T) {
	Convey("Given one confident anchor at stride 8", t, func() {
		out := retinaFaceOutputsFor(640, 640)
		idx := (5*80 + 10) * anchorsPerStride
		out[0][idx] = 0.9
		copy(out[3][idx*4:], []float32{1, 1, 1, 1})
		copy(out[6][idx*10:], []float32{0, 0, 1, 0, 0, 1, -1, 0, 0, -1})
		out[1][7] = 0.2

		boxes := decodeRetinaFace(out, 640, 640, 1280, 640, 0.5)

		Convey("Only the anchor above threshold is decoded", func() {
			So(boxes, ShouldHaveLength, 1)
			So(boxes[0].Confidence, ShouldEqual, float32(0.9))
		})

		Convey("Box and landmarks are scaled to source pixels", func() {
			So(boxes[0].BBox, ShouldEqual, [4]float32{144, 32, 176, 48})
			So(boxes[0].Landmarks[0], ShouldEqual, [2]float32{160, 40})
			So(boxes[0].Landmarks[1], ShouldEqual, [2]float32{176, 40})
			So(boxes[0].Landmarks[3], ShouldEqual, [2]float32{144, 40})
		})
	})

	Convey("Boxes are clamped to the image", t, func() {
		out := retinaFaceOutputsFor(640, 640)
		out[0][0] = 0.8
		copy(out[3][0:], []float32{5, 5, 2, 2})

		boxes := decodeRetinaFace(out, 640, 640, 640, 640, 0.5)
		So(boxes, ShouldHaveLength, 1)
		So(boxes[0].BBox, ShouldEqual, [4]float32{0, 0, 16, 16})
	})
}

func TestDecodeYOLO(t *testing.T) {
	const anchors = 3
	rows := yoloBoxColumns + len(cocoClasses)
	set := func(out []float32, row, i int, v float32) { out[row*anchors+i] = v }
	dog, person := 16, 0

	Convey("Given a letterboxed 1280x640 source", t, func() {
		lb := newLetterbox(1280, 640, yoloInputSize)
		So(lb.scale, ShouldEqual, float32(0.5))
		So(lb.padX, ShouldEqual, 0)
		So(lb.padY, ShouldEqual, 160)

		out := make([]float32, rows*anchors)
		set(out, 0, 1, 320)
		set(out, 1, 1, 320)
		set(out, 2, 1, 100)
		set(out, 3, 1, 50)
		set(out, yoloBoxColumns+dog, 1, 0.8)
		set(out, yoloBoxColumns+person, 2, 0.1)

		dets := decodeYOLO(out, anchors, 0.25, lb, 1280, 640)

		Convey("The confident anchor maps back to source pixels", func() {
			So(dets, ShouldHaveLength, 1)
			So(dets[0].Class, ShouldEqual, "dog")
			So(dets[0].Score, ShouldEqual, float32(0.8))
			So(dets[0].Box.X, ShouldEqual, 540)
			So(dets[0].Box.Y, ShouldEqual, 270)
			So(dets[0].Box.W, ShouldEqual, 200)
			So(dets[0].Box.H, ShouldEqual, 100)
		})
	})

	Convey("Overlapping boxes of one class collapse, other classes survive", t, func() {
		lb := newLetterbox(640, 640, yoloInputSize)
		out := make([]float32, rows*anchors)
		for i, score := range []float32{0.9, 0.7, 0.6} {
			set(out, 0, i, 100+float32(i))
			set(out, 1, i, 100)
			set(out, 2, i, 40)
			set(out, 3, i, 40)
			class := person
			if i == 2 {
				class = dog
			}
			set(out, yoloBoxColumns+class, i, score)
		}

		dets := decodeYOLO(out, anchors, 0.25, lb, 640, 640)
		So(dets, ShouldHaveLength, 2)
		So(dets[0].Class, ShouldEqual, "person")
		So(dets[0].Score, ShouldEqual, float32(0.9))
		So(dets[1].Class, ShouldEqual, "dog")
	})
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestPreprocess(t *testing.T) {
	Convey("toCHW lays out planar normalised channels", t, func() {
		data := toCHW(solid(2, 2, color.NRGBA{R: 255, A: 255}), 2, 2, yoloNorm)
		So(data, ShouldHaveLength, 12)
		So(data[:4], ShouldResemble, []float32{1, 1, 1, 1})
		So(data[4:], ShouldResemble, make([]float32, 8))
	})

	Convey("ArcFace normalisation centres mid-grey on zero", t, func() {
		data := toCHW(solid(1, 1, color.NRGBA{R: 255, G: 0, B: 255, A: 255}), 1, 1, arcFaceNorm)
		So(data, ShouldResemble, []float32{1, -1, 1})
	})

	Convey("Letterboxing pads the short side with grey", t, func() {
		lb := newLetterbox(200, 100, 64)
		canvas := lb.apply(solid(200, 100, color.NRGBA{R: 255, A: 255}))
		So(canvas.Bounds().Dx(), ShouldEqual, 64)
		So(canvas.Bounds().Dy(), ShouldEqual, 64)
		So(canvas.NRGBAAt(32, 0), ShouldResemble, letterboxFill)
		So(canvas.NRGBAAt(32, 32).R, ShouldEqual, 255)
	})

	Convey("cropFace pads by ten percent and clips to the image", t, func() {
		img := solid(100, 100, color.NRGBA{G: 255, A: 255})
		crop := cropFace(img, [4]float32{40, 40, 60, 60})
		So(crop, ShouldNotBeNil)
		So(crop.Bounds().Dx(), ShouldEqual, 24)
		So(crop.Bounds().Dy(), ShouldEqual, 24)

		edge := cropFace(img, [4]float32{-10, -10, 10, 10})
		So(edge.Bounds().Dx(), ShouldEqual, 11)

		So(cropFace(img, [4]float32{200, 200, 220, 220}), ShouldBeNil)
	})

	Convey("normalize yields a unit vector", t, func() {
		v := []float32{3, 4}
		So(normalize(v), ShouldBeTrue)
		So(v[0], ShouldAlmostEqual, 0.6, 1e-6)
		So(v[1], ShouldAlmostEqual, 0.8, 1e-6)

		zero := []float32{0, 0}
		So(normalize(zero), ShouldBeFalse)
		So(zero, ShouldResemble, []float32{0, 0})
	})
}

func TestBackends(t *testing.T) {
	Convey("Disabled backends refuse every call", t, func() {
		b, err := New(config.VisionConfig{Backend: "disabled"})
		So(err, ShouldBeNil)
		buf := imaging.NewPixelBuffer(solid(4, 4, color.NRGBA{A: 255}))

		_, err = b.Faces.Detect(context.Background(), buf)
		So(err, ShouldEqual, ErrDisabled)
		_, err = b.Objects.Detect(context.Background(), buf)
		So(err, ShouldEqual, ErrDisabled)
		b.Close()
	})

	Convey("Unknown backends are rejected", t, func() {
		_, err := New(config.VisionConfig{Backend: "tensorrt"})
		So(err, ShouldNotBeNil)
	})

	Convey("ONNX backends load nothing until used", t, func() {
		b, err := New(config.VisionConfig{Backend: "onnx", ModelsDir: "/models", FaceModel: "det_10g.onnx"})
		So(err, ShouldBeNil)
		So(b.Faces, ShouldNotBeNil)
		So(b.Objects, ShouldNotBeNil)
		So(func() { b.Close() }, ShouldNotPanic)
	})

	Convey("A cancelled context short-circuits inference", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		buf := imaging.NewPixelBuffer(solid(4, 4, color.NRGBA{A: 255}))

		_, err := NewFaceBackend(Options{}).Detect(ctx, buf)
		So(err, ShouldEqual, context.Canceled)
		_, err = NewObjectBackend(Options{}).Detect(ctx, buf)
		So(err, ShouldEqual, context.Canceled)
	})

	Convey("Model paths resolve against the models directory", t, func() {
		So(Options{ModelsDir: "/models"}.modelPath("yolov8n.onnx"), ShouldEqual, filepath.Join("/models", "yolov8n.onnx"))
		So(Options{ModelsDir: "/models"}.modelPath("/abs/m.onnx"), ShouldEqual, "/abs/m.onnx")
		So(Options{}.modelPath("m.onnx"), ShouldEqual, "m.onnx")
	})
}
