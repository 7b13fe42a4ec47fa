package vision

import (
	"fmt"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// faceBox is a raw RetinaFace detection in source-pixel coordinates.
type faceBox struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
	Landmarks  [5][2]float32 // eyes, nose, mouth corners
}

// Detector runs RetinaFace (det_10g) face detection.
type Detector struct {
	mu            sync.Mutex
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputW        int
	inputH        int
}

var strides = []int{8, 16, 32}

const (
	anchorsPerStride = 2
	faceNMSIoU       = 0.4
)

// det_10g output tensors, grouped scores, boxes, landmarks, each at stride
// 8, 16, 32. Shapes have no batch dimension: N = (640/stride)^2 * 2.
var retinaFaceOutputs = []struct {
	name  string
	shape ort.Shape
}{
	{"448", ort.NewShape(12800, 1)},
	{"471", ort.NewShape(3200, 1)},
	{"494", ort.NewShape(800, 1)},
	{"451", ort.NewShape(12800, 4)},
	{"474", ort.NewShape(3200, 4)},
	{"497", ort.NewShape(800, 4)},
	{"454", ort.NewShape(12800, 10)},
	{"477", ort.NewShape(3200, 10)},
	{"500", ort.NewShape(800, 10)},
}

// NewDetector loads the RetinaFace ONNX model.
// opts may be nil (ORT defaults) or a pre-configured *ort.SessionOptions.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	inputW, inputH := 640, 640

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputNames := make([]string, len(retinaFaceOutputs))
	outputTensors := make([]*ort.Tensor[float32], len(retinaFaceOutputs))
	outputValues := make([]ort.Value, len(retinaFaceOutputs))
	for i, o := range retinaFaceOutputs {
		t, err := ort.NewEmptyTensor[float32](o.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %d (%s): %w", i, o.name, err)
		}
		outputNames[i] = o.name
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &Detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		threshold:     threshold,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// Detect runs face detection on a preprocessed image.
// imgData is CHW [3, inputH, inputW]; origW/origH are the source dimensions.
func (d *Detector) Detect(imgData []float32, origW, origH int) ([]faceBox, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	copy(d.inputTensor.GetData(), imgData)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	outputs := make([][]float32, len(d.outputTensors))
	for i, t := range d.outputTensors {
		outputs[i] = t.GetData()
	}
	boxes := decodeRetinaFace(outputs, d.inputW, d.inputH, origW, origH, d.threshold)
	return nms(boxes, faceNMSIoU, func(f faceBox) ([4]float32, float32) { return f.BBox, f.Confidence }), nil
}

// decodeRetinaFace turns anchor-relative outputs into source-space boxes.
// outputs holds scores, boxes and landmarks for each stride, in that order.
func decodeRetinaFace(outputs [][]float32, inputW, inputH, origW, origH int, threshold float32) []faceBox {
	var boxes []faceBox

	scaleW := float32(origW) / float32(inputW)
	scaleH := float32(origH) / float32(inputH)

	for si, stride := range strides {
		scores := outputs[si]
		bboxes := outputs[si+len(strides)]
		landmarks := outputs[si+2*len(strides)]

		fmW := inputW / stride
		fmH := inputH / stride
		st := float32(stride)

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if idx >= len(scores) {
						break
					}
					score := scores[idx]
					if score >= threshold {
						anchorX := float32(cx) * st
						anchorY := float32(cy) * st

						x1 := clampF((anchorX-bboxes[idx*4+0]*st)*scaleW, 0, float32(origW))
						y1 := clampF((anchorY-bboxes[idx*4+1]*st)*scaleH, 0, float32(origH))
						x2 := clampF((anchorX+bboxes[idx*4+2]*st)*scaleW, 0, float32(origW))
						y2 := clampF((anchorY+bboxes[idx*4+3]*st)*scaleH, 0, float32(origH))

						var lm [5][2]float32
						for li := 0; li < 5; li++ {
							lm[li][0] = (anchorX + landmarks[idx*10+li*2]*st) * scaleW
							lm[li][1] = (anchorY + landmarks[idx*10+li*2+1]*st) * scaleH
						}

						boxes = append(boxes, faceBox{
							BBox:       [4]float32{x1, y1, x2, y2},
							Confidence: score,
							Landmarks:  lm,
						})
					}
					idx++
				}
			}
		}
	}
	return boxes
}

// InputSize returns the model's expected input dimensions.
func (d *Detector) InputSize() (int, int) {
	return d.inputW, d.inputH
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms performs greedy Non-Maximum Suppression, highest score first.
func nms[T any](items []T, iouThreshold float32, key func(T) ([4]float32, float32)) []T {
	if len(items) == 0 {
		return items
	}

	sort.SliceStable(items, func(i, j int) bool {
		_, si := key(items[i])
		_, sj := key(items[j])
		return si > sj
	})

	keep := make([]bool, len(items))
	for i := range keep {
		keep[i] = true
	}
	for i := range items {
		if !keep[i] {
			continue
		}
		bi, _ := key(items[i])
		for j := i + 1; j < len(items); j++ {
			if !keep[j] {
				continue
			}
			bj, _ := key(items[j])
			if iou(bi, bj) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []T
	for i, it := range items {
		if keep[i] {
			result = append(result, it)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])

	intersection := max(0, x2-x1) * max(0, y2-y1)

	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampF(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
