package vision

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/pixelmind/internal/imaging"
	"github.com/your-org/pixelmind/internal/labels"
	"github.com/your-org/pixelmind/internal/models"
)

// YOLOv8 COCO export: images [1,3,640,640] -> output0 [1,84,8400].
const (
	yoloInputSize  = 640
	yoloAnchors    = 8400
	yoloNMSIoU     = 0.45
	yoloBoxColumns = 4
)

var cocoClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat", "traffic light",
	"fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard",
	"tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
	"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard",
	"cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book", "clock", "vase",
	"scissors", "teddy bear", "hair drier", "toothbrush",
}

// yoloModel is a loaded YOLOv8 session.
type yoloModel struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func newYOLOModel(modelPath string, opts *ort.SessionOptions) (*yoloModel, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, yoloInputSize, yoloInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(yoloBoxColumns+len(cocoClasses)), yoloAnchors))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create object session: %w", err)
	}
	return &yoloModel{session: session, inputTensor: inputTensor, outputTensor: outputTensor}, nil
}

// run executes the model and returns a copy of the raw output.
func (m *yoloModel) run(input []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.inputTensor.GetData(), input)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("run object detection: %w", err)
	}
	out := make([]float32, len(m.outputTensor.GetData()))
	copy(out, m.outputTensor.GetData())
	return out, nil
}

func (m *yoloModel) Close() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.inputTensor != nil {
		m.inputTensor.Destroy()
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
	}
}

// ObjectBackend detects the 80 COCO classes with YOLOv8.
type ObjectBackend struct {
	threshold float32
	model     lazy[*yoloModel]
}

func NewObjectBackend(opts Options) *ObjectBackend {
	b := &ObjectBackend{threshold: float32(opts.ObjectThreshold)}
	b.model.load = func() (*yoloModel, error) {
		so, err := opts.session()
		if err != nil {
			return nil, err
		}
		defer so.Destroy()
		m, err := newYOLOModel(opts.modelPath(opts.ObjectModel), so)
		if err != nil {
			return nil, fmt.Errorf("load object detector: %w", err)
		}
		slog.Info("object detector loaded", "model", opts.ObjectModel)
		return m, nil
	}
	return b
}

// Detect returns class detections in source-pixel coordinates.
func (b *ObjectBackend) Detect(ctx context.Context, img *imaging.PixelBuffer) ([]labels.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := b.model.get()
	if err != nil {
		return nil, err
	}

	lb := newLetterbox(img.Width, img.Height, yoloInputSize)
	input := toCHW(lb.apply(img.Image()), yoloInputSize, yoloInputSize, yoloNorm)
	out, err := m.run(input)
	if err != nil {
		return nil, err
	}
	return decodeYOLO(out, yoloAnchors, b.threshold, lb, img.Width, img.Height), nil
}

func (b *ObjectBackend) Close() {
	if m, ok := b.model.loaded(); ok {
		m.Close()
	}
}

type yoloBox struct {
	class int
	score float32
	box   [4]float32
}

// decodeYOLO reads a channel-major [4+classes, anchors] output, keeps the best
// class per anchor above threshold and suppresses overlaps per class.
func decodeYOLO(out []float32, anchors int, threshold float32, lb letterbox, origW, origH int) []labels.Detection {
	at := func(row, i int) float32 { return out[row*anchors+i] }

	perClass := make(map[int][]yoloBox)
	for i := 0; i < anchors; i++ {
		best, bestScore := -1, threshold
		for c := range cocoClasses {
			if (yoloBoxColumns+c+1)*anchors > len(out) {
				break
			}
			if s := at(yoloBoxColumns+c, i); s >= bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 {
			continue
		}

		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		x1, y1 := lb.unmap(cx-w/2, cy-h/2)
		x2, y2 := lb.unmap(cx+w/2, cy+h/2)
		perClass[best] = append(perClass[best], yoloBox{
			class: best,
			score: bestScore,
			box: [4]float32{
				clampF(x1, 0, float32(origW)),
				clampF(y1, 0, float32(origH)),
				clampF(x2, 0, float32(origW)),
				clampF(y2, 0, float32(origH)),
			},
		})
	}

	var dets []labels.Detection
	for c := range cocoClasses {
		boxes, ok := perClass[c]
		if !ok {
			continue
		}
		for _, yb := range nms(boxes, yoloNMSIoU, func(y yoloBox) ([4]float32, float32) { return y.box, y.score }) {
			dets = append(dets, labels.Detection{
				Class: cocoClasses[yb.class],
				Score: yb.score,
				Box: models.BoundingBox{
					X: int(yb.box[0]),
					Y: int(yb.box[1]),
					W: int(yb.box[2] - yb.box[0]),
					H: int(yb.box[3] - yb.box[1]),
				},
			})
		}
	}
	return dets
}
