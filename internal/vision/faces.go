package vision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/pixelmind/internal/imaging"
	"github.com/your-org/pixelmind/internal/models"
)

// FaceBackend finds faces with RetinaFace and embeds each crop with ArcFace.
type FaceBackend struct {
	detector lazy[*Detector]
	embedder lazy[*Embedder]
}

// NewFaceBackend returns a backend whose models load on the first Detect.
func NewFaceBackend(opts Options) *FaceBackend {
	b := &FaceBackend{}
	b.detector.load = func() (*Detector, error) {
		so, err := opts.session()
		if err != nil {
			return nil, err
		}
		defer so.Destroy()
		d, err := NewDetector(opts.modelPath(opts.FaceModel), float32(opts.FaceThreshold), so)
		if err != nil {
			return nil, fmt.Errorf("load face detector: %w", err)
		}
		slog.Info("face detector loaded", "model", opts.FaceModel)
		return d, nil
	}
	b.embedder.load = func() (*Embedder, error) {
		so, err := opts.session()
		if err != nil {
			return nil, err
		}
		defer so.Destroy()
		e, err := NewEmbedder(opts.modelPath(opts.EmbeddingModel), so)
		if err != nil {
			return nil, fmt.Errorf("load face embedder: %w", err)
		}
		slog.Info("face embedder loaded", "model", opts.EmbeddingModel, "dim", e.Dim())
		return e, nil
	}
	return b
}

// Detect returns every face in img with a 512-d embedding. A face whose crop
// cannot be embedded is returned without one.
func (b *FaceBackend) Detect(ctx context.Context, img *imaging.PixelBuffer) ([]models.FaceObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	det, err := b.detector.get()
	if err != nil {
		return nil, err
	}
	emb, err := b.embedder.get()
	if err != nil {
		return nil, err
	}

	src := img.Image()
	dw, dh := det.InputSize()
	boxes, err := det.Detect(toCHW(src, dw, dh, retinaFaceNorm), img.Width, img.Height)
	if err != nil {
		return nil, err
	}

	out := make([]models.FaceObservation, 0, len(boxes))
	for _, fb := range boxes {
		obs := models.FaceObservation{
			BoundingBox: models.BoundingBox{
				X: int(fb.BBox[0]),
				Y: int(fb.BBox[1]),
				W: int(fb.BBox[2] - fb.BBox[0]),
				H: int(fb.BBox[3] - fb.BBox[1]),
			},
			Confidence: fb.Confidence,
			Landmarks:  fb.Landmarks[:],
		}
		if obs.BoundingBox.W <= 0 || obs.BoundingBox.H <= 0 {
			continue
		}

		if crop := cropFace(src, fb.BBox); crop != nil {
			vec, err := emb.Embed(crop)
			if err != nil {
				slog.Warn("face embedding failed", "box", obs.BoundingBox, "error", err)
			} else {
				obs.Embedding = vec
			}
		}
		out = append(out, obs)
	}
	return out, nil
}

// Close releases whichever models were loaded.
func (b *FaceBackend) Close() {
	if d, ok := b.detector.loaded(); ok {
		d.Close()
	}
	if e, ok := b.embedder.loaded(); ok {
		e.Close()
	}
}
