// Package faces detects faces and clusters their embeddings into per-owner
// person identities.
package faces

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/your-org/pixelmind/internal/imaging"
	"github.com/your-org/pixelmind/internal/models"
	"github.com/your-org/pixelmind/internal/observability"
)

var ErrNoEmbedder = errors.New("face embedder not configured")

// FaceEmbedder is a pluggable backend that finds faces and embeds them.
// Every returned embedding has the same dimensionality.
type FaceEmbedder interface {
	Detect(ctx context.Context, img *imaging.PixelBuffer) ([]models.FaceObservation, error)
}

// Analyzer wraps a FaceEmbedder so detection never fails the caller.
type Analyzer struct {
	embedder FaceEmbedder
}

func NewAnalyzer(embedder FaceEmbedder) *Analyzer {
	return &Analyzer{embedder: embedder}
}

// Detect returns the faces found in img. A backend error yields zero
// observations together with the cause, which callers may log.
func (a *Analyzer) Detect(ctx context.Context, img *imaging.PixelBuffer) ([]models.FaceObservation, error) {
	if a.embedder == nil {
		return nil, ErrNoEmbedder
	}

	start := time.Now()
	obs, err := a.embedder.Detect(ctx, img)
	observability.InferenceDuration.WithLabelValues("faces").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	valid := make([]models.FaceObservation, 0, len(obs))
	for _, o := range obs {
		if len(o.Embedding) == 0 {
			slog.Debug("dropping face without embedding", "box", o.BoundingBox)
			continue
		}
		valid = append(valid, o)
	}
	observability.FacesDetected.Add(float64(len(valid)))
	return valid, nil
}
