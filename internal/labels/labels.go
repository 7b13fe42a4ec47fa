// Package labels turns raw object detections into searchable labels and a
// scene classification.
package labels

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/your-org/pixelmind/internal/imaging"
	"github.com/your-org/pixelmind/internal/models"
)

const (
	DefaultMinConfidence = 0.5
	DefaultMaxLabels     = 20
)

var ErrNoDetector = errors.New("object detector not configured")

// Detection is a single object found by a detector backend.
type Detection struct {
	Class string
	Score float32
	Box   models.BoundingBox
}

// ObjectDetector is a pluggable detection backend.
type ObjectDetector interface {
	Detect(ctx context.Context, img *imaging.PixelBuffer) ([]Detection, error)
}

// Result is the labeling outcome for one image.
type Result struct {
	Labels      []string
	SceneType   string
	PersonCount int
}

// Labeler runs a detector and expands its output.
type Labeler struct {
	detector      ObjectDetector
	minConfidence float32
	maxLabels     int
}

func NewLabeler(detector ObjectDetector) *Labeler {
	return &Labeler{
		detector:      detector,
		minConfidence: DefaultMinConfidence,
		maxLabels:     DefaultMaxLabels,
	}
}

// Label detects objects in img and returns labels plus scene type.
func (l *Labeler) Label(ctx context.Context, img *imaging.PixelBuffer) (Result, error) {
	if l.detector == nil {
		return Result{}, ErrNoDetector
	}
	dets, err := l.detector.Detect(ctx, img)
	if err != nil {
		return Result{}, fmt.Errorf("detect objects: %w", err)
	}
	return l.Expand(dets), nil
}

// Expand keeps confident classes, adds contextual labels and classifies the scene.
func (l *Labeler) Expand(dets []Detection) Result {
	var raw []string
	seen := make(map[string]bool)
	people := 0

	for _, d := range dets {
		if d.Score <= l.minConfidence {
			continue
		}
		class := strings.ToLower(strings.TrimSpace(d.Class))
		if class == "" {
			continue
		}
		if class == "person" {
			people++
		}
		if !seen[class] {
			seen[class] = true
			raw = append(raw, class)
		}
	}

	all := make([]string, 0, len(raw)*2)
	all = append(all, raw...)
	for _, class := range raw {
		for _, extra := range contextRules[class] {
			if !seen[extra] {
				seen[extra] = true
				all = append(all, extra)
			}
		}
	}

	if len(all) > l.maxLabels {
		all = all[:l.maxLabels]
	}

	return Result{
		Labels:      all,
		SceneType:   ClassifyScene(all, people),
		PersonCount: people,
	}
}

// ClassifyScene evaluates the scene table over labels. people is the number of
// confident person detections, which a deduplicated label set cannot carry.
func ClassifyScene(labels []string, people int) string {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}

	for _, rule := range sceneRules {
		if rule.match != nil {
			if rule.match(set, people) {
				return rule.scene
			}
			continue
		}
		for _, term := range rule.terms {
			if set[term] {
				return rule.scene
			}
		}
	}
	return SceneGeneral
}
