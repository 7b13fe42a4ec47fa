package vision

import (
	"context"
	"fmt"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/pixelmind/internal/config"
	"github.com/your-org/pixelmind/internal/faces"
	"github.com/your-org/pixelmind/internal/imaging"
	"github.com/your-org/pixelmind/internal/labels"
	"github.com/your-org/pixelmind/internal/models"
)

// Options locate the model files and tune the ONNX sessions.
type Options struct {
	LibraryPath     string
	ModelsDir       string
	FaceModel       string
	EmbeddingModel  string
	ObjectModel     string
	FaceThreshold   float64
	ObjectThreshold float64
	IntraOpThreads  int
}

func OptionsFromConfig(cfg config.VisionConfig) Options {
	return Options{
		LibraryPath:     cfg.ORTLibraryPath,
		ModelsDir:       cfg.ModelsDir,
		FaceModel:       cfg.FaceModel,
		EmbeddingModel:  cfg.EmbeddingModel,
		ObjectModel:     cfg.ObjectModel,
		FaceThreshold:   cfg.DetectionThreshold,
		ObjectThreshold: cfg.ObjectThreshold,
		IntraOpThreads:  cfg.IntraOpThreads,
	}
}

func (o Options) modelPath(name string) string {
	if o.ModelsDir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.ModelsDir, name)
}

// session initialises the runtime if needed and returns fresh session options.
// Callers destroy the options once the session is created.
func (o Options) session() (*ort.SessionOptions, error) {
	if err := initEnvironment(o.LibraryPath); err != nil {
		return nil, err
	}
	return sessionOptions(o.IntraOpThreads)
}

// Backends are the model implementations handed to the processing pipeline.
type Backends struct {
	Faces   faces.FaceEmbedder
	Objects labels.ObjectDetector
	closers []func()
}

// New builds the backends named by cfg.Backend. Nothing is loaded until the
// first inference call.
func New(cfg config.VisionConfig) (*Backends, error) {
	switch cfg.Backend {
	case "onnx":
		opts := OptionsFromConfig(cfg)
		fb := NewFaceBackend(opts)
		ob := NewObjectBackend(opts)
		return &Backends{
			Faces:   fb,
			Objects: ob,
			closers: []func(){fb.Close, ob.Close},
		}, nil
	case "disabled":
		return Disabled(), nil
	default:
		return nil, fmt.Errorf("unknown vision backend %q", cfg.Backend)
	}
}

// Disabled returns backends that fail every call with ErrDisabled.
func Disabled() *Backends {
	return &Backends{Faces: disabledFaces{}, Objects: disabledObjects{}}
}

// Close releases loaded models. The ONNX environment is left to Shutdown.
func (b *Backends) Close() {
	for _, c := range b.closers {
		c()
	}
}

type disabledFaces struct{}

func (disabledFaces) Detect(context.Context, *imaging.PixelBuffer) ([]models.FaceObservation, error) {
	return nil, ErrDisabled
}

type disabledObjects struct{}

func (disabledObjects) Detect(context.Context, *imaging.PixelBuffer) ([]labels.Detection, error) {
	return nil, ErrDisabled
}
