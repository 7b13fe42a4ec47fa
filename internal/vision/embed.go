package vision

import (
	"fmt"
	"image"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ArcFace (w600k_r50) geometry.
const (
	arcFaceSize   = 112
	arcFaceDim    = 512
	arcFaceInput  = "input.1"
	arcFaceOutput = "683"
)

// Embedder maps an aligned face crop to an identity vector.
type Embedder struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	in      *ort.Tensor[float32]
	out     *ort.Tensor[float32]
}

func NewEmbedder(modelPath string, opts *ort.SessionOptions) (*Embedder, error) {
	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, arcFaceSize, arcFaceSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, arcFaceDim))
	if err != nil {
		in.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{arcFaceInput}, []string{arcFaceOutput},
		[]ort.Value{in}, []ort.Value{out},
		opts,
	)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}
	return &Embedder{session: session, in: in, out: out}, nil
}

// Embed returns the unit-length embedding of face. The crop is stretched to
// the model's square input.
func (e *Embedder) Embed(face image.Image) ([]float32, error) {
	data := toCHW(face, arcFaceSize, arcFaceSize, arcFaceNorm)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.in.GetData(), data)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	vec := make([]float32, arcFaceDim)
	copy(vec, e.out.GetData())
	if !normalize(vec) {
		return nil, fmt.Errorf("embedding has zero norm")
	}
	return vec, nil
}

func (e *Embedder) Dim() int { return arcFaceDim }

func (e *Embedder) Close() {
	e.session.Destroy()
	e.in.Destroy()
	e.out.Destroy()
}

// normalize scales v to unit L2 norm in place. It reports false for a zero
// vector, which is left untouched.
func normalize(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return false
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return true
}
