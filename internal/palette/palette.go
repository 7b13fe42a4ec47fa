// Package palette extracts dominant colors with a fixed-iteration k-means.
package palette

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/your-org/pixelmind/internal/imaging"
)

const (
	DefaultK          = 5
	DefaultIterations = 10
	sampleEdge        = 100
)

type rgb [3]float64

// Extractor runs k-means over a downscaled copy of the image. K is capped at
// DefaultK.
type Extractor struct {
	K          int
	Iterations int

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an extractor seeded from the clock.
func New() *Extractor {
	return NewWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand returns an extractor with a caller-controlled source, for
// reproducible output.
func NewWithRand(rng *rand.Rand) *Extractor {
	return &Extractor{K: DefaultK, Iterations: DefaultIterations, rng: rng}
}

// Extract returns up to K centroids as lowercase "#rrggbb" strings. It returns
// an empty list on any failure.
func (e *Extractor) Extract(buf *imaging.PixelBuffer) (colors []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("palette extraction panic", "panic", fmt.Sprint(r))
			colors = []string{}
		}
	}()

	if buf == nil {
		return []string{}
	}
	small, err := imaging.Resize(buf, sampleEdge, sampleEdge, imaging.FitInside)
	if err != nil {
		slog.Debug("palette resize", "error", err)
		return []string{}
	}

	pixels := make([]rgb, 0, small.Width*small.Height)
	for y := 0; y < small.Height; y++ {
		for x := 0; x < small.Width; x++ {
			r, g, b := small.RGB(x, y)
			pixels = append(pixels, rgb{float64(r), float64(g), float64(b)})
		}
	}
	if len(pixels) == 0 {
		return []string{}
	}

	centroids := e.kmeans(pixels)

	colors = make([]string, 0, len(centroids))
	for _, c := range centroids {
		colors = append(colors, Hex(c[0], c[1], c[2]))
	}
	return colors
}

func (e *Extractor) kmeans(pixels []rgb) []rgb {
	k := e.K
	if k <= 0 || k > DefaultK {
		k = DefaultK
	}
	if k > len(pixels) {
		k = len(pixels)
	}

	// Initial centroids: the first k pixels of a shuffled ordering.
	e.mu.Lock()
	order := e.rng.Perm(len(pixels))
	e.mu.Unlock()

	centroids := make([]rgb, k)
	for i := 0; i < k; i++ {
		centroids[i] = pixels[order[i]]
	}

	assign := make([]int, len(pixels))
	for iter := 0; iter < e.Iterations; iter++ {
		for i, p := range pixels {
			assign[i] = nearest(p, centroids)
		}

		sums := make([]rgb, k)
		counts := make([]int, k)
		for i, p := range pixels {
			c := assign[i]
			sums[c][0] += p[0]
			sums[c][1] += p[1]
			sums[c][2] += p[2]
			counts[c]++
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			n := float64(counts[c])
			centroids[c] = rgb{sums[c][0] / n, sums[c][1] / n, sums[c][2] / n}
		}
	}
	return centroids
}

func nearest(p rgb, centroids []rgb) int {
	best := 0
	bestDist := -1.0
	for i, c := range centroids {
		dr, dg, db := p[0]-c[0], p[1]-c[1], p[2]-c[2]
		d := dr*dr + dg*dg + db*db
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Hex renders channel values (rounded, clamped to 0..255) as "#rrggbb".
func Hex(r, g, b float64) string {
	return fmt.Sprintf("#%02x%02x%02x", channel(r), channel(g), channel(b))
}

func channel(v float64) uint8 {
	v += 0.5
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
