// Package quality assigns a heuristic 0-100 score from resolution, contrast
// and exposure of decoded pixels.
package quality

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/your-org/pixelmind/internal/imaging"
)

const (
	// DefaultScore is returned when scoring cannot complete.
	DefaultScore = 50

	minScore = 0
	maxScore = 100
)

type tier struct {
	above float64
	bonus int
}

// Resolution tiers in pixels, checked top to bottom.
var resolutionTiers = []tier{
	{8_300_000, 20},
	{2_070_000, 15},
	{920_000, 10},
	{300_000, 5},
}

// Mean per-channel standard deviation, strictly greater than.
var sharpnessTiers = []tier{
	{60, 15},
	{40, 10},
	{20, 5},
}

// Stats are the per-channel aggregates the score is derived from.
type Stats struct {
	Pixels     int
	Mean       [3]float64
	StdDev     [3]float64
	Brightness float64
	Sharpness  float64
}

// Score returns a value in [0, 100]. Any internal failure yields DefaultScore.
func Score(buf *imaging.PixelBuffer) (score int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("quality scoring panic", "panic", fmt.Sprint(r))
			score = DefaultScore
		}
	}()

	if buf == nil || buf.Width <= 0 || buf.Height <= 0 {
		return DefaultScore
	}
	return FromStats(Measure(buf))
}

// FromStats applies the additive scoring rules to precomputed statistics.
func FromStats(s Stats) int {
	score := 50

	for _, t := range resolutionTiers {
		if float64(s.Pixels) >= t.above {
			score += t.bonus
			break
		}
	}

	for _, t := range sharpnessTiers {
		if s.Sharpness > t.above {
			score += t.bonus
			break
		}
	}

	switch {
	case s.Brightness > 40 && s.Brightness < 220:
		score += 10
	case s.Brightness > 20 && s.Brightness < 240:
		score += 5
	}

	return clamp(score)
}

// Measure computes per-channel mean and standard deviation in one pass.
func Measure(buf *imaging.PixelBuffer) Stats {
	n := float64(buf.Width * buf.Height)
	var sum, sumSq [3]float64

	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			r, g, b := buf.RGB(x, y)
			for i, v := range [3]float64{float64(r), float64(g), float64(b)} {
				sum[i] += v
				sumSq[i] += v * v
			}
		}
	}

	s := Stats{Pixels: buf.Width * buf.Height}
	for i := 0; i < 3; i++ {
		s.Mean[i] = sum[i] / n
		variance := sumSq[i]/n - s.Mean[i]*s.Mean[i]
		if variance < 0 {
			variance = 0
		}
		s.StdDev[i] = math.Sqrt(variance)
	}
	s.Brightness = (s.Mean[0] + s.Mean[1] + s.Mean[2]) / 3
	s.Sharpness = (s.StdDev[0] + s.StdDev[1] + s.StdDev[2]) / 3
	return s
}

func clamp(v int) int {
	return max(minScore, min(maxScore, v))
}
