// Package phash computes perceptual fingerprints for near-duplicate detection.
//
// Hashes are 64-character strings of '0' and '1'. Three variants are provided:
// PHash (DCT based), AHash (mean based) and DHash (gradient based).
package phash

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/your-org/pixelmind/internal/imaging"
)

// Bits is the fixed fingerprint length.
const Bits = 64

const (
	dctSize   = 32
	lowFreq   = 8
	hashEdge  = 8
	diffWidth = 9
)

var ErrLengthMismatch = errors.New("hash lengths differ")

// Hash is a bit string such as "0110...".
type Hash string

// PHash resizes to 32x32 grayscale, applies a 2-D DCT-II and thresholds the
// 8x8 low-frequency block (DC excluded) against its median. The 63 resulting
// bits are left-padded with a zero to 64.
func PHash(buf *imaging.PixelBuffer) (Hash, error) {
	gray, err := grayMatrix(buf, dctSize, dctSize)
	if err != nil {
		return "", err
	}

	dct := dct2D(gray)

	coeffs := make([]float64, 0, lowFreq*lowFreq-1)
	for u := 0; u < lowFreq; u++ {
		for v := 0; v < lowFreq; v++ {
			if u == 0 && v == 0 {
				continue
			}
			coeffs = append(coeffs, dct[u][v])
		}
	}

	median := computeMedian(coeffs)

	var sb strings.Builder
	sb.Grow(Bits)
	for i := len(coeffs); i < Bits; i++ {
		sb.WriteByte('0')
	}
	for _, c := range coeffs {
		if c > median {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return Hash(sb.String()), nil
}

// AHash resizes to 8x8 grayscale; a bit is set when the pixel exceeds the mean.
func AHash(buf *imaging.PixelBuffer) (Hash, error) {
	gray, err := grayMatrix(buf, hashEdge, hashEdge)
	if err != nil {
		return "", err
	}

	var sum float64
	for y := 0; y < hashEdge; y++ {
		for x := 0; x < hashEdge; x++ {
			sum += gray[y][x]
		}
	}
	mean := sum / float64(hashEdge*hashEdge)

	var sb strings.Builder
	sb.Grow(Bits)
	for y := 0; y < hashEdge; y++ {
		for x := 0; x < hashEdge; x++ {
			if gray[y][x] > mean {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
	}
	return Hash(sb.String()), nil
}

// DHash resizes to 9x8 grayscale; each row yields 8 bits, set when the left
// pixel is brighter than its right neighbour.
func DHash(buf *imaging.PixelBuffer) (Hash, error) {
	gray, err := grayMatrix(buf, diffWidth, hashEdge)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.Grow(Bits)
	for y := 0; y < hashEdge; y++ {
		for x := 0; x < diffWidth-1; x++ {
			if gray[y][x] > gray[y][x+1] {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
	}
	return Hash(sb.String()), nil
}

// Set holds all three fingerprints of one image.
type Set struct {
	PHash Hash `json:"phash"`
	AHash Hash `json:"ahash"`
	DHash Hash `json:"dhash"`
}

// Compute derives every fingerprint from buf.
func Compute(buf *imaging.PixelBuffer) (Set, error) {
	p, err := PHash(buf)
	if err != nil {
		return Set{}, err
	}
	a, err := AHash(buf)
	if err != nil {
		return Set{}, err
	}
	d, err := DHash(buf)
	if err != nil {
		return Set{}, err
	}
	return Set{PHash: p, AHash: a, DHash: d}, nil
}

// Valid reports whether h is a 64-bit string of '0'/'1'.
func Valid(h Hash) bool {
	if len(h) != Bits {
		return false
	}
	for i := 0; i < len(h); i++ {
		if h[i] != '0' && h[i] != '1' {
			return false
		}
	}
	return true
}

// grayMatrix resizes buf to w x h (aspect distortion allowed) and returns
// luma values indexed [y][x].
func grayMatrix(buf *imaging.PixelBuffer, w, h int) ([][]float64, error) {
	resized, err := imaging.Resize(buf, w, h, imaging.FitFill)
	if err != nil {
		return nil, err
	}
	gray := imaging.Grayscale(resized)

	m := make([][]float64, h)
	for y := 0; y < h; y++ {
		m[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			m[y][x] = gray.Luma(x, y)
		}
	}
	return m, nil
}

// dct2D computes a separable orthonormal DCT-II of a square matrix.
func dct2D(in [][]float64) [][]float64 {
	n := len(in)

	cosTable := make([][]float64, n)
	for k := 0; k < n; k++ {
		cosTable[k] = make([]float64, n)
		for i := 0; i < n; i++ {
			cosTable[k][i] = math.Cos(math.Pi * float64(k) * (2*float64(i) + 1) / (2 * float64(n)))
		}
	}
	scale := func(k int) float64 {
		if k == 0 {
			return math.Sqrt(1 / float64(n))
		}
		return math.Sqrt(2 / float64(n))
	}

	// Rows first, then columns.
	rows := make([][]float64, n)
	for y := 0; y < n; y++ {
		rows[y] = make([]float64, n)
		for v := 0; v < n; v++ {
			var sum float64
			for x := 0; x < n; x++ {
				sum += in[y][x] * cosTable[v][x]
			}
			rows[y][v] = sum * scale(v)
		}
	}

	out := make([][]float64, n)
	for u := 0; u < n; u++ {
		out[u] = make([]float64, n)
	}
	for v := 0; v < n; v++ {
		for u := 0; u < n; u++ {
			var sum float64
			for y := 0; y < n; y++ {
				sum += rows[y][v] * cosTable[u][y]
			}
			out[u][v] = sum * scale(u)
		}
	}
	return out
}

func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
