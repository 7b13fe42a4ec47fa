package phash

import (
	"errors"
	"image"
	"math"
	"strings"
	"testing"

	"github.com/your-org/pixelmind/internal/imaging"
)

// cosineImage renders a grayscale image whose low-frequency content is a fixed
// mix of 63 DCT basis functions. Amplitude order is controlled by perm, so two
// different permutations produce structurally unrelated images.
func cosineImage(w, h int, perm func(k int) int) *imaging.PixelBuffer {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := (float64(x) + 0.5) / float64(w)
			t := (float64(y) + 0.5) / float64(h)
			v := 128.0
			k := 0
			for u := 0; u < 8; u++ {
				for vv := 0; vv < 8; vv++ {
					if u == 0 && vv == 0 {
						continue
					}
					amp := float64(perm(k)-31) * 0.06
					v += amp * math.Cos(math.Pi*float64(vv)*s) * math.Cos(math.Pi*float64(u)*t)
					k++
				}
			}
			img.Pix[y*img.Stride+x] = uint8(math.Max(0, math.Min(255, math.Round(v))))
		}
	}
	return imaging.NewPixelBuffer(img)
}

func identity(k int) int { return k }

func scrambled(k int) int { return (29*k + 5) % 63 }

func horizontalRamp(w, h int, rising bool) *imaging.PixelBuffer {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := x * 255 / (w - 1)
			if !rising {
				v = 255 - v
			}
			img.Pix[y*img.Stride+x] = uint8(v)
		}
	}
	return imaging.NewPixelBuffer(img)
}

func mustHash(t *testing.T, fn func(*imaging.PixelBuffer) (Hash, error), buf *imaging.PixelBuffer) Hash {
	t.Helper()
	h, err := fn(buf)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h
}

func TestHashesAreSixtyFourBits(t *testing.T) {
	inputs := map[string]*imaging.PixelBuffer{
		"cosine": cosineImage(128, 96, identity),
		"ramp":   horizontalRamp(200, 50, true),
		"tiny":   imaging.NewPixelBuffer(image.NewGray(image.Rect(0, 0, 1, 1))),
	}
	fns := map[string]func(*imaging.PixelBuffer) (Hash, error){
		"phash": PHash,
		"ahash": AHash,
		"dhash": DHash,
	}

	for inName, buf := range inputs {
		for fnName, fn := range fns {
			h := mustHash(t, fn, buf)
			if !Valid(h) {
				t.Errorf("%s(%s) = %q; want 64 chars of 0/1", fnName, inName, h)
			}
		}
	}
}

func TestPHashResizeStability(t *testing.T) {
	orig := cosineImage(200, 200, identity)
	base := mustHash(t, PHash, orig)

	for _, size := range []int{100, 140, 260, 300} {
		resized, err := imaging.Resize(orig, size, size, imaging.FitFill)
		if err != nil {
			t.Fatal(err)
		}
		h := mustHash(t, PHash, resized)
		dist, err := Hamming(base, h)
		if err != nil {
			t.Fatal(err)
		}
		if dist > GroupingThreshold {
			t.Errorf("size %d: distance %d exceeds %d", size, dist, GroupingThreshold)
		}
	}
}

func TestPHashUnrelatedImages(t *testing.T) {
	a := mustHash(t, PHash, cosineImage(200, 200, identity))
	b := mustHash(t, PHash, cosineImage(200, 200, scrambled))

	dist, err := Hamming(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if dist <= GroupingThreshold {
		t.Errorf("distance %d; want > %d for unrelated images", dist, GroupingThreshold)
	}
}

func TestPHashLeadingPadBit(t *testing.T) {
	h := mustHash(t, PHash, cosineImage(64, 64, identity))
	if h[0] != '0' {
		t.Errorf("first bit = %c; want padding 0", h[0])
	}
}

func TestDHashGradientDirection(t *testing.T) {
	rising := mustHash(t, DHash, horizontalRamp(288, 64, true))
	falling := mustHash(t, DHash, horizontalRamp(288, 64, false))

	if rising != Hash(strings.Repeat("0", 64)) {
		t.Errorf("rising ramp dhash = %s; want all zeros", rising)
	}
	if falling != Hash(strings.Repeat("1", 64)) {
		t.Errorf("falling ramp dhash = %s; want all ones", falling)
	}
}

func TestAHashHalves(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 32; x < 64; x++ {
			img.Pix[y*img.Stride+x] = 255
		}
	}
	h := mustHash(t, AHash, imaging.NewPixelBuffer(img))

	want := Hash(strings.Repeat("00001111", 8))
	if h != want {
		t.Errorf("ahash = %s; want %s", h, want)
	}
}

func TestHamming(t *testing.T) {
	h := Hash("1010" + strings.Repeat("0", 60))
	g := Hash("0110" + strings.Repeat("0", 60))

	tests := []struct {
		name string
		a, b Hash
		want int
	}{
		{"identity", h, h, 0},
		{"two bits", h, g, 2},
		{"symmetric", g, h, 2},
		{"all bits", Hash(strings.Repeat("0", 64)), Hash(strings.Repeat("1", 64)), 64},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Hamming(tc.a, tc.b)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("Hamming = %d; want %d", got, tc.want)
			}
		})
	}

	if _, err := Hamming("0101", "010"); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestSimilarity(t *testing.T) {
	a := Hash(strings.Repeat("0", 64))
	b := Hash(strings.Repeat("1", 16) + strings.Repeat("0", 48))

	got, err := Similarity(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if got != 75 {
		t.Errorf("Similarity = %v; want 75", got)
	}
}

func TestCompareFusedThreshold(t *testing.T) {
	zero := Hash(strings.Repeat("0", 64))
	flip := func(n int) Hash {
		return Hash(strings.Repeat("1", n) + strings.Repeat("0", 64-n))
	}
	base := Set{PHash: zero, AHash: zero, DHash: zero}

	near, err := Compare(base, Set{PHash: flip(4), AHash: flip(6), DHash: flip(8)})
	if err != nil {
		t.Fatal(err)
	}
	if !near.IsDuplicate || near.PHashDistance != 4 {
		t.Errorf("near = %+v; want duplicate with phash distance 4", near)
	}

	far, err := Compare(base, Set{PHash: flip(4), AHash: flip(6), DHash: flip(20)})
	if err != nil {
		t.Fatal(err)
	}
	if far.IsDuplicate {
		t.Errorf("far = %+v; average %.2f should be below %v", far, far.Average, FusedDuplicateThreshold)
	}

	if _, err := Compare(base, Set{PHash: zero, AHash: "01", DHash: zero}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestGroupDuplicates(t *testing.T) {
	h := Hash(strings.Repeat("0", 64))
	oneBit := Hash("1" + strings.Repeat("0", 63))
	unrelated := Hash(strings.Repeat("1", 64))

	groups := GroupDuplicates([]Item{{"X", h}, {"Y", oneBit}, {"Z", unrelated}}, GroupingThreshold)
	if len(groups) != 1 {
		t.Fatalf("groups = %+v; want exactly one", groups)
	}
	if groups[0].Anchor != "X" || strings.Join(groups[0].Members, ",") != "X,Y" {
		t.Errorf("group = %+v; want anchor X with members X,Y", groups[0])
	}
}

func TestGroupDuplicatesIsOrderDependent(t *testing.T) {
	a := Hash(strings.Repeat("0", 64))
	b := Hash(strings.Repeat("1", 8) + strings.Repeat("0", 56))
	c := Hash(strings.Repeat("1", 16) + strings.Repeat("0", 48))

	// a-b = 8, b-c = 8, a-c = 16
	groups := GroupDuplicates([]Item{{"A", a}, {"B", b}, {"C", c}}, GroupingThreshold)
	if len(groups) != 1 || strings.Join(groups[0].Members, ",") != "A,B" {
		t.Errorf("A-first groups = %+v; want [A,B] with C left out", groups)
	}

	groups = GroupDuplicates([]Item{{"B", b}, {"A", a}, {"C", c}}, GroupingThreshold)
	if len(groups) != 1 || strings.Join(groups[0].Members, ",") != "B,A,C" {
		t.Errorf("B-first groups = %+v; want [B,A,C]", groups)
	}
}

func TestGroupDuplicatesSkipsMismatchedLengths(t *testing.T) {
	groups := GroupDuplicates([]Item{{"A", "0000"}, {"B", "00000"}}, GroupingThreshold)
	if len(groups) != 0 {
		t.Errorf("groups = %+v; want none", groups)
	}
}
