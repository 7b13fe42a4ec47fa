package imaging

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func solid(w, h int, c color.NRGBA) *PixelBuffer {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return NewPixelBuffer(img)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 30, 20))
	buf, err := Decode(encodePNG(t, src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Width != 30 || buf.Height != 20 || buf.Channels != 4 {
		t.Errorf("got %dx%d/%d, want 30x20/4", buf.Width, buf.Height, buf.Channels)
	}

	if _, err := Decode(nil); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("Decode(nil) = %v, want ErrEmptyImage", err)
	}
	if _, err := Decode([]byte("not an image")); err == nil {
		t.Error("Decode(garbage) succeeded")
	}
}

func TestNewPixelBufferRebasesOrigin(t *testing.T) {
	img := image.NewNRGBA(image.Rect(5, 5, 15, 10))
	img.Set(5, 5, color.NRGBA{R: 200, A: 255})

	buf := NewPixelBuffer(img)
	if b := buf.Image().Bounds(); b.Min != (image.Point{}) {
		t.Fatalf("bounds = %v, want origin at 0,0", b)
	}
	if r, _, _ := buf.RGB(0, 0); r != 200 {
		t.Errorf("RGB(0,0).R = %d, want 200", r)
	}
}

func TestResize(t *testing.T) {
	src := solid(400, 200, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	tests := []struct {
		name  string
		w, h  int
		fit   Fit
		wantW int
		wantH int
	}{
		{"cover crops to target", 100, 100, FitCover, 100, 100},
		{"fill distorts to target", 32, 32, FitFill, 32, 32},
		{"inside keeps aspect", 100, 100, FitInside, 100, 50},
		{"inside never upscales", 1000, 1000, FitInside, 400, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resize(src, tt.w, tt.h, tt.fit)
			if err != nil {
				t.Fatal(err)
			}
			if got.Width != tt.wantW || got.Height != tt.wantH {
				t.Errorf("got %dx%d, want %dx%d", got.Width, got.Height, tt.wantW, tt.wantH)
			}
		})
	}

	if _, err := Resize(src, 0, 10, FitFill); err == nil {
		t.Error("zero width accepted")
	}
	if _, err := Resize(src, 10, 10, Fit("stretch")); err == nil {
		t.Error("unknown fit accepted")
	}
}

func TestGrayscale(t *testing.T) {
	gray := Grayscale(solid(4, 4, color.NRGBA{R: 255, A: 255}))
	if gray.Channels != 1 {
		t.Fatalf("channels = %d, want 1", gray.Channels)
	}
	// 0.299 * 255
	if got := gray.Luma(1, 1); got != 76 {
		t.Errorf("luma = %v, want 76", got)
	}
	if Grayscale(gray) != gray {
		t.Error("grayscale of a gray buffer should be a no-op")
	}
}

func TestEncode(t *testing.T) {
	src := solid(16, 8, color.NRGBA{R: 90, G: 160, B: 40, A: 255})

	for _, format := range []Format{FormatJPEG, FormatPNG} {
		data, err := Encode(src, format, 80)
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		back, err := Decode(data)
		if err != nil {
			t.Fatalf("%s: decode: %v", format, err)
		}
		if back.Width != 16 || back.Height != 8 {
			t.Errorf("%s: got %dx%d", format, back.Width, back.Height)
		}
	}

	if _, err := Encode(src, Format("gif"), 80); err == nil {
		t.Error("unsupported format accepted")
	}
}

func TestThumbnail(t *testing.T) {
	data, err := Thumbnail(solid(640, 480, color.NRGBA{R: 200, G: 100, B: 50, A: 255}), ThumbnailOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
		t.Error("thumbnail is not a JPEG")
	}
	buf, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Width != DefaultThumbnailSize || buf.Height != DefaultThumbnailSize {
		t.Errorf("got %dx%d, want %dx%d", buf.Width, buf.Height, DefaultThumbnailSize, DefaultThumbnailSize)
	}

	if got := ThumbnailKey("owner-1", "file-9"); got != "thumbnails/owner-1/file-9.jpg" {
		t.Errorf("ThumbnailKey = %q", got)
	}
}

func TestIsVideo(t *testing.T) {
	tests := map[string]bool{
		"video/mp4":       true,
		"Video/QuickTime": true,
		"image/jpeg":      false,
		"":                false,
	}
	for mime, want := range tests {
		if got := IsVideo(mime); got != want {
			t.Errorf("IsVideo(%q) = %v, want %v", mime, got, want)
		}
	}
}

func TestReadJPEGFrame(t *testing.T) {
	frame := []byte{0xFF, 0xD8, 0x01, 0xFF, 0x00, 0x02, 0xFF, 0xD9}

	tests := []struct {
		name    string
		input   []byte
		want    []byte
		wantErr bool
	}{
		{"bare frame", frame, frame, false},
		{"leading noise", append([]byte{0x00, 0xFF, 0x10}, frame...), frame, false},
		{"first of two", append(append([]byte{}, frame...), frame...), frame, false},
		{"no frame", []byte{0x01, 0x02, 0x03}, nil, true},
		{"truncated", frame[:5], nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readJPEGFrame(bufio.NewReader(bytes.NewReader(tt.input)))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("got %x, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got %x, want %x", got, tt.want)
			}
		})
	}
}

func TestKeyframeExtractorMissingBinary(t *testing.T) {
	k := &KeyframeExtractor{Binary: "/nonexistent/ffmpeg"}
	_, err := k.Extract(context.Background(), []byte("video"))
	if err == nil || !strings.Contains(err.Error(), "start ffmpeg") {
		t.Errorf("err = %v, want start failure", err)
	}
}
