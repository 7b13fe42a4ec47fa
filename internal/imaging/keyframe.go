package imaging

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const maxKeyframeBytes = 20 * 1024 * 1024

// IsVideo reports whether mimeType names a video container.
func IsVideo(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "video/")
}

// KeyframeExtractor pulls a single representative JPEG frame out of a video
// using an ffmpeg subprocess fed over stdin.
type KeyframeExtractor struct {
	Binary  string
	Timeout time.Duration
}

func NewKeyframeExtractor() *KeyframeExtractor {
	return &KeyframeExtractor{Binary: "ffmpeg", Timeout: 30 * time.Second}
}

// Extract returns the first keyframe of video as JPEG bytes.
func (k *KeyframeExtractor) Extract(ctx context.Context, video []byte) ([]byte, error) {
	if k.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.Timeout)
		defer cancel()
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-skip_frame", "nokey",
		"-i", "pipe:0",
		"-frames:v", "1",
		"-vsync", "vfr",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, k.Binary, args...)
	cmd.Stdin = bytes.NewReader(video)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	frame, readErr := readJPEGFrame(bufio.NewReaderSize(stdout, 512*1024))
	// Drain so ffmpeg can exit cleanly
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if stderr.Len() > 0 {
		slog.Debug("ffmpeg stderr", "output", strings.TrimSpace(stderr.String()))
	}
	if readErr != nil {
		if waitErr != nil {
			return nil, fmt.Errorf("ffmpeg: %w", waitErr)
		}
		return nil, fmt.Errorf("read keyframe: %w", readErr)
	}
	return frame, nil
}

// readJPEGFrame reads one JPEG image (FF D8 ... FF D9) from r.
func readJPEGFrame(r *bufio.Reader) ([]byte, error) {
	if err := findJPEGStart(r); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("no frame produced")
		}
		return nil, err
	}

	data := []byte{0xFF, 0xD8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		if len(data) > maxKeyframeBytes {
			return nil, fmt.Errorf("keyframe too large: %d bytes", len(data))
		}
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}
