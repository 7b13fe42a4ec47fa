package imaging

import "fmt"

const (
	DefaultThumbnailSize    = 400
	DefaultThumbnailQuality = 80
	ThumbnailContentType    = "image/jpeg"
)

// ThumbnailOptions controls thumbnail generation.
type ThumbnailOptions struct {
	Size    int
	Quality int
}

// Thumbnail renders a square cover-cropped JPEG.
func Thumbnail(buf *PixelBuffer, opts ThumbnailOptions) ([]byte, error) {
	if opts.Size <= 0 {
		opts.Size = DefaultThumbnailSize
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultThumbnailQuality
	}

	resized, err := Resize(buf, opts.Size, opts.Size, FitCover)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: %w", err)
	}
	data, err := Encode(resized, FormatJPEG, opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: %w", err)
	}
	return data, nil
}

// ThumbnailKey derives the blob key a thumbnail is stored under.
func ThumbnailKey(ownerID, fileID string) string {
	return fmt.Sprintf("thumbnails/%s/%s.jpg", ownerID, fileID)
}
