package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/pixelmind/internal/models"
	"github.com/your-org/pixelmind/internal/storage"
	"github.com/your-org/pixelmind/pkg/dto"
)

const timeLayout = "2006-01-02T15:04:05Z"

// AssetStore is the asset registry the handlers read and write.
type AssetStore interface {
	CreateAsset(ctx context.Context, a *models.MediaAsset) error
	GetAsset(ctx context.Context, id string) (*models.MediaAsset, error)
	ListAssets(ctx context.Context, ownerID string, limit, offset int) ([]models.MediaAsset, int, error)
	UpdateAsset(ctx context.Context, id string, u models.AssetUpdate) error
	ListHashes(ctx context.Context, ownerID string) ([]storage.AssetHashes, error)
}

type PersonStore interface {
	ListPeople(ctx context.Context, ownerID string) ([]models.Person, error)
	GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error)
}

type BlobStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	StatObject(ctx context.Context, key string) (int64, string, error)
}

type TaskPublisher interface {
	PublishTask(ctx context.Context, task models.AssetTask) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func toAssetResponse(a *models.MediaAsset) dto.AssetResponse {
	resp := dto.AssetResponse{
		ID:               a.ID,
		OwnerID:          a.OwnerID,
		MimeType:         a.MimeType,
		Width:            a.Width,
		Height:           a.Height,
		Camera:           a.Camera,
		Lens:             a.Lens,
		FocalLength:      a.FocalLength,
		Aperture:         a.Aperture,
		ISO:              a.ISO,
		ExposureTime:     a.ExposureTime,
		Flash:            a.Flash,
		Labels:           []string{},
		DominantColors:   []string{},
		HasThumbnail:     a.ThumbnailKey != "",
		Faces:            []dto.FaceResponse{},
		ProcessingStatus: string(a.ProcessingStatus),
		ProcessingError:  a.ProcessingError,
		CreatedAt:        formatTime(a.CreatedAt),
		UpdatedAt:        formatTime(a.UpdatedAt),
	}
	if a.TakenAt != nil {
		resp.TakenAt = formatTime(*a.TakenAt)
	}
	if a.Location != nil {
		resp.Location = &dto.Location{Latitude: a.Location.Latitude, Longitude: a.Location.Longitude}
	}
	// Analysis output of a failed or unfinished run is not served.
	if !a.Trusted() {
		return resp
	}
	if a.Labels != nil {
		resp.Labels = a.Labels
	}
	if a.DominantColors != nil {
		resp.DominantColors = a.DominantColors
	}
	resp.SceneType = a.SceneType
	resp.QualityScore = a.QualityScore
	resp.PerceptualHash = a.PerceptualHash
	resp.FaceCount = a.FaceCount
	for _, f := range a.Faces {
		resp.Faces = append(resp.Faces, dto.FaceResponse{
			BoundingBox: dto.BoundingBox(f.BoundingBox),
			Confidence:  f.Confidence,
		})
	}
	return resp
}

func toPersonResponse(p *models.Person) dto.PersonResponse {
	samples := p.SampleAssetIDs
	if samples == nil {
		samples = []string{}
	}
	return dto.PersonResponse{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		FaceCount:      p.FaceCount,
		PhotoCount:     p.PhotoCount,
		SampleAssetIDs: samples,
		CreatedAt:      formatTime(p.CreatedAt),
		UpdatedAt:      formatTime(p.UpdatedAt),
	}
}
