package models

import "time"

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusPartial    ProcessingStatus = "partial"
	StatusComplete   ProcessingStatus = "complete"
	StatusFailed     ProcessingStatus = "failed"
)

// Terminal reports whether no further processing transitions are expected.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusPartial || s == StatusComplete || s == StatusFailed
}

// GeoPoint is a signed decimal degree pair.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// FaceObservation is one detected face, in source-pixel coordinates.
type FaceObservation struct {
	BoundingBox BoundingBox  `json:"bounding_box"`
	Embedding   []float32    `json:"embedding,omitempty"`
	Confidence  float32      `json:"confidence"`
	Landmarks   [][2]float32 `json:"landmarks,omitempty"`
}

type MediaAsset struct {
	ID               string            `json:"id" db:"id"`
	OwnerID          string            `json:"owner_id" db:"owner_id"`
	BlobKey          string            `json:"blob_key" db:"blob_key"`
	MimeType         string            `json:"mime_type" db:"mime_type"`
	Width            int               `json:"width" db:"width"`
	Height           int               `json:"height" db:"height"`
	TakenAt          *time.Time        `json:"taken_at,omitempty" db:"taken_at"`
	Location         *GeoPoint         `json:"location,omitempty" db:"location"`
	Camera           string            `json:"camera,omitempty" db:"camera"`
	Lens             string            `json:"lens,omitempty" db:"lens"`
	FocalLength      string            `json:"focal_length,omitempty" db:"focal_length"`
	Aperture         string            `json:"aperture,omitempty" db:"aperture"`
	ISO              int               `json:"iso,omitempty" db:"iso"`
	ExposureTime     string            `json:"exposure_time,omitempty" db:"exposure_time"`
	Flash            *bool             `json:"flash,omitempty" db:"flash"`
	Orientation      int               `json:"orientation,omitempty" db:"orientation"`
	Labels           []string          `json:"labels" db:"labels"`
	SceneType        string            `json:"scene_type,omitempty" db:"scene_type"`
	QualityScore     *int              `json:"quality_score,omitempty" db:"quality_score"`
	DominantColors   []string          `json:"dominant_colors" db:"dominant_colors"`
	PerceptualHash   string            `json:"perceptual_hash,omitempty" db:"perceptual_hash"`
	AverageHash      string            `json:"average_hash,omitempty" db:"average_hash"`
	DifferenceHash   string            `json:"difference_hash,omitempty" db:"difference_hash"`
	ThumbnailKey     string            `json:"thumbnail_key,omitempty" db:"thumbnail_key"`
	FaceCount        int               `json:"face_count" db:"face_count"`
	Faces            []FaceObservation `json:"faces,omitempty" db:"faces"`
	ProcessingStatus ProcessingStatus  `json:"processing_status" db:"processing_status"`
	ProcessingError  string            `json:"processing_error,omitempty" db:"processing_error"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// Trusted reports whether derived fields may be consumed downstream.
func (a *MediaAsset) Trusted() bool {
	return a.ProcessingStatus == StatusComplete || a.ProcessingStatus == StatusPartial
}

// AssetUpdate is a partial update of a MediaAsset. Nil fields are left unchanged.
type AssetUpdate struct {
	Width            *int
	Height           *int
	TakenAt          *time.Time
	Location         *GeoPoint
	Camera           *string
	Lens             *string
	FocalLength      *string
	Aperture         *string
	ISO              *int
	ExposureTime     *string
	Flash            *bool
	Orientation      *int
	Labels           []string
	SceneType        *string
	QualityScore     *int
	DominantColors   []string
	PerceptualHash   *string
	AverageHash      *string
	DifferenceHash   *string
	ThumbnailKey     *string
	FaceCount        *int
	Faces            []FaceObservation
	ProcessingStatus *ProcessingStatus
	ProcessingError  *string
}

// Apply merges the non-nil fields of u into a.
func (u AssetUpdate) Apply(a *MediaAsset) {
	if u.Width != nil {
		a.Width = *u.Width
	}
	if u.Height != nil {
		a.Height = *u.Height
	}
	if u.TakenAt != nil {
		t := *u.TakenAt
		a.TakenAt = &t
	}
	if u.Location != nil {
		loc := *u.Location
		a.Location = &loc
	}
	if u.Camera != nil {
		a.Camera = *u.Camera
	}
	if u.Lens != nil {
		a.Lens = *u.Lens
	}
	if u.FocalLength != nil {
		a.FocalLength = *u.FocalLength
	}
	if u.Aperture != nil {
		a.Aperture = *u.Aperture
	}
	if u.ISO != nil {
		a.ISO = *u.ISO
	}
	if u.ExposureTime != nil {
		a.ExposureTime = *u.ExposureTime
	}
	if u.Flash != nil {
		f := *u.Flash
		a.Flash = &f
	}
	if u.Orientation != nil {
		a.Orientation = *u.Orientation
	}
	if u.Labels != nil {
		a.Labels = append([]string(nil), u.Labels...)
	}
	if u.SceneType != nil {
		a.SceneType = *u.SceneType
	}
	if u.QualityScore != nil {
		q := *u.QualityScore
		a.QualityScore = &q
	}
	if u.DominantColors != nil {
		a.DominantColors = append([]string(nil), u.DominantColors...)
	}
	if u.PerceptualHash != nil {
		a.PerceptualHash = *u.PerceptualHash
	}
	if u.AverageHash != nil {
		a.AverageHash = *u.AverageHash
	}
	if u.DifferenceHash != nil {
		a.DifferenceHash = *u.DifferenceHash
	}
	if u.ThumbnailKey != nil {
		a.ThumbnailKey = *u.ThumbnailKey
	}
	if u.FaceCount != nil {
		a.FaceCount = *u.FaceCount
	}
	if u.Faces != nil {
		a.Faces = append([]FaceObservation(nil), u.Faces...)
	}
	if u.ProcessingStatus != nil {
		a.ProcessingStatus = *u.ProcessingStatus
	}
	if u.ProcessingError != nil {
		a.ProcessingError = *u.ProcessingError
	}
}

// AssetTask is the message published to NATS for worker processing.
type AssetTask struct {
	FileID     string    `json:"file_id"`
	OwnerID    string    `json:"owner_id"`
	BlobKey    string    `json:"blob_key"`
	MimeType   string    `json:"mime_type,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// AssetProcessed is published once a task reaches a terminal state.
type AssetProcessed struct {
	FileID    string           `json:"file_id"`
	OwnerID   string           `json:"owner_id"`
	Status    ProcessingStatus `json:"status"`
	Error     string           `json:"error,omitempty"`
	FaceCount int              `json:"face_count"`
	Labels    []string         `json:"labels,omitempty"`
	SceneType string           `json:"scene_type,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// DuplicateGroup is derived on demand from stored perceptual hashes.
type DuplicateGroup struct {
	AnchorID string   `json:"anchor_id"`
	AssetIDs []string `json:"asset_ids"`
}
