package dto

type RegisterAssetRequest struct {
	// FileID is generated when empty.
	FileID   string `json:"file_id"`
	OwnerID  string `json:"owner_id" binding:"required"`
	BlobKey  string `json:"blob_key" binding:"required"`
	MimeType string `json:"mime_type"`
}

type ListQuery struct {
	OwnerID string `form:"owner_id" binding:"required"`
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type FaceResponse struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Confidence  float32     `json:"confidence"`
}

type AssetResponse struct {
	ID               string         `json:"id"`
	OwnerID          string         `json:"owner_id"`
	MimeType         string         `json:"mime_type"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
	TakenAt          string         `json:"taken_at,omitempty"`
	Location         *Location      `json:"location,omitempty"`
	Camera           string         `json:"camera,omitempty"`
	Lens             string         `json:"lens,omitempty"`
	FocalLength      string         `json:"focal_length,omitempty"`
	Aperture         string         `json:"aperture,omitempty"`
	ISO              int            `json:"iso,omitempty"`
	ExposureTime     string         `json:"exposure_time,omitempty"`
	Flash            *bool          `json:"flash,omitempty"`
	Labels           []string       `json:"labels"`
	SceneType        string         `json:"scene_type,omitempty"`
	QualityScore     *int           `json:"quality_score,omitempty"`
	DominantColors   []string       `json:"dominant_colors"`
	PerceptualHash   string         `json:"perceptual_hash,omitempty"`
	HasThumbnail     bool           `json:"has_thumbnail"`
	FaceCount        int            `json:"face_count"`
	Faces            []FaceResponse `json:"faces"`
	ProcessingStatus string         `json:"processing_status"`
	ProcessingError  string         `json:"processing_error,omitempty"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
}

type AssetListResponse struct {
	Assets []AssetResponse `json:"assets"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// CompareResponse is the fused fingerprint similarity of two assets, in percent.
type CompareResponse struct {
	AssetID         string  `json:"asset_id"`
	OtherID         string  `json:"other_id"`
	PHashDistance   int     `json:"phash_distance"`
	PHashSimilarity float64 `json:"phash_similarity"`
	AHashSimilarity float64 `json:"ahash_similarity"`
	DHashSimilarity float64 `json:"dhash_similarity"`
	Average         float64 `json:"average_similarity"`
	IsDuplicate     bool    `json:"is_duplicate"`
}

type DuplicateGroup struct {
	AnchorID string   `json:"anchor_id"`
	AssetIDs []string `json:"asset_ids"`
}

type DuplicatesResponse struct {
	Groups    []DuplicateGroup `json:"groups"`
	Threshold int              `json:"threshold"`
	Scanned   int              `json:"scanned"`
}
