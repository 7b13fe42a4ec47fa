package dto

import "github.com/google/uuid"

type PersonResponse struct {
	ID             uuid.UUID `json:"id"`
	OwnerID        string    `json:"owner_id"`
	FaceCount      int       `json:"face_count"`
	PhotoCount     int       `json:"photo_count"`
	SampleAssetIDs []string  `json:"sample_asset_ids"`
	CreatedAt      string    `json:"created_at"`
	UpdatedAt      string    `json:"updated_at"`
}

type PersonListResponse struct {
	Persons []PersonResponse `json:"persons"`
	Total   int              `json:"total"`
}
