package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrClusteringConflict is returned by a person repository when a write lost an
// optimistic version check against a concurrent writer for the same owner.
var ErrClusteringConflict = errors.New("clustering conflict")

// Person is a clustered face identity owned by one user.
type Person struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OwnerID        string    `json:"owner_id" db:"owner_id"`
	Centroid       []float32 `json:"-" db:"centroid"`
	FaceCount      int       `json:"face_count" db:"face_count"`
	SampleAssetIDs []string  `json:"sample_asset_ids" db:"sample_asset_ids"`
	PhotoCount     int       `json:"photo_count" db:"photo_count"`
	Version        int       `json:"version" db:"version"` // 0 until first persisted
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without aliasing registry state.
func (p *Person) Clone() *Person {
	c := *p
	c.Centroid = append([]float32(nil), p.Centroid...)
	c.SampleAssetIDs = append([]string(nil), p.SampleAssetIDs...)
	return &c
}

// HasSample reports whether assetID is already recorded as a sample.
func (p *Person) HasSample(assetID string) bool {
	for _, id := range p.SampleAssetIDs {
		if id == assetID {
			return true
		}
	}
	return false
}

// Registry is one owner's people as of Version. Every person write advances
// Version, so a writer holding a stale Version knows the registry moved.
type Registry struct {
	OwnerID string
	Version int64
	People  []Person
}
