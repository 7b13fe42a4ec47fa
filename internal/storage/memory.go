package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/pixelmind/internal/models"
)

var ErrNotFound = errors.New("not found")

// AssetHashes is the fingerprint projection used for duplicate grouping.
type AssetHashes struct {
	ID    string `json:"id"`
	PHash string `json:"phash"`
	AHash string `json:"ahash"`
	DHash string `json:"dhash"`
}

// MemoryStore is an in-process asset and person registry with the same
// semantics as PostgresStore, used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	assets  map[string]*models.MediaAsset
	order   []string
	persons map[uuid.UUID]*models.Person
	// registry versions per owner; absent means 0
	registries map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:     make(map[string]*models.MediaAsset),
		persons:    make(map[uuid.UUID]*models.Person),
		registries: make(map[string]int64),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}

// --- Assets ---

func (s *MemoryStore) CreateAsset(_ context.Context, a *models.MediaAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[a.ID]; ok {
		return errors.New("create asset: duplicate id")
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.ProcessingStatus == "" {
		a.ProcessingStatus = models.StatusPending
	}
	c := *a
	s.assets[a.ID] = &c
	s.order = append(s.order, a.ID)
	return nil
}

func (s *MemoryStore) GetAsset(_ context.Context, id string) (*models.MediaAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (s *MemoryStore) ListAssets(_ context.Context, ownerID string, limit, offset int) ([]models.MediaAsset, int, error) {
	limit = clampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []models.MediaAsset
	for i := len(s.order) - 1; i >= 0; i-- {
		a := s.assets[s.order[i]]
		if a.OwnerID == ownerID {
			owned = append(owned, *a)
		}
	}
	total := len(owned)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return owned[offset:end], total, nil
}

func (s *MemoryStore) UpdateAsset(_ context.Context, id string, u models.AssetUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[id]
	if !ok {
		return ErrNotFound
	}
	u.Apply(a)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListHashes(_ context.Context, ownerID string) ([]AssetHashes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []AssetHashes
	for _, id := range s.order {
		a := s.assets[id]
		if a.OwnerID != ownerID || a.PerceptualHash == "" || !a.Trusted() {
			continue
		}
		out = append(out, AssetHashes{ID: a.ID, PHash: a.PerceptualHash, AHash: a.AverageHash, DHash: a.DifferenceHash})
	}
	return out, nil
}

// --- Persons ---

func (s *MemoryStore) ListPeople(_ context.Context, ownerID string) ([]models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.people(ownerID), nil
}

// LoadRegistry returns the owner's people together with the registry version.
func (s *MemoryStore) LoadRegistry(_ context.Context, ownerID string) (*models.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &models.Registry{OwnerID: ownerID, Version: s.registries[ownerID], People: s.people(ownerID)}, nil
}

// people returns ownerID's persons by creation. Callers hold s.mu.
func (s *MemoryStore) people(ownerID string) []models.Person {
	var out []models.Person
	for _, p := range s.persons {
		if p.OwnerID == ownerID {
			out = append(out, *p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) GetPerson(_ context.Context, id uuid.UUID) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.persons[id]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

// UpsertPerson writes p only while the owner's registry is at
// registryVersion. It inserts when p.Version is 0, otherwise compares and
// swaps on the person version. p.Version is advanced on success.
func (s *MemoryStore) UpsertPerson(_ context.Context, p *models.Person, registryVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.persons[p.ID]
	switch {
	case s.registries[p.OwnerID] != registryVersion:
		return models.ErrClusteringConflict
	case p.Version == 0 && exists:
		return models.ErrClusteringConflict
	case p.Version != 0 && (!exists || cur.Version != p.Version):
		return models.ErrClusteringConflict
	}

	p.Version++
	s.persons[p.ID] = p.Clone()
	s.registries[p.OwnerID]++
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
