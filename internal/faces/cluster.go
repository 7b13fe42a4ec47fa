package faces

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/pixelmind/internal/models"
	"github.com/your-org/pixelmind/internal/observability"
)

const (
	// DefaultThreshold is the Euclidean distance below which a face joins a person.
	DefaultThreshold = 0.6
	// DefaultMaxSamples caps Person.SampleAssetIDs.
	DefaultMaxSamples = 50
)

// PersonRepository persists the person registry. UpsertPerson succeeds only
// while the owner's registry is still at registryVersion, as read by
// LoadRegistry; it inserts when p.Version is 0 and otherwise updates only if
// the stored version still equals p.Version. A lost race in either check is
// models.ErrClusteringConflict. On success the new version is stored back
// into p and the registry version advances.
type PersonRepository interface {
	LoadRegistry(ctx context.Context, ownerID string) (*models.Registry, error)
	UpsertPerson(ctx context.Context, p *models.Person, registryVersion int64) error
}

// Match records where one face ended up.
type Match struct {
	FaceIndex int       `json:"face_index"`
	PersonID  uuid.UUID `json:"person_id"`
	Distance  float64   `json:"distance"`
	Created   bool      `json:"created"`
}

// Clusterer performs incremental nearest-centroid clustering. Past
// assignments are never revisited.
type Clusterer struct {
	repo       PersonRepository
	threshold  float64
	maxSamples int
	locks      *keyedMutex
	now        func() time.Time
}

type ClustererOption func(*Clusterer)

func WithThreshold(t float64) ClustererOption {
	return func(c *Clusterer) {
		if t > 0 {
			c.threshold = t
		}
	}
}

func WithMaxSamples(n int) ClustererOption {
	return func(c *Clusterer) {
		if n > 0 {
			c.maxSamples = n
		}
	}
}

func NewClusterer(repo PersonRepository, opts ...ClustererOption) *Clusterer {
	c := &Clusterer{
		repo:       repo,
		threshold:  DefaultThreshold,
		maxSamples: DefaultMaxSamples,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Assign folds each observation into the owner's registry in order. Calls for
// the same owner are serialized in this process; writers in other processes
// are caught by the registry version and the face is retried once.
func (c *Clusterer) Assign(ctx context.Context, ownerID, assetID string, obs []models.FaceObservation) ([]Match, error) {
	if len(obs) == 0 {
		return nil, nil
	}

	unlock := c.locks.Lock(ownerID)
	defer unlock()

	// people already credited with this photo during this call
	counted := make(map[uuid.UUID]bool)
	matches := make([]Match, 0, len(obs))
	for i, o := range obs {
		m, err := c.assignOne(ctx, ownerID, assetID, o.Embedding, counted)
		if errors.Is(err, models.ErrClusteringConflict) {
			// The owner's registry moved since it was read; re-read and retry once.
			observability.ClusteringConflicts.WithLabelValues("retried").Inc()
			slog.Warn("clustering conflict, retrying", "owner_id", ownerID, "asset_id", assetID, "face", i)
			m, err = c.assignOne(ctx, ownerID, assetID, o.Embedding, counted)
			if errors.Is(err, models.ErrClusteringConflict) {
				observability.ClusteringConflicts.WithLabelValues("failed").Inc()
			}
		}
		if err != nil {
			return matches, fmt.Errorf("assign face %d: %w", i, err)
		}
		m.FaceIndex = i
		counted[m.PersonID] = true
		matches = append(matches, m)
	}
	return matches, nil
}

func (c *Clusterer) assignOne(ctx context.Context, ownerID, assetID string, emb []float32, counted map[uuid.UUID]bool) (Match, error) {
	reg, err := c.repo.LoadRegistry(ctx, ownerID)
	if err != nil {
		return Match{}, fmt.Errorf("load registry: %w", err)
	}
	people := reg.People

	best, dist := Nearest(people, emb)
	now := c.now().UTC()

	if best >= 0 && dist < c.threshold {
		p := people[best].Clone()
		updateCentroid(p, emb)
		if !counted[p.ID] && !p.HasSample(assetID) {
			p.PhotoCount++
			if len(p.SampleAssetIDs) < c.maxSamples {
				p.SampleAssetIDs = append(p.SampleAssetIDs, assetID)
			}
		}
		p.UpdatedAt = now

		if err := c.repo.UpsertPerson(ctx, p, reg.Version); err != nil {
			return Match{}, fmt.Errorf("update person %s: %w", p.ID, err)
		}
		observability.FacesAssigned.Inc()
		return Match{PersonID: p.ID, Distance: dist}, nil
	}

	p := &models.Person{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Centroid:       append([]float32(nil), emb...),
		FaceCount:      1,
		SampleAssetIDs: []string{assetID},
		PhotoCount:     1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.repo.UpsertPerson(ctx, p, reg.Version); err != nil {
		return Match{}, fmt.Errorf("create person: %w", err)
	}
	observability.PersonsCreated.Inc()
	slog.Debug("person created", "owner_id", ownerID, "person_id", p.ID)
	return Match{PersonID: p.ID, Distance: dist, Created: true}, nil
}

// Nearest returns the index of the person whose centroid is closest to emb and
// that distance, or -1 and +Inf when nobody is comparable. People whose
// centroid dimensionality differs from emb are skipped.
func Nearest(people []models.Person, emb []float32) (int, float64) {
	best := -1
	bestDist := math.Inf(1)
	for i := range people {
		d, ok := Distance(people[i].Centroid, emb)
		if !ok {
			continue
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// Distance is the Euclidean distance between equal-length vectors.
func Distance(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), true
}

// updateCentroid folds emb into the running mean of every embedding assigned so far.
func updateCentroid(p *models.Person, emb []float32) {
	n := float64(p.FaceCount)
	for i := range p.Centroid {
		p.Centroid[i] = float32((float64(p.Centroid[i])*n + float64(emb[i])) / (n + 1))
	}
	p.FaceCount++
}

// keyedMutex hands out one mutex per key and drops it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
