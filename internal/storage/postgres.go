package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/pixelmind/internal/config"
	"github.com/your-org/pixelmind/internal/models"
)

//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// --- Assets ---

const assetColumns = `id, owner_id, blob_key, mime_type, width, height, taken_at, latitude, longitude,
	camera, lens, focal_length, aperture, iso, exposure_time, flash, orientation, labels, scene_type,
	quality_score, dominant_colors, perceptual_hash, average_hash, difference_hash, thumbnail_key,
	face_count, faces, processing_status, processing_error, created_at, updated_at`

func scanAsset(row pgx.Row) (*models.MediaAsset, error) {
	var (
		a        models.MediaAsset
		lat, lon *float64
		status   string
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.BlobKey, &a.MimeType, &a.Width, &a.Height, &a.TakenAt,
		&lat, &lon, &a.Camera, &a.Lens, &a.FocalLength, &a.Aperture, &a.ISO, &a.ExposureTime,
		&a.Flash, &a.Orientation, &a.Labels, &a.SceneType, &a.QualityScore, &a.DominantColors,
		&a.PerceptualHash, &a.AverageHash, &a.DifferenceHash, &a.ThumbnailKey, &a.FaceCount,
		&a.Faces, &status, &a.ProcessingError, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lat != nil && lon != nil {
		a.Location = &models.GeoPoint{Latitude: *lat, Longitude: *lon}
	}
	a.ProcessingStatus = models.ProcessingStatus(status)
	return &a, nil
}

func (s *PostgresStore) CreateAsset(ctx context.Context, a *models.MediaAsset) error {
	if a.ProcessingStatus == "" {
		a.ProcessingStatus = models.StatusPending
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO assets (id, owner_id, blob_key, mime_type, processing_status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`,
		a.ID, a.OwnerID, a.BlobKey, a.MimeType, string(a.ProcessingStatus),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create asset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAsset(ctx context.Context, id string) (*models.MediaAsset, error) {
	a, err := scanAsset(s.pool.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

// ListAssets returns one page of an owner's assets, newest first, and the total.
func (s *PostgresStore) ListAssets(ctx context.Context, ownerID string, limit, offset int) ([]models.MediaAsset, int, error) {
	limit = clampLimit(limit)

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM assets WHERE owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assets: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE owner_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []models.MediaAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, *a)
	}
	return assets, total, rows.Err()
}

// UpdateAsset writes only the fields set in u.
func (s *PostgresStore) UpdateAsset(ctx context.Context, id string, u models.AssetUpdate) error {
	set, args := assetUpdateColumns(u)
	set = append(set, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE assets SET %s WHERE id = $%d`, strings.Join(set, ", "), len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// assetUpdateColumns renders the non-nil fields of u as numbered SET clauses.
func assetUpdateColumns(u models.AssetUpdate) ([]string, []any) {
	var (
		set  []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.Width != nil {
		add("width", *u.Width)
	}
	if u.Height != nil {
		add("height", *u.Height)
	}
	if u.TakenAt != nil {
		add("taken_at", *u.TakenAt)
	}
	if u.Location != nil {
		add("latitude", u.Location.Latitude)
		add("longitude", u.Location.Longitude)
	}
	if u.Camera != nil {
		add("camera", *u.Camera)
	}
	if u.Lens != nil {
		add("lens", *u.Lens)
	}
	if u.FocalLength != nil {
		add("focal_length", *u.FocalLength)
	}
	if u.Aperture != nil {
		add("aperture", *u.Aperture)
	}
	if u.ISO != nil {
		add("iso", *u.ISO)
	}
	if u.ExposureTime != nil {
		add("exposure_time", *u.ExposureTime)
	}
	if u.Flash != nil {
		add("flash", *u.Flash)
	}
	if u.Orientation != nil {
		add("orientation", *u.Orientation)
	}
	if u.Labels != nil {
		add("labels", u.Labels)
	}
	if u.SceneType != nil {
		add("scene_type", *u.SceneType)
	}
	if u.QualityScore != nil {
		add("quality_score", *u.QualityScore)
	}
	if u.DominantColors != nil {
		add("dominant_colors", u.DominantColors)
	}
	if u.PerceptualHash != nil {
		add("perceptual_hash", *u.PerceptualHash)
	}
	if u.AverageHash != nil {
		add("average_hash", *u.AverageHash)
	}
	if u.DifferenceHash != nil {
		add("difference_hash", *u.DifferenceHash)
	}
	if u.ThumbnailKey != nil {
		add("thumbnail_key", *u.ThumbnailKey)
	}
	if u.FaceCount != nil {
		add("face_count", *u.FaceCount)
	}
	if u.Faces != nil {
		add("faces", u.Faces)
	}
	if u.ProcessingStatus != nil {
		add("processing_status", string(*u.ProcessingStatus))
	}
	if u.ProcessingError != nil {
		add("processing_error", *u.ProcessingError)
	}
	return set, args
}

// ListHashes returns the fingerprints of an owner's trusted assets in
// creation order.
func (s *PostgresStore) ListHashes(ctx context.Context, ownerID string) ([]AssetHashes, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, perceptual_hash, average_hash, difference_hash FROM assets
		 WHERE owner_id = $1 AND perceptual_hash <> '' AND processing_status IN ($2, $3)
		 ORDER BY created_at, id`,
		ownerID, string(models.StatusComplete), string(models.StatusPartial))
	if err != nil {
		return nil, fmt.Errorf("list hashes: %w", err)
	}
	defer rows.Close()

	var out []AssetHashes
	for rows.Next() {
		var h AssetHashes
		if err := rows.Scan(&h.ID, &h.PHash, &h.AHash, &h.DHash); err != nil {
			return nil, fmt.Errorf("scan hashes: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- Persons ---

const personColumns = `id, owner_id, centroid, face_count, sample_asset_ids, photo_count, version, created_at, updated_at`

func scanPerson(row pgx.Row) (*models.Person, error) {
	var (
		p   models.Person
		vec pgvector.Vector
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &vec, &p.FaceCount, &p.SampleAssetIDs,
		&p.PhotoCount, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Centroid = vec.Slice()
	return &p, nil
}

func (s *PostgresStore) ListPeople(ctx context.Context, ownerID string) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+personColumns+` FROM persons WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	var people []models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, *p)
	}
	return people, rows.Err()
}

func (s *PostgresStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p, err := scanPerson(s.pool.QueryRow(ctx,
		`SELECT `+personColumns+` FROM persons WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

// LoadRegistry reads the owner's registry version and people in one snapshot.
func (s *PostgresStore) LoadRegistry(ctx context.Context, ownerID string) (*models.Registry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin registry read: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	reg := &models.Registry{OwnerID: ownerID}
	err = tx.QueryRow(ctx,
		`SELECT version FROM person_registries WHERE owner_id = $1`, ownerID).Scan(&reg.Version)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read registry version: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT `+personColumns+` FROM persons WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		reg.People = append(reg.People, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit registry read: %w", err)
	}
	return reg, nil
}

// advanceRegistry moves the owner's registry from version seen to seen+1. It
// matches no row, and reports a conflict, when another writer got there first.
const advanceRegistrySQL = `
INSERT INTO person_registries (owner_id, version)
SELECT $1, 1 WHERE $2::bigint = 0
ON CONFLICT (owner_id) DO UPDATE
SET version = person_registries.version + 1
WHERE person_registries.version = $2::bigint
RETURNING version`

// UpsertPerson writes p only if the owner's registry is still at
// registryVersion. p is inserted when p.Version is 0 and otherwise updated only
// if its stored version still equals p.Version. Either lost race is reported
// as models.ErrClusteringConflict. p.Version is advanced on success.
func (s *PostgresStore) UpsertPerson(ctx context.Context, p *models.Person, registryVersion int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin person write: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var next int64
	if err := tx.QueryRow(ctx, advanceRegistrySQL, p.OwnerID, registryVersion).Scan(&next); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrClusteringConflict
		}
		return fmt.Errorf("advance registry: %w", err)
	}

	vec := pgvector.NewVector(p.Centroid)
	samples := p.SampleAssetIDs
	if samples == nil {
		samples = []string{}
	}

	if p.Version == 0 {
		err := tx.QueryRow(ctx,
			`INSERT INTO persons (id, owner_id, centroid, face_count, sample_asset_ids, photo_count, version)
			 VALUES ($1, $2, $3, $4, $5, $6, 1)
			 ON CONFLICT (id) DO NOTHING
			 RETURNING created_at, updated_at`,
			p.ID, p.OwnerID, vec, p.FaceCount, samples, p.PhotoCount,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrClusteringConflict
			}
			return fmt.Errorf("insert person: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit person: %w", err)
		}
		p.Version = 1
		return nil
	}

	var updated time.Time
	err = tx.QueryRow(ctx,
		`UPDATE persons
		 SET centroid = $1, face_count = $2, sample_asset_ids = $3, photo_count = $4,
		     version = version + 1, updated_at = now()
		 WHERE id = $5 AND version = $6
		 RETURNING updated_at`,
		vec, p.FaceCount, samples, p.PhotoCount, p.ID, p.Version,
	).Scan(&updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrClusteringConflict
		}
		return fmt.Errorf("update person: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit person: %w", err)
	}
	p.Version++
	p.UpdatedAt = updated
	return nil
}
